// Package followup runs the reminder escalation sequence for peers that
// went silent mid-funnel.
package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

// Template is one stage of the escalation: how long after the previous
// outbound (or previous reminder) it fires, and what it says.
type Template struct {
	Delay time.Duration
	Text  string
}

// DefaultTemplates is the stock three-stage escalation.
var DefaultTemplates = []Template{
	{Delay: 30 * time.Minute, Text: "Підкажіть, чи вдалося ознайомитись? Якщо з'явились питання — із задоволенням відповім 🙂"},
	{Delay: 24 * time.Hour, Text: "Добрий день! Нагадую про вакансію — місця ще актуальні. Чи цікаво продовжити?"},
	{Delay: 72 * time.Hour, Text: "Вітаю! Це останнє нагадування: якщо вакансія ще цікава, напишіть, і ми продовжимо з того ж місця 🙂"},
}

// Default allowed sending window, local hours.
const (
	DefaultWindowStartHour = 10
	DefaultWindowEndHour   = 21
)

// DefaultSweepInterval is how often due reminders are checked.
const DefaultSweepInterval = time.Minute

// sweepBatchLimit bounds one sweep pass.
const sweepBatchLimit = 50

// sender is the outbound slice of the dispatcher used by the sweep.
type sender interface {
	SendAndUpdate(ctx context.Context, peer models.PeerID, text string, opts dispatch.SendOptions) string
}

// Opts holds scheduler configuration.
type Opts struct {
	Templates       []Template
	WindowStartHour int
	WindowEndHour   int
	SweepInterval   time.Duration
	Timezone        *time.Location
	ExcludedPeers   []models.PeerID
}

// Option configures the scheduler.
type Option func(*Opts)

// WithTemplates overrides the escalation stages.
func WithTemplates(templates []Template) Option {
	return func(o *Opts) { o.Templates = templates }
}

// WithWindow sets the allowed daily sending window in local hours.
func WithWindow(startHour, endHour int) Option {
	return func(o *Opts) {
		o.WindowStartHour = startHour
		o.WindowEndHour = endHour
	}
}

// WithSweepInterval sets the due-check cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) { o.SweepInterval = d }
}

// WithTimezone sets the timezone of the sending window.
func WithTimezone(tz *time.Location) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// WithExcludedPeers disables reminders for the given peers (operator
// test accounts).
func WithExcludedPeers(peers []models.PeerID) Option {
	return func(o *Opts) { o.ExcludedPeers = peers }
}

// Scheduler persists and fires the per-peer reminder escalation.
type Scheduler struct {
	repo   store.FollowupRepo
	states store.PeerStateRepo
	pauses store.PauseRepo
	out    sender

	templates   []Template
	windowStart int
	windowEnd   int
	interval    time.Duration
	tz          *time.Location
	excluded    map[models.PeerID]bool

	now func() time.Time
}

// NewScheduler wires the reminder scheduler. The sender may be set later
// with SetSender to break the construction cycle with the dispatcher.
func NewScheduler(repo store.FollowupRepo, states store.PeerStateRepo, pauses store.PauseRepo, opts ...Option) *Scheduler {
	o := &Opts{
		Templates:       DefaultTemplates,
		WindowStartHour: DefaultWindowStartHour,
		WindowEndHour:   DefaultWindowEndHour,
		SweepInterval:   DefaultSweepInterval,
		Timezone:        time.Local,
	}
	for _, opt := range opts {
		opt(o)
	}
	excluded := make(map[models.PeerID]bool, len(o.ExcludedPeers))
	for _, p := range o.ExcludedPeers {
		excluded[p] = true
	}
	return &Scheduler{
		repo:        repo,
		states:      states,
		pauses:      pauses,
		templates:   o.Templates,
		windowStart: o.WindowStartHour,
		windowEnd:   o.WindowEndHour,
		interval:    o.SweepInterval,
		tz:          o.Timezone,
		excluded:    excluded,
		now:         time.Now,
	}
}

// SetSender injects the dispatcher after construction. The dispatcher
// needs the scheduler for rescheduling and the scheduler needs the
// dispatcher for sending, so one side is wired late.
func (s *Scheduler) SetSender(out sender) {
	s.out = out
}

// ScheduleFromNow (re)starts the escalation at stage 0 for the peer.
// Excluded peers are ignored.
func (s *Scheduler) ScheduleFromNow(peer models.PeerID) error {
	if s.excluded[peer] || len(s.templates) == 0 {
		return nil
	}
	next := s.normalizeToWindow(s.now().Add(s.templates[0].Delay))
	return s.repo.UpsertFollowup(models.FollowupSchedule{
		PeerID: peer,
		Stage:  0,
		NextAt: next,
	})
}

// Clear drops any pending reminder for the peer. Called on every new
// inbound message: a reply means the peer is engaged and a stale
// reminder must not fire later.
func (s *Scheduler) Clear(peer models.PeerID) error {
	return s.repo.DeleteFollowup(peer)
}

// MarkSentAndAdvance moves the schedule to the next stage after a
// reminder went out, or clears it after the final stage.
func (s *Scheduler) MarkSentAndAdvance(f models.FollowupSchedule) error {
	nextStage := f.Stage + 1
	if nextStage >= len(s.templates) {
		return s.repo.DeleteFollowup(f.PeerID)
	}
	now := s.now()
	f.Stage = nextStage
	f.NextAt = s.normalizeToWindow(now.Add(s.templates[nextStage].Delay))
	f.LastSentAt = &now
	return s.repo.UpsertFollowup(f)
}

// Run sweeps for due reminders until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Scheduler starting followup sweep", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopping followup sweep")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.repo.DueFollowups(s.now(), sweepBatchLimit)
	if err != nil {
		slog.Error("Scheduler.sweep: due lookup failed", "error", err)
		return
	}
	for _, f := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, f)
	}
}

// fire sends one due reminder. A peer that stopped or was paused since
// the reminder was scheduled gets its schedule cleared instead.
func (s *Scheduler) fire(ctx context.Context, f models.FollowupSchedule) {
	if s.excluded[f.PeerID] {
		_ = s.repo.DeleteFollowup(f.PeerID)
		return
	}
	if f.Stage < 0 || f.Stage >= len(s.templates) {
		slog.Warn("Scheduler.fire: dropping schedule with unknown stage", "peerID", f.PeerID, "stage", f.Stage)
		_ = s.repo.DeleteFollowup(f.PeerID)
		return
	}
	if s.shouldSkip(f.PeerID) {
		if err := s.repo.DeleteFollowup(f.PeerID); err != nil {
			slog.Error("Scheduler.fire: clear failed", "peerID", f.PeerID, "error", err)
		}
		return
	}
	if s.out == nil {
		slog.Error("Scheduler.fire: no sender wired, skipping", "peerID", f.PeerID)
		return
	}

	tpl := s.templates[f.Stage]
	slog.Info("Scheduler.fire: sending reminder", "peerID", f.PeerID, "stage", f.Stage)
	s.out.SendAndUpdate(ctx, f.PeerID, tpl.Text, dispatch.SendOptions{
		Kind:             dispatch.KindScripted,
		SuppressFollowup: true,
	})
	if err := s.MarkSentAndAdvance(f); err != nil {
		slog.Error("Scheduler.fire: advance failed", "peerID", f.PeerID, "error", err)
	}
}

func (s *Scheduler) shouldSkip(peer models.PeerID) bool {
	if rec, err := s.pauses.GetPause(peer); err == nil && rec != nil && rec.Status == models.PauseStatusPaused {
		return true
	}
	state, err := s.states.GetPeerState(peer)
	if err != nil {
		slog.Error("Scheduler.shouldSkip: state lookup failed", "peerID", peer, "error", err)
		return true
	}
	return state.Paused || !state.AutoReply || state.FlowStep == models.StepAgeRejected || state.FlowStep == models.StepHandoff
}

// normalizeToWindow pushes a time outside the allowed daily window to
// the next window start. A time at or past the end hour moves to the
// start hour of the following day.
func (s *Scheduler) normalizeToWindow(t time.Time) time.Time {
	local := t.In(s.tz)
	start := time.Date(local.Year(), local.Month(), local.Day(), s.windowStart, 0, 0, 0, s.tz)
	if local.Hour() < s.windowStart {
		return start
	}
	if local.Hour() >= s.windowEnd {
		return start.AddDate(0, 0, 1)
	}
	return local
}
