// Package dispatch executes outbound flow actions: it applies pre-send
// pacing, optionally rewrites canned text through the AI capability,
// sends via the messaging transport, tracks sent ids for echo
// suppression and enqueues the CRM side-channel updates.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/intent"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/sheets"
	"github.com/recruitflow/recruitflow/internal/store"
)

// Default pre-send delays per send kind. Chaining scripted lines too
// fast reads as robotic, so even instant sends carry a short pause.
const (
	DefaultScriptedDelay = 2 * time.Second
	DefaultAIDelay       = 5 * time.Second
	DefaultChainDelay    = 3 * time.Second
)

// rewriteHistoryLimit bounds how many recent turns feed an AI rewrite.
const rewriteHistoryLimit = 12

// SendKind selects the pre-send delay tier.
type SendKind int

const (
	// KindScripted is a single canned line.
	KindScripted SendKind = iota
	// KindAI is an AI-composed or AI-rewritten reply.
	KindAI
	// KindChained is a follow-on line in a multi-message burst.
	KindChained
)

// Messenger is the outbound slice of the transport service.
type Messenger interface {
	SendMessage(ctx context.Context, peer models.PeerID, text string) (string, error)
	RecentHistory(ctx context.Context, peer models.PeerID, limit int) ([]models.HistoryTurn, error)
}

// Rewriter rephrases canned text with conversation context.
type Rewriter interface {
	Suggest(ctx context.Context, history []models.HistoryTurn, draft string, noQuestions bool) (string, error)
}

// Rescheduler restarts the follow-up reminder sequence for a peer.
type Rescheduler interface {
	ScheduleFromNow(peer models.PeerID) error
}

// SendOptions controls one SendAndUpdate invocation.
type SendOptions struct {
	Kind SendKind

	// Rewrite asks the AI capability to rephrase the text. On any
	// failure the canned text is sent verbatim.
	Rewrite bool

	// NoQuestions strips a trailing question from the rewritten text.
	NoQuestions bool

	// Status is the CRM status label to record; empty leaves the
	// stored status untouched.
	Status string

	// Step is the funnel step recorded on the CRM row and journal line.
	Step models.FunnelStep

	// Username and Name annotate the CRM row when known.
	Username string
	Name     string

	// SuppressFollowup disables reminder rescheduling (used by the
	// reminder sweep itself).
	SuppressFollowup bool
}

// Opts holds dispatcher configuration.
type Opts struct {
	AccountKey    string
	Timezone      *time.Location
	ScriptedDelay time.Duration
	AIDelay       time.Duration
	ChainDelay    time.Duration
	RingSize      int
}

// Option configures the dispatcher.
type Option func(*Opts)

// WithAccountKey tags CRM rows with the sending account identity.
func WithAccountKey(key string) Option {
	return func(o *Opts) { o.AccountKey = key }
}

// WithTimezone sets the timezone used for CRM timestamps.
func WithTimezone(tz *time.Location) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// WithDelays overrides the per-kind pre-send delays.
func WithDelays(scripted, ai, chain time.Duration) Option {
	return func(o *Opts) {
		o.ScriptedDelay = scripted
		o.AIDelay = ai
		o.ChainDelay = chain
	}
}

// WithRingSize sets the per-peer sent-id ring size.
func WithRingSize(n int) Option {
	return func(o *Opts) { o.RingSize = n }
}

// Dispatcher sends outbound messages and fans out the bookkeeping.
type Dispatcher struct {
	msg       Messenger
	rewriter  Rewriter // nil disables AI rewrite
	pauses    store.PauseRepo
	queue     store.EventQueueRepo
	followups Rescheduler // nil disables rescheduling
	tracker   *SentTracker

	accountKey string
	tz         *time.Location
	delays     map[SendKind]time.Duration

	// Test hooks.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewDispatcher wires a dispatcher over the given capabilities. The
// rewriter and rescheduler may be nil to disable those side effects.
func NewDispatcher(msg Messenger, rewriter Rewriter, pauses store.PauseRepo, queue store.EventQueueRepo, followups Rescheduler, opts ...Option) *Dispatcher {
	o := &Opts{
		Timezone:      time.Local,
		ScriptedDelay: DefaultScriptedDelay,
		AIDelay:       DefaultAIDelay,
		ChainDelay:    DefaultChainDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Dispatcher{
		msg:       msg,
		rewriter:  rewriter,
		pauses:    pauses,
		queue:     queue,
		followups: followups,
		tracker:   NewSentTracker(o.RingSize),

		accountKey: o.AccountKey,
		tz:         o.Timezone,
		delays: map[SendKind]time.Duration{
			KindScripted: o.ScriptedDelay,
			KindAI:       o.AIDelay,
			KindChained:  o.ChainDelay,
		},

		sleep: sleepCtx,
		now:   time.Now,
	}
}

// Tracker exposes the sent-id tracker for the inbound pipeline's echo
// suppression check.
func (d *Dispatcher) Tracker() *SentTracker {
	return d.tracker
}

// SendAndUpdate sends text to the peer and performs the associated
// bookkeeping: pre-send pacing, optional AI rewrite with verbatim
// fallback, sent-id tracking, CRM row and journal enqueue, and
// follow-up rescheduling. It returns the text actually sent. On any
// send failure it logs the error and returns the original canned text
// unchanged; the conversational path never sees an error from here.
func (d *Dispatcher) SendAndUpdate(ctx context.Context, peer models.PeerID, text string, opts SendOptions) string {
	var history []models.HistoryTurn
	if opts.Rewrite && d.rewriter != nil {
		h, err := d.msg.RecentHistory(ctx, peer, rewriteHistoryLimit)
		if err != nil {
			slog.Debug("Dispatcher.SendAndUpdate: history unavailable for rewrite", "peerID", peer, "error", err)
		} else {
			history = h
		}
	}

	if err := d.sleep(ctx, d.delays[opts.Kind]); err != nil {
		slog.Debug("Dispatcher.SendAndUpdate: cancelled during pre-send delay", "peerID", peer)
		return text
	}

	// The peer may have been paused by an operator while we slept. A
	// message must never go out to a paused peer, so the check happens
	// after the delay, immediately before the send.
	if d.isPaused(peer) {
		slog.Info("Dispatcher.SendAndUpdate: peer paused, suppressing send", "peerID", peer)
		return text
	}

	outText := text
	if opts.Rewrite && d.rewriter != nil {
		rewritten, err := d.rewriter.Suggest(ctx, history, text, opts.NoQuestions)
		if err != nil || rewritten == "" {
			slog.Warn("Dispatcher.SendAndUpdate: rewrite failed, sending canned text", "peerID", peer, "error", err)
		} else {
			if opts.NoQuestions {
				rewritten = intent.StripQuestionTrail(rewritten)
			}
			outText = rewritten
		}
	}

	id, err := d.msg.SendMessage(ctx, peer, outText)
	if err != nil {
		slog.Error("Dispatcher.SendAndUpdate: send failed", "peerID", peer, "step", opts.Step, "error", err)
		return text
	}
	d.tracker.Record(peer, id)

	d.enqueueUpdates(peer, outText, opts)

	if !opts.SuppressFollowup && opts.Status != flow.StatusStopped && d.followups != nil {
		if err := d.followups.ScheduleFromNow(peer); err != nil {
			slog.Error("Dispatcher.SendAndUpdate: followup reschedule failed", "peerID", peer, "error", err)
		}
	}

	return outText
}

// enqueueUpdates puts the CRM row upsert and journal append on the
// durable queue. The conversational path never blocks on spreadsheet
// latency; failures here are logged and the state remains in the local
// store for the next resync.
func (d *Dispatcher) enqueueUpdates(peer models.PeerID, sentText string, opts SendOptions) {
	now := d.now().In(d.tz)
	row := models.CRMRow{
		Name:       opts.Name,
		ChatLink:   sheets.ChatLink(opts.Username, peer),
		Username:   opts.Username,
		Status:     opts.Status,
		LastOut:    sentText,
		LastStep:   string(opts.Step),
		UpdatedAt:  now.Format(time.RFC3339),
		PeerID:     peer,
		AccountKey: d.accountKey,
	}
	if err := sheets.EnqueueRowUpsert(d.queue, row); err != nil {
		slog.Error("Dispatcher.enqueueUpdates: row upsert enqueue failed", "peerID", peer, "error", err)
	}

	event := models.HistoryEvent{
		Timestamp: now.Format(time.RFC3339),
		PeerID:    peer,
		Actor:     models.ActorBot,
		Step:      string(opts.Step),
		EventType: "message_out",
		Text:      sentText,
	}
	if err := sheets.EnqueueJournalAppend(d.queue, event); err != nil {
		slog.Error("Dispatcher.enqueueUpdates: journal enqueue failed", "peerID", peer, "error", err)
	}
}

func (d *Dispatcher) isPaused(peer models.PeerID) bool {
	rec, err := d.pauses.GetPause(peer)
	if err != nil {
		slog.Error("Dispatcher.isPaused: pause lookup failed", "peerID", peer, "error", err)
		return false
	}
	return rec != nil && rec.Status == models.PauseStatusPaused
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
