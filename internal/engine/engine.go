// Package engine runs the inbound message pipeline: echo suppression,
// operator commands, pause checks, intent classification, flow engine
// invocation and action execution. It owns the process-wide runtime
// caches and the per-peer ordering guarantees.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/messaging"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/sheets"
	"github.com/recruitflow/recruitflow/internal/store"
)

// Default escalation delays.
const (
	DefaultGateReminderDelay = 15 * time.Minute
	DefaultVoiceTimeout      = time.Hour
)

// classifyHistoryLimit bounds the context window for intent and FAQ calls.
const classifyHistoryLimit = 12

// Operator command words recognized in manual outgoing messages.
var (
	operatorResumeWords = []string{"+", "старт", "start", "авто"}
	operatorPauseWords  = []string{"-", "стоп", "stop"}
)

// outbound is the dispatcher slice the engine sends through.
type outbound interface {
	SendAndUpdate(ctx context.Context, peer models.PeerID, text string, opts dispatch.SendOptions) string
}

// intentClassifier resolves an inbound text to a coarse intent.
type intentClassifier interface {
	Classify(ctx context.Context, text string, lastStep models.FunnelStep, history []models.HistoryTurn) models.Intent
}

// questionAnswerer produces FAQ answers from the knowledge corpus.
type questionAnswerer interface {
	Answer(ctx context.Context, history []models.HistoryTurn, question string, step models.FunnelStep, detailed bool) string
}

// reminderClearer drops a peer's pending follow-up schedule.
type reminderClearer interface {
	Clear(peer models.PeerID) error
}

// Opts holds engine configuration.
type Opts struct {
	AccountKey        string
	Templates         map[models.MessageKey]string
	ContentLinks      messaging.ContentLinks
	LeadGroups        []models.PeerID
	Debounce          time.Duration
	GateReminderDelay time.Duration
	VoiceTimeout      time.Duration
	Timezone          *time.Location
}

// Option configures the engine.
type Option func(*Opts)

// WithAccountKey tags CRM rows created by the engine.
func WithAccountKey(key string) Option {
	return func(o *Opts) { o.AccountKey = key }
}

// WithTemplates overrides individual script templates; keys without an
// override fall back to the defaults.
func WithTemplates(overrides map[models.MessageKey]string) Option {
	return func(o *Opts) {
		for k, v := range overrides {
			if strings.TrimSpace(v) != "" {
				o.Templates[k] = v
			}
		}
	}
}

// WithContentLinks sets the stored content-asset links.
func WithContentLinks(links messaging.ContentLinks) Option {
	return func(o *Opts) { o.ContentLinks = links }
}

// WithLeadGroups sets the group peers watched for lead posts.
func WithLeadGroups(groups []models.PeerID) Option {
	return func(o *Opts) { o.LeadGroups = groups }
}

// WithDebounce sets the duplicate-suppression window.
func WithDebounce(d time.Duration) Option {
	return func(o *Opts) { o.Debounce = d }
}

// WithGateReminderDelay sets the QA-gate reminder escalation delay.
func WithGateReminderDelay(d time.Duration) Option {
	return func(o *Opts) { o.GateReminderDelay = d }
}

// WithVoiceTimeout sets the voice_wait auto-advance timeout.
func WithVoiceTimeout(d time.Duration) Option {
	return func(o *Opts) { o.VoiceTimeout = d }
}

// WithTimezone sets the timezone used for CRM timestamps.
func WithTimezone(tz *time.Location) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// Engine drives the conversation funnel from inbound events.
type Engine struct {
	msg        messaging.Service
	st         store.Store
	classifier intentClassifier
	answerer   questionAnswerer
	out        outbound
	tracker    *dispatch.SentTracker
	reminders  reminderClearer
	runtime    *RuntimeContext

	accountKey        string
	templates         map[models.MessageKey]string
	links             messaging.ContentLinks
	leadGroups        map[models.PeerID]bool
	gateReminderDelay time.Duration
	voiceTimeout      time.Duration
	tz                *time.Location

	now func() time.Time
}

// NewEngine wires the inbound pipeline over the given capabilities.
func NewEngine(msg messaging.Service, st store.Store, classifier intentClassifier, answerer questionAnswerer, out outbound, tracker *dispatch.SentTracker, reminders reminderClearer, opts ...Option) *Engine {
	o := &Opts{
		Templates:         make(map[models.MessageKey]string, len(flow.DefaultTemplates)),
		GateReminderDelay: DefaultGateReminderDelay,
		VoiceTimeout:      DefaultVoiceTimeout,
		Timezone:          time.Local,
	}
	for k, v := range flow.DefaultTemplates {
		o.Templates[k] = v
	}
	for _, opt := range opts {
		opt(o)
	}
	groups := make(map[models.PeerID]bool, len(o.LeadGroups))
	for _, g := range o.LeadGroups {
		groups[g] = true
	}
	return &Engine{
		msg:        msg,
		st:         st,
		classifier: classifier,
		answerer:   answerer,
		out:        out,
		tracker:    tracker,
		reminders:  reminders,
		runtime:    NewRuntimeContext(o.Debounce),

		accountKey:        o.AccountKey,
		templates:         o.Templates,
		links:             o.ContentLinks,
		leadGroups:        groups,
		gateReminderDelay: o.GateReminderDelay,
		voiceTimeout:      o.VoiceTimeout,
		tz:                o.Timezone,

		now: time.Now,
	}
}

// Runtime exposes the runtime caches (operator reset).
func (e *Engine) Runtime() *RuntimeContext {
	return e.runtime
}

// Run consumes inbound events until the context is cancelled or the
// message channel closes.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Engine starting inbound pipeline")
	for {
		select {
		case <-ctx.Done():
			e.runtime.Stop()
			slog.Info("Engine stopping: context cancelled")
			return
		case msg, ok := <-e.msg.Messages():
			if !ok {
				e.runtime.Stop()
				slog.Info("Engine stopping: message channel closed")
				return
			}
			e.handleMessage(ctx, msg)
		}
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg models.InboundMessage) {
	if e.runtime.Stopped() {
		return
	}
	if e.leadGroups[msg.PeerID] {
		if !msg.Outgoing {
			e.ingestLead(ctx, msg)
		}
		return
	}
	if msg.Outgoing {
		e.handleOutgoing(msg)
		return
	}

	if e.runtime.Debounced(msg) {
		slog.Debug("Engine.handleMessage: duplicate suppressed", "peerID", msg.PeerID)
		return
	}
	if !e.runtime.Begin(msg) {
		slog.Debug("Engine.handleMessage: peer busy, turn buffered", "peerID", msg.PeerID)
		return
	}
	for {
		e.processTurn(ctx, msg)
		next, ok := e.runtime.Finish(msg.PeerID)
		if !ok {
			return
		}
		msg = next
	}
}

// handleOutgoing inspects outgoing traffic on the bot's own account.
// Messages the dispatcher sent are pure echo and are dropped; anything
// else was typed manually by an operator and toggles the pause state.
func (e *Engine) handleOutgoing(msg models.InboundMessage) {
	if e.tracker.IsSent(msg.PeerID, msg.MessageID) {
		return
	}
	word := strings.ToLower(strings.TrimSpace(msg.Text))
	switch {
	case containsWord(operatorResumeWords, word):
		e.setOperatorPause(msg.PeerID, false, "")
	case containsWord(operatorPauseWords, word):
		e.setOperatorPause(msg.PeerID, true, "operator_stop")
	default:
		// An operator joined the conversation; automation steps aside
		// until explicitly resumed.
		e.setOperatorPause(msg.PeerID, true, "operator_takeover")
	}
}

func (e *Engine) setOperatorPause(peer models.PeerID, paused bool, reason string) {
	status := models.PauseStatusActive
	if paused {
		status = models.PauseStatusPaused
	}
	if err := e.st.SetPause(store.PauseRecord{
		PeerID:    peer,
		Status:    status,
		Reason:    reason,
		UpdatedBy: models.ActorOperator,
		UpdatedAt: e.now(),
	}); err != nil {
		slog.Error("Engine.setOperatorPause: pause update failed", "peerID", peer, "error", err)
		return
	}
	state, err := e.st.GetPeerState(peer)
	if err != nil {
		slog.Error("Engine.setOperatorPause: state load failed", "peerID", peer, "error", err)
		return
	}
	state.Paused = paused
	state.AutoReply = !paused
	state.PauseReason = reason
	if err := e.st.SavePeerState(state); err != nil {
		slog.Error("Engine.setOperatorPause: state save failed", "peerID", peer, "error", err)
	}
	slog.Info("Engine operator pause toggled", "peerID", peer, "paused", paused, "reason", reason)
}

// processTurn runs the full inbound pipeline for one peer turn.
func (e *Engine) processTurn(ctx context.Context, msg models.InboundMessage) {
	peer := msg.PeerID
	if e.isPaused(peer) {
		slog.Debug("Engine.processTurn: peer paused, skipping", "peerID", peer)
		return
	}

	if err := e.reminders.Clear(peer); err != nil {
		slog.Error("Engine.processTurn: followup clear failed", "peerID", peer, "error", err)
	}

	e.enqueueLastIn(peer, msg.Text)

	state, err := e.st.GetPeerState(peer)
	if err != nil {
		slog.Error("Engine.processTurn: state load failed", "peerID", peer, "error", err)
		return
	}
	if state.Paused || !state.AutoReply {
		slog.Debug("Engine.processTurn: auto-reply off", "peerID", peer, "reason", state.PauseReason)
		return
	}

	history := e.history(ctx, peer)
	intentVal := e.classifier.Classify(ctx, msg.Text, state.FlowStep, history)

	fctx := flow.Context{
		Text:              msg.Text,
		Now:               e.turnTime(msg),
		VoiceAvailable:    strings.TrimSpace(e.links[models.ContentVoice]) != "",
		GateReminderDelay: e.gateReminderDelay,
		VoiceTimeout:      e.voiceTimeout,
	}
	switch state.FlowStep {
	case models.StepScreeningIntro, models.StepScreeningWait:
		if isContentTurn(state, intentVal) {
			flow.AppendScreeningAnswers(&state, msg.Text, fctx.Now)
		}
		fctx.ScreeningComplete = flow.ScreeningComplete(state)
		fctx.AgeBucket = flow.AgeBucket(state.ScreeningAnswers)
	case models.StepScheduleBlock, models.StepScheduleShiftWait:
		fctx.ShiftChoice = flow.ParseShiftChoice(msg.Text)
	case models.StepProofForward, models.StepTestReview:
		if isContentTurn(state, intentVal) {
			flow.MergeTestAnswer(&state, msg.Text)
		}
		fctx.TestComplete = flow.TestComplete(state)
	}

	actions := flow.Advance(state, intentVal, fctx)
	flow.ApplyStateChange(&state, actions.SetState)
	if err := e.st.SavePeerState(state); err != nil {
		slog.Error("Engine.processTurn: state save failed", "peerID", peer, "error", err)
	}
	slog.Debug("Engine.processTurn: routed", "peerID", peer, "intent", intentVal, "route", actions.Route, "step", state.FlowStep)

	e.execute(ctx, &state, history, actions)
}

// isContentTurn reports whether a turn's text counts as funnel content.
// Gate traffic and control intents (questions, stops, acknowledgments)
// are conversation mechanics and must never fill screening or
// test-answer slots.
func isContentTurn(state models.PeerRuntimeState, intentVal models.Intent) bool {
	if state.QAGateActive {
		return false
	}
	switch intentVal {
	case models.IntentQuestion, models.IntentStop, models.IntentAckContinue:
		return false
	}
	return true
}

func (e *Engine) isPaused(peer models.PeerID) bool {
	rec, err := e.st.GetPause(peer)
	if err != nil {
		slog.Error("Engine.isPaused: pause lookup failed", "peerID", peer, "error", err)
		return false
	}
	return rec != nil && rec.Status == models.PauseStatusPaused
}

func (e *Engine) history(ctx context.Context, peer models.PeerID) []models.HistoryTurn {
	history, err := e.msg.RecentHistory(ctx, peer, classifyHistoryLimit)
	if err != nil {
		slog.Debug("Engine.history: unavailable", "peerID", peer, "error", err)
		return nil
	}
	return history
}

// enqueueLastIn mirrors the inbound text onto the CRM row.
func (e *Engine) enqueueLastIn(peer models.PeerID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	row := models.CRMRow{
		ChatLink:   sheets.ChatLink("", peer),
		LastIn:     text,
		UpdatedAt:  e.now().In(e.tz).Format(time.RFC3339),
		PeerID:     peer,
		AccountKey: e.accountKey,
	}
	if err := sheets.EnqueueRowUpsert(e.st, row); err != nil {
		slog.Error("Engine.enqueueLastIn: enqueue failed", "peerID", peer, "error", err)
	}
}

func (e *Engine) turnTime(msg models.InboundMessage) time.Time {
	if !msg.Time.IsZero() {
		return msg.Time
	}
	return e.now()
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if w == candidate {
			return true
		}
	}
	return false
}
