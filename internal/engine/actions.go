package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/faq"
	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/sheets"
)

// execute performs the I/O implied by a flow decision: FAQ answer,
// scripted messages, content forwards and timer scheduling.
func (e *Engine) execute(ctx context.Context, state *models.PeerRuntimeState, history []models.HistoryTurn, actions models.FlowActions) {
	peer := state.PeerID
	status := flow.StatusForRoute(actions.Route)
	sentAny := false

	if actions.Route == models.RouteAnswerQuestion && actions.AnswerQuestion != "" {
		// Early-funnel questions get the longer answer form; mid-funnel
		// ones stay short so the script keeps momentum.
		detailed := state.FlowStep.Rank() <= models.StepCompanyIntro.Rank()
		answer := e.answerer.Answer(ctx, history, actions.AnswerQuestion, state.FlowStep, detailed)
		if answer != "" {
			e.out.SendAndUpdate(ctx, peer, answer, dispatch.SendOptions{
				Kind:   dispatch.KindAI,
				Status: status,
				Step:   state.FlowStep,
			})
			sentAny = true
			e.logQuestion(state, actions.AnswerQuestion, answer)
		} else {
			slog.Warn("Engine.execute: no FAQ answer produced", "peerID", peer, "step", state.FlowStep)
		}
	}

	keys := actions.Messages
	if actions.Route == models.RouteGateResume {
		keys = append(keys, stepPrompt(actions.ResumeStep)...)
	}
	for _, key := range keys {
		text := e.templates[key]
		if strings.TrimSpace(text) == "" {
			slog.Error("Engine.execute: missing template", "key", key)
			continue
		}
		kind := dispatch.KindScripted
		if sentAny {
			kind = dispatch.KindChained
		}
		e.out.SendAndUpdate(ctx, peer, text, dispatch.SendOptions{
			Kind:   kind,
			Status: status,
			Step:   state.FlowStep,
		})
		sentAny = true
	}

	for _, key := range actions.Forwards {
		link := e.links[key]
		if strings.TrimSpace(link) == "" {
			slog.Error("Engine.execute: no link configured for content asset", "asset", key)
			continue
		}
		if err := e.msg.ForwardContent(ctx, peer, link); err != nil {
			slog.Error("Engine.execute: content forward failed", "peerID", peer, "asset", key, "error", err)
			continue
		}
		e.logForward(state, key)
	}

	for _, tr := range actions.Timers {
		e.scheduleTimer(ctx, peer, tr)
	}
}

// stepPrompt maps a resumed step to the scripted prompt that re-anchors
// the peer after a QA-gate close.
func stepPrompt(step models.FunnelStep) []models.MessageKey {
	switch step {
	case models.StepScreeningIntro, models.StepScreeningWait:
		return []models.MessageKey{models.MsgScreeningIntro}
	case models.StepCompanyIntro:
		return []models.MessageKey{models.MsgCompanyIntro}
	case models.StepVoiceWait:
		return []models.MessageKey{models.MsgVoiceFallback}
	case models.StepScheduleBlock, models.StepScheduleShiftWait:
		return []models.MessageKey{models.MsgShiftQuestion}
	case models.StepScheduleConfirm:
		return []models.MessageKey{models.MsgScheduleConfirm}
	case models.StepProofForward, models.StepTestReview:
		return []models.MessageKey{models.MsgTestIntro}
	case models.StepFormForward:
		return []models.MessageKey{models.MsgFormIntro}
	default:
		return nil
	}
}

// logQuestion records an answered question on the history journal, used
// later to grow the FAQ corpus.
func (e *Engine) logQuestion(state *models.PeerRuntimeState, question, answer string) {
	q := faq.NewQuestionLog(e.now(), state.PeerID, state.FlowStep, question, answer)
	if err := sheets.EnqueueJournalAppend(e.st, q.HistoryEvent()); err != nil {
		slog.Error("Engine.logQuestion: enqueue failed", "peerID", state.PeerID, "error", err)
	}
}

func (e *Engine) logForward(state *models.PeerRuntimeState, key models.ContentKey) {
	event := models.HistoryEvent{
		Timestamp: e.now().In(e.tz).Format(time.RFC3339),
		PeerID:    state.PeerID,
		Actor:     models.ActorBot,
		Step:      string(state.FlowStep),
		EventType: "content_forward",
		Text:      string(key),
	}
	if err := sheets.EnqueueJournalAppend(e.st, event); err != nil {
		slog.Error("Engine.logForward: enqueue failed", "peerID", state.PeerID, "error", err)
	}
}

// scheduleTimer arms a delayed engine action. The timer is dropped on
// shutdown; escalations are best-effort, not durable.
func (e *Engine) scheduleTimer(ctx context.Context, peer models.PeerID, tr models.TimerRequest) {
	go func() {
		timer := time.NewTimer(tr.After)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.fireTimer(ctx, peer, tr.Kind)
	}()
}

// fireTimer runs a due timer under the same per-peer exclusion as
// inbound turns. A timer firing while a turn is in flight is skipped:
// peer activity makes the escalation moot.
func (e *Engine) fireTimer(ctx context.Context, peer models.PeerID, kind models.TimerKind) {
	if e.runtime.Stopped() {
		return
	}
	if !e.runtime.TryClaim(peer) {
		slog.Debug("Engine.fireTimer: peer busy, skipping", "peerID", peer, "kind", kind)
		return
	}
	switch kind {
	case models.TimerVoiceTimeout:
		e.fireVoiceTimeout(ctx, peer)
	case models.TimerQAGateReminder:
		e.fireGateReminder(ctx, peer)
	default:
		slog.Warn("Engine.fireTimer: unknown timer kind", "kind", kind)
	}
	for {
		next, ok := e.runtime.Finish(peer)
		if !ok {
			return
		}
		e.processTurn(ctx, next)
	}
}

// fireVoiceTimeout auto-advances a peer still holding at voice_wait.
func (e *Engine) fireVoiceTimeout(ctx context.Context, peer models.PeerID) {
	state, err := e.st.GetPeerState(peer)
	if err != nil {
		slog.Error("Engine.fireVoiceTimeout: state load failed", "peerID", peer, "error", err)
		return
	}
	actions, ok := flow.AdvanceVoiceTimeout(state)
	if !ok {
		return
	}
	flow.ApplyStateChange(&state, actions.SetState)
	if err := e.st.SavePeerState(state); err != nil {
		slog.Error("Engine.fireVoiceTimeout: state save failed", "peerID", peer, "error", err)
	}
	slog.Info("Engine voice timeout auto-advance", "peerID", peer)
	e.execute(ctx, &state, nil, actions)
}

// fireGateReminder sends the one-shot QA-gate nudge when the gate has
// been open past the configured delay with no reply.
func (e *Engine) fireGateReminder(ctx context.Context, peer models.PeerID) {
	state, err := e.st.GetPeerState(peer)
	if err != nil {
		slog.Error("Engine.fireGateReminder: state load failed", "peerID", peer, "error", err)
		return
	}
	if !state.QAGateActive || state.QAGateReminderSent || state.Paused || !state.AutoReply {
		return
	}
	e.out.SendAndUpdate(ctx, peer, e.templates[models.MsgGateReminder], dispatch.SendOptions{
		Kind: dispatch.KindScripted,
		Step: state.FlowStep,
	})
	state.QAGateReminderSent = true
	if err := e.st.SavePeerState(state); err != nil {
		slog.Error("Engine.fireGateReminder: state save failed", "peerID", peer, "error", err)
	}
	slog.Info("Engine gate reminder sent", "peerID", peer)
}
