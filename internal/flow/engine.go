// Package flow implements the conversation flow engine: a pure state
// machine that maps (peer state, intent, turn context) to the next set
// of scripted actions. All I/O implied by a decision happens in the
// caller.
package flow

import (
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// RecoveryStep is the designated mid-funnel step a peer falls back to
// when stored state is missing or unreconstructable. Restarting from the
// top would replay the whole script at someone mid-conversation.
const RecoveryStep = models.StepScheduleShiftWait

// Context carries the per-turn inputs the engine needs beyond state and
// intent. The caller computes the derived fields (age bucket, parsed
// shift choice, answer completeness) before invoking Advance.
type Context struct {
	Text string
	Now  time.Time

	AgeBucket         string
	ScreeningComplete bool
	ShiftChoice       string
	TestComplete      bool

	// VoiceAvailable reports whether a voice-note asset is configured.
	VoiceAvailable bool

	GateReminderDelay time.Duration
	VoiceTimeout      time.Duration
}

// Advance returns the deterministic routing decision for one inbound
// turn. Intents never regress the funnel step; a STOP intent always
// pauses auto-reply; questions are intercepted by the QA-gate overlay
// regardless of step.
func Advance(state models.PeerRuntimeState, intent models.Intent, fctx Context) models.FlowActions {
	// Terminal age rejection blocks everything except the one-time
	// referral-program message.
	if state.RejectedByAge == models.AgeBucketUnder18 || state.RejectedByAge == models.AgeBucketOver40 {
		if !state.ReferralAfterRejectSent {
			return models.FlowActions{
				Route:    models.RouteAgeRejectReferral,
				Messages: []models.MessageKey{models.MsgReferral},
				SetState: models.StateChange{ReferralSent: boolPtr(true)},
			}
		}
		return models.FlowActions{Route: models.RouteAgeRejectedBlocked}
	}

	// A stop is never silently ignored, gate or no gate.
	if intent == models.IntentStop {
		return models.FlowActions{
			Route: models.RoutePause,
			SetState: models.StateChange{
				Paused:       boolPtr(true),
				PauseReason:  "stop_intent",
				AutoReply:    boolPtr(false),
				QAGateActive: boolPtr(false),
			},
		}
	}

	if state.QAGateActive {
		return advanceGate(state, intent, fctx)
	}

	if intent == models.IntentQuestion {
		return openGate(state, fctx)
	}

	return advanceStep(state, intent, fctx)
}

// advanceGate handles turns while the QA-gate is open: another question
// re-answers and re-arms the reminder, an acknowledgment closes the gate
// and resumes the remembered step, anything else holds.
func advanceGate(state models.PeerRuntimeState, intent models.Intent, fctx Context) models.FlowActions {
	switch intent {
	case models.IntentQuestion:
		return models.FlowActions{
			Route:          models.RouteAnswerQuestion,
			AnswerQuestion: fctx.Text,
			Messages:       []models.MessageKey{models.MsgGateConfirm},
			SetState: models.StateChange{
				QAGateReminderSent: boolPtr(false),
				QAGateOpenedAt:     timePtr(fctx.Now),
			},
			Timers: gateReminderTimer(fctx),
		}
	case models.IntentAckContinue:
		resume := state.QAGateStep
		if resume == "" {
			resume = state.FlowStep
		}
		return models.FlowActions{
			Route:      models.RouteGateResume,
			ResumeStep: resume,
			SetState: models.StateChange{
				QAGateActive:       boolPtr(false),
				QAGateReminderSent: boolPtr(false),
			},
		}
	default:
		return models.FlowActions{Route: models.RouteGateHold}
	}
}

// openGate answers the question via the FAQ capability and opens the
// QA-gate, remembering the step it interrupted.
func openGate(state models.PeerRuntimeState, fctx Context) models.FlowActions {
	step := state.FlowStep
	return models.FlowActions{
		Route:          models.RouteAnswerQuestion,
		AnswerQuestion: fctx.Text,
		Messages:       []models.MessageKey{models.MsgGateConfirm},
		SetState: models.StateChange{
			QAGateActive:       boolPtr(true),
			QAGateStep:         &step,
			QAGateReminderSent: boolPtr(false),
			QAGateOpenedAt:     timePtr(fctx.Now),
		},
		Timers: gateReminderTimer(fctx),
	}
}

func advanceStep(state models.PeerRuntimeState, intent models.Intent, fctx Context) models.FlowActions {
	switch state.FlowStep {
	case models.StepScreeningIntro, models.StepScreeningWait:
		return advanceScreening(fctx)

	case models.StepCompanyIntro:
		if intent == models.IntentAckContinue {
			return toScheduleShiftWait()
		}
		return voiceBranch(state, fctx)

	case models.StepVoiceWait:
		if intent == models.IntentAckContinue {
			return toScheduleShiftWait()
		}
		return models.FlowActions{Route: models.RouteVoiceHold}

	case models.StepScheduleBlock, models.StepScheduleShiftWait:
		if fctx.ShiftChoice != "" {
			return models.FlowActions{
				Route:             models.RouteScheduleConfirm,
				Messages:          []models.MessageKey{models.MsgScheduleConfirm},
				SetState:          models.StateChange{FlowStep: models.StepScheduleConfirm, ShiftChoice: fctx.ShiftChoice},
				AwaitConfirmation: true,
			}
		}
		return models.FlowActions{
			Route:    models.RouteShiftPrompt,
			Messages: []models.MessageKey{models.MsgShiftQuestion},
		}

	case models.StepScheduleConfirm:
		if intent == models.IntentAckContinue {
			return models.FlowActions{
				Route:    models.RouteProofForward,
				Messages: []models.MessageKey{models.MsgProofIntro, models.MsgTestIntro},
				Forwards: []models.ContentKey{models.ContentPhoto1, models.ContentPhoto2, models.ContentTestTask},
				SetState: models.StateChange{FlowStep: models.StepTestReview},
			}
		}
		return models.FlowActions{
			Route:             models.RouteScheduleConfirm,
			Messages:          []models.MessageKey{models.MsgScheduleConfirm},
			AwaitConfirmation: true,
		}

	case models.StepProofForward:
		// Transient step kept for restored records; collection happens at
		// test_review.
		return models.FlowActions{
			Route:    models.RouteTestCollect,
			SetState: models.StateChange{FlowStep: models.StepTestReview},
		}

	case models.StepTestReview:
		if !fctx.TestComplete {
			return models.FlowActions{Route: models.RouteTestCollect}
		}
		return models.FlowActions{
			Route:    models.RouteFormForward,
			Messages: []models.MessageKey{models.MsgFormIntro},
			Forwards: []models.ContentKey{models.ContentForm},
			SetState: models.StateChange{FlowStep: models.StepFormForward},
		}

	case models.StepFormForward:
		return models.FlowActions{
			Route:    models.RouteHandoff,
			Messages: []models.MessageKey{models.MsgConfirm},
			SetState: models.StateChange{FlowStep: models.StepHandoff, HandoffNote: fctx.Text},
		}

	case models.StepHandoff, models.StepAgeRejected:
		return models.FlowActions{Route: models.RouteIdle}

	default:
		// Missing or legacy step: fall back to the recovery step rather
		// than restarting from the top, and leave an audit trail.
		slog.Warn("flow recovering unknown step", "peerID", state.PeerID, "step", state.FlowStep, "recoveryStep", RecoveryStep)
		return models.FlowActions{
			Route:    models.RouteShiftPrompt,
			Messages: []models.MessageKey{models.MsgShiftQuestion},
			SetState: models.StateChange{FlowStep: RecoveryStep},
		}
	}
}

func advanceScreening(fctx Context) models.FlowActions {
	if !fctx.ScreeningComplete {
		return models.FlowActions{Route: models.RouteScreeningCollect}
	}
	switch fctx.AgeBucket {
	case models.AgeBucketUnder18, models.AgeBucketOver40:
		return models.FlowActions{
			Route:    models.RouteAgeReject,
			Messages: []models.MessageKey{models.MsgAgeReject},
			SetState: models.StateChange{
				FlowStep:      models.StepAgeRejected,
				RejectedByAge: fctx.AgeBucket,
				AutoReply:     boolPtr(false),
				Paused:        boolPtr(true),
				PauseReason:   "age_rejected",
			},
		}
	default:
		return models.FlowActions{
			Route:    models.RouteCompanyIntro,
			Messages: []models.MessageKey{models.MsgCompanyIntro},
			SetState: models.StateChange{FlowStep: models.StepCompanyIntro},
		}
	}
}

func toScheduleShiftWait() models.FlowActions {
	return models.FlowActions{
		Route:    models.RouteScheduleShiftWait,
		Messages: []models.MessageKey{models.MsgScheduleBlock, models.MsgShiftQuestion},
		SetState: models.StateChange{FlowStep: models.StepScheduleShiftWait},
	}
}

// voiceBranch delivers the voice-note asset on first entry, or a text
// fallback when no asset is configured, and holds at voice_wait with a
// timeout-driven auto-advance.
func voiceBranch(state models.PeerRuntimeState, fctx Context) models.FlowActions {
	if fctx.VoiceAvailable && state.VoiceStage == models.VoiceIdle {
		return models.FlowActions{
			Route:    models.RouteVoiceBranch,
			Forwards: []models.ContentKey{models.ContentVoice},
			SetState: models.StateChange{FlowStep: models.StepVoiceWait, VoiceStage: models.VoiceSent},
			Timers:   voiceTimeoutTimer(fctx),
		}
	}
	return models.FlowActions{
		Route:    models.RouteVoiceBranch,
		Messages: []models.MessageKey{models.MsgVoiceFallback},
		SetState: models.StateChange{FlowStep: models.StepVoiceWait, VoiceStage: models.VoiceFallbackSent},
		Timers:   voiceTimeoutTimer(fctx),
	}
}

// AdvanceVoiceTimeout is the timeout-driven auto-advance for a peer held
// at voice_wait with no reply.
func AdvanceVoiceTimeout(state models.PeerRuntimeState) (models.FlowActions, bool) {
	if state.FlowStep != models.StepVoiceWait || state.Paused {
		return models.FlowActions{}, false
	}
	actions := toScheduleShiftWait()
	actions.SetState.VoiceStage = models.VoiceAutoAdvanced
	return actions, true
}

func gateReminderTimer(fctx Context) []models.TimerRequest {
	if fctx.GateReminderDelay <= 0 {
		return nil
	}
	return []models.TimerRequest{{Kind: models.TimerQAGateReminder, After: fctx.GateReminderDelay}}
}

func voiceTimeoutTimer(fctx Context) []models.TimerRequest {
	if fctx.VoiceTimeout <= 0 {
		return nil
	}
	return []models.TimerRequest{{Kind: models.TimerVoiceTimeout, After: fctx.VoiceTimeout}}
}

func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }
