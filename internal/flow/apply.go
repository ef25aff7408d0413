package flow

import (
	"log/slog"

	"github.com/recruitflow/recruitflow/internal/models"
)

// ApplyStateChange folds a flow decision's state mutations into the peer
// record. Step changes respect funnel order here as well; the step store
// enforces the same invariant at the write boundary, this keeps the
// in-memory copy consistent with what will actually be persisted.
func ApplyStateChange(state *models.PeerRuntimeState, change models.StateChange) {
	if change.FlowStep != "" {
		if state.FlowStep.Known() && change.FlowStep.Rank() < state.FlowStep.Rank() {
			slog.Warn("flow ignoring step regression", "peerID", state.PeerID, "current", state.FlowStep, "candidate", change.FlowStep)
		} else {
			state.FlowStep = change.FlowStep
		}
	}
	if change.RejectedByAge != "" {
		state.RejectedByAge = change.RejectedByAge
	}
	if change.AutoReply != nil {
		state.AutoReply = *change.AutoReply
	}
	if change.Paused != nil {
		state.Paused = *change.Paused
	}
	if change.PauseReason != "" {
		state.PauseReason = change.PauseReason
	}
	if change.QAGateActive != nil {
		state.QAGateActive = *change.QAGateActive
	}
	if change.QAGateStep != nil {
		state.QAGateStep = *change.QAGateStep
	}
	if change.QAGateReminderSent != nil {
		state.QAGateReminderSent = *change.QAGateReminderSent
	}
	if change.QAGateOpenedAt != nil {
		state.QAGateOpenedAt = *change.QAGateOpenedAt
	}
	if change.VoiceStage != "" {
		state.VoiceStage = change.VoiceStage
	}
	if change.ShiftChoice != "" {
		state.ShiftChoice = change.ShiftChoice
	}
	if change.ReferralSent != nil {
		state.ReferralAfterRejectSent = *change.ReferralSent
	}
	if change.HandoffNote != "" {
		state.HandoffNote = change.HandoffNote
	}
}
