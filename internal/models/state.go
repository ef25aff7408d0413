// Package models defines funnel steps, intents and per-peer runtime state.
package models

import "time"

// FunnelStep is a named stage in the fixed recruiting conversation script.
// Steps are totally ordered; stored state must never regress to a
// lower-ranked step except via explicit operator reset.
type FunnelStep string

// Legacy flow steps. The legacy flow is deprecated and no longer driven
// by the engine, but persisted records may still carry these steps, so
// they keep defined ranks below every current step.
const (
	StepContact          FunnelStep = "contact"
	StepInterest         FunnelStep = "interest"
	StepDating           FunnelStep = "dating"
	StepDuties           FunnelStep = "duties"
	StepClarify          FunnelStep = "clarify"
	StepShifts           FunnelStep = "shifts"
	StepShiftQuestion    FunnelStep = "shift_question"
	StepFormat           FunnelStep = "format"
	StepFormatQuestion   FunnelStep = "format_question"
	StepVideoFollowup    FunnelStep = "video_followup"
	StepTraining         FunnelStep = "training"
	StepTrainingQuestion FunnelStep = "training_question"
	StepForm             FunnelStep = "form"
)

// Current (v2) flow steps.
const (
	StepScreeningIntro    FunnelStep = "screening_intro"
	StepScreeningWait     FunnelStep = "screening_wait"
	StepCompanyIntro      FunnelStep = "company_intro"
	StepVoiceWait         FunnelStep = "voice_wait"
	StepScheduleBlock     FunnelStep = "schedule_block"
	StepScheduleShiftWait FunnelStep = "schedule_shift_wait"
	StepScheduleConfirm   FunnelStep = "schedule_confirm"
	StepProofForward      FunnelStep = "proof_forward"
	StepTestReview        FunnelStep = "test_review"
	StepFormForward       FunnelStep = "form_forward"
	StepHandoff           FunnelStep = "handoff"
	// StepAgeRejected is a terminal branch. It ranks above every other
	// step so the monotonicity guard also protects the rejection outcome.
	StepAgeRejected FunnelStep = "age_rejected"
)

var stepOrder = map[FunnelStep]int{
	StepContact:          0,
	StepInterest:         1,
	StepDating:           2,
	StepDuties:           3,
	StepClarify:          4,
	StepShifts:           5,
	StepShiftQuestion:    6,
	StepFormat:           7,
	StepFormatQuestion:   8,
	StepVideoFollowup:    9,
	StepTraining:         10,
	StepTrainingQuestion: 11,
	StepForm:             12,

	StepScreeningIntro:    20,
	StepScreeningWait:     21,
	StepCompanyIntro:      22,
	StepVoiceWait:         23,
	StepScheduleBlock:     24,
	StepScheduleShiftWait: 25,
	StepScheduleConfirm:   26,
	StepProofForward:      27,
	StepTestReview:        28,
	StepFormForward:       29,
	StepHandoff:           30,
	StepAgeRejected:       31,
}

// Rank returns the position of the step in the funnel order, or -1 for
// an unknown step.
func (s FunnelStep) Rank() int {
	if r, ok := stepOrder[s]; ok {
		return r
	}
	return -1
}

// Known reports whether the step is part of either flow generation.
func (s FunnelStep) Known() bool {
	_, ok := stepOrder[s]
	return ok
}

// FlowVersionV2 tags peer state driven by the current flow engine.
const FlowVersionV2 = "v2"

// Intent is the coarse classification of an inbound reply.
type Intent string

const (
	IntentQuestion    Intent = "question"
	IntentAckContinue Intent = "ack_continue"
	IntentStop        Intent = "stop"
	IntentOther       Intent = "other"
)

// Voice-note delivery stages for the company-intro voice branch.
const (
	VoiceIdle         = "idle"
	VoiceSent         = "sent"
	VoiceFallbackSent = "fallback_sent"
	VoiceAutoAdvanced = "auto_advanced"
)

// Age buckets computed from screening answers.
const (
	AgeBucketNone    = "none"
	AgeBucketUnknown = "unknown"
	AgeBucketOK      = "ok"
	AgeBucketUnder18 = "under18"
	AgeBucketOver40  = "over40"
)

// PeerRuntimeState is the durable per-peer record mutated by the flow
// engine after every turn. It is created on first qualifying contact and
// never deleted except by explicit operator reset.
type PeerRuntimeState struct {
	PeerID      PeerID     `json:"peer_id"`
	FlowStep    FunnelStep `json:"flow_step"`
	FlowVersion string     `json:"flow_version"`

	AutoReply   bool   `json:"auto_reply"`
	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason,omitempty"`

	QAGateActive       bool       `json:"qa_gate_active"`
	QAGateStep         FunnelStep `json:"qa_gate_step,omitempty"`
	QAGateReminderSent bool       `json:"qa_gate_reminder_sent"`
	QAGateOpenedAt     time.Time  `json:"qa_gate_opened_at,omitzero"`

	VoiceStage  string    `json:"voice_stage"`
	VoiceSentAt time.Time `json:"voice_sent_at,omitzero"`

	RejectedByAge           string `json:"rejected_by_age"`
	ReferralAfterRejectSent bool   `json:"referral_after_reject_sent"`

	ScreeningAnswers    []string  `json:"screening_answers,omitempty"`
	ScreeningStartedAt  time.Time `json:"screening_started_at,omitzero"`
	ScreeningLastAt     time.Time `json:"screening_last_at,omitzero"`
	ShiftPromptedAt     time.Time `json:"shift_prompted_at,omitzero"`
	ShiftChoice         string    `json:"shift_choice,omitempty"`
	TestAnswers         []string  `json:"test_answers,omitempty"`
	HandoffNote         string    `json:"handoff_note,omitempty"`
	RecoveredAt         time.Time `json:"recovered_at,omitzero"`
}

// NewPeerRuntimeState returns the default state for a peer that has no
// stored record yet.
func NewPeerRuntimeState(peerID PeerID) PeerRuntimeState {
	return PeerRuntimeState{
		PeerID:        peerID,
		FlowStep:      StepScreeningWait,
		FlowVersion:   FlowVersionV2,
		AutoReply:     true,
		VoiceStage:    VoiceIdle,
		RejectedByAge: AgeBucketNone,
	}
}
