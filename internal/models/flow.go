// Package models defines the flow engine action types.
package models

import "time"

// Route tags the routing decision produced by the flow engine for one
// inbound turn.
type Route string

const (
	RouteIdle               Route = "idle"
	RouteScreeningCollect   Route = "screening_collect"
	RouteAgeReject          Route = "age_reject"
	RouteAgeRejectReferral  Route = "age_reject_referral"
	RouteAgeRejectedBlocked Route = "age_rejected_blocked"
	RouteCompanyIntro       Route = "company_intro"
	RouteVoiceBranch        Route = "voice_branch"
	RouteVoiceHold          Route = "voice_hold"
	RouteScheduleShiftWait  Route = "schedule_shift_wait"
	RouteShiftPrompt        Route = "shift_prompt"
	RouteScheduleConfirm    Route = "schedule_confirm"
	RouteProofForward       Route = "proof_forward"
	RouteTestCollect        Route = "test_collect"
	RouteFormForward        Route = "form_forward"
	RouteHandoff            Route = "handoff"
	RouteAnswerQuestion     Route = "answer_question"
	RouteGateResume         Route = "gate_resume"
	RouteGateHold           Route = "gate_hold"
	RoutePause              Route = "pause"
)

// MessageKey names a canned script template. The dispatcher resolves
// keys to text through the template table.
type MessageKey string

const (
	MsgContact         MessageKey = "contact"
	MsgScreeningIntro  MessageKey = "screening_intro"
	MsgCompanyIntro    MessageKey = "company_intro"
	MsgVoiceFallback   MessageKey = "voice_fallback"
	MsgScheduleBlock   MessageKey = "schedule_block"
	MsgShiftQuestion   MessageKey = "shift_question"
	MsgScheduleConfirm MessageKey = "schedule_confirm"
	MsgProofIntro      MessageKey = "proof_intro"
	MsgTestIntro       MessageKey = "test_intro"
	MsgFormIntro       MessageKey = "form_intro"
	MsgConfirm         MessageKey = "confirm"
	MsgReferral        MessageKey = "referral"
	MsgGateConfirm     MessageKey = "gate_confirm"
	MsgGateReminder    MessageKey = "gate_reminder"
	MsgAgeReject       MessageKey = "age_reject"
)

// ContentKey names a forwardable content asset (voice note, proof photos,
// test task, application form) configured as message links.
type ContentKey string

const (
	ContentVoice    ContentKey = "voice"
	ContentPhoto1   ContentKey = "photo_1"
	ContentPhoto2   ContentKey = "photo_2"
	ContentTestTask ContentKey = "test_task"
	ContentForm     ContentKey = "form"
)

// TimerKind names a delayed engine action requested by a flow decision.
type TimerKind string

const (
	TimerVoiceTimeout   TimerKind = "voice_timeout"
	TimerQAGateReminder TimerKind = "qa_gate_reminder"
)

// TimerRequest asks the runtime to schedule a delayed engine action.
type TimerRequest struct {
	Kind  TimerKind
	After time.Duration
}

// StateChange carries the state mutations a flow decision wants applied.
// Pointer fields distinguish "set to value" from "leave unchanged".
type StateChange struct {
	FlowStep           FunnelStep // "" means no step change
	RejectedByAge      string
	AutoReply          *bool
	Paused             *bool
	PauseReason        string
	QAGateActive       *bool
	QAGateStep         *FunnelStep
	QAGateReminderSent *bool
	QAGateOpenedAt     *time.Time
	VoiceStage         string
	ShiftChoice        string
	ReferralSent       *bool
	HandoffNote        string
}

// FlowActions is the deterministic result of one flow engine invocation.
// All I/O implied by an action set happens in the caller.
type FlowActions struct {
	Route             Route
	Messages          []MessageKey
	Forwards          []ContentKey
	SetState          StateChange
	Timers            []TimerRequest
	AwaitConfirmation bool
	// AnswerQuestion carries the question text to answer through the FAQ
	// capability when Route is RouteAnswerQuestion.
	AnswerQuestion string
	// ResumeStep names the step whose prompt should be re-sent after a
	// QA-gate close.
	ResumeStep FunnelStep
}
