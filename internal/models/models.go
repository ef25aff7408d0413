// Package models defines the core data types shared across RecruitFlow components.
package models

import "time"

// PeerID identifies a remote conversational peer. It is the primary key
// for all per-peer state.
type PeerID int64

// Entity holds transport-level metadata about a peer, resolved by the
// messaging capability.
type Entity struct {
	PeerID    PeerID
	Username  string
	FirstName string
	Phone     string
	IsBot     bool
}

// InboundMessage is one incoming message event from the messaging capability.
type InboundMessage struct {
	PeerID    PeerID
	MessageID string
	Text      string
	Outgoing  bool
	HasMedia  bool
	Time      time.Time
}

// HistoryTurn is a single turn of bounded recent conversation history,
// passed to the AI capability for context.
type HistoryTurn struct {
	Role string `json:"role"` // "bot" or "lead"
	Text string `json:"text"`
}

// CRMRow is the spreadsheet-backed operator-visible summary of a peer,
// keyed by (PeerID, AccountKey).
type CRMRow struct {
	Date       string `json:"date"`
	Name       string `json:"name"`
	ChatLink   string `json:"chat_link_app"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	AutoReply  string `json:"auto_reply"`
	LastIn     string `json:"last_in"`
	LastOut    string `json:"last_out"`
	LastStep   string `json:"last_step"`
	UpdatedAt  string `json:"updated_at"`
	PeerID     PeerID `json:"peer_id"`
	AccountKey string `json:"account_key"`
}

// HistoryEvent is one append-only journal line in the monthly-partitioned
// history worksheet.
type HistoryEvent struct {
	Timestamp  string `json:"timestamp"`
	PeerID     PeerID `json:"peer_id"`
	Actor      string `json:"actor"` // "bot", "lead" or "operator"
	DialogMode string `json:"dialog_mode"`
	Step       string `json:"step"`
	EventType  string `json:"event_type"`
	Text       string `json:"text"`
	EventLog   string `json:"event_log"`
}

// Actor role constants for HistoryEvent.
const (
	ActorBot      = "bot"
	ActorLead     = "lead"
	ActorOperator = "operator"
)

// QueuedEvent is a durable, at-least-once persistence work item. An event
// is removed from the queue only after the mutation is confirmed applied.
type QueuedEvent struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	EventType     string    `json:"event_type"`
	PayloadJSON   string    `json:"payload"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error"`
}

// Queued event types understood by the spreadsheet applier.
const (
	EventTypeRowUpsert     = "row_upsert"
	EventTypeJournalAppend = "journal_append"
	EventTypeLeadIngest    = "lead_ingest"
)

// FollowupSchedule is the per-peer reminder escalation record. Cleared
// whenever the peer sends any new inbound message.
type FollowupSchedule struct {
	PeerID     PeerID     `json:"peer_id"`
	Stage      int        `json:"stage"`
	NextAt     time.Time  `json:"next_at"`
	LastSentAt *time.Time `json:"last_sent_at"`
}

// PauseStatus values stored in the pause store.
const (
	PauseStatusActive = "ACTIVE"
	PauseStatusPaused = "PAUSED"
)
