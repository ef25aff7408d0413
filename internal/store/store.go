// Package store provides storage backends for RecruitFlow.
//
// Per-peer runtime state, pause flags, follow-up schedules and the
// durable CRM event queue live in a single relational database; both
// SQLite and PostgreSQL backends are supported.
package store

import (
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// Opts holds configuration for store constructors.
type Opts struct {
	DSN string
}

// Option configures store constructors.
type Option func(*Opts)

// WithDSN sets the database DSN. For SQLite this is a file path, for
// Postgres a connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// PeerStateRepo persists per-peer runtime state.
type PeerStateRepo interface {
	// GetPeerState returns the stored state for a peer, or a fresh
	// default state when no record exists.
	GetPeerState(peerID models.PeerID) (models.PeerRuntimeState, error)

	// SavePeerState stores or updates the full state record. The funnel
	// step is guarded against regression: a save carrying a lower-ranked
	// step keeps the stored step and persists the rest of the record.
	SavePeerState(state models.PeerRuntimeState) error

	// DeletePeerState removes the record (operator reset).
	DeletePeerState(peerID models.PeerID) error

	// ListPeerIDs returns all peers with a stored state record.
	ListPeerIDs() ([]models.PeerID, error)
}

// StepRepo advances the funnel step in isolation.
type StepRepo interface {
	// SetStep moves the peer to step if and only if it ranks at or above
	// the stored step. Returns the step actually in effect afterwards.
	SetStep(peerID models.PeerID, step models.FunnelStep) (models.FunnelStep, error)
}

// PauseRecord is one per-peer auto-reply pause entry.
type PauseRecord struct {
	PeerID    models.PeerID
	Username  string
	Status    string // models.PauseStatusActive or models.PauseStatusPaused
	Reason    string
	UpdatedBy string
	UpdatedAt time.Time
}

// PauseRepo persists pause flags, addressable by peer id or username.
type PauseRepo interface {
	SetPause(rec PauseRecord) error
	GetPause(peerID models.PeerID) (*PauseRecord, error)
	GetPauseByUsername(username string) (*PauseRecord, error)
}

// FollowupRepo persists the reminder escalation schedule.
type FollowupRepo interface {
	UpsertFollowup(f models.FollowupSchedule) error
	GetFollowup(peerID models.PeerID) (*models.FollowupSchedule, error)
	DeleteFollowup(peerID models.PeerID) error

	// DueFollowups returns schedules with next_at <= now, oldest first.
	DueFollowups(now time.Time, limit int) ([]models.FollowupSchedule, error)
}

// EventQueueRepo is the durable at-least-once queue feeding the
// spreadsheet side-channel. Events survive restarts; an event leaves the
// queue only once its mutation is confirmed applied.
type EventQueueRepo interface {
	EnqueueEvent(eventType, payloadJSON string) (string, error)

	// FetchBatch returns up to limit events due at now, oldest first.
	FetchBatch(now time.Time, limit int) ([]models.QueuedEvent, error)

	MarkEventDone(id string) error

	// MarkEventRetry records a failed apply attempt and reschedules.
	MarkEventRetry(id string, errMsg string, nextAttemptAt time.Time) error

	PendingEventCount() (int, error)
}

// Store aggregates every repository interface over one database.
type Store interface {
	PeerStateRepo
	StepRepo
	PauseRepo
	FollowupRepo
	EventQueueRepo
	Close() error
}
