// Package store provides storage backends for RecruitFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/util"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements the full Store surface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// GetPeerState retrieves the runtime state for a peer, returning a fresh
// default state when no record exists.
func (s *SQLiteStore) GetPeerState(peerID models.PeerID) (models.PeerRuntimeState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM peer_states WHERE peer_id = ?`, peerID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return models.NewPeerRuntimeState(peerID), nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPeerState failed", "error", err, "peerID", peerID)
		return models.PeerRuntimeState{}, fmt.Errorf("get peer state for %d: %w", peerID, err)
	}

	var state models.PeerRuntimeState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("SQLiteStore GetPeerState unmarshal failed", "error", err, "peerID", peerID)
		return models.PeerRuntimeState{}, fmt.Errorf("decode peer state for %d: %w", peerID, err)
	}
	state.PeerID = peerID
	return state, nil
}

// SavePeerState stores or updates the full state record. The funnel step
// never regresses: when the incoming step ranks below the stored one,
// the stored step is kept and the rest of the record is persisted.
func (s *SQLiteStore) SavePeerState(state models.PeerRuntimeState) error {
	var storedStep string
	err := s.db.QueryRow(`SELECT flow_step FROM peer_states WHERE peer_id = ?`, state.PeerID).Scan(&storedStep)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read stored step for %d: %w", state.PeerID, err)
	}
	if err == nil {
		stored := models.FunnelStep(storedStep)
		if stored.Known() && state.FlowStep.Known() && state.FlowStep.Rank() < stored.Rank() {
			slog.Warn("SQLiteStore SavePeerState step regression blocked",
				"peerID", state.PeerID, "stored", stored, "incoming", state.FlowStep)
			state.FlowStep = stored
		}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode peer state for %d: %w", state.PeerID, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO peer_states (peer_id, flow_step, state_json, updated_at) VALUES (?, ?, ?, ?)`,
		state.PeerID, string(state.FlowStep), string(stateJSON), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SavePeerState failed", "error", err, "peerID", state.PeerID)
		return fmt.Errorf("save peer state for %d: %w", state.PeerID, err)
	}
	slog.Debug("SQLiteStore SavePeerState succeeded", "peerID", state.PeerID, "step", state.FlowStep)
	return nil
}

// DeletePeerState removes the record for a peer.
func (s *SQLiteStore) DeletePeerState(peerID models.PeerID) error {
	_, err := s.db.Exec(`DELETE FROM peer_states WHERE peer_id = ?`, peerID)
	if err != nil {
		slog.Error("SQLiteStore DeletePeerState failed", "error", err, "peerID", peerID)
		return fmt.Errorf("delete peer state for %d: %w", peerID, err)
	}
	return nil
}

// ListPeerIDs returns all peers with a stored state record.
func (s *SQLiteStore) ListPeerIDs() ([]models.PeerID, error) {
	rows, err := s.db.Query(`SELECT peer_id FROM peer_states ORDER BY peer_id`)
	if err != nil {
		return nil, fmt.Errorf("list peer ids: %w", err)
	}
	defer rows.Close()

	var ids []models.PeerID
	for rows.Next() {
		var id models.PeerID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan peer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer ids: %w", err)
	}
	return ids, nil
}

// SetStep moves the peer to step if and only if it ranks at or above the
// stored step. Returns the step in effect afterwards.
func (s *SQLiteStore) SetStep(peerID models.PeerID, step models.FunnelStep) (models.FunnelStep, error) {
	state, err := s.GetPeerState(peerID)
	if err != nil {
		return "", err
	}
	if state.FlowStep.Known() && step.Known() && step.Rank() < state.FlowStep.Rank() {
		slog.Warn("SQLiteStore SetStep regression blocked", "peerID", peerID, "stored", state.FlowStep, "incoming", step)
		return state.FlowStep, nil
	}
	state.FlowStep = step
	if err := s.SavePeerState(state); err != nil {
		return "", err
	}
	return step, nil
}

// SetPause stores or updates the pause flag for a peer.
func (s *SQLiteStore) SetPause(rec PauseRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pauses (peer_id, username, status, reason, updated_by, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PeerID, nilIfEmpty(rec.Username), rec.Status, nilIfEmpty(rec.Reason), nilIfEmpty(rec.UpdatedBy), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore SetPause failed", "error", err, "peerID", rec.PeerID)
		return fmt.Errorf("set pause for %d: %w", rec.PeerID, err)
	}
	slog.Debug("SQLiteStore SetPause succeeded", "peerID", rec.PeerID, "status", rec.Status, "updatedBy", rec.UpdatedBy)
	return nil
}

// GetPause returns the pause record for a peer, nil when absent.
func (s *SQLiteStore) GetPause(peerID models.PeerID) (*PauseRecord, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, username, status, reason, updated_by, updated_at FROM pauses WHERE peer_id = ?`, peerID)
	return scanPauseRow(row)
}

// GetPauseByUsername returns the pause record for a username, nil when absent.
func (s *SQLiteStore) GetPauseByUsername(username string) (*PauseRecord, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, username, status, reason, updated_by, updated_at FROM pauses WHERE username = ?`, username)
	return scanPauseRow(row)
}

// UpsertFollowup stores or updates the reminder schedule for a peer.
func (s *SQLiteStore) UpsertFollowup(f models.FollowupSchedule) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO followups (peer_id, stage, next_at, last_sent_at) VALUES (?, ?, ?, ?)`,
		f.PeerID, f.Stage, f.NextAt, f.LastSentAt,
	)
	if err != nil {
		slog.Error("SQLiteStore UpsertFollowup failed", "error", err, "peerID", f.PeerID)
		return fmt.Errorf("upsert followup for %d: %w", f.PeerID, err)
	}
	return nil
}

// GetFollowup returns the schedule for a peer, nil when absent.
func (s *SQLiteStore) GetFollowup(peerID models.PeerID) (*models.FollowupSchedule, error) {
	var f models.FollowupSchedule
	var lastSentAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT peer_id, stage, next_at, last_sent_at FROM followups WHERE peer_id = ?`, peerID,
	).Scan(&f.PeerID, &f.Stage, &f.NextAt, &lastSentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get followup for %d: %w", peerID, err)
	}
	if lastSentAt.Valid {
		f.LastSentAt = &lastSentAt.Time
	}
	return &f, nil
}

// DeleteFollowup clears the schedule for a peer.
func (s *SQLiteStore) DeleteFollowup(peerID models.PeerID) error {
	_, err := s.db.Exec(`DELETE FROM followups WHERE peer_id = ?`, peerID)
	if err != nil {
		return fmt.Errorf("delete followup for %d: %w", peerID, err)
	}
	return nil
}

// DueFollowups returns schedules with next_at <= now, oldest first.
func (s *SQLiteStore) DueFollowups(now time.Time, limit int) ([]models.FollowupSchedule, error) {
	rows, err := s.db.Query(
		`SELECT peer_id, stage, next_at, last_sent_at FROM followups WHERE next_at <= ? ORDER BY next_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due followups: %w", err)
	}
	defer rows.Close()

	var due []models.FollowupSchedule
	for rows.Next() {
		var f models.FollowupSchedule
		var lastSentAt sql.NullTime
		if err := rows.Scan(&f.PeerID, &f.Stage, &f.NextAt, &lastSentAt); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		if lastSentAt.Valid {
			f.LastSentAt = &lastSentAt.Time
		}
		due = append(due, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due followups: %w", err)
	}
	return due, nil
}

// EnqueueEvent inserts a new persistence event, due immediately.
func (s *SQLiteStore) EnqueueEvent(eventType, payloadJSON string) (string, error) {
	id := util.GenerateEventID()
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO event_queue (id, event_type, payload_json, attempts, next_attempt_at, created_at) VALUES (?, ?, ?, 0, ?, ?)`,
		id, eventType, payloadJSON, now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore EnqueueEvent failed", "error", err, "eventType", eventType)
		return "", fmt.Errorf("enqueue event: %w", err)
	}
	slog.Debug("SQLiteStore EnqueueEvent succeeded", "id", id, "eventType", eventType)
	return id, nil
}

// FetchBatch returns up to limit events due at now, oldest first.
func (s *SQLiteStore) FetchBatch(now time.Time, limit int) ([]models.QueuedEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, event_type, payload_json, attempts, next_attempt_at, last_error, created_at
		 FROM event_queue WHERE next_attempt_at IS NULL OR next_attempt_at <= ?
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch event batch: %w", err)
	}
	defer rows.Close()

	var events []models.QueuedEvent
	for rows.Next() {
		e, err := scanQueuedEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event batch: %w", err)
	}
	return events, nil
}

// MarkEventDone removes an applied event from the queue.
func (s *SQLiteStore) MarkEventDone(id string) error {
	_, err := s.db.Exec(`DELETE FROM event_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

// MarkEventRetry records a failed apply attempt and reschedules.
func (s *SQLiteStore) MarkEventRetry(id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE event_queue SET attempts = attempts + 1, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark event retry: %w", err)
	}
	return nil
}

// PendingEventCount reports the queue depth.
func (s *SQLiteStore) PendingEventCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM event_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}
