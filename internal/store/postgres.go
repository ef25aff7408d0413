// Package store provides storage backends for RecruitFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/util"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

func (s *PostgresStore) GetPeerState(peerID models.PeerID) (models.PeerRuntimeState, error) {
	var stateJSON string
	err := s.db.QueryRow(`SELECT state_json FROM peer_states WHERE peer_id = $1`, peerID).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return models.NewPeerRuntimeState(peerID), nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPeerState failed", "error", err, "peerID", peerID)
		return models.PeerRuntimeState{}, fmt.Errorf("get peer state for %d: %w", peerID, err)
	}

	var state models.PeerRuntimeState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		slog.Error("PostgresStore GetPeerState unmarshal failed", "error", err, "peerID", peerID)
		return models.PeerRuntimeState{}, fmt.Errorf("decode peer state for %d: %w", peerID, err)
	}
	state.PeerID = peerID
	return state, nil
}

func (s *PostgresStore) SavePeerState(state models.PeerRuntimeState) error {
	var storedStep string
	err := s.db.QueryRow(`SELECT flow_step FROM peer_states WHERE peer_id = $1`, state.PeerID).Scan(&storedStep)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read stored step for %d: %w", state.PeerID, err)
	}
	if err == nil {
		stored := models.FunnelStep(storedStep)
		if stored.Known() && state.FlowStep.Known() && state.FlowStep.Rank() < stored.Rank() {
			slog.Warn("PostgresStore SavePeerState step regression blocked",
				"peerID", state.PeerID, "stored", stored, "incoming", state.FlowStep)
			state.FlowStep = stored
		}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode peer state for %d: %w", state.PeerID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO peer_states (peer_id, flow_step, state_json, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (peer_id) DO UPDATE SET flow_step = $2, state_json = $3, updated_at = $4`,
		state.PeerID, string(state.FlowStep), string(stateJSON), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SavePeerState failed", "error", err, "peerID", state.PeerID)
		return fmt.Errorf("save peer state for %d: %w", state.PeerID, err)
	}
	slog.Debug("PostgresStore SavePeerState succeeded", "peerID", state.PeerID, "step", state.FlowStep)
	return nil
}

func (s *PostgresStore) DeletePeerState(peerID models.PeerID) error {
	_, err := s.db.Exec(`DELETE FROM peer_states WHERE peer_id = $1`, peerID)
	if err != nil {
		slog.Error("PostgresStore DeletePeerState failed", "error", err, "peerID", peerID)
		return fmt.Errorf("delete peer state for %d: %w", peerID, err)
	}
	return nil
}

func (s *PostgresStore) ListPeerIDs() ([]models.PeerID, error) {
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

func (s *PostgresStore) SetStep(peerID models.PeerID, step models.FunnelStep) (models.FunnelStep, error) {
	state, err := s.GetPeerState(peerID)
	if err != nil {
		return "", err
	}
	if state.FlowStep.Known() && step.Known() && step.Rank() < state.FlowStep.Rank() {
		slog.Warn("PostgresStore SetStep regression blocked", "peerID", peerID, "stored", state.FlowStep, "incoming", step)
		return state.FlowStep, nil
	}
	state.FlowStep = step
	if err := s.SavePeerState(state); err != nil {
		return "", err
	}
	return step, nil
}

func (s *PostgresStore) SetPause(rec PauseRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO pauses (peer_id, username, status, reason, updated_by, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (peer_id) DO UPDATE SET username = $2, status = $3, reason = $4, updated_by = $5, updated_at = $6`,
		rec.PeerID, nilIfEmpty(rec.Username), rec.Status, nilIfEmpty(rec.Reason), nilIfEmpty(rec.UpdatedBy), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore SetPause failed", "error", err, "peerID", rec.PeerID)
		return fmt.Errorf("set pause for %d: %w", rec.PeerID, err)
	}
	return nil
}

func (s *PostgresStore) GetPause(peerID models.PeerID) (*PauseRecord, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, username, status, reason, updated_by, updated_at FROM pauses WHERE peer_id = $1`, peerID)
	return scanPauseRow(row)
}

func (s *PostgresStore) GetPauseByUsername(username string) (*PauseRecord, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, username, status, reason, updated_by, updated_at FROM pauses WHERE username = $1`, username)
	return scanPauseRow(row)
}

func (s *PostgresStore) UpsertFollowup(f models.FollowupSchedule) error {
	_, err := s.db.Exec(
		`INSERT INTO followups (peer_id, stage, next_at, last_sent_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (peer_id) DO UPDATE SET stage = $2, next_at = $3, last_sent_at = $4`,
		f.PeerID, f.Stage, f.NextAt, f.LastSentAt,
	)
	if err != nil {
		slog.Error("PostgresStore UpsertFollowup failed", "error", err, "peerID", f.PeerID)
		return fmt.Errorf("upsert followup for %d: %w", f.PeerID, err)
	}
	return nil
}

func (s *PostgresStore) GetFollowup(peerID models.PeerID) (*models.FollowupSchedule, error) {
	var f models.FollowupSchedule
	var lastSentAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT peer_id, stage, next_at, last_sent_at FROM followups WHERE peer_id = $1`, peerID,
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

func (s *PostgresStore) DeleteFollowup(peerID models.PeerID) error {
	_, err := s.db.Exec(`DELETE FROM followups WHERE peer_id = $1`, peerID)
	if err != nil {
		return fmt.Errorf("delete followup for %d: %w", peerID, err)
	}
	return nil
}

func (s *PostgresStore) DueFollowups(now time.Time, limit int) ([]models.FollowupSchedule, error) {
	rows, err := s.db.Query(
		`SELECT peer_id, stage, next_at, last_sent_at FROM followups WHERE next_at <= $1 ORDER BY next_at ASC LIMIT $2`,
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

func (s *PostgresStore) EnqueueEvent(eventType, payloadJSON string) (string, error) {
	id := util.GenerateEventID()
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO event_queue (id, event_type, payload_json, attempts, next_attempt_at, created_at) VALUES ($1, $2, $3, 0, $4, $5)`,
		id, eventType, payloadJSON, now, now,
	)
	if err != nil {
		slog.Error("PostgresStore EnqueueEvent failed", "error", err, "eventType", eventType)
		return "", fmt.Errorf("enqueue event: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FetchBatch(now time.Time, limit int) ([]models.QueuedEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, event_type, payload_json, attempts, next_attempt_at, last_error, created_at
		 FROM event_queue WHERE next_attempt_at IS NULL OR next_attempt_at <= $1
		 ORDER BY created_at ASC LIMIT $2`,
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

func (s *PostgresStore) MarkEventDone(id string) error {
	_, err := s.db.Exec(`DELETE FROM event_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkEventRetry(id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE event_queue SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2 WHERE id = $3`,
		errMsg, nextAttemptAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark event retry: %w", err)
	}
	return nil
}

func (s *PostgresStore) PendingEventCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM event_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}
