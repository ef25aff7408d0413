package store

import (
	"database/sql"
	"fmt"

	"github.com/recruitflow/recruitflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanQueuedEvent scans a QueuedEvent from sql.Rows.
func scanQueuedEvent(rows *sql.Rows) (models.QueuedEvent, error) {
	var e models.QueuedEvent
	var lastError sql.NullString
	var nextAttemptAt sql.NullTime
	err := rows.Scan(&e.ID, &e.EventType, &e.PayloadJSON, &e.Attempts, &nextAttemptAt, &lastError, &e.CreatedAt)
	if err != nil {
		return e, fmt.Errorf("scan queued event: %w", err)
	}
	e.LastError = lastError.String
	if nextAttemptAt.Valid {
		e.NextAttemptAt = nextAttemptAt.Time
	}
	return e, nil
}

// scanPauseRow scans a PauseRecord from a single sql.Row, returning nil
// when the row does not exist.
func scanPauseRow(row *sql.Row) (*PauseRecord, error) {
	var rec PauseRecord
	var username, reason, updatedBy sql.NullString
	err := row.Scan(&rec.PeerID, &username, &rec.Status, &reason, &updatedBy, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pause record: %w", err)
	}
	rec.Username = username.String
	rec.Reason = reason.String
	rec.UpdatedBy = updatedBy.String
	return &rec, nil
}
