package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/googleapi"

	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

// Applier applies queued CRM events against the workbook. It is the
// single consumer of the durable event queue.
type Applier struct {
	writer  *Writer
	journal *Journal
}

// Compile-time check against the flusher contract.
var _ store.EventApplier = (*Applier)(nil)

// NewApplier creates an event applier over the CRM writer and journal.
func NewApplier(writer *Writer, journal *Journal) *Applier {
	return &Applier{writer: writer, journal: journal}
}

// ApplyEvent dispatches one queued event to the matching sheet mutation.
// API rejections are classified so the queue can pick the right backoff:
// a 4xx other than 429 will not succeed on a quick retry.
func (a *Applier) ApplyEvent(ctx context.Context, event models.QueuedEvent) error {
	var err error
	switch event.EventType {
	case models.EventTypeRowUpsert, models.EventTypeLeadIngest:
		var row models.CRMRow
		if jsonErr := json.Unmarshal([]byte(event.PayloadJSON), &row); jsonErr != nil {
			// A payload that cannot be decoded never will be; treat as hard.
			return &store.ApplyError{Hard: true, Err: fmt.Errorf("decode %s payload: %w", event.EventType, jsonErr)}
		}
		err = a.writer.UpsertRow(ctx, row)
	case models.EventTypeJournalAppend:
		var he models.HistoryEvent
		if jsonErr := json.Unmarshal([]byte(event.PayloadJSON), &he); jsonErr != nil {
			return &store.ApplyError{Hard: true, Err: fmt.Errorf("decode journal payload: %w", jsonErr)}
		}
		err = a.journal.Append(ctx, he)
	default:
		slog.Warn("Applier.ApplyEvent: unknown event type dropped", "id", event.ID, "eventType", event.EventType)
		return nil
	}

	if err != nil {
		return classifyError(err)
	}
	return nil
}

// classifyError wraps Sheets API errors with their retry severity.
func classifyError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		hard := gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != 429
		return &store.ApplyError{Hard: hard, Err: err}
	}
	return err
}
