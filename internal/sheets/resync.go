package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

// Resync rebuilds the worksheet for one day from a prepared row set.
// Rows are upserted in place, so a resync never duplicates leads and
// never downgrades a terminal status.
func (w *Writer) Resync(ctx context.Context, rows []models.CRMRow, day time.Time) (int, error) {
	n := 0
	for _, row := range rows {
		if err := w.UpsertRowForDate(ctx, row, day); err != nil {
			return n, fmt.Errorf("resync row for peer %d: %w", row.PeerID, err)
		}
		n++
	}
	slog.Info("Writer.Resync completed", "date", dailyTitle(day), "rows", n)
	return n, nil
}

// EnqueueRowUpsert serializes a CRM row mutation onto the durable queue.
func EnqueueRowUpsert(repo store.EventQueueRepo, row models.CRMRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode crm row: %w", err)
	}
	if _, err := repo.EnqueueEvent(models.EventTypeRowUpsert, string(payload)); err != nil {
		return err
	}
	return nil
}

// EnqueueJournalAppend serializes a history line onto the durable queue.
func EnqueueJournalAppend(repo store.EventQueueRepo, event models.HistoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}
	if _, err := repo.EnqueueEvent(models.EventTypeJournalAppend, string(payload)); err != nil {
		return err
	}
	return nil
}

// EnqueueLeadIngest records a newly ingested lead row on the queue.
func EnqueueLeadIngest(repo store.EventQueueRepo, row models.CRMRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode lead row: %w", err)
	}
	if _, err := repo.EnqueueEvent(models.EventTypeLeadIngest, string(payload)); err != nil {
		return err
	}
	return nil
}
