package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// journalHeaders is the column layout of the monthly history worksheets.
var journalHeaders = []string{
	"timestamp", "peer_id", "actor", "dialog_mode", "step", "event_type", "text", "event_log",
}

const (
	journalTitlePrefix = "History "

	// eventLogLimit caps the rolling event-log blob per journal line.
	eventLogLimit = 1500
)

// Journal appends history events to monthly-partitioned worksheets and
// prunes partitions beyond the retention window.
type Journal struct {
	api             WorksheetAPI
	tz              *time.Location
	retentionMonths int
	now             func() time.Time
}

// NewJournal creates a history journal with the given retention window
// in months. Retention <= 0 disables pruning.
func NewJournal(api WorksheetAPI, tz *time.Location, retentionMonths int) *Journal {
	if tz == nil {
		tz = time.UTC
	}
	return &Journal{api: api, tz: tz, retentionMonths: retentionMonths, now: time.Now}
}

// monthlyTitle is the worksheet name for the month of t.
func monthlyTitle(t time.Time) string {
	return journalTitlePrefix + t.Format("01.2006")
}

// Append writes one journal line to the current month's worksheet.
func (j *Journal) Append(ctx context.Context, event models.HistoryEvent) error {
	now := j.now().In(j.tz)
	title := monthlyTitle(now)
	if err := j.api.GetOrCreateWorksheet(ctx, title, journalHeaders); err != nil {
		return err
	}

	ts := event.Timestamp
	if ts == "" {
		ts = now.Format(time.RFC3339)
	}
	row := []string{
		ts,
		fmt.Sprint(event.PeerID),
		event.Actor,
		event.DialogMode,
		event.Step,
		event.EventType,
		truncate(event.Text, previewLimit),
		truncate(event.EventLog, eventLogLimit),
	}
	if err := j.api.AppendRow(ctx, title, row); err != nil {
		return err
	}
	slog.Debug("Journal.Append", "title", title, "peerID", event.PeerID, "eventType", event.EventType)
	return nil
}

// Prune deletes monthly worksheets older than the retention window.
func (j *Journal) Prune(ctx context.Context) error {
	if j.retentionMonths <= 0 {
		return nil
	}
	titles, err := j.api.ListWorksheets(ctx)
	if err != nil {
		return err
	}

	now := j.now().In(j.tz)
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, j.tz).AddDate(0, -j.retentionMonths, 0)

	for title := range titles {
		if !strings.HasPrefix(title, journalTitlePrefix) {
			continue
		}
		month, err := time.ParseInLocation("01.2006", strings.TrimPrefix(title, journalTitlePrefix), j.tz)
		if err != nil {
			continue
		}
		if month.Before(cutoff) {
			if err := j.api.DeleteWorksheet(ctx, title); err != nil {
				return fmt.Errorf("prune journal %q: %w", title, err)
			}
			slog.Info("Journal.Prune removed partition", "title", title)
		}
	}
	return nil
}
