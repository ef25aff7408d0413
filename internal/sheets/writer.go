package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/models"
)

// crmHeaders is the column layout of the daily lead worksheets.
var crmHeaders = []string{
	"date", "name", "chat_link_app", "username", "status", "auto_reply",
	"last_in", "last_out", "last_step", "updated_at", "peer_id", "account_key",
}

// previewLimit caps the last_in/last_out text previews.
const previewLimit = 200

// immutableStatuses are terminal CRM labels that later writes must not
// overwrite. All other columns stay updatable.
var immutableStatuses = map[string]bool{
	flow.StatusConfirmed: true,
	flow.StatusReferral:  true,
}

// WorksheetAPI is the subset of the sheets client the writers need.
// Split out so tests can run against an in-memory workbook.
type WorksheetAPI interface {
	GetOrCreateWorksheet(ctx context.Context, title string, headers []string) error
	ListWorksheets(ctx context.Context) (map[string]int64, error)
	DeleteWorksheet(ctx context.Context, title string) error
	ReadAllRows(ctx context.Context, title string) ([][]string, error)
	UpdateRow(ctx context.Context, title string, rowIdx int, values []string) error
	AppendRow(ctx context.Context, title string, values []string) error
}

// Writer maintains the daily CRM worksheets.
type Writer struct {
	api WorksheetAPI
	tz  *time.Location
	now func() time.Time
}

// NewWriter creates a CRM writer over the given worksheet API.
func NewWriter(api WorksheetAPI, tz *time.Location) *Writer {
	if tz == nil {
		tz = time.UTC
	}
	return &Writer{api: api, tz: tz, now: time.Now}
}

// dailyTitle is the DD.MM.YY worksheet name for the given day.
func dailyTitle(t time.Time) string {
	return t.Format("02.01.06")
}

// UpsertRow stores or updates the CRM row for a peer on today's
// worksheet. Rows are keyed by (peer_id, account_key); empty incoming
// fields keep the existing cell, and a stored terminal status is never
// overwritten.
func (w *Writer) UpsertRow(ctx context.Context, row models.CRMRow) error {
	return w.UpsertRowForDate(ctx, row, w.now().In(w.tz))
}

// UpsertRowForDate is UpsertRow against the worksheet of a specific day,
// used by the resync path.
func (w *Writer) UpsertRowForDate(ctx context.Context, row models.CRMRow, day time.Time) error {
	title := dailyTitle(day)
	if err := w.api.GetOrCreateWorksheet(ctx, title, crmHeaders); err != nil {
		return err
	}

	rows, err := w.api.ReadAllRows(ctx, title)
	if err != nil {
		return err
	}
	rowIdx, existing := findRow(rows, row.PeerID, row.AccountKey)

	take := func(incoming string, col int) string {
		if incoming != "" {
			return incoming
		}
		if col < len(existing) {
			return existing[col]
		}
		return ""
	}

	status := row.Status
	if len(existing) > 4 && immutableStatuses[existing[4]] {
		status = existing[4]
	}

	// The stored chat link wins: the first write usually carries the
	// username deep-link, while later writes may only know the peer id.
	chatLink := row.ChatLink
	if len(existing) > 2 && existing[2] != "" {
		chatLink = existing[2]
	}

	if row.Date == "" {
		row.Date = day.Format("2006-01-02")
	}
	out := []string{
		row.Date,
		take(row.Name, 1),
		chatLink,
		take(formatUsername(row.Username), 3),
		take(status, 4),
		take(row.AutoReply, 5),
		truncate(take(row.LastIn, 6), previewLimit),
		truncate(take(row.LastOut, 7), previewLimit),
		take(row.LastStep, 8),
		w.now().In(w.tz).Format(time.RFC3339),
		fmt.Sprint(row.PeerID),
		row.AccountKey,
	}

	if rowIdx > 0 {
		if err := w.api.UpdateRow(ctx, title, rowIdx, out); err != nil {
			return err
		}
		slog.Debug("Writer.UpsertRow updated", "title", title, "peerID", row.PeerID, "status", out[4])
		return nil
	}
	if err := w.api.AppendRow(ctx, title, out); err != nil {
		return err
	}
	slog.Debug("Writer.UpsertRow appended", "title", title, "peerID", row.PeerID, "status", out[4])
	return nil
}

// findRow locates a stored row by (peer_id, account_key); returns the
// 1-based row index, or 0 when absent.
func findRow(rows [][]string, peerID models.PeerID, accountKey string) (int, []string) {
	if len(rows) == 0 {
		return 0, nil
	}
	peerCol, accountCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(strings.ToLower(h)) {
		case "peer_id":
			peerCol = i
		case "account_key":
			accountCol = i
		}
	}
	if peerCol < 0 {
		return 0, nil
	}
	want := fmt.Sprint(peerID)
	for i, row := range rows[1:] {
		if peerCol >= len(row) || strings.TrimSpace(row[peerCol]) != want {
			continue
		}
		if accountCol >= 0 && accountCol < len(row) && accountKey != "" && row[accountCol] != accountKey {
			continue
		}
		return i + 2, row
	}
	return 0, nil
}

func formatUsername(username string) string {
	if username == "" {
		return ""
	}
	return "@" + strings.TrimPrefix(username, "@")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
