// Package sheets implements the spreadsheet CRM side-channel.
//
// The operator-facing CRM is a Google Sheets workbook: one worksheet per
// day of lead rows plus monthly history-journal worksheets. All writes
// arrive through the durable event queue, never from the conversational
// path directly.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/recruitflow/recruitflow/internal/models"
)

// Opts holds configuration for the sheets client.
type Opts struct {
	CredentialsFile string
	SpreadsheetID   string
}

// Option configures the sheets client.
type Option func(*Opts)

// WithCredentialsFile sets the service-account JSON key path.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) { o.CredentialsFile = path }
}

// WithSpreadsheetID sets the target workbook.
func WithSpreadsheetID(id string) Option {
	return func(o *Opts) { o.SpreadsheetID = id }
}

// Client wraps the Sheets API for one workbook.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewClient creates a sheets client authenticated with a service account.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("sheets credentials file not set")
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id not set")
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	slog.Debug("Sheets client created", "spreadsheetID", cfg.SpreadsheetID)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID}, nil
}

// ListWorksheets returns worksheet titles mapped to their sheet ids.
func (c *Client) ListWorksheets(ctx context.Context) (map[string]int64, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	titles := make(map[string]int64, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			titles[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return titles, nil
}

// GetOrCreateWorksheet returns the worksheet with the given title,
// creating it with a header row when absent.
func (c *Client) GetOrCreateWorksheet(ctx context.Context, title string, headers []string) error {
	existing, err := c.ListWorksheets(ctx)
	if err != nil {
		return err
	}
	if _, ok := existing[title]; ok {
		return c.ensureHeaders(ctx, title, headers)
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: title,
					GridProperties: &sheets.GridProperties{
						RowCount:    1000,
						ColumnCount: int64(len(headers)),
					},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create worksheet %q: %w", title, err)
	}
	slog.Info("Sheets worksheet created", "title", title)
	return c.ensureHeaders(ctx, title, headers)
}

// DeleteWorksheet removes a worksheet by title. Missing titles are a no-op.
func (c *Client) DeleteWorksheet(ctx context.Context, title string) error {
	existing, err := c.ListWorksheets(ctx)
	if err != nil {
		return err
	}
	sheetID, ok := existing[title]
	if !ok {
		return nil
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteSheet: &sheets.DeleteSheetRequest{SheetId: sheetID},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete worksheet %q: %w", title, err)
	}
	slog.Info("Sheets worksheet deleted", "title", title)
	return nil
}

// ReadAllRows returns every populated row of the worksheet, header included.
func (c *Client) ReadAllRows(ctx context.Context, title string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, title).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", title, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UpdateRow overwrites one row, 1-based index.
func (c *Client) UpdateRow(ctx context.Context, title string, rowIdx int, values []string) error {
	rangeStr := fmt.Sprintf("%s!A%d:%s%d", title, rowIdx, columnLetter(len(values)), rowIdx)
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaceRow(values)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rangeStr, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d in %q: %w", rowIdx, title, err)
	}
	return nil
}

// AppendRow appends one row after the last populated row.
func (c *Client) AppendRow(ctx context.Context, title string, values []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaceRow(values)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, title+"!A1", vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %q: %w", title, err)
	}
	return nil
}

func (c *Client) ensureHeaders(ctx context.Context, title string, headers []string) error {
	rows, err := c.ReadAllRows(ctx, title)
	if err != nil {
		return err
	}
	if len(rows) > 0 && equalHeaders(rows[0], headers) {
		return nil
	}
	return c.UpdateRow(ctx, title, 1, headers)
}

func equalHeaders(got, want []string) bool {
	if len(got) < len(want) {
		return false
	}
	for i, h := range want {
		if strings.TrimSpace(strings.ToLower(got[i])) != h {
			return false
		}
	}
	return true
}

func toInterfaceRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

// columnLetter converts a 1-based column count to its A1-notation letter.
func columnLetter(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	return s
}

// ChatLink builds the clickable chat deep-link formula. Usernames link
// through the public t.me path; bare ids fall back to the app-only URI.
// The formula uses ; as the argument separator for RU/UA sheet locales.
func ChatLink(username string, peerID models.PeerID) string {
	var url string
	if username != "" {
		url = "https://t.me/" + strings.TrimPrefix(username, "@")
	} else {
		url = fmt.Sprintf("tg://user?id=%d", peerID)
	}
	return fmt.Sprintf("=HYPERLINK(%q;%q)", url, "Відкрити чат")
}
