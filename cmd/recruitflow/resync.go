package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/recruitflow/recruitflow/internal/sheets"
)

var resyncCommand = &cobra.Command{
	Use:   "resync",
	Short: "Rebuild the CRM worksheet from stored state",
	Long: "Reads every stored peer record and upserts the corresponding CRM rows for the " +
		"target date. Terminal statuses already on the sheet are never downgraded.",
	RunE: runResync,
}

var resyncDate string

func init() {
	resyncCommand.Flags().StringVar(&resyncDate, "date", "", "target date as YYYY-MM-DD (defaults to today)")
	rootCmd.AddCommand(resyncCommand)
}

func runResync(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.sheetsConfigured() {
		return fmt.Errorf("spreadsheet backend not configured (GOOGLE_CREDENTIALS_FILE, SPREADSHEET_ID)")
	}

	day := time.Now().In(cfg.Timezone)
	if resyncDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", resyncDate, cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", resyncDate, err)
		}
		day = parsed
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	client, err := sheets.NewClient(ctx,
		sheets.WithCredentialsFile(cfg.CredentialsFile),
		sheets.WithSpreadsheetID(cfg.SpreadsheetID),
	)
	if err != nil {
		return fmt.Errorf("connect spreadsheet backend: %w", err)
	}
	writer := sheets.NewWriter(client, cfg.Timezone)

	rows, err := resyncRows(st, cfg)
	if err != nil {
		return err
	}
	n, err := writer.Resync(ctx, rows, day)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	slog.Info("resync completed", "date", day.Format("2006-01-02"), "rows", n)
	return nil
}
