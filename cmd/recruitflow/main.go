// Package main provides the RecruitFlow command line entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/recruitflow/recruitflow/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "recruitflow",
	Short: "Recruiting outreach funnel automation",
	Long: "RecruitFlow drives a scripted recruiting conversation funnel over a messaging " +
		"account: lead ingestion, intent classification, staged content delivery, reminder " +
		"escalation and a spreadsheet-backed CRM side-channel.",
}

func main() {
	initializeLogger()

	// Optional; a missing .env is the normal production case.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("RECRUITFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
