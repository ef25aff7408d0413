package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/recruitflow/recruitflow/internal/export"
	"github.com/recruitflow/recruitflow/internal/models"
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Export a peer conversation record to a text file",
	RunE:  runExport,
}

var (
	exportPeer int64
	exportOut  string
)

func init() {
	exportCommand.Flags().Int64Var(&exportPeer, "peer", 0, "peer id to export")
	exportCommand.Flags().StringVar(&exportOut, "out", "", "output file path (defaults to peer<id>.txt)")
	_ = exportCommand.MarkFlagRequired("peer")
	rootCmd.AddCommand(exportCommand)
}

// offlineHistory is used when exporting without a live transport
// session; only the stored state summary is available then.
type offlineHistory struct{}

func (offlineHistory) RecentHistory(context.Context, models.PeerID, int) ([]models.HistoryTurn, error) {
	return nil, nil
}

func runExport(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	path := exportOut
	if path == "" {
		path = fmt.Sprintf("peer%d.txt", exportPeer)
	}
	exporter := export.NewExporter(offlineHistory{}, st)
	if err := exporter.ExportFile(context.Background(), models.PeerID(exportPeer), path); err != nil {
		return err
	}
	slog.Info("export written", "peer", exportPeer, "path", path)
	return nil
}
