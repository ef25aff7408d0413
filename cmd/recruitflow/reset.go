package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

var resetCommand = &cobra.Command{
	Use:   "reset",
	Short: "Reset a peer's funnel state",
	Long: "Deletes the stored runtime state, pending reminders and pause flag for a peer " +
		"so the funnel can be replayed from the top. Intended for operator test accounts.",
	RunE: runReset,
}

var resetPeer int64

func init() {
	resetCommand.Flags().Int64Var(&resetPeer, "peer", 0, "peer id to reset")
	_ = resetCommand.MarkFlagRequired("peer")
	rootCmd.AddCommand(resetCommand)
}

func runReset(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	peer := models.PeerID(resetPeer)
	if err := st.DeletePeerState(peer); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if err := st.DeleteFollowup(peer); err != nil {
		return fmt.Errorf("delete followup: %w", err)
	}
	if err := st.SetPause(store.PauseRecord{
		PeerID:    peer,
		Status:    models.PauseStatusActive,
		Reason:    "test_reset",
		UpdatedBy: models.ActorOperator,
		UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("clear pause: %w", err)
	}
	slog.Info("peer reset", "peer", resetPeer)
	return nil
}
