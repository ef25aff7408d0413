// Package export writes a peer's conversation record to a flat file for
// operator review or handoff.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

// historyLimit bounds how many turns one export carries.
const historyLimit = 200

// historyProvider is the transport slice the exporter reads from.
type historyProvider interface {
	RecentHistory(ctx context.Context, peer models.PeerID, limit int) ([]models.HistoryTurn, error)
}

// Exporter renders peer conversations to text files.
type Exporter struct {
	msg historyProvider
	st  store.PeerStateRepo
	now func() time.Time
}

// NewExporter creates an exporter over the transport and state store.
func NewExporter(msg historyProvider, st store.PeerStateRepo) *Exporter {
	return &Exporter{msg: msg, st: st, now: time.Now}
}

// Render writes the export document for one peer.
func (e *Exporter) Render(ctx context.Context, peer models.PeerID) (string, error) {
	state, err := e.st.GetPeerState(peer)
	if err != nil {
		return "", fmt.Errorf("load state for peer %d: %w", peer, err)
	}
	history, err := e.msg.RecentHistory(ctx, peer, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history for peer %d: %w", peer, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "peer: %d\n", peer)
	fmt.Fprintf(&b, "exported: %s\n", e.now().Format(time.RFC3339))
	fmt.Fprintf(&b, "step: %s\n", state.FlowStep)
	fmt.Fprintf(&b, "auto_reply: %t\n", state.AutoReply)
	if state.Paused {
		fmt.Fprintf(&b, "paused: %s\n", state.PauseReason)
	}
	if state.ShiftChoice != "" {
		fmt.Fprintf(&b, "shift: %s\n", state.ShiftChoice)
	}
	if len(state.ScreeningAnswers) > 0 {
		fmt.Fprintf(&b, "screening: %s\n", strings.Join(state.ScreeningAnswers, " | "))
	}
	if len(state.TestAnswers) > 0 {
		fmt.Fprintf(&b, "test: %s\n", strings.Join(state.TestAnswers, " | "))
	}
	if state.HandoffNote != "" {
		fmt.Fprintf(&b, "handoff_note: %s\n", state.HandoffNote)
	}
	b.WriteString("\n")

	if len(history) == 0 {
		b.WriteString("(no recorded turns)\n")
		return b.String(), nil
	}
	for _, turn := range history {
		fmt.Fprintf(&b, "[%s] %s\n", turn.Role, turn.Text)
	}
	return b.String(), nil
}

// ExportFile renders the peer conversation and writes it to path,
// creating parent directories as needed.
func (e *Exporter) ExportFile(ctx context.Context, peer models.PeerID, path string) error {
	doc, err := e.Render(ctx, peer)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}
