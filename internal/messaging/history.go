package messaging

import (
	"sync"

	"github.com/recruitflow/recruitflow/internal/models"
)

// historyDepth is how many recent turns are kept per peer.
const historyDepth = 40

// historyBook keeps a bounded in-memory record of recent turns per
// peer, fed from both directions of traffic. It exists so AI calls can
// carry conversation context without a transport round-trip.
type historyBook struct {
	mu    sync.Mutex
	turns map[models.PeerID][]models.HistoryTurn
}

func newHistoryBook() *historyBook {
	return &historyBook{turns: make(map[models.PeerID][]models.HistoryTurn)}
}

func (h *historyBook) record(peer models.PeerID, role, text string) {
	if text == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.turns[peer], models.HistoryTurn{Role: role, Text: text})
	if len(turns) > historyDepth {
		turns = turns[len(turns)-historyDepth:]
	}
	h.turns[peer] = turns
}

func (h *historyBook) recent(peer models.PeerID, limit int) []models.HistoryTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.turns[peer]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]models.HistoryTurn, len(turns))
	copy(out, turns)
	return out
}

func (h *historyBook) clear(peer models.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, peer)
}
