package dispatch

import (
	"sync"

	"github.com/recruitflow/recruitflow/internal/models"
)

// DefaultRingSize is how many recent outbound message ids are remembered
// per peer for echo suppression.
const DefaultRingSize = 20

// SentTracker remembers the ids of recently sent messages per peer so
// the bot's own outgoing echo is never mistaken for operator input.
// Each peer gets a bounded ring; old ids fall off as new ones arrive.
type SentTracker struct {
	mu    sync.Mutex
	size  int
	rings map[models.PeerID][]string
}

// NewSentTracker creates a tracker with the given per-peer ring size.
// A size of zero or less falls back to DefaultRingSize.
func NewSentTracker(size int) *SentTracker {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &SentTracker{size: size, rings: make(map[models.PeerID][]string)}
}

// Record remembers a sent message id for the peer.
func (t *SentTracker) Record(peer models.PeerID, id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ring := append(t.rings[peer], id)
	if len(ring) > t.size {
		ring = ring[len(ring)-t.size:]
	}
	t.rings[peer] = ring
}

// IsSent reports whether the id belongs to a message this process sent
// to the peer recently.
func (t *SentTracker) IsSent(peer models.PeerID, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, known := range t.rings[peer] {
		if known == id {
			return true
		}
	}
	return false
}

// Clear drops all remembered ids for the peer (operator reset).
func (t *SentTracker) Clear(peer models.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rings, peer)
}
