package engine

import (
	"sync"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// DefaultDebounce suppresses near-duplicate rapid-fire inbound events
// for the same peer.
const DefaultDebounce = 3 * time.Second

// RuntimeContext holds the process-wide mutable runtime caches: the
// per-peer in-flight set with ordered buffering, and the debounce
// memory. At most one flow-engine invocation runs per peer at any time;
// turns arriving for a busy peer are buffered and drained strictly in
// arrival order.
type RuntimeContext struct {
	mu         sync.Mutex
	processing map[models.PeerID]bool
	buffered   map[models.PeerID][]models.InboundMessage

	debounce time.Duration
	lastText map[models.PeerID]string
	lastAt   map[models.PeerID]time.Time

	stopped bool
}

// NewRuntimeContext creates the runtime caches. A debounce of zero or
// less falls back to DefaultDebounce.
func NewRuntimeContext(debounce time.Duration) *RuntimeContext {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &RuntimeContext{
		processing: make(map[models.PeerID]bool),
		buffered:   make(map[models.PeerID][]models.InboundMessage),
		debounce:   debounce,
		lastText:   make(map[models.PeerID]string),
		lastAt:     make(map[models.PeerID]time.Time),
	}
}

// Begin claims the peer for processing. When the peer already has an
// in-flight turn the message is buffered instead and false is returned.
func (r *RuntimeContext) Begin(msg models.InboundMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processing[msg.PeerID] {
		r.buffered[msg.PeerID] = append(r.buffered[msg.PeerID], msg)
		return false
	}
	r.processing[msg.PeerID] = true
	return true
}

// TryClaim claims the peer only when it is idle. Unlike Begin nothing
// is buffered on failure; background timers use this so a timer firing
// during an in-flight turn is simply skipped.
func (r *RuntimeContext) TryClaim(peer models.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processing[peer] {
		return false
	}
	r.processing[peer] = true
	return true
}

// Finish releases the peer and returns the next buffered turn, if any.
// When a turn is returned the peer stays claimed and the caller must
// process it and call Finish again.
func (r *RuntimeContext) Finish(peer models.PeerID) (models.InboundMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.buffered[peer]
	if len(queue) == 0 {
		delete(r.processing, peer)
		delete(r.buffered, peer)
		return models.InboundMessage{}, false
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(r.buffered, peer)
	} else {
		r.buffered[peer] = queue[1:]
	}
	return next, true
}

// Debounced reports whether the message repeats the peer's previous
// text inside the debounce window, and records it either way.
func (r *RuntimeContext) Debounced(msg models.InboundMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	duplicate := msg.Text != "" &&
		msg.Text == r.lastText[msg.PeerID] &&
		msg.Time.Sub(r.lastAt[msg.PeerID]) < r.debounce
	r.lastText[msg.PeerID] = msg.Text
	r.lastAt[msg.PeerID] = msg.Time
	return duplicate
}

// ResetPeer drops all runtime memory for the peer (operator reset).
func (r *RuntimeContext) ResetPeer(peer models.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processing, peer)
	delete(r.buffered, peer)
	delete(r.lastText, peer)
	delete(r.lastAt, peer)
}

// Stop raises the shutdown flag; no new turns are accepted afterwards.
func (r *RuntimeContext) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

// Stopped reports whether shutdown has begun.
func (r *RuntimeContext) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
