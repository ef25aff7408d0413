package store

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// backoffSchedule holds one delay tier per attempt; attempts beyond the
// last tier stay at the last tier.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// maxBackoff caps the retry delay regardless of jitter or tier.
const maxBackoff = 300 * time.Second

// CalculateBackoff returns the delay before the next apply attempt.
// attempt is the 1-based number of the attempt that just failed: the
// first failure waits about a second, later ones climb the schedule.
// Hard errors (permanent API rejections other than rate limits) jump
// straight to the top tier so a poisoned event cannot hog the queue.
func CalculateBackoff(attempt int, hardError bool) time.Duration {
	if hardError {
		return maxBackoff
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	base := backoffSchedule[idx]
	// Up to one second of jitter so competing workers spread out.
	d := base + time.Duration(rand.Int63n(int64(time.Second)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// ApplyError wraps an apply failure with its severity. Hard failures are
// permanent rejections of the event payload (4xx other than 429): they
// will not succeed on a quick retry.
type ApplyError struct {
	Hard bool
	Err  error
}

func (e *ApplyError) Error() string { return e.Err.Error() }
func (e *ApplyError) Unwrap() error { return e.Err }

// IsHardError reports whether err carries a hard ApplyError.
func IsHardError(err error) bool {
	var ae *ApplyError
	return errors.As(err, &ae) && ae.Hard
}

// EventApplier applies one queued event to the external side-channel.
type EventApplier interface {
	ApplyEvent(ctx context.Context, event models.QueuedEvent) error
}

// EventFlusher periodically drains due events from the queue and applies
// them in order. Events are removed only after a confirmed apply, so a
// crash between apply and removal replays the event (at-least-once).
type EventFlusher struct {
	repo         EventQueueRepo
	applier      EventApplier
	pollInterval time.Duration
	batchLimit   int
}

// NewEventFlusher creates a new EventFlusher.
func NewEventFlusher(repo EventQueueRepo, applier EventApplier, pollInterval time.Duration) *EventFlusher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &EventFlusher{
		repo:         repo,
		applier:      applier,
		pollInterval: pollInterval,
		batchLimit:   20,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (f *EventFlusher) Run(ctx context.Context) {
	slog.Info("EventFlusher.Run: starting event flusher", "pollInterval", f.pollInterval)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("EventFlusher.Run: stopping")
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

func (f *EventFlusher) poll(ctx context.Context) {
	now := time.Now()
	events, err := f.repo.FetchBatch(now, f.batchLimit)
	if err != nil {
		slog.Error("EventFlusher.poll: fetch failed", "error", err)
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if err := f.applier.ApplyEvent(ctx, event); err != nil {
			hard := IsHardError(err)
			// Attempts counts prior failures; this failure is attempt
			// Attempts+1.
			backoff := CalculateBackoff(event.Attempts+1, hard)
			slog.Error("EventFlusher.poll: apply failed",
				"id", event.ID, "eventType", event.EventType, "attempts", event.Attempts,
				"hard", hard, "retryIn", backoff, "error", err)
			if err := f.repo.MarkEventRetry(event.ID, err.Error(), now.Add(backoff)); err != nil {
				slog.Error("EventFlusher.poll: mark retry error", "id", event.ID, "error", err)
			}
			// Stop the batch on failure: later events often depend on
			// the same upstream and row ordering must be preserved.
			return
		}
		if err := f.repo.MarkEventDone(event.ID); err != nil {
			slog.Error("EventFlusher.poll: mark done error", "id", event.ID, "error", err)
			return
		}
		slog.Debug("EventFlusher.poll: event applied", "id", event.ID, "eventType", event.EventType)
	}
}
