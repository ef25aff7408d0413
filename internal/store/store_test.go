package store

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "recruitflow.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPeerStateDefaultWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	state, err := s.GetPeerState(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.PeerID != 42 {
		t.Errorf("peer id = %d", state.PeerID)
	}
	if state.FlowStep != models.StepScreeningWait {
		t.Errorf("default step = %s", state.FlowStep)
	}
	if !state.AutoReply {
		t.Error("default auto reply must be on")
	}
}

func TestPeerStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepCompanyIntro
	state.ScreeningAnswers = []string{"25", "студент", "так"}
	state.ShiftChoice = "day"
	if err := s.SavePeerState(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetPeerState(7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FlowStep != models.StepCompanyIntro {
		t.Errorf("step = %s", got.FlowStep)
	}
	if len(got.ScreeningAnswers) != 3 || got.ScreeningAnswers[1] != "студент" {
		t.Errorf("answers = %v", got.ScreeningAnswers)
	}
	if got.ShiftChoice != "day" {
		t.Errorf("shift = %q", got.ShiftChoice)
	}
}

func TestSavePeerStateBlocksStepRegression(t *testing.T) {
	s := newTestStore(t)
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleConfirm
	if err := s.SavePeerState(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	state.FlowStep = models.StepScreeningWait
	state.HandoffNote = "late edit"
	if err := s.SavePeerState(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetPeerState(7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FlowStep != models.StepScheduleConfirm {
		t.Errorf("step = %s, regression must be blocked", got.FlowStep)
	}
	if got.HandoffNote != "late edit" {
		t.Error("non-step fields must still be persisted")
	}
}

func TestSetStepMonotonic(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetStep(9, models.StepTestReview); err != nil {
		t.Fatalf("set step: %v", err)
	}
	got, err := s.SetStep(9, models.StepCompanyIntro)
	if err != nil {
		t.Fatalf("set step: %v", err)
	}
	if got != models.StepTestReview {
		t.Errorf("effective step = %s, want test_review", got)
	}
	got, err = s.SetStep(9, models.StepHandoff)
	if err != nil {
		t.Fatalf("set step: %v", err)
	}
	if got != models.StepHandoff {
		t.Errorf("effective step = %s, want handoff", got)
	}
}

func TestDeletePeerStateAndList(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []models.PeerID{1, 2, 3} {
		if err := s.SavePeerState(models.NewPeerRuntimeState(id)); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}
	if err := s.DeletePeerState(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids, err := s.ListPeerIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("ids = %v", ids)
	}
}

func TestPauseRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := PauseRecord{PeerID: 5, Username: "lead_one", Status: models.PauseStatusPaused, Reason: "stop_intent", UpdatedBy: "operator"}
	if err := s.SetPause(rec); err != nil {
		t.Fatalf("set pause: %v", err)
	}

	got, err := s.GetPause(5)
	if err != nil {
		t.Fatalf("get pause: %v", err)
	}
	if got == nil || got.Status != models.PauseStatusPaused || got.Reason != "stop_intent" {
		t.Errorf("pause record = %+v", got)
	}

	byName, err := s.GetPauseByUsername("lead_one")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName == nil || byName.PeerID != 5 {
		t.Errorf("pause by username = %+v", byName)
	}

	missing, err := s.GetPause(99)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing pause = %+v, want nil", missing)
	}
}

func TestFollowupLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	f := models.FollowupSchedule{PeerID: 11, Stage: 1, NextAt: now.Add(-time.Minute)}
	if err := s.UpsertFollowup(f); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	later := models.FollowupSchedule{PeerID: 12, Stage: 0, NextAt: now.Add(time.Hour)}
	if err := s.UpsertFollowup(later); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	due, err := s.DueFollowups(now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].PeerID != 11 {
		t.Errorf("due = %+v", due)
	}

	if err := s.DeleteFollowup(11); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.GetFollowup(11)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("followup = %+v, want nil after delete", got)
	}
}

func TestEventQueueOrderAndRetry(t *testing.T) {
	s := newTestStore(t)
	id1, err := s.EnqueueEvent(models.EventTypeRowUpsert, `{"peer_id":1}`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id2, err := s.EnqueueEvent(models.EventTypeJournalAppend, `{"peer_id":1}`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	events, err := s.FetchBatch(time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 || events[0].ID != id1 || events[1].ID != id2 {
		t.Fatalf("events out of order: %+v", events)
	}

	if err := s.MarkEventRetry(id1, "quota exceeded", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	events, err = s.FetchBatch(time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 || events[0].ID != id2 {
		t.Errorf("retried event must not be due: %+v", events)
	}

	if err := s.MarkEventDone(id2); err != nil {
		t.Fatalf("done: %v", err)
	}
	n, err := s.PendingEventCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	// Requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for the connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pg, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pg.Close()
	pg.db.Exec("DELETE FROM peer_states WHERE peer_id = 424242")

	state := models.NewPeerRuntimeState(424242)
	state.FlowStep = models.StepCompanyIntro
	if err := pg.SavePeerState(state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := pg.GetPeerState(424242)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FlowStep != models.StepCompanyIntro {
		t.Errorf("step = %s", got.FlowStep)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
