package followup

import (
	"context"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

type fakeFollowupRepo struct {
	schedules map[models.PeerID]models.FollowupSchedule
}

func newFakeFollowupRepo() *fakeFollowupRepo {
	return &fakeFollowupRepo{schedules: make(map[models.PeerID]models.FollowupSchedule)}
}

func (r *fakeFollowupRepo) UpsertFollowup(f models.FollowupSchedule) error {
	r.schedules[f.PeerID] = f
	return nil
}

func (r *fakeFollowupRepo) GetFollowup(peerID models.PeerID) (*models.FollowupSchedule, error) {
	if f, ok := r.schedules[peerID]; ok {
		return &f, nil
	}
	return nil, nil
}

func (r *fakeFollowupRepo) DeleteFollowup(peerID models.PeerID) error {
	delete(r.schedules, peerID)
	return nil
}

func (r *fakeFollowupRepo) DueFollowups(now time.Time, limit int) ([]models.FollowupSchedule, error) {
	var due []models.FollowupSchedule
	for _, f := range r.schedules {
		if !f.NextAt.After(now) {
			due = append(due, f)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

type fakeStateRepo struct {
	states map[models.PeerID]models.PeerRuntimeState
}

func (r *fakeStateRepo) GetPeerState(peerID models.PeerID) (models.PeerRuntimeState, error) {
	if s, ok := r.states[peerID]; ok {
		return s, nil
	}
	return models.NewPeerRuntimeState(peerID), nil
}

func (r *fakeStateRepo) SavePeerState(models.PeerRuntimeState) error { return nil }
func (r *fakeStateRepo) DeletePeerState(models.PeerID) error         { return nil }
func (r *fakeStateRepo) ListPeerIDs() ([]models.PeerID, error)       { return nil, nil }

type fakePauseRepo struct {
	paused map[models.PeerID]bool
}

func (r *fakePauseRepo) SetPause(store.PauseRecord) error { return nil }

func (r *fakePauseRepo) GetPause(peerID models.PeerID) (*store.PauseRecord, error) {
	if r.paused[peerID] {
		return &store.PauseRecord{PeerID: peerID, Status: models.PauseStatusPaused}, nil
	}
	return nil, nil
}

func (r *fakePauseRepo) GetPauseByUsername(string) (*store.PauseRecord, error) { return nil, nil }

type fakeSender struct {
	sent []string
}

func (s *fakeSender) SendAndUpdate(_ context.Context, _ models.PeerID, text string, opts dispatch.SendOptions) string {
	if !opts.SuppressFollowup {
		panic("reminder send must suppress rescheduling")
	}
	s.sent = append(s.sent, text)
	return text
}

// kyiv is a fixed non-UTC zone so window math is deterministic.
var kyiv = time.FixedZone("EET", 2*60*60)

func newTestScheduler(opts ...Option) (*Scheduler, *fakeFollowupRepo, *fakeStateRepo, *fakePauseRepo, *fakeSender) {
	repo := newFakeFollowupRepo()
	states := &fakeStateRepo{states: make(map[models.PeerID]models.PeerRuntimeState)}
	pauses := &fakePauseRepo{paused: make(map[models.PeerID]bool)}
	sender := &fakeSender{}
	all := append([]Option{WithTimezone(kyiv)}, opts...)
	s := NewScheduler(repo, states, pauses, all...)
	s.SetSender(sender)
	return s, repo, states, pauses, sender
}

func TestScheduleFromNowStageZero(t *testing.T) {
	s, repo, _, _, _ := newTestScheduler()
	s.now = func() time.Time { return time.Date(2025, 9, 15, 12, 0, 0, 0, kyiv) }

	if err := s.ScheduleFromNow(7); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	f := repo.schedules[7]
	if f.Stage != 0 {
		t.Errorf("stage = %d", f.Stage)
	}
	want := time.Date(2025, 9, 15, 12, 30, 0, 0, kyiv)
	if !f.NextAt.Equal(want) {
		t.Errorf("next_at = %v, want %v", f.NextAt, want)
	}
}

func TestNormalizeToWindow(t *testing.T) {
	s, _, _, _, _ := newTestScheduler()

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"inside window unchanged", time.Date(2025, 9, 15, 14, 25, 0, 0, kyiv), time.Date(2025, 9, 15, 14, 25, 0, 0, kyiv)},
		{"before start pushed to start", time.Date(2025, 9, 15, 7, 45, 0, 0, kyiv), time.Date(2025, 9, 15, 10, 0, 0, 0, kyiv)},
		{"after end pushed to next day", time.Date(2025, 9, 15, 22, 10, 0, 0, kyiv), time.Date(2025, 9, 16, 10, 0, 0, 0, kyiv)},
		{"exactly end hour pushed to next day", time.Date(2025, 9, 15, 21, 0, 0, 0, kyiv), time.Date(2025, 9, 16, 10, 0, 0, 0, kyiv)},
		{"midnight pushed to same-day start", time.Date(2025, 9, 15, 0, 5, 0, 0, kyiv), time.Date(2025, 9, 15, 10, 0, 0, 0, kyiv)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.normalizeToWindow(tc.in)
			if !got.Equal(tc.want) {
				t.Errorf("normalizeToWindow(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSweepFiresDueAndAdvances(t *testing.T) {
	s, repo, _, _, sender := newTestScheduler()
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, kyiv)
	s.now = func() time.Time { return now }

	repo.schedules[7] = models.FollowupSchedule{PeerID: 7, Stage: 0, NextAt: now.Add(-time.Minute)}
	repo.schedules[8] = models.FollowupSchedule{PeerID: 8, Stage: 0, NextAt: now.Add(time.Hour)}

	s.sweep(context.Background())

	if len(sender.sent) != 1 || sender.sent[0] != DefaultTemplates[0].Text {
		t.Fatalf("sent = %v", sender.sent)
	}
	f := repo.schedules[7]
	if f.Stage != 1 {
		t.Errorf("stage = %d, want 1", f.Stage)
	}
	wantNext := now.Add(24 * time.Hour)
	if !f.NextAt.Equal(wantNext) {
		t.Errorf("next_at = %v, want %v", f.NextAt, wantNext)
	}
	if f.LastSentAt == nil || !f.LastSentAt.Equal(now) {
		t.Errorf("last_sent_at = %v", f.LastSentAt)
	}
	if repo.schedules[8].Stage != 0 {
		t.Error("not-yet-due schedule must stay put")
	}
}

func TestSweepClearsAfterFinalStage(t *testing.T) {
	s, repo, _, _, sender := newTestScheduler()
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, kyiv)
	s.now = func() time.Time { return now }

	repo.schedules[7] = models.FollowupSchedule{PeerID: 7, Stage: len(DefaultTemplates) - 1, NextAt: now.Add(-time.Minute)}
	s.sweep(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %v", sender.sent)
	}
	if _, ok := repo.schedules[7]; ok {
		t.Error("schedule must be cleared after the final stage")
	}
}

func TestSweepSkipsPausedAndStopped(t *testing.T) {
	s, repo, states, pauses, sender := newTestScheduler()
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, kyiv)
	s.now = func() time.Time { return now }

	pauses.paused[7] = true
	repo.schedules[7] = models.FollowupSchedule{PeerID: 7, Stage: 0, NextAt: now.Add(-time.Minute)}

	rejected := models.NewPeerRuntimeState(8)
	rejected.FlowStep = models.StepAgeRejected
	states.states[8] = rejected
	repo.schedules[8] = models.FollowupSchedule{PeerID: 8, Stage: 0, NextAt: now.Add(-time.Minute)}

	s.sweep(context.Background())

	if len(sender.sent) != 0 {
		t.Errorf("paused/rejected peers must not get reminders: %v", sender.sent)
	}
	if len(repo.schedules) != 0 {
		t.Errorf("skipped schedules must be cleared: %v", repo.schedules)
	}
}

func TestExcludedPeerNeverScheduled(t *testing.T) {
	s, repo, _, _, _ := newTestScheduler(WithExcludedPeers([]models.PeerID{7}))

	if err := s.ScheduleFromNow(7); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(repo.schedules) != 0 {
		t.Errorf("excluded peer must not be scheduled: %v", repo.schedules)
	}
}

func TestClearDropsSchedule(t *testing.T) {
	s, repo, _, _, _ := newTestScheduler()
	repo.schedules[7] = models.FollowupSchedule{PeerID: 7, Stage: 1, NextAt: time.Now()}

	if err := s.Clear(7); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(repo.schedules) != 0 {
		t.Error("clear must drop the schedule")
	}
}
