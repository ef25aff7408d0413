package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/intent"
	"github.com/recruitflow/recruitflow/internal/messaging"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
)

// memStore is an in-memory store.Store for engine tests.
type memStore struct {
	states    map[models.PeerID]models.PeerRuntimeState
	pauses    map[models.PeerID]store.PauseRecord
	followups map[models.PeerID]models.FollowupSchedule
	events    []models.QueuedEvent
}

func newMemStore() *memStore {
	return &memStore{
		states:    make(map[models.PeerID]models.PeerRuntimeState),
		pauses:    make(map[models.PeerID]store.PauseRecord),
		followups: make(map[models.PeerID]models.FollowupSchedule),
	}
}

func (m *memStore) GetPeerState(peerID models.PeerID) (models.PeerRuntimeState, error) {
	if s, ok := m.states[peerID]; ok {
		return s, nil
	}
	return models.NewPeerRuntimeState(peerID), nil
}

func (m *memStore) SavePeerState(state models.PeerRuntimeState) error {
	m.states[state.PeerID] = state
	return nil
}

func (m *memStore) DeletePeerState(peerID models.PeerID) error {
	delete(m.states, peerID)
	return nil
}

func (m *memStore) ListPeerIDs() ([]models.PeerID, error) {
	var ids []models.PeerID
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) SetStep(peerID models.PeerID, step models.FunnelStep) (models.FunnelStep, error) {
	s, _ := m.GetPeerState(peerID)
	if !s.FlowStep.Known() || step.Rank() >= s.FlowStep.Rank() {
		s.FlowStep = step
	}
	m.states[peerID] = s
	return s.FlowStep, nil
}

func (m *memStore) SetPause(rec store.PauseRecord) error {
	m.pauses[rec.PeerID] = rec
	return nil
}

func (m *memStore) GetPause(peerID models.PeerID) (*store.PauseRecord, error) {
	if rec, ok := m.pauses[peerID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memStore) GetPauseByUsername(string) (*store.PauseRecord, error) { return nil, nil }

func (m *memStore) UpsertFollowup(f models.FollowupSchedule) error {
	m.followups[f.PeerID] = f
	return nil
}

func (m *memStore) GetFollowup(peerID models.PeerID) (*models.FollowupSchedule, error) {
	if f, ok := m.followups[peerID]; ok {
		return &f, nil
	}
	return nil, nil
}

func (m *memStore) DeleteFollowup(peerID models.PeerID) error {
	delete(m.followups, peerID)
	return nil
}

func (m *memStore) DueFollowups(time.Time, int) ([]models.FollowupSchedule, error) {
	return nil, nil
}

func (m *memStore) EnqueueEvent(eventType, payloadJSON string) (string, error) {
	id := fmt.Sprintf("evt-%d", len(m.events)+1)
	m.events = append(m.events, models.QueuedEvent{ID: id, EventType: eventType, PayloadJSON: payloadJSON})
	return id, nil
}

func (m *memStore) FetchBatch(time.Time, int) ([]models.QueuedEvent, error) { return nil, nil }
func (m *memStore) MarkEventDone(string) error                              { return nil }
func (m *memStore) MarkEventRetry(string, string, time.Time) error          { return nil }
func (m *memStore) PendingEventCount() (int, error)                         { return len(m.events), nil }
func (m *memStore) Close() error                                            { return nil }

func (m *memStore) eventTypes() []string {
	var types []string
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

// fakeTransport is an in-memory messaging.Service.
type fakeTransport struct {
	forwards []string
	history  map[models.PeerID][]models.HistoryTurn
	entities map[string]*models.Entity
	messages chan models.InboundMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		history:  make(map[models.PeerID][]models.HistoryTurn),
		entities: make(map[string]*models.Entity),
		messages: make(chan models.InboundMessage, 10),
	}
}

func (f *fakeTransport) Start(context.Context) error { return nil }
func (f *fakeTransport) Stop() error                 { return nil }

func (f *fakeTransport) SendMessage(_ context.Context, _ models.PeerID, text string) (string, error) {
	return "id-" + text, nil
}

func (f *fakeTransport) ForwardContent(_ context.Context, _ models.PeerID, link string) error {
	f.forwards = append(f.forwards, link)
	return nil
}

func (f *fakeTransport) RecentHistory(_ context.Context, peer models.PeerID, _ int) ([]models.HistoryTurn, error) {
	return f.history[peer], nil
}

func (f *fakeTransport) ResolveEntity(_ context.Context, ref string) (*models.Entity, error) {
	if e, ok := f.entities[ref]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown contact %q", ref)
}

func (f *fakeTransport) FindGroup(context.Context, string) (models.PeerID, error) { return 0, nil }

func (f *fakeTransport) Messages() <-chan models.InboundMessage { return f.messages }

// fakeOutbound records dispatched sends without delays or rewrites.
type fakeOutbound struct {
	sent     []string
	statuses []string
}

func (o *fakeOutbound) SendAndUpdate(_ context.Context, _ models.PeerID, text string, opts dispatch.SendOptions) string {
	o.sent = append(o.sent, text)
	o.statuses = append(o.statuses, opts.Status)
	return text
}

type fakeAnswerer struct {
	answer string
}

func (a *fakeAnswerer) Answer(context.Context, []models.HistoryTurn, string, models.FunnelStep, bool) string {
	return a.answer
}

type fakeReminders struct {
	cleared []models.PeerID
}

func (r *fakeReminders) Clear(peer models.PeerID) error {
	r.cleared = append(r.cleared, peer)
	return nil
}

var testLinks = messaging.ContentLinks{
	models.ContentVoice:    "https://t.me/assets/1",
	models.ContentPhoto1:   "https://t.me/assets/2",
	models.ContentPhoto2:   "https://t.me/assets/3",
	models.ContentTestTask: "https://t.me/assets/4",
	models.ContentForm:     "https://t.me/assets/5",
}

func newTestEngine(opts ...Option) (*Engine, *memStore, *fakeTransport, *fakeOutbound, *fakeReminders) {
	st := newMemStore()
	transport := newFakeTransport()
	out := &fakeOutbound{}
	reminders := &fakeReminders{}
	all := append([]Option{
		WithAccountKey("acc_main"),
		WithContentLinks(testLinks),
		WithTimezone(time.UTC),
	}, opts...)
	e := NewEngine(transport, st, intent.NewClassifier(nil), &fakeAnswerer{answer: "Відповідь."}, out,
		dispatch.NewSentTracker(0), reminders, all...)
	return e, st, transport, out, reminders
}

func inbound(peer models.PeerID, text string) models.InboundMessage {
	return models.InboundMessage{PeerID: peer, MessageID: "in-" + text, Text: text, Time: time.Now()}
}

func TestProcessTurnShiftChoice(t *testing.T) {
	e, st, _, out, reminders := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleShiftWait
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "денна"))

	if len(out.sent) != 1 || out.sent[0] != flow.DefaultTemplates[models.MsgScheduleConfirm] {
		t.Fatalf("sent = %v", out.sent)
	}
	if out.statuses[0] != flow.StatusSchedule {
		t.Errorf("status = %q", out.statuses[0])
	}
	if got := st.states[7]; got.FlowStep != models.StepScheduleConfirm || got.ShiftChoice == "" {
		t.Errorf("state = %+v", got)
	}
	if len(reminders.cleared) != 1 || reminders.cleared[0] != 7 {
		t.Errorf("cleared = %v", reminders.cleared)
	}
	if types := st.eventTypes(); len(types) != 1 || types[0] != models.EventTypeRowUpsert {
		t.Errorf("events = %v (want one last_in upsert)", types)
	}
}

func TestProcessTurnPausedPeerSilent(t *testing.T) {
	e, st, _, out, _ := newTestEngine()
	st.pauses[7] = store.PauseRecord{PeerID: 7, Status: models.PauseStatusPaused}

	e.handleMessage(context.Background(), inbound(7, "привіт"))

	if len(out.sent) != 0 {
		t.Errorf("paused peer must get no replies: %v", out.sent)
	}
}

func TestProcessTurnQuestionOpensGate(t *testing.T) {
	e, st, _, out, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleShiftWait
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "а яка оплата?"))

	if len(out.sent) != 2 {
		t.Fatalf("sent = %v (want answer + gate confirm)", out.sent)
	}
	if out.sent[0] != "Відповідь." || out.sent[1] != flow.DefaultTemplates[models.MsgGateConfirm] {
		t.Errorf("sent = %v", out.sent)
	}
	got := st.states[7]
	if !got.QAGateActive || got.QAGateStep != models.StepScheduleShiftWait {
		t.Errorf("state = %+v", got)
	}
	// last_in upsert plus the question log journal line.
	if types := st.eventTypes(); len(types) != 2 || types[1] != models.EventTypeJournalAppend {
		t.Errorf("events = %v", types)
	}
}

func TestQuestionAtScreeningKeepsAnswerSlots(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScreeningWait
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "чи можна з 16 років?"))

	got := st.states[7]
	if !got.QAGateActive {
		t.Fatal("question must open the gate")
	}
	if len(got.ScreeningAnswers) != 0 {
		t.Errorf("screening answers = %v, question text must not fill answer slots", got.ScreeningAnswers)
	}
	if got.FlowStep != models.StepScreeningWait || got.RejectedByAge != models.AgeBucketNone {
		t.Errorf("state = %+v, a question must not advance or reject", got)
	}
}

func TestAckResumeAtScreeningKeepsAnswerSlots(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScreeningWait
	state.QAGateActive = true
	state.QAGateStep = models.StepScreeningWait
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "зрозуміло"))

	got := st.states[7]
	if got.QAGateActive {
		t.Fatal("acknowledgment must close the gate")
	}
	if len(got.ScreeningAnswers) != 0 {
		t.Errorf("screening answers = %v, the gate-closing ack must not fill answer slots", got.ScreeningAnswers)
	}
}

func TestGateTrafficNeverAgeRejects(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScreeningWait
	st.states[7] = state

	// A lead who only asks questions and acknowledges the answers. The
	// first question carries a standalone two-digit number.
	turns := []string{
		"чи можна з 16 років?",
		"зрозуміло",
		"а який графік?",
		"добре",
		"дякую за інформацію",
	}
	for _, text := range turns {
		e.handleMessage(context.Background(), inbound(7, text))
	}

	got := st.states[7]
	if got.FlowStep != models.StepScreeningWait {
		t.Errorf("step = %v, gate traffic must not advance the funnel", got.FlowStep)
	}
	if got.RejectedByAge != models.AgeBucketNone || got.Paused {
		t.Errorf("state = %+v, question text must never trigger an age rejection", got)
	}
	// Only the closing plain-text turn counts as screening content.
	if len(got.ScreeningAnswers) != 1 || got.ScreeningAnswers[0] != "дякую за інформацію" {
		t.Errorf("screening answers = %v", got.ScreeningAnswers)
	}
}

func TestQuestionAtTestReviewKeepsAnswers(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepTestReview
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "а яка оплата?"))

	got := st.states[7]
	if len(got.TestAnswers) != 0 {
		t.Errorf("test answers = %v, question text must not merge into the test", got.TestAnswers)
	}
	if !got.QAGateActive {
		t.Error("question must open the gate")
	}
}

func TestProcessTurnProofForwardsAssets(t *testing.T) {
	e, st, transport, out, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleConfirm
	st.states[7] = state

	e.handleMessage(context.Background(), inbound(7, "так, підходить"))

	if len(out.sent) != 2 {
		t.Fatalf("sent = %v", out.sent)
	}
	if len(transport.forwards) != 3 {
		t.Fatalf("forwards = %v", transport.forwards)
	}
	if got := st.states[7]; got.FlowStep != models.StepTestReview {
		t.Errorf("step = %v", got.FlowStep)
	}
}

func TestDebounceSuppressesDuplicate(t *testing.T) {
	e, st, _, out, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleShiftWait
	st.states[7] = state

	msg := inbound(7, "денна")
	e.handleMessage(context.Background(), msg)
	msg.Time = msg.Time.Add(time.Second)
	e.handleMessage(context.Background(), msg)

	if len(out.sent) != 1 {
		t.Errorf("duplicate inside debounce window must be dropped: %v", out.sent)
	}
}

func TestHandleOutgoingEchoIgnored(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	e.tracker.Record(7, "msg-1")

	e.handleMessage(context.Background(), models.InboundMessage{PeerID: 7, MessageID: "msg-1", Text: "будь-що", Outgoing: true})

	if len(st.pauses) != 0 {
		t.Errorf("own echo must not toggle pause: %v", st.pauses)
	}
}

func TestHandleOutgoingOperatorTakeover(t *testing.T) {
	e, st, _, _, _ := newTestEngine()

	e.handleMessage(context.Background(), models.InboundMessage{PeerID: 7, MessageID: "manual-1", Text: "Добрий день, це оператор", Outgoing: true})

	rec := st.pauses[7]
	if rec.Status != models.PauseStatusPaused || rec.Reason != "operator_takeover" {
		t.Errorf("pause = %+v", rec)
	}
	if state := st.states[7]; !state.Paused || state.AutoReply {
		t.Errorf("state = %+v", state)
	}
}

func TestHandleOutgoingResumeWord(t *testing.T) {
	e, st, _, _, _ := newTestEngine()
	st.pauses[7] = store.PauseRecord{PeerID: 7, Status: models.PauseStatusPaused}
	paused := models.NewPeerRuntimeState(7)
	paused.Paused = true
	paused.AutoReply = false
	st.states[7] = paused

	e.handleMessage(context.Background(), models.InboundMessage{PeerID: 7, MessageID: "manual-2", Text: "+", Outgoing: true})

	if rec := st.pauses[7]; rec.Status != models.PauseStatusActive {
		t.Errorf("pause = %+v", rec)
	}
	if state := st.states[7]; state.Paused || !state.AutoReply {
		t.Errorf("state = %+v", state)
	}
}

func TestIngestLeadFirstContact(t *testing.T) {
	e, st, transport, out, _ := newTestEngine(WithLeadGroups([]models.PeerID{1000}))
	transport.entities["worker_kyiv"] = &models.Entity{PeerID: 55, Username: "worker_kyiv", FirstName: "Олена"}

	e.handleMessage(context.Background(), inbound(1000, "Шукаю роботу онлайн, пишіть @worker_kyiv"))

	if len(out.sent) != 2 {
		t.Fatalf("sent = %v (want contact + screening intro)", out.sent)
	}
	if out.sent[0] != flow.DefaultTemplates[models.MsgContact] {
		t.Errorf("first message = %q", out.sent[0])
	}
	if _, ok := st.states[55]; !ok {
		t.Error("lead state must be created")
	}
	if types := st.eventTypes(); len(types) != 1 || types[0] != models.EventTypeLeadIngest {
		t.Errorf("events = %v", types)
	}
	if !strings.Contains(st.events[0].PayloadJSON, "t.me/worker_kyiv") {
		t.Errorf("payload = %q, lead row must carry the chat link", st.events[0].PayloadJSON)
	}
}

func TestIngestLeadFallsBackToPhone(t *testing.T) {
	e, st, transport, out, _ := newTestEngine(WithLeadGroups([]models.PeerID{1000}))
	transport.entities["+380671234567"] = &models.Entity{PeerID: 58, FirstName: "Ірина"}

	// The handle does not resolve, the phone in the same post does.
	e.handleMessage(context.Background(), inbound(1000, "пишіть @ghost_handle або +38 (067) 123-45-67"))

	if len(out.sent) != 2 {
		t.Fatalf("sent = %v (phone fallback must open the funnel)", out.sent)
	}
	if _, ok := st.states[58]; !ok {
		t.Error("lead state must be created for the phone-resolved peer")
	}
}

func TestIngestLeadSkipsKnownPeer(t *testing.T) {
	e, st, transport, out, _ := newTestEngine(WithLeadGroups([]models.PeerID{1000}))
	transport.entities["worker_kyiv"] = &models.Entity{PeerID: 55, Username: "worker_kyiv"}
	st.states[55] = models.NewPeerRuntimeState(55)

	e.handleMessage(context.Background(), inbound(1000, "пишіть @worker_kyiv"))

	if len(out.sent) != 0 {
		t.Errorf("known peer must not be re-contacted: %v", out.sent)
	}
}

func TestIngestLeadSkipsBots(t *testing.T) {
	e, _, transport, out, _ := newTestEngine(WithLeadGroups([]models.PeerID{1000}))
	transport.entities["promo_robot"] = &models.Entity{PeerID: 56, Username: "promo_robot", IsBot: true}

	e.handleMessage(context.Background(), inbound(1000, "контакт @promo_robot"))

	if len(out.sent) != 0 {
		t.Errorf("bots must be skipped: %v", out.sent)
	}
}

func TestFireGateReminderOnce(t *testing.T) {
	e, st, _, out, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepScheduleShiftWait
	state.QAGateActive = true
	st.states[7] = state

	e.fireTimer(context.Background(), 7, models.TimerQAGateReminder)
	e.fireTimer(context.Background(), 7, models.TimerQAGateReminder)

	if len(out.sent) != 1 || out.sent[0] != flow.DefaultTemplates[models.MsgGateReminder] {
		t.Errorf("sent = %v (reminder must fire exactly once)", out.sent)
	}
	if !st.states[7].QAGateReminderSent {
		t.Error("reminder flag must be set")
	}
}

func TestFireVoiceTimeoutAdvances(t *testing.T) {
	e, st, _, out, _ := newTestEngine()
	state := models.NewPeerRuntimeState(7)
	state.FlowStep = models.StepVoiceWait
	state.VoiceStage = models.VoiceSent
	st.states[7] = state

	e.fireTimer(context.Background(), 7, models.TimerVoiceTimeout)

	if len(out.sent) != 2 {
		t.Fatalf("sent = %v (want schedule block + shift question)", out.sent)
	}
	got := st.states[7]
	if got.FlowStep != models.StepScheduleShiftWait || got.VoiceStage != models.VoiceAutoAdvanced {
		t.Errorf("state = %+v", got)
	}
}

func TestRuntimeBufferingOrder(t *testing.T) {
	r := NewRuntimeContext(time.Second)

	first := models.InboundMessage{PeerID: 1, MessageID: "a"}
	if !r.Begin(first) {
		t.Fatal("idle peer must be claimed")
	}
	if r.Begin(models.InboundMessage{PeerID: 1, MessageID: "b"}) {
		t.Fatal("busy peer must buffer")
	}
	if r.Begin(models.InboundMessage{PeerID: 1, MessageID: "c"}) {
		t.Fatal("busy peer must buffer")
	}
	if !r.Begin(models.InboundMessage{PeerID: 2, MessageID: "x"}) {
		t.Fatal("other peers are independent")
	}

	var order []string
	for {
		next, ok := r.Finish(1)
		if !ok {
			break
		}
		order = append(order, next.MessageID)
	}
	if strings.Join(order, ",") != "b,c" {
		t.Errorf("drain order = %v", order)
	}

	if !r.TryClaim(1) {
		t.Error("released peer must be claimable")
	}
	if r.TryClaim(1) {
		t.Error("claimed peer must reject TryClaim")
	}
}
