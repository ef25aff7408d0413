package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/recruitflow/recruitflow/internal/models"
)

// mockSender implements sender for testing.
type mockSender struct {
	sent    []string
	sendErr error
}

func (m *mockSender) SendText(_ context.Context, _ models.PeerID, text string) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, text)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *mockSender) ResolveEntity(context.Context, string) (*models.Entity, error) {
	return &models.Entity{PeerID: 1}, nil
}

func (m *mockSender) FindGroup(context.Context, string) (models.PeerID, error) {
	return 42, nil
}

func TestSendMessageRecordsHistory(t *testing.T) {
	mock := &mockSender{}
	s := NewClientService(mock)

	id, err := s.SendMessage(context.Background(), 7, "привіт")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("id = %q", id)
	}

	turns, err := s.RecentHistory(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != models.ActorBot || turns[0].Text != "привіт" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestSendMessageErrorNotRecorded(t *testing.T) {
	mock := &mockSender{sendErr: errors.New("offline")}
	s := NewClientService(mock)

	if _, err := s.SendMessage(context.Background(), 7, "x"); err == nil {
		t.Fatal("expected error")
	}
	turns, _ := s.RecentHistory(context.Background(), 7, 10)
	if len(turns) != 0 {
		t.Errorf("failed send must not enter history: %+v", turns)
	}
}

func TestForwardContentValidatesLink(t *testing.T) {
	mock := &mockSender{}
	s := NewClientService(mock)

	if err := s.ForwardContent(context.Background(), 7, "not a link"); err == nil {
		t.Error("invalid link must fail before send")
	}
	if len(mock.sent) != 0 {
		t.Errorf("sent = %v", mock.sent)
	}

	if err := s.ForwardContent(context.Background(), 7, "https://t.me/assets_archive/15"); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Errorf("sent = %v", mock.sent)
	}
}

func TestHistoryBookBounded(t *testing.T) {
	h := newHistoryBook()
	for i := 0; i < historyDepth+25; i++ {
		h.record(1, models.ActorLead, fmt.Sprintf("m%d", i))
	}
	turns := h.recent(1, 0)
	if len(turns) != historyDepth {
		t.Fatalf("depth = %d, want %d", len(turns), historyDepth)
	}
	if turns[len(turns)-1].Text != fmt.Sprintf("m%d", historyDepth+24) {
		t.Errorf("latest turn = %+v", turns[len(turns)-1])
	}

	limited := h.recent(1, 5)
	if len(limited) != 5 {
		t.Errorf("limited = %d", len(limited))
	}

	h.clear(1)
	if len(h.recent(1, 0)) != 0 {
		t.Error("clear must drop turns")
	}
}

func TestParseContentLink(t *testing.T) {
	ref, err := ParseContentLink("https://t.me/assets_archive/15")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.ChatRef != "assets_archive" || ref.MessageID != 15 || ref.Private {
		t.Errorf("ref = %+v", ref)
	}

	ref, err = ParseContentLink("  https://t.me/c/123456789/42  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.ChatRef != "-100123456789" || ref.MessageID != 42 || !ref.Private {
		t.Errorf("private ref = %+v", ref)
	}

	for _, bad := range []string{"", "https://example.com/x/1", "t.me/abc"} {
		if _, err := ParseContentLink(bad); err == nil {
			t.Errorf("ParseContentLink(%q) must fail", bad)
		}
	}
}

func TestContentLinksValidate(t *testing.T) {
	links := ContentLinks{
		models.ContentVoice:    "https://t.me/assets/1",
		models.ContentPhoto1:   "https://t.me/assets/2",
		models.ContentPhoto2:   "https://t.me/assets/3",
		models.ContentTestTask: "https://t.me/assets/4",
		models.ContentForm:     "https://t.me/assets/5",
	}
	if missing := links.Validate(); len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}

	delete(links, models.ContentVoice)
	links[models.ContentForm] = "  "
	missing := links.Validate()
	if len(missing) != 2 {
		t.Errorf("missing = %v", missing)
	}
}
