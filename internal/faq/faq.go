// Package faq answers candidate questions from a bounded knowledge
// corpus and records every asked question for operator review.
package faq

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// clusterKeyLimit caps the cluster key so similar long questions land in
// one bucket.
const clusterKeyLimit = 160

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// NormalizeQuestion lowercases, collapses whitespace and strips
// punctuation so near-identical questions compare equal.
func NormalizeQuestion(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(punctRe.ReplaceAllString(text, ""))
}

// ClusterKey derives the grouping key for a normalized question.
func ClusterKey(questionNorm string) string {
	runes := []rune(questionNorm)
	if len(runes) > clusterKeyLimit {
		return string(runes[:clusterKeyLimit])
	}
	return questionNorm
}

// LoadCorpus reads and concatenates the configured FAQ files. Missing or
// unreadable files are skipped, never fatal: an empty corpus only means
// the model will decline to answer.
func LoadCorpus(paths ...string) string {
	var chunks []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("FAQ corpus file unreadable", "path", path, "error", err)
			}
			continue
		}
		if chunk := strings.TrimSpace(string(data)); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return strings.Join(chunks, "\n\n")
}

// answerPreviewLimit caps the stored answer preview.
const answerPreviewLimit = 500

// QuestionLog is one recorded candidate question with the answer that
// was given, written to the CRM journal for curation.
type QuestionLog struct {
	CreatedAt      string        `json:"created_at"`
	PeerID         models.PeerID `json:"peer_id"`
	Step           string        `json:"step"`
	QuestionRaw    string        `json:"question_raw"`
	QuestionNorm   string        `json:"question_norm"`
	ClusterKey     string        `json:"cluster_key"`
	Count          int           `json:"count"`
	LastSeenAt     string        `json:"last_seen_at"`
	AnswerPreview  string        `json:"answer_preview"`
	ResolvedStatus string        `json:"resolved_status"`
}

// NewQuestionLog builds a log entry for a freshly asked question.
func NewQuestionLog(now time.Time, peerID models.PeerID, step models.FunnelStep, question, answer string) QuestionLog {
	norm := NormalizeQuestion(question)
	ts := now.Format(time.RFC3339)
	preview := answer
	if runes := []rune(preview); len(runes) > answerPreviewLimit {
		preview = string(runes[:answerPreviewLimit])
	}
	return QuestionLog{
		CreatedAt:      ts,
		PeerID:         peerID,
		Step:           string(step),
		QuestionRaw:    question,
		QuestionNorm:   norm,
		ClusterKey:     ClusterKey(norm),
		Count:          1,
		LastSeenAt:     ts,
		AnswerPreview:  preview,
		ResolvedStatus: "new",
	}
}

// HistoryEvent converts the log entry to a journal line.
func (q QuestionLog) HistoryEvent() models.HistoryEvent {
	return models.HistoryEvent{
		Timestamp: q.CreatedAt,
		PeerID:    q.PeerID,
		Actor:     models.ActorLead,
		Step:      q.Step,
		EventType: "faq_question",
		Text:      q.QuestionRaw,
		EventLog:  fmt.Sprintf("cluster=%s answer=%s", q.ClusterKey, q.AnswerPreview),
	}
}

// Service answers questions against the corpus through the AI
// capability.
type Service struct {
	corpus   string
	answerer Answerer
}

// Answerer is the AI capability consumed by the FAQ service.
type Answerer interface {
	AnswerFAQ(ctx context.Context, history []models.HistoryTurn, question, step, corpus string, detailed bool) (string, error)
}

// NewService builds an FAQ service over a preloaded corpus. answerer
// may be nil, in which case Answer always reports no answer.
func NewService(corpus string, answerer Answerer) *Service {
	return &Service{corpus: corpus, answerer: answerer}
}

// Answer composes an FAQ-bounded reply to a candidate question. An
// empty string means no usable answer; the caller falls back to the
// scripted text.
func (s *Service) Answer(ctx context.Context, history []models.HistoryTurn, question string, step models.FunnelStep, detailed bool) string {
	if s.answerer == nil || s.corpus == "" {
		return ""
	}
	text, err := s.answerer.AnswerFAQ(ctx, history, question, string(step), s.corpus, detailed)
	if err != nil {
		slog.Debug("FAQ answer failed, falling back to script", "error", err, "step", step)
		return ""
	}
	return strings.TrimSpace(text)
}
