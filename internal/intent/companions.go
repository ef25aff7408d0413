// Package intent companion classifiers: format choice, redundant-question
// suppression, question-trail stripping and lead contact extraction.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/recruitflow/recruitflow/internal/models"
)

// FormatChoice values for the content-format question.
const (
	FormatVideo      = "video"
	FormatMiniCourse = "mini_course"
	FormatBoth       = "both"
	FormatUnknown    = "unknown"
)

var (
	videoWords       = []string{"відео", "видео"}
	formatVideoWords = []string{"відео", "видео", "video"}
	formatMiniWords  = []string{"мінікурс", "миникурс", "mini-course", "mini course", "курс", "тренажер", "сайт"}

	funnelKeywords = []string{"зміна", "графік", "формат", "навчання", "анкета"}

	sentenceSplitRe = regexp.MustCompile(`(?:[.!?])\s+`)

	usernameRe = regexp.MustCompile(`(?:@|t\.me/)([A-Za-z0-9_]{5,})`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{9,}\d`)
	nonDigitRe = regexp.MustCompile(`[^\d+]`)
)

// FallbackFormatChoice classifies the preferred content format from
// keyword sets alone.
func FallbackFormatChoice(text string) string {
	t := NormalizeText(text)
	hasVideo := containsAny(t, formatVideoWords)
	hasMini := containsAny(t, formatMiniWords)
	switch {
	case hasVideo && hasMini:
		return FormatBoth
	case hasVideo:
		return FormatVideo
	case hasMini:
		return FormatMiniCourse
	default:
		return FormatUnknown
	}
}

// WantsVideo reports whether the reply asks for the video format.
func WantsVideo(text string) bool {
	return containsAny(NormalizeText(text), videoWords)
}

// AIFormatClassifier resolves ambiguous format replies.
type AIFormatClassifier interface {
	ClassifyFormatChoice(ctx context.Context, history []models.HistoryTurn, text string) (string, error)
}

// FormatChoice classifies with keywords first, escalating to the AI
// capability only for genuinely ambiguous replies. A neutral ack is not
// ambiguous: the lead simply has no preference yet.
func FormatChoice(ctx context.Context, ai AIFormatClassifier, history []models.HistoryTurn, text string) string {
	fallback := FallbackFormatChoice(text)
	if fallback != FormatUnknown {
		return fallback
	}
	if IsNeutralAck(text) || IsContinuePhrase(text) {
		return FormatUnknown
	}
	if ai == nil {
		return fallback
	}
	choice, err := ai.ClassifyFormatChoice(ctx, history, text)
	if err != nil {
		slog.Debug("format choice AI fallback failed", "error", err)
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case FormatVideo, FormatMiniCourse, FormatBoth:
		return strings.ToLower(strings.TrimSpace(choice))
	default:
		return fallback
	}
}

// StripQuestionTrail truncates text at the first sentence that contains a
// question mark or a funnel keyword. Used on AI-composed replies so the
// model never asks the next funnel question ahead of the script. If
// everything would be stripped, the original text is returned unchanged.
func StripQuestionTrail(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	var cleaned []string
	for _, sentence := range splitSentences(trimmed) {
		if strings.Contains(sentence, "?") {
			break
		}
		lower := strings.ToLower(sentence)
		if containsAny(lower, funnelKeywords) {
			break
		}
		cleaned = append(cleaned, sentence)
	}
	out := strings.TrimSpace(strings.Join(cleaned, " "))
	if out == "" {
		return trimmed
	}
	return out
}

// ShouldAskQuestion suppresses a scripted clarifying question when the
// bot's own last outgoing text already covered it.
func ShouldAskQuestion(sentText, questionText, clarifyText, shiftQuestionText, formatQuestionText string) bool {
	if sentText == "" {
		return true
	}
	sentNorm := NormalizeText(sentText)
	questionNorm := NormalizeText(questionText)
	if questionNorm != "" && strings.Contains(sentNorm, questionNorm) {
		return false
	}
	if questionText == clarifyText {
		if strings.Contains(sentNorm, "чи все зрозуміло") || strings.Contains(sentNorm, "можливо") {
			return false
		}
	}
	if questionText == shiftQuestionText {
		if strings.Contains(sentNorm, "зміна") && strings.Contains(sentNorm, "зруч") {
			return false
		}
	}
	if questionText == formatQuestionText {
		if strings.Contains(sentNorm, "формат") && strings.Contains(sentNorm, "зруч") {
			return false
		}
	}
	return true
}

// ExtractContact pulls the username and phone number out of a
// lead-group post. Both are returned when the post carries both, so the
// caller can fall back to the phone when the username does not resolve.
func ExtractContact(text string) (username, phone string) {
	if text == "" {
		return "", ""
	}
	if m := usernameRe.FindStringSubmatch(text); m != nil {
		username = m[1]
	}
	if m := phoneRe.FindString(text); m != "" {
		phone = nonDigitRe.ReplaceAllString(m, "")
	}
	return username, phone
}

// splitSentences splits on sentence-final punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		loc := sentenceSplitRe.FindStringIndex(rest)
		if loc == nil {
			if rest != "" {
				out = append(out, rest)
			}
			return out
		}
		// Keep the punctuation rune, drop the trailing whitespace.
		out = append(out, rest[:loc[0]+1])
		rest = rest[loc[1]:]
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
