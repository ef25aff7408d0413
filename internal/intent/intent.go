// Package intent classifies inbound free-text replies into coarse intents.
//
// Deterministic local rules run first and are authoritative when they
// match; fuzzy cases may escalate to an optional AI classifier. The
// phrase sets cover the two working languages of the script (Ukrainian
// and Russian) and are kept literal for behavior compatibility with the
// running conversation script.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/recruitflow/recruitflow/internal/models"
)

var stopPhrases = []string{
	"не підход",
	"не подходит",
	"не цікаво",
	"не интересно",
	"не актуаль",
	"не хочу",
	"не буду",
	"не готов",
	"не готова",
	"не хочу працювати",
	"не хочу работать",
	"не буду працювати",
	"не буду работать",
	"вже знайш",
	"уже наш",
	"вже маю роботу",
	"уже нашла работу",
	"уже нашел работу",
	"не пишіть",
	"не пишите",
	"не турбуйте",
	"не беспокойте",
	"не потрібно",
	"не нужно",
	"не интересует",
	"не цікавить",
	"не зможу",
	"не смогу",
	"шукаю додатковий заробіток",
	"ищу дополнительный заработок",
	"підробіток",
	"подработ",
	"отпис",
	"stop",
	"unsubscribe",
	"not interested",
	"no thanks",
	"no thank you",
}

var continuePhrases = []string{
	"так",
	"да",
	"ок",
	"добре",
	"хорошо",
	"готов",
	"готова",
	"готовий",
	"готова перейти",
	"продовжуйте",
	"продолжайте",
	"далі",
	"дальше",
	"поїхали",
	"погнали",
	"актуально",
	"цікаво",
	"интересно",
	"питань нема",
	"питань немає",
	"нема питань",
	"немає питань",
	"все зрозуміло",
	"усе зрозуміло",
	"все ясно",
	"усе ясно",
}

// neutralAckPhrases is the short-acknowledgment vocabulary. These are
// explicitly carved out of stop detection so "no more questions, thanks"
// never reads as a withdrawal.
var neutralAckPhrases = []string{
	"питань нема",
	"питань немає",
	"нема питань",
	"немає питань",
	"все зрозуміло",
	"усе зрозуміло",
	"все ясно",
	"усе ясно",
	"зрозуміло",
	"зрозуміло, дякую",
	"ок, зрозуміло",
	"ок зрозуміло",
	"ок",
}

var (
	interrogativeRe = regexp.MustCompile(`^(коли|де|як|який|яка|які|що|чи|скільки|когда|где|как|какой|какая|какие|что|сколько|почему|зачем|можно)\b`)
	noQuestionsRe   = regexp.MustCompile(`пит\w*\s+н\w*ма`)
	shortTopicRe    = regexp.MustCompile(`^[аи]\s+\p{L}+$`)
)

// NormalizeText lowercases, trims and collapses whitespace.
func NormalizeText(text string) string {
	raw := strings.ToLower(strings.TrimSpace(text))
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

// HasQuestion reports whether the text reads as a question: an explicit
// question mark, a leading interrogative word, or a short "and <topic>"
// probe without punctuation.
func HasQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	if interrogativeRe.MatchString(t) {
		return true
	}
	return shortTopicRe.MatchString(t) && !strings.ContainsAny(text, ".!")
}

// IsStopPhrase reports whether the text expresses disinterest or
// withdrawal. Questions and neutral acknowledgments never count.
func IsStopPhrase(text string) bool {
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	if HasQuestion(text) {
		return false
	}
	for _, phrase := range neutralAckPhrases {
		if strings.Contains(t, phrase) {
			return false
		}
	}
	for _, phrase := range stopPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// IsContinuePhrase reports whether the text is an affirmative/continue
// acknowledgment.
func IsContinuePhrase(text string) bool {
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	if noQuestionsRe.MatchString(t) {
		return true
	}
	for _, phrase := range continuePhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// IsNeutralAck reports whether the text is a neutral short acknowledgment
// drawn from the fixed short-ack vocabulary.
func IsNeutralAck(text string) bool {
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	if noQuestionsRe.MatchString(t) {
		return true
	}
	for _, phrase := range neutralAckPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// Classify maps free text and the last known funnel step to an intent
// using local rules only. The short neutral-ack rule applies only when a
// last step is known: without funnel position a bare "ок" stays OTHER.
func Classify(text string, lastStep models.FunnelStep) models.Intent {
	if HasQuestion(text) {
		return models.IntentQuestion
	}
	if IsStopPhrase(text) {
		return models.IntentStop
	}
	// Neutral short acks only count as continue when funnel position is
	// known; stronger continue phrases count everywhere.
	if IsNeutralAck(text) {
		if lastStep != "" && len(strings.Fields(NormalizeText(text))) <= 3 {
			return models.IntentAckContinue
		}
		return models.IntentOther
	}
	if IsContinuePhrase(text) {
		return models.IntentAckContinue
	}
	return models.IntentOther
}

// AIClassifier escalates fuzzy replies to an external model. Any error
// leaves the local verdict standing.
type AIClassifier interface {
	ClassifyIntent(ctx context.Context, history []models.HistoryTurn, text string) (models.Intent, error)
}

// Classifier combines the local rules with an optional AI fallback.
type Classifier struct {
	ai AIClassifier
}

// NewClassifier creates a Classifier. ai may be nil, in which case the
// local rules are final.
func NewClassifier(ai AIClassifier) *Classifier {
	return &Classifier{ai: ai}
}

// Classify runs local rules first; when they yield OTHER and an AI
// classifier is configured, it delegates with recent history. On AI
// failure the local OTHER stands.
func (c *Classifier) Classify(ctx context.Context, text string, lastStep models.FunnelStep, history []models.HistoryTurn) models.Intent {
	local := Classify(text, lastStep)
	if local != models.IntentOther || c.ai == nil {
		return local
	}
	verdict, err := c.ai.ClassifyIntent(ctx, history, text)
	if err != nil {
		slog.Debug("intent AI fallback failed, keeping local verdict", "error", err)
		return models.IntentOther
	}
	switch verdict {
	case models.IntentQuestion, models.IntentAckContinue, models.IntentStop, models.IntentOther:
		return verdict
	default:
		return models.IntentOther
	}
}
