// Screening answer accumulation and age-bucket extraction.
//
// The heuristics are deliberately simple and kept compatible with the
// running script: regex-extracted two-digit numbers for age, line-based
// accumulation for the three screening fields.
package flow

import (
	"regexp"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/models"
)

// ScreeningAnswerCount is how many structured answers the screening step
// collects before the engine evaluates them.
const ScreeningAnswerCount = 3

var (
	ageNumberRe = regexp.MustCompile(`\b(\d{1,2})\b`)
	ageWordRe   = regexp.MustCompile(`рок|років|лет|год[аіо]?в?|вік|возраст|years?`)
)

// AppendScreeningAnswers folds an inbound message into the accumulated
// screening answers. A multi-line message contributes one answer per
// non-empty line, capped at the expected answer count.
func AppendScreeningAnswers(state *models.PeerRuntimeState, text string, now time.Time) {
	if state.ScreeningStartedAt.IsZero() {
		state.ScreeningStartedAt = now
	}
	state.ScreeningLastAt = now
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(state.ScreeningAnswers) >= ScreeningAnswerCount {
			return
		}
		state.ScreeningAnswers = append(state.ScreeningAnswers, line)
	}
}

// ScreeningComplete reports whether all expected answers are collected.
func ScreeningComplete(state models.PeerRuntimeState) bool {
	return len(state.ScreeningAnswers) >= ScreeningAnswerCount
}

// AgeBucket extracts an age from the screening answers and buckets it.
// The age-bearing line is the first one mentioning an age word, falling
// back to the first line carrying a standalone one- or two-digit number.
// No extractable age yields "unknown", which the engine treats as
// passing: a brittle parse must not reject a live lead.
func AgeBucket(answers []string) string {
	line := ""
	for _, a := range answers {
		if ageWordRe.MatchString(strings.ToLower(a)) && ageNumberRe.MatchString(a) {
			line = a
			break
		}
	}
	if line == "" {
		for _, a := range answers {
			if ageNumberRe.MatchString(a) {
				line = a
				break
			}
		}
	}
	if line == "" {
		return models.AgeBucketUnknown
	}
	m := ageNumberRe.FindStringSubmatch(line)
	age := 0
	for _, ch := range m[1] {
		age = age*10 + int(ch-'0')
	}
	switch {
	case age < 18:
		return models.AgeBucketUnder18
	case age > 40:
		return models.AgeBucketOver40
	default:
		return models.AgeBucketOK
	}
}
