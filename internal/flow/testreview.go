// Test-task answer merging and grading.
package flow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/recruitflow/recruitflow/internal/models"
)

// TestAnswerCount is how many test-task answers are expected.
const TestAnswerCount = 3

var (
	hoursRe   = regexp.MustCompile(`\b8\b\s*(?:год|час|ч\b|h\b|hour)?`)
	percentRe = regexp.MustCompile(`\d+\s*%`)
	hrWords   = []string{"hr", "звільн", "увольн", "кадр", "менеджер"}
)

// MergeTestAnswer places an inbound reply into the three-slot test
// answer sheet. Answers arrive across multiple turns in any order, so
// slots are detected heuristically: a percentage goes to answer 2, the
// 8-hours pattern to answer 1, HR/termination keywords to answer 3, and
// anything else to the first empty slot. An already-filled detected slot
// falls through to the first empty one rather than overwriting.
func MergeTestAnswer(state *models.PeerRuntimeState, text string) {
	if len(state.TestAnswers) < TestAnswerCount {
		grown := make([]string, TestAnswerCount)
		copy(grown, state.TestAnswers)
		state.TestAnswers = grown
	}
	slot := detectTestSlot(text)
	if slot < 0 || state.TestAnswers[slot] != "" {
		slot = firstEmptySlot(state.TestAnswers)
	}
	if slot < 0 {
		return
	}
	state.TestAnswers[slot] = strings.TrimSpace(text)
}

// TestComplete reports whether all test answer slots are filled.
func TestComplete(state models.PeerRuntimeState) bool {
	if len(state.TestAnswers) < TestAnswerCount {
		return false
	}
	for _, a := range state.TestAnswers[:TestAnswerCount] {
		if strings.TrimSpace(a) == "" {
			return false
		}
	}
	return true
}

// TestGrade is the result of grading the three answers against the fixed
// rubric.
type TestGrade struct {
	Correct int
	Total   int
	Details []string
}

// GradeTest grades the answer sheet: answer 1 must cite the 8-hour
// shift, answer 2 must give a percentage, answer 3 must route the case
// to HR. The rubric is keyword-based on purpose; it mirrors how the
// operators grade manually.
func GradeTest(answers []string) TestGrade {
	grade := TestGrade{Total: TestAnswerCount}
	get := func(i int) string {
		if i < len(answers) {
			return strings.ToLower(answers[i])
		}
		return ""
	}

	checks := []struct {
		name string
		pass bool
	}{
		{"hours", hoursRe.MatchString(get(0))},
		{"percent", percentRe.MatchString(get(1))},
		{"escalation", containsAnyWord(get(2), hrWords)},
	}
	for i, c := range checks {
		verdict := "wrong"
		if c.pass {
			grade.Correct++
			verdict = "ok"
		}
		grade.Details = append(grade.Details, fmt.Sprintf("a%d %s: %s", i+1, c.name, verdict))
	}
	return grade
}

func detectTestSlot(text string) int {
	t := strings.ToLower(text)
	switch {
	case percentRe.MatchString(t):
		return 1
	case hoursRe.MatchString(t):
		return 0
	case containsAnyWord(t, hrWords):
		return 2
	default:
		return -1
	}
}

func firstEmptySlot(answers []string) int {
	for i, a := range answers {
		if strings.TrimSpace(a) == "" {
			return i
		}
	}
	return -1
}

func containsAnyWord(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}
