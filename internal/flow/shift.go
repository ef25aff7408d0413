// Shift-choice token recognition for the schedule step.
package flow

import "strings"

// Shift choice tokens stored in peer state.
const (
	ShiftDay   = "day"
	ShiftNight = "night"
	ShiftAny   = "any"
)

// ParseShiftChoice recognizes a shift preference in a free-text reply.
// Returns "" when no token is recognized.
func ParseShiftChoice(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return ""
	}
	switch t {
	case "1":
		return ShiftDay
	case "2":
		return ShiftNight
	}
	switch {
	case containsAnyWord(t, []string{"денн", "дневн", "день", "ден."}):
		return ShiftDay
	case containsAnyWord(t, []string{"нічн", "ночн", "ніч", "ночь"}):
		return ShiftNight
	case containsAnyWord(t, []string{"будь-яка", "будь яка", "любая", "все одно", "всё равно", "без різниці"}):
		return ShiftAny
	default:
		return ""
	}
}
