package intent

import "testing"

func TestFallbackFormatChoice(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"хочу відео", FormatVideo},
		{"краще мінікурс", FormatMiniCourse},
		{"і відео і курс", FormatBoth},
		{"мені все одно", FormatUnknown},
		{"video please", FormatVideo},
		{"тренажер", FormatMiniCourse},
	}
	for _, c := range cases {
		if got := FallbackFormatChoice(c.text); got != c.want {
			t.Errorf("FallbackFormatChoice(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestWantsVideo(t *testing.T) {
	if !WantsVideo("надішліть відео") {
		t.Error("expected video request detected")
	}
	if WantsVideo("краще текстом") {
		t.Error("unexpected video request")
	}
}

func TestStripQuestionTrail(t *testing.T) {
	got := StripQuestionTrail("Дякую за відповідь. Чи зручно вам почати завтра?")
	if got != "Дякую за відповідь." {
		t.Errorf("StripQuestionTrail = %q", got)
	}

	// A funnel keyword also ends the reply.
	got = StripQuestionTrail("Все добре. Далі розкажу про графік роботи.")
	if got != "Все добре." {
		t.Errorf("StripQuestionTrail keyword = %q", got)
	}

	// If everything would be stripped, the original survives.
	got = StripQuestionTrail("Який формат зручніше?")
	if got != "Який формат зручніше?" {
		t.Errorf("StripQuestionTrail all-stripped = %q", got)
	}
}

func TestShouldAskQuestion(t *testing.T) {
	clarify := "Чи все зрозуміло?"
	shift := "Яка зміна вам зручна?"
	format := "Який формат зручніше?"

	if ShouldAskQuestion("Розповів про компанію. Чи все зрозуміло по обов'язках?", clarify, clarify, shift, format) {
		t.Error("clarify question should be suppressed when already covered")
	}
	if !ShouldAskQuestion("Розповів про компанію.", clarify, clarify, shift, format) {
		t.Error("clarify question should be asked")
	}
	if ShouldAskQuestion("Напишіть, яка зміна вам зручна.", shift, clarify, shift, format) {
		t.Error("shift question should be suppressed")
	}
	if !ShouldAskQuestion("", format, clarify, shift, format) {
		t.Error("empty sent text should never suppress")
	}
}

func TestExtractContact(t *testing.T) {
	if u, p := ExtractContact("новий лід @ivanov_hr, терміново"); u != "ivanov_hr" || p != "" {
		t.Errorf("username extract = %q/%q", u, p)
	}
	if u, p := ExtractContact("тел +38 (067) 123-45-67"); u != "" || p != "+380671234567" {
		t.Errorf("phone extract = %q/%q", u, p)
	}
	if u, p := ExtractContact("@ivanov_hr або +38 (067) 123-45-67"); u != "ivanov_hr" || p != "+380671234567" {
		t.Errorf("both contacts expected, got %q/%q", u, p)
	}
	if u, p := ExtractContact("просто текст"); u != "" || p != "" {
		t.Errorf("no contact expected, got %q/%q", u, p)
	}
}
