package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/recruitflow/recruitflow/internal/models"
)

func TestClassifyQuestionMarkAlwaysWins(t *testing.T) {
	inputs := []string{
		"Який графік?",
		"не цікаво?",
		"ок?",
		"?",
		"stop?",
	}
	for _, text := range inputs {
		if got := Classify(text, ""); got != models.IntentQuestion {
			t.Errorf("Classify(%q, no step) = %s, want question", text, got)
		}
		if got := Classify(text, models.StepScheduleShiftWait); got != models.IntentQuestion {
			t.Errorf("Classify(%q, step) = %s, want question", text, got)
		}
	}
}

func TestClassifyInterrogativeWord(t *testing.T) {
	for _, text := range []string{"Який графік роботи", "когда можно начать", "скільки платите"} {
		if got := Classify(text, ""); got != models.IntentQuestion {
			t.Errorf("Classify(%q) = %s, want question", text, got)
		}
	}
}

func TestClassifyStopPhrases(t *testing.T) {
	for _, text := range []string{"не цікаво", "уже нашла работу", "не пишіть мені", "not interested"} {
		if got := Classify(text, ""); got != models.IntentStop {
			t.Errorf("Classify(%q) = %s, want stop", text, got)
		}
	}
}

func TestClassifyNoMoreQuestionsIsNotStop(t *testing.T) {
	// "no more questions" acknowledgments contain no stop phrase, and the
	// neutral-ack carve-out keeps them out of stop territory entirely.
	for _, text := range []string{"питань немає, дякую", "все зрозуміло", "ок, зрозуміло"} {
		if got := Classify(text, models.StepCompanyIntro); got != models.IntentAckContinue {
			t.Errorf("Classify(%q) = %s, want ack_continue", text, got)
		}
	}
}

func TestClassifyContinuePhrases(t *testing.T) {
	for _, text := range []string{"так", "готова перейти", "поїхали", "актуально"} {
		if got := Classify(text, ""); got != models.IntentAckContinue {
			t.Errorf("Classify(%q) = %s, want ack_continue", text, got)
		}
	}
}

func TestClassifyBareOkBoundary(t *testing.T) {
	if got := Classify("ок", models.StepScheduleShiftWait); got != models.IntentAckContinue {
		t.Errorf("ок with step = %s, want ack_continue", got)
	}
	if got := Classify("ок", ""); got != models.IntentOther {
		t.Errorf("ок without step = %s, want other", got)
	}
}

func TestClassifyShortNeutralAckNeedsStep(t *testing.T) {
	// A bare short ack is only meaningful when funnel position is known.
	if got := Classify("зрозуміло, дякую", models.StepCompanyIntro); got != models.IntentAckContinue {
		t.Errorf("with step: got %s, want ack_continue", got)
	}
	if got := Classify("дякую вам", ""); got != models.IntentOther {
		t.Errorf("without step: got %s, want other", got)
	}
}

func TestClassifyOther(t *testing.T) {
	for _, text := range []string{"мені 25 років", "Олена, Київ", ""} {
		if got := Classify(text, models.StepScreeningWait); got == models.IntentStop {
			t.Errorf("Classify(%q) = stop, want non-stop", text)
		}
	}
}

type stubAI struct {
	intent models.Intent
	err    error
	called bool
}

func (s *stubAI) ClassifyIntent(ctx context.Context, history []models.HistoryTurn, text string) (models.Intent, error) {
	s.called = true
	return s.intent, s.err
}

func TestClassifierAIFallbackOnlyForOther(t *testing.T) {
	ai := &stubAI{intent: models.IntentStop}
	c := NewClassifier(ai)

	got := c.Classify(context.Background(), "так", models.StepCompanyIntro, nil)
	if got != models.IntentAckContinue {
		t.Fatalf("got %s, want ack_continue", got)
	}
	if ai.called {
		t.Error("AI called for a locally classified reply")
	}

	got = c.Classify(context.Background(), "подумаю ще", "", nil)
	if got != models.IntentStop {
		t.Fatalf("got %s, want AI verdict stop", got)
	}
	if !ai.called {
		t.Error("AI not called for OTHER")
	}
}

func TestClassifierAIFailureKeepsOther(t *testing.T) {
	c := NewClassifier(&stubAI{err: errors.New("timeout")})
	if got := c.Classify(context.Background(), "подумаю ще", "", nil); got != models.IntentOther {
		t.Fatalf("got %s, want other on AI failure", got)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  Так,   ДЯКУЮ  "); got != "так, дякую" {
		t.Errorf("NormalizeText = %q", got)
	}
	if got := NormalizeText(""); got != "" {
		t.Errorf("NormalizeText empty = %q", got)
	}
}
