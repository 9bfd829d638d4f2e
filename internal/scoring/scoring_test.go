package scoring

import (
	"errors"
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestSingleChoice(t *testing.T) {
	correct := map[string]bool{"a": true}

	if got := SingleChoice(map[string]bool{"a": true}, correct); got != 1 {
		t.Fatalf("exact correct pick: expected 1, got %v", got)
	}
	if got := SingleChoice(map[string]bool{"b": true}, correct); got != 0 {
		t.Fatalf("wrong pick: expected 0, got %v", got)
	}
	if got := SingleChoice(map[string]bool{}, correct); got != 0 {
		t.Fatalf("no pick: expected 0, got %v", got)
	}
	// Two selections on a single-choice question is malformed client state.
	if got := SingleChoice(map[string]bool{"a": true, "b": true}, correct); got != 0 {
		t.Fatalf("multiple picks: expected 0, got %v", got)
	}
}

func TestMultipleChoicePartialCredit(t *testing.T) {
	correct := map[string]bool{"a": true, "b": true, "c": true, "d": true}

	if got := MultipleChoice(correct, correct); got != 1 {
		t.Fatalf("full correct set: expected 1, got %v", got)
	}
	if got := MultipleChoice(map[string]bool{}, correct); got != 0 {
		t.Fatalf("empty selection: expected 0, got %v", got)
	}
	// 2 correct picks, 1 wrong: (2-1)/4 = 0.25.
	if got := MultipleChoice(map[string]bool{"a": true, "b": true, "x": true}, correct); got != 0.25 {
		t.Fatalf("partial credit: expected 0.25, got %v", got)
	}
}

func TestMultipleChoiceNeverNegative(t *testing.T) {
	correct := map[string]bool{"a": true, "b": true}
	selected := map[string]bool{"x": true, "y": true, "z": true}
	if got := MultipleChoice(selected, correct); got != 0 {
		t.Fatalf("all-wrong selection must floor at 0, got %v", got)
	}
}

func TestQuestionDispatchesByType(t *testing.T) {
	single := domain.Question{
		ID:   "q1",
		Type: domain.QuestionSingle,
		Options: []domain.Option{
			{ID: "a", Correct: true},
			{ID: "b"},
		},
	}
	multi := domain.Question{
		ID:   "q2",
		Type: domain.QuestionMultiple,
		Options: []domain.Option{
			{ID: "x", Correct: true},
			{ID: "y", Correct: true},
			{ID: "z"},
		},
	}

	if got, err := Question(single, []string{"a"}); err != nil || got != 1 {
		t.Fatalf("single: expected 1, got %v err=%v", got, err)
	}
	if got, err := Question(multi, []string{"x"}); err != nil || got != 0.5 {
		t.Fatalf("multi: expected 0.5, got %v err=%v", got, err)
	}
}

func TestQuestionRejectsBrokenCatalog(t *testing.T) {
	broken := domain.Question{
		ID:      "q1",
		Type:    domain.QuestionMultiple,
		Options: []domain.Option{{ID: "a"}, {ID: "b"}},
	}
	if _, err := Question(broken, []string{"a"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	twoCorrect := domain.Question{
		ID:      "q2",
		Type:    domain.QuestionSingle,
		Options: []domain.Option{{ID: "a", Correct: true}, {ID: "b", Correct: true}},
	}
	if _, err := Question(twoCorrect, []string{"a"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for ambiguous single, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	if got := Aggregate([]float64{1, 1, 1}); got != 100 {
		t.Fatalf("all full credit: expected 100, got %v", got)
	}
	if got := Aggregate([]float64{0, 0}); got != 0 {
		t.Fatalf("all zero: expected 0, got %v", got)
	}
	if got := Aggregate(nil); got != 0 {
		t.Fatalf("empty list: expected 0, got %v", got)
	}
	// 1/3 over one question rounds to 33.33.
	if got := Aggregate([]float64{1.0 / 3.0}); got != 33.33 {
		t.Fatalf("rounding: expected 33.33, got %v", got)
	}
	// Mixed scenario from a single correct + half-credit multi.
	if got := Aggregate([]float64{1, 0.5}); got != 75 {
		t.Fatalf("mixed: expected 75, got %v", got)
	}
}

func TestIsPassingInclusiveBoundary(t *testing.T) {
	if !IsPassing(70, 70) {
		t.Fatalf("score equal to threshold must pass")
	}
	if IsPassing(69.99, 70) {
		t.Fatalf("score below threshold must fail")
	}
}
