// Package scoring turns answer selections into bounded per-question scores
// and aggregates them into a percentage. It is pure: no I/O, no clock.
package scoring

import (
	"fmt"
	"math"

	"quiz-attempt-service/internal/domain"
)

// SingleChoice scores 1 iff exactly one option was selected and it is
// correct. Any other cardinality (zero or several selections) scores 0.
func SingleChoice(selected, correct map[string]bool) float64 {
	if len(selected) != 1 {
		return 0
	}
	for id := range selected {
		if correct[id] {
			return 1
		}
	}
	return 0
}

// MultipleChoice awards partial credit: each correct pick earns one unit,
// each wrong pick subtracts one, floored at zero, normalized by the size of
// the correct set. The caller guarantees len(correct) >= 1.
func MultipleChoice(selected, correct map[string]bool) float64 {
	var hits, misses int
	for id := range selected {
		if correct[id] {
			hits++
		} else {
			misses++
		}
	}
	credit := hits - misses
	if credit <= 0 {
		return 0
	}
	return float64(credit) / float64(len(correct))
}

// Question dispatches on the question type and returns its score in [0,1].
// A catalog invariant violation (no correct options, or a single-choice
// question with several) fails the submission instead of scoring 0/0.
func Question(q domain.Question, selectedOptionIDs []string) (float64, error) {
	correct := q.CorrectOptionIDs()
	selected := make(map[string]bool, len(selectedOptionIDs))
	for _, id := range selectedOptionIDs {
		selected[id] = true
	}

	switch q.Type {
	case domain.QuestionSingle:
		if len(correct) != 1 {
			return 0, fmt.Errorf("%w: single-choice question %s has %d correct options", domain.ErrConfiguration, q.ID, len(correct))
		}
		return SingleChoice(selected, correct), nil
	case domain.QuestionMultiple:
		if len(correct) == 0 {
			return 0, fmt.Errorf("%w: multiple-choice question %s has no correct options", domain.ErrConfiguration, q.ID)
		}
		return MultipleChoice(selected, correct), nil
	default:
		return 0, fmt.Errorf("%w: question %s has unknown type %q", domain.ErrConfiguration, q.ID, q.Type)
	}
}

// Aggregate maps per-question scores to a percentage rounded to two decimal
// places, half away from zero. An empty list aggregates to 0.
func Aggregate(perQuestion []float64) float64 {
	if len(perQuestion) == 0 {
		return 0
	}
	var sum float64
	for _, s := range perQuestion {
		sum += s
	}
	return round2(sum / float64(len(perQuestion)) * 100)
}

// IsPassing applies the inclusive pass boundary: a score exactly equal to
// the threshold passes.
func IsPassing(score, passingScore float64) bool {
	return score >= passingScore
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
