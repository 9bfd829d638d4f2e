package app

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// scoreBuckets are the fixed distribution slices, inclusive on both ends.
// An attempt lands in the first bucket whose upper bound it does not exceed,
// so every completed attempt counts in exactly one bucket.
var scoreBuckets = []struct {
	label string
	upper float64
}{
	{"0-20", 20},
	{"21-40", 40},
	{"41-60", 60},
	{"61-80", 80},
	{"81-100", 100},
}

// Analytics derives pass rate, completion rate, score distribution, and
// per-question difficulty from the completed attempt population. Read-only;
// all zero-denominator divisions yield 0, never NaN.
type Analytics struct {
	store   AttemptStore
	catalog Catalog
}

func NewAnalytics(store AttemptStore, catalog Catalog) *Analytics {
	return &Analytics{store: store, catalog: catalog}
}

// QuizAnalytics computes the aggregate view for one quiz.
func (a *Analytics) QuizAnalytics(ctx context.Context, quizID string) (domain.QuizAnalytics, error) {
	quiz, err := a.catalog.QuizForScoring(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, err
	}

	counts, err := a.store.CountsByQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, err
	}
	completed, err := a.store.CompletedByQuiz(ctx, quizID, true)
	if err != nil {
		return domain.QuizAnalytics{}, err
	}

	out := domain.QuizAnalytics{
		QuizID:            quizID,
		TotalAttempts:     counts.Total,
		CompletedAttempts: counts.Completed,
		AbandonedAttempts: counts.Abandoned,
		CompletionRate:    percentage(counts.Completed, counts.Total),
	}

	passed := 0
	var sum, highest, lowest float64
	bucketCounts := make([]int, len(scoreBuckets))
	for i, att := range completed {
		s := score(att)
		sum += s
		if i == 0 || s > highest {
			highest = s
		}
		if i == 0 || s < lowest {
			lowest = s
		}
		if s >= quiz.PassingScore {
			passed++
		}
		bucketCounts[bucketIndex(s)]++
	}

	if len(completed) > 0 {
		out.PassRate = percentage(passed, len(completed))
		out.AverageScore = round2(sum / float64(len(completed)))
		out.HighestScore = highest
		out.LowestScore = lowest
	}

	out.ScoreDistribution = make([]domain.ScoreBucket, len(scoreBuckets))
	for i, b := range scoreBuckets {
		out.ScoreDistribution[i] = domain.ScoreBucket{
			Label:      b.label,
			Count:      bucketCounts[i],
			Percentage: percentage(bucketCounts[i], len(completed)),
		}
	}

	out.Questions = questionStats(quiz, completed)
	return out, nil
}

// GlobalAnalytics is the dashboard view over every quiz.
func (a *Analytics) GlobalAnalytics(ctx context.Context) (domain.GlobalAnalytics, error) {
	counts, err := a.store.Counts(ctx)
	if err != nil {
		return domain.GlobalAnalytics{}, err
	}
	completed, err := a.store.Completed(ctx)
	if err != nil {
		return domain.GlobalAnalytics{}, err
	}

	out := domain.GlobalAnalytics{
		TotalAttempts:     counts.Total,
		CompletedAttempts: counts.Completed,
		CompletionRate:    percentage(counts.Completed, counts.Total),
	}
	if len(completed) > 0 {
		var sum float64
		for _, att := range completed {
			sum += score(att)
		}
		out.AverageScore = round2(sum / float64(len(completed)))
	}
	return out, nil
}

// questionStats computes per-question correct rate and the most frequently
// selected option over the completed population. The denominator is answer
// rows for the question; unanswered questions contribute zero rows.
func questionStats(quiz domain.Quiz, completed []domain.Attempt) []domain.QuestionStats {
	optionOrder := make(map[string]int)
	for _, q := range quiz.Questions {
		for _, opt := range q.Options {
			optionOrder[q.ID+"/"+opt.ID] = opt.Order
		}
	}

	type qAgg struct {
		total    int
		correct  int
		byOption map[string]int
	}
	aggs := make(map[string]*qAgg, len(quiz.Questions))
	for _, q := range quiz.Questions {
		aggs[q.ID] = &qAgg{byOption: make(map[string]int)}
	}

	for _, att := range completed {
		for _, ans := range att.Answers {
			agg, ok := aggs[ans.QuestionID]
			if !ok {
				continue // question dropped from the catalog since this attempt
			}
			agg.total++
			if ans.IsCorrect != nil && *ans.IsCorrect {
				agg.correct++
			}
			agg.byOption[ans.OptionID]++
		}
	}

	stats := make([]domain.QuestionStats, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		agg := aggs[q.ID]
		qs := domain.QuestionStats{
			QuestionID:   q.ID,
			Order:        q.Order,
			TotalAnswers: agg.total,
			CorrectRate:  percentage(agg.correct, agg.total),
		}
		qs.MostSelectedOption = mostSelected(q.ID, agg.byOption, optionOrder)
		stats = append(stats, qs)
	}
	return stats
}

// mostSelected breaks count ties by the lowest option order.
func mostSelected(questionID string, byOption map[string]int, optionOrder map[string]int) string {
	type candidate struct {
		optionID string
		count    int
		order    int
	}
	cands := make([]candidate, 0, len(byOption))
	for optionID, count := range byOption {
		cands = append(cands, candidate{optionID: optionID, count: count, order: optionOrder[questionID+"/"+optionID]})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].order < cands[j].order
	})
	return cands[0].optionID
}

func bucketIndex(score float64) int {
	for i, b := range scoreBuckets {
		if score <= b.upper {
			return i
		}
	}
	return len(scoreBuckets) - 1
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}
