package app

import (
	"context"
	"math"
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Leaderboard derives ordered standings from the completed attempt
// population. It is a read-only consumer of the attempt store; caching in
// front of it is an optimization that must not change tie-break semantics.
type Leaderboard struct {
	store AttemptStore
}

func NewLeaderboard(store AttemptStore) *Leaderboard {
	return &Leaderboard{store: store}
}

// QuizStandings ranks one quiz's completed attempts: score descending, then
// time taken ascending (faster completion wins ties). Equal pairs still get
// distinct sequential ranks. Truncation to limit happens after sorting, so
// ranking always sees the full population; limit <= 0 means no truncation.
func (l *Leaderboard) QuizStandings(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	attempts, err := l.store.CompletedByQuiz(ctx, quizID, false)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		si, sj := score(attempts[i]), score(attempts[j])
		if si != sj {
			return si > sj
		}
		ti, tj := taken(attempts[i]), taken(attempts[j])
		if ti != tj {
			return ti < tj
		}
		return completedAt(attempts[i]).Before(completedAt(attempts[j]))
	})

	entries := make([]domain.LeaderboardEntry, 0, len(attempts))
	for i, a := range attempts {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:         i + 1,
			SessionID:    a.SessionID,
			UserID:       a.UserID,
			UserName:     a.UserName,
			Score:        score(a),
			TimeTakenSec: taken(a),
			CompletedAt:  completedAt(a),
		})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GlobalStandings groups completed attempts by user and ranks by average
// score. Anonymous attempts are excluded; duplicate quizzes count once for
// TotalQuizzes but every attempt feeds the average.
func (l *Leaderboard) GlobalStandings(ctx context.Context, limit int) ([]domain.GlobalLeaderboardEntry, error) {
	attempts, err := l.store.Completed(ctx)
	if err != nil {
		return nil, err
	}

	type userAgg struct {
		userID   string
		userName string
		quizzes  map[string]bool
		total    float64
		attempts int
	}
	byUser := make(map[string]*userAgg)
	order := make([]string, 0)
	for _, a := range attempts {
		if a.UserID == "" {
			continue
		}
		agg, ok := byUser[a.UserID]
		if !ok {
			agg = &userAgg{userID: a.UserID, userName: a.UserName, quizzes: make(map[string]bool)}
			byUser[a.UserID] = agg
			order = append(order, a.UserID)
		}
		agg.quizzes[a.QuizID] = true
		agg.total += score(a)
		agg.attempts++
		if a.UserName != "" {
			agg.userName = a.UserName
		}
	}

	entries := make([]domain.GlobalLeaderboardEntry, 0, len(byUser))
	for _, userID := range order {
		agg := byUser[userID]
		entries = append(entries, domain.GlobalLeaderboardEntry{
			UserID:       agg.userID,
			UserName:     agg.userName,
			TotalQuizzes: len(agg.quizzes),
			AverageScore: round2(agg.total / float64(agg.attempts)),
			TotalScore:   round2(agg.total),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AverageScore != entries[j].AverageScore {
			return entries[i].AverageScore > entries[j].AverageScore
		}
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// UserQuizRank is 1 + the number of completed attempts on the quiz scoring
// strictly higher than the session's best. ok=false means the session has no
// completed attempt on the quiz.
func (l *Leaderboard) UserQuizRank(ctx context.Context, quizID, sessionID string) (int, bool, error) {
	attempts, err := l.store.CompletedByQuiz(ctx, quizID, false)
	if err != nil {
		return 0, false, err
	}

	best := 0.0
	found := false
	for _, a := range attempts {
		if a.SessionID != sessionID {
			continue
		}
		if s := score(a); !found || s > best {
			best = s
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}

	rank := 1
	for _, a := range attempts {
		if score(a) > best {
			rank++
		}
	}
	return rank, true, nil
}

func score(a domain.Attempt) float64 {
	if a.Score == nil {
		return 0
	}
	return *a.Score
}

func taken(a domain.Attempt) int {
	if a.TimeTakenSec == nil {
		return 0
	}
	return *a.TimeTakenSec
}

func completedAt(a domain.Attempt) time.Time {
	if a.CompletedAt == nil {
		return time.Time{}
	}
	return *a.CompletedAt
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
