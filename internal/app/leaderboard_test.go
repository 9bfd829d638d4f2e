package app_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestQuizStandingsOrderAndRanks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()

	seedCompleted(t, store, seedAttempt{session: "s1", quiz: "quiz-1", userID: "u1", userName: "Uma", score: 95, taken: 300})
	seedCompleted(t, store, seedAttempt{session: "s2", quiz: "quiz-1", userID: "u2", userName: "Vic", score: 95, taken: 280})
	seedCompleted(t, store, seedAttempt{session: "s3", quiz: "quiz-1", userID: "u3", userName: "Wes", score: 80, taken: 100})
	seedCompleted(t, store, seedAttempt{session: "s4", quiz: "quiz-1", userID: "u4", userName: "Xan", score: 80, taken: 100})
	// Other quizzes never leak in.
	seedCompleted(t, store, seedAttempt{session: "s5", quiz: "quiz-2", userID: "u5", userName: "Yan", score: 100, taken: 10})

	lb := app.NewLeaderboard(store)
	entries, err := lb.QuizStandings(ctx, "quiz-1", 0)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	// Faster completion wins the score tie.
	if entries[0].SessionID != "s2" || entries[1].SessionID != "s1" {
		t.Fatalf("tie-break by time taken failed: %s, %s", entries[0].SessionID, entries[1].SessionID)
	}
	// Ranks are sequential even across exact ties.
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, e.Rank)
		}
	}
}

func TestQuizStandingsTruncatesAfterSort(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()

	seedCompleted(t, store, seedAttempt{session: "s1", quiz: "quiz-1", userID: "u1", score: 50, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "s2", quiz: "quiz-1", userID: "u2", score: 90, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "s3", quiz: "quiz-1", userID: "u3", score: 70, taken: 60})

	lb := app.NewLeaderboard(store)
	entries, err := lb.QuizStandings(ctx, "quiz-1", 2)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(entries))
	}
	if entries[0].Score != 90 || entries[1].Score != 70 {
		t.Fatalf("limit must apply after sorting: %v, %v", entries[0].Score, entries[1].Score)
	}
}

func TestQuizStandingsEmpty(t *testing.T) {
	lb := app.NewLeaderboard(memory.NewAttemptStore())
	entries, err := lb.QuizStandings(context.Background(), "quiz-1", 10)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty standings, got %d", len(entries))
	}
}

func TestGlobalStandingsAggregation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()

	// Alice: two attempts on quiz-1, one on quiz-2. Every attempt feeds the
	// average; the repeated quiz counts once.
	seedCompleted(t, store, seedAttempt{session: "sa1", quiz: "quiz-1", userID: "alice", userName: "Alice", score: 90, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "sa2", quiz: "quiz-1", userID: "alice", userName: "Alice", score: 80, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "sa3", quiz: "quiz-2", userID: "alice", userName: "Alice", score: 95, taken: 60})

	seedCompleted(t, store, seedAttempt{session: "sb1", quiz: "quiz-1", userID: "bob", userName: "Bob", score: 90, taken: 60})

	// Anonymous attempts never appear globally.
	seedCompleted(t, store, seedAttempt{session: "sg1", quiz: "quiz-1", score: 100, taken: 10})

	lb := app.NewLeaderboard(store)
	entries, err := lb.GlobalStandings(ctx, 0)
	if err != nil {
		t.Fatalf("global standings: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 users, got %d", len(entries))
	}

	bob := entries[0]
	if bob.UserID != "bob" || bob.AverageScore != 90 {
		t.Fatalf("expected bob first with avg 90, got %+v", bob)
	}
	alice := entries[1]
	if alice.UserID != "alice" {
		t.Fatalf("expected alice second, got %+v", alice)
	}
	if alice.AverageScore != 88.33 {
		t.Fatalf("expected avg 88.33, got %v", alice.AverageScore)
	}
	if alice.TotalQuizzes != 2 {
		t.Fatalf("expected 2 distinct quizzes, got %d", alice.TotalQuizzes)
	}
	if alice.TotalScore != 265 {
		t.Fatalf("expected total 265, got %v", alice.TotalScore)
	}
	if bob.Rank != 1 || alice.Rank != 2 {
		t.Fatalf("unexpected ranks: %d, %d", bob.Rank, alice.Rank)
	}
}

func TestUserQuizRank(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()

	seedCompleted(t, store, seedAttempt{session: "s1", quiz: "quiz-1", userID: "u1", score: 95, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "s2", quiz: "quiz-1", userID: "u2", score: 80, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "s2", quiz: "quiz-1", userID: "u2", score: 60, taken: 60})
	seedCompleted(t, store, seedAttempt{session: "s3", quiz: "quiz-1", userID: "u3", score: 80, taken: 60})

	lb := app.NewLeaderboard(store)

	// Rank counts only strictly better scores; the tied 80 does not outrank.
	rank, ok, err := lb.UserQuizRank(ctx, "quiz-1", "s2")
	if err != nil || !ok {
		t.Fatalf("rank: ok=%v err=%v", ok, err)
	}
	if rank != 2 {
		t.Fatalf("expected rank 2 for best score 80, got %d", rank)
	}

	rank, ok, err = lb.UserQuizRank(ctx, "quiz-1", "s1")
	if err != nil || !ok || rank != 1 {
		t.Fatalf("expected top rank 1, got rank=%d ok=%v err=%v", rank, ok, err)
	}

	if _, ok, err := lb.UserQuizRank(ctx, "quiz-1", "s-none"); err != nil || ok {
		t.Fatalf("expected ok=false for session without completions, got ok=%v err=%v", ok, err)
	}
}

type seedAttempt struct {
	session  string
	quiz     string
	userID   string
	userName string
	score    float64
	taken    int
	answers  []domain.Answer
}

var seedBase = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

var seedSeq int

// seedCompleted pushes a completed attempt through the store's own state
// machine so tests never fabricate rows the code could not produce.
func seedCompleted(t *testing.T, store *memory.AttemptStore, seed seedAttempt) domain.Attempt {
	t.Helper()
	ctx := context.Background()

	seedSeq++
	candidate := domain.Attempt{
		ID:        "att-" + strconv.Itoa(seedSeq),
		SessionID: seed.session,
		QuizID:    seed.quiz,
		UserID:    seed.userID,
		UserName:  seed.userName,
		Status:    domain.StatusInProgress,
		StartedAt: seedBase.Add(time.Duration(seedSeq) * time.Minute),
	}
	created, _, err := store.GetOrCreateActive(ctx, candidate)
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}

	finalized, err := store.Finalize(ctx, created.ID, func(a domain.Attempt) (app.Grade, error) {
		answers := make([]domain.Answer, len(seed.answers))
		for i, ans := range seed.answers {
			ans.AttemptID = a.ID
			answers[i] = ans
		}
		return app.Grade{
			Score:        seed.score,
			TimeTakenSec: seed.taken,
			CompletedAt:  a.StartedAt.Add(time.Duration(seed.taken) * time.Second),
			Answers:      answers,
		}, nil
	})
	if err != nil {
		t.Fatalf("seed finalize: %v", err)
	}
	return finalized
}
