package app

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// StandingsFeed fans quiz leaderboard snapshots out to in-process
// subscribers. It implements CompletionListener: each completed attempt
// triggers a fresh snapshot for that quiz's subscribers.
type StandingsFeed struct {
	leaderboard *Leaderboard
	limit       int
	timeout     time.Duration

	mu          sync.Mutex
	subscribers map[string]map[chan []domain.LeaderboardEntry]struct{}
}

func NewStandingsFeed(leaderboard *Leaderboard, limit int) *StandingsFeed {
	return &StandingsFeed{
		leaderboard: leaderboard,
		limit:       limit,
		timeout:     5 * time.Second,
		subscribers: make(map[string]map[chan []domain.LeaderboardEntry]struct{}),
	}
}

// Subscribe returns a channel of leaderboard snapshots for one quiz, primed
// with the current standings. The caller must invoke cancel to avoid leaks.
func (f *StandingsFeed) Subscribe(ctx context.Context, quizID string) (<-chan []domain.LeaderboardEntry, func(), error) {
	initial, err := f.leaderboard.QuizStandings(ctx, quizID, f.limit)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []domain.LeaderboardEntry, 8)

	f.mu.Lock()
	if f.subscribers[quizID] == nil {
		f.subscribers[quizID] = make(map[chan []domain.LeaderboardEntry]struct{})
	}
	f.subscribers[quizID][ch] = struct{}{}
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.subscribers[quizID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.subscribers, quizID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// AttemptCompleted recomputes the quiz standings and broadcasts them.
// Slow subscribers get their stale snapshot dropped rather than blocking
// the broadcast.
func (f *StandingsFeed) AttemptCompleted(quizID string) {
	f.mu.Lock()
	hasSubs := len(f.subscribers[quizID]) > 0
	f.mu.Unlock()
	if !hasSubs {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	entries, err := f.leaderboard.QuizStandings(ctx, quizID, f.limit)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[quizID] {
		select {
		case ch <- entries:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- entries
		}
	}
}
