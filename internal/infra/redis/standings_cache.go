package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
)

// QuizRanker computes ordered standings for a quiz (limit <= 0 means all).
type QuizRanker interface {
	QuizStandings(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error)
}

// StandingsCache caches the full per-quiz standings as a JSON snapshot under
// leaderboard:{quizID} and truncates per request, so every limit shares one
// cache entry. Misses are coalesced with singleflight; entries expire with a
// jittered TTL and are dropped eagerly whenever an attempt completes. This is
// purely an optimization: ranking semantics come from the inner ranker.
type StandingsCache struct {
	client *redis.Client
	inner  QuizRanker
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewStandingsCache(client *redis.Client, inner QuizRanker, ttl time.Duration) *StandingsCache {
	return &StandingsCache{
		client: client,
		inner:  inner,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *StandingsCache) QuizStandings(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	key := c.key(quizID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		entries, decodeErr := decodeEntries(raw)
		if decodeErr == nil {
			return truncate(entries, limit), nil
		}
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			if entries, decodeErr := decodeEntries(raw); decodeErr == nil {
				return entries, nil
			}
		}

		entries, err := c.inner.QuizStandings(ctx, quizID, 0)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(entries); err == nil {
			// best-effort: a failed SET just means the next read recomputes
			_ = c.client.Set(ctx, key, encoded, c.ttlWithJitter()).Err()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return truncate(result.([]domain.LeaderboardEntry), limit), nil
}

// AttemptCompleted invalidates the quiz's snapshot so the next read sees the
// new completion. Implements app.CompletionListener.
func (c *StandingsCache) AttemptCompleted(quizID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.client.Del(ctx, c.key(quizID)).Err()
}

func (c *StandingsCache) key(quizID string) string {
	return "leaderboard:" + quizID
}

func (c *StandingsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func decodeEntries(raw []byte) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal standings: %w", err)
	}
	return entries, nil
}

func truncate(entries []domain.LeaderboardEntry, limit int) []domain.LeaderboardEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
