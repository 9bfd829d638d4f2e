package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
)

const sessionKeyPrefix = "session:"

// SessionResolver reads sessions the auth subsystem materializes in Redis as
// session:{token} JSON documents with a TTL matching their expiry. This
// service only reads them; token issuance lives elsewhere.
type SessionResolver struct {
	client *redis.Client
}

func NewSessionResolver(client *redis.Client) *SessionResolver {
	return &SessionResolver{client: client}
}

func (r *SessionResolver) SessionByToken(ctx context.Context, token string) (domain.Session, bool, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, true, nil
}
