package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// SessionResolver serves sessions from a seeded in-memory map, standing in
// for the auth subsystem in tests and infrastructure-free demo mode.
type SessionResolver struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionResolver(sessions map[string]domain.Session) *SessionResolver {
	if sessions == nil {
		sessions = make(map[string]domain.Session)
	}
	return &SessionResolver{sessions: sessions}
}

func (r *SessionResolver) SessionByToken(_ context.Context, token string) (domain.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[token]
	return session, ok, nil
}

// Seed registers a session under a token, replacing any previous one.
func (r *SessionResolver) Seed(token string, session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[token] = session
}
