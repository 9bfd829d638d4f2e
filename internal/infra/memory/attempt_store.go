package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. The mutex
// held across each operation stands in for the transaction boundary the
// Postgres store gets from the database.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]domain.Attempt)}
}

func (s *AttemptStore) GetOrCreateActive(_ context.Context, candidate domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.activeLocked(candidate.SessionID, candidate.QuizID); ok {
		return cloneAttempt(existing, true), false, nil
	}
	s.attempts[candidate.ID] = cloneAttempt(candidate, true)
	return cloneAttempt(candidate, true), true, nil
}

func (s *AttemptStore) Attempt(_ context.Context, attemptID string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, false, nil
	}
	return cloneAttempt(a, true), true, nil
}

func (s *AttemptStore) SaveProgress(_ context.Context, attemptID string, questionIndex int, answers []domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status != domain.StatusInProgress {
		return domain.ErrAttemptNotActive
	}

	a.CurrentQuestionIndex = questionIndex
	a.Answers = append([]domain.Answer(nil), answers...)
	s.attempts[attemptID] = a
	return nil
}

func (s *AttemptStore) Finalize(_ context.Context, attemptID string, grade app.GradeFunc) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if a.Status != domain.StatusInProgress {
		return domain.Attempt{}, domain.ErrAlreadySubmitted
	}

	result, err := grade(cloneAttempt(a, true))
	if err != nil {
		return domain.Attempt{}, err
	}

	scoreCopy := result.Score
	takenCopy := result.TimeTakenSec
	completedCopy := result.CompletedAt
	a.Status = domain.StatusCompleted
	a.Score = &scoreCopy
	a.TimeTakenSec = &takenCopy
	a.CompletedAt = &completedCopy
	a.Answers = append([]domain.Answer(nil), result.Answers...)
	s.attempts[attemptID] = a
	return cloneAttempt(a, true), nil
}

func (s *AttemptStore) Abandon(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status != domain.StatusInProgress {
		return domain.ErrAttemptNotActive
	}
	a.Status = domain.StatusAbandoned
	s.attempts[attemptID] = a
	return nil
}

func (s *AttemptStore) BySession(_ context.Context, sessionID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.SessionID == sessionID {
			out = append(out, cloneAttempt(a, false))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *AttemptStore) CompletedByQuiz(_ context.Context, quizID string, withAnswers bool) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.Status == domain.StatusCompleted {
			out = append(out, cloneAttempt(a, withAnswers))
		}
	}
	return out, nil
}

func (s *AttemptStore) Completed(_ context.Context) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.Status == domain.StatusCompleted {
			out = append(out, cloneAttempt(a, false))
		}
	}
	return out, nil
}

func (s *AttemptStore) CountsByQuiz(_ context.Context, quizID string) (domain.AttemptCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts domain.AttemptCounts
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			tally(&counts, a.Status)
		}
	}
	return counts, nil
}

func (s *AttemptStore) Counts(_ context.Context) (domain.AttemptCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts domain.AttemptCounts
	for _, a := range s.attempts {
		tally(&counts, a.Status)
	}
	return counts, nil
}

func (s *AttemptStore) activeLocked(sessionID, quizID string) (domain.Attempt, bool) {
	var newest domain.Attempt
	found := false
	for _, a := range s.attempts {
		if a.SessionID != sessionID || a.QuizID != quizID || a.Status != domain.StatusInProgress {
			continue
		}
		if !found || a.StartedAt.After(newest.StartedAt) {
			newest = a
			found = true
		}
	}
	return newest, found
}

func tally(counts *domain.AttemptCounts, status domain.AttemptStatus) {
	counts.Total++
	switch status {
	case domain.StatusInProgress:
		counts.InProgress++
	case domain.StatusCompleted:
		counts.Completed++
	case domain.StatusAbandoned:
		counts.Abandoned++
	}
}

func cloneAttempt(a domain.Attempt, withAnswers bool) domain.Attempt {
	out := a
	out.Answers = nil
	if withAnswers {
		out.Answers = make([]domain.Answer, len(a.Answers))
		for i, ans := range a.Answers {
			if ans.IsCorrect != nil {
				v := *ans.IsCorrect
				ans.IsCorrect = &v
			}
			out.Answers[i] = ans
		}
	}
	if a.Score != nil {
		v := *a.Score
		out.Score = &v
	}
	if a.TimeTakenSec != nil {
		v := *a.TimeTakenSec
		out.TimeTakenSec = &v
	}
	if a.CompletedAt != nil {
		v := *a.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
