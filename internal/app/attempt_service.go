package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/scoring"
)

// SessionResolver resolves opaque session tokens issued by the auth subsystem.
type SessionResolver interface {
	SessionByToken(ctx context.Context, token string) (domain.Session, bool, error)
}

// Catalog is the read-only quiz source. QuizForTaking hides option
// correctness; QuizForScoring reveals it and is used only after submission.
type Catalog interface {
	QuizForTaking(ctx context.Context, quizID string) (domain.Quiz, error)
	QuizForScoring(ctx context.Context, quizID string) (domain.Quiz, error)
	Summaries(ctx context.Context, quizIDs []string) (map[string]domain.QuizSummary, error)
}

// Grade is the storage-bound outcome of scoring an attempt.
type Grade struct {
	Score        float64
	TimeTakenSec int
	CompletedAt  time.Time
	// Answers is the graded answer set with IsCorrect backfilled.
	Answers []domain.Answer
}

// GradeFunc computes the grade for an in-progress attempt. The store invokes
// it inside the same transaction that flips the attempt to completed, so a
// racing save can never slip between the answer read and the transition.
type GradeFunc func(attempt domain.Attempt) (Grade, error)

// AttemptStore is the durable record of attempts and their answers.
// Implementations enforce the state machine at the write boundary.
type AttemptStore interface {
	// GetOrCreateActive returns the existing in-progress attempt for the
	// candidate's (session, quiz) pair, or persists the candidate if there is
	// none. At most one in-progress attempt may exist per pair; a lost insert
	// race must surface the winner's row, not an error.
	GetOrCreateActive(ctx context.Context, candidate domain.Attempt) (domain.Attempt, bool, error)
	// Attempt fetches an attempt with its answers.
	Attempt(ctx context.Context, attemptID string) (domain.Attempt, bool, error)
	// SaveProgress atomically replaces the answer set and position of an
	// in-progress attempt. Returns domain.ErrAttemptNotFound or
	// domain.ErrAttemptNotActive.
	SaveProgress(ctx context.Context, attemptID string, questionIndex int, answers []domain.Answer) error
	// Finalize transitions in_progress -> completed, persisting the grade and
	// the backfilled answers in one transaction. Returns
	// domain.ErrAlreadySubmitted if the attempt is already terminal.
	Finalize(ctx context.Context, attemptID string, grade GradeFunc) (domain.Attempt, error)
	// Abandon transitions in_progress -> abandoned.
	Abandon(ctx context.Context, attemptID string) error
	// BySession lists a session's attempts, newest first, any status.
	BySession(ctx context.Context, sessionID string) ([]domain.Attempt, error)
	// CompletedByQuiz lists completed attempts for one quiz.
	CompletedByQuiz(ctx context.Context, quizID string, withAnswers bool) ([]domain.Attempt, error)
	// Completed lists all completed attempts across quizzes.
	Completed(ctx context.Context) ([]domain.Attempt, error)
	// CountsByQuiz breaks one quiz's attempts down by status.
	CountsByQuiz(ctx context.Context, quizID string) (domain.AttemptCounts, error)
	// Counts breaks all attempts down by status.
	Counts(ctx context.Context) (domain.AttemptCounts, error)
}

// CompletionListener is notified after an attempt reaches completed state.
// Used by the live leaderboard feed and the snapshot cache invalidation.
type CompletionListener interface {
	AttemptCompleted(quizID string)
}

// AttemptService orchestrates the attempt lifecycle: create-or-resume,
// progress persistence, submission, and the post-submission views. It is the
// only writer of attempt state.
type AttemptService struct {
	sessions  SessionResolver
	catalog   Catalog
	store     AttemptStore
	now       func() time.Time
	listeners []CompletionListener
}

func NewAttemptService(sessions SessionResolver, catalog Catalog, store AttemptStore) *AttemptService {
	return NewAttemptServiceWithClock(sessions, catalog, store, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(sessions SessionResolver, catalog Catalog, store AttemptStore, now func() time.Time) *AttemptService {
	return &AttemptService{sessions: sessions, catalog: catalog, store: store, now: now}
}

// AddCompletionListener registers a listener invoked after each successful submit.
func (s *AttemptService) AddCompletionListener(l CompletionListener) {
	s.listeners = append(s.listeners, l)
}

// StartAttempt finds or creates the in-progress attempt for (session, quiz).
// Resume is idempotent: an existing attempt is returned unchanged, with no
// reset of progress.
func (s *AttemptService) StartAttempt(ctx context.Context, sessionToken, quizID string) (domain.Attempt, domain.Quiz, error) {
	session, err := s.resolveSession(ctx, sessionToken)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}

	quiz, err := s.catalog.QuizForTaking(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}

	candidate := domain.Attempt{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		QuizID:    quizID,
		UserID:    session.UserID,
		UserName:  session.UserName,
		Status:    domain.StatusInProgress,
		StartedAt: s.now().UTC(),
	}
	attempt, _, err := s.store.GetOrCreateActive(ctx, candidate)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, fmt.Errorf("start attempt: %w", err)
	}
	return attempt, quiz, nil
}

// GetAttempt is the read-only fetch for the resume-in-place flow.
// A missing attempt is reported as ok=false, not an error.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, domain.Quiz, bool, error) {
	attempt, ok, err := s.store.Attempt(ctx, attemptID)
	if err != nil || !ok {
		return domain.Attempt{}, domain.Quiz{}, false, err
	}
	quiz, err := s.catalog.QuizForTaking(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, false, err
	}
	return attempt, quiz, true, nil
}

// SaveProgress replaces the attempt's answer set and position with the
// client's full current state. Idempotent; legal only while in progress.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID string, update domain.ProgressUpdate) (time.Time, error) {
	attempt, ok, err := s.store.Attempt(ctx, attemptID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.StatusInProgress {
		return time.Time{}, domain.ErrAttemptNotActive
	}

	quiz, err := s.catalog.QuizForTaking(ctx, attempt.QuizID)
	if err != nil {
		return time.Time{}, err
	}

	index := clampIndex(update.CurrentQuestionIndex, len(quiz.Questions))
	answers := make([]domain.Answer, 0, len(update.Answers))
	for _, sel := range update.Answers {
		// Unanswered questions keep zero rows; flags without a selection are dropped.
		for _, optionID := range sel.OptionIDs {
			answers = append(answers, domain.Answer{
				AttemptID:  attemptID,
				QuestionID: sel.QuestionID,
				OptionID:   optionID,
				IsFlagged:  sel.IsFlagged,
			})
		}
	}

	if err := s.store.SaveProgress(ctx, attemptID, index, answers); err != nil {
		return time.Time{}, err
	}
	return s.now().UTC(), nil
}

// SubmitQuiz finalizes an attempt: scores every question, backfills answer
// correctness, and performs the terminal in_progress -> completed transition.
// A second call fails with domain.ErrAlreadySubmitted and changes nothing.
func (s *AttemptService) SubmitQuiz(ctx context.Context, attemptID string) (domain.SubmitResult, error) {
	var result domain.SubmitResult

	finalized, err := s.store.Finalize(ctx, attemptID, func(attempt domain.Attempt) (Grade, error) {
		quiz, err := s.catalog.QuizForScoring(ctx, attempt.QuizID)
		if err != nil {
			return Grade{}, err
		}

		selections := selectionsByQuestion(attempt.Answers)
		perQuestion := make([]float64, 0, len(quiz.Questions))
		graded := make([]domain.Answer, 0, len(attempt.Answers))
		correctAnswers := 0

		for _, q := range quiz.Questions {
			qScore, err := scoring.Question(q, selections[q.ID])
			if err != nil {
				return Grade{}, err
			}
			perQuestion = append(perQuestion, qScore)
			if qScore == 1 {
				correctAnswers++
			}
		}

		correctByQuestion := make(map[string]map[string]bool, len(quiz.Questions))
		for _, q := range quiz.Questions {
			correctByQuestion[q.ID] = q.CorrectOptionIDs()
		}
		for _, ans := range attempt.Answers {
			isCorrect := correctByQuestion[ans.QuestionID][ans.OptionID]
			ans.IsCorrect = &isCorrect
			graded = append(graded, ans)
		}

		completedAt := s.now().UTC()
		result = domain.SubmitResult{
			Score:          scoring.Aggregate(perQuestion),
			TotalQuestions: len(quiz.Questions),
			CorrectAnswers: correctAnswers,
			CompletedAt:    completedAt,
			TimeTakenSec:   timeTaken(attempt.StartedAt, completedAt),
		}
		result.Passed = scoring.IsPassing(result.Score, quiz.PassingScore)

		return Grade{
			Score:        result.Score,
			TimeTakenSec: result.TimeTakenSec,
			CompletedAt:  completedAt,
			Answers:      graded,
		}, nil
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}

	for _, l := range s.listeners {
		l.AttemptCompleted(finalized.QuizID)
	}
	return result, nil
}

// AbandonAttempt marks an in-progress attempt abandoned. The row is kept;
// abandonment is a status value, never a deletion.
func (s *AttemptService) AbandonAttempt(ctx context.Context, attemptID string) error {
	return s.store.Abandon(ctx, attemptID)
}

// GetResults reconstructs the post-submission per-question breakdown,
// revealing correctness now that the attempt is completed.
func (s *AttemptService) GetResults(ctx context.Context, attemptID string) (domain.AttemptResults, error) {
	attempt, ok, err := s.store.Attempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptResults{}, err
	}
	if !ok {
		return domain.AttemptResults{}, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.StatusCompleted {
		return domain.AttemptResults{}, domain.ErrAttemptNotCompleted
	}

	quiz, err := s.catalog.QuizForScoring(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptResults{}, err
	}

	selections := selectionsByQuestion(attempt.Answers)
	flagged := flaggedQuestions(attempt.Answers)

	results := domain.AttemptResults{
		AttemptID:      attempt.ID,
		QuizID:         quiz.ID,
		QuizTitle:      quiz.Title,
		TotalQuestions: len(quiz.Questions),
		Questions:      make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}
	if attempt.Score != nil {
		results.Score = *attempt.Score
	}
	if attempt.TimeTakenSec != nil {
		results.TimeTakenSec = *attempt.TimeTakenSec
	}
	if attempt.CompletedAt != nil {
		results.CompletedAt = *attempt.CompletedAt
	}
	results.Passed = scoring.IsPassing(results.Score, quiz.PassingScore)

	for _, q := range quiz.Questions {
		selected := selections[q.ID]
		selectedSet := make(map[string]bool, len(selected))
		for _, id := range selected {
			selectedSet[id] = true
		}

		qScore, err := scoring.Question(q, selected)
		if err != nil {
			return domain.AttemptResults{}, err
		}

		qr := domain.QuestionResult{
			QuestionID:        q.ID,
			Prompt:            q.Prompt,
			Type:              q.Type,
			Order:             q.Order,
			Score:             qScore,
			Outcome:           outcomeFor(qScore),
			IsFlagged:         flagged[q.ID],
			SelectedOptionIDs: selected,
			Options:           make([]domain.OptionResult, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			if opt.Correct {
				qr.CorrectOptionIDs = append(qr.CorrectOptionIDs, opt.ID)
			}
			qr.Options = append(qr.Options, domain.OptionResult{
				OptionID:    opt.ID,
				Text:        opt.Text,
				Order:       opt.Order,
				WasSelected: selectedSet[opt.ID],
				IsCorrect:   opt.Correct,
			})
		}

		switch qr.Outcome {
		case domain.OutcomeCorrect:
			results.CorrectAnswers++
		case domain.OutcomePartial:
			results.PartialAnswers++
		}
		results.Questions = append(results.Questions, qr)
	}
	return results, nil
}

// GetHistory lists all of a session's attempts, newest first, with the
// denormalized question count each progress bar needs.
func (s *AttemptService) GetHistory(ctx context.Context, sessionToken string) ([]domain.HistoryEntry, error) {
	session, err := s.resolveSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	attempts, err := s.store.BySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	quizIDs := make([]string, 0, len(attempts))
	seen := make(map[string]bool)
	for _, a := range attempts {
		if !seen[a.QuizID] {
			seen[a.QuizID] = true
			quizIDs = append(quizIDs, a.QuizID)
		}
	}
	summaries, err := s.catalog.Summaries(ctx, quizIDs)
	if err != nil {
		return nil, err
	}

	history := make([]domain.HistoryEntry, 0, len(attempts))
	for _, a := range attempts {
		summary := summaries[a.QuizID]
		history = append(history, domain.HistoryEntry{
			AttemptID:            a.ID,
			QuizID:               a.QuizID,
			QuizTitle:            summary.Title,
			Status:               a.Status,
			Score:                a.Score,
			CurrentQuestionIndex: a.CurrentQuestionIndex,
			TotalQuestions:       summary.QuestionCount,
			TimeTakenSec:         a.TimeTakenSec,
			StartedAt:            a.StartedAt,
			CompletedAt:          a.CompletedAt,
		})
	}
	return history, nil
}

func (s *AttemptService) resolveSession(ctx context.Context, token string) (domain.Session, error) {
	session, ok, err := s.sessions.SessionByToken(ctx, token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok || session.Expired(s.now()) {
		return domain.Session{}, domain.ErrInvalidSession
	}
	return session, nil
}

// selectionsByQuestion groups selected option IDs by question, ordered
// deterministically for stable result views.
func selectionsByQuestion(answers []domain.Answer) map[string][]string {
	byQuestion := make(map[string][]string)
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = append(byQuestion[ans.QuestionID], ans.OptionID)
	}
	for _, ids := range byQuestion {
		sort.Strings(ids)
	}
	return byQuestion
}

func flaggedQuestions(answers []domain.Answer) map[string]bool {
	flagged := make(map[string]bool)
	for _, ans := range answers {
		if ans.IsFlagged {
			flagged[ans.QuestionID] = true
		}
	}
	return flagged
}

func outcomeFor(score float64) domain.QuestionOutcome {
	switch {
	case score == 1:
		return domain.OutcomeCorrect
	case score > 0:
		return domain.OutcomePartial
	default:
		return domain.OutcomeIncorrect
	}
}

func clampIndex(index, questionCount int) int {
	if index < 0 {
		return 0
	}
	if questionCount > 0 && index >= questionCount {
		return questionCount - 1
	}
	if questionCount == 0 {
		return 0
	}
	return index
}

// timeTaken is whole seconds, floored, clamped to zero against clock skew.
func timeTaken(start, end time.Time) int {
	secs := int(end.Sub(start).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}
