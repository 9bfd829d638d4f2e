package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID                   string     `bun:"id,pk"`
	SessionID            string     `bun:"session_id,notnull"`
	QuizID               string     `bun:"quiz_id,notnull"`
	UserID               string     `bun:"user_id"`
	UserName             string     `bun:"user_name"`
	Status               string     `bun:"status,notnull"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	Score                *float64   `bun:"score"`
	TimeTakenSec         *int       `bun:"time_taken_sec"`
	StartedAt            time.Time  `bun:"started_at,notnull"`
	CompletedAt          *time.Time `bun:"completed_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	AttemptID  string `bun:"attempt_id,pk"`
	QuestionID string `bun:"question_id,pk"`
	OptionID   string `bun:"option_id,pk"`
	IsCorrect  *bool  `bun:"is_correct"`
	IsFlagged  bool   `bun:"is_flagged,notnull"`
}

// AttemptStore is the bun-backed implementation of app.AttemptStore. All
// mutating operations run inside a transaction, and the state machine is
// enforced with conditional updates (WHERE status = 'in_progress') so a race
// can never re-open or re-score a terminal attempt.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) GetOrCreateActive(ctx context.Context, candidate domain.Attempt) (domain.Attempt, bool, error) {
	var out domain.Attempt
	var created bool

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := fromDomainAttempt(candidate)
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (session_id, quiz_id) WHERE status = 'in_progress' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			out = candidate
			created = true
			return nil
		}

		// Lost the uniqueness race (or this is a resume): return the winner's row.
		existing := new(attemptRow)
		err = tx.NewSelect().Model(existing).
			Where("session_id = ?", candidate.SessionID).
			Where("quiz_id = ?", candidate.QuizID).
			Where("status = ?", string(domain.StatusInProgress)).
			OrderExpr("started_at DESC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("select active attempt: %w", err)
		}
		answers, err := s.answersFor(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		out = toDomainAttempt(*existing, answers)
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return out, created, nil
}

func (s *AttemptStore) Attempt(ctx context.Context, attemptID string) (domain.Attempt, bool, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("select attempt: %w", err)
	}

	answers, err := s.answersFor(ctx, s.db, attemptID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return toDomainAttempt(*row, answers), true, nil
}

func (s *AttemptStore) SaveProgress(ctx context.Context, attemptID string, questionIndex int, answers []domain.Answer) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("current_question_index = ?", questionIndex).
			Where("id = ?", attemptID).
			Where("status = ?", string(domain.StatusInProgress)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.notActiveErr(ctx, tx, attemptID)
		}

		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("attempt_id = ?", attemptID).Exec(ctx); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		if len(answers) == 0 {
			return nil
		}
		rows := fromDomainAnswers(answers)
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) Finalize(ctx context.Context, attemptID string, grade app.GradeFunc) (domain.Attempt, error) {
	var out domain.Attempt

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(attemptRow)
		err := tx.NewSelect().Model(row).Where("id = ?", attemptID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("select attempt: %w", err)
		}
		if row.Status != string(domain.StatusInProgress) {
			return domain.ErrAlreadySubmitted
		}

		answers, err := s.answersFor(ctx, tx, attemptID)
		if err != nil {
			return err
		}

		result, err := grade(toDomainAttempt(*row, answers))
		if err != nil {
			return err
		}

		res, err := tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("status = ?", string(domain.StatusCompleted)).
			Set("score = ?", result.Score).
			Set("time_taken_sec = ?", result.TimeTakenSec).
			Set("completed_at = ?", result.CompletedAt).
			Where("id = ?", attemptID).
			Where("status = ?", string(domain.StatusInProgress)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadySubmitted
		}

		// Rewrite the answer set with is_correct backfilled.
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).Where("attempt_id = ?", attemptID).Exec(ctx); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		if len(result.Answers) > 0 {
			rows := fromDomainAnswers(result.Answers)
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("insert graded answers: %w", err)
			}
		}

		row.Status = string(domain.StatusCompleted)
		row.Score = &result.Score
		row.TimeTakenSec = &result.TimeTakenSec
		row.CompletedAt = &result.CompletedAt
		out = toDomainAttempt(*row, fromDomainAnswers(result.Answers))
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func (s *AttemptStore) Abandon(ctx context.Context, attemptID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("status = ?", string(domain.StatusAbandoned)).
			Where("id = ?", attemptID).
			Where("status = ?", string(domain.StatusInProgress)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("abandon attempt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.notActiveErr(ctx, tx, attemptID)
		}
		return nil
	})
}

func (s *AttemptStore) BySession(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("started_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select session attempts: %w", err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAttempt(row, nil))
	}
	return out, nil
}

func (s *AttemptStore) CompletedByQuiz(ctx context.Context, quizID string, withAnswers bool) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("status = ?", string(domain.StatusCompleted)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select completed attempts: %w", err)
	}

	answersByAttempt := make(map[string][]answerRow)
	if withAnswers && len(rows) > 0 {
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		var answers []answerRow
		err := s.db.NewSelect().Model(&answers).
			Where("attempt_id IN (?)", bun.In(ids)).
			Order("question_id").Order("option_id").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("select answers: %w", err)
		}
		for _, ans := range answers {
			answersByAttempt[ans.AttemptID] = append(answersByAttempt[ans.AttemptID], ans)
		}
	}

	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAttempt(row, answersByAttempt[row.ID]))
	}
	return out, nil
}

func (s *AttemptStore) Completed(ctx context.Context) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(domain.StatusCompleted)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select completed attempts: %w", err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAttempt(row, nil))
	}
	return out, nil
}

func (s *AttemptStore) CountsByQuiz(ctx context.Context, quizID string) (domain.AttemptCounts, error) {
	return s.counts(ctx, &quizID)
}

func (s *AttemptStore) Counts(ctx context.Context) (domain.AttemptCounts, error) {
	return s.counts(ctx, nil)
}

func (s *AttemptStore) counts(ctx context.Context, quizID *string) (domain.AttemptCounts, error) {
	var rows []struct {
		Status string `bun:"status"`
		N      int    `bun:"n"`
	}
	q := s.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS n").
		GroupExpr("status")
	if quizID != nil {
		q = q.Where("quiz_id = ?", *quizID)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return domain.AttemptCounts{}, fmt.Errorf("count attempts: %w", err)
	}

	var counts domain.AttemptCounts
	for _, row := range rows {
		counts.Total += row.N
		switch domain.AttemptStatus(row.Status) {
		case domain.StatusInProgress:
			counts.InProgress += row.N
		case domain.StatusCompleted:
			counts.Completed += row.N
		case domain.StatusAbandoned:
			counts.Abandoned += row.N
		}
	}
	return counts, nil
}

func (s *AttemptStore) answersFor(ctx context.Context, db bun.IDB, attemptID string) ([]answerRow, error) {
	var answers []answerRow
	err := db.NewSelect().Model(&answers).
		Where("attempt_id = ?", attemptID).
		Order("question_id").Order("option_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return answers, nil
}

// notActiveErr distinguishes a missing attempt from a terminal one after a
// guarded update matched zero rows.
func (s *AttemptStore) notActiveErr(ctx context.Context, tx bun.Tx, attemptID string) error {
	exists, err := tx.NewSelect().Model((*attemptRow)(nil)).Where("id = ?", attemptID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrAttemptNotActive
}

func fromDomainAttempt(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:                   a.ID,
		SessionID:            a.SessionID,
		QuizID:               a.QuizID,
		UserID:               a.UserID,
		UserName:             a.UserName,
		Status:               string(a.Status),
		CurrentQuestionIndex: a.CurrentQuestionIndex,
		Score:                a.Score,
		TimeTakenSec:         a.TimeTakenSec,
		StartedAt:            a.StartedAt,
		CompletedAt:          a.CompletedAt,
	}
}

func toDomainAttempt(row attemptRow, answers []answerRow) domain.Attempt {
	a := domain.Attempt{
		ID:                   row.ID,
		SessionID:            row.SessionID,
		QuizID:               row.QuizID,
		UserID:               row.UserID,
		UserName:             row.UserName,
		Status:               domain.AttemptStatus(row.Status),
		CurrentQuestionIndex: row.CurrentQuestionIndex,
		Score:                row.Score,
		TimeTakenSec:         row.TimeTakenSec,
		StartedAt:            row.StartedAt,
		CompletedAt:          row.CompletedAt,
	}
	for _, ans := range answers {
		a.Answers = append(a.Answers, domain.Answer{
			AttemptID:  ans.AttemptID,
			QuestionID: ans.QuestionID,
			OptionID:   ans.OptionID,
			IsCorrect:  ans.IsCorrect,
			IsFlagged:  ans.IsFlagged,
		})
	}
	return a
}

func fromDomainAnswers(answers []domain.Answer) []answerRow {
	rows := make([]answerRow, 0, len(answers))
	for _, ans := range answers {
		rows = append(rows, answerRow{
			AttemptID:  ans.AttemptID,
			QuestionID: ans.QuestionID,
			OptionID:   ans.OptionID,
			IsCorrect:  ans.IsCorrect,
			IsFlagged:  ans.IsFlagged,
		})
	}
	return rows
}
