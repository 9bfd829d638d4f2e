package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/domain"
)

// Catalog reads the quiz catalog from Postgres. Quizzes are stored as JSONB
// documents owned by the (external) authoring subsystem; this service only
// ever reads them.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// QuizForTaking loads an active quiz with option correctness stripped.
func (c *Catalog) QuizForTaking(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	var active bool
	err := c.pool.QueryRow(ctx, `SELECT data, active FROM quizzes WHERE id=$1`, quizID).Scan(&raw, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !active {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}

	quiz, err := decodeQuiz(quizID, raw)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Active = true
	for qi := range quiz.Questions {
		for oi := range quiz.Questions[qi].Options {
			quiz.Questions[qi].Options[oi].Correct = false
		}
	}
	return quiz, nil
}

// QuizForScoring loads the quiz with correctness intact. Inactive quizzes
// are still served: attempts submitted after a quiz is retired must grade.
func (c *Catalog) QuizForScoring(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	var active bool
	err := c.pool.QueryRow(ctx, `SELECT data, active FROM quizzes WHERE id=$1`, quizID).Scan(&raw, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz, err := decodeQuiz(quizID, raw)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Active = active
	return quiz, nil
}

func (c *Catalog) Summaries(ctx context.Context, quizIDs []string) (map[string]domain.QuizSummary, error) {
	out := make(map[string]domain.QuizSummary, len(quizIDs))
	if len(quizIDs) == 0 {
		return out, nil
	}

	rows, err := c.pool.Query(ctx, `SELECT id, data FROM quizzes WHERE id = ANY($1)`, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("load quiz summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan quiz summary: %w", err)
		}
		quiz, err := decodeQuiz(id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = domain.QuizSummary{Title: quiz.Title, QuestionCount: len(quiz.Questions)}
	}
	return out, rows.Err()
}

func decodeQuiz(quizID string, raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz %s: %w", quizID, err)
	}
	quiz.ID = quizID
	return quiz, nil
}
