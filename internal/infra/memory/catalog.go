package memory

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// Catalog is a static in-memory quiz catalog (useful for tests/demos).
// It enforces the same view contract as the Postgres catalog: the taking
// view never exposes option correctness.
type Catalog struct {
	quizzes map[string]domain.Quiz
}

func NewCatalog(quizzes map[string]domain.Quiz) *Catalog {
	return &Catalog{quizzes: quizzes}
}

func (c *Catalog) QuizForTaking(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := c.quizzes[quizID]
	if !ok || !quiz.Active {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	sanitized := cloneQuiz(quiz)
	for qi := range sanitized.Questions {
		for oi := range sanitized.Questions[qi].Options {
			sanitized.Questions[qi].Options[oi].Correct = false
		}
	}
	return sanitized, nil
}

// QuizForScoring serves inactive quizzes too: an attempt submitted after its
// quiz was retired must still be gradable.
func (c *Catalog) QuizForScoring(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := c.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (c *Catalog) Summaries(_ context.Context, quizIDs []string) (map[string]domain.QuizSummary, error) {
	out := make(map[string]domain.QuizSummary, len(quizIDs))
	for _, id := range quizIDs {
		if quiz, ok := c.quizzes[id]; ok {
			out[id] = domain.QuizSummary{Title: quiz.Title, QuestionCount: len(quiz.Questions)}
		}
	}
	return out, nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]domain.Option(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}
