package domain

import "time"

// QuestionType discriminates how a question is scored.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

// AttemptStatus is the attempt state machine value. Transitions:
// in_progress -> completed (submit), in_progress -> abandoned (timeout/abandon).
// No transition leaves a terminal state.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusAbandoned  AttemptStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Option is a possible answer for a question. Correct is hidden from the
// quiz-taking view and revealed only post-submission.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Order   int    `json:"order"`
	Correct bool   `json:"correct"`
}

// Question carries its ordered options. Catalog invariant: a single-choice
// question has exactly one correct option, a multiple-choice at least one.
type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Order   int          `json:"order"`
	Options []Option     `json:"options"`
}

// CorrectOptionIDs returns the set of correct option IDs.
func (q Question) CorrectOptionIDs() map[string]bool {
	correct := make(map[string]bool)
	for _, opt := range q.Options {
		if opt.Correct {
			correct[opt.ID] = true
		}
	}
	return correct
}

// Quiz is the read-only catalog view consumed by this service.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	PassingScore float64    `json:"passingScore"`
	TimeLimitSec int        `json:"timeLimit"`
	Active       bool       `json:"active"`
	Questions    []Question `json:"questions"`
}

// QuizSummary is the denormalized slice of catalog data history views need.
type QuizSummary struct {
	Title         string `json:"title"`
	QuestionCount int    `json:"questionCount"`
}

// Session identifies a browsing context issued by the auth subsystem.
// UserID is empty for anonymous sessions.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	UserName  string    `json:"userName,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session has passed its expiry instant.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Answer is one selected option for one question of an attempt.
// A question with no selection has zero rows. IsCorrect is nil until
// submission backfills it.
type Answer struct {
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	IsCorrect  *bool  `json:"isCorrect,omitempty"`
	IsFlagged  bool   `json:"isFlagged"`
}

// Attempt is one user's run through a quiz, from start to terminal state.
// Score and CompletedAt are set together, exactly once, on completion.
type Attempt struct {
	ID                   string        `json:"id"`
	SessionID            string        `json:"sessionId"`
	QuizID               string        `json:"quizId"`
	UserID               string        `json:"userId,omitempty"`
	UserName             string        `json:"userName,omitempty"`
	Status               AttemptStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Score                *float64      `json:"score,omitempty"`
	TimeTakenSec         *int          `json:"timeTaken,omitempty"`
	StartedAt            time.Time     `json:"startedAt"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	Answers              []Answer      `json:"answers,omitempty"`
}

// AnswerSelection is the client's full selection state for one question.
type AnswerSelection struct {
	QuestionID string   `json:"questionId"`
	OptionIDs  []string `json:"optionIds"`
	IsFlagged  bool     `json:"isFlagged"`
}

// ProgressUpdate is the autosave payload; it always carries the complete
// answer state, never a delta.
type ProgressUpdate struct {
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	Answers              []AnswerSelection `json:"answers"`
}

// SubmitResult summarizes a finalized attempt. CorrectAnswers counts only
// full-credit questions, not partial credit.
type SubmitResult struct {
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CorrectAnswers int       `json:"correctAnswers"`
	CompletedAt    time.Time `json:"completedAt"`
	Passed         bool      `json:"passed"`
	TimeTakenSec   int       `json:"timeTaken"`
}

// QuestionOutcome classifies a question's credit after scoring.
type QuestionOutcome string

const (
	OutcomeCorrect   QuestionOutcome = "correct"
	OutcomePartial   QuestionOutcome = "partial"
	OutcomeIncorrect QuestionOutcome = "incorrect"
)

// OptionResult exposes per-option selection and correctness flags,
// safe to reveal once the attempt is completed.
type OptionResult struct {
	OptionID    string `json:"optionId"`
	Text        string `json:"text"`
	Order       int    `json:"order"`
	WasSelected bool   `json:"wasSelected"`
	IsCorrect   bool   `json:"isCorrect"`
}

// QuestionResult is the post-submission breakdown for one question.
type QuestionResult struct {
	QuestionID        string          `json:"questionId"`
	Prompt            string          `json:"prompt"`
	Type              QuestionType    `json:"type"`
	Order             int             `json:"order"`
	Score             float64         `json:"score"`
	Outcome           QuestionOutcome `json:"outcome"`
	IsFlagged         bool            `json:"isFlagged"`
	SelectedOptionIDs []string        `json:"selectedOptionIds"`
	CorrectOptionIDs  []string        `json:"correctOptionIds"`
	Options           []OptionResult  `json:"options"`
}

// AttemptResults is the full post-submission view of an attempt.
// PartialAnswers counts questions with partial credit, distinct from
// CorrectAnswers which counts full credit only.
type AttemptResults struct {
	AttemptID      string           `json:"attemptId"`
	QuizID         string           `json:"quizId"`
	QuizTitle      string           `json:"quizTitle"`
	Score          float64          `json:"score"`
	Passed         bool             `json:"passed"`
	TotalQuestions int              `json:"totalQuestions"`
	CorrectAnswers int              `json:"correctAnswers"`
	PartialAnswers int              `json:"partialAnswers"`
	TimeTakenSec   int              `json:"timeTaken"`
	CompletedAt    time.Time        `json:"completedAt"`
	Questions      []QuestionResult `json:"questions"`
}

// HistoryEntry is one attempt in a session's history list.
type HistoryEntry struct {
	AttemptID            string        `json:"attemptId"`
	QuizID               string        `json:"quizId"`
	QuizTitle            string        `json:"quizTitle"`
	Status               AttemptStatus `json:"status"`
	Score                *float64      `json:"score,omitempty"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	TotalQuestions       int           `json:"totalQuestions"`
	TimeTakenSec         *int          `json:"timeTaken,omitempty"`
	StartedAt            time.Time     `json:"startedAt"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
}

// LeaderboardEntry is one row of a per-quiz leaderboard.
type LeaderboardEntry struct {
	Rank         int       `json:"rank"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId,omitempty"`
	UserName     string    `json:"userName"`
	Score        float64   `json:"score"`
	TimeTakenSec int       `json:"timeTaken"`
	CompletedAt  time.Time `json:"completedAt"`
}

// GlobalLeaderboardEntry aggregates a user's completed attempts across quizzes.
// Anonymous sessions are excluded; the global board requires identity.
type GlobalLeaderboardEntry struct {
	Rank         int     `json:"rank"`
	UserID       string  `json:"userId"`
	UserName     string  `json:"userName"`
	TotalQuizzes int     `json:"totalQuizzes"`
	AverageScore float64 `json:"averageScore"`
	TotalScore   float64 `json:"totalScore"`
}

// AttemptCounts breaks an attempt population down by status.
type AttemptCounts struct {
	Total      int `json:"total"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Abandoned  int `json:"abandoned"`
}

// ScoreBucket is one fixed slice of the score distribution.
type ScoreBucket struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// QuestionStats is per-question difficulty data over the completed population.
type QuestionStats struct {
	QuestionID         string  `json:"questionId"`
	Order              int     `json:"order"`
	TotalAnswers       int     `json:"totalAnswers"`
	CorrectRate        float64 `json:"correctRate"`
	MostSelectedOption string  `json:"mostSelectedOption,omitempty"`
}

// QuizAnalytics is the aggregate view for one quiz.
type QuizAnalytics struct {
	QuizID            string          `json:"quizId"`
	TotalAttempts     int             `json:"totalAttempts"`
	CompletedAttempts int             `json:"completedAttempts"`
	AbandonedAttempts int             `json:"abandonedAttempts"`
	CompletionRate    float64         `json:"completionRate"`
	PassRate          float64         `json:"passRate"`
	AverageScore      float64         `json:"averageScore"`
	HighestScore      float64         `json:"highestScore"`
	LowestScore       float64         `json:"lowestScore"`
	ScoreDistribution []ScoreBucket   `json:"scoreDistribution"`
	Questions         []QuestionStats `json:"questions"`
}

// GlobalAnalytics is the dashboard-level view over all quizzes.
type GlobalAnalytics struct {
	TotalAttempts     int     `json:"totalAttempts"`
	CompletedAttempts int     `json:"completedAttempts"`
	CompletionRate    float64 `json:"completionRate"`
	AverageScore      float64 `json:"averageScore"`
}
