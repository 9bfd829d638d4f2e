package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

const defaultLeaderboardLimit = 10

// Handler exposes the attempt lifecycle, leaderboards, and analytics as JSON
// over REST. Gate enforcement for admin routes lives upstream.
type Handler struct {
	attempts      *app.AttemptService
	leaderboard   *app.Leaderboard
	quizStandings infraredis.QuizRanker
	analytics     *app.Analytics
}

// NewHandler wires the services. quizStandings may be the raw leaderboard or
// a cache in front of it; both satisfy the same contract.
func NewHandler(attempts *app.AttemptService, leaderboard *app.Leaderboard, quizStandings infraredis.QuizRanker, analytics *app.Analytics) *Handler {
	return &Handler{
		attempts:      attempts,
		leaderboard:   leaderboard,
		quizStandings: quizStandings,
		analytics:     analytics,
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /attempts", h.startAttempt)
	mux.HandleFunc("GET /attempts/{id}", h.getAttempt)
	mux.HandleFunc("PATCH /attempts/{id}", h.saveProgress)
	mux.HandleFunc("POST /attempts/{id}/submit", h.submit)
	mux.HandleFunc("POST /attempts/{id}/abandon", h.abandon)
	mux.HandleFunc("GET /attempts/{id}/results", h.results)
	mux.HandleFunc("GET /sessions/{token}/attempts", h.history)
	mux.HandleFunc("GET /leaderboard/quiz/{quizId}", h.quizLeaderboard)
	mux.HandleFunc("GET /leaderboard/global", h.globalLeaderboard)
	mux.HandleFunc("GET /analytics/quiz/{quizId}", h.quizAnalytics)
	mux.HandleFunc("GET /analytics/global", h.globalAnalytics)
}

type startAttemptRequest struct {
	SessionToken string `json:"sessionToken"`
	QuizID       string `json:"quizId"`
}

type optionView struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type questionView struct {
	ID      string              `json:"id"`
	Type    domain.QuestionType `json:"type"`
	Prompt  string              `json:"prompt"`
	Order   int                 `json:"order"`
	Options []optionView        `json:"options"`
}

// quizView is the taking view: option correctness never crosses this wire.
type quizView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	TimeLimit int            `json:"timeLimit"`
	Questions []questionView `json:"questions"`
}

type attemptResponse struct {
	AttemptID            string                   `json:"attemptId"`
	Status               domain.AttemptStatus     `json:"status"`
	CurrentQuestionIndex int                      `json:"currentQuestionIndex"`
	StartedAt            time.Time                `json:"startedAt"`
	Quiz                 quizView                 `json:"quiz"`
	Answers              []domain.AnswerSelection `json:"answers"`
}

type saveProgressResponse struct {
	Success bool      `json:"success"`
	SavedAt time.Time `json:"savedAt"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.SessionToken == "" || req.QuizID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "sessionToken and quizId are required"})
		return
	}

	attempt, quiz, err := h.attempts.StartAttempt(r.Context(), req.SessionToken, req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttemptResponse(attempt, quiz))
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, quiz, ok, err := h.attempts.GetAttempt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "attempt not found"})
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt, quiz))
}

func (h *Handler) saveProgress(w http.ResponseWriter, r *http.Request) {
	var update domain.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	savedAt, err := h.attempts.SaveProgress(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveProgressResponse{Success: true, SavedAt: savedAt})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	result, err := h.attempts.SubmitQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.attempts.AbandonAttempt(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.attempts.GetResults(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	history, err := h.attempts.GetHistory(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) quizLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.quizStandings.QuizStandings(r.Context(), r.PathValue("quizId"), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) globalLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.GlobalStandings(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) quizAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.analytics.QuizAnalytics(r.Context(), r.PathValue("quizId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *Handler) globalAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.analytics.GlobalAnalytics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func toAttemptResponse(attempt domain.Attempt, quiz domain.Quiz) attemptResponse {
	view := quizView{
		ID:        quiz.ID,
		Title:     quiz.Title,
		TimeLimit: quiz.TimeLimitSec,
		Questions: make([]questionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		qv := questionView{ID: q.ID, Type: q.Type, Prompt: q.Prompt, Order: q.Order, Options: make([]optionView, 0, len(q.Options))}
		for _, opt := range q.Options {
			qv.Options = append(qv.Options, optionView{ID: opt.ID, Text: opt.Text, Order: opt.Order})
		}
		view.Questions = append(view.Questions, qv)
	}

	return attemptResponse{
		AttemptID:            attempt.ID,
		Status:               attempt.Status,
		CurrentQuestionIndex: attempt.CurrentQuestionIndex,
		StartedAt:            attempt.StartedAt,
		Quiz:                 view,
		Answers:              toSelections(attempt.Answers),
	}
}

// toSelections regroups answer rows into the per-question shape clients send.
func toSelections(answers []domain.Answer) []domain.AnswerSelection {
	byQuestion := make(map[string]*domain.AnswerSelection)
	order := make([]string, 0)
	for _, ans := range answers {
		sel, ok := byQuestion[ans.QuestionID]
		if !ok {
			sel = &domain.AnswerSelection{QuestionID: ans.QuestionID}
			byQuestion[ans.QuestionID] = sel
			order = append(order, ans.QuestionID)
		}
		sel.OptionIDs = append(sel.OptionIDs, ans.OptionID)
		if ans.IsFlagged {
			sel.IsFlagged = true
		}
	}

	out := make([]domain.AnswerSelection, 0, len(order))
	for _, questionID := range order {
		out = append(out, *byQuestion[questionID])
	}
	return out
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLeaderboardLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLeaderboardLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrAttemptNotActive),
		errors.Is(err, domain.ErrAttemptNotCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrConfiguration):
		log.Printf("configuration error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}
