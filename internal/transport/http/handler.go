package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"code-exam-service/internal/app"
	"code-exam-service/internal/domain"
	"code-exam-service/internal/sandbox"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the REST surface: session lifecycle, practice sets, and the
// question bank admin endpoints.
type Handler struct {
	sessions   *app.SessionService
	generation *app.GenerationService
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandler(sessions *app.SessionService, generation *app.GenerationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:   sessions,
		generation: generation,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/exam/generate", h.createExam)
	mux.HandleFunc("GET /api/exam/{id}", h.getExam)
	mux.HandleFunc("POST /api/exam/{id}/start", h.startExam)
	mux.HandleFunc("POST /api/exam/{id}/submit", h.submitAnswer)
	mux.HandleFunc("POST /api/exam/{id}/finish", h.finishExam)

	mux.HandleFunc("POST /api/practice/generate", h.createPractice)
	mux.HandleFunc("GET /api/practice/{id}", h.getPractice)

	mux.HandleFunc("POST /api/question-bank/generate", h.submitGenerationJob)
	mux.HandleFunc("GET /api/question-bank/jobs", h.listJobs)
	mux.HandleFunc("GET /api/question-bank/jobs/{id}", h.getJob)
	mux.HandleFunc("PUT /api/question-bank/{id}/status", h.reviewQuestion)
	mux.HandleFunc("GET /api/question-bank/stats/{language}/{trackId}", h.bankStats)
}

type createExamRequest struct {
	Topics        []string `json:"topics" validate:"required,min=1"`
	Language      string   `json:"language" validate:"required"`
	Level         string   `json:"level" validate:"required"`
	QuestionCount int      `json:"questionCount" validate:"required,min=1,max=10"`
	TimeLimit     int      `json:"timeLimit"`
	TrackID       string   `json:"trackId"`
	TopicIDs      []string `json:"topicIds"`
}

func (h *Handler) createExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.sessions.CreateExam(r.Context(), app.CreateExamParams{
		Topics:    req.Topics,
		Language:  req.Language,
		Level:     req.Level,
		Count:     req.QuestionCount,
		TimeLimit: req.TimeLimit,
		TrackID:   req.TrackID,
		TopicIDs:  req.TopicIDs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, learnerSessionView(session))
}

func (h *Handler) getExam(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if session.Kind != domain.SessionExam {
		h.writeError(w, domain.ErrSessionNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, learnerSessionView(session))
}

type startRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (h *Handler) startExam(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	started, err := h.sessions.Start(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// Answered flags let a resumed client skip questions it already submitted.
	type questionState struct {
		QuestionID string `json:"questionId"`
		Answered   bool   `json:"answered"`
	}
	states := make([]questionState, 0, len(started.Session.Items))
	for _, item := range started.Session.Items {
		_, answered := started.Attempt.Answers[item.ID]
		states = append(states, questionState{QuestionID: item.ID, Answered: answered})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"attemptId":     started.Attempt.ID,
		"sessionId":     started.Session.ID,
		"status":        started.Attempt.Status,
		"startedAt":     started.Attempt.StartedAt,
		"remainingTime": started.RemainingTime,
		"questions":     states,
	})
}

type submitRequest struct {
	AttemptID  string `json:"attemptId" validate:"required"`
	QuestionID string `json:"questionId" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.sessions.Submit(r.Context(), req.AttemptID, req.QuestionID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type finishRequest struct {
	AttemptID string `json:"attemptId" validate:"required"`
}

func (h *Handler) finishExam(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.sessions.Finish(r.Context(), req.AttemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type createPracticeRequest struct {
	Topic         string `json:"topic" validate:"required"`
	Language      string `json:"language" validate:"required"`
	Level         string `json:"level" validate:"required"`
	QuestionCount int    `json:"questionCount" validate:"required,min=1,max=10"`
	TrackID       string `json:"trackId" validate:"required"`
	TopicID       string `json:"topicId" validate:"required"`
}

func (h *Handler) createPractice(w http.ResponseWriter, r *http.Request) {
	var req createPracticeRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.sessions.CreatePractice(r.Context(), app.CreatePracticeParams{
		Topic:    req.Topic,
		Language: req.Language,
		Level:    req.Level,
		Count:    req.QuestionCount,
		TrackID:  req.TrackID,
		TopicID:  req.TopicID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, practiceSessionView(session))
}

func (h *Handler) getPractice(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if session.Kind != domain.SessionPractice {
		h.writeError(w, domain.ErrSessionNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, practiceSessionView(session))
}

type generationJobRequest struct {
	Language         string                  `json:"language" validate:"required"`
	TrackID          string                  `json:"trackId" validate:"required"`
	TopicID          string                  `json:"topicId" validate:"required"`
	TopicName        string                  `json:"topicName" validate:"required"`
	DifficultyConfig domain.DifficultyConfig `json:"difficultyConfig"`
	UserID           string                  `json:"userId"`
}

func (h *Handler) submitGenerationJob(w http.ResponseWriter, r *http.Request) {
	var req generationJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	job, err := h.generation.SubmitJob(r.Context(), app.SubmitJobParams{
		Language:         req.Language,
		TrackID:          req.TrackID,
		TopicID:          req.TopicID,
		TopicName:        req.TopicName,
		DifficultyConfig: req.DifficultyConfig,
		RequestedBy:      req.UserID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.writeError(w, domain.Validationf("userId", "userId query parameter is required"))
		return
	}
	jobs, err := h.generation.JobsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.GenerationJob{}
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.generation.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	UserID  string `json:"userId" validate:"required"`
}

func (h *Handler) reviewQuestion(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	question, err := h.generation.Review(r.Context(), r.PathValue("id"), req.Approve, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, question)
}

func (h *Handler) bankStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.generation.BankStats(r.Context(), r.PathValue("language"), r.PathValue("trackId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if stats == nil {
		stats = []domain.TopicStats{}
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrTimeLimitExceeded):
		status = http.StatusBadRequest
	case app.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptNotInProgress), errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, sandbox.ErrServiceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, sandbox.ErrRequestTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrGenerationFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("write response", "error", err)
	}
}
