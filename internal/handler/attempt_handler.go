package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/middleware"
	"github.com/certwise/certprep-backend/internal/model"
	"github.com/certwise/certprep-backend/internal/response"
	"github.com/certwise/certprep-backend/internal/service"
	"github.com/certwise/certprep-backend/internal/session"
	"github.com/certwise/certprep-backend/internal/validator"
)

// AttemptHandler drives the exam session engine over REST.
type AttemptHandler struct {
	manager       *session.Manager
	examService   *service.ExamService
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	manager *session.Manager,
	examService *service.ExamService,
	resultService *service.ResultService,
	log zerolog.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		manager:       manager,
		examService:   examService,
		resultService: resultService,
		log:           log.With().Str("component", "attempt_handler").Logger(),
	}
}

// failEngine maps engine errors onto the response envelope.
// Conflict means another live attempt holds the (candidate, exam) slot;
// InvalidState means the lifecycle forbids the operation; OutOfRange means
// the index or ID is not part of the attempt; storage failures are
// retryable and never leave a partial transition behind.
func (h *AttemptHandler) failEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrConflict):
		response.Fail(c, http.StatusConflict, response.ErrAttemptActive)
	case errors.Is(err, session.ErrInvalidState):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidState)
	case errors.Is(err, session.ErrOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrOutOfRange)
	case session.IsStorageError(err):
		h.log.Error().Err(err).Msg("Attempt storage failure")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
	default:
		h.log.Error().Err(err).Msg("Attempt operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// resolveSnapshot loads the snapshot for an active exam by slug, writing the
// failure response itself when the exam cannot serve attempts.
func (h *AttemptHandler) resolveSnapshot(c *gin.Context, slug string) (*model.ExamSnapshot, bool) {
	exam, err := h.examService.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		} else {
			h.log.Error().Err(err).Str("slug", slug).Msg("Exam lookup failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return nil, false
	}
	if !exam.Active {
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrExamNotAvailable)
		return nil, false
	}

	snap, err := h.examService.Snapshot(c.Request.Context(), exam.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		default:
			h.log.Error().Err(err).Str("slug", slug).Msg("Snapshot load failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return nil, false
	}
	return snap, true
}

// ownedSession resolves :attempt_id to a live session owned by the caller,
// writing the failure response itself otherwise.
func (h *AttemptHandler) ownedSession(c *gin.Context) (*session.Session, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	s, ok := h.manager.Get(attemptID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	if s.Candidate().ID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return s, true
}

// StartAttempt godoc
// POST /api/v1/exams/:slug/attempts
// Starts a new attempt. A persisted in-progress attempt from a previous
// process life is abandoned and replaced; a live one in this process is a
// conflict the candidate must resolve via restart.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, ok := h.resolveSnapshot(c, c.Param("slug"))
	if !ok {
		return
	}

	cand := session.Candidate{ID: claims.UserID, Name: claims.Name}
	s, err := h.manager.Start(c.Request.Context(), cand, snap, model.AttemptMode(req.Mode))
	if err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"state": s.Snapshot()})
}

// RestartAttempt godoc
// POST /api/v1/exams/:slug/attempts/restart
// Force-discards any live attempt for this (candidate, exam) and starts
// fresh. Answers already persisted for the discarded attempt survive.
func (h *AttemptHandler) RestartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, ok := h.resolveSnapshot(c, c.Param("slug"))
	if !ok {
		return
	}

	cand := session.Candidate{ID: claims.UserID, Name: claims.Name}
	s, err := h.manager.Restart(c.Request.Context(), cand, snap, model.AttemptMode(req.Mode))
	if err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"state": s.Snapshot()})
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id
// Returns the live snapshot. Covers page reloads: answered map, flags,
// current position and the remaining-time readout in one payload.
func (h *AttemptHandler) GetState(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	s.Touch()
	response.Success(c, http.StatusOK, gin.H{"state": s.Snapshot()})
}

// SelectQuestion godoc
// PUT /api/v1/attempts/:attempt_id/position
// Jumps to a question by zero-based index.
func (h *AttemptHandler) SelectQuestion(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.SelectQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := s.Select(*req.Index); err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": s.Snapshot()})
}

// NextQuestion godoc
// POST /api/v1/attempts/:attempt_id/next
func (h *AttemptHandler) NextQuestion(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := s.Next(); err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": s.Snapshot()})
}

// PreviousQuestion godoc
// POST /api/v1/attempts/:attempt_id/previous
func (h *AttemptHandler) PreviousQuestion(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := s.Previous(); err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": s.Snapshot()})
}

// ToggleFlag godoc
// POST /api/v1/attempts/:attempt_id/questions/:question_id/flag
// Toggles the review flag; responds with the new flag state.
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	flagged, err := s.ToggleFlag(questionID)
	if err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": questionID,
		"flagged":     flagged,
	})
}

// RecordAnswer godoc
// PUT /api/v1/attempts/:attempt_id/questions/:question_id/answer
// Commits a selection. The answer is persisted before it is reported saved;
// a storage failure leaves the question unanswered and is safe to retry.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answerIDs := make([]uuid.UUID, 0, len(req.AnswerIDs))
	for _, raw := range req.AnswerIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		answerIDs = append(answerIDs, id)
	}

	answer, err := s.RecordAnswer(c.Request.Context(), questionID, answerIDs, req.TimeSpentSeconds)
	if err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"answer": answer,
		"state":  s.Snapshot(),
	})
}

// SubmitAttempt godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finishes the attempt and returns the scored result. Safe to retry after a
// storage failure; the attempt stays in progress until the store confirms.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	result, err := s.Submit(c.Request.Context())
	if err != nil {
		h.failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"result": result,
		"state":  s.Snapshot(),
	})
}

// AbandonAttempt godoc
// DELETE /api/v1/attempts/:attempt_id
// Abandons the attempt and releases the (candidate, exam) slot. Recorded
// answers stay persisted.
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := s.Abandon(c.Request.Context()); err != nil {
		h.failEngine(c, err)
		return
	}
	h.manager.Remove(s)

	response.Success(c, http.StatusOK, gin.H{"message": "attempt abandoned"})
}

// GetResult godoc
// GET /api/v1/attempts/:attempt_id/result
// Returns the full scored breakdown for a completed attempt, rebuilt from
// the persisted answers. Works long after the live session is gone.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	detailed, err := h.resultService.Detailed(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotAttemptOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, service.ErrAttemptNotCompleted):
			response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
		default:
			h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Result build failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, detailed)
}

// ListAttempts godoc
// GET /api/v1/attempts?exam_id=&page=&per_page=
// Lists the caller's attempt history, newest first.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	var examID *uuid.UUID
	if raw := c.Query("exam_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		examID = &id
	}

	attempts, pagination, err := h.resultService.History(c.Request.Context(), claims.UserID, examID, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Attempt history failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}
