package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/response"
	"github.com/certwise/certprep-backend/internal/service"
)

// CatalogHandler serves the read-only exam catalog.
type CatalogHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(examService *service.ExamService, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		examService: examService,
		log:         log.With().Str("component", "catalog_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/exams
// Lists every exam currently open to candidates.
func (h *CatalogHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("List exams failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:slug
// Returns one exam's catalog entry.
func (h *CatalogHandler) GetExam(c *gin.Context) {
	exam, err := h.examService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("slug", c.Param("slug")).Msg("Get exam failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// GetExamPaper godoc
// GET /api/v1/exams/:slug/paper
// Returns the candidate-facing paper: questions and answer options with the
// answer key and explanations stripped.
func (h *CatalogHandler) GetExamPaper(c *gin.Context) {
	paper, err := h.examService.Paper(c.Request.Context(), c.Param("slug"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		default:
			h.log.Error().Err(err).Str("slug", c.Param("slug")).Msg("Get exam paper failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, paper)
}
