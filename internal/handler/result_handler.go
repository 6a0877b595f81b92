package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/middleware"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
	"github.com/stemsi/exstem-rewards/internal/validator"
)

// ResultHandler accepts exam submissions.
type ResultHandler struct {
	results *service.ResultService
	log     zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results *service.ResultService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		results: results,
		log:     log.With().Str("component", "result_handler").Logger(),
	}
}

// SubmitExam godoc
// POST /api/v1/participant/exams/:exam_id/submit
// Grades the answers and finishes the participation.
func (h *ResultHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	score, err := h.results.Submit(c.Request.Context(), claims.UserID, examID, req.Answers)
	if err != nil {
		status, code := response.Classify(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Int("user_id", claims.UserID).Str("exam_id", examID.String()).Msg("Submit failed")
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"score": score})
}
