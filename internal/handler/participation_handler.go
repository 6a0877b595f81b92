package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/middleware"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
)

// ParticipationHandler exposes the participation gate.
type ParticipationHandler struct {
	participation *service.ParticipationService
	log           zerolog.Logger
}

// NewParticipationHandler creates a new ParticipationHandler.
func NewParticipationHandler(participation *service.ParticipationService, log zerolog.Logger) *ParticipationHandler {
	return &ParticipationHandler{
		participation: participation,
		log:           log.With().Str("component", "participation_handler").Logger(),
	}
}

// JoinExam godoc
// POST /api/v1/participant/exams/:exam_id/participation
// Creates the participation on first entry, otherwise reports its state.
func (h *ParticipationHandler) JoinExam(c *gin.Context) {
	h.check(c, true)
}

// GetParticipation godoc
// GET /api/v1/participant/exams/:exam_id/participation
func (h *ParticipationHandler) GetParticipation(c *gin.Context) {
	h.check(c, false)
}

func (h *ParticipationHandler) check(c *gin.Context, create bool) {
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

	result, p, err := h.participation.CheckParticipation(c.Request.Context(), claims.UserID, examID, create)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", claims.UserID).Str("exam_id", examID.String()).Msg("Participation check failed")
		response.FailFromError(c, err)
		return
	}

	switch result {
	case service.CheckNotParticipated:
		response.Fail(c, result.StatusCode(), response.ErrNotParticipated)
	case service.CheckAlreadyFinished:
		response.Fail(c, result.StatusCode(), response.ErrAlreadyFinished)
	default:
		response.Success(c, result.StatusCode(), gin.H{
			"result":        result.String(),
			"participation": p,
		})
	}
}
