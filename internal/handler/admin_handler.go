package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
)

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	sessions   *service.ExamSessionService
	settlement *service.SettlementService
	log        zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sessions *service.ExamSessionService, settlement *service.SettlementService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		settlement: settlement,
		log:        log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListActiveSessions godoc
// GET /api/v1/admin/exams/:exam_id/sessions/active
func (h *AdminHandler) ListActiveSessions(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sessions, err := h.sessions.ActiveSessions(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("List active sessions failed")
		response.FailFromError(c, err)
		return
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// SettleExam godoc
// POST /api/v1/admin/exams/:exam_id/settle
// Runs settlement for one completed exam without waiting for the next tick.
func (h *AdminHandler) SettleExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.settlement.SettleByID(c.Request.Context(), examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("On-demand settlement failed")
		response.FailFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}
