package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/middleware"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
	"github.com/stemsi/exstem-rewards/internal/validator"
)

// SessionHandler manages flexible-exam countdown sessions over REST.
type SessionHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.ExamSessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/participant/exams/:exam_id/sessions
// Returns the caller's session, creating it on first start.
func (h *SessionHandler) StartSession(c *gin.Context) {
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

	sess, err := h.sessions.StartSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		status, code := response.Classify(err)
		if code == response.ErrInvalidState {
			code = response.ErrExamNotAvailable
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// CompleteSession godoc
// POST /api/v1/participant/sessions/:session_id/complete
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	done, err := h.sessions.CompleteSession(c.Request.Context(), sess.ID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Complete session failed")
		response.FailFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": done})
}

// UpdateRemaining godoc
// PATCH /api/v1/participant/sessions/:session_id/remaining
// Reports the client-side countdown. The server never counts back up.
func (h *SessionHandler) UpdateRemaining(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.UpdateRemainingRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.sessions.UpdateRemainingTime(c.Request.Context(), sess.ID, time.Duration(*req.RemainingSeconds)*time.Second)
	if err != nil {
		status, code := response.Classify(err)
		if code == response.ErrInvalidState {
			code = response.ErrSessionCompleted
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// ownedSession loads the :session_id session and checks it belongs to the
// caller. It writes the error response itself.
func (h *SessionHandler) ownedSession(c *gin.Context) (*model.ExamSession, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	sess, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.FailFromError(c, err)
		return nil, false
	}
	if sess.UserID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return nil, false
	}
	return sess, true
}
