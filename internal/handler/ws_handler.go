package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/middleware"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/response"
	"github.com/stemsi/exstem-rewards/internal/service"
	ws "github.com/stemsi/exstem-rewards/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a session's countdown and drives it server-side.
type WSHandler struct {
	sessions *service.ExamSessionService
	tick     time.Duration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. Every tick decrements the session by
// the tick length.
func NewWSHandler(sessions *service.ExamSessionService, tick time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	return &WSHandler{
		sessions: sessions,
		tick:     tick,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/participant/sessions/:session_id/stream
// Pushes a tick event after every decrement and a completed event when the
// session ends, then closes.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.FailFromError(c, err)
		return
	}
	if sess.UserID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return
	}
	if sess.IsCompleted {
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Participant connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	actions := h.readActions(ctx, cancel, conn, wsLog)

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case action := <-actions:
			switch action {
			case ws.ActionPing:
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			case ws.ActionFinish:
				done, err := h.sessions.CompleteSession(ctx, sessionID)
				if err != nil {
					wsLog.Error().Err(err).Msg("Finish failed")
					_ = ws.WriteError(conn, "finish failed")
					continue
				}
				h.finish(conn, done)
				return
			default:
				_ = ws.WriteError(conn, "unknown action: "+string(action))
			}

		case <-ticker.C:
			updated, err := h.sessions.UpdateRemainingTime(ctx, sessionID, sess.Remaining()-h.tick)
			if errors.Is(err, model.ErrInvalidState) {
				// Completed elsewhere (submit, sweep, another stream).
				current, getErr := h.sessions.GetSession(ctx, sessionID)
				if getErr != nil {
					current = sess
				}
				h.finish(conn, current)
				return
			}
			if err != nil {
				wsLog.Error().Err(err).Msg("Countdown update failed")
				_ = ws.WriteError(conn, "countdown update failed")
				continue
			}

			sess = updated
			if sess.IsCompleted {
				wsLog.Info().Msg("Session ran out of time")
				h.finish(conn, sess)
				return
			}
			_ = ws.WriteTyped(conn, ws.TickResponse{
				Event:            ws.EventTick,
				SessionID:        sessionID.String(),
				RemainingSeconds: sess.RemainingSeconds,
			})
		}
	}
}

// readActions pumps client frames into a channel until the connection drops,
// then cancels the stream.
func (h *WSHandler) readActions(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, wsLog zerolog.Logger) <-chan ws.Action {
	actions := make(chan ws.Action)
	go func() {
		defer cancel()
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case actions <- msg.Action:
			case <-ctx.Done():
				return
			}
		}
	}()
	return actions
}

func (h *WSHandler) finish(conn *websocket.Conn, sess *model.ExamSession) {
	resp := ws.CompletedResponse{Event: ws.EventCompleted, SessionID: sess.ID.String()}
	if sess.EndTime != nil {
		resp.EndTime = sess.EndTime.UTC().Format(time.RFC3339)
	}
	_ = ws.WriteTyped(conn, resp)
	ws.Close(conn, "session completed")
}
