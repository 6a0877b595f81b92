package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/handler"
	"github.com/stemsi/exstem-rewards/internal/middleware"
	"github.com/stemsi/exstem-rewards/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Participation *handler.ParticipationHandler
	Session       *handler.SessionHandler
	Result        *handler.ResultHandler
	Admin         *handler.AdminHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background helpers such as the rate limiter sweep.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.TestMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Submissions hit PostgreSQL and Redis; 30 per minute per participant.
	submitLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)

	// ─── 1. Participant Group (JWT) ────────────────────────────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(middleware.RequireParticipantJWT(auth))
	{
		participantAPI.GET("/exams/:exam_id/participation", handlers.Participation.GetParticipation)
		participantAPI.POST("/exams/:exam_id/participation", handlers.Participation.JoinExam)
		participantAPI.POST("/exams/:exam_id/sessions", handlers.Session.StartSession)
		participantAPI.POST("/exams/:exam_id/submit", submitLimiter.Middleware(), handlers.Result.SubmitExam)

		participantAPI.POST("/sessions/:session_id/complete", handlers.Session.CompleteSession)
		participantAPI.PATCH("/sessions/:session_id/remaining", handlers.Session.UpdateRemaining)
	}

	// ─── 2. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(auth))
	{
		ws.GET("/participant/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Operator Group (JWT) ───────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireOperatorJWT(auth))
	{
		adminAPI.GET("/exams/:exam_id/sessions/active", handlers.Admin.ListActiveSessions)
		adminAPI.POST("/exams/:exam_id/settle", handlers.Admin.SettleExam)
	}

	return router
}
