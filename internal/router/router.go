package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/handler"
	"github.com/certwise/certprep-backend/internal/middleware"
	"github.com/certwise/certprep-backend/internal/response"
	"github.com/certwise/certprep-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Catalog *handler.CatalogHandler
	Attempt *handler.AttemptHandler
	Stream  *handler.StreamHandler
	Events  *handler.EventsHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. SSE and WebSocket responses are
	// skipped inside the middleware itself.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Rate limiter for attempt lifecycle writes (start/restart/submit).
	attemptLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Catalog Group (Public, Cacheable) ──────────────────────────
	catalog := router.Group("/api/v1")
	catalog.Use(middleware.CacheControl(time.Minute))
	{
		catalog.GET("/exams", handlers.Catalog.ListExams)
		catalog.GET("/exams/:slug", handlers.Catalog.GetExam)
	}

	// ─── 2. Candidate Group (JWT) ──────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireCandidateJWT(authService))
	{
		api.GET("/exams/:slug/paper", handlers.Catalog.GetExamPaper)

		api.POST("/exams/:slug/attempts", attemptLimiter.Middleware(), handlers.Attempt.StartAttempt)
		api.POST("/exams/:slug/attempts/restart", attemptLimiter.Middleware(), handlers.Attempt.RestartAttempt)

		api.GET("/attempts", handlers.Attempt.ListAttempts)
		api.GET("/attempts/:attempt_id", handlers.Attempt.GetState)
		api.PUT("/attempts/:attempt_id/position", handlers.Attempt.SelectQuestion)
		api.POST("/attempts/:attempt_id/next", handlers.Attempt.NextQuestion)
		api.POST("/attempts/:attempt_id/previous", handlers.Attempt.PreviousQuestion)
		api.POST("/attempts/:attempt_id/questions/:question_id/flag", handlers.Attempt.ToggleFlag)
		api.PUT("/attempts/:attempt_id/questions/:question_id/answer", handlers.Attempt.RecordAnswer)
		api.POST("/attempts/:attempt_id/submit", attemptLimiter.Middleware(), handlers.Attempt.SubmitAttempt)
		api.DELETE("/attempts/:attempt_id", handlers.Attempt.AbandonAttempt)
		api.GET("/attempts/:attempt_id/result", handlers.Attempt.GetResult)

		// Operator feeds. EventSource cannot set headers, so the JWT
		// middleware also accepts ?token= on these routes.
		api.GET("/events/completions", handlers.Events.CompletionsSSE)
		api.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.Stream.AttemptStream)
	}

	return router
}
