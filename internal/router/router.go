package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/handler"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Quiz    *handler.QuizHandler
	WS      *handler.WSHandler
	Staff   *handler.StaffHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// streamLimiter throttles session stream connects per client IP.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	streamLimiter *middleware.RateLimiter,
	log zerolog.Logger,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth ───────────────────────────────────────────────────────
	authAPI := router.Group("/api/v1/auth")
	authAPI.Use(middleware.RequireJWT(auth))
	{
		authAPI.GET("/me", handlers.Auth.GetProfile)
	}

	// ─── 2. Applicant Group (JWT) ──────────────────────────────────────
	quizAPI := router.Group("/api/v1/quizzes")
	quizAPI.Use(middleware.RequireJWT(auth))
	{
		quizAPI.GET("/:quiz_id", handlers.Quiz.GetOverview)
		quizAPI.GET("/:quiz_id/draft", handlers.Quiz.GetDraft)
		quizAPI.DELETE("/:quiz_id/draft", handlers.Quiz.DeleteDraft)
	}

	// ─── 3. WebSocket Group (query token, rate limited) ────────────────
	ws := router.Group("/ws/v1")
	ws.Use(streamLimiter.Middleware(), middleware.RequireWSAuth(auth))
	{
		ws.GET("/quizzes/:quiz_id/session", handlers.WS.QuizSessionStream)
	}

	// ─── 4. Staff Group (JWT + staff flag) ─────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireJWT(auth), middleware.RequireStaff())
	{
		staffAPI.GET("/quizzes/:quiz_id/submissions", handlers.Staff.ListSubmissions)
		staffAPI.PATCH("/quizzes/:quiz_id", handlers.Staff.UpdateQuizStatus)
		staffAPI.GET("/quizzes/:quiz_id/live", handlers.Staff.ListLiveSessions)
		staffAPI.GET("/quizzes/:quiz_id/monitor", handlers.Monitor.MonitorQuizSSE)
		staffAPI.GET("/submissions/:id", handlers.Staff.GetSubmission)
	}

	return router
}
