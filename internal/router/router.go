package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Admin   *handler.AdminHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
}

// imageMaxAge is the Cache-Control max-age of question images (1 day).
const imageMaxAge = 86400

// SetupRouter configures all Gin route groups with appropriate middlewares.
// sessionLimiter throttles session creation per IP; nil disables it.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	sessionLimiter *middleware.RateLimiter,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(response.RequestLogger(log))
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Exam Group ("Take Exam") ───────────────────────────────────
	examPublic := router.Group("/api/v1/exam")
	{
		createSession := []gin.HandlerFunc{middleware.NoStore()}
		if sessionLimiter != nil {
			createSession = append(createSession, sessionLimiter.Middleware())
		}
		createSession = append(createSession, handlers.Exam.CreateSession)
		examPublic.POST("/session", createSession...)

		examPublic.GET("/questions/:question/image",
			middleware.CacheControl(imageMaxAge),
			handlers.Exam.QuestionImage,
		)
	}

	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.NoStore(),
	)
	{
		examAPI.GET("", handlers.Exam.GetState)
		examAPI.POST("/start", handlers.Exam.Start)
		examAPI.PUT("/answers/:question", handlers.Exam.Answer)
		examAPI.POST("/submit", handlers.Exam.Submit)
		examAPI.POST("/logout", handlers.Exam.Logout)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/exam/stream", handlers.WS.ExamStream)
	}

	// ─── 3. Admin Group ("Admin Dashboard") ────────────────────────────
	router.POST("/api/v1/admin/login", middleware.NoStore(), handlers.Admin.Login)

	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.NoStore(),
	)
	{
		adminAPI.GET("/results", handlers.Admin.ListResults)
		adminAPI.GET("/results/export", handlers.Admin.ExportCSV)
		adminAPI.GET("/results/export.xlsx", handlers.Admin.ExportXLSX)
		adminAPI.DELETE("/results", handlers.Admin.ClearResults)
		adminAPI.GET("/results/stream", handlers.Monitor.ResultsStreamSSE)
	}

	return router
}
