package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

// Session creation limit per client IP.
const (
	sessionRate     = 30
	sessionInterval = time.Minute
)

// resultFeed is both ends of the live results feed.
type resultFeed interface {
	service.ResultPublisher
	handler.ResultSubscriber
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.Setup("info", "pretty")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("session_store", cfg.SessionStore).
		Str("ledger", cfg.LedgerBackend).
		Int("questions", cfg.TotalQuestions).
		Dur("duration", cfg.ExamDuration).
		Msg("Starting ExStem Quiz")

	// ─── Answer Key ────────────────────────────────────────────────────
	key, err := model.ParseAnswerKey(cfg.CorrectAnswers)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid answer key")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Session Store, Deadline Queue, Result Feed ────────────────────
	var (
		store     service.SessionStore
		deadlines interface {
			service.DeadlineQueue
			worker.DueLister
		}
		feed resultFeed
		rdb  *redis.Client
	)
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		store = repository.NewSessionRepository(rdb, cfg.SessionTTL)
		deadlines = repository.NewDeadlineRepository(rdb)
		feed = repository.NewRedisResultFeed(rdb, log)
	default:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		memStore := repository.NewMemorySessionRepository(cfg.SessionTTL)
		memStore.StartSweeper(ctx)
		store = memStore
		deadlines = repository.NewMemoryDeadlineRepository()
		feed = repository.NewMemoryResultFeed()
	}

	// ─── Results Ledger ────────────────────────────────────────────────
	var (
		ledger       service.Ledger
		ledgerSource string
		pool         *pgxpool.Pool
	)
	switch cfg.LedgerBackend {
	case config.LedgerBackendPostgres:
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		ledger = repository.NewPostgresLedgerRepository(pool)
		ledgerSource = "results table"
	default:
		csvLedger, err := repository.NewCSVLedgerRepository(cfg.DBFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.DBFile).Msg("Failed to open results ledger")
		}
		ledger = csvLedger
		ledgerSource = csvLedger.Path()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	imageService := service.NewQuestionImageService(cfg.ImageFolder, cfg.TotalQuestions)
	flowService := service.NewExamFlowService(cfg, key, store, ledger, deadlines, feed, imageService, log)
	adminService := service.NewAdminService(ledger, ledgerSource, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(flowService, authService, imageService, log),
		Admin:   handler.NewAdminHandler(authService, adminService, log),
		WS:      handler.NewWSHandler(flowService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(feed, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	deadlineWorker := worker.NewDeadlineWorker(deadlines, flowService, cfg.DeadlinePoll, log)
	go func() {
		defer close(workerDone)
		deadlineWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	sessionLimiter := middleware.NewRateLimiter(ctx, sessionRate, sessionInterval)
	r := router.SetupRouter(authService, handlers, cfg, sessionLimiter, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the deadline worker; pending deadlines stay queued in Redis and
	// are picked up by the next process.
	workerCancel()
	<-workerDone

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
