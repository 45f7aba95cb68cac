package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/captcha"
	"github.com/stemsi/whitelist-backend/internal/cheat"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/database"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/handler"
	"github.com/stemsi/whitelist-backend/internal/logger"
	"github.com/stemsi/whitelist-backend/internal/middleware"
	"github.com/stemsi/whitelist-backend/internal/notify"
	"github.com/stemsi/whitelist-backend/internal/repository"
	"github.com/stemsi/whitelist-backend/internal/router"
	"github.com/stemsi/whitelist-backend/internal/service"
	"github.com/stemsi/whitelist-backend/internal/submission"
	"github.com/stemsi/whitelist-backend/internal/validator"
	"github.com/stemsi/whitelist-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("notify_transport", cfg.NotifyTransport).
		Msg("Starting Whitelist Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Notification Delivery ─────────────────────────────────────────
	var sink notify.Sink = notify.NewLogSink(log)
	if cfg.DiscordBotToken != "" {
		dg, err := notify.NewDiscordSession(cfg.DiscordBotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Discord session")
		}
		sink = notify.NewDiscordSink(dg, cfg.DiscordAuditChannelID)
	} else {
		log.Warn().Msg("DISCORD_BOT_TOKEN not set, notifications are only logged")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(start func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	var dispatcher notify.Dispatcher
	switch cfg.NotifyTransport {
	case config.NotifyTransportAMQP:
		conn, ch, err := database.NewAMQPChannel(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer conn.Close()
		defer ch.Close()

		publisher := notify.NewAMQPPublisher(ch, cfg.AMQPExchange)
		dispatcher = publisher
		startWorker(worker.NewAMQPNotifyWorker(ch, publisher, sink, cfg.NotifyMaxAttempts, log).Start)
	default:
		dispatcher = notify.NewRedisQueue(rdb)
		startWorker(worker.NewNotifyWorker(rdb, sink, cfg.NotifyMaxAttempts, log).Start)
	}

	// ─── Captcha ───────────────────────────────────────────────────────
	var verifier submission.Verifier = captcha.StaticVerifier{}
	if cfg.CaptchaSecret != "" {
		verifier = captcha.NewHCaptchaVerifier(cfg.CaptchaSecret, cfg.CaptchaVerifyURL, &http.Client{Timeout: 10 * time.Second})
	} else {
		log.Warn().Msg("CAPTCHA_SECRET not set, every captcha token is accepted")
	}

	// ─── Repositories & Services ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	drafts := draft.NewRedisStore(rdb, cfg.DraftTTL, log)

	authService := service.NewAuthService(cfg)
	quizService := service.NewQuizService(quizRepo, rdb, cfg.QuizCacheTTL, log)
	submissionService := service.NewSubmissionService(submissionRepo)
	pipeline := submission.NewPipeline(verifier, submissionRepo, drafts, dispatcher, cfg.PanelBaseURL, log)
	sessionService := service.NewSessionService(
		quizService,
		submissionRepo,
		drafts,
		pipeline,
		cheat.NewRedisFeed(rdb),
		cfg.CaptchaTokenTTL,
		log,
	)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	if err := quizService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(),
		Quiz:    handler.NewQuizHandler(sessionService),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Staff:   handler.NewStaffHandler(quizService, submissionService, sessionService),
		Monitor: handler.NewMonitorHandler(rdb, quizService, sessionService, log),
	}

	// 20 session stream connects per minute per IP.
	streamLimiter := middleware.NewRateLimiter(20, time.Minute)
	go streamLimiter.StartCleanup(workerCtx)

	r := router.SetupRouter(authService, handlers, cfg, streamLimiter, log)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	workersDone := make(chan struct{})
	go func() {
		workers.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
