package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/sourceflow/backend/internal/ai"
	"github.com/sourceflow/backend/internal/auth"
	"github.com/sourceflow/backend/internal/config"
	"github.com/sourceflow/backend/internal/email"
	"github.com/sourceflow/backend/internal/feedback"
	"github.com/sourceflow/backend/internal/jobs"
	"github.com/sourceflow/backend/internal/ledger"
	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
	"github.com/sourceflow/backend/internal/payments"
	"github.com/sourceflow/backend/internal/repository"
	"github.com/sourceflow/backend/internal/router"
	"github.com/sourceflow/backend/internal/scan"
	"github.com/sourceflow/backend/internal/shortlist"
	"github.com/sourceflow/backend/internal/user"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		slog.Error("Schema setup failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	planRepo := repository.NewPlanRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	cacheRepo := repository.NewScanCacheRepo(pool)
	shortlistRepo := repository.NewShortlistRepo(pool)
	feedbackRepo := repository.NewFeedbackRepo(pool)

	if err := planRepo.Seed(ctx, models.DefaultPlans()); err != nil {
		slog.Error("Plan seed failed", "error", err)
		os.Exit(1)
	}

	// Background email worker
	workers := river.NewWorkers()
	river.AddWorker(workers, email.NewPasswordResetWorker(cfg.ResendAPIKey, cfg.EmailFrom, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	enqueueEmail := func(ctx context.Context, args email.SendPasswordResetArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}

	// Services
	ledgerSvc := ledger.NewService(accountRepo, ledgerRepo, pool)
	authSvc := auth.NewService(accountRepo, ledgerSvc, enqueueEmail, cfg.JWTSecret, cfg.SignupBonusCredits, cfg.AppBaseURL)

	var scorer ai.Scorer
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiScorer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("Gemini scorer init failed", "error", err)
			os.Exit(1)
		}
		scorer = gemini
	} else {
		slog.Warn("GEMINI_API_KEY not set, scans will fail with AI_SERVICE_ERROR")
		scorer = ai.Disabled{}
	}

	orchestrator := scan.NewOrchestrator(jobRepo, cacheRepo, ledgerSvc, scorer, cfg.ScanTimeout, logger)

	razorpay := payments.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	paddle := payments.NewPaddleClient(cfg.PaddleAPIKey, cfg.PaddleWebhookSecret, cfg.PaddleSandbox)
	reconciler := payments.NewReconciler(paymentRepo, planRepo, ledgerSvc, pool, cfg.CustomCreditUnitPrice, cfg.MaxCustomCredits, logger)

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	jobsHandler := jobs.NewHandler(jobRepo, logger)
	scanHandler := scan.NewHandler(orchestrator, logger)
	paymentsHandler := payments.NewHandler(planRepo, reconciler, razorpay, paddle, cfg.EnableMockPayments, cfg.CustomCreditUnitPrice, cfg.MaxCustomCredits, logger)
	shortlistHandler := shortlist.NewHandler(shortlistRepo, jobRepo, logger)
	userHandler := user.NewHandler(ledgerRepo, logger)
	feedbackHandler := feedback.NewHandler(feedbackRepo, logger)

	requireAuth := middleware.JWTAuth(authSvc, accountRepo)
	optionalAuth := middleware.OptionalJWTAuth(authSvc, accountRepo)
	mux := router.New(authHandler, jobsHandler, scanHandler, paymentsHandler, shortlistHandler, userHandler, feedbackHandler, requireAuth, optionalAuth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes email jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
