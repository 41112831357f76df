package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/artspark/backend/internal/auth"
	"github.com/artspark/backend/internal/billing"
	"github.com/artspark/backend/internal/cleanup"
	"github.com/artspark/backend/internal/config"
	"github.com/artspark/backend/internal/dashboard"
	"github.com/artspark/backend/internal/generation"
	"github.com/artspark/backend/internal/handlers"
	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/realtime"
	"github.com/artspark/backend/internal/registry"
	"github.com/artspark/backend/internal/repository"
	"github.com/artspark/backend/internal/router"
	"github.com/artspark/backend/internal/services"
	"github.com/artspark/backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	// Balances are NUMERIC; register the decimal codec on every connection.
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Model catalog: fail fast on a bad file, the whole pricing path depends
	// on it.
	reg, err := registry.Load(cfg.ModelsFile)
	if err != nil {
		slog.Error("Model registry load failed", "file", cfg.ModelsFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Model registry loaded", "models", len(reg.List()))

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	imageRepo := repository.NewImageRepo(pool)
	commentRepo := repository.NewCommentRepo(pool)
	likeRepo := repository.NewLikeRepo(pool)

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, pool)

	// Auth
	authSvc := auth.NewService(accountRepo, ledgerSvc, pool, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// Provider + blob storage
	genClient := generation.NewClient(cfg.ProviderAPIKey)
	blobs, err := storage.NewBlobStore(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL)
	if err != nil {
		slog.Error("Blob store init failed", "error", err)
		os.Exit(1)
	}

	orch := services.NewOrchestrator(
		pool, ledgerSvc, reg, genClient, blobs,
		taskRepo, imageRepo, services.Thumbnailer{}, logger,
	)

	// Background workers
	workers := river.NewWorkers()
	river.AddWorker(workers, &cleanup.SweepWorker{Logger: logger})
	river.AddWorker(workers, &cleanup.ReconcileWorker{Tasks: taskRepo, Ledger: ledgerSvc, Logger: logger})

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			cleanup.PeriodicJob(cfg.TmpUploadDir, cfg.TmpMaxAge),
			cleanup.ReconcilePeriodicJob(),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Handlers
	genHandler := handlers.NewGenerateHandler(orch, taskRepo, reg, logger)
	imagesHandler := handlers.NewImagesHandler(imageRepo)
	socialHandler := handlers.NewSocialHandler(commentRepo, likeRepo, imageRepo)
	wsHandler := realtime.NewHandler(orch, logger)
	dashHandler := dashboard.NewHandler(ledgerRepo, taskRepo)
	billingHandler := billing.NewHandler(ledgerSvc, cfg.CheckoutBaseURL, logger)

	session := router.Middleware(middleware.SessionAuth(authSvc, accountRepo))
	modelCheck := router.Middleware(middleware.ModelCheck(reg))

	mux := router.New(authHandler, dashHandler, billingHandler, session)
	RegisterGenerationRoutes(mux, genHandler, imagesHandler, socialHandler, wsHandler, session, modelCheck)

	handler := middleware.RequestLogger(logger)(mux)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://artspark.dev"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	// Start River client (runs the periodic sweeps)
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
