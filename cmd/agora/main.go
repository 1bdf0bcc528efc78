// Agora server: provides the discussion HTTP API, runs the analysis worker
// pool, resumes batch pipelines, and schedules the daily karma batch.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/agora-discourse/agora/pkg/api"
	"github.com/agora-discourse/agora/pkg/auth"
	"github.com/agora-discourse/agora/pkg/blocklist"
	"github.com/agora-discourse/agora/pkg/config"
	"github.com/agora-discourse/agora/pkg/database"
	"github.com/agora-discourse/agora/pkg/discourse"
	"github.com/agora-discourse/agora/pkg/objectstore"
	"github.com/agora-discourse/agora/pkg/pipeline"
	"github.com/agora-discourse/agora/pkg/queue"
	"github.com/agora-discourse/agora/pkg/services"
	"github.com/agora-discourse/agora/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (migrations run inside NewClient)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	pool := dbClient.Pool()

	// 3. Discourse engine client + domain services
	engine := discourse.NewClient(cfg.Discourse.BaseURL)

	users := services.NewUserService(pool)
	content := services.NewContentService(pool)
	votes := services.NewVoteService(pool)
	feeds := services.NewFeedService(pool)
	follows := services.NewFollowService(pool)
	notifications := services.NewNotificationService(pool)
	analysis := services.NewAnalysisService(pool)
	graph := services.NewGraphService(pool)
	gamify := services.NewGamifyService(pool, notifications)
	search := services.NewSearchService(pool, engine)
	arguments := services.NewArgumentService(pool)
	karma := services.NewKarmaService(pool, notifications)
	enthymemes := services.NewEnthymemeService(pool, content)
	slog.Info("Services initialized")

	// 4. Auth: session tokens plus the refreshing service-account allowlist
	tokens := auth.NewTokenIssuer(cfg.Auth)
	allowlist := auth.NewAllowlist(pool, cfg.Auth.AllowlistRefreshInterval)
	if err := allowlist.Start(ctx); err != nil {
		slog.Error("Failed to start service allowlist", "error", err)
		os.Exit(1)
	}
	defer allowlist.Stop()
	verifier := auth.NewGoogleVerifier(cfg.Auth.JWTAudience)
	authService := auth.NewService(verifier, allowlist, tokens, users)

	// 5. Analysis worker pool
	executor := queue.NewExecutor(pool, engine, analysis, graph, gamify, search)
	workerPool := queue.NewWorkerPool(pool, cfg.Queue, analysis, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 6. Batch pipeline: resume any runs interrupted by the last shutdown.
	// The final stage checkpoint is the pipeline's artifact, so no sink.
	objectDir := getEnv("PIPELINE_OBJECT_DIR", "./data/pipelines")
	objects, err := objectstore.NewFilesystemStore(objectDir)
	if err != nil {
		slog.Error("Failed to open pipeline object store", "dir", objectDir, "error", err)
		os.Exit(1)
	}
	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewStore(pool),
		engine,
		objects,
		[]pipeline.Stage{
			pipeline.Passthrough("stage0"),
			pipeline.Passthrough("stage1-fvp"),
			pipeline.Passthrough("stage2-rewrite"),
		},
		nil,
	)
	go func() {
		if err := orchestrator.ResumeAll(ctx); err != nil {
			slog.Error("Pipeline resume failed", "error", err)
		}
	}()

	// 7. Daily karma batch + enthymeme backfill on the configured schedule
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Karma.Schedule, func() {
		batchCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()

		stats, err := karma.RunDailyBatch(batchCtx)
		if err != nil {
			slog.Error("Daily karma batch failed", "error", err)
		} else {
			slog.Info("Daily karma batch complete",
				"users_credited", stats.UsersCredited,
				"escrows_languished", stats.EscrowsLanguished,
				"streams_halted", stats.StreamsHalted)
		}

		systemUser, err := users.GetSystemUser(batchCtx)
		if err != nil {
			slog.Error("Enthymeme backfill skipped, no system user", "error", err)
			return
		}
		created, err := enthymemes.Backfill(batchCtx, systemUser)
		if err != nil {
			slog.Error("Enthymeme backfill failed", "error", err)
			return
		}
		if created > 0 {
			slog.Info("Enthymeme backfill complete", "created", created)
		}
	})
	if err != nil {
		slog.Error("Invalid karma batch schedule", "schedule", cfg.Karma.Schedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 8. HTTP server
	server := api.NewServer(cfg, api.Dependencies{
		DB:            pool,
		Users:         users,
		Content:       content,
		Votes:         votes,
		Feeds:         feeds,
		Follows:       follows,
		Notifications: notifications,
		Search:        search,
		Arguments:     arguments,
		Analysis:      analysis,
		AuthService:   authService,
		Tokens:        tokens,
		Blocklist:     blocklist.New(),
		Workers:       workerPool,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Agora started",
		"version", version.Full(), "addr", cfg.Server.Addr, "workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown, reverse order of startup
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(30 * time.Second):
		slog.Warn("Worker pool shutdown timeout exceeded, stale runs will be swept")
	}

	slog.Info("Shutdown complete")
}
