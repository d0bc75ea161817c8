// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiceforge/internal/config"
	"voiceforge/internal/domain/ports/adapter"
	pg "voiceforge/internal/infra/db/postgres"
	"voiceforge/internal/infra/logging"
	"voiceforge/internal/infra/metrics"
	red "voiceforge/internal/infra/redis"
	"voiceforge/internal/infra/sched"
	"voiceforge/internal/infra/storage"
	"voiceforge/internal/infra/synth"
	"voiceforge/internal/infra/web"
	"voiceforge/internal/infra/worker"
	"voiceforge/internal/usecase"
)

// Overridden at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("postgres: %v", err)
	}

	jobRepo := pg.NewPostgresJobRepo(pool)
	userRepo := pg.NewPostgresUserRepo(pool)

	// ---- Redis (optional, backs submit rate limiting) ----
	var rateLimiter *red.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		rateLimiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured; submit rate limiting disabled")
	}

	// ---- Storage ----
	store, err := storage.NewFSStore(cfg.Storage.OutputDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// ---- Synthesis adapter (OpenAI -> Gemini) ----
	seg := synth.NewSegmenter()
	var engine adapter.SynthesisAdapter
	switch {
	case cfg.Synthesis.Provider == "openai" && cfg.Synthesis.OpenAIKey != "":
		engine, err = synth.NewOpenAISpeechAdapter(cfg.Synthesis.OpenAIKey, cfg.Synthesis.OpenAIModel, cfg.Synthesis.OpenAIBaseURL, store, seg)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
	case cfg.Synthesis.Provider == "gemini" && cfg.Synthesis.GeminiKey != "":
		engine, err = synth.NewGeminiTTSAdapter(ctx, cfg.Synthesis.GeminiKey, cfg.Synthesis.GeminiModel, store, seg)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
	default:
		log.Fatalf("no synthesis provider configured: set synthesis.openai_key or synthesis.gemini_key in %s", *cfgPath)
	}
	logger.Info().Str("provider", engine.Name()).Msg("synthesis adapter ready")

	// ---- Workers and use cases ----
	gate := usecase.NewAdmissionGate(cfg.Synthesis.ConcurrentLimit)
	runner := worker.NewRunner(logger)
	runner.Start(ctx)

	jobUC := usecase.NewJobUseCase(jobRepo, userRepo, engine, store, gate, runner, cfg.Synthesis.Timeout, logger)
	userUC := usecase.NewUserUseCase(userRepo, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, jobUC)

	failed, requeued, err := jobUC.RecoverInterrupted(ctx)
	if err != nil {
		log.Fatalf("recovery: %v", err)
	}
	logger.Info().Int("failed", failed).Int("requeued", requeued).Msg("startup recovery done")

	retention := sched.NewRetentionWorker(cfg.Retention.SweepInterval, cfg.Retention.Window, jobRepo, store, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := web.NewServer(jobUC, userUC, statsUC, auth, store, rateLimiter, cfg.Limits, logger)
	router := srv.Routes()
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
	runner.Stop()
}
