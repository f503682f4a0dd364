package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/afisha/internal/audit"
	"github.com/avolkov/afisha/internal/config"
	"github.com/avolkov/afisha/internal/infrastructure/postgres"
	"github.com/avolkov/afisha/internal/infrastructure/redis"
	"github.com/avolkov/afisha/internal/pkg/logger"
	"github.com/avolkov/afisha/internal/security"
	"github.com/avolkov/afisha/internal/service"
	"github.com/avolkov/afisha/internal/stats"
	"github.com/avolkov/afisha/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "afisha").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// best-effort: the service degrades without redis, it does not die
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Statistics collector ----
	var collector stats.Collector = stats.Noop{}
	if cfg.StatsURL != "" {
		collector = stats.NewClient(stats.DefaultClientConfig(cfg.StatsURL))
		log.Info().Str("stats_url", cfg.StatsURL).Msg("statistics collector configured")
	}

	// ---- Application services ----
	aud := audit.New(logger.Logger)
	eventSvc := service.NewEventService(repo, repo, collector, cache, aud)
	requestSvc := service.NewRequestService(repo, repo, repo, cache, aud)
	h := rest.NewHandler(eventSvc, requestSvc)

	// ---- JWT verifier ----
	verifier := security.NewHS256Verifier(cfg.JWTSecret)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:           cache,
		Handler:         h,
		Verifier:        verifier,
		JWTIssuer:       cfg.JWTIssuer,
		RateLimit:       cfg.RLLimit,
		RateLimitWindow: cfg.RLWindow,
	})

	// ---- Outbox worker (outbound request.* / event.* messages) ----
	if cfg.OutboxEnabled {
		repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
		log.Info().Msg("outbox worker started")
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
