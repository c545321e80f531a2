package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/config"
	"github.com/qahub/qa-stream/internal/consumer"
	"github.com/qahub/qa-stream/internal/db"
	"github.com/qahub/qa-stream/internal/generator"
	"github.com/qahub/qa-stream/internal/metrics"
	"github.com/qahub/qa-stream/internal/pubsub"
	"github.com/qahub/qa-stream/internal/queue"
	"github.com/qahub/qa-stream/internal/ratelimiter"
	"github.com/qahub/qa-stream/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- redis: work queue and pub/sub ----
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	// Unique consumer name so several replicas in the same group claim
	// disjoint stream entries.
	consumerName := "consumer-" + uuid.NewString()
	q := queue.NewRedisQueue(rdb, cfg.StreamKey, cfg.GroupName, consumerName, cfg.ClaimBlock)
	if err := q.EnsureGroup(ctx); err != nil {
		logger.Fatal("failed to ensure consumer group", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.NewConsumer(reg)
	gen := generator.NewHTTPClient(cfg.GenerationURL, cfg.GenerationTimeout)
	limiter := ratelimiter.New(cfg.GenerationRate)
	repo := repository.NewPgAnswerRepository(pool)
	pub := pubsub.NewRedisPublisher(rdb)

	c := consumer.New(q, gen, limiter, repo, pub, cfg.AnswerVariants, cfg.GenerationTimeout, m, logger)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(workerCtx)
	}()

	// ---- ops HTTP server: health and metrics only ----
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}
	go func() {
		logger.Info("ops server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ops server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop the ops endpoint.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}

	// 2. Stop claiming new entries; an entry already claimed runs to
	// completion inside Run.
	cancelWorker()

	// 3. Wait for the in-flight entry to finish.
	<-done

	logger.Info("consumer stopped cleanly")
}
