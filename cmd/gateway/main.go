package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qahub/qa-stream/internal/config"
	"github.com/qahub/qa-stream/internal/gateway"
	"github.com/qahub/qa-stream/internal/metrics"
	"github.com/qahub/qa-stream/internal/pubsub"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- redis pub/sub ----
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.NewGateway(reg)
	registry := gateway.NewRegistry(m)
	h := gateway.NewHandler(registry, cfg.KeepAliveInterval, m, logger)
	fwd := gateway.NewForwarder(registry, logger)

	// ---- pub/sub feed ----
	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()

	go func() {
		sub := pubsub.NewRedisSubscriber(rdb)
		if err := sub.Run(subCtx, fwd.Handle); err != nil {
			// Without the feed every open connection is a dead end.
			logger.Fatal("pub/sub subscriber error", zap.Error(err))
		}
	}()

	// ---- HTTP server ----
	// SSE connections stay open indefinitely, so no WriteTimeout; their
	// request contexts hang off connCtx so shutdown can end the streams.
	connCtx, cancelConns := context.WithCancel(ctx)
	defer cancelConns()

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     gateway.NewRouter(h, reg, logger),
		BaseContext: func(net.Listener) context.Context { return connCtx },
	}
	go func() {
		logger.Info("gateway starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("gateway server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop the pub/sub feed so no more frames are queued.
	cancelSub()

	// 2. End the open SSE streams; their handlers return on context done.
	cancelConns()

	// 3. Drain the server.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown error", zap.Error(err))
	}

	logger.Info("gateway stopped cleanly")
}
