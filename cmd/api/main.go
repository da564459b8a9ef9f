package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appshell/internal"
	"appshell/internal/config"
	"appshell/internal/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		// No logger yet; the level itself may be what is misconfigured.
		logging.Must("info", "development").Fatal("configuration error", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		logging.Must("info", cfg.Environment).Fatal("logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := internal.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	go srv.RunCacheSweeper(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening",
			zap.String("addr", httpServer.Addr),
			zap.String("env", cfg.Environment),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.Bool("redis_cache", cfg.RedisURL != ""),
			zap.Bool("rls", cfg.RLSEnabled))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error("close resources", zap.Error(err))
	}
}
