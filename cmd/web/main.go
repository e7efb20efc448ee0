package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examprep/internal/app"

	"go.uber.org/zap"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	defer func() { _ = logger.Sync() }()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("examprep web listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("env", cfg.AppEnv),
			zap.String("exam_root", cfg.ExamRoot),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		return
	}
	logger.Info("server exited")
}
