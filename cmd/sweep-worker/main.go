package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/app"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("sweep-worker")

	logger.Info("sweep worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot, err := app.New(rootCtx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := boot.Shutdown(shutdownCtx); err != nil {
			logger.Error("bootstrap shutdown", zap.Error(err))
		}
	}()

	clock := appointment.SystemClock{Location: cfg.Location}

	// Run once at startup
	runOnce(rootCtx, logger, boot.Service, clock)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, boot.Service, clock)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, svc *appointment.Service, clock appointment.Clock) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	res, err := svc.Sweep(runCtx, clock.Now())
	if err != nil {
		logger.Error("sweep run failed", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("expired_windows", res.ExpiredWindows),
		zap.Int("completed_bookings", res.CompletedBookings),
		zap.Duration("took", time.Since(start)),
	)
}
