// Package app contains the shared, reusable logic for starting and stopping the service.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Service is the lifecycle the entrypoints drive.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ShutdownTimeout bounds the graceful shutdown.
const ShutdownTimeout = 15 * time.Second

// Run starts the service, waits for an OS signal, a cancelled ctx or a
// fatal service error, then shuts the service down. It returns the fatal
// error, if any, so the caller can choose the exit code.
func Run(ctx context.Context, logger zerolog.Logger, service Service) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Msg("Starting feed relay...")
		errChan <- service.Start(ctx)
	}()

	var runErr error
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Feed relay failed")
			runErr = err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received, initiating shutdown.")
	}

	// Execute graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Feed relay shutdown failed.")
	}

	logger.Info().Msg("All services shut down gracefully.")
	return runErr
}
