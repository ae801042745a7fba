package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown drains the server on SIGINT/SIGTERM. The grace period must
// outlast the long-poll window, or every waiting /updates and /messages poll
// gets cut off mid-request.
func GracefulShutdown(srv *http.Server, logger *zap.Logger, grace time.Duration, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining connections",
		zap.Duration("grace", grace))

	// A second signal forces an immediate exit.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown grace period expired with open connections", zap.Error(err))
	}

	done <- true
}
