package internal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type GracefulShutdownHandler interface {
	Shutdown()          // Triggers a graceful shutdown programmatically.
	ShuttingDown() bool // Quickly checks if a shutdown is in progress.
	Wait() error        // Blocks until shutdown tasks are complete.
}

type gracefulShutdown struct {
	quit         chan os.Signal // Receives SIGTERM/SIGINT or a programmatic shutdown.
	shuttingDown atomic.Bool
	wg           sync.WaitGroup // Waits until all shutdown tasks are complete.
	err          error
}

// NewGracefulShutdown starts waiting for SIGTERM/SIGINT in the background.
// onShutdown (if not nil) runs once a signal arrives and gets a context that expires after timeout.
func NewGracefulShutdown(onShutdown func(ctx context.Context) error, timeout time.Duration) GracefulShutdownHandler {
	gs := &gracefulShutdown{
		quit: make(chan os.Signal, 1),
	}
	if timeout <= 0 {
		timeout = ThirtySeconds
	}
	signal.Notify(gs.quit, syscall.SIGINT, syscall.SIGTERM)
	gs.wg.Add(1)

	go func() {
		defer gs.wg.Done()
		// Kubernetes sends SIGTERM 30 seconds before shutting down the pod,
		// so everything below runs on borrowed time.
		sig := <-gs.quit
		signal.Stop(gs.quit)
		gs.shuttingDown.Store(true)
		zap.S().Infow("Received signal, shutting down", "signal", sig.String())
		if onShutdown == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		zap.S().Infow("Waiting for shutdown tasks to complete", "timeout", timeout)
		gs.err = onShutdown(ctx)
		if gs.err != nil {
			zap.S().Errorw("Error during shutdown", "error", gs.err)
			return
		}
		zap.S().Info("Shutdown tasks completed. Ready to exit.")
	}()

	return gs
}

func (gs *gracefulShutdown) ShuttingDown() bool {
	return gs.shuttingDown.Load()
}

func (gs *gracefulShutdown) Shutdown() {
	// Only send a SIGTERM signal if we are not already shutting down.
	if gs.ShuttingDown() {
		return
	}
	select {
	case gs.quit <- syscall.SIGTERM:
	default:
	}
}

func (gs *gracefulShutdown) Wait() error {
	gs.wg.Wait()
	return gs.err
}
