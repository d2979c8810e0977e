package graceful

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rebalance-service/rebalance_service/pkg/logger"
)

// Shutdowner is a background component that drains within a deadline
type Shutdowner interface {
	Shutdown(timeout time.Duration) error
}

type namedShutdowner struct {
	name string
	s    Shutdowner
}

type namedCloser struct {
	name  string
	close func() error
}

// ShutdownManager stops the HTTP server, then registered components in
// registration order, then closes connections.
type ShutdownManager struct {
	server      *http.Server
	timeout     time.Duration
	shutdowners []namedShutdowner
	closers     []namedCloser
	logger      *logger.Logger
}

func NewShutdownManager(server *http.Server, timeout time.Duration, logger *logger.Logger) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		server:  server,
		timeout: timeout,
		logger:  logger,
	}
}

func (sm *ShutdownManager) Register(name string, s Shutdowner) {
	sm.shutdowners = append(sm.shutdowners, namedShutdowner{name: name, s: s})
}

// RegisterCloser adds a connection to close after every component has stopped
func (sm *ShutdownManager) RegisterCloser(name string, close func() error) {
	sm.closers = append(sm.closers, namedCloser{name: name, close: close})
}

// WaitForShutdown blocks until SIGINT or SIGTERM and then shuts down
func (sm *ShutdownManager) WaitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	signal.Stop(quit)

	sm.logger.Info("Shutting down gracefully...", "signal", sig.String())
	return sm.Shutdown()
}

// Shutdown stops everything it manages. Errors are logged and returned joined;
// a failing component does not prevent the rest from stopping.
func (sm *ShutdownManager) Shutdown() error {
	var errs []error

	if sm.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		err := sm.server.Shutdown(ctx)
		cancel()
		if err != nil {
			sm.logger.Error("Server forced shutdown", "error", err)
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	for _, c := range sm.shutdowners {
		if err := c.s.Shutdown(sm.timeout); err != nil {
			sm.logger.Warn("Component shutdown error", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		sm.logger.Info("Component stopped", "component", c.name)
	}

	for _, c := range sm.closers {
		if err := c.close(); err != nil {
			sm.logger.Warn("Close error", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}

	sm.logger.Info("Shutdown complete")
	return errors.Join(errs...)
}
