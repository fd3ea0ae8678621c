package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/adapter"
	"github.com/srg/asyncble/inspector"
	"github.com/srg/asyncble/pkg/config"
)

// session is the central adapter of one command run.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	backend centralBackend
	central *adapter.Central
}

func openSession(cfg *config.Config, logger *logrus.Logger) (*session, error) {
	backend, err := newCentralBackend(logger, &cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE central: %w", err)
	}
	return &session{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		central: adapter.NewCentral(backend, logger, &cfg.Adapter),
	}, nil
}

func (s *session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// inspectOptions bounds connects by the configured operation timeout.
func (s *session) inspectOptions(readValues bool) *inspector.InspectOptions {
	return &inspector.InspectOptions{ConnectTimeout: s.cfg.OpTimeout, ReadValues: readValues}
}

// Close tears down the adapter, then releases the stack, which disconnects
// every peripheral.
func (s *session) Close() {
	s.central.Close()
	if err := s.backend.Close(); err != nil {
		s.logger.WithError(err).Debug("Failed to close BLE central")
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
