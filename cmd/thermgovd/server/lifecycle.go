package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/bus"
	"github.com/wrale/thermal-governor/internal/governor"
)

// Run starts the bus source and the supervisor, activates the initial
// profile, then blocks until ctx is canceled. On return it has already
// performed the graceful shutdown sequence: stop the supervisor (flushing
// persistence), then reset the host to its defaults.
func (s *Server) Run(ctx context.Context) error {
	// A missing temperature sensor is fatal only here, at startup; past
	// this point sensor failures degrade to soft errors.
	if _, err := governor.ReadWithTimeout(ctx, s.sensor); err != nil {
		return fmt.Errorf("temperature sensor unavailable at startup: %w", err)
	}

	if err := s.supervisor.Init(); err != nil {
		return fmt.Errorf("actuator init: %w", err)
	}

	initialProfile := s.initialProfile()
	s.supervisor.Activate(ctx, initialProfile)

	busSource, err := s.newBusSource()
	if err != nil {
		return fmt.Errorf("starting bus source: %w", err)
	}
	s.busSource = busSource

	s.logger.Info("thermgovd running", zap.String("initial_profile", string(initialProfile)))

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case profile, ok := <-busSource.Events():
			if !ok {
				return s.shutdown()
			}
			s.supervisor.Activate(ctx, profile)
		}
	}
}

// initialProfile resolves the profile to activate at startup: the session
// bus's one-shot active-profile query when available, otherwise the
// configured default.
func (s *Server) initialProfile() governor.Profile {
	configured := governor.Profile(s.cfg.InitialProfile)
	if !s.cfg.UseSessionBus {
		return configured
	}
	p, err := bus.QueryActiveProfile()
	if err != nil {
		s.logger.Warn("initial profile query failed, using configured default",
			zap.Error(err), zap.String("default", string(configured)))
		return configured
	}
	return p
}

// shutdown performs the host-reset lifecycle: stop the active
// controller (which flushes persistence), close the bus source, then reset
// every CPU to its host-default cap, min and EPP.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down")

	s.supervisor.Stop()

	if s.busSource != nil {
		if err := s.busSource.Close(); err != nil {
			s.logger.Warn("bus source close failed", zap.Error(err))
		}
	}

	if err := s.actuator.Reset(); err != nil {
		return fmt.Errorf("resetting host defaults: %w", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}
