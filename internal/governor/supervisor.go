package governor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// controllerRestartDelay is how long the supervisor waits before relaunching
// a controller that died of a hard sensor error.
const controllerRestartDelay = 5 * time.Second

// Supervisor owns at most one active Controller and swaps it out whenever
// the desktop session announces a profile change: a single owned goroutine,
// torn down with cancel-then-join before anything new starts, so the old
// controller has performed its last write before the new one's first.
type Supervisor struct {
	sensor   SensorReader
	actuator Actuator
	store    *Store
	clock    Clock
	logger   *zap.Logger

	mu     sync.Mutex
	active Profile
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor constructs a Supervisor. Init must be called once before the
// first Activate.
func NewSupervisor(sensor SensorReader, actuator Actuator, store *Store, clock Clock, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		sensor:   sensor,
		actuator: actuator,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Init performs the one-time actuator startup writes. It must succeed
// before any controller is activated.
func (s *Supervisor) Init() error {
	return s.actuator.Init()
}

// Activate stops whatever controller is currently running (if any) and
// starts a fresh one for profile, loading its thermal table from the store
// or falling back to defaults. A call naming the already-active profile is
// a no-op, since duplicate bus events must be tolerated.
func (s *Supervisor) Activate(ctx context.Context, profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil && s.active == profile {
		return
	}

	s.stopLocked()

	table := s.store.Load()[profile]

	// Apply the startup cap immediately so the new profile takes effect
	// before the first tick.
	if err := s.actuator.Apply(table.MaxCapKHz, MinCapKHz, profile.EPP()); err != nil {
		s.logger.Warn("initial profile apply failed", zap.Error(err), zap.String("profile", string(profile)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.active = profile

	go func() {
		defer close(done)
		s.runControllers(runCtx, profile, &table)
		// Flush the table one last time on the way out so a profile swap
		// never loses auto-tuner changes made since the last PersistInterval.
		if perr := s.store.Save(profile, table); perr != nil {
			s.logger.Warn("final persistence flush failed", zap.Error(perr))
		}
	}()

	s.logger.Info("activated profile", zap.String("profile", string(profile)))
}

// runControllers runs controllers for profile until ctx is canceled. A
// controller that dies of a hard sensor error is relaunched with fresh state
// after controllerRestartDelay; the table (and the learning it carries)
// survives across relaunches.
func (s *Supervisor) runControllers(ctx context.Context, profile Profile, table *ThermalTable) {
	for {
		ctrl := NewController(profile, table, s.sensor, s.actuator, s.clock, s.logger.Named(string(profile)))
		ctrl.Persist = s.store.Save
		ctrl.Tune = Tune
		s.logger.Debug("controller started",
			zap.String("profile", string(profile)),
			zap.String("instance_id", ctrl.State().InstanceID))

		err := ctrl.Run(ctx)
		if err == nil {
			return
		}
		s.logger.Error("controller exited with error, relaunching",
			zap.Error(err),
			zap.String("profile", string(profile)),
			zap.String("instance_id", ctrl.State().InstanceID))

		select {
		case <-ctx.Done():
			return
		case <-time.After(controllerRestartDelay):
		}

		if aerr := s.actuator.Apply(table.MaxCapKHz, MinCapKHz, profile.EPP()); aerr != nil {
			s.logger.Warn("relaunch apply failed", zap.Error(aerr), zap.String("profile", string(profile)))
		}
	}
}

// Stop shuts down the active controller, if any, and waits for it to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopLocked cancels and joins the active controller. Callers must hold s.mu.
func (s *Supervisor) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Active returns the currently active profile and whether one is running.
func (s *Supervisor) Active() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.cancel != nil
}
