// Package server wires together the sensor, actuator, persistence store,
// bus source and supervisor into the running thermgovd process.
package server

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/bus"
	"github.com/wrale/thermal-governor/internal/governor"
)

// Config holds the fully-validated settings the server needs to start.
type Config struct {
	SysfsRoot      string
	TempPath       string
	FanPaths       []string
	HWPBoostPath   string
	StatePath      string
	InitialProfile string
	BusFilePath    string
	UseSessionBus  bool
	DryRun         bool
}

// Server is the thermgovd process: one supervisor driving the active
// controller, and one bus source feeding it profile changes.
type Server struct {
	cfg    Config
	logger *zap.Logger

	sensor     governor.SensorReader
	actuator   governor.Actuator
	store      *governor.Store
	supervisor *governor.Supervisor
	busSource  bus.ProfileSource
}

// New constructs a Server from cfg. It does not touch sysfs or the bus
// until Run is called.
func New(logger *zap.Logger, cfg Config) (*Server, error) {
	sensor := governor.NewSysfsSensor(cfg.TempPath, cfg.FanPaths)

	var actuator governor.Actuator
	real := governor.NewSysfsActuator(cfg.SysfsRoot, cfg.HWPBoostPath)
	real.OnWriteFailure = func(cpu, file string, err error) {
		logger.Warn("actuator write failed", zap.String("cpu", cpu), zap.String("file", file), zap.Error(err))
	}
	if cfg.DryRun {
		actuator = newDryRunActuator(real, logger.Named("dry-run"))
	} else {
		actuator = real
	}

	store := governor.NewStore(cfg.StatePath)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		sensor:     sensor,
		actuator:   actuator,
		store:      store,
		supervisor: governor.NewSupervisor(sensor, actuator, store, governor.SystemClock{}, logger),
	}
	return s, nil
}

// newBusSource constructs the configured ProfileSource: the session bus by
// default, a watched file when UseSessionBus is false.
func (s *Server) newBusSource() (bus.ProfileSource, error) {
	if s.cfg.UseSessionBus {
		return bus.NewDBusSource(s.logger.Named("bus")), nil
	}
	src, err := bus.NewFileSource(s.cfg.BusFilePath, s.logger.Named("bus"))
	if err != nil {
		return nil, fmt.Errorf("starting file bus source: %w", err)
	}
	return src, nil
}
