// Package options provides thermgovd's configuration and server
// construction.
package options

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/cmd/thermgovd/logger"
	"github.com/wrale/thermal-governor/cmd/thermgovd/server"
)

// Config holds the command-line options for thermgovd.
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
	LogLevel       string
	LogJSON        bool
}

// New returns a Config populated with thermgovd's production defaults.
func New() *Config {
	return &Config{
		SysfsRoot:      "/sys/devices/system/cpu",
		TempPath:       "/sys/class/thermal/thermal_zone0/temp",
		HWPBoostPath:   "/sys/devices/system/cpu/intel_pstate/hwp_dynamic_boost",
		StatePath:      "/var/lib/thermal-governor/tuned-params.json",
		InitialProfile: "balanced",
		BusFilePath:    "/run/thermgovd/profile",
		UseSessionBus:  true,
		LogLevel:       "info",
	}
}

// Validate checks the configuration for obviously unusable values.
func (c *Config) Validate() error {
	if c.SysfsRoot == "" {
		return fmt.Errorf("sysfs root is required")
	}
	if c.TempPath == "" {
		return fmt.Errorf("temperature sensor path is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state path is required")
	}
	switch c.InitialProfile {
	case "power-saver", "balanced", "performance":
	default:
		return fmt.Errorf("invalid initial profile: %s", c.InitialProfile)
	}
	return nil
}

// NewServer validates cfg, builds the logger, and constructs the server
// ready to Run. It also returns the root logger so the caller can Sync it
// on exit.
func NewServer(cfg *Config) (*server.Server, *zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{LogLevel: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	srv, err := server.New(log, server.Config{
		SysfsRoot:      cfg.SysfsRoot,
		TempPath:       cfg.TempPath,
		FanPaths:       cfg.FanPaths,
		HWPBoostPath:   cfg.HWPBoostPath,
		StatePath:      cfg.StatePath,
		InitialProfile: cfg.InitialProfile,
		BusFilePath:    cfg.BusFilePath,
		UseSessionBus:  cfg.UseSessionBus,
		DryRun:         cfg.DryRun,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing server: %w", err)
	}

	return srv, log, nil
}
