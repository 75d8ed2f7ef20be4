package server

import (
	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/governor"
)

// dryRunActuator logs every write the real actuator would have made
// instead of making it, so an operator can watch the controller's decisions
// on hardware they don't want touched yet.
type dryRunActuator struct {
	inner  *governor.SysfsActuator
	logger *zap.Logger
}

func newDryRunActuator(inner *governor.SysfsActuator, logger *zap.Logger) *dryRunActuator {
	return &dryRunActuator{inner: inner, logger: logger}
}

func (d *dryRunActuator) Init() error {
	d.logger.Info("would initialize actuator (dry run, no writes made)")
	return nil
}

func (d *dryRunActuator) Apply(capKHz, minKHz int, epp string) error {
	d.logger.Info("would apply cap",
		zap.Int("cap_khz", capKHz), zap.Int("min_khz", minKHz), zap.String("epp", epp))
	return nil
}

func (d *dryRunActuator) Reset() error {
	d.logger.Info("would reset actuator to host defaults (dry run, no writes made)")
	return nil
}
