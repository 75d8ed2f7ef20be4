package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"go.uber.org/zap"
)

// Loop timing: the tick period, the quiet window a step-down imposes on
// later step-ups, and the tuner/persister cadences.
const (
	PollInterval    = 2 * time.Second
	Cooldown        = 6 * time.Second
	TuneInterval    = 120 * time.Second
	PersistInterval = 300 * time.Second
)

// Controller states: Steady, JustSteppedDown and JustSteppedUp, modeled
// with a github.com/qmuntal/stateless machine.
const (
	stateSteady        = "steady"
	stateJustSteppedUp = "just_stepped_up"
	stateJustSteppedDn = "just_stepped_down"

	triggerStepUp   = "step_up"
	triggerStepDown = "step_down"
	triggerSettle   = "settle"
)

// ControllerState is the controller's per-activation mutable state.
type ControllerState struct {
	InstanceID          string
	CurrentCapKHz       int
	LastTempC           *int
	LastStepDownAt      time.Time
	LastStepUpAt        time.Time
	PendingUpPauseUntil time.Time
}

// PersistFunc is invoked by the controller on PersistInterval to snapshot
// the current table. The controller does not call it on shutdown; the
// supervisor performs that final save.
type PersistFunc func(profile Profile, table ThermalTable) error

// TuneFunc is invoked by the controller on TuneInterval with a snapshot of
// the sample window.
type TuneFunc func(table *ThermalTable, samples []Sample) bool

// Controller is the feedback loop: predictive step-down, gradual step-up,
// cooldown after a step-down, one-poll pause after a step-up.
type Controller struct {
	Profile  Profile
	Table    *ThermalTable
	Sensor   SensorReader
	Actuator Actuator
	Window   *Window
	Clock    Clock
	Logger   *zap.Logger

	Persist PersistFunc
	Tune    TuneFunc

	state ControllerState
	fsm   *stateless.StateMachine

	consecutiveSoftFailures int
	ticksSinceBoot          time.Duration
	lastTuneAt              time.Duration
	lastPersistAt           time.Duration

	stopCh chan struct{}
}

// NewController wires up a Controller for profile, starting from table at
// cap = table.MaxCapKHz, matching the initial configuration the supervisor
// applies on activation.
func NewController(profile Profile, table *ThermalTable, sensor SensorReader, actuator Actuator, clock Clock, logger *zap.Logger) *Controller {
	c := &Controller{
		Profile:  profile,
		Table:    table,
		Sensor:   sensor,
		Actuator: actuator,
		Window:   NewWindow(minWindowCapacity),
		Clock:    clock,
		Logger:   logger,
		state: ControllerState{
			InstanceID:    uuid.NewString(),
			CurrentCapKHz: table.MaxCapKHz,
		},
		stopCh: make(chan struct{}),
	}
	c.fsm = c.newFSM()
	return c
}

func (c *Controller) newFSM() *stateless.StateMachine {
	sm := stateless.NewStateMachine(stateSteady)

	sm.Configure(stateSteady).
		Permit(triggerStepDown, stateJustSteppedDn).
		Permit(triggerStepUp, stateJustSteppedUp)

	sm.Configure(stateJustSteppedDn).
		PermitReentry(triggerStepDown).
		Permit(triggerSettle, stateSteady)

	sm.Configure(stateJustSteppedUp).
		Permit(triggerStepDown, stateJustSteppedDn).
		Permit(triggerSettle, stateSteady)

	return sm
}

// Stop requests cancellation-safe shutdown; the Run loop observes it within
// one PollInterval.
func (c *Controller) Stop() {
	close(c.stopCh)
}

// Run executes the tick loop until ctx is canceled or Stop is called. It
// returns a HardSensor *Error if two consecutive temperature reads fail;
// the supervisor is expected to relaunch on that error.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				return err
			}
			c.ticksSinceBoot += PollInterval
			c.maybeTune()
			c.maybePersist()
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	reading, err := ReadWithTimeout(ctx, c.Sensor)
	if err != nil {
		c.consecutiveSoftFailures++
		c.Logger.Warn("sensor read failed, skipping tick",
			zap.Error(err), zap.Int("consecutive_failures", c.consecutiveSoftFailures))
		if c.consecutiveSoftFailures >= 2 {
			return E("Controller.tick", ErrCodeHardSensor, "two consecutive sensor read failures", err)
		}
		return nil
	}
	c.consecutiveSoftFailures = 0

	effTemp := c.effectiveTemp(reading.TempC)
	target := c.Table.Lookup(effTemp)
	now := c.Clock.Now()

	// Settle first so an expired cooldown or pause window returns the
	// machine to Steady before this tick's step (if any) fires.
	c.settleIfDue(now)

	switch {
	case target < c.state.CurrentCapKHz:
		c.stepDown(target, reading, now)
	case target > c.state.CurrentCapKHz:
		c.maybeStepUp(target, reading, now)
	}

	c.Window.Push(Sample{
		TempC:         reading.TempC,
		FanRPMMax:     reading.FanRPMMax,
		CapKHzApplied: c.state.CurrentCapKHz,
		Timestamp:     now,
	})
	temp := reading.TempC
	c.state.LastTempC = &temp

	return nil
}

// effectiveTemp applies the predictive bias: on a rising temperature, add
// half the positive delta so a fast rise pulls thresholds in early. A
// non-positive delta leaves the temperature unmodified; the asymmetry is
// intentional, since biasing falls too would accelerate step-ups straight
// into an incoming thermal wall.
func (c *Controller) effectiveTemp(tempC int) int {
	if c.state.LastTempC == nil {
		return tempC
	}
	delta := tempC - *c.state.LastTempC
	if delta <= 0 {
		return tempC
	}
	return tempC + delta/2
}

func (c *Controller) stepDown(target int, reading Reading, now time.Time) {
	c.applyCap(target)
	c.state.LastStepDownAt = now
	_ = c.fsm.Fire(triggerStepDown)
	c.logStep(reading, "down", c.state.CurrentCapKHz, target)
	c.state.CurrentCapKHz = target
}

func (c *Controller) maybeStepUp(target int, reading Reading, now time.Time) {
	if now.Sub(c.state.LastStepDownAt) < Cooldown {
		return
	}
	if now.Before(c.state.PendingUpPauseUntil) {
		return
	}

	next := c.Table.NextStepUpTarget(c.state.CurrentCapKHz)
	gateThreshold, ok := c.Table.thresholdForCap(next)
	if !ok {
		gateThreshold = c.Table.coolestThreshold()
	}
	hysteresis := c.Profile.Hysteresis()
	if reading.TempC+hysteresis > gateThreshold {
		return
	}

	newCap := c.state.CurrentCapKHz + FreqStep
	if newCap > next {
		newCap = next
	}
	c.applyCap(newCap)
	c.state.LastStepUpAt = now
	c.state.PendingUpPauseUntil = now.Add(PollInterval)
	_ = c.fsm.Fire(triggerStepUp)
	c.logStep(reading, "up", c.state.CurrentCapKHz, newCap)
	c.state.CurrentCapKHz = newCap
}

func (c *Controller) settleIfDue(now time.Time) {
	switch c.fsm.MustState() {
	case stateJustSteppedDn:
		if now.Sub(c.state.LastStepDownAt) >= Cooldown {
			_ = c.fsm.Fire(triggerSettle)
		}
	case stateJustSteppedUp:
		if !now.Before(c.state.PendingUpPauseUntil) {
			_ = c.fsm.Fire(triggerSettle)
		}
	}
}

func (c *Controller) applyCap(capKHz int) {
	if err := c.Actuator.Apply(capKHz, MinCapKHz, c.Profile.EPP()); err != nil {
		c.Logger.Error("actuator apply failed", zap.Error(err), zap.Int("cap_khz", capKHz))
	}
}

func ghz(khz int) float64 { return float64(khz) / 1_000_000 }

func (c *Controller) logStep(reading Reading, direction string, fromKHz, toKHz int) {
	arrow := "↓"
	if direction == "up" {
		arrow = "↑"
	}
	c.Logger.Info(fmt.Sprintf("%d°C fan:%drpm %s %.1f→%.1f GHz",
		reading.TempC, reading.FanRPMMax, arrow, ghz(fromKHz), ghz(toKHz)))
}

func (c *Controller) maybeTune() {
	if c.Tune == nil {
		return
	}
	if c.ticksSinceBoot-c.lastTuneAt < TuneInterval {
		return
	}
	c.lastTuneAt = c.ticksSinceBoot

	samplesPerWindow := int(TuneInterval / PollInterval)
	samples := c.Window.Snapshot(samplesPerWindow)
	if changed := c.Tune(c.Table, samples); changed {
		c.Logger.Info("auto-tuner rewrote thermal table",
			zap.String("profile", string(c.Profile)),
			zap.Int("max_cap_khz", c.Table.MaxCapKHz))
	}
}

func (c *Controller) maybePersist() {
	if c.Persist == nil {
		return
	}
	if c.ticksSinceBoot-c.lastPersistAt < PersistInterval {
		return
	}
	c.lastPersistAt = c.ticksSinceBoot

	if err := c.Persist(c.Profile, *c.Table); err != nil {
		c.Logger.Warn("persistence save failed, retrying next interval", zap.Error(err))
	}
}

// State returns a copy of the controller's current mutable state, for
// diagnostics and tests.
func (c *Controller) State() ControllerState {
	return c.state
}
