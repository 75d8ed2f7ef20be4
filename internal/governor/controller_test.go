package governor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errSensorUnavailable = errors.New("sensor unavailable")

type fakeSensor struct {
	readings []Reading
	i        int
}

func (f *fakeSensor) Read(_ context.Context) (Reading, error) {
	r := f.readings[f.i]
	if f.i < len(f.readings)-1 {
		f.i++
	}
	return r, nil
}

type appliedCall struct {
	capKHz, minKHz int
	epp            string
}

type fakeActuator struct {
	applied []appliedCall
}

func (f *fakeActuator) Apply(capKHz, minKHz int, epp string) error {
	f.applied = append(f.applied, appliedCall{capKHz, minKHz, epp})
	return nil
}
func (f *fakeActuator) Init() error  { return nil }
func (f *fakeActuator) Reset() error { return nil }

func newTestController(profile Profile, clock *fixedClock, temps ...int) (*Controller, *fakeActuator) {
	table := DefaultTable(profile)
	readings := make([]Reading, len(temps))
	for i, t := range temps {
		readings[i] = Reading{TempC: t}
	}
	sensor := &fakeSensor{readings: readings}
	actuator := &fakeActuator{}
	c := NewController(profile, &table, sensor, actuator, clock, zap.NewNop())
	return c, actuator
}

func TestController_NoSpontaneousStepUp(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	c, actuator := newTestController(ProfileBalanced, clock, 30, 30, 30)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.tick(ctx))
		clock.Advance(PollInterval)
	}

	assert.Empty(t, actuator.applied, "a cool, steady reading below every threshold must never trigger a write")
	assert.Equal(t, c.Table.MaxCapKHz, c.State().CurrentCapKHz)
}

func TestController_CooldownBlocksImmediateStepUp(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	// Balanced: 96C (past the 90C level) steps straight down to the floor
	// cap; the very next tick
	// reads a cold temperature that would otherwise justify jumping back to
	// MaxCapKHz.
	c, actuator := newTestController(ProfileBalanced, clock, 96, 20)

	ctx := context.Background()
	require.NoError(t, c.tick(ctx))
	require.Len(t, actuator.applied, 1, "the initial hot reading must step down once")
	steppedDownCap := c.State().CurrentCapKHz
	assert.Equal(t, c.Table.Levels[len(c.Table.Levels)-1].CapKHz, steppedDownCap)

	clock.Advance(PollInterval) // only 2s elapsed, cooldown is 6s
	require.NoError(t, c.tick(ctx))

	assert.Len(t, actuator.applied, 1, "a step-up attempt inside the cooldown window must be a no-op")
	assert.Equal(t, steppedDownCap, c.State().CurrentCapKHz)
}

// floorControllerPastCooldown builds a Balanced controller already sitting
// at its floor cap with its cooldown window long expired and no prior
// temperature recorded, so the next tick's predictive bias and cooldown gate
// can't interfere with isolating the hysteresis check.
func floorControllerPastCooldown(clock *fixedClock, temp int) (*Controller, *fakeActuator) {
	c, actuator := newTestController(ProfileBalanced, clock, temp)
	c.state.CurrentCapKHz = c.Table.Levels[len(c.Table.Levels)-1].CapKHz
	c.state.LastStepDownAt = clock.Now().Add(-Cooldown - time.Second)
	return c, actuator
}

func TestController_HysteresisBlocksStepUpNearThreshold(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	// 78C sits between the 74C and 82C Balanced thresholds: Lookup targets
	// the 2,600,000 cap, so a step up is wanted, but the next cap above the
	// floor is 2,000,000, and 78+hysteresis(5) = 83 exceeds the 82C gate
	// that cap's level demands.
	c, actuator := floorControllerPastCooldown(clock, 78)
	floorCap := c.State().CurrentCapKHz

	require.NoError(t, c.tick(context.Background()))

	assert.Equal(t, floorCap, c.State().CurrentCapKHz)
	assert.Empty(t, actuator.applied, "no write should occur while hysteresis blocks the step")
}

func TestController_HysteresisAllowsStepUpBelowThreshold(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	// 76+hysteresis(5) = 81 clears the 82C gate, so the step should proceed.
	c, actuator := floorControllerPastCooldown(clock, 76)
	floorCap := c.State().CurrentCapKHz

	require.NoError(t, c.tick(context.Background()))

	assert.Greater(t, c.State().CurrentCapKHz, floorCap)
	assert.Len(t, actuator.applied, 1)
}

func TestController_PredictiveBiasAdvancesStepDown(t *testing.T) {
	// Without bias, 64C never reaches the 66C Balanced threshold. With a
	// rising delta of 4C (60 -> 64), the effective temperature (64 + 4/2 =
	// 66) crosses it a tick early.
	clock := newFixedClock(time.Unix(0, 0))
	c, actuator := newTestController(ProfileBalanced, clock, 60, 64)

	ctx := context.Background()
	require.NoError(t, c.tick(ctx))
	assert.Empty(t, actuator.applied, "first tick has no prior temperature to bias against")

	clock.Advance(PollInterval)
	require.NoError(t, c.tick(ctx))
	require.Len(t, actuator.applied, 1, "the predictive bias should have pulled the effective temperature over the 66C threshold")
	assert.Equal(t, c.Table.Levels[0].CapKHz, c.State().CurrentCapKHz)
}

func TestController_FlatTemperatureBelowThresholdDoesNotBias(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	c, actuator := newTestController(ProfileBalanced, clock, 64, 64)

	ctx := context.Background()
	require.NoError(t, c.tick(ctx))
	clock.Advance(PollInterval)
	require.NoError(t, c.tick(ctx))

	assert.Empty(t, actuator.applied, "a flat (non-rising) reading must never receive the predictive bias")
}

func TestController_RisingSpikeStepsDownEarly(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	c, actuator := newTestController(ProfilePerformance, clock, 55, 62, 80)

	ctx := context.Background()
	require.NoError(t, c.tick(ctx)) // 55C: below every threshold
	clock.Advance(PollInterval)
	require.NoError(t, c.tick(ctx)) // eff 62+3=65, still below 75C
	assert.Empty(t, actuator.applied)

	clock.Advance(PollInterval)
	require.NoError(t, c.tick(ctx)) // eff 80+9=89 crosses the 85C level
	require.Len(t, actuator.applied, 1)
	assert.Equal(t, 3_200_000, c.State().CurrentCapKHz)
}

func TestController_GradualRampStepsByFreqStep(t *testing.T) {
	clock := newFixedClock(time.Unix(100, 0))
	c, actuator := newTestController(ProfilePerformance, clock, 70, 68, 66, 64)
	c.state.CurrentCapKHz = 2_200_000
	c.state.LastStepDownAt = clock.Now().Add(-Cooldown - 2*time.Second)

	ctx := context.Background()
	want := []int{2_400_000, 2_600_000, 2_800_000, 3_000_000}
	for i, w := range want {
		require.NoError(t, c.tick(ctx))
		assert.Equal(t, w, c.State().CurrentCapKHz, "tick %d", i)
		clock.Advance(PollInterval)
	}
	require.Len(t, actuator.applied, len(want),
		"each tick past the pause window steps up by one FREQ_STEP, never more")
}

func TestController_HardSensorErrorOnTwoConsecutiveFailures(t *testing.T) {
	clock := newFixedClock(time.Unix(0, 0))
	table := DefaultTable(ProfileBalanced)
	c := NewController(ProfileBalanced, &table, &alwaysFailSensor{}, &fakeActuator{}, clock, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, c.tick(ctx), "a single soft failure is tolerated")
	err := c.tick(ctx)
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ErrCodeHardSensor, gerr.Code)
}

type alwaysFailSensor struct{}

func (alwaysFailSensor) Read(_ context.Context) (Reading, error) {
	return Reading{}, errSensorUnavailable
}
