package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(n int, tempC int, fanRPM uint32, capKHz int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{TempC: tempC, FanRPMMax: fanRPM, CapKHzApplied: capKHz}
	}
	return out
}

func TestTune_PerformanceRaisesWhenCool(t *testing.T) {
	// Start below the ceiling so the raise isn't clamped away.
	table := DefaultTable(ProfilePerformance)
	table.MaxCapKHz -= 2 * TuneStep
	for i := range table.Levels {
		table.Levels[i].CapKHz -= 2 * TuneStep
	}
	table.EnforceInvariants()
	before := table.Clone()

	samples := samplesOf(60, 88, 1000, table.Levels[len(table.Levels)-1].CapKHz)
	changed := Tune(&table, samples)

	require.True(t, changed)
	assertMonotone(t, table)
	assert.Equal(t, before.MaxCapKHz+TuneStep, table.MaxCapKHz)
	for i := range before.Levels {
		assert.Equal(t, before.Levels[i].CapKHz+TuneStep, table.Levels[i].CapKHz)
	}
}

func TestTune_PerformanceEmergencyLower(t *testing.T) {
	table := DefaultTable(ProfilePerformance)
	before := table.Clone()

	samples := samplesOf(60, 99, 0, before.Levels[0].CapKHz)
	changed := Tune(&table, samples)

	require.True(t, changed)
	assertMonotone(t, table)
	assert.LessOrEqual(t, table.MaxCapKHz, before.MaxCapKHz-2*TuneStep)
}

func TestTune_PerformanceHardThrottleDetectionLowers(t *testing.T) {
	table := DefaultTable(ProfilePerformance)
	before := table.Clone()

	// Pinned at the floor (the hottest level's cap) with max_temp in the
	// 90..93 band: neither the raise rule nor the temperature-only lower
	// rules fire, so only the hard-throttle detection can.
	floorCap := before.Levels[len(before.Levels)-1].CapKHz
	samples := samplesOf(60, 92, 3000, floorCap)
	changed := Tune(&table, samples)

	require.True(t, changed)
	assertMonotone(t, table)
	assert.Equal(t, before.MaxCapKHz-2*TuneStep, table.MaxCapKHz)
}

func TestTune_PowerSaverNoUpwardAdjustmentWhenUnderload(t *testing.T) {
	table := DefaultTable(ProfilePowerSaver)
	before := table.Clone()

	// Idle: cool, quiet fan -- would otherwise raise -- but avg temp below
	// 48 marks it underload, and the applied cap isn't the floor cap, so no
	// other rule fires either.
	samples := samplesOf(60, 40, 0, before.Levels[1].CapKHz)
	changed := Tune(&table, samples)

	assert.False(t, changed)
	assert.Equal(t, before, table)
}

func TestTune_InsufficientSamplesIsNoop(t *testing.T) {
	table := DefaultTable(ProfilePerformance)
	before := table.Clone()

	changed := Tune(&table, samplesOf(10, 50, 0, before.Levels[0].CapKHz))

	assert.False(t, changed)
	assert.Equal(t, before, table)
}

func TestTune_IdempotentOnStaleData(t *testing.T) {
	table := DefaultTable(ProfileBalanced)
	// No rule fires: max_temp sits between the raise and lower thresholds,
	// and floor_time_pct is low, so this window should never move the table.
	samples := samplesOf(60, 78, 500, table.Levels[1].CapKHz)

	changed1 := Tune(&table, samples)
	t1 := table.Clone()
	changed2 := Tune(&table, samples)

	assert.False(t, changed1)
	assert.False(t, changed2)
	assert.Equal(t, t1, table, "a second tuner run over the same stale window must be a contraction (no further change)")
}
