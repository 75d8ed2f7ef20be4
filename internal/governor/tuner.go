package governor

// minTuneSamples is the minimum sample count the auto-tuner needs before it
// will act.
const minTuneSamples = 30

// fanActiveRPM is the noise gate above which a fan counts as "active". The
// raw RPM cutoff is hardware specific; the rewrite rules only ever see the
// derived activity percentage, so a per-machine adjustment stays local to
// this constant.
const fanActiveRPM = 100

// tunerMetrics are the derived statistics the rewrite rules key off of.
type tunerMetrics struct {
	fanActivePct float64
	maxTempC     int
	avgTempC     float64
	floorTimePct float64
	underload    bool
}

func deriveMetrics(profile Profile, floorCapKHz int, samples []Sample) tunerMetrics {
	var (
		activeFan  int
		sumTemp    int
		maxTemp    = samples[0].TempC
		floorTicks int
	)
	for _, s := range samples {
		if s.FanRPMMax > fanActiveRPM {
			activeFan++
		}
		sumTemp += s.TempC
		if s.TempC > maxTemp {
			maxTemp = s.TempC
		}
		if s.CapKHzApplied == floorCapKHz {
			floorTicks++
		}
	}

	n := len(samples)
	avg := float64(sumTemp) / float64(n)

	return tunerMetrics{
		fanActivePct: float64(activeFan) / float64(n),
		maxTempC:     maxTemp,
		avgTempC:     avg,
		floorTimePct: float64(floorTicks) / float64(n),
		underload:    profile == ProfilePowerSaver && avg < 48,
	}
}

// Tune rewrites table in place from samples, subject to
// table.EnforceInvariants. It reports whether any cap changed. A run over
// too few samples, or one where no rule fires, is a normal no-op rather
// than an error.
func Tune(table *ThermalTable, samples []Sample) (changed bool) {
	if len(samples) < minTuneSamples || len(table.Levels) == 0 {
		return false
	}

	// The floor is the lowest cap the controller will impose by stepping
	// down, i.e. the hottest level's; time pinned there marks hard throttle.
	floorCap := table.Levels[len(table.Levels)-1].CapKHz
	metrics := deriveMetrics(table.Profile, floorCap, samples)

	delta := tuneDelta(table.Profile, metrics)
	if delta == 0 {
		return false
	}

	before := table.Clone()
	applyDelta(table, delta)
	table.EnforceInvariants()

	return !tablesEqual(before, *table)
}

// tuneDelta returns the number of TuneStep increments to apply to every cap
// (positive raises, negative lowers), per the per-profile rewrite rules.
func tuneDelta(profile Profile, m tunerMetrics) int {
	switch profile {
	case ProfilePowerSaver:
		switch {
		case m.fanActivePct < 0.05 && !m.underload && m.maxTempC < 58:
			return 1
		case m.fanActivePct > 0.25 || m.maxTempC >= 65:
			return -1
		case m.floorTimePct > 0.50:
			return -1
		}
	case ProfileBalanced:
		switch {
		case m.maxTempC < 72 && m.fanActivePct < 0.40:
			return 1
		case m.maxTempC > 82:
			return -1
		case m.floorTimePct > 0.30:
			return -1
		}
	case ProfilePerformance:
		switch {
		case m.maxTempC < 90:
			return 1
		case m.maxTempC >= 98 || m.floorTimePct > 0.20:
			return -2
		case m.maxTempC >= 94:
			return -1
		}
	}
	return 0
}

// applyDelta nudges every cap, including max_cap, by delta TUNE_STEPs.
func applyDelta(table *ThermalTable, delta int) {
	offset := delta * TuneStep
	table.MaxCapKHz += offset
	for i := range table.Levels {
		table.Levels[i].CapKHz += offset
	}
}

func tablesEqual(a, b ThermalTable) bool {
	if a.MaxCapKHz != b.MaxCapKHz || len(a.Levels) != len(b.Levels) {
		return false
	}
	for i := range a.Levels {
		if a.Levels[i] != b.Levels[i] {
			return false
		}
	}
	return true
}
