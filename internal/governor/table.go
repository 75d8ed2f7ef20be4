package governor

import "sort"

// Level is one row of a ThermalTable: at or above ThresholdC the controller
// must not exceed CapKHz.
type Level struct {
	ThresholdC int `json:"threshold_c"`
	CapKHz     int `json:"cap_khz"`
}

// ThermalTable is the ordered set of Levels for one profile, plus the cap
// used below the coolest threshold. It is owned exclusively by the active
// controller and mutated only by EnforceInvariants and the auto-tuner.
type ThermalTable struct {
	Profile   Profile `json:"-"`
	MaxCapKHz int     `json:"max_cap_khz"`
	Levels    []Level `json:"levels"`
}

// DefaultTable returns the built-in thermal table for p.
func DefaultTable(p Profile) ThermalTable {
	var t ThermalTable
	switch p {
	case ProfilePowerSaver:
		t = ThermalTable{
			Profile:   p,
			MaxCapKHz: 3_000_000,
			Levels: []Level{
				{ThresholdC: 48, CapKHz: 2_400_000},
				{ThresholdC: 55, CapKHz: 1_800_000},
				{ThresholdC: 62, CapKHz: 1_400_000},
				{ThresholdC: 70, CapKHz: 1_000_000},
			},
		}
	case ProfileBalanced:
		t = ThermalTable{
			Profile:   p,
			MaxCapKHz: 4_000_000,
			Levels: []Level{
				{ThresholdC: 66, CapKHz: 3_200_000},
				{ThresholdC: 74, CapKHz: 2_600_000},
				{ThresholdC: 82, CapKHz: 2_000_000},
				{ThresholdC: 90, CapKHz: 1_400_000},
			},
		}
	case ProfilePerformance:
		t = ThermalTable{
			Profile:   p,
			MaxCapKHz: 4_500_000,
			Levels: []Level{
				{ThresholdC: 75, CapKHz: 3_600_000},
				{ThresholdC: 85, CapKHz: 3_200_000},
				{ThresholdC: 92, CapKHz: 2_800_000},
				{ThresholdC: 95, CapKHz: 2_200_000},
			},
		}
	default:
		panic("governor: unknown profile " + string(p))
	}
	t.EnforceInvariants()
	return t
}

// Lookup returns the cap of the hottest level whose threshold is at or
// below effTempC, or MaxCapKHz if effTempC is below every threshold.
func (t *ThermalTable) Lookup(effTempC int) int {
	cap := t.MaxCapKHz
	for _, lvl := range t.Levels {
		if lvl.ThresholdC <= effTempC {
			cap = lvl.CapKHz
		}
	}
	return cap
}

// NextStepUpTarget returns the next strictly higher cap found among the
// table's level caps and MaxCapKHz. If currentCap is already at
// or above every known cap, it returns currentCap unchanged.
func (t *ThermalTable) NextStepUpTarget(currentCap int) int {
	best := currentCap
	found := false
	consider := func(cap int) {
		if cap > currentCap && (!found || cap < best) {
			best = cap
			found = true
		}
	}
	for _, lvl := range t.Levels {
		consider(lvl.CapKHz)
	}
	consider(t.MaxCapKHz)
	if !found {
		return currentCap
	}
	return best
}

// thresholdForCap returns the threshold of the level whose cap equals
// capKHz, and ok=true if found. MaxCapKHz has no threshold of its own; the
// caller uses the coolest level's threshold instead.
func (t *ThermalTable) thresholdForCap(capKHz int) (int, bool) {
	for _, lvl := range t.Levels {
		if lvl.CapKHz == capKHz {
			return lvl.ThresholdC, true
		}
	}
	return 0, false
}

// coolestThreshold returns the threshold of the coolest (lowest-threshold)
// level, used as the step-up gate for reaching MaxCapKHz.
func (t *ThermalTable) coolestThreshold() int {
	if len(t.Levels) == 0 {
		return 0
	}
	return t.Levels[0].ThresholdC
}

// EnforceInvariants repairs t in place: thresholds strictly ascend, caps
// strictly descend with at least MinSpread between neighbors, everything
// inside [MinCapKHz, profile ceiling], and MaxCapKHz at least MinSpread
// above the coolest level. It is idempotent: calling it twice in a row
// leaves t unchanged the second time.
func (t *ThermalTable) EnforceInvariants() {
	ceiling := t.Profile.Ceiling()

	clamp := func(v int) int {
		if v < MinCapKHz {
			return MinCapKHz
		}
		if v > ceiling {
			return ceiling
		}
		return v
	}

	// Clamp every cap into [MIN_CAP, profile_ceiling].
	t.MaxCapKHz = clamp(t.MaxCapKHz)
	for i := range t.Levels {
		t.Levels[i].CapKHz = clamp(t.Levels[i].CapKHz)
	}

	// Sort levels by threshold ascending; a duplicated threshold (only
	// possible via a hand-edited or corrupt snapshot) keeps its first row.
	sort.SliceStable(t.Levels, func(i, j int) bool {
		return t.Levels[i].ThresholdC < t.Levels[j].ThresholdC
	})
	deduped := t.Levels[:0]
	for _, lvl := range t.Levels {
		if n := len(deduped); n > 0 && deduped[n-1].ThresholdC == lvl.ThresholdC {
			continue
		}
		deduped = append(deduped, lvl)
	}
	t.Levels = deduped

	// For each adjacent pair, enforce the minimum spread between a cooler
	// level's cap and the next hotter level's cap.
	spreadDown := func() {
		for i := 0; i+1 < len(t.Levels); i++ {
			cooler := t.Levels[i].CapKHz
			if hotter := &t.Levels[i+1].CapKHz; *hotter > cooler-MinSpread {
				*hotter = clamp(cooler - MinSpread)
			}
		}
	}
	spreadDown()

	// Clamping at MIN_CAP can collapse the spread at the bottom of the
	// table; restore it by raising cooler caps off the clamped floor.
	for i := len(t.Levels) - 2; i >= 0; i-- {
		if hotter := t.Levels[i+1].CapKHz; t.Levels[i].CapKHz < hotter+MinSpread {
			t.Levels[i].CapKHz = clamp(hotter + MinSpread)
		}
	}

	// Ensure max_cap is at least MIN_SPREAD above the coolest level's cap,
	// raising max_cap toward the ceiling first, or lowering the coolest
	// level's cap if that still isn't enough room.
	if len(t.Levels) > 0 {
		coolest := &t.Levels[0].CapKHz
		if t.MaxCapKHz < *coolest+MinSpread {
			t.MaxCapKHz = clamp(*coolest + MinSpread)
		}
		if t.MaxCapKHz < *coolest+MinSpread {
			*coolest = t.MaxCapKHz - MinSpread
			spreadDown()
		}
	}
}

// Clone returns a deep copy of t, safe to mutate independently.
func (t ThermalTable) Clone() ThermalTable {
	levels := make([]Level, len(t.Levels))
	copy(levels, t.Levels)
	t.Levels = levels
	return t
}
