package governor

// Profile is the active power profile, selected by the desktop session bus
// or the server's startup query.
type Profile string

const (
	ProfilePowerSaver  Profile = "power-saver"
	ProfileBalanced    Profile = "balanced"
	ProfilePerformance Profile = "performance"
)

// EPP is the energy_performance_preference hint string written alongside a
// cap.
const (
	EPPPower        = "power"
	EPPBalancePower = "balance_power"
	EPPPerformance  = "performance"
)

// Frequency bounds and step sizes, in kHz. FreqStep paces ramp-up;
// TuneStep paces auto-tuner nudges; MinSpread separates adjacent caps.
const (
	MinCapKHz = 400_000
	MaxCapKHz = 4_500_000
	FreqStep  = 200_000
	TuneStep  = 100_000
	MinSpread = 200_000
)

// profileIdentity holds the fixed, non-persisted attributes of a profile:
// its EPP hint, its ceiling on the top cap, and its hysteresis margin.
type profileIdentity struct {
	epp        string
	ceilingKHz int
	hysteresis int
}

var profileIdentities = map[Profile]profileIdentity{
	ProfilePowerSaver:  {epp: EPPPower, ceilingKHz: 3_500_000, hysteresis: 2},
	ProfileBalanced:    {epp: EPPBalancePower, ceilingKHz: 4_500_000, hysteresis: 5},
	ProfilePerformance: {epp: EPPPerformance, ceilingKHz: 4_500_000, hysteresis: 5},
}

// identity returns the profile's fixed EPP, ceiling and hysteresis. It
// panics on an unknown profile since every Profile value in this package is
// one of the three enumerated constants above.
func (p Profile) identity() profileIdentity {
	id, ok := profileIdentities[p]
	if !ok {
		panic("governor: unknown profile " + string(p))
	}
	return id
}

// EPP returns the profile's fixed energy/performance preference hint.
func (p Profile) EPP() string { return p.identity().epp }

// Ceiling returns the profile's ceiling on the top cap, in kHz.
func (p Profile) Ceiling() int { return p.identity().ceilingKHz }

// Hysteresis returns the profile's hysteresis margin, in whole Celsius.
func (p Profile) Hysteresis() int { return p.identity().hysteresis }

// Valid reports whether p is one of the three enumerated profiles.
func (p Profile) Valid() bool {
	_, ok := profileIdentities[p]
	return ok
}

// AllProfiles lists every profile, in a stable order, for iteration over
// persisted tables and startup defaults.
func AllProfiles() []Profile {
	return []Profile{ProfilePowerSaver, ProfileBalanced, ProfilePerformance}
}
