package governor

import (
	"os"
	"path/filepath"
	"strconv"
)

// Actuator applies a frequency cap, minimum frequency and EPP hint to every
// CPU.
type Actuator interface {
	// Apply writes capKHz/minKHz/epp to every matching CPU. It is
	// coalescing: if nothing would change, it performs no writes.
	Apply(capKHz, minKHz int, epp string) error
	// Init performs the one-time startup writes: MIN_CAP to every CPU's
	// scaling_min_freq and disabling hwp_dynamic_boost, best-effort.
	Init() error
	// Reset writes the host-default values on shutdown.
	Reset() error
}

const cpufreqSubdir = "cpufreq"

// SysfsActuator writes scaling_max_freq, scaling_min_freq and
// energy_performance_preference to every cpu*/cpufreq directory under
// SysfsRoot. Individual CPUs may reject a write (offline, no cpufreq);
// those failures are reported and skipped.
type SysfsActuator struct {
	SysfsRoot      string // e.g. /sys/devices/system/cpu
	HWPBoostPath   string // e.g. .../intel_pstate/hwp_dynamic_boost
	OnWriteFailure func(cpu, file string, err error)

	currentCapKHz int
	currentEPP    string
	initialized   bool
}

// NewSysfsActuator constructs a SysfsActuator rooted at sysfsRoot.
func NewSysfsActuator(sysfsRoot, hwpBoostPath string) *SysfsActuator {
	return &SysfsActuator{SysfsRoot: sysfsRoot, HWPBoostPath: hwpBoostPath}
}

// cpuDirs returns every cpuN/cpufreq directory under SysfsRoot.
func (a *SysfsActuator) cpuDirs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(a.SysfsRoot, "cpu[0-9]*", cpufreqSubdir))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (a *SysfsActuator) notify(cpu, file string, err error) {
	if a.OnWriteFailure != nil {
		a.OnWriteFailure(cpu, file, err)
	}
}

// writeAll writes value to file under every CPU's cpufreq dir. It returns
// the count of CPUs that accepted the write and the last error seen, if
// any; individual failures are reported via OnWriteFailure and otherwise
// swallowed, since a CPU may simply be offline.
func (a *SysfsActuator) writeAll(file, value string) (accepted int, lastErr error) {
	dirs, err := a.cpuDirs()
	if err != nil {
		return 0, err
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
			lastErr = err
			a.notify(filepath.Base(filepath.Dir(dir)), file, err)
			continue
		}
		accepted++
	}
	return accepted, lastErr
}

// Init performs the one-time startup writes: the global minimum frequency
// to every CPU's scaling_min_freq, and disabling hwp_dynamic_boost,
// best-effort. It fails only if not a single CPU accepted the
// scaling_min_freq write, which is fatal at startup.
func (a *SysfsActuator) Init() error {
	accepted, err := a.writeAll("scaling_min_freq", strconv.Itoa(MinCapKHz))
	if accepted == 0 {
		return E("SysfsActuator.Init", ErrCodeActuator, "no CPU accepted scaling_min_freq", err)
	}

	if a.HWPBoostPath != "" {
		if werr := os.WriteFile(a.HWPBoostPath, []byte("0"), 0o644); werr != nil {
			a.notify("hwp_dynamic_boost", a.HWPBoostPath, werr)
		}
	}

	a.initialized = true
	return nil
}

// Apply writes capKHz, minKHz and epp to every matched CPU. It is
// coalescing: if capKHz equals the last applied cap and epp is unchanged,
// it performs no writes at all.
func (a *SysfsActuator) Apply(capKHz, minKHz int, epp string) error {
	if a.initialized && capKHz == a.currentCapKHz && epp == a.currentEPP {
		return nil
	}

	accepted, err := a.writeAll("scaling_max_freq", strconv.Itoa(capKHz))
	if accepted == 0 {
		return E("SysfsActuator.Apply", ErrCodeActuator, "no CPU accepted scaling_max_freq", err)
	}

	// Per-CPU failures here are already reported via OnWriteFailure; the
	// aggregate call only fails above, on scaling_max_freq.
	a.writeAll("scaling_min_freq", strconv.Itoa(minKHz))
	if epp != "" {
		a.writeAll("energy_performance_preference", epp)
	}

	a.currentCapKHz = capKHz
	a.currentEPP = epp
	a.initialized = true
	return nil
}

// Reset writes the host-default values back on shutdown: the global minimum
// to scaling_min_freq, the global maximum to scaling_max_freq,
// "balance_power" to EPP, and 0 to hwp_dynamic_boost, best-effort
// throughout.
func (a *SysfsActuator) Reset() error {
	a.writeAll("scaling_min_freq", strconv.Itoa(MinCapKHz))
	a.writeAll("scaling_max_freq", strconv.Itoa(MaxCapKHz))
	a.writeAll("energy_performance_preference", EPPBalancePower)

	if a.HWPBoostPath != "" {
		_ = os.WriteFile(a.HWPBoostPath, []byte("0"), 0o644)
	}

	a.initialized = false
	return nil
}
