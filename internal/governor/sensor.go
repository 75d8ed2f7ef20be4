package governor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Reading is one sensor sample: package temperature and the maximum RPM
// across configured fan tachometers.
type Reading struct {
	TempC     int
	FanRPMMax uint32
}

// SensorReader reads the current temperature and fan speed from the host.
type SensorReader interface {
	Read(ctx context.Context) (Reading, error)
}

// sensorIOTimeout bounds a single sysfs read so a hung file handle can't
// stall the controller's tick loop.
const sensorIOTimeout = 500 * time.Millisecond

// SysfsSensor reads package temperature and fan RPM from kernel-exposed
// sysfs files: temperature in millidegrees Celsius from one file, RPM as a
// decimal from zero or more tachometer files.
type SysfsSensor struct {
	TempPath string
	FanPaths []string
}

// NewSysfsSensor constructs a SysfsSensor for the given temperature file and
// fan tachometer files.
func NewSysfsSensor(tempPath string, fanPaths []string) *SysfsSensor {
	return &SysfsSensor{TempPath: tempPath, FanPaths: fanPaths}
}

// Read implements SensorReader. A failed temperature read is reported as an
// error; the caller (the controller) is responsible for the soft/hard
// escalation policy.
func (s *SysfsSensor) Read(ctx context.Context) (Reading, error) {
	type result struct {
		reading Reading
		err     error
	}

	done := make(chan result, 1)
	go func() {
		millideg, err := readIntFile(s.TempPath)
		if err != nil {
			done <- result{err: fmt.Errorf("reading temperature: %w", err)}
			return
		}

		var maxRPM uint32
		for _, p := range s.FanPaths {
			rpm, err := readUintFile(p)
			if err != nil {
				continue // missing/unreadable fans count as 0
			}
			if uint32(rpm) > maxRPM {
				maxRPM = uint32(rpm)
			}
		}

		done <- result{reading: Reading{
			TempC:     millideg / 1000, // truncate toward zero
			FanRPMMax: maxRPM,
		}}
	}()

	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case r := <-done:
		return r.reading, r.err
	}
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Clean(path), err)
	}
	return v, nil
}

func readUintFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Clean(path), err)
	}
	return v, nil
}

// ReadWithTimeout wraps Read with sensorIOTimeout so a stuck read degrades
// to a soft sensor error rather than blocking the tick loop.
func ReadWithTimeout(ctx context.Context, s SensorReader) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, sensorIOTimeout)
	defer cancel()
	return s.Read(ctx)
}
