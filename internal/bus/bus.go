// Package bus watches for external power-profile changes and republishes
// them as a channel of governor.Profile values for the supervisor to
// consume.
package bus

import "github.com/wrale/thermal-governor/internal/governor"

// ProfileSource delivers profile-change events at least once; duplicate
// deliveries of the currently active profile are expected and must be
// tolerated by the consumer.
type ProfileSource interface {
	// Events returns a channel of profile changes. It is closed once the
	// source can no longer deliver events (after Close, or a fatal error).
	Events() <-chan governor.Profile
	Close() error
}
