package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/governor"
)

// reconnectBackoff is the fixed delay between session-bus reconnect
// attempts.
const reconnectBackoff = 5 * time.Second

// profileSignalInterface/Member are the desktop session-bus contract this
// daemon listens on: a powerprofilesctl-style PropertiesChanged-style
// signal carrying the new profile name as its first string argument.
const (
	profileSignalInterface = "net.hadess.PowerProfiles"
	profileSignalMember    = "ProfileChanged"
	profileSignalPath      = "/net/hadess/PowerProfiles"
)

// dialSessionBus opens the session-bus connection used by DBusSource and
// QueryActiveProfile.
var dialSessionBus = dbus.SessionBus

// DBusSource listens for profile-change signals on the desktop session bus.
type DBusSource struct {
	logger *zap.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	events chan governor.Profile
	done   chan struct{}
}

// NewDBusSource starts listening on the session bus in the background. A
// lost connection is retried every reconnectBackoff until Close is called.
func NewDBusSource(logger *zap.Logger) *DBusSource {
	s := &DBusSource{
		logger: logger,
		events: make(chan governor.Profile, 8),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *DBusSource) Events() <-chan governor.Profile { return s.events }

func (s *DBusSource) Close() error {
	close(s.done)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *DBusSource) run() {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := dialSessionBus()
		if err != nil {
			s.logger.Warn("session bus connection failed, retrying", zap.Error(err))
			if !s.sleepOrDone(reconnectBackoff) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(profileSignalInterface),
			dbus.WithMatchMember(profileSignalMember),
		); err != nil {
			s.logger.Warn("session bus signal subscription failed, retrying", zap.Error(err))
			conn.Close()
			if !s.sleepOrDone(reconnectBackoff) {
				return
			}
			continue
		}

		s.drain(conn)

		// The signal channel closed out from under us; reconnect.
		conn.Close()
		if !s.sleepOrDone(reconnectBackoff) {
			return
		}
	}
}

func (s *DBusSource) drain(conn *dbus.Conn) {
	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if p, ok := parseProfileSignal(sig); ok {
				select {
				case s.events <- p:
				case <-s.done:
					return
				}
			}
		}
	}
}

func (s *DBusSource) sleepOrDone(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}

// QueryActiveProfile asks the session bus's power-profiles service for its
// ActiveProfile property, once, so the daemon can start on whatever the
// desktop already selected. The shared session connection is left open for
// the DBusSource that follows it.
func QueryActiveProfile() (governor.Profile, error) {
	conn, err := dialSessionBus()
	if err != nil {
		return "", governor.E("QueryActiveProfile", governor.ErrCodeBus, "connecting to session bus", err)
	}

	obj := conn.Object(profileSignalInterface, profileSignalPath)
	variant, err := obj.GetProperty(profileSignalInterface + ".ActiveProfile")
	if err != nil {
		return "", governor.E("QueryActiveProfile", governor.ErrCodeBus, "querying active profile", err)
	}
	raw, ok := variant.Value().(string)
	if !ok {
		return "", governor.E("QueryActiveProfile", governor.ErrCodeBus, "active profile is not a string", nil)
	}

	p := governor.Profile(strings.ToLower(raw))
	if !p.Valid() {
		return "", governor.E("QueryActiveProfile", governor.ErrCodeBus, "unrecognized profile "+raw, nil)
	}
	return p, nil
}

// parseProfileSignal extracts a governor.Profile from a ProfileChanged
// signal's first string argument, accepting power-profiles-daemon's own
// names ("power-saver", "balanced", "performance") case-insensitively.
func parseProfileSignal(sig *dbus.Signal) (governor.Profile, bool) {
	if sig.Path != profileSignalPath || len(sig.Body) == 0 {
		return "", false
	}
	raw, ok := sig.Body[0].(string)
	if !ok {
		return "", false
	}
	p := governor.Profile(strings.ToLower(raw))
	if !p.Valid() {
		return "", false
	}
	return p, true
}
