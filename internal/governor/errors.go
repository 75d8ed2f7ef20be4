package governor

import "fmt"

// Error represents a thermal governor failure tagged with an error kind,
// so callers can tell recoverable conditions from fatal ones without
// string matching.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error kinds.
const (
	ErrCodeSoftSensor  = "SOFT_SENSOR"
	ErrCodeHardSensor  = "HARD_SENSOR"
	ErrCodeActuator    = "ACTUATOR"
	ErrCodePersistence = "PERSISTENCE"
	ErrCodeBus         = "BUS"
	ErrCodeInvariant   = "INVARIANT"
)

// E constructs an *Error.
func E(op, code, message string, err error) *Error {
	return &Error{Op: op, Code: code, Message: message, Err: err}
}
