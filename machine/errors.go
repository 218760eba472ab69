package machine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned for a grid that cannot be planned.
	// No command is sent when it is returned.
	ErrInvalidConfiguration = errors.New("invalid grid configuration")

	// ErrBusy is returned when a session is already running on the machine.
	ErrBusy = errors.New("probe session already running")

	// ErrAborted is the cause of a session cancelled by the caller.
	ErrAborted = errors.New("probe session aborted")

	ErrNoSamples      = errors.New("no probe samples collected")
	ErrSessionStarted = errors.New("probe session already started")
)

func invalidConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfiguration}, args...)...)
}

// ProbeFailure is returned when the machine reports a failed probe, or no
// report arrives in time. The session is over; the caller may start a new one.
type ProbeFailure struct {
	// Index is the scan-order index of the failed point.
	Index int

	// Collected is the number of samples taken before the failure.
	Collected int

	Timeout bool
	Reason  string
}

func (e *ProbeFailure) Error() string {
	msg := fmt.Sprintf("probe failed at point %d (%d collected)", e.Index+1, e.Collected)
	if e.Timeout {
		msg = fmt.Sprintf("probe timed out at point %d (%d collected)", e.Index+1, e.Collected)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ChannelError means commands can no longer be delivered to the machine.
type ChannelError struct{ Err error }

func (e *ChannelError) Error() string { return "device channel: " + e.Err.Error() }
func (e *ChannelError) Unwrap() error { return e.Err }

// PersistenceError is returned when a completed height map could not be
// saved. The height map that accompanies it is still valid.
type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return "save height map: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
