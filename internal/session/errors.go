package session

import (
	"errors"
	"fmt"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
)

var (
	// ErrPermissionDenied is matched by every *PermissionError.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyInState is returned by operations invoked from a state that
	// does not allow them.
	ErrAlreadyInState = errors.New("operation not valid in current state")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("session controller closed")

	// ErrDeviceUnavailable means no usable camera was found.
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable
	// ErrFixUnavailable marks a recovered, per-event location failure.
	ErrFixUnavailable = geo.ErrFixUnavailable
)

// Capability names the platform capability a permission error refers to.
type Capability string

const (
	CapabilityLocation Capability = "location"
	CapabilityMedia    Capability = "media"
)

// PermissionError reports a start-time permission failure.
type PermissionError struct {
	Capability Capability
	Err        error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s permission denied", e.Capability)
	}
	return fmt.Sprintf("%s permission denied: %v", e.Capability, e.Err)
}

// Unwrap exposes both ErrPermissionDenied and the underlying cause.
func (e *PermissionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermissionDenied}
	}
	return []error{ErrPermissionDenied, e.Err}
}

func wrongState(op string, s State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrAlreadyInState, op, s)
}

// mediaError classifies an acquisition failure.
func mediaError(err error) error {
	if errors.Is(err, capture.ErrPermissionDenied) {
		return &PermissionError{Capability: CapabilityMedia, Err: err}
	}
	if errors.Is(err, capture.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
