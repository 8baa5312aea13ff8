// Package geo implements continuous position tracking with consecutive-duplicate
// suppression, plus an independent one-shot position query.
//
// The platform position capability is consumed through Provider. Tracker owns
// at most one continuous subscription at a time; one-shot queries never touch
// that subscription's state or error path.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFixUnavailable marks a recoverable, per-event position failure.
	ErrFixUnavailable = errors.New("position fix unavailable")
	// ErrPermissionDenied is returned by providers when the position source
	// cannot be opened for lack of permission.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrAlreadySubscribed is returned by Subscribe while a subscription is active.
	ErrAlreadySubscribed = errors.New("location subscription already active")
)

// Fix is one reported device position.
type Fix struct {
	Lat  float64
	Lon  float64
	Time time.Time
}

// SamePosition reports whether two fixes have exactly equal coordinates.
func (f Fix) SamePosition(o Fix) bool {
	return f.Lat == o.Lat && f.Lon == o.Lon
}

func (f Fix) String() string {
	return fmt.Sprintf("(%f, %f @ %s)", f.Lat, f.Lon, f.Time.Format(time.RFC3339))
}

// Options tune a position request.
type Options struct {
	HighAccuracy bool
	// MaxStaleness is the oldest cached fix a provider may answer with.
	// Zero means a fresh reading is required.
	MaxStaleness time.Duration
	// Timeout bounds how long to wait for a reading. Zero means no bound.
	Timeout time.Duration
}

// WatchOptions are the defaults for continuous tracking.
func WatchOptions() Options {
	return Options{HighAccuracy: true, MaxStaleness: 0, Timeout: 5 * time.Second}
}

// AccessCheckOptions are the defaults for the start-time permission check.
func AccessCheckOptions() Options {
	return Options{HighAccuracy: true, Timeout: 10 * time.Second}
}

// Provider is the platform position capability.
//
// Watch starts continuous sampling and returns a cancel function. After
// cancel returns the provider must not invoke onFix or onErr again. Callbacks
// may run on provider goroutines and must not block for long.
//
// CurrentPosition answers a single query and honours opts.Timeout and ctx.
type Provider interface {
	Watch(ctx context.Context, opts Options, onFix func(Fix), onErr func(error)) (cancel func(), err error)
	CurrentPosition(ctx context.Context, opts Options) (Fix, error)
}

// fixUnavailable wraps err so errors.Is(err, ErrFixUnavailable) holds.
func fixUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrFixUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFixUnavailable, err)
}
