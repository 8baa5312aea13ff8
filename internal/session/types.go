// Package session owns one recording episode: it sequences the location and
// media capabilities through the Idle, Recording and Stopped states and
// accumulates the track, the photos and the finalized media.
package session

import (
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
)

// State is the controller's lifecycle position.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// TrackPoint is a fix retained in the session's ordered location log.
type TrackPoint struct {
	Lat        float64
	Lon        float64
	CapturedAt time.Time
}

// Photo is one annotated still. Lat and Lon are nil when the position query
// for the capture failed. Index is the value CapturePhoto returned; it has
// gaps when a capture could not be annotated.
type Photo struct {
	Index      int    // 1-based capture invocation order
	Image      []byte // JPEG with caption overlay
	Lat        *float64
	Lon        *float64
	CapturedAt time.Time
	TimeLabel  string
}

// Session is a point-in-time copy of the controller's accumulated state.
type Session struct {
	ID          string
	State       State
	TrackPoints []TrackPoint
	Photos      []Photo
	Media       *capture.Media
	StartedAt   time.Time
	StoppedAt   time.Time
}

// Summary is a cheap view of a session for status lines.
type Summary struct {
	ID            string
	State         State
	Points        int
	Photos        int
	PendingPhotos int
	MediaBytes    int
	StartedAt     time.Time
}
