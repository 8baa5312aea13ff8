// Package capture acquires a live audio/video stream, encodes it into chunked
// buffers while recording, and exposes raw frame snapshots for photo capture.
//
// The platform device is consumed through Device and Stream. Source owns at
// most one attached stream and is the only thing that starts or stops it.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	// ErrPermissionDenied is returned when the camera or microphone cannot be
	// opened for lack of permission.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrDeviceUnavailable is returned when no matching device exists or it
	// cannot be opened.
	ErrDeviceUnavailable = errors.New("media device unavailable")
	// ErrNotAttached is returned by operations that need an acquired stream.
	ErrNotAttached = errors.New("no media stream attached")
	// ErrAlreadyAttached is returned by Acquire while a stream is attached.
	ErrAlreadyAttached = errors.New("media stream already attached")
	// ErrNotRecording is returned by StopRecording when encoding is not running.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned by StartRecording while encoding runs.
	ErrAlreadyRecording = errors.New("already recording")
)

// Constraints select and shape the device stream.
type Constraints struct {
	Device string
	Width  int
	Height int
	FPS    int
	Audio  bool
}

// Media is one finalized recording.
type Media struct {
	Data     []byte
	MIMEType string
}

// Device opens live streams. Implementations return errors wrapping
// ErrPermissionDenied or ErrDeviceUnavailable so callers can tell them apart.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is one attached live stream.
//
// StartEncoding delivers encoded chunks to onChunk in order. StopEncoding
// flushes the encoder and returns only after the final chunk was delivered.
// Snapshot returns the latest raw frame and works whether or not encoding
// runs. Close stops every underlying track.
type Stream interface {
	MIMEType() string
	StartEncoding(onChunk func([]byte)) error
	StopEncoding(ctx context.Context) error
	Snapshot() (*image.RGBA, error)
	Close() error
}

// Source wraps a Device with stream ownership and chunk accumulation.
type Source struct {
	device Device

	mu        sync.Mutex
	stream    Stream
	recording bool

	chunkMu sync.Mutex
	chunks  [][]byte
}

// NewSource creates a Source over device.
func NewSource(device Device) *Source {
	return &Source{device: device}
}

// Acquire opens a stream. On failure no handle is retained: a stream the
// device returned alongside an error is closed before returning.
func (s *Source) Acquire(ctx context.Context, c Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return ErrAlreadyAttached
	}

	stream, err := s.device.Open(ctx, c)
	if err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		return classify(err)
	}
	if stream == nil {
		return fmt.Errorf("%w: device returned no stream", ErrDeviceUnavailable)
	}
	s.stream = stream
	return nil
}

// Attached reports whether a stream is held.
func (s *Source) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// StartRecording begins continuous encoding into a fresh chunk buffer.
func (s *Source) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return ErrNotAttached
	}
	if s.recording {
		return ErrAlreadyRecording
	}

	s.chunkMu.Lock()
	s.chunks = nil
	s.chunkMu.Unlock()

	if err := s.stream.StartEncoding(s.appendChunk); err != nil {
		return fmt.Errorf("start encoding: %w", err)
	}
	s.recording = true
	return nil
}

// StopRecording flushes the encoder and concatenates every chunk into one
// Media value. The stream stays attached.
func (s *Source) StopRecording(ctx context.Context) (Media, error) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return Media{}, ErrNotAttached
	}
	if !s.recording {
		s.mu.Unlock()
		return Media{}, ErrNotRecording
	}
	s.recording = false
	stream := s.stream
	s.mu.Unlock()

	stopErr := stream.StopEncoding(ctx)

	s.chunkMu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.chunkMu.Unlock()

	media := Media{Data: bytes.Join(chunks, nil), MIMEType: stream.MIMEType()}
	if stopErr != nil {
		return media, fmt.Errorf("stop encoding: %w", stopErr)
	}
	return media, nil
}

// CurrentFrame returns the latest raw frame at native dimensions.
func (s *Source) CurrentFrame() (*image.RGBA, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil, ErrNotAttached
	}
	frame, err := stream.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return frame, nil
}

// Release stops all tracks and drops buffered chunks. Safe to call repeatedly.
func (s *Source) Release() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.recording = false
	s.mu.Unlock()

	s.chunkMu.Lock()
	s.chunks = nil
	s.chunkMu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("release stream: %w", err)
	}
	return nil
}

func (s *Source) appendChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	s.chunkMu.Lock()
	s.chunks = append(s.chunks, b)
	s.chunkMu.Unlock()
}

// classify makes sure every acquisition failure is one of the two kinds
// callers distinguish.
func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
