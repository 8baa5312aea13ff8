package testutil

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
)

// DefaultFix is what Provider answers when no Current hook is set.
var DefaultFix = geo.Fix{Lat: 12.9, Lon: 77.6}

// Provider is a scriptable geo.Provider.
type Provider struct {
	// WatchErr makes Watch fail.
	WatchErr error
	// Current answers CurrentPosition; call counts from 1.
	Current func(ctx context.Context, call int) (geo.Fix, error)
	// WatchGate, when set, holds Watch until it is closed.
	WatchGate chan struct{}

	mu      sync.Mutex
	held    int
	onFix   func(geo.Fix)
	onErr   func(error)
	watches int
	cancels int
	calls   int
}

// Watch implements geo.Provider.
func (p *Provider) Watch(_ context.Context, _ geo.Options, onFix func(geo.Fix), onErr func(error)) (func(), error) {
	if p.WatchGate != nil {
		p.mu.Lock()
		p.held++
		p.mu.Unlock()
		<-p.WatchGate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WatchErr != nil {
		return nil, p.WatchErr
	}
	p.watches++
	p.onFix, p.onErr = onFix, onErr
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.cancels++
			p.onFix, p.onErr = nil, nil
		})
	}, nil
}

// CurrentPosition implements geo.Provider.
func (p *Provider) CurrentPosition(ctx context.Context, _ geo.Options) (geo.Fix, error) {
	p.mu.Lock()
	p.calls++
	n, fn := p.calls, p.Current
	p.mu.Unlock()
	if fn == nil {
		return DefaultFix, nil
	}
	return fn(ctx, n)
}

// Emit pushes f into the active watch, if any.
func (p *Provider) Emit(f geo.Fix) {
	p.mu.Lock()
	cb := p.onFix
	p.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

// Fail pushes err into the active watch, if any.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	cb := p.onErr
	p.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Watching reports whether a watch is active.
func (p *Provider) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onFix != nil || p.onErr != nil
}

// HeldWatches returns how many Watch calls reached WatchGate.
func (p *Provider) HeldWatches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Calls returns how many CurrentPosition queries were made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Cancels returns how many watches were cancelled.
func (p *Provider) Cancels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels
}

// Device is a scriptable capture.Device.
type Device struct {
	// OpenErr makes Open fail.
	OpenErr error
	// Partial makes a failing Open also return a half-open stream.
	Partial bool
	// MIME is the stream's container type; defaults to video/webm.
	MIME string
	// Frame is what streams return from Snapshot.
	Frame *image.RGBA
	// StopChunks are delivered to the encoder callback during StopEncoding.
	StopChunks [][]byte
	// StopGate, when set, holds StopEncoding until it is closed.
	StopGate chan struct{}

	mu      sync.Mutex
	opens   int
	streams []*Stream
}

// Open implements capture.Device.
func (d *Device) Open(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++

	mime := d.MIME
	if mime == "" {
		mime = "video/webm"
	}
	s := &Stream{
		Constraints: c,
		mime:        mime,
		frame:       d.Frame,
		stopChunks:  d.StopChunks,
		stopGate:    d.StopGate,
	}
	if d.OpenErr != nil {
		if d.Partial {
			d.streams = append(d.streams, s)
			return s, d.OpenErr
		}
		return nil, d.OpenErr
	}
	d.streams = append(d.streams, s)
	return s, nil
}

// Opens returns how many times Open was called.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Streams returns every stream Open handed out.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Last returns the most recent stream, or nil.
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

var errStreamClosed = errors.New("stream closed")

// Stream is the fake capture.Stream handed out by Device.
type Stream struct {
	Constraints capture.Constraints

	mime       string
	frame      *image.RGBA
	stopChunks [][]byte
	stopGate   chan struct{}

	mu       sync.Mutex
	onChunk  func([]byte)
	encoding bool
	stops    int
	closes   int
}

// MIMEType implements capture.Stream.
func (s *Stream) MIMEType() string { return s.mime }

// StartEncoding implements capture.Stream.
func (s *Stream) StartEncoding(onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return errStreamClosed
	}
	s.onChunk = onChunk
	s.encoding = true
	return nil
}

// Emit delivers b as an encoded chunk while encoding runs.
func (s *Stream) Emit(b []byte) {
	s.mu.Lock()
	cb, on := s.onChunk, s.encoding
	s.mu.Unlock()
	if on && cb != nil {
		cb(b)
	}
}

// StopEncoding implements capture.Stream.
func (s *Stream) StopEncoding(ctx context.Context) error {
	if s.stopGate != nil {
		select {
		case <-s.stopGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	cb := s.onChunk
	s.stops++
	s.mu.Unlock()

	if cb != nil {
		for _, c := range s.stopChunks {
			cb(c)
		}
	}

	s.mu.Lock()
	s.encoding = false
	s.onChunk = nil
	s.mu.Unlock()
	return nil
}

// Snapshot implements capture.Stream.
func (s *Stream) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return nil, errStreamClosed
	}
	if s.frame == nil {
		return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
	}
	out := image.NewRGBA(s.frame.Rect)
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

// Close implements capture.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.encoding = false
	return nil
}

// Closed reports whether Close was called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

// Stops returns how many times StopEncoding finished.
func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
