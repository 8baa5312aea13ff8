package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/annotate"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/log"
)

// Annotator burns the caption onto a captured frame.
type Annotator interface {
	Annotate(frame image.Image, fix *geo.Fix, capturedAt time.Time) (annotate.Result, error)
}

// Deps are the capabilities a Controller composes.
type Deps struct {
	Provider  geo.Provider
	Device    capture.Device
	Annotator Annotator
	Events    log.EventLogger  // log.Discard when nil
	Now       func() time.Time // time.Now when nil
}

// Options tune the capability requests.
type Options struct {
	Constraints capture.Constraints
	Watch       geo.Options // continuous tracking and per-photo queries
	AccessCheck geo.Options // start-time permission check
}

// DefaultOptions returns the field recorder defaults.
func DefaultOptions() Options {
	return Options{
		Constraints: capture.Constraints{Device: "/dev/video0", Width: 1280, Height: 720, FPS: 30},
		Watch:       geo.WatchOptions(),
		AccessCheck: geo.AccessCheckOptions(),
	}
}

// pendingPhoto reserves a photo's position at invocation time.
type pendingPhoto struct {
	ready   bool
	dropped bool
	photo   Photo
}

// Controller owns one session at a time.
type Controller struct {
	tracker   *geo.Tracker
	source    *capture.Source
	annotator Annotator
	events    log.EventLogger
	now       func() time.Time
	opts      Options

	ctx    context.Context // outlives individual calls; cancelled by Close
	cancel context.CancelFunc
	stops  singleflight.Group

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped by Start, Reset and Close; stale async work checks it
	starting bool
	stopping bool
	closed   bool

	id          string
	startedAt   time.Time
	stoppedAt   time.Time
	trackPoints []TrackPoint
	photos      []*pendingPhoto
	media       *capture.Media

	pending int
	drained chan struct{}
}

// New builds a Controller in the Idle state.
func New(deps Deps, opts Options) *Controller {
	events := deps.Events
	if events == nil {
		events = log.Discard
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		tracker:   geo.NewTracker(deps.Provider),
		source:    capture.NewSource(deps.Device),
		annotator: deps.Annotator,
		events:    events,
		now:       now,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start moves Idle to Recording. Location is checked first; the camera is
// only opened once a fix was obtained, so a denied location never leaves a
// media stream behind. On failure the controller stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Idle || c.starting {
		s := c.state
		c.mu.Unlock()
		return wrongState("start", s)
	}
	c.starting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	if _, err := c.tracker.Locate(ctx, c.opts.AccessCheck); err != nil {
		perr := &PermissionError{Capability: CapabilityLocation, Err: err}
		c.logStartFailed(CapabilityLocation, perr)
		return perr
	}

	if err := c.source.Acquire(ctx, c.opts.Constraints); err != nil {
		_ = c.source.Release()
		merr := mediaError(err)
		c.logStartFailed(CapabilityMedia, merr)
		return merr
	}
	if err := c.source.StartRecording(); err != nil {
		_ = c.source.Release()
		merr := fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		c.logStartFailed(CapabilityMedia, merr)
		return merr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = c.source.Release()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.id = uuid.New().String()
	c.startedAt = c.now()
	c.stoppedAt = time.Time{}
	c.trackPoints = nil
	c.photos = nil
	c.media = nil
	id := c.id
	c.mu.Unlock()

	// Subscribe before publishing Recording: Stop is rejected until then, so
	// it can never run Unsubscribe ahead of the watch it must cancel.
	subErr := c.tracker.Subscribe(c.ctx, c.opts.Watch, c.onFix(gen), c.onFixError(id))

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		c.tracker.Unsubscribe()
		_ = c.source.Release()
		return ErrClosed
	}
	c.state = Recording
	c.mu.Unlock()

	if subErr != nil {
		// The access check succeeded, so tracking failures are recoverable: the
		// session records without a track rather than aborting.
		c.logEvent(log.LogEvent{Event: log.EventFixUnavailable, SessionID: id, Error: subErr.Error()})
	}

	c.logEvent(log.LogEvent{Event: log.EventSessionStarted, SessionID: id})
	return nil
}

func (c *Controller) onFix(gen uint64) func(geo.Fix) {
	return func(f geo.Fix) {
		c.mu.Lock()
		defer c.mu.Unlock()
		// Fixes may land between Subscribe and Recording being published.
		if c.gen != gen || c.state == Stopped {
			return
		}
		at := f.Time
		if at.IsZero() {
			at = c.now()
		}
		c.trackPoints = append(c.trackPoints, TrackPoint{Lat: f.Lat, Lon: f.Lon, CapturedAt: at})
	}
}

func (c *Controller) onFixError(id string) func(error) {
	return func(err error) {
		c.logEvent(log.LogEvent{Event: log.EventFixUnavailable, SessionID: id, Error: err.Error()})
	}
}

// Stop finalizes the recording and moves Recording to Stopped. A second
// call while a stop is in flight waits for that stop and shares its result.
func (c *Controller) Stop(ctx context.Context) error {
	_, err, _ := c.stops.Do("stop", func() (interface{}, error) {
		return nil, c.stop(ctx)
	})
	return err
}

func (c *Controller) stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Recording || c.stopping {
		s := c.state
		c.mu.Unlock()
		return wrongState("stop", s)
	}
	c.stopping = true
	gen, id := c.gen, c.id
	c.mu.Unlock()

	start := c.now()
	c.tracker.Unsubscribe()
	media, stopErr := c.source.StopRecording(ctx)
	relErr := c.source.Release()

	c.mu.Lock()
	c.stopping = false
	if c.gen != gen {
		// Closed while finalizing.
		c.mu.Unlock()
		return ErrClosed
	}
	c.media = &media
	c.stoppedAt = c.now()
	c.state = Stopped
	points, photos := len(c.trackPoints), len(c.photos)
	c.mu.Unlock()

	ev := log.LogEvent{
		Event:      log.EventSessionStopped,
		SessionID:  id,
		Points:     points,
		Photos:     photos,
		Bytes:      len(media.Data),
		DurationMs: c.now().Sub(start).Milliseconds(),
	}
	if err := errors.Join(stopErr, relErr); err != nil {
		ev.Error = err.Error()
		c.logEvent(ev)
		return fmt.Errorf("finalize recording: %w", err)
	}
	c.logEvent(ev)
	return nil
}

// CapturePhoto snapshots the current frame and resolves a position for it in
// the background. It returns the photo's 1-based invocation index. The photo
// is kept even if the position query fails, with nil coordinates.
func (c *Controller) CapturePhoto(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	if c.state != Recording || c.stopping {
		s := c.state
		c.mu.Unlock()
		return 0, wrongState("capture photo", s)
	}

	frame, err := c.source.CurrentFrame()
	if err != nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("capture frame: %w", err)
	}
	at := c.now()
	slot := &pendingPhoto{}
	c.photos = append(c.photos, slot)
	index := len(c.photos)
	gen, id := c.gen, c.id
	c.addPending()
	c.mu.Unlock()

	go c.resolvePhoto(gen, id, index, slot, frame, at)
	return index, nil
}

func (c *Controller) resolvePhoto(gen uint64, id string, index int, slot *pendingPhoto, frame image.Image, at time.Time) {
	defer c.donePending()

	var fixPtr *geo.Fix
	fix, ok := c.tracker.OneShotFix(c.ctx, c.opts.Watch)
	if ok {
		fixPtr = &fix
	} else {
		c.logEvent(log.LogEvent{Event: log.EventFixUnavailable, SessionID: id, Photo: index})
	}

	res, err := c.annotator.Annotate(frame, fixPtr, at)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		slot.dropped = true
		c.mu.Unlock()
		c.logEvent(log.LogEvent{Event: log.EventPhotoCaptured, SessionID: id, Photo: index, Error: err.Error()})
		return
	}
	slot.photo = Photo{
		Index:      index,
		Image:      res.Image,
		Lat:        res.Lat,
		Lon:        res.Lon,
		CapturedAt: at,
		TimeLabel:  res.TimeLabel,
	}
	slot.ready = true
	c.mu.Unlock()

	c.logEvent(log.LogEvent{
		Event:     log.EventPhotoCaptured,
		SessionID: id,
		Photo:     index,
		Lat:       res.Lat,
		Lon:       res.Lon,
		Bytes:     len(res.Image),
	})
}

// Reset clears everything and returns to Idle. Valid from Stopped or Idle.
// Photos still resolving are discarded when they finish.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state == Recording || c.starting {
		s := c.state
		c.mu.Unlock()
		return wrongState("reset", s)
	}
	id := c.id
	c.clearLocked()
	c.mu.Unlock()

	_ = c.source.Release()
	c.logEvent(log.LogEvent{Event: log.EventSessionReset, SessionID: id})
	return nil
}

// clearLocked drops all accumulated state. Caller holds c.mu.
func (c *Controller) clearLocked() {
	c.gen++
	c.state = Idle
	c.id = ""
	c.startedAt = time.Time{}
	c.stoppedAt = time.Time{}
	c.trackPoints = nil
	c.photos = nil
	c.media = nil
}

// Snapshot returns a deep copy of the session. Photos still resolving are
// left out; call WaitPhotos first for a complete view.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Session{
		ID:          c.id,
		State:       c.state,
		StartedAt:   c.startedAt,
		StoppedAt:   c.stoppedAt,
		TrackPoints: append([]TrackPoint(nil), c.trackPoints...),
	}
	for _, p := range c.photos {
		if !p.ready {
			continue
		}
		photo := p.photo
		photo.Image = append([]byte(nil), p.photo.Image...)
		photo.Lat = copyFloat(p.photo.Lat)
		photo.Lon = copyFloat(p.photo.Lon)
		s.Photos = append(s.Photos, photo)
	}
	if c.media != nil {
		m := capture.Media{Data: append([]byte(nil), c.media.Data...), MIMEType: c.media.MIMEType}
		s.Media = &m
	}
	return s
}

// Summary returns counts without copying buffers.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := Summary{ID: c.id, State: c.state, Points: len(c.trackPoints), PendingPhotos: c.pending, StartedAt: c.startedAt}
	for _, p := range c.photos {
		if p.ready {
			sum.Photos++
		}
	}
	if c.media != nil {
		sum.MediaBytes = len(c.media.Data)
	}
	return sum
}

// WaitPhotos blocks until every photo still resolving its position is done.
func (c *Controller) WaitPhotos(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == 0 {
		c.mu.Unlock()
		return nil
	}
	ch := c.drained
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addPending counts a photo goroutine. Caller holds c.mu.
func (c *Controller) addPending() {
	if c.pending == 0 {
		c.drained = make(chan struct{})
	}
	c.pending++
}

func (c *Controller) donePending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.pending == 0 {
		close(c.drained)
	}
}

// Close tears everything down from any state. Later calls return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.clearLocked()
	c.mu.Unlock()

	c.cancel()
	c.tracker.Unsubscribe()
	return c.source.Release()
}

func (c *Controller) logStartFailed(capability Capability, err error) {
	c.logEvent(log.LogEvent{
		Event:      log.EventSessionStartFailed,
		Capability: string(capability),
		Error:      err.Error(),
	})
}

func (c *Controller) logEvent(ev log.LogEvent) {
	if ev.Time.IsZero() {
		ev.Time = c.now().UTC()
	}
	if err := c.events.Append(ev); err != nil {
		slog.Warn("session: failed to log event", "event", ev.Event, "error", err)
	}
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
