package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
)

var (
	errNoFrame   = errors.New("no frame received yet")
	errFinalized = errors.New("encoder already finalized")
)

// Device opens V4L2 cameras through GStreamer.
type Device struct {
	Logger *slog.Logger
}

// New returns a Device logging to the default slog logger.
func New() *Device {
	return &Device{Logger: slog.Default()}
}

// Open implements capture.Device. The device node is checked before any
// pipeline exists so a denied or missing camera retains nothing.
func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := capture.CheckDeviceNode(c.Device); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gst.Init(nil)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	launch := launchString(c)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("%w: build pipeline: %v", capture.ErrDeviceUnavailable, err)
	}

	s := &stream{
		constraints: c,
		pipeline:    pipeline,
		logger:      logger.With("device", c.Device),
		eos:         make(chan struct{}),
		done:        make(chan struct{}),
	}
	if err := s.bind(); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start pipeline: %v", capture.ErrDeviceUnavailable, err)
	}

	s.wg.Add(1)
	go s.monitor()

	s.logger.Info("capture: pipeline playing",
		"width", c.Width,
		"height", c.Height,
		"fps", c.FPS,
		"audio", c.Audio,
	)
	return s, nil
}

type stream struct {
	constraints capture.Constraints
	pipeline    *gst.Pipeline
	encSink     *app.Sink
	frameSink   *app.Sink
	valves      []*gst.Element
	logger      *slog.Logger

	mu        sync.Mutex
	onChunk   func([]byte)
	encoding  bool
	finalized bool
	frame     *image.RGBA
	busErr    error
	closed    bool

	eos     chan struct{}
	eosOnce sync.Once
	done    chan struct{}
	wg      sync.WaitGroup
}

func (s *stream) bind() error {
	enc, err := s.pipeline.GetElementByName(encSinkName)
	if err != nil {
		return fmt.Errorf("find %s: %w", encSinkName, err)
	}
	frames, err := s.pipeline.GetElementByName(frameSinkName)
	if err != nil {
		return fmt.Errorf("find %s: %w", frameSinkName, err)
	}
	s.encSink = app.SinkFromElement(enc)
	s.frameSink = app.SinkFromElement(frames)

	names := []string{videoValve}
	if s.constraints.Audio {
		names = append(names, audioValve)
	}
	for _, name := range names {
		v, err := s.pipeline.GetElementByName(name)
		if err != nil {
			return fmt.Errorf("find %s: %w", name, err)
		}
		s.valves = append(s.valves, v)
	}

	s.encSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onEncoded,
	})
	s.frameSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onFrame,
	})
	return nil
}

func (s *stream) MIMEType() string { return mimeWebM }

func (s *stream) StartEncoding(onChunk func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if s.finalized {
		return errFinalized
	}
	s.onChunk = onChunk
	s.encoding = true
	for _, v := range s.valves {
		if err := v.SetProperty("drop", false); err != nil {
			return fmt.Errorf("open valve: %w", err)
		}
	}
	s.logger.Debug("capture: encoding started")
	return nil
}

// StopEncoding sends EOS and waits until the muxer has flushed.
func (s *stream) StopEncoding(ctx context.Context) error {
	s.mu.Lock()
	if !s.encoding {
		s.mu.Unlock()
		return nil
	}
	s.encoding = false
	s.finalized = true
	s.mu.Unlock()

	start := time.Now()
	if !s.pipeline.SendEvent(gst.NewEOSEvent()) {
		return fmt.Errorf("send eos: rejected by pipeline")
	}

	select {
	case <-s.eos:
	case <-ctx.Done():
		return fmt.Errorf("wait for eos: %w", ctx.Err())
	}

	s.mu.Lock()
	err := s.busErr
	s.onChunk = nil
	s.mu.Unlock()

	s.logger.Debug("capture: encoding finalized", "elapsed", time.Since(start))
	return err
}

func (s *stream) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}
	if s.frame == nil {
		return nil, errNoFrame
	}
	out := image.NewRGBA(s.frame.Rect)
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.onChunk = nil
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop pipeline: %w", err)
	}
	s.logger.Info("capture: pipeline released")
	return nil
}

func (s *stream) onEncoded(sink *app.Sink) gst.FlowReturn {
	data := pull(sink)
	if len(data) == 0 {
		return gst.FlowOK
	}
	s.mu.Lock()
	cb := s.onChunk
	s.mu.Unlock()
	if cb != nil {
		cb(data)
	}
	return gst.FlowOK
}

func (s *stream) onFrame(sink *app.Sink) gst.FlowReturn {
	data := pull(sink)
	w, h := s.constraints.Width, s.constraints.Height
	if len(data) != w*h*4 {
		// Skip frames whose layout does not match the negotiated caps.
		if len(data) > 0 {
			s.logger.Debug("capture: unexpected frame size", "bytes", len(data), "want", w*h*4)
		}
		return gst.FlowOK
	}
	img := &image.RGBA{Pix: data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()
	return gst.FlowOK
}

// pull copies the next sample's bytes; GStreamer reuses the buffer.
func pull(sink *app.Sink) []byte {
	sample := sink.PullSample()
	if sample == nil {
		return nil
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}
	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	raw := mapInfo.Bytes()
	if len(raw) == 0 {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// monitor polls the bus until Close, recording EOS and pipeline errors.
func (s *stream) monitor() {
	defer s.wg.Done()
	bus := s.pipeline.GetPipelineBus()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			s.logger.Debug("capture: end of stream")
			s.eosOnce.Do(func() { close(s.eos) })

		case gst.MessageError:
			gerr := msg.ParseError()
			s.logger.Error("capture: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			s.mu.Lock()
			if s.busErr == nil {
				s.busErr = fmt.Errorf("pipeline: %s", gerr.Error())
			}
			s.mu.Unlock()
			// An errored pipeline will not deliver EOS; release anyone waiting.
			s.eosOnce.Do(func() { close(s.eos) })

		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				old, cur := msg.ParseStateChanged()
				s.logger.Debug("capture: pipeline state changed", "from", old, "to", cur)
			}
		}
	}
}
