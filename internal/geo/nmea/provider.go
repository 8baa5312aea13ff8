// Package nmea implements geo.Provider on top of an NMEA-0183 GPS receiver.
//
// A single reader goroutine owns the device and fans sentences out to every
// active listener, so a continuous watch and concurrent one-shot queries
// share one serial stream instead of competing for its bytes.
package nmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
)

var errSourceClosed = errors.New("gps source closed")

// Opener opens the raw NMEA byte stream.
type Opener func() (io.ReadCloser, error)

// Provider reads fixes from an NMEA stream.
type Provider struct {
	open Opener
	now  func() time.Time

	mu        sync.Mutex
	listeners map[int]*listener
	nextID    int
	closer    io.Closer
	readerWG  sync.WaitGroup
	last      *geo.Fix
	lastAt    time.Time
}

type listener struct {
	mu    sync.Mutex
	done  bool
	onFix func(geo.Fix)
	onErr func(error)
}

func (l *listener) fix(f geo.Fix) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done && l.onFix != nil {
		l.onFix(f)
	}
}

func (l *listener) err(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done && l.onErr != nil {
		l.onErr(err)
	}
}

func (l *listener) close() {
	l.mu.Lock()
	l.done = true
	l.mu.Unlock()
}

// New returns a Provider reading from a device node or file path.
func New(device string) *Provider {
	return NewWithOpener(func() (io.ReadCloser, error) {
		return os.Open(device)
	})
}

// NewWithOpener returns a Provider reading from whatever open yields.
func NewWithOpener(open Opener) *Provider {
	return &Provider{
		open:      open,
		now:       time.Now,
		listeners: make(map[int]*listener),
	}
}

// Watch implements geo.Provider.
func (p *Provider) Watch(ctx context.Context, opts geo.Options, onFix func(geo.Fix), onErr func(error)) (func(), error) {
	kick := make(chan struct{}, 1)
	l := &listener{
		onFix: func(f geo.Fix) {
			select {
			case kick <- struct{}{}:
			default:
			}
			if onFix != nil {
				onFix(f)
			}
		},
		onErr: onErr,
	}
	id, err := p.register(l)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var timeout <-chan time.Time
		var timer *time.Timer
		if opts.Timeout > 0 {
			timer = time.NewTimer(opts.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				l.close()
				return
			case <-kick:
				if timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(opts.Timeout)
				}
			case <-timeout:
				l.err(fmt.Errorf("%w: no reading within %s", geo.ErrFixUnavailable, opts.Timeout))
				timer.Reset(opts.Timeout)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.close()
			close(done)
			wg.Wait()
			p.unregister(id)
		})
	}
	return cancel, nil
}

// CurrentPosition implements geo.Provider.
func (p *Provider) CurrentPosition(ctx context.Context, opts geo.Options) (geo.Fix, error) {
	if opts.MaxStaleness > 0 {
		p.mu.Lock()
		last, lastAt := p.last, p.lastAt
		p.mu.Unlock()
		if last != nil && p.now().Sub(lastAt) <= opts.MaxStaleness {
			return *last, nil
		}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	fixes := make(chan geo.Fix, 1)
	closed := make(chan struct{}, 1)
	l := &listener{
		onFix: func(f geo.Fix) {
			select {
			case fixes <- f:
			default:
			}
		},
		onErr: func(err error) {
			if errors.Is(err, errSourceClosed) {
				select {
				case closed <- struct{}{}:
				default:
				}
			}
		},
	}
	id, err := p.register(l)
	if err != nil {
		return geo.Fix{}, err
	}
	defer func() {
		l.close()
		p.unregister(id)
	}()

	select {
	case f := <-fixes:
		return f, nil
	case <-closed:
		return geo.Fix{}, fmt.Errorf("%w: %v", geo.ErrFixUnavailable, errSourceClosed)
	case <-ctx.Done():
		return geo.Fix{}, fmt.Errorf("%w: %v", geo.ErrFixUnavailable, ctx.Err())
	}
}

// register adds l and starts the reader if it is not running.
func (p *Provider) register(l *listener) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closer == nil {
		rc, err := p.open()
		if err != nil {
			return 0, classifyOpenError(err)
		}
		p.closer = rc
		p.readerWG.Add(1)
		go p.read(rc)
	}

	p.nextID++
	p.listeners[p.nextID] = l
	return p.nextID, nil
}

// unregister removes a listener and stops the reader once nobody listens.
func (p *Provider) unregister(id int) {
	p.mu.Lock()
	delete(p.listeners, id)
	var closer io.Closer
	if len(p.listeners) == 0 && p.closer != nil {
		closer = p.closer
		p.closer = nil
	}
	p.mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		p.readerWG.Wait()
	}
}

func (p *Provider) read(rc io.ReadCloser) {
	defer p.readerWG.Done()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, err := p.parse(line)
		if err != nil {
			p.broadcastErr(fmt.Errorf("%w: %v", geo.ErrFixUnavailable, err))
			continue
		}
		if ok {
			p.broadcastFix(fix)
		}
	}

	p.mu.Lock()
	if p.closer == rc {
		// Source ended by itself; let the next listener reopen it.
		p.closer = nil
		_ = rc.Close()
	}
	p.mu.Unlock()
	p.broadcastErr(fmt.Errorf("%w: %v", geo.ErrFixUnavailable, errSourceClosed))
}

// parse turns one sentence into a fix. Sentences that carry no usable
// position (other types, void RMC, GGA without a fix) return ok == false.
func (p *Provider) parse(line string) (geo.Fix, bool, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return geo.Fix{}, false, err
	}

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return geo.Fix{}, false, nil
		}
		return geo.Fix{Lat: m.Latitude, Lon: m.Longitude, Time: p.timestamp(m.Date, m.Time)}, true, nil
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid || m.FixQuality == "" {
			return geo.Fix{}, false, nil
		}
		return geo.Fix{Lat: m.Latitude, Lon: m.Longitude, Time: p.timestamp(nmea.Date{}, m.Time)}, true, nil
	}
	return geo.Fix{}, false, nil
}

// timestamp combines NMEA date/time fields; missing parts come from now.
func (p *Provider) timestamp(d nmea.Date, t nmea.Time) time.Time {
	now := p.now().UTC()
	if !t.Valid {
		return now
	}
	year, month, day := now.Date()
	if d.Valid {
		year, month, day = 2000+d.YY, time.Month(d.MM), d.DD
	}
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

func (p *Provider) broadcastFix(f geo.Fix) {
	p.mu.Lock()
	fix := f
	p.last = &fix
	p.lastAt = p.now()
	ls := p.snapshot()
	p.mu.Unlock()

	for _, l := range ls {
		l.fix(f)
	}
}

func (p *Provider) broadcastErr(err error) {
	p.mu.Lock()
	ls := p.snapshot()
	p.mu.Unlock()

	for _, l := range ls {
		l.err(err)
	}
}

// snapshot returns listeners in registration order. Caller holds p.mu.
func (p *Provider) snapshot() []*listener {
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.listeners[id])
	}
	return out
}

func classifyOpenError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", geo.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: open gps source: %v", geo.ErrFixUnavailable, err)
}
