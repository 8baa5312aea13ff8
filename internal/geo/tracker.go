package geo

import (
	"context"
	"sync"
)

// Tracker wraps a Provider with subscription ownership and deduplication.
type Tracker struct {
	provider Provider

	mu     sync.Mutex
	cancel func()
	gen    uint64 // bumped on every Subscribe/Unsubscribe

	// fixMu serialises delivery so onFix sees fixes in arrival order.
	fixMu sync.Mutex
	last  *Fix
}

// NewTracker creates a Tracker over provider.
func NewTracker(provider Provider) *Tracker {
	return &Tracker{provider: provider}
}

// Subscribe begins continuous sampling. onFix is invoked once per reading
// whose (lat, lon) differs from the previously delivered reading; exact
// repeats are dropped. onError receives per-event failures wrapped as
// ErrFixUnavailable and never ends the subscription.
//
// onFix and onError must not call Unsubscribe.
func (t *Tracker) Subscribe(ctx context.Context, opts Options, onFix func(Fix), onError func(error)) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return ErrAlreadySubscribed
	}
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	t.fixMu.Lock()
	t.last = nil
	t.fixMu.Unlock()

	deliver := func(f Fix) {
		// Lock order is fixMu then mu. The generation is checked under fixMu
		// so a stale reading cannot land after Subscribe cleared last.
		t.fixMu.Lock()
		defer t.fixMu.Unlock()
		if !t.current(gen) {
			return
		}
		if t.last != nil && t.last.SamePosition(f) {
			return
		}
		fix := f
		t.last = &fix
		if onFix != nil {
			onFix(f)
		}
	}
	report := func(err error) {
		if !t.current(gen) || onError == nil {
			return
		}
		onError(fixUnavailable(err))
	}

	cancel, err := t.provider.Watch(ctx, opts, deliver, report)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		// Unsubscribed while Watch was starting.
		cancel()
		return nil
	}
	t.cancel = cancel
	return nil
}

// Unsubscribe cancels the active subscription. Safe no-op if none is active.
func (t *Tracker) Unsubscribe() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.gen++
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Active reports whether a continuous subscription is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// OneShotFix performs an independent single query. Any failure, including
// timeout, resolves to ok == false rather than an error.
func (t *Tracker) OneShotFix(ctx context.Context, opts Options) (Fix, bool) {
	fix, err := t.Locate(ctx, opts)
	if err != nil {
		return Fix{}, false
	}
	return fix, true
}

// Locate performs a single query and returns the failure. It is used as the
// start-time permission check, where the caller needs to know why.
func (t *Tracker) Locate(ctx context.Context, opts Options) (Fix, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return t.provider.CurrentPosition(ctx, opts)
}

func (t *Tracker) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}
