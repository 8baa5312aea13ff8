package geo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeProvider lets tests push readings into an active watch.
type fakeProvider struct {
	mu       sync.Mutex
	onFix    func(Fix)
	onErr    func(error)
	watchErr error
	watches  int
	cancels  int

	current    Fix
	currentErr error
	block      bool // CurrentPosition waits for ctx when set
}

func (p *fakeProvider) Watch(_ context.Context, _ Options, onFix func(Fix), onErr func(error)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	p.watches++
	p.onFix, p.onErr = onFix, onErr
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cancels++
		p.onFix, p.onErr = nil, nil
	}, nil
}

func (p *fakeProvider) CurrentPosition(ctx context.Context, _ Options) (Fix, error) {
	if p.block {
		<-ctx.Done()
		return Fix{}, ctx.Err()
	}
	return p.current, p.currentErr
}

func (p *fakeProvider) emit(f Fix) {
	p.mu.Lock()
	cb := p.onFix
	p.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	cb := p.onErr
	p.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func at(sec int) time.Time {
	return time.Date(2025, 5, 1, 10, 0, sec, 0, time.UTC)
}

func TestTrackerDropsConsecutiveDuplicates(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	var got []Fix
	if err := tr.Subscribe(context.Background(), WatchOptions(), func(f Fix) { got = append(got, f) }, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p.emit(Fix{Lat: 12.90, Lon: 77.60, Time: at(1)})
	p.emit(Fix{Lat: 12.90, Lon: 77.60, Time: at(2)})
	p.emit(Fix{Lat: 12.91, Lon: 77.61, Time: at(3)})

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if !got[0].Time.Equal(at(1)) || got[0].Lat != 12.90 {
		t.Errorf("got[0] = %v, want (12.90, 77.60, t1)", got[0])
	}
	if !got[1].Time.Equal(at(3)) || got[1].Lat != 12.91 || got[1].Lon != 77.61 {
		t.Errorf("got[1] = %v, want (12.91, 77.61, t3)", got[1])
	}
}

func TestTrackerKeepsNonAdjacentRepeats(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	var got []Fix
	_ = tr.Subscribe(context.Background(), WatchOptions(), func(f Fix) { got = append(got, f) }, nil)

	seq := []Fix{
		{Lat: 1, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 2, Lon: 2},
		{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 1, Lon: 2}, {Lat: 1, Lon: 1},
	}
	for _, f := range seq {
		p.emit(f)
	}

	if len(got) != 5 {
		t.Fatalf("len(got) = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].SamePosition(got[i-1]) {
			t.Errorf("got[%d] and got[%d] share position %v", i-1, i, got[i])
		}
	}
}

func TestTrackerErrorsAreNonFatal(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	var fixes int
	var errs []error
	_ = tr.Subscribe(context.Background(), WatchOptions(),
		func(Fix) { fixes++ },
		func(err error) { errs = append(errs, err) })

	p.emit(Fix{Lat: 1, Lon: 1})
	p.fail(errors.New("timeout expired"))
	p.emit(Fix{Lat: 2, Lon: 2})

	if fixes != 2 {
		t.Errorf("fixes = %d, want 2", fixes)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrFixUnavailable) {
		t.Errorf("errs = %v, want one ErrFixUnavailable", errs)
	}
	if !tr.Active() {
		t.Error("subscription should survive a sampling error")
	}
}

func TestTrackerUnsubscribe(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	// No-op before any subscription.
	tr.Unsubscribe()
	if p.cancels != 0 {
		t.Errorf("cancels = %d, want 0", p.cancels)
	}

	var fixes int
	_ = tr.Subscribe(context.Background(), WatchOptions(), func(Fix) { fixes++ }, nil)
	if err := tr.Subscribe(context.Background(), WatchOptions(), nil, nil); !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("second Subscribe error = %v, want ErrAlreadySubscribed", err)
	}

	tr.Unsubscribe()
	tr.Unsubscribe()
	if p.cancels != 1 {
		t.Errorf("cancels = %d, want 1", p.cancels)
	}
	p.emit(Fix{Lat: 3, Lon: 3})
	if fixes != 0 {
		t.Errorf("fixes after unsubscribe = %d, want 0", fixes)
	}
	if tr.Active() {
		t.Error("Active should be false after Unsubscribe")
	}
}

func TestTrackerResubscribeResetsDedup(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	var got []Fix
	onFix := func(f Fix) { got = append(got, f) }
	_ = tr.Subscribe(context.Background(), WatchOptions(), onFix, nil)
	p.emit(Fix{Lat: 5, Lon: 5})
	tr.Unsubscribe()

	_ = tr.Subscribe(context.Background(), WatchOptions(), onFix, nil)
	p.emit(Fix{Lat: 5, Lon: 5})

	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2 (a new subscription starts a new track)", len(got))
	}
}

func TestTrackerWatchFailure(t *testing.T) {
	p := &fakeProvider{watchErr: ErrPermissionDenied}
	tr := NewTracker(p)
	err := tr.Subscribe(context.Background(), WatchOptions(), nil, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Subscribe error = %v, want ErrPermissionDenied", err)
	}
	if tr.Active() {
		t.Error("Active should be false when Watch failed")
	}
}

func TestOneShotFixFailureResolvesToNoFix(t *testing.T) {
	p := &fakeProvider{currentErr: errors.New("no satellites")}
	tr := NewTracker(p)
	if _, ok := tr.OneShotFix(context.Background(), WatchOptions()); ok {
		t.Error("OneShotFix should report no fix on provider error")
	}

	p = &fakeProvider{block: true}
	tr = NewTracker(p)
	opts := Options{Timeout: 10 * time.Millisecond}
	if _, ok := tr.OneShotFix(context.Background(), opts); ok {
		t.Error("OneShotFix should report no fix on timeout")
	}
}

func TestOneShotFixIndependentOfSubscription(t *testing.T) {
	p := &fakeProvider{current: Fix{Lat: 9, Lon: 9}}
	tr := NewTracker(p)

	var errs int
	_ = tr.Subscribe(context.Background(), WatchOptions(), nil, func(error) { errs++ })
	p.fail(errors.New("sampling glitch"))

	fix, ok := tr.OneShotFix(context.Background(), WatchOptions())
	if !ok || fix.Lat != 9 {
		t.Errorf("OneShotFix = %v, %v; want (9, 9), true", fix, ok)
	}
	if errs != 1 {
		t.Errorf("subscription errs = %d, want 1", errs)
	}
	if !tr.Active() {
		t.Error("one-shot query must not disturb the subscription")
	}
}

func TestLocateReturnsCause(t *testing.T) {
	p := &fakeProvider{currentErr: ErrPermissionDenied}
	tr := NewTracker(p)
	if _, err := tr.Locate(context.Background(), AccessCheckOptions()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Locate error = %v, want ErrPermissionDenied", err)
	}
}

func TestTrackerStaleDeliveryAfterResubscribe(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var old []Fix
	oldFix := func(f Fix) {
		mu.Lock()
		old = append(old, f)
		first := len(old) == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
	}
	if err := tr.Subscribe(context.Background(), WatchOptions(), oldFix, nil); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	p.mu.Lock()
	stale := p.onFix
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); stale(Fix{Lat: 1, Lon: 1}) }()
	<-entered
	// This reading queues behind the one still being delivered.
	go func() { defer wg.Done(); stale(Fix{Lat: 2, Lon: 2}) }()
	time.Sleep(20 * time.Millisecond)

	tr.Unsubscribe()
	var got []Fix
	subscribed := make(chan error, 1)
	go func() {
		subscribed <- tr.Subscribe(context.Background(), WatchOptions(), func(f Fix) { got = append(got, f) }, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if err := <-subscribed; err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}

	p.emit(Fix{Lat: 2, Lon: 2})
	if len(got) != 1 {
		t.Errorf("new subscription got %d fixes, want 1", len(got))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(old) != 1 {
		t.Errorf("old subscription got %d fixes, want 1", len(old))
	}
}
