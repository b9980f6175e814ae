package ordering

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls     atomic.Int64
	threshold atomic.Int64
	err       error
}

func (s *countingSweeper) SweepUnpaidOrders(_ context.Context, threshold time.Duration) (int, error) {
	s.calls.Add(1)
	s.threshold.Store(int64(threshold))
	return 1, s.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
	ttl      time.Duration
	err      error
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttl = ttl
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		return nil
	}, true, nil
}

func TestReaperRunOnceWithoutLocker(t *testing.T) {
	sw := &countingSweeper{}
	r := NewReaper(sw, ReaperConfig{Threshold: 2 * time.Hour})

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, sw.calls.Load())
	assert.EqualValues(t, 2*time.Hour, sw.threshold.Load())
}

func TestReaperRunOnceTakesAndReleasesLease(t *testing.T) {
	sw := &countingSweeper{}
	l := &fakeLocker{}
	r := NewReaper(sw, ReaperConfig{Locker: l})

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.released)
	assert.False(t, l.held)
}

func TestReaperLeaseOutlastsInterval(t *testing.T) {
	l := &fakeLocker{}
	r := NewReaper(&countingSweeper{}, ReaperConfig{Interval: time.Minute, Locker: l})
	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, l.ttl)

	// A TTL no longer than the interval falls back to the default.
	r = NewReaper(&countingSweeper{}, ReaperConfig{Interval: time.Minute, LeaseTTL: time.Minute, Locker: l})
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Greater(t, l.ttl, time.Minute)

	r = NewReaper(&countingSweeper{}, ReaperConfig{Interval: time.Minute, LeaseTTL: 10 * time.Minute, Locker: l})
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, l.ttl)
}

func TestReaperRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	sw := &countingSweeper{}
	l := &fakeLocker{held: true}
	r := NewReaper(sw, ReaperConfig{Locker: l})

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.EqualValues(t, 0, sw.calls.Load())
}

func TestReaperRunOnceLockError(t *testing.T) {
	sw := &countingSweeper{}
	r := NewReaper(sw, ReaperConfig{Locker: &fakeLocker{err: errors.New("redis down")}})

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 0, sw.calls.Load())
}

func TestReaperDefaults(t *testing.T) {
	r := NewReaper(&countingSweeper{}, ReaperConfig{})
	assert.Equal(t, 5*time.Minute, r.interval)
	assert.Equal(t, 24*time.Hour, r.threshold)
}

func TestReaperRunTicksUntilCancelled(t *testing.T) {
	sw := &countingSweeper{err: errors.New("transient")}
	r := NewReaper(sw, ReaperConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"sweep errors must not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperSweepsRealOrders(t *testing.T) {
	f := newFixture(t, prod("A", "1.00", 10))
	ctx := context.Background()
	_, err := f.svc.PlaceOrder(ctx, placeReq(line("A", 4)))
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)

	r := NewReaper(f.svc, ReaperConfig{Threshold: 24 * time.Hour, Locker: &fakeLocker{}})
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, f.stock(t, "A"))

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
