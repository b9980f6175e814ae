package ordering

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const sweepLockKey = "ordenes:reaper:sweep"

// ErrLockHeld means another replica holds the sweep lease.
var ErrLockHeld = errors.New("ordering: sweep lease held elsewhere")

type Sweeper interface {
	SweepUnpaidOrders(ctx context.Context, threshold time.Duration) (int, error)
}

// Locker grants a lease for key. ok is false when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type ReaperConfig struct {
	Interval  time.Duration
	Threshold time.Duration
	// Locker is optional; without it every replica sweeps.
	Locker Locker
	// LeaseTTL bounds how long a crashed holder blocks other replicas. It must
	// outlast a sweep; defaults to twice Interval.
	LeaseTTL time.Duration
	Logger   *zap.Logger
}

// Reaper periodically cancels PENDING orders that stayed unpaid past the threshold.
type Reaper struct {
	sweeper   Sweeper
	locker    Locker
	interval  time.Duration
	threshold time.Duration
	leaseTTL  time.Duration
	logger    *zap.Logger
}

func NewReaper(sw Sweeper, cfg ReaperConfig) *Reaper {
	r := &Reaper{
		sweeper:   sw,
		locker:    cfg.Locker,
		interval:  cfg.Interval,
		threshold: cfg.Threshold,
		leaseTTL:  cfg.LeaseTTL,
		logger:    cfg.Logger,
	}
	if r.interval <= 0 {
		r.interval = 5 * time.Minute
	}
	if r.threshold <= 0 {
		r.threshold = 24 * time.Hour
	}
	if r.leaseTTL <= r.interval {
		r.leaseTTL = 2 * r.interval
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// RunOnce performs a single sweep, under the lease when a Locker is set.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, sweepLockKey, r.leaseTTL)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrLockHeld
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release sweep lease", zap.Error(err))
			}
		}()
	}
	return r.sweeper.SweepUnpaidOrders(ctx, r.threshold)
}

// Run sweeps every interval until ctx is done. Sweep failures are logged and
// never stop the loop.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.logger.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("threshold", r.threshold))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return nil
		case <-t.C:
			n, err := r.RunOnce(ctx)
			switch {
			case errors.Is(err, ErrLockHeld):
				r.logger.Debug("sweep skipped, lease held elsewhere")
			case err != nil:
				r.logger.Error("sweep failed", zap.Error(err))
			case n > 0:
				r.logger.Info("sweep cancelled unpaid orders", zap.Int("cancelled", n))
			}
		}
	}
}
