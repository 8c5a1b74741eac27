// Package resource bounds how hard one worker process drives its collaborators:
// concurrent evaluations, evaluation launch rate and archive upload bandwidth.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxConcurrent is the maximum number of evaluations in flight.
	// If 0, defaults to 1.
	MaxConcurrent int64

	// LaunchesPerSecond limits how often a new evaluation may start.
	// If 0, unlimited.
	LaunchesPerSecond float64

	// IOLimitBytesPerSec is the maximum throughput for archive transfers.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller hands out evaluation slots and IO budget.
type Controller struct {
	cfg Config

	slots    *semaphore.Weighted
	inFlight atomic.Int64

	launch    *rate.Limiter // nil if unlimited
	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	c := &Controller{
		cfg:   cfg,
		slots: semaphore.NewWeighted(cfg.MaxConcurrent),
	}

	if cfg.LaunchesPerSecond > 0 {
		c.launch = rate.NewLimiter(rate.Limit(cfg.LaunchesPerSecond), 1)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Acquire waits for the launch limiter and a free slot, or until ctx is done.
func (c *Controller) Acquire(ctx context.Context) error {
	if c.launch != nil {
		if err := c.launch.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking. The launch limiter is not consulted.
func (c *Controller) TryAcquire() bool {
	if !c.slots.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// Release returns a slot.
func (c *Controller) Release() {
	c.inFlight.Add(-1)
	c.slots.Release(1)
}

// InFlight returns the number of held slots.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Run calls fn for every index in [0, n), at most MaxConcurrent at a time.
// The first error cancels the context passed to the remaining calls and is returned.
func (c *Controller) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		if err := c.Acquire(gctx); err != nil {
			// Report the failure that cancelled gctx rather than the cancellation itself.
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}

		g.Go(func() error {
			defer c.Release()
			return fn(gctx, i)
		})
	}

	return g.Wait()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c.ioLimiter == nil {
		return nil
	}
	for bytes > 0 {
		// WaitN rejects requests larger than the burst.
		n := min(bytes, c.ioLimiter.Burst())
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
