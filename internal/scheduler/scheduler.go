package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one monitoring cycle.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	RunAtStart   bool
	StartupDelay time.Duration
	// OnSkip is invoked whenever a tick is skipped because a cycle is
	// still running. Optional.
	OnSkip func()
}

const (
	stateIdle int32 = iota
	stateRunning
)

// Scheduler drives the monitoring cycle at a fixed interval. It is an
// explicit two-state machine: Idle while waiting for the timer, Running
// while a cycle executes. A tick arriving while Running is skipped, never
// queued, and the next tick is armed only after the current cycle
// completes, so the cadence drifts with cycle duration rather than
// correcting toward wall-clock alignment.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	state  atomic.Int32
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, executing ticks until ctx is cancelled. Cycle errors are
// logged and the loop continues; only context cancellation ends the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunAtStart {
		s.execute(ctx, tick, time.Now().UTC())
	}

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.execute(ctx, tick, time.Now().UTC())
			// next tick measured from cycle completion
			timer.Reset(s.opts.Interval)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, now time.Time) {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		s.logger.Warn().Time("tick", now).Msg("previous cycle still running, skipping tick")
		if s.opts.OnSkip != nil {
			s.opts.OnSkip()
		}
		return
	}
	defer s.state.Store(stateIdle)

	s.logger.Info().Time("tick", now).Msg("executing monitoring cycle")
	if err := tick(ctx, now); err != nil {
		s.logger.Error().Err(err).Time("tick", now).Msg("cycle failed")
	}
}
