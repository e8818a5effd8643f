// Package scheduler runs update cycles on a fixed interval, one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mod-update-notifier/metrics"

	"go.uber.org/zap"
)

var (
	// ErrOverrun is returned when a cycle is requested while one is running.
	ErrOverrun = errors.New("previous cycle still running")
	// ErrAbandoned is returned when a cycle outlived its timeout and grace period.
	ErrAbandoned = errors.New("cycle abandoned after timeout")
)

// CycleFunc runs one update cycle. It must stop early when ctx is done.
type CycleFunc func(ctx context.Context) error

type Options struct {
	Interval   time.Duration
	Timeout    time.Duration // per cycle; zero means no limit
	Grace      time.Duration // how long a timed-out cycle may take to return
	RunOnStart bool
}

// Scheduler triggers cycles and guarantees at most one is in flight.
type Scheduler struct {
	cycle   CycleFunc
	opts    Options
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	running atomic.Bool
	wg      sync.WaitGroup
}

func New(cycle CycleFunc, opts Options, m *metrics.Metrics, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{cycle: cycle, opts: opts, metrics: m, log: log}
}

// Run triggers a cycle every interval until ctx is done, then waits for the
// cycle in flight to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Infow("Scheduler started", "interval", s.opts.Interval, "timeout", s.opts.Timeout, "run_on_start", s.opts.RunOnStart)
	if s.opts.RunOnStart {
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping, waiting for running cycle")
			s.wg.Wait()
			s.log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a cycle in the background unless one is already running.
// It reports whether a cycle was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.overrun()
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_ = s.execute(ctx)
	}()
	return true
}

// RunOnce runs a cycle and waits for it. It returns ErrOverrun if another
// cycle is running.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.overrun()
		return ErrOverrun
	}
	defer s.running.Store(false)
	return s.execute(ctx)
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) overrun() {
	s.metrics.CycleFinished(metrics.CycleOverrun, 0)
	s.log.Warnw("Skipping cycle", zap.Error(ErrOverrun))
}

func (s *Scheduler) execute(ctx context.Context) error {
	start := time.Now()
	var (
		cctx   context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("cycle panicked: %v", r)
			}
		}()
		done <- s.cycle(cctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		grace := time.NewTimer(s.opts.Grace)
		select {
		case err = <-done:
			grace.Stop()
		case <-grace.C:
			// The goroutine keeps running with a cancelled context and
			// exits on its own; its result is dropped.
			s.metrics.CycleFinished(metrics.CycleAbandoned, time.Since(start))
			s.log.Errorw("Cycle did not stop after timeout, abandoning it",
				"timeout", s.opts.Timeout, "grace", s.opts.Grace)
			return ErrAbandoned
		}
	}

	elapsed := time.Since(start)
	if err != nil {
		s.metrics.CycleFinished(metrics.CycleFailed, elapsed)
		s.log.Errorw("Cycle failed", "duration", elapsed, zap.Error(err))
		return err
	}
	s.metrics.CycleFinished(metrics.CycleOK, elapsed)
	return nil
}
