package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mod-update-notifier/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core).Sugar(), logs
}

func TestTriggerSkipsOverrun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs atomic.Int32
	log, logs := newObserved()

	s := New(func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}, Options{Interval: time.Hour}, nil, log)

	require.True(t, s.Trigger(context.Background()))
	<-started
	assert.True(t, s.Running())

	assert.False(t, s.Trigger(context.Background()))
	assert.ErrorIs(t, s.RunOnce(context.Background()), ErrOverrun)
	assert.Equal(t, 2, logs.FilterMessage("Skipping cycle").Len())

	close(release)
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())

	require.True(t, s.Trigger(context.Background()), "lock is released after the cycle returns")
	<-started
}

func TestRunTicksAndStops(t *testing.T) {
	var runs atomic.Int32
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, Options{Interval: 10 * time.Millisecond}, nil, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunOnStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New(func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, Options{Interval: time.Hour, RunOnStart: true}, nil, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate first cycle")
	}
}

func TestRunOnceReturnsCycleError(t *testing.T) {
	boom := errors.New("portal down")
	log, logs := newObserved()
	m := metrics.New()
	s := New(func(ctx context.Context) error { return boom }, Options{Interval: time.Hour}, m, log)

	assert.ErrorIs(t, s.RunOnce(context.Background()), boom)
	assert.Equal(t, 1, logs.FilterMessage("Cycle failed").Len())
	assert.False(t, s.Running())
}

func TestTimeoutCancelsCycle(t *testing.T) {
	s := New(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Interval: time.Hour, Timeout: 20 * time.Millisecond, Grace: time.Second}, nil, zap.NewNop().Sugar())

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Running())
}

func TestAbandonsStuckCycle(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	log, logs := newObserved()

	s := New(func(ctx context.Context) error {
		<-stuck // ignores ctx
		return nil
	}, Options{Interval: time.Hour, Timeout: 20 * time.Millisecond, Grace: 20 * time.Millisecond}, nil, log)

	start := time.Now()
	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.Running(), "an abandoned cycle releases the lock")
	assert.Equal(t, 1, logs.FilterMessage("Cycle did not stop after timeout, abandoning it").Len())
}

func TestRecoversPanickingCycle(t *testing.T) {
	s := New(func(ctx context.Context) error {
		panic("bad cycle")
	}, Options{Interval: time.Hour}, nil, zap.NewNop().Sugar())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad cycle")
}
