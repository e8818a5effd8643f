// Package dispatch fans change events out to the communities that want them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"mod-update-notifier/config"
	"mod-update-notifier/db"
	"mod-update-notifier/diff"
	"mod-update-notifier/metrics"
	"mod-update-notifier/platform"
	"mod-update-notifier/subscription"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errNotStarted marks a message that was never handed to the platform.
var errNotStarted = errors.New("send not started")

// Failure is a message that could not be delivered.
type Failure struct {
	ServerID  int64  `json:"server_id"`
	ChannelID string `json:"channel_id"`
	Slug      string `json:"slug"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// Report summarises one dispatch.
type Report struct {
	CycleID         string    `json:"cycle_id"`
	EventsProcessed int       `json:"events_processed"`
	MessagesSent    int       `json:"messages_sent"`
	Failures        []Failure `json:"failures,omitempty"`
	Skipped         int       `json:"skipped"`
}

// Failed returns the number of failed messages.
func (r Report) Failed() int {
	return len(r.Failures)
}

type Options struct {
	Concurrency int
	SendTimeout time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Concurrency: cfg.SendConcurrency,
		SendTimeout: cfg.SendTimeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	}
}

// Dispatcher delivers notifications through a platform.Sender.
type Dispatcher struct {
	sender    platform.Sender
	budget    *Budget
	formatter Formatter
	opts      Options
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

func New(sender platform.Sender, budget *Budget, formatter Formatter, opts Options, m *metrics.Metrics, log *zap.SugaredLogger) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Dispatcher{
		sender:    sender,
		budget:    budget,
		formatter: formatter,
		opts:      opts,
		metrics:   m,
		log:       log,
	}
}

type job struct {
	event   diff.ChangeEvent
	server  db.Server
	channel string
	msg     platform.Message
}

// Order returns events with version changes ahead of metadata changes,
// otherwise keeping their order.
func Order(events []diff.ChangeEvent) []diff.ChangeEvent {
	out := make([]diff.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind != diff.MetadataChanged {
			out = append(out, ev)
		}
	}
	for _, ev := range events {
		if ev.Kind == diff.MetadataChanged {
			out = append(out, ev)
		}
	}
	return out
}

// Dispatch sends one message per (event, server) pair resolved by idx.
// Each server's messages go out one at a time in event order; servers are
// served concurrently. A failing server never blocks the others. Once ctx
// is done no new send starts and the remaining messages are counted as
// skipped; sends already in flight finish under their own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, cycleID string, events []diff.ChangeEvent, idx *subscription.Index) Report {
	report := Report{CycleID: cycleID, EventsProcessed: len(events)}
	log := d.log.With(zap.String("cycle", cycleID))

	var order []int64
	queues := make(map[int64][]job)
	for _, ev := range Order(events) {
		for _, srv := range idx.Resolve(ev) {
			if _, ok := queues[srv.ServerID]; !ok {
				order = append(order, srv.ServerID)
			}
			queues[srv.ServerID] = append(queues[srv.ServerID], job{
				event:   ev,
				server:  srv,
				channel: strconv.FormatInt(*srv.UpdatesChannel, 10),
				msg:     d.formatter.Format(ev, srv),
			})
		}
	}
	if len(order) == 0 {
		return report
	}
	log.Infow("Dispatching notifications", "events", len(events), "servers", len(order))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for _, serverID := range order {
		queue := queues[serverID]
		g.Go(func() error {
			sent, skipped, failures := d.drain(ctx, log.With(zap.Int64("server", serverID)), queue)
			mu.Lock()
			report.MessagesSent += sent
			report.Skipped += skipped
			report.Failures = append(report.Failures, failures...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Infow("Dispatch finished",
		"sent", report.MessagesSent, "failed", report.Failed(), "skipped", report.Skipped)
	return report
}

// drain delivers one server's queue in order.
func (d *Dispatcher) drain(ctx context.Context, log *zap.SugaredLogger, queue []job) (sent, skipped int, failures []Failure) {
	for i, j := range queue {
		if ctx.Err() != nil {
			skipped += len(queue) - i
			d.metrics.Messages(metrics.MessageSkipped, len(queue)-i)
			log.Warnw("Shutting down, messages left unsent", "count", len(queue)-i)
			return
		}

		err := d.deliver(ctx, log, j)
		switch {
		case err == nil:
			sent++
			d.metrics.Message(metrics.MessageSent)
		case errors.Is(err, errNotStarted), ctx.Err() != nil && errors.Is(err, ctx.Err()):
			skipped++
			d.metrics.Message(metrics.MessageSkipped)
		default:
			failures = append(failures, Failure{
				ServerID:  j.server.ServerID,
				ChannelID: j.channel,
				Slug:      j.event.Slug,
				Kind:      platform.KindOf(err).String(),
				Reason:    err.Error(),
			})
			d.metrics.Message(metrics.MessageFailed)
			log.Errorw("Failed to deliver notification",
				"channel", j.channel, "mod", j.event.Slug, zap.Error(err))
		}
	}
	return
}

// deliver sends one message, retrying per the error's kind.
func (d *Dispatcher) deliver(ctx context.Context, log *zap.SugaredLogger, j job) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.BackoffBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.MaxRetries)), ctx)

	attempt := 0
	op := func() error {
		// Waiting for budget is cancellable; the send itself is not.
		if err := d.budget.Wait(ctx, j.channel); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", errNotStarted, err))
		}
		attempt++

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.SendTimeout)
		defer cancel()
		start := time.Now()
		_, err := d.sender.SendMessage(sendCtx, j.channel, j.msg)
		d.metrics.SendObserved(time.Since(start))
		if err == nil {
			return nil
		}

		var pe *platform.Error
		if errors.As(err, &pe) {
			if pe.Permanent() {
				return backoff.Permanent(err)
			}
			if pe.Kind == platform.RateLimited {
				log.Warnw("Rate limited by platform, pausing sends", "retry_after", pe.RetryAfter)
				d.budget.Pause(pe.RetryAfter)
			}
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.metrics.Retry()
		log.Warnw("Retrying notification",
			"channel", j.channel, "mod", j.event.Slug, "attempt", attempt, "wait", wait, zap.Error(err))
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err != nil && attempt == 0 {
		// Cancelled before the first send.
		if !errors.Is(err, errNotStarted) {
			err = fmt.Errorf("%w: %v", errNotStarted, err)
		}
	}
	return err
}
