// Package task drives collector lifecycles.
//
// A Task owns one attachment of every Definition given to it. Lifecycle calls are posted onto
// the task's loop and run on its goroutine. The task waits for each call's completion before
// issuing the next call to the same collector, so collectors never see overlapping calls.
// Emitted metrics are forwarded to the task's reporter.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/linchenxuan/incidental/collector"
	"github.com/linchenxuan/incidental/log"
	"github.com/linchenxuan/incidental/loop"
	"github.com/linchenxuan/incidental/metric"
	"github.com/linchenxuan/incidental/reporter"
)

var (
	// ErrTaskStopped is returned by operations on a stopped task.
	ErrTaskStopped = errors.New("task stopped")
	// ErrTaskNotStarted is returned by Ping before Start.
	ErrTaskNotStarted = errors.New("task not started")
	// ErrTaskStarted is returned by a second Start.
	ErrTaskStarted = errors.New("task already started")
	// ErrPingInFlight is returned when a ping overlaps the previous one.
	ErrPingInFlight = errors.New("ping in flight")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

type attachment struct {
	def *collector.Definition
	c   collector.Collector
}

// Task periodically flushes its collectors and reports what they emit.
type Task struct {
	id       string
	cfg      Config
	reporter reporter.Reporter
	loop     *loop.Loop
	cron     *cron.Cron

	mu          sync.Mutex
	state       state
	attachments []attachment

	// opMu serializes lifecycle rounds so a collector never sees overlapping calls.
	opMu    sync.Mutex
	pinging atomic.Bool
	emitted atomic.Int64
	pings   atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle task reporting to rep.
func New(cfg Config, rep reporter.Reporter) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("task config: %w", err)
	}
	if rep == nil {
		rep = reporter.Multi(nil)
	}
	cfg = cfg.withDefaults()

	t := &Task{
		id:       uuid.NewString(),
		cfg:      cfg,
		reporter: rep,
		loop:     loop.New(),
	}
	t.cron = cron.New(cron.WithLogger(cronLogger{taskID: t.id}))
	return t, nil
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// Name returns the configured name.
func (t *Task) Name() string { return t.cfg.Name }

// Emitted returns the number of metrics reported so far.
func (t *Task) Emitted() int64 { return t.emitted.Load() }

// Pings returns the number of completed pings.
func (t *Task) Pings() int64 { return t.pings.Load() }

// Attach attaches every definition to the task. On a running task the new collectors are
// started before Attach returns.
func (t *Task) Attach(ctx context.Context, defs ...*collector.Definition) error {
	t.mu.Lock()
	if t.state == stateStopped {
		t.mu.Unlock()
		return ErrTaskStopped
	}
	running := t.state == stateRunning

	added := make([]collector.Collector, 0, len(defs))
	for _, def := range defs {
		c := def.Attach(collector.WithDeferrer(t.loop), collector.WithTags(t.cfg.Tags))
		c.OnMetric(t.report)
		t.attachments = append(t.attachments, attachment{def: def, c: c})
		added = append(added, c)
		log.Debug().Str("task_id", t.id).Str("metric", def.Name()).
			Str("aggregation", def.Aggregation().String()).Msg("definition attached")
	}
	t.mu.Unlock()

	if !running {
		return nil
	}
	t.opMu.Lock()
	defer t.opMu.Unlock()
	return t.each(ctx, "start", added, collector.Collector.Start)
}

// Start starts every collector, then the loop and the ping schedule.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	switch t.state {
	case stateRunning:
		t.mu.Unlock()
		return ErrTaskStarted
	case stateStopped:
		t.mu.Unlock()
		return ErrTaskStopped
	}
	t.state = stateRunning
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		_ = t.loop.Run(loopCtx)
	}()

	t.opMu.Lock()
	err := t.each(ctx, "start", t.collectors(), collector.Collector.Start)
	t.opMu.Unlock()
	if err != nil {
		return err
	}

	if _, err := t.cron.AddFunc(t.cfg.Schedule, t.scheduledPing); err != nil {
		return fmt.Errorf("schedule %q: %w", t.cfg.Schedule, err)
	}
	t.cron.Start()
	log.Info().Str("task_id", t.id).Str("task", t.cfg.Name).Str("schedule", t.cfg.Schedule).
		Int("collectors", len(t.collectors())).Msg("task started")
	return nil
}

// Ping flushes every collector. Overlapping pings fail with ErrPingInFlight.
func (t *Task) Ping(ctx context.Context) error {
	if err := t.checkRunning(); err != nil {
		return err
	}
	if !t.pinging.CompareAndSwap(false, true) {
		return ErrPingInFlight
	}
	defer t.pinging.Store(false)

	t.opMu.Lock()
	defer t.opMu.Unlock()
	if err := t.checkRunning(); err != nil {
		return err
	}

	start := time.Now()
	err := t.each(ctx, "ping", t.collectors(), collector.Collector.Ping)
	t.pings.Add(1)
	log.Debug().Str("task_id", t.id).Dur("took", time.Since(start)).Err(err).Msg("task ping")
	return err
}

// Stop halts the schedule, performs the final flush of every collector, detaches them from
// their definitions and stops the loop.
func (t *Task) Stop(ctx context.Context) error {
	t.mu.Lock()
	prev := t.state
	if prev == stateStopped {
		t.mu.Unlock()
		return ErrTaskStopped
	}
	t.state = stateStopped
	t.mu.Unlock()

	if prev == stateIdle {
		t.detachAll()
		return nil
	}

	var errs []error
	select {
	case <-t.cron.Stop().Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for scheduled ping: %w", ctx.Err()))
	}

	t.opMu.Lock()
	if err := t.each(ctx, "stop", t.collectors(), collector.Collector.Stop); err != nil {
		errs = append(errs, err)
	}
	t.opMu.Unlock()

	t.detachAll()
	t.cancel()
	<-t.done
	log.Info().Str("task_id", t.id).Str("task", t.cfg.Name).Int64("emitted", t.emitted.Load()).Msg("task stopped")
	return errors.Join(errs...)
}

func (t *Task) scheduledPing() {
	ctx := context.Background()
	if t.cfg.FlushTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.FlushTimeoutSec)*time.Second)
		defer cancel()
	}
	switch err := t.Ping(ctx); {
	case err == nil, errors.Is(err, ErrTaskStopped):
	case errors.Is(err, ErrPingInFlight):
		log.Warn().Str("task_id", t.id).Msg("scheduled ping skipped, previous ping still running")
	default:
		log.Error().Str("task_id", t.id).Err(err).Msg("scheduled ping")
	}
}

// each posts call for every collector onto the loop and waits for all completions.
func (t *Task) each(ctx context.Context, op string, cs []collector.Collector,
	call func(collector.Collector, collector.Completion),
) error {
	results := make(chan error, len(cs))
	for _, c := range cs {
		t.loop.Defer(func() {
			call(c, func(err error) { results <- err })
		})
	}

	var errs []error
	for range cs {
		select {
		case err := <-results:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", op, err))
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return errors.Join(errs...)
}

func (t *Task) report(m *metric.Metric) {
	t.emitted.Add(1)
	t.reporter.Report(m)
}

func (t *Task) checkRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case stateIdle:
		return ErrTaskNotStarted
	case stateStopped:
		return ErrTaskStopped
	}
	return nil
}

func (t *Task) collectors() []collector.Collector {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]collector.Collector, 0, len(t.attachments))
	for _, a := range t.attachments {
		out = append(out, a.c)
	}
	return out
}

func (t *Task) detachAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.attachments {
		a.def.Detach(a.c.Handle())
	}
	t.attachments = nil
}
