// Package loop provides the scheduling primitive behind deferred completion.
//
// A lifecycle call that completes "on a later turn" applies what it must apply immediately and
// hands the rest to a Deferrer. A Loop runs deferred functions strictly in FIFO order, one turn
// at a time, either driven explicitly (Tick, Drain) or by a goroutine (Run).
package loop

import (
	"context"
	"fmt"
	"sync"

	"github.com/linchenxuan/incidental/log"
)

// Deferrer schedules fn to run on a later turn than the current call.
type Deferrer interface {
	Defer(fn func())
}

// DeferFunc adapts a function to Deferrer.
type DeferFunc func(fn func())

// Defer calls f(fn).
func (f DeferFunc) Defer(fn func()) { f(fn) }

// Async runs each deferred function on its own goroutine.
var Async Deferrer = DeferFunc(func(fn func()) {
	go safeCall(fn)
})

// Loop is a FIFO queue of deferred functions. The zero value is not usable, use New.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Defer appends fn to the queue. It never runs fn inline.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Tick runs one turn: the functions queued before the call. Functions they defer run on the
// next turn. It returns the number of functions run.
func (l *Loop) Tick() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		safeCall(fn)
	}
	return len(batch)
}

// Drain runs turns until the queue is empty and returns the number of functions run.
func (l *Loop) Drain() int {
	total := 0
	for {
		n := l.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Run processes turns as functions are deferred until ctx is done.
// Work still queued at that point is drained before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	log.Debug().Msg("loop started")
	defer log.Debug().Msg("loop stopped")

	for {
		select {
		case <-l.notify:
			l.Drain()
		case <-ctx.Done():
			l.Drain()
			return ctx.Err()
		}
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("deferred function panicked")
		}
	}()
	fn()
}
