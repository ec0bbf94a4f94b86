// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package boltengine

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.uber.org/zap"
)

// event is one native asynchronous operation record. busy is true from the
// moment an operation is issued with it until a poll (or a queue teardown)
// reaps its completion.
type event struct {
	cookie uint64
	eq     *eventQueue
	cb     engine.CompletionCallback
	busy   bool
	code   engine.Code
}

// eventQueue collects finished operations until a poller reaps them.
type eventQueue struct {
	cookie uint64

	mu        sync.Mutex
	ready     *queue.Queue // of *event
	destroyed bool
	// wake nudges a blocked poller when a completion arrives.
	wake chan struct{}
}

func (e *Engine) EqCreate() (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return engine.NilHandle, errors.WithStack(engine.ErrInvalid)
	}
	h := e.handle()
	e.queues[h] = &eventQueue{
		cookie: h,
		ready:  queue.New(),
		wake:   make(chan struct{}, 1),
	}
	return engine.Handle{Cookie: h}, nil
}

// EqDestroy tears the queue down. Completions that already arrived but were
// never polled are discarded with a log line; events whose operations are
// still running are orphaned and their completions discarded on delivery.
func (e *Engine) EqDestroy(eqh engine.Handle) error {
	e.mu.Lock()
	q, ok := e.queues[eqh.Cookie]
	if !ok {
		e.mu.Unlock()
		return errors.WithStack(engine.ErrNoHandle)
	}
	delete(e.queues, eqh.Cookie)
	e.mu.Unlock()

	q.mu.Lock()
	q.destroyed = true
	n := q.ready.Length()
	for i := 0; i < n; i++ {
		ev := q.ready.Remove().(*event)
		ev.busy = false
	}
	q.mu.Unlock()
	if n > 0 {
		e.lg.Warn("destroying completion queue with unreaped completions", zap.Int("discarded", n))
	}
	return nil
}

// EqPoll blocks up to timeout for completions, reaps up to maxEvents of them
// and invokes their callbacks on the calling goroutine.
func (e *Engine) EqPoll(eqh engine.Handle, timeout time.Duration, maxEvents int) (int, error) {
	if maxEvents <= 0 {
		return 0, errors.WithStack(engine.ErrInvalid)
	}
	e.mu.Lock()
	q, ok := e.queues[eqh.Cookie]
	e.mu.Unlock()
	if !ok {
		return 0, errors.WithStack(engine.ErrNoHandle)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if q.destroyed {
			q.mu.Unlock()
			return 0, errors.WithStack(engine.ErrNoHandle)
		}
		reaped := make([]*event, 0, maxEvents)
		for len(reaped) < maxEvents && q.ready.Length() > 0 {
			ev := q.ready.Remove().(*event)
			// Reaping releases the event before its callback runs, so a
			// waiter woken by the callback can finalize it right away.
			ev.busy = false
			reaped = append(reaped, ev)
		}
		q.mu.Unlock()

		if len(reaped) > 0 {
			for _, ev := range reaped {
				if ev.cb == nil {
					// Protocol violation: the caller issued an
					// operation without arming the event first.
					e.lg.Error("completion fired with no registered callback",
						zap.Uint64("event", ev.cookie), zap.Int32("code", int32(ev.code)))
				} else {
					ev.cb(ev.code)
				}
			}
			return len(reaped), nil
		}

		select {
		case <-q.wake:
		case <-deadline.C:
			return 0, nil
		}
	}
}

func (e *Engine) EventInit(eqh engine.Handle) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[eqh.Cookie]
	if !ok {
		return engine.NilHandle, errors.WithStack(engine.ErrNoHandle)
	}
	h := e.handle()
	e.events[h] = &event{cookie: h, eq: q}
	return engine.Handle{Cookie: h}, nil
}

func (e *Engine) EventRegister(evh engine.Handle, cb engine.CompletionCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[evh.Cookie]
	if !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	if ev.cb != nil {
		return errors.WithStack(engine.ErrInvalid)
	}
	ev.cb = cb
	return nil
}

// EventTest reports whether the event has left the queue. It never blocks.
func (e *Engine) EventTest(evh engine.Handle) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[evh.Cookie]
	if !ok {
		return false, errors.WithStack(engine.ErrNoHandle)
	}
	ev.eq.mu.Lock()
	busy := ev.busy
	ev.eq.mu.Unlock()
	return !busy, nil
}

// EventFini releases the event. An event still bound to an in-flight
// operation cannot be released; that fails with CodeBusy.
func (e *Engine) EventFini(evh engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.events[evh.Cookie]
	if !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	ev.eq.mu.Lock()
	busy := ev.busy
	ev.eq.mu.Unlock()
	if busy {
		return errors.WithStack(engine.ErrBusy)
	}
	delete(e.events, evh.Cookie)
	return nil
}

// submit runs op synchronously when evh is nil, otherwise issues it on the
// worker pool and delivers its completion code into the owning queue.
func (e *Engine) submit(evh engine.Handle, op func() engine.Code) error {
	if evh.IsNil() {
		return errors.WithStack(engine.CodeToError(op()))
	}
	e.mu.Lock()
	ev, ok := e.events[evh.Cookie]
	e.mu.Unlock()
	if !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	ev.eq.mu.Lock()
	if ev.busy {
		ev.eq.mu.Unlock()
		return errors.WithStack(engine.ErrBusy)
	}
	ev.busy = true
	ev.eq.mu.Unlock()

	e.wgp.RunWithRecover(func() {
		e.deliver(ev, op())
	}, nil, e.lg)
	return nil
}

// deliver parks the finished event in its queue's ready FIFO, or discards the
// completion when the queue is already gone.
func (e *Engine) deliver(ev *event, code engine.Code) {
	q := ev.eq
	q.mu.Lock()
	if q.destroyed {
		ev.busy = false
		q.mu.Unlock()
		e.lg.Warn("discarding completion, queue is destroyed",
			zap.Uint64("event", ev.cookie), zap.Int32("code", int32(code)))
		metrics.DiscardedCompletionCounter.Inc()
		return
	}
	ev.code = code
	q.ready.Add(ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
