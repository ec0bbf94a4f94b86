// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package eventq

import (
	"context"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrWaitAbandoned is returned by Completion.Wait when the waiter gave
	// up before the operation completed. The operation itself may still
	// succeed; its result is discarded.
	ErrWaitAbandoned = errors.New("stopped waiting for completion")
	// ErrEventInFlight is returned by Event.Close when the native
	// operation has not left the queue yet. Releasing it anyway would
	// corrupt queue state, so the event is reported and left pending.
	ErrEventInFlight = errors.New("event is still in queue")
	// ErrAlreadyRegistered is returned on a second RegisterCallback call.
	ErrAlreadyRegistered = errors.New("event callback already registered")
)

// Event wraps one native asynchronous operation handle. The protocol is:
// create, register the callback, issue the engine call with Handle(), await
// the Completion, close. Registration must happen strictly before the call is
// issued, otherwise the completion races with the registration.
type Event struct {
	q          *Queue
	handle     engine.Handle
	registered bool
	closed     bool
}

// CreateEvent allocates an event bound to this queue.
func (q *Queue) CreateEvent() (*Event, error) {
	h, err := q.eng.EventInit(q.handle)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Event{q: q, handle: h}, nil
}

// Handle returns the native event handle to pass to the engine call.
func (e *Event) Handle() engine.Handle {
	return e.handle
}

// Completion is the receiving half of a one-shot result handoff. The sending
// half is owned by the engine callback and consumed exactly once.
type Completion struct {
	ch        chan engine.Code
	abandoned atomic.Bool
}

// RegisterCallback arms the event with a one-shot continuation and returns
// its receiving half. Exactly one registration per event.
func (e *Event) RegisterCallback() (*Completion, error) {
	if e.registered {
		return nil, errors.WithStack(ErrAlreadyRegistered)
	}
	c := &Completion{ch: make(chan engine.Code, 1)}
	lg := e.q.lg
	cb := func(code engine.Code) {
		// Runs on the poller goroutine.
		if c.abandoned.Load() {
			// The waiter is gone. Not an error for the queue.
			lg.Warn("discarding completion, waiter is gone", zap.Int32("code", int32(code)))
			metrics.DiscardedCompletionCounter.Inc()
			return
		}
		select {
		case c.ch <- code:
		default:
			lg.Error("completion delivered twice, dropping the second one", zap.Int32("code", int32(code)))
		}
	}
	if err := e.q.eng.EventRegister(e.handle, cb); err != nil {
		return nil, errors.WithStack(err)
	}
	e.registered = true
	return c, nil
}

// Wait blocks until the completion code arrives or ctx is cancelled. On
// cancellation the completion is marked abandoned so a later delivery is
// logged and discarded instead of leaking.
func (c *Completion) Wait(ctx context.Context) (engine.Code, error) {
	select {
	case code := <-c.ch:
		return code, nil
	case <-ctx.Done():
		c.abandoned.Store(true)
		// The completion may have been delivered while we were being
		// cancelled; prefer it over the cancellation.
		select {
		case code := <-c.ch:
			return code, nil
		default:
		}
		return engine.CodeCanceled, errors.Wrap(ErrWaitAbandoned, ctx.Err())
	}
}

// Close releases the event. If the native operation is still enqueued the
// release is refused: finalizing an enqueued event corrupts queue state, so
// it is reported and left pending. Closing twice is a no-op.
func (e *Event) Close() error {
	if e.closed {
		return nil
	}
	done, err := e.q.eng.EventTest(e.handle)
	if err != nil {
		e.q.lg.Error("testing event status failed", zap.Error(err))
		return errors.WithStack(err)
	}
	if !done {
		e.q.lg.Error("event is still in queue, leaving it pending")
		return errors.WithStack(ErrEventInFlight)
	}
	if err := e.q.eng.EventFini(e.handle); err != nil {
		return errors.WithStack(err)
	}
	e.closed = true
	return nil
}
