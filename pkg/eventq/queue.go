// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package eventq bridges the engine's poll-based completion queue to
// single-await completions. Each Queue owns one native completion queue and
// one dedicated poller goroutine that drains it continuously, so completions
// are reaped even while no caller is waiting.
package eventq

import (
	"context"

	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/lib/util/waitgroup"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Queue struct {
	lg     *zap.Logger
	eng    engine.Engine
	handle engine.Handle
	cfg    config.EventQueue

	shutdown chan struct{}
	wg       waitgroup.WaitGroup
	closed   atomic.Bool
}

// NewQueue creates the native completion queue and starts its poller.
func NewQueue(lg *zap.Logger, eng engine.Engine, cfg config.EventQueue) (*Queue, error) {
	eqh, err := eng.EqCreate()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	q := &Queue{
		lg:       lg,
		eng:      eng,
		handle:   eqh,
		cfg:      cfg,
		shutdown: make(chan struct{}),
	}
	metrics.EventQueueGauge.Inc()
	q.wg.RunWithRecover(q.poll, nil, lg)
	return q, nil
}

// poll drains the native queue until shutdown. The poll timeout doubles as
// the shutdown check interval, so it must stay short (see config bounds).
func (q *Queue) poll() {
	for {
		select {
		case <-q.shutdown:
			return
		default:
		}
		n, err := q.eng.EqPoll(q.handle, q.cfg.PollInterval, q.cfg.PollBatch)
		if err != nil {
			// Transient. The queue stays usable, keep polling.
			q.lg.Error("polling completion queue failed", zap.Error(err))
			metrics.QueuePollErrCounter.Inc()
			continue
		}
		metrics.QueuePollCounter.Inc()
		if n > 0 {
			metrics.CompletionCounter.Add(float64(n))
		}
	}
}

// Handle returns the native queue handle.
func (q *Queue) Handle() engine.Handle {
	return q.handle
}

// Close stops the poller and destroys the native queue. Completions still in
// flight at destroy time are discarded by the engine. Closing twice is a
// no-op.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.shutdown)
	q.wg.Wait()
	metrics.EventQueueGauge.Dec()
	return errors.WithStack(q.eng.EqDestroy(q.handle))
}

// Await issues one asynchronous engine call and suspends until its completion
// is reaped. issue must start the operation with the handed event handle and
// return without blocking. A nonzero completion code comes back as an
// engine.Error; abandoning the wait (ctx cancelled) comes back as
// ErrWaitAbandoned instead, so callers can tell "the operation failed" from
// "we stopped waiting".
func (q *Queue) Await(ctx context.Context, issue func(evh engine.Handle) error) error {
	ev, err := q.CreateEvent()
	if err != nil {
		return err
	}
	comp, err := ev.RegisterCallback()
	if err != nil {
		_ = ev.Close()
		return err
	}
	if err := issue(ev.Handle()); err != nil {
		_ = ev.Close()
		return err
	}
	code, werr := comp.Wait(ctx)
	if werr != nil {
		// The operation may still be enqueued; Close refuses to release
		// it in that case and the event is left to the engine.
		_ = ev.Close()
		return werr
	}
	if err := ev.Close(); err != nil {
		return err
	}
	return errors.WithStack(engine.CodeToError(code))
}
