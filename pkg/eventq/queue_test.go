// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package eventq

import (
	"context"
	"testing"
	"time"

	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/lib/util/logger"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *fakeEngine) {
	lg, _ := logger.CreateLoggerForTest(t)
	eng := newFakeEngine()
	q, err := NewQueue(lg, eng, config.EventQueue{
		PollInterval: 10 * time.Millisecond,
		PollBatch:    10,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, q.Close())
	})
	return q, eng
}

func TestAwaitSuccess(t *testing.T) {
	q, eng := newTestQueue(t)
	err := q.Await(context.Background(), func(evh engine.Handle) error {
		eng.start(evh)
		eng.finish(evh, engine.CodeSuccess)
		return nil
	})
	require.NoError(t, err)
	// The event was released back to the engine.
	require.Equal(t, 0, eng.eventCount())
}

func TestAwaitEngineError(t *testing.T) {
	q, eng := newTestQueue(t)
	err := q.Await(context.Background(), func(evh engine.Handle) error {
		eng.start(evh)
		eng.finish(evh, engine.CodeNoExist)
		return nil
	})
	require.ErrorIs(t, err, engine.ErrNoExist)
	require.Equal(t, 0, eng.eventCount())
}

func TestAwaitIssueFailure(t *testing.T) {
	q, eng := newTestQueue(t)
	issueErr := errors.New("refused")
	err := q.Await(context.Background(), func(evh engine.Handle) error {
		return issueErr
	})
	require.ErrorIs(t, err, issueErr)
	// Never issued, so the event could be released.
	require.Equal(t, 0, eng.eventCount())
}

func TestAwaitAbandoned(t *testing.T) {
	q, eng := newTestQueue(t)
	discardedBefore, err := metrics.ReadCounter(metrics.DiscardedCompletionCounter)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var evh engine.Handle
	done := make(chan error, 1)
	go func() {
		done <- q.Await(ctx, func(h engine.Handle) error {
			evh = h
			eng.start(h)
			return nil
		})
	}()

	cancel()
	err = <-done
	require.ErrorIs(t, err, ErrWaitAbandoned)
	require.ErrorIs(t, err, context.Canceled)
	// Still in flight, so the event stays with the engine.
	require.Equal(t, 1, eng.eventCount())

	// The late completion is reaped by the poller and discarded.
	eng.finish(evh, engine.CodeSuccess)
	require.Eventually(t, func() bool {
		discarded, err := metrics.ReadCounter(metrics.DiscardedCompletionCounter)
		require.NoError(t, err)
		return discarded > discardedBefore
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCompletionBeforeWait(t *testing.T) {
	q, eng := newTestQueue(t)
	ev, err := q.CreateEvent()
	require.NoError(t, err)
	comp, err := ev.RegisterCallback()
	require.NoError(t, err)

	eng.start(ev.Handle())
	eng.finish(ev.Handle(), engine.CodeExist)
	// The poller reaps the completion with nobody waiting yet; it is held
	// for the late waiter.
	require.Eventually(t, func() bool {
		done, err := eng.EventTest(ev.Handle())
		require.NoError(t, err)
		return done
	}, 3*time.Second, 10*time.Millisecond)

	code, err := comp.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.CodeExist, code)
	require.NoError(t, ev.Close())
}

func TestRegisterCallbackTwice(t *testing.T) {
	q, _ := newTestQueue(t)
	ev, err := q.CreateEvent()
	require.NoError(t, err)
	_, err = ev.RegisterCallback()
	require.NoError(t, err)
	_, err = ev.RegisterCallback()
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.NoError(t, ev.Close())
}

func TestEventCloseInFlight(t *testing.T) {
	q, eng := newTestQueue(t)
	ev, err := q.CreateEvent()
	require.NoError(t, err)
	_, err = ev.RegisterCallback()
	require.NoError(t, err)

	eng.start(ev.Handle())
	require.ErrorIs(t, ev.Close(), ErrEventInFlight)

	eng.finish(ev.Handle(), engine.CodeSuccess)
	require.Eventually(t, func() bool {
		return ev.Close() == nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCloseIdempotent(t *testing.T) {
	q, eng := newTestQueue(t)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	require.Equal(t, 1, eng.destroyCount())
}
