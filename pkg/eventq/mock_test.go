// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package eventq

import (
	"sync"
	"time"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
)

type fakeEvent struct {
	cookie uint64
	cb     engine.CompletionCallback
	busy   bool
	code   engine.Code
}

// fakeEngine implements just enough of the queue and event surface for the
// bridge. Tests drive completions by hand: start marks an event in flight,
// finish parks its completion for the next poll.
type fakeEngine struct {
	engine.Engine

	mu        sync.Mutex
	next      uint64
	destroyed bool
	destroys  int
	events    map[uint64]*fakeEvent
	ready     []*fakeEvent
	wake      chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		next:   1,
		events: make(map[uint64]*fakeEvent),
		wake:   make(chan struct{}, 1),
	}
}

func (f *fakeEngine) EqCreate() (engine.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next
	f.next++
	return engine.Handle{Cookie: h}, nil
}

func (f *fakeEngine) EqDestroy(eqh engine.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	f.destroys++
	f.ready = nil
	return nil
}

func (f *fakeEngine) EqPoll(eqh engine.Handle, timeout time.Duration, maxEvents int) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		f.mu.Lock()
		if f.destroyed {
			f.mu.Unlock()
			return 0, errors.WithStack(engine.ErrNoHandle)
		}
		n := maxEvents
		if n > len(f.ready) {
			n = len(f.ready)
		}
		reaped := f.ready[:n]
		f.ready = f.ready[n:]
		for _, ev := range reaped {
			ev.busy = false
		}
		f.mu.Unlock()

		if len(reaped) > 0 {
			for _, ev := range reaped {
				ev.cb(ev.code)
			}
			return len(reaped), nil
		}

		select {
		case <-f.wake:
		case <-deadline.C:
			return 0, nil
		}
	}
}

func (f *fakeEngine) EventInit(eqh engine.Handle) (engine.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next
	f.next++
	f.events[h] = &fakeEvent{cookie: h}
	return engine.Handle{Cookie: h}, nil
}

func (f *fakeEngine) EventRegister(evh engine.Handle, cb engine.CompletionCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[evh.Cookie]
	if !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	if ev.cb != nil {
		return errors.WithStack(engine.ErrInvalid)
	}
	ev.cb = cb
	return nil
}

func (f *fakeEngine) EventTest(evh engine.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[evh.Cookie]
	if !ok {
		return false, errors.WithStack(engine.ErrNoHandle)
	}
	return !ev.busy, nil
}

func (f *fakeEngine) EventFini(evh engine.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[evh.Cookie]
	if !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	if ev.busy {
		return errors.WithStack(engine.ErrBusy)
	}
	delete(f.events, evh.Cookie)
	return nil
}

// start marks the event's operation as issued.
func (f *fakeEngine) start(evh engine.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[evh.Cookie].busy = true
}

// finish completes the operation; the next poll reaps it.
func (f *fakeEngine) finish(evh engine.Handle, code engine.Code) {
	f.mu.Lock()
	ev := f.events[evh.Cookie]
	ev.code = code
	f.ready = append(f.ready, ev)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *fakeEngine) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEngine) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroys
}
