// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package oid

import (
	"sync"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"github.com/quarrystore/quarry-go/pkg/object"
	"github.com/quarrystore/quarry-go/pkg/store"
	"github.com/quarrystore/quarry-go/pkg/txn"
	"github.com/quarrystore/quarry-go/pkg/util/monotime"
	"go.uber.org/zap"
)

var _ object.IDSource = (*Allocator)(nil)

// Allocator is the blocking variant. Its native calls block the calling
// goroutine directly, without the completion queue; use AsyncAllocator where
// blocking is unacceptable.
//
// The range lock is held only across in-memory steps, never across the batch
// claim I/O, so a slow-path refill does not stall concurrent fast-path
// allocations that still find the old range usable.
type Allocator struct {
	lg   *zap.Logger
	cont *store.Container
	meta *object.Object

	mu    sync.Mutex
	start uint128
	end   uint128
}

// NewAllocator opens the allocator metadata object, anchored on the
// container's first root.
func NewAllocator(lg *zap.Logger, cont *store.Container) (*Allocator, error) {
	info, err := cont.Info()
	if err != nil {
		return nil, err
	}
	meta, err := object.Open(cont, info.Roots[0], false)
	if err != nil {
		return nil, err
	}
	return &Allocator{lg: lg, cont: cont, meta: meta}, nil
}

// Allocate returns the next unique identifier, refilling the in-memory range
// from the persisted cursor when it is exhausted.
func (a *Allocator) Allocate() (engine.ObjectID, error) {
	a.mu.Lock()
	if !a.start.less(a.end) {
		a.mu.Unlock()
		rng, err := a.claimBatch()
		if err != nil {
			metrics.AllocCounter.WithLabelValues(metrics.LblError).Inc()
			return engine.ObjectID{}, err
		}
		a.mu.Lock()
		a.start, a.end = rng.start, rng.end
	}
	defer a.mu.Unlock()
	return a.take()
}

// take hands out one identifier from the range. Caller holds the lock.
func (a *Allocator) take() (engine.ObjectID, error) {
	if a.start.exhausted() {
		metrics.AllocCounter.WithLabelValues(metrics.LblError).Inc()
		return engine.ObjectID{}, errors.WithStack(ErrExhausted)
	}
	id := engine.ObjectID{Hi: a.start.hi, Lo: a.start.lo}
	a.start = a.start.add(1)
	metrics.AllocCounter.WithLabelValues(metrics.LblOK).Inc()
	return id, nil
}

// claimBatch advances the persisted cursor by BatchSize inside a transaction
// and returns the claimed range. Runs without the range lock.
//
// The cursor cannot be fetched-or-created atomically: conditional insert
// demands absence, conditional update demands presence. The claim assumes
// presence, falls back to a bootstrap insert, and on a lost bootstrap race
// refetches once on a fresh transaction; the cursor is guaranteed to exist by
// then. A commit conflict is surfaced to the caller, not retried: batches are
// big enough that cursor contention is rare.
func (a *Allocator) claimBatch() (oidRange, error) {
	begin := monotime.Now()
	t, err := txn.Open(a.cont)
	if err != nil {
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}

	raw, err := a.meta.Fetch(t, engine.CondFetch, cursorDKey, cursorAKey, cursorFetchSize)
	if err != nil {
		if !errors.Is(err, engine.ErrNoExist) {
			a.discard(t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
		// First-ever allocation on this container: try to create the
		// cursor, auto-committed outside the transaction.
		initial := uint128{lo: CursorStart}.add(BatchSize)
		ierr := a.meta.Update(txn.None(), engine.CondInsert, cursorDKey, cursorAKey, encodeCursor(initial))
		if ierr == nil {
			// Bootstrap won: the first batch is ours by construction.
			a.discard(t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblOK).Inc()
			metrics.BatchClaimDurationHistogram.Observe(monotime.Since(begin).Seconds())
			return oidRange{start: uint128{lo: CursorStart}, end: initial}, nil
		}
		if !errors.Is(ierr, engine.ErrExist) {
			a.discard(t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, ierr
		}
		// Another instance bootstrapped first. The cursor exists now,
		// so refetch on a fresh transaction. This is the only retry in
		// the protocol.
		a.lg.Debug("lost cursor bootstrap race, refetching")
		metrics.BootstrapRaceCounter.Inc()
		a.discard(t)
		if t, err = txn.Open(a.cont); err != nil {
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
		if raw, err = a.meta.Fetch(t, engine.CondFetch, cursorDKey, cursorAKey, cursorFetchSize); err != nil {
			a.discard(t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
	}

	cursor, err := decodeCursor(raw)
	if err != nil {
		a.discard(t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	next := cursor.add(BatchSize)
	if err := a.meta.Update(t, engine.CondUpdate, cursorDKey, cursorAKey, encodeCursor(next)); err != nil {
		a.discard(t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	if err := t.Commit(); err != nil {
		a.discard(t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	if err := t.Close(); err != nil {
		a.lg.Warn("closing committed claim transaction failed", zap.Error(err))
	}
	metrics.BatchClaimCounter.WithLabelValues(metrics.LblOK).Inc()
	metrics.BatchClaimDurationHistogram.Observe(monotime.Since(begin).Seconds())
	return oidRange{start: cursor, end: next}, nil
}

// discard aborts and closes a transaction that will not commit. Leaking an
// open transaction handle is a bug, so every failed claim path ends here.
func (a *Allocator) discard(t *txn.Txn) {
	if err := t.Abort(); err != nil {
		a.lg.Warn("aborting claim transaction failed", zap.Error(err))
	}
	if err := t.Close(); err != nil {
		a.lg.Warn("closing claim transaction failed", zap.Error(err))
	}
}

// Close releases the metadata object. The allocator must not be used after.
func (a *Allocator) Close() error {
	return a.meta.Close()
}
