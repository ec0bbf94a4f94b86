// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package oid

import (
	"context"
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

// AsyncAllocator runs the same claim protocol as Allocator, but every engine
// call is paired with a completion event and awaited on the container's
// queue, so no goroutine blocks in a native call. Cancelling the context
// abandons the wait; an in-flight claim may still commit, and the claimed
// batch is then left as a gap.
type AsyncAllocator struct {
	lg   *zap.Logger
	cont *store.Container
	meta *object.Object

	mu    sync.Mutex
	start uint128
	end   uint128
}

// NewAsyncAllocator opens the allocator metadata object, anchored on the
// container's first root.
func NewAsyncAllocator(ctx context.Context, lg *zap.Logger, cont *store.Container) (*AsyncAllocator, error) {
	info, err := cont.InfoContext(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := object.Open(cont, info.Roots[0], false)
	if err != nil {
		return nil, err
	}
	return &AsyncAllocator{lg: lg, cont: cont, meta: meta}, nil
}

// Allocate returns the next unique identifier, refilling the in-memory range
// from the persisted cursor when it is exhausted.
func (a *AsyncAllocator) Allocate(ctx context.Context) (engine.ObjectID, error) {
	a.mu.Lock()
	if !a.start.less(a.end) {
		a.mu.Unlock()
		rng, err := a.claimBatch(ctx)
		if err != nil {
			metrics.AllocCounter.WithLabelValues(metrics.LblError).Inc()
			return engine.ObjectID{}, err
		}
		a.mu.Lock()
		a.start, a.end = rng.start, rng.end
	}
	defer a.mu.Unlock()
	if a.start.exhausted() {
		metrics.AllocCounter.WithLabelValues(metrics.LblError).Inc()
		return engine.ObjectID{}, errors.WithStack(ErrExhausted)
	}
	id := engine.ObjectID{Hi: a.start.hi, Lo: a.start.lo}
	a.start = a.start.add(1)
	metrics.AllocCounter.WithLabelValues(metrics.LblOK).Inc()
	return id, nil
}

// claimBatch mirrors Allocator.claimBatch with awaited completions; see
// there for the protocol.
func (a *AsyncAllocator) claimBatch(ctx context.Context) (oidRange, error) {
	begin := monotime.Now()
	t, err := txn.OpenContext(ctx, a.cont)
	if err != nil {
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}

	raw, err := a.meta.FetchContext(ctx, t, engine.CondFetch, cursorDKey, cursorAKey, cursorFetchSize)
	if err != nil {
		if !errors.Is(err, engine.ErrNoExist) {
			a.discard(ctx, t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
		initial := uint128{lo: CursorStart}.add(BatchSize)
		ierr := a.meta.UpdateContext(ctx, txn.None(), engine.CondInsert, cursorDKey, cursorAKey, encodeCursor(initial))
		if ierr == nil {
			a.discard(ctx, t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblOK).Inc()
			metrics.BatchClaimDurationHistogram.Observe(monotime.Since(begin).Seconds())
			return oidRange{start: uint128{lo: CursorStart}, end: initial}, nil
		}
		if !errors.Is(ierr, engine.ErrExist) {
			a.discard(ctx, t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, ierr
		}
		a.lg.Debug("lost cursor bootstrap race, refetching")
		metrics.BootstrapRaceCounter.Inc()
		a.discard(ctx, t)
		if t, err = txn.OpenContext(ctx, a.cont); err != nil {
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
		if raw, err = a.meta.FetchContext(ctx, t, engine.CondFetch, cursorDKey, cursorAKey, cursorFetchSize); err != nil {
			a.discard(ctx, t)
			metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
			return oidRange{}, err
		}
	}

	cursor, err := decodeCursor(raw)
	if err != nil {
		a.discard(ctx, t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	next := cursor.add(BatchSize)
	if err := a.meta.UpdateContext(ctx, t, engine.CondUpdate, cursorDKey, cursorAKey, encodeCursor(next)); err != nil {
		a.discard(ctx, t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	if err := t.CommitContext(ctx); err != nil {
		a.discard(ctx, t)
		metrics.BatchClaimCounter.WithLabelValues(metrics.LblError).Inc()
		return oidRange{}, err
	}
	if err := t.CloseContext(ctx); err != nil {
		a.lg.Warn("closing committed claim transaction failed", zap.Error(err))
	}
	metrics.BatchClaimCounter.WithLabelValues(metrics.LblOK).Inc()
	metrics.BatchClaimDurationHistogram.Observe(monotime.Since(begin).Seconds())
	return oidRange{start: cursor, end: next}, nil
}

// discard aborts and closes a transaction that will not commit. The abort
// runs even when ctx is already cancelled: it falls back to the blocking
// calls so the handle is never leaked.
func (a *AsyncAllocator) discard(ctx context.Context, t *txn.Txn) {
	aerr := t.AbortContext(ctx)
	if aerr != nil && ctx.Err() != nil {
		aerr = t.Abort()
	}
	if aerr != nil {
		a.lg.Warn("aborting claim transaction failed", zap.Error(aerr))
	}
	cerr := t.CloseContext(ctx)
	if cerr != nil && ctx.Err() != nil {
		cerr = t.Close()
	}
	if cerr != nil {
		a.lg.Warn("closing claim transaction failed", zap.Error(cerr))
	}
}

// Close releases the metadata object. The allocator must not be used after.
func (a *AsyncAllocator) Close() error {
	return a.meta.Close()
}
