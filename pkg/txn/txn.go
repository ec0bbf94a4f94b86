// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package txn wraps the engine's transaction primitive. The plain methods
// block the calling goroutine on the native call; the Context variants issue
// the call with a completion event and suspend on the container's queue
// instead.
package txn

import (
	"context"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"github.com/quarrystore/quarry-go/pkg/store"
)

// Txn is an open transaction. The zero-handle Txn returned by None selects
// auto-commit: single operations carrying it commit on their own.
type Txn struct {
	cont   *store.Container
	handle engine.Handle
}

// None returns the no-transaction marker.
func None() *Txn {
	return &Txn{}
}

// Handle returns the native transaction handle, zero for None.
func (t *Txn) Handle() engine.Handle {
	return t.handle
}

func (t *Txn) IsNone() bool {
	return t.handle.IsNil()
}

func result(err error) string {
	if err != nil {
		return metrics.LblError
	}
	return metrics.LblOK
}

// Open starts a transaction against the container.
func Open(cont *store.Container) (*Txn, error) {
	var req engine.TxOpenRequest
	err := cont.Engine().TxOpen(cont.Handle(), &req, engine.NilHandle)
	metrics.TxnCounter.WithLabelValues(metrics.LblBegin, result(err)).Inc()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Txn{cont: cont, handle: req.Tx}, nil
}

// OpenContext starts a transaction through the container's completion queue.
func OpenContext(ctx context.Context, cont *store.Container) (*Txn, error) {
	var req engine.TxOpenRequest
	err := cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return cont.Engine().TxOpen(cont.Handle(), &req, evh)
	})
	metrics.TxnCounter.WithLabelValues(metrics.LblBegin, result(err)).Inc()
	if err != nil {
		return nil, err
	}
	return &Txn{cont: cont, handle: req.Tx}, nil
}

func (t *Txn) Commit() error {
	if t.IsNone() {
		return errors.WithStack(engine.ErrInvalid)
	}
	err := t.cont.Engine().TxCommit(t.handle, engine.NilHandle)
	metrics.TxnCounter.WithLabelValues(metrics.LblCommit, result(err)).Inc()
	return errors.WithStack(err)
}

func (t *Txn) CommitContext(ctx context.Context) error {
	if t.IsNone() {
		return errors.WithStack(engine.ErrInvalid)
	}
	err := t.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return t.cont.Engine().TxCommit(t.handle, evh)
	})
	metrics.TxnCounter.WithLabelValues(metrics.LblCommit, result(err)).Inc()
	return err
}

func (t *Txn) Abort() error {
	if t.IsNone() {
		return errors.WithStack(engine.ErrInvalid)
	}
	err := t.cont.Engine().TxAbort(t.handle, engine.NilHandle)
	metrics.TxnCounter.WithLabelValues(metrics.LblAbort, result(err)).Inc()
	return errors.WithStack(err)
}

func (t *Txn) AbortContext(ctx context.Context) error {
	if t.IsNone() {
		return errors.WithStack(engine.ErrInvalid)
	}
	err := t.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return t.cont.Engine().TxAbort(t.handle, evh)
	})
	metrics.TxnCounter.WithLabelValues(metrics.LblAbort, result(err)).Inc()
	return err
}

// Close releases the transaction handle. An open transaction that was never
// committed is discarded.
func (t *Txn) Close() error {
	if t.IsNone() {
		return nil
	}
	err := t.cont.Engine().TxClose(t.handle, engine.NilHandle)
	t.handle = engine.NilHandle
	return errors.WithStack(err)
}

func (t *Txn) CloseContext(ctx context.Context) error {
	if t.IsNone() {
		return nil
	}
	err := t.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return t.cont.Engine().TxClose(t.handle, evh)
	})
	t.handle = engine.NilHandle
	return err
}
