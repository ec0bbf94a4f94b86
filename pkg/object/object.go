// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package object exposes per-object I/O: conditional single-value KV,
// dkey punch, resumable key enumeration and byte-extent access. Every
// operation comes in a blocking form and a Context form routed through the
// container's completion queue.
package object

import (
	"context"
	"sync"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/store"
	"github.com/quarrystore/quarry-go/pkg/txn"
)

// ErrClosed is returned when an operation is issued on a closed object.
var ErrClosed = errors.New("object handle is closed")

// IDSource hands out unique object identifiers. Implemented by the oid
// allocators.
type IDSource interface {
	Allocate() (engine.ObjectID, error)
}

// Object is an open object handle.
type Object struct {
	cont *store.Container
	id   engine.ObjectID

	mu     sync.Mutex
	handle engine.Handle
	closed bool
}

// Open opens an existing object by identifier.
func Open(cont *store.Container, id engine.ObjectID, readOnly bool) (*Object, error) {
	h, err := cont.Engine().ObjOpen(cont.Handle(), id, readOnly)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Object{cont: cont, id: id, handle: h}, nil
}

// Create allocates a fresh identifier from src, stamps the engine's format
// bits into it and opens the object read-write.
func Create(cont *store.Container, src IDSource, class engine.ObjectClass) (*Object, error) {
	raw, err := src.Allocate()
	if err != nil {
		return nil, err
	}
	id, err := cont.Engine().GenerateOID(cont.Handle(), raw, class)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Open(cont, id, false)
}

func (o *Object) ID() engine.ObjectID {
	return o.id
}

func (o *Object) checkOpen() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.WithStack(ErrClosed)
	}
	return nil
}

// Close releases the handle. Closing twice is a no-op.
func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return errors.WithStack(o.cont.Engine().ObjClose(o.handle))
}

// Fetch reads the single value under dkey/akey. With engine.CondFetch the
// fetch fails with engine.ErrNoExist when the key is absent. maxSize bounds
// the accepted value size; a larger stored value fails with
// engine.ErrTruncated.
func (o *Object) Fetch(t *txn.Txn, flags engine.CondFlag, dkey, akey []byte, maxSize int) ([]byte, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	req := o.fetchReq(t, flags, dkey, akey, maxSize)
	if err := o.cont.Engine().ObjFetch(o.handle, req, engine.NilHandle); err != nil {
		return nil, errors.WithStack(err)
	}
	return req.Data, nil
}

func (o *Object) FetchContext(ctx context.Context, t *txn.Txn, flags engine.CondFlag, dkey, akey []byte, maxSize int) ([]byte, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	req := o.fetchReq(t, flags, dkey, akey, maxSize)
	err := o.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return o.cont.Engine().ObjFetch(o.handle, req, evh)
	})
	if err != nil {
		return nil, err
	}
	return req.Data, nil
}

func (o *Object) fetchReq(t *txn.Txn, flags engine.CondFlag, dkey, akey []byte, maxSize int) *engine.FetchRequest {
	return &engine.FetchRequest{
		Tx:      t.Handle(),
		Flags:   flags,
		DKey:    dkey,
		AKey:    akey,
		MaxSize: maxSize,
	}
}

// Update writes the single value under dkey/akey. engine.CondInsert demands
// absence, engine.CondUpdate demands presence; both are enforced by the
// engine, atomically with the write.
func (o *Object) Update(t *txn.Txn, flags engine.CondFlag, dkey, akey, data []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.UpdateRequest{Tx: t.Handle(), Flags: flags, DKey: dkey, AKey: akey, Data: data}
	return errors.WithStack(o.cont.Engine().ObjUpdate(o.handle, req, engine.NilHandle))
}

func (o *Object) UpdateContext(ctx context.Context, t *txn.Txn, flags engine.CondFlag, dkey, akey, data []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.UpdateRequest{Tx: t.Handle(), Flags: flags, DKey: dkey, AKey: akey, Data: data}
	return o.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return o.cont.Engine().ObjUpdate(o.handle, req, evh)
	})
}

// Punch removes the dkey and every akey under it.
func (o *Object) Punch(t *txn.Txn, dkey []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.PunchRequest{Tx: t.Handle(), DKey: dkey}
	return errors.WithStack(o.cont.Engine().ObjPunch(o.handle, req, engine.NilHandle))
}

func (o *Object) PunchContext(ctx context.Context, t *txn.Txn, dkey []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.PunchRequest{Tx: t.Handle(), DKey: dkey}
	return o.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return o.cont.Engine().ObjPunch(o.handle, req, evh)
	})
}

// ReadAt reads a byte extent at off from the array value under dkey/akey.
// It returns the number of bytes read; reading past the end returns zero.
func (o *Object) ReadAt(dkey, akey []byte, off uint64, buf []byte) (int, error) {
	if err := o.checkOpen(); err != nil {
		return 0, err
	}
	req := &engine.ReadRequest{DKey: dkey, AKey: akey, Offset: off, Buf: buf}
	if err := o.cont.Engine().ObjReadAt(o.handle, req, engine.NilHandle); err != nil {
		return 0, errors.WithStack(err)
	}
	return req.Size, nil
}

func (o *Object) ReadAtContext(ctx context.Context, dkey, akey []byte, off uint64, buf []byte) (int, error) {
	if err := o.checkOpen(); err != nil {
		return 0, err
	}
	req := &engine.ReadRequest{DKey: dkey, AKey: akey, Offset: off, Buf: buf}
	err := o.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return o.cont.Engine().ObjReadAt(o.handle, req, evh)
	})
	if err != nil {
		return 0, err
	}
	return req.Size, nil
}

// WriteAt writes a byte extent at off into the array value under dkey/akey,
// zero-extending the value as needed.
func (o *Object) WriteAt(dkey, akey []byte, off uint64, data []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.WriteRequest{DKey: dkey, AKey: akey, Offset: off, Data: data}
	return errors.WithStack(o.cont.Engine().ObjWriteAt(o.handle, req, engine.NilHandle))
}

func (o *Object) WriteAtContext(ctx context.Context, dkey, akey []byte, off uint64, data []byte) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	req := &engine.WriteRequest{DKey: dkey, AKey: akey, Offset: off, Data: data}
	return o.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return o.cont.Engine().ObjWriteAt(o.handle, req, evh)
	})
}
