// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the contract between the client SDK and the native
// storage engine: opaque resource handles, errno-style completion codes, and
// the operation set the SDK is built on. The engine guarantees per-key
// linearizability under the conditional write flags; everything above it
// (batched ID allocation, the completion bridge) builds on that guarantee.
package engine

import "time"

// CompletionCallback receives the result code of an asynchronous operation.
// The engine invokes it exactly once, on the goroutine that polls the owning
// completion queue.
type CompletionCallback func(Code)

// TxOpenRequest carries the out-parameter of TxOpen.
type TxOpenRequest struct {
	// Tx is filled with the opened transaction handle once the operation
	// completes.
	Tx Handle
}

// ContQueryRequest carries the out-parameter of ContQuery.
type ContQueryRequest struct {
	Info ContInfo
}

// FetchRequest describes a single-value fetch of dkey/akey.
type FetchRequest struct {
	Tx      Handle
	Flags   CondFlag
	DKey    []byte
	AKey    []byte
	MaxSize int
	// Data holds the fetched value once the operation completes.
	Data []byte
}

// UpdateRequest describes a single-value write of dkey/akey.
type UpdateRequest struct {
	Tx    Handle
	Flags CondFlag
	DKey  []byte
	AKey  []byte
	Data  []byte
}

// PunchRequest removes a dkey and every akey under it.
type PunchRequest struct {
	Tx    Handle
	Flags CondFlag
	DKey  []byte
}

// ListKeysRequest enumerates committed dkeys starting at Anchor. The engine
// advances the anchor and sets its EOF flag when the enumeration is complete.
type ListKeysRequest struct {
	Anchor  *Anchor
	MaxKeys int
	// Keys holds the enumerated dkeys once the operation completes.
	Keys [][]byte
}

// ReadRequest reads a byte extent at Offset from the array value under
// dkey/akey into Buf.
type ReadRequest struct {
	DKey   []byte
	AKey   []byte
	Offset uint64
	Buf    []byte
	// Size is the number of bytes actually read.
	Size int
}

// WriteRequest writes a byte extent at Offset into the array value under
// dkey/akey.
type WriteRequest struct {
	DKey   []byte
	AKey   []byte
	Offset uint64
	Data   []byte
}

// Engine is the native storage engine surface.
//
// Operations taking an event handle run in two modes: with NilHandle they
// execute synchronously and may block the calling goroutine; with a handle
// obtained from EventInit they return as soon as the operation is issued and
// deliver the result code through the event's registered callback when the
// owning queue is polled. Out-parameters live in the request structs, which
// the caller must keep alive until completion.
type Engine interface {
	// Init brings up the engine client. It must be called exactly once per
	// process before any other call; Runtime guards that.
	Init() error
	Fini() error

	PoolConnect(label string) (Handle, error)
	PoolDisconnect(poh Handle) error

	ContOpen(poh Handle, label string) (Handle, error)
	ContClose(coh Handle) error
	ContQuery(coh Handle, req *ContQueryRequest, evh Handle) error

	EqCreate() (Handle, error)
	// EqDestroy tears the queue down. Completions still in flight are
	// discarded, not delivered.
	EqDestroy(eqh Handle) error
	// EqPoll blocks up to timeout, reaps up to maxEvents completed events
	// and invokes their callbacks on the calling goroutine. It returns the
	// number of events reaped; a negative engine code comes back as an
	// error.
	EqPoll(eqh Handle, timeout time.Duration, maxEvents int) (int, error)

	EventInit(eqh Handle) (Handle, error)
	// EventRegister arms the completion callback. It must be called before
	// the operation using the event is issued, exactly once per event.
	EventRegister(evh Handle, cb CompletionCallback) error
	// EventTest reports whether the event has left the queue (never
	// issued, or completed and reaped). It never blocks.
	EventTest(evh Handle) (bool, error)
	// EventFini releases the event. Finalizing an event that is still
	// enqueued fails with CodeBusy; the engine never reclaims an in-flight
	// event.
	EventFini(evh Handle) error

	TxOpen(coh Handle, req *TxOpenRequest, evh Handle) error
	TxCommit(txh Handle, evh Handle) error
	TxAbort(txh Handle, evh Handle) error
	TxClose(txh Handle, evh Handle) error

	ObjOpen(coh Handle, id ObjectID, readOnly bool) (Handle, error)
	ObjClose(oh Handle) error
	// GenerateOID stamps the engine's format bits into the reserved high
	// bits of id. The low 96 bits must come from an allocator.
	GenerateOID(coh Handle, id ObjectID, class ObjectClass) (ObjectID, error)

	ObjFetch(oh Handle, req *FetchRequest, evh Handle) error
	ObjUpdate(oh Handle, req *UpdateRequest, evh Handle) error
	ObjPunch(oh Handle, req *PunchRequest, evh Handle) error
	ObjListKeys(oh Handle, req *ListKeysRequest, evh Handle) error
	ObjReadAt(oh Handle, req *ReadRequest, evh Handle) error
	ObjWriteAt(oh Handle, req *WriteRequest, evh Handle) error
}
