// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oid allocates globally unique, monotonically increasing object
// identifiers. Allocators amortize coordination by claiming batches of
// BatchSize identifiers from a persisted cursor with conditional writes;
// identifiers inside a claimed batch are handed out from memory with no I/O.
//
// Identifiers lost to a crash between claim and use stay unused: gaps are
// acceptable, duplicates never are.
package oid

import (
	"encoding/binary"
	"math/bits"

	"github.com/quarrystore/quarry-go/lib/util/errors"
)

const (
	// BatchSize is the number of identifiers claimed per cursor advance.
	// Large enough that concurrent claims rarely collide on the cursor.
	BatchSize uint64 = 1 << 10
	// CursorStart is the first identifier ever handed out on a container.
	CursorStart uint64 = 1024

	// reservedBits are the most significant bits of an identifier, owned
	// by the engine's OID format. A counter reaching into them means the
	// container's identifier space is exhausted.
	reservedBits = 32

	// cursorFetchSize bounds the cursor value read; the stored value is
	// exactly 16 bytes.
	cursorFetchSize = 32
)

var (
	cursorDKey = []byte("oid_cursor")
	cursorAKey = []byte{0}
)

var (
	// ErrExhausted is permanent: the container's identifier space is used
	// up and allocation can never succeed again.
	ErrExhausted = errors.New("no more object IDs available")
	// ErrBadCursor reports a persisted cursor value of the wrong size.
	ErrBadCursor = errors.New("malformed cursor value")
)

// uint128 is the allocator's counter: identifiers are 128-bit values split
// into 64-bit halves.
type uint128 struct {
	hi uint64
	lo uint64
}

func (a uint128) add(n uint64) uint128 {
	lo, carry := bits.Add64(a.lo, n, 0)
	return uint128{hi: a.hi + carry, lo: lo}
}

func (a uint128) less(b uint128) bool {
	return a.hi < b.hi || (a.hi == b.hi && a.lo < b.lo)
}

// exhausted reports whether the counter reached the reserved bits.
func (a uint128) exhausted() bool {
	return a.hi>>(64-reservedBits) != 0
}

// oidRange is a claimed batch [start, end), owned exclusively by one
// allocator instance.
type oidRange struct {
	start uint128
	end   uint128
}

// The persisted cursor is the 128-bit counter in fixed-width little-endian:
// low half first. Every allocator instance, across restarts, must agree on
// this layout.
func encodeCursor(v uint128) []byte {
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint64(raw[:8], v.lo)
	binary.LittleEndian.PutUint64(raw[8:], v.hi)
	return raw
}

func decodeCursor(raw []byte) (uint128, error) {
	if len(raw) != 16 {
		return uint128{}, errors.Wrapf(ErrBadCursor, "expected 16 bytes, got %d", len(raw))
	}
	return uint128{
		lo: binary.LittleEndian.Uint64(raw[:8]),
		hi: binary.LittleEndian.Uint64(raw[8:]),
	}, nil
}
