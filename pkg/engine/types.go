// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle identifies a native engine resource: a pool session, a container
// session, a completion queue, an event, a transaction, or an open object.
// The zero handle means "no resource"; passing it where a transaction is
// expected selects auto-commit, passing it where an event is expected selects
// synchronous execution.
type Handle struct {
	Cookie uint64
}

// NilHandle is the zero handle.
var NilHandle = Handle{}

func (h Handle) IsNil() bool {
	return h.Cookie == 0
}

// ObjectID is a 128-bit object identifier split into two 64-bit halves.
type ObjectID struct {
	Hi uint64
	Lo uint64
}

func (id ObjectID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%x.%x", id.Hi, id.Lo)
}

// ObjectClass selects the layout the engine stamps into a generated OID.
type ObjectClass uint16

const (
	ClassUnknown ObjectClass = iota
	ClassKeyValue
	ClassByteArray
)

// ContInfo is the result of a container query.
type ContInfo struct {
	Label string
	UUID  uuid.UUID
	// Roots are the four well-known root objects assigned at container
	// creation. Applications anchor their metadata on them.
	Roots [4]ObjectID
}

// CondFlag is a server-enforced precondition on a fetch, update or punch.
type CondFlag uint64

const (
	CondNone CondFlag = 0
	// CondFetch makes a fetch fail with CodeNoExist instead of returning
	// an empty value when the key is absent.
	CondFetch CondFlag = 1 << iota
	// CondInsert makes an update fail with CodeExist when the key is
	// already present.
	CondInsert
	// CondUpdate makes an update fail with CodeNoExist when the key is
	// absent.
	CondUpdate
	// CondPunch makes a punch fail with CodeNoExist when the dkey is
	// absent.
	CondPunch
)

// Anchor marks the resume position of a key enumeration.
// The zero anchor starts from the beginning.
type Anchor struct {
	Last []byte
	EOF  bool
}
