// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package oid

import (
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/object"
	"github.com/quarrystore/quarry-go/pkg/store"
	"github.com/quarrystore/quarry-go/pkg/txn"
)

// Cursor reads the container's persisted allocation cursor: the lowest
// identifier no batch has claimed yet. ok is false when nothing was ever
// allocated on the container. Inspection only; allocators never go through
// this.
func Cursor(cont *store.Container) (next engine.ObjectID, ok bool, err error) {
	info, err := cont.Info()
	if err != nil {
		return engine.ObjectID{}, false, err
	}
	meta, err := object.Open(cont, info.Roots[0], true)
	if err != nil {
		return engine.ObjectID{}, false, err
	}
	defer func() {
		if cerr := meta.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	raw, err := meta.Fetch(txn.None(), engine.CondFetch, cursorDKey, cursorAKey, cursorFetchSize)
	if err != nil {
		if errors.Is(err, engine.ErrNoExist) {
			return engine.ObjectID{}, false, nil
		}
		return engine.ObjectID{}, false, err
	}
	v, err := decodeCursor(raw)
	if err != nil {
		return engine.ObjectID{}, false, err
	}
	return engine.ObjectID{Hi: v.hi, Lo: v.lo}, true, nil
}
