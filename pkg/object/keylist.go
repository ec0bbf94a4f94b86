// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
)

// maxKeyBatch bounds the dkeys fetched per enumeration round trip.
const maxKeyBatch = 128

// KeyList is a resumable dkey enumeration. Each Next call fetches one batch
// and advances the opaque anchor; Done reports whether the anchor reached the
// end. A KeyList observes committed state only.
type KeyList struct {
	obj    *Object
	anchor engine.Anchor
}

// ListKeys starts an enumeration from the beginning. No I/O happens until
// the first Next call.
func (o *Object) ListKeys() *KeyList {
	return &KeyList{obj: o}
}

func (kl *KeyList) Done() bool {
	return kl.anchor.EOF
}

// Next fetches the next batch of dkeys. Calling Next on a finished
// enumeration returns an empty batch.
func (kl *KeyList) Next() ([][]byte, error) {
	if kl.anchor.EOF {
		return nil, nil
	}
	if err := kl.obj.checkOpen(); err != nil {
		return nil, err
	}
	req := &engine.ListKeysRequest{Anchor: &kl.anchor, MaxKeys: maxKeyBatch}
	if err := kl.obj.cont.Engine().ObjListKeys(kl.obj.handle, req, engine.NilHandle); err != nil {
		return nil, errors.WithStack(err)
	}
	return req.Keys, nil
}

func (kl *KeyList) NextContext(ctx context.Context) ([][]byte, error) {
	if kl.anchor.EOF {
		return nil, nil
	}
	if err := kl.obj.checkOpen(); err != nil {
		return nil, err
	}
	req := &engine.ListKeysRequest{Anchor: &kl.anchor, MaxKeys: maxKeyBatch}
	err := kl.obj.cont.Queue().Await(ctx, func(evh engine.Handle) error {
		return kl.obj.cont.Engine().ObjListKeys(kl.obj.handle, req, evh)
	})
	if err != nil {
		return nil, err
	}
	return req.Keys, nil
}
