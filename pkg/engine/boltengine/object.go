// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package boltengine

import (
	"bytes"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.etcd.io/bbolt"
)

func (e *Engine) ObjOpen(coh engine.Handle, id engine.ObjectID, readOnly bool) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conts[coh.Cookie]
	if !ok {
		return engine.NilHandle, errors.WithStack(engine.ErrNoHandle)
	}
	metrics.EngineOpCounter.WithLabelValues("obj_open").Inc()
	h := e.handle()
	e.objs[h] = &object{cont: c, id: id, readOnly: readOnly, bucket: encodeOID(id)}
	return engine.Handle{Cookie: h}, nil
}

func (e *Engine) ObjClose(oh engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objs[oh.Cookie]; !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	delete(e.objs, oh.Cookie)
	metrics.EngineOpCounter.WithLabelValues("obj_close").Inc()
	return nil
}

// GenerateOID stamps the engine's format bits into the reserved area of the
// identifier. The input must come from an allocator, so its reserved bits
// are still zero.
func (e *Engine) GenerateOID(coh engine.Handle, id engine.ObjectID, class engine.ObjectClass) (engine.ObjectID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.conts[coh.Cookie]; !ok {
		return engine.ObjectID{}, errors.WithStack(engine.ErrNoHandle)
	}
	if id.Hi>>32 != 0 {
		return engine.ObjectID{}, errors.WithStack(engine.ErrInvalid)
	}
	return stampOID(id, class), nil
}

func (e *Engine) lookupObj(oh engine.Handle) (*object, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.objs[oh.Cookie]
	return o, ok
}

func (e *Engine) ObjFetch(oh engine.Handle, req *engine.FetchRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_fetch").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		rk := recordKey(req.DKey, req.AKey)

		var payload []byte
		var found bool
		if !req.Tx.IsNil() {
			t, ok := e.lookupTx(req.Tx)
			if !ok {
				return engine.CodeNoHandle
			}
			t.mu.Lock()
			var code engine.Code
			payload, found, code = t.get(o.bucket, rk)
			t.mu.Unlock()
			if code != engine.CodeSuccess {
				return code
			}
		} else {
			err := o.cont.pool.db.View(func(btx *bbolt.Tx) error {
				_, p, ok := getRecord(btx, o.bucket, rk)
				if ok {
					payload = append([]byte(nil), p...)
				}
				found = ok
				return nil
			})
			if err != nil {
				return engine.CodeIO
			}
		}

		if !found {
			if req.Flags&engine.CondFetch != 0 {
				return engine.CodeNoExist
			}
			req.Data = nil
			return engine.CodeSuccess
		}
		if req.MaxSize > 0 && len(payload) > req.MaxSize {
			return engine.CodeTruncated
		}
		req.Data = payload
		return engine.CodeSuccess
	})
}

func (e *Engine) ObjUpdate(oh engine.Handle, req *engine.UpdateRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_update").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		if o.readOnly {
			return engine.CodeInvalid
		}
		rk := recordKey(req.DKey, req.AKey)

		if !req.Tx.IsNil() {
			t, ok := e.lookupTx(req.Tx)
			if !ok {
				return engine.CodeNoHandle
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			// The existence check is recorded as a read, so a
			// concurrent commit that moves this record fails ours.
			_, found, code := t.get(o.bucket, rk)
			if code != engine.CodeSuccess {
				return code
			}
			if code := checkWriteCond(req.Flags, found); code != engine.CodeSuccess {
				return code
			}
			t.put(o.bucket, rk, req.Data)
			return engine.CodeSuccess
		}

		return autoCommit(o.cont.pool, func(btx *bbolt.Tx, seq uint64) engine.Code {
			_, _, found := getRecord(btx, o.bucket, rk)
			if code := checkWriteCond(req.Flags, found); code != engine.CodeSuccess {
				return code
			}
			if err := putRecord(btx, o.bucket, rk, seq, req.Data); err != nil {
				return engine.CodeIO
			}
			return engine.CodeSuccess
		})
	})
}

func checkWriteCond(flags engine.CondFlag, found bool) engine.Code {
	if flags&engine.CondInsert != 0 && found {
		return engine.CodeExist
	}
	if flags&engine.CondUpdate != 0 && !found {
		return engine.CodeNoExist
	}
	return engine.CodeSuccess
}

func (e *Engine) ObjPunch(oh engine.Handle, req *engine.PunchRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_punch").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		if o.readOnly {
			return engine.CodeInvalid
		}
		prefix := dkeyPrefix(req.DKey)

		if !req.Tx.IsNil() {
			t, ok := e.lookupTx(req.Tx)
			if !ok {
				return engine.CodeNoHandle
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			// Record every committed record under the dkey as a read
			// so the punch conflicts with concurrent writers.
			found := false
			err := o.cont.pool.db.View(func(btx *bbolt.Tx) error {
				b := objBucket(btx, o.bucket)
				if b == nil {
					return nil
				}
				cur := b.Cursor()
				for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
					fk := fullKey(o.bucket, k)
					if _, seen := t.reads[fk]; !seen {
						ver, _ := decodeRecord(v)
						t.reads[fk] = ver
					}
					found = true
				}
				return nil
			})
			if err != nil {
				return engine.CodeIO
			}
			for fk := range t.writes {
				if len(fk) >= 16 && fk[:16] == string(o.bucket) && bytes.HasPrefix([]byte(fk[16:]), prefix) {
					found = true
				}
			}
			if !found && req.Flags&engine.CondPunch != 0 {
				return engine.CodeNoExist
			}
			t.punch(o.bucket, prefix)
			return engine.CodeSuccess
		}

		return autoCommit(o.cont.pool, func(btx *bbolt.Tx, seq uint64) engine.Code {
			if req.Flags&engine.CondPunch != 0 {
				b := objBucket(btx, o.bucket)
				exists := false
				if b != nil {
					k, _ := b.Cursor().Seek(prefix)
					exists = k != nil && bytes.HasPrefix(k, prefix)
				}
				if !exists {
					return engine.CodeNoExist
				}
			}
			if err := deletePrefix(btx, o.bucket, prefix); err != nil {
				return engine.CodeIO
			}
			return engine.CodeSuccess
		})
	})
}

// ObjListKeys enumerates committed dkeys from the request anchor, advancing
// it. Uncommitted transaction overlays are not visible to enumeration.
func (e *Engine) ObjListKeys(oh engine.Handle, req *engine.ListKeysRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_list").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		if req.Anchor == nil || req.MaxKeys <= 0 {
			return engine.CodeInvalid
		}
		req.Keys = nil
		err := o.cont.pool.db.View(func(btx *bbolt.Tx) error {
			b := objBucket(btx, o.bucket)
			if b == nil {
				req.Anchor.EOF = true
				return nil
			}
			cur := b.Cursor()
			var k []byte
			if req.Anchor.Last != nil {
				// Resume right after the anchor dkey's records.
				skip := dkeyPrefix(req.Anchor.Last)
				for k, _ = cur.Seek(skip); k != nil && bytes.HasPrefix(k, skip); k, _ = cur.Next() {
				}
			} else {
				k, _ = cur.First()
			}
			var last []byte
			for ; k != nil; k, _ = cur.Next() {
				dkey := dkeyOfRecord(k)
				if last != nil && bytes.Equal(dkey, last) {
					continue
				}
				if len(req.Keys) >= req.MaxKeys {
					req.Anchor.Last = last
					return nil
				}
				last = append([]byte(nil), dkey...)
				req.Keys = append(req.Keys, last)
			}
			req.Anchor.Last = last
			req.Anchor.EOF = true
			return nil
		})
		if err != nil {
			return engine.CodeIO
		}
		return engine.CodeSuccess
	})
}

func (e *Engine) ObjReadAt(oh engine.Handle, req *engine.ReadRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_read").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		rk := recordKey(req.DKey, req.AKey)
		req.Size = 0
		err := o.cont.pool.db.View(func(btx *bbolt.Tx) error {
			_, payload, ok := getRecord(btx, o.bucket, rk)
			if !ok || req.Offset >= uint64(len(payload)) {
				return nil
			}
			req.Size = copy(req.Buf, payload[req.Offset:])
			return nil
		})
		if err != nil {
			return engine.CodeIO
		}
		return engine.CodeSuccess
	})
}

func (e *Engine) ObjWriteAt(oh engine.Handle, req *engine.WriteRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("obj_write").Inc()
	return e.submit(evh, func() engine.Code {
		o, ok := e.lookupObj(oh)
		if !ok {
			return engine.CodeNoHandle
		}
		if o.readOnly {
			return engine.CodeInvalid
		}
		rk := recordKey(req.DKey, req.AKey)
		return autoCommit(o.cont.pool, func(btx *bbolt.Tx, seq uint64) engine.Code {
			_, payload, _ := getRecord(btx, o.bucket, rk)
			end := req.Offset + uint64(len(req.Data))
			if end > uint64(len(payload)) {
				grown := make([]byte, end)
				copy(grown, payload)
				payload = grown
			} else {
				payload = append([]byte(nil), payload...)
			}
			copy(payload[req.Offset:], req.Data)
			if err := putRecord(btx, o.bucket, rk, seq, payload); err != nil {
				return engine.CodeIO
			}
			return engine.CodeSuccess
		})
	})
}
