// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package boltengine

import (
	"bytes"
	"strings"
	"sync"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.etcd.io/bbolt"
)

// errConflict aborts the bbolt update when optimistic validation fails.
var errConflict = errors.New("transaction read set changed")

type txWrite struct {
	payload []byte
}

// tx is an optimistic transaction. Reads record the version they observed
// (zero for an absent record), writes and punches stay in an overlay until
// commit. Commit revalidates every read under the pool's write lock and
// fails with CodeTxRestart when any version moved.
//
// Full keys concatenate the 16-byte object key with the record key, so one
// overlay spans every object touched by the transaction.
type tx struct {
	cont *container

	mu        sync.Mutex
	reads     map[string]uint64
	writes    map[string]*txWrite
	punches   map[string]struct{}
	committed bool
	aborted   bool
}

func fullKey(objKey, rk []byte) string {
	return string(objKey) + string(rk)
}

// overlayGet resolves a key against the transaction's own writes.
// The second return tells whether the overlay had an answer at all.
func (t *tx) overlayGet(fk string) (payload []byte, found bool, answered bool) {
	if w, ok := t.writes[fk]; ok {
		return w.payload, true, true
	}
	for p := range t.punches {
		if strings.HasPrefix(fk, p) {
			return nil, false, true
		}
	}
	return nil, false, false
}

// get resolves a key through the overlay, falling back to the committed state
// and recording the observed version for commit-time validation.
func (t *tx) get(objKey, rk []byte) (payload []byte, found bool, code engine.Code) {
	fk := fullKey(objKey, rk)
	if p, ok, answered := t.overlayGet(fk); answered {
		return p, ok, engine.CodeSuccess
	}
	err := t.cont.pool.db.View(func(btx *bbolt.Tx) error {
		ver, p, ok := getRecord(btx, objKey, rk)
		// Commit validates against the first observed version; a re-read
		// must not overwrite it.
		if _, seen := t.reads[fk]; !seen {
			t.reads[fk] = ver
		}
		if ok {
			payload = append([]byte(nil), p...)
		}
		found = ok
		return nil
	})
	if err != nil {
		return nil, false, engine.CodeIO
	}
	return payload, found, engine.CodeSuccess
}

func (t *tx) put(objKey, rk, payload []byte) {
	t.writes[fullKey(objKey, rk)] = &txWrite{payload: append([]byte(nil), payload...)}
}

// punch drops every akey under the dkey. Earlier writes under the same dkey
// are superseded and removed from the overlay.
func (t *tx) punch(objKey, prefix []byte) {
	pk := fullKey(objKey, prefix)
	for fk := range t.writes {
		if strings.HasPrefix(fk, pk) {
			delete(t.writes, fk)
		}
	}
	t.punches[pk] = struct{}{}
}

func (e *Engine) lookupTx(txh engine.Handle) (*tx, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[txh.Cookie]
	return t, ok
}

func (e *Engine) TxOpen(coh engine.Handle, req *engine.TxOpenRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("tx_open").Inc()
	return e.submit(evh, func() engine.Code {
		e.mu.Lock()
		defer e.mu.Unlock()
		c, ok := e.conts[coh.Cookie]
		if !ok {
			return engine.CodeNoHandle
		}
		h := e.handle()
		e.txs[h] = &tx{
			cont:    c,
			reads:   make(map[string]uint64),
			writes:  make(map[string]*txWrite),
			punches: make(map[string]struct{}),
		}
		req.Tx = engine.Handle{Cookie: h}
		return engine.CodeSuccess
	})
}

func (e *Engine) TxCommit(txh engine.Handle, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("tx_commit").Inc()
	return e.submit(evh, func() engine.Code {
		t, ok := e.lookupTx(txh)
		if !ok {
			return engine.CodeNoHandle
		}
		return e.commitTx(t)
	})
}

func (e *Engine) commitTx(t *tx) engine.Code {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.aborted {
		return engine.CodeInvalid
	}
	err := t.cont.pool.db.Update(func(btx *bbolt.Tx) error {
		for fk, ver := range t.reads {
			objKey, rk := []byte(fk[:16]), []byte(fk[16:])
			cur, _, ok := getRecord(btx, objKey, rk)
			if !ok {
				cur = 0
			}
			if cur != ver {
				return errConflict
			}
		}
		seq, err := bumpSeq(btx)
		if err != nil {
			return err
		}
		for pk := range t.punches {
			if err := deletePrefix(btx, []byte(pk[:16]), []byte(pk[16:])); err != nil {
				return err
			}
		}
		for fk, w := range t.writes {
			if err := putRecord(btx, []byte(fk[:16]), []byte(fk[16:]), seq, w.payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errConflict) {
			return engine.CodeTxRestart
		}
		return engine.CodeIO
	}
	t.committed = true
	return engine.CodeSuccess
}

func (e *Engine) TxAbort(txh engine.Handle, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("tx_abort").Inc()
	return e.submit(evh, func() engine.Code {
		t, ok := e.lookupTx(txh)
		if !ok {
			return engine.CodeNoHandle
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.committed {
			return engine.CodeInvalid
		}
		t.reads = make(map[string]uint64)
		t.writes = make(map[string]*txWrite)
		t.punches = make(map[string]struct{})
		t.aborted = true
		return engine.CodeSuccess
	})
}

func (e *Engine) TxClose(txh engine.Handle, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("tx_close").Inc()
	return e.submit(evh, func() engine.Code {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.txs[txh.Cookie]; !ok {
			return engine.CodeNoHandle
		}
		delete(e.txs, txh.Cookie)
		return engine.CodeSuccess
	})
}

func deletePrefix(btx *bbolt.Tx, objKey, prefix []byte) error {
	b := objBucket(btx, objKey)
	if b == nil {
		return nil
	}
	cur := b.Cursor()
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		if err := cur.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// errRollback aborts the enclosing bbolt update without surfacing an error.
var errRollback = errors.New("rollback auto-commit")

// autoCommit runs one conditional write outside any transaction: the
// condition and the write commit atomically in a single engine round trip.
func autoCommit(p *pool, fn func(btx *bbolt.Tx, seq uint64) engine.Code) engine.Code {
	code := engine.CodeSuccess
	err := p.db.Update(func(btx *bbolt.Tx) error {
		seq, err := bumpSeq(btx)
		if err != nil {
			return err
		}
		if code = fn(btx, seq); code != engine.CodeSuccess {
			return errRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		return engine.CodeIO
	}
	return code
}
