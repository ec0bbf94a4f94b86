// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package boltengine is an embedded, single-process implementation of the
// engine contract, persisting pools as bbolt files. It exists so the SDK and
// its tests run against a real, durable, conditionally-writing engine without
// an external cluster. Transactions are optimistic: reads record the version
// they saw and commit fails with CodeTxRestart when any of them changed.
package boltengine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/lib/util/waitgroup"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/metrics"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// Async ops run on a shared pool; goroutines are created lazily.
	goPoolSize = 100
	goMaxIdle  = time.Minute

	dbOpenTimeout = time.Second
)

var (
	bucketMeta       = []byte("meta")
	bucketContainers = []byte("containers")
	bucketObjects    = []byte("objects")

	keyUUID = []byte("uuid")
	keySeq  = []byte("seq")
)

var _ engine.Engine = (*Engine)(nil)

type pool struct {
	label string
	uuid  uuid.UUID
	db    *bbolt.DB
}

type container struct {
	pool  *pool
	label string
	uuid  uuid.UUID
	roots [4]engine.ObjectID
}

type object struct {
	cont     *container
	id       engine.ObjectID
	readOnly bool
	// key of the nested bucket holding this object's records
	bucket []byte
}

// Engine is an embedded engine.Engine backed by one bbolt file per pool.
type Engine struct {
	lg      *zap.Logger
	dataDir string

	mu         sync.Mutex
	inited     bool
	nextCookie uint64
	pools      map[uint64]*pool
	conts      map[uint64]*container
	objs       map[uint64]*object
	queues     map[uint64]*eventQueue
	events     map[uint64]*event
	txs        map[uint64]*tx

	wgp *waitgroup.WaitGroupPool
}

// New creates an engine rooted at dataDir. Call Init before anything else.
func New(lg *zap.Logger, dataDir string) *Engine {
	return &Engine{
		lg:         lg,
		dataDir:    dataDir,
		nextCookie: 1,
		pools:      make(map[uint64]*pool),
		conts:      make(map[uint64]*container),
		objs:       make(map[uint64]*object),
		queues:     make(map[uint64]*eventQueue),
		events:     make(map[uint64]*event),
		txs:        make(map[uint64]*tx),
		wgp:        waitgroup.NewWaitGroupPool(goPoolSize, goMaxIdle),
	}
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return errors.WithStack(engine.ErrInvalid)
	}
	if err := os.MkdirAll(e.dataDir, 0755); err != nil {
		return errors.Wrap(engine.ErrIO, err)
	}
	e.inited = true
	return nil
}

func (e *Engine) Fini() error {
	e.mu.Lock()
	if !e.inited {
		e.mu.Unlock()
		return errors.WithStack(engine.ErrInvalid)
	}
	pools := e.pools
	e.pools = make(map[uint64]*pool)
	e.conts = make(map[uint64]*container)
	e.objs = make(map[uint64]*object)
	e.queues = make(map[uint64]*eventQueue)
	e.events = make(map[uint64]*event)
	e.txs = make(map[uint64]*tx)
	e.inited = false
	e.mu.Unlock()

	e.wgp.Close()
	errs := make([]error, 0, len(pools))
	for _, p := range pools {
		errs = append(errs, p.db.Close())
	}
	return errors.Collect(errors.New("shutting down engine"), errs...)
}

func (e *Engine) handle() uint64 {
	h := e.nextCookie
	e.nextCookie++
	return h
}

// PoolConnect opens (creating if needed) the pool's bbolt file.
func (e *Engine) PoolConnect(label string) (engine.Handle, error) {
	if label == "" {
		return engine.NilHandle, errors.WithStack(engine.ErrInvalid)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return engine.NilHandle, errors.WithStack(engine.ErrInvalid)
	}
	metrics.EngineOpCounter.WithLabelValues("pool_connect").Inc()

	db, err := bbolt.Open(filepath.Join(e.dataDir, label+".db"), 0644, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return engine.NilHandle, errors.Wrap(engine.ErrIO, err)
	}
	p := &pool{label: label, db: db}
	err = db.Update(func(btx *bbolt.Tx) error {
		meta, err := btx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := btx.CreateBucketIfNotExists(bucketContainers); err != nil {
			return err
		}
		if _, err := btx.CreateBucketIfNotExists(bucketObjects); err != nil {
			return err
		}
		if raw := meta.Get(keyUUID); raw != nil {
			return p.uuid.UnmarshalBinary(raw)
		}
		p.uuid = uuid.New()
		raw, err := p.uuid.MarshalBinary()
		if err != nil {
			return err
		}
		return meta.Put(keyUUID, raw)
	})
	if err != nil {
		_ = db.Close()
		return engine.NilHandle, errors.Wrap(engine.ErrIO, err)
	}
	h := e.handle()
	e.pools[h] = p
	return engine.Handle{Cookie: h}, nil
}

func (e *Engine) PoolDisconnect(poh engine.Handle) error {
	e.mu.Lock()
	p, ok := e.pools[poh.Cookie]
	if !ok {
		e.mu.Unlock()
		return errors.WithStack(engine.ErrNoHandle)
	}
	delete(e.pools, poh.Cookie)
	e.mu.Unlock()
	metrics.EngineOpCounter.WithLabelValues("pool_disconnect").Inc()
	if err := p.db.Close(); err != nil {
		return errors.Wrap(engine.ErrIO, err)
	}
	return nil
}

// ContOpen opens a container by label, creating it with a fresh UUID and four
// root objects on first open.
func (e *Engine) ContOpen(poh engine.Handle, label string) (engine.Handle, error) {
	if label == "" {
		return engine.NilHandle, errors.WithStack(engine.ErrInvalid)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poh.Cookie]
	if !ok {
		return engine.NilHandle, errors.WithStack(engine.ErrNoHandle)
	}
	metrics.EngineOpCounter.WithLabelValues("cont_open").Inc()

	c := &container{pool: p, label: label}
	err := p.db.Update(func(btx *bbolt.Tx) error {
		all := btx.Bucket(bucketContainers)
		b := all.Bucket([]byte(label))
		if b == nil {
			var err error
			if b, err = all.CreateBucket([]byte(label)); err != nil {
				return err
			}
			c.uuid = uuid.New()
			raw, err := c.uuid.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(keyUUID, raw); err != nil {
				return err
			}
			for i := range c.roots {
				// Root objects sit outside the allocator's counter
				// space: format bits stamped, low bits fixed.
				c.roots[i] = stampOID(engine.ObjectID{Lo: uint64(i + 1)}, engine.ClassKeyValue)
				if err := b.Put(rootKey(i), encodeOID(c.roots[i])); err != nil {
					return err
				}
			}
			return nil
		}
		if err := c.uuid.UnmarshalBinary(b.Get(keyUUID)); err != nil {
			return err
		}
		for i := range c.roots {
			c.roots[i] = decodeOID(b.Get(rootKey(i)))
		}
		return nil
	})
	if err != nil {
		return engine.NilHandle, errors.Wrap(engine.ErrIO, err)
	}
	h := e.handle()
	e.conts[h] = c
	return engine.Handle{Cookie: h}, nil
}

func (e *Engine) ContClose(coh engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.conts[coh.Cookie]; !ok {
		return errors.WithStack(engine.ErrNoHandle)
	}
	delete(e.conts, coh.Cookie)
	metrics.EngineOpCounter.WithLabelValues("cont_close").Inc()
	return nil
}

func (e *Engine) ContQuery(coh engine.Handle, req *engine.ContQueryRequest, evh engine.Handle) error {
	metrics.EngineOpCounter.WithLabelValues("cont_query").Inc()
	return e.submit(evh, func() engine.Code {
		e.mu.Lock()
		c, ok := e.conts[coh.Cookie]
		e.mu.Unlock()
		if !ok {
			return engine.CodeNoHandle
		}
		req.Info = engine.ContInfo{Label: c.label, UUID: c.uuid, Roots: c.roots}
		return engine.CodeSuccess
	})
}

func (e *Engine) lookupCont(coh engine.Handle) (*container, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conts[coh.Cookie]
	return c, ok
}
