// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"

	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/eventq"
	"go.uber.org/zap"
)

var (
	ErrPoolNotConnected = errors.New("pool is not connected")
	ErrContainerClosed  = errors.New("container is closed")
)

// Container is an open container session. It owns one completion queue,
// created at open and torn down at close; everything asynchronous issued
// against the container flows through that queue.
type Container struct {
	lg    *zap.Logger
	pool  *Pool
	label string

	mu     sync.Mutex
	handle engine.Handle
	queue  *eventq.Queue
	closed bool
}

// OpenContainer opens the container by label on a connected pool and starts
// its completion queue.
func OpenContainer(lg *zap.Logger, pool *Pool, label string, eqCfg config.EventQueue) (*Container, error) {
	poh := pool.Handle()
	if poh.IsNil() {
		return nil, errors.WithStack(ErrPoolNotConnected)
	}
	eng := pool.rt.eng
	coh, err := eng.ContOpen(poh, label)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	queue, err := eventq.NewQueue(lg.Named("eventq"), eng, eqCfg)
	if err != nil {
		if cerr := eng.ContClose(coh); cerr != nil {
			lg.Warn("closing container after queue setup failure", zap.Error(cerr))
		}
		return nil, err
	}
	return &Container{
		lg:     lg,
		pool:   pool,
		label:  label,
		handle: coh,
		queue:  queue,
	}, nil
}

func (c *Container) Label() string {
	return c.label
}

func (c *Container) Handle() engine.Handle {
	return c.handle
}

func (c *Container) Engine() engine.Engine {
	return c.pool.rt.eng
}

// Queue returns the container's completion queue.
func (c *Container) Queue() *eventq.Queue {
	return c.queue
}

// Info queries the container synchronously.
func (c *Container) Info() (engine.ContInfo, error) {
	var req engine.ContQueryRequest
	err := c.Engine().ContQuery(c.handle, &req, engine.NilHandle)
	return req.Info, errors.WithStack(err)
}

// InfoContext queries the container through the completion queue.
func (c *Container) InfoContext(ctx context.Context) (engine.ContInfo, error) {
	var req engine.ContQueryRequest
	err := c.queue.Await(ctx, func(evh engine.Handle) error {
		return c.Engine().ContQuery(c.handle, &req, evh)
	})
	return req.Info, err
}

// Close tears down the completion queue and the container handle. Closing
// twice is a no-op.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	qerr := c.queue.Close()
	cerr := c.Engine().ContClose(c.handle)
	return errors.Collect(errors.New("closing container"), qerr, cerr)
}
