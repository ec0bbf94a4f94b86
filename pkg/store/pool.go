// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/lib/util/retry"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"go.uber.org/zap"
)

// Pool is a connection to one storage pool. Connect blocks on native calls,
// so it should run during setup, not on latency-sensitive goroutines.
type Pool struct {
	lg  *zap.Logger
	rt  *Runtime
	cfg config.Store

	mu     sync.Mutex
	handle engine.Handle
}

func NewPool(lg *zap.Logger, rt *Runtime, cfg config.Store) *Pool {
	return &Pool{lg: lg, rt: rt, cfg: cfg}
}

func (p *Pool) Label() string {
	return p.cfg.Pool
}

// Connect establishes the pool session, retrying transient engine failures
// with a constant backoff. Connecting an already connected pool is a no-op.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.handle.IsNil() {
		return nil
	}
	if err := p.rt.ensure(); err != nil {
		return err
	}
	err := retry.Retry(func() error {
		h, err := p.rt.eng.PoolConnect(p.cfg.Pool)
		if err != nil {
			if errors.Is(err, engine.ErrBusy) || errors.Is(err, engine.ErrIO) {
				p.lg.Warn("pool connect failed, retrying", zap.String("pool", p.cfg.Pool), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		p.handle = h
		return nil
	}, ctx, p.cfg.ConnectRetryInterval, p.cfg.ConnectMaxRetries)
	return errors.WithStack(err)
}

// Disconnect drops the session. Disconnecting an unconnected pool is a no-op.
func (p *Pool) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle.IsNil() {
		return nil
	}
	err := p.rt.eng.PoolDisconnect(p.handle)
	p.handle = engine.NilHandle
	return errors.WithStack(err)
}

func (p *Pool) Handle() engine.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}
