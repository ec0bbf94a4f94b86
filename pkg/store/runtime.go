// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store manages sessions against the storage engine: the process-wide
// engine lifecycle, pool connections and container handles. A container owns
// the completion queue every asynchronous operation on it runs through.
package store

import (
	"sync"

	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrRuntimeClosed = errors.New("storage runtime is closed")

// Runtime guards the engine client's process-wide lifecycle: the native init
// runs exactly once, lazily on first use, no matter how many pools are
// created; Close runs the teardown exactly once. Explicit on purpose, so the
// lifecycle is observable in tests instead of hiding in static construction.
type Runtime struct {
	lg  *zap.Logger
	eng engine.Engine

	initOnce sync.Once
	initErr  error
	inited   atomic.Bool
	closed   atomic.Bool
}

func NewRuntime(lg *zap.Logger, eng engine.Engine) *Runtime {
	return &Runtime{lg: lg, eng: eng}
}

func (r *Runtime) Engine() engine.Engine {
	return r.eng
}

// ensure initializes the engine on first call.
func (r *Runtime) ensure() error {
	if r.closed.Load() {
		return errors.WithStack(ErrRuntimeClosed)
	}
	r.initOnce.Do(func() {
		r.initErr = r.eng.Init()
		if r.initErr == nil {
			r.inited.Store(true)
			r.lg.Info("storage engine initialized")
		}
	})
	return errors.WithStack(r.initErr)
}

// Close finalizes the engine. Closing twice, or without ever having
// initialized, is a no-op.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !r.inited.Load() {
		return nil
	}
	return errors.WithStack(r.eng.Fini())
}
