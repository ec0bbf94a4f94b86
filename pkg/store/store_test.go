// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"

	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/logger"
	"github.com/quarrystore/quarry-go/pkg/engine/boltengine"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRuntime(t *testing.T) (*Runtime, *zap.Logger) {
	lg, _ := logger.CreateLoggerForTest(t)
	eng := boltengine.New(lg.Named("engine"), t.TempDir())
	rt := NewRuntime(lg, eng)
	t.Cleanup(func() {
		require.NoError(t, rt.Close())
	})
	return rt, lg
}

func TestRuntimeLazyInit(t *testing.T) {
	rt, lg := newTestRuntime(t)
	// Init runs once, on the first connect; further connects reuse it.
	cfg := config.NewConfig()
	p1 := NewPool(lg, rt, cfg.Store)
	p2 := NewPool(lg, rt, cfg.Store)
	require.NoError(t, p1.Connect(context.Background()))
	require.NoError(t, p2.Connect(context.Background()))
	require.NoError(t, p1.Disconnect())
	require.NoError(t, p2.Disconnect())
}

func TestRuntimeCloseIdempotent(t *testing.T) {
	rt, lg := newTestRuntime(t)
	cfg := config.NewConfig()
	pool := NewPool(lg, rt, cfg.Store)
	require.NoError(t, pool.Connect(context.Background()))
	require.NoError(t, pool.Disconnect())
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	// A closed runtime refuses new sessions.
	require.ErrorIs(t, pool.Connect(context.Background()), ErrRuntimeClosed)
}

func TestRuntimeCloseWithoutInit(t *testing.T) {
	rt, _ := newTestRuntime(t)
	require.NoError(t, rt.Close())
}

func TestPoolConnectIdempotent(t *testing.T) {
	rt, lg := newTestRuntime(t)
	cfg := config.NewConfig()
	pool := NewPool(lg, rt, cfg.Store)
	require.True(t, pool.Handle().IsNil())
	require.NoError(t, pool.Connect(context.Background()))
	h := pool.Handle()
	require.False(t, h.IsNil())
	require.NoError(t, pool.Connect(context.Background()))
	require.Equal(t, h, pool.Handle())

	require.NoError(t, pool.Disconnect())
	require.True(t, pool.Handle().IsNil())
	require.NoError(t, pool.Disconnect())
}

func TestContainerLifecycle(t *testing.T) {
	rt, lg := newTestRuntime(t)
	cfg := config.NewConfig()
	pool := NewPool(lg, rt, cfg.Store)
	require.NoError(t, pool.Connect(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, pool.Disconnect())
	})

	cont, err := OpenContainer(lg, pool, "cont1", cfg.EventQueue)
	require.NoError(t, err)
	require.Equal(t, "cont1", cont.Label())
	require.NotNil(t, cont.Queue())

	info, err := cont.Info()
	require.NoError(t, err)
	require.Equal(t, "cont1", info.Label)
	for _, root := range info.Roots {
		require.NotZero(t, root.Hi)
	}

	infoCtx, err := cont.InfoContext(context.Background())
	require.NoError(t, err)
	require.Equal(t, info, infoCtx)

	require.NoError(t, cont.Close())
	require.NoError(t, cont.Close())

	// Reopening yields the same identity.
	cont2, err := OpenContainer(lg, pool, "cont1", cfg.EventQueue)
	require.NoError(t, err)
	info2, err := cont2.Info()
	require.NoError(t, err)
	require.Equal(t, info.UUID, info2.UUID)
	require.Equal(t, info.Roots, info2.Roots)
	require.NoError(t, cont2.Close())
}

func TestOpenContainerUnconnected(t *testing.T) {
	rt, lg := newTestRuntime(t)
	cfg := config.NewConfig()
	pool := NewPool(lg, rt, cfg.Store)
	_, err := OpenContainer(lg, pool, "cont1", cfg.EventQueue)
	require.ErrorIs(t, err, ErrPoolNotConnected)
}
