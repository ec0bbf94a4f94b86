// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package txn

import (
	"context"
	"testing"

	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/logger"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/quarrystore/quarry-go/pkg/engine/boltengine"
	"github.com/quarrystore/quarry-go/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestContainer(t *testing.T) *store.Container {
	lg, _ := logger.CreateLoggerForTest(t)
	eng := boltengine.New(lg.Named("engine"), t.TempDir())
	rt := store.NewRuntime(lg, eng)
	cfg := config.NewConfig()
	pool := store.NewPool(lg, rt, cfg.Store)
	require.NoError(t, pool.Connect(context.Background()))
	cont, err := store.OpenContainer(lg, pool, cfg.Store.Container, cfg.EventQueue)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, cont.Close())
		require.NoError(t, pool.Disconnect())
		require.NoError(t, rt.Close())
	})
	return cont
}

func TestCommitLifecycle(t *testing.T) {
	cont := newTestContainer(t)
	tx, err := Open(cont)
	require.NoError(t, err)
	require.False(t, tx.IsNone())
	require.NoError(t, tx.Commit())
	// Committing twice is rejected by the engine.
	require.ErrorIs(t, tx.Commit(), engine.ErrInvalid)
	require.NoError(t, tx.Close())
	// Close released the handle; the wrapper is inert now.
	require.True(t, tx.IsNone())
	require.NoError(t, tx.Close())
}

func TestAbortLifecycle(t *testing.T) {
	cont := newTestContainer(t)
	tx, err := Open(cont)
	require.NoError(t, err)
	require.NoError(t, tx.Abort())
	require.ErrorIs(t, tx.Commit(), engine.ErrInvalid)
	require.NoError(t, tx.Close())
}

func TestNone(t *testing.T) {
	tx := None()
	require.True(t, tx.IsNone())
	require.True(t, tx.Handle().IsNil())
	require.ErrorIs(t, tx.Commit(), engine.ErrInvalid)
	require.ErrorIs(t, tx.Abort(), engine.ErrInvalid)
	require.NoError(t, tx.Close())
}

func TestContextLifecycle(t *testing.T) {
	cont := newTestContainer(t)
	ctx := context.Background()
	tx, err := OpenContext(ctx, cont)
	require.NoError(t, err)
	require.NoError(t, tx.CommitContext(ctx))
	require.NoError(t, tx.CloseContext(ctx))

	tx, err = OpenContext(ctx, cont)
	require.NoError(t, err)
	require.NoError(t, tx.AbortContext(ctx))
	require.NoError(t, tx.CloseContext(ctx))
}
