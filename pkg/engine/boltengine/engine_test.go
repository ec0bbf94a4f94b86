// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package boltengine

import (
	"fmt"
	"testing"
	"time"

	"github.com/quarrystore/quarry-go/lib/util/logger"
	"github.com/quarrystore/quarry-go/pkg/engine"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, dataDir string) *Engine {
	lg, _ := logger.CreateLoggerForTest(t)
	e := New(lg.Named("engine"), dataDir)
	require.NoError(t, e.Init())
	t.Cleanup(func() {
		_ = e.Fini()
	})
	return e
}

func openTestContainer(t *testing.T, e *Engine) (engine.Handle, engine.Handle) {
	poh, err := e.PoolConnect("pool1")
	require.NoError(t, err)
	coh, err := e.ContOpen(poh, "cont1")
	require.NoError(t, err)
	return poh, coh
}

func contRoots(t *testing.T, e *Engine, coh engine.Handle) [4]engine.ObjectID {
	var req engine.ContQueryRequest
	require.NoError(t, e.ContQuery(coh, &req, engine.NilHandle))
	return req.Info.Roots
}

func openTestObject(t *testing.T, e *Engine, coh engine.Handle) engine.Handle {
	oh, err := e.ObjOpen(coh, contRoots(t, e, coh)[1], false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.ObjClose(oh)
	})
	return oh
}

func TestInitTwice(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	require.ErrorIs(t, e.Init(), engine.ErrInvalid)
}

func TestPoolLifecycle(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, err := e.PoolConnect("")
	require.ErrorIs(t, err, engine.ErrInvalid)

	poh, err := e.PoolConnect("pool1")
	require.NoError(t, err)
	require.NoError(t, e.PoolDisconnect(poh))
	require.ErrorIs(t, e.PoolDisconnect(poh), engine.ErrNoHandle)
}

func TestConditionalWrites(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)

	dkey, akey := []byte("dkey"), []byte("akey")
	update := func(flags engine.CondFlag, data []byte) error {
		return e.ObjUpdate(oh, &engine.UpdateRequest{Flags: flags, DKey: dkey, AKey: akey, Data: data}, engine.NilHandle)
	}

	// Fetch of an absent record: plain fetch succeeds empty, conditional
	// fetch fails.
	var fetch engine.FetchRequest
	fetch = engine.FetchRequest{DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
	require.Nil(t, fetch.Data)
	fetch = engine.FetchRequest{Flags: engine.CondFetch, DKey: dkey, AKey: akey}
	require.ErrorIs(t, e.ObjFetch(oh, &fetch, engine.NilHandle), engine.ErrNoExist)

	require.ErrorIs(t, update(engine.CondUpdate, []byte("v0")), engine.ErrNoExist)
	require.NoError(t, update(engine.CondInsert, []byte("v1")))
	require.ErrorIs(t, update(engine.CondInsert, []byte("v2")), engine.ErrExist)
	require.NoError(t, update(engine.CondUpdate, []byte("v3")))

	fetch = engine.FetchRequest{Flags: engine.CondFetch, DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
	require.Equal(t, []byte("v3"), fetch.Data)

	fetch = engine.FetchRequest{DKey: dkey, AKey: akey, MaxSize: 1}
	require.ErrorIs(t, e.ObjFetch(oh, &fetch, engine.NilHandle), engine.ErrTruncated)
}

func TestReadOnlyObject(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh, err := e.ObjOpen(coh, contRoots(t, e, coh)[1], true)
	require.NoError(t, err)
	err = e.ObjUpdate(oh, &engine.UpdateRequest{DKey: []byte("d"), AKey: []byte("a"), Data: []byte("x")}, engine.NilHandle)
	require.ErrorIs(t, err, engine.ErrInvalid)
	require.NoError(t, e.ObjClose(oh))
}

func openTx(t *testing.T, e *Engine, coh engine.Handle) engine.Handle {
	var req engine.TxOpenRequest
	require.NoError(t, e.TxOpen(coh, &req, engine.NilHandle))
	return req.Tx
}

func TestTxOverlay(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	txh := openTx(t, e, coh)
	dkey, akey := []byte("d"), []byte("a")

	err := e.ObjUpdate(oh, &engine.UpdateRequest{Tx: txh, DKey: dkey, AKey: akey, Data: []byte("draft")}, engine.NilHandle)
	require.NoError(t, err)

	// The write is visible inside the transaction but not outside it.
	fetch := engine.FetchRequest{Tx: txh, DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
	require.Equal(t, []byte("draft"), fetch.Data)
	fetch = engine.FetchRequest{DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
	require.Nil(t, fetch.Data)

	require.NoError(t, e.TxCommit(txh, engine.NilHandle))
	require.NoError(t, e.TxClose(txh, engine.NilHandle))

	fetch = engine.FetchRequest{DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
	require.Equal(t, []byte("draft"), fetch.Data)
}

func TestTxConflict(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	dkey, akey := []byte("counter"), []byte{0}
	err := e.ObjUpdate(oh, &engine.UpdateRequest{DKey: dkey, AKey: akey, Data: []byte("0")}, engine.NilHandle)
	require.NoError(t, err)

	tx1 := openTx(t, e, coh)
	tx2 := openTx(t, e, coh)
	for _, txh := range []engine.Handle{tx1, tx2} {
		fetch := engine.FetchRequest{Tx: txh, Flags: engine.CondFetch, DKey: dkey, AKey: akey}
		require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))
		err = e.ObjUpdate(oh, &engine.UpdateRequest{Tx: txh, Flags: engine.CondUpdate, DKey: dkey, AKey: akey, Data: []byte("1")}, engine.NilHandle)
		require.NoError(t, err)
	}

	require.NoError(t, e.TxCommit(tx1, engine.NilHandle))
	// The second transaction read a version that has moved.
	require.ErrorIs(t, e.TxCommit(tx2, engine.NilHandle), engine.ErrTxRestart)

	require.NoError(t, e.TxAbort(tx2, engine.NilHandle))
	require.NoError(t, e.TxClose(tx2, engine.NilHandle))
	require.NoError(t, e.TxClose(tx1, engine.NilHandle))
}

func TestTxConflictOnRecreate(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	dkey, akey := []byte("d"), []byte("a")
	err := e.ObjUpdate(oh, &engine.UpdateRequest{DKey: dkey, AKey: akey, Data: []byte("old")}, engine.NilHandle)
	require.NoError(t, err)

	txh := openTx(t, e, coh)
	fetch := engine.FetchRequest{Tx: txh, DKey: dkey, AKey: akey}
	require.NoError(t, e.ObjFetch(oh, &fetch, engine.NilHandle))

	// Delete and recreate the record outside the transaction. The fresh
	// version must still fail the reader's validation.
	require.NoError(t, e.ObjPunch(oh, &engine.PunchRequest{DKey: dkey}, engine.NilHandle))
	err = e.ObjUpdate(oh, &engine.UpdateRequest{DKey: dkey, AKey: akey, Data: []byte("new")}, engine.NilHandle)
	require.NoError(t, err)

	err = e.ObjUpdate(oh, &engine.UpdateRequest{Tx: txh, DKey: dkey, AKey: akey, Data: []byte("stale")}, engine.NilHandle)
	require.NoError(t, err)
	require.ErrorIs(t, e.TxCommit(txh, engine.NilHandle), engine.ErrTxRestart)
	require.NoError(t, e.TxAbort(txh, engine.NilHandle))
	require.NoError(t, e.TxClose(txh, engine.NilHandle))
}

func TestPunch(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	dkey := []byte("d")
	for i := 0; i < 3; i++ {
		akey := []byte{byte(i)}
		err := e.ObjUpdate(oh, &engine.UpdateRequest{DKey: dkey, AKey: akey, Data: []byte("v")}, engine.NilHandle)
		require.NoError(t, err)
	}

	require.NoError(t, e.ObjPunch(oh, &engine.PunchRequest{Flags: engine.CondPunch, DKey: dkey}, engine.NilHandle))
	for i := 0; i < 3; i++ {
		fetch := engine.FetchRequest{Flags: engine.CondFetch, DKey: dkey, AKey: []byte{byte(i)}}
		require.ErrorIs(t, e.ObjFetch(oh, &fetch, engine.NilHandle), engine.ErrNoExist)
	}
	err := e.ObjPunch(oh, &engine.PunchRequest{Flags: engine.CondPunch, DKey: dkey}, engine.NilHandle)
	require.ErrorIs(t, err, engine.ErrNoExist)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	lg, _ := logger.CreateLoggerForTest(t)

	e := New(lg.Named("engine1"), dir)
	require.NoError(t, e.Init())
	_, coh := openTestContainer(t, e)
	info1 := func() engine.ContInfo {
		var req engine.ContQueryRequest
		require.NoError(t, e.ContQuery(coh, &req, engine.NilHandle))
		return req.Info
	}()
	oh, err := e.ObjOpen(coh, info1.Roots[1], false)
	require.NoError(t, err)
	err = e.ObjUpdate(oh, &engine.UpdateRequest{DKey: []byte("d"), AKey: []byte("a"), Data: []byte("survives")}, engine.NilHandle)
	require.NoError(t, err)
	require.NoError(t, e.Fini())

	e2 := newTestEngine(t, dir)
	_, coh2 := openTestContainer(t, e2)
	var req engine.ContQueryRequest
	require.NoError(t, e2.ContQuery(coh2, &req, engine.NilHandle))
	require.Equal(t, info1.UUID, req.Info.UUID)
	require.Equal(t, info1.Roots, req.Info.Roots)

	oh2, err := e2.ObjOpen(coh2, req.Info.Roots[1], true)
	require.NoError(t, err)
	fetch := engine.FetchRequest{Flags: engine.CondFetch, DKey: []byte("d"), AKey: []byte("a")}
	require.NoError(t, e2.ObjFetch(oh2, &fetch, engine.NilHandle))
	require.Equal(t, []byte("survives"), fetch.Data)
}

func TestListKeysAnchor(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	want := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		dkey := []byte(fmt.Sprintf("key%02d", i))
		want = append(want, string(dkey))
		// Several akeys per dkey; enumeration still yields each dkey once.
		for j := 0; j < 2; j++ {
			err := e.ObjUpdate(oh, &engine.UpdateRequest{DKey: dkey, AKey: []byte{byte(j)}, Data: []byte("v")}, engine.NilHandle)
			require.NoError(t, err)
		}
	}

	var got []string
	anchor := engine.Anchor{}
	for !anchor.EOF {
		req := engine.ListKeysRequest{Anchor: &anchor, MaxKeys: 3}
		require.NoError(t, e.ObjListKeys(oh, &req, engine.NilHandle))
		for _, k := range req.Keys {
			got = append(got, string(k))
		}
	}
	require.Equal(t, want, got)
}

func TestExtents(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)
	dkey, akey := []byte("blob"), []byte{0}

	err := e.ObjWriteAt(oh, &engine.WriteRequest{DKey: dkey, AKey: akey, Offset: 4, Data: []byte("data")}, engine.NilHandle)
	require.NoError(t, err)

	// The gap before the extent reads back as zeros.
	read := engine.ReadRequest{DKey: dkey, AKey: akey, Buf: make([]byte, 16)}
	require.NoError(t, e.ObjReadAt(oh, &read, engine.NilHandle))
	require.Equal(t, 8, read.Size)
	require.Equal(t, append(make([]byte, 4), []byte("data")...), read.Buf[:read.Size])

	read = engine.ReadRequest{DKey: dkey, AKey: akey, Offset: 6, Buf: make([]byte, 16)}
	require.NoError(t, e.ObjReadAt(oh, &read, engine.NilHandle))
	require.Equal(t, []byte("ta"), read.Buf[:read.Size])

	read = engine.ReadRequest{DKey: dkey, AKey: akey, Offset: 100, Buf: make([]byte, 16)}
	require.NoError(t, e.ObjReadAt(oh, &read, engine.NilHandle))
	require.Equal(t, 0, read.Size)

	// Overwrite inside the extent keeps the tail.
	err = e.ObjWriteAt(oh, &engine.WriteRequest{DKey: dkey, AKey: akey, Offset: 4, Data: []byte("DA")}, engine.NilHandle)
	require.NoError(t, err)
	read = engine.ReadRequest{DKey: dkey, AKey: akey, Offset: 4, Buf: make([]byte, 4)}
	require.NoError(t, e.ObjReadAt(oh, &read, engine.NilHandle))
	require.Equal(t, []byte("DAta"), read.Buf[:read.Size])
}

func TestGenerateOID(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)

	id, err := e.GenerateOID(coh, engine.ObjectID{Lo: 42}, engine.ClassByteArray)
	require.NoError(t, err)
	require.EqualValues(t, 42, id.Lo)
	require.NotZero(t, id.Hi)

	// The reserved bits must be clear on input.
	_, err = e.GenerateOID(coh, id, engine.ClassByteArray)
	require.ErrorIs(t, err, engine.ErrInvalid)
}

func TestAsyncCompletion(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)

	eqh, err := e.EqCreate()
	require.NoError(t, err)
	evh, err := e.EventInit(eqh)
	require.NoError(t, err)
	codes := make(chan engine.Code, 1)
	require.NoError(t, e.EventRegister(evh, func(code engine.Code) {
		codes <- code
	}))

	err = e.ObjUpdate(oh, &engine.UpdateRequest{Flags: engine.CondInsert, DKey: []byte("d"), AKey: []byte("a"), Data: []byte("v")}, evh)
	require.NoError(t, err)

	n := 0
	for n == 0 {
		n, err = e.EqPoll(eqh, 100*time.Millisecond, 10)
		require.NoError(t, err)
	}
	require.Equal(t, 1, n)
	require.Equal(t, engine.CodeSuccess, <-codes)

	done, err := e.EventTest(evh)
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, e.EventFini(evh))
	require.NoError(t, e.EqDestroy(eqh))
}

func TestEqDestroyDiscardsInFlight(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	_, coh := openTestContainer(t, e)
	oh := openTestObject(t, e, coh)

	eqh, err := e.EqCreate()
	require.NoError(t, err)
	evh, err := e.EventInit(eqh)
	require.NoError(t, err)
	require.NoError(t, e.EventRegister(evh, func(engine.Code) {
		t.Error("discarded completion must not be delivered")
	}))

	err = e.ObjUpdate(oh, &engine.UpdateRequest{DKey: []byte("d"), AKey: []byte("a"), Data: []byte("v")}, evh)
	require.NoError(t, err)
	require.NoError(t, e.EqDestroy(eqh))

	// Destroying released the event whether or not its completion had
	// already arrived.
	require.Eventually(t, func() bool {
		return e.EventFini(evh) == nil
	}, 3*time.Second, 10*time.Millisecond)

	_, err = e.EqPoll(eqh, time.Millisecond, 1)
	require.ErrorIs(t, err, engine.ErrNoHandle)
}
