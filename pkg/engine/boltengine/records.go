// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package boltengine

import (
	"encoding/binary"
	"fmt"

	"github.com/quarrystore/quarry-go/pkg/engine"
	"go.etcd.io/bbolt"
)

// OID format bits stamped by GenerateOID, all inside the reserved top 32 bits
// of Hi: 4 version bits at the top, 16 class bits below them.
const (
	oidFmtVer        = 1
	oidFmtVerShift   = 60
	oidFmtClassShift = 44
)

func stampOID(id engine.ObjectID, class engine.ObjectClass) engine.ObjectID {
	id.Hi |= uint64(oidFmtVer)<<oidFmtVerShift | uint64(class)<<oidFmtClassShift
	return id
}

func rootKey(i int) []byte {
	return []byte(fmt.Sprintf("root%d", i))
}

func encodeOID(id engine.ObjectID) []byte {
	raw := make([]byte, 16)
	binary.BigEndian.PutUint64(raw[:8], id.Hi)
	binary.BigEndian.PutUint64(raw[8:], id.Lo)
	return raw
}

func decodeOID(raw []byte) engine.ObjectID {
	return engine.ObjectID{
		Hi: binary.BigEndian.Uint64(raw[:8]),
		Lo: binary.BigEndian.Uint64(raw[8:]),
	}
}

// Record keys are dkey length-prefixed so dkey/akey pairs group by dkey and a
// dkey prefix scan finds every akey under it.
func dkeyPrefix(dkey []byte) []byte {
	p := make([]byte, 4, 4+len(dkey))
	binary.BigEndian.PutUint32(p, uint32(len(dkey)))
	return append(p, dkey...)
}

func recordKey(dkey, akey []byte) []byte {
	return append(dkeyPrefix(dkey), akey...)
}

func dkeyOfRecord(rk []byte) []byte {
	n := binary.BigEndian.Uint32(rk[:4])
	return rk[4 : 4+n]
}

// Record values carry the commit sequence that last wrote them ahead of the
// payload; optimistic validation compares it at commit time.
func encodeRecord(version uint64, payload []byte) []byte {
	raw := make([]byte, 8, 8+len(payload))
	binary.LittleEndian.PutUint64(raw, version)
	return append(raw, payload...)
}

func decodeRecord(raw []byte) (uint64, []byte) {
	return binary.LittleEndian.Uint64(raw[:8]), raw[8:]
}

func objBucket(btx *bbolt.Tx, objKey []byte) *bbolt.Bucket {
	return btx.Bucket(bucketObjects).Bucket(objKey)
}

func getRecord(btx *bbolt.Tx, objKey, rk []byte) (version uint64, payload []byte, ok bool) {
	b := objBucket(btx, objKey)
	if b == nil {
		return 0, nil, false
	}
	raw := b.Get(rk)
	if raw == nil {
		return 0, nil, false
	}
	version, payload = decodeRecord(raw)
	return version, payload, true
}

func putRecord(btx *bbolt.Tx, objKey, rk []byte, version uint64, payload []byte) error {
	b, err := btx.Bucket(bucketObjects).CreateBucketIfNotExists(objKey)
	if err != nil {
		return err
	}
	return b.Put(rk, encodeRecord(version, payload))
}

// bumpSeq advances the pool-wide commit sequence and returns the new value.
// Versions written by distinct commits are always distinct, so a record
// deleted and recreated can never echo a version a reader saw before.
func bumpSeq(btx *bbolt.Tx) (uint64, error) {
	meta := btx.Bucket(bucketMeta)
	seq := uint64(0)
	if raw := meta.Get(keySeq); raw != nil {
		seq = binary.LittleEndian.Uint64(raw)
	}
	seq++
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, seq)
	return seq, meta.Put(keySeq, raw)
}
