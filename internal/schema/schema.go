// Copyright 2019 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package schema centralizes the on-disk key layout (spec.md §6 "Persisted
// layout"), the way github.com/ethereum/go-ethereum/core/rawdb centralizes
// key-prefix construction and table byte layouts for the rest of
// go-ethereum (see core/rawdb/freezer_table.go's prefix/offset conventions
// in the teacher repo).
package schema

import "encoding/binary"

// Key prefixes for each logical keyspace of spec.md §6's table. Composite
// keys below the statekey prefixes use 0xFF as a separator, since valid
// event types and state keys never contain it.
var (
	prefixEventIDToShort   = []byte("e2s")
	prefixShortToEventID   = []byte("s2e")
	prefixStateKeyToShort  = []byte("k2s")
	prefixShortToStateKey  = []byte("s2k")
	prefixStateHashToShort = []byte("h2s")
	prefixSnapshot         = []byte("snp")
	prefixEventToState     = []byte("e2h")
	prefixRoomToState      = []byte("r2h")

	KeyCounter = []byte("cnt")
)

const sep = 0xFF

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func EventIDToShortKey(eventID []byte) []byte {
	return concat(prefixEventIDToShort, eventID)
}

func ShortToEventIDKey(short uint64) []byte {
	return concat(prefixShortToEventID, be64(short))
}

// StateKeyToShortKey builds the `type` ‖ 0xFF ‖ `state_key` composite key.
func StateKeyToShortKey(eventType, stateKey string) []byte {
	return concat(prefixStateKeyToShort, []byte(eventType), []byte{sep}, []byte(stateKey))
}

func ShortToStateKeyKey(short uint64) []byte {
	return concat(prefixShortToStateKey, be64(short))
}

// EncodeStateKeyValue encodes the `type ‖ 0xFF ‖ state_key` value stored
// under the short→statekey keyspace.
func EncodeStateKeyValue(eventType, stateKey string) []byte {
	return concat([]byte(eventType), []byte{sep}, []byte(stateKey))
}

// DecodeStateKeyValue splits a `type ‖ 0xFF ‖ state_key` value back apart.
func DecodeStateKeyValue(v []byte) (eventType, stateKey string, ok bool) {
	idx := -1
	for i, b := range v {
		if b == sep {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", false
	}
	return string(v[:idx]), string(v[idx+1:]), true
}

func StateHashToShortKey(digest []byte) []byte {
	return concat(prefixStateHashToShort, digest)
}

func SnapshotKey(shortStateHash uint64) []byte {
	return concat(prefixSnapshot, be64(shortStateHash))
}

func EventToStateKey(shortEventID uint64) []byte {
	return concat(prefixEventToState, be64(shortEventID))
}

func RoomToStateKey(roomID []byte) []byte {
	return concat(prefixRoomToState, roomID)
}

// EncodeU64/DecodeU64 are the fixed-width codecs every short-id value in the
// registry keyspaces uses.
func EncodeU64(v uint64) []byte { return be64(v) }

func DecodeU64(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
