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

// Package statecompressor implements the pure, stateless 16-byte state
// event codec of spec.md §4.B. It plays the role the teacher's
// core/state/snapshot/account.go slim-encoding (AccountRLP/SlimToFull)
// plays for accounts: a fixed, reversible on-disk representation that lets
// set operations (difference, union, prefix iteration) work on opaque
// bytes.
package statecompressor

import (
	"encoding/binary"

	"github.com/federated-chat/roomstate/internal/errs"
)

// CompressedStateEvent is the 16-byte blob of spec.md §3: the big-endian
// concatenation of a short-state-key and a short-event-id. Kept as a fixed
// byte array (not a struct) so it remains directly usable as a map key, a
// set element, and a prefix-sortable byte string — see spec.md §9's note
// that any reimplementation must preserve prefix-ordered iteration.
type CompressedStateEvent [16]byte

// StateKeyPrefix returns the leading 8 bytes (the short-state-key),
// used to filter a snapshot's blob set by state-key (spec.md §4.B).
func (b CompressedStateEvent) StateKeyPrefix() [8]byte {
	var p [8]byte
	copy(p[:], b[:8])
	return p
}

// Compress encodes (shortStateKey, shortEventID) into a blob.
func Compress(shortStateKey, shortEventID uint64) CompressedStateEvent {
	var b CompressedStateEvent
	binary.BigEndian.PutUint64(b[0:8], shortStateKey)
	binary.BigEndian.PutUint64(b[8:16], shortEventID)
	return b
}

// Parse decodes a blob back into (shortStateKey, shortEventID). Fails if
// the length is not 16, satisfying spec.md §4.B's failure contract and
// testable property 1 (parse(compress(a,b)) = (a,b)).
func Parse(blob []byte) (shortStateKey, shortEventID uint64, err error) {
	if len(blob) != 16 {
		return 0, 0, errs.BadDatabase("compressed state event must be 16 bytes")
	}
	return binary.BigEndian.Uint64(blob[0:8]), binary.BigEndian.Uint64(blob[8:16]), nil
}

// ParseFixed is the zero-alloc counterpart of Parse for callers that
// already hold a CompressedStateEvent rather than a raw slice.
func ParseFixed(b CompressedStateEvent) (shortStateKey, shortEventID uint64) {
	return binary.BigEndian.Uint64(b[0:8]), binary.BigEndian.Uint64(b[8:16])
}
