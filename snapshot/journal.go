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

// Dump/Load mirror the teacher's core/state/snapshot/journal.go, which
// persists an entire diff hierarchy to a single file on clean shutdown
// instead of flattening it (so a subsequent restart doesn't lose the
// ability to reconstruct any still-referenced ancestor). Since every
// snapshot here is already durable in the main KV store the moment it's
// created, Dump/Load aren't load-bearing for correctness — they exist for
// operational tooling (cmd/roomstatedump) that wants a portable, compact
// export of one room's snapshot chain without walking the live store.
package snapshot

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"

	"github.com/federated-chat/roomstate/internal/errs"
)

// Dump writes h's ancestor chain (oldest first) to w, snappy-compressed the
// way go-ethereum compresses on-disk blobs throughout (freezer tables,
// snapshot journal). Each entry is `hash u64 BE || record bytes` length
// prefixed with a u32 BE record length.
func (s *Store) Dump(w io.Writer, h uint64) error {
	chain, err := s.LoadSnapshotInfo(h)
	if err != nil {
		return err
	}
	sw := snappy.NewBufferedWriter(w)
	defer sw.Close()

	for _, entry := range chain {
		rec, err := s.loadRecord(entry.Hash)
		if err != nil {
			return err
		}
		encoded := rec.encode()

		var hdr [12]byte
		binary.BigEndian.PutUint64(hdr[0:8], entry.Hash)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(encoded)))
		if _, err := sw.Write(hdr[:]); err != nil {
			return errs.StoreError("writing journal header", err)
		}
		if _, err := sw.Write(encoded); err != nil {
			return errs.StoreError("writing journal record", err)
		}
	}
	return sw.Flush()
}

// Load reads a chain previously written by Dump and replays it into the
// store via SaveStateFromDiff, rebuilding each entry's diff_budget as
// "never rebase" (a conservative choice for restored history: it avoids
// basing fresh children on data whose original budget is unknown).
func (s *Store) Load(r io.Reader) error {
	sr := snappy.NewReader(r)
	var ancestors []AncestorInfo

	for {
		var hdr [12]byte
		if _, err := io.ReadFull(sr, hdr[:]); err == io.EOF {
			break
		} else if err != nil {
			return errs.StoreError("reading journal header", err)
		}
		hash := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])

		buf := make([]byte, length)
		if _, err := io.ReadFull(sr, buf); err != nil {
			return errs.StoreError("reading journal record", err)
		}
		rec, err := decodeRecord(buf)
		if err != nil {
			return err
		}
		if err := s.SaveStateFromDiff(hash, rec.Added, rec.Removed, 1_000_000, ancestors); err != nil {
			return err
		}
		chain, err := s.LoadSnapshotInfo(hash)
		if err != nil {
			return err
		}
		ancestors = chain
	}
	return nil
}
