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

// Package snapshot persists room-state snapshots as layered diffs (spec.md
// §4.C "Snapshot Layer"). It is the restatement, over a plain ordered KV
// store, of the teacher's diff-layer-over-disk-layer design in
// core/state/snapshot/{snapshot,difflayer}.go: a snapshot is either a full
// materialized set (the teacher's disk layer) or a diff against a parent
// (the teacher's diffLayer), and Tree.Cap's memory/layer-count flattening
// policy becomes save_state_from_diff's depth/diff_budget policy.
//
// Unlike the teacher, every snapshot here is durably written the moment
// it's created (spec.md §3: "append-only and immutable") — there is no
// separate in-memory layer that later gets capped down to disk, because
// the room-state engine has no equivalent of chain reorgs deep enough to
// discard a recent snapshot outright.
package snapshot

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/federated-chat/roomstate/ethdb"
	"github.com/federated-chat/roomstate/internal/elog"
	"github.com/federated-chat/roomstate/internal/errs"
	"github.com/federated-chat/roomstate/internal/schema"
	"github.com/federated-chat/roomstate/statecompressor"
)

// DepthThreshold is the default unbroken-diff-chain length beyond which a
// snapshot is stored flat regardless of diff_budget (spec.md §4.C).
const DepthThreshold = 100

// AncestorInfo is one element of the chain load_snapshot_info returns:
// a snapshot paired with its own materialized set (spec.md §4.C).
type AncestorInfo struct {
	Hash    uint64
	Depth   uint32
	Full    map[[8]byte]statecompressor.CompressedStateEvent
	Added   []statecompressor.CompressedStateEvent
	Removed []statecompressor.CompressedStateEvent
}

// Store is the snapshot layer's handle on the underlying key/value store.
// load_snapshot_info results are memoized in a bounded LRU keyed by
// short-state-hash, per spec.md §4.C's "Results may be cached in a bounded
// LRU keyed by h" — the cache never needs invalidation because snapshot
// records are immutable once written (spec.md §5).
type Store struct {
	db    ethdb.KeyValueStore
	chain *lru.Cache

	mu sync.Mutex // serializes writes of a single new record (read-check-write)
}

// New constructs a Store backed by db, with a chain cache holding up to
// cacheSize entries.
func New(db ethdb.KeyValueStore, cacheSize int) (*Store, error) {
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, chain: c}, nil
}

func (s *Store) loadRecord(h uint64) (*record, error) {
	v, err := s.db.Get(schema.SnapshotKey(h))
	if err == ethdb.ErrNotFound {
		return nil, errs.NotFound("snapshot not found")
	} else if err != nil {
		return nil, errs.StoreError("reading snapshot record", err)
	}
	return decodeRecord(v)
}

// LoadSnapshotInfo returns h's ancestor chain, oldest first, each paired
// with its materialized set (spec.md §4.C). h==0 (no snapshot yet) yields
// an empty chain. Memoized per-hash in the bounded LRU cache; a cache hit
// on an intermediate ancestor short-circuits the walk.
func (s *Store) LoadSnapshotInfo(h uint64) ([]AncestorInfo, error) {
	if h == 0 {
		return nil, nil
	}
	if cached, ok := s.chain.Get(h); ok {
		return cached.([]AncestorInfo), nil
	}

	rec, err := s.loadRecord(h)
	if err != nil {
		return nil, err
	}

	var chain []AncestorInfo
	if rec.Parent == 0 {
		full := make(map[[8]byte]statecompressor.CompressedStateEvent, len(rec.Added))
		for _, b := range rec.Added {
			full[b.StateKeyPrefix()] = b
		}
		chain = []AncestorInfo{{Hash: h, Depth: rec.Depth, Full: full, Added: rec.Added, Removed: rec.Removed}}
	} else {
		parentChain, err := s.LoadSnapshotInfo(rec.Parent)
		if err != nil {
			return nil, err
		}
		if len(parentChain) == 0 {
			return nil, errs.BadDatabase("snapshot parent chain missing")
		}
		parentFull := parentChain[len(parentChain)-1].Full
		full, err := applyDiff(parentFull, rec.Added, rec.Removed)
		if err != nil {
			return nil, err
		}
		chain = make([]AncestorInfo, len(parentChain)+1)
		copy(chain, parentChain)
		chain[len(parentChain)] = AncestorInfo{Hash: h, Depth: rec.Depth, Full: full, Added: rec.Added, Removed: rec.Removed}
	}
	s.chain.Add(h, chain)
	return chain, nil
}

// Flatten returns the materialized blob set of snapshot h.
func (s *Store) Flatten(h uint64) (map[[8]byte]statecompressor.CompressedStateEvent, error) {
	if h == 0 {
		return map[[8]byte]statecompressor.CompressedStateEvent{}, nil
	}
	chain, err := s.LoadSnapshotInfo(h)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1].Full, nil
}

func applyDiff(
	parentFull map[[8]byte]statecompressor.CompressedStateEvent,
	added, removed []statecompressor.CompressedStateEvent,
) (map[[8]byte]statecompressor.CompressedStateEvent, error) {
	addedKeys := make(map[[8]byte]bool, len(added))
	for _, b := range added {
		k := b.StateKeyPrefix()
		if addedKeys[k] {
			return nil, errs.BadRequest("duplicate short-state-key in added set")
		}
		addedKeys[k] = true
	}
	removedKeys := make(map[[8]byte]bool, len(removed))
	for _, b := range removed {
		k := b.StateKeyPrefix()
		if removedKeys[k] {
			return nil, errs.BadRequest("duplicate short-state-key in removed set")
		}
		if addedKeys[k] {
			return nil, errs.BadRequest("blob present in both added and removed")
		}
		removedKeys[k] = true
	}
	full := make(map[[8]byte]statecompressor.CompressedStateEvent, len(parentFull)+len(added))
	for k, v := range parentFull {
		full[k] = v
	}
	for _, b := range removed {
		k := b.StateKeyPrefix()
		if _, ok := full[k]; !ok {
			return nil, errs.BadRequest("removed blob not present in parent snapshot")
		}
		delete(full, k)
	}
	for _, b := range added {
		k := b.StateKeyPrefix()
		if _, ok := full[k]; ok {
			return nil, errs.BadRequest("added blob's state-key already present in parent snapshot")
		}
		full[k] = b
	}
	return full, nil
}

// SaveStateFromDiff persists a new snapshot under newHash, choosing between
// a diff record against ancestorChain's tip and a flat record per the
// policy of spec.md §4.C:
//
//  1. no parent (empty ancestorChain), or
//  2. the parent's depth already reached DepthThreshold, or
//  3. storing the diff would, amortized over diffBudget expected
//     descendants, cost more than storing flat (diffSize*diffBudget >= fullSize)
//
// newHash must not already have a record (snapshot records are append-only
// and immutable, spec.md §3).
func (s *Store) SaveStateFromDiff(
	newHash uint64,
	added, removed []statecompressor.CompressedStateEvent,
	diffBudget uint64,
	ancestorChain []AncestorInfo,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if has, err := s.db.Has(schema.SnapshotKey(newHash)); err != nil {
		return errs.StoreError("checking snapshot existence", err)
	} else if has {
		return errs.BadDatabase("snapshot record already exists for hash")
	}

	var parent *AncestorInfo
	if len(ancestorChain) > 0 {
		p := ancestorChain[len(ancestorChain)-1]
		parent = &p
	}
	var parentFull map[[8]byte]statecompressor.CompressedStateEvent
	if parent != nil {
		parentFull = parent.Full
	} else {
		parentFull = map[[8]byte]statecompressor.CompressedStateEvent{}
	}

	full, err := applyDiff(parentFull, added, removed)
	if err != nil {
		return err
	}

	diffSize := uint64(len(added) + len(removed))
	fullSize := uint64(len(full))

	storeFlat := parent == nil ||
		parent.Depth >= DepthThreshold ||
		diffSize*diffBudget >= fullSize

	var rec *record
	var chainEntry AncestorInfo
	if storeFlat {
		flatAdded := make([]statecompressor.CompressedStateEvent, 0, len(full))
		for _, b := range full {
			flatAdded = append(flatAdded, b)
		}
		flatAdded = sortBlobs(flatAdded)
		rec = &record{Parent: 0, Depth: 0, Added: flatAdded, Removed: nil}
		elog.Debug("storing flat snapshot", "hash", newHash, "size", len(flatAdded))
	} else {
		rec = &record{Parent: parent.Hash, Depth: parent.Depth + 1, Added: sortBlobs(added), Removed: sortBlobs(removed)}
		elog.Debug("storing diff snapshot", "hash", newHash, "parent", parent.Hash, "depth", rec.Depth)
	}
	chainEntry = AncestorInfo{Hash: newHash, Depth: rec.Depth, Full: full, Added: rec.Added, Removed: rec.Removed}

	if err := s.db.Put(schema.SnapshotKey(newHash), rec.encode()); err != nil {
		return errs.StoreError("writing snapshot record", err)
	}

	// A flat record starts its own chain, the same one LoadSnapshotInfo
	// rebuilds for it from disk.
	var newChain []AncestorInfo
	if storeFlat {
		newChain = []AncestorInfo{chainEntry}
	} else {
		newChain = make([]AncestorInfo, len(ancestorChain)+1)
		copy(newChain, ancestorChain)
		newChain[len(ancestorChain)] = chainEntry
	}
	s.chain.Add(newHash, newChain)

	return nil
}
