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

// Package shortid assigns dense 64-bit surrogate ids to event ids and to
// (event-type, state-key) pairs (spec.md §3, §4.A). It is the Go
// restatement of the original_source's services().short collaborator
// (get_or_create_shorteventid, get_or_create_shortstatekey,
// get_or_create_shortstatehash in src/service/rooms/state/mod.rs),
// expressed as a facade over ethdb.KeyValueStore the way the teacher
// expresses its account/storage lookups as a facade over the same store
// contract (core/state/snapshot/snapshot.go's New/Snapshot/Update).
package shortid

import (
	"sort"
	"sync"

	"github.com/federated-chat/roomstate/ethdb"
	"github.com/federated-chat/roomstate/internal/errs"
	"github.com/federated-chat/roomstate/internal/schema"
)

// Registry is the bijective event-id/state-key/state-hash ↔ uint64 mapping
// of spec.md §3-4.A, plus the counter it allocates new ids from.
type Registry struct {
	db ethdb.KeyValueStore

	// allocLock serializes the read-then-write allocation sequence for every
	// keyspace this registry owns, satisfying spec.md §4.A's "the look up or
	// allocate step is atomic" within one process. Durable CAS on the
	// counter key guards against a second process racing the same counter.
	allocLock sync.Mutex
}

func New(db ethdb.KeyValueStore) *Registry {
	return &Registry{db: db}
}

// nextCount allocates the next value of the process-wide monotonic counter,
// the Go analogue of the original's services().globals.next_count(): a
// single atomic u64 persisted at the fixed `counter` key, advanced with a
// compare-and-set under the store's transactional primitive (spec.md §9).
func (r *Registry) nextCount() (uint64, error) {
	for {
		cur, err := r.db.Get(schema.KeyCounter)
		var curVal uint64
		var oldValue []byte
		switch {
		case err == nil:
			v, ok := schema.DecodeU64(cur)
			if !ok {
				return 0, errs.BadDatabase("corrupt counter value")
			}
			curVal = v
			oldValue = cur
		case err == ethdb.ErrNotFound:
			curVal = 0
			oldValue = nil
		default:
			return 0, errs.StoreError("reading counter", err)
		}
		next := curVal + 1
		ok, err := r.db.CompareAndSwap(schema.KeyCounter, oldValue, schema.EncodeU64(next))
		if err != nil {
			return 0, errs.StoreError("advancing counter", err)
		}
		if ok {
			return next, nil
		}
		// Lost the race to a concurrent allocator; retry with the fresh value.
	}
}

// GetOrCreateShortEventID returns the dense id for eventID, assigning a
// fresh one on first sight. Deterministic and idempotent (spec.md §4.A,
// testable property 2).
func (r *Registry) GetOrCreateShortEventID(eventID string) (uint64, error) {
	if eventID == "" {
		return 0, errs.BadRequest("empty event id")
	}
	r.allocLock.Lock()
	defer r.allocLock.Unlock()

	key := schema.EventIDToShortKey([]byte(eventID))
	if v, err := r.db.Get(key); err == nil {
		short, ok := schema.DecodeU64(v)
		if !ok {
			return 0, errs.BadDatabase("corrupt short-event-id value")
		}
		return short, nil
	} else if err != ethdb.ErrNotFound {
		return 0, errs.StoreError("reading eventid->short", err)
	}

	short, err := r.nextCount()
	if err != nil {
		return 0, err
	}
	batch := r.db.NewBatch()
	batch.Put(key, schema.EncodeU64(short))
	batch.Put(schema.ShortToEventIDKey(short), []byte(eventID))
	if err := batch.Write(); err != nil {
		return 0, errs.StoreError("persisting short-event-id", err)
	}
	return short, nil
}

// ShortEventIDToEventID resolves a previously assigned short-event-id back
// to its event id.
func (r *Registry) ShortEventIDToEventID(short uint64) (string, error) {
	v, err := r.db.Get(schema.ShortToEventIDKey(short))
	if err == ethdb.ErrNotFound {
		return "", errs.NotFound("short-event-id not found")
	} else if err != nil {
		return "", errs.StoreError("reading short->eventid", err)
	}
	return string(v), nil
}

// GetOrCreateShortStateKey returns the dense id for the (eventType,
// stateKey) pair, assigning a fresh one on first sight.
func (r *Registry) GetOrCreateShortStateKey(eventType, stateKey string) (uint64, error) {
	if eventType == "" {
		return 0, errs.BadRequest("empty event type")
	}
	r.allocLock.Lock()
	defer r.allocLock.Unlock()

	key := schema.StateKeyToShortKey(eventType, stateKey)
	if v, err := r.db.Get(key); err == nil {
		short, ok := schema.DecodeU64(v)
		if !ok {
			return 0, errs.BadDatabase("corrupt short-state-key value")
		}
		return short, nil
	} else if err != ethdb.ErrNotFound {
		return 0, errs.StoreError("reading statekey->short", err)
	}

	short, err := r.nextCount()
	if err != nil {
		return 0, err
	}
	batch := r.db.NewBatch()
	batch.Put(key, schema.EncodeU64(short))
	batch.Put(schema.ShortToStateKeyKey(short), schema.EncodeStateKeyValue(eventType, stateKey))
	if err := batch.Write(); err != nil {
		return 0, errs.StoreError("persisting short-state-key", err)
	}
	return short, nil
}

// ShortStateKeyToStateKey resolves a short-state-key back to its
// (eventType, stateKey) pair.
func (r *Registry) ShortStateKeyToStateKey(short uint64) (eventType, stateKey string, err error) {
	v, err := r.db.Get(schema.ShortToStateKeyKey(short))
	if err == ethdb.ErrNotFound {
		return "", "", errs.NotFound("short-state-key not found")
	} else if err != nil {
		return "", "", errs.StoreError("reading short->statekey", err)
	}
	t, k, ok := schema.DecodeStateKeyValue(v)
	if !ok {
		return "", "", errs.BadDatabase("corrupt short->statekey value")
	}
	return t, k, nil
}

// GetOrCreateShortStateHash returns the dense id for the content digest of
// a snapshot's sorted blob set, reporting whether it already existed.
// Exactly one concurrent caller observes alreadyExisted=false for a given
// digest (spec.md §4.A).
func (r *Registry) GetOrCreateShortStateHash(digest [32]byte) (short uint64, alreadyExisted bool, err error) {
	r.allocLock.Lock()
	defer r.allocLock.Unlock()

	key := schema.StateHashToShortKey(digest[:])
	if v, err := r.db.Get(key); err == nil {
		short, ok := schema.DecodeU64(v)
		if !ok {
			return 0, false, errs.BadDatabase("corrupt short-state-hash value")
		}
		return short, true, nil
	} else if err != ethdb.ErrNotFound {
		return 0, false, errs.StoreError("reading statehash->short", err)
	}

	short, err = r.nextCount()
	if err != nil {
		return 0, false, err
	}
	if err := r.db.Put(key, schema.EncodeU64(short)); err != nil {
		return 0, false, errs.StoreError("persisting short-state-hash", err)
	}
	return short, false, nil
}

// AllocateSnapshotID draws a fresh id from the same monotonic counter as
// the other keyspaces, for callers that mint a snapshot hash positionally
// rather than deriving it from content (spec.md §9's append_to_state path,
// as opposed to set_event_state's content-derived GetOrCreateShortStateHash).
func (r *Registry) AllocateSnapshotID() (uint64, error) {
	r.allocLock.Lock()
	defer r.allocLock.Unlock()
	return r.nextCount()
}

// Digest computes the 32-byte state-hash digest of spec.md §6 "State-hash
// digest": a collision-resistant hash over the blobs of a snapshot, sorted
// lexicographically and concatenated without separators. See
// blobdigest.go for the sha3-based implementation, grounded on the
// teacher's use of golang.org/x/crypto/sha3 in
// core/state/snapshot/account.go's converter.
func Digest(blobs [][16]byte) [32]byte {
	sorted := make([][16]byte, len(blobs))
	copy(sorted, blobs)
	sort.Slice(sorted, func(i, j int) bool {
		return lessBlob(sorted[i], sorted[j])
	})
	buf := make([]byte, 0, len(sorted)*16)
	for _, b := range sorted {
		buf = append(buf, b[:]...)
	}
	return digest(buf)
}

func lessBlob(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
