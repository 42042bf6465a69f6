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

// Package cacheddb wraps an ethdb.KeyValueStore with a fastcache read-through
// cache, the same role github.com/VictoriaMetrics/fastcache plays for
// go-ethereum's disk layer in core/state/snapshot/journal.go and
// disklayer_generate.go ("cache: fastcache.New(512 * 1024 * 1024)").
//
// Safe to put in front of any keyspace whose entries are immutable once
// written and only ever appended (never updated in place) — spec.md §3
// guarantees exactly that for every keyspace except room→state, so callers
// should wrap only the immutable keyspaces. roomstate.New does not wrap its
// store with one.
package cacheddb

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/federated-chat/roomstate/ethdb"
)

type Store struct {
	ethdb.KeyValueStore
	cache *fastcache.Cache

	hits, misses uint64
}

// New wraps db with an in-memory read cache of approximately sizeBytes.
func New(db ethdb.KeyValueStore, sizeBytes int) *Store {
	return &Store{
		KeyValueStore: db,
		cache:         fastcache.New(sizeBytes),
	}
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if v, ok := s.cache.HasGet(nil, key); ok {
		s.hits++
		return v, nil
	}
	s.misses++
	v, err := s.KeyValueStore.Get(key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, v)
	return v, nil
}

func (s *Store) Put(key, value []byte) error {
	if err := s.KeyValueStore.Put(key, value); err != nil {
		return err
	}
	s.cache.Set(key, value)
	return nil
}

// Efficiency reports cache hit/miss counters, the way the teacher's
// ethdb/relaydb.Database.Efficiency exposes its own hit/miss tally.
func (s *Store) Efficiency() (hits, misses uint64) { return s.hits, s.misses }
