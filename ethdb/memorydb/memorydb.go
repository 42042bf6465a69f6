// Copyright 2018 The go-ethereum Authors
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

// Package memorydb implements ethdb.KeyValueStore on top of an in-process
// map, the same role github.com/ethereum/go-ethereum/ethdb/memorydb plays
// for go-ethereum (wrapped, e.g., by ethdb/relaydb.Database). Used in tests
// and by callers that don't need durability.
package memorydb

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/federated-chat/roomstate/ethdb"
)

var (
	errClosed   = errors.New("memorydb: closed")
	errNotFound = ethdb.ErrNotFound
)

// Database is an ephemeral key-value store ordered by binary-alphabetical
// key comparison.
type Database struct {
	lock sync.RWMutex
	db   map[string][]byte
}

// New returns a new, empty, in-memory key-value store.
func New() *Database {
	return &Database{db: make(map[string][]byte)}
}

func (d *Database) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.db = nil
	return nil
}

func (d *Database) Has(key []byte) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return false, errClosed
	}
	_, ok := d.db[string(key)]
	return ok, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.db == nil {
		return nil, errClosed
	}
	if v, ok := d.db[string(key)]; ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		return cp, nil
	}
	return nil, errNotFound
}

func (d *Database) Put(key, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return errClosed
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	d.db[string(key)] = cp
	return nil
}

func (d *Database) Delete(key []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return errClosed
	}
	delete(d.db, string(key))
	return nil
}

// CompareAndSwap implements ethdb.KeyValueStore's single-key atomic
// compare-and-set, used by the engine to allocate the monotonic counter.
func (d *Database) CompareAndSwap(key []byte, oldValue, newValue []byte) (bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.db == nil {
		return false, errClosed
	}
	cur, exists := d.db[string(key)]
	if oldValue == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(cur, oldValue) {
		return false, nil
	}
	cp := make([]byte, len(newValue))
	copy(cp, newValue)
	d.db[string(key)] = cp
	return true, nil
}

func (d *Database) NewBatch() ethdb.Batch {
	return &batch{db: d}
}

func (d *Database) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	d.lock.RLock()
	defer d.lock.RUnlock()

	seek := append(append([]byte{}, prefix...), start...)

	var keys []string
	for k := range d.db {
		if bytes.HasPrefix([]byte(k), prefix) && k >= string(seek) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = d.db[k]
	}
	return &iterator{keys: keys, values: values, index: -1}
}

type iterator struct {
	keys   []string
	values [][]byte
	index  int
}

func (it *iterator) Next() bool {
	it.index++
	return it.index < len(it.keys)
}

func (it *iterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.index])
}

func (it *iterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.values) {
		return nil
	}
	return it.values[it.index]
}

func (it *iterator) Release()     {}
func (it *iterator) Error() error { return nil }

type keyvalue struct {
	key    []byte
	value  []byte
	delete bool
}

// batch is a write-only batch that commits its writes in a single locked
// pass, mirroring ethdb/relaydb.Database's batching convention.
type batch struct {
	db     *Database
	writes []keyvalue
	size   int
}

func (b *batch) Put(key, value []byte) error {
	b.writes = append(b.writes, keyvalue{append([]byte{}, key...), append([]byte{}, value...), false})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.writes = append(b.writes, keyvalue{append([]byte{}, key...), nil, true})
	b.size++
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	if b.db.db == nil {
		return errClosed
	}
	for _, kv := range b.writes {
		if kv.delete {
			delete(b.db.db, string(kv.key))
		} else {
			b.db.db[string(kv.key)] = kv.value
		}
	}
	return nil
}

func (b *batch) Reset() {
	b.writes = b.writes[:0]
	b.size = 0
}
