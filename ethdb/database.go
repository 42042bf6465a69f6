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

// Package ethdb defines the ordered key/value store contract the engine is
// built on (spec.md §6 "Underlying store contract"), in the shape of
// github.com/ethereum/go-ethereum/ethdb (see ethdb/relaydb/relaydb.go for the
// wrapping convention this mirrors).
package ethdb

import "errors"

// ErrNotFound is returned by Get/Reader.Get when the key is absent.
var ErrNotFound = errors.New("ethdb: not found")

// Reader wraps the has/get read side of the store.
type Reader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// Writer wraps the put/delete write side of the store.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Iterator iterates over a subset of a database's key/value pairs in
// prefix-then-binary-alphabetical order, per spec.md §6's
// "prefix-ordered iteration (iter_from(prefix, direction))".
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch buffers writes for an atomic, all-or-nothing commit, satisfying
// spec.md §6's "atomic batch writes across multiple keys".
type Batch interface {
	Writer
	ValueSize() int
	Write() error
	Reset()
}

// KeyValueStore is the full store contract the engine requires.
type KeyValueStore interface {
	Reader
	Writer
	Closer

	NewBatch() Batch

	// NewIterator creates an iterator over key/value pairs whose keys start
	// with prefix, beginning at the first key >= append(prefix, start...).
	NewIterator(prefix []byte, start []byte) Iterator

	// CompareAndSwap atomically sets key to newValue iff its current value
	// equals oldValue (nil oldValue means "key must be absent"). Backs the
	// counter allocation primitive of spec.md §6/§9.
	CompareAndSwap(key []byte, oldValue, newValue []byte) (bool, error)
}

type Closer interface {
	Close() error
}
