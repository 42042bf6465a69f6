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

// Package leveldbdb implements ethdb.KeyValueStore on top of
// github.com/syndtr/goleveldb, the backend go-ethereum itself defaults to
// for on-disk chain/state data (see cmd/journaldump/main.go's
// rawdb.NewLevelDBDatabase call in the teacher repo).
package leveldbdb

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/federated-chat/roomstate/ethdb"
)

// Database wraps a goleveldb instance. CompareAndSwap is serialized through
// an in-process mutex: goleveldb has no native CAS, and the engine's
// concurrency model (spec.md §5) only requires linearizability among
// callers sharing one process, which a mutex around read-modify-write
// already provides.
type Database struct {
	db   *leveldb.DB
	casM sync.Mutex
}

// New opens (or creates) a LevelDB database at path.
func New(path string, cache int, handles int) (*Database, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error { return d.db.Close() }

func (d *Database) Has(key []byte) (bool, error) { return d.db.Has(key, nil) }

func (d *Database) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ethdb.ErrNotFound
	}
	return v, err
}

func (d *Database) Put(key, value []byte) error { return d.db.Put(key, value, nil) }

func (d *Database) Delete(key []byte) error { return d.db.Delete(key, nil) }

func (d *Database) CompareAndSwap(key []byte, oldValue, newValue []byte) (bool, error) {
	d.casM.Lock()
	defer d.casM.Unlock()

	cur, err := d.db.Get(key, nil)
	if err != nil && err != leveldb.ErrNotFound {
		return false, err
	}
	exists := err == nil
	if oldValue == nil {
		if exists {
			return false, nil
		}
	} else if !exists || string(cur) != string(oldValue) {
		return false, nil
	}
	if err := d.db.Put(key, newValue, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) NewBatch() ethdb.Batch { return &batch{db: d.db, b: new(leveldb.Batch)} }

func (d *Database) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	it := d.db.NewIterator(bytesPrefixRange(prefix, start), nil)
	return &iterator{it: it}
}

func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(append([]byte{}, prefix...), start...)
	return r
}

type iterator struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
		Error() error
	}
}

func (i *iterator) Next() bool    { return i.it.Next() }
func (i *iterator) Key() []byte   { return i.it.Key() }
func (i *iterator) Value() []byte { return i.it.Value() }
func (i *iterator) Release()      { i.it.Release() }
func (i *iterator) Error() error  { return i.it.Error() }

type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size++
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error { return b.db.Write(b.b, nil) }

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}
