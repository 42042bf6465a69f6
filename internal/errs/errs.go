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

// Package errs implements the error-kind taxonomy this engine propagates,
// mirroring go-ethereum's practice of small exported sentinel/typed errors
// (ErrSnapshotStale, ErrNotCoveredYet in core/state/snapshot/snapshot.go)
// rather than a general exception hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether to retry, surface to
// an operator, or treat a lookup as a semantic absence.
type Kind int

const (
	// KindBadRequest marks malformed input: empty event-id, malformed type.
	// Never allocates a short-id; reported straight back to the caller.
	KindBadRequest Kind = iota
	// KindBadDatabase marks a stored value that violates a format invariant
	// (wrong length, unparsable id, a missing key that must exist). Never
	// swallowed; the affected key range is considered corrupt.
	KindBadDatabase
	// KindStoreError marks a failure of the underlying key/value store
	// (I/O, transient). Callers should retry with backoff.
	KindStoreError
	// KindNotFound marks an absent lookup result, surfaced only when
	// absence is semantically meaningful to the caller.
	KindNotFound
)

// Error is the engine's error type: a kind plus context.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, errs.NotFound("")) style checks against the kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func BadRequest(msg string) error { return &Error{Kind: KindBadRequest, msg: msg} }

func BadDatabase(msg string) error { return &Error{Kind: KindBadDatabase, msg: msg} }

func BadDatabasef(format string, args ...interface{}) error {
	return &Error{Kind: KindBadDatabase, msg: fmt.Sprintf(format, args...)}
}

func StoreError(msg string, err error) error {
	return &Error{Kind: KindStoreError, msg: msg, err: err}
}

func NotFound(msg string) error { return &Error{Kind: KindNotFound, msg: msg} }

// KindOf extracts the Kind of err if it is (or wraps) an *Error, reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Kind, true
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

func IsBadDatabase(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBadDatabase
}
