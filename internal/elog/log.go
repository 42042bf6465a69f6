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

// Package elog is a minimal structured, leveled logger in the shape of
// github.com/ethereum/go-ethereum/log: call sites pass a message followed by
// alternating key/value pairs, e.g. elog.Warn("failed to load snapshot", "err", err).
package elog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[Level]string{
	LevelCrit:  "CRIT",
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

var threshold int32 = int32(LevelInfo)

// SetLevel adjusts the minimum level that gets written out. Defaults to Info.
func SetLevel(lvl Level) {
	atomic.StoreInt32(&threshold, int32(lvl))
}

var std = log.New(os.Stderr, "", log.LstdFlags)

func write(lvl Level, msg string, ctx []interface{}) {
	if int32(lvl) > atomic.LoadInt32(&threshold) {
		return
	}
	var b strings.Builder
	b.WriteString(levelNames[lvl])
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", ctx[i], ctx[i+1])
	}
	if len(ctx)%2 == 1 {
		fmt.Fprintf(&b, " %v=%s", ctx[len(ctx)-1], "MISSING")
	}
	std.Print(b.String())
}

func Trace(msg string, ctx ...interface{}) { write(LevelTrace, msg, ctx) }
func Debug(msg string, ctx ...interface{}) { write(LevelDebug, msg, ctx) }
func Info(msg string, ctx ...interface{})  { write(LevelInfo, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { write(LevelWarn, msg, ctx) }
func Error(msg string, ctx ...interface{}) { write(LevelError, msg, ctx) }

// Crit logs at the highest level and then terminates the process, matching
// go-ethereum/log.Crit's behavior for unrecoverable invariant violations.
func Crit(msg string, ctx ...interface{}) {
	write(LevelCrit, msg, ctx)
	os.Exit(1)
}
