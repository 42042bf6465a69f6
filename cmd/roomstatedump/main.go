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

// Command roomstatedump exports or imports one room's snapshot chain to or
// from a portable file, the same role the teacher's cmd/journaldump plays
// for an account/storage diff-layer journal.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/federated-chat/roomstate/ethdb/leveldbdb"
	"github.com/federated-chat/roomstate/snapshot"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: roomstatedump [-db path] dump <short-state-hash> <out-file>\n")
	fmt.Fprintf(os.Stderr, "       roomstatedump [-db path] load <in-file>\n")
	flag.PrintDefaults()
}

func main() {
	dbPath := flag.String("db", "roomstate.db", "path to the LevelDB store")
	cache := flag.Int("cache", 64, "LevelDB cache size in MB")
	handles := flag.Int("handles", 256, "LevelDB file handle limit")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	db, err := leveldbdb.New(*dbPath, *cache, *handles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := snapshot.New(db, 256)
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing snapshot store: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "dump":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		hash, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid short-state-hash %q: %v\n", args[1], err)
			os.Exit(2)
		}
		f, err := os.Create(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := store.Dump(f, hash); err != nil {
			fmt.Fprintf(os.Stderr, "dumping snapshot chain: %v\n", err)
			os.Exit(1)
		}
	case "load":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		f, err := os.Open(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening input file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := store.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "loading snapshot chain: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}
