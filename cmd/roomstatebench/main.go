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

// Command roomstatebench drives append_to_state over a synthetic room of N
// state events and reports snapshot-chain shape (how many records ended up
// flat vs. diffed against a parent), the same kind of throughput/shape probe
// the teacher's cmd/analyzedump runs against disk-layer snapshots before
// trusting a flattening policy change.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/federated-chat/roomstate/ethdb"
	"github.com/federated-chat/roomstate/ethdb/memorydb"
	"github.com/federated-chat/roomstate/membershipcache"
	"github.com/federated-chat/roomstate/roomstate"
	"github.com/federated-chat/roomstate/shortid"
	"github.com/federated-chat/roomstate/snapshot"
)

// fakeEvents is an in-memory EventStore populated as events are appended, so
// ForceState-style replays can resolve short-event-ids back to events
// without a real timeline collaborator.
type fakeEvents struct {
	byID map[string]*roomstate.Event
}

func (f *fakeEvents) GetEvent(eventID string) (*roomstate.Event, error) {
	e, ok := f.byID[eventID]
	if !ok {
		return nil, ethdb.ErrNotFound
	}
	return e, nil
}

func main() {
	n := flag.Int("n", 10000, "number of synthetic state events to append")
	members := flag.Int("members", 200, "number of distinct m.room.member state keys cycled through")
	cacheSize := flag.Int("cache", 256, "snapshot ancestor-chain LRU size")
	flag.Parse()

	if *n <= 0 {
		fmt.Fprintln(os.Stderr, "n must be positive")
		os.Exit(2)
	}

	db := memorydb.New()
	defer db.Close()

	snapshots, err := snapshot.New(db, *cacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing snapshot store: %v\n", err)
		os.Exit(1)
	}
	events := &fakeEvents{byID: make(map[string]*roomstate.Event)}
	svc := roomstate.New(db, shortid.New(db), snapshots, membershipcache.New(), events)

	const roomID = "!bench:example.org"

	start := time.Now()
	var flat, diffed int
	for i := 0; i < *n; i++ {
		eventID := "$" + strconv.Itoa(i) + ":example.org"
		stateKey := strconv.Itoa(i % *members)
		e := &roomstate.Event{
			EventID:  eventID,
			RoomID:   roomID,
			Type:     "m.room.member",
			StateKey: &stateKey,
			Sender:   "@bencher:example.org",
			Content:  []byte(`{"membership":"join"}`),
		}
		events.byID[eventID] = e

		hash, err := svc.AppendToState(e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "append_to_state at i=%d: %v\n", i, err)
			os.Exit(1)
		}
		if err := svc.SetRoomPointer(roomID, hash); err != nil {
			fmt.Fprintf(os.Stderr, "advancing room pointer at i=%d: %v\n", i, err)
			os.Exit(1)
		}

		ancestors, err := snapshots.LoadSnapshotInfo(hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading snapshot info at i=%d: %v\n", i, err)
			os.Exit(1)
		}
		if len(ancestors) > 0 {
			tip := ancestors[len(ancestors)-1]
			if tip.Depth == 0 {
				flat++
			} else {
				diffed++
			}
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("appended %d events (%d distinct member keys) in %s (%.1f events/sec)\n",
		*n, *members, elapsed, float64(*n)/elapsed.Seconds())
	fmt.Printf("snapshot chain shape: %d flat, %d diffed (threshold=%d)\n",
		flat, diffed, snapshot.DepthThreshold)
}
