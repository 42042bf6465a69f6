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

// Package roomstate implements the room state service of spec.md §4.D: the
// per-room façade append_to_state/set_event_state/force_state/
// room_state_get/calculate_invite_state/get_room_version that drives the
// shortid/statecompressor/snapshot components and notifies the external
// membership cache. Grounded on original_source/src/service/rooms/state/
// mod.rs, restructured per spec.md §9's design note into explicit
// capability interfaces injected at construction, in the style the
// teacher's core/state/pruner.Pruner takes its collaborators
// (db, trie.Database) as constructor arguments rather than reaching
// through a global service locator.
package roomstate

import "encoding/json"

// Event is a minimal PDU: just the fields the state engine itself
// inspects. Signature/auth-rule fields live entirely in the out-of-scope
// authorization subsystem (spec.md §1) and aren't modeled here.
type Event struct {
	EventID  string
	RoomID   string
	Type     string
	StateKey *string // nil for non-state events
	Sender   string
	Content  json.RawMessage
}

// IsState reports whether this event carries a (type, state_key) pair.
func (e *Event) IsState() bool { return e.StateKey != nil }

// StrippedEvent is the redacted form of a state event shown to a user who
// has been invited to a room but hasn't joined it yet (GLOSSARY).
type StrippedEvent struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Sender   string          `json:"sender"`
	Content  json.RawMessage `json:"content"`
}

// ToStripped strips an event down to the fields a pre-join invitee may see.
func (e *Event) ToStripped() StrippedEvent {
	sk := ""
	if e.StateKey != nil {
		sk = *e.StateKey
	}
	return StrippedEvent{
		Type:     e.Type,
		StateKey: sk,
		Sender:   e.Sender,
		Content:  e.Content,
	}
}

// EventStore is the out-of-scope timeline collaborator (spec.md §1, §6):
// the room state service resolves short-event-ids back to full events
// through it. Grounded on the original's
// services().rooms.timeline.get_pdu_json call.
type EventStore interface {
	GetEvent(eventID string) (*Event, error)
}
