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

package roomstate

import (
	"encoding/json"
	"strings"
	"sync"
	"unicode"

	"github.com/federated-chat/roomstate/ethdb"
	"github.com/federated-chat/roomstate/internal/elog"
	"github.com/federated-chat/roomstate/internal/errs"
	"github.com/federated-chat/roomstate/internal/schema"
	"github.com/federated-chat/roomstate/membershipcache"
	"github.com/federated-chat/roomstate/shortid"
	"github.com/federated-chat/roomstate/snapshot"
	"github.com/federated-chat/roomstate/statecompressor"
)

// Service is the per-room façade of spec.md §4.D, holding typed handles to
// every collaborator it drives instead of reaching through a service
// locator (spec.md §9).
type Service struct {
	db         ethdb.KeyValueStore // owns the room→state and event→state keyspaces
	short      *shortid.Registry
	snapshots  *snapshot.Store
	membership *membershipcache.Cache
	events     EventStore

	roomVersionMu    sync.Mutex
	roomVersionCache map[string]string // room id -> room_version, never invalidated (immutable)
}

// New constructs a Service over the given collaborators.
func New(db ethdb.KeyValueStore, short *shortid.Registry, snapshots *snapshot.Store, membership *membershipcache.Cache, events EventStore) *Service {
	return &Service{
		db:               db,
		short:            short,
		snapshots:        snapshots,
		membership:       membership,
		events:           events,
		roomVersionCache: make(map[string]string),
	}
}

// RoomPointer returns the current short-state-hash for roomID, or (0,
// false) if the room has no recorded state yet.
func (s *Service) RoomPointer(roomID string) (uint64, bool, error) {
	v, err := s.db.Get(schema.RoomToStateKey([]byte(roomID)))
	if err == ethdb.ErrNotFound {
		return 0, false, nil
	} else if err != nil {
		return 0, false, errs.StoreError("reading room pointer", err)
	}
	h, ok := schema.DecodeU64(v)
	if !ok {
		return 0, false, errs.BadDatabase("corrupt room pointer value")
	}
	return h, true, nil
}

// SetRoomPointer moves room_id's pointer to shortstatehash, independent of
// any membership-cache notification. Kept as its own exported operation
// because original_source's set_room_state is called directly by some
// callers without going through force_state (SPEC_FULL.md §D.1).
func (s *Service) SetRoomPointer(roomID string, shortStateHash uint64) error {
	if err := s.db.Put(schema.RoomToStateKey([]byte(roomID)), schema.EncodeU64(shortStateHash)); err != nil {
		return errs.StoreError("writing room pointer", err)
	}
	return nil
}

func (s *Service) recordEventState(shortEventID uint64, shortStateHash uint64) error {
	if err := s.db.Put(schema.EventToStateKey(shortEventID), schema.EncodeU64(shortStateHash)); err != nil {
		return errs.StoreError("writing event->state link", err)
	}
	return nil
}

// EventStateHash resolves the short-state-hash recorded for shortEventID —
// the room's state just before that event was applied.
func (s *Service) EventStateHash(shortEventID uint64) (uint64, error) {
	v, err := s.db.Get(schema.EventToStateKey(shortEventID))
	if err == ethdb.ErrNotFound {
		return 0, errs.NotFound("no event->state link for short-event-id")
	} else if err != nil {
		return 0, errs.StoreError("reading event->state link", err)
	}
	h, ok := schema.DecodeU64(v)
	if !ok {
		return 0, errs.BadDatabase("corrupt event->state link value")
	}
	return h, nil
}

// AppendToState implements spec.md §4.D "append_to_state". For a state
// event it returns the short-state-hash of the room's state after pdu; for
// a non-state event it returns the room's unchanged current
// short-state-hash.
func (s *Service) AppendToState(pdu *Event) (uint64, error) {
	sev, err := s.short.GetOrCreateShortEventID(pdu.EventID)
	if err != nil {
		return 0, err
	}

	prev, hasPrev, err := s.RoomPointer(pdu.RoomID)
	if err != nil {
		return 0, err
	}
	var prevHash uint64
	if hasPrev {
		prevHash = prev
	}
	// Record the pre-event state even for the room's very first event,
	// where prevHash is the 0 sentinel for "no state yet".
	if err := s.recordEventState(sev, prevHash); err != nil {
		return 0, err
	}

	if !pdu.IsState() {
		return prevHash, nil
	}

	ancestors, err := s.snapshots.LoadSnapshotInfo(prevHash)
	if err != nil {
		return 0, err
	}

	sk, err := s.short.GetOrCreateShortStateKey(pdu.Type, *pdu.StateKey)
	if err != nil {
		return 0, err
	}
	newBlob := statecompressor.Compress(sk, sev)

	var replaces *statecompressor.CompressedStateEvent
	if len(ancestors) > 0 {
		tip := ancestors[len(ancestors)-1]
		if existing, ok := tip.Full[newBlob.StateKeyPrefix()]; ok {
			replaces = &existing
		}
	}

	// Fast path: an identical redundant state event creates no new
	// snapshot (spec.md §4.D step 6, testable property 5).
	if replaces != nil && *replaces == newBlob {
		return prevHash, nil
	}

	// This snapshot's identity is positional (the monotonic counter), not
	// content-derived — it represents "the state after this specific
	// event". set_event_state below takes the opposite approach on
	// purpose; see SPEC_FULL.md §E.
	newHash, err := s.short.AllocateSnapshotID()
	if err != nil {
		return 0, err
	}

	added := []statecompressor.CompressedStateEvent{newBlob}
	var removed []statecompressor.CompressedStateEvent
	if replaces != nil {
		removed = []statecompressor.CompressedStateEvent{*replaces}
	}

	if err := s.snapshots.SaveStateFromDiff(newHash, added, removed, 2, ancestors); err != nil {
		return 0, err
	}
	return newHash, nil
}

// SetEventState implements spec.md §4.D "set_event_state": the entry point
// used when the full post-event state is already known (state resolution,
// federation join). Unlike AppendToState, the snapshot identity here is
// content-derived: identical state sets passed to SetEventState collapse
// onto the same short-state-hash, whichever event they are recorded for. A
// snapshot minted by AppendToState is never reused here, even when its
// content is the same.
func (s *Service) SetEventState(eventID, roomID string, stateIDsCompressed []statecompressor.CompressedStateEvent) error {
	sev, err := s.short.GetOrCreateShortEventID(eventID)
	if err != nil {
		return err
	}

	prevHash, hasPrev, err := s.RoomPointer(roomID)
	if err != nil {
		return err
	}

	digest := shortid.Digest(toArrays(stateIDsCompressed))
	shortHash, alreadyExisted, err := s.short.GetOrCreateShortStateHash(digest)
	if err != nil {
		return err
	}

	if !alreadyExisted {
		var ancestors []snapshot.AncestorInfo
		if hasPrev {
			ancestors, err = s.snapshots.LoadSnapshotInfo(prevHash)
			if err != nil {
				return err
			}
		}

		var added, removed []statecompressor.CompressedStateEvent
		if len(ancestors) > 0 {
			parentFull := ancestors[len(ancestors)-1].Full
			wanted := make(map[[8]byte]statecompressor.CompressedStateEvent, len(stateIDsCompressed))
			for _, b := range stateIDsCompressed {
				wanted[b.StateKeyPrefix()] = b
			}
			for k, b := range wanted {
				if old, ok := parentFull[k]; !ok || old != b {
					added = append(added, b)
					if ok {
						removed = append(removed, old)
					}
				}
			}
			for k, old := range parentFull {
				if _, ok := wanted[k]; !ok {
					removed = append(removed, old)
				}
			}
		} else {
			added = append([]statecompressor.CompressedStateEvent{}, stateIDsCompressed...)
		}

		// High diff_budget: this is an auxiliary snapshot, nothing is
		// expected to chain off it, so prefer storing flat/shallow
		// (spec.md §4.D "set_event_state").
		if err := s.snapshots.SaveStateFromDiff(shortHash, added, removed, 1_000_000, ancestors); err != nil {
			return err
		}
	}

	return s.recordEventState(sev, shortHash)
}

func toArrays(blobs []statecompressor.CompressedStateEvent) [][16]byte {
	out := make([][16]byte, len(blobs))
	for i, b := range blobs {
		out[i] = [16]byte(b)
	}
	return out
}

// parseUserID validates the `@localpart:server_name` structural shape of a
// Matrix user id, the Go stand-in for original_source's UserId::parse
// (spec.md §4.D step 4: "Parse the state-key as a user id; if parse fails,
// skip"). Only the sigil/separator shape and the absence of whitespace are
// checked, not the full grammar for legal localpart/server_name characters — this engine doesn't model
// Matrix identifier grammar beyond what force_state needs to decide
// skip-or-notify.
func parseUserID(s string) (string, error) {
	if len(s) < 3 || s[0] != '@' {
		return "", errs.BadRequest("state-key is not a user id: missing '@' sigil")
	}
	colon := strings.IndexByte(s, ':')
	if colon <= 1 {
		return "", errs.BadRequest("state-key is not a user id: empty localpart")
	}
	if colon == len(s)-1 {
		return "", errs.BadRequest("state-key is not a user id: empty server name")
	}
	if strings.IndexByte(s[colon+1:], ':') >= 0 {
		return "", errs.BadRequest("state-key is not a user id: more than one ':'")
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			return "", errs.BadRequest("state-key is not a user id: contains whitespace")
		}
	}
	return s, nil
}

// ForceState implements spec.md §4.D "force_state": moves the room pointer
// to shortStateHash and, for every membership state event in added, relays
// the new membership to the collaborator cache. Malformed rows are skipped
// silently (spec.md §7: "history replay must not stall").
func (s *Service) ForceState(roomID string, shortStateHash uint64, added []statecompressor.CompressedStateEvent) error {
	for _, blob := range added {
		_, sev := statecompressor.ParseFixed(blob)

		eventID, err := s.short.ShortEventIDToEventID(sev)
		if err != nil {
			elog.Debug("force_state: skipping unresolvable short-event-id", "short", sev, "err", err)
			continue
		}
		pdu, err := s.events.GetEvent(eventID)
		if err != nil {
			elog.Debug("force_state: skipping missing event", "event_id", eventID, "err", err)
			continue
		}
		if pdu.Type != "m.room.member" {
			continue
		}
		if pdu.StateKey == nil {
			continue
		}

		var extract struct {
			Membership string `json:"membership"`
		}
		if err := json.Unmarshal(pdu.Content, &extract); err != nil {
			elog.Debug("force_state: skipping unparsable membership content", "event_id", eventID, "err", err)
			continue
		}
		membership, err := membershipcache.ParseMembership(extract.Membership)
		if err != nil {
			elog.Debug("force_state: skipping invalid membership value", "event_id", eventID, "err", err)
			continue
		}

		userID, err := parseUserID(*pdu.StateKey)
		if err != nil {
			elog.Debug("force_state: skipping state-key that isn't a user id", "state_key", *pdu.StateKey, "err", err)
			continue
		}

		if err := s.membership.UpdateMembership(roomID, userID, membership, pdu.Sender, nil, false); err != nil {
			return err
		}
	}

	if err := s.membership.UpdateJoinedCount(roomID); err != nil {
		return err
	}

	return s.SetRoomPointer(roomID, shortStateHash)
}

// RoomStateGet implements spec.md §4.D "room_state_get": returns the
// current event for (eventType, stateKey) in roomID, or nil if absent.
func (s *Service) RoomStateGet(roomID, eventType, stateKey string) (*Event, error) {
	hash, hasPointer, err := s.RoomPointer(roomID)
	if err != nil {
		return nil, err
	}
	if !hasPointer {
		return nil, nil
	}

	full, err := s.snapshots.Flatten(hash)
	if err != nil {
		return nil, err
	}

	sk, err := s.short.GetOrCreateShortStateKey(eventType, stateKey)
	if err != nil {
		return nil, err
	}
	prefix := statecompressor.Compress(sk, 0).StateKeyPrefix()

	blob, ok := full[prefix]
	if !ok {
		return nil, nil
	}
	_, sev := statecompressor.ParseFixed(blob)
	eventID, err := s.short.ShortEventIDToEventID(sev)
	if err != nil {
		return nil, err
	}
	return s.events.GetEvent(eventID)
}

var inviteStateEventTypes = []string{
	"m.room.create",
	"m.room.join_rules",
	"m.room.canonical_alias",
	"m.room.avatar",
	"m.room.name",
}

// CalculateInviteState implements spec.md §4.D "calculate_invite_state":
// the ordered, gap-tolerant stripped-state bundle shown to an invitee.
func (s *Service) CalculateInviteState(invite *Event) ([]StrippedEvent, error) {
	var out []StrippedEvent
	for _, t := range inviteStateEventTypes {
		e, err := s.RoomStateGet(invite.RoomID, t, "")
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e.ToStripped())
		}
	}
	member, err := s.RoomStateGet(invite.RoomID, "m.room.member", invite.Sender)
	if err != nil {
		return nil, err
	}
	if member != nil {
		out = append(out, member.ToStripped())
	}
	out = append(out, invite.ToStripped())
	return out, nil
}

// GetRoomVersion implements spec.md §4.D "get_room_version". Results are
// cached per room id and never invalidated: a room's version is fixed at
// creation and never changes, the same immutability go-ethereum leans on
// to cache disk-layer reads without invalidation logic.
func (s *Service) GetRoomVersion(roomID string) (string, error) {
	s.roomVersionMu.Lock()
	if v, ok := s.roomVersionCache[roomID]; ok {
		s.roomVersionMu.Unlock()
		return v, nil
	}
	s.roomVersionMu.Unlock()

	create, err := s.RoomStateGet(roomID, "m.room.create", "")
	if err != nil {
		return "", err
	}
	if create == nil {
		return "", errs.BadDatabase("room has no m.room.create event")
	}

	var content struct {
		RoomVersion string `json:"room_version"`
	}
	if err := json.Unmarshal(create.Content, &content); err != nil || content.RoomVersion == "" {
		return "", errs.BadDatabase("invalid create event in db")
	}

	s.roomVersionMu.Lock()
	s.roomVersionCache[roomID] = content.RoomVersion
	s.roomVersionMu.Unlock()

	return content.RoomVersion, nil
}
