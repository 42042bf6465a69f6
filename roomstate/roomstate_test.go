package roomstate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/allegro/bigcache"
	"github.com/stretchr/testify/require"

	"github.com/federated-chat/roomstate/ethdb/memorydb"
	"github.com/federated-chat/roomstate/membershipcache"
	"github.com/federated-chat/roomstate/shortid"
	"github.com/federated-chat/roomstate/snapshot"
	"github.com/federated-chat/roomstate/statecompressor"
)

// fakeEventStore is an EventStore double standing in for the out-of-scope
// timeline collaborator, backed by a disposable bigcache.BigCache the way
// core/state/snapshot/snapshot_test.go backs its throwaway fixtures with one
// rather than a bare map.
type fakeEventStore struct {
	t     *testing.T
	cache *bigcache.BigCache
}

func newFakeEventStore(t *testing.T) *fakeEventStore {
	t.Helper()
	cache, err := bigcache.NewBigCache(bigcache.DefaultConfig(time.Minute))
	require.NoError(t, err)
	return &fakeEventStore{t: t, cache: cache}
}

func (f *fakeEventStore) add(e *Event) {
	f.t.Helper()
	b, err := json.Marshal(e)
	require.NoError(f.t, err)
	require.NoError(f.t, f.cache.Set(e.EventID, b))
}

func (f *fakeEventStore) GetEvent(eventID string) (*Event, error) {
	b, err := f.cache.Get(eventID)
	if err == bigcache.ErrEntryNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func stateKey(s string) *string { return &s }

func content(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newTestService(t *testing.T) (*Service, *fakeEventStore) {
	t.Helper()
	db := memorydb.New()
	short := shortid.New(db)
	snaps, err := snapshot.New(db, 64)
	require.NoError(t, err)
	events := newFakeEventStore(t)
	svc := New(db, short, snaps, membershipcache.New(), events)
	return svc, events
}

func TestAppendToStateNonStateEventLeavesPointerUnchanged(t *testing.T) {
	svc, events := newTestService(t)

	create := &Event{EventID: "$create", RoomID: "!room", Type: "m.room.create", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"room_version": "10"})}
	events.add(create)
	hashAfterCreate, err := svc.AppendToState(create)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", hashAfterCreate))

	msg := &Event{EventID: "$msg1", RoomID: "!room", Type: "m.room.message", Sender: "@alice:x"}
	events.add(msg)
	hashAfterMsg, err := svc.AppendToState(msg)
	require.NoError(t, err)
	require.Equal(t, hashAfterCreate, hashAfterMsg)
}

func TestAppendToStateBuildsChainAndIsQueryable(t *testing.T) {
	svc, events := newTestService(t)

	create := &Event{EventID: "$create", RoomID: "!room", Type: "m.room.create", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"room_version": "10"})}
	events.add(create)
	h1, err := svc.AppendToState(create)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h1))

	join := &Event{EventID: "$join", RoomID: "!room", Type: "m.room.member", StateKey: stateKey("@alice:x"), Sender: "@alice:x", Content: content(t, map[string]string{"membership": "join"})}
	events.add(join)
	h2, err := svc.AppendToState(join)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h2))
	require.NotEqual(t, h1, h2)

	got, err := svc.RoomStateGet("!room", "m.room.member", "@alice:x")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "$join", got.EventID)

	gotCreate, err := svc.RoomStateGet("!room", "m.room.create", "")
	require.NoError(t, err)
	require.NotNil(t, gotCreate)
	require.Equal(t, "$create", gotCreate.EventID)
}

func TestAppendToStateRedundantEventIsFastPathNoOp(t *testing.T) {
	svc, events := newTestService(t)

	nameV1 := &Event{EventID: "$name1", RoomID: "!room", Type: "m.room.name", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"name": "Party"})}
	events.add(nameV1)
	h1, err := svc.AppendToState(nameV1)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h1))

	// Re-appending the exact same (type, state_key, event_id) triple is
	// redundant: the blob is identical, so no new snapshot is minted.
	h2, err := svc.AppendToState(nameV1)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestSetEventStateIsContentDerivedAndDeduplicates(t *testing.T) {
	svc, events := newTestService(t)

	m1 := &Event{EventID: "$m1", RoomID: "!room", Type: "m.room.member", StateKey: stateKey("@a:x")}
	events.add(m1)
	blob, err := svc.short.GetOrCreateShortStateKey(m1.Type, *m1.StateKey)
	require.NoError(t, err)
	sev, err := svc.short.GetOrCreateShortEventID(m1.EventID)
	require.NoError(t, err)
	compressed := statecompressor.Compress(blob, sev)

	require.NoError(t, svc.SetEventState("$ev1", "!room", []statecompressor.CompressedStateEvent{compressed}))
	hash1, err := svc.EventStateHash(mustShort(t, svc, "$ev1"))
	require.NoError(t, err)

	require.NoError(t, svc.SetEventState("$ev2", "!room", []statecompressor.CompressedStateEvent{compressed}))
	hash2, err := svc.EventStateHash(mustShort(t, svc, "$ev2"))
	require.NoError(t, err)

	// Same content set via two different events collapses onto one hash.
	require.Equal(t, hash1, hash2)
}

func mustShort(t *testing.T, svc *Service, eventID string) uint64 {
	t.Helper()
	short, err := svc.short.GetOrCreateShortEventID(eventID)
	require.NoError(t, err)
	return short
}

func TestForceStateUpdatesMembershipAndPointer(t *testing.T) {
	svc, events := newTestService(t)

	join := &Event{EventID: "$join", RoomID: "!room", Type: "m.room.member", StateKey: stateKey("@alice:x"), Sender: "@alice:x", Content: content(t, map[string]string{"membership": "join"})}
	events.add(join)

	sk, err := svc.short.GetOrCreateShortStateKey(join.Type, *join.StateKey)
	require.NoError(t, err)
	sev, err := svc.short.GetOrCreateShortEventID(join.EventID)
	require.NoError(t, err)
	blob := statecompressor.Compress(sk, sev)

	require.NoError(t, svc.ForceState("!room", 99, []statecompressor.CompressedStateEvent{blob}))

	hash, has, err := svc.RoomPointer("!room")
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, uint64(99), hash)

	m, ok := svc.membership.MembershipOf("!room", "@alice:x")
	require.True(t, ok)
	require.Equal(t, membershipcache.Join, m)
	require.Equal(t, 1, svc.membership.JoinedCount("!room"))
}

func TestForceStateSkipsMalformedUserID(t *testing.T) {
	svc, events := newTestService(t)

	// "not-a-user-id" is non-empty but has no "@" sigil, so it must be
	// skipped rather than forwarded to the membership cache (spec.md §4.D
	// step 4).
	join := &Event{EventID: "$join", RoomID: "!room", Type: "m.room.member", StateKey: stateKey("not-a-user-id"), Sender: "@alice:x", Content: content(t, map[string]string{"membership": "join"})}
	events.add(join)

	sk, err := svc.short.GetOrCreateShortStateKey(join.Type, *join.StateKey)
	require.NoError(t, err)
	sev, err := svc.short.GetOrCreateShortEventID(join.EventID)
	require.NoError(t, err)
	blob := statecompressor.Compress(sk, sev)

	require.NoError(t, svc.ForceState("!room", 99, []statecompressor.CompressedStateEvent{blob}))

	hash, has, err := svc.RoomPointer("!room")
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, uint64(99), hash)

	_, ok := svc.membership.MembershipOf("!room", "not-a-user-id")
	require.False(t, ok)
	require.Equal(t, 0, svc.membership.JoinedCount("!room"))
}

func TestForceStateSkipsUnresolvableEntries(t *testing.T) {
	svc, _ := newTestService(t)

	// A blob referencing a short-event-id nothing ever registered.
	bogus := statecompressor.Compress(1, 12345)
	require.NoError(t, svc.ForceState("!room", 1, []statecompressor.CompressedStateEvent{bogus}))

	hash, has, err := svc.RoomPointer("!room")
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, uint64(1), hash)
}

func TestCalculateInviteStateOrdersAndIncludesInvite(t *testing.T) {
	svc, events := newTestService(t)

	create := &Event{EventID: "$create", RoomID: "!room", Type: "m.room.create", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"room_version": "10"})}
	events.add(create)
	h1, err := svc.AppendToState(create)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h1))

	name := &Event{EventID: "$name", RoomID: "!room", Type: "m.room.name", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"name": "Party"})}
	events.add(name)
	h2, err := svc.AppendToState(name)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h2))

	invite := &Event{EventID: "$invite", RoomID: "!room", Type: "m.room.member", StateKey: stateKey("@bob:x"), Sender: "@alice:x", Content: content(t, map[string]string{"membership": "invite"})}

	stripped, err := svc.CalculateInviteState(invite)
	require.NoError(t, err)
	require.NotEmpty(t, stripped)
	require.Equal(t, "m.room.create", stripped[0].Type)

	last := stripped[len(stripped)-1]
	require.Equal(t, "m.room.member", last.Type)
	require.Equal(t, "@bob:x", last.StateKey)
}

func TestGetRoomVersionCachesResult(t *testing.T) {
	svc, events := newTestService(t)

	create := &Event{EventID: "$create", RoomID: "!room", Type: "m.room.create", StateKey: stateKey(""), Sender: "@alice:x", Content: content(t, map[string]string{"room_version": "11"})}
	events.add(create)
	h1, err := svc.AppendToState(create)
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomPointer("!room", h1))

	v, err := svc.GetRoomVersion("!room")
	require.NoError(t, err)
	require.Equal(t, "11", v)

	v2, err := svc.GetRoomVersion("!room")
	require.NoError(t, err)
	require.Equal(t, v, v2)
}

func TestGetRoomVersionErrorsWithoutCreateEvent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetRoomVersion("!empty-room")
	require.Error(t, err)
}

func TestRoomPointerAbsentForUnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)
	_, has, err := svc.RoomPointer("!nope")
	require.NoError(t, err)
	require.False(t, has)
}
