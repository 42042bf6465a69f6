package shortid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/federated-chat/roomstate/ethdb/memorydb"
	"github.com/federated-chat/roomstate/internal/errs"
)

func TestGetOrCreateShortEventIDIsIdempotent(t *testing.T) {
	r := New(memorydb.New())

	a, err := r.GetOrCreateShortEventID("$event1")
	require.NoError(t, err)
	require.NotZero(t, a)

	b, err := r.GetOrCreateShortEventID("$event1")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := r.GetOrCreateShortEventID("$event2")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestGetOrCreateShortEventIDRejectsEmpty(t *testing.T) {
	r := New(memorydb.New())
	_, err := r.GetOrCreateShortEventID("")
	k, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindBadRequest, k)
}

func TestShortEventIDRoundTrip(t *testing.T) {
	r := New(memorydb.New())
	short, err := r.GetOrCreateShortEventID("$event1")
	require.NoError(t, err)

	eventID, err := r.ShortEventIDToEventID(short)
	require.NoError(t, err)
	require.Equal(t, "$event1", eventID)
}

func TestGetOrCreateShortStateKey(t *testing.T) {
	r := New(memorydb.New())

	a, err := r.GetOrCreateShortStateKey("m.room.member", "@alice:example.org")
	require.NoError(t, err)
	b, err := r.GetOrCreateShortStateKey("m.room.member", "@alice:example.org")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := r.GetOrCreateShortStateKey("m.room.member", "@bob:example.org")
	require.NoError(t, err)
	require.NotEqual(t, a, c)

	eventType, stateKey, err := r.ShortStateKeyToStateKey(a)
	require.NoError(t, err)
	require.Equal(t, "m.room.member", eventType)
	require.Equal(t, "@alice:example.org", stateKey)
}

func TestGetOrCreateShortStateHashReportsExistence(t *testing.T) {
	r := New(memorydb.New())

	digest := Digest([][16]byte{{1}, {2}})

	short, existed, err := r.GetOrCreateShortStateHash(digest)
	require.NoError(t, err)
	require.False(t, existed)

	again, existed, err := r.GetOrCreateShortStateHash(digest)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, short, again)
}

func TestDigestIsOrderIndependent(t *testing.T) {
	a := Digest([][16]byte{{1}, {2}, {3}})
	b := Digest([][16]byte{{3}, {1}, {2}})
	require.Equal(t, a, b)

	c := Digest([][16]byte{{1}, {2}})
	require.NotEqual(t, a, c)
}

func TestAllocateSnapshotIDIsMonotonicAndUnique(t *testing.T) {
	r := New(memorydb.New())

	a, err := r.AllocateSnapshotID()
	require.NoError(t, err)
	b, err := r.AllocateSnapshotID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Greater(t, b, a)
}

func TestSeparateCounterKeyspacesShareOneCounter(t *testing.T) {
	r := New(memorydb.New())

	short1, err := r.GetOrCreateShortEventID("$event1")
	require.NoError(t, err)
	short2, err := r.GetOrCreateShortStateKey("m.room.name", "")
	require.NoError(t, err)
	require.NotEqual(t, short1, short2)
}
