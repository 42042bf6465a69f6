package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeU64RoundTrip(t *testing.T) {
	v, ok := DecodeU64(EncodeU64(12345))
	require.True(t, ok)
	require.Equal(t, uint64(12345), v)
}

func TestDecodeU64RejectsWrongLength(t *testing.T) {
	_, ok := DecodeU64([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestStateKeyValueRoundTrip(t *testing.T) {
	v := EncodeStateKeyValue("m.room.member", "@alice:example.org")
	eventType, stateKey, ok := DecodeStateKeyValue(v)
	require.True(t, ok)
	require.Equal(t, "m.room.member", eventType)
	require.Equal(t, "@alice:example.org", stateKey)
}

func TestStateKeyValueRoundTripEmptyStateKey(t *testing.T) {
	v := EncodeStateKeyValue("m.room.create", "")
	eventType, stateKey, ok := DecodeStateKeyValue(v)
	require.True(t, ok)
	require.Equal(t, "m.room.create", eventType)
	require.Equal(t, "", stateKey)
}

func TestKeySpacesDoNotCollide(t *testing.T) {
	k1 := EventIDToShortKey([]byte("$x"))
	k2 := StateHashToShortKey([]byte("$x"))
	require.NotEqual(t, k1, k2)
}
