package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/federated-chat/roomstate/ethdb/memorydb"
	"github.com/federated-chat/roomstate/statecompressor"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	src := newTestStore(t)

	a := statecompressor.Compress(1, 1)
	require.NoError(t, src.SaveStateFromDiff(1, []statecompressor.CompressedStateEvent{a}, nil, 1_000_000, nil))
	ancestors, err := src.LoadSnapshotInfo(1)
	require.NoError(t, err)

	b := statecompressor.Compress(2, 1)
	require.NoError(t, src.SaveStateFromDiff(2, []statecompressor.CompressedStateEvent{b}, nil, 1, ancestors))

	var buf bytes.Buffer
	require.NoError(t, src.Dump(&buf, 2))

	dst, err := New(memorydb.New(), 64)
	require.NoError(t, err)
	require.NoError(t, dst.Load(&buf))

	full, err := dst.Flatten(2)
	require.NoError(t, err)
	require.Len(t, full, 2)
	require.Equal(t, a, full[a.StateKeyPrefix()])
	require.Equal(t, b, full[b.StateKeyPrefix()])
}
