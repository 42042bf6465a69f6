package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/federated-chat/roomstate/statecompressor"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := &record{
		Parent:  7,
		Depth:   3,
		Added:   []statecompressor.CompressedStateEvent{statecompressor.Compress(1, 2), statecompressor.Compress(3, 4)},
		Removed: []statecompressor.CompressedStateEvent{statecompressor.Compress(5, 6)},
	}
	decoded, err := decodeRecord(rec.encode())
	require.NoError(t, err)
	require.Equal(t, rec.Parent, decoded.Parent)
	require.Equal(t, rec.Depth, decoded.Depth)
	require.Equal(t, rec.Added, decoded.Added)
	require.Equal(t, rec.Removed, decoded.Removed)
}

func TestDecodeRecordRejectsShortHeader(t *testing.T) {
	_, err := decodeRecord([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeRecordRejectsTruncatedAddedSection(t *testing.T) {
	buf := make([]byte, 20)
	buf[15] = 2 // claims 2 added blobs but only 4 bytes follow
	_, err := decodeRecord(buf)
	require.Error(t, err)
}

func TestSortBlobsIsDeterministic(t *testing.T) {
	a := statecompressor.Compress(2, 0)
	b := statecompressor.Compress(1, 0)
	sorted := sortBlobs([]statecompressor.CompressedStateEvent{a, b})
	require.Equal(t, b, sorted[0])
	require.Equal(t, a, sorted[1])
}
