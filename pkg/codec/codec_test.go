package codec_test

import (
	"strings"
	"testing"

	"github.com/cuemby/merklekv-mobile/pkg/codec"
	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() types.ReplicationEvent {
	return types.ReplicationEvent{
		Op:          types.OpSet,
		Key:         "device:42:battery",
		Value:       []byte("87"),
		IsTombstone: false,
		TimestampMs: 1_700_000_000_123,
		NodeID:      "node-a",
		Seq:         7,
	}
}

func TestRoundTrip(t *testing.T) {
	e := sampleEvent()
	encoded, err := codec.Encode(e)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestRoundTripTombstone(t *testing.T) {
	e := sampleEvent()
	e.Op = types.OpDelete
	e.IsTombstone = true
	e.Value = nil

	encoded, err := codec.Encode(e)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestDecodeTruncated(t *testing.T) {
	e := sampleEvent()
	encoded, err := codec.Encode(e)
	require.NoError(t, err)

	_, err = codec.Decode(encoded[:len(encoded)-3])
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestDecodeTrailingBytes(t *testing.T) {
	e := sampleEvent()
	encoded, err := codec.Encode(e)
	require.NoError(t, err)

	_, err = codec.Decode(append(encoded, 0xFF))
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestDecodeUnknownTag(t *testing.T) {
	e := sampleEvent()
	encoded, err := codec.Encode(e)
	require.NoError(t, err)
	encoded[1] = 0x7F // corrupt op tag

	_, err = codec.Decode(encoded)
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestDecodeUnknownVersion(t *testing.T) {
	e := sampleEvent()
	encoded, err := codec.Encode(e)
	require.NoError(t, err)
	encoded[0] = 0xFE

	_, err = codec.Decode(encoded)
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestEncodeOversizeRejected(t *testing.T) {
	e := sampleEvent()
	e.Value = []byte(strings.Repeat("x", types.MaxReplicationEventBytes+1))

	_, err := codec.Encode(e)
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestEncodeNonUTF8Rejected(t *testing.T) {
	e := sampleEvent()
	e.Value = []byte{0xFF, 0xFE, 0xFD}

	_, err := codec.Encode(e)
	require.Error(t, err)
	assert.Equal(t, merr.Codec, merr.KindOf(err))
}

func TestMaxSizeBoundary(t *testing.T) {
	e := sampleEvent()
	// Fill value so the frame lands exactly at the ceiling.
	overhead := 3 + 8 + 8 + (1 + len(e.NodeID)) + (1 + len(e.Key)) + 3
	e.Value = []byte(strings.Repeat("v", types.MaxReplicationEventBytes-overhead))

	encoded, err := codec.Encode(e)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(encoded), types.MaxReplicationEventBytes)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}
