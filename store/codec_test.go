package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-offline-cache/types"
)

func testSnapshot(body []byte) *types.Snapshot {
	return &types.Snapshot{
		Status:     200,
		Headers:    map[string]string{"Content-Type": "text/html"},
		Body:       body,
		CapturedAt: time.Now().Truncate(time.Millisecond),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(false)

	original := testSnapshot([]byte("<html>hello</html>"))

	encoded, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, formatRaw, encoded[0])

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Headers, decoded.Headers)
	assert.Equal(t, original.Body, decoded.Body)
}

func TestCodecCompressesLargeBodies(t *testing.T) {
	codec := NewCodec(true)

	original := testSnapshot(bytes.Repeat([]byte("design specification "), 200))

	encoded, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, formatBrotli, encoded[0])
	assert.Less(t, len(encoded), len(original.Body))

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, original.Body, decoded.Body)
}

func TestCodecSkipsCompressionForSmallBodies(t *testing.T) {
	codec := NewCodec(true)

	encoded, err := codec.Encode(testSnapshot([]byte("tiny")))
	require.NoError(t, err)
	assert.Equal(t, formatRaw, encoded[0])
}

func TestCodecDecodeCompressedWhenCompressionDisabled(t *testing.T) {
	writer := NewCodec(true)
	reader := NewCodec(false)

	original := testSnapshot(bytes.Repeat([]byte("x"), 2048))

	encoded, err := writer.Encode(original)
	require.NoError(t, err)

	decoded, err := reader.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, original.Body, decoded.Body)
}

func TestCodecDecodeCorrupted(t *testing.T) {
	codec := NewCodec(false)

	_, err := codec.Decode(nil)
	assert.ErrorIs(t, err, types.ErrSnapshotCorrupted)

	_, err = codec.Decode([]byte{formatRaw, 'n', 'o', 'p', 'e'})
	assert.ErrorIs(t, err, types.ErrSnapshotCorrupted)
}
