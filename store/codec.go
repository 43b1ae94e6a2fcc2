package store

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

const (
	formatRaw    byte = 0x0
	formatBrotli byte = 0x1

	// Bodies below this size are not worth the compressor round trip.
	compressThreshold = 512
)

// Codec serializes snapshots for durable backends. Encoded form is a
// one-byte format tag followed by the JSON payload, optionally
// brotli-compressed.
type Codec struct {
	compression bool
}

func NewCodec(compression bool) *Codec {
	return &Codec{compression: compression}
}

func (c *Codec) Encode(snapshot *types.Snapshot) ([]byte, error) {
	payload, err := utils.Marshal(snapshot)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal snapshot")
	}

	if !c.compression || len(payload) < compressThreshold {
		return append([]byte{formatRaw}, payload...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(formatBrotli)

	writer := brotli.NewWriter(&buf)
	if _, err := writer.Write(payload); err != nil {
		return nil, types.WrapError(err, "failed to compress snapshot")
	}
	if err := writer.Close(); err != nil {
		return nil, types.WrapError(err, "failed to flush compressor")
	}

	return buf.Bytes(), nil
}

func (c *Codec) Decode(data []byte) (*types.Snapshot, error) {
	if len(data) < 1 {
		return nil, types.ErrSnapshotCorrupted
	}

	payload := data[1:]

	if data[0] == formatBrotli {
		reader := brotli.NewReader(bytes.NewReader(payload))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, types.Errorf(types.ErrSnapshotCorrupted, "decompress: %v", err)
		}
		payload = decompressed
	}

	snapshot := &types.Snapshot{}
	if err := utils.Unmarshal(payload, snapshot); err != nil {
		return nil, types.Errorf(types.ErrSnapshotCorrupted, "unmarshal: %v", err)
	}

	return snapshot, nil
}
