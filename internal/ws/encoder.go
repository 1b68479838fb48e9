package ws

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Encoder compresses payloads for clients that negotiated zstd.
type Encoder struct {
	zstdEncoder *zstd.Encoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc}, nil
}

// Encode returns payload as a single zstd frame.
func (e *Encoder) Encode(payload []byte) []byte {
	return e.zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	e.zstdEncoder.Close()
}
