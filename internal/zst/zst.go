// Package zst wraps complete frames in a zstd stream. It is an outer,
// optional stage used by the CLI; the codec itself never depends on it.
package zst

import (
	"bytes"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// frameMagic is the zstd frame magic as it appears on the wire.
var frameMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, frameMagic)
}

// Compress returns data wrapped in a zstd frame.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(runtime.NumCPU()))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress unwraps a zstd frame produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return io.ReadAll(dec)
}
