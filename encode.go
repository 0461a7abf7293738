package qoient

import (
	"github.com/svanichkin/qoient/internal/bitio"
	"github.com/svanichkin/qoient/internal/chunk"
	"github.com/svanichkin/qoient/internal/huffman"
)

const (
	// minEntropySize is the plain frame size below which EntropyAuto does
	// not bother with the entropy layer.
	minEntropySize = 10 * 1024

	// entropyMarginPct: the estimated entropy-coded size must not exceed
	// this percentage of the plain frame or EntropyAuto falls back.
	entropyMarginPct = 97
)

// Encode compresses img into a self-describing frame. The returned slice
// is freshly allocated and owned by the caller.
//
// Depending on opts.Entropy and the byte-value histogram of the chunk
// stream, the frame is either plain (header + chunks + end marker) or
// entropy coded (header with the entropy bit set + dictionary + packed
// words). Both decode back to byte-identical pixels.
func Encode(img *Image, opts EncodeOptions) ([]byte, error) {
	if img == nil || img.Pixels == nil || img.Width == 0 || img.Height == 0 {
		return nil, ErrInvalidArgument
	}
	if img.Channels != RGB && img.Channels != RGBA {
		return nil, ErrInvalidArgument
	}
	if img.ColorSpace > Linear {
		return nil, ErrInvalidArgument
	}
	if img.Height >= pixelsMax/img.Width {
		return nil, ErrTooLarge
	}
	channels := int(img.Channels)
	if len(img.Pixels) != int(img.Width)*int(img.Height)*channels {
		return nil, ErrInvalidArgument
	}

	var histo [256]uint32
	body := chunk.Encode(img.Pixels, channels, &histo)

	plain := bitio.NewByteWriter(headerSize + len(body))
	writeHeader(plain, img, false)
	plain.WriteBytes(body)

	if opts.Entropy == EntropyNever {
		return plain.Bytes(), nil
	}

	table := huffman.Build(&histo)
	estimate, ok := table.EstimateSize(&histo)
	if !ok {
		// Some code exceeded 32 bits; the frame cannot be entropy coded.
		return plain.Bytes(), nil
	}
	if opts.Entropy == EntropyAuto && !entropyWorthIt(plain.Len(), estimate) {
		return plain.Bytes(), nil
	}

	out := bitio.NewByteWriter(estimate + headerSize)
	writeHeader(out, img, true)
	table.WriteDict(out)
	out.PadToWord()
	for _, w := range table.Pack(body) {
		out.WriteUint32LE(w)
	}
	return out.Bytes(), nil
}

// entropyWorthIt decides whether the entropy layer pays for itself: the
// plain frame must reach the size floor and the estimate must not exceed
// the margin.
func entropyWorthIt(plainLen, estimate int) bool {
	return plainLen >= minEntropySize && estimate <= plainLen*entropyMarginPct/100
}

func writeHeader(w *bitio.ByteWriter, img *Image, entropy bool) {
	w.WriteBytes([]byte(magic))
	w.WriteUint32(img.Width)
	w.WriteUint32(img.Height)
	w.WriteByte(byte(img.Channels))
	cs := byte(img.ColorSpace)
	if entropy {
		cs |= entropyBit
	}
	w.WriteByte(cs)
}
