package qoient

import (
	"fmt"

	"github.com/svanichkin/qoient/internal/bitio"
	"github.com/svanichkin/qoient/internal/chunk"
	"github.com/svanichkin/qoient/internal/huffman"
)

// Decode reconstructs the pixels of a frame. requested selects the output
// layout: ChannelsAuto follows the header, RGB drops alpha, RGBA adds an
// opaque alpha to 3-channel frames.
//
// A truncated body is tolerated: the pixels that could be produced are
// returned and the remaining slots repeat the last one. Use
// DecodeWithOptions with Strict to turn that into an error.
func Decode(data []byte, requested Channels) (*Image, error) {
	return DecodeWithOptions(data, requested, DecodeOptions{})
}

// DecodeWithOptions is Decode with explicit options.
func DecodeWithOptions(data []byte, requested Channels, opts DecodeOptions) (*Image, error) {
	if requested != ChannelsAuto && requested != RGB && requested != RGBA {
		return nil, ErrInvalidArgument
	}
	if len(data) < headerSize+len(chunk.Padding) {
		return nil, ErrInvalidHeader
	}

	r := bitio.NewByteReader(data)
	magicBytes, _ := r.ReadBytes(4)
	width, _ := r.ReadUint32()
	height, _ := r.ReadUint32()
	chByte, _ := r.ReadByte()
	csByte, _ := r.ReadByte()

	entropy := csByte&entropyBit != 0
	csByte &^= entropyBit

	if string(magicBytes) != magic ||
		width == 0 || height == 0 ||
		chByte < 3 || chByte > 4 ||
		csByte > byte(Linear) ||
		height >= pixelsMax/width {
		return nil, ErrInvalidHeader
	}

	outChannels := int(requested)
	if requested == ChannelsAuto {
		outChannels = int(chByte)
	}
	out := make([]byte, int(width)*int(height)*outChannels)

	var truncated bool
	if entropy {
		dec, err := huffman.NewDecoder(data, headerSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		truncated = chunk.Decode(dec, out, outChannels)
	} else {
		truncated = chunk.Decode(chunk.BodySource(data[headerSize:]), out, outChannels)
	}
	if opts.Strict && truncated {
		return nil, ErrTruncated
	}

	return &Image{
		Pixels:     out,
		Width:      width,
		Height:     height,
		Channels:   Channels(chByte),
		ColorSpace: ColorSpace(csByte),
	}, nil
}
