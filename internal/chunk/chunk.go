// Package chunk implements the pixel-to-chunk state machine: a single
// forward scan over raw pixels that emits byte-aligned chunks, and the
// inverse scan that reconstructs pixels from a chunk stream.
//
// Six chunk kinds exist, distinguished by the top two bits of the first
// byte (INDEX, DIFF, LUMA, RUN) or by a full 8-bit tag (RGB, RGBA). The
// 8-bit tags take precedence: a decoder must test them before masking.
// Encoder and decoder share a 64-slot cache of recently seen pixels,
// addressed by a color hash; both sides must update it identically or
// INDEX chunks desynchronize.
package chunk

const (
	opIndex = 0x00 // 00xxxxxx
	opDiff  = 0x40 // 01xxxxxx
	opLuma  = 0x80 // 10xxxxxx
	opRun   = 0xC0 // 11xxxxxx
	opRGB   = 0xFE // 11111110
	opRGBA  = 0xFF // 11111111

	mask2 = 0xC0
)

// Padding is the end marker appended after the last chunk. An encoder must
// not emit 7 or more consecutive INDEX chunks for slot 0, as that byte
// sequence would alias this marker.
var Padding = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}

// Pixel is one RGBA pixel. For 3-channel streams the alpha stays at its
// running value and never appears on the wire.
type Pixel struct {
	R, G, B, A uint8
}

func (p Pixel) hash() int {
	return (int(p.R)*3 + int(p.G)*5 + int(p.B)*7 + int(p.A)*11) % 64
}

// MaxEncodedLen returns the worst-case chunk stream size for an image of
// w*h pixels with the given channel count, including the end marker.
func MaxEncodedLen(w, h uint32, channels int) int {
	return int(w) * int(h) * (channels + 1) + len(Padding)
}

// bodyWriter appends chunk bytes and counts each one in the histogram the
// entropy layer builds its code from.
type bodyWriter struct {
	buf   []byte
	histo *[256]uint32
}

func (w *bodyWriter) put(b byte) {
	w.buf = append(w.buf, b)
	w.histo[b]++
}

// encoder holds the rolling state of one encode pass.
type encoder struct {
	cache [64]Pixel
	prev  Pixel
	run   int
}

// step consumes one pixel and emits whatever chunks are due. A pending run
// is flushed before any other chunk for a differing pixel; on the last
// pixel the run is flushed immediately.
func (e *encoder) step(px Pixel, last bool, w *bodyWriter) {
	if px == e.prev {
		e.run++
		if e.run == 62 || last {
			w.put(opRun | byte(e.run-1))
			e.run = 0
		}
		e.prev = px
		return
	}

	if e.run > 0 {
		w.put(opRun | byte(e.run-1))
		e.run = 0
	}

	k := px.hash()
	if e.cache[k] == px {
		w.put(opIndex | byte(k))
		e.prev = px
		return
	}

	// The slot is seeded even when the pixel ends up as a literal.
	e.cache[k] = px

	if px.A == e.prev.A {
		vr := int8(px.R - e.prev.R)
		vg := int8(px.G - e.prev.G)
		vb := int8(px.B - e.prev.B)

		vgr := vr - vg
		vgb := vb - vg

		switch {
		case vr > -3 && vr < 2 && vg > -3 && vg < 2 && vb > -3 && vb < 2:
			w.put(opDiff | byte(vr+2)<<4 | byte(vg+2)<<2 | byte(vb+2))
		case vgr > -9 && vgr < 8 && vg > -33 && vg < 32 && vgb > -9 && vgb < 8:
			w.put(opLuma | byte(vg+32))
			w.put(byte(vgr+8)<<4 | byte(vgb+8))
		default:
			w.put(opRGB)
			w.put(px.R)
			w.put(px.G)
			w.put(px.B)
		}
	} else {
		w.put(opRGBA)
		w.put(px.R)
		w.put(px.G)
		w.put(px.B)
		w.put(px.A)
	}
	e.prev = px
}

// Encode scans pixels left-to-right, top-to-bottom and returns the chunk
// stream including the end marker. channels must be 3 or 4 and len(pixels)
// a multiple of it. Every emitted byte, end marker included, is counted
// in histo.
func Encode(pixels []byte, channels int, histo *[256]uint32) []byte {
	w := &bodyWriter{
		buf:   make([]byte, 0, len(pixels)/channels*(channels+1)+len(Padding)),
		histo: histo,
	}
	e := encoder{prev: Pixel{A: 255}}
	px := e.prev

	last := len(pixels) - channels
	for pos := 0; pos <= last; pos += channels {
		px.R = pixels[pos]
		px.G = pixels[pos+1]
		px.B = pixels[pos+2]
		if channels == 4 {
			px.A = pixels[pos+3]
		}
		e.step(px, pos == last, w)
	}

	for _, b := range Padding {
		w.put(b)
	}
	return w.buf
}

// Source supplies chunk-stream bytes to Decode. The plain frame path reads
// them straight from the buffer; the entropy path decodes them out of the
// packed bit stream one at a time.
type Source interface {
	// More reports whether another chunk may start here.
	More() bool
	// Next returns the next body byte. ok is false once the stream is
	// exhausted; mid-chunk exhaustion yields zero bytes.
	Next() (b byte, ok bool)
}

// sliceSource reads a plain chunk stream. Chunk starts are gated at the
// end marker; trailing bytes of a chunk may reach into it, mirroring the
// encoder which never splits a chunk across the marker anyway.
type sliceSource struct {
	body []byte
	pos  int
	end  int
}

// BodySource returns a Source over a plain chunk stream, end marker
// included. Streams shorter than the marker are treated as empty.
func BodySource(body []byte) Source {
	end := len(body) - len(Padding)
	if end < 0 {
		end = 0
	}
	return &sliceSource{body: body, end: end}
}

func (s *sliceSource) More() bool { return s.pos < s.end }

func (s *sliceSource) Next() (byte, bool) {
	if s.pos >= len(s.body) {
		return 0, false
	}
	b := s.body[s.pos]
	s.pos++
	return b, true
}

func nextByte(src Source) byte {
	b, _ := src.Next()
	return b
}

// decoder holds the rolling state of one decode pass.
type decoder struct {
	cache [64]Pixel
	px    Pixel
	run   int
}

// step produces the next pixel from src. exhausted is set once src runs
// dry while pixels are still owed; the current pixel is repeated then.
func (d *decoder) step(src Source) (px Pixel, exhausted bool) {
	if d.run > 0 {
		d.run--
		return d.px, false
	}
	if !src.More() {
		return d.px, true
	}

	b1 := nextByte(src)
	switch {
	case b1 == opRGB:
		d.px.R = nextByte(src)
		d.px.G = nextByte(src)
		d.px.B = nextByte(src)
	case b1 == opRGBA:
		d.px.R = nextByte(src)
		d.px.G = nextByte(src)
		d.px.B = nextByte(src)
		d.px.A = nextByte(src)
	default:
		switch b1 & mask2 {
		case opIndex:
			d.px = d.cache[b1]
		case opDiff:
			d.px.R += (b1>>4)&0x03 - 2
			d.px.G += (b1>>2)&0x03 - 2
			d.px.B += b1&0x03 - 2
		case opLuma:
			b2 := nextByte(src)
			vg := int(b1&0x3F) - 32
			d.px.R += byte(vg - 8 + int(b2>>4&0x0F))
			d.px.G += byte(vg)
			d.px.B += byte(vg - 8 + int(b2&0x0F))
		case opRun:
			d.run = int(b1 & 0x3F)
		}
	}
	d.cache[d.px.hash()] = d.px
	return d.px, false
}

// Decode fills out with pixels reconstructed from src. channels selects
// the output layout (3 or 4 bytes per pixel); a 3-channel request drops
// alpha, a 4-channel request over a 3-channel stream yields alpha 255.
// truncated reports that src ran out before all pixels were produced; the
// remaining slots repeat the last pixel.
func Decode(src Source, out []byte, channels int) (truncated bool) {
	d := decoder{px: Pixel{A: 255}}
	for pos := 0; pos < len(out); pos += channels {
		px, exhausted := d.step(src)
		if exhausted {
			truncated = true
		}
		out[pos] = px.R
		out[pos+1] = px.G
		out[pos+2] = px.B
		if channels == 4 {
			out[pos+3] = px.A
		}
	}
	return truncated
}
