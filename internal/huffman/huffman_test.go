package huffman

import (
	"bytes"
	"errors"
	"testing"

	"github.com/svanichkin/qoient/internal/bitio"
)

func noiseHisto(seed uint32) *[256]uint32 {
	var h [256]uint32
	s := seed | 1
	for i := range h {
		s ^= s << 13
		s ^= s >> 17
		s ^= s << 5
		h[i] = s % 10000
	}
	return &h
}

// fibHisto assigns Fibonacci counts to the first n symbols, which drives
// the combine into a maximally skewed chain and produces long codes.
func fibHisto(n int) *[256]uint32 {
	var h [256]uint32
	a, b := uint32(1), uint32(1)
	for i := 0; i < n; i++ {
		h[i] = a
		a, b = b, a+b
	}
	return &h
}

func maxLen(t *Table) uint8 {
	var m uint8
	for _, c := range t {
		if c.Len > m {
			m = c.Len
		}
	}
	return m
}

func TestBuildSingleUsedSymbol(t *testing.T) {
	var h [256]uint32
	h[42] = 1000
	table := Build(&h)
	if table[42].Len != 1 {
		t.Fatalf("sole used symbol got a %d-bit code, want 1", table[42].Len)
	}
}

func TestBuildEverySymbolGetsACode(t *testing.T) {
	table := Build(noiseHisto(5))
	for v, c := range table {
		if c.Len == 0 {
			t.Fatalf("symbol %d has no code", v)
		}
	}
}

func TestBuildPrefixFree(t *testing.T) {
	table := Build(noiseHisto(99))
	for i := 0; i < 256; i++ {
		for j := 0; j < 256; j++ {
			if i == j {
				continue
			}
			a, b := table[i], table[j]
			if a.Len > b.Len {
				continue
			}
			mask := uint32(1)<<a.Len - 1
			if b.Bits&mask == a.Bits {
				t.Fatalf("code of %d (%d bits) is a prefix of %d (%d bits)", i, a.Len, j, b.Len)
			}
		}
	}
}

func TestEstimateSizeRejectsOverlongCodes(t *testing.T) {
	table := Build(fibHisto(30))
	if m := maxLen(table); m <= MaxCodeLen {
		t.Fatalf("expected a code longer than %d bits, max is %d", MaxCodeLen, m)
	}
	if _, ok := table.EstimateSize(fibHisto(30)); ok {
		t.Fatalf("EstimateSize accepted an overlong code")
	}
}

// packFrame lays out a synthetic entropy frame the way the encoder does:
// a dummy header, the dictionary, padding, then the packed words.
func packFrame(t *testing.T, table *Table, body []byte, headerLen int) []byte {
	t.Helper()
	w := bitio.NewByteWriter(headerLen + dictMaxSize + len(body))
	w.WriteBytes(make([]byte, headerLen))
	table.WriteDict(w)
	w.PadToWord()
	for _, word := range table.Pack(body) {
		w.WriteUint32LE(word)
	}
	return w.Bytes()
}

func roundTrip(t *testing.T, histo *[256]uint32, body []byte) {
	t.Helper()
	table := Build(histo)
	frame := packFrame(t, table, body, 14)

	dec, err := NewDecoder(frame, 14)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	got := make([]byte, 0, len(body))
	for range body {
		b, ok := dec.Next()
		if !ok {
			t.Fatalf("stream ended after %d of %d bytes", len(got), len(body))
		}
		got = append(got, b)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch")
	}
}

func TestShortCodesRoundTrip(t *testing.T) {
	// A shallow histogram over eight used symbols keeps every code the
	// body uses within the flat decoding table; only the unused symbols
	// get codes longer than tableWidth.
	var histo [256]uint32
	body := make([]byte, 0, 4096)
	s := uint32(1)
	for i := 0; i < 4096; i++ {
		s ^= s << 13
		s ^= s >> 17
		s ^= s << 5
		b := byte(s % 8)
		body = append(body, b)
		histo[b]++
	}
	table := Build(&histo)
	if m := maxLen(table); m <= tableWidth {
		t.Fatalf("expected some long code for unused symbols, max is %d", m)
	}
	roundTrip(t, &histo, body)
}

func TestLongCodesRoundTrip(t *testing.T) {
	// Fibonacci counts push the rare symbols past tableWidth bits, so
	// decoding has to walk the tree arena.
	histo := fibHisto(15)
	table := Build(histo)
	if m := maxLen(table); m <= tableWidth || m > MaxCodeLen {
		t.Fatalf("want tree-deep codes within the cap, max is %d", m)
	}

	body := make([]byte, 0, 2048)
	for i := 0; i < 15; i++ {
		for j := uint32(0); j < histo[i]; j++ {
			body = append(body, byte(i))
		}
	}
	roundTrip(t, histo, body)
}

func TestPackWordSpill(t *testing.T) {
	// Skewed counts give 3, 5 and 9 codes of 1, 2 and 3 bits; an 11-bit
	// group keeps shifting against the 32-bit words, so codes straddle
	// word boundaries and the spill path has to reassemble them.
	var histo [256]uint32
	body := bytes.Repeat([]byte{3, 3, 3, 3, 5, 5, 9}, 300)
	for _, b := range body {
		histo[b]++
	}
	roundTrip(t, &histo, body)
}

func TestDecoderExhaustion(t *testing.T) {
	var histo [256]uint32
	body := bytes.Repeat([]byte{1, 2}, 50)
	for _, b := range body {
		histo[b]++
	}
	table := Build(&histo)
	frame := packFrame(t, table, body, 14)

	dec, err := NewDecoder(frame, 14)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	n := 0
	for {
		if _, ok := dec.Next(); !ok {
			break
		}
		n++
		if n > len(body)+64 {
			t.Fatalf("decoder never reports exhaustion")
		}
	}
	if n < len(body) {
		t.Fatalf("decoder gave up after %d of %d bytes", n, len(body))
	}
}

func TestNewDecoderBadDictionary(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		if _, err := NewDecoder(make([]byte, 40), 14); !errors.Is(err, ErrBadDictionary) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("overlong_length", func(t *testing.T) {
		frame := make([]byte, 14+dictMaxSize)
		frame[14] = 40 // length byte beyond MaxCodeLen
		if _, err := NewDecoder(frame, 14); !errors.Is(err, ErrBadDictionary) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("conflicting_codes", func(t *testing.T) {
		// Two symbols claiming the identical 1-bit pattern.
		w := bitio.NewByteWriter(14 + dictMaxSize)
		w.WriteBytes(make([]byte, 14))
		for v := 0; v < 256; v++ {
			if v < 2 {
				w.WriteByte(1)
				w.WriteUint16(0)
			} else {
				w.WriteByte(0)
				w.WriteUint16(0)
			}
		}
		if _, err := NewDecoder(w.Bytes(), 14); !errors.Is(err, ErrBadDictionary) {
			t.Fatalf("got %v", err)
		}
	})
}
