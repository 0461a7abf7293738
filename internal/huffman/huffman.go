// Package huffman implements the optional entropy layer: a min-heap
// Huffman code over the 256 chunk-stream byte values, a dictionary
// serializer, an LSB-first 32-bit-word bit packer, and the matching
// two-tier decoder (flat table for short codes, decision tree for long
// ones).
package huffman

import (
	"container/heap"

	"github.com/svanichkin/qoient/internal/bitio"
)

const (
	// MaxCodeLen is the longest representable codeword. Histograms that
	// would produce longer codes cannot be entropy coded.
	MaxCodeLen = 32

	// tableWidth is the number of low window bits used to index the flat
	// decoding table. Codes that fit entirely are decoded in one lookup;
	// longer ones continue into a decision tree.
	tableWidth = 11
	tableSize  = 1 << tableWidth

	// dictMaxSize is the worst-case serialized dictionary: 256 length
	// bytes plus up to four pattern bytes each.
	dictMaxSize = 256 + 1024
)

// Code is one dictionary entry: an LSB-first bit pattern and its length.
// Bit 0 of Bits is the first bit written to the stream.
type Code struct {
	Bits uint32
	Len  uint8
}

// Table maps each chunk-stream byte value to its codeword.
type Table [256]Code

// treeNode is a node of the code tree under construction. Indices below
// 256 are the symbol leaves; higher ones are combined internal nodes.
type treeNode struct {
	count uint32
	left  int16
	right int16
}

// nodeHeap is a min-heap of tree node indices ordered by count, with the
// pool index as tie-break so construction is deterministic.
type nodeHeap struct {
	nodes   []treeNode
	indices []int16
}

func (h *nodeHeap) Len() int { return len(h.indices) }

func (h *nodeHeap) Less(i, j int) bool {
	a, b := h.nodes[h.indices[i]], h.nodes[h.indices[j]]
	if a.count != b.count {
		return a.count < b.count
	}
	return h.indices[i] < h.indices[j]
}

func (h *nodeHeap) Swap(i, j int) {
	h.indices[i], h.indices[j] = h.indices[j], h.indices[i]
}

func (h *nodeHeap) Push(x any) {
	h.indices = append(h.indices, x.(int16))
}

func (h *nodeHeap) Pop() any {
	old := h.indices
	n := len(old)
	idx := old[n-1]
	h.indices = old[:n-1]
	return idx
}

// Build constructs a prefix code from the histogram. All 256 symbols take
// part in the combine, zero-count ones included, so every byte value ends
// up with a code and a sole used symbol still gets a 1-bit code rather
// than an empty one.
func Build(histo *[256]uint32) *Table {
	h := &nodeHeap{
		nodes:   make([]treeNode, 256, 511),
		indices: make([]int16, 256),
	}
	for i := range h.nodes {
		h.nodes[i] = treeNode{count: histo[i], left: -1, right: -1}
		h.indices[i] = int16(i)
	}
	heap.Init(h)

	for h.Len() > 1 {
		a := heap.Pop(h).(int16)
		b := heap.Pop(h).(int16)
		h.nodes = append(h.nodes, treeNode{
			count: h.nodes[a].count + h.nodes[b].count,
			left:  a,
			right: b,
		})
		heap.Push(h, int16(len(h.nodes)-1))
	}
	root := h.indices[0]

	var t Table
	assign(h.nodes, root, 0, 0, &t)
	return &t
}

// assign walks the code tree depth-first, extending the pattern with a 0
// bit into the left child and a 1 bit into the right. Depth is bounded by
// the leaf count, so the recursion is shallow.
func assign(nodes []treeNode, n int16, bits uint32, length uint8, t *Table) {
	if n < 256 {
		t[n] = Code{Bits: bits, Len: length}
		return
	}
	assign(nodes, nodes[n].left, bits, length+1, t)
	assign(nodes, nodes[n].right, bits|1<<length, length+1, t)
}

// EstimateSize projects the entropy-coded size in bytes: the worst-case
// dictionary plus the packed body. ok is false when some code exceeds
// MaxCodeLen, in which case the frame cannot be entropy coded at all.
func (t *Table) EstimateSize(histo *[256]uint32) (size int, ok bool) {
	bits := dictMaxSize * 8
	for i, c := range t {
		if c.Len > MaxCodeLen {
			return 0, false
		}
		bits += int(histo[i]) * int(c.Len)
	}
	return bits / 8, true
}

// WriteDict serializes the 256 dictionary entries in symbol order: one
// length byte, then the pattern as 16, 24 or 32 big-endian bits depending
// on the length.
func (t *Table) WriteDict(w *bitio.ByteWriter) {
	for _, c := range t {
		w.WriteByte(c.Len)
		switch {
		case c.Len > 24:
			w.WriteUint32(c.Bits)
		case c.Len > 16:
			w.WriteUint24(c.Bits)
		default:
			w.WriteUint16(uint16(c.Bits))
		}
	}
}

// Pack packs the chunk stream into 32-bit words, least-significant bit
// first within each word, and appends one zero trailer word. Codewords
// spilling over a word boundary continue in the low bits of the next.
func (t *Table) Pack(body []byte) []uint32 {
	words := make([]uint32, 1, len(body)/4+2)
	wordIdx := 0
	bitIdx := uint(0)
	for _, x := range body {
		c := t[x]
		words[wordIdx] |= c.Bits << bitIdx

		next := bitIdx + uint(c.Len)
		bitIdx = next % 32
		if next >= 32 {
			words = append(words, 0)
			wordIdx++
		}
		if next > 32 {
			words[wordIdx] |= c.Bits >> (uint(c.Len) - bitIdx)
		}
	}
	return append(words, 0)
}
