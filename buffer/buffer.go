// Package buffer implements the growable byte buffer described by the
// runtime's wire layer: a contiguous backing array with a reserved prefix
// region that lets framed protocols prepend a length header after the body
// has already been written, without reallocating or copying the body.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buffer

import (
	"strconv"

	"github.com/bits-and-blooms/bitset"
)

// DefaultHeadReserve is the default prefix capacity reserved by New, matching
// the runtime's length-prefix framing needs (2-byte frame length, with room
// to spare for future growth).
const DefaultHeadReserve = 16

// Flag bit positions within a Buffer's flag set.
const (
	FlagClose = iota
	FlagChunked
	FlagBroadcast
	FlagWSText
	FlagWSPing
	FlagWSPong
	FlagPackSize
	flagCount
)

// Origin selects the reference point for Seek, mirroring io.Seeker semantics
// but scoped to the buffer's own head/tail bookkeeping.
type Origin int

const (
	OriginStart Origin = iota
	OriginCurrent
	OriginEnd
)

// Buffer is a contiguous byte buffer with a reserved prefix region.
//
// Layout: [ reserved prefix (head slack) | written bytes (data) | spare tail ]
// write_front consumes from the prefix slack backwards; write_back appends
// to the tail. Seek/consume operate on the read cursor within the data
// region; they never touch the prefix.
type Buffer struct {
	buf    []byte // full backing array
	head   int    // start of live data within buf (>= reserve is not required once consumed)
	tail   int    // end of live data within buf (exclusive)
	reserve int   // original head-reserve size, fixed at construction
	pos    int    // read cursor, relative to head
	flags  *bitset.BitSet
}

// New allocates a Buffer with the given initial body capacity and the
// default head reserve.
func New(capacity int) *Buffer {
	return NewWithReserve(capacity, DefaultHeadReserve)
}

// NewWithReserve allocates a Buffer with an explicit head-reserve size.
func NewWithReserve(capacity int, headReserve int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	if headReserve < 0 {
		headReserve = 0
	}
	b := &Buffer{
		buf:     make([]byte, headReserve+capacity),
		head:    headReserve,
		tail:    headReserve,
		reserve: headReserve,
		flags:   bitset.New(uint(flagCount)),
	}
	return b
}

// WrapBytes builds a Buffer around an existing slice with no head reserve,
// used when bytes arrive from the network and do not need front-prepend.
func WrapBytes(data []byte) *Buffer {
	return &Buffer{
		buf:   data,
		head:  0,
		tail:  len(data),
		flags: bitset.New(uint(flagCount)),
	}
}

// Size returns the number of live (unread-irrelevant) body bytes.
func (b *Buffer) Size() int {
	return b.tail - b.head
}

// Len is an alias for Size kept for callers used to container-style naming.
func (b *Buffer) Len() int { return b.Size() }

// Data returns the live body bytes. The slice aliases the buffer's backing
// array; callers must not retain it past the buffer's lifetime.
func (b *Buffer) Data() []byte {
	return b.buf[b.head:b.tail]
}

// WriteBack appends bytes to the tail of the buffer, growing the backing
// array if necessary.
func (b *Buffer) WriteBack(p []byte) {
	need := b.tail + len(p)
	if need > len(b.buf) {
		b.grow(need)
	}
	copy(b.buf[b.tail:need], p)
	b.tail = need
}

// WriteChars appends the decimal representation of v to the tail.
func (b *Buffer) WriteChars(v int64) {
	b.WriteBack(strconv.AppendInt(nil, v, 10))
}

// WriteFront prepends bytes into the reserved prefix region, failing if the
// prefix slack has been exhausted. On success the returned bool is true and
// the buffer's head moves backward by len(p).
func (b *Buffer) WriteFront(p []byte) bool {
	if b.head-len(p) < 0 {
		return false
	}
	b.head -= len(p)
	copy(b.buf[b.head:b.head+len(p)], p)
	return true
}

// Prepare returns a writable span of at least n bytes at the tail without
// committing it to the buffer's live size; pair with Commit.
func (b *Buffer) Prepare(n int) []byte {
	need := b.tail + n
	if need > len(b.buf) {
		b.grow(need)
	}
	return b.buf[b.tail:need]
}

// Commit advances the tail by n bytes previously written via the slice
// returned from Prepare.
func (b *Buffer) Commit(n int) {
	b.tail += n
	if b.tail > len(b.buf) {
		b.tail = len(b.buf)
	}
}

// Consume advances the read cursor by n bytes, clamped to the live range.
func (b *Buffer) Consume(n int) {
	b.pos += n
	if b.pos > b.Size() {
		b.pos = b.Size()
	}
	if b.pos < 0 {
		b.pos = 0
	}
}

// Seek repositions the read cursor relative to origin and returns the new
// absolute position.
func (b *Buffer) Seek(offset int, origin Origin) int {
	switch origin {
	case OriginStart:
		b.pos = offset
	case OriginCurrent:
		b.pos += offset
	case OriginEnd:
		b.pos = b.Size() + offset
	}
	if b.pos < 0 {
		b.pos = 0
	}
	if b.pos > b.Size() {
		b.pos = b.Size()
	}
	return b.pos
}

// Revert rolls back the last n bytes written to the tail; used by callers
// (e.g. a JSON encoder) that provisionally write then discover the write
// should not have happened.
func (b *Buffer) Revert(n int) {
	b.tail -= n
	if b.tail < b.head {
		b.tail = b.head
	}
}

// Clear resets the buffer to empty, retaining the backing array and head
// reserve.
func (b *Buffer) Clear() {
	b.head = b.reserve
	b.tail = b.reserve
	b.pos = 0
	b.flags.ClearAll()
}

// Clone returns a deep copy of the buffer's live data, flags included, with
// the same head reserve.
func (b *Buffer) Clone() *Buffer {
	out := NewWithReserve(b.Size(), b.reserve)
	out.WriteBack(b.Data())
	out.flags = b.flags.Clone()
	return out
}

// SetFlag sets or clears a flag bit.
func (b *Buffer) SetFlag(bit uint, v bool) {
	if v {
		b.flags.Set(bit)
	} else {
		b.flags.Clear(bit)
	}
}

// HasFlag reports whether a flag bit is set.
func (b *Buffer) HasFlag(bit uint) bool {
	return b.flags.Test(bit)
}

// Flags exposes the underlying bitset for callers that need to copy the
// whole flag set onto another buffer (e.g. broadcast cloning).
func (b *Buffer) Flags() *bitset.BitSet {
	return b.flags
}

func (b *Buffer) grow(minCap int) {
	newCap := len(b.buf) * 2
	if newCap < minCap {
		newCap = minCap
	}
	nb := make([]byte, newCap)
	copy(nb[b.head:b.tail], b.buf[b.head:b.tail])
	b.buf = nb
}
