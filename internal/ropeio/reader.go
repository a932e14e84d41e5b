package ropeio

import (
	"bytes"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// JumpThreshold is how far ahead of the current chunk a requested offset may
// be before the Reader abandons its cursor and starts a fresh one. Small
// forward moves advance chunk-by-chunk; backward moves and far jumps (into a
// distant injection, say) restart. Tuning constant, not a correctness
// invariant.
const JumpThreshold = 4096

// Reader gives the parser and query engine byte access to a Text without
// copying. It keeps one active chunk cursor and serves the common case,
// contiguous forward scanning, by advancing that cursor in place.
//
// A Reader is not safe for concurrent use; each query execution or parse
// gets its own.
type Reader struct {
	text  Text
	cur   Cursor
	chunk []byte
	start uint32 // document offset of chunk[0]

	restarts int
}

// NewReader returns a Reader positioned at the start of text.
func NewReader(text Text) *Reader {
	r := &Reader{text: text}
	r.restart(0)
	return r
}

// Len returns the total byte length of the underlying text.
func (r *Reader) Len() uint32 { return r.text.Len() }

func (r *Reader) restart(offset uint32) {
	r.cur = r.text.CursorAt(offset)
	r.chunk, r.start = r.cur.Chunk()
	r.restarts++
}

// ReadAt returns the longest contiguous byte run starting at offset, or an
// empty slice at or past end of text. The returned slice is valid until the
// next Reader call.
func (r *Reader) ReadAt(offset uint32) []byte {
	if offset >= r.text.Len() {
		return nil
	}
	end := r.start + uint32(len(r.chunk))
	if offset < r.start || offset > end+JumpThreshold {
		r.restart(offset)
	}
	for offset >= r.start+uint32(len(r.chunk)) {
		if !r.cur.Next() {
			return nil
		}
		r.chunk, r.start = r.cur.Chunk()
	}
	return r.chunk[offset-r.start:]
}

// ReadFunc adapts ReadAt to the tree-sitter input callback.
func (r *Reader) ReadFunc(offset uint32, _ sitter.Point) []byte {
	return r.ReadAt(offset)
}

// Input wraps the Reader as a tree-sitter parse input.
func (r *Reader) Input() sitter.Input {
	return sitter.Input{Read: r.ReadFunc, Encoding: sitter.InputEncodingUTF8}
}

// Restarts reports how many times the Reader started a fresh cursor,
// including the initial one. Test hook for the jump-threshold behavior.
func (r *Reader) Restarts() int { return r.restarts }

// Slice copies the bytes in [start, end) out of the text. Ranges past the
// end are clipped.
func (r *Reader) Slice(start, end uint32) []byte {
	if end > r.text.Len() {
		end = r.text.Len()
	}
	if start >= end {
		return nil
	}
	out := make([]byte, 0, end-start)
	for start < end {
		run := r.ReadAt(start)
		if len(run) == 0 {
			break
		}
		if uint32(len(run)) > end-start {
			run = run[:end-start]
		}
		out = append(out, run...)
		start += uint32(len(run))
	}
	return out
}

// ByteAt returns the byte at offset, or false past end of text.
func (r *Reader) ByteAt(offset uint32) (byte, bool) {
	run := r.ReadAt(offset)
	if len(run) == 0 {
		return 0, false
	}
	return run[0], true
}

// Eq reports whether [aStart,aEnd) and [bStart,bEnd) hold identical bytes.
// This is the structural-equality primitive behind capture-vs-capture query
// predicates. Comparison walks both ranges chunkwise through independent
// cursors so the active cursor position is left usable for the caller's
// forward scan.
func (r *Reader) Eq(aStart, aEnd, bStart, bEnd uint32) bool {
	if aEnd-aStart != bEnd-bStart {
		return false
	}
	if aStart == bStart {
		return true
	}
	ca := r.text.CursorAt(aStart)
	cb := r.text.CursorAt(bStart)
	remain := aEnd - aStart
	runA := chunkFrom(ca, aStart)
	runB := chunkFrom(cb, bStart)
	for remain > 0 {
		if len(runA) == 0 {
			if !ca.Next() {
				return false
			}
			runA = chunkFrom(ca, 0)
		}
		if len(runB) == 0 {
			if !cb.Next() {
				return false
			}
			runB = chunkFrom(cb, 0)
		}
		n := len(runA)
		if len(runB) < n {
			n = len(runB)
		}
		if uint32(n) > remain {
			n = int(remain)
		}
		if !bytes.Equal(runA[:n], runB[:n]) {
			return false
		}
		runA = runA[n:]
		runB = runB[n:]
		remain -= uint32(n)
	}
	return true
}

// chunkFrom returns the cursor's current chunk, trimmed so it begins at
// offset when offset falls inside it. A zero offset returns the chunk as is.
func chunkFrom(c Cursor, offset uint32) []byte {
	chunk, start := c.Chunk()
	if offset > start && offset-start <= uint32(len(chunk)) {
		chunk = chunk[offset-start:]
	}
	return chunk
}

// ByteToChar converts a byte offset to a character (rune) offset by scanning
// from the start of the text. An offset inside a multi-byte rune maps to that
// rune's index. Rune boundaries are found from leading bytes only, so runes
// split across chunk boundaries count once.
func (r *Reader) ByteToChar(offset uint32) uint32 {
	var at, chars uint32
	for at < offset {
		b, ok := r.ByteAt(at)
		if !ok {
			break
		}
		at += uint32(runeLen(b))
		chars++
	}
	return chars
}

// CharToByte converts a character (rune) offset to a byte offset.
func (r *Reader) CharToByte(chars uint32) uint32 {
	var at uint32
	for chars > 0 {
		b, ok := r.ByteAt(at)
		if !ok {
			break
		}
		at += uint32(runeLen(b))
		chars--
	}
	return at
}

// runeLen returns the UTF-8 sequence length implied by a leading byte.
// Continuation and invalid bytes count as one, matching how the standard
// library attributes one rune per invalid byte.
func runeLen(b byte) int {
	switch {
	case b < utf8.RuneSelf:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
