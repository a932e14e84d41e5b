// Package ropeio bridges chunked, rope-backed text to the byte-cursor
// contract of the parser and query engine. The engine never assumes a
// contiguous buffer: all access goes through a Reader positioned over a
// Text's chunk cursor.
package ropeio

// Text is a read-only view of a document as an ordered sequence of byte
// chunks. Rope buffers expose this directly; a plain []byte is a Text with
// one chunk.
type Text interface {
	// Len returns the total byte length.
	Len() uint32
	// CursorAt returns a new cursor whose current chunk contains offset.
	// An offset at or past Len yields a cursor positioned at the end with
	// an empty current chunk.
	CursorAt(offset uint32) Cursor
}

// Cursor walks a Text's chunks in document order.
type Cursor interface {
	// Chunk returns the current chunk and the document offset of its first
	// byte. The chunk is empty only at end of text.
	Chunk() ([]byte, uint32)
	// Next advances to the following chunk, reporting false at end of text.
	Next() bool
}

// Bytes adapts a contiguous buffer to Text. Used by the CLI and in tests
// where no rope is involved.
type Bytes []byte

func (b Bytes) Len() uint32 { return uint32(len(b)) }

func (b Bytes) CursorAt(offset uint32) Cursor {
	if offset > uint32(len(b)) {
		offset = uint32(len(b))
	}
	return &bytesCursor{data: b, at: offset}
}

type bytesCursor struct {
	data []byte
	at   uint32
}

func (c *bytesCursor) Chunk() ([]byte, uint32) { return c.data[c.at:], c.at }
func (c *bytesCursor) Next() bool              { c.at = uint32(len(c.data)); return false }

// Chunked is a Text split into fixed pieces. Tests use it to exercise the
// chunk-boundary paths that a real rope produces.
type Chunked [][]byte

// SplitText slices s into chunks of at most size bytes.
func SplitText(s string, size int) Chunked {
	if size <= 0 {
		size = 1
	}
	var out Chunked
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		out = append(out, []byte(s[:n]))
		s = s[n:]
	}
	return out
}

func (c Chunked) Len() uint32 {
	var n uint32
	for _, ch := range c {
		n += uint32(len(ch))
	}
	return n
}

func (c Chunked) CursorAt(offset uint32) Cursor {
	cur := &chunkedCursor{text: c}
	var start uint32
	for i, ch := range c {
		end := start + uint32(len(ch))
		if offset < end {
			cur.idx = i
			cur.start = start
			return cur
		}
		start = end
	}
	cur.idx = len(c)
	cur.start = start
	return cur
}

type chunkedCursor struct {
	text  Chunked
	idx   int
	start uint32
}

func (c *chunkedCursor) Chunk() ([]byte, uint32) {
	if c.idx >= len(c.text) {
		return nil, c.start
	}
	return c.text[c.idx], c.start
}

func (c *chunkedCursor) Next() bool {
	if c.idx >= len(c.text) {
		return false
	}
	c.start += uint32(len(c.text[c.idx]))
	c.idx++
	return c.idx < len(c.text)
}
