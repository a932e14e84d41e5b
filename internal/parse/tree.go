// Package parse wraps tree-sitter's native handles: the incrementally
// reparsable syntax tree and the compiled query. Raw pointer lifetime
// reasoning stays inside this package; callers see Tree and Query values
// with explicit Close semantics and never touch the C objects directly,
// except for *sitter.Node values which tree-sitter guarantees are plain
// values valid for the lifetime of their tree.
package parse

import (
	"context"
	"errors"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/ropeio"
)

// ErrParseFailed reports that the grammar could not produce a tree for the
// given input. The owning layer stays in an unparsed state.
var ErrParseFailed = errors.New("parse: grammar produced no tree")

// Point is a zero-based row/column position.
type Point = sitter.Point

// Span is a byte range with its row/column endpoints. Spans describe both
// injection placement and the included ranges handed to the parser.
type Span struct {
	StartByte uint32
	EndByte   uint32
	StartPos  Point
	EndPos    Point
}

// Contains reports whether the half-open byte range [start, end) lies
// within the span.
func (s Span) Contains(start, end uint32) bool {
	return s.StartByte <= start && end <= s.EndByte
}

func (s Span) sitterRange() sitter.Range {
	return sitter.Range{
		StartByte:  s.StartByte,
		EndByte:    s.EndByte,
		StartPoint: s.StartPos,
		EndPoint:   s.EndPos,
	}
}

// InputEdit describes one byte-range replacement in both byte and
// row/column coordinates. It must be applied to every live Tree, in
// document order, before the next parse.
type InputEdit struct {
	StartByte  uint32
	OldEndByte uint32
	NewEndByte uint32
	StartPos   Point
	OldEndPos  Point
	NewEndPos  Point
}

// Tree owns one incrementally parsable syntax tree for a single grammar.
// The zero-value-like state returned by NewTree holds no tree until the
// first Parse. A Tree is single-writer: Edit and Parse must come from one
// goroutine; Clone hands frozen copies to others.
type Tree struct {
	lang   *sitter.Language
	parser *sitter.Parser
	tree   *sitter.Tree
}

// NewTree returns an unparsed Tree for the given grammar.
func NewTree(lang *sitter.Language) *Tree {
	return &Tree{lang: lang}
}

// Parsed reports whether the Tree currently holds a syntax tree.
func (t *Tree) Parsed() bool {
	return t.tree != nil
}

// RootNode returns the root of the current tree, or nil while unparsed.
// The node is valid as long as the tree lives, i.e. until the next Parse
// or Close.
func (t *Tree) RootNode() *sitter.Node {
	if t.tree == nil {
		return nil
	}
	return t.tree.RootNode()
}

// Edit shifts the tree's byte offsets for a pending replacement. Node
// boundaries past the edit are not correct for the new content until the
// next incremental Parse.
func (t *Tree) Edit(e InputEdit) {
	if t.tree == nil {
		return
	}
	t.tree.Edit(sitter.EditInput{
		StartIndex:  e.StartByte,
		OldEndIndex: e.OldEndByte,
		NewEndIndex: e.NewEndByte,
		StartPoint:  e.StartPos,
		OldEndPoint: e.OldEndPos,
		NewEndPoint: e.NewEndPos,
	})
}

// Parse (re)parses the text read through r, reusing the previous tree for
// incremental speed when one exists. When spans is non-empty the parser is
// restricted to those included ranges, which is how injected layers parse
// only their slice of the document. On failure the previous tree is
// discarded and the Tree reverts to the unparsed state.
func (t *Tree) Parse(ctx context.Context, r *ropeio.Reader, spans []Span) error {
	if t.parser == nil {
		t.parser = sitter.NewParser()
		t.parser.SetLanguage(t.lang)
	}
	if len(spans) > 0 {
		ranges := make([]sitter.Range, len(spans))
		for i, s := range spans {
			ranges[i] = s.sitterRange()
		}
		t.parser.SetIncludedRanges(ranges)
	} else {
		t.parser.SetIncludedRanges(nil)
	}

	next, err := t.parser.ParseInputCtx(ctx, t.tree, r.Input())
	if err == nil && next == nil {
		err = ErrParseFailed
	}
	if err != nil {
		if t.tree != nil {
			t.tree.Close()
			t.tree = nil
		}
		return err
	}
	if t.tree != nil {
		t.tree.Close()
	}
	t.tree = next
	return nil
}

// Clone returns a frozen duplicate sharing the underlying structure.
// Duplication is cheap; the clone has no parser and exists only so a
// background task can read while the original keeps editing. Close it
// when done.
func (t *Tree) Clone() *Tree {
	c := &Tree{lang: t.lang}
	if t.tree != nil {
		c.tree = t.tree.Copy()
	}
	return c
}

// Close frees the native tree and parser. The Tree must not be used after.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
	if t.parser != nil {
		t.parser.Close()
		t.parser = nil
	}
}

// NodeSpan returns the Span covering a node.
func NodeSpan(n *sitter.Node) Span {
	return Span{
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		StartPos:  n.StartPoint(),
		EndPos:    n.EndPoint(),
	}
}
