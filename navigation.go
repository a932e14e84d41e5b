package understory

import (
	sitter "github.com/smacker/go-tree-sitter"
)

var bracketPairs = [...][2]byte{
	{'(', ')'},
	{'[', ']'},
	{'{', '}'},
}

func isBracket(b byte) bool {
	for _, p := range bracketPairs {
		if b == p[0] || b == p[1] {
			return true
		}
	}
	return false
}

func isPair(open, close byte) bool {
	for _, p := range bracketPairs {
		if open == p[0] && close == p[1] {
			return true
		}
	}
	return false
}

// MatchBracket returns the byte offset of the bracket pairing the one at
// offset. The character at offset must itself be a bracket sitting on a
// node boundary.
func (s *Syntax) MatchBracket(offset uint32) (uint32, bool) {
	return s.matchBracket(offset, false)
}

// MatchBracketFuzzy behaves like MatchBracket but also works from inside
// a bracketed region: it walks up through enclosing nodes until one is
// delimited by a known pair and jumps to its closing bracket.
func (s *Syntax) MatchBracketFuzzy(offset uint32) (uint32, bool) {
	return s.matchBracket(offset, true)
}

func (s *Syntax) matchBracket(offset uint32, fuzzy bool) (uint32, bool) {
	if !fuzzy {
		b, ok := s.reader.ByteAt(offset)
		if !ok || !isBracket(b) {
			return 0, false
		}
	}
	root, _ := s.parsedRootFor(offset, offset+1)
	if root == nil {
		return 0, false
	}

	for n := smallestNamedNode(root, offset, offset+1); n != nil; n = n.Parent() {
		if n.EndByte()-n.StartByte() >= 2 {
			// End byte adjusted to the last character, not one-past.
			startB, endB := n.StartByte(), n.EndByte()-1
			openCh, okO := s.reader.ByteAt(startB)
			closeCh, okC := s.reader.ByteAt(endB)
			if okO && okC && isPair(openCh, closeCh) {
				switch {
				case offset == endB:
					return startB, true
				case offset == startB || fuzzy:
					return endB, true
				}
			}
		}
		if !fuzzy {
			return 0, false
		}
	}
	return 0, false
}

// Selection is a character-offset range with a logical direction: Anchor
// is the fixed end, Head the moving end. Head before Anchor means the
// selection extends backward.
type Selection struct {
	Anchor uint32
	Head   uint32
}

func (sel Selection) bounds() (from, to uint32) {
	if sel.Head < sel.Anchor {
		return sel.Head, sel.Anchor
	}
	return sel.Anchor, sel.Head
}

func (sel Selection) reversed() bool { return sel.Head < sel.Anchor }

// ExpandSelection grows the selection to the smallest named node strictly
// larger than it. Repeated calls climb toward the document root.
func (s *Syntax) ExpandSelection(sel Selection) Selection {
	n, start, end, ok := s.selectionNode(sel)
	if !ok {
		return sel
	}
	for n != nil && n.StartByte() == start && n.EndByte() == end {
		n = n.Parent()
	}
	if n == nil {
		return sel
	}
	return s.selectionFromNode(sel, n)
}

// ShrinkSelection narrows a node-aligned selection to its first named
// child; a selection not aligned to a node snaps to the smallest node
// containing it.
func (s *Syntax) ShrinkSelection(sel Selection) Selection {
	n, start, end, ok := s.selectionNode(sel)
	if !ok || n == nil {
		return sel
	}
	if n.StartByte() == start && n.EndByte() == end && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	return s.selectionFromNode(sel, n)
}

// SelectNextSibling moves the selection to the node's next named sibling,
// climbing to the parent when none exists until a sibling is found or the
// root is reached.
func (s *Syntax) SelectNextSibling(sel Selection) Selection {
	return s.selectSibling(sel, true)
}

// SelectPrevSibling is SelectNextSibling in the other direction.
func (s *Syntax) SelectPrevSibling(sel Selection) Selection {
	return s.selectSibling(sel, false)
}

func (s *Syntax) selectSibling(sel Selection, next bool) Selection {
	n, _, _, ok := s.selectionNode(sel)
	if !ok {
		return sel
	}
	for ; n != nil; n = n.Parent() {
		var sib *sitter.Node
		if next {
			sib = n.NextNamedSibling()
		} else {
			sib = n.PrevNamedSibling()
		}
		if sib != nil {
			return s.selectionFromNode(sel, sib)
		}
	}
	return sel
}

// selectionNode converts the character-offset selection to bytes,
// resolves the owning layer, and returns the smallest named node
// containing the byte range.
func (s *Syntax) selectionNode(sel Selection) (*sitter.Node, uint32, uint32, bool) {
	fromChar, toChar := sel.bounds()
	start := s.reader.CharToByte(fromChar)
	end := s.reader.CharToByte(toChar)
	if end == start {
		end = start + 1
	}
	root, _ := s.parsedRootFor(start, end)
	if root == nil {
		return nil, 0, 0, false
	}
	return smallestNamedNode(root, start, end), start, end, true
}

// selectionFromNode converts a node's byte range back to character
// offsets, preserving the selection's logical direction.
func (s *Syntax) selectionFromNode(sel Selection, n *sitter.Node) Selection {
	from := s.reader.ByteToChar(n.StartByte())
	to := s.reader.ByteToChar(n.EndByte())
	if sel.reversed() {
		return Selection{Anchor: to, Head: from}
	}
	return Selection{Anchor: from, Head: to}
}

// smallestNamedNode descends from root to the smallest named node whose
// byte range contains [start, end).
func smallestNamedNode(root *sitter.Node, start, end uint32) *sitter.Node {
	n := root
	for {
		child := namedChildContaining(n, start, end)
		if child == nil {
			return n
		}
		n = child
	}
}

func namedChildContaining(n *sitter.Node, start, end uint32) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() <= start && end <= c.EndByte() {
			return c
		}
	}
	return nil
}
