// Package understory is an incremental, multi-language syntax-analysis
// engine built on tree-sitter. It keeps a forest of per-language parse
// layers consistent with a continuously edited text buffer, discovers
// embedded-language injections dynamically, and answers highlighting,
// bracket-matching, structural-selection, and text-object queries against
// a chunked, rope-backed view of the text.
//
// # Model
//
// A [Syntax] owns a tree of language layers. The root layer parses the
// whole document; an injections query run on each parsed layer discovers
// regions that belong to another language (a script block inside markup,
// say) and creates child layers for them, recursively. Layers live in a
// generational arena, so restructuring the forest can never dangle a
// stale reference.
//
// # Usage
//
// Create a Syntax over a text, edit, and query:
//
//	text := understory.Bytes(src)
//	syn, err := understory.New("html", text)
//	if err != nil { ... }
//	defer syn.Close()
//
//	events, err := syn.Highlight(0, text.Len())
//	match, ok := syn.MatchBracket(42)
//
// After each buffer edit, call [Syntax.Update] with the edit's byte and
// row/column coordinates and the post-edit text. Only the layers whose
// ranges the edit touches are reparsed; injections are rediscovered and
// diffed against the previous set so unchanged children keep their
// incremental state.
//
// # Highlighting
//
// [Syntax.Highlight] returns a well-nested stream of [HighlightEvent]
// values: Source spans interleaved with HighlightStart/HighlightEnd
// markers. Layers compose root-first, deepest-last, so an injected
// language's highlighting overrides its parent's for the same span. For
// background highlighting, [Syntax.Snapshot] hands a frozen copy of the
// forest to another goroutine; results are checked against an edit
// generation and discarded when stale.
//
// Text access is chunked throughout: the engine never assumes a
// contiguous buffer, and a plain []byte is just a one-chunk [Text].
package understory
