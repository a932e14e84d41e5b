package understory

import (
	"sort"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/grammar"
	"github.com/jward/understory/internal/ropeio"
)

// EventKind tags a HighlightEvent.
type EventKind uint8

const (
	// EventSource is a verbatim text span [Start, End).
	EventSource EventKind = iota
	// EventHighlightStart opens a style; it nests inside any style
	// already open at that point.
	EventHighlightStart
	// EventHighlightEnd closes the most recently opened style.
	EventHighlightEnd
)

// HighlightEvent is one element of the render stream: Source spans
// interleaved with well-nested start/end style markers. Concatenating
// the Source spans of a stream reconstructs the queried range exactly
// once, with no gaps or overlaps.
type HighlightEvent struct {
	Kind      EventKind
	Start     uint32 // Source only
	End       uint32 // Source only
	Highlight Highlight
}

// styledSpan is an intermediate (byte range, style) pair.
type styledSpan struct {
	start, end uint32
	h          Highlight
}

// Highlight computes the event stream for [start, end). Layers compose
// root-first, deepest-last: an injected language's styles nest inside,
// and therefore render over, its parent's for the same span. Broken or
// unparsable layers contribute nothing; the worst case is unstyled text,
// never an error.
func (s *Syntax) Highlight(start, end uint32) []HighlightEvent {
	if end > s.reader.Len() {
		end = s.reader.Len()
	}
	if start >= end {
		return nil
	}
	return composeHighlights(s.visibleLayers(start, end), s.reader, start, end, s.logger)
}

// Highlight computes the event stream for [start, end) over the frozen
// forest. text must be the document content as of the snapshot.
func (sn *Snapshot) Highlight(text Text, start, end uint32) []HighlightEvent {
	reader := ropeio.NewReader(text)
	if end > reader.Len() {
		end = reader.Len()
	}
	if start >= end {
		return nil
	}
	views := make([]viewLayer, 0, len(sn.layers))
	for _, l := range sn.layers {
		views = append(views, viewLayer{config: l.config, root: l.tree.RootNode()})
	}
	return composeHighlights(views, reader, start, end, sn.src.logger)
}

func composeHighlights(layers []viewLayer, reader *ropeio.Reader, start, end uint32, logger *log.Logger) []HighlightEvent {
	events := []HighlightEvent{{Kind: EventSource, Start: start, End: end}}
	for _, v := range layers {
		spans, incomplete := layerHighlights(v, reader, start, end)
		if incomplete {
			logger.Debug("highlight scan incomplete", "language", v.config.Name)
		}
		if len(spans) > 0 {
			events = overlay(events, spans)
		}
	}
	return events
}

// layerHighlights runs one layer's highlights query and flattens the
// captured node ranges, clipped to [start, end), into an ordered,
// non-overlapping set where the innermost capture wins. The boolean
// reports a match-limit overrun (the result is then partial).
func layerHighlights(v viewLayer, reader *ropeio.Reader, start, end uint32) ([]styledSpan, bool) {
	q := v.config.Query(grammar.KindHighlights)
	if q == nil {
		return nil, false
	}

	var raw []styledSpan
	it := q.Exec(v.root, reader)
	defer it.Close()
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			h, ok := v.config.HighlightForSlot(c.Index)
			if !ok {
				continue
			}
			raw = append(raw, clipSpan(c.Node, start, end, h)...)
		}
	}
	return flatten(raw), it.Incomplete()
}

func clipSpan(n *sitter.Node, start, end uint32, h Highlight) []styledSpan {
	s, e := n.StartByte(), n.EndByte()
	if s < start {
		s = start
	}
	if e > end {
		e = end
	}
	if s >= e {
		return nil
	}
	return []styledSpan{{start: s, end: e, h: h}}
}

// flatten turns possibly-nested capture spans into an ordered,
// disjoint sequence. Capture spans come from tree nodes, so any two are
// either disjoint or nested; for nested spans the inner one styles its
// own range and the outer resumes around it.
func flatten(spans []styledSpan) []styledSpan {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var out []styledSpan
	var stack []styledSpan
	pos := spans[0].start

	flushTo := func(limit uint32) {
		for len(stack) > 0 && stack[len(stack)-1].end <= limit {
			top := stack[len(stack)-1]
			if pos < top.end {
				out = append(out, styledSpan{start: pos, end: top.end, h: top.h})
				pos = top.end
			}
			stack = stack[:len(stack)-1]
		}
		if pos < limit {
			if len(stack) > 0 {
				out = append(out, styledSpan{start: pos, end: limit, h: stack[len(stack)-1].h})
			}
			pos = limit
		}
	}

	for _, sp := range spans {
		flushTo(sp.start)
		stack = append(stack, sp)
	}
	flushTo(^uint32(0))
	return out
}

// overlay merges one layer's disjoint styled spans into an accumulated
// event stream. Each new range opens after any style already open at
// that point, nesting inside it; crossing an existing marker closes the
// new style and reopens it on the other side, so the stream stays
// well-nested. Source segments split at every new boundary falling
// strictly inside them.
func overlay(base []HighlightEvent, ranges []styledSpan) []HighlightEvent {
	out := make([]HighlightEvent, 0, len(base)+3*len(ranges))
	ri := 0
	open := false

	for _, ev := range base {
		switch ev.Kind {
		case EventSource:
			pos := ev.Start
			for pos < ev.End {
				if !open {
					if ri < len(ranges) && ranges[ri].start < ev.End && ranges[ri].end > pos {
						if ns := ranges[ri].start; ns > pos {
							out = append(out, HighlightEvent{Kind: EventSource, Start: pos, End: ns})
							pos = ns
						}
						out = append(out, HighlightEvent{Kind: EventHighlightStart, Highlight: ranges[ri].h})
						open = true
						continue
					}
					out = append(out, HighlightEvent{Kind: EventSource, Start: pos, End: ev.End})
					pos = ev.End
					continue
				}
				ne := ev.End
				if ranges[ri].end < ne {
					ne = ranges[ri].end
				}
				if ne > pos {
					out = append(out, HighlightEvent{Kind: EventSource, Start: pos, End: ne})
					pos = ne
				}
				if pos >= ranges[ri].end {
					out = append(out, HighlightEvent{Kind: EventHighlightEnd})
					open = false
					ri++
				}
			}
		default:
			if open {
				// The new style crosses an existing marker: close, let the
				// marker through, reopen inside.
				out = append(out, HighlightEvent{Kind: EventHighlightEnd})
				out = append(out, ev)
				out = append(out, HighlightEvent{Kind: EventHighlightStart, Highlight: ranges[ri].h})
			} else {
				out = append(out, ev)
			}
		}
	}
	if open {
		// A range ending exactly at the stream's end.
		out = append(out, HighlightEvent{Kind: EventHighlightEnd})
	}
	return out
}
