package understory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkEventStream verifies the two structural invariants of an event
// stream: Source spans reconstruct [start, end) exactly once with no gaps
// or overlaps, and start/end markers are well-nested.
func checkEventStream(t *testing.T, events []HighlightEvent, start, end uint32) {
	t.Helper()
	depth := 0
	pos := start
	for _, ev := range events {
		switch ev.Kind {
		case EventSource:
			require.Equal(t, pos, ev.Start, "source spans must be contiguous")
			require.Greater(t, ev.End, ev.Start, "empty source span")
			pos = ev.End
		case EventHighlightStart:
			depth++
		case EventHighlightEnd:
			depth--
			require.GreaterOrEqual(t, depth, 0, "end without matching start")
		}
	}
	require.Equal(t, end, pos, "source spans must cover the full range")
	require.Equal(t, 0, depth, "unclosed highlight")
}

func src(start, end uint32) HighlightEvent {
	return HighlightEvent{Kind: EventSource, Start: start, End: end}
}

func hlStart(h Highlight) HighlightEvent {
	return HighlightEvent{Kind: EventHighlightStart, Highlight: h}
}

func hlEnd() HighlightEvent {
	return HighlightEvent{Kind: EventHighlightEnd}
}

func TestOverlayReference(t *testing.T) {
	// Base span [0,31); overlay [2,10) with highlight 1; then overlay
	// [0,4) with highlight 2. The second overlay crosses the first's
	// start, so it splits and reopens inside.
	base := []HighlightEvent{src(0, 31)}
	step := overlay(base, []styledSpan{{2, 10, Highlight(1)}})
	got := overlay(step, []styledSpan{{0, 4, Highlight(2)}})

	want := []HighlightEvent{
		hlStart(2), src(0, 2), hlEnd(),
		hlStart(1),
		hlStart(2), src(2, 4), hlEnd(),
		src(4, 10),
		hlEnd(),
		src(10, 31),
	}
	assert.Equal(t, want, got)
	checkEventStream(t, got, 0, 31)
}

func TestOverlaySimpleNesting(t *testing.T) {
	got := overlay([]HighlightEvent{src(0, 20)}, []styledSpan{{5, 10, Highlight(3)}})
	want := []HighlightEvent{
		src(0, 5), hlStart(3), src(5, 10), hlEnd(), src(10, 20),
	}
	assert.Equal(t, want, got)
}

func TestOverlayAtStreamEdges(t *testing.T) {
	got := overlay([]HighlightEvent{src(0, 10)}, []styledSpan{{0, 10, Highlight(1)}})
	want := []HighlightEvent{hlStart(1), src(0, 10), hlEnd()}
	assert.Equal(t, want, got)
	checkEventStream(t, got, 0, 10)
}

func TestOverlayMultipleDisjointRanges(t *testing.T) {
	got := overlay([]HighlightEvent{src(0, 30)}, []styledSpan{
		{2, 4, Highlight(1)},
		{4, 8, Highlight(2)},
		{20, 30, Highlight(1)},
	})
	want := []HighlightEvent{
		src(0, 2),
		hlStart(1), src(2, 4), hlEnd(),
		hlStart(2), src(4, 8), hlEnd(),
		src(8, 20),
		hlStart(1), src(20, 30), hlEnd(),
	}
	assert.Equal(t, want, got)
	checkEventStream(t, got, 0, 30)
}

func TestFlattenInnermostWins(t *testing.T) {
	got := flatten([]styledSpan{
		{0, 20, Highlight(1)},
		{5, 10, Highlight(2)},
	})
	want := []styledSpan{
		{0, 5, Highlight(1)},
		{5, 10, Highlight(2)},
		{10, 20, Highlight(1)},
	}
	assert.Equal(t, want, got)
}

func TestFlattenDisjointAndGaps(t *testing.T) {
	got := flatten([]styledSpan{
		{10, 15, Highlight(2)},
		{0, 5, Highlight(1)},
	})
	want := []styledSpan{
		{0, 5, Highlight(1)},
		{10, 15, Highlight(2)},
	}
	assert.Equal(t, want, got)
}

// openedScopes returns the scope names opened anywhere in the stream.
func openedScopes(s *Syntax, events []HighlightEvent) map[string]bool {
	scopes := make(map[string]bool)
	for _, ev := range events {
		if ev.Kind == EventHighlightStart {
			scopes[s.loader.ScopeName(ev.Highlight)] = true
		}
	}
	return scopes
}

func TestHighlightGo(t *testing.T) {
	text := "package p\n\nfunc main() {}\n"
	s := newSyntax(t, "go", text)

	events := s.Highlight(0, uint32(len(text)))
	checkEventStream(t, events, 0, uint32(len(text)))

	scopes := openedScopes(s, events)
	assert.True(t, scopes["keyword"], "expected keyword highlights, got %v", scopes)
	assert.True(t, scopes["function"], "expected function highlight for main, got %v", scopes)
}

func TestHighlightComposesInjectedLayers(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)

	events := s.Highlight(0, uint32(len(htmlDoc)))
	checkEventStream(t, events, 0, uint32(len(htmlDoc)))

	scopes := openedScopes(s, events)
	assert.True(t, scopes["tag"], "html layer should style tag names, got %v", scopes)
	assert.True(t, scopes["keyword"], "javascript layer should style var, got %v", scopes)
	assert.True(t, scopes["property"], "css layer should style color, got %v", scopes)
}

func TestHighlightWindow(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)

	// Only the script region: its sources must cover exactly [14, 24).
	events := s.Highlight(14, 24)
	checkEventStream(t, events, 14, 24)
	assert.True(t, openedScopes(s, events)["keyword"])
}

func TestHighlightClampsRange(t *testing.T) {
	text := "package p\n"
	s := newSyntax(t, "go", text)

	events := s.Highlight(0, 10_000)
	checkEventStream(t, events, 0, uint32(len(text)))
	assert.Nil(t, s.Highlight(5, 5))
}
