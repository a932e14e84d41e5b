package understory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const htmlDoc = `<html><script>var x = 1;</script><style>a { color: red }</style></html>`

// Byte layout of htmlDoc:
//   [6,14)  <script>        [14,24) var x = 1;
//   [33,40) <style>         [40,56) a { color: red }

func newSyntax(t *testing.T, language, src string) *Syntax {
	t.Helper()
	s, err := New(context.Background(), language, Bytes(src))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func rootInjections(t *testing.T, s *Syntax) []injection {
	t.Helper()
	l, ok := s.layers.Get(s.root)
	require.True(t, ok)
	return l.injections
}

func checkInjectionInvariants(t *testing.T, s *Syntax) {
	t.Helper()
	s.layers.Range(func(_ LayerID, l *layer) bool {
		for i, inj := range l.injections {
			assert.Less(t, inj.span.StartByte, inj.span.EndByte)
			if i > 0 {
				prev := l.injections[i-1]
				assert.LessOrEqual(t, prev.span.EndByte, inj.span.StartByte,
					"injection ranges must stay sorted and disjoint")
			}
		}
		return true
	})
}

func TestNewUnknownLanguage(t *testing.T) {
	_, err := New(context.Background(), "cobol", Bytes("x"))
	assert.Error(t, err)
}

func TestRootOnlyDocument(t *testing.T) {
	s := newSyntax(t, "go", "package p\n\nfunc main() {}\n")
	assert.Equal(t, "go", s.Language(0, 5))
	assert.Empty(t, rootInjections(t, s))
}

func TestInjectionDiscovery(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)

	injs := rootInjections(t, s)
	require.Len(t, injs, 2)
	assert.Equal(t, "javascript", injs[0].language)
	assert.Equal(t, "css", injs[1].language)
	checkInjectionInvariants(t, s)

	assert.Equal(t, "javascript", s.Language(16, 20))
	assert.Equal(t, "css", s.Language(42, 50))
	// A range crossing an injection boundary belongs to the parent.
	assert.Equal(t, "html", s.Language(10, 50))
	assert.Equal(t, "html", s.Language(0, uint32(len(htmlDoc))))
}

func TestChildLayersParseLazily(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)

	injs := rootInjections(t, s)
	require.Len(t, injs, 2)
	child, ok := s.layers.Get(injs[0].child)
	require.True(t, ok)
	assert.Nil(t, child.tree, "child layers parse on first access, not at discovery")

	// Highlighting the script region forces the javascript layer in.
	s.Highlight(14, 24)
	child, ok = s.layers.Get(injs[0].child)
	require.True(t, ok)
	require.NotNil(t, child.tree)
	assert.True(t, child.tree.Parsed())
}

func TestUpdateKeepsMatchingChildren(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)
	before := rootInjections(t, s)
	require.Len(t, before, 2)
	jsID, cssID := before[0].child, before[1].child

	// Insert "<b>hi</b>" right after <html>; both injections shift by 9
	// but keep their content, so both children must survive.
	edited := htmlDoc[:6] + "<b>hi</b>" + htmlDoc[6:]
	err := s.Update(context.Background(), InputEdit{
		StartByte: 6, OldEndByte: 6, NewEndByte: 15,
		StartPos:  Point{Row: 0, Column: 6},
		OldEndPos: Point{Row: 0, Column: 6},
		NewEndPos: Point{Row: 0, Column: 15},
	}, Bytes(edited))
	require.NoError(t, err)

	after := rootInjections(t, s)
	require.Len(t, after, 2)
	assert.Equal(t, jsID, after[0].child, "shifted-but-unchanged child layer must be kept")
	assert.Equal(t, cssID, after[1].child)
	assert.Equal(t, uint32(23), after[0].span.StartByte)
	assert.Equal(t, uint32(33), after[0].span.EndByte)
	assert.Equal(t, "javascript", s.Language(25, 30))
	checkInjectionInvariants(t, s)
}

func TestUpdateDropsRemovedChildren(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)
	before := rootInjections(t, s)
	require.Len(t, before, 2)
	jsID := before[0].child

	// Force the js child to exist, then delete the whole script element.
	s.Highlight(14, 24)

	edited := htmlDoc[:6] + htmlDoc[33:]
	err := s.Update(context.Background(), InputEdit{
		StartByte: 6, OldEndByte: 33, NewEndByte: 6,
		StartPos:  Point{Row: 0, Column: 6},
		OldEndPos: Point{Row: 0, Column: 33},
		NewEndPos: Point{Row: 0, Column: 6},
	}, Bytes(edited))
	require.NoError(t, err)

	after := rootInjections(t, s)
	require.Len(t, after, 1)
	assert.Equal(t, "css", after[0].language)

	_, ok := s.layers.Get(jsID)
	assert.False(t, ok, "removed child's LayerID must stop resolving")
	checkInjectionInvariants(t, s)
}

func TestUpdateInsideInjectionReparsesChild(t *testing.T) {
	s := newSyntax(t, "html", htmlDoc)
	jsID := rootInjections(t, s)[0].child
	s.Highlight(14, 24) // parse the js child

	// "var x = 1;" -> "var xy = 1;" inside the script.
	edited := htmlDoc[:19] + "y" + htmlDoc[19:]
	err := s.Update(context.Background(), InputEdit{
		StartByte: 19, OldEndByte: 19, NewEndByte: 20,
		StartPos:  Point{Row: 0, Column: 19},
		OldEndPos: Point{Row: 0, Column: 19},
		NewEndPos: Point{Row: 0, Column: 20},
	}, Bytes(edited))
	require.NoError(t, err)

	after := rootInjections(t, s)
	require.Len(t, after, 2)
	assert.Equal(t, jsID, after[0].child, "same-position child keeps its incremental tree")

	child, ok := s.layers.Get(jsID)
	require.True(t, ok)
	require.NotNil(t, child.tree)
	require.True(t, child.tree.Parsed())
	assert.Equal(t, uint32(25), after[0].span.EndByte)
	assert.Equal(t, "javascript", s.Language(15, 24))
}

func TestUnresolvableInjectionFallsBackToParent(t *testing.T) {
	// The shipped javascript injections route regex literals to a "regex"
	// language that has no grammar: the range is recorded, no child
	// exists, and lookups stay on the parent.
	src := `var re = /ab+c/;`
	s := newSyntax(t, "javascript", src)

	injs := rootInjections(t, s)
	require.Len(t, injs, 1)
	assert.Equal(t, "regex", injs[0].language)
	assert.True(t, injs[0].child.IsZero())
	assert.Equal(t, "javascript", s.Language(10, 14))
}

func TestGenerationAndSnapshot(t *testing.T) {
	s := newSyntax(t, "go", "package p\n\nfunc main() {}\n")
	require.EqualValues(t, 0, s.Generation())

	sn := s.Snapshot()
	defer sn.Close()
	assert.False(t, sn.Stale())

	edited := "package p\n\nfunc mainLoop() {}\n"
	err := s.Update(context.Background(), InputEdit{
		StartByte: 20, OldEndByte: 20, NewEndByte: 24,
		StartPos:  Point{Row: 2, Column: 9},
		OldEndPos: Point{Row: 2, Column: 9},
		NewEndPos: Point{Row: 2, Column: 13},
	}, Bytes(edited))
	require.NoError(t, err)

	require.EqualValues(t, 1, s.Generation())
	assert.True(t, sn.Stale(), "snapshot from before the edit is stale")

	// The snapshot still highlights the pre-edit text.
	events := sn.Highlight(Bytes("package p\n\nfunc main() {}\n"), 0, 26)
	checkEventStream(t, events, 0, 26)
}
