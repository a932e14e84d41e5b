package parse

import (
	"context"
	"testing"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/understory/internal/ropeio"
)

func parseSource(t *testing.T, src string) (*Tree, *ropeio.Reader) {
	t.Helper()
	tree := NewTree(golang.GetLanguage())
	r := ropeio.NewReader(ropeio.Bytes(src))
	require.NoError(t, tree.Parse(context.Background(), r, nil))
	t.Cleanup(tree.Close)
	return tree, r
}

func TestNewTreeUnparsed(t *testing.T) {
	tree := NewTree(golang.GetLanguage())
	defer tree.Close()
	assert.False(t, tree.Parsed())
	assert.Nil(t, tree.RootNode())
}

func TestParse(t *testing.T) {
	tree, _ := parseSource(t, "package p\n\nfunc main() {}\n")
	require.True(t, tree.Parsed())

	root := tree.RootNode()
	require.NotNil(t, root)
	assert.Equal(t, "source_file", root.Type())
	assert.False(t, root.HasError())
}

func TestParseChunkedText(t *testing.T) {
	src := "package p\n\nfunc main() {}\n"
	tree := NewTree(golang.GetLanguage())
	defer tree.Close()
	r := ropeio.NewReader(ropeio.SplitText(src, 3))
	require.NoError(t, tree.Parse(context.Background(), r, nil))

	assert.Equal(t, uint32(len(src)), tree.RootNode().EndByte())
	assert.False(t, tree.RootNode().HasError())
}

// Incremental edit + reparse must yield node boundaries identical to a full
// reparse of the post-edit text.
func TestIncrementalReparseMatchesFull(t *testing.T) {
	cases := []struct {
		name    string
		before  string
		after   string
		edit    InputEdit
	}{
		{
			name:   "insertion",
			before: "package p\n\nfunc main() {}\n",
			after:  "package p\n\nfunc mainLoop() {}\n",
			edit: InputEdit{
				StartByte: 20, OldEndByte: 20, NewEndByte: 24,
				StartPos:  Point{Row: 2, Column: 9},
				OldEndPos: Point{Row: 2, Column: 9},
				NewEndPos: Point{Row: 2, Column: 13},
			},
		},
		{
			name:   "deletion",
			before: "package p\n\nvar count int\nvar other int\n",
			after:  "package p\n\nvar other int\n",
			edit: InputEdit{
				StartByte: 11, OldEndByte: 25, NewEndByte: 11,
				StartPos:  Point{Row: 2, Column: 0},
				OldEndPos: Point{Row: 3, Column: 0},
				NewEndPos: Point{Row: 2, Column: 0},
			},
		},
		{
			name:   "large insertion",
			before: "package p\n",
			after:  "package p\n\nfunc a() {}\nfunc b() {}\nfunc c() { x := 1; _ = x }\n",
			edit: InputEdit{
				StartByte: 10, OldEndByte: 10, NewEndByte: 62,
				StartPos:  Point{Row: 1, Column: 0},
				OldEndPos: Point{Row: 1, Column: 0},
				NewEndPos: Point{Row: 5, Column: 0},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, len(tc.before)-int(tc.edit.OldEndByte-tc.edit.StartByte)+
				int(tc.edit.NewEndByte-tc.edit.StartByte), len(tc.after), "test case is self-consistent")

			incr, _ := parseSource(t, tc.before)
			incr.Edit(tc.edit)
			r := ropeio.NewReader(ropeio.Bytes(tc.after))
			require.NoError(t, incr.Parse(context.Background(), r, nil))

			full, _ := parseSource(t, tc.after)

			assert.Equal(t, full.RootNode().String(), incr.RootNode().String())
			assert.Equal(t, full.RootNode().EndByte(), incr.RootNode().EndByte())
		})
	}
}

func TestCloneIsFrozen(t *testing.T) {
	tree, _ := parseSource(t, "package p\n\nfunc main() {}\n")

	clone := tree.Clone()
	defer clone.Close()
	require.True(t, clone.Parsed())
	before := clone.RootNode().String()

	// Mutating the original must not disturb the clone.
	after := "package p\n\nfunc other() {}\n"
	tree.Edit(InputEdit{
		StartByte: 16, OldEndByte: 20, NewEndByte: 21,
		StartPos:  Point{Row: 2, Column: 5},
		OldEndPos: Point{Row: 2, Column: 9},
		NewEndPos: Point{Row: 2, Column: 10},
	})
	r := ropeio.NewReader(ropeio.Bytes(after))
	require.NoError(t, tree.Parse(context.Background(), r, nil))

	assert.Equal(t, before, clone.RootNode().String())
}

func TestCloneOfUnparsed(t *testing.T) {
	tree := NewTree(golang.GetLanguage())
	defer tree.Close()
	clone := tree.Clone()
	defer clone.Close()
	assert.False(t, clone.Parsed())
}

func TestParseIncludedRanges(t *testing.T) {
	// Only the bytes of the second line are visible to the parser.
	src := "IGNORED\nvar x int\n"
	tree := NewTree(golang.GetLanguage())
	defer tree.Close()
	r := ropeio.NewReader(ropeio.Bytes(src))
	span := Span{
		StartByte: 8, EndByte: uint32(len(src)),
		StartPos: Point{Row: 1, Column: 0},
		EndPos:   Point{Row: 2, Column: 0},
	}
	require.NoError(t, tree.Parse(context.Background(), r, []Span{span}))

	root := tree.RootNode()
	assert.GreaterOrEqual(t, root.StartByte(), uint32(8))
}

func TestSpanContains(t *testing.T) {
	s := Span{StartByte: 10, EndByte: 20}
	assert.True(t, s.Contains(10, 20))
	assert.True(t, s.Contains(12, 15))
	assert.False(t, s.Contains(9, 15))
	assert.False(t, s.Contains(12, 21))
}
