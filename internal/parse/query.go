package parse

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/ropeio"
)

// DefaultMatchLimit caps the matches one execution will produce. Exceeding
// it yields a partial, explicitly flagged result instead of unbounded work
// on pathological patterns over large inputs.
const DefaultMatchLimit = 256

// NoCapture marks a predicate operand that is not a capture.
const noCapture = ^uint32(0)

// Query is a compiled, immutable pattern set tied to one grammar.
// Compilation happens once per language per resource; matching is the hot
// path. Predicates and #set! properties are validated and pre-parsed at
// compile time, so a malformed clause is a load-time error, never a
// match-time surprise.
type Query struct {
	q        *sitter.Query
	captures map[string]uint32
	names    []string
	preds    [][]predicate
	props    []map[string]string
}

// NewQuery compiles source against lang. Malformed pattern syntax or an
// unknown predicate name is reported here.
func NewQuery(lang *sitter.Language, source []byte) (*Query, error) {
	sq, err := sitter.NewQuery(source, lang)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	q := &Query{q: sq}
	n := sq.CaptureCount()
	q.names = make([]string, n)
	q.captures = make(map[string]uint32, n)
	for i := uint32(0); i < n; i++ {
		name := sq.CaptureNameForId(i)
		q.names[i] = name
		q.captures[name] = i
	}

	patterns := sq.PatternCount()
	q.preds = make([][]predicate, patterns)
	q.props = make([]map[string]string, patterns)
	for i := uint32(0); i < patterns; i++ {
		preds, props, err := q.parsePredicates(i)
		if err != nil {
			sq.Close()
			return nil, err
		}
		q.preds[i] = preds
		q.props[i] = props
	}
	return q, nil
}

// CaptureIndex returns the slot of a capture name. Names are constant
// after compile.
func (q *Query) CaptureIndex(name string) (uint32, bool) {
	i, ok := q.captures[name]
	return i, ok
}

// CaptureName returns the name of a capture slot.
func (q *Query) CaptureName(i uint32) string {
	if int(i) >= len(q.names) {
		return ""
	}
	return q.names[i]
}

// CaptureNames returns all capture names in slot order.
func (q *Query) CaptureNames() []string {
	return q.names
}

// Property returns the value of a #set! property on a pattern.
func (q *Query) Property(pattern uint32, key string) (string, bool) {
	if int(pattern) >= len(q.props) || q.props[pattern] == nil {
		return "", false
	}
	v, ok := q.props[pattern][key]
	return v, ok
}

// Close frees the compiled query.
func (q *Query) Close() {
	if q.q != nil {
		q.q.Close()
		q.q = nil
	}
}

// MatchIter yields predicate-filtered query matches. Pulling stops either
// when the pattern set is exhausted or when the match limit trips, in which
// case Incomplete reports true and the caller holds a partial result.
// Cancellation is cooperative: stop pulling and Close.
type MatchIter struct {
	q          *Query
	qc         *sitter.QueryCursor
	reader     *ropeio.Reader
	limit      int
	seen       int
	incomplete bool
	closed     bool
}

// Exec starts executing q rooted at node, reading text through r.
func (q *Query) Exec(node *sitter.Node, r *ropeio.Reader) *MatchIter {
	qc := sitter.NewQueryCursor()
	qc.Exec(q.q, node)
	return &MatchIter{q: q, qc: qc, reader: r, limit: DefaultMatchLimit}
}

// SetMatchLimit overrides DefaultMatchLimit. Zero or negative means
// unlimited.
func (it *MatchIter) SetMatchLimit(n int) {
	it.limit = n
}

// Next returns the next match whose predicates hold, or false when the
// iterator is exhausted or the match limit was reached.
func (it *MatchIter) Next() (*sitter.QueryMatch, bool) {
	if it.closed {
		return nil, false
	}
	for {
		if it.limit > 0 && it.seen >= it.limit {
			it.incomplete = true
			return nil, false
		}
		m, ok := it.qc.NextMatch()
		if !ok {
			return nil, false
		}
		it.seen++
		if it.q.patternMatches(m, it.reader) {
			return m, true
		}
	}
}

// Incomplete reports whether the match limit cut the result short.
func (it *MatchIter) Incomplete() bool { return it.incomplete }

// Close releases the cursor. Safe to call more than once.
func (it *MatchIter) Close() {
	if !it.closed {
		it.qc.Close()
		it.closed = true
	}
}

// CapturedNode is one capture result: a single node, or several nodes
// matched under a + or * quantifier. Its byte range is the min/max over
// the group.
type CapturedNode struct {
	nodes []*sitter.Node
}

// Single returns the node and true when exactly one node matched.
func (c CapturedNode) Single() (*sitter.Node, bool) {
	if len(c.nodes) == 1 {
		return c.nodes[0], true
	}
	return nil, false
}

// Nodes returns the matched nodes in match order.
func (c CapturedNode) Nodes() []*sitter.Node { return c.nodes }

// StartByte returns the smallest start byte over the group.
func (c CapturedNode) StartByte() uint32 {
	start := c.nodes[0].StartByte()
	for _, n := range c.nodes[1:] {
		if s := n.StartByte(); s < start {
			start = s
		}
	}
	return start
}

// EndByte returns the largest end byte over the group.
func (c CapturedNode) EndByte() uint32 {
	end := c.nodes[0].EndByte()
	for _, n := range c.nodes[1:] {
		if e := n.EndByte(); e > end {
			end = e
		}
	}
	return end
}

// CaptureNodesAny picks the first of names that exists in the query and
// collects its captures beneath node. A match contributing several nodes to
// the capture becomes one grouped CapturedNode. The boolean reports
// completeness: false means the match limit tripped and the result is
// partial; callers may re-run narrower or accept it.
func (q *Query) CaptureNodesAny(names []string, node *sitter.Node, r *ropeio.Reader) ([]CapturedNode, bool) {
	var slot uint32
	found := false
	for _, name := range names {
		if i, ok := q.CaptureIndex(name); ok {
			slot = i
			found = true
			break
		}
	}
	if !found {
		return nil, true
	}

	it := q.Exec(node, r)
	defer it.Close()

	var out []CapturedNode
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		var group []*sitter.Node
		for _, c := range m.Captures {
			if c.Index == slot {
				group = append(group, c.Node)
			}
		}
		if len(group) > 0 {
			out = append(out, CapturedNode{nodes: group})
		}
	}
	return out, !it.Incomplete()
}
