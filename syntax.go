package understory

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/arena"
	"github.com/jward/understory/internal/grammar"
	"github.com/jward/understory/internal/parse"
	"github.com/jward/understory/internal/ropeio"
)

// LayerID identifies one language layer in the injection forest. IDs are
// generation-checked arena indices: once a layer is removed, every copy of
// its ID stops resolving instead of pointing at a reused slot.
type LayerID = arena.Index

// layerFlag tracks what an edit did to a layer. Three states rather than a
// boolean so the update step can tell "reparse needed" from "offsets moved
// but content untouched".
type layerFlag uint8

const (
	layerUnchanged layerFlag = iota
	layerRangesShifted
	layerStale
)

// injection is one discovered embedded-language region of a layer. The
// span is in root-document byte offsets. A zero child means the language
// had no grammar: the range is remembered so lookups fall back to the
// parent, but no layer exists beneath it.
type injection struct {
	span     parse.Span
	language string
	child    LayerID
}

// layer is one language's parse tree plus its place in the forest.
// Invariant: injections are sorted ascending by start byte and pairwise
// disjoint. A nil or unparsed tree means the layer has not been parsed
// yet (children parse lazily on first access). broken marks a parse
// failure; the layer is skipped by queries until the next edit retries.
type layer struct {
	config     *grammar.Config
	tree       *parse.Tree
	parent     LayerID
	span       parse.Span
	flag       layerFlag
	injections []injection
	broken     bool
}

// Syntax is the live injection forest for one document. It is
// single-writer: New, Update, and all query methods must be called from
// the owning goroutine. Use Snapshot to hand a frozen copy to another.
type Syntax struct {
	loader *grammar.Loader
	logger *log.Logger
	layers arena.Arena[layer]
	root   LayerID
	reader *ropeio.Reader

	generation atomic.Uint64
}

// Option configures a Syntax.
type Option func(*Syntax)

// WithLoader supplies a shared query-resource loader. Without it each
// Syntax builds its own over the embedded defaults.
func WithLoader(l *Loader) Option {
	return func(s *Syntax) { s.loader = l }
}

// WithLogger sets the logger for degraded-state reports (parse failures,
// unknown injection languages, incomplete scans).
func WithLogger(logger *log.Logger) Option {
	return func(s *Syntax) { s.logger = logger }
}

// New parses text as the given language and discovers its injections.
// The only error is an unknown root language; a root parse failure leaves
// the Syntax in a degraded, unhighlighted state that the next Update
// retries.
func New(ctx context.Context, language string, text Text, opts ...Option) (*Syntax, error) {
	s := &Syntax{logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = grammar.NewLoader(grammar.WithLogger(s.logger))
	}
	cfg, err := s.loader.Language(language)
	if err != nil {
		return nil, fmt.Errorf("understory: %w", err)
	}
	s.reader = ropeio.NewReader(text)
	s.root = s.layers.Insert(layer{
		config: cfg,
		span:   parse.Span{EndByte: s.reader.Len()},
		flag:   layerStale,
	})
	s.parseLayer(ctx, s.root)
	return s, nil
}

// Generation returns the edit-generation counter, bumped by every Update.
func (s *Syntax) Generation() uint64 { return s.generation.Load() }

// Language returns the name of the language owning [start, end): the
// deepest layer whose injection structure wholly contains the range.
func (s *Syntax) Language(start, end uint32) string {
	l, ok := s.layers.Get(s.layerForByteRange(start, end))
	if !ok {
		return ""
	}
	return l.config.Name
}

// Close frees every layer's native resources. The Syntax must not be
// used after.
func (s *Syntax) Close() {
	s.removeLayer(s.root)
}

// Update applies one document edit to the forest and brings it back in
// sync with the post-edit text. Edits must arrive in document order, one
// Update per buffer change, before any subsequent read. Per-layer parse
// failures degrade that layer rather than failing the call.
func (s *Syntax) Update(ctx context.Context, edit InputEdit, text Text) error {
	s.reader = ropeio.NewReader(text)
	s.applyEdit(edit)
	if root, ok := s.layers.Get(s.root); ok {
		root.span.StartByte = 0
		root.span.EndByte = s.reader.Len()
	}
	s.generation.Add(1)

	// Breadth-first: a parent reparse re-runs injection discovery, which
	// refreshes child spans (and may restructure children) before each
	// child is visited.
	queue := []LayerID{s.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		l, ok := s.layers.Get(id)
		if !ok {
			continue
		}
		switch {
		case l.flag == layerStale && (id == s.root || (l.tree != nil && l.tree.Parsed())):
			s.parseLayer(ctx, id)
		case l.flag == layerRangesShifted:
			// Offsets already shifted in place; content untouched.
			l.flag = layerUnchanged
		}
		if l, ok = s.layers.Get(id); ok {
			for _, inj := range l.injections {
				if !inj.child.IsZero() {
					queue = append(queue, inj.child)
				}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// applyEdit shifts every live tree and every stored span for one edit and
// flags the layers the edit touches.
func (s *Syntax) applyEdit(e InputEdit) {
	s.layers.Range(func(_ LayerID, l *layer) bool {
		if l.tree != nil {
			l.tree.Edit(e)
		}
		switch {
		case e.StartByte <= l.span.EndByte && e.OldEndByte >= l.span.StartByte:
			l.flag = layerStale
			l.broken = false
		case e.OldEndByte < l.span.StartByte:
			shiftSpan(&l.span, e)
			if l.flag == layerUnchanged {
				l.flag = layerRangesShifted
			}
		}
		// Injection spans adjust independently so the post-reparse diff can
		// recognize surviving children at their new positions: an edit
		// before a span shifts it, an edit inside grows or shrinks its
		// end. Spans the edit straddles are left for discovery to replace.
		for i := range l.injections {
			sp := &l.injections[i].span
			switch {
			case e.OldEndByte < sp.StartByte ||
				(e.OldEndByte == sp.StartByte && e.StartByte < sp.StartByte):
				shiftSpan(sp, e)
			case e.StartByte >= sp.StartByte && e.OldEndByte <= sp.EndByte:
				growSpan(sp, e)
			}
		}
		return true
	})
}

// shiftSpan moves a span that lies entirely after an edit.
func shiftSpan(sp *parse.Span, e parse.InputEdit) {
	delta := int64(e.NewEndByte) - int64(e.OldEndByte)
	sp.StartByte = uint32(int64(sp.StartByte) + delta)
	sp.EndByte = uint32(int64(sp.EndByte) + delta)
	sp.StartPos = shiftPoint(sp.StartPos, e)
	sp.EndPos = shiftPoint(sp.EndPos, e)
}

// growSpan resizes a span that wholly contains an edit: the start stays,
// the end absorbs the size change.
func growSpan(sp *parse.Span, e parse.InputEdit) {
	delta := int64(e.NewEndByte) - int64(e.OldEndByte)
	sp.EndByte = uint32(int64(sp.EndByte) + delta)
	sp.EndPos = shiftPoint(sp.EndPos, e)
}

func shiftPoint(p parse.Point, e parse.InputEdit) parse.Point {
	if p.Row == e.OldEndPos.Row {
		p.Column = uint32(int64(p.Column) + int64(e.NewEndPos.Column) - int64(e.OldEndPos.Column))
	}
	p.Row = uint32(int64(p.Row) + int64(e.NewEndPos.Row) - int64(e.OldEndPos.Row))
	return p
}

// layerForByteRange walks from the root toward the deepest layer whose
// injection structure wholly contains [start, end). Injection lists are
// sorted and disjoint, so each level is a binary search.
func (s *Syntax) layerForByteRange(start, end uint32) LayerID {
	id := s.root
	for {
		l, ok := s.layers.Get(id)
		if !ok {
			return id
		}
		a := injectionContaining(l.injections, start, start+1)
		b := a
		if end > start+1 {
			b = injectionContaining(l.injections, end-1, end)
		}
		if a < 0 || a != b {
			return id
		}
		child := l.injections[a].child
		if child.IsZero() {
			// Unresolved language: the range is foreign but has no layer,
			// so the parent stays authoritative.
			return id
		}
		id = child
	}
}

// injectionContaining returns the index of the injection whose span
// contains [start, end), or -1.
func injectionContaining(injs []injection, start, end uint32) int {
	i := sort.Search(len(injs), func(i int) bool {
		return injs[i].span.EndByte >= end
	})
	if i < len(injs) && injs[i].span.Contains(start, end) {
		return i
	}
	return -1
}

// ensureParsed lazily parses a layer on first access (or reparses after
// it went stale). Reports false when the layer is unusable.
func (s *Syntax) ensureParsed(id LayerID) bool {
	l, ok := s.layers.Get(id)
	if !ok || l.broken {
		return false
	}
	if l.tree == nil || !l.tree.Parsed() || l.flag == layerStale {
		s.parseLayer(context.Background(), id)
		if l, ok = s.layers.Get(id); !ok {
			return false
		}
	}
	return !l.broken && l.tree != nil && l.tree.Parsed()
}

// parseLayer (re)parses one layer and refreshes its injections. Arena
// pointers are re-fetched around mutations because inserts may grow the
// slot table.
func (s *Syntax) parseLayer(ctx context.Context, id LayerID) {
	l, ok := s.layers.Get(id)
	if !ok {
		return
	}
	if l.tree == nil {
		l.tree = parse.NewTree(l.config.Lang)
	}
	var spans []parse.Span
	if id != s.root {
		spans = []parse.Span{l.span}
	}
	if err := l.tree.Parse(ctx, s.reader, spans); err != nil {
		l.broken = true
		l.flag = layerUnchanged
		s.logger.Warn("layer parse failed", "language", l.config.Name, "err", err)
		return
	}
	l.broken = false
	l.flag = layerUnchanged
	s.refreshInjections(id)
}

// refreshInjections re-runs the injections query on a freshly parsed
// layer and diffs the result against the previous list. A discovered
// range matching a surviving child (same language, same shifted byte
// span) keeps it, so incremental reparse continues there; unmatched
// ranges get new lazy children; children with no matching range are
// dropped recursively.
func (s *Syntax) refreshInjections(id LayerID) {
	l, ok := s.layers.Get(id)
	if !ok {
		return
	}
	found := s.scanInjections(l)

	old := l.injections
	used := make([]bool, len(old))
	var create []int
	next := make([]injection, 0, len(found))

	for _, inj := range found {
		matched := false
		for i := range old {
			if used[i] || old[i].language != inj.language || old[i].child.IsZero() {
				continue
			}
			if old[i].span.StartByte == inj.span.StartByte && old[i].span.EndByte == inj.span.EndByte {
				used[i] = true
				inj.child = old[i].child
				matched = true
				break
			}
		}
		next = append(next, inj)
		if !matched {
			create = append(create, len(next)-1)
		}
	}

	for _, i := range create {
		next[i].child = s.newChild(id, next[i])
	}
	for i := range old {
		if !used[i] && !old[i].child.IsZero() {
			s.removeLayer(old[i].child)
		}
	}

	// Re-fetch: newChild inserts may have moved the arena's backing array.
	if l, ok = s.layers.Get(id); ok {
		l.injections = next
		for _, inj := range next {
			if ch, chOK := s.layers.Get(inj.child); chOK {
				ch.span = inj.span
			}
		}
	}
}

// scanInjections collects (span, language) pairs from the layer's
// injections query, sorted by start and pruned to pairwise disjoint.
func (s *Syntax) scanInjections(l *layer) []injection {
	q := l.config.Query(grammar.KindInjections)
	if q == nil {
		return nil
	}
	contentSlot, langSlot, hasContent, hasLang := l.config.InjectionCaptures()
	if !hasContent {
		return nil
	}

	var found []injection
	it := q.Exec(l.tree.RootNode(), s.reader)
	defer it.Close()
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		lang, _ := q.Property(uint32(m.PatternIndex), "injection.language")
		var contents []*sitter.Node
		for _, c := range m.Captures {
			switch {
			case c.Index == contentSlot:
				contents = append(contents, c.Node)
			case hasLang && c.Index == langSlot:
				lang = string(s.reader.Slice(c.Node.StartByte(), c.Node.EndByte()))
			}
		}
		if lang == "" {
			continue
		}
		for _, n := range contents {
			sp := parse.NodeSpan(n)
			if sp.StartByte < sp.EndByte {
				found = append(found, injection{span: sp, language: lang})
			}
		}
	}
	if it.Incomplete() {
		s.logger.Debug("injection scan incomplete", "language", l.config.Name)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].span.StartByte < found[j].span.StartByte })
	out := found[:0]
	var lastEnd uint32
	for _, inj := range found {
		if len(out) > 0 && inj.span.StartByte < lastEnd {
			continue
		}
		out = append(out, inj)
		lastEnd = inj.span.EndByte
	}
	return out
}

// newChild creates a lazy child layer for an injection. An unknown
// language yields a zero ID: the range is recorded, nothing lives below.
func (s *Syntax) newChild(parent LayerID, inj injection) LayerID {
	cfg, err := s.loader.Language(inj.language)
	if err != nil {
		s.logger.Debug("injection language unavailable", "language", inj.language)
		return LayerID{}
	}
	return s.layers.Insert(layer{
		config: cfg,
		parent: parent,
		span:   inj.span,
		flag:   layerStale,
	})
}

// removeLayer drops a layer and its whole subtree from the arena.
func (s *Syntax) removeLayer(id LayerID) {
	l, ok := s.layers.Get(id)
	if !ok {
		return
	}
	children := make([]LayerID, 0, len(l.injections))
	for _, inj := range l.injections {
		if !inj.child.IsZero() {
			children = append(children, inj.child)
		}
	}
	tree := l.tree
	s.layers.Remove(id)
	if tree != nil {
		tree.Close()
	}
	for _, c := range children {
		s.removeLayer(c)
	}
}

// parsedRootFor resolves the layer owning [start, end), parsing it if
// needed, and returns its root node together with the layer. Nil when the
// layer is broken or unparsable.
func (s *Syntax) parsedRootFor(start, end uint32) (*sitter.Node, *layer) {
	id := s.layerForByteRange(start, end)
	if !s.ensureParsed(id) {
		return nil, nil
	}
	l, ok := s.layers.Get(id)
	if !ok {
		return nil, nil
	}
	return l.tree.RootNode(), l
}

// visibleLayers returns, root-first and deepest-last, every usable layer
// whose span intersects [start, end). Lazy layers inside the window are
// parsed on the way.
func (s *Syntax) visibleLayers(start, end uint32) []viewLayer {
	var out []viewLayer
	queue := []LayerID{s.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		l, ok := s.layers.Get(id)
		if !ok {
			continue
		}
		if l.span.StartByte >= end || l.span.EndByte <= start {
			continue
		}
		if s.ensureParsed(id) {
			l, _ = s.layers.Get(id)
			out = append(out, viewLayer{config: l.config, root: l.tree.RootNode()})
			for _, inj := range l.injections {
				if !inj.child.IsZero() {
					queue = append(queue, inj.child)
				}
			}
		}
	}
	return out
}

// viewLayer is the slice of a layer that highlighting needs: its query
// set and a root node to execute against.
type viewLayer struct {
	config *grammar.Config
	root   *sitter.Node
}

// Snapshot freezes the current forest for a background task. Trees are
// duplicated cheaply (structural sharing); the snapshot records the edit
// generation so consumers can discard results that became stale while
// they computed.
func (s *Syntax) Snapshot() *Snapshot {
	sn := &Snapshot{src: s, generation: s.generation.Load()}
	queue := []LayerID{s.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		l, ok := s.layers.Get(id)
		if !ok {
			continue
		}
		if l.tree != nil && l.tree.Parsed() && !l.broken {
			sn.layers = append(sn.layers, snapLayer{config: l.config, tree: l.tree.Clone()})
		}
		for _, inj := range l.injections {
			if !inj.child.IsZero() {
				queue = append(queue, inj.child)
			}
		}
	}
	return sn
}

type snapLayer struct {
	config *grammar.Config
	tree   *parse.Tree
}

// Snapshot is a frozen copy of the forest, safe to read from another
// goroutine while the owner keeps editing.
type Snapshot struct {
	src        *Syntax
	generation uint64
	layers     []snapLayer
}

// Generation returns the edit generation the snapshot was taken at.
func (sn *Snapshot) Generation() uint64 { return sn.generation }

// Stale reports whether the source Syntax has been edited since the
// snapshot was taken.
func (sn *Snapshot) Stale() bool {
	return sn.generation != sn.src.generation.Load()
}

// Close frees the duplicated trees.
func (sn *Snapshot) Close() {
	for _, l := range sn.layers {
		l.tree.Close()
	}
	sn.layers = nil
}
