package understory

// CaptureNodes runs the query resource of the given kind (textobjects or
// indents, typically) for the layer owning [start, end). names is an
// ordered alternative list; the first capture name present in the
// compiled query wins (e.g. "function.around", then "function.inside").
// The boolean is false when the match limit cut the scan short and the
// result is partial.
func (s *Syntax) CaptureNodes(kind QueryKind, names []string, start, end uint32) ([]CapturedNode, bool) {
	root, l := s.parsedRootFor(start, end)
	if root == nil {
		return nil, true
	}
	q := l.config.Query(kind)
	if q == nil {
		return nil, true
	}
	return q.CaptureNodesAny(names, root, s.reader)
}
