package grammar

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/parse"
)

// Highlight is an index into the loader's scope table. It is the only
// thing highlighting hands to a renderer; the scope string behind it is
// recoverable through Loader.ScopeName.
type Highlight uint32

// InvalidHighlight marks a capture with no configured scope.
const InvalidHighlight = Highlight(^uint32(0))

// QueryKind names the per-language query resources a Config can carry.
type QueryKind string

const (
	KindHighlights  QueryKind = "highlights"
	KindInjections  QueryKind = "injections"
	KindTextObjects QueryKind = "textobjects"
	KindIndents     QueryKind = "indents"
)

// Config bundles one language's grammar with its compiled query
// resources. A nil query means the resource was absent or failed to
// compile; the feature it backs is disabled for the language, nothing
// else.
type Config struct {
	Name string
	Lang *sitter.Language

	highlights  *parse.Query
	injections  *parse.Query
	textObjects *parse.Query
	indents     *parse.Query

	// highlightSlots maps highlight-query capture slots to Highlight
	// values, resolved once at load against the loader's scope table.
	highlightSlots []Highlight

	contentCapture  uint32
	languageCapture uint32
	hasContent      bool
	hasLanguage     bool
}

// Query returns the compiled query of the given kind, or nil when the
// language does not carry it.
func (c *Config) Query(kind QueryKind) *parse.Query {
	switch kind {
	case KindHighlights:
		return c.highlights
	case KindInjections:
		return c.injections
	case KindTextObjects:
		return c.textObjects
	case KindIndents:
		return c.indents
	}
	return nil
}

// HighlightForSlot resolves a highlight-query capture slot to its
// Highlight. The boolean is false for captures with no configured scope
// (including injection.* and local.* bookkeeping captures).
func (c *Config) HighlightForSlot(slot uint32) (Highlight, bool) {
	if int(slot) >= len(c.highlightSlots) {
		return InvalidHighlight, false
	}
	h := c.highlightSlots[slot]
	return h, h != InvalidHighlight
}

// InjectionCaptures returns the capture slots of @injection.content and
// @injection.language in the injections query. The booleans report which
// of the two the query actually declares.
func (c *Config) InjectionCaptures() (content, language uint32, hasContent, hasLanguage bool) {
	return c.contentCapture, c.languageCapture, c.hasContent, c.hasLanguage
}
