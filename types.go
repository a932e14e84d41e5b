package understory

import (
	"github.com/jward/understory/internal/grammar"
	"github.com/jward/understory/internal/parse"
	"github.com/jward/understory/internal/ropeio"
)

// Public type aliases for internal types used in the Syntax API. These are
// Go type aliases (=) — identical to the internal types at compile time.
// External consumers use these names; no conversion is needed.

type Text = ropeio.Text
type Cursor = ropeio.Cursor
type Bytes = ropeio.Bytes
type Chunked = ropeio.Chunked

type Point = parse.Point
type Span = parse.Span
type InputEdit = parse.InputEdit
type CapturedNode = parse.CapturedNode

type Highlight = grammar.Highlight
type QueryKind = grammar.QueryKind
type Loader = grammar.Loader
type LoaderOption = grammar.LoaderOption

const (
	KindHighlights  = grammar.KindHighlights
	KindInjections  = grammar.KindInjections
	KindTextObjects = grammar.KindTextObjects
	KindIndents     = grammar.KindIndents
)

// InvalidHighlight marks a capture with no configured scope.
const InvalidHighlight = grammar.InvalidHighlight

// NewLoader builds a query-resource loader over the embedded defaults.
func NewLoader(opts ...LoaderOption) *Loader { return grammar.NewLoader(opts...) }

// WithQueriesFS and WithScopes configure a Loader.
var (
	WithQueriesFS = grammar.WithQueriesFS
	WithScopes    = grammar.WithScopes
)

// DetectLanguage guesses the canonical language name for a file path and
// its contents.
func DetectLanguage(path string, content []byte) (string, bool) {
	return grammar.DetectLanguage(path, content)
}

// SupportedLanguages returns the canonical names of all built-in grammars.
func SupportedLanguages() []string { return grammar.SupportedLanguages() }
