// Package grammar resolves language names to tree-sitter grammars and
// loads their query resources (highlights, injections, textobjects,
// indents). Queries are compiled once per language and cached; a missing
// or broken resource disables just the feature that needs it.
package grammar

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/parse"
)

//go:embed queries
var embeddedQueries embed.FS

// ErrUnknownLanguage is returned by Loader.Language for a name with no
// registered grammar.
var ErrUnknownLanguage = errors.New("unknown language")

// DefaultScopes is the recognized highlight scope table, ordered. The
// position of a scope is its Highlight value. Capture names resolve to
// the longest scope that prefixes them at a dot boundary, so
// "function.method.static" falls back to "function.method", then
// "function".
var DefaultScopes = []string{
	"attribute",
	"comment",
	"constant",
	"constant.builtin",
	"constructor",
	"embedded",
	"function",
	"function.builtin",
	"function.method",
	"keyword",
	"label",
	"number",
	"operator",
	"property",
	"punctuation",
	"punctuation.bracket",
	"punctuation.delimiter",
	"string",
	"string.special",
	"tag",
	"type",
	"type.builtin",
	"variable",
	"variable.builtin",
	"variable.parameter",
}

// Loader caches per-language Configs. It is safe for concurrent use.
type Loader struct {
	fsys   fs.FS
	logger *log.Logger
	scopes []string

	mu      sync.Mutex
	configs map[string]*Config
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithQueriesFS overrides the embedded query resources. The filesystem
// is expected to hold <language>/<kind>.scm entries.
func WithQueriesFS(fsys fs.FS) LoaderOption {
	return func(l *Loader) { l.fsys = fsys }
}

// WithLogger sets the logger used to report broken query resources.
func WithLogger(logger *log.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithScopes replaces DefaultScopes. Order is significant: a scope's
// index is its Highlight value.
func WithScopes(scopes []string) LoaderOption {
	return func(l *Loader) { l.scopes = scopes }
}

// NewLoader builds a Loader over the embedded query resources and the
// default scope table.
func NewLoader(opts ...LoaderOption) *Loader {
	sub, err := fs.Sub(embeddedQueries, "queries")
	if err != nil {
		panic(fmt.Sprintf("grammar: embedded queries: %v", err))
	}
	l := &Loader{
		fsys:    sub,
		logger:  log.Default(),
		scopes:  DefaultScopes,
		configs: make(map[string]*Config),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scopes returns the loader's scope table in Highlight order.
func (l *Loader) Scopes() []string { return l.scopes }

// ScopeName returns the scope string behind a Highlight, or "" for
// InvalidHighlight or an out-of-range value.
func (l *Loader) ScopeName(h Highlight) string {
	if h == InvalidHighlight || int(h) >= len(l.scopes) {
		return ""
	}
	return l.scopes[h]
}

// HighlightForScope resolves a capture name against the scope table by
// longest dotted prefix.
func (l *Loader) HighlightForScope(name string) (Highlight, bool) {
	for {
		for i, s := range l.scopes {
			if s == name {
				return Highlight(i), true
			}
		}
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			return InvalidHighlight, false
		}
		name = name[:dot]
	}
}

// Language returns the Config for a canonical language name, loading and
// compiling its query resources on first use. The only error is an
// unknown language; per-resource failures are logged and disable the
// affected feature.
func (l *Loader) Language(name string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.configs[name]; ok {
		return c, nil
	}
	lang, ok := GrammarForLanguage(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}

	c := &Config{Name: name, Lang: lang}
	c.highlights = l.loadQuery(name, lang, KindHighlights)
	c.injections = l.loadQuery(name, lang, KindInjections)
	c.textObjects = l.loadQuery(name, lang, KindTextObjects)
	c.indents = l.loadQuery(name, lang, KindIndents)

	if c.highlights != nil {
		l.resolveHighlightSlots(c)
	}
	if c.injections != nil {
		c.contentCapture, c.hasContent = c.injections.CaptureIndex("injection.content")
		c.languageCapture, c.hasLanguage = c.injections.CaptureIndex("injection.language")
	}

	l.configs[name] = c
	return c, nil
}

// loadQuery reads and compiles one query resource. A missing file is
// normal (the feature is simply absent for the language); a compile
// failure is logged once and the resource stays nil.
func (l *Loader) loadQuery(name string, lang *sitter.Language, kind QueryKind) *parse.Query {
	src, err := fs.ReadFile(l.fsys, path.Join(name, string(kind)+".scm"))
	if err != nil {
		return nil
	}
	q, err := parse.NewQuery(lang, src)
	if err != nil {
		l.logger.Warn("query disabled", "language", name, "kind", kind, "err", err)
		return nil
	}
	return q
}

// resolveHighlightSlots precomputes the capture-slot to Highlight table
// for a language's highlights query. Bookkeeping captures (injection.*,
// local.*, names starting with "_") never map to a highlight.
func (l *Loader) resolveHighlightSlots(c *Config) {
	names := c.highlights.CaptureNames()
	c.highlightSlots = make([]Highlight, len(names))
	for i, name := range names {
		c.highlightSlots[i] = InvalidHighlight
		if strings.HasPrefix(name, "injection.") ||
			strings.HasPrefix(name, "local.") ||
			strings.HasPrefix(name, "_") {
			continue
		}
		if h, ok := l.HighlightForScope(name); ok {
			c.highlightSlots[i] = h
		} else {
			l.logger.Debug("capture has no scope", "language", c.Name, "capture", name)
		}
	}
}
