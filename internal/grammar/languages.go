package grammar

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/toml"
	tsx "github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/go-enry/go-enry/v2"
)

// langToGrammar maps canonical language names to tree-sitter Language
// objects. Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"python":     python.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"c":          c.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"java":       java.GetLanguage(),
			"php":        php.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
			"html":       html.GetLanguage(),
			"css":        css.GetLanguage(),
			"bash":       bash.GetLanguage(),
			"yaml":       yaml.GetLanguage(),
			"toml":       toml.GetLanguage(),
		}
	})
}

// GrammarForLanguage returns the tree-sitter grammar for a canonical
// language name. Returns (nil, false) if the language is not supported.
func GrammarForLanguage(name string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[name]
	return l, ok
}

// SupportedLanguages returns the canonical names of all built-in grammars.
func SupportedLanguages() []string {
	initGrammars()
	names := make([]string, 0, len(langToGrammar))
	for name := range langToGrammar {
		names = append(names, name)
	}
	return names
}

// enryToCanonical maps go-enry language names that differ from our
// canonical names.
var enryToCanonical = map[string]string{
	"c++":        "cpp",
	"shell":      "bash",
	"typescript": "typescript",
	"tsx":        "tsx",
}

// DetectLanguage guesses the canonical language name for a file path and
// its contents. Returns ("", false) when detection fails or the detected
// language has no grammar.
func DetectLanguage(path string, content []byte) (string, bool) {
	name := enry.GetLanguage(path, content)
	if name == "" || name == enry.OtherLanguage {
		return "", false
	}
	canonical := strings.ToLower(name)
	if mapped, ok := enryToCanonical[canonical]; ok {
		canonical = mapped
	}
	if _, ok := GrammarForLanguage(canonical); !ok {
		return "", false
	}
	return canonical, true
}
