package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/jward/understory"
)

// themeEntry is one scope's style in a YAML theme file.
type themeEntry struct {
	FG        string `yaml:"fg"`
	BG        string `yaml:"bg"`
	Bold      bool   `yaml:"bold"`
	Italic    bool   `yaml:"italic"`
	Underline bool   `yaml:"underline"`
}

// renderer turns a highlight event stream into ANSI-styled output.
// Styles are resolved per Highlight index once, up front; unthemed
// scopes render unstyled.
type renderer struct {
	loader *understory.Loader
	styles map[understory.Highlight]lipgloss.Style
}

func newRenderer(loader *understory.Loader, theme map[string]themeEntry) *renderer {
	r := &renderer{
		loader: loader,
		styles: make(map[understory.Highlight]lipgloss.Style),
	}
	for scope, entry := range theme {
		h, ok := loader.HighlightForScope(scope)
		if !ok {
			continue
		}
		st := lipgloss.NewStyle()
		if entry.FG != "" {
			st = st.Foreground(lipgloss.Color(entry.FG))
		}
		if entry.BG != "" {
			st = st.Background(lipgloss.Color(entry.BG))
		}
		st = st.Bold(entry.Bold).Italic(entry.Italic).Underline(entry.Underline)
		r.styles[h] = st
	}
	return r
}

// Render writes the source text of the event stream, styling each Source
// span with the innermost open highlight.
func (r *renderer) Render(w io.Writer, src []byte, events []understory.HighlightEvent) error {
	var stack []understory.Highlight
	for _, ev := range events {
		switch ev.Kind {
		case understory.EventHighlightStart:
			stack = append(stack, ev.Highlight)
		case understory.EventHighlightEnd:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case understory.EventSource:
			text := string(src[ev.Start:ev.End])
			if st, ok := r.topStyle(stack); ok {
				text = st.Render(text)
			}
			if _, err := io.WriteString(w, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// topStyle finds the innermost open highlight that the theme styles.
func (r *renderer) topStyle(stack []understory.Highlight) (lipgloss.Style, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if st, ok := r.styles[stack[i]]; ok {
			return st, true
		}
	}
	return lipgloss.Style{}, false
}

// defaultTheme covers the common scopes with ANSI-256 colors.
var defaultTheme = map[string]themeEntry{
	"keyword":          {FG: "212", Bold: true},
	"string":           {FG: "150"},
	"string.special":   {FG: "186"},
	"comment":          {FG: "243", Italic: true},
	"number":           {FG: "215"},
	"function":         {FG: "117"},
	"type":             {FG: "122"},
	"constant":         {FG: "215"},
	"constant.builtin": {FG: "215", Bold: true},
	"property":         {FG: "153"},
	"attribute":        {FG: "222"},
	"tag":              {FG: "211"},
	"label":            {FG: "222"},
	"operator":         {FG: "249"},
	"variable":         {FG: "252"},
}

// loadTheme reads a YAML scope→style mapping, falling back to the
// built-in theme when path is empty.
func loadTheme(path string) (map[string]themeEntry, error) {
	if path == "" {
		return defaultTheme, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading theme: %w", err)
	}
	var theme map[string]themeEntry
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("parsing theme %s: %w", path, err)
	}
	return theme, nil
}
