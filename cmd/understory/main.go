package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jward/understory"
)

var (
	flagLanguage string
	flagVerbose  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "understory",
	Short:         "Incremental multi-language syntax analysis",
	Long:          "Understory parses files with tree-sitter, discovers embedded-language injections, and answers highlighting, bracket, and text-object queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLanguage, "language", "", "language name (default: detect from filename and content)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(highlightCmd)
	rootCmd.AddCommand(bracketsCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(languagesCmd)
}

// openSyntax loads a file and builds a Syntax over it with the given
// loader, so callers can resolve scope names against the same table.
func openSyntax(path string, loader *understory.Loader) (*understory.Syntax, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	lang := flagLanguage
	if lang == "" {
		var ok bool
		if lang, ok = understory.DetectLanguage(path, src); !ok {
			return nil, nil, fmt.Errorf("cannot detect language for %s; use --language", path)
		}
	}
	s, err := understory.New(context.Background(), lang, understory.Bytes(src), understory.WithLoader(loader))
	if err != nil {
		return nil, nil, err
	}
	return s, src, nil
}

var flagTheme string

var highlightCmd = &cobra.Command{
	Use:   "highlight <file>",
	Short: "Render a file with ANSI syntax highlighting",
	Long:  "Parses the file (injections included), composes the highlight event stream, and renders it with ANSI styles from the built-in or a YAML theme.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHighlight,
}

func init() {
	highlightCmd.Flags().StringVar(&flagTheme, "theme", "", "YAML theme file mapping scopes to styles")
}

func runHighlight(cmd *cobra.Command, args []string) error {
	theme, err := loadTheme(flagTheme)
	if err != nil {
		return err
	}
	loader := understory.NewLoader()
	s, src, err := openSyntax(args[0], loader)
	if err != nil {
		return err
	}
	defer s.Close()

	events := s.Highlight(0, uint32(len(src)))
	return newRenderer(loader, theme).Render(cmd.OutOrStdout(), src, events)
}

var (
	flagOffset uint32
	flagFuzzy  bool
)

var bracketsCmd = &cobra.Command{
	Use:   "brackets <file>",
	Short: "Find the bracket matching the one at --offset",
	Args:  cobra.ExactArgs(1),
	RunE:  runBrackets,
}

func init() {
	bracketsCmd.Flags().Uint32Var(&flagOffset, "offset", 0, "byte offset of the bracket (or position inside, with --fuzzy)")
	bracketsCmd.Flags().BoolVar(&flagFuzzy, "fuzzy", false, "walk up to the enclosing bracket pair")
}

func runBrackets(cmd *cobra.Command, args []string) error {
	s, _, err := openSyntax(args[0], understory.NewLoader())
	if err != nil {
		return err
	}
	defer s.Close()

	var match uint32
	var ok bool
	if flagFuzzy {
		match, ok = s.MatchBracketFuzzy(flagOffset)
	} else {
		match, ok = s.MatchBracket(flagOffset)
	}
	if !ok {
		return fmt.Errorf("no bracket match at offset %d", flagOffset)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", match)
	return nil
}

var (
	flagKind    string
	flagCapture string
)

var objectsCmd = &cobra.Command{
	Use:   "objects <file>",
	Short: "List text-object captures",
	Long:  "Runs the textobjects (or indents) query for the file's language and prints each captured byte range.",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjects,
}

func init() {
	objectsCmd.Flags().StringVar(&flagKind, "kind", "textobjects", "query kind: textobjects|indents")
	objectsCmd.Flags().StringVar(&flagCapture, "capture", "function.around", "comma-separated capture names, first match wins")
}

func runObjects(cmd *cobra.Command, args []string) error {
	s, src, err := openSyntax(args[0], understory.NewLoader())
	if err != nil {
		return err
	}
	defer s.Close()

	var kind understory.QueryKind
	switch flagKind {
	case "textobjects":
		kind = understory.KindTextObjects
	case "indents":
		kind = understory.KindIndents
	default:
		return fmt.Errorf("unknown query kind %q", flagKind)
	}

	names := strings.Split(flagCapture, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}

	nodes, complete := s.CaptureNodes(kind, names, 0, uint32(len(src)))
	for _, n := range nodes {
		start, end := n.StartByte(), n.EndByte()
		fmt.Fprintf(cmd.OutOrStdout(), "[%d,%d) %s\n", start, end, firstLine(src, start, end))
	}
	if !complete {
		log.Warn("match limit reached; results are partial")
	}
	return nil
}

// firstLine returns the first line of a byte range for display.
func firstLine(src []byte, start, end uint32) string {
	text := string(src[start:end])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := understory.SupportedLanguages()
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}
