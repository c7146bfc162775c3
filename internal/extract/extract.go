// Package extract pulls structural facts (package, imports, declarations,
// call sites, DSL blocks) out of comment-stripped source text using
// per-language pattern sets. Extraction is deliberately lightweight: it
// accepts some false positives and negatives in exchange for speed and
// robustness on large, messy trees.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Facts is the raw extraction output for one file. File paths and derived
// file metrics are stamped by the caller, which knows the file's identity.
type Facts struct {
	Package   string
	Imports   []model.Import
	Functions []model.Function
	Classes   []model.Class
	Calls     []model.CallSite
	DSLBlocks []model.DSLBlock
	IsDSL     bool
	// Complexity is a whole-file score, captured at deep depth only.
	Complexity int
}

// Extractor is the structural-extraction boundary. Implementations are
// pattern-based; a future grammar-based parser can be substituted here
// without touching resolution, assembly, or metrics.
//
// pkgHint is the package/module name inferred from the file path; it is used
// when the source declares no package of its own (always, for Python and
// JavaScript). Higher depths strictly extend lower depths' output.
type Extractor interface {
	Language() model.Language
	Extract(text, pkgHint string, depth model.Depth) Facts
}

// ForLanguage returns the extractor for a supported language.
func ForLanguage(lang model.Language) (Extractor, error) {
	switch lang {
	case model.LanguageKotlin:
		return &kotlinExtractor{}, nil
	case model.LanguagePython:
		return &pythonExtractor{}, nil
	case model.LanguageJavaScript, model.LanguageTypeScript:
		return &jsExtractor{}, nil
	default:
		return nil, fmt.Errorf("no extractor for language %q", lang)
	}
}

// rawCall is a call site before it is attributed to its containing function.
type rawCall struct {
	callee   string
	callType model.CallType
	line     int
}

// callAttributionWindow bounds how far above a call site we look for its
// containing function declaration.
const callAttributionWindow = 50

// attributeCalls assigns each raw call to the nearest function declared at or
// above its line. Calls with no function within the window are dropped: an
// edge needs a known source.
func attributeCalls(raw []rawCall, funcs []model.Function) []model.CallSite {
	if len(raw) == 0 {
		return nil
	}
	calls := make([]model.CallSite, 0, len(raw))
	for _, rc := range raw {
		var owner *model.Function
		best := callAttributionWindow + 1
		for i := range funcs {
			f := &funcs[i]
			if f.Line > rc.line {
				continue
			}
			if d := rc.line - f.Line; d < best {
				best = d
				owner = f
			}
		}
		if owner == nil {
			continue
		}
		calls = append(calls, model.CallSite{
			CallerFQN: owner.FQN,
			Callee:    rc.callee,
			Type:      rc.callType,
			Line:      rc.line,
		})
	}
	return calls
}

// bodyWindow bounds the balanced-brace scan that isolates a function body.
const bodyWindow = 2000

// braceBody returns the balanced-brace block starting at or after start,
// scanning at most bodyWindow bytes. An unclosed block within the window
// yields the empty string.
func braceBody(text string, start int) string {
	depth := 0
	inBody := false
	limit := start + bodyWindow
	if limit > len(text) {
		limit = len(text)
	}
	for i := start; i < limit; i++ {
		switch text[i] {
		case '{':
			depth++
			inBody = true
		case '}':
			depth--
			if depth == 0 && inBody {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var (
	reIf      = regexp.MustCompile(`\bif\b`)
	reWhen    = regexp.MustCompile(`\bwhen\b`)
	reFor     = regexp.MustCompile(`\bfor\b`)
	reWhile   = regexp.MustCompile(`\bwhile\b`)
	reCatch   = regexp.MustCompile(`\bcatch\b`)
	reElif    = regexp.MustCompile(`\belif\b`)
	reExcept  = regexp.MustCompile(`\bexcept\b`)
	reElvis   = regexp.MustCompile(`\?\s*:`)
	reNullish = regexp.MustCompile(`\?\?`)
)

// cyclomatic approximates cyclomatic complexity as 1 plus the count of
// branching constructs in the given text.
func cyclomatic(text string, lang model.Language) int {
	n := 1
	n += len(reIf.FindAllStringIndex(text, -1))
	n += len(reFor.FindAllStringIndex(text, -1))
	n += len(reWhile.FindAllStringIndex(text, -1))
	switch lang {
	case model.LanguagePython:
		n += len(reElif.FindAllStringIndex(text, -1))
		n += len(reExcept.FindAllStringIndex(text, -1))
	case model.LanguageJavaScript, model.LanguageTypeScript:
		n += len(reCatch.FindAllStringIndex(text, -1))
		n += len(reNullish.FindAllStringIndex(text, -1))
	default:
		n += len(reWhen.FindAllStringIndex(text, -1))
		n += len(reCatch.FindAllStringIndex(text, -1))
		n += len(reElvis.FindAllStringIndex(text, -1))
	}
	return n
}

// parseParams splits a raw parameter list into parameter names. Entries with
// a type annotation keep only the name; untyped entries are kept as written.
func parseParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	params := make([]string, 0, len(parts))
	for _, p := range parts {
		name := p
		if idx := strings.Index(p, ":"); idx >= 0 {
			name = p[:idx]
		}
		if idx := strings.Index(name, "="); idx >= 0 {
			name = name[:idx]
		}
		name = strings.TrimSpace(name)
		name = strings.TrimPrefix(name, "vararg ")
		name = strings.TrimPrefix(name, "val ")
		name = strings.TrimPrefix(name, "var ")
		name = strings.TrimLeft(name, "*")
		if name != "" {
			params = append(params, name)
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// splitSupertypes breaks a raw supertype list on commas and strips
// constructor-argument suffixes and generic parameters.
func splitSupertypes(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var supers []string
	depth := 0
	start := 0
	flush := func(end int) {
		s := strings.TrimSpace(raw[start:end])
		if idx := strings.Index(s, "("); idx >= 0 {
			s = s[:idx]
		}
		if idx := strings.Index(s, "<"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
		if s != "" {
			supers = append(supers, s)
		}
	}
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(raw))
	return supers
}

// classSpan marks the line range a class body occupies.
type classSpan struct {
	start, end int
	name       string
}

// classSpans finds class body boundaries by brace counting, so functions can
// be attributed to their enclosing class. headerRe must capture the class
// name as group 1. Nested classes are not tracked; the outermost open class
// wins.
func classSpans(lines []string, headerRe *regexp.Regexp) []classSpan {
	var spans []classSpan
	var current string
	var startLine, depth int

	for i, line := range lines {
		if current == "" {
			m := headerRe.FindStringSubmatch(line)
			if m != nil && strings.Contains(line, "{") {
				current = m[1]
				startLine = i
				depth = 1
				continue
			}
		} else {
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				spans = append(spans, classSpan{start: startLine, end: i, name: current})
				current = ""
			}
		}
	}
	return spans
}

// containingClass returns the class whose span covers the given line index.
func containingClass(lineIdx int, spans []classSpan) string {
	for _, s := range spans {
		if s.start <= lineIdx && lineIdx <= s.end {
			return s.name
		}
	}
	return ""
}

// precededBy reports whether the identifier starting at idx is directly
// preceded (ignoring spaces and tabs) by the given word.
func precededBy(line string, idx int, word string) bool {
	i := idx - 1
	for i >= 0 && (line[i] == ' ' || line[i] == '\t') {
		i--
	}
	end := i + 1
	for i >= 0 && isWordByte(line[i]) {
		i--
	}
	return line[i+1:end] == word
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
