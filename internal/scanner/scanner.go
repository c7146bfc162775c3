// Package scanner strips comments from source text ahead of structural
// extraction. It is a single forward pass over the input: no regular
// expressions, no lookbehind, so adversarial input (runs of slashes,
// unterminated block comments) completes in time linear in file size.
package scanner

import (
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Result is the stripped text plus line metrics gathered during the scan.
// Newlines inside comments are preserved, so line numbers in Text match the
// original source.
type Result struct {
	Text         string
	Lines        int
	CommentLines int
}

// Strip removes comments using the comment syntax of the given language.
// An unterminated block comment consumes the rest of the file.
func Strip(source string, lang model.Language) Result {
	switch lang {
	case model.LanguagePython:
		return stripHash(source)
	default:
		return stripSlash(source, lang == model.LanguageJavaScript || lang == model.LanguageTypeScript)
	}
}

// stripSlash handles //-line and /*-block comments, tracking string literals
// so comment markers inside strings survive. Used for Kotlin and JS/TS;
// template literals (backticks) are treated as strings for JS.
func stripSlash(source string, backtickStrings bool) Result {
	var out strings.Builder
	out.Grow(len(source))

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateString
		stateChar
		stateRawString // Kotlin """ ... """ or JS template literal
	)

	state := stateCode
	sawCode, sawComment := false, false
	lines, commentLines := 0, 0

	endLine := func() {
		lines++
		if sawComment && !sawCode {
			commentLines++
		}
		sawCode, sawComment = false, false
	}

	for i := 0; i < len(source); i++ {
		c := source[i]

		if c == '\n' {
			if state == stateLineComment {
				state = stateCode
			}
			out.WriteByte('\n')
			endLine()
			continue
		}

		switch state {
		case stateCode:
			switch {
			case c == '/' && i+1 < len(source) && source[i+1] == '/':
				state = stateLineComment
				sawComment = true
				i++
			case c == '/' && i+1 < len(source) && source[i+1] == '*':
				state = stateBlockComment
				sawComment = true
				i++
			case c == '"' && i+2 < len(source) && source[i+1] == '"' && source[i+2] == '"':
				state = stateRawString
				out.WriteString(`"""`)
				i += 2
				sawCode = true
			case c == '"':
				state = stateString
				out.WriteByte(c)
				sawCode = true
			case c == '\'':
				state = stateChar
				out.WriteByte(c)
				sawCode = true
			case c == '`' && backtickStrings:
				state = stateRawString
				out.WriteByte(c)
				sawCode = true
			default:
				out.WriteByte(c)
				if c != ' ' && c != '\t' && c != '\r' {
					sawCode = true
				}
			}

		case stateLineComment:
			// dropped until newline

		case stateBlockComment:
			sawComment = true
			if c == '*' && i+1 < len(source) && source[i+1] == '/' {
				state = stateCode
				i++
			}

		case stateString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(source) {
				out.WriteByte(source[i+1])
				i++
			} else if c == '"' {
				state = stateCode
			}

		case stateChar:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(source) {
				out.WriteByte(source[i+1])
				i++
			} else if c == '\'' {
				state = stateCode
			}

		case stateRawString:
			out.WriteByte(c)
			if c == '"' && i+2 < len(source) && source[i+1] == '"' && source[i+2] == '"' {
				out.WriteString(`""`)
				i += 2
				state = stateCode
			} else if c == '`' && backtickStrings {
				state = stateCode
			}
		}
	}

	if len(source) > 0 && source[len(source)-1] != '\n' {
		endLine()
	}

	return Result{Text: out.String(), Lines: lines, CommentLines: commentLines}
}

// stripHash handles #-comments for Python. Triple-quoted strings are kept
// (they are literals, not comments) but a # inside any string is preserved.
func stripHash(source string) Result {
	var out strings.Builder
	out.Grow(len(source))

	const (
		stateCode = iota
		stateComment
		stateSingle // ' ... '
		stateDouble // " ... "
		stateTriple // ''' or """ ... matching close
	)

	state := stateCode
	var tripleQuote byte
	sawCode, sawComment := false, false
	lines, commentLines := 0, 0

	endLine := func() {
		lines++
		if sawComment && !sawCode {
			commentLines++
		}
		sawCode, sawComment = false, false
	}

	isTriple := func(i int) bool {
		return i+2 < len(source) && source[i+1] == source[i] && source[i+2] == source[i]
	}

	for i := 0; i < len(source); i++ {
		c := source[i]

		if c == '\n' {
			switch state {
			case stateComment, stateSingle, stateDouble:
				// single-line strings do not span lines
				state = stateCode
			}
			out.WriteByte('\n')
			endLine()
			continue
		}

		switch state {
		case stateCode:
			switch {
			case c == '#':
				state = stateComment
				sawComment = true
			case (c == '"' || c == '\'') && isTriple(i):
				state = stateTriple
				tripleQuote = c
				out.WriteByte(c)
				out.WriteByte(c)
				out.WriteByte(c)
				i += 2
				sawCode = true
			case c == '"':
				state = stateDouble
				out.WriteByte(c)
				sawCode = true
			case c == '\'':
				state = stateSingle
				out.WriteByte(c)
				sawCode = true
			default:
				out.WriteByte(c)
				if c != ' ' && c != '\t' && c != '\r' {
					sawCode = true
				}
			}

		case stateComment:
			// dropped until newline

		case stateSingle, stateDouble:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(source) {
				out.WriteByte(source[i+1])
				i++
			} else if (state == stateSingle && c == '\'') || (state == stateDouble && c == '"') {
				state = stateCode
			}

		case stateTriple:
			out.WriteByte(c)
			if c == tripleQuote && isTriple(i) {
				out.WriteByte(c)
				out.WriteByte(c)
				i += 2
				state = stateCode
			}
		}
	}

	if len(source) > 0 && source[len(source)-1] != '\n' {
		endLine()
	}

	return Result{Text: out.String(), Lines: lines, CommentLines: commentLines}
}
