package scanner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

func TestStrip_LineComments(t *testing.T) {
	src := "fun main() {\n    val x = 1 // trailing\n    // full line\n}\n"
	res := Strip(src, model.LanguageKotlin)

	assert.NotContains(t, res.Text, "trailing")
	assert.NotContains(t, res.Text, "full line")
	assert.Contains(t, res.Text, "val x = 1")
	assert.Equal(t, 4, res.Lines)
	assert.Equal(t, 1, res.CommentLines)
}

func TestStrip_BlockComments(t *testing.T) {
	src := "class A /* inline */ {\n/* spans\nlines */\nfun b() {}\n}\n"
	res := Strip(src, model.LanguageKotlin)

	assert.NotContains(t, res.Text, "inline")
	assert.NotContains(t, res.Text, "spans")
	assert.Contains(t, res.Text, "class A")
	assert.Contains(t, res.Text, "fun b()")
	// newlines inside the block comment survive so line numbers hold
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(res.Text, "\n"))
	assert.Equal(t, 2, res.CommentLines)
}

func TestStrip_UnterminatedBlockConsumesRest(t *testing.T) {
	src := "fun a() {}\n/* never closed\nfun hidden() {}\n"
	res := Strip(src, model.LanguageKotlin)

	assert.Contains(t, res.Text, "fun a()")
	assert.NotContains(t, res.Text, "hidden")
	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, 2, res.CommentLines)
}

func TestStrip_CommentMarkersInsideStrings(t *testing.T) {
	tests := []struct {
		name string
		lang model.Language
		src  string
		keep string
	}{
		{"url in kotlin string", model.LanguageKotlin, `val u = "https://example.com" // real`, `https://example.com`},
		{"slashes in raw string", model.LanguageKotlin, "val r = \"\"\"a // b /* c */\"\"\"", "a // b /* c */"},
		{"hash in python string", model.LanguagePython, `color = "#fff"  # hex`, `#fff`},
		{"backtick template", model.LanguageJavaScript, "const s = `a // b`", "a // b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Strip(tt.src, tt.lang)
			assert.Contains(t, res.Text, tt.keep)
		})
	}
}

func TestStrip_PythonComments(t *testing.T) {
	src := "# module comment\ndef f():\n    \"\"\"docstring stays\"\"\"\n    return 1  # tail\n"
	res := Strip(src, model.LanguagePython)

	assert.NotContains(t, res.Text, "module comment")
	assert.NotContains(t, res.Text, "tail")
	assert.Contains(t, res.Text, "docstring stays")
	assert.Equal(t, 4, res.Lines)
	assert.Equal(t, 1, res.CommentLines)
}

func TestStrip_EmptyAndBlank(t *testing.T) {
	assert.Equal(t, Result{}, Strip("", model.LanguageKotlin))

	res := Strip("\n\n", model.LanguageKotlin)
	assert.Equal(t, 2, res.Lines)
	assert.Equal(t, 0, res.CommentLines)
}

func TestStrip_SlashRunDoesNotHang(t *testing.T) {
	src := strings.Repeat("/", 10000)

	done := make(chan Result, 1)
	go func() { done <- Strip(src, model.LanguageKotlin) }()

	select {
	case res := <-done:
		assert.Equal(t, 1, res.Lines)
	case <-time.After(2 * time.Second):
		t.Fatal("scan of pathological slash run did not finish")
	}
}

func TestStrip_LargeUnterminatedBlockIsLinear(t *testing.T) {
	src := "/*" + strings.Repeat("x", 1<<20)

	start := time.Now()
	res := Strip(src, model.LanguageKotlin)
	elapsed := time.Since(start)

	assert.Equal(t, 1, res.CommentLines)
	assert.Less(t, elapsed, 200*time.Millisecond, "1MiB unterminated block comment should scan in linear time")
}
