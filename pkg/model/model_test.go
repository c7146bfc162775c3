package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in       string
		expected Language
		wantErr  bool
	}{
		{"kotlin", LanguageKotlin, false},
		{"kt", LanguageKotlin, false},
		{"Kotlin", LanguageKotlin, false},
		{"python", LanguagePython, false},
		{"py", LanguagePython, false},
		{"javascript", LanguageJavaScript, false},
		{"js", LanguageJavaScript, false},
		{"typescript", LanguageTypeScript, false},
		{"ts", LanguageTypeScript, false},
		{" kotlin ", LanguageKotlin, false},
		{"rust", LanguageUnknown, true},
		{"", LanguageUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lang, err := ParseLanguage(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lang)
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path     string
		expected Language
	}{
		{"Main.kt", LanguageKotlin},
		{"build.gradle.kts", LanguageKotlin},
		{"app.py", LanguagePython},
		{"index.js", LanguageJavaScript},
		{"index.jsx", LanguageJavaScript},
		{"util.mjs", LanguageJavaScript},
		{"app.ts", LanguageTypeScript},
		{"app.tsx", LanguageTypeScript},
		{"/deep/path/File.KT", LanguageKotlin},
		{"README.md", LanguageUnknown},
		{"Makefile", LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLanguage(tt.path))
		})
	}
}

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("basic")
	require.NoError(t, err)
	assert.Equal(t, DepthBasic, d)

	d, err = ParseDepth("DEEP")
	require.NoError(t, err)
	assert.Equal(t, DepthDeep, d)

	// Empty defaults to medium.
	d, err = ParseDepth("")
	require.NoError(t, err)
	assert.Equal(t, DepthMedium, d)

	_, err = ParseDepth("ultra")
	assert.Error(t, err)
}

func TestDepth_Ordering(t *testing.T) {
	assert.True(t, DepthBasic < DepthMedium)
	assert.True(t, DepthMedium < DepthDeep)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "com.acme.foo", Qualify("com.acme", "foo"))
	assert.Equal(t, "default.foo", Qualify("", "foo"))
}

func TestSimpleName(t *testing.T) {
	assert.Equal(t, "foo", SimpleName("com.acme.foo"))
	assert.Equal(t, "foo", SimpleName("foo"))
	assert.Equal(t, "method", SimpleName("pkg.Class.method"))
}

func TestIsQualified(t *testing.T) {
	assert.True(t, IsQualified("com.acme.foo"))
	assert.False(t, IsQualified("foo"))
}

func TestImport_Tail(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"com.acme.util.format", "format"},
		{"os", "os"},
		{"p.foo", "foo"},
	}

	for _, tt := range tests {
		imp := Import{Path: tt.path}
		assert.Equal(t, tt.expected, imp.Tail())
	}
}
