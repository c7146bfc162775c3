// Package model defines the language-agnostic code model - the common
// representation that the per-language extractors produce and that the
// resolver, graph assembler, and metrics engine consume.
package model

import (
	"fmt"
	"strings"
)

// Language identifies a supported source language.
type Language string

const (
	LanguageKotlin     Language = "kotlin"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageUnknown    Language = "unknown"
)

// ParseLanguage normalizes a user-supplied language name.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kotlin", "kt":
		return LanguageKotlin, nil
	case "python", "py":
		return LanguagePython, nil
	case "javascript", "js":
		return LanguageJavaScript, nil
	case "typescript", "ts":
		return LanguageTypeScript, nil
	case "":
		return LanguageUnknown, fmt.Errorf("language is required")
	default:
		return LanguageUnknown, fmt.Errorf("unsupported language: %s", s)
	}
}

// DetectLanguage returns the language for a file path based on its extension.
func DetectLanguage(path string) Language {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".kt"), strings.HasSuffix(lower, ".kts"):
		return LanguageKotlin
	case strings.HasSuffix(lower, ".py"):
		return LanguagePython
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".jsx"), strings.HasSuffix(lower, ".mjs"):
		return LanguageJavaScript
	case strings.HasSuffix(lower, ".ts"), strings.HasSuffix(lower, ".tsx"):
		return LanguageTypeScript
	default:
		return LanguageUnknown
	}
}

// Extensions returns the file extensions analyzed for a language.
func (l Language) Extensions() []string {
	switch l {
	case LanguageKotlin:
		return []string{".kt", ".kts"}
	case LanguagePython:
		return []string{".py"}
	case LanguageJavaScript:
		return []string{".js", ".jsx", ".mjs"}
	case LanguageTypeScript:
		return []string{".ts", ".tsx"}
	default:
		return nil
	}
}

// Depth selects how much detail extraction captures. Higher depth strictly
// extends the output of lower depth.
type Depth int

const (
	DepthBasic Depth = iota + 1
	DepthMedium
	DepthDeep
)

// ParseDepth normalizes a user-supplied depth name.
func ParseDepth(s string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "medium":
		return DepthMedium, nil
	case "basic":
		return DepthBasic, nil
	case "deep":
		return DepthDeep, nil
	default:
		return 0, fmt.Errorf("unsupported depth: %s (want basic, medium, or deep)", s)
	}
}

func (d Depth) String() string {
	switch d {
	case DepthBasic:
		return "basic"
	case DepthMedium:
		return "medium"
	case DepthDeep:
		return "deep"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// DefaultPackage is the package name assigned when a file declares none.
const DefaultPackage = "default"

// Function represents any declared callable unit. Fully-qualified name is the
// natural key within a project; duplicate short names across packages are
// expected and tracked, never merged.
type Function struct {
	Name       string   `json:"name"`
	FQN        string   `json:"fqn"` // package[.Class].name
	Package    string   `json:"package"`
	Class      string   `json:"class,omitempty"` // enclosing class, if any
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Params     []string `json:"params,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
	Language   Language `json:"language"`
	Complexity int      `json:"complexity,omitempty"` // captured at deep depth only
}

// ClassKind distinguishes class-like declarations.
type ClassKind string

const (
	KindClass     ClassKind = "class"
	KindInterface ClassKind = "interface"
	KindObject    ClassKind = "object"
	KindEnum      ClassKind = "enum"
)

// Class represents a class-like declaration. Supertypes hold the raw declared
// names (comma-split, constructor arguments stripped), not resolved references.
type Class struct {
	Name          string    `json:"name"`
	FQN           string    `json:"fqn"`
	Package       string    `json:"package"`
	File          string    `json:"file"`
	Line          int       `json:"line"`
	Kind          ClassKind `json:"kind"`
	Supertypes    []string  `json:"supertypes,omitempty"`
	MethodCount   int       `json:"method_count"`
	PropertyCount int       `json:"property_count"`
}

// Import records one import statement of a source file.
type Import struct {
	Path     string `json:"path"`            // full imported path, e.g. com.acme.util.format
	Alias    string `json:"alias,omitempty"` // as-alias when present
	Wildcard bool   `json:"wildcard,omitempty"`
}

// Tail returns the last segment of the import path.
func (i Import) Tail() string {
	if idx := strings.LastIndex(i.Path, "."); idx >= 0 {
		return i.Path[idx+1:]
	}
	return i.Path
}

// CallType tags how a call site references its target.
type CallType string

const (
	CallDirect         CallType = "direct"
	CallMethod         CallType = "method"
	CallConstructor    CallType = "constructor"
	CallSafe           CallType = "safe_call"
	CallScopeFunction  CallType = "scope_function"
	CallDecorator      CallType = "decorator"
	CallInherits       CallType = "inherits"
	CallReturn         CallType = "return"
	CallAssignment     CallType = "assignment"
	CallContextManager CallType = "context_manager"
)

// CallSite is a raw, unresolved textual call reference found in a function
// body. Callee is the name as written; the resolver maps it to an FQN.
type CallSite struct {
	CallerFQN string   `json:"caller_fqn"`
	Callee    string   `json:"callee"`
	Type      CallType `json:"type"`
	Line      int      `json:"line"`
}

// ResolvedCall is a call edge after resolution. When Stub is true the callee
// was never independently discovered and CalleeFQN is best-effort.
type ResolvedCall struct {
	CallerFQN string   `json:"caller_fqn"`
	CalleeFQN string   `json:"callee_fqn"`
	Type      CallType `json:"type"`
	Line      int      `json:"line"`
	Stub      bool     `json:"stub,omitempty"`
}

// DSLBlock records a fluent-builder block occurrence; purely additive
// metadata, not required for call-graph correctness.
type DSLBlock struct {
	Type string `json:"type"` // builder keyword, e.g. spiceAgent
	File string `json:"file"`
	Line int    `json:"line"`
}

// SourceFile carries per-file facts and derived metrics.
type SourceFile struct {
	Path         string   `json:"path"` // relative to the project root
	Package      string   `json:"package"`
	Language     Language `json:"language"`
	Lines        int      `json:"lines"`
	CommentLines int      `json:"comment_lines"`
	Complexity   int      `json:"complexity"`
	IsDSL        bool     `json:"is_dsl,omitempty"`
}

// FileFacts is the full extraction result for one source file.
type FileFacts struct {
	File      SourceFile `json:"file"`
	Imports   []Import   `json:"imports,omitempty"`
	Functions []Function `json:"functions,omitempty"`
	Classes   []Class    `json:"classes,omitempty"`
	Calls     []CallSite `json:"calls,omitempty"`
	DSLBlocks []DSLBlock `json:"dsl_blocks,omitempty"`
}

// Qualify joins a package and a name into an FQN.
func Qualify(pkg, name string) string {
	if pkg == "" {
		pkg = DefaultPackage
	}
	return pkg + "." + name
}

// SimpleName returns the segment after the last dot of an FQN.
func SimpleName(fqn string) string {
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// IsQualified reports whether a callee name already looks fully qualified.
func IsQualified(name string) bool {
	return strings.Contains(name, ".")
}
