package analyzer

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// defaultExcludedDirs are directory names never descended into.
var defaultExcludedDirs = map[string]bool{
	".git":         true,
	".gradle":      true,
	"build":        true,
	"out":          true,
	"dist":         true,
	"target":       true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".idea":        true,
	"vendor":       true,
}

// extensionsFor returns the file extensions collected for an analysis
// language. A javascript run covers the typescript extensions too; the
// per-file language is still detected from each path.
func extensionsFor(lang model.Language) []string {
	if lang == model.LanguageJavaScript {
		return append(model.LanguageJavaScript.Extensions(), model.LanguageTypeScript.Extensions()...)
	}
	return lang.Extensions()
}

// walkTree collects the relative paths of analyzable files under root in
// sorted order. Exclude entries skip directories by name and files by path
// substring; a non-empty include list keeps only paths containing one of its
// entries. Unreadable subtrees are logged and skipped, not fatal.
func walkTree(root string, lang model.Language, include, exclude []string) ([]string, error) {
	exts := map[string]bool{}
	for _, ext := range extensionsFor(lang) {
		exts[ext] = true
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("no file extensions for language %q", lang)
	}

	excludedName := map[string]bool{}
	for _, e := range exclude {
		excludedName[e] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			log.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && (defaultExcludedDirs[d.Name()] || excludedName[d.Name()]) {
				return fs.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(path.Ext(d.Name()))] {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if containsAny(rel, exclude) {
			return nil
		}
		if len(include) > 0 && !containsAny(rel, include) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func containsAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(rel, p) {
			return true
		}
	}
	return false
}

// moduleHint derives the package hint the extractor falls back to when the
// source declares none. Python and JS modules are files, so the hint keeps
// the file stem; __init__ and index files collapse to their directory.
// Kotlin packages follow directories.
func moduleHint(rel string, lang model.Language) string {
	dir := path.Dir(rel)
	switch lang {
	case model.LanguagePython, model.LanguageJavaScript, model.LanguageTypeScript:
		stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
		if stem == "__init__" || stem == "index" {
			return dotted(dir)
		}
		return dotted(path.Join(dir, stem))
	default:
		return dotted(dir)
	}
}

func dotted(p string) string {
	if p == "." || p == "" {
		return ""
	}
	return strings.ReplaceAll(p, "/", ".")
}
