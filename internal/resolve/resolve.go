// Package resolve maps raw call-site names to declared symbols. Resolution
// is a layered strategy chain; the chain order is the precedence contract
// and is exercised directly by tests.
package resolve

import (
	"strings"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Site is one call site presented for resolution.
type Site struct {
	Callee        string
	CallerFQN     string
	CallerPackage string
	Imports       []model.Import
}

// Strategy tries one resolution rule. Returning ok=false passes the site to
// the next strategy in the chain.
type Strategy interface {
	Name() string
	TryResolve(site Site, table *SymbolTable) (string, bool)
}

// Resolver runs an ordered strategy chain; first match wins.
type Resolver struct {
	strategies []Strategy
}

// NewResolver returns the default chain: exact qualified name, same-package,
// import alias, wildcard-import expansion, then the global short-name
// fallback.
func NewResolver() *Resolver {
	return &Resolver{strategies: []Strategy{
		exactQualified{},
		samePackage{},
		importMatch{},
		wildcardImport{},
		shortNameFallback{},
	}}
}

// Strategies exposes the chain order for inspection.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the target FQN for a call site, or ok=false when no
// strategy matches. The caller decides whether unresolved calls are dropped
// or recorded against a stub.
func (r *Resolver) Resolve(site Site, table *SymbolTable) (string, bool) {
	for _, s := range r.strategies {
		if fqn, ok := s.TryResolve(site, table); ok {
			return fqn, true
		}
	}
	return "", false
}

// exactQualified matches a callee that is already written fully qualified.
type exactQualified struct{}

func (exactQualified) Name() string { return "exact_qualified" }

func (exactQualified) TryResolve(site Site, table *SymbolTable) (string, bool) {
	if !model.IsQualified(site.Callee) {
		return "", false
	}
	if table.Has(site.Callee) {
		return site.Callee, true
	}
	return "", false
}

// samePackage qualifies the callee with the caller's own package.
type samePackage struct{}

func (samePackage) Name() string { return "same_package" }

func (samePackage) TryResolve(site Site, table *SymbolTable) (string, bool) {
	candidate := model.Qualify(site.CallerPackage, site.Callee)
	if table.Has(candidate) {
		return candidate, true
	}
	return "", false
}

// importMatch substitutes an import whose alias or tail segment names the
// callee. For a dotted callee, an alias match on the first segment rewrites
// the prefix (alias.rest -> imported.path.rest).
type importMatch struct{}

func (importMatch) Name() string { return "import_match" }

func (importMatch) TryResolve(site Site, table *SymbolTable) (string, bool) {
	head, rest := site.Callee, ""
	if idx := strings.Index(site.Callee, "."); idx >= 0 {
		head, rest = site.Callee[:idx], site.Callee[idx+1:]
	}
	for _, imp := range site.Imports {
		if imp.Wildcard {
			continue
		}
		var candidate string
		switch {
		case imp.Alias != "" && imp.Alias == head:
			candidate = imp.Path
			if rest != "" {
				candidate += "." + rest
			}
		case rest == "" && imp.Tail() == site.Callee:
			candidate = imp.Path
		default:
			continue
		}
		if table.Has(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// wildcardImport expands each active wildcard import with the callee.
type wildcardImport struct{}

func (wildcardImport) Name() string { return "wildcard_import" }

func (wildcardImport) TryResolve(site Site, table *SymbolTable) (string, bool) {
	for _, imp := range site.Imports {
		if !imp.Wildcard {
			continue
		}
		candidate := imp.Path + "." + site.Callee
		if table.Has(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// shortNameFallback scans all declared symbols in discovery order and picks
// the first whose FQN ends with the callee. Ambiguous by construction; the
// deterministic discovery order (sorted file walk) makes it reproducible.
type shortNameFallback struct{}

func (shortNameFallback) Name() string { return "short_name" }

func (shortNameFallback) TryResolve(site Site, table *SymbolTable) (string, bool) {
	suffix := "." + site.Callee
	for _, fqn := range table.Order() {
		if fqn == site.Callee || strings.HasSuffix(fqn, suffix) {
			return fqn, true
		}
	}
	return "", false
}
