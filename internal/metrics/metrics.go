// Package metrics runs the quality checks over a project's completed graph:
// duplicate implementations, unused functions, strange call patterns, lexical
// risk findings, naming and module-size consistency, complexity hotspots, and
// the aggregate 0-100 health score. Every check is read-only and independent;
// the engine never writes to the store.
package metrics

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Check thresholds and listing limits.
const (
	couplingThreshold   = 10
	godThreshold        = 15
	hotspotThreshold    = 10
	hotspotHigh         = 20
	sharedCalleesMin    = 3
	duplicateNameLimit  = 20
	similarPairLimit    = 10
	circularLimit       = 10
	couplingLimit       = 10
	godLimit            = 5
	riskPerTokenLimit   = 10
	hotspotLimit        = 10
	namingOutlierMin    = 2
	oversizedMultiplier = 3
)

// riskToken maps a lowercase name fragment to its risk category. Pure lexical
// heuristic: a match flags the function, nothing more.
type riskToken struct {
	token    string
	category string
}

var riskTokens = []riskToken{
	{"eval", "code_execution"},
	{"exec", "code_execution"},
	{"__import__", "dynamic_import"},
	{"pickle", "serialization"},
	{"shell", "shell_execution"},
	{"system", "shell_execution"},
	{"subprocess", "process_execution"},
}

var (
	snakeRe  = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	camelRe  = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)
	pascalRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
)

// Engine evaluates quality checks against a graph store.
type Engine struct {
	store graphstore.Store
}

func NewEngine(store graphstore.Store) *Engine {
	return &Engine{store: store}
}

// HealthReport runs all checks and scores the project. Returns (nil, nil)
// when the project does not exist.
func (e *Engine) HealthReport(ctx context.Context, project string) (*model.HealthReport, error) {
	s, err := e.load(ctx, project)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}

	report := &model.HealthReport{
		Project:     project,
		GeneratedAt: time.Now().UTC(),
		Duplicates:  findDuplicates(s),
		Unused:      findUnused(s),
		Patterns:    findPatterns(s),
		Risks:       findRisks(s),
		Consistency: checkConsistency(s),
		Hotspots:    findHotspots(s),
	}
	report.Issues = model.IssueCounts{
		Duplicates:  len(report.Duplicates),
		Unused:      len(report.Unused),
		Patterns:    len(report.Patterns),
		Risks:       len(report.Risks),
		Consistency: len(report.Consistency),
		Hotspots:    len(report.Hotspots),
	}

	report.CodebaseSize = len(s.declared) + 2*s.classes + s.files
	report.Penalty = scorePenalty(report, len(s.declared))
	report.Score = 100 - report.Penalty
	if report.Score < 0 {
		report.Score = 0
	}
	return report, nil
}

// Duplicates lists same-name groups and high-overlap behavioral pairs.
func (e *Engine) Duplicates(ctx context.Context, project string) ([]model.Duplicate, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return findDuplicates(s), nil
}

// UnusedFunctions lists functions with zero callers, entry points excluded.
func (e *Engine) UnusedFunctions(ctx context.Context, project string) ([]model.UnusedFunction, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return findUnused(s), nil
}

// StrangePatterns lists direct call cycles, high-coupling and god functions.
func (e *Engine) StrangePatterns(ctx context.Context, project string) ([]model.Pattern, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return findPatterns(s), nil
}

// Risks lists functions whose names carry known risky tokens.
func (e *Engine) Risks(ctx context.Context, project string) ([]model.Risk, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return findRisks(s), nil
}

// Consistency reports naming-convention outliers and oversized modules.
func (e *Engine) Consistency(ctx context.Context, project string) ([]model.ConsistencyIssue, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return checkConsistency(s), nil
}

// Hotspots lists the functions with the heaviest outgoing call volume.
func (e *Engine) Hotspots(ctx context.Context, project string) ([]model.Hotspot, error) {
	s, err := e.load(ctx, project)
	if err != nil || s == nil {
		return nil, err
	}
	return findHotspots(s), nil
}

// fnInfo is the slice of a Function node the checks need.
type fnInfo struct {
	fqn        string
	name       string
	pkg        string
	file       string
	complexity int
}

// snapshot is one consistent read of a project's graph. declared excludes
// stub nodes; degree maps cover every function key including stubs.
type snapshot struct {
	declared []fnInfo
	byFQN    map[string]fnInfo
	allKeys  []string
	files    int
	classes  int

	callersOf map[string]map[string]bool
	calleesOf map[string]map[string]bool
	outCalls  map[string]int
}

func (e *Engine) load(ctx context.Context, project string) (*snapshot, error) {
	node, err := e.store.GetNode(ctx, project, graphstore.LabelProject, project)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if node == nil {
		return nil, nil
	}

	funcs, err := e.store.ListNodes(ctx, project, graphstore.LabelFunction)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	files, err := e.store.CountNodes(ctx, project, graphstore.LabelFile)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	classes, err := e.store.CountNodes(ctx, project, graphstore.LabelClass)
	if err != nil {
		return nil, fmt.Errorf("count classes: %w", err)
	}
	calls, err := e.store.ListEdges(ctx, project, graphstore.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	s := &snapshot{
		byFQN:     make(map[string]fnInfo, len(funcs)),
		files:     files,
		classes:   classes,
		callersOf: map[string]map[string]bool{},
		calleesOf: map[string]map[string]bool{},
		outCalls:  map[string]int{},
	}
	for i := range funcs {
		n := &funcs[i]
		info := fnInfo{
			fqn:        n.Key,
			name:       n.StringProp("name"),
			pkg:        n.StringProp("package"),
			file:       n.StringProp("file"),
			complexity: n.IntProp("complexity"),
		}
		s.byFQN[n.Key] = info
		s.allKeys = append(s.allKeys, n.Key)
		if !n.BoolProp("stub") {
			s.declared = append(s.declared, info)
		}
	}
	sort.Strings(s.allKeys)
	sort.Slice(s.declared, func(i, j int) bool { return s.declared[i].fqn < s.declared[j].fqn })

	for i := range calls {
		edge := &calls[i]
		if s.callersOf[edge.ToKey] == nil {
			s.callersOf[edge.ToKey] = map[string]bool{}
		}
		s.callersOf[edge.ToKey][edge.FromKey] = true
		if s.calleesOf[edge.FromKey] == nil {
			s.calleesOf[edge.FromKey] = map[string]bool{}
		}
		s.calleesOf[edge.FromKey][edge.ToKey] = true
		s.outCalls[edge.FromKey]++
	}
	return s, nil
}

func findDuplicates(s *snapshot) []model.Duplicate {
	groups := map[string][]fnInfo{}
	for _, fn := range s.declared {
		if fn.name == "" {
			continue
		}
		groups[fn.name] = append(groups[fn.name], fn)
	}

	names := make([]string, 0, len(groups))
	for name, members := range groups {
		if len(members) < 2 {
			continue
		}
		if !spansFilesOrPackages(members) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Duplicate
	for _, name := range names {
		if len(out) >= duplicateNameLimit {
			break
		}
		members := groups[name]
		fqns := make([]string, 0, len(members))
		fileSet := map[string]bool{}
		for _, m := range members {
			fqns = append(fqns, m.fqn)
			if m.file != "" {
				fileSet[m.file] = true
			}
		}
		sort.Strings(fqns)
		files := make([]string, 0, len(fileSet))
		for f := range fileSet {
			files = append(files, f)
		}
		sort.Strings(files)

		out = append(out, model.Duplicate{
			Kind:      "duplicate_name",
			Severity:  model.SeverityMedium,
			Name:      name,
			Functions: fqns,
			Files:     files,
		})
	}

	out = append(out, similarBehaviorPairs(s)...)
	return out
}

// spansFilesOrPackages reports whether a same-name group crosses at least two
// files or two packages. A name reused inside one file is not a duplicate.
func spansFilesOrPackages(members []fnInfo) bool {
	for _, m := range members[1:] {
		if m.file != members[0].file || m.pkg != members[0].pkg {
			return true
		}
	}
	return false
}

// similarBehaviorPairs finds pairs of differently-named functions in
// different packages sharing more than sharedCalleesMin distinct callees.
func similarBehaviorPairs(s *snapshot) []model.Duplicate {
	shared := map[[2]string]int{}
	callees := map[string][]string{}
	for callee, callers := range s.callersOf {
		list := make([]string, 0, len(callers))
		for c := range callers {
			list = append(list, c)
		}
		sort.Strings(list)
		callees[callee] = list
	}
	for _, callers := range callees {
		for i := 0; i < len(callers); i++ {
			for j := i + 1; j < len(callers); j++ {
				shared[[2]string{callers[i], callers[j]}]++
			}
		}
	}

	type pair struct {
		a, b  string
		count int
	}
	var pairs []pair
	for key, count := range shared {
		if count <= sharedCalleesMin {
			continue
		}
		a, okA := s.byFQN[key[0]]
		b, okB := s.byFQN[key[1]]
		if !okA || !okB {
			continue
		}
		if a.name == b.name || a.pkg == b.pkg {
			continue
		}
		pairs = append(pairs, pair{key[0], key[1], count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	var out []model.Duplicate
	for _, p := range pairs {
		if len(out) >= similarPairLimit {
			break
		}
		out = append(out, model.Duplicate{
			Kind:          "similar_behavior",
			Severity:      model.SeverityLow,
			Functions:     []string{p.a, p.b},
			SharedCallees: p.count,
		})
	}
	return out
}

func findUnused(s *snapshot) []model.UnusedFunction {
	var out []model.UnusedFunction
	for _, fn := range s.declared {
		if len(s.callersOf[fn.fqn]) > 0 {
			continue
		}
		if isEntryPoint(fn) {
			continue
		}
		out = append(out, model.UnusedFunction{
			Name: fn.name,
			FQN:  fn.fqn,
			File: fn.file,
		})
	}
	return out
}

// isEntryPoint recognizes the conventions that legitimately have no callers:
// mains, request handlers and routes, constructors, tests, private helpers by
// underscore prefix, and anything living in a cli module.
func isEntryPoint(fn fnInfo) bool {
	lower := strings.ToLower(fn.name)
	switch {
	case fn.name == "main":
		return true
	case strings.Contains(lower, "handler") || strings.Contains(lower, "route"):
		return true
	case fn.name == "init" || fn.name == "__init__" || fn.name == "constructor":
		return true
	case strings.HasPrefix(lower, "test"):
		return true
	case strings.HasPrefix(fn.name, "_"):
		return true
	case strings.Contains(strings.ToLower(fn.pkg), "cli"):
		return true
	}
	return false
}

func findPatterns(s *snapshot) []model.Pattern {
	var out []model.Pattern

	// Direct 2-cycles, one finding per pair.
	callers := make([]string, 0, len(s.calleesOf))
	for caller := range s.calleesOf {
		callers = append(callers, caller)
	}
	sort.Strings(callers)
	cycles := 0
	for _, a := range callers {
		if cycles >= circularLimit {
			break
		}
		targets := make([]string, 0, len(s.calleesOf[a]))
		for t := range s.calleesOf[a] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, b := range targets {
			if a >= b {
				continue
			}
			if s.calleesOf[b][a] {
				out = append(out, model.Pattern{
					Kind:      "circular_call",
					Severity:  model.SeverityHigh,
					Functions: []string{a, b},
				})
				cycles++
				if cycles >= circularLimit {
					break
				}
			}
		}
	}

	out = append(out, degreeFindings(s.calleesOf, "high_coupling", model.SeverityMedium, couplingThreshold, couplingLimit)...)
	out = append(out, degreeFindings(s.callersOf, "god_function", model.SeverityHigh, godThreshold, godLimit)...)
	return out
}

// degreeFindings reports every key whose distinct-neighbor count exceeds the
// threshold, highest degree first.
func degreeFindings(adj map[string]map[string]bool, kind string, sev model.Severity, threshold, limit int) []model.Pattern {
	type entry struct {
		fqn    string
		degree int
	}
	var entries []entry
	for fqn, set := range adj {
		if len(set) > threshold {
			entries = append(entries, entry{fqn, len(set)})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].degree != entries[j].degree {
			return entries[i].degree > entries[j].degree
		}
		return entries[i].fqn < entries[j].fqn
	})

	var out []model.Pattern
	for _, e := range entries {
		if len(out) >= limit {
			break
		}
		out = append(out, model.Pattern{
			Kind:      kind,
			Severity:  sev,
			Functions: []string{e.fqn},
			Count:     e.degree,
		})
	}
	return out
}

func findRisks(s *snapshot) []model.Risk {
	var out []model.Risk
	for _, rt := range riskTokens {
		matched := 0
		for _, fn := range s.declared {
			if matched >= riskPerTokenLimit {
				break
			}
			if !strings.Contains(strings.ToLower(fn.name), rt.token) &&
				!strings.Contains(strings.ToLower(fn.fqn), rt.token) {
				continue
			}
			out = append(out, model.Risk{
				Category: rt.category,
				Severity: model.SeverityHigh,
				FQN:      fn.fqn,
				File:     fn.file,
			})
			matched++
		}
	}
	return out
}

func checkConsistency(s *snapshot) []model.ConsistencyIssue {
	var out []model.ConsistencyIssue
	out = append(out, namingOutliers(s)...)
	out = append(out, oversizedModules(s)...)
	return out
}

func classifyName(name string) string {
	switch {
	case snakeRe.MatchString(name):
		return "snake_case"
	case camelRe.MatchString(name):
		return "camelCase"
	case pascalRe.MatchString(name):
		return "PascalCase"
	default:
		return "mixed"
	}
}

func namingOutliers(s *snapshot) []model.ConsistencyIssue {
	counts := map[string]int{}
	examples := map[string][]string{}
	for _, fn := range s.declared {
		style := classifyName(fn.name)
		counts[style]++
		if len(examples[style]) < 5 {
			examples[style] = append(examples[style], fn.name)
		}
	}
	if len(counts) < 2 {
		return nil
	}

	styles := make([]string, 0, len(counts))
	for style := range counts {
		styles = append(styles, style)
	}
	sort.Slice(styles, func(i, j int) bool {
		if counts[styles[i]] != counts[styles[j]] {
			return counts[styles[i]] > counts[styles[j]]
		}
		return styles[i] < styles[j]
	})

	dominant := styles[0]
	total := len(s.declared)
	var out []model.ConsistencyIssue
	for _, style := range styles[1:] {
		if counts[style] <= namingOutlierMin {
			continue
		}
		pct := float64(counts[style]) / float64(total) * 100
		out = append(out, model.ConsistencyIssue{
			Kind:     "naming_outlier",
			Detail:   fmt.Sprintf("%d functions use %s (%.1f%%)", counts[style], style, pct),
			Dominant: dominant,
			Items:    examples[style],
		})
	}
	return out
}

func oversizedModules(s *snapshot) []model.ConsistencyIssue {
	counts := map[string]int{}
	for _, fn := range s.declared {
		counts[fn.pkg]++
	}
	if len(counts) == 0 {
		return nil
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	avg := float64(total) / float64(len(counts))

	pkgs := make([]string, 0, len(counts))
	for pkg := range counts {
		if float64(counts[pkg]) > avg*oversizedMultiplier {
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Slice(pkgs, func(i, j int) bool {
		if counts[pkgs[i]] != counts[pkgs[j]] {
			return counts[pkgs[i]] > counts[pkgs[j]]
		}
		return pkgs[i] < pkgs[j]
	})

	var out []model.ConsistencyIssue
	for _, pkg := range pkgs {
		out = append(out, model.ConsistencyIssue{
			Kind:   "oversized_module",
			Detail: fmt.Sprintf("package %s has %d functions (project average %.1f)", pkg, counts[pkg], avg),
			Items:  []string{pkg},
		})
	}
	return out
}

func findHotspots(s *snapshot) []model.Hotspot {
	type entry struct {
		fqn   string
		calls int
	}
	var entries []entry
	for fqn, calls := range s.outCalls {
		if calls > hotspotThreshold {
			entries = append(entries, entry{fqn, calls})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].calls != entries[j].calls {
			return entries[i].calls > entries[j].calls
		}
		return entries[i].fqn < entries[j].fqn
	})

	var out []model.Hotspot
	for _, e := range entries {
		if len(out) >= hotspotLimit {
			break
		}
		sev := model.SeverityMedium
		if e.calls > hotspotHigh {
			sev = model.SeverityHigh
		}
		info := s.byFQN[e.fqn]
		out = append(out, model.Hotspot{
			FQN:        e.fqn,
			File:       info.file,
			Complexity: info.complexity,
			CallCount:  e.calls,
			Severity:   sev,
		})
	}
	return out
}

// scorePenalty computes the deduction from 100. Duplicate and unused rates
// are percentages of the function count with tiered penalties; strange
// patterns, consistency issues and hotspots are density-normalized by
// codebase size so large projects are not penalized for raw volume; every
// risk finding costs a flat 10.
func scorePenalty(r *model.HealthReport, functionCount int) int {
	penalty := 0

	if functionCount > 0 {
		dupRate := float64(r.Issues.Duplicates) / float64(functionCount) * 100
		switch {
		case dupRate > 50:
			penalty += 20
		case dupRate > 30:
			penalty += 15
		case dupRate > 15:
			penalty += 10
		case dupRate > 5:
			penalty += 5
		}

		unusedRate := float64(r.Issues.Unused) / float64(functionCount) * 100
		switch {
		case unusedRate > 50:
			penalty += 15
		case unusedRate > 30:
			penalty += 10
		case unusedRate > 15:
			penalty += 7
		case unusedRate > 5:
			penalty += 3
		}
	}

	norm := float64(r.CodebaseSize) / 100
	if norm < 1 {
		norm = 1
	}
	density := float64(r.TotalIssues()) / norm
	switch {
	case density > 10:
		penalty += 15
	case density > 5:
		penalty += 10
	case density > 2:
		penalty += 5
	}

	penalty += 10 * r.Issues.Risks
	return penalty
}
