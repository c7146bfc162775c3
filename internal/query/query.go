// Package query is the read-only context facade over the code graph:
// project overviews, function context, hierarchy and call-graph slices,
// package dependencies, cycle reports, and substring search. Every answer is
// limit-bounded so results stay safe to hand to humans and language models.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Output bounds.
const (
	ContextLimit      = 20
	SliceDepth        = 2
	SliceNodeLimit    = 100
	SliceEdgeLimit    = 200
	PackageDepsLimit  = 50
	FunctionCycleMax  = 20
	PackageCycleMax   = 10
	SearchLimit       = 50
	TopPackages       = 10
	HotspotLimit      = 10
	FileComplexityMin = 100
	BusyConnectionMin = 10
)

// Facade answers read-only questions against a graph store.
type Facade struct {
	store graphstore.Store
}

func NewFacade(store graphstore.Store) *Facade {
	return &Facade{store: store}
}

// Overview summarizes one analyzed project.
type Overview struct {
	Project     string           `json:"project"`
	Language    string           `json:"language,omitempty"`
	Root        string           `json:"root,omitempty"`
	Depth       string           `json:"depth,omitempty"`
	AnalyzedAt  string           `json:"analyzed_at,omitempty"`
	HealthScore *int             `json:"health_score,omitempty"`
	Stats       OverviewStats    `json:"stats"`
	TopPackages []PackageSummary `json:"top_packages,omitempty"`
}

type OverviewStats struct {
	Functions int `json:"functions"`
	Classes   int `json:"classes"`
	Files     int `json:"files"`
	Packages  int `json:"packages"`
	DSLBlocks int `json:"dsl_blocks"`
	CallEdges int `json:"call_edges"`
}

type PackageSummary struct {
	Name      string `json:"package"`
	Functions int    `json:"functions"`
	Classes   int    `json:"classes"`
}

// FunctionRef is how query results point at a function.
type FunctionRef struct {
	Name    string `json:"name"`
	FQN     string `json:"fqn"`
	Package string `json:"package,omitempty"`
	File    string `json:"file,omitempty"`
	Stub    bool   `json:"stub,omitempty"`
}

// FunctionContext is the callers/callees neighborhood of one function.
type FunctionContext struct {
	Function FunctionRef   `json:"function"`
	Language string        `json:"language,omitempty"`
	Line     int           `json:"line,omitempty"`
	Callers  []FunctionRef `json:"callers"`
	Callees  []FunctionRef `json:"callees"`
}

// ClassInfo is one class with its direct hierarchy neighbors.
type ClassInfo struct {
	Name     string   `json:"name"`
	FQN      string   `json:"fqn"`
	Package  string   `json:"package,omitempty"`
	File     string   `json:"file,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Parents  []string `json:"parents,omitempty"`
	Children []string `json:"children,omitempty"`
}

// CallGraphSlice is a bounded set of call edges around a start function, or
// a project-wide sample when no start is given.
type CallGraphSlice struct {
	Start     string          `json:"start,omitempty"`
	Depth     int             `json:"depth"`
	NodeCount int             `json:"node_count"`
	EdgeCount int             `json:"edge_count"`
	Truncated bool            `json:"truncated,omitempty"`
	Nodes     []FunctionRef   `json:"nodes"`
	Edges     []CallGraphEdge `json:"edges"`
}

type CallGraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PackageDep is one directed package dependency with its call volume.
type PackageDep struct {
	From  string `json:"from_package"`
	To    string `json:"to_package"`
	Calls int    `json:"calls"`
}

// PackageReport answers a single-package dependency question.
type PackageReport struct {
	Package      string       `json:"package"`
	Dependencies []PackageDep `json:"dependencies"`
	Dependents   []PackageDep `json:"dependents"`
}

// CycleReport lists direct mutual call pairs and mutual package dependencies.
type CycleReport struct {
	FunctionCycles []FunctionCycle `json:"function_cycles"`
	PackageCycles  []PackageCycle  `json:"package_cycles"`
}

type FunctionCycle struct {
	First    string `json:"first"`
	Second   string `json:"second"`
	Package1 string `json:"package1,omitempty"`
	Package2 string `json:"package2,omitempty"`
}

type PackageCycle struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// SearchResult is one substring match.
type SearchResult struct {
	Name    string `json:"name"`
	FQN     string `json:"fqn"`
	Package string `json:"package,omitempty"`
	File    string `json:"file,omitempty"`
}

// DSLPattern is one builder keyword with its usage count and example files.
type DSLPattern struct {
	Type     string   `json:"type"`
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

// HotspotReport is the facade's complexity view: heavy files and functions
// with the most connections.
type HotspotReport struct {
	ComplexFiles  []FileHotspot     `json:"complex_files"`
	BusyFunctions []FunctionHotspot `json:"busy_functions"`
}

type FileHotspot struct {
	Path       string `json:"path"`
	Complexity int    `json:"complexity"`
}

type FunctionHotspot struct {
	FQN         string `json:"fqn"`
	Package     string `json:"package,omitempty"`
	CallsOut    int    `json:"calls_out"`
	CallsIn     int    `json:"calls_in"`
	Connections int    `json:"total_connections"`
}

// Projects lists every analyzed project, newest analysis first.
func (f *Facade) Projects(ctx context.Context) ([]Overview, error) {
	nodes, err := f.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Overview, 0, len(nodes))
	for i := range nodes {
		out = append(out, projectSummary(&nodes[i]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AnalyzedAt != out[j].AnalyzedAt {
			return out[i].AnalyzedAt > out[j].AnalyzedAt
		}
		return out[i].Project < out[j].Project
	})
	return out, nil
}

// Overview returns the project summary with live counts and the top packages
// by declaration volume. Returns (nil, nil) when the project is unknown.
func (f *Facade) Overview(ctx context.Context, project string) (*Overview, error) {
	node, err := f.store.GetNode(ctx, project, graphstore.LabelProject, project)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if node == nil {
		return nil, nil
	}

	ov := projectSummary(node)

	if ov.Stats.Functions, err = f.store.CountNodes(ctx, project, graphstore.LabelFunction); err != nil {
		return nil, err
	}
	if ov.Stats.Classes, err = f.store.CountNodes(ctx, project, graphstore.LabelClass); err != nil {
		return nil, err
	}
	if ov.Stats.Files, err = f.store.CountNodes(ctx, project, graphstore.LabelFile); err != nil {
		return nil, err
	}
	if ov.Stats.Packages, err = f.store.CountNodes(ctx, project, graphstore.LabelPackage); err != nil {
		return nil, err
	}
	if ov.Stats.DSLBlocks, err = f.store.CountNodes(ctx, project, graphstore.LabelDSL); err != nil {
		return nil, err
	}
	if ov.Stats.CallEdges, err = f.store.CountEdges(ctx, project, graphstore.EdgeCalls); err != nil {
		return nil, err
	}

	pkgs, err := f.store.ListNodes(ctx, project, graphstore.LabelPackage)
	if err != nil {
		return nil, err
	}
	summaries := make([]PackageSummary, 0, len(pkgs))
	for i := range pkgs {
		summaries = append(summaries, PackageSummary{
			Name:      pkgs[i].Key,
			Functions: pkgs[i].IntProp("functions"),
			Classes:   pkgs[i].IntProp("classes"),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		si, sj := summaries[i].Functions+summaries[i].Classes, summaries[j].Functions+summaries[j].Classes
		if si != sj {
			return si > sj
		}
		return summaries[i].Name < summaries[j].Name
	})
	if len(summaries) > TopPackages {
		summaries = summaries[:TopPackages]
	}
	ov.TopPackages = summaries
	return &ov, nil
}

func projectSummary(node *graphstore.Node) Overview {
	ov := Overview{
		Project:    node.Key,
		Language:   node.StringProp("language"),
		Root:       node.StringProp("root"),
		Depth:      node.StringProp("depth"),
		AnalyzedAt: node.StringProp("analyzed_at"),
	}
	if _, ok := node.Props["health_score"]; ok {
		score := node.IntProp("health_score")
		ov.HealthScore = &score
	}
	ov.Stats.Functions = node.IntProp("functions")
	ov.Stats.Classes = node.IntProp("classes")
	ov.Stats.Files = node.IntProp("files")
	ov.Stats.Packages = node.IntProp("packages")
	return ov
}

// FunctionContext resolves a name (short or qualified) to its declarations
// and returns each with bounded caller and callee lists. An empty slice
// means the name is unknown.
func (f *Facade) FunctionContext(ctx context.Context, project, name string) ([]FunctionContext, error) {
	matches, err := f.lookupFunctions(ctx, project, name)
	if err != nil {
		return nil, err
	}

	out := make([]FunctionContext, 0, len(matches))
	for i := range matches {
		node := &matches[i]
		callers, err := f.neighborRefs(ctx, project, node.Key, true)
		if err != nil {
			return nil, err
		}
		callees, err := f.neighborRefs(ctx, project, node.Key, false)
		if err != nil {
			return nil, err
		}
		out = append(out, FunctionContext{
			Function: refFromNode(node),
			Language: node.StringProp("language"),
			Line:     node.IntProp("line"),
			Callers:  callers,
			Callees:  callees,
		})
	}
	return out, nil
}

// Callers returns the functions calling the named one, bounded.
func (f *Facade) Callers(ctx context.Context, project, name string) ([]FunctionRef, error) {
	return f.neighbors(ctx, project, name, true)
}

// Callees returns the functions the named one calls, bounded.
func (f *Facade) Callees(ctx context.Context, project, name string) ([]FunctionRef, error) {
	return f.neighbors(ctx, project, name, false)
}

func (f *Facade) neighbors(ctx context.Context, project, name string, incoming bool) ([]FunctionRef, error) {
	matches, err := f.lookupFunctions(ctx, project, name)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []FunctionRef
	for i := range matches {
		refs, err := f.neighborRefs(ctx, project, matches[i].Key, incoming)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if seen[ref.FQN] || len(out) >= ContextLimit {
				continue
			}
			seen[ref.FQN] = true
			out = append(out, ref)
		}
	}
	return out, nil
}

// neighborRefs loads one function's distinct direct neighbors over CALLS.
func (f *Facade) neighborRefs(ctx context.Context, project, key string, incoming bool) ([]FunctionRef, error) {
	var (
		edges []graphstore.Edge
		err   error
	)
	if incoming {
		edges, err = f.store.EdgesTo(ctx, project, graphstore.EdgeCalls, key)
	} else {
		edges, err = f.store.EdgesFrom(ctx, project, graphstore.EdgeCalls, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load call edges: %w", err)
	}

	seen := map[string]bool{}
	var keys []string
	for i := range edges {
		other := edges[i].FromKey
		if !incoming {
			other = edges[i].ToKey
		}
		if other == key || seen[other] {
			continue
		}
		seen[other] = true
		keys = append(keys, other)
	}
	sort.Strings(keys)
	if len(keys) > ContextLimit {
		keys = keys[:ContextLimit]
	}

	out := make([]FunctionRef, 0, len(keys))
	for _, k := range keys {
		node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, k)
		if err != nil {
			return nil, err
		}
		if node == nil {
			out = append(out, FunctionRef{Name: model.SimpleName(k), FQN: k})
			continue
		}
		out = append(out, refFromNode(node))
	}
	return out, nil
}

// lookupFunctions matches a qualified key exactly, or every declaration of a
// short name.
func (f *Facade) lookupFunctions(ctx context.Context, project, name string) ([]graphstore.Node, error) {
	if node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, name); err != nil {
		return nil, fmt.Errorf("load function: %w", err)
	} else if node != nil {
		return []graphstore.Node{*node}, nil
	}

	all, err := f.store.ListNodes(ctx, project, graphstore.LabelFunction)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	var matches []graphstore.Node
	for i := range all {
		if all[i].StringProp("name") == name {
			matches = append(matches, all[i])
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Key < matches[j].Key })
	return matches, nil
}

func refFromNode(node *graphstore.Node) FunctionRef {
	return FunctionRef{
		Name:    node.StringProp("name"),
		FQN:     node.Key,
		Package: node.StringProp("package"),
		File:    node.StringProp("file"),
		Stub:    node.BoolProp("stub"),
	}
}

// ClassHierarchy returns direct parents and children only. With an empty
// name it lists every class with its parents.
func (f *Facade) ClassHierarchy(ctx context.Context, project, name string) ([]ClassInfo, error) {
	classes, err := f.store.ListNodes(ctx, project, graphstore.LabelClass)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}

	var selected []graphstore.Node
	for i := range classes {
		if name == "" || classes[i].Key == name || classes[i].StringProp("name") == name {
			selected = append(selected, classes[i])
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Key < selected[j].Key })

	out := make([]ClassInfo, 0, len(selected))
	for i := range selected {
		node := &selected[i]
		info := ClassInfo{
			Name:    node.StringProp("name"),
			FQN:     node.Key,
			Package: node.StringProp("package"),
			File:    node.StringProp("file"),
			Kind:    node.StringProp("kind"),
		}

		parents, err := f.store.EdgesFrom(ctx, project, graphstore.EdgeExtends, node.Key)
		if err != nil {
			return nil, err
		}
		for _, e := range parents {
			info.Parents = append(info.Parents, e.ToKey)
		}
		sort.Strings(info.Parents)

		// children only for a targeted question, the full listing stays flat
		if name != "" {
			children, err := f.store.EdgesTo(ctx, project, graphstore.EdgeExtends, node.Key)
			if err != nil {
				return nil, err
			}
			for _, e := range children {
				info.Children = append(info.Children, e.FromKey)
			}
			sort.Strings(info.Children)
		}
		out = append(out, info)
	}
	return out, nil
}

// CallGraph returns a bounded slice of the call graph. With a start function
// it walks outgoing calls breadth-first to the given depth (default 2); with
// no start it samples the whole project's edges. Limits are hard caps; the
// Truncated flag reports when they cut the answer short.
func (f *Facade) CallGraph(ctx context.Context, project, start string, depth int) (*CallGraphSlice, error) {
	if depth <= 0 {
		depth = SliceDepth
	}

	if start == "" {
		return f.projectCallGraph(ctx, project, depth)
	}

	matches, err := f.lookupFunctions(ctx, project, start)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	slice := &CallGraphSlice{Start: start, Depth: depth}
	nodes := map[string]bool{}
	var frontier []string
	for i := range matches {
		nodes[matches[i].Key] = true
		frontier = append(frontier, matches[i].Key)
	}
	sort.Strings(frontier)

	var edges []CallGraphEdge
	edgeSeen := map[CallGraphEdge]bool{}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []string
		for _, from := range frontier {
			out, err := f.store.EdgesFrom(ctx, project, graphstore.EdgeCalls, from)
			if err != nil {
				return nil, err
			}
			targets := map[string]bool{}
			for i := range out {
				targets[out[i].ToKey] = true
			}
			sorted := make([]string, 0, len(targets))
			for t := range targets {
				sorted = append(sorted, t)
			}
			sort.Strings(sorted)

			for _, to := range sorted {
				edge := CallGraphEdge{From: from, To: to}
				if edgeSeen[edge] {
					continue
				}
				if len(edges) >= SliceEdgeLimit || (len(nodes) >= SliceNodeLimit && !nodes[to]) {
					slice.Truncated = true
					continue
				}
				edgeSeen[edge] = true
				edges = append(edges, edge)
				if !nodes[to] {
					nodes[to] = true
					next = append(next, to)
				}
			}
		}
		frontier = next
	}

	slice.Edges = edges
	slice.Nodes = f.sliceNodes(ctx, project, nodes)
	slice.NodeCount = len(slice.Nodes)
	slice.EdgeCount = len(slice.Edges)
	return slice, nil
}

func (f *Facade) projectCallGraph(ctx context.Context, project string, depth int) (*CallGraphSlice, error) {
	all, err := f.store.ListEdges(ctx, project, graphstore.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}

	distinct := map[CallGraphEdge]bool{}
	for i := range all {
		if all[i].FromKey == all[i].ToKey {
			continue
		}
		distinct[CallGraphEdge{From: all[i].FromKey, To: all[i].ToKey}] = true
	}
	edges := make([]CallGraphEdge, 0, len(distinct))
	for e := range distinct {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	slice := &CallGraphSlice{Depth: depth}
	nodes := map[string]bool{}
	var kept []CallGraphEdge
	for _, e := range edges {
		if len(kept) >= SliceEdgeLimit {
			slice.Truncated = true
			break
		}
		add := 0
		if !nodes[e.From] {
			add++
		}
		if !nodes[e.To] {
			add++
		}
		if len(nodes)+add > SliceNodeLimit {
			slice.Truncated = true
			continue
		}
		nodes[e.From] = true
		nodes[e.To] = true
		kept = append(kept, e)
	}

	slice.Edges = kept
	slice.Nodes = f.sliceNodes(ctx, project, nodes)
	slice.NodeCount = len(slice.Nodes)
	slice.EdgeCount = len(kept)
	return slice, nil
}

func (f *Facade) sliceNodes(ctx context.Context, project string, keys map[string]bool) []FunctionRef {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	out := make([]FunctionRef, 0, len(sorted))
	for _, k := range sorted {
		node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, k)
		if err != nil || node == nil {
			out = append(out, FunctionRef{Name: model.SimpleName(k), FQN: k})
			continue
		}
		out = append(out, refFromNode(node))
	}
	return out
}

// PackageDependencies lists the project's package DEPENDS_ON edges by call
// volume, or a single package's dependencies and dependents.
func (f *Facade) PackageDependencies(ctx context.Context, project, pkg string) (*PackageReport, []PackageDep, error) {
	if pkg != "" {
		out, err := f.store.EdgesFrom(ctx, project, graphstore.EdgeDependsOn, pkg)
		if err != nil {
			return nil, nil, err
		}
		in, err := f.store.EdgesTo(ctx, project, graphstore.EdgeDependsOn, pkg)
		if err != nil {
			return nil, nil, err
		}
		report := &PackageReport{
			Package:      pkg,
			Dependencies: depsFromEdges(out),
			Dependents:   depsFromEdges(in),
		}
		return report, nil, nil
	}

	all, err := f.store.ListEdges(ctx, project, graphstore.EdgeDependsOn)
	if err != nil {
		return nil, nil, fmt.Errorf("list package edges: %w", err)
	}
	deps := depsFromEdges(all)
	if len(deps) > PackageDepsLimit {
		deps = deps[:PackageDepsLimit]
	}
	return nil, deps, nil
}

func depsFromEdges(edges []graphstore.Edge) []PackageDep {
	out := make([]PackageDep, 0, len(edges))
	for i := range edges {
		out = append(out, PackageDep{
			From:  edges[i].FromKey,
			To:    edges[i].ToKey,
			Calls: edges[i].IntProp("calls"),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Cycles reports direct mutual-call pairs and mutual package dependencies.
func (f *Facade) Cycles(ctx context.Context, project string) (*CycleReport, error) {
	calls, err := f.store.ListEdges(ctx, project, graphstore.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}
	report := &CycleReport{
		FunctionCycles: []FunctionCycle{},
		PackageCycles:  []PackageCycle{},
	}

	adj := map[string]map[string]bool{}
	for i := range calls {
		if adj[calls[i].FromKey] == nil {
			adj[calls[i].FromKey] = map[string]bool{}
		}
		adj[calls[i].FromKey][calls[i].ToKey] = true
	}
	froms := make([]string, 0, len(adj))
	for from := range adj {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	for _, a := range froms {
		if len(report.FunctionCycles) >= FunctionCycleMax {
			break
		}
		targets := make([]string, 0, len(adj[a]))
		for t := range adj[a] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, b := range targets {
			if a >= b || !adj[b][a] {
				continue
			}
			cycle := FunctionCycle{First: a, Second: b}
			if node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, a); err == nil && node != nil {
				cycle.Package1 = node.StringProp("package")
			}
			if node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, b); err == nil && node != nil {
				cycle.Package2 = node.StringProp("package")
			}
			report.FunctionCycles = append(report.FunctionCycles, cycle)
			if len(report.FunctionCycles) >= FunctionCycleMax {
				break
			}
		}
	}

	pkgEdges, err := f.store.ListEdges(ctx, project, graphstore.EdgeDependsOn)
	if err != nil {
		return nil, fmt.Errorf("list package edges: %w", err)
	}
	pkgAdj := map[string]map[string]bool{}
	for i := range pkgEdges {
		if pkgAdj[pkgEdges[i].FromKey] == nil {
			pkgAdj[pkgEdges[i].FromKey] = map[string]bool{}
		}
		pkgAdj[pkgEdges[i].FromKey][pkgEdges[i].ToKey] = true
	}
	pkgs := make([]string, 0, len(pkgAdj))
	for p := range pkgAdj {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	for _, p := range pkgs {
		if len(report.PackageCycles) >= PackageCycleMax {
			break
		}
		targets := make([]string, 0, len(pkgAdj[p]))
		for t := range pkgAdj[p] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, q := range targets {
			if p >= q || !pkgAdj[q][p] {
				continue
			}
			report.PackageCycles = append(report.PackageCycles, PackageCycle{First: p, Second: q})
			if len(report.PackageCycles) >= PackageCycleMax {
				break
			}
		}
	}
	return report, nil
}

// Search finds functions or classes whose FQN contains the pattern.
func (f *Facade) Search(ctx context.Context, project, pattern, kind string) ([]SearchResult, error) {
	label := graphstore.LabelFunction
	switch kind {
	case "", "function":
	case "class":
		label = graphstore.LabelClass
	default:
		return nil, fmt.Errorf("search kind must be function or class, got %q", kind)
	}

	nodes, err := f.store.FindNodes(ctx, project, label, pattern, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	out := make([]SearchResult, 0, len(nodes))
	for i := range nodes {
		out = append(out, SearchResult{
			Name:    nodes[i].StringProp("name"),
			FQN:     nodes[i].Key,
			Package: nodes[i].StringProp("package"),
			File:    nodes[i].StringProp("file"),
		})
	}
	return out, nil
}

// DSLPatterns aggregates builder-block usage by type with example files.
func (f *Facade) DSLPatterns(ctx context.Context, project string) ([]DSLPattern, error) {
	nodes, err := f.store.ListNodes(ctx, project, graphstore.LabelDSL)
	if err != nil {
		return nil, fmt.Errorf("list dsl blocks: %w", err)
	}

	counts := map[string]int{}
	files := map[string][]string{}
	seenFile := map[string]map[string]bool{}
	for i := range nodes {
		typ := nodes[i].StringProp("type")
		file := nodes[i].StringProp("file")
		counts[typ]++
		if seenFile[typ] == nil {
			seenFile[typ] = map[string]bool{}
		}
		if file != "" && !seenFile[typ][file] && len(files[typ]) < 3 {
			seenFile[typ][file] = true
			files[typ] = append(files[typ], file)
		}
	}

	out := make([]DSLPattern, 0, len(counts))
	for typ, count := range counts {
		sort.Strings(files[typ])
		out = append(out, DSLPattern{Type: typ, Count: count, Examples: files[typ]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// Hotspots returns the heaviest files by complexity and functions by total
// connection count.
func (f *Facade) Hotspots(ctx context.Context, project string) (*HotspotReport, error) {
	report := &HotspotReport{
		ComplexFiles:  []FileHotspot{},
		BusyFunctions: []FunctionHotspot{},
	}

	files, err := f.store.ListNodes(ctx, project, graphstore.LabelFile)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	for i := range files {
		if c := files[i].IntProp("complexity"); c > FileComplexityMin {
			report.ComplexFiles = append(report.ComplexFiles, FileHotspot{
				Path:       files[i].Key,
				Complexity: c,
			})
		}
	}
	sort.Slice(report.ComplexFiles, func(i, j int) bool {
		if report.ComplexFiles[i].Complexity != report.ComplexFiles[j].Complexity {
			return report.ComplexFiles[i].Complexity > report.ComplexFiles[j].Complexity
		}
		return report.ComplexFiles[i].Path < report.ComplexFiles[j].Path
	})
	if len(report.ComplexFiles) > HotspotLimit {
		report.ComplexFiles = report.ComplexFiles[:HotspotLimit]
	}

	calls, err := f.store.ListEdges(ctx, project, graphstore.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}
	outDeg := map[string]map[string]bool{}
	inDeg := map[string]map[string]bool{}
	for i := range calls {
		if outDeg[calls[i].FromKey] == nil {
			outDeg[calls[i].FromKey] = map[string]bool{}
		}
		outDeg[calls[i].FromKey][calls[i].ToKey] = true
		if inDeg[calls[i].ToKey] == nil {
			inDeg[calls[i].ToKey] = map[string]bool{}
		}
		inDeg[calls[i].ToKey][calls[i].FromKey] = true
	}

	keys := map[string]bool{}
	for k := range outDeg {
		keys[k] = true
	}
	for k := range inDeg {
		keys[k] = true
	}
	for k := range keys {
		total := len(outDeg[k]) + len(inDeg[k])
		if total <= BusyConnectionMin {
			continue
		}
		hot := FunctionHotspot{
			FQN:         k,
			CallsOut:    len(outDeg[k]),
			CallsIn:     len(inDeg[k]),
			Connections: total,
		}
		if node, err := f.store.GetNode(ctx, project, graphstore.LabelFunction, k); err == nil && node != nil {
			hot.Package = node.StringProp("package")
		}
		report.BusyFunctions = append(report.BusyFunctions, hot)
	}
	sort.Slice(report.BusyFunctions, func(i, j int) bool {
		if report.BusyFunctions[i].Connections != report.BusyFunctions[j].Connections {
			return report.BusyFunctions[i].Connections > report.BusyFunctions[j].Connections
		}
		return report.BusyFunctions[i].FQN < report.BusyFunctions[j].FQN
	})
	if len(report.BusyFunctions) > HotspotLimit {
		report.BusyFunctions = report.BusyFunctions[:HotspotLimit]
	}
	return report, nil
}
