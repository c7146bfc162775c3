// Package graph assembles extracted facts into the persisted code graph.
// A build clears the project tag and rebuilds it from scratch: Project,
// then SourceFiles, then Functions/Classes/DSLBlocks, then edges last, so
// every edge endpoint either exists or is merged as a stub first. Writes go
// out in bounded chunks; a failed chunk is recorded and the build continues.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// DefaultChunkSize bounds how many nodes or edges one store call carries.
const DefaultChunkSize = 500

// Input is everything a project build writes to the store.
type Input struct {
	Project  string
	Root     string
	Language model.Language
	Depth    model.Depth

	Files     []model.SourceFile
	Functions []model.Function
	Classes   []model.Class
	DSLBlocks []model.DSLBlock
	Calls     []model.ResolvedCall
}

// Result reports what a build wrote. Errors holds recovered per-chunk write
// failures; a non-empty Errors with a nil build error means partial success.
type Result struct {
	Nodes        int
	CallEdges    int
	ExtendsEdges int
	PackageEdges int
	Stubs        int
	Packages     int
	Errors       []model.FileError
}

// Builder writes project graphs through a store.
type Builder struct {
	store graphstore.Store
	chunk int
}

// NewBuilder returns a builder writing in chunks of chunkSize rows.
// chunkSize <= 0 selects DefaultChunkSize.
func NewBuilder(store graphstore.Store, chunkSize int) *Builder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Builder{store: store, chunk: chunkSize}
}

// Build replaces the project's graph with one assembled from in. The delete
// and the Project node are preconditions and fail the build; every later
// write is chunked and recovered.
func (b *Builder) Build(ctx context.Context, in Input) (*Result, error) {
	if in.Project == "" {
		return nil, fmt.Errorf("project name is required")
	}

	started := time.Now()
	res := &Result{}

	if err := b.store.DeleteProject(ctx, in.Project); err != nil {
		return nil, fmt.Errorf("clear project %s: %w", in.Project, err)
	}

	packages := collectPackages(in)

	project := graphstore.Node{
		Label: graphstore.LabelProject,
		Key:   in.Project,
		Props: map[string]any{
			"root":        in.Root,
			"language":    string(in.Language),
			"depth":       in.Depth.String(),
			"analyzed_at": time.Now().UTC().Format(time.RFC3339),
			"files":       len(in.Files),
			"functions":   len(in.Functions),
			"classes":     len(in.Classes),
			"packages":    len(packages),
		},
	}
	if err := b.store.CreateNodes(ctx, in.Project, []graphstore.Node{project}); err != nil {
		return nil, fmt.Errorf("write project node: %w", err)
	}
	res.Nodes++

	b.writeNodes(ctx, in.Project, graphstore.LabelFile, fileNodes(in.Files), res)
	b.writeNodes(ctx, in.Project, graphstore.LabelFunction, functionNodes(in.Functions), res)
	b.writeNodes(ctx, in.Project, graphstore.LabelClass, classNodes(in.Classes), res)
	b.writeNodes(ctx, in.Project, graphstore.LabelDSL, dslNodes(in.DSLBlocks), res)
	b.writeNodes(ctx, in.Project, graphstore.LabelPackage, packageNodes(packages), res)
	res.Packages = len(packages)

	// Edges last: merge stub endpoints first so no edge dangles.
	b.writeCallEdges(ctx, in, res)
	b.writeExtendsEdges(ctx, in, res)
	b.writePackageEdges(ctx, in, res)

	log.Info().
		Str("project", in.Project).
		Int("nodes", res.Nodes).
		Int("call_edges", res.CallEdges).
		Int("extends_edges", res.ExtendsEdges).
		Int("package_edges", res.PackageEdges).
		Int("stubs", res.Stubs).
		Int("write_errors", len(res.Errors)).
		Dur("elapsed", time.Since(started)).
		Msg("graph build complete")

	return res, nil
}

// SetProjectHealth stamps the last health score onto the Project node so
// listings answer without recomputation.
func (b *Builder) SetProjectHealth(ctx context.Context, project string, score int) error {
	node, err := b.store.GetNode(ctx, project, graphstore.LabelProject, project)
	if err != nil {
		return fmt.Errorf("load project node: %w", err)
	}
	if node == nil {
		return fmt.Errorf("project %s not found", project)
	}
	if node.Props == nil {
		node.Props = map[string]any{}
	}
	node.Props["health_score"] = score
	node.Props["health_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := b.store.CreateNodes(ctx, project, []graphstore.Node{*node}); err != nil {
		return fmt.Errorf("update project node: %w", err)
	}
	return nil
}

// writeNodes writes one label's nodes in chunks, recording failed chunks.
func (b *Builder) writeNodes(ctx context.Context, project, label string, nodes []graphstore.Node, res *Result) {
	for start := 0; start < len(nodes); start += b.chunk {
		end := start + b.chunk
		if end > len(nodes) {
			end = len(nodes)
		}
		chunk := nodes[start:end]
		if err := b.store.CreateNodes(ctx, project, chunk); err != nil {
			res.Errors = append(res.Errors, model.FileError{
				Path:    fmt.Sprintf("%s[%d:%d]", label, start, end),
				Stage:   "write",
				Message: err.Error(),
			})
			log.Warn().Err(err).Str("label", label).Int("from", start).Int("to", end).Msg("node chunk write failed")
			continue
		}
		res.Nodes += len(chunk)
	}
}

func (b *Builder) writeEdges(ctx context.Context, project, kind string, edges []graphstore.Edge, res *Result) int {
	written := 0
	for start := 0; start < len(edges); start += b.chunk {
		end := start + b.chunk
		if end > len(edges) {
			end = len(edges)
		}
		chunk := edges[start:end]
		if err := b.store.CreateEdges(ctx, project, chunk); err != nil {
			res.Errors = append(res.Errors, model.FileError{
				Path:    fmt.Sprintf("%s[%d:%d]", kind, start, end),
				Stage:   "write",
				Message: err.Error(),
			})
			log.Warn().Err(err).Str("kind", kind).Int("from", start).Int("to", end).Msg("edge chunk write failed")
			continue
		}
		written += len(chunk)
	}
	return written
}

func (b *Builder) writeCallEdges(ctx context.Context, in Input, res *Result) {
	known := make(map[string]bool, len(in.Functions)+len(in.Classes))
	for i := range in.Functions {
		known[in.Functions[i].FQN] = true
	}
	for i := range in.Classes {
		known[in.Classes[i].FQN] = true
	}

	merged := map[string]bool{}
	edges := make([]graphstore.Edge, 0, len(in.Calls))
	for _, call := range in.Calls {
		if !known[call.CalleeFQN] && !merged[call.CalleeFQN] {
			stub := graphstore.Node{
				Label: graphstore.LabelFunction,
				Key:   call.CalleeFQN,
				Props: map[string]any{
					"name": model.SimpleName(call.CalleeFQN),
					"stub": true,
				},
			}
			if err := b.store.MergeNode(ctx, in.Project, stub); err != nil {
				res.Errors = append(res.Errors, model.FileError{
					Path:    call.CalleeFQN,
					Stage:   "write",
					Message: err.Error(),
				})
			} else {
				res.Stubs++
			}
			merged[call.CalleeFQN] = true
		}

		props := map[string]any{
			"type": string(call.Type),
			"line": call.Line,
		}
		if call.Stub {
			props["stub"] = true
		}
		edges = append(edges, graphstore.Edge{
			Kind:      graphstore.EdgeCalls,
			FromLabel: graphstore.LabelFunction,
			FromKey:   call.CallerFQN,
			ToLabel:   graphstore.LabelFunction,
			ToKey:     call.CalleeFQN,
			Props:     props,
		})
	}
	res.CallEdges = b.writeEdges(ctx, in.Project, graphstore.EdgeCalls, edges, res)
}

func (b *Builder) writeExtendsEdges(ctx context.Context, in Input, res *Result) {
	index := newClassIndex(in.Classes)

	merged := map[string]bool{}
	var edges []graphstore.Edge
	for i := range in.Classes {
		cls := &in.Classes[i]
		for _, super := range cls.Supertypes {
			target, found := index.resolve(cls.Package, super)
			if !found && !merged[target] {
				stub := graphstore.Node{
					Label: graphstore.LabelClass,
					Key:   target,
					Props: map[string]any{
						"name": model.SimpleName(target),
						"stub": true,
					},
				}
				if err := b.store.MergeNode(ctx, in.Project, stub); err != nil {
					res.Errors = append(res.Errors, model.FileError{
						Path:    target,
						Stage:   "write",
						Message: err.Error(),
					})
				} else {
					res.Stubs++
				}
				merged[target] = true
			}
			edges = append(edges, graphstore.Edge{
				Kind:      graphstore.EdgeExtends,
				FromLabel: graphstore.LabelClass,
				FromKey:   cls.FQN,
				ToLabel:   graphstore.LabelClass,
				ToKey:     target,
				Props:     map[string]any{"name": super},
			})
		}
	}
	res.ExtendsEdges = b.writeEdges(ctx, in.Project, graphstore.EdgeExtends, edges, res)
}

// writePackageEdges derives aggregate DEPENDS_ON edges between packages from
// the resolved calls, one edge per ordered package pair with the call count.
func (b *Builder) writePackageEdges(ctx context.Context, in Input, res *Result) {
	pkgOf := make(map[string]string, len(in.Functions)+len(in.Classes))
	for i := range in.Functions {
		pkgOf[in.Functions[i].FQN] = in.Functions[i].Package
	}
	for i := range in.Classes {
		pkgOf[in.Classes[i].FQN] = in.Classes[i].Package
	}

	counts := map[[2]string]int{}
	for _, call := range in.Calls {
		from, ok := pkgOf[call.CallerFQN]
		if !ok {
			continue
		}
		to, ok := pkgOf[call.CalleeFQN]
		if !ok {
			// Stub callee: best-effort package from the FQN prefix.
			to = packagePrefix(call.CalleeFQN)
		}
		if to == "" || from == to {
			continue
		}
		counts[[2]string{from, to}]++
	}

	known := map[string]bool{}
	for _, f := range in.Files {
		known[f.Package] = true
	}

	pairs := make([][2]string, 0, len(counts))
	for pair := range counts {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	merged := map[string]bool{}
	edges := make([]graphstore.Edge, 0, len(pairs))
	for _, pair := range pairs {
		for _, pkg := range pair {
			if known[pkg] || merged[pkg] {
				continue
			}
			stub := graphstore.Node{
				Label: graphstore.LabelPackage,
				Key:   pkg,
				Props: map[string]any{"name": pkg, "stub": true},
			}
			if err := b.store.MergeNode(ctx, in.Project, stub); err == nil {
				res.Stubs++
			}
			merged[pkg] = true
		}
		edges = append(edges, graphstore.Edge{
			Kind:      graphstore.EdgeDependsOn,
			FromLabel: graphstore.LabelPackage,
			FromKey:   pair[0],
			ToLabel:   graphstore.LabelPackage,
			ToKey:     pair[1],
			Props:     map[string]any{"calls": counts[pair]},
		})
	}
	res.PackageEdges = b.writeEdges(ctx, in.Project, graphstore.EdgeDependsOn, edges, res)
}

func fileNodes(files []model.SourceFile) []graphstore.Node {
	nodes := make([]graphstore.Node, 0, len(files))
	for _, f := range files {
		props := map[string]any{
			"package":       f.Package,
			"language":      string(f.Language),
			"lines":         f.Lines,
			"comment_lines": f.CommentLines,
			"complexity":    f.Complexity,
		}
		if f.IsDSL {
			props["is_dsl"] = true
		}
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelFile,
			Key:   f.Path,
			Props: props,
		})
	}
	return nodes
}

func functionNodes(funcs []model.Function) []graphstore.Node {
	nodes := make([]graphstore.Node, 0, len(funcs))
	for i := range funcs {
		fn := &funcs[i]
		props := map[string]any{
			"name":     fn.Name,
			"package":  fn.Package,
			"file":     fn.File,
			"line":     fn.Line,
			"language": string(fn.Language),
		}
		if fn.Class != "" {
			props["class"] = fn.Class
		}
		if len(fn.Params) > 0 {
			props["params"] = fn.Params
		}
		if fn.ReturnType != "" {
			props["return_type"] = fn.ReturnType
		}
		if fn.Complexity > 0 {
			props["complexity"] = fn.Complexity
		}
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelFunction,
			Key:   fn.FQN,
			Props: props,
		})
	}
	return nodes
}

func classNodes(classes []model.Class) []graphstore.Node {
	nodes := make([]graphstore.Node, 0, len(classes))
	for i := range classes {
		cls := &classes[i]
		props := map[string]any{
			"name":           cls.Name,
			"package":        cls.Package,
			"file":           cls.File,
			"line":           cls.Line,
			"kind":           string(cls.Kind),
			"method_count":   cls.MethodCount,
			"property_count": cls.PropertyCount,
		}
		if len(cls.Supertypes) > 0 {
			props["supertypes"] = cls.Supertypes
		}
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelClass,
			Key:   cls.FQN,
			Props: props,
		})
	}
	return nodes
}

func dslNodes(blocks []model.DSLBlock) []graphstore.Node {
	nodes := make([]graphstore.Node, 0, len(blocks))
	for _, blk := range blocks {
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelDSL,
			Key:   fmt.Sprintf("%s:%d:%s", blk.File, blk.Line, blk.Type),
			Props: map[string]any{
				"type": blk.Type,
				"file": blk.File,
				"line": blk.Line,
			},
		})
	}
	return nodes
}

// collectPackages gathers package stats from files and functions, sorted by
// name for deterministic writes.
func collectPackages(in Input) []packageStat {
	stats := map[string]*packageStat{}
	get := func(name string) *packageStat {
		if name == "" {
			name = model.DefaultPackage
		}
		st, ok := stats[name]
		if !ok {
			st = &packageStat{Name: name}
			stats[name] = st
		}
		return st
	}
	for _, f := range in.Files {
		get(f.Package).Files++
	}
	for i := range in.Functions {
		get(in.Functions[i].Package).Functions++
	}
	for i := range in.Classes {
		get(in.Classes[i].Package).Classes++
	}

	out := make([]packageStat, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type packageStat struct {
	Name      string
	Files     int
	Functions int
	Classes   int
}

func packageNodes(stats []packageStat) []graphstore.Node {
	nodes := make([]graphstore.Node, 0, len(stats))
	for _, st := range stats {
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelPackage,
			Key:   st.Name,
			Props: map[string]any{
				"name":      st.Name,
				"files":     st.Files,
				"functions": st.Functions,
				"classes":   st.Classes,
			},
		})
	}
	return nodes
}

// classIndex resolves raw supertype names against declared classes.
type classIndex struct {
	byFQN map[string]bool
	order []string
}

func newClassIndex(classes []model.Class) *classIndex {
	idx := &classIndex{byFQN: make(map[string]bool, len(classes))}
	for i := range classes {
		fqn := classes[i].FQN
		if !idx.byFQN[fqn] {
			idx.byFQN[fqn] = true
			idx.order = append(idx.order, fqn)
		}
	}
	return idx
}

// resolve maps a declared supertype name to a class FQN. Qualified names are
// taken as written; otherwise same-package wins, then the first declared
// class whose FQN ends with the name. found=false means the target is a stub
// guess qualified with the subclass's package.
func (idx *classIndex) resolve(pkg, super string) (fqn string, found bool) {
	if model.IsQualified(super) {
		return super, idx.byFQN[super]
	}
	local := model.Qualify(pkg, super)
	if idx.byFQN[local] {
		return local, true
	}
	suffix := "." + super
	for _, candidate := range idx.order {
		if len(candidate) > len(suffix) && candidate[len(candidate)-len(suffix):] == suffix {
			return candidate, true
		}
	}
	return local, false
}

func packagePrefix(fqn string) string {
	for i := len(fqn) - 1; i >= 0; i-- {
		if fqn[i] == '.' {
			return fqn[:i]
		}
	}
	return ""
}
