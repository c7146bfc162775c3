package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
)

// demoStore seeds a small two-package project with a stub callee, a class
// hierarchy, DSL blocks, and package dependencies.
func demoStore(t *testing.T) graphstore.Store {
	t.Helper()
	store := graphstore.NewMemory()
	ctx := context.Background()

	nodes := []graphstore.Node{
		{Label: graphstore.LabelProject, Key: "demo", Props: map[string]any{
			"root": "/src/demo", "language": "kotlin", "depth": "deep",
			"analyzed_at": "2025-06-01T10:00:00Z",
			"files":       2, "functions": 4, "classes": 2, "packages": 2,
		}},
		{Label: graphstore.LabelFile, Key: "p/h.kt", Props: map[string]any{
			"package": "p", "language": "kotlin", "complexity": 150,
		}},
		{Label: graphstore.LabelFile, Key: "q/p.kt", Props: map[string]any{
			"package": "q", "language": "kotlin", "complexity": 40,
		}},
		{Label: graphstore.LabelFunction, Key: "p.handle", Props: map[string]any{
			"name": "handle", "package": "p", "file": "p/h.kt", "line": 5, "language": "kotlin",
		}},
		{Label: graphstore.LabelFunction, Key: "p.parse", Props: map[string]any{
			"name": "parse", "package": "p", "file": "p/h.kt", "line": 20, "language": "kotlin",
		}},
		{Label: graphstore.LabelFunction, Key: "q.parse", Props: map[string]any{
			"name": "parse", "package": "q", "file": "q/p.kt", "line": 3, "language": "kotlin",
		}},
		{Label: graphstore.LabelFunction, Key: "q.emit", Props: map[string]any{
			"name": "emit", "package": "q", "file": "q/p.kt", "line": 30, "language": "kotlin",
		}},
		{Label: graphstore.LabelFunction, Key: "ext.format", Props: map[string]any{
			"name": "format", "stub": true,
		}},
		{Label: graphstore.LabelClass, Key: "p.Widget", Props: map[string]any{
			"name": "Widget", "package": "p", "file": "p/h.kt", "kind": "class",
		}},
		{Label: graphstore.LabelClass, Key: "q.Base", Props: map[string]any{
			"name": "Base", "package": "q", "file": "q/p.kt", "kind": "class",
		}},
		{Label: graphstore.LabelPackage, Key: "p", Props: map[string]any{
			"name": "p", "functions": 2, "classes": 1,
		}},
		{Label: graphstore.LabelPackage, Key: "q", Props: map[string]any{
			"name": "q", "functions": 2, "classes": 1,
		}},
		{Label: graphstore.LabelPackage, Key: "ext", Props: map[string]any{
			"name": "ext", "stub": true,
		}},
		{Label: graphstore.LabelDSL, Key: "p/h.kt:10:spiceAgent", Props: map[string]any{
			"type": "spiceAgent", "file": "p/h.kt", "line": 10,
		}},
		{Label: graphstore.LabelDSL, Key: "q/p.kt:12:spiceAgent", Props: map[string]any{
			"type": "spiceAgent", "file": "q/p.kt", "line": 12,
		}},
		{Label: graphstore.LabelDSL, Key: "q/p.kt:40:pipeline", Props: map[string]any{
			"type": "pipeline", "file": "q/p.kt", "line": 40,
		}},
	}
	require.NoError(t, store.CreateNodes(ctx, "demo", nodes))

	edges := []graphstore.Edge{
		call("p.handle", "p.parse"),
		call("p.handle", "q.emit"),
		call("q.parse", "q.emit"),
		call("q.emit", "ext.format"),
		{Kind: graphstore.EdgeExtends,
			FromLabel: graphstore.LabelClass, FromKey: "p.Widget",
			ToLabel: graphstore.LabelClass, ToKey: "q.Base"},
		{Kind: graphstore.EdgeDependsOn,
			FromLabel: graphstore.LabelPackage, FromKey: "p",
			ToLabel: graphstore.LabelPackage, ToKey: "q",
			Props: map[string]any{"calls": 1}},
		{Kind: graphstore.EdgeDependsOn,
			FromLabel: graphstore.LabelPackage, FromKey: "q",
			ToLabel: graphstore.LabelPackage, ToKey: "ext",
			Props: map[string]any{"calls": 1}},
	}
	require.NoError(t, store.CreateEdges(ctx, "demo", edges))
	return store
}

func call(from, to string) graphstore.Edge {
	return graphstore.Edge{
		Kind:      graphstore.EdgeCalls,
		FromLabel: graphstore.LabelFunction,
		FromKey:   from,
		ToLabel:   graphstore.LabelFunction,
		ToKey:     to,
	}
}

func TestFacade_Overview(t *testing.T) {
	f := NewFacade(demoStore(t))

	ov, err := f.Overview(context.Background(), "demo")
	require.NoError(t, err)
	require.NotNil(t, ov)

	assert.Equal(t, "demo", ov.Project)
	assert.Equal(t, "kotlin", ov.Language)
	assert.Equal(t, "deep", ov.Depth)
	assert.Equal(t, "2025-06-01T10:00:00Z", ov.AnalyzedAt)
	assert.Nil(t, ov.HealthScore)

	assert.Equal(t, 5, ov.Stats.Functions)
	assert.Equal(t, 2, ov.Stats.Classes)
	assert.Equal(t, 2, ov.Stats.Files)
	assert.Equal(t, 3, ov.Stats.Packages)
	assert.Equal(t, 3, ov.Stats.DSLBlocks)
	assert.Equal(t, 4, ov.Stats.CallEdges)

	require.Len(t, ov.TopPackages, 3)
	assert.Equal(t, "p", ov.TopPackages[0].Name)
	assert.Equal(t, "q", ov.TopPackages[1].Name)
	assert.Equal(t, "ext", ov.TopPackages[2].Name)
}

func TestFacade_Overview_UnknownProject(t *testing.T) {
	f := NewFacade(graphstore.NewMemory())

	ov, err := f.Overview(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, ov)
}

func TestFacade_Overview_HealthScore(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.CreateNodes(ctx, "scored", []graphstore.Node{{
		Label: graphstore.LabelProject, Key: "scored",
		Props: map[string]any{"health_score": 85},
	}}))

	ov, err := NewFacade(store).Overview(ctx, "scored")
	require.NoError(t, err)
	require.NotNil(t, ov)
	require.NotNil(t, ov.HealthScore)
	assert.Equal(t, 85, *ov.HealthScore)
}

func TestFacade_Projects_NewestFirst(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.CreateNodes(ctx, "old", []graphstore.Node{{
		Label: graphstore.LabelProject, Key: "old",
		Props: map[string]any{"analyzed_at": "2025-01-01T00:00:00Z"},
	}}))
	require.NoError(t, store.CreateNodes(ctx, "new", []graphstore.Node{{
		Label: graphstore.LabelProject, Key: "new",
		Props: map[string]any{"analyzed_at": "2025-06-01T00:00:00Z"},
	}}))

	projects, err := NewFacade(store).Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "new", projects[0].Project)
	assert.Equal(t, "old", projects[1].Project)
}

func TestFacade_FunctionContext_ShortNameMatchesAllDeclarations(t *testing.T) {
	f := NewFacade(demoStore(t))

	contexts, err := f.FunctionContext(context.Background(), "demo", "parse")
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	assert.Equal(t, "p.parse", contexts[0].Function.FQN)
	assert.Equal(t, "q.parse", contexts[1].Function.FQN)

	require.Len(t, contexts[0].Callers, 1)
	assert.Equal(t, "p.handle", contexts[0].Callers[0].FQN)
	assert.Empty(t, contexts[0].Callees)

	require.Len(t, contexts[1].Callees, 1)
	assert.Equal(t, "q.emit", contexts[1].Callees[0].FQN)
}

func TestFacade_FunctionContext_QualifiedName(t *testing.T) {
	f := NewFacade(demoStore(t))

	contexts, err := f.FunctionContext(context.Background(), "demo", "q.emit")
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	got := contexts[0]
	assert.Equal(t, "emit", got.Function.Name)
	assert.Equal(t, 30, got.Line)

	require.Len(t, got.Callers, 2)
	assert.Equal(t, "p.handle", got.Callers[0].FQN)
	assert.Equal(t, "q.parse", got.Callers[1].FQN)

	require.Len(t, got.Callees, 1)
	assert.Equal(t, "ext.format", got.Callees[0].FQN)
	assert.True(t, got.Callees[0].Stub)
}

func TestFacade_FunctionContext_UnknownName(t *testing.T) {
	f := NewFacade(demoStore(t))

	contexts, err := f.FunctionContext(context.Background(), "demo", "missing")
	require.NoError(t, err)
	assert.Empty(t, contexts)
}

func TestFacade_CallersAndCallees(t *testing.T) {
	f := NewFacade(demoStore(t))
	ctx := context.Background()

	callers, err := f.Callers(ctx, "demo", "emit")
	require.NoError(t, err)
	require.Len(t, callers, 2)
	assert.Equal(t, "p.handle", callers[0].FQN)
	assert.Equal(t, "q.parse", callers[1].FQN)

	callees, err := f.Callees(ctx, "demo", "p.handle")
	require.NoError(t, err)
	require.Len(t, callees, 2)
	assert.Equal(t, "p.parse", callees[0].FQN)
	assert.Equal(t, "q.emit", callees[1].FQN)
}

func TestFacade_Callers_Bounded(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()

	nodes := []graphstore.Node{
		{Label: graphstore.LabelProject, Key: "busy"},
		{Label: graphstore.LabelFunction, Key: "app.hub", Props: map[string]any{"name": "hub", "package": "app"}},
	}
	var edges []graphstore.Edge
	for i := 0; i < 25; i++ {
		fqn := fmt.Sprintf("app.caller_%02d", i)
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelFunction, Key: fqn,
			Props: map[string]any{"name": fmt.Sprintf("caller_%02d", i), "package": "app"},
		})
		edges = append(edges, call(fqn, "app.hub"))
	}
	require.NoError(t, store.CreateNodes(ctx, "busy", nodes))
	require.NoError(t, store.CreateEdges(ctx, "busy", edges))

	callers, err := NewFacade(store).Callers(ctx, "busy", "hub")
	require.NoError(t, err)
	assert.Len(t, callers, ContextLimit)
}

func TestFacade_ClassHierarchy_SpecificClass(t *testing.T) {
	f := NewFacade(demoStore(t))
	ctx := context.Background()

	widgets, err := f.ClassHierarchy(ctx, "demo", "Widget")
	require.NoError(t, err)
	require.Len(t, widgets, 1)
	assert.Equal(t, []string{"q.Base"}, widgets[0].Parents)
	assert.Empty(t, widgets[0].Children)

	bases, err := f.ClassHierarchy(ctx, "demo", "q.Base")
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Empty(t, bases[0].Parents)
	assert.Equal(t, []string{"p.Widget"}, bases[0].Children)
}

func TestFacade_ClassHierarchy_AllClasses(t *testing.T) {
	f := NewFacade(demoStore(t))

	all, err := f.ClassHierarchy(context.Background(), "demo", "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "p.Widget", all[0].FQN)
	assert.Equal(t, []string{"q.Base"}, all[0].Parents)
	assert.Nil(t, all[0].Children)
	assert.Equal(t, "q.Base", all[1].FQN)
}

func TestFacade_CallGraph_FromStart(t *testing.T) {
	f := NewFacade(demoStore(t))

	slice, err := f.CallGraph(context.Background(), "demo", "p.handle", 2)
	require.NoError(t, err)
	require.NotNil(t, slice)

	assert.Equal(t, 2, slice.Depth)
	assert.Equal(t, 4, slice.NodeCount)
	assert.Equal(t, 3, slice.EdgeCount)
	assert.False(t, slice.Truncated)

	assert.Contains(t, slice.Edges, CallGraphEdge{From: "p.handle", To: "p.parse"})
	assert.Contains(t, slice.Edges, CallGraphEdge{From: "p.handle", To: "q.emit"})
	assert.Contains(t, slice.Edges, CallGraphEdge{From: "q.emit", To: "ext.format"})
}

func TestFacade_CallGraph_DepthOne(t *testing.T) {
	f := NewFacade(demoStore(t))

	slice, err := f.CallGraph(context.Background(), "demo", "p.handle", 1)
	require.NoError(t, err)
	require.NotNil(t, slice)

	assert.Equal(t, 3, slice.NodeCount)
	assert.Equal(t, 2, slice.EdgeCount)
}

func TestFacade_CallGraph_DefaultDepth(t *testing.T) {
	f := NewFacade(demoStore(t))

	slice, err := f.CallGraph(context.Background(), "demo", "p.handle", 0)
	require.NoError(t, err)
	require.NotNil(t, slice)
	assert.Equal(t, SliceDepth, slice.Depth)
}

func TestFacade_CallGraph_UnknownStart(t *testing.T) {
	f := NewFacade(demoStore(t))

	slice, err := f.CallGraph(context.Background(), "demo", "ghost", 2)
	require.NoError(t, err)
	assert.Nil(t, slice)
}

func TestFacade_CallGraph_WholeProject(t *testing.T) {
	f := NewFacade(demoStore(t))

	slice, err := f.CallGraph(context.Background(), "demo", "", 0)
	require.NoError(t, err)
	require.NotNil(t, slice)

	assert.Equal(t, 4, slice.EdgeCount)
	assert.Equal(t, 5, slice.NodeCount)
	assert.Equal(t, CallGraphEdge{From: "p.handle", To: "p.parse"}, slice.Edges[0])
}

func TestFacade_CallGraph_EdgeLimitTruncates(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()

	nodes := []graphstore.Node{{Label: graphstore.LabelProject, Key: "wide"}}
	var edges []graphstore.Edge
	// a star over one hub: more edges than the slice allows
	for i := 0; i < SliceEdgeLimit+20; i++ {
		fqn := fmt.Sprintf("app.f_%03d", i)
		nodes = append(nodes, graphstore.Node{
			Label: graphstore.LabelFunction, Key: fqn,
			Props: map[string]any{"name": fmt.Sprintf("f_%03d", i), "package": "app"},
		})
		edges = append(edges, call("app.hub", fqn))
	}
	require.NoError(t, store.CreateNodes(ctx, "wide", nodes))
	require.NoError(t, store.CreateEdges(ctx, "wide", edges))

	slice, err := NewFacade(store).CallGraph(ctx, "wide", "", 0)
	require.NoError(t, err)
	require.NotNil(t, slice)
	assert.True(t, slice.Truncated)
	assert.LessOrEqual(t, slice.EdgeCount, SliceEdgeLimit)
	assert.LessOrEqual(t, slice.NodeCount, SliceNodeLimit)
}

func TestFacade_PackageDependencies_SpecificPackage(t *testing.T) {
	f := NewFacade(demoStore(t))

	report, _, err := f.PackageDependencies(context.Background(), "demo", "q")
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, report.Dependencies, 1)
	assert.Equal(t, "ext", report.Dependencies[0].To)
	require.Len(t, report.Dependents, 1)
	assert.Equal(t, "p", report.Dependents[0].From)
}

func TestFacade_PackageDependencies_All(t *testing.T) {
	f := NewFacade(demoStore(t))

	report, deps, err := f.PackageDependencies(context.Background(), "demo", "")
	require.NoError(t, err)
	assert.Nil(t, report)
	require.Len(t, deps, 2)
	assert.Equal(t, PackageDep{From: "p", To: "q", Calls: 1}, deps[0])
	assert.Equal(t, PackageDep{From: "q", To: "ext", Calls: 1}, deps[1])
}

func TestFacade_Cycles_NoneInAcyclicProject(t *testing.T) {
	f := NewFacade(demoStore(t))

	report, err := f.Cycles(context.Background(), "demo")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Empty(t, report.FunctionCycles)
	assert.Empty(t, report.PackageCycles)
}

func TestFacade_Cycles_ReportsMutualPairsOnce(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.CreateNodes(ctx, "loopy", []graphstore.Node{
		{Label: graphstore.LabelProject, Key: "loopy"},
		{Label: graphstore.LabelFunction, Key: "x.a", Props: map[string]any{"name": "a", "package": "x"}},
		{Label: graphstore.LabelFunction, Key: "x.b", Props: map[string]any{"name": "b", "package": "x"}},
		{Label: graphstore.LabelPackage, Key: "m"},
		{Label: graphstore.LabelPackage, Key: "n"},
	}))
	require.NoError(t, store.CreateEdges(ctx, "loopy", []graphstore.Edge{
		call("x.a", "x.b"),
		call("x.b", "x.a"),
		{Kind: graphstore.EdgeDependsOn, FromLabel: graphstore.LabelPackage, FromKey: "m",
			ToLabel: graphstore.LabelPackage, ToKey: "n", Props: map[string]any{"calls": 2}},
		{Kind: graphstore.EdgeDependsOn, FromLabel: graphstore.LabelPackage, FromKey: "n",
			ToLabel: graphstore.LabelPackage, ToKey: "m", Props: map[string]any{"calls": 1}},
	}))

	report, err := NewFacade(store).Cycles(ctx, "loopy")
	require.NoError(t, err)

	require.Len(t, report.FunctionCycles, 1)
	assert.Equal(t, "x.a", report.FunctionCycles[0].First)
	assert.Equal(t, "x.b", report.FunctionCycles[0].Second)
	assert.Equal(t, "x", report.FunctionCycles[0].Package1)

	require.Len(t, report.PackageCycles, 1)
	assert.Equal(t, "m", report.PackageCycles[0].First)
	assert.Equal(t, "n", report.PackageCycles[0].Second)
}

func TestFacade_Search_Functions(t *testing.T) {
	f := NewFacade(demoStore(t))

	results, err := f.Search(context.Background(), "demo", "parse", "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p.parse", results[0].FQN)
	assert.Equal(t, "q.parse", results[1].FQN)
}

func TestFacade_Search_Classes(t *testing.T) {
	f := NewFacade(demoStore(t))

	results, err := f.Search(context.Background(), "demo", "Base", "class")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q.Base", results[0].FQN)
	assert.Equal(t, "Base", results[0].Name)
}

func TestFacade_Search_InvalidKind(t *testing.T) {
	f := NewFacade(demoStore(t))

	_, err := f.Search(context.Background(), "demo", "x", "package")
	assert.Error(t, err)
}

func TestFacade_DSLPatterns(t *testing.T) {
	f := NewFacade(demoStore(t))

	patterns, err := f.DSLPatterns(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.Equal(t, "spiceAgent", patterns[0].Type)
	assert.Equal(t, 2, patterns[0].Count)
	assert.Equal(t, []string{"p/h.kt", "q/p.kt"}, patterns[0].Examples)

	assert.Equal(t, "pipeline", patterns[1].Type)
	assert.Equal(t, 1, patterns[1].Count)
}

func TestFacade_Hotspots_ComplexFiles(t *testing.T) {
	f := NewFacade(demoStore(t))

	report, err := f.Hotspots(context.Background(), "demo")
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, report.ComplexFiles, 1)
	assert.Equal(t, "p/h.kt", report.ComplexFiles[0].Path)
	assert.Equal(t, 150, report.ComplexFiles[0].Complexity)

	// nothing in the fixture crosses the connection threshold
	assert.Empty(t, report.BusyFunctions)
}

func TestFacade_Hotspots_BusyFunctions(t *testing.T) {
	store := graphstore.NewMemory()
	ctx := context.Background()

	nodes := []graphstore.Node{
		{Label: graphstore.LabelProject, Key: "hub"},
		{Label: graphstore.LabelFunction, Key: "app.central", Props: map[string]any{"name": "central", "package": "app"}},
	}
	var edges []graphstore.Edge
	for i := 0; i < 8; i++ {
		fqn := fmt.Sprintf("app.out_%d", i)
		nodes = append(nodes, graphstore.Node{Label: graphstore.LabelFunction, Key: fqn,
			Props: map[string]any{"name": fmt.Sprintf("out_%d", i), "package": "app"}})
		edges = append(edges, call("app.central", fqn))
	}
	for i := 0; i < 4; i++ {
		fqn := fmt.Sprintf("app.in_%d", i)
		nodes = append(nodes, graphstore.Node{Label: graphstore.LabelFunction, Key: fqn,
			Props: map[string]any{"name": fmt.Sprintf("in_%d", i), "package": "app"}})
		edges = append(edges, call(fqn, "app.central"))
	}
	require.NoError(t, store.CreateNodes(ctx, "hub", nodes))
	require.NoError(t, store.CreateEdges(ctx, "hub", edges))

	report, err := NewFacade(store).Hotspots(ctx, "hub")
	require.NoError(t, err)

	require.Len(t, report.BusyFunctions, 1)
	got := report.BusyFunctions[0]
	assert.Equal(t, "app.central", got.FQN)
	assert.Equal(t, 8, got.CallsOut)
	assert.Equal(t, 4, got.CallsIn)
	assert.Equal(t, 12, got.Connections)
	assert.Equal(t, "app", got.Package)
}
