package graphstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStores returns a fresh store per backend that needs no external service.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "neo4j", "")
	assert.Error(t, err)
}

func TestStore_CreateAndGetNode(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.CreateNodes(ctx, "demo", []Node{{
				Label: LabelFunction,
				Key:   "app.main.run",
				Props: map[string]any{
					"name":    "run",
					"line":    12,
					"params":  []string{"ctx", "args"},
					"is_stub": false,
				},
			}})
			require.NoError(t, err)

			node, err := store.GetNode(ctx, "demo", LabelFunction, "app.main.run")
			require.NoError(t, err)
			require.NotNil(t, node)
			assert.Equal(t, "run", node.StringProp("name"))
			assert.Equal(t, 12, node.IntProp("line"))
			assert.Equal(t, []string{"ctx", "args"}, node.StringsProp("params"))
			assert.False(t, node.BoolProp("is_stub"))

			missing, err := store.GetNode(ctx, "demo", LabelFunction, "app.main.stop")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStore_CreateNodes_Upsert(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := Node{Label: LabelFile, Key: "src/a.kt", Props: map[string]any{"lines": 10}}
			require.NoError(t, store.CreateNodes(ctx, "demo", []Node{first}))

			second := Node{Label: LabelFile, Key: "src/a.kt", Props: map[string]any{"lines": 25}}
			require.NoError(t, store.CreateNodes(ctx, "demo", []Node{second}))

			node, err := store.GetNode(ctx, "demo", LabelFile, "src/a.kt")
			require.NoError(t, err)
			require.NotNil(t, node)
			assert.Equal(t, 25, node.IntProp("lines"))

			count, err := store.CountNodes(ctx, "demo", LabelFile)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestStore_MergeNode_KeepsExisting(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			real := Node{Label: LabelFunction, Key: "p.foo", Props: map[string]any{"line": 3}}
			require.NoError(t, store.CreateNodes(ctx, "demo", []Node{real}))

			// a stub for an already-known function must not clobber it
			stub := Node{Label: LabelFunction, Key: "p.foo", Props: map[string]any{"is_stub": true}}
			require.NoError(t, store.MergeNode(ctx, "demo", stub))

			node, err := store.GetNode(ctx, "demo", LabelFunction, "p.foo")
			require.NoError(t, err)
			require.NotNil(t, node)
			assert.Equal(t, 3, node.IntProp("line"))
			assert.False(t, node.BoolProp("is_stub"))

			// merging an unknown key creates it
			require.NoError(t, store.MergeNode(ctx, "demo", Node{
				Label: LabelFunction, Key: "ext.bar", Props: map[string]any{"is_stub": true},
			}))
			created, err := store.GetNode(ctx, "demo", LabelFunction, "ext.bar")
			require.NoError(t, err)
			require.NotNil(t, created)
			assert.True(t, created.BoolProp("is_stub"))
		})
	}
}

func TestStore_ListAndFindNodes(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			nodes := []Node{
				{Label: LabelFunction, Key: "app.billing.charge"},
				{Label: LabelFunction, Key: "app.billing.refund"},
				{Label: LabelFunction, Key: "app.users.create"},
			}
			require.NoError(t, store.CreateNodes(ctx, "demo", nodes))

			all, err := store.ListNodes(ctx, "demo", LabelFunction)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "app.billing.charge", all[0].Key)
			assert.Equal(t, "app.users.create", all[2].Key)

			billing, err := store.FindNodes(ctx, "demo", LabelFunction, "billing", 0)
			require.NoError(t, err)
			require.Len(t, billing, 2)

			limited, err := store.FindNodes(ctx, "demo", LabelFunction, "app", 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			none, err := store.FindNodes(ctx, "demo", LabelFunction, "payments", 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_Edges(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			edges := []Edge{
				{
					Kind:      EdgeCalls,
					FromLabel: LabelFunction, FromKey: "p.a",
					ToLabel: LabelFunction, ToKey: "p.b",
					Props: map[string]any{"call_type": "direct", "line": 4},
				},
				{
					// parallel edge between the same pair, different call type
					Kind:      EdgeCalls,
					FromLabel: LabelFunction, FromKey: "p.a",
					ToLabel: LabelFunction, ToKey: "p.b",
					Props: map[string]any{"call_type": "assignment", "line": 9},
				},
				{
					Kind:      EdgeCalls,
					FromLabel: LabelFunction, FromKey: "p.b",
					ToLabel: LabelFunction, ToKey: "p.a",
					Props: map[string]any{"call_type": "direct", "line": 2},
				},
				{
					Kind:      EdgeExtends,
					FromLabel: LabelClass, FromKey: "p.Child",
					ToLabel: LabelClass, ToKey: "p.Parent",
				},
			}
			require.NoError(t, store.CreateEdges(ctx, "demo", edges))

			calls, err := store.ListEdges(ctx, "demo", EdgeCalls)
			require.NoError(t, err)
			assert.Len(t, calls, 3)

			out, err := store.EdgesFrom(ctx, "demo", EdgeCalls, "p.a")
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, "direct", out[0].StringProp("call_type"))
			assert.Equal(t, "assignment", out[1].StringProp("call_type"))
			assert.Equal(t, 9, out[1].IntProp("line"))

			in, err := store.EdgesTo(ctx, "demo", EdgeCalls, "p.b")
			require.NoError(t, err)
			assert.Len(t, in, 2)

			extends, err := store.EdgesFrom(ctx, "demo", EdgeExtends, "p.Child")
			require.NoError(t, err)
			require.Len(t, extends, 1)
			assert.Equal(t, "p.Parent", extends[0].ToKey)

			count, err := store.CountEdges(ctx, "demo", EdgeCalls)
			require.NoError(t, err)
			assert.Equal(t, 3, count)
		})
	}
}

func TestStore_DeleteProject_LeavesOthersIntact(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, project := range []string{"alpha", "beta"} {
				require.NoError(t, store.CreateNodes(ctx, project, []Node{
					{Label: LabelProject, Key: project},
					{Label: LabelFunction, Key: "p.run"},
				}))
				require.NoError(t, store.CreateEdges(ctx, project, []Edge{{
					Kind:      EdgeCalls,
					FromLabel: LabelFunction, FromKey: "p.run",
					ToLabel: LabelFunction, ToKey: "p.run",
				}}))
			}

			require.NoError(t, store.DeleteProject(ctx, "alpha"))

			gone, err := store.GetNode(ctx, "alpha", LabelFunction, "p.run")
			require.NoError(t, err)
			assert.Nil(t, gone)
			edges, err := store.ListEdges(ctx, "alpha", EdgeCalls)
			require.NoError(t, err)
			assert.Empty(t, edges)

			kept, err := store.GetNode(ctx, "beta", LabelFunction, "p.run")
			require.NoError(t, err)
			assert.NotNil(t, kept)

			projects, err := store.ListProjects(ctx)
			require.NoError(t, err)
			require.Len(t, projects, 1)
			assert.Equal(t, "beta", projects[0].Key)
		})
	}
}
