package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

func tableWith(fqns ...string) *SymbolTable {
	t := NewSymbolTable()
	for _, fqn := range fqns {
		t.AddFunction(&model.Function{Name: model.SimpleName(fqn), FQN: fqn})
	}
	return t
}

func TestResolver_StrategyOrder(t *testing.T) {
	r := NewResolver()
	assert.Equal(t, []string{
		"exact_qualified", "same_package", "import_match", "wildcard_import", "short_name",
	}, r.Strategies())
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		site    Site
		table   *SymbolTable
		want    string
		wantOK  bool
	}{
		{
			name:   "exact qualified name",
			site:   Site{Callee: "com.acme.util.format", CallerPackage: "com.acme.app"},
			table:  tableWith("com.acme.util.format"),
			want:   "com.acme.util.format",
			wantOK: true,
		},
		{
			name:   "same package",
			site:   Site{Callee: "helper", CallerPackage: "com.acme.app"},
			table:  tableWith("com.acme.app.helper", "com.acme.other.helper"),
			want:   "com.acme.app.helper",
			wantOK: true,
		},
		{
			name: "import tail",
			site: Site{
				Callee:        "format",
				CallerPackage: "com.acme.app",
				Imports:       []model.Import{{Path: "com.acme.util.format"}},
			},
			table:  tableWith("com.acme.util.format"),
			want:   "com.acme.util.format",
			wantOK: true,
		},
		{
			name: "import alias",
			site: Site{
				Callee:        "fmt",
				CallerPackage: "com.acme.app",
				Imports:       []model.Import{{Path: "com.acme.util.format", Alias: "fmt"}},
			},
			table:  tableWith("com.acme.util.format"),
			want:   "com.acme.util.format",
			wantOK: true,
		},
		{
			name: "aliased module prefix on dotted callee",
			site: Site{
				Callee:        "np.array",
				CallerPackage: "app.main",
				Imports:       []model.Import{{Path: "numpy", Alias: "np"}},
			},
			table:  tableWith("numpy.array"),
			want:   "numpy.array",
			wantOK: true,
		},
		{
			name: "wildcard import expansion",
			site: Site{
				Callee:        "format",
				CallerPackage: "com.acme.app",
				Imports:       []model.Import{{Path: "com.acme.util", Wildcard: true}},
			},
			table:  tableWith("com.acme.util.format"),
			want:   "com.acme.util.format",
			wantOK: true,
		},
		{
			name:   "short name fallback first in discovery order",
			site:   Site{Callee: "format", CallerPackage: "com.acme.app"},
			table:  tableWith("z.pkg.format", "a.pkg.format"),
			want:   "z.pkg.format",
			wantOK: true,
		},
		{
			name:   "no match",
			site:   Site{Callee: "missing", CallerPackage: "com.acme.app"},
			table:  tableWith("com.acme.app.helper"),
			wantOK: false,
		},
		{
			name:   "same package beats short name",
			site:   Site{Callee: "save", CallerPackage: "b.pkg"},
			table:  tableWith("a.pkg.save", "b.pkg.save"),
			want:   "b.pkg.save",
			wantOK: true,
		},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.site, tt.table)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// Mirrors the two-file scenario: a.kt declares p.foo, b.kt in package q
// imports p.foo and calls foo() from bar.
func TestResolver_CrossFileImport(t *testing.T) {
	table := tableWith("p.foo", "q.bar")

	site := Site{
		Callee:        "foo",
		CallerFQN:     "q.bar",
		CallerPackage: "q",
		Imports:       []model.Import{{Path: "p.foo"}},
	}

	got, ok := NewResolver().Resolve(site, table)
	require.True(t, ok)
	assert.Equal(t, "p.foo", got)
}

func TestSymbolTable_ClassesAreCallable(t *testing.T) {
	table := NewSymbolTable()
	table.AddClass(&model.Class{Name: "Engine", FQN: "com.acme.Engine"})

	got, ok := NewResolver().Resolve(Site{Callee: "Engine", CallerPackage: "com.acme"}, table)
	require.True(t, ok)
	assert.Equal(t, "com.acme.Engine", got)
	assert.True(t, table.IsClass(got))
}

func TestSymbolTable_DuplicateFQNKeepsFirst(t *testing.T) {
	table := NewSymbolTable()
	first := &model.Function{Name: "run", FQN: "p.run", Line: 1}
	second := &model.Function{Name: "run", FQN: "p.run", Line: 99}
	table.AddFunction(first)
	table.AddFunction(second)

	fn, ok := table.Function("p.run")
	require.True(t, ok)
	assert.Equal(t, 1, fn.Line)
	assert.Equal(t, 1, table.Len())
}
