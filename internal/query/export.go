package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
	FormatSummary  = "summary"
)

const exportNeighborMax = 5

// ProjectExport is the whole-project context bundle handed to external
// consumers: the overview plus every declared function with its closest
// neighbors, the classes, and the package dependencies.
type ProjectExport struct {
	Overview  Overview         `json:"overview" yaml:"overview"`
	Functions []FunctionExport `json:"functions" yaml:"functions"`
	Classes   []ClassInfo      `json:"classes" yaml:"classes"`
	Packages  []PackageDep     `json:"packages" yaml:"packages"`
}

// FunctionExport is one declared function with up to five callers and callees.
type FunctionExport struct {
	Name     string   `json:"name" yaml:"name"`
	FQN      string   `json:"fqn" yaml:"fqn"`
	Package  string   `json:"package,omitempty" yaml:"package,omitempty"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	CalledBy []string `json:"called_by,omitempty" yaml:"called_by,omitempty"`
	Calls    []string `json:"calls,omitempty" yaml:"calls,omitempty"`
}

// Export assembles the full context bundle for one project. Returns
// (nil, nil) when the project is unknown.
func (f *Facade) Export(ctx context.Context, project string) (*ProjectExport, error) {
	ov, err := f.Overview(ctx, project)
	if err != nil {
		return nil, err
	}
	if ov == nil {
		return nil, nil
	}

	calls, err := f.store.ListEdges(ctx, project, graphstore.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("list call edges: %w", err)
	}
	callersOf := map[string]map[string]bool{}
	calleesOf := map[string]map[string]bool{}
	for i := range calls {
		from, to := calls[i].FromKey, calls[i].ToKey
		if from == to {
			continue
		}
		if calleesOf[from] == nil {
			calleesOf[from] = map[string]bool{}
		}
		calleesOf[from][to] = true
		if callersOf[to] == nil {
			callersOf[to] = map[string]bool{}
		}
		callersOf[to][from] = true
	}

	fns, err := f.store.ListNodes(ctx, project, graphstore.LabelFunction)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	functions := make([]FunctionExport, 0, len(fns))
	for i := range fns {
		node := &fns[i]
		if node.BoolProp("stub") {
			continue
		}
		functions = append(functions, FunctionExport{
			Name:     node.StringProp("name"),
			FQN:      node.Key,
			Package:  node.StringProp("package"),
			File:     node.StringProp("file"),
			CalledBy: topNeighbors(callersOf[node.Key]),
			Calls:    topNeighbors(calleesOf[node.Key]),
		})
	}

	classes, err := f.ClassHierarchy(ctx, project, "")
	if err != nil {
		return nil, err
	}
	_, packages, err := f.PackageDependencies(ctx, project, "")
	if err != nil {
		return nil, err
	}

	return &ProjectExport{
		Overview:  *ov,
		Functions: functions,
		Classes:   classes,
		Packages:  packages,
	}, nil
}

func topNeighbors(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) > exportNeighborMax {
		out = out[:exportNeighborMax]
	}
	return out
}

// Render serializes an export bundle in the requested format.
func Render(exp *ProjectExport, format string) (string, error) {
	switch format {
	case FormatJSON, "":
		raw, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(raw) + "\n", nil
	case FormatYAML:
		raw, err := yaml.Marshal(exp)
		if err != nil {
			return "", fmt.Errorf("encode yaml: %w", err)
		}
		return string(raw), nil
	case FormatMarkdown:
		return renderMarkdown(exp), nil
	case FormatSummary:
		return renderSummary(exp), nil
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}
}

func renderMarkdown(exp *ProjectExport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n\n", exp.Overview.Project)

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- **Functions**: %d\n", exp.Overview.Stats.Functions)
	fmt.Fprintf(&b, "- **Classes**: %d\n", exp.Overview.Stats.Classes)
	fmt.Fprintf(&b, "- **Files**: %d\n", exp.Overview.Stats.Files)
	fmt.Fprintf(&b, "- **Packages**: %d\n", exp.Overview.Stats.Packages)
	if exp.Overview.Stats.DSLBlocks > 0 {
		fmt.Fprintf(&b, "- **DSL blocks**: %d\n", exp.Overview.Stats.DSLBlocks)
	}
	fmt.Fprintf(&b, "- **Call edges**: %d\n", exp.Overview.Stats.CallEdges)
	if exp.Overview.HealthScore != nil {
		fmt.Fprintf(&b, "- **Health score**: %d/100\n", *exp.Overview.HealthScore)
	}

	if len(exp.Functions) > 0 {
		b.WriteString("\n## Functions\n")
		for _, fn := range exp.Functions {
			fmt.Fprintf(&b, "\n### %s (`%s`)\n\n", fn.Name, fn.FQN)
			if fn.File != "" {
				fmt.Fprintf(&b, "- File: %s\n", fn.File)
			}
			if len(fn.CalledBy) > 0 {
				fmt.Fprintf(&b, "- Called by: %s\n", strings.Join(fn.CalledBy, ", "))
			}
			if len(fn.Calls) > 0 {
				fmt.Fprintf(&b, "- Calls: %s\n", strings.Join(fn.Calls, ", "))
			}
		}
	}

	if len(exp.Classes) > 0 {
		b.WriteString("\n## Classes\n")
		for _, cls := range exp.Classes {
			fmt.Fprintf(&b, "\n### %s (`%s`)\n\n", cls.Name, cls.FQN)
			if cls.File != "" {
				fmt.Fprintf(&b, "- File: %s\n", cls.File)
			}
			if len(cls.Parents) > 0 {
				fmt.Fprintf(&b, "- Extends: %s\n", strings.Join(cls.Parents, ", "))
			}
		}
	}

	if len(exp.Packages) > 0 {
		b.WriteString("\n## Package dependencies\n\n")
		for _, dep := range exp.Packages {
			fmt.Fprintf(&b, "- %s -> %s (%d calls)\n", dep.From, dep.To, dep.Calls)
		}
	}
	return b.String()
}

func renderSummary(exp *ProjectExport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project %s: %d functions, %d classes in %d files across %d packages.\n",
		exp.Overview.Project,
		exp.Overview.Stats.Functions,
		exp.Overview.Stats.Classes,
		exp.Overview.Stats.Files,
		exp.Overview.Stats.Packages)
	if exp.Overview.Language != "" {
		fmt.Fprintf(&b, "Language: %s, depth: %s.\n", exp.Overview.Language, exp.Overview.Depth)
	}
	if exp.Overview.Stats.DSLBlocks > 0 {
		fmt.Fprintf(&b, "DSL blocks: %d.\n", exp.Overview.Stats.DSLBlocks)
	}
	if exp.Overview.HealthScore != nil {
		fmt.Fprintf(&b, "Health score: %d/100.\n", *exp.Overview.HealthScore)
	}
	for i, pkg := range exp.Overview.TopPackages {
		if i == 0 {
			b.WriteString("Top packages:")
		}
		fmt.Fprintf(&b, " %s (%d)", pkg.Name, pkg.Functions+pkg.Classes)
		if i == len(exp.Overview.TopPackages)-1 {
			b.WriteString(".\n")
		} else {
			b.WriteString(",")
		}
	}
	return b.String()
}
