package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CodeAtlas-hq/codeatlas/internal/metrics"
	"github.com/CodeAtlas-hq/codeatlas/internal/query"
)

// projectsCmd lists analyzed projects; its delete subcommand removes one.
func projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List analyzed projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			overviews, err := query.NewFacade(store).Projects(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(overviews)
			}
			if len(overviews) == 0 {
				fmt.Println("No projects analyzed yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tLANGUAGE\tFUNCTIONS\tCLASSES\tFILES\tANALYZED")
			for _, o := range overviews {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					o.Project, o.Language, o.Stats.Functions, o.Stats.Classes, o.Stats.Files, o.AnalyzedAt)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(projectsDeleteCmd())
	return cmd
}

func projectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project>",
		Short: "Delete a project and its graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			ov, err := query.NewFacade(store).Overview(ctx, project)
			if err != nil {
				return err
			}
			if ov == nil {
				return fmt.Errorf("project %s not found", project)
			}
			if err := store.DeleteProject(ctx, project); err != nil {
				return err
			}
			fmt.Printf("Project %s deleted.\n", project)
			return nil
		},
	}
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview <project>",
		Short: "Show a project summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			ov, err := query.NewFacade(store).Overview(ctx, project)
			if err != nil {
				return err
			}
			if ov == nil {
				return fmt.Errorf("project %s not found", project)
			}

			if jsonOutput {
				return printJSON(ov)
			}

			fmt.Printf("Project: %s\n", ov.Project)
			if ov.Language != "" {
				fmt.Printf("  Language:  %s\n", ov.Language)
			}
			if ov.Root != "" {
				fmt.Printf("  Root:      %s\n", ov.Root)
			}
			if ov.Depth != "" {
				fmt.Printf("  Depth:     %s\n", ov.Depth)
			}
			if ov.AnalyzedAt != "" {
				fmt.Printf("  Analyzed:  %s\n", ov.AnalyzedAt)
			}
			if ov.HealthScore != nil {
				fmt.Printf("  Health:    %d/100\n", *ov.HealthScore)
			}
			fmt.Printf("  Functions: %d\n", ov.Stats.Functions)
			fmt.Printf("  Classes:   %d\n", ov.Stats.Classes)
			fmt.Printf("  Files:     %d\n", ov.Stats.Files)
			fmt.Printf("  Packages:  %d\n", ov.Stats.Packages)
			fmt.Printf("  Calls:     %d\n", ov.Stats.CallEdges)
			if ov.Stats.DSLBlocks > 0 {
				fmt.Printf("  DSL:       %d\n", ov.Stats.DSLBlocks)
			}
			if len(ov.TopPackages) > 0 {
				fmt.Println("  Top packages:")
				for _, p := range ov.TopPackages {
					fmt.Printf("    %s (%d functions, %d classes)\n", p.Name, p.Functions, p.Classes)
				}
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "search <project> <pattern>",
		Short: "Search functions or classes by name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project, pattern := args[0], args[1]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := query.NewFacade(store).Search(ctx, project, pattern, kind)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(results)
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFQN\tFILE")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.FQN, r.File)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "function", "Symbol kind (function, class)")
	return cmd
}

func contextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <project> <function>",
		Short: "Show a function with its callers and callees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project, name := args[0], args[1]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			contexts, err := query.NewFacade(store).FunctionContext(ctx, project, name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(contexts)
			}
			if len(contexts) == 0 {
				fmt.Printf("No function named %s in %s.\n", name, project)
				return nil
			}

			for i, fc := range contexts {
				if i > 0 {
					fmt.Println()
				}
				fmt.Printf("%s\n", fc.Function.FQN)
				if fc.Function.File != "" {
					fmt.Printf("  File:    %s:%d\n", fc.Function.File, fc.Line)
				}
				if fc.Language != "" {
					fmt.Printf("  Language: %s\n", fc.Language)
				}
				printRefs("  Callers", fc.Callers)
				printRefs("  Callees", fc.Callees)
			}
			return nil
		},
	}
}

func callersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callers <project> <function>",
		Short: "List functions calling the named function",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNeighbors(args[0], args[1], true)
		},
	}
}

func calleesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callees <project> <function>",
		Short: "List functions the named function calls",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNeighbors(args[0], args[1], false)
		},
	}
}

func runNeighbors(project, name string, incoming bool) error {
	ctx := context.Background()
	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	f := query.NewFacade(store)
	var refs []query.FunctionRef
	if incoming {
		refs, err = f.Callers(ctx, project, name)
	} else {
		refs, err = f.Callees(ctx, project, name)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(refs)
	}
	if len(refs) == 0 {
		fmt.Println("None.")
		return nil
	}
	for _, r := range refs {
		line := r.FQN
		if r.File != "" {
			line += "  (" + r.File + ")"
		}
		if r.Stub {
			line += "  [stub]"
		}
		fmt.Println(line)
	}
	return nil
}

func printRefs(label string, refs []query.FunctionRef) {
	if len(refs) == 0 {
		fmt.Printf("%s: none\n", label)
		return
	}
	fmt.Printf("%s:\n", label)
	for _, r := range refs {
		suffix := ""
		if r.Stub {
			suffix = " [stub]"
		}
		fmt.Printf("    %s%s\n", r.FQN, suffix)
	}
}

func graphCmd() *cobra.Command {
	var (
		start string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "graph <project>",
		Short: "Show a call graph slice",
		Long: `Show a bounded call graph. With --start the slice expands outward from
one function; without it a project-wide sample is returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			slice, err := query.NewFacade(store).CallGraph(ctx, project, start, depth)
			if err != nil {
				return err
			}
			if slice == nil {
				return fmt.Errorf("function %s not found in %s", start, project)
			}

			if jsonOutput {
				return printJSON(slice)
			}

			fmt.Printf("Nodes: %d, edges: %d (depth %d)", slice.NodeCount, slice.EdgeCount, slice.Depth)
			if slice.Truncated {
				fmt.Print(", truncated")
			}
			fmt.Println()
			for _, e := range slice.Edges {
				fmt.Printf("  %s -> %s\n", e.From, e.To)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&start, "start", "s", "", "Function to expand the slice from")
	cmd.Flags().IntVarP(&depth, "depth", "d", 2, "Hops to follow from the start")
	return cmd
}

func classesCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "classes <project>",
		Short: "Show class hierarchies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			classes, err := query.NewFacade(store).ClassHierarchy(ctx, project, name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(classes)
			}
			if len(classes) == 0 {
				if name != "" {
					return fmt.Errorf("no class matching %s in %s", name, project)
				}
				fmt.Println("No classes.")
				return nil
			}

			for _, c := range classes {
				fmt.Printf("%s (%s)\n", c.FQN, c.Kind)
				if c.File != "" {
					fmt.Printf("  File: %s\n", c.File)
				}
				for _, p := range c.Parents {
					fmt.Printf("  extends %s\n", p)
				}
				for _, ch := range c.Children {
					fmt.Printf("  extended by %s\n", ch)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Limit to classes matching this name")
	return cmd
}

func packagesCmd() *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:   "packages <project>",
		Short: "Show package dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, deps, err := query.NewFacade(store).PackageDependencies(ctx, project, pkg)
			if err != nil {
				return err
			}

			if report != nil {
				if jsonOutput {
					return printJSON(report)
				}
				fmt.Printf("Package: %s\n", report.Package)
				fmt.Println("  Depends on:")
				for _, d := range report.Dependencies {
					fmt.Printf("    %s (%d calls)\n", d.To, d.Calls)
				}
				fmt.Println("  Depended on by:")
				for _, d := range report.Dependents {
					fmt.Printf("    %s (%d calls)\n", d.From, d.Calls)
				}
				return nil
			}

			if jsonOutput {
				return printJSON(deps)
			}
			if len(deps) == 0 {
				fmt.Println("No cross-package calls.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tCALLS")
			for _, d := range deps {
				fmt.Fprintf(w, "%s\t%s\t%d\n", d.From, d.To, d.Calls)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pkg, "package", "", "Report a single package with its dependents")
	return cmd
}

func cyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles <project>",
		Short: "Show mutual call and package cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := query.NewFacade(store).Cycles(ctx, project)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(report)
			}
			if len(report.FunctionCycles) == 0 && len(report.PackageCycles) == 0 {
				fmt.Println("No cycles.")
				return nil
			}
			for _, c := range report.FunctionCycles {
				fmt.Printf("function cycle: %s <-> %s\n", c.First, c.Second)
			}
			for _, c := range report.PackageCycles {
				fmt.Printf("package cycle:  %s <-> %s\n", c.First, c.Second)
			}
			return nil
		},
	}
}

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns <project>",
		Short: "Show DSL builder usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			patterns, err := query.NewFacade(store).DSLPatterns(ctx, project)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(patterns)
			}
			if len(patterns) == 0 {
				fmt.Println("No DSL blocks recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCOUNT\tEXAMPLE")
			for _, p := range patterns {
				example := ""
				if len(p.Examples) > 0 {
					example = p.Examples[0]
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", p.Type, p.Count, example)
			}
			return w.Flush()
		},
	}
}

func hotspotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hotspots <project>",
		Short: "Show complex files and busy functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := query.NewFacade(store).Hotspots(ctx, project)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(report)
			}
			if len(report.ComplexFiles) == 0 && len(report.BusyFunctions) == 0 {
				fmt.Println("No hotspots.")
				return nil
			}
			if len(report.ComplexFiles) > 0 {
				fmt.Println("Complex files:")
				for _, f := range report.ComplexFiles {
					fmt.Printf("  %s (complexity %d)\n", f.Path, f.Complexity)
				}
			}
			if len(report.BusyFunctions) > 0 {
				fmt.Println("Busy functions:")
				for _, fn := range report.BusyFunctions {
					fmt.Printf("  %s (%d in, %d out)\n", fn.FQN, fn.CallsIn, fn.CallsOut)
				}
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <project>",
		Short: "Run the quality checks and show the health score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := metrics.NewEngine(store).HealthReport(ctx, project)
			if err != nil {
				return err
			}
			if report == nil {
				return fmt.Errorf("project %s not found", project)
			}

			if jsonOutput {
				return printJSON(report)
			}

			fmt.Printf("Health: %d/100 (%s)\n", report.Score, project)
			fmt.Printf("  Duplicates:  %d\n", report.Issues.Duplicates)
			fmt.Printf("  Unused:      %d\n", report.Issues.Unused)
			fmt.Printf("  Patterns:    %d\n", report.Issues.Patterns)
			fmt.Printf("  Risks:       %d\n", report.Issues.Risks)
			fmt.Printf("  Consistency: %d\n", report.Issues.Consistency)
			fmt.Printf("  Hotspots:    %d\n", report.Issues.Hotspots)
			for _, p := range report.Patterns {
				fmt.Printf("  [%s] %s: %v\n", p.Severity, p.Kind, p.Functions)
			}
			for _, h := range report.Hotspots {
				fmt.Printf("  [%s] hotspot: %s\n", h.Severity, h.FQN)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Export a project graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			project := args[0]

			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			exp, err := query.NewFacade(store).Export(ctx, project)
			if err != nil {
				return err
			}
			if exp == nil {
				return fmt.Errorf("project %s not found", project)
			}

			rendered, err := query.Render(exp, format)
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s export to %s\n", format, output)
				return nil
			}
			fmt.Print(rendered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format (json, yaml, markdown, summary)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
