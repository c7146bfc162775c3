package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CodeAtlas-hq/codeatlas/internal/analyzer"
	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/gitrepo"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

var version = "dev"

var jsonOutput bool

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:     "codeatlas",
		Short:   "CodeAtlas - code knowledge graphs",
		Long:    `CodeAtlas analyzes source trees into a queryable knowledge graph of functions, classes, calls and packages.`,
		Version: version,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(callersCmd())
	rootCmd.AddCommand(calleesCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(classesCmd())
	rootCmd.AddCommand(packagesCmd())
	rootCmd.AddCommand(cyclesCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(hotspotsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(jobCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured graph store. The caller owns the close.
func openStore(ctx context.Context) (graphstore.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := graphstore.Open(ctx, cfg.Graph.Backend, cfg.Graph.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	return store, cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func analyzeCmd() *cobra.Command {
	var (
		project    string
		language   string
		depth      string
		include    []string
		exclude    []string
		unresolved string
		skipHealth bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a source tree and build its code graph",
		Long: `Analyze walks a source tree, extracts functions, classes and call sites,
and writes the project graph to the configured graph store.

Settings are read from .codeatlas.yaml in the tree root when present;
flags override it.

Examples:
  codeatlas analyze .
  codeatlas analyze ~/src/shop --project shop --language kotlin --depth deep
  codeatlas analyze . --exclude generated --unresolved stub`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if project == "" {
				project = filepath.Base(root)
			}

			store, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			// Repo config first, flags on top.
			pc, err := config.LoadProjectConfig(root)
			if err != nil {
				return err
			}
			pc.Merge(&config.ProjectConfig{
				Language:   language,
				Depth:      depth,
				Include:    include,
				Exclude:    exclude,
				Resolution: config.ResolutionConfig{Unresolved: unresolved},
			})

			lang, err := resolveLanguage(root, pc.Language)
			if err != nil {
				return err
			}
			d, err := model.ParseDepth(pc.Depth)
			if err != nil {
				return err
			}

			log.Info().
				Str("project", project).
				Str("language", string(lang)).
				Str("depth", d.String()).
				Msg("starting analysis")

			svc := analyzer.New(store, cfg.Analysis)
			report, err := svc.Analyze(ctx, analyzer.Options{
				Root:        root,
				Project:     project,
				Language:    lang,
				Depth:       d,
				Include:     pc.Include,
				Exclude:     pc.Exclude,
				Unresolved:  pc.Resolution.Unresolved,
				MaxFileSize: pc.Limits.MaxFileSize,
				FileTimeout: time.Duration(pc.Limits.FileTimeoutMS) * time.Millisecond,
				BatchSize:   pc.Limits.BatchSize,
			})
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			var health *model.HealthReport
			if !skipHealth {
				health, err = svc.HealthReport(ctx, project)
				if err != nil {
					log.Warn().Err(err).Msg("health report failed")
				}
			}

			if jsonOutput {
				out := map[string]interface{}{"report": report}
				if health != nil {
					out["health"] = health
				}
				return printJSON(out)
			}

			fmt.Printf("Analyzed %s (%s, depth %s)\n", project, report.Language, report.Depth)
			fmt.Printf("  Files:     %d processed, %d skipped, %d failed\n",
				report.FilesProcessed, report.FilesSkipped, report.FilesFailed)
			fmt.Printf("  Functions: %d\n", report.Functions)
			fmt.Printf("  Classes:   %d\n", report.Classes)
			fmt.Printf("  Packages:  %d\n", report.Packages)
			fmt.Printf("  Calls:     %d edges\n", report.CallEdges)
			if report.DSLBlocks > 0 {
				fmt.Printf("  DSL:       %d builder blocks\n", report.DSLBlocks)
			}
			fmt.Printf("  Duration:  %dms\n", report.Duration)
			if health != nil {
				fmt.Printf("  Health:    %d/100\n", health.Score)
			}
			for _, fe := range report.Errors {
				fmt.Printf("  warning: %s (%s): %s\n", fe.Path, fe.Stage, fe.Message)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name (defaults to the directory name)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Source language (kotlin, python, javascript, typescript, auto)")
	cmd.Flags().StringVarP(&depth, "depth", "d", "", "Analysis depth (basic, medium, deep)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Only analyze paths containing one of these fragments")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Skip paths containing one of these fragments")
	cmd.Flags().StringVar(&unresolved, "unresolved", "", "Unresolved call handling (drop, stub)")
	cmd.Flags().BoolVar(&skipHealth, "skip-health", false, "Skip the health report after analysis")

	return cmd
}

// resolveLanguage maps an explicit language name, or detects the dominant
// language of the tree when the request says auto or nothing at all.
func resolveLanguage(root, requested string) (model.Language, error) {
	if requested != "" && requested != "auto" {
		return model.ParseLanguage(requested)
	}
	counts, err := gitrepo.DetectLanguages(root)
	if err != nil {
		return model.LanguageUnknown, fmt.Errorf("language detection failed: %w", err)
	}
	lang, ok := gitrepo.Primary(counts)
	if !ok {
		return model.LanguageUnknown, fmt.Errorf("no supported source files under %s, pass --language", root)
	}
	return lang, nil
}
