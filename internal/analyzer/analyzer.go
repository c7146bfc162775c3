// Package analyzer orchestrates analysis runs: it walks a source tree,
// drives the per-file strip/extract pipeline under a time budget, resolves
// call sites against the project-wide symbol table, and hands the result to
// the graph assembler. Processing is sequential file by file; batching
// bounds memory and gives cancellation a checkpoint, not parallelism.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/config"
	"github.com/CodeAtlas-hq/codeatlas/internal/extract"
	"github.com/CodeAtlas-hq/codeatlas/internal/graph"
	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
	"github.com/CodeAtlas-hq/codeatlas/internal/metrics"
	"github.com/CodeAtlas-hq/codeatlas/internal/query"
	"github.com/CodeAtlas-hq/codeatlas/internal/resolve"
	"github.com/CodeAtlas-hq/codeatlas/internal/scanner"
	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// Unresolved-call policies.
const (
	UnresolvedDrop = "drop"
	UnresolvedStub = "stub"
)

// Options parameterizes one analysis run. Zero values fall back to the
// service defaults.
type Options struct {
	Root     string
	Project  string
	Language model.Language
	Depth    model.Depth

	// Include keeps only paths containing one of its entries; Exclude skips
	// directories by name and paths by substring, on top of the defaults.
	Include []string
	Exclude []string

	MaxFileSize int64
	FileTimeout time.Duration
	BatchSize   int
	ChunkSize   int

	// Unresolved selects what happens to call sites no strategy resolves:
	// drop them, or record them against a stub node.
	Unresolved string
}

// Service runs analyses against one graph store. A project name has at most
// one analysis in flight at a time; concurrent calls for the same name fail
// fast instead of racing the clear-then-rebuild.
type Service struct {
	store    graphstore.Store
	resolver *resolve.Resolver
	defaults config.AnalysisConfig

	mu     sync.Mutex
	active map[string]bool
}

func New(store graphstore.Store, defaults config.AnalysisConfig) *Service {
	return &Service{
		store:    store,
		resolver: resolve.NewResolver(),
		defaults: defaults,
		active:   make(map[string]bool),
	}
}

// Store exposes the underlying graph store for read-side collaborators.
func (s *Service) Store() graphstore.Store { return s.store }

// Analyze walks opts.Root, extracts facts at opts.Depth, resolves calls, and
// rebuilds the project graph. It always returns a report when the run itself
// completes; per-file and per-chunk failures are collected in the report.
func (s *Service) Analyze(ctx context.Context, opts Options) (*model.AnalysisReport, error) {
	opts = s.withDefaults(opts)
	if opts.Project == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("root path is required")
	}
	if _, err := extract.ForLanguage(opts.Language); err != nil {
		return nil, err
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", opts.Root)
	}

	if err := s.acquire(opts.Project); err != nil {
		return nil, err
	}
	defer s.release(opts.Project)

	started := time.Now()
	log.Info().
		Str("project", opts.Project).
		Str("root", opts.Root).
		Str("language", string(opts.Language)).
		Str("depth", opts.Depth.String()).
		Msg("starting analysis")

	paths, err := walkTree(opts.Root, opts.Language, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	col := &collector{}
	for start := 0; start < len(paths); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis canceled: %w", err)
		}
		end := start + opts.BatchSize
		if end > len(paths) {
			end = len(paths)
		}
		for _, rel := range paths[start:end] {
			s.processFile(opts, rel, col)
		}
		log.Debug().
			Str("project", opts.Project).
			Int("processed", end).
			Int("total", len(paths)).
			Msg("analysis batch complete")
	}

	calls, dropped := s.resolveCalls(col, opts.Unresolved)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled: %w", err)
	}

	builder := graph.NewBuilder(s.store, opts.ChunkSize)
	res, err := builder.Build(ctx, graph.Input{
		Project:   opts.Project,
		Root:      opts.Root,
		Language:  opts.Language,
		Depth:     opts.Depth,
		Files:     col.files,
		Functions: col.functions,
		Classes:   col.classes,
		DSLBlocks: col.dsl,
		Calls:     calls,
	})
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	report := &model.AnalysisReport{
		Project:        opts.Project,
		Root:           opts.Root,
		Language:       opts.Language,
		Depth:          opts.Depth.String(),
		StartedAt:      started.UTC(),
		Duration:       time.Since(started).Milliseconds(),
		FilesProcessed: len(col.files),
		FilesSkipped:   col.skipped,
		FilesFailed:    col.failed,
		Functions:      len(col.functions),
		Classes:        len(col.classes),
		CallEdges:      res.CallEdges,
		ExtendsEdges:   res.ExtendsEdges,
		DSLBlocks:      len(col.dsl),
		Packages:       res.Packages,
		Errors:         append(col.errors, res.Errors...),
	}

	log.Info().
		Str("project", opts.Project).
		Int("files", report.FilesProcessed).
		Int("skipped", report.FilesSkipped).
		Int("failed", report.FilesFailed).
		Int("functions", report.Functions).
		Int("call_edges", report.CallEdges).
		Int("dropped_calls", dropped).
		Dur("elapsed", time.Since(started)).
		Msg("analysis complete")

	return report, nil
}

// Callers returns the functions calling the named one.
func (s *Service) Callers(ctx context.Context, project, name string) ([]query.FunctionRef, error) {
	return query.NewFacade(s.store).Callers(ctx, project, name)
}

// Callees returns the functions the named one calls.
func (s *Service) Callees(ctx context.Context, project, name string) ([]query.FunctionRef, error) {
	return query.NewFacade(s.store).Callees(ctx, project, name)
}

// HealthReport runs all quality checks for a project and stamps the score
// onto the Project node. Returns (nil, nil) for an unknown project.
func (s *Service) HealthReport(ctx context.Context, project string) (*model.HealthReport, error) {
	report, err := metrics.NewEngine(s.store).HealthReport(ctx, project)
	if err != nil || report == nil {
		return report, err
	}
	if err := graph.NewBuilder(s.store, 0).SetProjectHealth(ctx, project, report.Score); err != nil {
		log.Warn().Err(err).Str("project", project).Msg("failed to stamp health score")
	}
	return report, nil
}

func (s *Service) withDefaults(opts Options) Options {
	if opts.Depth == 0 {
		if d, err := model.ParseDepth(s.defaults.Depth); err == nil {
			opts.Depth = d
		} else {
			opts.Depth = model.DepthMedium
		}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = s.defaults.MaxFileSize
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 1 << 20
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = time.Duration(s.defaults.FileTimeoutMS) * time.Millisecond
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.defaults.BatchSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = s.defaults.StoreChunkSize
	}
	if opts.Unresolved == "" {
		opts.Unresolved = UnresolvedDrop
	}
	return opts
}

func (s *Service) acquire(project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[project] {
		return fmt.Errorf("analysis already running for project %s", project)
	}
	s.active[project] = true
	return nil
}

func (s *Service) release(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, project)
}

// collector accumulates per-file facts across the walk.
type collector struct {
	files     []model.SourceFile
	functions []model.Function
	classes   []model.Class
	dsl       []model.DSLBlock
	calls     []fileCalls

	skipped int
	failed  int
	errors  []model.FileError
}

// fileCalls keeps one file's raw call sites with the context resolution needs.
type fileCalls struct {
	pkg     string
	imports []model.Import
	sites   []model.CallSite
}

// processFile runs the strip/extract stages for one file. The time budget is
// checked between stages, never mid-scan; a file over budget is skipped and
// reported so one pathological input cannot stall the run.
func (s *Service) processFile(opts Options, rel string, col *collector) {
	abs := filepath.Join(opts.Root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	if err != nil {
		col.fail(rel, "read", err.Error())
		return
	}
	if info.Size() > opts.MaxFileSize {
		col.skipped++
		log.Warn().
			Str("file", rel).
			Int64("size", info.Size()).
			Int64("limit", opts.MaxFileSize).
			Msg("skipping oversized file")
		return
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		col.fail(rel, "read", err.Error())
		return
	}

	fileLang := model.DetectLanguage(rel)
	ex, err := extract.ForLanguage(fileLang)
	if err != nil {
		col.fail(rel, "extract", err.Error())
		return
	}

	started := time.Now()
	stripped := scanner.Strip(string(data), fileLang)
	if time.Since(started) > opts.FileTimeout {
		col.skip(rel, "strip")
		return
	}

	facts := ex.Extract(stripped.Text, moduleHint(rel, fileLang), opts.Depth)
	if time.Since(started) > opts.FileTimeout {
		col.skip(rel, "extract")
		return
	}

	col.files = append(col.files, model.SourceFile{
		Path:         rel,
		Package:      facts.Package,
		Language:     fileLang,
		Lines:        stripped.Lines,
		CommentLines: stripped.CommentLines,
		Complexity:   facts.Complexity,
		IsDSL:        facts.IsDSL,
	})
	for i := range facts.Functions {
		facts.Functions[i].File = rel
		facts.Functions[i].Language = fileLang
	}
	col.functions = append(col.functions, facts.Functions...)
	for i := range facts.Classes {
		facts.Classes[i].File = rel
	}
	col.classes = append(col.classes, facts.Classes...)
	for i := range facts.DSLBlocks {
		facts.DSLBlocks[i].File = rel
	}
	col.dsl = append(col.dsl, facts.DSLBlocks...)
	if len(facts.Calls) > 0 {
		col.calls = append(col.calls, fileCalls{
			pkg:     facts.Package,
			imports: facts.Imports,
			sites:   facts.Calls,
		})
	}
}

// resolveCalls maps every collected call site through the strategy chain.
// The symbol table is built in discovery order, which the sorted walk makes
// deterministic.
func (s *Service) resolveCalls(col *collector, policy string) ([]model.ResolvedCall, int) {
	table := resolve.NewSymbolTable()
	for i := range col.functions {
		table.AddFunction(&col.functions[i])
	}
	for i := range col.classes {
		table.AddClass(&col.classes[i])
	}

	var resolved []model.ResolvedCall
	dropped := 0
	for _, fc := range col.calls {
		for _, site := range fc.sites {
			target, ok := s.resolver.Resolve(resolve.Site{
				Callee:        site.Callee,
				CallerFQN:     site.CallerFQN,
				CallerPackage: fc.pkg,
				Imports:       fc.imports,
			}, table)
			if ok {
				resolved = append(resolved, model.ResolvedCall{
					CallerFQN: site.CallerFQN,
					CalleeFQN: target,
					Type:      site.Type,
					Line:      site.Line,
				})
				continue
			}
			if policy == UnresolvedStub {
				resolved = append(resolved, model.ResolvedCall{
					CallerFQN: site.CallerFQN,
					CalleeFQN: site.Callee,
					Type:      site.Type,
					Line:      site.Line,
					Stub:      true,
				})
				continue
			}
			dropped++
		}
	}
	return resolved, dropped
}

func (c *collector) fail(rel, stage, msg string) {
	c.failed++
	c.errors = append(c.errors, model.FileError{Path: rel, Stage: stage, Message: msg})
	log.Warn().Str("file", rel).Str("stage", stage).Str("error", msg).Msg("file processing failed")
}

func (c *collector) skip(rel, stage string) {
	c.skipped++
	c.errors = append(c.errors, model.FileError{
		Path:    rel,
		Stage:   stage,
		Message: "file exceeded the per-file time budget",
	})
	log.Warn().Str("file", rel).Str("stage", stage).Msg("file exceeded the per-file time budget")
}
