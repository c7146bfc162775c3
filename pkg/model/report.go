package model

import "time"

// AnalysisReport summarizes one analysis run. A completed run always yields a
// report, even under partial failure; per-file and per-chunk errors are
// collected here rather than aborting the run.
type AnalysisReport struct {
	Project   string    `json:"project"`
	Root      string    `json:"root"`
	Language  Language  `json:"language"`
	Depth     string    `json:"depth"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`

	FilesProcessed int `json:"files_processed"`
	FilesSkipped   int `json:"files_skipped"`
	FilesFailed    int `json:"files_failed"`

	Functions    int `json:"functions"`
	Classes      int `json:"classes"`
	CallEdges    int `json:"call_edges"`
	ExtendsEdges int `json:"extends_edges"`
	DSLBlocks    int `json:"dsl_blocks"`
	Packages     int `json:"packages"`

	Errors []FileError `json:"errors,omitempty"`
}

// FileError records a recovered per-file or per-chunk failure.
type FileError struct {
	Path    string `json:"path"`
	Stage   string `json:"stage"` // read, strip, extract, write
	Message string `json:"message"`
}

// Severity grades a quality finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Duplicate reports either a short name declared in several places
// (Kind "duplicate_name") or a pair of functions sharing an unusually high
// number of callees (Kind "similar_behavior").
type Duplicate struct {
	Kind          string   `json:"kind"`
	Severity      Severity `json:"severity"`
	Name          string   `json:"name,omitempty"`
	Functions     []string `json:"functions"`
	Files         []string `json:"files,omitempty"`
	SharedCallees int      `json:"shared_callees,omitempty"`
}

// UnusedFunction is a function with no incoming calls that matches none of
// the recognized entry-point conventions.
type UnusedFunction struct {
	Name string `json:"name"`
	FQN  string `json:"fqn"`
	File string `json:"file"`
}

// Pattern reports a structural smell: a direct call cycle, a function calling
// too many distinct callees, or one called by too many distinct callers.
type Pattern struct {
	Kind      string   `json:"kind"` // circular_call, high_coupling, god_function
	Severity  Severity `json:"severity"`
	Functions []string `json:"functions"`
	Count     int      `json:"count,omitempty"` // degree for coupling/god findings
}

// Risk flags a function whose name contains a known risky token. Lexical
// heuristic only, not taint analysis.
type Risk struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	FQN      string   `json:"fqn"`
	File     string   `json:"file,omitempty"`
}

// ConsistencyIssue reports naming-convention outliers relative to the
// dominant convention, or modules far above the average function count.
type ConsistencyIssue struct {
	Kind     string   `json:"kind"` // naming_outlier, oversized_module
	Detail   string   `json:"detail"`
	Dominant string   `json:"dominant,omitempty"`
	Items    []string `json:"items,omitempty"`
}

// Hotspot is a function whose complexity or call volume exceeds thresholds.
type Hotspot struct {
	FQN        string   `json:"fqn"`
	File       string   `json:"file,omitempty"`
	Complexity int      `json:"complexity,omitempty"`
	CallCount  int      `json:"call_count,omitempty"`
	Severity   Severity `json:"severity"`
}

// IssueCounts summarizes finding counts per check.
type IssueCounts struct {
	Duplicates  int `json:"duplicates"`
	Unused      int `json:"unused"`
	Patterns    int `json:"strange_patterns"`
	Risks       int `json:"risks"`
	Consistency int `json:"consistency"`
	Hotspots    int `json:"hotspots"`
}

// HealthReport aggregates all quality checks with the 0-100 score.
type HealthReport struct {
	Project      string      `json:"project"`
	GeneratedAt  time.Time   `json:"generated_at"`
	Score        int         `json:"health_score"`
	Penalty      int         `json:"penalty_applied"`
	CodebaseSize int         `json:"codebase_size"`
	Issues       IssueCounts `json:"issues"`

	Duplicates  []Duplicate        `json:"duplicate_findings,omitempty"`
	Unused      []UnusedFunction   `json:"unused_findings,omitempty"`
	Patterns    []Pattern          `json:"pattern_findings,omitempty"`
	Risks       []Risk             `json:"risk_findings,omitempty"`
	Consistency []ConsistencyIssue `json:"consistency_findings,omitempty"`
	Hotspots    []Hotspot          `json:"hotspot_findings,omitempty"`
}

// TotalIssues returns the density-normalized issue count inputs.
func (r *HealthReport) TotalIssues() int {
	return r.Issues.Patterns + r.Issues.Consistency + r.Issues.Hotspots
}
