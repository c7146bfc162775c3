// Package graphstore persists the code graph as typed nodes and relationships
// behind create/match/merge primitives. Three backends share the contract: an
// in-memory store for tests and ephemeral runs, an embedded SQLite file, and
// PostgreSQL for the service deployment.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Node labels.
const (
	LabelProject  = "Project"
	LabelFile     = "SourceFile"
	LabelFunction = "Function"
	LabelClass    = "Class"
	LabelDSL      = "DSLBlock"
	LabelPackage  = "Package"
)

// Relationship kinds.
const (
	EdgeCalls     = "CALLS"
	EdgeExtends   = "EXTENDS"
	EdgeDependsOn = "DEPENDS_ON"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Node is a typed graph node. Key is unique within (project, label); Props
// carry everything else and round-trip through JSON, so numbers come back as
// float64. Use the typed accessors when reading.
type Node struct {
	Label string         `json:"label"`
	Key   string         `json:"key"`
	Props map[string]any `json:"props,omitempty"`
}

// Edge is a typed relationship between two node keys. Parallel edges between
// the same endpoints are allowed; a call pair may carry one edge per call type.
type Edge struct {
	Kind      string         `json:"kind"`
	FromLabel string         `json:"from_label"`
	FromKey   string         `json:"from_key"`
	ToLabel   string         `json:"to_label"`
	ToKey     string         `json:"to_key"`
	Props     map[string]any `json:"props,omitempty"`
}

// Store is the persistence boundary for the code graph. CreateNodes upserts by
// (project, label, key); MergeNode inserts only when the key is absent, so a
// stub endpoint never overwrites a node written from real facts. Lookups
// return (nil, nil) when nothing matches. A nodes or edges call writes its
// rows in a single transaction: a failed chunk leaves the store as it was.
type Store interface {
	CreateNodes(ctx context.Context, project string, nodes []Node) error
	MergeNode(ctx context.Context, project string, node Node) error
	CreateEdges(ctx context.Context, project string, edges []Edge) error

	GetNode(ctx context.Context, project, label, key string) (*Node, error)
	ListNodes(ctx context.Context, project, label string) ([]Node, error)
	FindNodes(ctx context.Context, project, label, substr string, limit int) ([]Node, error)
	CountNodes(ctx context.Context, project, label string) (int, error)

	ListEdges(ctx context.Context, project, kind string) ([]Edge, error)
	EdgesFrom(ctx context.Context, project, kind, fromKey string) ([]Edge, error)
	EdgesTo(ctx context.Context, project, kind, toKey string) ([]Edge, error)
	CountEdges(ctx context.Context, project, kind string) (int, error)

	ListProjects(ctx context.Context) ([]Node, error)
	DeleteProject(ctx context.Context, project string) error

	Close() error
}

// Open returns the store for a backend name. For sqlite the DSN is the
// database file path; for postgres it is a connection URL.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite, "":
		return OpenSQLite(dsn)
	case BackendPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown graph store backend: %s", backend)
	}
}

// StringProp returns a string property, or "" when absent.
func (n *Node) StringProp(key string) string {
	if v, ok := n.Props[key].(string); ok {
		return v
	}
	return ""
}

// IntProp returns a numeric property, tolerating the float64 that JSON
// decoding produces.
func (n *Node) IntProp(key string) int {
	switch v := n.Props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// BoolProp returns a boolean property, or false when absent.
func (n *Node) BoolProp(key string) bool {
	if v, ok := n.Props[key].(bool); ok {
		return v
	}
	return false
}

// StringsProp returns a string-slice property regardless of whether it was
// decoded from JSON ([]any) or set directly ([]string).
func (n *Node) StringsProp(key string) []string {
	switch v := n.Props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringProp returns a string property of an edge, or "" when absent.
func (e *Edge) StringProp(key string) string {
	if v, ok := e.Props[key].(string); ok {
		return v
	}
	return ""
}

// IntProp returns a numeric property of an edge.
func (e *Edge) IntProp(key string) int {
	switch v := e.Props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// normalizeProps passes props through JSON so every backend hands back the
// same shapes (float64 numbers, []any slices).
func normalizeProps(props map[string]any) (map[string]any, error) {
	if len(props) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode props: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode props: %w", err)
	}
	return out, nil
}

func marshalProps(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode props: %w", err)
	}
	return string(raw), nil
}

func unmarshalProps(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("failed to decode props: %w", err)
	}
	if len(props) == 0 {
		return nil, nil
	}
	return props, nil
}
