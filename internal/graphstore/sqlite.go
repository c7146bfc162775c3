package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded backend. It keeps the graph in a single
// database file and needs no running service, which makes it the CLI default.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	project TEXT NOT NULL,
	label   TEXT NOT NULL,
	key     TEXT NOT NULL,
	props   TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (project, label, key)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	project    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	from_label TEXT NOT NULL,
	from_key   TEXT NOT NULL,
	to_label   TEXT NOT NULL,
	to_key     TEXT NOT NULL,
	props      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(project, kind, from_key);
CREATE INDEX IF NOT EXISTS idx_graph_edges_to   ON graph_edges(project, kind, to_key);
`

// OpenSQLite opens or creates the graph database at path, creating parent
// directories as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite graph store requires a database path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create graph store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize graph schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("opened sqlite graph store")
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// CreateNodes upserts nodes in one transaction.
func (s *SQLiteStore) CreateNodes(ctx context.Context, project string, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin node write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO graph_nodes (project, label, key, props)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node write: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		props, err := marshalProps(n.Props)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, project, n.Label, n.Key, props); err != nil {
			return fmt.Errorf("failed to write node %s/%s: %w", n.Label, n.Key, err)
		}
	}
	return tx.Commit()
}

// MergeNode inserts the node only when its key is absent.
func (s *SQLiteStore) MergeNode(ctx context.Context, project string, node Node) error {
	props, err := marshalProps(node.Props)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO graph_nodes (project, label, key, props)
		VALUES (?, ?, ?, ?)
	`, project, node.Label, node.Key, props)
	if err != nil {
		return fmt.Errorf("failed to merge node %s/%s: %w", node.Label, node.Key, err)
	}
	return nil
}

// CreateEdges appends edges in one transaction.
func (s *SQLiteStore) CreateEdges(ctx context.Context, project string, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin edge write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_edges (project, kind, from_label, from_key, to_label, to_key, props)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge write: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		props, err := marshalProps(e.Props)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, project, e.Kind, e.FromLabel, e.FromKey, e.ToLabel, e.ToKey, props); err != nil {
			return fmt.Errorf("failed to write edge %s: %w", e.Kind, err)
		}
	}
	return tx.Commit()
}

// GetNode returns the node, or (nil, nil) when absent.
func (s *SQLiteStore) GetNode(ctx context.Context, project, label, key string) (*Node, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT props FROM graph_nodes WHERE project = ? AND label = ? AND key = ?
	`, project, label, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s/%s: %w", label, key, err)
	}
	props, err := unmarshalProps(raw)
	if err != nil {
		return nil, err
	}
	return &Node{Label: label, Key: key, Props: props}, nil
}

// ListNodes returns all nodes of a label, sorted by key.
func (s *SQLiteStore) ListNodes(ctx context.Context, project, label string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, props FROM graph_nodes
		WHERE project = ? AND label = ?
		ORDER BY key
	`, project, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()
	return scanNodeRows(rows, label)
}

// FindNodes returns nodes whose key contains substr, sorted by key.
func (s *SQLiteStore) FindNodes(ctx context.Context, project, label, substr string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, props FROM graph_nodes
		WHERE project = ? AND label = ? AND instr(key, ?) > 0
		ORDER BY key
		LIMIT ?
	`, project, label, substr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	defer rows.Close()
	return scanNodeRows(rows, label)
}

// CountNodes returns the node count for a label.
func (s *SQLiteStore) CountNodes(ctx context.Context, project, label string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM graph_nodes WHERE project = ? AND label = ?
	`, project, label).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// ListEdges returns all edges of a kind in write order.
func (s *SQLiteStore) ListEdges(ctx context.Context, project, kind string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = ? AND kind = ?
		ORDER BY rowid
	`, project, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

// EdgesFrom returns edges of a kind leaving fromKey.
func (s *SQLiteStore) EdgesFrom(ctx context.Context, project, kind, fromKey string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = ? AND kind = ? AND from_key = ?
		ORDER BY rowid
	`, project, kind, fromKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing edges: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

// EdgesTo returns edges of a kind arriving at toKey.
func (s *SQLiteStore) EdgesTo(ctx context.Context, project, kind, toKey string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = ? AND kind = ? AND to_key = ?
		ORDER BY rowid
	`, project, kind, toKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming edges: %w", err)
	}
	defer rows.Close()
	return scanEdgeRows(rows)
}

// CountEdges returns the edge count for a kind.
func (s *SQLiteStore) CountEdges(ctx context.Context, project, kind string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM graph_edges WHERE project = ? AND kind = ?
	`, project, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return count, nil
}

// ListProjects returns every Project node, sorted by key.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, props FROM graph_nodes WHERE label = ? ORDER BY key
	`, LabelProject)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	return scanNodeRows(rows, LabelProject)
}

// DeleteProject removes all nodes and edges of a project.
func (s *SQLiteStore) DeleteProject(ctx context.Context, project string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin project delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE project = ?`, project); err != nil {
		return fmt.Errorf("failed to delete project edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE project = ?`, project); err != nil {
		return fmt.Errorf("failed to delete project nodes: %w", err)
	}
	return tx.Commit()
}

// Close closes the database file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanNodeRows(rows *sql.Rows, label string) ([]Node, error) {
	nodes := make([]Node, 0)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		props, err := unmarshalProps(raw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{Label: label, Key: key, Props: props})
	}
	return nodes, rows.Err()
}

func scanEdgeRows(rows *sql.Rows) ([]Edge, error) {
	edges := make([]Edge, 0)
	for rows.Next() {
		var e Edge
		var raw []byte
		if err := rows.Scan(&e.Kind, &e.FromLabel, &e.FromKey, &e.ToLabel, &e.ToKey, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		props, err := unmarshalProps(raw)
		if err != nil {
			return nil, err
		}
		e.Props = props
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
