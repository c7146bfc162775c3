package graphstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore is the server backend, shared by the API and workers.
type PostgresStore struct {
	pool *pgxpool.Pool
	// ownsPool is set when the store opened the pool itself and should close it.
	ownsPool bool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	project TEXT NOT NULL,
	label   TEXT NOT NULL,
	key     TEXT NOT NULL,
	props   JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (project, label, key)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	id         BIGSERIAL PRIMARY KEY,
	project    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	from_label TEXT NOT NULL,
	from_key   TEXT NOT NULL,
	to_label   TEXT NOT NULL,
	to_key     TEXT NOT NULL,
	props      JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(project, kind, from_key);
CREATE INDEX IF NOT EXISTS idx_graph_edges_to   ON graph_edges(project, kind, to_key);
`

// NewPostgres wraps an existing pool. The caller keeps ownership of the pool;
// run EnsureSchema once before first use.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to databaseURL, verifies connectivity, and creates the
// graph tables when missing.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, ownsPool: true}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Debug().Str("host", config.ConnConfig.Host).Msg("opened postgres graph store")
	return s, nil
}

// EnsureSchema creates the graph tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to initialize graph schema: %w", err)
	}
	return nil
}

// CreateNodes upserts nodes in one transaction, batched into a single round trip.
func (s *PostgresStore) CreateNodes(ctx context.Context, project string, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range nodes {
		props, err := marshalProps(n.Props)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO graph_nodes (project, label, key, props)
			VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (project, label, key) DO UPDATE SET props = EXCLUDED.props
		`, project, n.Label, n.Key, props)
	}
	return s.sendBatch(ctx, batch, len(nodes), "node")
}

// MergeNode inserts the node only when its key is absent.
func (s *PostgresStore) MergeNode(ctx context.Context, project string, node Node) error {
	props, err := marshalProps(node.Props)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO graph_nodes (project, label, key, props)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (project, label, key) DO NOTHING
	`, project, node.Label, node.Key, props)
	if err != nil {
		return fmt.Errorf("failed to merge node %s/%s: %w", node.Label, node.Key, err)
	}
	return nil
}

// CreateEdges appends edges in one transaction, batched into a single round trip.
func (s *PostgresStore) CreateEdges(ctx context.Context, project string, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range edges {
		props, err := marshalProps(e.Props)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO graph_edges (project, kind, from_label, from_key, to_label, to_key, props)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		`, project, e.Kind, e.FromLabel, e.FromKey, e.ToLabel, e.ToKey, props)
	}
	return s.sendBatch(ctx, batch, len(edges), "edge")
}

func (s *PostgresStore) sendBatch(ctx context.Context, batch *pgx.Batch, n int, what string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin %s write: %w", what, err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to write %s batch: %w", what, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close %s batch: %w", what, err)
	}
	return tx.Commit(ctx)
}

// GetNode returns the node, or (nil, nil) when absent.
func (s *PostgresStore) GetNode(ctx context.Context, project, label, key string) (*Node, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT props FROM graph_nodes WHERE project = $1 AND label = $2 AND key = $3
	`, project, label, key).Scan(&raw)
	if err == pgx.ErrNoRows {
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
func (s *PostgresStore) ListNodes(ctx context.Context, project, label string) ([]Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, props FROM graph_nodes
		WHERE project = $1 AND label = $2
		ORDER BY key
	`, project, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()
	return scanPgNodes(rows, label)
}

// FindNodes returns nodes whose key contains substr, sorted by key.
func (s *PostgresStore) FindNodes(ctx context.Context, project, label, substr string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT key, props FROM graph_nodes
		WHERE project = $1 AND label = $2 AND strpos(key, $3) > 0
		ORDER BY key
		LIMIT $4
	`, project, label, substr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}
	defer rows.Close()
	return scanPgNodes(rows, label)
}

// CountNodes returns the node count for a label.
func (s *PostgresStore) CountNodes(ctx context.Context, project, label string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM graph_nodes WHERE project = $1 AND label = $2
	`, project, label).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// ListEdges returns all edges of a kind in write order.
func (s *PostgresStore) ListEdges(ctx context.Context, project, kind string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = $1 AND kind = $2
		ORDER BY id
	`, project, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()
	return scanPgEdges(rows)
}

// EdgesFrom returns edges of a kind leaving fromKey.
func (s *PostgresStore) EdgesFrom(ctx context.Context, project, kind, fromKey string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = $1 AND kind = $2 AND from_key = $3
		ORDER BY id
	`, project, kind, fromKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing edges: %w", err)
	}
	defer rows.Close()
	return scanPgEdges(rows)
}

// EdgesTo returns edges of a kind arriving at toKey.
func (s *PostgresStore) EdgesTo(ctx context.Context, project, kind, toKey string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, from_label, from_key, to_label, to_key, props FROM graph_edges
		WHERE project = $1 AND kind = $2 AND to_key = $3
		ORDER BY id
	`, project, kind, toKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query incoming edges: %w", err)
	}
	defer rows.Close()
	return scanPgEdges(rows)
}

// CountEdges returns the edge count for a kind.
func (s *PostgresStore) CountEdges(ctx context.Context, project, kind string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM graph_edges WHERE project = $1 AND kind = $2
	`, project, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return count, nil
}

// ListProjects returns every Project node, sorted by key.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, props FROM graph_nodes WHERE label = $1 ORDER BY key
	`, LabelProject)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	return scanPgNodes(rows, LabelProject)
}

// DeleteProject removes all nodes and edges of a project.
func (s *PostgresStore) DeleteProject(ctx context.Context, project string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin project delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM graph_edges WHERE project = $1`, project); err != nil {
		return fmt.Errorf("failed to delete project edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE project = $1`, project); err != nil {
		return fmt.Errorf("failed to delete project nodes: %w", err)
	}
	return tx.Commit(ctx)
}

// Close releases the pool when this store opened it.
func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

func scanPgNodes(rows pgx.Rows, label string) ([]Node, error) {
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

func scanPgEdges(rows pgx.Rows) ([]Edge, error) {
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
