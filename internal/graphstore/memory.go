package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps the graph in process memory. It backs unit tests and
// one-shot CLI runs that do not need persistence.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]map[string]Node // project -> label -> key
	edges map[string][]Edge                     // project -> edges in write order
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]map[string]Node),
		edges: make(map[string][]Edge),
	}
}

func (s *MemoryStore) bucket(project, label string) map[string]Node {
	labels, ok := s.nodes[project]
	if !ok {
		labels = make(map[string]map[string]Node)
		s.nodes[project] = labels
	}
	keys, ok := labels[label]
	if !ok {
		keys = make(map[string]Node)
		labels[label] = keys
	}
	return keys
}

// CreateNodes upserts nodes by (label, key).
func (s *MemoryStore) CreateNodes(ctx context.Context, project string, nodes []Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		props, err := normalizeProps(n.Props)
		if err != nil {
			return err
		}
		n.Props = props
		s.bucket(project, n.Label)[n.Key] = n
	}
	return nil
}

// MergeNode inserts the node only when its key is absent.
func (s *MemoryStore) MergeNode(ctx context.Context, project string, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.bucket(project, node.Label)
	if _, exists := bucket[node.Key]; exists {
		return nil
	}
	props, err := normalizeProps(node.Props)
	if err != nil {
		return err
	}
	node.Props = props
	bucket[node.Key] = node
	return nil
}

// CreateEdges appends edges in write order.
func (s *MemoryStore) CreateEdges(ctx context.Context, project string, edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		props, err := normalizeProps(e.Props)
		if err != nil {
			return err
		}
		e.Props = props
		s.edges[project] = append(s.edges[project], e)
	}
	return nil
}

// GetNode returns the node, or (nil, nil) when absent.
func (s *MemoryStore) GetNode(ctx context.Context, project, label, key string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.nodes[project][label][key]; ok {
		return &n, nil
	}
	return nil, nil
}

// ListNodes returns all nodes of a label, sorted by key.
func (s *MemoryStore) ListNodes(ctx context.Context, project, label string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.nodes[project][label]
	out := make([]Node, 0, len(bucket))
	for _, n := range bucket {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// FindNodes returns nodes whose key contains substr, sorted by key.
func (s *MemoryStore) FindNodes(ctx context.Context, project, label, substr string, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for key, n := range s.nodes[project][label] {
		if strings.Contains(key, substr) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountNodes returns the node count for a label.
func (s *MemoryStore) CountNodes(ctx context.Context, project, label string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes[project][label]), nil
}

// ListEdges returns all edges of a kind in write order.
func (s *MemoryStore) ListEdges(ctx context.Context, project, kind string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, e := range s.edges[project] {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// EdgesFrom returns edges of a kind leaving fromKey.
func (s *MemoryStore) EdgesFrom(ctx context.Context, project, kind, fromKey string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, e := range s.edges[project] {
		if e.Kind == kind && e.FromKey == fromKey {
			out = append(out, e)
		}
	}
	return out, nil
}

// EdgesTo returns edges of a kind arriving at toKey.
func (s *MemoryStore) EdgesTo(ctx context.Context, project, kind, toKey string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, e := range s.edges[project] {
		if e.Kind == kind && e.ToKey == toKey {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountEdges returns the edge count for a kind.
func (s *MemoryStore) CountEdges(ctx context.Context, project, kind string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.edges[project] {
		if e.Kind == kind {
			count++
		}
	}
	return count, nil
}

// ListProjects returns every Project node across projects, sorted by key.
func (s *MemoryStore) ListProjects(ctx context.Context) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, labels := range s.nodes {
		for _, n := range labels[LabelProject] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteProject removes all nodes and edges of a project.
func (s *MemoryStore) DeleteProject(ctx context.Context, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, project)
	delete(s.edges, project)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
