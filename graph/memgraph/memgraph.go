// Package memgraph is an in-memory, transactional implementation of
// graph.Store. Transactions are serialised: Begin blocks until the previous
// transaction has committed or rolled back.
package memgraph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

type state struct {
	nodes map[string]*graph.Node
	edges map[string]*graph.Edge
	// order records edge ids in creation order; deleted ids are removed.
	order []string
}

func (s *state) clone() *state {
	c := &state{
		nodes: make(map[string]*graph.Node, len(s.nodes)),
		edges: make(map[string]*graph.Edge, len(s.edges)),
		order: slices.Clone(s.order),
	}
	for id, n := range s.nodes {
		c.nodes[id] = n.Clone()
	}
	for id, e := range s.edges {
		c.edges[id] = e.Clone()
	}
	return c
}

// Store holds the committed graph.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: &state{
		nodes: map[string]*graph.Node{},
		edges: map[string]*graph.Edge{},
	}}
}

// Begin locks the store and returns a transaction working on a private copy of
// the committed state.
func (s *Store) Begin(ctx context.Context) (graph.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{store: s, work: s.state.clone()}, nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }

// NodeCount returns the number of committed nodes.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.nodes)
}

// EdgeCount returns the number of committed edges.
func (s *Store) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.edges)
}

// Tx is a memgraph transaction.
type Tx struct {
	store *Store
	work  *state
	done  bool
}

func (tx *Tx) check(ctx context.Context) error {
	if tx.done {
		return graph.ErrTxDone
	}
	return ctx.Err()
}

func (tx *Tx) Node(ctx context.Context, id string) (*graph.Node, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	n, ok := tx.work.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

func (tx *Tx) CreateNode(ctx context.Context, labels []string, props map[string]any) (*graph.Node, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	n := &graph.Node{
		ID:     uuid.New().String(),
		Labels: slices.Clone(labels),
		Props:  maps.Clone(props),
	}
	if n.Props == nil {
		n.Props = map[string]any{}
	}
	tx.work.nodes[n.ID] = n
	return n.Clone(), nil
}

func (tx *Tx) SetNodeProperties(ctx context.Context, id string, props map[string]any) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	n, ok := tx.work.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	maps.Copy(n.Props, props)
	return nil
}

func (tx *Tx) DeleteNode(ctx context.Context, id string) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	if _, ok := tx.work.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	tx.work.order = slices.DeleteFunc(tx.work.order, func(edgeID string) bool {
		e := tx.work.edges[edgeID]
		if e.StartID == id || e.EndID == id {
			delete(tx.work.edges, edgeID)
			return true
		}
		return false
	})
	delete(tx.work.nodes, id)
	return nil
}

func (tx *Tx) Edges(ctx context.Context, nodeID string, dir graph.Direction, relType string) ([]*graph.Edge, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	var out []*graph.Edge
	for _, id := range tx.work.order {
		e := tx.work.edges[id]
		if relType != "" && e.Type != relType {
			continue
		}
		if matches(e, nodeID, dir) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func matches(e *graph.Edge, nodeID string, dir graph.Direction) bool {
	switch dir {
	case graph.Outgoing:
		return e.StartID == nodeID
	case graph.Incoming:
		return e.EndID == nodeID
	default:
		return e.StartID == nodeID || e.EndID == nodeID
	}
}

func (tx *Tx) CreateEdge(ctx context.Context, relType, startID, endID string, props map[string]any) (*graph.Edge, error) {
	if err := tx.check(ctx); err != nil {
		return nil, err
	}
	for _, id := range []string{startID, endID} {
		if _, ok := tx.work.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
		}
	}
	e := &graph.Edge{
		ID:      uuid.New().String(),
		Type:    relType,
		StartID: startID,
		EndID:   endID,
		Props:   maps.Clone(props),
	}
	if e.Props == nil {
		e.Props = map[string]any{}
	}
	tx.work.edges[e.ID] = e
	tx.work.order = append(tx.work.order, e.ID)
	return e.Clone(), nil
}

func (tx *Tx) SetEdgeProperties(ctx context.Context, edgeID string, props map[string]any) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	e, ok := tx.work.edges[edgeID]
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	maps.Copy(e.Props, props)
	return nil
}

func (tx *Tx) DeleteEdge(ctx context.Context, edgeID string) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	if _, ok := tx.work.edges[edgeID]; !ok {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	delete(tx.work.edges, edgeID)
	tx.work.order = slices.DeleteFunc(tx.work.order, func(id string) bool { return id == edgeID })
	return nil
}

// Commit publishes the transaction's state and releases the store.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return graph.ErrTxDone
	}
	tx.done = true
	tx.store.state = tx.work
	tx.store.mu.Unlock()
	return nil
}

// Rollback discards the transaction's state and releases the store.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return graph.ErrTxDone
	}
	tx.done = true
	tx.work = nil
	tx.store.mu.Unlock()
	return nil
}
