// Package graph defines the property-graph storage contract the relation
// engine runs against. A backend supplies a Store that opens transactions; all
// reads and writes an operation performs go through one Tx.
//
// Backends live in the subpackages memgraph (in-memory), sqlitegraph (SQLite)
// and neo4jgraph (Neo4j).
package graph

import (
	"context"
	"errors"
	"maps"
	"slices"
)

var (
	// ErrNodeNotFound is returned when an id does not resolve to a live node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeNotFound is returned when an edge id does not resolve to a live edge.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrTxDone is returned by operations on a committed or rolled back transaction.
	ErrTxDone = errors.New("transaction already finished")
)

// Direction selects which edges of a node are traversed.
type Direction int

const (
	// Outgoing selects edges that start at the node.
	Outgoing Direction = iota
	// Incoming selects edges that end at the node.
	Incoming
	// Both selects edges in either direction.
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "OUTGOING"
	case Incoming:
		return "INCOMING"
	case Both:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// Reverse returns the opposite direction. Both is its own reverse.
func (d Direction) Reverse() Direction {
	switch d {
	case Outgoing:
		return Incoming
	case Incoming:
		return Outgoing
	default:
		return d
	}
}

// Node is a vertex of the property graph.
type Node struct {
	// ID is the store-assigned identity of the node.
	ID string `json:"id"`

	// Labels holds the type labels attached to the node.
	Labels []string `json:"labels"`

	// Props is the key-value property mapping of the node.
	Props map[string]any `json:"properties"`
}

// HasLabel reports whether the node carries label.
func (n *Node) HasLabel(label string) bool {
	return slices.Contains(n.Labels, label)
}

// Clone returns a copy of n that shares no mutable state with it.
func (n *Node) Clone() *Node {
	return &Node{
		ID:     n.ID,
		Labels: slices.Clone(n.Labels),
		Props:  cloneProps(n.Props),
	}
}

// Edge is a directed, typed relationship between two nodes. It is the only
// place relationship-local properties live.
type Edge struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	StartID string         `json:"source"`
	EndID   string         `json:"target"`
	Props   map[string]any `json:"properties"`
}

// OtherID returns the id of the node at the far side of the edge as seen
// from nodeID.
func (e *Edge) OtherID(nodeID string) string {
	if e.StartID == nodeID {
		return e.EndID
	}
	return e.StartID
}

// Clone returns a copy of e that shares no mutable state with it.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Props = cloneProps(e.Props)
	return &c
}

// Subgraph is a de-duplicated collection of nodes and edges, the shape most
// graph visualisation front ends consume.
type Subgraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	seenNodes map[string]bool
	seenEdges map[string]bool
}

// AddNode appends n unless a node with the same id is already present.
func (g *Subgraph) AddNode(n *Node) bool {
	if g.seenNodes == nil {
		g.seenNodes = map[string]bool{}
	}
	if g.seenNodes[n.ID] {
		return false
	}
	g.seenNodes[n.ID] = true
	g.Nodes = append(g.Nodes, n)
	return true
}

// AddEdge appends e unless an edge with the same id is already present.
func (g *Subgraph) AddEdge(e *Edge) bool {
	if g.seenEdges == nil {
		g.seenEdges = map[string]bool{}
	}
	if g.seenEdges[e.ID] {
		return false
	}
	g.seenEdges[e.ID] = true
	g.Edges = append(g.Edges, e)
	return true
}

// Store opens transactions against a property graph.
type Store interface {
	// Begin starts a new read-write transaction.
	Begin(ctx context.Context) (Tx, error)
	// Close releases the resources held by the store.
	Close(ctx context.Context) error
}

// Tx is a unit of work against the graph. Aborting it with Rollback discards
// every mutation made through it.
type Tx interface {
	// Node loads a node by id. The error wraps ErrNodeNotFound when the id
	// does not resolve.
	Node(ctx context.Context, id string) (*Node, error)
	CreateNode(ctx context.Context, labels []string, props map[string]any) (*Node, error)
	SetNodeProperties(ctx context.Context, id string, props map[string]any) error
	// DeleteNode removes the node together with every edge attached to it.
	DeleteNode(ctx context.Context, id string) error

	// Edges lists the edges of a node in the given direction, in store order.
	// An empty relType selects edges of every type.
	Edges(ctx context.Context, nodeID string, dir Direction, relType string) ([]*Edge, error)
	CreateEdge(ctx context.Context, relType, startID, endID string, props map[string]any) (*Edge, error)
	// SetEdgeProperties merges props into the edge's property mapping.
	SetEdgeProperties(ctx context.Context, edgeID string, props map[string]any) error
	DeleteEdge(ctx context.Context, edgeID string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return maps.Clone(props)
}
