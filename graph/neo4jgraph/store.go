package neo4jgraph

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// idProp is the property holding the engine-level identity of nodes and relationships.
const idProp = "id"

// BaseLabel is carried by every node the store creates, next to its type
// labels. Lookups by id match on it so they use one index whatever the type.
const BaseLabel = "NeolinkNode"

// byID matches node n by id through the BaseLabel index.
const byID = "(n:" + BaseLabel + " {id: $id})"

// Store implements graph.Store on top of a TxBeginner.
type Store struct {
	beginner TxBeginner
	closer   func(ctx context.Context) error
}

// NewStore wraps beginner. Pass an *Executor in production; Close closes its driver.
func NewStore(beginner TxBeginner) *Store {
	s := &Store{beginner: beginner}
	if e, ok := beginner.(*Executor); ok {
		s.closer = e.Close
	}
	return s
}

// EnsureIndexes creates the range index on the id property for BaseLabel,
// which every id lookup uses, and for every label in labels. It runs in its
// own transaction.
func (s *Store) EnsureIndexes(ctx context.Context, labels []string) error {
	tx, err := s.beginner.BeginTx(ctx)
	if err != nil {
		return err
	}
	for _, label := range append([]string{BaseLabel}, labels...) {
		name := "neolink_" + strings.ToLower(label) + "_id"
		query := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", quote(name), quote(label), idProp)
		if _, err := tx.Run(ctx, query, nil); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("creating index for %s: %w", label, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Begin(ctx context.Context) (graph.Tx, error) {
	tx, err := s.beginner.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{run: tx}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}

// Tx translates graph.Tx calls into Cypher run on one explicit transaction.
type Tx struct {
	run DBTx
}

func (t *Tx) Node(ctx context.Context, id string) (*graph.Node, error) {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", BaseLabel).WithProperties(map[string]any{idProp: id})).
		Return("n").
		Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}

	result, err := t.run.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return recordNode(result.Records[0], "n")
}

func (t *Tx) CreateNode(ctx context.Context, labels []string, props map[string]any) (*graph.Node, error) {
	all := maps.Clone(props)
	if all == nil {
		all = map[string]any{}
	}
	all[idProp] = uuid.New().String()

	var sb strings.Builder
	sb.WriteString("CREATE (n:" + BaseLabel)
	for _, l := range labels {
		sb.WriteString(":")
		sb.WriteString(quote(l))
	}
	sb.WriteString(" $props) RETURN n")

	result, err := t.run.Run(ctx, sb.String(), map[string]any{"props": all})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("create node returned no record")
	}
	return recordNode(result.Records[0], "n")
}

func (t *Tx) SetNodeProperties(ctx context.Context, id string, props map[string]any) error {
	result, err := t.run.Run(ctx,
		"MATCH "+byID+" SET n += $props RETURN n.id AS id",
		map[string]any{"id": id, "props": withoutID(props)},
	)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return nil
}

func (t *Tx) DeleteNode(ctx context.Context, id string) error {
	if _, err := t.Node(ctx, id); err != nil {
		return err
	}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", BaseLabel).WithProperties(map[string]any{idProp: id})).
		DetachDelete("n").
		Build()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}
	_, err = t.run.Run(ctx, query, params)
	return err
}

func (t *Tx) Edges(ctx context.Context, nodeID string, dir graph.Direction, relType string) ([]*graph.Edge, error) {
	rel := "[r]"
	if relType != "" {
		rel = "[r:" + quote(relType) + "]"
	}
	var pattern string
	switch dir {
	case graph.Outgoing:
		pattern = byID + "-" + rel + "->(m)"
	case graph.Incoming:
		pattern = byID + "<-" + rel + "-(m)"
	default:
		pattern = byID + "-" + rel + "-(m)"
	}
	query := "MATCH " + pattern + " RETURN r, startNode(r).id AS start, endNode(r).id AS end"

	result, err := t.run.Run(ctx, query, map[string]any{"id": nodeID})
	if err != nil {
		return nil, err
	}
	edges := make([]*graph.Edge, 0, len(result.Records))
	for _, rec := range result.Records {
		e, err := recordEdge(rec)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func (t *Tx) CreateEdge(ctx context.Context, relType, startID, endID string, props map[string]any) (*graph.Edge, error) {
	all := withoutID(props)
	all[idProp] = uuid.New().String()

	query := "MATCH (a:" + BaseLabel + " {id: $start}) MATCH (b:" + BaseLabel + " {id: $end}) CREATE (a)-[r:" + quote(relType) + " $props]->(b) " +
		"RETURN r, a.id AS start, b.id AS end"
	result, err := t.run.Run(ctx, query, map[string]any{"start": startID, "end": endID, "props": all})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%w: %s or %s", graph.ErrNodeNotFound, startID, endID)
	}
	return recordEdge(result.Records[0])
}

func (t *Tx) SetEdgeProperties(ctx context.Context, edgeID string, props map[string]any) error {
	result, err := t.run.Run(ctx,
		"MATCH ()-[r {id: $id}]->() SET r += $props RETURN r.id AS id",
		map[string]any{"id": edgeID, "props": withoutID(props)},
	)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	return nil
}

func (t *Tx) DeleteEdge(ctx context.Context, edgeID string) error {
	result, err := t.run.Run(ctx,
		"MATCH ()-[r {id: $id}]->() DELETE r RETURN $id AS id",
		map[string]any{"id": edgeID},
	)
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.run.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.run.Rollback(ctx) }

func recordNode(rec *neo4j.Record, key string) (*graph.Node, error) {
	value, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("could not find return value '%s' in query result", key)
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("return value '%s' is not a node", key)
	}
	id, _ := node.Props[idProp].(string)
	labels := make([]string, 0, len(node.Labels))
	for _, l := range node.Labels {
		if l != BaseLabel {
			labels = append(labels, l)
		}
	}
	return &graph.Node{
		ID:     id,
		Labels: labels,
		Props:  withoutID(node.Props),
	}, nil
}

func recordEdge(rec *neo4j.Record) (*graph.Edge, error) {
	value, ok := rec.Get("r")
	if !ok {
		return nil, fmt.Errorf("could not find return value 'r' in query result")
	}
	rel, ok := value.(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("return value 'r' is not a relationship")
	}
	start, _ := rec.Get("start")
	end, _ := rec.Get("end")

	e := &graph.Edge{Type: rel.Type, Props: withoutID(rel.Props)}
	e.ID, _ = rel.Props[idProp].(string)
	e.StartID, _ = start.(string)
	e.EndID, _ = end.(string)
	return e, nil
}

func withoutID(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k != idProp {
			out[k] = v
		}
	}
	return out
}

// quote escapes a label or relationship type for use as a Cypher identifier.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
