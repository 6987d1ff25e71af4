package neolink

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph/memgraph"
)

const testSchema = `
types:
  - name: User
    properties:
      - {name: name, kind: string}
      - {name: age, kind: int}
  - name: Admin
    extends: [User]
  - name: Tag
    properties:
      - {name: label, kind: string}
  - name: Car
  - name: Project
  - name: Task
    properties:
      - {name: title, kind: string}
relations:
  - name: HAS_TAG
    source: User
    target: Tag
    source_multiplicity: "*"
    target_multiplicity: "*"
    source_property: users
    target_property: tags
    target_id_property: tagIds
    properties:
      - {name: weight, kind: int, public: true}
      - {name: secret, kind: string}
  - name: OWNS
    source: User
    target: Car
    source_multiplicity: "1"
    target_multiplicity: "1"
    source_property: owner
    target_property: car
    cascade: source_to_target
  - name: CONTAINS
    source: Project
    target: Task
    source_multiplicity: "1"
    target_multiplicity: "*"
    source_property: project
    target_property: tasks
    source_id_property: projectId
    cascade: constraint_based
    autocreate: source_to_target
  - name: ASSIGNED
    source: Task
    target: User
    source_multiplicity: many
    target_multiplicity: one
    source_property: assignedTasks
    target_property: assignee
  - name: FOLLOWS
    source: User
    target: User
    source_multiplicity: "*"
    target_multiplicity: "*"
    source_property: followers
    target_property: following
    prevent_duplicates: false
  - name: RELATED
    source: Tag
    target: Tag
    source_multiplicity: "*"
    target_multiplicity: "*"
    source_property: relatedFrom
    target_property: relatedTo
    cascade: always
`

type fixture struct {
	t     *testing.T
	reg   *Registry
	store *memgraph.Store
	m     *Manager
	logs  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	def, err := ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	reg, err := Build(def)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := memgraph.New()
	return &fixture{
		t:     t,
		reg:   reg,
		store: store,
		m:     NewManager(store, reg, Options{Logger: logger}),
		logs:  logs,
	}
}

// run executes fn in one committed transaction.
func (f *fixture) run(fn func(ctx context.Context, s *Session)) {
	f.t.Helper()
	err := f.m.Transact(context.Background(), func(ctx context.Context, s *Session) error {
		fn(ctx, s)
		return nil
	})
	require.NoError(f.t, err)
}

func (f *fixture) rel(name string) *Relation {
	f.t.Helper()
	r, ok := f.reg.Relation(name)
	require.True(f.t, ok, "relation %s", name)
	return r
}

func (f *fixture) create(ctx context.Context, s *Session, typeName string, props map[string]any) *Entity {
	f.t.Helper()
	e, err := f.m.NewEntity(ctx, s, typeName, props)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) edges(ctx context.Context, s *Session, id string, dir graph.Direction, relType string) []*graph.Edge {
	f.t.Helper()
	edges, err := s.Tx.Edges(ctx, id, dir, relType)
	require.NoError(f.t, err)
	return edges
}

func ids(entities []*Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

// countingTx counts edge mutations made through it and records the edges it
// updated, in call order.
type countingTx struct {
	graph.Tx
	created, deleted, updated int
	updatedIDs                []string
}

func (c *countingTx) CreateEdge(ctx context.Context, relType, startID, endID string, props map[string]any) (*graph.Edge, error) {
	c.created++
	return c.Tx.CreateEdge(ctx, relType, startID, endID, props)
}

func (c *countingTx) DeleteEdge(ctx context.Context, edgeID string) error {
	c.deleted++
	return c.Tx.DeleteEdge(ctx, edgeID)
}

func (c *countingTx) SetEdgeProperties(ctx context.Context, edgeID string, props map[string]any) error {
	c.updated++
	c.updatedIDs = append(c.updatedIDs, edgeID)
	return c.Tx.SetEdgeProperties(ctx, edgeID, props)
}
