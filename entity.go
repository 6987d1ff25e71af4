package neolink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// Entity is a typed view of a graph node.
type Entity struct {
	ID   string
	Type *NodeType
	Node *graph.Node
	// EdgeID is the edge the entity was reached through, empty if loaded directly.
	EdgeID string
}

// Prop returns a node property.
func (e *Entity) Prop(name string) any {
	if e == nil || e.Node == nil {
		return nil
	}
	return e.Node.Props[name]
}

func (e *Entity) String() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s)", e.Type, e.ID)
}

// Decorated wraps an entity with extra properties to be stored on the edge
// that links it.
type Decorated struct {
	Entity     *Entity
	Properties map[string]any
}

// Ref refers to an entity by id. With an empty ID and a non-nil Create map it
// asks the endpoint to autocreate the entity, which the relation's autocreation
// flag must allow. Properties are edge properties, as on Decorated.
type Ref struct {
	ID         string
	Create     map[string]any
	Properties map[string]any
}

// Predicate filters and optionally orders related entities on read.
type Predicate struct {
	Accept  func(*Entity) bool
	Compare func(a, b *Entity) int
}

func (p *Predicate) accepts(e *Entity) bool {
	return p == nil || p.Accept == nil || p.Accept(e)
}

// Session carries the per-operation state shared by every endpoint call: the
// store transaction, the notion property store and the permission decision.
// A Session is used by one operation at a time.
type Session struct {
	Tx      graph.Tx
	Notions *NotionStore
	// Allow decides whether an entity is visible; nil allows everything.
	Allow  func(*Entity) bool
	Logger *slog.Logger

	registry *Registry
}

// NewSession returns a session bound to tx. registry resolves node types for
// loaded nodes.
func NewSession(tx graph.Tx, registry *Registry, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Tx:       tx,
		Notions:  NewNotionStore(),
		Logger:   logger,
		registry: registry,
	}
}

func (s *Session) allowed(e *Entity) bool {
	return s.Allow == nil || s.Allow(e)
}

// Load resolves an entity by id.
func (s *Session) Load(ctx context.Context, id string) (*Entity, error) {
	n, err := s.Tx.Node(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return s.instantiate(n, "")
}

// instantiate wraps a raw node into a typed entity, edgeID being the edge it
// was reached through.
func (s *Session) instantiate(n *graph.Node, edgeID string) (*Entity, error) {
	t := s.registry.typeForLabels(n.Labels)
	if t == nil {
		return nil, ErrTypeMismatch.WithMessage("node %s has no registered type (labels %v)", n.ID, n.Labels)
	}
	return &Entity{ID: n.ID, Type: t, Node: n, EdgeID: edgeID}, nil
}

// create makes a new node of type t with props converted through the type's
// declared properties.
func (s *Session) create(ctx context.Context, t *NodeType, props map[string]any) (*Entity, error) {
	converted := make(map[string]any, len(props))
	for k, v := range props {
		if key, ok := t.Property(k); ok {
			cv, err := key.Convert(v)
			if err != nil {
				return nil, err
			}
			v = cv
		}
		converted[k] = v
	}
	n, err := s.Tx.CreateNode(ctx, t.Labels(), converted)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", t.Name, err)
	}
	s.Logger.Debug("created node", slog.String("type", t.Name), slog.String("id", n.ID))
	return &Entity{ID: n.ID, Type: t, Node: n}, nil
}
