package neolink

import (
	"context"
	"log/slog"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// RelationKind is the multiplicity combination of a relation.
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToOne
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "OneToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToOne:
		return "ManyToOne"
	default:
		return "ManyToMany"
	}
}

func kindOf(source, target Multiplicity) RelationKind {
	switch {
	case source == One && target == One:
		return OneToOne
	case source == One:
		return OneToMany
	case target == One:
		return ManyToOne
	default:
		return ManyToMany
	}
}

// Relation is the immutable descriptor of a relation type. Registry builds
// relations; their fields must not be modified afterwards.
type Relation struct {
	// Name is the edge type, e.g. HAS_TAG.
	Name string

	SourceType         *NodeType
	TargetType         *NodeType
	SourceMultiplicity Multiplicity
	TargetMultiplicity Multiplicity
	Kind               RelationKind

	Cascade           CascadeFlag
	Autocreate        AutocreateFlag
	PreventDuplicates bool

	// SourceProperty is the key on the target type that reads the source
	// endpoint; TargetProperty is the key on the source type that reads the
	// target endpoint.
	SourceProperty string
	TargetProperty string
	// SourceIDProperty and TargetIDProperty are optional id-valued views of
	// the same endpoints.
	SourceIDProperty string
	TargetIDProperty string

	// Properties declares the edge properties. The public ones are accepted
	// as notion properties.
	Properties []PropertyKey

	registry *Registry
}

// Source returns the endpoint that reads a target's source side.
func (r *Relation) Source() Endpoint {
	if r.SourceMultiplicity == One {
		return &OneStart{endpoint{rel: r}}
	}
	return &ManyStart{endpoint{rel: r}}
}

// Target returns the endpoint that reads a source's target side.
func (r *Relation) Target() Endpoint {
	if r.TargetMultiplicity == One {
		return &OneEnd{endpoint{rel: r}}
	}
	return &ManyEnd{endpoint{rel: r}}
}

// Property returns a declared edge property.
func (r *Relation) Property(name string) (PropertyKey, bool) {
	for _, p := range r.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyKey{}, false
}

// isPublic reports whether name is a public declared edge property.
func (r *Relation) isPublic(name string) bool {
	p, ok := r.Property(name)
	return ok && p.Public
}

// DirectionFor tells which side of the relation a type name is on: Outgoing
// for the source type, Incoming for the target type and Both for a relation
// whose source and target types coincide. A registered subtype takes the side
// of its ancestor when the name matches neither side exactly. A type that is
// neither is a TypeMismatch.
func (r *Relation) DirectionFor(typeName string) (graph.Direction, error) {
	isSource := r.SourceType.Name == typeName
	isTarget := r.TargetType.Name == typeName
	if !isSource && !isTarget && r.registry != nil {
		if t, ok := r.registry.Type(typeName); ok {
			isSource = t.IsA(r.SourceType)
			isTarget = t.IsA(r.TargetType)
		}
	}
	switch {
	case isSource && isTarget:
		return graph.Both, nil
	case isSource:
		return graph.Outgoing, nil
	case isTarget:
		return graph.Incoming, nil
	}
	return graph.Both, ErrTypeMismatch.WithRelation(r.Name).
		WithMessage("type %s is neither source (%s) nor target (%s)", typeName, r.SourceType.Name, r.TargetType.Name)
}

// Link creates one edge from source to target after enforcing cardinality.
// It is the direct counterpart of setting a one-valent endpoint.
func (r *Relation) Link(ctx context.Context, s *Session, source, target *Entity, props map[string]any) (*graph.Edge, error) {
	if source == nil || target == nil {
		return nil, ErrNotFound.WithRelation(r.Name).WithMessage("link needs both a source and a target")
	}
	if err := r.checkSide(source, r.SourceType); err != nil {
		return nil, err
	}
	if err := r.checkSide(target, r.TargetType); err != nil {
		return nil, err
	}
	if err := r.EnsureCardinality(ctx, s, source, target); err != nil {
		return nil, err
	}
	return r.createEdge(ctx, s, source, target, props)
}

// checkSide verifies e may sit on a side declared as t.
func (r *Relation) checkSide(e *Entity, t *NodeType) error {
	if e == nil {
		return nil
	}
	if !e.Type.IsA(t) {
		return ErrTypeMismatch.WithRelation(r.Name).WithMessage("%s is not a %s", e, t.Name)
	}
	return nil
}

func (r *Relation) createEdge(ctx context.Context, s *Session, source, target *Entity, props map[string]any) (*graph.Edge, error) {
	edge, err := s.Tx.CreateEdge(ctx, r.Name, source.ID, target.ID, props)
	if err != nil {
		return nil, storeErr(err)
	}
	s.Logger.Debug("created edge",
		slog.String("relation", r.Name),
		slog.String("source", source.ID),
		slog.String("target", target.ID),
		slog.String("edge", edge.ID))
	return edge, nil
}

func (r *Relation) deleteEdge(ctx context.Context, s *Session, e *graph.Edge, reason string) error {
	if err := s.Tx.DeleteEdge(ctx, e.ID); err != nil {
		return storeErr(err)
	}
	s.Logger.Debug("deleted edge",
		slog.String("relation", r.Name),
		slog.String("source", e.StartID),
		slog.String("target", e.EndID),
		slog.String("edge", e.ID),
		slog.String("reason", reason))
	return nil
}
