package neolink

import (
	"context"
	"log/slog"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// EnsureCardinality prepares the graph for a new edge source->target. It runs
// before every edge creation, never on reads. Depending on the relation kind it
//
//   - OneToOne:   removes source's outgoing and target's incoming edge,
//   - OneToMany:  removes target's incoming edge,
//   - ManyToOne:  removes source's outgoing edge,
//   - ManyToMany: rejects an existing source->target edge with
//     ErrDuplicateRelationship when PreventDuplicates is set.
//
// Only edges whose far node is of the relation's declared type on that side
// are touched, so relations sharing an edge type with different node types do
// not interfere. Either entity may be nil, which removes the corresponding
// edge without a replacement.
func (r *Relation) EnsureCardinality(ctx context.Context, s *Session, source, target *Entity) error {
	switch r.Kind {
	case OneToOne:
		if err := r.releaseOutgoing(ctx, s, source); err != nil {
			return err
		}
		return r.releaseIncoming(ctx, s, target)
	case OneToMany:
		return r.releaseIncoming(ctx, s, target)
	case ManyToOne:
		return r.releaseOutgoing(ctx, s, source)
	default:
		return r.rejectDuplicate(ctx, s, source, target)
	}
}

// releaseOutgoing deletes the edges of this relation leaving source.
func (r *Relation) releaseOutgoing(ctx context.Context, s *Session, source *Entity) error {
	if source == nil {
		return nil
	}
	return r.release(ctx, s, source, graph.Outgoing, r.TargetType)
}

// releaseIncoming deletes the edges of this relation arriving at target.
func (r *Relation) releaseIncoming(ctx context.Context, s *Session, target *Entity) error {
	if target == nil {
		return nil
	}
	return r.release(ctx, s, target, graph.Incoming, r.SourceType)
}

func (r *Relation) release(ctx context.Context, s *Session, owner *Entity, dir graph.Direction, farType *NodeType) error {
	edges, err := s.Tx.Edges(ctx, owner.ID, dir, r.Name)
	if err != nil {
		return storeErr(err)
	}
	filter := newOtherNodeTypeFilter(owner.ID, farType, nil)
	for _, e := range edges {
		ok, _, err := filter.Accept(ctx, s.Tx, e)
		if err != nil {
			return storeErr(err)
		}
		if !ok {
			continue
		}
		s.Logger.Debug("superseding edge",
			slog.String("relation", r.Name),
			slog.String("kind", r.Kind.String()),
			slog.String("owner", owner.ID),
			slog.String("direction", dir.String()))
		if err := r.deleteEdge(ctx, s, e, "cardinality"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relation) rejectDuplicate(ctx context.Context, s *Session, source, target *Entity) error {
	if !r.PreventDuplicates || source == nil || target == nil {
		return nil
	}
	edges, err := s.Tx.Edges(ctx, source.ID, graph.Outgoing, r.Name)
	if err != nil {
		return storeErr(err)
	}
	for _, e := range edges {
		if e.EndID == target.ID {
			return ErrDuplicateRelationship.WithRelation(r.Name).
				WithMessage("%s already linked to %s", source, target)
		}
	}
	return nil
}
