package neolink

import (
	"context"
	"log/slog"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// Delete removes e and its edges, then deletes the related entities the
// relations' cascade flags reach:
//
//   - CascadeSourceToTarget: the targets of a deleted source,
//   - CascadeTargetToSource: the sources of a deleted target,
//   - CascadeAlways: both,
//   - CascadeConstraintBased: a far entity whose own endpoint on the relation
//     is one-valent and is left without any edge.
//
// Cascades are followed transitively; every entity is deleted at most once.
func (m *Manager) Delete(ctx context.Context, s *Session, e *Entity) error {
	if e == nil {
		return ErrNotFound.WithMessage("nothing to delete")
	}
	deleted := map[string]bool{}
	queue := []*Entity{e}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if deleted[cur.ID] {
			continue
		}
		deleted[cur.ID] = true

		next, err := m.cascadeTargets(ctx, s, cur, deleted)
		if err != nil {
			return err
		}
		if err := s.Tx.DeleteNode(ctx, cur.ID); err != nil {
			return storeErr(err)
		}
		s.Logger.Debug("deleted node",
			slog.String("type", cur.Type.Name),
			slog.String("id", cur.ID),
			slog.Int("cascading", len(next)))
		queue = append(queue, next...)
	}
	return nil
}

// cascadeTargets returns the entities whose deletion follows from deleting e.
func (m *Manager) cascadeTargets(ctx context.Context, s *Session, e *Entity, deleted map[string]bool) ([]*Entity, error) {
	var out []*Entity
	for _, rel := range m.registry.Relations() {
		if rel.Cascade == CascadeNone {
			continue
		}
		if e.Type.IsA(rel.SourceType) && rel.cascadesFrom(true) {
			far, err := rel.cascadeFar(ctx, s, e, graph.Outgoing, rel.TargetType, deleted)
			if err != nil {
				return nil, err
			}
			out = append(out, far...)
		}
		if e.Type.IsA(rel.TargetType) && rel.cascadesFrom(false) {
			far, err := rel.cascadeFar(ctx, s, e, graph.Incoming, rel.SourceType, deleted)
			if err != nil {
				return nil, err
			}
			out = append(out, far...)
		}
	}
	return out, nil
}

// cascadesFrom reports whether deleting an entity on the source (or target)
// side can cascade through r.
func (r *Relation) cascadesFrom(source bool) bool {
	switch r.Cascade {
	case CascadeAlways, CascadeConstraintBased:
		return true
	case CascadeSourceToTarget:
		return source
	case CascadeTargetToSource:
		return !source
	}
	return false
}

func (r *Relation) cascadeFar(ctx context.Context, s *Session, e *Entity, dir graph.Direction, farType *NodeType, deleted map[string]bool) ([]*Entity, error) {
	if r.Cascade == CascadeConstraintBased && !r.requiredFrom(dir) {
		return nil, nil
	}
	edges, err := s.Tx.Edges(ctx, e.ID, dir, r.Name)
	if err != nil {
		return nil, storeErr(err)
	}
	filter := newOtherNodeTypeFilter(e.ID, farType, nil)
	var out []*Entity
	for _, edge := range edges {
		ok, node, err := filter.Accept(ctx, s.Tx, edge)
		if err != nil {
			return nil, storeErr(err)
		}
		if !ok || deleted[node.ID] {
			continue
		}
		if r.Cascade == CascadeConstraintBased {
			orphan, err := r.orphaned(ctx, s, node.ID, dir.Reverse(), deleted)
			if err != nil {
				return nil, err
			}
			if !orphan {
				continue
			}
		}
		far, err := s.instantiate(node, edge.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, far)
	}
	return out, nil
}

// requiredFrom reports whether the far entities reached in dir hold a
// one-valent endpoint towards the deleted side, so losing their last edge
// leaves them without the entity they need.
func (r *Relation) requiredFrom(dir graph.Direction) bool {
	if dir == graph.Outgoing {
		return r.SourceMultiplicity == One
	}
	return r.TargetMultiplicity == One
}

// orphaned reports whether node keeps no edge of r in dir once the entities
// in deleted are gone.
func (r *Relation) orphaned(ctx context.Context, s *Session, nodeID string, dir graph.Direction, deleted map[string]bool) (bool, error) {
	edges, err := s.Tx.Edges(ctx, nodeID, dir, r.Name)
	if err != nil {
		return false, storeErr(err)
	}
	for _, e := range edges {
		if !deleted[e.OtherID(nodeID)] {
			return false, nil
		}
	}
	return true, nil
}
