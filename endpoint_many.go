package neolink

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// ManyStart reads the sources of a target entity.
type ManyStart struct{ endpoint }

// ManyEnd reads the targets of a source entity.
type ManyEnd struct{ endpoint }

func (ep *ManyStart) side() side {
	return side{dir: graph.Incoming, ownerType: ep.rel.TargetType, farType: ep.rel.SourceType}
}

func (ep *ManyEnd) side() side {
	return side{dir: graph.Outgoing, ownerType: ep.rel.SourceType, farType: ep.rel.TargetType, ownerIsSource: true}
}

func (ep *ManyStart) Direction() graph.Direction { return graph.Incoming }
func (ep *ManyEnd) Direction() graph.Direction   { return graph.Outgoing }
func (ep *ManyStart) Multiplicity() Multiplicity { return Many }
func (ep *ManyEnd) Multiplicity() Multiplicity   { return Many }

// Get returns the sources of target in store order, or sorted when pred
// carries a comparator.
func (ep *ManyStart) Get(ctx context.Context, s *Session, target *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.getMany(ctx, s, target, pred, ep.side())
}

// Get returns the targets of source in store order, or sorted when pred
// carries a comparator.
func (ep *ManyEnd) Get(ctx context.Context, s *Session, source *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.getMany(ctx, s, source, pred, ep.side())
}

// Set makes the sources of target exactly values. Edges to entities that stay
// are kept; see setMany.
func (ep *ManyStart) Set(ctx context.Context, s *Session, target, values any) ([]*graph.Edge, error) {
	return ep.setMany(ctx, s, target, values, ep.side())
}

// Set makes the targets of source exactly values. Edges to entities that stay
// are kept; see setMany.
func (ep *ManyEnd) Set(ctx context.Context, s *Session, source, values any) ([]*graph.Edge, error) {
	return ep.setMany(ctx, s, source, values, ep.side())
}

func (ep *ManyStart) Read(ctx context.Context, s *Session, owner *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.Get(ctx, s, owner, pred)
}

func (ep *ManyEnd) Read(ctx context.Context, s *Session, owner *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.Get(ctx, s, owner, pred)
}

func (ep *ManyStart) Write(ctx context.Context, s *Session, owner, value any) ([]*graph.Edge, error) {
	return ep.Set(ctx, s, owner, value)
}

func (ep *ManyEnd) Write(ctx context.Context, s *Session, owner, value any) ([]*graph.Edge, error) {
	return ep.Set(ctx, s, owner, value)
}

func (ep endpoint) getMany(ctx context.Context, s *Session, owner *Entity, pred *Predicate, sd side) ([]*Entity, error) {
	if owner == nil {
		return nil, nil
	}
	all, err := ep.getMultiple(ctx, s, owner, sd, pred)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, len(all))
	for i, r := range all {
		out[i] = r.entity
	}
	if pred != nil && pred.Compare != nil {
		slices.SortStableFunc(out, pred.Compare)
	}
	return out, nil
}

// wanted is one resolved element of a many-valent set.
type wanted struct {
	entity *Entity
	create map[string]any
	props  map[string]any
}

// setMany reconciles the owner's edges with values:
//
//  1. every input is resolved and type-checked before anything is written,
//  2. duplicates collapse onto their first occurrence,
//  3. edges to current entities missing from values are deleted, except for
//     entities the session may not see,
//  4. edges to entities that stay are kept, their edge properties merged with
//     any foreign properties supplied for them,
//  5. the remaining entities get new edges, each after EnsureCardinality.
//
// Only the newly created edges are returned.
func (ep endpoint) setMany(ctx context.Context, s *Session, ownerIn, values any, sd side) ([]*graph.Edge, error) {
	ownerProps := map[string]any{}
	owner, err := ep.resolveOwner(ctx, s, ownerIn, sd, ownerProps)
	if err != nil {
		return nil, err
	}

	var (
		desired []*wanted
		byID    = map[string]*wanted{}
	)
	for _, v := range asValues(values) {
		w := &wanted{props: map[string]any{}}
		if w.entity, w.create, err = ep.unwrap(ctx, s, v, w.props); err != nil {
			return nil, err
		}
		if w.create != nil {
			if !ep.canAutocreate(sd) {
				return nil, ErrNotFound.WithRelation(ep.rel.Name).WithMessage("autocreation of %s is not enabled", sd.farType.Name)
			}
			desired = append(desired, w)
			continue
		}
		if w.entity == nil {
			continue
		}
		if err := ep.rel.checkSide(w.entity, sd.farType); err != nil {
			return nil, err
		}
		if prev, ok := byID[w.entity.ID]; ok {
			maps.Copy(prev.props, w.props)
			continue
		}
		byID[w.entity.ID] = w
		desired = append(desired, w)
	}

	// Hidden entities take part in matching so an edge that already exists is
	// never created again, but they are never removed.
	current, err := ep.linked(ctx, s, owner, sd)
	if err != nil {
		return nil, err
	}
	currentEdges := map[string][]*graph.Edge{}
	var existing []*Entity
	for _, r := range current {
		if _, seen := currentEdges[r.entity.ID]; !seen {
			existing = append(existing, r.entity)
		}
		currentEdges[r.entity.ID] = append(currentEdges[r.entity.ID], r.edge)
	}
	var desiredEntities []*Entity
	for _, w := range desired {
		if w.entity != nil {
			desiredEntities = append(desiredEntities, w.entity)
		}
	}
	kept := map[string]bool{}
	for _, e := range intersect(existing, desiredEntities) {
		kept[e.ID] = true
	}

	for _, e := range existing {
		if kept[e.ID] || !s.allowed(e) {
			continue
		}
		for _, edge := range currentEdges[e.ID] {
			if err := ep.rel.deleteEdge(ctx, s, edge, "removed from set"); err != nil {
				return nil, err
			}
		}
	}
	for _, w := range desired {
		if w.entity == nil || !kept[w.entity.ID] || len(w.props) == 0 {
			continue
		}
		for _, edge := range currentEdges[w.entity.ID] {
			if err := s.Tx.SetEdgeProperties(ctx, edge.ID, w.props); err != nil {
				return nil, storeErr(err)
			}
		}
	}

	var created []*graph.Edge
	for _, w := range desired {
		if w.entity != nil && kept[w.entity.ID] {
			continue
		}
		far := w.entity
		if far == nil {
			if far, err = s.create(ctx, sd.farType, w.create); err != nil {
				return nil, err
			}
		}
		source, target := sd.orient(owner, far)
		if err := ep.rel.EnsureCardinality(ctx, s, source, target); err != nil {
			return nil, err
		}
		props := maps.Clone(ownerProps)
		maps.Copy(props, ep.notionProperties(s, NotionKey{Relation: ep.rel.Name, OwnerID: owner.ID, OtherID: far.ID}))
		maps.Copy(props, w.props)
		edge, err := ep.rel.createEdge(ctx, s, source, target, props)
		if err != nil {
			return nil, err
		}
		created = append(created, edge)
	}

	s.Logger.Debug("reconciled endpoint",
		slog.String("relation", ep.rel.Name),
		slog.String("owner", owner.ID),
		slog.Int("kept", len(kept)),
		slog.Int("created", len(created)))
	return created, nil
}
