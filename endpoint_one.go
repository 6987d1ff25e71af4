package neolink

import (
	"context"
	"maps"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// OneStart reads the single source of a target entity.
type OneStart struct{ endpoint }

// OneEnd reads the single target of a source entity.
type OneEnd struct{ endpoint }

func (ep *OneStart) side() side {
	return side{dir: graph.Incoming, ownerType: ep.rel.TargetType, farType: ep.rel.SourceType}
}

func (ep *OneEnd) side() side {
	return side{dir: graph.Outgoing, ownerType: ep.rel.SourceType, farType: ep.rel.TargetType, ownerIsSource: true}
}

func (ep *OneStart) Direction() graph.Direction { return graph.Incoming }
func (ep *OneEnd) Direction() graph.Direction   { return graph.Outgoing }
func (ep *OneStart) Multiplicity() Multiplicity { return One }
func (ep *OneEnd) Multiplicity() Multiplicity   { return One }

// Get returns the source of target, or nil when there is none.
func (ep *OneStart) Get(ctx context.Context, s *Session, target *Entity) (*Entity, error) {
	return ep.getOne(ctx, s, target, ep.side())
}

// Get returns the target of source, or nil when there is none.
func (ep *OneEnd) Get(ctx context.Context, s *Session, source *Entity) (*Entity, error) {
	return ep.getOne(ctx, s, source, ep.side())
}

// Set makes value the only source of target. A nil value just removes the
// current edge. The created edge is returned.
func (ep *OneStart) Set(ctx context.Context, s *Session, target, value any) (*graph.Edge, error) {
	return ep.setOne(ctx, s, target, value, ep.side())
}

// Set makes value the only target of source. A nil value just removes the
// current edge. The created edge is returned.
func (ep *OneEnd) Set(ctx context.Context, s *Session, source, value any) (*graph.Edge, error) {
	return ep.setOne(ctx, s, source, value, ep.side())
}

func (ep *OneStart) Read(ctx context.Context, s *Session, owner *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.readOne(ctx, s, owner, pred, ep.side())
}

func (ep *OneEnd) Read(ctx context.Context, s *Session, owner *Entity, pred *Predicate) ([]*Entity, error) {
	return ep.readOne(ctx, s, owner, pred, ep.side())
}

func (ep *OneStart) Write(ctx context.Context, s *Session, owner, value any) ([]*graph.Edge, error) {
	return singleEdge(ep.Set(ctx, s, owner, value))
}

func (ep *OneEnd) Write(ctx context.Context, s *Session, owner, value any) ([]*graph.Edge, error) {
	return singleEdge(ep.Set(ctx, s, owner, value))
}

func singleEdge(e *graph.Edge, err error) ([]*graph.Edge, error) {
	if err != nil || e == nil {
		return nil, err
	}
	return []*graph.Edge{e}, nil
}

func (ep endpoint) getOne(ctx context.Context, s *Session, owner *Entity, sd side) (*Entity, error) {
	if owner == nil {
		return nil, nil
	}
	r, err := ep.getSingle(ctx, s, owner, sd)
	if err != nil || r == nil {
		return nil, err
	}
	return r.entity, nil
}

func (ep endpoint) readOne(ctx context.Context, s *Session, owner *Entity, pred *Predicate, sd side) ([]*Entity, error) {
	e, err := ep.getOne(ctx, s, owner, sd)
	if err != nil || e == nil || !pred.accepts(e) {
		return nil, err
	}
	return []*Entity{e}, nil
}

func (ep endpoint) setOne(ctx context.Context, s *Session, ownerIn, value any, sd side) (*graph.Edge, error) {
	props := map[string]any{}
	owner, err := ep.resolveOwner(ctx, s, ownerIn, sd, props)
	if err != nil {
		return nil, err
	}
	far, create, err := ep.unwrap(ctx, s, value, props)
	if err != nil {
		return nil, err
	}
	if err := ep.rel.checkSide(far, sd.farType); err != nil {
		return nil, err
	}
	if create != nil {
		if far, err = ep.autocreate(ctx, s, sd, create); err != nil {
			return nil, err
		}
	}

	source, target := sd.orient(owner, far)
	if far == nil {
		// Removal only: release the owner's side and stop.
		return nil, ep.rel.EnsureCardinality(ctx, s, source, target)
	}
	if err := ep.rel.EnsureCardinality(ctx, s, source, target); err != nil {
		return nil, err
	}

	edgeProps := ep.notionProperties(s, NotionKey{Relation: ep.rel.Name, OwnerID: owner.ID, OtherID: far.ID})
	if edgeProps == nil {
		edgeProps = map[string]any{}
	}
	maps.Copy(edgeProps, props)
	return ep.rel.createEdge(ctx, s, source, target, edgeProps)
}
