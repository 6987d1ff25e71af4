package neolink

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// Endpoint is one side of a relation as seen from an entity on the other
// side. Endpoints are stateless; Relation.Source and Relation.Target build
// them on demand.
//
// Read and Write are multiplicity-neutral: Read returns zero or one entity for
// one-valent endpoints, and Write accepts a single value for them and a slice
// for many-valent ones. The concrete types (OneStart, OneEnd, ManyStart,
// ManyEnd) offer typed Get and Set.
type Endpoint interface {
	Relation() *Relation
	// Direction is the edge direction traversed from the owner.
	Direction() graph.Direction
	Multiplicity() Multiplicity
	Read(ctx context.Context, s *Session, owner *Entity, pred *Predicate) ([]*Entity, error)
	Write(ctx context.Context, s *Session, owner, value any) ([]*graph.Edge, error)
}

// side fixes the orientation of an endpoint: the owner's type, the far type,
// and whether the owner is the edge's start node.
type side struct {
	dir           graph.Direction
	ownerType     *NodeType
	farType       *NodeType
	ownerIsSource bool
}

func (sd side) orient(owner, far *Entity) (source, target *Entity) {
	if sd.ownerIsSource {
		return owner, far
	}
	return far, owner
}

type endpoint struct {
	rel *Relation
}

func (ep endpoint) Relation() *Relation { return ep.rel }

// related is a far-side entity together with the edge reaching it.
type related struct {
	entity *Entity
	edge   *graph.Edge
}

// getSingle returns the first qualifying edge and its far entity, or nil.
// More than one qualifying edge breaks the relation's multiplicity; the first
// in store order wins and the violation is logged.
func (ep endpoint) getSingle(ctx context.Context, s *Session, owner *Entity, sd side) (*related, error) {
	all, err := ep.getMultiple(ctx, s, owner, sd, nil)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	if len(all) > 1 {
		s.Logger.Warn("multiplicity violated, using first edge",
			slog.String("relation", ep.rel.Name),
			slog.String("owner", owner.ID),
			slog.String("direction", sd.dir.String()),
			slog.Int("edges", len(all)))
	}
	return &all[0], nil
}

// getMultiple returns the qualifying edges of owner in store order, skipping
// far entities the session may not see or pred rejects.
func (ep endpoint) getMultiple(ctx context.Context, s *Session, owner *Entity, sd side, pred *Predicate) ([]related, error) {
	all, err := ep.linked(ctx, s, owner, sd)
	if err != nil {
		return nil, err
	}
	var out []related
	for _, r := range all {
		if s.allowed(r.entity) && pred.accepts(r.entity) {
			out = append(out, r)
		}
	}
	return out, nil
}

// linked returns every edge of owner whose far node is of the side's type,
// visible to the session or not.
func (ep endpoint) linked(ctx context.Context, s *Session, owner *Entity, sd side) ([]related, error) {
	edges, err := s.Tx.Edges(ctx, owner.ID, sd.dir, ep.rel.Name)
	if err != nil {
		return nil, storeErr(err)
	}
	filter := newOtherNodeTypeFilter(owner.ID, sd.farType, nil)
	var out []related
	for _, e := range edges {
		ok, node, err := filter.Accept(ctx, s.Tx, e)
		if err != nil {
			return nil, storeErr(err)
		}
		if !ok {
			continue
		}
		far, err := s.instantiate(node, e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, related{entity: far, edge: e})
	}
	return out, nil
}

// notionProperties returns the notion properties staged for key, restricted to
// the relation's public declared properties. nil means nothing was staged.
func (ep endpoint) notionProperties(s *Session, key NotionKey) map[string]any {
	props := s.Notions.Get(key)
	if props == nil {
		return nil
	}
	for k := range props {
		if !ep.rel.isPublic(k) {
			delete(props, k)
		}
	}
	return props
}

// unwrap resolves an endpoint input to an entity. Extra properties carried by
// Decorated and Ref inputs are converted through the relation's declared
// properties and merged into acc. A Ref asking for autocreation yields a nil
// entity and the creation properties; the caller decides whether to create.
func (ep endpoint) unwrap(ctx context.Context, s *Session, v any, acc map[string]any) (*Entity, map[string]any, error) {
	var (
		entity *Entity
		extra  map[string]any
	)
	switch x := v.(type) {
	case nil:
		return nil, nil, nil
	case *Entity:
		entity = x
	case Entity:
		entity = &x
	case Decorated:
		entity, extra = x.Entity, x.Properties
	case *Decorated:
		if x == nil {
			return nil, nil, nil
		}
		entity, extra = x.Entity, x.Properties
	case Ref:
		return ep.unwrapRef(ctx, s, x, acc)
	case *Ref:
		if x == nil {
			return nil, nil, nil
		}
		return ep.unwrapRef(ctx, s, *x, acc)
	case string:
		return ep.unwrapRef(ctx, s, Ref{ID: x}, acc)
	default:
		return nil, nil, ErrTypeMismatch.WithRelation(ep.rel.Name).WithMessage("unsupported endpoint value %T", v)
	}
	if err := ep.convertInto(acc, extra); err != nil {
		return nil, nil, err
	}
	return entity, nil, nil
}

func (ep endpoint) unwrapRef(ctx context.Context, s *Session, ref Ref, acc map[string]any) (*Entity, map[string]any, error) {
	if err := ep.convertInto(acc, ref.Properties); err != nil {
		return nil, nil, err
	}
	if ref.ID == "" {
		if ref.Create == nil {
			return nil, nil, ErrNotFound.WithRelation(ep.rel.Name).WithMessage("reference without id")
		}
		return nil, ref.Create, nil
	}
	e, err := s.Load(ctx, ref.ID)
	if err != nil {
		return nil, nil, err
	}
	return e, nil, nil
}

func (ep endpoint) convertInto(acc, extra map[string]any) error {
	for k, v := range extra {
		if key, ok := ep.rel.Property(k); ok {
			cv, err := key.Convert(v)
			if err != nil {
				return err
			}
			v = cv
		}
		if acc != nil {
			acc[k] = v
		}
	}
	return nil
}

// resolveOwner unwraps and type-checks the entity whose endpoint is accessed.
func (ep endpoint) resolveOwner(ctx context.Context, s *Session, v any, sd side, acc map[string]any) (*Entity, error) {
	owner, create, err := ep.unwrap(ctx, s, v, acc)
	if err != nil {
		return nil, err
	}
	if owner == nil || create != nil {
		return nil, ErrNotFound.WithRelation(ep.rel.Name).WithMessage("endpoint owner is required")
	}
	if err := ep.rel.checkSide(owner, sd.ownerType); err != nil {
		return nil, err
	}
	return owner, nil
}

// canAutocreate reports whether the relation lets the owner's side create
// entities on the far side.
func (ep endpoint) canAutocreate(sd side) bool {
	switch ep.rel.Autocreate {
	case AutocreateAlways:
		return true
	case AutocreateSourceToTarget:
		return sd.ownerIsSource
	case AutocreateTargetToSource:
		return !sd.ownerIsSource
	}
	return false
}

// autocreate makes a far-side entity from creation properties.
func (ep endpoint) autocreate(ctx context.Context, s *Session, sd side, props map[string]any) (*Entity, error) {
	if !ep.canAutocreate(sd) {
		return nil, ErrNotFound.WithRelation(ep.rel.Name).WithMessage("autocreation of %s is not enabled", sd.farType.Name)
	}
	return s.create(ctx, sd.farType, props)
}

// intersect returns the entities of a whose id also occurs in b, in a's order.
func intersect(a, b []*Entity) []*Entity {
	ids := make(map[string]struct{}, len(b))
	for _, e := range b {
		ids[e.ID] = struct{}{}
	}
	var out []*Entity
	for _, e := range a {
		if _, ok := ids[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// asValues spreads a many-valent input into its elements. A non-slice value
// is a single element and nil is the empty set.
func asValues(value any) []any {
	switch x := value.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []*Entity:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, id := range x {
			out[i] = id
		}
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
