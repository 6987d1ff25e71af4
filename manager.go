package neolink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/spf13/cast"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// Options configures a Manager.
type Options struct {
	// Logger receives the engine's structured logs. Defaults to slog.Default().
	Logger *slog.Logger
	// Allow is the permission decision installed on every session; nil allows
	// every entity.
	Allow func(*Entity) bool
}

// Manager is the central orchestrator of the relation layer.
// It owns the graph store and the schema registry, runs operations in store
// transactions and offers the cross-relation operations: property views,
// cascading deletes and neighbourhood reads.
type Manager struct {
	store    graph.Store
	registry *Registry
	logger   *slog.Logger
	allow    func(*Entity) bool
	// metaCache stores parsed entityMetadata to avoid costly reflection on every call.
	metaCache sync.Map
}

// NewManager creates a new Manager over store and registry.
func NewManager(store graph.Store, registry *Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, registry: registry, logger: logger, allow: opts.Allow}
}

// Registry returns the schema registry the manager resolves types against.
func (m *Manager) Registry() *Registry { return m.registry }

// Transact runs fn inside a store transaction with a fresh Session.
//
// The transaction commits when fn returns nil and rolls back when fn returns
// an error or panics; the panic is re-raised after the rollback. Partial
// multi-edge mutations made before a failure are therefore never visible.
//
// Parameters:
//   - ctx: The context for every store call made by the operation.
//   - fn: The operation. It must not retain the session after returning.
//
// Returns:
//
//	The error returned by fn, or a begin/commit failure of the store.
func (m *Manager) Transact(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s := NewSession(tx, m.registry, m.logger)
	s.Allow = m.allow

	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, graph.ErrTxDone) {
			m.logger.Warn("rollback failed", slog.Any("error", rbErr))
		}
		if r != nil {
			panic(r)
		}
	}()

	if err := fn(ctx, s); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	done = true
	return nil
}

// NewEntity creates a node of the named type.
func (m *Manager) NewEntity(ctx context.Context, s *Session, typeName string, props map[string]any) (*Entity, error) {
	t, ok := m.registry.Type(typeName)
	if !ok {
		return nil, ErrTypeMismatch.WithMessage("unknown type %s", typeName)
	}
	return s.create(ctx, t, props)
}

// Load resolves an entity by id.
func (m *Manager) Load(ctx context.Context, s *Session, id string) (*Entity, error) {
	return s.Load(ctx, id)
}

// Link creates an edge of the named relation between source and target.
func (m *Manager) Link(ctx context.Context, s *Session, relation string, source, target *Entity, props map[string]any) (*graph.Edge, error) {
	rel, ok := m.registry.Relation(relation)
	if !ok {
		return nil, ErrNotFound.WithMessage("unknown relation %s", relation)
	}
	return rel.Link(ctx, s, source, target, props)
}

// GetProperty reads a key of owner's property view. A key bound to a relation
// returns the related entity (one-valent) or entities (many-valent); an
// id-valued view returns their ids instead. Any other key reads the node
// property.
func (m *Manager) GetProperty(ctx context.Context, s *Session, owner *Entity, key string) (any, error) {
	b, ok := m.registry.lookupBinding(owner.Type, key)
	if !ok {
		return owner.Prop(key), nil
	}
	ep := b.endpoint()
	related, err := ep.Read(ctx, s, owner, nil)
	if err != nil {
		return nil, err
	}
	if ep.Multiplicity() == One {
		if len(related) == 0 {
			return nil, nil
		}
		if b.id {
			return related[0].ID, nil
		}
		return related[0], nil
	}
	if b.id {
		ids := make([]string, len(related))
		for i, e := range related {
			ids[i] = e.ID
		}
		return ids, nil
	}
	return related, nil
}

// SetProperty writes a key of owner's property view. Relation keys take the
// values accepted by the endpoint's Set; id-valued views take an id or a list
// of ids. Other keys are converted through the type's declared property and
// stored on the node.
func (m *Manager) SetProperty(ctx context.Context, s *Session, owner *Entity, key string, value any) error {
	b, ok := m.registry.lookupBinding(owner.Type, key)
	if !ok {
		return m.setNodeProperty(ctx, s, owner, key, value)
	}
	ep := b.endpoint()
	if b.id {
		refs, err := idRefs(ep.Multiplicity(), value)
		if err != nil {
			return ErrTypeMismatch.WithRelation(b.rel.Name).WithMessage("%s expects ids: %v", key, err)
		}
		value = refs
	}
	_, err := ep.Write(ctx, s, owner, value)
	return err
}

func idRefs(mult Multiplicity, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if mult == One {
		id, err := cast.ToStringE(value)
		if err != nil || id == "" {
			return nil, err
		}
		return Ref{ID: id}, nil
	}
	ids, err := cast.ToStringSliceE(value)
	if err != nil {
		return nil, err
	}
	refs := make([]any, len(ids))
	for i, id := range ids {
		refs[i] = Ref{ID: id}
	}
	return refs, nil
}

func (m *Manager) setNodeProperty(ctx context.Context, s *Session, owner *Entity, key string, value any) error {
	if p, ok := owner.Type.Property(key); ok {
		cv, err := p.Convert(value)
		if err != nil {
			return err
		}
		value = cv
	}
	props := map[string]any{key: value}
	if err := s.Tx.SetNodeProperties(ctx, owner.ID, props); err != nil {
		return storeErr(err)
	}
	if owner.Node != nil {
		if owner.Node.Props == nil {
			owner.Node.Props = map[string]any{}
		}
		owner.Node.Props[key] = value
	}
	return nil
}

// Neighbourhood returns e, every edge attached to it and the nodes at their far
// ends, de-duplicated. Nodes the session may not see are left out together with
// their edges.
func (m *Manager) Neighbourhood(ctx context.Context, s *Session, e *Entity) (*graph.Subgraph, error) {
	g := &graph.Subgraph{}
	g.AddNode(e.Node)
	edges, err := s.Tx.Edges(ctx, e.ID, graph.Both, "")
	if err != nil {
		return nil, storeErr(err)
	}
	for _, edge := range edges {
		n, err := s.Tx.Node(ctx, edge.OtherID(e.ID))
		if err != nil {
			return nil, storeErr(err)
		}
		if far, err := s.instantiate(n, edge.ID); err == nil && !s.allowed(far) {
			continue
		}
		g.AddNode(n)
		g.AddEdge(edge)
	}
	return g, nil
}

// metadata returns the cached `crud` tag metadata of typ.
func (m *Manager) metadata(typ reflect.Type) (*entityMetadata, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	// First, attempt to load metadata from the cache for performance.
	if cached, ok := m.metaCache.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}
	meta, err := parseTagsFromType(typ)
	if err != nil {
		return nil, err
	}
	m.metaCache.Store(typ, meta)
	return meta, nil
}
