package neolink

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Repository provides a generic abstraction for CRUD operations for a specific
// entity type T. It relies on struct tags to map struct fields to node
// properties and relation endpoints; see entityMetadata for the tag format.
//
// The pk field holds the entity id. Relation fields hold related structs of
// which only the pk is used: Save links the entity to them and FindByID returns
// them with just the pk filled in.
type Repository[T any] struct {
	m    *Manager
	meta *entityMetadata
	t    *NodeType
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given Manager. T must be
// registered, for example through SchemaFromStructs.
func RepositoryFor[T any](m *Manager) (*Repository[T], error) {
	meta, err := m.metadata(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	t, ok := m.registry.Type(meta.Label)
	if !ok {
		return nil, ErrInvalidSchemaSetup.WithMessage("type %s is not registered", meta.Label)
	}
	return &Repository[T]{m: m, meta: meta, t: t}, nil
}

// Save creates a new node or updates an existing one.
// An empty pk creates the node and stores the new id in the pk field. All other
// tagged fields are set on the node; non-nil relation fields replace the
// entity's related entities, nil ones leave them untouched.
//
// Parameters:
//   - ctx: The context for the store calls.
//   - s: The session of the enclosing transaction.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	ErrNotFound if a pk or a related pk does not resolve, or a store error.
func (r *Repository[T]) Save(ctx context.Context, s *Session, entity *T) error {
	val := reflect.ValueOf(entity).Elem()
	props := make(map[string]any, len(r.meta.Mappings))
	for fieldName, propName := range r.meta.Mappings {
		props[propName] = val.FieldByName(fieldName).Interface()
	}

	pk := val.FieldByName(r.meta.PKField)
	var e *Entity
	if id := pk.String(); id == "" {
		created, err := s.create(ctx, r.t, props)
		if err != nil {
			return err
		}
		pk.SetString(created.ID)
		e = created
	} else {
		loaded, err := r.load(ctx, s, id)
		if err != nil {
			return err
		}
		for k, v := range props {
			if err := r.m.setNodeProperty(ctx, s, loaded, k, v); err != nil {
				return err
			}
		}
		e = loaded
	}

	for _, fieldName := range r.meta.Fields {
		rf, ok := r.meta.Relations[fieldName]
		if !ok {
			continue
		}
		value, set, err := r.relationValue(val.FieldByName(fieldName), rf)
		if err != nil {
			return fmt.Errorf("field %s: %w", fieldName, err)
		}
		if !set {
			continue
		}
		if err := r.m.SetProperty(ctx, s, e, rf.Key, value); err != nil {
			return err
		}
	}
	return nil
}

// relationValue turns a relation field into endpoint input. set is false when
// the field is nil.
func (r *Repository[T]) relationValue(field reflect.Value, rf *relationField) (value any, set bool, err error) {
	meta, err := r.m.metadata(rf.Elem)
	if err != nil {
		return nil, false, err
	}
	refOf := func(v reflect.Value) any {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		return Ref{ID: v.FieldByName(meta.PKField).String()}
	}
	switch field.Kind() {
	case reflect.Slice:
		if field.IsNil() {
			return nil, false, nil
		}
		refs := make([]any, 0, field.Len())
		for i := 0; i < field.Len(); i++ {
			if ref := refOf(field.Index(i)); ref != nil {
				refs = append(refs, ref)
			}
		}
		return refs, true, nil
	case reflect.Ptr:
		if field.IsNil() {
			return nil, false, nil
		}
		return refOf(field), true, nil
	default:
		return refOf(field), true, nil
	}
}

// FindByID retrieves a single entity by id.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if the id does not resolve,
//	ErrTypeMismatch if it resolves to another type, or a mapping error.
func (r *Repository[T]) FindByID(ctx context.Context, s *Session, id string) (*T, error) {
	e, err := r.load(ctx, s, id)
	if err != nil {
		return nil, err
	}

	entity := new(T)
	val := reflect.ValueOf(entity).Elem()
	val.FieldByName(r.meta.PKField).SetString(e.ID)
	for fieldName, propName := range r.meta.Mappings {
		field := val.FieldByName(fieldName)
		if !field.CanSet() {
			continue // Skip if the struct field cannot be set.
		}
		if err := assignField(field, e.Prop(propName)); err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldName, err)
		}
	}

	for _, fieldName := range r.meta.Fields {
		rf, ok := r.meta.Relations[fieldName]
		if !ok {
			continue
		}
		_, ep, ok := r.m.registry.RelationFor(r.t, rf.Key)
		if !ok {
			continue
		}
		related, err := ep.Read(ctx, s, e, nil)
		if err != nil {
			return nil, err
		}
		if err := r.fillRelation(val.FieldByName(fieldName), rf, related); err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldName, err)
		}
	}
	return entity, nil
}

// fillRelation stores pk-only stubs of related into field.
func (r *Repository[T]) fillRelation(field reflect.Value, rf *relationField, related []*Entity) error {
	meta, err := r.m.metadata(rf.Elem)
	if err != nil {
		return err
	}
	stub := func(e *Entity, typ reflect.Type) reflect.Value {
		ptr := reflect.New(rf.Elem)
		ptr.Elem().FieldByName(meta.PKField).SetString(e.ID)
		if typ.Kind() == reflect.Ptr {
			return ptr
		}
		return ptr.Elem()
	}
	switch field.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(field.Type(), 0, len(related))
		for _, e := range related {
			out = reflect.Append(out, stub(e, field.Type().Elem()))
		}
		field.Set(out)
	default:
		if len(related) == 0 {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		field.Set(stub(related[0], field.Type()))
	}
	return nil
}

// Delete removes the entity with the given id, following cascade flags.
func (r *Repository[T]) Delete(ctx context.Context, s *Session, id string) error {
	e, err := r.load(ctx, s, id)
	if err != nil {
		return err
	}
	return r.m.Delete(ctx, s, e)
}

// Entity returns the typed entity behind a struct instance.
func (r *Repository[T]) Entity(ctx context.Context, s *Session, entity *T) (*Entity, error) {
	id := reflect.ValueOf(entity).Elem().FieldByName(r.meta.PKField).String()
	if id == "" {
		return nil, ErrNotFound.WithMessage("%s has not been saved", r.t.Name)
	}
	return r.load(ctx, s, id)
}

func (r *Repository[T]) load(ctx context.Context, s *Session, id string) (*Entity, error) {
	e, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Type.IsA(r.t) {
		return nil, ErrTypeMismatch.WithMessage("%s is not a %s", e, r.t.Name)
	}
	return e, nil
}

// assignField sets a struct field from a stored property value, converting
// between the representations the backends return and the field's Go type.
func assignField(field reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	if field.Type() == timeType {
		t, err := cast.ToTimeE(v)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		sv, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		field.SetString(sv)
	case reflect.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(v)
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("cannot assign %T to %s", v, field.Type())
		}
		field.Set(rv)
	}
	return nil
}
