package neolink

import (
	"fmt"
	"slices"
	"strings"
)

// TypeDefinition declares a node type in a SchemaDefinition.
type TypeDefinition struct {
	Name       string        `yaml:"name"`
	Extends    []string      `yaml:"extends,omitempty"`
	Properties []PropertyKey `yaml:"properties,omitempty"`
}

// RelationDefinition declares a relation type in a SchemaDefinition.
// Multiplicities accept "1"/"one" and "*"/"many"; flags are given by name,
// e.g. "source_to_target".
type RelationDefinition struct {
	Name               string `yaml:"name"`
	Source             string `yaml:"source"`
	Target             string `yaml:"target"`
	SourceMultiplicity string `yaml:"source_multiplicity"`
	TargetMultiplicity string `yaml:"target_multiplicity"`
	Cascade            string `yaml:"cascade,omitempty"`
	Autocreate         string `yaml:"autocreate,omitempty"`
	// PreventDuplicates overrides the registry default when set.
	PreventDuplicates *bool `yaml:"prevent_duplicates,omitempty"`

	SourceProperty   string `yaml:"source_property"`
	TargetProperty   string `yaml:"target_property"`
	SourceIDProperty string `yaml:"source_id_property,omitempty"`
	TargetIDProperty string `yaml:"target_id_property,omitempty"`

	Properties []PropertyKey `yaml:"properties,omitempty"`
}

// SchemaDefinition is the declarative input of a Registry.
type SchemaDefinition struct {
	Types     []TypeDefinition     `yaml:"types"`
	Relations []RelationDefinition `yaml:"relations"`
}

// RegistryOption configures Build.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	preventDuplicates bool
}

// WithPreventDuplicates sets the duplicate-prevention policy of relations
// that do not declare one. The default is true.
func WithPreventDuplicates(prevent bool) RegistryOption {
	return func(o *registryOptions) { o.preventDuplicates = prevent }
}

// binding is the endpoint a property key of a node type reads.
type binding struct {
	rel *Relation
	// source is set when the key reads the relation's source endpoint, i.e. it
	// is declared on the target type.
	source bool
	// id marks an id-valued view.
	id bool
}

func (b binding) endpoint() Endpoint {
	if b.source {
		return b.rel.Source()
	}
	return b.rel.Target()
}

type bindingKey struct {
	typeName string
	key      string
}

// Registry maps type and relation names to their resolved descriptors. It is
// built once per schema load and read-only afterwards, so it may be shared.
type Registry struct {
	types     []*NodeType
	byName    map[string]*NodeType
	relations []*Relation
	relByName map[string]*Relation
	bindings  map[bindingKey]binding
}

// Build resolves def into a Registry. Every defect of the definition is an
// ErrInvalidSchemaSetup; the first one found is returned.
func Build(def SchemaDefinition, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{preventDuplicates: true}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		byName:    map[string]*NodeType{},
		relByName: map[string]*Relation{},
		bindings:  map[bindingKey]binding{},
	}
	if err := r.addTypes(def.Types); err != nil {
		return nil, err
	}
	for _, rd := range def.Relations {
		if err := r.addRelation(rd, o); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func invalidSchema(format string, args ...any) *Error {
	return ErrInvalidSchemaSetup.WithMessage(format, args...)
}

func (r *Registry) addTypes(defs []TypeDefinition) error {
	for _, td := range defs {
		name := strings.TrimSpace(td.Name)
		if name == "" {
			return invalidSchema("type without a name")
		}
		if _, dup := r.byName[name]; dup {
			return invalidSchema("duplicate type %s", name)
		}
		for _, p := range td.Properties {
			if err := checkPropertyKey(p); err != nil {
				return invalidSchema("type %s: %v", name, err)
			}
		}
		t := &NodeType{Name: name, Extends: slices.Clone(td.Extends), Properties: slices.Clone(td.Properties)}
		r.types = append(r.types, t)
		r.byName[name] = t
	}
	for _, t := range r.types {
		for _, pname := range t.Extends {
			p, ok := r.byName[pname]
			if !ok {
				return invalidSchema("type %s extends unknown type %s", t.Name, pname)
			}
			t.parents = append(t.parents, p)
		}
	}
	for _, t := range r.types {
		if err := checkAcyclic(t, nil); err != nil {
			return err
		}
	}
	return nil
}

func checkAcyclic(t *NodeType, path []string) error {
	if slices.Contains(path, t.Name) {
		return invalidSchema("inheritance cycle %s", strings.Join(append(path, t.Name), " -> "))
	}
	path = append(path, t.Name)
	for _, p := range t.parents {
		if err := checkAcyclic(p, path); err != nil {
			return err
		}
	}
	return nil
}

func checkPropertyKey(p PropertyKey) error {
	if p.Name == "" {
		return fmt.Errorf("property without a name")
	}
	switch p.Kind {
	case KindString, KindInt, KindFloat, KindBool, KindTime, KindAny, "":
		return nil
	}
	return fmt.Errorf("property %s has unknown kind %q", p.Name, p.Kind)
}

func (r *Registry) addRelation(rd RelationDefinition, o registryOptions) error {
	name := strings.TrimSpace(rd.Name)
	if name == "" {
		return invalidSchema("relation without a name")
	}
	if _, dup := r.relByName[name]; dup {
		return invalidSchema("duplicate relation %s", name)
	}
	fail := func(format string, args ...any) error {
		return ErrInvalidSchemaSetup.WithRelation(name).WithMessage(format, args...)
	}

	source, ok := r.byName[rd.Source]
	if !ok {
		return fail("unknown source type %q", rd.Source)
	}
	target, ok := r.byName[rd.Target]
	if !ok {
		return fail("unknown target type %q", rd.Target)
	}
	sm, err := ParseMultiplicity(rd.SourceMultiplicity)
	if err != nil {
		return fail("source: %v", err)
	}
	tm, err := ParseMultiplicity(rd.TargetMultiplicity)
	if err != nil {
		return fail("target: %v", err)
	}
	cascade, ok := cascadeNames[strings.ToLower(rd.Cascade)]
	if !ok {
		return fail("unknown cascade flag %q", rd.Cascade)
	}
	autocreate, ok := autocreateNames[strings.ToLower(rd.Autocreate)]
	if !ok {
		return fail("unknown autocreate flag %q", rd.Autocreate)
	}
	if rd.SourceProperty == "" {
		return fail("missing source property binding on %s", target.Name)
	}
	if rd.TargetProperty == "" {
		return fail("missing target property binding on %s", source.Name)
	}
	for _, p := range rd.Properties {
		if err := checkPropertyKey(p); err != nil {
			return fail("%v", err)
		}
	}

	rel := &Relation{
		Name:               name,
		SourceType:         source,
		TargetType:         target,
		SourceMultiplicity: sm,
		TargetMultiplicity: tm,
		Kind:               kindOf(sm, tm),
		Cascade:            cascade,
		Autocreate:         autocreate,
		PreventDuplicates:  o.preventDuplicates,
		SourceProperty:     rd.SourceProperty,
		TargetProperty:     rd.TargetProperty,
		SourceIDProperty:   rd.SourceIDProperty,
		TargetIDProperty:   rd.TargetIDProperty,
		Properties:         slices.Clone(rd.Properties),
		registry:           r,
	}
	if rd.PreventDuplicates != nil {
		rel.PreventDuplicates = *rd.PreventDuplicates
	}

	bind := []struct {
		t   *NodeType
		key string
		b   binding
	}{
		{target, rel.SourceProperty, binding{rel: rel, source: true}},
		{source, rel.TargetProperty, binding{rel: rel}},
		{target, rel.SourceIDProperty, binding{rel: rel, source: true, id: true}},
		{source, rel.TargetIDProperty, binding{rel: rel, id: true}},
	}
	for _, e := range bind {
		if e.key == "" {
			continue
		}
		if _, ok := e.t.Property(e.key); ok {
			return fail("key %s.%s is already a node property", e.t.Name, e.key)
		}
		if prev, ok := r.lookupBinding(e.t, e.key); ok {
			return fail("key %s.%s is already bound to %s", e.t.Name, e.key, prev.rel.Name)
		}
		r.bindings[bindingKey{e.t.Name, e.key}] = e.b
	}

	r.relations = append(r.relations, rel)
	r.relByName[name] = rel
	return nil
}

// Type returns the node type called name.
func (r *Registry) Type(name string) (*NodeType, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Relation returns the relation called name.
func (r *Registry) Relation(name string) (*Relation, bool) {
	rel, ok := r.relByName[name]
	return rel, ok
}

// Types returns the node types in declaration order.
func (r *Registry) Types() []*NodeType { return slices.Clone(r.types) }

// Relations returns the relations in declaration order.
func (r *Registry) Relations() []*Relation { return slices.Clone(r.relations) }

// RelationFor returns the relation a property key of t is bound to, looking
// through t's ancestors, and the endpoint the key reads.
func (r *Registry) RelationFor(t *NodeType, key string) (*Relation, Endpoint, bool) {
	b, ok := r.lookupBinding(t, key)
	if !ok {
		return nil, nil, false
	}
	return b.rel, b.endpoint(), true
}

func (r *Registry) lookupBinding(t *NodeType, key string) (binding, bool) {
	if t == nil {
		return binding{}, false
	}
	if b, ok := r.bindings[bindingKey{t.Name, key}]; ok {
		return b, true
	}
	for _, p := range t.parents {
		if b, ok := r.lookupBinding(p, key); ok {
			return b, true
		}
	}
	return binding{}, false
}

// typeForLabels picks the most derived registered type among labels.
func (r *Registry) typeForLabels(labels []string) *NodeType {
	var candidates []*NodeType
	for _, l := range labels {
		if t, ok := r.byName[l]; ok {
			candidates = append(candidates, t)
		}
	}
	for _, c := range candidates {
		if !slices.ContainsFunc(candidates, func(o *NodeType) bool { return !c.IsA(o) }) {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}
