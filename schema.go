package neolink

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// PropertyKind is the internal value representation of a declared property.
type PropertyKind string

const (
	KindString PropertyKind = "string"
	KindInt    PropertyKind = "int"
	KindFloat  PropertyKind = "float"
	KindBool   PropertyKind = "bool"
	KindTime   PropertyKind = "time"
	KindAny    PropertyKind = "any"
)

// PropertyKey declares a property on a node type or a relation.
type PropertyKey struct {
	Name string       `yaml:"name"`
	Kind PropertyKind `yaml:"kind"`
	// Public properties are accepted as notion properties; others are dropped.
	Public bool `yaml:"public"`
}

// Convert turns an external input value into the key's internal representation.
// nil passes through unchanged.
func (k PropertyKey) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var (
		out any
		err error
	)
	switch k.Kind {
	case KindString:
		out, err = cast.ToStringE(v)
	case KindInt:
		out, err = cast.ToInt64E(v)
	case KindFloat:
		out, err = cast.ToFloat64E(v)
	case KindBool:
		out, err = cast.ToBoolE(v)
	case KindTime:
		out, err = cast.ToTimeInDefaultLocationE(v, time.UTC)
	case KindAny, "":
		out = v
	default:
		err = fmt.Errorf("unknown property kind %q", k.Kind)
	}
	if err != nil {
		return nil, ErrTypeMismatch.WithMessage("property %s: %v", k.Name, err)
	}
	return out, nil
}

// NodeType describes an entity type. Nodes of the type carry its name as a label.
type NodeType struct {
	Name       string
	Extends    []string
	Properties []PropertyKey

	// parents are resolved by the registry from Extends.
	parents []*NodeType
}

// IsA reports whether t is other or inherits from it.
func (t *NodeType) IsA(other *NodeType) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other || t.Name == other.Name {
		return true
	}
	for _, p := range t.parents {
		if p.IsA(other) {
			return true
		}
	}
	return false
}

// Labels returns the node labels of the type: its own name followed by the
// names of every ancestor, nearest first.
func (t *NodeType) Labels() []string {
	labels := []string{t.Name}
	for _, p := range t.parents {
		for _, l := range p.Labels() {
			if !slices.Contains(labels, l) {
				labels = append(labels, l)
			}
		}
	}
	return labels
}

// Property finds a declared property, searching ancestors too.
func (t *NodeType) Property(name string) (PropertyKey, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	for _, parent := range t.parents {
		if p, ok := parent.Property(name); ok {
			return p, true
		}
	}
	return PropertyKey{}, false
}

// PublicProperties returns the public declared properties of t and its
// ancestors.
func (t *NodeType) PublicProperties() []PropertyKey {
	var out []PropertyKey
	for _, p := range t.Properties {
		if p.Public {
			out = append(out, p)
		}
	}
	for _, parent := range t.parents {
		for _, p := range parent.PublicProperties() {
			if !slices.ContainsFunc(out, func(o PropertyKey) bool { return o.Name == p.Name }) {
				out = append(out, p)
			}
		}
	}
	return out
}

func (t *NodeType) String() string { return t.Name }

// Multiplicity is the declared cardinality of one side of a relation.
type Multiplicity int

const (
	One Multiplicity = iota
	Many
)

func (m Multiplicity) String() string {
	if m == One {
		return "1"
	}
	return "*"
}

// ParseMultiplicity accepts "1"/"one" and "*"/"many".
func ParseMultiplicity(s string) (Multiplicity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "one":
		return One, nil
	case "*", "many":
		return Many, nil
	}
	return 0, fmt.Errorf("invalid multiplicity %q", s)
}

// CascadeFlag controls which related entities are deleted with an entity.
type CascadeFlag int

const (
	CascadeNone CascadeFlag = iota
	// CascadeSourceToTarget deletes targets when their source is deleted.
	CascadeSourceToTarget
	// CascadeTargetToSource deletes sources when their target is deleted.
	CascadeTargetToSource
	CascadeAlways
	// CascadeConstraintBased deletes the far entity only when removing the edge
	// leaves its One side of the relation empty.
	CascadeConstraintBased
)

var cascadeNames = map[string]CascadeFlag{
	"":                 CascadeNone,
	"none":             CascadeNone,
	"source_to_target": CascadeSourceToTarget,
	"target_to_source": CascadeTargetToSource,
	"always":           CascadeAlways,
	"constraint_based": CascadeConstraintBased,
}

// AutocreateFlag controls whether endpoints may create missing related entities.
type AutocreateFlag int

const (
	AutocreateNone AutocreateFlag = iota
	// AutocreateSourceToTarget lets a source create its targets.
	AutocreateSourceToTarget
	// AutocreateTargetToSource lets a target create its sources.
	AutocreateTargetToSource
	AutocreateAlways
)

var autocreateNames = map[string]AutocreateFlag{
	"":                 AutocreateNone,
	"none":             AutocreateNone,
	"source_to_target": AutocreateSourceToTarget,
	"target_to_source": AutocreateTargetToSource,
	"always":           AutocreateAlways,
}
