package neolink

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// entityMetadata holds the parsed `crud` tag information for a specific struct type.
// This metadata is cached by the Manager to avoid costly reflection on every operation.
//
// The tag format is a comma separated list of components:
//
//	pk               the field holds the entity id
//	property:<name>  the node property (or relation key) the field maps to
//	label:<name>     on the pk field, overrides the node label (default: struct name)
//	extends:<a|b>    on the pk field, the parent types
//	rel:<TYPE>       the field is the target endpoint of relation TYPE; its
//	                 type must be a tagged struct, a pointer to one or a slice
//	inverse:<name>   with rel, the key on the target type reading the source side
//	source:one|many  with rel, the source multiplicity (default many)
//	public           the property is accepted as a notion property
type entityMetadata struct {
	// Label is the graph node label, defaulting to the struct's name.
	Label   string
	Extends []string
	// PKField is the name of the struct field marked as the primary key.
	PKField string
	// Mappings maps struct field names to their corresponding node property names.
	Mappings map[string]string
	// Kinds holds the property kind of each mapped field.
	Kinds map[string]PropertyKind
	// Public lists the fields tagged public.
	Public map[string]bool
	// Relations maps struct field names to the relations they hold.
	Relations map[string]*relationField
	// Fields lists the mapped and relation fields in declaration order.
	Fields []string
}

// relationField is a struct field bound to a relation's target endpoint.
type relationField struct {
	Rel     string
	Key     string
	Inverse string
	Source  Multiplicity
	Target  Multiplicity
	// Elem is the related struct type.
	Elem reflect.Type
}

// parseTagsFromType inspects a struct type and extracts its node and relation
// mapping from `crud` struct tags. Manager.metadata caches the result per type.
func parseTagsFromType(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}

	meta := &entityMetadata{
		Label:     typ.Name(),
		Mappings:  make(map[string]string),
		Kinds:     make(map[string]PropertyKind),
		Public:    make(map[string]bool),
		Relations: make(map[string]*relationField),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("crud")

		// Skip fields that are not part of the persistence mapping.
		if tag == "" {
			continue
		}

		var (
			isPk, public  bool
			propName, rel string
			inverse       string
			source        = Many
		)
		for _, part := range strings.Split(tag, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(part), ":")
			switch name {
			case "pk":
				isPk = true
			case "public":
				public = true
			case "property":
				propName = value
			case "label":
				meta.Label = value
			case "extends":
				meta.Extends = strings.Split(value, "|")
			case "rel":
				rel = value
			case "inverse":
				inverse = value
			case "source":
				m, err := ParseMultiplicity(value)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Name, err)
				}
				source = m
			default:
				return nil, fmt.Errorf("field %s has unknown tag component %q", field.Name, part)
			}
		}

		if isPk {
			if field.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("primary key field %s must be a string", field.Name)
			}
			meta.PKField = field.Name
			continue
		}
		if propName == "" {
			return nil, fmt.Errorf("field %s is missing 'property' tag component", field.Name)
		}

		if rel != "" {
			rf, err := parseRelationField(field, rel, propName, inverse, source)
			if err != nil {
				return nil, err
			}
			meta.Relations[field.Name] = rf
			meta.Fields = append(meta.Fields, field.Name)
			continue
		}
		meta.Mappings[field.Name] = propName
		meta.Kinds[field.Name] = kindOfGoType(field.Type)
		meta.Public[field.Name] = public
		meta.Fields = append(meta.Fields, field.Name)
	}

	if meta.PKField == "" {
		return nil, fmt.Errorf("no primary key ('pk') tag defined for struct %s", typ.Name())
	}

	return meta, nil
}

func parseRelationField(field reflect.StructField, rel, key, inverse string, source Multiplicity) (*relationField, error) {
	rf := &relationField{Rel: rel, Key: key, Inverse: inverse, Source: source, Target: One}
	elem := field.Type
	if elem.Kind() == reflect.Slice {
		rf.Target = Many
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relation field %s must hold structs, got %s", field.Name, field.Type)
	}
	rf.Elem = elem
	return rf, nil
}

var timeType = reflect.TypeOf(time.Time{})

func kindOfGoType(t reflect.Type) PropertyKind {
	if t == timeType {
		return KindTime
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	}
	return KindAny
}

// SchemaFromStructs derives a SchemaDefinition from `crud` tagged structs.
// Every struct referenced by a rel field must be passed too, otherwise Build
// reports the missing type.
func SchemaFromStructs(values ...any) (SchemaDefinition, error) {
	var def SchemaDefinition
	labels := map[reflect.Type]string{}
	metas := make([]*entityMetadata, 0, len(values))
	for _, v := range values {
		typ := reflect.TypeOf(v)
		if typ == nil {
			return SchemaDefinition{}, fmt.Errorf("nil value")
		}
		meta, err := parseTagsFromType(typ)
		if err != nil {
			return SchemaDefinition{}, err
		}
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		labels[typ] = meta.Label
		metas = append(metas, meta)
	}
	for _, meta := range metas {
		td := TypeDefinition{Name: meta.Label, Extends: meta.Extends}
		for _, field := range meta.Fields {
			if _, ok := meta.Mappings[field]; !ok {
				continue
			}
			td.Properties = append(td.Properties, PropertyKey{
				Name:   meta.Mappings[field],
				Kind:   meta.Kinds[field],
				Public: meta.Public[field],
			})
		}
		def.Types = append(def.Types, td)

		for _, field := range meta.Fields {
			rf, ok := meta.Relations[field]
			if !ok {
				continue
			}
			target, ok := labels[rf.Elem]
			if !ok {
				target = rf.Elem.Name()
			}
			def.Relations = append(def.Relations, RelationDefinition{
				Name:               rf.Rel,
				Source:             meta.Label,
				Target:             target,
				SourceMultiplicity: rf.Source.String(),
				TargetMultiplicity: rf.Target.String(),
				SourceProperty:     rf.Inverse,
				TargetProperty:     rf.Key,
			})
		}
	}
	return def, nil
}
