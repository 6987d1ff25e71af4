package neolink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseDefinition() SchemaDefinition {
	return SchemaDefinition{
		Types: []TypeDefinition{{Name: "User"}, {Name: "Tag"}},
		Relations: []RelationDefinition{{
			Name:               "HAS_TAG",
			Source:             "User",
			Target:             "Tag",
			SourceMultiplicity: "*",
			TargetMultiplicity: "*",
			SourceProperty:     "users",
			TargetProperty:     "tags",
		}},
	}
}

func TestBuild_RejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SchemaDefinition)
	}{
		{"missing source property", func(d *SchemaDefinition) { d.Relations[0].SourceProperty = "" }},
		{"missing target property", func(d *SchemaDefinition) { d.Relations[0].TargetProperty = "" }},
		{"unknown source type", func(d *SchemaDefinition) { d.Relations[0].Source = "Ghost" }},
		{"unknown target type", func(d *SchemaDefinition) { d.Relations[0].Target = "Ghost" }},
		{"duplicate type", func(d *SchemaDefinition) { d.Types = append(d.Types, TypeDefinition{Name: "User"}) }},
		{"duplicate relation", func(d *SchemaDefinition) { d.Relations = append(d.Relations, d.Relations[0]) }},
		{"unnamed type", func(d *SchemaDefinition) { d.Types = append(d.Types, TypeDefinition{}) }},
		{"unknown parent", func(d *SchemaDefinition) { d.Types[0].Extends = []string{"Ghost"} }},
		{"inheritance cycle", func(d *SchemaDefinition) {
			d.Types[0].Extends = []string{"Tag"}
			d.Types[1].Extends = []string{"User"}
		}},
		{"bad multiplicity", func(d *SchemaDefinition) { d.Relations[0].TargetMultiplicity = "2" }},
		{"bad cascade", func(d *SchemaDefinition) { d.Relations[0].Cascade = "sometimes" }},
		{"bad autocreate", func(d *SchemaDefinition) { d.Relations[0].Autocreate = "constraint_based" }},
		{"bad property kind", func(d *SchemaDefinition) {
			d.Relations[0].Properties = []PropertyKey{{Name: "weight", Kind: "decimal"}}
		}},
		{"key shadows node property", func(d *SchemaDefinition) {
			d.Types[0].Properties = []PropertyKey{{Name: "tags", Kind: KindString}}
		}},
		{"key bound twice", func(d *SchemaDefinition) {
			r := d.Relations[0]
			r.Name = "LIKES"
			r.SourceProperty = "likedBy"
			d.Relations = append(d.Relations, r)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := baseDefinition()
			tt.mutate(&def)
			_, err := Build(def)
			assert.ErrorIs(t, err, ErrInvalidSchemaSetup)
		})
	}
}

func TestBuild_ResolvesRelations(t *testing.T) {
	f := newFixture(t)

	admin, ok := f.reg.Type("Admin")
	require.True(t, ok)
	user, _ := f.reg.Type("User")
	assert.True(t, admin.IsA(user))
	assert.False(t, user.IsA(admin))
	assert.Equal(t, []string{"Admin", "User"}, admin.Labels())

	rel, ep, ok := f.reg.RelationFor(admin, "tags")
	require.True(t, ok)
	assert.Equal(t, "HAS_TAG", rel.Name)
	assert.IsType(t, &ManyEnd{}, ep)

	tag, _ := f.reg.Type("Tag")
	_, ep, ok = f.reg.RelationFor(tag, "users")
	require.True(t, ok)
	assert.IsType(t, &ManyStart{}, ep)

	_, _, ok = f.reg.RelationFor(tag, "name")
	assert.False(t, ok)

	owns := f.rel("OWNS")
	assert.Equal(t, OneToOne, owns.Kind)
	assert.Equal(t, CascadeSourceToTarget, owns.Cascade)
	assert.Equal(t, AutocreateSourceToTarget, f.rel("CONTAINS").Autocreate)
	assert.Len(t, f.reg.Types(), 6)
	assert.Len(t, f.reg.Relations(), 6)
}

func TestBuild_DuplicatePolicy(t *testing.T) {
	def := baseDefinition()
	reg, err := Build(def, WithPreventDuplicates(false))
	require.NoError(t, err)
	rel, _ := reg.Relation("HAS_TAG")
	assert.False(t, rel.PreventDuplicates)

	on := true
	def.Relations[0].PreventDuplicates = &on
	reg, err = Build(def, WithPreventDuplicates(false))
	require.NoError(t, err)
	rel, _ = reg.Relation("HAS_TAG")
	assert.True(t, rel.PreventDuplicates)
}

func TestRegistry_TypeForLabels(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{"User"}, "User"},
		{[]string{"Admin", "User"}, "Admin"},
		{[]string{"User", "Admin"}, "Admin"},
		{[]string{"Unregistered", "Tag"}, "Tag"},
	}
	for _, tt := range tests {
		got := f.reg.typeForLabels(tt.labels)
		require.NotNil(t, got, "%v", tt.labels)
		assert.Equal(t, tt.want, got.Name)
	}
	assert.Nil(t, f.reg.typeForLabels([]string{"Unregistered"}))
}

func TestParseSchema_RejectsUnknownFields(t *testing.T) {
	_, err := ParseSchema([]byte("types:\n  - name: User\n    colour: blue\n"))
	assert.ErrorIs(t, err, ErrInvalidSchemaSetup)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	rel, ok := reg.Relation("CONTAINS")
	require.True(t, ok)
	assert.Equal(t, "projectId", rel.SourceIDProperty)
	assert.Equal(t, CascadeConstraintBased, rel.Cascade)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPropertyKey_Convert(t *testing.T) {
	tests := []struct {
		kind    PropertyKind
		in      any
		want    any
		wantErr bool
	}{
		{KindInt, "42", int64(42), false},
		{KindInt, 7.0, int64(7), false},
		{KindInt, "many", nil, true},
		{KindFloat, "1.5", 1.5, false},
		{KindBool, "true", true, false},
		{KindString, 12, "12", false},
		{KindAny, []int{1}, []int{1}, false},
		{KindString, nil, nil, false},
	}
	for _, tt := range tests {
		got, err := PropertyKey{Name: "p", Kind: tt.kind}.Convert(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrTypeMismatch)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	ts, err := PropertyKey{Name: "at", Kind: KindTime}.Convert("2024-05-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.(interface{ Year() int }).Year())
}
