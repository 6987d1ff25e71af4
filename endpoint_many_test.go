package neolink

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

func edgeTo(edges []*graph.Edge, id string) *graph.Edge {
	for _, e := range edges {
		if e.EndID == id || e.StartID == id {
			return e
		}
	}
	return nil
}

func TestManyEnd_HasTagScenario(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", map[string]any{"label": "t1"})
		t2 := f.create(ctx, s, "Tag", map[string]any{"label": "t2"})
		t3 := f.create(ctx, s, "Tag", map[string]any{"label": "t3"})

		created, err := tags.Set(ctx, s, a, []*Entity{t1, t2})
		require.NoError(t, err)
		require.Len(t, created, 2)
		kept := edgeTo(created, t2.ID)
		require.NotNil(t, kept)
		require.NoError(t, s.Tx.SetEdgeProperties(ctx, kept.ID, map[string]any{"marker": "m"}))

		created, err = tags.Set(ctx, s, a, []*Entity{t2, t3})
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, t3.ID, created[0].EndID)

		got, err := tags.Get(ctx, s, a, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{t2.ID, t3.ID}, ids(got))

		out := f.edges(ctx, s, a.ID, graph.Outgoing, "HAS_TAG")
		require.Len(t, out, 2)
		survivor := edgeTo(out, t2.ID)
		require.NotNil(t, survivor)
		assert.Equal(t, kept.ID, survivor.ID)
		assert.Equal(t, "m", survivor.Props["marker"])
		assert.Empty(t, f.edges(ctx, s, t1.ID, graph.Incoming, "HAS_TAG"))
	})
}

func TestManyEnd_DuplicatesCollapse(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		t2 := f.create(ctx, s, "Tag", nil)

		created, err := tags.Set(ctx, s, a, []any{t1, t1.ID, Ref{ID: t1.ID}, t2})
		require.NoError(t, err)
		assert.Len(t, created, 2)

		got, err := tags.Get(ctx, s, a, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{t1.ID, t2.ID}, ids(got))
	})
}

func TestManyEnd_SecondSetIsNoop(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		t2 := f.create(ctx, s, "Tag", nil)
		desired := []*Entity{t1, t2}

		_, err := tags.Set(ctx, s, a, desired)
		require.NoError(t, err)

		counter := &countingTx{Tx: s.Tx}
		s.Tx = counter
		created, err := tags.Set(ctx, s, a, desired)
		require.NoError(t, err)
		assert.Empty(t, created)
		assert.Zero(t, counter.created)
		assert.Zero(t, counter.deleted)
		assert.Zero(t, counter.updated)
	})
}

func TestManyEnd_KeptEntityGetsForeignProperties(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		created, err := tags.Set(ctx, s, a, []*Entity{t1})
		require.NoError(t, err)
		require.NoError(t, s.Tx.SetEdgeProperties(ctx, created[0].ID, map[string]any{"marker": "m"}))

		created, err = tags.Set(ctx, s, a, []Decorated{{Entity: t1, Properties: map[string]any{"weight": "5"}}})
		require.NoError(t, err)
		assert.Empty(t, created)

		out := f.edges(ctx, s, a.ID, graph.Outgoing, "HAS_TAG")
		require.Len(t, out, 1)
		assert.Equal(t, int64(5), out[0].Props["weight"])
		assert.Equal(t, "m", out[0].Props["marker"])
	})
}

func TestManyEnd_KeptEdgesUpdateInInputOrder(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		var all []*Entity
		for range 4 {
			all = append(all, f.create(ctx, s, "Tag", nil))
		}
		created, err := tags.Set(ctx, s, a, all)
		require.NoError(t, err)
		edgeOf := map[string]string{}
		for _, e := range created {
			edgeOf[e.EndID] = e.ID
		}

		order := []*Entity{all[2], all[0], all[3], all[1]}
		var input []Decorated
		var want []string
		for i, e := range order {
			input = append(input, Decorated{Entity: e, Properties: map[string]any{"weight": i}})
			want = append(want, edgeOf[e.ID])
		}
		counter := &countingTx{Tx: s.Tx}
		s.Tx = counter
		_, err = tags.Set(ctx, s, a, input)
		require.NoError(t, err)
		assert.Equal(t, want, counter.updatedIDs)
	})
}

func TestManyEnd_InvalidInputMutatesNothing(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		t2 := f.create(ctx, s, "Tag", nil)
		car := f.create(ctx, s, "Car", nil)
		_, err := tags.Set(ctx, s, a, []*Entity{t1})
		require.NoError(t, err)

		counter := &countingTx{Tx: s.Tx}
		s.Tx = counter
		tests := []struct {
			name   string
			values any
			want   error
		}{
			{"wrong type", []any{t2, car}, ErrTypeMismatch},
			{"missing id", []any{t2, "missing"}, ErrNotFound},
			{"bad property", []any{Decorated{Entity: t2, Properties: map[string]any{"weight": "heavy"}}}, ErrTypeMismatch},
			{"autocreate disabled", []any{t2, Ref{Create: map[string]any{"label": "new"}}}, ErrNotFound},
			{"unsupported value", []any{42}, ErrTypeMismatch},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tags.Set(ctx, s, a, tt.values)
				assert.ErrorIs(t, err, tt.want)
			})
		}
		assert.Zero(t, counter.created)
		assert.Zero(t, counter.deleted)
		assert.Zero(t, counter.updated)

		got, err := tags.Get(ctx, s, a, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{t1.ID}, ids(got))
	})
}

func TestManyEnd_EmptySetRemovesAll(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		_, err := tags.Set(ctx, s, a, []*Entity{t1})
		require.NoError(t, err)

		_, err = tags.Set(ctx, s, a, nil)
		require.NoError(t, err)
		assert.Empty(t, f.edges(ctx, s, a.ID, graph.Outgoing, "HAS_TAG"))
	})
}

func TestManyEnd_GetFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		var all []*Entity
		for _, label := range []string{"pear", "apple", "fig", "banana"} {
			all = append(all, f.create(ctx, s, "Tag", map[string]any{"label": label}))
		}
		_, err := tags.Set(ctx, s, a, all)
		require.NoError(t, err)

		byLabel := func(x, y *Entity) int {
			return strings.Compare(x.Prop("label").(string), y.Prop("label").(string))
		}
		got, err := tags.Get(ctx, s, a, &Predicate{Compare: byLabel})
		require.NoError(t, err)
		labels := make([]string, len(got))
		for i, e := range got {
			labels[i] = e.Prop("label").(string)
		}
		assert.Equal(t, []string{"apple", "banana", "fig", "pear"}, labels)

		got, err = tags.Get(ctx, s, a, &Predicate{Accept: func(e *Entity) bool {
			return len(e.Prop("label").(string)) > 3
		}})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.NotEmpty(t, got[0].EdgeID)
	})
}

func TestManyStart_ReadsSources(t *testing.T) {
	f := newFixture(t)
	rel := f.rel("HAS_TAG")
	f.run(func(ctx context.Context, s *Session) {
		tag := f.create(ctx, s, "Tag", nil)
		u1 := f.create(ctx, s, "User", nil)
		u2 := f.create(ctx, s, "Admin", nil)

		created, err := rel.Source().(*ManyStart).Set(ctx, s, tag, []*Entity{u1, u2})
		require.NoError(t, err)
		require.Len(t, created, 2)
		for _, e := range created {
			assert.Equal(t, tag.ID, e.EndID)
		}

		for _, u := range []*Entity{u1, u2} {
			got, err := rel.Target().(*ManyEnd).Get(ctx, s, u, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{tag.ID}, ids(got))
		}
	})
}

func TestManyEnd_OneToManyMovesTargets(t *testing.T) {
	f := newFixture(t)
	contains := f.rel("CONTAINS")
	require.Equal(t, OneToMany, contains.Kind)
	tasks := contains.Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		p1 := f.create(ctx, s, "Project", nil)
		p2 := f.create(ctx, s, "Project", nil)
		t1 := f.create(ctx, s, "Task", nil)
		t2 := f.create(ctx, s, "Task", nil)

		_, err := tasks.Set(ctx, s, p1, []*Entity{t1, t2})
		require.NoError(t, err)
		_, err = tasks.Set(ctx, s, p2, []*Entity{t2})
		require.NoError(t, err)

		got, err := tasks.Get(ctx, s, p1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{t1.ID}, ids(got))

		owner, err := contains.Source().(*OneStart).Get(ctx, s, t2)
		require.NoError(t, err)
		assert.Equal(t, p2.ID, owner.ID)
	})
}

func TestManyStart_ManyToOneMovesSources(t *testing.T) {
	f := newFixture(t)
	assigned := f.rel("ASSIGNED")
	work := assigned.Source().(*ManyStart)
	f.run(func(ctx context.Context, s *Session) {
		u1 := f.create(ctx, s, "User", nil)
		u2 := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Task", nil)
		t2 := f.create(ctx, s, "Task", nil)

		_, err := work.Set(ctx, s, u1, []*Entity{t1, t2})
		require.NoError(t, err)
		_, err = work.Set(ctx, s, u2, []*Entity{t1})
		require.NoError(t, err)

		got, err := work.Get(ctx, s, u1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{t2.ID}, ids(got))
		assert.Len(t, f.edges(ctx, s, t1.ID, graph.Outgoing, "ASSIGNED"), 1)
	})
}

func TestManyEnd_Autocreate(t *testing.T) {
	f := newFixture(t)
	contains := f.rel("CONTAINS")
	f.run(func(ctx context.Context, s *Session) {
		p := f.create(ctx, s, "Project", nil)
		created, err := contains.Target().(*ManyEnd).Set(ctx, s, p, []any{Ref{Create: map[string]any{"title": "write docs"}}})
		require.NoError(t, err)
		require.Len(t, created, 1)

		task, err := s.Load(ctx, created[0].EndID)
		require.NoError(t, err)
		assert.Equal(t, "Task", task.Type.Name)
		assert.Equal(t, "write docs", task.Prop("title"))

		// Tasks may not create their project.
		_, err = contains.Source().(*OneStart).Set(ctx, s, task, Ref{Create: map[string]any{}})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManyEnd_HiddenEntitiesAreNeitherReadNorRemoved(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		secret := f.create(ctx, s, "Tag", map[string]any{"label": "secret"})
		open := f.create(ctx, s, "Tag", map[string]any{"label": "open"})
		_, err := tags.Set(ctx, s, a, []*Entity{secret, open})
		require.NoError(t, err)

		s.Allow = func(e *Entity) bool { return e.Prop("label") != "secret" }
		got, err := tags.Get(ctx, s, a, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{open.ID}, ids(got))

		_, err = tags.Set(ctx, s, a, nil)
		require.NoError(t, err)
		out := f.edges(ctx, s, a.ID, graph.Outgoing, "HAS_TAG")
		require.Len(t, out, 1)
		assert.Equal(t, secret.ID, out[0].EndID)
	})
}

func TestManyEnd_HiddenLinkedEntityIsKept(t *testing.T) {
	for _, relName := range []string{"HAS_TAG", "FOLLOWS"} {
		t.Run(relName, func(t *testing.T) {
			f := newFixture(t)
			rel := f.rel(relName)
			ep := rel.Target().(*ManyEnd)
			f.run(func(ctx context.Context, s *Session) {
				a := f.create(ctx, s, "User", nil)
				hidden := f.create(ctx, s, rel.TargetType.Name, nil)
				first, err := ep.Set(ctx, s, a, []*Entity{hidden})
				require.NoError(t, err)
				require.Len(t, first, 1)

				s.Allow = func(e *Entity) bool { return e.ID != hidden.ID }
				created, err := ep.Set(ctx, s, a, []*Entity{hidden})
				require.NoError(t, err)
				assert.Empty(t, created)

				out := f.edges(ctx, s, a.ID, graph.Outgoing, relName)
				require.Len(t, out, 1)
				assert.Equal(t, first[0].ID, out[0].ID)
			})
		})
	}
}

func TestManyEnd_NotionPropertiesArePublicOnly(t *testing.T) {
	f := newFixture(t)
	tags := f.rel("HAS_TAG").Target().(*ManyEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		t1 := f.create(ctx, s, "Tag", nil)
		s.Notions.Put(NotionKey{Relation: "HAS_TAG", OwnerID: a.ID, OtherID: t1.ID}, map[string]any{
			"weight": 3,
			"secret": "x",
			"other":  true,
		})

		created, err := tags.Set(ctx, s, a, []*Entity{t1})
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, map[string]any{"weight": 3}, created[0].Props)
	})
}
