package neolink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

func TestOneEnd_OwnsSupersedesPreviousTarget(t *testing.T) {
	f := newFixture(t)
	owns := f.rel("OWNS")
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		b := f.create(ctx, s, "Car", nil)
		c := f.create(ctx, s, "Car", nil)
		car := owns.Target().(*OneEnd)

		first, err := car.Set(ctx, s, a, b)
		require.NoError(t, err)
		_, err = car.Set(ctx, s, a, c)
		require.NoError(t, err)

		out := f.edges(ctx, s, a.ID, graph.Outgoing, "OWNS")
		require.Len(t, out, 1)
		assert.Equal(t, c.ID, out[0].EndID)
		assert.NotEqual(t, first.ID, out[0].ID)

		got, err := car.Get(ctx, s, a)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)

		prev, err := owns.Source().(*OneStart).Get(ctx, s, b)
		require.NoError(t, err)
		assert.Nil(t, prev)
	})
}

func TestOneEnd_SetConvergesOverManyPriorEdges(t *testing.T) {
	f := newFixture(t)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		var cars []*Entity
		for range 3 {
			car := f.create(ctx, s, "Car", nil)
			_, err := s.Tx.CreateEdge(ctx, "OWNS", a.ID, car.ID, nil)
			require.NoError(t, err)
			cars = append(cars, car)
		}
		d := f.create(ctx, s, "Car", nil)

		_, err := f.rel("OWNS").Target().(*OneEnd).Set(ctx, s, a, d)
		require.NoError(t, err)

		out := f.edges(ctx, s, a.ID, graph.Outgoing, "OWNS")
		require.Len(t, out, 1)
		assert.Equal(t, d.ID, out[0].EndID)
		for _, car := range cars {
			assert.Empty(t, f.edges(ctx, s, car.ID, graph.Incoming, "OWNS"))
		}
	})
}

func TestOneStart_OneToOneReleasesBothEnds(t *testing.T) {
	f := newFixture(t)
	owns := f.rel("OWNS")
	f.run(func(ctx context.Context, s *Session) {
		alice := f.create(ctx, s, "User", nil)
		bob := f.create(ctx, s, "User", nil)
		car := f.create(ctx, s, "Car", nil)

		_, err := owns.Target().(*OneEnd).Set(ctx, s, alice, car)
		require.NoError(t, err)
		// Setting the car's owner takes it away from alice.
		_, err = owns.Source().(*OneStart).Set(ctx, s, car, bob)
		require.NoError(t, err)

		assert.Empty(t, f.edges(ctx, s, alice.ID, graph.Outgoing, "OWNS"))
		got, err := owns.Source().(*OneStart).Get(ctx, s, car)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})
}

func TestOneEnd_SetNilOnlyReleases(t *testing.T) {
	f := newFixture(t)
	car := f.rel("OWNS").Target().(*OneEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		b := f.create(ctx, s, "Car", nil)
		_, err := car.Set(ctx, s, a, b)
		require.NoError(t, err)

		edge, err := car.Set(ctx, s, a, nil)
		require.NoError(t, err)
		assert.Nil(t, edge)
		assert.Empty(t, f.edges(ctx, s, a.ID, graph.Both, "OWNS"))

		got, err := car.Get(ctx, s, a)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestOneEnd_TypeMismatchLeavesGraphUntouched(t *testing.T) {
	f := newFixture(t)
	car := f.rel("OWNS").Target().(*OneEnd)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		b := f.create(ctx, s, "Car", nil)
		tag := f.create(ctx, s, "Tag", nil)
		_, err := car.Set(ctx, s, a, b)
		require.NoError(t, err)

		_, err = car.Set(ctx, s, a, tag)
		assert.ErrorIs(t, err, ErrTypeMismatch)
		_, err = car.Set(ctx, s, tag, b)
		assert.ErrorIs(t, err, ErrTypeMismatch)

		out := f.edges(ctx, s, a.ID, graph.Outgoing, "OWNS")
		require.Len(t, out, 1)
		assert.Equal(t, b.ID, out[0].EndID)
	})
}

func TestOneEnd_UnknownReferenceIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		_, err := f.rel("OWNS").Target().(*OneEnd).Set(ctx, s, a, Ref{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOneEnd_AcceptsSubtypeOwner(t *testing.T) {
	f := newFixture(t)
	car := f.rel("OWNS").Target().(*OneEnd)
	f.run(func(ctx context.Context, s *Session) {
		admin := f.create(ctx, s, "Admin", nil)
		b := f.create(ctx, s, "Car", nil)
		_, err := car.Set(ctx, s, admin, b.ID)
		require.NoError(t, err)

		owner, err := f.rel("OWNS").Source().(*OneStart).Get(ctx, s, b)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, owner.ID)
		assert.Equal(t, "Admin", owner.Type.Name)
	})
}

func TestOneEnd_GetWarnsOnViolatedMultiplicity(t *testing.T) {
	f := newFixture(t)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		b := f.create(ctx, s, "Car", nil)
		c := f.create(ctx, s, "Car", nil)
		_, err := s.Tx.CreateEdge(ctx, "OWNS", a.ID, b.ID, nil)
		require.NoError(t, err)
		_, err = s.Tx.CreateEdge(ctx, "OWNS", a.ID, c.ID, nil)
		require.NoError(t, err)

		got, err := f.rel("OWNS").Target().(*OneEnd).Get(ctx, s, a)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Contains(t, f.logs.String(), "multiplicity violated")
	})
}

func TestOneEnd_EdgeCarriesDecoratedAndNotionProperties(t *testing.T) {
	f := newFixture(t)
	f.run(func(ctx context.Context, s *Session) {
		a := f.create(ctx, s, "User", nil)
		b := f.create(ctx, s, "Car", nil)
		s.Notions.Put(NotionKey{Relation: "OWNS", OwnerID: a.ID, OtherID: b.ID}, map[string]any{"since": 2020})

		edge, err := f.rel("OWNS").Target().(*OneEnd).Set(ctx, s, a, Decorated{Entity: b, Properties: map[string]any{"plate": "X1"}})
		require.NoError(t, err)
		// OWNS declares no public properties, so the notion is dropped.
		assert.Equal(t, map[string]any{"plate": "X1"}, edge.Props)
	})
}

func TestManyToOne_OneEndSupersedesSourceEdge(t *testing.T) {
	f := newFixture(t)
	assigned := f.rel("ASSIGNED")
	require.Equal(t, ManyToOne, assigned.Kind)
	f.run(func(ctx context.Context, s *Session) {
		task := f.create(ctx, s, "Task", nil)
		u1 := f.create(ctx, s, "User", nil)
		u2 := f.create(ctx, s, "User", nil)
		assignee := assigned.Target().(*OneEnd)

		_, err := assignee.Set(ctx, s, task, u1)
		require.NoError(t, err)
		_, err = assignee.Set(ctx, s, task, u2)
		require.NoError(t, err)

		got, err := assignee.Get(ctx, s, task)
		require.NoError(t, err)
		assert.Equal(t, u2.ID, got.ID)

		tasks, err := assigned.Source().(*ManyStart).Get(ctx, s, u1, nil)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}
