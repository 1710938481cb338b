package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationTuple(t *testing.T) {
	a := MustTuple(map[string]any{"device": "a", "day": "d1"})
	b := MustTuple(map[string]any{"day": "d1", "device": "a"})

	assert.True(t, a.Equal(b))
	assert.Equal(t, []string{"day", "device"}, a.Columns())
	assert.Equal(t, []any{"d1", "a"}, a.Values())
	assert.True(t, a.Schema().Equal(MustSchema("device", "day")))
	assert.Equal(t, "(day=d1, device=a)", a.String())

	v, ok := a.Get("device")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = a.Get("region")
	assert.False(t, ok)

	parent := a.Without("day")
	assert.Equal(t, "(device=a)", parent.String())

	assert.False(t, MustTuple(map[string]any{"n": 1}).Equal(MustTuple(map[string]any{"n": 1.0})))
	assert.True(t, MustTuple(nil).Equal(MustTuple(map[string]any{})))

	row := MustRelation([]string{"device", "day", "cost"}, []any{"a", "d1", 3.0}).Row(0)
	assert.True(t, a.Matches(row))
	assert.False(t, MustTuple(map[string]any{"device": "b"}).Matches(row))

	_, err := NewTuple(map[string]any{"": 1})
	assert.True(t, IsKind(err, KindInvalidSchema))
}

func TestFeatures_CopyOnWrite(t *testing.T) {
	r1 := MustRelation([]string{"x"}, []any{1})
	r2 := MustRelation([]string{"x"}, []any{2})

	f, err := NewFeatures([]string{"by_day", "self"}, []Relation{r1, r1})
	require.NoError(t, err)

	g := f.With("cpc", r2)
	assert.Equal(t, []string{"by_day", "self"}, f.Names(), "original untouched")
	assert.Equal(t, []string{"by_day", "self", "cpc"}, g.Names())

	h := g.With("by_day", r2)
	assert.Equal(t, []string{"by_day", "self", "cpc"}, h.Names(), "replacement keeps position")
	got, _ := h.Get("by_day")
	assert.True(t, r2.Equal(got))
	got, _ = g.Get("by_day")
	assert.True(t, r1.Equal(got))

	assert.Equal(t, []string{"by_day", "cpc"}, h.Without("self").Names())
	assert.Equal(t, 3, h.Len())

	_, err = NewFeatures([]string{"a", "a"}, []Relation{r1, r1})
	assert.True(t, IsKind(err, KindDuplicateFeature))
	_, err = NewFeatures([]string{"a"}, nil)
	assert.Error(t, err)
}

func TestSliceRelation(t *testing.T) {
	rel := MustRelation([]string{"x"}, []any{1})
	f, err := NewFeatures([]string{"f"}, []Relation{rel})
	require.NoError(t, err)
	a := MustTuple(map[string]any{"device": "a"})
	d := MustTuple(map[string]any{"day": "d1"})

	s, err := NewSliceRelation([]SliceTuple{
		{Region: a, Features: f},
		{Region: d, Features: f.With("g", rel)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, KindSlices, s.Kind())

	got, ok := s.Lookup(MustTuple(map[string]any{"day": "d1"}))
	require.True(t, ok)
	assert.Equal(t, 2, got.Features.Len())

	schemas := s.RegionSchemas()
	require.Len(t, schemas, 2)
	assert.True(t, schemas[0].Equal(MustSchema("device")))
	assert.Equal(t, []string{"f", "g"}, s.FeatureNames())

	_, err = NewSliceRelation([]SliceTuple{{Region: a, Features: f}, {Region: a, Features: f}})
	assert.True(t, IsKind(err, KindInvalidSchema))
	assert.Contains(t, err.Error(), "duplicate region")
}
