package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceBuilder(t *testing.T) {
	byDevice := MustRelation([]string{"device", "cost"}, []any{"a", 1.0})
	byDay := MustRelation([]string{"day", "cost"}, []any{"d1", 1.0})
	total := MustRelation([]string{"cost"}, []any{2.0})

	space, err := NewSpaceBuilder("device", "day").
		Add(MustSchema("device"), byDevice).
		Add(MustSchema("day"), byDay).
		Add(MustSchema(), total).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 3, space.Len())
	assert.Equal(t, "RelationSpace[{device}, {day}, {}]", space.String())
	assert.True(t, space.Dimensions().Equal(MustSchema("day", "device")))

	got, ok := space.Get(MustSchema("day"))
	require.True(t, ok)
	assert.True(t, byDay.Equal(got))

	_, err = space.MustGet(MustSchema("device", "day"))
	assert.True(t, IsKind(err, KindMissingRelation))

	var seen []string
	space.Each(func(s RelationSchema, _ Relation) bool {
		seen = append(seen, s.String())
		return len(seen) < 2
	})
	assert.Equal(t, []string{"{device}", "{day}"}, seen)
}

func TestSpaceBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dims    []string
		schema  RelationSchema
		rel     Relation
		wantErr string
	}{
		{
			name:    "missing key column",
			schema:  MustSchema("device"),
			rel:     MustRelation([]string{"cost"}, []any{1.0}),
			wantErr: `does not carry key column "device"`,
		},
		{
			name:    "extra dimension column",
			dims:    []string{"device", "day"},
			schema:  MustSchema("device"),
			rel:     MustRelation([]string{"device", "day", "cost"}, []any{"a", "d1", 1.0}),
			wantErr: "do not match key",
		},
		{
			name:    "bad dimensions",
			dims:    []string{"x", "x"},
			schema:  MustSchema(),
			rel:     MustRelation([]string{"cost"}, []any{1.0}),
			wantErr: "duplicate column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpaceBuilder(tt.dims...).Add(tt.schema, tt.rel).Build()
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInvalidSchema))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("duplicate key", func(t *testing.T) {
		rel := MustRelation([]string{"device"}, []any{"a"})
		b := NewSpaceBuilder().Add(MustSchema("device"), rel).Add(MustSchema("device"), rel)
		assert.ErrorContains(t, b.Err(), "already present")
	})
}

func TestRelationSpace_Nil(t *testing.T) {
	var s *RelationSpace
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Schemas())
	_, ok := s.Get(MustSchema())
	assert.False(t, ok)
}
