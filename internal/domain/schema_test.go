package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema(t *testing.T) {
	tests := []struct {
		name    string
		cols    []string
		wantErr string
	}{
		{name: "valid", cols: []string{"device", "day"}},
		{name: "empty schema", cols: nil},
		{name: "blank column", cols: []string{"device", " "}, wantErr: "must not be empty"},
		{name: "duplicate column", cols: []string{"day", "day"}, wantErr: `duplicate column "day"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.cols...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, KindInvalidSchema, KindOf(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.cols), s.Len())
		})
	}
}

func TestSchema_SetSemantics(t *testing.T) {
	ab := MustSchema("a", "b")
	ba := MustSchema("b", "a")
	abc := MustSchema("a", "b", "c")

	assert.True(t, ab.Equal(ba), "order does not affect identity")
	assert.Equal(t, ab.Key(), ba.Key())
	assert.Equal(t, []string{"b", "a"}, ba.Columns(), "order is kept for output")
	assert.Equal(t, []string{"a", "b"}, ba.Sorted())

	assert.True(t, ab.IsSubsetOf(abc))
	assert.True(t, ab.IsStrictSubsetOf(abc))
	assert.False(t, abc.IsStrictSubsetOf(abc))
	assert.True(t, MustSchema().IsStrictSubsetOf(ab))

	assert.Equal(t, []string{"c"}, abc.Minus(ba).Columns())
	assert.Equal(t, []string{"b", "a", "c"}, ba.Union(abc).Columns())
	assert.Equal(t, []string{"b"}, abc.Intersect(MustSchema("b", "z")).Columns())
	assert.Equal(t, "{b, a}", ba.String())
}

func TestMustSchema_Panics(t *testing.T) {
	assert.Panics(t, func() { MustSchema("x", "x") })
}
