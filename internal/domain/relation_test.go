package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRelation() Relation {
	return MustRelation([]string{"day", "cost", "clicks"},
		[]any{"d1", 10.0, 5},
		[]any{"d2", 20.0, 0},
		[]any{"d3", nil, 4},
	)
}

// === Construction ===

func TestNewRelation(t *testing.T) {
	tests := []struct {
		name    string
		cols    []string
		rows    [][]any
		wantErr string
	}{
		{name: "valid", cols: []string{"a", "b"}, rows: [][]any{{1, "x"}, {int8(2), nil}}},
		{name: "no rows", cols: []string{"a"}},
		{name: "duplicate column", cols: []string{"a", "a"}, wantErr: "duplicate column"},
		{name: "short row", cols: []string{"a", "b"}, rows: [][]any{{1}}, wantErr: "row 0 has 1 values, want 2"},
		{name: "unsupported value", cols: []string{"a"}, rows: [][]any{{struct{}{}}}, wantErr: "unsupported value"},
		{name: "overflow", cols: []string{"a"}, rows: [][]any{{uint64(1 << 63)}}, wantErr: "unsupported value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRelation(tt.cols, tt.rows)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindInvalidSchema))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.rows), r.Len())
		})
	}
}

func TestNewRelation_NormalizesAndCopies(t *testing.T) {
	rows := [][]any{{int32(7), float32(0.5), []byte("x")}}
	r, err := NewRelation([]string{"i", "f", "s"}, rows)
	require.NoError(t, err)

	rows[0][0] = int32(99)
	assert.Equal(t, int64(7), r.Row(0).Value("i"), "input rows are copied")
	assert.Equal(t, 0.5, r.Row(0).Value("f"))
	assert.Equal(t, "x", r.Row(0).Value("s"))
}

// === Operations ===

func TestRelation_Project(t *testing.T) {
	r := sampleRelation()
	p, err := r.Project("clicks", "day")
	require.NoError(t, err)
	assert.Equal(t, []string{"clicks", "day"}, p.Columns())
	assert.Equal(t, int64(5), p.Row(0).Value("clicks"))
	assert.Equal(t, []string{"day", "cost", "clicks"}, r.Columns(), "receiver unchanged")

	_, err = r.Project("spend")
	assert.True(t, IsKind(err, KindInvalidSchema))
}

func TestRelation_Filter(t *testing.T) {
	r := sampleRelation()
	f := r.Filter(func(row Row) bool { return row.Value("cost") != nil })
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 3, r.Len())
}

func TestRelation_WithColumn(t *testing.T) {
	r := sampleRelation()

	added, err := r.WithColumn("double", func(row Row) (any, error) {
		f, ok := AsFloat(row.Value("cost"))
		if !ok {
			return nil, nil
		}
		return f * 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"day", "cost", "clicks", "double"}, added.Columns())
	assert.Equal(t, 40.0, added.Row(1).Value("double"))
	assert.Nil(t, added.Row(2).Value("double"))

	replaced, err := r.WithColumn("clicks", func(Row) (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, r.Columns(), replaced.Columns())
	assert.Equal(t, int64(1), replaced.Row(0).Value("clicks"))
	assert.Equal(t, int64(5), r.Row(0).Value("clicks"), "receiver unchanged")

	boom := errors.New("boom")
	_, err = r.WithColumn("x", func(Row) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRelation_Prepend(t *testing.T) {
	r := sampleRelation()
	region := MustTuple(map[string]any{"device": "a"})

	p, err := r.Prepend(region)
	require.NoError(t, err)
	assert.Equal(t, []string{"device", "day", "cost", "clicks"}, p.Columns())
	assert.Equal(t, "a", p.Row(2).Value("device"))

	again, err := p.Prepend(region)
	require.NoError(t, err)
	assert.True(t, p.Equal(again), "carried region columns are kept as they are")

	partial, err := p.Prepend(MustTuple(map[string]any{"device": "a", "campaign": "c1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign", "device", "day", "cost", "clicks"}, partial.Columns())
	assert.Equal(t, "c1", partial.Row(0).Value("campaign"))

	_, err = p.Prepend(MustTuple(map[string]any{"device": "b"}))
	assert.True(t, IsKind(err, KindSchemaMismatch), "error: %v", err)
}

func TestConcat(t *testing.T) {
	a := MustRelation([]string{"x", "y"}, []any{1, "a"})
	b := MustRelation([]string{"y", "x"}, []any{"b", 2})

	c, err := Concat(a, b)
	require.NoError(t, err)
	want := MustRelation([]string{"x", "y"}, []any{1, "a"}, []any{2, "b"})
	assert.True(t, want.Equal(c))

	_, err = Concat(a, MustRelation([]string{"x"}, []any{1}))
	assert.True(t, IsKind(err, KindSchemaMismatch))

	_, err = Concat()
	assert.Error(t, err)
}

func TestRelation_Equality(t *testing.T) {
	a := MustRelation([]string{"x", "y"}, []any{1, "a"}, []any{2, "b"})
	reordered := MustRelation([]string{"y", "x"}, []any{"b", 2}, []any{"a", 1})

	assert.False(t, a.Equal(reordered), "row order matters for Equal")
	assert.True(t, a.SameRows(reordered))
	assert.False(t, a.SameRows(MustRelation([]string{"x", "y"}, []any{1, "a"}, []any{1, "a"})))
	assert.False(t, MustRelation([]string{"x"}, []any{1}).Equal(MustRelation([]string{"x"}, []any{1.0})), "int and float differ")
}

func TestRelation_Tuple(t *testing.T) {
	r := MustRelation([]string{"device", "day"}, []any{"a", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	tup, err := r.Tuple(0, []string{"device"})
	require.NoError(t, err)
	assert.Equal(t, "(device=a)", tup.String())

	_, err = r.Tuple(0, []string{"region"})
	assert.Error(t, err)
}

// === Values ===

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{nil, false, -1},
		{true, int64(0), -1},
		{int64(1), 1.5, -1},
		{2.5, int64(2), 1},
		{int64(3), int64(3), 0},
		{"a", "b", -1},
		{"z", int64(9), 1},
		{time.Unix(1, 0), time.Unix(0, 0), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareValues(tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}
}
