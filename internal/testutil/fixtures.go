package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mra/internal/domain"
	"mra/internal/engine"
)

// AdColumns are the columns of the ad performance base table.
var AdColumns = []string{"device", "day", "cost", "clicks"}

// AdKeys are the grouping keys of the ad performance cube.
var AdKeys = []string{"device", "day"}

// AdSpec sums cost and clicks.
var AdSpec = domain.AggregationSpec{
	{Column: "cost", Func: domain.AggSum},
	{Column: "clicks", Func: domain.AggSum},
}

// AdPerformance returns a small ad performance table. Totals per device: a spends
// 1300, b 500, c 1300; c has a day with zero clicks and two rows for 2024-01-01.
func AdPerformance() domain.Relation {
	return domain.MustRelation(AdColumns,
		[]any{"a", "2024-01-01", 600.0, 300},
		[]any{"a", "2024-01-02", 700.0, 350},
		[]any{"b", "2024-01-01", 200.0, 100},
		[]any{"b", "2024-01-02", 300.0, 50},
		[]any{"c", "2024-01-01", 900.0, 300},
		[]any{"c", "2024-01-01", 300.0, 100},
		[]any{"c", "2024-01-03", 100.0, 0},
	)
}

// AdSpace builds the ad performance cube with the in-memory engine.
func AdSpace(t *testing.T) *domain.RelationSpace {
	t.Helper()
	sets, err := engine.NewMemory().GroupByCube(context.Background(), AdPerformance(), AdKeys, AdSpec)
	require.NoError(t, err)
	b := domain.NewSpaceBuilder(AdKeys...)
	for _, s := range sets {
		b.Add(s.Schema, s.Relation)
	}
	space, err := b.Build()
	require.NoError(t, err)
	return space
}

// Schema is shorthand for domain.MustSchema.
func Schema(cols ...string) domain.RelationSchema { return domain.MustSchema(cols...) }

// Region is shorthand for a single-column region tuple.
func Region(col string, v any) domain.RelationTuple {
	return domain.MustTuple(map[string]any{col: v})
}
