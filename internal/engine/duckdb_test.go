package engine_test

import (
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mra/internal/domain"
	"mra/internal/engine"
	"mra/internal/testutil"
)

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := engine.OpenDuckDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDuckDB_GroupByCube_MatchesMemory(t *testing.T) {
	t.Parallel()

	duck := engine.NewDuckDB(openDuckDB(t), slog.New(slog.DiscardHandler))
	got, err := duck.GroupByCube(ctx, testutil.AdPerformance(), testutil.AdKeys, testutil.AdSpec)
	require.NoError(t, err)
	want, err := engine.NewMemory().GroupByCube(ctx, testutil.AdPerformance(), testutil.AdKeys, testutil.AdSpec)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Schema.Equal(got[i].Schema), "set %d schema %s vs %s", i, want[i].Schema, got[i].Schema)
		assert.Equal(t, want[i].Relation.Columns(), got[i].Relation.Columns())
		assert.True(t, want[i].Relation.Equal(got[i].Relation), "set %s:\nwant\n%s\ngot\n%s", want[i].Schema, want[i].Relation, got[i].Relation)
	}
}

func TestDuckDB_GroupByCube_Aggregations(t *testing.T) {
	t.Parallel()

	base := domain.MustRelation([]string{"k", "v", "s", "ts"},
		[]any{"x", 1, "p", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		[]any{"x", 3, "q", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		[]any{"x", nil, "p", nil},
		[]any{nil, 5, "r", nil},
	)
	spec := domain.AggregationSpec{
		{Column: "v", Func: domain.AggSum, As: "v_sum"},
		{Column: "v", Func: domain.AggCount, As: "v_count"},
		{Column: "v", Func: "avg", As: "v_mean"},
		{Column: "s", Func: domain.AggCountDistinct, As: "s_distinct"},
		{Column: "ts", Func: domain.AggMin, As: "first_seen"},
	}
	duck := engine.NewDuckDB(openDuckDB(t), nil)
	sets, err := duck.GroupByCube(ctx, base, []string{"k"}, spec)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	byKey := sets[0].Relation
	require.Equal(t, 1, byKey.Len(), "nil keys are dropped")
	row := byKey.Row(0)
	assert.Equal(t, "x", row.Value("k"))
	assert.Equal(t, int64(4), row.Value("v_sum"))
	assert.Equal(t, int64(2), row.Value("v_count"))
	assert.Equal(t, 2.0, row.Value("v_mean"))
	assert.Equal(t, int64(2), row.Value("s_distinct"))
	first, ok := row.Value("first_seen").(time.Time)
	require.True(t, ok)
	assert.True(t, first.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	total := sets[1].Relation
	require.Equal(t, 1, total.Len())
	assert.Equal(t, int64(9), total.Row(0).Value("v_sum"))
}

func TestDuckDB_GroupByCube_NoKeys(t *testing.T) {
	t.Parallel()

	duck := engine.NewDuckDB(openDuckDB(t), nil)
	sets, err := duck.GroupByCube(ctx, testutil.AdPerformance(), nil, testutil.AdSpec)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	want := domain.MustRelation([]string{"cost", "clicks"}, []any{3100.0, 1200})
	assert.True(t, want.Equal(sets[0].Relation), sets[0].Relation.String())
}

func TestDuckDB_GroupByCube_Errors(t *testing.T) {
	t.Parallel()

	duck := engine.NewDuckDB(openDuckDB(t), nil)

	t.Run("mixed_types", func(t *testing.T) {
		base := domain.MustRelation([]string{"k", "v"}, []any{"x", 1}, []any{"y", "two"})
		_, err := duck.GroupByCube(ctx, base, []string{"k"}, domain.AggregationSpec{{Column: "v", Func: domain.AggCount}})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindInvalidSchema), err)
		assert.Contains(t, err.Error(), "mixes")
	})

	t.Run("sum_strings", func(t *testing.T) {
		_, err := duck.GroupByCube(ctx, testutil.AdPerformance(), []string{"day"}, domain.AggregationSpec{{Column: "device", Func: domain.AggSum}})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindInvalidSchema), err)
	})

	t.Run("closed_database", func(t *testing.T) {
		db := openDuckDB(t)
		require.NoError(t, db.Close())
		_, err := engine.NewDuckDB(db, nil).GroupByCube(ctx, testutil.AdPerformance(), testutil.AdKeys, testutil.AdSpec)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindEngineFailure), err)
	})
}

func TestDuckDB_EmptyBase(t *testing.T) {
	t.Parallel()

	base, err := domain.EmptyRelation(testutil.AdColumns...)
	require.NoError(t, err)
	sets, err := engine.NewDuckDB(openDuckDB(t), nil).GroupByCube(ctx, base, testutil.AdKeys, testutil.AdSpec)
	require.NoError(t, err)
	require.Len(t, sets, 4)
	for _, s := range sets {
		assert.True(t, s.Relation.IsEmpty())
	}
}
