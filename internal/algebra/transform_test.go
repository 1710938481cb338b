package algebra_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mra/internal/algebra"
	"mra/internal/domain"
	"mra/internal/plugin"
	"mra/internal/testutil"
)

func countRows(_ domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	return domain.Single(domain.MustRelation([]string{"rows"}, []any{rel.Len()})), nil
}

// === SliceTransform ===

func TestSliceTransform_Modes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		tr        *testutil.MockTransformation
		wantNames []string
		check     func(t *testing.T, st domain.SliceTuple)
	}{
		{
			name:      "add new feature",
			tr:        &testutil.MockTransformation{SourceName: "by_day", TargetName: "day_count", TransMode: domain.ModeAdd, ApplyFn: countRows},
			wantNames: []string{"by_day", "self", "day_count"},
			check: func(t *testing.T, st domain.SliceTuple) {
				assert.True(t, domain.MustRelation([]string{"rows"}, []any{2}).Equal(feature(t, st, "day_count")))
			},
		},
		{
			name:      "mutate in place",
			tr:        &testutil.MockTransformation{SourceName: "by_day", TargetName: "by_day", TransMode: domain.ModeMutate, ApplyFn: countRows},
			wantNames: []string{"by_day", "self"},
			check: func(t *testing.T, st domain.SliceTuple) {
				assert.Equal(t, []string{"rows"}, feature(t, st, "by_day").Columns())
			},
		},
		{
			name:      "mutate defaults target to source",
			tr:        &testutil.MockTransformation{SourceName: "self", TransMode: domain.ModeMutate, ApplyFn: countRows},
			wantNames: []string{"by_day", "self"},
			check: func(t *testing.T, st domain.SliceTuple) {
				assert.Equal(t, []string{"rows"}, feature(t, st, "self").Columns())
				assert.Equal(t, []string{"day", "cost", "clicks"}, feature(t, st, "by_day").Columns())
			},
		},
		{
			name: "named outputs keep their order",
			tr: &testutil.MockTransformation{SourceName: "self", TransMode: domain.ModeAdd,
				ApplyFn: func(_ domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
					return domain.Many([]string{"zeta", "alpha"}, []domain.Relation{rel, rel}), nil
				}},
			wantNames: []string{"by_day", "self", "zeta", "alpha"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := deviceSlices(t)
			out, err := algebra.SliceTransform([]domain.Transformation{tt.tr}).Transform(in)
			require.NoError(t, err)
			require.Equal(t, 3, out.Len())
			assert.Len(t, tt.tr.Regions, 3)
			st := out.At(0)
			assert.Equal(t, tt.wantNames, st.Features.Names())
			if tt.check != nil {
				tt.check(t, st)
			}
			// The input is never modified.
			assert.Equal(t, []string{"by_day", "self"}, in.At(0).Features.Names())
			assert.Equal(t, 2, feature(t, in.At(0), "by_day").Len())
		})
	}
}

func TestSliceTransform_Chained(t *testing.T) {
	t.Parallel()
	op := algebra.SliceTransform([]domain.Transformation{
		plugin.Ratio("by_day", "cpc", "cost", "clicks", "cpc", domain.ModeAdd),
		plugin.Share("cpc", "", "cost", "", domain.ModeMutate),
	})
	out, err := op.Transform(deviceSlices(t))
	require.NoError(t, err)

	a, ok := out.Lookup(testutil.Region("device", "a"))
	require.True(t, ok)
	cpc := feature(t, a, "cpc")
	assert.Equal(t, []string{"day", "cost", "clicks", "cpc", "cost_share"}, cpc.Columns())
	shares, err := cpc.Column("cost_share")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{600.0 / 1300, 700.0 / 1300}, toFloats(t, shares), 1e-9)
}

func toFloats(t *testing.T, vals []any) []float64 {
	t.Helper()
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := domain.AsFloat(v)
		require.True(t, ok, "value %v is not numeric", v)
		out[i] = f
	}
	return out
}

func TestSliceTransform_SkipsMissingSource(t *testing.T) {
	t.Parallel()
	tr := &testutil.MockTransformation{SourceName: "by_week", TargetName: "x", TransMode: domain.ModeAdd}
	in := deviceSlices(t)
	out, err := algebra.SliceTransform([]domain.Transformation{tr}).Transform(in)
	require.NoError(t, err)
	assert.Empty(t, tr.Regions)
	assert.Equal(t, in.FeatureNames(), out.FeatureNames())
}

func TestSliceTransform_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("division by zero")
	tests := []struct {
		name     string
		tr       domain.Transformation
		wantKind domain.ErrorKind
	}{
		{
			name:     "add existing feature",
			tr:       &testutil.MockTransformation{SourceName: "by_day", TargetName: "self", TransMode: domain.ModeAdd},
			wantKind: domain.KindDuplicateFeature,
		},
		{
			name:     "add onto its own source",
			tr:       &testutil.MockTransformation{SourceName: "by_day", TransMode: domain.ModeAdd},
			wantKind: domain.KindDuplicateFeature,
		},
		{
			name:     "mutate missing feature",
			tr:       &testutil.MockTransformation{SourceName: "by_day", TargetName: "cpc", TransMode: domain.ModeMutate},
			wantKind: domain.KindMissingRelation,
		},
		{
			name: "plug-in failure",
			tr: &testutil.MockTransformation{SourceName: "by_day", TargetName: "cpc", TransMode: domain.ModeAdd,
				ApplyFn: func(domain.RelationTuple, domain.Relation) (domain.Output, error) { return domain.Output{}, boom }},
			wantKind: domain.KindTransformFailure,
		},
		{
			name:     "nil transformation",
			tr:       nil,
			wantKind: domain.KindInvalidSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := algebra.SliceTransform([]domain.Transformation{tt.tr}).Transform(deviceSlices(t))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err), "error: %v", err)
			if tt.wantKind == domain.KindTransformFailure {
				assert.ErrorIs(t, err, boom)
			}
		})
	}
}

func TestSliceTransform_DrillDown(t *testing.T) {
	t.Parallel()
	sr, err := algebra.Represent([]domain.RelationSchema{
		testutil.Schema("device"),
		testutil.Schema("device", "day"),
	}).Build(ctx, testutil.AdSpace(t))
	require.NoError(t, err)

	op := algebra.SliceTransform(nil, algebra.WithDrillDown(
		testutil.Region("device", "a"),
		testutil.Region("device", "c"),
		testutil.Region("day", "2024-01-01"),
	))
	out, err := op.Transform(sr)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"(device=a)", "(device=b)", "(device=c)",
		"(day=2024-01-01, device=a)",
		"(day=2024-01-01, device=c)",
	}, regionKeys(out))
}

func TestSliceTransform_ApplyChecksKind(t *testing.T) {
	t.Parallel()
	op := algebra.SliceTransform(nil)
	assert.Equal(t, algebra.StageSliceTransform, op.Name())
	_, err := op.Apply(ctx, testutil.AdSpace(t))
	assert.True(t, domain.IsKind(err, domain.KindTypeMismatch))
}
