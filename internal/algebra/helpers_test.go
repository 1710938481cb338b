package algebra_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"mra/internal/algebra"
	"mra/internal/domain"
	"mra/internal/testutil"
)

var ctx = context.Background()

// deviceSlices represents the ad space around the device regions.
func deviceSlices(t *testing.T, opts ...algebra.Option) *domain.SliceRelation {
	t.Helper()
	sr, err := algebra.Represent([]domain.RelationSchema{testutil.Schema("device")}, opts...).Build(ctx, testutil.AdSpace(t))
	require.NoError(t, err)
	return sr
}

func feature(t *testing.T, st domain.SliceTuple, name string) domain.Relation {
	t.Helper()
	rel, ok := st.Features.Get(name)
	require.True(t, ok, "feature %q missing from region %s (have %v)", name, st.Region, st.Features.Names())
	return rel
}

func regionKeys(sr *domain.SliceRelation) []string {
	var out []string
	for _, st := range sr.Tuples() {
		out = append(out, st.Region.String())
	}
	return out
}

func debugLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
