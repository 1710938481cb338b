package plugin_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mra/internal/domain"
	"mra/internal/plugin"
	"mra/internal/testutil"
)

func selfFeatures(t *testing.T, rel domain.Relation) domain.Features {
	t.Helper()
	f, err := domain.NewFeatures([]string{"self"}, []domain.Relation{rel})
	require.NoError(t, err)
	return f
}

var byDay = domain.MustRelation([]string{"day", "cost", "clicks"},
	[]any{"2024-01-01", 600.0, 300},
	[]any{"2024-01-02", 700.0, 350},
)

// === Predicate ===

func TestStarlarkPredicateExpr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"sum above threshold", `features["self"].sum("cost") > 1000`, true},
		{"sum below threshold", `features["self"].sum("cost") > 2000`, false},
		{"region value", `region["device"] == "a"`, true},
		{"row count", `len(features["self"]) == 2`, true},
		{"mean", `features["self"].mean("clicks") == 325.0`, true},
		{"min max", `features["self"].min("day") < features["self"].max("day")`, true},
		{"missing feature", `"by_day" in features`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := plugin.NewStarlarkPredicateExpr("check", tt.expr, plugin.Limits{})
			require.NoError(t, err)
			got, err := p.Evaluate(testutil.Region("device", "a"), selfFeatures(t, byDay))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStarlarkPredicate_Script(t *testing.T) {
	t.Parallel()
	src := `
def predicate(region, features):
    total = 0
    for row in features["self"]:
        total += row["clicks"]
    return total >= 650
`
	p, err := plugin.NewStarlarkPredicate("clicks", src, plugin.Limits{})
	require.NoError(t, err)
	got, err := p.Evaluate(testutil.Region("device", "a"), selfFeatures(t, byDay))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestStarlarkPredicate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		limits  plugin.Limits
		loadErr string
		evalErr string
	}{
		{name: "syntax error", src: "def predicate(region, features)\n    return True\n", loadErr: "load starlark script"},
		{name: "missing entry", src: "def other():\n    return True\n", loadErr: "does not define predicate()"},
		{name: "entry not callable", src: "predicate = 3\n", loadErr: "not a function"},
		{name: "oversized", src: "#" + strings.Repeat("x", 256*1024+1), loadErr: "exceeds"},
		{name: "non-bool result", src: "def predicate(region, features):\n    return 1\n", evalErr: "want bool"},
		{name: "unknown column", src: "def predicate(region, features):\n    return features[\"self\"].sum(\"nope\") > 0\n", evalErr: "not found"},
		{
			name:    "step limit",
			src:     "def predicate(region, features):\n    n = 0\n    for i in range(100000):\n        n += i\n    return n > 0\n",
			limits:  plugin.Limits{MaxSteps: 100, Timeout: time.Second},
			evalErr: "too many steps",
		},
		{
			name:    "timeout",
			src:     "def predicate(region, features):\n    n = 0\n    for i in range(1000000000):\n        n += i\n    return n > 0\n",
			limits:  plugin.Limits{MaxSteps: 1 << 40, Timeout: 5 * time.Millisecond},
			evalErr: "timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := plugin.NewStarlarkPredicate(tt.name, tt.src, tt.limits)
			if tt.loadErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.loadErr)
				return
			}
			require.NoError(t, err)
			_, err = p.Evaluate(testutil.Region("device", "a"), selfFeatures(t, byDay))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.evalErr)
		})
	}
}

func TestStarlarkPredicateExpr_RejectsMultiline(t *testing.T) {
	t.Parallel()
	_, err := plugin.NewStarlarkPredicateExpr("bad", "True\nFalse", plugin.Limits{})
	require.Error(t, err)
	_, err = plugin.NewStarlarkPredicateExpr("bad", "  ", plugin.Limits{})
	require.Error(t, err)
}

// === Transformation ===

func TestStarlarkTransformation_WithColumn(t *testing.T) {
	t.Parallel()
	src := `
def transform(region, rel):
    cpc = [c / k if k else 0.0 for c, k in zip(rel.column("cost"), rel.column("clicks"))]
    return rel.with_column("cpc", cpc)
`
	tr, err := plugin.NewStarlarkTransformation("by_day", "cpc", domain.ModeAdd, "cpc", src, plugin.Limits{})
	require.NoError(t, err)
	assert.Equal(t, "by_day", tr.Source())
	assert.Equal(t, "cpc", tr.Target())
	assert.Equal(t, domain.ModeAdd, tr.Mode())

	out, err := tr.Apply(testutil.Region("device", "a"), byDay)
	require.NoError(t, err)
	want := domain.MustRelation([]string{"day", "cost", "clicks", "cpc"},
		[]any{"2024-01-01", 600.0, 300, 2.0},
		[]any{"2024-01-02", 700.0, 350, 2.0},
	)
	assert.True(t, want.Equal(out.Single), "got:\n%s", out.Single)
}

func TestStarlarkTransformation_ManyOutputs(t *testing.T) {
	t.Parallel()
	src := `
def transform(region, rel):
    return {
        "costs": rel.select("day", "cost"),
        "label": relation(["device", "rows"], [[region["device"], rel.rows]]),
    }
`
	tr, err := plugin.NewStarlarkTransformation("by_day", "", domain.ModeAdd, "split", src, plugin.Limits{})
	require.NoError(t, err)
	out, err := tr.Apply(testutil.Region("device", "a"), byDay)
	require.NoError(t, err)
	require.True(t, out.IsMany())
	assert.Equal(t, []string{"costs", "label"}, out.Order)
	assert.Equal(t, []string{"day", "cost"}, out.Many["costs"].Columns())
	assert.True(t, domain.MustRelation([]string{"device", "rows"}, []any{"a", 2}).Equal(out.Many["label"]))
}

func TestStarlarkTransformation_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"wrong return type", "def transform(region, rel):\n    return 1\n", "want relation or dict"},
		{"dict with non relation", "def transform(region, rel):\n    return {\"x\": 1}\n", "want relation"},
		{"dict with non string key", "def transform(region, rel):\n    return {1: rel}\n", "not a string"},
		{"value count mismatch", "def transform(region, rel):\n    return rel.with_column(\"x\", [1])\n", "1 values for 2 rows"},
		{"unsupported cell", "def transform(region, rel):\n    return rel.with_column(\"x\", [[1], [2]])\n", "cannot convert"},
		{"bad relation rows", "def transform(region, rel):\n    return relation([\"a\"], [1])\n", "not a list or tuple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := plugin.NewStarlarkTransformation("by_day", "out", domain.ModeAdd, "bad", tt.src, plugin.Limits{})
			require.NoError(t, err)
			_, err = tr.Apply(testutil.Region("device", "a"), byDay)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestStarlarkTransformation_MissingEntry(t *testing.T) {
	t.Parallel()
	_, err := plugin.NewStarlarkTransformation("self", "", domain.ModeMutate, "empty", "x = 1\n", plugin.Limits{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not define transform()")
}
