// Package engine provides the tabular engines the algebra runs on: an in-process
// engine over domain relations and a DuckDB-backed engine for cube aggregation.
package engine

import (
	"context"
	"slices"
	"sort"

	"mra/internal/domain"
)

// Compile-time check.
var _ domain.TabularEngine = (*Memory)(nil)

// Memory evaluates every primitive in process over domain.Relation values.
type Memory struct{}

// NewMemory creates a Memory engine.
func NewMemory() *Memory { return &Memory{} }

// GroupByCube aggregates base over every subset of keys, widest first.
func (m *Memory) GroupByCube(ctx context.Context, base domain.Relation, keys []string, spec domain.AggregationSpec) ([]domain.GroupingSet, error) {
	if err := checkCubeArgs(base, keys, spec); err != nil {
		return nil, err
	}
	n := len(keys)
	out := make([]domain.GroupingSet, 0, 1<<n)
	for _, subset := range Subsets(keys) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := aggregateGroups(base, subset, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.GroupingSet{Schema: domain.MustSchema(subset...), Relation: rel})
	}
	return out, nil
}

// Subsets enumerates the power set of keys from the full set down to the empty set.
// Each subset keeps the order of keys.
func Subsets(keys []string) [][]string {
	n := len(keys)
	full := (1 << n) - 1
	out := make([][]string, 0, 1<<n)
	for mask := full; mask >= 0; mask-- {
		var subset []string
		for i := 0; i < n; i++ {
			// bit i set means keys[i] is grouped
			if mask&(1<<(n-1-i)) != 0 {
				subset = append(subset, keys[i])
			}
		}
		out = append(out, subset)
	}
	return out
}

func checkCubeArgs(base domain.Relation, keys []string, spec domain.AggregationSpec) error {
	if _, err := domain.NewSchema(keys...); err != nil {
		return err
	}
	for _, k := range keys {
		if !base.HasColumn(k) {
			return domain.ErrInvalidSchema("grouping key %q not found in base relation %v", k, base.Columns())
		}
	}
	return spec.Validate(base, keys)
}

type group struct {
	key  []any
	rows []int
}

// aggregateGroups groups base by cols, dropping rows with a nil key value, and
// returns one row per group ordered by ascending key.
func aggregateGroups(base domain.Relation, cols []string, spec domain.AggregationSpec) (domain.Relation, error) {
	columns := append(slices.Clone(cols), spec.Outputs()...)
	if base.IsEmpty() {
		return domain.EmptyRelation(columns...)
	}

	groups := map[string]*group{}
	var order []*group
	base.Rows(func(i int, row domain.Row) bool {
		key := make([]any, len(cols))
		for j, c := range cols {
			v := row.Value(c)
			if v == nil {
				return true
			}
			key[j] = v
		}
		k := base.RowKey(i, cols)
		g, ok := groups[k]
		if !ok {
			g = &group{key: key}
			groups[k] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, i)
		return true
	})
	sort.SliceStable(order, func(a, b int) bool {
		return compareKeys(order[a].key, order[b].key) < 0
	})

	rows := make([][]any, 0, len(order))
	for _, g := range order {
		vals := slices.Clone(g.key)
		for _, a := range spec {
			col := make([]any, len(g.rows))
			for j, ri := range g.rows {
				col[j] = base.Row(ri).Value(a.Column)
			}
			fn, _ := domain.ParseAggFunc(string(a.Func))
			v, err := Aggregate(fn, col)
			if err != nil {
				return domain.Relation{}, domain.ErrInvalidSchema("aggregate %s(%s): %s", fn, a.Column, err.Error())
			}
			vals = append(vals, v)
		}
		rows = append(rows, vals)
	}
	return domain.NewRelation(columns, rows)
}

func compareKeys(a, b []any) int {
	for i := range a {
		if c := domain.CompareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Select keeps the rows accepted by keep.
func (m *Memory) Select(_ context.Context, rel domain.Relation, keep func(domain.Row) bool) (domain.Relation, error) {
	return rel.Filter(keep), nil
}

// Project keeps columns in the given order.
func (m *Memory) Project(_ context.Context, rel domain.Relation, columns []string) (domain.Relation, error) {
	return rel.Project(columns...)
}

// Concat stacks relations sharing one column set.
func (m *Memory) Concat(_ context.Context, rels []domain.Relation) (domain.Relation, error) {
	return domain.Concat(rels...)
}

// GroupRows partitions rel by columns in first-appearance order.
func (m *Memory) GroupRows(_ context.Context, rel domain.Relation, columns []string) ([]domain.RowGroup, error) {
	if !rel.HasColumns(columns...) {
		return nil, domain.ErrInvalidSchema("cannot group %v by %v", rel.Columns(), columns)
	}
	idx := map[string]int{}
	var keys []domain.RelationTuple
	var members [][]int
	for i := 0; i < rel.Len(); i++ {
		k := rel.RowKey(i, columns)
		j, ok := idx[k]
		if !ok {
			t, err := rel.Tuple(i, columns)
			if err != nil {
				return nil, err
			}
			j = len(keys)
			idx[k] = j
			keys = append(keys, t)
			members = append(members, nil)
		}
		members[j] = append(members[j], i)
	}
	out := make([]domain.RowGroup, len(keys))
	cols := rel.Columns()
	for j, key := range keys {
		rows := make([][]any, len(members[j]))
		for n, i := range members[j] {
			rows[n] = rel.Row(i).Values()
		}
		part, err := domain.NewRelation(cols, rows)
		if err != nil {
			return nil, err
		}
		out[j] = domain.RowGroup{Key: key, Relation: part}
	}
	return out, nil
}

// Join full-outer-joins right onto left on the on columns. Right contributes only
// the columns left does not already carry. Unmatched left rows get nil for those
// columns; unmatched right rows follow, with nil for the columns only left has.
func (m *Memory) Join(_ context.Context, left, right domain.Relation, on []string) (domain.Relation, error) {
	if !left.HasColumns(on...) || !right.HasColumns(on...) {
		return domain.Relation{}, domain.ErrInvalidSchema("join columns %v missing from %v or %v", on, left.Columns(), right.Columns())
	}
	var extra []string
	for _, c := range right.Columns() {
		if !left.HasColumn(c) {
			extra = append(extra, c)
		}
	}
	matches := map[string][]int{}
	for i := 0; i < right.Len(); i++ {
		k := right.RowKey(i, on)
		matches[k] = append(matches[k], i)
	}

	columns := append(left.Columns(), extra...)
	matched := make([]bool, right.Len())
	var rows [][]any
	for i := 0; i < left.Len(); i++ {
		lv := left.Row(i).Values()
		hits := matches[left.RowKey(i, on)]
		if len(hits) == 0 {
			rows = append(rows, append(lv, make([]any, len(extra))...))
			continue
		}
		for _, ri := range hits {
			matched[ri] = true
			rr := right.Row(ri)
			vals := slices.Clone(lv)
			for _, c := range extra {
				vals = append(vals, rr.Value(c))
			}
			rows = append(rows, vals)
		}
	}
	for ri, ok := range matched {
		if ok {
			continue
		}
		rr := right.Row(ri)
		vals := make([]any, len(columns))
		for j, c := range columns {
			vals[j] = rr.Value(c)
		}
		rows = append(rows, vals)
	}
	return domain.NewRelation(columns, rows)
}
