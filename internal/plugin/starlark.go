package plugin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"mra/internal/domain"
	"mra/internal/engine"
)

const (
	// DefaultMaxSteps bounds the Starlark execution steps of one call.
	DefaultMaxSteps = uint64(1_000_000)
	// DefaultTimeout bounds the wall time of one call.
	DefaultTimeout = 2 * time.Second

	maxScriptBytes = 256 * 1024

	predicateEntry = "predicate"
	transformEntry = "transform"
)

// Limits bounds script execution. Zero values select the defaults.
type Limits struct {
	MaxSteps uint64
	Timeout  time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxSteps == 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	if l.Timeout == 0 {
		l.Timeout = DefaultTimeout
	}
	return l
}

// script is a loaded Starlark module exposing one entry function. Globals are
// frozen after loading, so calls may run concurrently on separate threads.
type script struct {
	name   string
	entry  string
	fn     starlark.Callable
	limits Limits
}

func loadScript(name, src, entry string, limits Limits) (*script, error) {
	if len(src) > maxScriptBytes {
		return nil, fmt.Errorf("starlark script %q exceeds %d bytes", name, maxScriptBytes)
	}
	limits = limits.withDefaults()
	thread := &starlark.Thread{Name: "load-" + name}
	thread.SetMaxExecutionSteps(limits.MaxSteps)
	var globals starlark.StringDict
	err := runWithTimeout(thread, limits.Timeout, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name+".star", src, builtins)
		if err != nil {
			return err
		}
		globals = loaded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load starlark script %q: %w", name, err)
	}
	v, ok := globals[entry]
	if !ok {
		return nil, fmt.Errorf("starlark script %q does not define %s()", name, entry)
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("starlark script %q: %s is a %s, not a function", name, entry, v.Type())
	}
	return &script{name: name, entry: entry, fn: fn, limits: limits}, nil
}

func (s *script) call(args ...starlark.Value) (starlark.Value, error) {
	thread := &starlark.Thread{Name: s.name + "." + s.entry}
	thread.SetMaxExecutionSteps(s.limits.MaxSteps)
	var result starlark.Value
	err := runWithTimeout(thread, s.limits.Timeout, func() error {
		v, err := starlark.Call(thread, s.fn, starlark.Tuple(args), nil)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("starlark execution timed out")
		if err := <-done; err != nil {
			return fmt.Errorf("starlark execution timed out after %s: %w", timeout, err)
		}
		return fmt.Errorf("starlark execution timed out after %s", timeout)
	}
}

// === Predicate ===

var _ domain.Predicate = (*StarlarkPredicate)(nil)

// StarlarkPredicate evaluates predicate(region, features) from a Starlark script.
// region is a dict of column to value; features maps feature names to relations.
type StarlarkPredicate struct {
	s *script
}

// NewStarlarkPredicate loads src, which must define predicate(region, features)
// returning a bool.
func NewStarlarkPredicate(name, src string, limits Limits) (*StarlarkPredicate, error) {
	s, err := loadScript(name, src, predicateEntry, limits)
	if err != nil {
		return nil, err
	}
	return &StarlarkPredicate{s: s}, nil
}

// NewStarlarkPredicateExpr builds a predicate from a single boolean expression
// over region and features, e.g. `features["self"].sum("cost") > 1000`.
func NewStarlarkPredicateExpr(name, expr string, limits Limits) (*StarlarkPredicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.Contains(expr, "\n") {
		return nil, fmt.Errorf("predicate expression %q must be a single non-empty line", name)
	}
	return NewStarlarkPredicate(name, "def predicate(region, features):\n    return "+expr+"\n", limits)
}

// Evaluate implements domain.Predicate.
func (p *StarlarkPredicate) Evaluate(region domain.RelationTuple, features domain.Features) (bool, error) {
	fd := starlark.NewDict(features.Len())
	var err error
	features.Each(func(name string, rel domain.Relation) bool {
		err = fd.SetKey(starlark.String(name), &relationValue{rel: rel})
		return err == nil
	})
	if err != nil {
		return false, err
	}
	fd.Freeze()
	rd, err := regionDict(region)
	if err != nil {
		return false, err
	}
	v, err := p.s.call(rd, fd)
	if err != nil {
		return false, err
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %s, want bool", p.s.name, v.Type())
	}
	return bool(b), nil
}

// === Transformation ===

var _ domain.Transformation = (*StarlarkTransformation)(nil)

// StarlarkTransformation applies transform(region, rel) from a Starlark script.
// The function returns a relation, or a dict of feature name to relation.
type StarlarkTransformation struct {
	source string
	target string
	mode   domain.TransformMode
	s      *script
}

// NewStarlarkTransformation loads src, which must define transform(region, rel).
func NewStarlarkTransformation(source, target string, mode domain.TransformMode, name, src string, limits Limits) (*StarlarkTransformation, error) {
	s, err := loadScript(name, src, transformEntry, limits)
	if err != nil {
		return nil, err
	}
	return &StarlarkTransformation{source: source, target: target, mode: mode, s: s}, nil
}

func (t *StarlarkTransformation) Source() string            { return t.source }
func (t *StarlarkTransformation) Target() string            { return t.target }
func (t *StarlarkTransformation) Mode() domain.TransformMode { return t.mode }

// Apply implements domain.Transformation.
func (t *StarlarkTransformation) Apply(region domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	rd, err := regionDict(region)
	if err != nil {
		return domain.Output{}, err
	}
	v, err := t.s.call(rd, &relationValue{rel: rel})
	if err != nil {
		return domain.Output{}, err
	}
	switch x := v.(type) {
	case *relationValue:
		return domain.Single(x.rel), nil
	case *starlark.Dict:
		var names []string
		var rels []domain.Relation
		for _, item := range x.Items() {
			name, ok := starlark.AsString(item[0])
			if !ok {
				return domain.Output{}, fmt.Errorf("transform %q: output key %s is not a string", t.s.name, item[0])
			}
			r, ok := item[1].(*relationValue)
			if !ok {
				return domain.Output{}, fmt.Errorf("transform %q: output %q is a %s, want relation", t.s.name, name, item[1].Type())
			}
			names = append(names, name)
			rels = append(rels, r.rel)
		}
		return domain.Many(names, rels), nil
	default:
		return domain.Output{}, fmt.Errorf("transform %q returned %s, want relation or dict", t.s.name, v.Type())
	}
}

// === Values ===

var builtins = starlark.StringDict{
	"relation": starlark.NewBuiltin("relation", newRelationBuiltin),
}

// newRelationBuiltin implements relation(columns, rows).
func newRelationBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cols, rows *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "columns", &cols, "rows", &rows); err != nil {
		return nil, err
	}
	names := make([]string, cols.Len())
	for i := range names {
		s, ok := starlark.AsString(cols.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: column %d is not a string", b.Name(), i)
		}
		names[i] = s
	}
	data := make([][]any, rows.Len())
	for i := range data {
		seq, ok := rows.Index(i).(starlark.Indexable)
		if !ok {
			return nil, fmt.Errorf("%s: row %d is not a list or tuple", b.Name(), i)
		}
		vals := make([]any, seq.Len())
		for j := range vals {
			v, err := fromStarlark(seq.Index(j))
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", b.Name(), i, err)
			}
			vals[j] = v
		}
		data[i] = vals
	}
	rel, err := domain.NewRelation(names, data)
	if err != nil {
		return nil, err
	}
	return &relationValue{rel: rel}, nil
}

var (
	_ starlark.HasAttrs  = (*relationValue)(nil)
	_ starlark.Indexable = (*relationValue)(nil)
	_ starlark.Iterable  = (*relationValue)(nil)
)

// relationValue exposes a relation to scripts. Indexing and iteration yield
// rows as dicts.
type relationValue struct {
	rel domain.Relation
}

func (r *relationValue) String() string        { return fmt.Sprintf("relation(%v, %d rows)", r.rel.Columns(), r.rel.Len()) }
func (r *relationValue) Type() string          { return "relation" }
func (r *relationValue) Freeze()               {}
func (r *relationValue) Truth() starlark.Bool  { return r.rel.Len() > 0 }
func (r *relationValue) Hash() (uint32, error) { return 0, errors.New("unhashable type: relation") }
func (r *relationValue) Len() int              { return r.rel.Len() }

func (r *relationValue) Index(i int) starlark.Value {
	d, err := rowDict(r.rel.Columns(), r.rel.Row(i).Values())
	if err != nil {
		return starlark.None
	}
	return d
}

func (r *relationValue) Iterate() starlark.Iterator {
	return &rowIterator{rel: r}
}

type rowIterator struct {
	rel *relationValue
	i   int
}

func (it *rowIterator) Next(p *starlark.Value) bool {
	if it.i >= it.rel.Len() {
		return false
	}
	*p = it.rel.Index(it.i)
	it.i++
	return true
}

func (it *rowIterator) Done() {}

var relationAttrs = []string{"column", "columns", "count_distinct", "max", "mean", "min", "rows", "select", "sum", "with_column"}

func (r *relationValue) AttrNames() []string { return relationAttrs }

func (r *relationValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		cols := r.rel.Columns()
		elems := make([]starlark.Value, len(cols))
		for i, c := range cols {
			elems[i] = starlark.String(c)
		}
		return starlark.NewList(elems), nil
	case "rows":
		return starlark.MakeInt(r.rel.Len()), nil
	case "column":
		return starlark.NewBuiltin(name, r.column), nil
	case "sum":
		return starlark.NewBuiltin(name, r.aggregate(domain.AggSum)), nil
	case "mean":
		return starlark.NewBuiltin(name, r.aggregate(domain.AggMean)), nil
	case "min":
		return starlark.NewBuiltin(name, r.aggregate(domain.AggMin)), nil
	case "max":
		return starlark.NewBuiltin(name, r.aggregate(domain.AggMax)), nil
	case "count_distinct":
		return starlark.NewBuiltin(name, r.aggregate(domain.AggCountDistinct)), nil
	case "select":
		return starlark.NewBuiltin(name, r.selectColumns), nil
	case "with_column":
		return starlark.NewBuiltin(name, r.withColumn), nil
	}
	return nil, nil
}

func (r *relationValue) column(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &col); err != nil {
		return nil, err
	}
	vals, err := r.rel.Column(col)
	if err != nil {
		return nil, err
	}
	elems := make([]starlark.Value, len(vals))
	for i, v := range vals {
		if elems[i], err = toStarlark(v); err != nil {
			return nil, err
		}
	}
	return starlark.NewList(elems), nil
}

func (r *relationValue) aggregate(fn domain.AggFunc) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var col string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &col); err != nil {
			return nil, err
		}
		vals, err := r.rel.Column(col)
		if err != nil {
			return nil, err
		}
		v, err := engine.Aggregate(fn, vals)
		if err != nil {
			return nil, err
		}
		return toStarlark(v)
	}
}

func (r *relationValue) selectColumns(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	cols := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a string", b.Name(), i)
		}
		cols[i] = s
	}
	rel, err := r.rel.Project(cols...)
	if err != nil {
		return nil, err
	}
	return &relationValue{rel: rel}, nil
}

// withColumn implements rel.with_column(name, values), where values holds one
// entry per row.
func (r *relationValue) withColumn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var values *starlark.List
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &values); err != nil {
		return nil, err
	}
	if values.Len() != r.rel.Len() {
		return nil, fmt.Errorf("%s: %d values for %d rows", b.Name(), values.Len(), r.rel.Len())
	}
	i := 0
	rel, err := r.rel.WithColumn(name, func(domain.Row) (any, error) {
		v, err := fromStarlark(values.Index(i))
		i++
		return v, err
	})
	if err != nil {
		return nil, err
	}
	return &relationValue{rel: rel}, nil
}

func regionDict(region domain.RelationTuple) (*starlark.Dict, error) {
	d := starlark.NewDict(region.Len())
	cols, vals := region.Columns(), region.Values()
	for i, c := range cols {
		v, err := toStarlark(vals[i])
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(starlark.String(c), v); err != nil {
			return nil, err
		}
	}
	d.Freeze()
	return d, nil
}

func rowDict(cols []string, vals []any) (*starlark.Dict, error) {
	d := starlark.NewDict(len(cols))
	for i, c := range cols {
		v, err := toStarlark(vals[i])
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(starlark.String(c), v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case bool:
		return starlark.Bool(x), nil
	case time.Time:
		return starlark.String(x.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("cannot pass %T to starlark", v)
	}
}

func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s overflows int64", x)
		}
		return i, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	default:
		return nil, fmt.Errorf("cannot convert starlark %s to a cell value", v.Type())
	}
}
