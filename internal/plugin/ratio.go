package plugin

import (
	"fmt"
	"math"

	"mra/internal/domain"
)

var _ domain.Transformation = (*RatioTransformation)(nil)

// RatioTransformation derives Numerator / Denominator as a new column.
type RatioTransformation struct {
	source      string
	target      string
	mode        domain.TransformMode
	numerator   string
	denominator string
	output      string
}

// Ratio divides numerator by denominator in feature source and stores the result,
// with an extra column output, under target. An empty output defaults to
// "<numerator>_per_<denominator>". An undefined result (0/0, or a null on either
// side) is 0; a nonzero value over 0 is +Inf or -Inf.
func Ratio(source, target, numerator, denominator, output string, mode domain.TransformMode) *RatioTransformation {
	if output == "" {
		output = numerator + "_per_" + denominator
	}
	return &RatioTransformation{
		source:      source,
		target:      target,
		mode:        mode,
		numerator:   numerator,
		denominator: denominator,
		output:      output,
	}
}

func (r *RatioTransformation) Source() string            { return r.source }
func (r *RatioTransformation) Target() string            { return r.target }
func (r *RatioTransformation) Mode() domain.TransformMode { return r.mode }

// Apply implements domain.Transformation.
func (r *RatioTransformation) Apply(_ domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	if !rel.HasColumns(r.numerator, r.denominator) {
		return domain.Output{}, fmt.Errorf("ratio needs columns %q and %q, have %v", r.numerator, r.denominator, rel.Columns())
	}
	out, err := rel.WithColumn(r.output, func(row domain.Row) (any, error) {
		nv, dv := row.Value(r.numerator), row.Value(r.denominator)
		num, err := numeric(nv, r.numerator)
		if err != nil {
			return nil, err
		}
		den, err := numeric(dv, r.denominator)
		if err != nil {
			return nil, err
		}
		q := num / den
		if nv == nil || dv == nil || math.IsNaN(q) {
			return 0.0, nil
		}
		return q, nil
	})
	if err != nil {
		return domain.Output{}, err
	}
	return domain.Single(out), nil
}

// numeric reads a cell as float64; nulls count as 0.
func numeric(v any, col string) (float64, error) {
	if v == nil {
		return 0, nil
	}
	f, ok := domain.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("column %q holds non-numeric value %v (%T)", col, v, v)
	}
	return f, nil
}
