package plugin

import (
	"fmt"

	"mra/internal/domain"
)

var _ domain.Transformation = (*ShareTransformation)(nil)

// ShareTransformation derives each row's share of a column total within the feature.
type ShareTransformation struct {
	source string
	target string
	mode   domain.TransformMode
	column string
	output string
}

// Share stores column / sum(column) as output. The default output is
// "<column>_share". When the total is zero every share is 0.
func Share(source, target, column, output string, mode domain.TransformMode) *ShareTransformation {
	if output == "" {
		output = column + "_share"
	}
	return &ShareTransformation{source: source, target: target, mode: mode, column: column, output: output}
}

func (s *ShareTransformation) Source() string            { return s.source }
func (s *ShareTransformation) Target() string            { return s.target }
func (s *ShareTransformation) Mode() domain.TransformMode { return s.mode }

// Apply implements domain.Transformation.
func (s *ShareTransformation) Apply(_ domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	vals, err := rel.Column(s.column)
	if err != nil {
		return domain.Output{}, fmt.Errorf("share: %w", err)
	}
	total := 0.0
	for _, v := range vals {
		f, err := numeric(v, s.column)
		if err != nil {
			return domain.Output{}, err
		}
		total += f
	}
	out, err := rel.WithColumn(s.output, func(row domain.Row) (any, error) {
		if total == 0 {
			return 0.0, nil
		}
		f, err := numeric(row.Value(s.column), s.column)
		if err != nil {
			return nil, err
		}
		return f / total, nil
	})
	if err != nil {
		return domain.Output{}, err
	}
	return domain.Single(out), nil
}
