// Package declarative loads algebra pipelines from YAML documents, validates
// them and builds runnable pipelines.
package declarative

import (
	"sort"
	"strings"

	"mra/internal/algebra"
	"mra/internal/domain"
)

// SupportedAPIVersion is the only apiVersion accepted by the loader.
const SupportedAPIVersion = "mra/v1"

// KindNamePipeline is the document kind of a pipeline.
const KindNamePipeline = "Pipeline"

// PipelineDoc is a pipeline document.
type PipelineDoc struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   DocumentMetadata `yaml:"metadata"`
	Spec       PipelineSpec     `yaml:"spec"`

	// Path is the file the document was read from, if any.
	Path string `yaml:"-"`
}

// DocumentMetadata names a document.
type DocumentMetadata struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// PipelineSpec lists the stages of a pipeline. Dimensions is the default for
// flatten and crawl stages that do not set their own.
type PipelineSpec struct {
	Dimensions []string    `yaml:"dimensions,omitempty"`
	Stages     []StageSpec `yaml:"stages"`
}

// StageSpec holds exactly one operator.
type StageSpec struct {
	Cube      *CubeSpec      `yaml:"cube,omitempty"`
	Represent *RepresentSpec `yaml:"represent,omitempty"`
	Transform *TransformSpec `yaml:"transform,omitempty"`
	Select    *PredicateSpec `yaml:"select,omitempty"`
	Project   *ProjectSpec   `yaml:"project,omitempty"`
	Flatten   *FlattenSpec   `yaml:"flatten,omitempty"`
	Crawl     *CrawlSpec     `yaml:"crawl,omitempty"`
}

// Operators returns the names of the operators set on the stage, in a fixed order.
func (s StageSpec) Operators() []string {
	var ops []string
	if s.Cube != nil {
		ops = append(ops, algebra.StageCube)
	}
	if s.Represent != nil {
		ops = append(ops, algebra.StageRepresent)
	}
	if s.Transform != nil {
		ops = append(ops, algebra.StageSliceTransform)
	}
	if s.Select != nil {
		ops = append(ops, algebra.StageSliceSelect)
	}
	if s.Project != nil {
		ops = append(ops, algebra.StageSliceProject)
	}
	if s.Flatten != nil {
		ops = append(ops, algebra.StageFlatten)
	}
	if s.Crawl != nil {
		ops = append(ops, algebra.StageCrawl)
	}
	return ops
}

// stageKinds are the input and output kinds of each operator.
var stageKinds = map[string][2]domain.Kind{
	algebra.StageCube:           {domain.KindRelation, domain.KindSpace},
	algebra.StageRepresent:      {domain.KindSpace, domain.KindSlices},
	algebra.StageSliceTransform: {domain.KindSlices, domain.KindSlices},
	algebra.StageSliceSelect:    {domain.KindSlices, domain.KindSlices},
	algebra.StageSliceProject:   {domain.KindSlices, domain.KindSlices},
	algebra.StageFlatten:        {domain.KindSlices, domain.KindSpace},
	algebra.StageCrawl:          {domain.KindSpace, domain.KindSpace},
}

// CubeSpec configures CreateRelationSpaceByCube.
type CubeSpec struct {
	Keys         []string         `yaml:"keys"`
	Aggregations []AggregationDoc `yaml:"aggregations"`
}

// AggregationDoc is one aggregation of a cube.
type AggregationDoc struct {
	Column string `yaml:"column"`
	Func   string `yaml:"func"`
	As     string `yaml:"as,omitempty"`
}

// RepresentSpec configures Represent. Each region is a list of columns; an
// empty list is the whole-table region.
type RepresentSpec struct {
	Regions  [][]string   `yaml:"regions"`
	Features []FeatureDoc `yaml:"features,omitempty"`
}

// FeatureDoc declares an explicit feature.
type FeatureDoc struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// ParentRegions lists drill-down parent regions. A nil list means no drill-down
// filter; an empty list filters with no parents and is kept when encoding.
type ParentRegions []map[string]any

// IsZero makes omitempty drop only a nil list.
func (p ParentRegions) IsZero() bool { return p == nil }

// TransformSpec configures SliceTransform.
type TransformSpec struct {
	Transformations []TransformationDoc `yaml:"transformations"`
	DrillDown       ParentRegions       `yaml:"drillDown,omitempty"`
}

// Transformation types.
const (
	TransformRatio    = "ratio"
	TransformShare    = "share"
	TransformStarlark = "starlark"
)

// TransformationDoc declares a transformation plug-in. Which fields apply
// depends on Type.
type TransformationDoc struct {
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
	Target string `yaml:"target,omitempty"`
	Mode   string `yaml:"mode,omitempty"`

	// ratio
	Numerator   string `yaml:"numerator,omitempty"`
	Denominator string `yaml:"denominator,omitempty"`
	// share
	Column string `yaml:"column,omitempty"`
	// ratio and share
	Output string `yaml:"output,omitempty"`
	// starlark: a module defining transform(region, rel)
	Script string `yaml:"script,omitempty"`
}

// PredicateSpec configures SliceSelect: either a single Starlark expression
// or a script defining predicate(region, features).
type PredicateSpec struct {
	Expr   string `yaml:"expr,omitempty"`
	Script string `yaml:"script,omitempty"`
}

// ProjectSpec configures SliceProject.
type ProjectSpec struct {
	Regions [][]string `yaml:"regions"`
}

// FlattenSpec configures Flatten.
type FlattenSpec struct {
	Dimensions []string `yaml:"dimensions,omitempty"`
}

// CrawlSpec configures Crawl.
type CrawlSpec struct {
	Regions         [][]string          `yaml:"regions"`
	Features        []FeatureDoc        `yaml:"features,omitempty"`
	Transformations []TransformationDoc `yaml:"transformations,omitempty"`
	DrillDown       ParentRegions       `yaml:"drillDown,omitempty"`
	Predicate       *PredicateSpec      `yaml:"predicate,omitempty"`
	Dimensions      []string            `yaml:"dimensions,omitempty"`
}

// regionLabel renders a region schema for messages.
func regionLabel(cols []string) string {
	sorted := append([]string(nil), cols...)
	sort.Strings(sorted)
	return "{" + strings.Join(sorted, ", ") + "}"
}
