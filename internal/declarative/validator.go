package declarative

import (
	"fmt"
	"strings"
	"time"

	"mra/internal/domain"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "spec.stages[1].represent.regions[0]"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Valid transformation types.
var validTransformTypes = map[string]bool{
	TransformRatio:    true,
	TransformShare:    true,
	TransformStarlark: true,
}

// Validate checks a pipeline document and returns every problem found.
func Validate(doc *PipelineDoc) []ValidationError {
	var errs []ValidationError
	if doc == nil {
		addErr(&errs, "", "document is nil")
		return errs
	}
	if err := validateDocument(doc.APIVersion, doc.Kind, KindNamePipeline); err != nil {
		addErr(&errs, "", "%s", err.Error())
	}
	if strings.TrimSpace(doc.Metadata.Name) == "" {
		addErr(&errs, "metadata.name", "name is required")
	} else if strings.ContainsAny(doc.Metadata.Name, " \t\n/") {
		addErr(&errs, "metadata.name", "name %q must not contain whitespace or '/'", doc.Metadata.Name)
	}
	validateColumns(doc.Spec.Dimensions, "spec.dimensions", &errs)

	if len(doc.Spec.Stages) == 0 {
		addErr(&errs, "spec.stages", "at least one stage is required")
		return errs
	}

	var prev string
	for i, st := range doc.Spec.Stages {
		path := fmt.Sprintf("spec.stages[%d]", i)
		ops := st.Operators()
		switch len(ops) {
		case 0:
			addErr(&errs, path, "stage has no operator")
			continue
		case 1:
		default:
			addErr(&errs, path, "stage sets %d operators (%s), want exactly one", len(ops), strings.Join(ops, ", "))
			continue
		}
		op := ops[0]
		if prev != "" && stageKinds[prev][1] != stageKinds[op][0] {
			addErr(&errs, path, "%s takes a %s but %s produces a %s", op, stageKinds[op][0], prev, stageKinds[prev][1])
		}
		prev = op

		switch {
		case st.Cube != nil:
			validateCube(st.Cube, path+".cube", &errs)
		case st.Represent != nil:
			validateRegions(st.Represent.Regions, path+".represent.regions", true, &errs)
			validateFeatures(st.Represent.Features, path+".represent.features", &errs)
		case st.Transform != nil:
			validateTransformations(st.Transform.Transformations, path+".transform.transformations", true, &errs)
			validateDrillDown(st.Transform.DrillDown, path+".transform.drillDown", &errs)
		case st.Select != nil:
			validatePredicate(st.Select, path+".select", &errs)
		case st.Project != nil:
			validateRegions(st.Project.Regions, path+".project.regions", true, &errs)
		case st.Flatten != nil:
			validateColumns(st.Flatten.Dimensions, path+".flatten.dimensions", &errs)
		case st.Crawl != nil:
			validateCrawl(st.Crawl, path+".crawl", &errs)
		}
	}
	return errs
}

// addErr appends a formatted validation error.
func addErr(errs *[]ValidationError, path, msg string, args ...any) {
	*errs = append(*errs, ValidationError{
		Path:    path,
		Message: fmt.Sprintf(msg, args...),
	})
}

func validateColumns(cols []string, path string, errs *[]ValidationError) bool {
	ok := true
	seen := map[string]bool{}
	for i, c := range cols {
		if strings.TrimSpace(c) == "" {
			addErr(errs, fmt.Sprintf("%s[%d]", path, i), "column name must not be empty")
			ok = false
			continue
		}
		if seen[c] {
			addErr(errs, fmt.Sprintf("%s[%d]", path, i), "duplicate column %q", c)
			ok = false
		}
		seen[c] = true
	}
	return ok
}

func validateCube(c *CubeSpec, path string, errs *[]ValidationError) {
	validateColumns(c.Keys, path+".keys", errs)
	if len(c.Aggregations) == 0 {
		addErr(errs, path+".aggregations", "at least one aggregation is required")
		return
	}
	taken := map[string]bool{}
	for _, k := range c.Keys {
		taken[k] = true
	}
	for i, a := range c.Aggregations {
		apath := fmt.Sprintf("%s.aggregations[%d]", path, i)
		if strings.TrimSpace(a.Column) == "" {
			addErr(errs, apath, "column is required")
			continue
		}
		if _, err := domain.ParseAggFunc(a.Func); err != nil {
			addErr(errs, apath, "unknown func %q", a.Func)
		}
		out := domain.Aggregation{Column: a.Column, As: a.As}.Output()
		if taken[out] {
			addErr(errs, apath, "output %q collides with another column", out)
		}
		taken[out] = true
	}
}

func validateRegions(regions [][]string, path string, required bool, errs *[]ValidationError) {
	if required && len(regions) == 0 {
		addErr(errs, path, "at least one region is required")
		return
	}
	seen := map[string]int{}
	for i, r := range regions {
		rpath := fmt.Sprintf("%s[%d]", path, i)
		if !validateColumns(r, rpath, errs) {
			continue
		}
		label := regionLabel(r)
		if j, ok := seen[label]; ok {
			addErr(errs, rpath, "region %s already listed at index %d", label, j)
			continue
		}
		seen[label] = i
	}
}

func validateFeatures(features []FeatureDoc, path string, errs *[]ValidationError) {
	names := map[string]bool{}
	for i, f := range features {
		fpath := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(f.Name) == "" {
			addErr(errs, fpath, "name is required")
		} else if names[f.Name] {
			addErr(errs, fpath, "duplicate feature name %q", f.Name)
		}
		names[f.Name] = true
		if len(f.Columns) == 0 {
			addErr(errs, fpath+".columns", "at least one column is required")
			continue
		}
		validateColumns(f.Columns, fpath+".columns", errs)
	}
}

func validateTransformations(ts []TransformationDoc, path string, required bool, errs *[]ValidationError) {
	if required && len(ts) == 0 {
		addErr(errs, path, "at least one transformation is required")
		return
	}
	for i, t := range ts {
		tpath := fmt.Sprintf("%s[%d]", path, i)
		if !validTransformTypes[t.Type] {
			addErr(errs, tpath, "type must be \"ratio\", \"share\" or \"starlark\", got %q", t.Type)
			continue
		}
		if strings.TrimSpace(t.Source) == "" {
			addErr(errs, tpath, "source feature is required")
		}
		if _, err := domain.ParseTransformMode(t.Mode); err != nil {
			addErr(errs, tpath, "mode must be \"add\" or \"mutate\", got %q", t.Mode)
		}
		switch t.Type {
		case TransformRatio:
			if t.Numerator == "" || t.Denominator == "" {
				addErr(errs, tpath, "ratio needs numerator and denominator")
			}
		case TransformShare:
			if t.Column == "" {
				addErr(errs, tpath, "share needs a column")
			}
		case TransformStarlark:
			if strings.TrimSpace(t.Script) == "" {
				addErr(errs, tpath, "starlark transformation needs a script")
			}
		}
		if t.Type != TransformRatio && (t.Numerator != "" || t.Denominator != "") {
			addErr(errs, tpath, "numerator and denominator only apply to ratio")
		}
		if t.Type == TransformStarlark && (t.Column != "" || t.Output != "") {
			addErr(errs, tpath, "column and output do not apply to starlark")
		}
	}
}

func validateDrillDown(parents []map[string]any, path string, errs *[]ValidationError) {
	for i, p := range parents {
		ppath := fmt.Sprintf("%s[%d]", path, i)
		for col, v := range p {
			switch v.(type) {
			case nil, bool, int, int64, float64, string, time.Time:
			default:
				addErr(errs, ppath+"."+col, "value must be a scalar, got %T", v)
			}
		}
	}
}

func validatePredicate(p *PredicateSpec, path string, errs *[]ValidationError) {
	hasExpr := strings.TrimSpace(p.Expr) != ""
	hasScript := strings.TrimSpace(p.Script) != ""
	switch {
	case hasExpr && hasScript:
		addErr(errs, path, "set either expr or script, not both")
	case !hasExpr && !hasScript:
		addErr(errs, path, "expr or script is required")
	case hasExpr && strings.Contains(strings.TrimSpace(p.Expr), "\n"):
		addErr(errs, path+".expr", "expr must be a single line")
	}
}

func validateCrawl(c *CrawlSpec, path string, errs *[]ValidationError) {
	validateRegions(c.Regions, path+".regions", true, errs)
	validateFeatures(c.Features, path+".features", errs)
	validateTransformations(c.Transformations, path+".transformations", false, errs)
	validateDrillDown(c.DrillDown, path+".drillDown", errs)
	if c.Predicate != nil {
		validatePredicate(c.Predicate, path+".predicate", errs)
	}
	validateColumns(c.Dimensions, path+".dimensions", errs)
}

// stageName returns the algebra stage name for display, e.g. in Describe.
func stageName(st StageSpec) string {
	if ops := st.Operators(); len(ops) == 1 {
		return ops[0]
	}
	return "invalid"
}
