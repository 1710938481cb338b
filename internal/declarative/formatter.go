package declarative

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// ANSI color codes.
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorDim   = "\033[2m"
)

// ColorEnabled reports whether w is a terminal that should receive ANSI codes.
// NO_COLOR in the environment disables color.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Format renders doc as canonical YAML with two-space indentation.
func Format(doc *PipelineDoc) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode pipeline: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatText writes a human-readable outline of doc to w, followed by any
// validation problems. If noColor is true, ANSI codes are suppressed.
func FormatText(w io.Writer, doc *PipelineDoc, noColor bool) {
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	fmt.Fprintf(w, "%s# pipeline %s%s\n", c(colorCyan), doc.Metadata.Name, c(colorReset))
	if doc.Metadata.Description != "" {
		fmt.Fprintf(w, "%s%s%s\n", c(colorDim), doc.Metadata.Description, c(colorReset))
	}
	for i, st := range doc.Spec.Stages {
		fmt.Fprintf(w, "  %d. %s%s%s", i+1, c(colorGreen), stageName(st), c(colorReset))
		if detail := stageDetail(doc, st); detail != "" {
			fmt.Fprintf(w, " %s%s%s", c(colorDim), detail, c(colorReset))
		}
		fmt.Fprintln(w)
	}

	errs := Validate(doc)
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s%d problem(s):%s\n", c(colorRed), len(errs), c(colorReset))
	for _, e := range errs {
		fmt.Fprintf(w, "  %s- %s%s\n", c(colorRed), e.Error(), c(colorReset))
	}
}

func stageDetail(doc *PipelineDoc, st StageSpec) string {
	switch {
	case st.Cube != nil:
		aggs := make([]string, len(st.Cube.Aggregations))
		for i, a := range st.Cube.Aggregations {
			aggs[i] = fmt.Sprintf("%s(%s)", a.Func, a.Column)
		}
		return fmt.Sprintf("keys=[%s] aggs=[%s]", strings.Join(st.Cube.Keys, ", "), strings.Join(aggs, ", "))
	case st.Represent != nil:
		return "regions=" + regionList(st.Represent.Regions)
	case st.Transform != nil:
		return "transformations=" + transformList(st.Transform.Transformations)
	case st.Select != nil:
		return predicateLabel(st.Select)
	case st.Project != nil:
		return "regions=" + regionList(st.Project.Regions)
	case st.Flatten != nil:
		return "dimensions=[" + strings.Join(dimensionsOr(st.Flatten.Dimensions, doc.Spec.Dimensions), ", ") + "]"
	case st.Crawl != nil:
		parts := []string{"regions=" + regionList(st.Crawl.Regions)}
		if len(st.Crawl.Transformations) > 0 {
			parts = append(parts, "transformations="+transformList(st.Crawl.Transformations))
		}
		if st.Crawl.Predicate != nil {
			parts = append(parts, predicateLabel(st.Crawl.Predicate))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func regionList(regions [][]string) string {
	labels := make([]string, len(regions))
	for i, r := range regions {
		labels[i] = regionLabel(r)
	}
	return "[" + strings.Join(labels, ", ") + "]"
}

func transformList(ts []TransformationDoc) string {
	labels := make([]string, len(ts))
	for i, t := range ts {
		target := t.Target
		if target == "" {
			target = t.Source
		}
		labels[i] = fmt.Sprintf("%s(%s->%s)", t.Type, t.Source, target)
	}
	return "[" + strings.Join(labels, ", ") + "]"
}

func predicateLabel(p *PredicateSpec) string {
	if p.Expr != "" {
		return "where " + strings.TrimSpace(p.Expr)
	}
	return "where <script>"
}
