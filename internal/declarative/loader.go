package declarative

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadFile reads a single pipeline document.
func LoadFile(path string, opts LoadOptions) (*PipelineDoc, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified pipeline files
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := LoadBytes(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// Load reads a pipeline document from r.
func Load(r io.Reader, opts LoadOptions) (*PipelineDoc, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return LoadBytes(data, opts)
}

// LoadBytes parses a pipeline document and checks its apiVersion and kind.
// Unknown fields are rejected unless opts allows them.
func LoadBytes(data []byte, opts LoadOptions) (*PipelineDoc, error) {
	var doc PipelineDoc
	if opts.AllowUnknownFields {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse: empty document")
			}
			return nil, fmt.Errorf("parse: %w", err)
		}
	}
	if err := validateDocument(doc.APIVersion, doc.Kind, KindNamePipeline); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadDirectory reads every *.yaml and *.yml file in dir, in file name order.
// Subdirectories are not visited.
func LoadDirectory(dir string, opts LoadOptions) ([]*PipelineDoc, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pipeline directory: %s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pipeline directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]*PipelineDoc, 0, len(names))
	seen := map[string]string{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		doc, err := LoadFile(path, opts)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[doc.Metadata.Name]; ok && doc.Metadata.Name != "" {
			return nil, fmt.Errorf("%s: duplicate pipeline name %q (also in %s)", path, doc.Metadata.Name, prev)
		}
		seen[doc.Metadata.Name] = path
		docs = append(docs, doc)
	}
	return docs, nil
}

// validateDocument checks the apiVersion and kind fields.
func validateDocument(apiVersion, kind, expectedKind string) error {
	if apiVersion != SupportedAPIVersion {
		return fmt.Errorf("unsupported apiVersion %q (expected %q)", apiVersion, SupportedAPIVersion)
	}
	if kind != expectedKind {
		return fmt.Errorf("unexpected kind %q (expected %q)", kind, expectedKind)
	}
	return nil
}
