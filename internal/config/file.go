package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v4"
)

// fileKeys maps config file keys to their setters.
var fileKeys = map[string]func(c *Config, n *yaml.Node) error{
	"log_level":  func(c *Config, n *yaml.Node) error { return scalar(n, &c.LogLevel) },
	"log_format": func(c *Config, n *yaml.Node) error { return scalar(n, &c.LogFormat) },
	"engine":     func(c *Config, n *yaml.Node) error { return scalar(n, &c.Engine) },
	"duckdb_dsn": func(c *Config, n *yaml.Node) error { return scalar(n, &c.DuckDBDSN) },
	"max_cube_keys": func(c *Config, n *yaml.Node) error {
		return parsed(n, func(s string) (err error) {
			c.MaxCubeKeys, err = strconv.Atoi(s)
			return
		})
	},
	"starlark_max_steps": func(c *Config, n *yaml.Node) error {
		return parsed(n, func(s string) (err error) {
			c.StarlarkMaxSteps, err = strconv.ParseUint(s, 10, 64)
			return
		})
	},
	"starlark_timeout": func(c *Config, n *yaml.Node) error {
		return parsed(n, func(s string) (err error) {
			c.StarlarkTimeout, err = time.ParseDuration(s)
			return
		})
	},
	"batch_parallelism": func(c *Config, n *yaml.Node) error {
		return parsed(n, func(s string) (err error) {
			c.BatchParallelism, err = strconv.Atoi(s)
			return
		})
	},
	"allow_unknown_fields": func(c *Config, n *yaml.Node) error {
		return parsed(n, func(s string) (err error) {
			c.AllowUnknownFields, err = strconv.ParseBool(s)
			return
		})
	},
}

// applyFile overlays the settings of a YAML file. The document must be a flat
// mapping of known keys; unknown keys are rejected with their line number.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		root = root.Content[0]
	}
	if root.Kind == 0 {
		return nil
	}
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: line %d: expected a mapping", path, root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		set, ok := fileKeys[strings.ToLower(key.Value)]
		if !ok {
			return fmt.Errorf("config %s: line %d: unknown key %q", path, key.Line, key.Value)
		}
		if err := set(c, val); err != nil {
			return fmt.Errorf("config %s: line %d: %s: %w", path, val.Line, key.Value, err)
		}
	}
	return nil
}

func scalar(n *yaml.Node, dst *string) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a scalar value")
	}
	*dst = n.Value
	return nil
}

func parsed(n *yaml.Node, parse func(string) error) error {
	var s string
	if err := scalar(n, &s); err != nil {
		return err
	}
	return parse(s)
}
