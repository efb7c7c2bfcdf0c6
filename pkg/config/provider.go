package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// envProvider marks where environment variables sit in the precedence chain.
// The variables themselves are read by koanf's env provider in loader.go.
type envProvider struct{}

func NewEnvProvider() Source {
	return &envProvider{}
}

func (e *envProvider) Load() (map[string]any, error) {
	return map[string]any{}, nil
}

func (e *envProvider) Type() SourceType {
	return SourceEnv
}

// cliProvider implements Source for command-line flag overrides.
type cliProvider struct {
	flags map[string]any
}

// NewCLIProvider creates a source from flags keyed by dotted config path.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{flags: flags}
}

func (c *cliProvider) Load() (map[string]any, error) {
	result := make(map[string]any)
	for path, value := range c.flags {
		if err := setNested(result, path, value); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

func setNested(m map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	current := m
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid config path %q", path)
		}
		if i == len(parts)-1 {
			current[part] = value
			return nil
		}
		next, ok := current[part]
		if !ok {
			child := make(map[string]any)
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config path %q conflicts with a scalar at %q", path, part)
		}
		current = child
	}
	return nil
}

// yamlProvider implements Source interface for YAML files.
type yamlProvider struct {
	path string
}

// NewYAMLProvider creates a new YAML file configuration source.
// A missing file yields an empty source.
func NewYAMLProvider(path string) Source {
	return &yamlProvider{path: path}
}

func (y *yamlProvider) Load() (map[string]any, error) {
	data, err := os.ReadFile(y.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return filterNilValues(config), nil
}

// filterNilValues recursively removes nil values from a map
// This prevents koanf from overriding existing values with nil
func filterNilValues(m map[string]any) map[string]any {
	result := make(map[string]any)
	for k, v := range m {
		if v == nil {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if filtered := filterNilValues(nested); len(filtered) > 0 {
				result[k] = filtered
			}
			continue
		}
		result[k] = v
	}
	return result
}

func (y *yamlProvider) Type() SourceType {
	return SourceYAML
}

type defaultProvider struct{}

// NewDefaultProvider returns the source that represents built-in defaults.
func NewDefaultProvider() Source {
	return &defaultProvider{}
}

func (d *defaultProvider) Load() (map[string]any, error) {
	return map[string]any{}, nil
}

func (d *defaultProvider) Type() SourceType {
	return SourceDefault
}
