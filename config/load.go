package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the YAML file at path, expanding ${VAR}/$VAR
// references against the process environment before unmarshaling — the
// same "template then parse" two-step the Rust original's
// replace_env_vars+serde_yaml::from_str performs, generalized from
// minijinja's `{{ VAR }}` syntax to the stdlib's `${VAR}` syntax since no
// templating library appears anywhere else in this module's dependency
// surface (see DESIGN.md). A missing file is not an error: it returns
// Default(), matching Config::load's Err(_) => Ok(Self::default()) arm.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}
	return cfg, nil
}
