// Package config loads the dontforgetest configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	yamlName = "dontforgetest.yaml"
	// Legacy config format; migrated to YAML on load.
	tomlName = "dontforgetest.toml"
)

// Config controls the patch acceptance engine. Zero values fall back to
// the defaults from Default().
type Config struct {
	// StateDir holds pending patches, persisted artifacts, and event logs,
	// relative to the repository root.
	StateDir string `yaml:"state_dir" toml:"state_dir"`
	// BaseRef is the reference temporary worktrees detach from.
	BaseRef string `yaml:"base_ref" toml:"base_ref"`
	// GitTimeoutSeconds bounds each git invocation. Zero disables it.
	GitTimeoutSeconds int `yaml:"git_timeout_seconds" toml:"git_timeout_seconds"`

	TestPaths TestPathRules `yaml:"test_paths" toml:"test_paths"`
	Inbox     InboxConfig   `yaml:"inbox" toml:"inbox"`
}

// TestPathRules extends the built-in test-path policy with user globs.
type TestPathRules struct {
	Include []string `yaml:"include" toml:"include"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
}

// InboxConfig configures watch mode.
type InboxConfig struct {
	// Dir is the directory watched for incoming *.patch / *.diff files,
	// relative to the repository root.
	Dir string `yaml:"dir" toml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:          ".dontforgetest",
		BaseRef:           "HEAD",
		GitTimeoutSeconds: 60,
		Inbox:             InboxConfig{Dir: "patch-inbox"},
	}
}

// Load reads the configuration from root. A missing file yields defaults.
// A legacy TOML file is parsed, written back as YAML, and removed, so
// subsequent loads see only the YAML form.
func Load(root string) (Config, error) {
	cfg := Default()

	yamlPath := filepath.Join(root, yamlName)
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", yamlName, err)
		}
		return normalize(cfg), nil
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", yamlName, err)
	}

	tomlPath := filepath.Join(root, tomlName)
	data, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return normalize(cfg), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", tomlName, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", tomlName, err)
	}
	cfg = normalize(cfg)

	if err := migrate(yamlPath, tomlPath, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// migrate rewrites a legacy TOML config as YAML and removes the original.
func migrate(yamlPath, tomlPath string, cfg Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode migrated config: %w", err)
	}
	if err := os.WriteFile(yamlPath, out, 0644); err != nil {
		return fmt.Errorf("write migrated config: %w", err)
	}
	if err := os.Remove(tomlPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove legacy config: %w", err)
	}
	return nil
}

func normalize(cfg Config) Config {
	def := Default()
	if cfg.StateDir == "" {
		cfg.StateDir = def.StateDir
	}
	if cfg.BaseRef == "" {
		cfg.BaseRef = def.BaseRef
	}
	if cfg.GitTimeoutSeconds < 0 {
		cfg.GitTimeoutSeconds = 0
	}
	if cfg.Inbox.Dir == "" {
		cfg.Inbox.Dir = def.Inbox.Dir
	}
	return cfg
}
