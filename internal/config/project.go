package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig represents a .codeatlas.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// Language detection override
	Language string `yaml:"language,omitempty"`

	// Extraction depth: basic, medium, deep
	Depth string `yaml:"depth,omitempty"`

	// Path filters: directory names or path fragments
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// Resolution settings
	Resolution ResolutionConfig `yaml:"resolution,omitempty"`

	// Analysis limits
	Limits LimitsConfig `yaml:"limits,omitempty"`
}

// ResolutionConfig holds call resolution preferences.
type ResolutionConfig struct {
	// What to do with calls that resolve to nothing: drop or stub
	Unresolved string `yaml:"unresolved,omitempty"`
}

// LimitsConfig holds per-project analysis limits.
type LimitsConfig struct {
	// Files larger than this many bytes are skipped
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// Per-file processing budget in milliseconds
	FileTimeoutMS int `yaml:"file_timeout_ms,omitempty"`

	// Files read per batch during a walk
	BatchSize int `yaml:"batch_size,omitempty"`
}

// DefaultProjectConfig returns sensible defaults. Exclude starts empty:
// the analyzer already skips common build and dependency directories.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version: "1.0",
		Depth:   "medium",
		Resolution: ResolutionConfig{
			Unresolved: "drop",
		},
		Limits: LimitsConfig{
			MaxFileSize:   1024 * 1024,
			FileTimeoutMS: 5000,
			BatchSize:     50,
		},
	}
}

// LoadProjectConfig loads a .codeatlas.yaml from the given directory
func LoadProjectConfig(repoPath string) (*ProjectConfig, error) {
	configPath := filepath.Join(repoPath, ".codeatlas.yaml")

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Also try .codeatlas.yml
		configPath = filepath.Join(repoPath, ".codeatlas.yml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveProjectConfig saves the config to .codeatlas.yaml
func SaveProjectConfig(repoPath string, cfg *ProjectConfig) error {
	configPath := filepath.Join(repoPath, ".codeatlas.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if other.Language != "" {
		c.Language = other.Language
	}

	if other.Depth != "" {
		c.Depth = other.Depth
	}

	if len(other.Include) > 0 {
		c.Include = other.Include
	}

	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}

	if other.Resolution.Unresolved != "" {
		c.Resolution.Unresolved = other.Resolution.Unresolved
	}

	if other.Limits.MaxFileSize != 0 {
		c.Limits.MaxFileSize = other.Limits.MaxFileSize
	}

	if other.Limits.FileTimeoutMS != 0 {
		c.Limits.FileTimeoutMS = other.Limits.FileTimeoutMS
	}

	if other.Limits.BatchSize != 0 {
		c.Limits.BatchSize = other.Limits.BatchSize
	}
}
