package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProjectConfig(t *testing.T) {
	cfg := DefaultProjectConfig()

	if cfg == nil {
		t.Fatal("DefaultProjectConfig() returned nil")
	}

	if cfg.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", cfg.Version)
	}

	if cfg.Depth != "medium" {
		t.Errorf("Depth = %s, want medium", cfg.Depth)
	}

	// Directory skipping is built into the analyzer, not seeded here.
	if len(cfg.Exclude) != 0 {
		t.Errorf("Exclude = %v, want empty", cfg.Exclude)
	}

	if cfg.Resolution.Unresolved != "drop" {
		t.Errorf("Resolution.Unresolved = %s, want drop", cfg.Resolution.Unresolved)
	}

	// Check limits
	if cfg.Limits.MaxFileSize != 1024*1024 {
		t.Errorf("Limits.MaxFileSize = %d, want %d", cfg.Limits.MaxFileSize, 1024*1024)
	}
	if cfg.Limits.FileTimeoutMS != 5000 {
		t.Errorf("Limits.FileTimeoutMS = %d, want 5000", cfg.Limits.FileTimeoutMS)
	}
	if cfg.Limits.BatchSize != 50 {
		t.Errorf("Limits.BatchSize = %d, want 50", cfg.Limits.BatchSize)
	}
}

func TestProjectConfig_Merge(t *testing.T) {
	base := DefaultProjectConfig()

	override := &ProjectConfig{
		Language: "python",
		Depth:    "deep",
		Include:  []string{"src/**/*.py"},
		Resolution: ResolutionConfig{
			Unresolved: "stub",
		},
		Limits: LimitsConfig{
			MaxFileSize: 2048,
			BatchSize:   10,
		},
	}

	base.Merge(override)

	if base.Language != "python" {
		t.Errorf("Language = %s, want python", base.Language)
	}
	if base.Depth != "deep" {
		t.Errorf("Depth = %s, want deep", base.Depth)
	}
	if len(base.Include) != 1 || base.Include[0] != "src/**/*.py" {
		t.Errorf("Include = %v, want [src/**/*.py]", base.Include)
	}
	if base.Resolution.Unresolved != "stub" {
		t.Errorf("Resolution.Unresolved = %s, want stub", base.Resolution.Unresolved)
	}
	if base.Limits.MaxFileSize != 2048 {
		t.Errorf("Limits.MaxFileSize = %d, want 2048", base.Limits.MaxFileSize)
	}
	if base.Limits.BatchSize != 10 {
		t.Errorf("Limits.BatchSize = %d, want 10", base.Limits.BatchSize)
	}
	// FileTimeoutMS not overridden, keeps the default
	if base.Limits.FileTimeoutMS != 5000 {
		t.Errorf("Limits.FileTimeoutMS = %d, want 5000", base.Limits.FileTimeoutMS)
	}
}

func TestProjectConfig_Merge_NilOverride(t *testing.T) {
	base := DefaultProjectConfig()
	originalVersion := base.Version

	base.Merge(nil)

	// Should not change anything
	if base.Version != originalVersion {
		t.Error("Merge(nil) should not change config")
	}
}

func TestProjectConfig_Merge_PartialOverride(t *testing.T) {
	base := DefaultProjectConfig()
	originalDepth := base.Depth
	originalExclude := len(base.Exclude)

	// Only override language
	override := &ProjectConfig{
		Language: "kotlin",
	}

	base.Merge(override)

	// Language should change
	if base.Language != "kotlin" {
		t.Errorf("Language = %s, want kotlin", base.Language)
	}

	// Depth should remain unchanged
	if base.Depth != originalDepth {
		t.Errorf("Depth = %s, want %s", base.Depth, originalDepth)
	}

	// Exclude should remain unchanged
	if len(base.Exclude) != originalExclude {
		t.Errorf("len(Exclude) = %d, want %d", len(base.Exclude), originalExclude)
	}
}

func TestLoadProjectConfig_NoFile(t *testing.T) {
	// Use temp directory with no config file
	tmpDir := t.TempDir()

	cfg, err := LoadProjectConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	// Should return defaults
	if cfg.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", cfg.Version)
	}
}

func TestLoadProjectConfig_YamlFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".codeatlas.yaml")

	yamlContent := `
version: "2.0"
language: typescript
depth: deep
include:
  - "src/**/*.ts"
limits:
  batch_size: 25
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadProjectConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if cfg.Version != "2.0" {
		t.Errorf("Version = %s, want 2.0", cfg.Version)
	}
	if cfg.Language != "typescript" {
		t.Errorf("Language = %s, want typescript", cfg.Language)
	}
	if cfg.Depth != "deep" {
		t.Errorf("Depth = %s, want deep", cfg.Depth)
	}
	if cfg.Limits.BatchSize != 25 {
		t.Errorf("Limits.BatchSize = %d, want 25", cfg.Limits.BatchSize)
	}
	// Unset limit keeps the default
	if cfg.Limits.MaxFileSize != 1024*1024 {
		t.Errorf("Limits.MaxFileSize = %d, want default", cfg.Limits.MaxFileSize)
	}
}

func TestLoadProjectConfig_YmlFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".codeatlas.yml")

	yamlContent := `
version: "1.5"
language: python
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadProjectConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if cfg.Version != "1.5" {
		t.Errorf("Version = %s, want 1.5", cfg.Version)
	}
	if cfg.Language != "python" {
		t.Errorf("Language = %s, want python", cfg.Language)
	}
}

func TestSaveProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &ProjectConfig{
		Version:  "1.0",
		Language: "kotlin",
		Depth:    "basic",
	}

	if err := SaveProjectConfig(tmpDir, cfg); err != nil {
		t.Fatalf("SaveProjectConfig() error = %v", err)
	}

	// Verify file was created
	configPath := filepath.Join(tmpDir, ".codeatlas.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	// Load it back
	loaded, err := LoadProjectConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if loaded.Version != cfg.Version {
		t.Errorf("Version = %s, want %s", loaded.Version, cfg.Version)
	}
	if loaded.Language != cfg.Language {
		t.Errorf("Language = %s, want %s", loaded.Language, cfg.Language)
	}
	if loaded.Depth != cfg.Depth {
		t.Errorf("Depth = %s, want %s", loaded.Depth, cfg.Depth)
	}
}

func TestLoadProjectConfig_InvalidYaml(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".codeatlas.yaml")

	invalidYaml := `
version: [invalid yaml
limits:
  - this is wrong
`

	if err := os.WriteFile(configPath, []byte(invalidYaml), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadProjectConfig(tmpDir)
	if err == nil {
		t.Error("LoadProjectConfig() should return error for invalid YAML")
	}
}
