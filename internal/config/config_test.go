package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "db_path: /tmp/fleet.db\ngroup_size: 4\nbatch_size: 12\nheadless: false\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/fleet.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.GroupSize != 4 || cfg.BatchSize != 12 {
		t.Errorf("GroupSize/BatchSize = %d/%d", cfg.GroupSize, cfg.BatchSize)
	}
	if cfg.Headless {
		t.Errorf("headless not overridden")
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadMissingDefaultYieldsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.GroupSize != def.GroupSize || cfg.IntervalMinutes != def.IntervalMinutes {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if !cfg.Headless || !cfg.UseProxy {
		t.Errorf("headless/use_proxy must default on")
	}
}

func TestSecretsOverlay(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	t.Setenv("OPENAI_API_KEY", "")
	writeFile(t, filepath.Join(base, "flock", "secrets.env"),
		"# keys\nOPENAI_API_KEY = sk-from-file\n\nIGNORED\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIKey != "sk-from-file" {
		t.Errorf("OpenAIKey = %q, want sk-from-file", cfg.OpenAIKey)
	}

	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIKey != "sk-from-env" {
		t.Errorf("environment must win over secrets.env, got %q", cfg.OpenAIKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{GroupPauseSeconds: 5, IntervalMinutes: 30}
	if cfg.GroupPause().Seconds() != 5 {
		t.Errorf("GroupPause = %v", cfg.GroupPause())
	}
	if cfg.Interval().Minutes() != 30 {
		t.Errorf("Interval = %v", cfg.Interval())
	}
}
