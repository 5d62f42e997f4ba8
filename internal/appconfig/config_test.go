package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg.Mount.AttrTimeout != time.Second {
		t.Errorf("DefaultConfig() Mount.AttrTimeout = %v, want 1s", cfg.Mount.AttrTimeout)
	}
	if cfg.Mount.EntryTimeout != time.Second {
		t.Errorf("DefaultConfig() Mount.EntryTimeout = %v, want 1s", cfg.Mount.EntryTimeout)
	}
	if cfg.Mount.DefaultPath != "" {
		t.Errorf("DefaultConfig() Mount.DefaultPath = %q, want empty", cfg.Mount.DefaultPath)
	}
	if cfg.Mount.AllowOther != false {
		t.Error("DefaultConfig() Mount.AllowOther should be false")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("DefaultConfig() Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "myos")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
mount:
  default_path: ~/projects/demo
  allow_other: true
  attr_timeout: 2s
log:
  level: debug
  file: /var/log/myos.log
acl:
  default_roles: [guest]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Mount.DefaultPath != "~/projects/demo" {
		t.Errorf("Mount.DefaultPath = %q, want %q", cfg.Mount.DefaultPath, "~/projects/demo")
	}
	if !cfg.Mount.AllowOther {
		t.Error("Mount.AllowOther should be true")
	}
	if cfg.Mount.AttrTimeout != 2*time.Second {
		t.Errorf("Mount.AttrTimeout = %v, want 2s", cfg.Mount.AttrTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.File != "/var/log/myos.log" {
		t.Errorf("Log.File = %q, want /var/log/myos.log", cfg.Log.File)
	}
	if len(cfg.ACL.DefaultRoles) != 1 || cfg.ACL.DefaultRoles[0] != "guest" {
		t.Errorf("ACL.DefaultRoles = %v, want [guest]", cfg.ACL.DefaultRoles)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "myos")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("mount:\n  default_path: /from/file\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
		"MYOS_MOUNT_PATH": "/from/env",
		"MYOS_LOG_LEVEL":  "warn",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Mount.DefaultPath != "/from/env" {
		t.Errorf("Mount.DefaultPath = %q, want env override /from/env", cfg.Mount.DefaultPath)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override warn", cfg.Log.Level)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	env := mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() without file should use default Log.Level, got %q", cfg.Log.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "myos")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	invalidContent := "mount: [this is invalid yaml\n"
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir})

	_, err := LoadWithEnv(env)
	if err == nil {
		t.Error("LoadWithEnv() with invalid YAML should return error")
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Parallel()
	tmpDir := "/custom/config/path"

	env := mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir})

	path := getConfigPathWithEnv(env)
	expected := filepath.Join(tmpDir, "myos", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestGetConfigPathFallback(t *testing.T) {
	t.Parallel()
	env := mockEnv(map[string]string{})

	path := getConfigPathWithEnv(env)
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "myos", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}
