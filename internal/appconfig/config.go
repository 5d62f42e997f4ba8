package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the CLI's own ambient configuration: mount defaults, log
// behavior, and a fallback role list. It lives under the user's config
// directory, distinct from a project's own .MyOS/ state.
type Config struct {
	Mount MountConfig `yaml:"mount"`
	Log   LogConfig   `yaml:"log"`
	ACL   ACLConfig   `yaml:"acl"`
}

type MountConfig struct {
	DefaultPath  string        `yaml:"default_path"`
	AllowOther   bool          `yaml:"allow_other"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ACLConfig holds a role list read from the config file. Role
// resolution at mount time does not consult it: a caller that neither
// MYOS_ROLES nor a project's Users: section resolves gets no roles.
type ACLConfig struct {
	DefaultRoles []string `yaml:"default_roles"`
}

func DefaultConfig() *Config {
	return &Config{
		Mount: MountConfig{
			DefaultPath:  "",
			AllowOther:   false,
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment
// lookup function, so tests can supply isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if mountPath := getenv("MYOS_MOUNT_PATH"); mountPath != "" {
		cfg.Mount.DefaultPath = mountPath
	}
	if level := getenv("MYOS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "myos", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "myos", "config.yaml")
}
