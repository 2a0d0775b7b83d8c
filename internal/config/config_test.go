package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

// clearEnv сбрасывает переменные, которые читает Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLUME_PARALLELISM", "FLUME_MAX_OUTPUTS", "STATE_BACKEND", "REDIS_ADDR",
		"DB_URL", "RABBITMQ_URL", "METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, cfg any) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "flume.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// --- Load Tests ---

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Runner.Parallelism != 4 {
		t.Errorf("expected parallelism 4, got %d", cfg.Runner.Parallelism)
	}
	if cfg.State.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.State.Backend)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	file := Default()
	file.Runner.Parallelism = 8
	file.State.Backend = "redis"
	file.State.RedisAddr = "redis:6379"
	path := writeConfig(t, file)

	t.Setenv("FLUME_MAX_OUTPUTS", "500")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Runner.Parallelism != 8 {
		t.Errorf("expected parallelism from file, got %d", cfg.Runner.Parallelism)
	}
	if cfg.State.RedisAddr != "redis:6379" {
		t.Errorf("expected redis addr from file, got %q", cfg.State.RedisAddr)
	}
	if cfg.Runner.MaxOutputs != 500 {
		t.Errorf("expected max outputs from env, got %d", cfg.Runner.MaxOutputs)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected text format from env, got %q", cfg.Logging.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "flume.toml")
	if err := os.WriteFile(path, []byte("[runner]\nworkers = 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLUME_PARALLELISM", "many")

	_, err := Load("")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

// --- Validate Tests ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "zero parallelism", mutate: func(c *Config) { c.Runner.Parallelism = 0 }},
		{name: "negative max outputs", mutate: func(c *Config) { c.Runner.MaxOutputs = -1 }},
		{name: "zero poll interval", mutate: func(c *Config) { c.Runner.PollIntervalMS = 0 }},
		{name: "unknown backend", mutate: func(c *Config) { c.State.Backend = "etcd" }},
		{name: "redis without addr", mutate: func(c *Config) { c.State.Backend = "redis"; c.State.RedisAddr = "" }},
		{name: "postgres without url", mutate: func(c *Config) { c.State.Backend = "postgres" }},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestStateConfig(t *testing.T) {
	cfg := Default()
	cfg.State.DBURL = "postgres://db"

	sc := cfg.StateConfig()
	if sc.RedisPrefix != "flume" {
		t.Errorf("expected default prefix, got %q", sc.RedisPrefix)
	}
	if sc.DBURL != "postgres://db" {
		t.Errorf("expected db url, got %q", sc.DBURL)
	}
	if sc.Scope != "" {
		t.Errorf("expected empty scope, got %q", sc.Scope)
	}
}
