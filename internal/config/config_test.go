package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected driver 'sqlite', got '%s'", cfg.Store.Driver)
	}
	if cfg.Inbox.Debounce != 200*time.Millisecond {
		t.Errorf("Expected 200ms debounce, got %s", cfg.Inbox.Debounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "tasktree.yaml",
			content: `store:
  driver: postgres
  url: postgres://localhost/tasks
log:
  level: debug
inbox:
  debounce: 1s
`,
		},
		{
			name: "toml",
			file: "tasktree.toml",
			content: `[store]
driver = "postgres"
url = "postgres://localhost/tasks"

[log]
level = "debug"

[inbox]
debounce = "1s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if cfg.Store.Driver != "postgres" || cfg.Store.URL != "postgres://localhost/tasks" {
				t.Errorf("Unexpected store config: %+v", cfg.Store)
			}
			if cfg.Log.Level != "debug" {
				t.Errorf("Expected level debug, got %q", cfg.Log.Level)
			}
			if cfg.Inbox.Debounce != time.Second {
				t.Errorf("Expected 1s debounce, got %s", cfg.Inbox.Debounce)
			}
			// Keys absent from the file keep their defaults.
			if cfg.Server.Addr != ":8080" {
				t.Errorf("Expected default addr, got %q", cfg.Server.Addr)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tasktree.yaml"), []byte("server:\n  addr: \":9999\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Expected addr from working directory config, got %q", cfg.Server.Addr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TASKTREE_STORE_PATH", "/tmp/other.db")
	t.Setenv("TASKTREE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Path != "/tmp/other.db" {
		t.Errorf("Expected store path from env, got %q", cfg.Store.Path)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected level from env, got %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, true},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, true},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"postgres with url", func(c *Config) { c.Store.Driver = "postgres"; c.Store.URL = "postgres://x" }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"negative backups", func(c *Config) { c.Log.MaxBackups = -1 }, true},
		{"zero debounce", func(c *Config) { c.Inbox.Debounce = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
