package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.IsConfigured() {
		t.Error("default config has no credentials")
	}
	ds, ok := cfg.Dataset("customers")
	if !ok || ds.TTL != 4*time.Hour {
		t.Errorf("customers dataset = %+v", ds)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := writeConfig(t, `
remote:
  url: https://example.supabase.co
  key: secret
  page_size: 500
sync:
  load_timeout: 30s
datasets:
  - name: customers
    ttl: 4h
    transform: customers
    order:
      column: id
      ascending: true
  - name: sales
    table: transactions
    ttl: 90m
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.IsConfigured() {
		t.Fatal("expected configured remote")
	}
	if cfg.Remote.PageSize != 500 {
		t.Errorf("PageSize = %d, want 500", cfg.Remote.PageSize)
	}
	if cfg.Sync.LoadTimeout != 30*time.Second {
		t.Errorf("LoadTimeout = %v", cfg.Sync.LoadTimeout)
	}
	if cfg.Sync.BackgroundTimeout != 5*time.Minute {
		t.Errorf("BackgroundTimeout = %v, want default", cfg.Sync.BackgroundTimeout)
	}
	if len(cfg.Datasets) != 2 {
		t.Fatalf("got %d datasets, want 2 (file replaces defaults)", len(cfg.Datasets))
	}
	sales, ok := cfg.Dataset("sales")
	if !ok || sales.Table != "transactions" || sales.TTL != 90*time.Minute {
		t.Errorf("sales = %+v", sales)
	}
	customers, _ := cfg.Dataset("customers")
	if customers.Table != "customers" || customers.Order == nil || !customers.Order.Ascending {
		t.Errorf("customers = %+v", customers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, "remote:\n  url: https://file.example\n")
	t.Setenv("TABLESYNC_REMOTE_KEY", "from-env")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Remote.Key != "from-env" {
		t.Errorf("Key = %q, want from-env", cfg.Remote.Key)
	}
	if len(cfg.Datasets) != 3 {
		t.Errorf("got %d datasets, want defaults", len(cfg.Datasets))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no datasets", func(c *Config) { c.Datasets = nil }},
		{"empty name", func(c *Config) { c.Datasets[0].Name = "" }},
		{"duplicate", func(c *Config) { c.Datasets[1].Name = c.Datasets[0].Name }},
		{"zero ttl", func(c *Config) { c.Datasets[0].TTL = 0 }},
		{"empty order column", func(c *Config) { c.Datasets[0].Order = &OrderConfig{} }},
		{"page size", func(c *Config) { c.Remote.PageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
