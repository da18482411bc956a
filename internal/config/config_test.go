package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp isolates Load from any .env or config.yaml in the package dir.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Recommend.MaxResults != 10 || cfg.Recommend.MinRelevance != 0.3 {
		t.Errorf("unexpected recommend defaults %+v", cfg.Recommend)
	}
	if !cfg.Recommend.RequirePreferredGenre {
		t.Error("require_preferred_genre should default to true")
	}
	if cfg.Recalc.MinScore != 5.0 || cfg.Recalc.Workers != 4 {
		t.Errorf("unexpected recalc defaults %+v", cfg.Recalc)
	}
	if cfg.Cache.GraphTTL != 5*time.Minute {
		t.Errorf("graph ttl = %v", cfg.Cache.GraphTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_URL", "/tmp/x.db")
	t.Setenv("RECALC_WORKERS", "8")
	t.Setenv("RECALC_INTERVAL", "1h")
	t.Setenv("RECOMMEND_MIN_RELEVANCE", "0.5")
	t.Setenv("JWT_SECRET", "abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Recalc.Workers != 8 || cfg.Recalc.Interval != time.Hour {
		t.Errorf("recalc = %+v", cfg.Recalc)
	}
	if cfg.Recommend.MinRelevance != 0.5 {
		t.Errorf("min relevance = %v", cfg.Recommend.MinRelevance)
	}
	if cfg.Auth.JWTSecret != "abc" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := "server:\n  port: \"7070\"\nrecommend:\n  max_results: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Recommend.MaxResults != 3 {
		t.Errorf("yaml values not applied: port=%q max=%d", cfg.Server.Port, cfg.Recommend.MaxResults)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"bad relevance", func(c *Config) { c.Recommend.MinRelevance = 1.5 }, "recommend.min_relevance"},
		{"zero workers", func(c *Config) { c.Recalc.Workers = 0 }, "recalc.workers"},
		{"bad min score", func(c *Config) { c.Recalc.MinScore = 11 }, "recalc.min_score"},
		{"enabled without interval", func(c *Config) {
			c.Recalc.Enabled = true
			c.Recalc.Interval = 0
		}, "recalc.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
