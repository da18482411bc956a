package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Auth      AuthConfig      `koanf:"auth"`
	Recommend RecommendConfig `koanf:"recommend"`
	Recalc    RecalcConfig    `koanf:"recalc"`
	Cache     CacheConfig     `koanf:"cache"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// AuthConfig controls bearer-token identity. An empty JWTSecret disables it.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// RecommendConfig tunes session recommendations.
type RecommendConfig struct {
	MaxResults            int     `koanf:"max_results"`
	MinRelevance          float64 `koanf:"min_relevance"`
	RequirePreferredGenre bool    `koanf:"require_preferred_genre"`
	QualityThreshold      float64 `koanf:"quality_threshold"`
}

// RecalcConfig drives the relevance recalculation job.
type RecalcConfig struct {
	Enabled   bool          `koanf:"enabled"`
	OnStartup bool          `koanf:"on_startup"`
	Interval  time.Duration `koanf:"interval"`
	Workers   int           `koanf:"workers"`
	MinScore  float64       `koanf:"min_score"`
}

type CacheConfig struct {
	GraphTTL time.Duration `koanf:"graph_ttl"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "journey.db"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Recommend: RecommendConfig{
			MaxResults:            10,
			MinRelevance:          0.3,
			RequirePreferredGenre: true,
			QualityThreshold:      7.0,
		},
		Recalc: RecalcConfig{
			Enabled:  false,
			Interval: 24 * time.Hour,
			Workers:  4,
			MinScore: 5.0,
		},
		Cache: CacheConfig{GraphTTL: 5 * time.Minute},
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing priority. A .env file is loaded into the
// environment first if present.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"http_port":                   "server.port",
	"server_read_timeout":         "server.read_timeout",
	"server_write_timeout":        "server.write_timeout",
	"server_shutdown_timeout":     "server.shutdown_timeout",
	"database_url":                "database.path",
	"log_level":                   "logging.level",
	"log_format":                  "logging.format",
	"log_caller":                  "logging.caller",
	"jwt_secret":                  "auth.jwt_secret",
	"jwt_token_ttl":               "auth.token_ttl",
	"recommend_max_results":       "recommend.max_results",
	"recommend_min_relevance":     "recommend.min_relevance",
	"recommend_require_preferred": "recommend.require_preferred_genre",
	"recommend_quality_threshold": "recommend.quality_threshold",
	"recalc_enabled":              "recalc.enabled",
	"recalc_on_startup":           "recalc.on_startup",
	"recalc_interval":             "recalc.interval",
	"recalc_workers":              "recalc.workers",
	"recalc_min_score":            "recalc.min_score",
	"graph_cache_ttl":             "cache.graph_ttl",
}

// envTransformFunc maps known environment variables to koanf paths and drops
// everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server.port is required")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Recommend.MaxResults <= 0 {
		problems = append(problems, "recommend.max_results must be positive")
	}
	if c.Recommend.MinRelevance < 0 || c.Recommend.MinRelevance > 1 {
		problems = append(problems, "recommend.min_relevance must be within [0,1]")
	}
	if c.Recalc.Workers <= 0 {
		problems = append(problems, "recalc.workers must be positive")
	}
	if c.Recalc.MinScore < 0 || c.Recalc.MinScore > 10 {
		problems = append(problems, "recalc.min_score must be within [0,10]")
	}
	if c.Recalc.Enabled && c.Recalc.Interval <= 0 {
		problems = append(problems, "recalc.interval must be positive when recalc is enabled")
	}
	if c.Cache.GraphTTL < 0 {
		problems = append(problems, "cache.graph_ttl must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
