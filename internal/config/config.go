// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"epiconsole/internal/entity"
)

// Environment variables that override file settings.
const (
	EnvAPIURL           = "EPICONSOLE_API_URL"
	EnvAssetPrefix      = "EPICONSOLE_ASSET_PREFIX"
	EnvLogLevel         = "EPICONSOLE_LOG_LEVEL"
	EnvGreptimeEndpoint = "GREPTIMEDB_ENDPOINT"
	EnvS3AccessKeyID    = "EPICONSOLE_S3_ACCESS_KEY_ID"
	EnvS3SecretKey      = "EPICONSOLE_S3_SECRET_ACCESS_KEY"
)

// Assets selects where the store looks up map files.
type Assets struct {
	Driver    string `yaml:"driver"`
	Root      string `yaml:"root"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
	// Static S3 keys, overridable from the environment.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Greptime addresses the GreptimeDB audit sink.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// Audit lists the enabled audit sinks.
type Audit struct {
	Stdout   bool     `yaml:"stdout"`
	File     string   `yaml:"file"`
	Greptime Greptime `yaml:"greptime"`
}

// Store configures the reference store started by `serve`.
type Store struct {
	Addr        string `yaml:"addr"`
	BasePath    string `yaml:"base_path"`
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Assets      Assets `yaml:"assets"`
	Audit       Audit  `yaml:"audit"`
}

// Config is the root configuration shared by every subcommand.
type Config struct {
	APIURL      string        `yaml:"api_url"`
	AssetPrefix string        `yaml:"asset_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
	LogLevel    string        `yaml:"log_level"`
	LogFile     string        `yaml:"log_file"`
	Store       Store         `yaml:"store"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:      "http://localhost:8000/api/v1",
		AssetPrefix: entity.DefaultAssetPrefix,
		Timeout:     10 * time.Second,
		LogLevel:    "info",
		Store: Store{
			Addr:       ":8000",
			BasePath:   "/api/v1",
			Backend:    "memory",
			SQLitePath: "epiconsole.db",
			Assets:     Assets{Driver: "none", Root: "."},
			Audit:      Audit{Greptime: Greptime{Database: "public"}},
		},
	}
}

// Load reads the YAML file at path (skipped when empty), validates it
// against the CUE schema, applies it over the defaults and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := ValidateWithCue(path, data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := getenv(EnvAssetPrefix); v != "" {
		c.AssetPrefix = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvGreptimeEndpoint); v != "" {
		c.Store.Audit.Greptime.Endpoint = v
	}
	if v := getenv(EnvS3AccessKeyID); v != "" {
		c.Store.Assets.AccessKeyID = v
	}
	if v := getenv(EnvS3SecretKey); v != "" {
		c.Store.Assets.SecretAccessKey = v
	}
}

// Check validates settings that may come from the environment and so were
// never seen by the schema.
func (c *Config) Check() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url %q: must be an absolute http(s) url", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.backend %q: unknown backend", c.Store.Backend)
	}
	switch c.Store.Assets.Driver {
	case "none", "fs":
	case "s3":
		if c.Store.Assets.Bucket == "" {
			return fmt.Errorf("store.assets.bucket required for the s3 driver")
		}
	default:
		return fmt.Errorf("store.assets.driver %q: unknown driver", c.Store.Assets.Driver)
	}
	return nil
}
