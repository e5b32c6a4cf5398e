// Package config loads configuration from an optional YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docshelf/docshelf/pkg/manifest"
)

// Config holds builder, server and runtime configuration.
type Config struct {
	// Server
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// PublicOrigin is the scheme://host the library is reachable at. Without
	// it no absolute URL can be built and the office viewer fallback is off.
	PublicOrigin string `yaml:"public_origin"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Library layout: <PublicDir>/assets/instructions/manifest.json
	PublicDir string `yaml:"public_dir"`

	// Storage backend for served assets ("local" or "s3", default: "local")
	StorageBackend string `yaml:"storage_backend"`

	// S3 storage
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// Builder
	SofficePath    string        `yaml:"soffice_path"`
	ConvertTimeout time.Duration `yaml:"convert_timeout"`
	BuilderWatch   bool          `yaml:"builder_watch"`
	WatchDebounce  time.Duration `yaml:"watch_debounce"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		LogFormat:      "json",
		PublicDir:      "src",
		StorageBackend: "local",
		S3Endpoint:     "http://localhost:9000",
		S3Bucket:       "docshelf",
		S3AccessKey:    "minioadmin",
		S3SecretKey:    "minioadmin",
		S3Region:       "us-east-1",
		SofficePath:    "soffice",
		ConvertTimeout: 2 * time.Minute,
		WatchDebounce:  500 * time.Millisecond,
	}
}

// Load reads DOCSHELF_CONFIG (if set) and then applies environment overrides.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCSHELF_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = envOr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.PublicOrigin = envOr("PUBLIC_ORIGIN", cfg.PublicOrigin)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.PublicDir = envOr("PUBLIC_DIR", cfg.PublicDir)
	cfg.StorageBackend = envOr("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.S3Endpoint = envOr("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Bucket = envOr("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = envOr("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = envOr("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Region = envOr("S3_REGION", cfg.S3Region)
	cfg.S3UseSSL = envBool("S3_USE_SSL", cfg.S3UseSSL)
	cfg.SofficePath = envOr("SOFFICE_PATH", cfg.SofficePath)
	cfg.ConvertTimeout = envDuration("CONVERT_TIMEOUT", cfg.ConvertTimeout)
	cfg.BuilderWatch = envBool("BUILDER_WATCH", cfg.BuilderWatch)
	cfg.WatchDebounce = envDuration("WATCH_DEBOUNCE", cfg.WatchDebounce)

	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// AssetsDir is the directory that maps to the "assets" path segment.
func (c *Config) AssetsDir() string {
	return filepath.Join(c.PublicDir, manifest.AssetRoot)
}

// LibraryDir is the scanned library root.
func (c *Config) LibraryDir() string {
	return filepath.Join(c.AssetsDir(), manifest.LibraryDir)
}

// ManifestPath is where the builder writes the manifest.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.LibraryDir(), manifest.FileName)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
