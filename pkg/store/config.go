package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend selects the persistence engine.
type Backend string

const (
	BackendCSV    Backend = "csv"
	BackendSQLite Backend = "sqlite"
)

// Config holds the unified configuration for opening a store.
type Config struct {
	// Backend selects the engine: csv or sqlite.
	Backend Backend `json:"backend" yaml:"backend"`

	// DataDir is the base directory for local data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Database configuration (sqlite backend).
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Storage configuration (csv backend).
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Partitioner configuration (csv backend).
	Partitioner PartitionerConfig `json:"partitioner" yaml:"partitioner"`

	// Cache configuration (csv backend).
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// DatabaseConfig holds sqlite backend configuration.
type DatabaseConfig struct {
	// Path is the database file path.
	Path string `json:"path" yaml:"path"`
}

// StorageConfig holds storage adapter configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local adapter root (for local type).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 adapter configuration.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region.
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix roots the adapter under a key prefix within the bucket.
	Prefix string `json:"prefix" yaml:"prefix"`

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// PartitionerConfig selects and parameterizes the partitioner.
type PartitionerConfig struct {
	// Type is the partitioner type: single, fixedsize, yearmonth, hash
	Type string `json:"type" yaml:"type"`

	// Name is the fixed partition name (single type).
	Name string `json:"name" yaml:"name"`

	// Size is the bucket width (fixedsize type).
	Size float64 `json:"size" yaml:"size"`

	// Buckets is the bucket count (hash type).
	Buckets uint32 `json:"buckets" yaml:"buckets"`
}

// CacheConfig bounds the CSV engine's partition page cache.
type CacheConfig struct {
	// MaxBytes is the compressed page budget. Zero disables caching.
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is a zerolog level name; empty disables logging.
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendCSV,
		DataDir: "./data/strata",
		Storage: StorageConfig{
			Type: "local",
		},
		Partitioner: PartitionerConfig{
			Type: "yearmonth",
		},
		Cache: CacheConfig{
			MaxBytes: 32 * 1024 * 1024,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/strata"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "strata.db")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCSV, BackendSQLite:
	default:
		return fmt.Errorf("invalid backend: %s (must be csv or sqlite)", c.Backend)
	}

	if c.Backend == BackendSQLite {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
		return nil
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Partitioner.Type {
	case "single":
		if c.Partitioner.Name == "" {
			return fmt.Errorf("partitioner.name is required for the single partitioner")
		}
	case "fixedsize":
		if c.Partitioner.Size <= 0 {
			return fmt.Errorf("partitioner.size must be > 0, got %v", c.Partitioner.Size)
		}
	case "yearmonth", "hash":
	default:
		return fmt.Errorf("invalid partitioner type: %s (must be single, fixedsize, yearmonth, or hash)",
			c.Partitioner.Type)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotenv loads environment variables from .env files before
// LoadFromEnv is applied. Missing files are ignored.
func LoadDotenv(paths ...string) {
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
	if len(paths) == 0 {
		_ = godotenv.Load()
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STRATA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STRATA_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	if v := os.Getenv("STRATA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STRATA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STRATA_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STRATA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STRATA_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("STRATA_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("STRATA_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("STRATA_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
	if v := os.Getenv("STRATA_PARTITIONER_TYPE"); v != "" {
		cfg.Partitioner.Type = v
	}
	if v := os.Getenv("STRATA_PARTITIONER_NAME"); v != "" {
		cfg.Partitioner.Name = v
	}
	if v := os.Getenv("STRATA_PARTITIONER_SIZE"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Partitioner.Size)
	}
	if v := os.Getenv("STRATA_PARTITIONER_BUCKETS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Partitioner.Buckets)
	}
	if v := os.Getenv("STRATA_CACHE_MAX_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cache.MaxBytes)
	}
	if v := os.Getenv("STRATA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
