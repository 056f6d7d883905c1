package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for photolala.
type Config struct {
	DeviceID    string         `toml:"device_id"`
	CatalogRoot string         `toml:"catalog_root"` // remote catalog name under catalogs/
	BaseDir     string         `toml:"base_dir"`
	LogDir      string         `toml:"log_dir"`
	Store       StoreConfig    `toml:"store"`
	Cache       CacheConfig    `toml:"cache"`
	Database    DatabaseConfig `toml:"database"`
	Backup      BackupConfig   `toml:"backup"`
}

// StoreConfig represents configuration for the remote object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "s3" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"` // custom endpoint for S3-compatible services
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// CacheConfig represents configuration for the local artifact cache.
type CacheConfig struct {
	Dir      string `toml:"dir"`
	MaxBytes int64  `toml:"max_bytes"` // cache quota; must be positive
}

// DatabaseConfig represents configuration for the local state database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BackupConfig tunes the upload pipeline.
type BackupConfig struct {
	Workers     int `toml:"workers"`      // concurrent upload workers, defaults to 4
	MaxAttempts int `toml:"max_attempts"` // per-task attempts before a task is marked failed, defaults to 3
}

// DefaultWorkers is used when backup.workers is unset.
const DefaultWorkers = 4

// DefaultMaxAttempts is used when backup.max_attempts is unset.
const DefaultMaxAttempts = 3

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID:    deviceID,
		CatalogRoot: deviceID,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		Store:       StoreConfig{Type: "memory"},
		Cache: CacheConfig{
			Dir:      filepath.Join(baseDir, "cache"),
			MaxBytes: 10 << 30, // 10 GiB
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Backup:   BackupConfig{Workers: DefaultWorkers, MaxAttempts: DefaultMaxAttempts},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
