package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		DeviceID:    "test-device-abc",
		CatalogRoot: "macbook",
		BaseDir:     "/home/user/.local/share/photolala",
		LogDir:      "/home/user/.local/share/photolala/log",
		Store: StoreConfig{
			Type:     "s3",
			S3Bucket: "photolala-main",
			S3Prefix: "users/u-123",
			S3Region: "us-east-1",
		},
		Cache: CacheConfig{
			Dir:      "/home/user/.local/share/photolala/cache",
			MaxBytes: 1 << 30,
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/photolala/db"},
		Backup:   BackupConfig{Workers: 8, MaxAttempts: 5},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.CatalogRoot != original.CatalogRoot {
		t.Errorf("CatalogRoot = %q, want %q", got.CatalogRoot, original.CatalogRoot)
	}
	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Store.Type != "s3" {
		t.Errorf("Store.Type = %q, want %q", got.Store.Type, "s3")
	}
	if got.Store.S3Bucket != "photolala-main" {
		t.Errorf("Store.S3Bucket = %q, want %q", got.Store.S3Bucket, "photolala-main")
	}
	if got.Store.S3Prefix != "users/u-123" {
		t.Errorf("Store.S3Prefix = %q, want %q", got.Store.S3Prefix, "users/u-123")
	}
	if got.Cache.MaxBytes != original.Cache.MaxBytes {
		t.Errorf("Cache.MaxBytes = %d, want %d", got.Cache.MaxBytes, original.Cache.MaxBytes)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Backup.Workers != 8 {
		t.Errorf("Backup.Workers = %d, want %d", got.Backup.Workers, 8)
	}
	if got.Backup.MaxAttempts != 5 {
		t.Errorf("Backup.MaxAttempts = %d, want %d", got.Backup.MaxAttempts, 5)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "/data/photolala")

	if cfg.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "device-1")
	}
	if cfg.CatalogRoot != "device-1" {
		t.Errorf("CatalogRoot = %q, want %q", cfg.CatalogRoot, "device-1")
	}
	if cfg.BaseDir != "/data/photolala" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/photolala")
	}
	if cfg.LogDir != "/data/photolala/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/photolala/log")
	}
	if cfg.Cache.Dir != "/data/photolala/cache" {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, "/data/photolala/cache")
	}
	if cfg.Cache.MaxBytes <= 0 {
		t.Errorf("Cache.MaxBytes = %d, want positive", cfg.Cache.MaxBytes)
	}
	if cfg.Backup.Workers != DefaultWorkers {
		t.Errorf("Backup.Workers = %d, want %d", cfg.Backup.Workers, DefaultWorkers)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photolala.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photolala.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photolala.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceID != "read-test" {
			t.Errorf("DeviceID = %q, want %q", got.DeviceID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/photolala.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
