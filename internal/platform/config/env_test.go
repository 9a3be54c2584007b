package config

import (
	"log/slog"
	"strings"
	"testing"

	"entitycache/internal/blob"
	"entitycache/internal/core"
)

type envTestConfig struct {
	Port int `env:"ENTITYCACHE_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ENTITYCACHE_TEST_PORT", "not-an-int")
	err := ParseEnv(&cfg)
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	storage := cfg.Storage()
	if storage.Driver != core.StorageSQLite || storage.SQLitePath != "entitycache.db" {
		t.Fatalf("unexpected storage defaults %+v", storage)
	}
	if storage.Blob.Driver != blob.DriverFilesystem || storage.BlobCompression != "zstd" {
		t.Fatalf("unexpected blob defaults %+v", storage)
	}
	if cfg.S3.Region != "us-east-1" || cfg.EntitiesFile != "entities.yaml" || cfg.DataServiceRate != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadBlobS3Settings(t *testing.T) {
	t.Setenv("ENTITYCACHE_STORAGE", "blob")
	t.Setenv("ENTITYCACHE_BLOB_DRIVER", "s3")
	t.Setenv("ENTITYCACHE_BLOB_PREFIX", "team-a")
	t.Setenv("ENTITYCACHE_BLOB_COMPRESSION", "lz4")
	t.Setenv("ENTITYCACHE_S3_BUCKET", "caches")
	t.Setenv("ENTITYCACHE_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ENTITYCACHE_S3_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	storage := cfg.Storage()
	if storage.Driver != core.StorageBlob || storage.Blob.Driver != blob.DriverS3 {
		t.Fatalf("unexpected drivers %+v", storage)
	}
	if storage.BlobPrefix != "team-a" || storage.BlobCompression != "lz4" {
		t.Fatalf("unexpected blob settings %+v", storage)
	}
	s3 := storage.Blob.S3
	if s3.Bucket != "caches" || s3.Endpoint != "http://minio:9000" || !s3.PathStyle || s3.Region != "us-east-1" {
		t.Fatalf("unexpected s3 settings %+v", s3)
	}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := Config{LogLevel: tc.in}.Level()
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("Level(%q) = %v, %v", tc.in, got, err)
		}
	}
}
