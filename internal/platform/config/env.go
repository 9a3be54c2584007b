// Package config loads entitycache settings from the environment and the
// entity metadata file.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"entitycache/internal/blob"
	"entitycache/internal/core"
)

// Config holds process settings read from ENTITYCACHE_* variables.
type Config struct {
	StorageDriver string `env:"ENTITYCACHE_STORAGE" envDefault:"sqlite"`
	SQLitePath    string `env:"ENTITYCACHE_SQLITE_PATH" envDefault:"entitycache.db"`
	PostgresDSN   string `env:"ENTITYCACHE_POSTGRES_DSN"`

	BlobDriver      string `env:"ENTITYCACHE_BLOB_DRIVER" envDefault:"fs"`
	BlobRoot        string `env:"ENTITYCACHE_BLOB_ROOT" envDefault:"./blobdata"`
	BlobPrefix      string `env:"ENTITYCACHE_BLOB_PREFIX" envDefault:"snapshots/"`
	BlobCompression string `env:"ENTITYCACHE_BLOB_COMPRESSION" envDefault:"zstd"`
	S3              S3     `envPrefix:"ENTITYCACHE_S3_"`

	EntitiesFile string `env:"ENTITYCACHE_ENTITIES_FILE" envDefault:"entities.yaml"`
	LogLevel     string `env:"ENTITYCACHE_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"ENTITYCACHE_OTEL_ENDPOINT"`

	// DataServiceRate caps data service calls per second; zero disables
	// throttling.
	DataServiceRate  float64 `env:"ENTITYCACHE_DATASERVICE_RATE" envDefault:"0"`
	DataServiceBurst int     `env:"ENTITYCACHE_DATASERVICE_BURST" envDefault:"1"`
}

// S3 configures the s3 blob driver.
type S3 struct {
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Bucket          string `env:"BUCKET"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	PathStyle       bool   `env:"PATH_STYLE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Storage maps the settings onto the snapshot store configuration.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
		Blob: blob.Config{
			Driver: blob.Driver(c.BlobDriver),
			FSRoot: c.BlobRoot,
			S3: blob.S3Config{
				Region:          c.S3.Region,
				Bucket:          c.S3.Bucket,
				Endpoint:        c.S3.Endpoint,
				AccessKeyID:     c.S3.AccessKeyID,
				SecretAccessKey: c.S3.SecretAccessKey,
				SessionToken:    c.S3.SessionToken,
				PathStyle:       c.S3.PathStyle,
			},
		},
		BlobPrefix:      c.BlobPrefix,
		BlobCompression: c.BlobCompression,
	}
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
