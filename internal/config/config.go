// Package config loads runtime settings from an optional YAML file, an
// optional .env file and EQUIPLOAN_* environment variables, in that order of
// increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equiploan/internal/blob"
	"equiploan/internal/core"
	"equiploan/internal/infra/persistence/memory"
	"equiploan/internal/infra/persistence/redis"
)

// Config is the full runtime configuration.
type Config struct {
	Actor    string        `yaml:"actor"`
	LogLevel string        `yaml:"log_level"`
	Storage  StorageConfig `yaml:"storage"`
	Blob     BlobConfig    `yaml:"blob"`
	HTTP     HTTPConfig    `yaml:"http"`
	Sweep    SweepConfig   `yaml:"sweep"`
	Export   ExportConfig  `yaml:"export"`
}

// StorageConfig selects the durable snapshot backend.
type StorageConfig struct {
	Driver      string      `yaml:"driver"`
	SQLitePath  string      `yaml:"sqlite_path"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	MySQLDSN    string      `yaml:"mysql_dsn"`
	Redis       RedisConfig `yaml:"redis"`
	SeedOnEmpty bool        `yaml:"seed_on_empty"`
}

// RedisConfig addresses the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BlobConfig selects where report artifacts are written.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config addresses an S3 or MinIO bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SweepConfig configures the background overdue sweep.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ExportConfig configures the report export worker.
type ExportConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Actor:    memory.DefaultActor,
		LogLevel: "info",
		Storage: StorageConfig{
			Driver:      string(core.StorageSQLite),
			SQLitePath:  "./equiploan.db",
			Redis:       RedisConfig{Addr: "127.0.0.1:6379"},
			SeedOnEmpty: true,
		},
		Blob:   BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "./artifacts"},
		HTTP:   HTTPConfig{Addr: ":8080", CORSOrigins: []string{"http://localhost:5173"}},
		Sweep:  SweepConfig{Interval: time.Minute},
		Export: ExportConfig{QueueSize: 32},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the
// environment. Unknown YAML keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv exports variables from the given .env files into the process
// environment without overriding ones already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"EQUIPLOAN_ACTOR":              &c.Actor,
		"EQUIPLOAN_LOG_LEVEL":          &c.LogLevel,
		"EQUIPLOAN_STORAGE_DRIVER":     &c.Storage.Driver,
		"EQUIPLOAN_SQLITE_PATH":        &c.Storage.SQLitePath,
		"EQUIPLOAN_POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"EQUIPLOAN_MYSQL_DSN":          &c.Storage.MySQLDSN,
		"EQUIPLOAN_REDIS_ADDR":         &c.Storage.Redis.Addr,
		"EQUIPLOAN_REDIS_PASSWORD":     &c.Storage.Redis.Password,
		"EQUIPLOAN_BLOB_DRIVER":        &c.Blob.Driver,
		"EQUIPLOAN_BLOB_FS_ROOT":       &c.Blob.FSRoot,
		"EQUIPLOAN_BLOB_S3_BUCKET":     &c.Blob.S3.Bucket,
		"EQUIPLOAN_BLOB_S3_REGION":     &c.Blob.S3.Region,
		"EQUIPLOAN_BLOB_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"EQUIPLOAN_BLOB_S3_ACCESS_KEY": &c.Blob.S3.AccessKey,
		"EQUIPLOAN_BLOB_S3_SECRET_KEY": &c.Blob.S3.SecretKey,
		"EQUIPLOAN_HTTP_ADDR":          &c.HTTP.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"EQUIPLOAN_SEED_ON_EMPTY":      &c.Storage.SeedOnEmpty,
		"EQUIPLOAN_BLOB_S3_PATH_STYLE": &c.Blob.S3.PathStyle,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"EQUIPLOAN_REDIS_DB":     &c.Storage.Redis.DB,
		"EQUIPLOAN_EXPORT_QUEUE": &c.Export.QueueSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("EQUIPLOAN_SWEEP_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EQUIPLOAN_SWEEP_INTERVAL: %w", err)
		}
		c.Sweep.Interval = d
	}
	if v, ok := lookup("EQUIPLOAN_CORS_ORIGINS"); ok && v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	return nil
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks driver names and the fields each driver needs.
func (c Config) Validate() error {
	switch core.StorageDriver(strings.ToLower(c.Storage.Driver)) {
	case core.StorageMemory, core.StorageSQLite, core.StorageRedis:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn required for postgres driver")
		}
	case core.StorageMySQL:
		if c.Storage.MySQLDSN == "" {
			return errors.New("storage.mysql_dsn required for mysql driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch blob.Driver(strings.ToLower(c.Blob.Driver)) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket required for s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Sweep.Interval < 0 {
		return errors.New("sweep.interval must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(strings.ToLower(c.Storage.Driver)),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		MySQLDSN:    c.Storage.MySQLDSN,
		Redis:       redis.Options{Addr: c.Storage.Redis.Addr, Password: c.Storage.Redis.Password, DB: c.Storage.Redis.DB},
		SeedOnEmpty: c.Storage.SeedOnEmpty,
	}
}

// BlobOptions converts the blob section for blob.Open.
func (c Config) BlobOptions() blob.Config {
	return blob.Config{
		Driver: blob.Driver(strings.ToLower(c.Blob.Driver)),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKey,
			SecretAccessKey: c.Blob.S3.SecretKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
