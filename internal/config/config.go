package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Redis         RedisConfig             `mapstructure:"redis"`
	Storage       StorageConfig           `mapstructure:"storage"`
	S3            S3Config                `mapstructure:"s3"`
	JWT           JWTConfig               `mapstructure:"jwt"`
	Worker        WorkerConfig            `mapstructure:"worker"`
	KMS           KMSConfig               `mapstructure:"kms"`
	Notifications NotificationsConfig     `mapstructure:"notifications"`
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`  // development | production
	Port    int    `mapstructure:"port"` // HTTP API port
	Version string `mapstructure:"version"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "s3", "fs"
	FSRoot  string `mapstructure:"fs_root"` // root directory for filesystem
}

// S3Config holds credentials for an S3-compatible provider. This is the
// service-wide bucket; users may additionally register their own credentials,
// which are kept KMS-encrypted and decrypted only inside the worker.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type WorkerConfig struct {
	// How often the scheduler checks for users due a sweep
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	// Max concurrent asynq workers
	Concurrency int `mapstructure:"concurrency"`
	// Concurrent deletions within one prune run
	DeleteWorkers int `mapstructure:"delete_workers"`
	// Where the engine lists items from: "index" (Postgres item index) or
	// "store" (the object store itself, via metadata-bearing keys)
	ListSource string `mapstructure:"list_source"`
}

type KMSConfig struct {
	Key string `mapstructure:"key"`
}

type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// PolicyConfig adjusts one category's retention policy from deployment
// configuration. Sizes are in MiB to keep YAML readable.
type PolicyConfig struct {
	MaxAgeDays               int  `mapstructure:"max_age_days"`
	MinKeepCount             int  `mapstructure:"min_keep_count"`
	ProtectPeriodicSnapshots bool `mapstructure:"protect_periodic_snapshots"`
	MaxTotalSizeMB           int  `mapstructure:"max_total_size_mb"`
}

// PolicyTable merges any configured per-category adjustments over the
// compiled-in defaults. Unknown category names are a configuration error.
func (c *Config) PolicyTable() (policy.Table, error) {
	if len(c.Policies) == 0 {
		return policy.Defaults(), nil
	}
	adjust := make(map[models.Category]policy.Retention, len(c.Policies))
	for name, pc := range c.Policies {
		adjust[models.Category(name)] = policy.Retention{
			MaxAgeDays:               pc.MaxAgeDays,
			MinKeepCount:             pc.MinKeepCount,
			ProtectPeriodicSnapshots: pc.ProtectPeriodicSnapshots,
			MaxTotalSizeBytes:        int64(pc.MaxTotalSizeMB) << 20,
		}
	}
	return policy.Defaults().Merge(adjust)
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: VAULTSWEEP_
// Example: VAULTSWEEP_APP_PORT=8080.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "vaultsweep")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "0.3.0")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.fs_root", "./data/vault")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)

	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("jwt.secret", "")

	v.SetDefault("kms.key", "")

	v.SetDefault("notifications.webhook_url", "")

	v.SetDefault("worker.scheduler_interval", "1m")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.delete_workers", 4)
	v.SetDefault("worker.list_source", "index")

	// ---------- config file (optional) ----------
	v.SetConfigName("vaultsweep")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vaultsweep")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("VAULTSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
