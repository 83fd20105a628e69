package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROGRESS_"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Storage struct {
		Driver     string `yaml:"driver" validate:"oneof=memory sqlite redis"`
		SQLitePath string `yaml:"sqlite_path"`
		QuotaBytes int    `yaml:"quota_bytes" validate:"gte=0"`
		KeyPrefix  string `yaml:"key_prefix"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Catalog struct {
		Path string `yaml:"path"`
		TTL  string `yaml:"ttl"`
	} `yaml:"catalog"`
	Backup struct {
		MaxPayloadBytes int `yaml:"max_payload_bytes" validate:"gte=1,lte=2953"`
	} `yaml:"backup"`
	Review struct {
		CheckInterval string `yaml:"check_interval"`
	} `yaml:"review"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Storage.Driver = DriverMemory
	cfg.Storage.SQLitePath = "data/progress.db"
	cfg.Storage.QuotaBytes = 5 << 20
	cfg.Storage.KeyPrefix = "progress:"
	cfg.Redis.TTL = "0s"
	cfg.Catalog.TTL = "10m"
	cfg.Backup.MaxPayloadBytes = 2800
	cfg.Review.CheckInterval = "1h"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not
// an error. Environment overrides are applied afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// LoadDotEnv loads a .env file into the process environment if it exists.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(EnvPrefix + "CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v, err := strconv.Atoi(os.Getenv(EnvPrefix + "QUOTA_BYTES")); err == nil {
		cfg.Storage.QuotaBytes = v
	}
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Storage.Driver == DriverRedis && c.Redis.Addr == "" {
		return errors.New("invalid config: redis storage requires redis.addr")
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		return errors.New("invalid config: sqlite storage requires storage.sqlite_path")
	}
	for name, raw := range map[string]string{
		"redis.ttl":             c.Redis.TTL,
		"catalog.ttl":           c.Catalog.TTL,
		"review.check_interval": c.Review.CheckInterval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return errors.Wrapf(err, "invalid config: %s", name)
		}
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
