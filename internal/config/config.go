// Package config loads service settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"shr_parser/internal/geo"
	"shr_parser/internal/parsers/shr"
	"shr_parser/internal/storage"
)

const (
	configPathEnv     = "SHR_CONFIG"
	appEnvEnv         = "APP_ENV"
	logLevelEnv       = "SHR_LOG_LEVEL"
	storageDriverEnv  = "SHR_STORAGE_DRIVER"
	sqlitePathEnv     = "SHR_SQLITE_PATH"
	natsURLEnv        = "NATS_URL"
	apiPortEnv        = "SHR_API_PORT"
	apiKeysEnv        = "SHR_API_KEYS"
	timePolicyEnv     = "SHR_TIME_POLICY"
	workersEnv        = "SHR_WORKERS"
	clickhouseHostEnv = "CLICKHOUSE_HOST"
)

// Config holds every setting of the binaries.
type Config struct {
	Env        string           `yaml:"env"`
	LogLevel   string           `yaml:"log_level"`
	Storage    storage.Config   `yaml:"storage"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Parse      ParseConfig      `yaml:"parse"`
}

// ClickHouseConfig enables the analytics archive.
type ClickHouseConfig struct {
	Enabled bool `yaml:"enabled"`

	storage.ClickHouseConfig `yaml:",inline"`
}

// NATSConfig configures the message bus. An empty URL disables it.
type NATSConfig struct {
	URL             string `yaml:"url"`
	FlightSubject   string `yaml:"flight_subject"`
	TelegramSubject string `yaml:"telegram_subject"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port         int      `yaml:"port"`
	AuthEnabled  bool     `yaml:"auth_enabled"`
	APIKeys      []string `yaml:"api_keys"`
	MaxUploadMiB int64    `yaml:"max_upload_mib"`
}

// CatalogConfig configures the region catalog.
type CatalogConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// ParseConfig configures telegram assembly.
type ParseConfig struct {
	TimePolicy string `yaml:"time_policy"`
	Workers    int    `yaml:"workers"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Env:      "development",
		LogLevel: "info",
		Storage:  storage.DefaultConfig(),
		ClickHouse: ClickHouseConfig{
			ClickHouseConfig: storage.ClickHouseConfig{
				Host:     "localhost",
				Port:     9000,
				Database: "default",
				User:     "default",
			},
		},
		NATS: NATSConfig{
			FlightSubject:   "shr.flights",
			TelegramSubject: "shr.telegrams",
		},
		API: APIConfig{
			Port:         8080,
			MaxUploadMiB: 64,
		},
		Catalog: CatalogConfig{CacheSize: geo.DefaultCacheSize},
		Parse:   ParseConfig{TimePolicy: string(shr.TimePolicyFirstMatch), Workers: 1},
	}
}

// Load reads the YAML file at path (or $SHR_CONFIG when path is empty) over
// the defaults, then applies environment overrides. A missing path is not an
// error; an unreadable or invalid file is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		// Keys absent from the file keep their default values.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(appEnvEnv); v != "" {
		c.Env = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(sqlitePathEnv); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DATABASE"); v != "" {
		c.Storage.Postgres.Database = v
	}
	if err := envInt("POSTGRES_PORT", &c.Storage.Postgres.Port); err != nil {
		return err
	}

	if v := os.Getenv(clickhouseHostEnv); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		c.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		c.ClickHouse.User = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if err := envInt("CLICKHOUSE_PORT", &c.ClickHouse.Port); err != nil {
		return err
	}

	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}

	if err := envInt(apiPortEnv, &c.API.Port); err != nil {
		return err
	}
	if v := os.Getenv(apiKeysEnv); v != "" {
		c.API.APIKeys = SplitKeys(v)
		c.API.AuthEnabled = len(c.API.APIKeys) > 0
	}

	if v := os.Getenv(timePolicyEnv); v != "" {
		c.Parse.TimePolicy = v
	}
	return envInt(workersEnv, &c.Parse.Workers)
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	if _, err := shr.ParseTimePolicy(c.Parse.TimePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("config: invalid api port %d", c.API.Port)
	}
	if c.API.AuthEnabled && len(c.API.APIKeys) == 0 {
		return fmt.Errorf("config: api auth enabled without api keys")
	}
	return nil
}

// TimePolicy returns the validated time policy.
func (c Config) TimePolicy() shr.TimePolicy {
	p, _ := shr.ParseTimePolicy(c.Parse.TimePolicy)
	return p
}

// CatalogOptions returns the region catalog options.
func (c Config) CatalogOptions() geo.CatalogOptions {
	return geo.CatalogOptions{CacheSize: c.Catalog.CacheSize}
}

// SplitKeys parses a comma-separated list of API keys.
func SplitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
