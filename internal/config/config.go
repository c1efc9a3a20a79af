// Package config loads the engine's runtime configuration via viper:
// defaults, an optional config file, then environment variables, in that
// order of increasing precedence, matching the teacher's own
// default-then-file-then-env layering.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/lattice-run/crawlhive/internal/api"
	"github.com/lattice-run/crawlhive/internal/logger"
	"github.com/lattice-run/crawlhive/internal/store"
)

// Config is the engine's full runtime configuration.
type Config struct {
	App           AppConfig
	Logger        logger.Config
	Server        ServerConfig
	Postgres      store.PostgresConfig
	Elasticsearch ElasticsearchConfig
	Redis         RedisConfig
}

// AppConfig holds process-wide, non-component settings.
type AppConfig struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Debug       bool   `mapstructure:"debug"       yaml:"debug"`
}

// ServerConfig configures the Control API's HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"address"          yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"     yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"     yaml:"cors_origins"`
}

// ElasticsearchConfig configures the optional Record Store mirror. Enabled
// is true only when Addresses is non-empty: Postgres alone is a complete,
// valid configuration.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	APIKey    string   `mapstructure:"api_key"   yaml:"api_key"`
}

// Enabled reports whether an Elasticsearch mirror should be wired up.
func (c ElasticsearchConfig) Enabled() bool { return len(c.Addresses) > 0 }

// RedisConfig configures the optional Robots Cache persistence layer.
// Enabled is true only when Addr is set; an in-memory robots store is used
// otherwise.
type RedisConfig struct {
	Addr     string `mapstructure:"address"  yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
}

// Enabled reports whether a Redis-backed robots store should be wired up.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Load reads configuration from an optional file at path (skipped if
// empty), layering in environment variables, and returns the populated,
// defaulted Config.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Logger.SetDefaults()
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = api.DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = api.DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = api.DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = api.DefaultShutdownTimeout
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.debug", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.development", false)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.dbname", "crawlhive")
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("app.environment", "APP_ENV")
	_ = v.BindEnv("app.debug", "APP_DEBUG")

	_ = v.BindEnv("logger.level", "LOG_LEVEL")
	_ = v.BindEnv("logger.format", "LOG_FORMAT")
	_ = v.BindEnv("logger.development", "LOG_DEVELOPMENT")

	_ = v.BindEnv("server.address", "SERVER_ADDRESS")

	_ = v.BindEnv("postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("postgres.dbname", "POSTGRES_DB")
	_ = v.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")

	_ = v.BindEnv("elasticsearch.addresses", "ELASTICSEARCH_ADDRESSES", "ELASTICSEARCH_HOSTS")
	_ = v.BindEnv("elasticsearch.api_key", "ELASTICSEARCH_API_KEY")

	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
}
