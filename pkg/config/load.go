package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nicktill/clusterwatch/pkg/generator"
)

// Config is the full process configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	Regeneration RegenerationConfig `mapstructure:"regeneration"`
	Reader       ReaderConfig       `mapstructure:"reader"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	DataDir       string `mapstructure:"data_dir"`
	MaxMemoryMB   int64  `mapstructure:"max_memory_mb"`
	MaxStorageGB  int64  `mapstructure:"max_storage_gb"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type GeneratorConfig struct {
	SpanDays int `mapstructure:"span_days"`
}

type RegenerationConfig struct {
	// Interval between scheduled passes; zero disables the scheduler
	Interval   time.Duration `mapstructure:"interval"`
	Entities   []string      `mapstructure:"entities"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ReaderConfig struct {
	// CacheTTL of zero disables the read cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageConfig{
			Backend:      BackendBadger,
			DataDir:      DefaultDataDir,
			MaxMemoryMB:  DefaultMaxMemoryMB,
			MaxStorageGB: DefaultMaxStorageGB,
			RedisAddr:    "localhost:6379",
		},
		Generator: GeneratorConfig{SpanDays: generator.DefaultSpanDays},
		Regeneration: RegenerationConfig{
			Interval:   RegenerationInterval,
			MaxRetries: RegenerationMaxRetries,
			RetryDelay: RegenerationRetryDelay,
		},
		Reader: ReaderConfig{CacheTTL: DefaultCacheTTL},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads config.yaml (current directory or configPath) and environment
// variables. Environment variables use the prefix "CLUSTERWATCH" with dots
// replaced by underscores, e.g. "storage.backend" is read from
// CLUSTERWATCH_STORAGE_BACKEND.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CLUSTERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist; the implicit config.yaml is optional
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger, BackendFile, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Generator.SpanDays <= 0 {
		return fmt.Errorf("generator.span_days must be positive, got %d", c.Generator.SpanDays)
	}
	if c.Regeneration.MaxRetries < 0 {
		return fmt.Errorf("regeneration.max_retries must not be negative")
	}
	return nil
}

// bindEnvs registers every key of cfg so viper consults the environment
// while unmarshalling, even for keys absent from the config file.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
