package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type EtaConfig struct {
	BufferMinutes      float64 `mapstructure:"buffer_minutes"`
	DefaultReliability float64 `mapstructure:"default_reliability"`
	CourierSpeedKmh    float64 `mapstructure:"courier_speed_kmh"`
	HistoryWindow      int     `mapstructure:"history_window"` // Number of completed orders used for percentiles
}

type WriteQueueConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type ActionQueueConfig struct {
	Delay    time.Duration `mapstructure:"delay"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type SubstitutionConfig struct {
	DefaultMaxPriceDeltaPct decimal.Decimal `mapstructure:"default_max_price_delta_pct"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	KeyTTL    time.Duration `mapstructure:"key_ttl"`
}

type KafkaConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BrokerList       string        `mapstructure:"broker_list"`
	SessionTimeoutMs int           `mapstructure:"session_timeout_ms"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
}

type CloudStorageConfig struct {
	Provider   string `mapstructure:"provider"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket_name"`
	Endpoint   string `mapstructure:"endpoint"`
}

type OutputConfig struct {
	Destination string `mapstructure:"destination"` // "local" or a cloud provider
	Format      string `mapstructure:"format"`      // "console", "json" or "parquet"
	Path        string `mapstructure:"path"`
	Folder      string `mapstructure:"folder"`
}

type Config struct {
	LogLevel     string             `mapstructure:"log_level"`
	LogFormat    string             `mapstructure:"log_format"`
	Eta          EtaConfig          `mapstructure:"eta"`
	WriteQueue   WriteQueueConfig   `mapstructure:"write_queue"`
	ActionQueue  ActionQueueConfig  `mapstructure:"action_queue"`
	Substitution SubstitutionConfig `mapstructure:"substitution"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Postgres     DatabaseConfig     `mapstructure:"postgres"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Output       OutputConfig       `mapstructure:"output"`
	CloudStorage CloudStorageConfig `mapstructure:"cloud_storage"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("eta.buffer_minutes", 5)
	v.SetDefault("eta.default_reliability", 0.9)
	v.SetDefault("eta.courier_speed_kmh", 18)
	v.SetDefault("eta.history_window", 20)
	v.SetDefault("write_queue.max_attempts", 6)
	v.SetDefault("action_queue.delay", "800ms")
	v.SetDefault("action_queue.cooldown", "500ms")
	v.SetDefault("substitution.default_max_price_delta_pct", "15")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "foodmarket:idem:")
	v.SetDefault("redis.key_ttl", "168h")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.broker_list", "localhost:9092")
	v.SetDefault("kafka.session_timeout_ms", 45000)
	v.SetDefault("kafka.dial_timeout", "30s")
	v.SetDefault("output.destination", "local")
	v.SetDefault("output.format", "console")
	v.SetDefault("output.path", "output")
	v.SetDefault("output.folder", "foodmarket")
	v.SetDefault("cloud_storage.provider", "s3")
	v.SetDefault("cloud_storage.region", "")
	v.SetDefault("cloud_storage.bucket_name", "")
	v.SetDefault("cloud_storage.endpoint", "")
}

// LoadConfig initializes and reads the configuration using Viper. A missing
// default config file is not an error; defaults and environment apply.
func LoadConfig(cfgFile string) (*Config, error) {
	return loadConfig(viper.GetViper(), cfgFile)
}

func loadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Default config location
		v.AddConfigPath(".")
		v.AddConfigPath("examples")
		v.SetConfigName("foodmarket")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("foodmarket")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv() // Read in environment variables that match
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			stringToDecimalHookFunc(),
		)
	})
	if err := v.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (cfg *Config) validate() error {
	if cfg.WriteQueue.MaxAttempts < 1 {
		return fmt.Errorf("write_queue.max_attempts must be at least 1, got %d", cfg.WriteQueue.MaxAttempts)
	}
	if cfg.ActionQueue.Delay < 0 || cfg.ActionQueue.Cooldown < 0 {
		return errors.New("action_queue durations must not be negative")
	}
	if cfg.Substitution.DefaultMaxPriceDeltaPct.IsNegative() {
		return errors.New("substitution.default_max_price_delta_pct must not be negative")
	}
	switch cfg.Output.Format {
	case "console", "json", "parquet":
	default:
		return fmt.Errorf("unsupported output format: %s", cfg.Output.Format)
	}
	return nil
}

// stringToDecimalHookFunc lets percentages and prices be written either as
// numbers or strings in config files.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}
