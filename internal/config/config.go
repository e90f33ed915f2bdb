package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	BadgerPath     string `mapstructure:"badger_path"`
	BadgerInMemory bool   `mapstructure:"badger_in_memory"`

	SendBuffer         int           `mapstructure:"send_buffer"`
	SlowConsumerPolicy string        `mapstructure:"slow_consumer_policy"`
	JoinRateLimit      int           `mapstructure:"join_rate_limit"`
	JoinRateInterval   time.Duration `mapstructure:"join_rate_interval"`

	LogLevel  string   `mapstructure:"log_level"`
	LogFormat string   `mapstructure:"log_format"`
	SeedUsers []string `mapstructure:"seed_users"`
}

const defaultSecret = "chatsync-dev-secret"

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset) over the
// defaults. Every key can be overridden by a CHATSYNC_<KEY> variable.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("CHATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", defaultSecret)
	v.SetDefault("badger_path", "./data/badger")
	v.SetDefault("badger_in_memory", false)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer_policy", "kick")
	v.SetDefault("join_rate_limit", 20)
	v.SetDefault("join_rate_interval", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("seed_users", []string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Secret == defaultSecret && cfg.Mode == "release" {
		log.Warn().Str("module", "config").Msg("using the default session secret in release mode")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("badger", cfg.BadgerPath).Bool("in_memory", cfg.BadgerInMemory).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive, got %s", c.PingPeriod)
	}
	if !c.BadgerInMemory && c.BadgerPath == "" {
		return errors.New("badger_path is required unless badger_in_memory is set")
	}
	switch c.SlowConsumerPolicy {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown slow_consumer_policy %q", c.SlowConsumerPolicy)
	}
	return nil
}
