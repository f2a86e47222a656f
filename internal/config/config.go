package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Toast    ToastConfig    `mapstructure:"toast"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type RealtimeConfig struct {
	URL               string        `mapstructure:"url" validate:"required"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" validate:"min=0"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" validate:"min=0"`
}

type ToastConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type AuthConfig struct {
	// TokenFile is where the access token is persisted by the login flow.
	// This subsystem only reads it, never writes it.
	TokenFile string `mapstructure:"token_file" validate:"required"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the working directory or ./config, with
// environment variable overrides, and applies defaults for everything the
// file leaves out.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("notify")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("api.timeout", 15*time.Second)
	viper.SetDefault("realtime.reconnect_attempts", 5)
	viper.SetDefault("realtime.reconnect_delay", time.Second)
	viper.SetDefault("toast.ttl", 5*time.Second)
	viper.SetDefault("log.level", "info")
}
