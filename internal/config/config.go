package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"

	SessionBackendDB    = "db"
	SessionBackendRedis = "redis"
)

type (
	Config struct {
		Host       string `mapstructure:"HOST"`
		Port       string `mapstructure:"PORT"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		// Server-held salt for the password KDF. Rotating it
		// invalidates every stored credential.
		AuthSalt string `mapstructure:"AUTH_SALT"`

		GiphyBaseURL string `mapstructure:"GIPHY_BASE_URL"`
		GiphyAPIKey  string `mapstructure:"GIPHY_API_KEY"`

		SessionBackend string        `mapstructure:"SESSION_BACKEND"`
		SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
		RedisAddr      string        `mapstructure:"REDIS_ADDR"`
		CookieSecure   bool          `mapstructure:"COOKIE_SECURE"`
	}
)

func NewConfig() (*Config, error) {
	viper.SetEnvPrefix("GIPHYMANAGER")

	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "1323")
	viper.SetDefault("DB_HOST", "0.0.0.0")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "db")
	viper.SetDefault("DB_SSL_MODE", sslModeDisable)
	viper.SetDefault("AUTH_SALT", "")
	viper.SetDefault("GIPHY_BASE_URL", "https://api.giphy.com/v1/gifs")
	viper.SetDefault("GIPHY_API_KEY", "")
	viper.SetDefault("SESSION_BACKEND", SessionBackendDB)
	viper.SetDefault("SESSION_TTL", 8*time.Hour)
	viper.SetDefault("REDIS_ADDR", "0.0.0.0:6379")
	viper.SetDefault("COOKIE_SECURE", false)

	envs := []string{
		"HOST", "PORT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"AUTH_SALT",
		"GIPHY_BASE_URL", "GIPHY_API_KEY",
		"SESSION_BACKEND", "SESSION_TTL", "REDIS_ADDR", "COOKIE_SECURE",
	}
	for _, key := range envs {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	validSSL := false
	for _, validValue := range []string{sslModeDisable, sslModeRequire} {
		if cfg.DBSSLMode == validValue {
			validSSL = true
			break
		}
	}
	if !validSSL {
		return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
	}

	switch cfg.SessionBackend {
	case SessionBackendDB, SessionBackendRedis:
	default:
		return errors.New(fmt.Sprintf("session backend is invalid: %s", cfg.SessionBackend))
	}

	if cfg.AuthSalt == "" {
		return errors.New("auth salt must be set")
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	return nil
}
