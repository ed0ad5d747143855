// Package config loads client settings from config.yaml and the
// USERCENTER_* environment, with sane defaults for everything.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/weiki/usercenter-cli/internal/store"
)

type ServerConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CacheConfig struct {
	TTL time.Duration
}

type RetryConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

type SessionConfig struct {
	StateDir          string
	TokenTTL          time.Duration
	RefreshInterval   time.Duration
	ReconcileDisabled bool
}

type AppConfig struct {
	Server  ServerConfig
	Cache   CacheConfig
	Retry   RetryConfig
	Session SessionConfig
}

// Load reads config.yaml from the working directory or the state dir, then
// overlays USERCENTER_* environment variables. A missing file is fine.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(store.DefaultDir())

	v.SetEnvPrefix("USERCENTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Server.BaseURL == "" {
		return nil, fmt.Errorf("server.baseurl is required")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.baseurl", "http://localhost:8080/api")
	v.SetDefault("server.timeout", "10s")

	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("retry.maxretries", 2)
	v.SetDefault("retry.basedelay", "2s")

	v.SetDefault("session.statedir", store.DefaultDir())
	v.SetDefault("session.tokenttl", "24h")
	v.SetDefault("session.refreshinterval", "5m")
	v.SetDefault("session.reconciledisabled", false)
}
