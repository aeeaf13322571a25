// Package config loads the marigold configuration from file, environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Config struct {
	NATSURL       string
	EventsSubject string
	PingSubject   string

	HTTPHost string
	HTTPPort int

	AutoRefresh bool
	// UpdateInterval is the push period, configured in milliseconds.
	UpdateInterval time.Duration
	// PurgeOfflineWorkers drops dead workers from snapshots once their
	// last heartbeat is older than this. Zero disables purging.
	PurgeOfflineWorkers time.Duration

	Auth AuthConfig

	DBPath   string
	LogDir   string
	LogLevel string
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".marigold")
}

// Load reads marigold.yaml from the working directory, ~/.marigold or
// /etc/marigold, applies MARIGOLD_* environment overrides, and fills in
// defaults. A missing config file is fine; a malformed one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("marigold")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(homeDir())
	v.AddConfigPath("/etc/marigold/")

	v.SetEnvPrefix("MARIGOLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("events_subject", "marigold.events.>")
	v.SetDefault("ping_subject", "marigold.control.ping")
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 5555)
	v.SetDefault("auto_refresh", true)
	v.SetDefault("update_interval", 2000)
	v.SetDefault("purge_offline_workers", 0)
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("db_path", filepath.Join(homeDir(), "marigold.db"))
	v.SetDefault("log_dir", "")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return &Config{
		NATSURL:             v.GetString("nats_url"),
		EventsSubject:       v.GetString("events_subject"),
		PingSubject:         v.GetString("ping_subject"),
		HTTPHost:            v.GetString("http_host"),
		HTTPPort:            v.GetInt("http_port"),
		AutoRefresh:         v.GetBool("auto_refresh"),
		UpdateInterval:      time.Duration(v.GetInt("update_interval")) * time.Millisecond,
		PurgeOfflineWorkers: time.Duration(v.GetInt("purge_offline_workers")) * time.Second,
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		DBPath:   v.GetString("db_path"),
		LogDir:   v.GetString("log_dir"),
		LogLevel: v.GetString("log_level"),
	}, nil
}
