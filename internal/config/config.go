// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr           string
	DBPath               string
	HeartbeatInterval    time.Duration
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	PanelPassword        string
}

// Load reads configuration from environment variables and returns a validated
// Config. All variables are optional with defaults: RELAYHUB_LISTEN_ADDR
// (127.0.0.1:8000), RELAYHUB_DB_PATH (relayhub.db), RELAYHUB_HEARTBEAT_INTERVAL
// (30s), RELAYHUB_SESSION_TTL (1h), RELAYHUB_SESSION_SWEEP_INTERVAL (10m).
// RELAYHUB_PANEL_PASSWORD seeds the panel password on first start; once a
// password is stored the variable is ignored.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           "127.0.0.1:8000",
		DBPath:               "relayhub.db",
		HeartbeatInterval:    30 * time.Second,
		SessionTTL:           time.Hour,
		SessionSweepInterval: 10 * time.Minute,
		PanelPassword:        os.Getenv("RELAYHUB_PANEL_PASSWORD"),
	}

	if v, ok := os.LookupEnv("RELAYHUB_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("RELAYHUB_DB_PATH"); ok {
		cfg.DBPath = v
	}

	durations := []struct {
		env  string
		dest *time.Duration
	}{
		{"RELAYHUB_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"RELAYHUB_SESSION_TTL", &cfg.SessionTTL},
		{"RELAYHUB_SESSION_SWEEP_INTERVAL", &cfg.SessionSweepInterval},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.env)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.env, v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %q", d.env, v)
		}
		*d.dest = parsed
	}

	return cfg, nil
}
