// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GmailConfig holds credentials for the monitored mailbox.
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	User            string
}

// Config holds all configuration for the booking ingestion service.
type Config struct {
	Gmail GmailConfig

	// Ingestion
	Query        string
	PollInterval time.Duration
	PollLookback time.Duration
	PageSize     int
	PageDelay    time.Duration

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL     string
	UpdatesQueue string
	DedupTTL     time.Duration

	NotifyEnabled bool

	// Server (health, metrics, reprocess endpoint)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Gmail struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		User            string `yaml:"user"`
	} `yaml:"gmail"`
	Ingest struct {
		Query     string `yaml:"query"`
		Interval  string `yaml:"interval"`
		Lookback  string `yaml:"lookback"`
		PageSize  int    `yaml:"page_size"`
		PageDelay string `yaml:"page_delay"`
	} `yaml:"ingest"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			BookingUpdates string `yaml:"booking_updates"`
		} `yaml:"queues"`
		DedupTTL string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	Notify struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"notify"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Gmail: GmailConfig{
			CredentialsFile: firstNonEmpty(raw.Gmail.CredentialsFile, envOrDefault("GMAIL_CREDENTIALS_FILE", "")),
			TokenFile:       firstNonEmpty(raw.Gmail.TokenFile, envOrDefault("GMAIL_TOKEN_FILE", "")),
			User:            firstNonEmpty(raw.Gmail.User, "me"),
		},
		Query:         firstNonEmpty(raw.Ingest.Query, os.Getenv("INGEST_QUERY")),
		PollInterval:  durationOrDefault(raw.Ingest.Interval, envOrDefaultDuration("POLL_INTERVAL", 5*time.Minute)),
		PollLookback:  durationOrDefault(raw.Ingest.Lookback, envOrDefaultDuration("POLL_LOOKBACK", 48*time.Hour)),
		PageSize:      intOrDefault(raw.Ingest.PageSize, envOrDefaultInt("PAGE_SIZE", 100)),
		PageDelay:     durationOrDefault(raw.Ingest.PageDelay, envOrDefaultDuration("PAGE_DELAY", 500*time.Millisecond)),
		DatabaseURL:   firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/omnilodge")),
		RedisURL:      firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		UpdatesQueue:  firstNonEmpty(raw.Redis.Queues.BookingUpdates, envOrDefault("UPDATES_QUEUE", "omnilodge:booking_updates")),
		DedupTTL:      durationOrDefault(raw.Redis.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 24*time.Hour)),
		NotifyEnabled: true,
		Port:          envOrDefaultInt("PORT", 8080),
	}

	if raw.Notify.Enabled != nil {
		cfg.NotifyEnabled = *raw.Notify.Enabled
	}

	if cfg.Gmail.CredentialsFile == "" || cfg.Gmail.TokenFile == "" {
		return nil, fmt.Errorf("gmail credentials not configured — check config.yaml and environment variables")
	}
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("ingest query not configured — the standing mailbox query must be set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
