package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig holds everything the server needs at startup. Values come
// from an optional YAML file (CONFIG_FILE) with environment overrides.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// Display names that play through the advisor instead of the client.
	// Matched case-insensitively at join time.
	AutomatedNames []string `yaml:"automated_names"`

	AdvisorDepth          int    `yaml:"advisor_depth"`
	AdvisorMoveTimeMillis int    `yaml:"advisor_movetime_ms"`
	AdvisorFallbackLegal  bool   `yaml:"advisor_fallback_legal"`
	StockfishPath         string `yaml:"stockfish_path"`
	AdvisorURL            string `yaml:"advisor_url"`

	RedisURL      string `yaml:"redis_url"`
	DatabaseURL   string `yaml:"database_url"`
	ArchiveTTLSec int    `yaml:"archive_ttl_sec"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:            ":8000",
		AdvisorDepth:          10,
		AdvisorMoveTimeMillis: 100,
		ArchiveTTLSec:         86400,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTOMATED_NAMES")); v != "" {
		cfg.AutomatedNames = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("ADVISOR_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdvisorDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ADVISOR_MOVETIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdvisorMoveTimeMillis = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ADVISOR_FALLBACK_LEGAL")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AdvisorFallbackLegal = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("ADVISOR_URL")); v != "" {
		cfg.AdvisorURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ARCHIVE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ArchiveTTLSec = n
		}
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.StockfishPath != "" && cfg.AdvisorURL != "" {
		return nil, fmt.Errorf("stockfish_path and advisor_url are mutually exclusive")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
