package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all agentd configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	StepTimeoutMs     int64  `json:"step_timeout_ms"`
	ApprovalThreshold int    `json:"approval_threshold"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(agentdDir(), "agentd.db"),
		LogLevel: "info",
	}
}

func agentdDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentd"
	}
	return filepath.Join(home, ".agentd")
}

func settingsPath() string {
	return filepath.Join(agentdDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AGENTD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AGENTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTD_STEP_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.StepTimeoutMs = n
		}
	}
	if v := os.Getenv("AGENTD_APPROVAL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ApprovalThreshold = n
		}
	}
	return cfg
}
