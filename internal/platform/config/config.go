// Package config reads lockstep settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvMasterFPS   = "LOCKSTEP_MASTER_FPS"
	EnvVirtualSpan = "LOCKSTEP_VIRTUAL_SPAN"
	EnvRefreshHz   = "LOCKSTEP_REFRESH_HZ"
	EnvLogLevel    = "LOCKSTEP_LOG_LEVEL"
	EnvLogFormat   = "LOCKSTEP_LOG_FORMAT"
	EnvDB          = "LOCKSTEP_DB"
	EnvMetricsAddr = "LOCKSTEP_METRICS_ADDR"
	EnvHistory     = "LOCKSTEP_HISTORY_LIMIT"
)

// Config holds process-wide settings. CLI flags override these.
type Config struct {
	MasterFPS    float64
	VirtualSpan  float64
	RefreshHz    float64
	LogLevel     string
	LogFormat    string
	DBPath       string // empty: traces are not recorded
	MetricsAddr  string // empty: no metrics endpoint
	HistoryLimit int    // shell history entries; -1 disables history
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		MasterFPS:    60,
		VirtualSpan:  1000,
		RefreshHz:    60,
		LogLevel:     "info",
		LogFormat:    "text",
		HistoryLimit: 500,
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more
// paths to load from specific files; with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from environment variables over Defaults.
// Invalid numbers, and non-positive rates and spans, fall back to the
// default.
func FromEnv() Config {
	d := Defaults()
	return Config{
		MasterFPS:    GetEnvFloat(EnvMasterFPS, d.MasterFPS),
		VirtualSpan:  GetEnvFloat(EnvVirtualSpan, d.VirtualSpan),
		RefreshHz:    GetEnvFloat(EnvRefreshHz, d.RefreshHz),
		LogLevel:     GetEnv(EnvLogLevel, d.LogLevel),
		LogFormat:    GetEnv(EnvLogFormat, d.LogFormat),
		DBPath:       GetEnv(EnvDB, d.DBPath),
		MetricsAddr:  GetEnv(EnvMetricsAddr, d.MetricsAddr),
		HistoryLimit: GetEnvInt(EnvHistory, d.HistoryLimit),
	}
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the positive float value of the environment variable
// named by key, or fallback if the variable is unset, invalid, or not
// positive.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
