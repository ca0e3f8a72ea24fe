// Package config provides environment helpers for go-gazer commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the gazer daemon.
const (
	DefaultPort      = 8190
	DefaultStoreKind = "json"
	DefaultLogLevel  = "info"
)

// String returns the value of the env var key, or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var key parsed as an int. Unparseable values fall back to def.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the env var key parsed with time.ParseDuration.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Port returns the dashboard port from GAZER_PORT.
func Port() int {
	return Int("GAZER_PORT", DefaultPort)
}

// StoreKind returns the persistence backend from GAZER_STORE ("json", "sqlite" or "memory").
func StoreKind() string {
	return String("GAZER_STORE", DefaultStoreKind)
}

// StorePath returns where training data is kept. Defaults to ~/.gazer.
func StorePath() string {
	if p := os.Getenv("GAZER_STORE_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gazer"
	}
	return home + "/.gazer"
}

// LogLevel returns the log level from GAZER_LOG_LEVEL.
func LogLevel() string {
	return String("GAZER_LOG_LEVEL", DefaultLogLevel)
}
