// Package config loads the proxy's environment-variable configuration
// surface described in spec.md §6 / SPEC_FULL.md §6.
//
// Grounded on the teacher's cmd/server/main.go lookupEnv helper (trying
// multiple key spellings) and its godotenv.Load(".env") bootstrap, trimmed
// to this proxy's much smaller, env-only surface (no YAML file, no OAuth
// flags).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized environment variable's effect.
type Config struct {
	ListenAddr string

	UpstreamHost string

	ModelOverride string
	ModelOpus     string
	ModelSonnet   string
	ModelHaiku    string
	ModelDefault  string

	ToolCallTTL time.Duration

	MaxBodyBytes   int64
	MaxConcurrency int64
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	MaxMaxTokens   int

	LogLevel string
	LogFile  string
}

// defaults mirror SPEC_FULL.md §6.
const (
	defaultListenAddr     = ":8080"
	defaultUpstreamHost   = "https://generativelanguage.googleapis.com"
	defaultToolTTLSeconds = 3600
	defaultMaxBodyBytes   = 10 * 1024 * 1024
	defaultMaxConcurrency = 256
	defaultRequestTimeout = 120
	defaultConnectTimeout = 10
	defaultMaxMaxTokens   = 1_000_000
	defaultLogLevel       = "info"
)

// Load reads the process environment (after loading a .env file in the
// working directory, if present) into a Config, applying every default
// named in SPEC_FULL.md §6.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err == nil {
		if loadErr := godotenv.Load(filepath.Join(wd, ".env")); loadErr != nil && !os.IsNotExist(loadErr) {
			// .env is optional; a malformed file is worth knowing about
			// but must not block startup, mirroring the teacher's
			// best-effort .env handling in cmd/server/main.go.
		}
	}

	cfg := &Config{
		ListenAddr:     lookupEnv("PROXY_LISTEN_ADDR", defaultListenAddr),
		UpstreamHost:   lookupEnv("PROXY_UPSTREAM_HOST", defaultUpstreamHost),
		ModelOverride:  lookupEnv("PROXY_MODEL_OVERRIDE", ""),
		ModelOpus:      lookupEnv("PROXY_MODEL_OPUS", ""),
		ModelSonnet:    lookupEnv("PROXY_MODEL_SONNET", ""),
		ModelHaiku:     lookupEnv("PROXY_MODEL_HAIKU", ""),
		ModelDefault:   lookupEnv("PROXY_MODEL_DEFAULT", "gemini-3-pro-preview"),
		LogLevel:       lookupEnv("PROXY_LOG_LEVEL", defaultLogLevel),
		LogFile:        lookupEnv("PROXY_LOG_FILE", ""),
		MaxMaxTokens:   defaultMaxMaxTokens,
	}

	cfg.ToolCallTTL = time.Duration(lookupEnvInt("PROXY_TOOL_TTL_SECONDS", defaultToolTTLSeconds)) * time.Second
	cfg.MaxBodyBytes = int64(lookupEnvInt("PROXY_MAX_BODY_BYTES", defaultMaxBodyBytes))
	cfg.MaxConcurrency = int64(lookupEnvInt("PROXY_MAX_CONCURRENCY", defaultMaxConcurrency))
	cfg.RequestTimeout = time.Duration(lookupEnvInt("PROXY_REQUEST_TIMEOUT_SECONDS", defaultRequestTimeout)) * time.Second
	cfg.ConnectTimeout = time.Duration(lookupEnvInt("PROXY_CONNECT_TIMEOUT_SECONDS", defaultConnectTimeout)) * time.Second

	return cfg, nil
}

func lookupEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func lookupEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}
