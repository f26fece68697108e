// Package config loads capnetd's configuration from environment
// variables, following the plain env-var-with-defaults shape used
// throughout the rest of this codebase's config loaders.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds capnetd's runtime configuration.
type Config struct {
	DataDir         string
	Addr            string
	LogLevel        string
	AllowedOrigins  []string
	MaxBodyBytes    int64
	RateLimitRPS    float64
	RateLimitBurst  int
	IssuerID        string
}

// Load reads configuration from environment variables, applying the
// same defaults a fresh checkout runs with.
func Load() *Config {
	dataDir := os.Getenv("CAPNET_DATA_DIR")
	if dataDir == "" {
		dataDir = "data/"
	}

	addr := os.Getenv("CAPNET_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logLevel := os.Getenv("CAPNET_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	origins := os.Getenv("CAPNET_ALLOWED_ORIGINS")
	if origins == "" {
		origins = "http://localhost:*,chrome-extension://*"
	}

	issuerID := os.Getenv("CAPNET_ISSUER_ID")
	if issuerID == "" {
		issuerID = "capnet-core"
	}

	return &Config{
		DataDir:        dataDir,
		Addr:           addr,
		LogLevel:       logLevel,
		AllowedOrigins: splitCSV(origins),
		MaxBodyBytes:   envInt64("CAPNET_MAX_BODY_BYTES", 262144),
		RateLimitRPS:   envFloat("CAPNET_RATE_LIMIT_RPS", 20),
		RateLimitBurst: int(envInt64("CAPNET_RATE_LIMIT_BURST", 40)),
		IssuerID:       issuerID,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
