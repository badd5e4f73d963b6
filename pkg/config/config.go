// Package config holds the gate's environment configuration and the
// YAML guard profile supplied at construction time.
package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration.
type Config struct {
	LogLevel     string
	ProfilePath  string
	BundleDir    string
	DecisionDB   string // SQLite decision store path, empty disables persistence
	OTLPEndpoint string
	ThrottleRPS  float64
	Telemetry    bool
}

// Load reads configuration from environment variables with local
// development defaults.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	profile := os.Getenv("GUARD_PROFILE")
	if profile == "" {
		profile = "config/guard.yaml"
	}

	bundleDir := os.Getenv("PATTERN_BUNDLE_DIR")
	if bundleDir == "" {
		bundleDir = "config/bundles"
	}

	otlp := os.Getenv("OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	var throttleRPS float64
	if raw := os.Getenv("THROTTLE_RPS"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			throttleRPS = v
		}
	}

	return &Config{
		LogLevel:     logLevel,
		ProfilePath:  profile,
		BundleDir:    bundleDir,
		DecisionDB:   os.Getenv("DECISION_DB"),
		OTLPEndpoint: otlp,
		ThrottleRPS:  throttleRPS,
		Telemetry:    os.Getenv("TELEMETRY") == "true",
	}
}
