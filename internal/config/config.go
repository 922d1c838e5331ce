// Package config loads and validates ledgermind configuration from
// environment variables, following the teacher's accumulated-errors pattern
// (internal/config/config.go in ashita-ai-akashi).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// Config holds all process-wide ledgermind configuration.
type Config struct {
	// Identity used for audit-backend commits (§6 Environment).
	GitAuthorName  string
	GitAuthorEmail string

	// APIKey gates collaborator RPC/transport access; the core loads it as
	// an opaque value and does not validate it (§6 Environment).
	APIKey string

	// TestDelay is loaded from LEDGERMIND_TEST_DELAY; no transaction code
	// reads it, so it adds no sleep (§6).
	TestDelay time.Duration

	TrustBoundary model.TrustBoundary

	LogLevel string

	// Observability (§A Ambient stack: Observability).
	TelemetryEnabled bool
	ServiceName      string

	// Locking (§5).
	LockTimeout  time.Duration
	LockPollTick time.Duration

	// Decay defaults (§4.11), independently configurable per §9 Open
	// Questions.
	SemanticDecayRate     float64
	SemanticForgetThresh  float64
	SemanticDeprecateThresh float64
	EpisodicTTLDays       int

	// Reflection defaults (§4.12).
	ReflectionWindowSize      int
	ReflectionErrorThreshold  int
	ReflectionSuccessThreshold float64
	ReflectionReadyThreshold  float64
	ReflectionObservationDays float64
	ReflectionMinConfidence   float64
	ReflectionAutoAcceptThresh float64

	// Vector index (§4.5).
	EmbeddingDimensions int
	ANNTreeCount        int
	CompactionMinSoft   int
	CompactionFraction  float64
}

// Load reads configuration from environment variables with the defaults
// named throughout spec.md, mirroring the teacher's envStr/envInt/envBool
// accumulation pattern.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		GitAuthorName:  envStr("GIT_AUTHOR_NAME", "ledgermind"),
		GitAuthorEmail: envStr("GIT_AUTHOR_EMAIL", "ledgermind@localhost"),
		APIKey:         envStr("LEDGERMIND_API_KEY", ""),
		TrustBoundary:  model.TrustBoundary(envStr("LEDGERMIND_TRUST_BOUNDARY", string(model.TrustAgentWithIntent))),
		LogLevel:       envStr("LEDGERMIND_LOG_LEVEL", "info"),
		ServiceName:    envStr("LEDGERMIND_SERVICE_NAME", "ledgermind"),
	}

	cfg.TelemetryEnabled, errs = collectBool(errs, "LEDGERMIND_TELEMETRY_ENABLED", false)

	cfg.TestDelay, errs = collectDuration(errs, "LEDGERMIND_TEST_DELAY", 0)
	cfg.LockTimeout, errs = collectDuration(errs, "LEDGERMIND_LOCK_TIMEOUT", 60*time.Second)
	cfg.LockPollTick, errs = collectDuration(errs, "LEDGERMIND_LOCK_POLL_INTERVAL", 100*time.Millisecond)

	cfg.SemanticDecayRate, errs = collectFloat(errs, "LEDGERMIND_SEMANTIC_DECAY_RATE", 0.05)
	cfg.SemanticForgetThresh, errs = collectFloat(errs, "LEDGERMIND_FORGET_THRESHOLD", 0.1)
	cfg.SemanticDeprecateThresh, errs = collectFloat(errs, "LEDGERMIND_DEPRECATE_THRESHOLD", 0.5)
	cfg.EpisodicTTLDays, errs = collectInt(errs, "LEDGERMIND_EPISODIC_TTL_DAYS", 30)

	cfg.ReflectionWindowSize, errs = collectInt(errs, "LEDGERMIND_REFLECTION_WINDOW", 20)
	cfg.ReflectionErrorThreshold, errs = collectInt(errs, "LEDGERMIND_REFLECTION_ERROR_THRESHOLD", 2)
	cfg.ReflectionSuccessThreshold, errs = collectFloat(errs, "LEDGERMIND_REFLECTION_SUCCESS_THRESHOLD", 3)
	cfg.ReflectionReadyThreshold, errs = collectFloat(errs, "LEDGERMIND_REFLECTION_READY_THRESHOLD", 0.6)
	cfg.ReflectionObservationDays, errs = collectFloat(errs, "LEDGERMIND_REFLECTION_OBSERVATION_DAYS", 3)
	cfg.ReflectionMinConfidence, errs = collectFloat(errs, "LEDGERMIND_REFLECTION_MIN_CONFIDENCE", 0.15)
	cfg.ReflectionAutoAcceptThresh, errs = collectFloat(errs, "LEDGERMIND_REFLECTION_AUTO_ACCEPT_THRESHOLD", 0.9)

	cfg.EmbeddingDimensions, errs = collectInt(errs, "LEDGERMIND_EMBEDDING_DIMENSIONS", 256)
	cfg.ANNTreeCount, errs = collectInt(errs, "LEDGERMIND_ANN_TREES", 20)
	cfg.CompactionMinSoft, errs = collectInt(errs, "LEDGERMIND_COMPACTION_MIN_SOFT_DELETES", 10)
	cfg.CompactionFraction, errs = collectFloat(errs, "LEDGERMIND_COMPACTION_FRACTION", 0.2)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that loaded configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.TrustBoundary != model.TrustAgentWithIntent && c.TrustBoundary != model.TrustHumanOnly {
		errs = append(errs, fmt.Errorf("config: LEDGERMIND_TRUST_BOUNDARY must be %q or %q, got %q",
			model.TrustAgentWithIntent, model.TrustHumanOnly, c.TrustBoundary))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("config: LEDGERMIND_LOCK_TIMEOUT must be positive"))
	}
	if c.SemanticForgetThresh < 0 || c.SemanticForgetThresh > 1 {
		errs = append(errs, errors.New("config: LEDGERMIND_FORGET_THRESHOLD must be in [0,1]"))
	}
	if c.SemanticDeprecateThresh < 0 || c.SemanticDeprecateThresh > 1 {
		errs = append(errs, errors.New("config: LEDGERMIND_DEPRECATE_THRESHOLD must be in [0,1]"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: LEDGERMIND_EMBEDDING_DIMENSIONS must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, append(errs, fmt.Errorf("%s=%q is not a valid integer", key, v))
	}
	return n, errs
}

func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, append(errs, fmt.Errorf("%s=%q is not a valid float", key, v))
	}
	return f, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, append(errs, fmt.Errorf("%s=%q is not a valid boolean", key, v))
	}
	return b, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, append(errs, fmt.Errorf("%s=%q is not a valid duration", key, v))
	}
	return d, errs
}
