// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - External errors are wrapped via this package's sentinels.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// GlobalInputCap bounds accepted inputs per second across actions.
	GlobalInputCap int `koanf:"global_input_cap"`

	// ActionCaps bounds accepted inputs per second per action.
	ActionCaps map[string]int `koanf:"action_caps"`

	// PatternWindowSize is how many trailing inputs the heuristics see.
	PatternWindowSize int `koanf:"pattern_window_size"`

	// TimingVarianceThreshold is the inhuman-cadence bound in squared
	// milliseconds.
	TimingVarianceThreshold float64 `koanf:"timing_variance_threshold"`

	// FraudWeights maps detection categories to their contributions.
	FraudWeights map[string]float64 `koanf:"fraud_weights"`

	// VerdictThreshold is the fraud score at which a session is invalid.
	VerdictThreshold float64 `koanf:"verdict_threshold"`

	// ClampFraudScore bounds fraud scores to [0,1] when true.
	ClampFraudScore bool `koanf:"clamp_fraud_score"`

	// ScoreCeiling is the absolute maximum submittable score.
	ScoreCeiling int64 `koanf:"score_ceiling"`

	// FingerprintIntervalMS is the periodic fingerprint cadence.
	FingerprintIntervalMS int `koanf:"fingerprint_interval_ms"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of verification workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the resubmission guard.
	DedupeSize int `koanf:"dedupe_size"`

	// SessionHistorySize bounds the per-player retained sessions.
	SessionHistorySize int `koanf:"session_history_size"`

	// ScoreJumpThreshold is the cross-session improvement bound.
	ScoreJumpThreshold int64 `koanf:"score_jump_threshold"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		GlobalInputCap: 10,
		ActionCaps: map[string]int{
			"rotate_left":  3,
			"rotate_right": 3,
			"move_left":    5,
			"move_right":   5,
			"soft_drop":    10,
			"hard_drop":    2,
			"hold":         1,
		},
		PatternWindowSize:       20,
		TimingVarianceThreshold: 100.0,
		FraudWeights: map[string]float64{
			"speed_hacking":        0.4,
			"score_manipulation":   0.5,
			"input_replay":         0.3,
			"timing_anomalies":     0.2,
			"session_manipulation": 0.6,
		},
		VerdictThreshold:      0.7,
		ClampFraudScore:       false,
		ScoreCeiling:          1_000_000,
		FingerprintIntervalMS: int(5 * time.Second / time.Millisecond),
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 4,
		DedupeSize:            50_000,
		SessionHistorySize:    50,
		ScoreJumpThreshold:    50_000,
	}
}

// FingerprintInterval returns the configured cadence as a duration.
func (c *Config) FingerprintInterval() time.Duration {
	return time.Duration(c.FingerprintIntervalMS) * time.Millisecond
}
