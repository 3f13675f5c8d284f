// Package scoring defines the fraud categories, their fixed weights, and
// the additive tally used to build a verdict from detection results.
package scoring

import "math"

// Fraud categories contributing to the score.
const (
	CategorySpeedHacking        = "speed_hacking"
	CategoryScoreManipulation   = "score_manipulation"
	CategoryInputReplay         = "input_replay"
	CategoryTimingAnomalies     = "timing_anomalies"
	CategorySessionManipulation = "session_manipulation"
)

// Fixed contribution weights outside the category table.
const (
	// StructuralMissWeight is added per missing payload field.
	StructuralMissWeight = 0.3

	// SelfReportWeight is added per client-reported suspicious activity.
	// Client reports are trusted but heavily discounted since they come
	// from the same client under evaluation.
	SelfReportWeight = 0.1

	// SignatureMatchWeight is added per known cheat signature match.
	SignatureMatchWeight = 0.4

	// VerdictThreshold is the fraud score at or above which a session
	// is ruled invalid.
	VerdictThreshold = 0.7
)

// Recommendation thresholds.
const (
	thresholdSuspend  = 0.8
	thresholdEnhanced = 0.5
	thresholdMonitor  = 0.2
)

// DefaultWeights returns the fixed per-category weights.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		CategorySpeedHacking:        0.4,
		CategoryScoreManipulation:   0.5,
		CategoryInputReplay:         0.3,
		CategoryTimingAnomalies:     0.2,
		CategorySessionManipulation: 0.6,
	}
}

// Option applies a configuration option to the Tally.
type Option func(*Tally)

// WithWeights overrides the per-category weights. Unknown categories in
// later AddCategory calls contribute zero.
func WithWeights(weights map[string]float64) Option {
	return func(t *Tally) {
		if len(weights) == 0 {
			return
		}
		t.weights = make(map[string]float64, len(weights))
		for cat, w := range weights {
			t.weights[cat] = w
		}
	}
}

// WithClamp bounds the final score to [0,1]. The source heuristic sums
// weights without clamping; clamping is an explicit opt-in deviation.
func WithClamp(clamp bool) Option {
	return func(t *Tally) {
		t.clamp = clamp
	}
}

// Tally accumulates additive fraud contributions for one session.
type Tally struct {
	weights map[string]float64
	clamp   bool
	score   float64
	fired   []string
	seen    map[string]bool
}

// NewTally creates a tally with the default weight table.
func NewTally(opts ...Option) *Tally {
	t := &Tally{
		weights: DefaultWeights(),
		seen:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddCategory records a fired category and adds its fixed weight.
// A category contributes its weight once; repeat firings only mark it.
func (t *Tally) AddCategory(category string) {
	if t.seen[category] {
		return
	}
	t.seen[category] = true
	t.fired = append(t.fired, category)
	t.score += t.weights[category]
}

// Add records a raw contribution outside the category table, such as
// structural misses or discounted client self-reports.
func (t *Tally) Add(amount float64) {
	t.score += amount
}

// Fired reports whether the category has been recorded.
func (t *Tally) Fired(category string) bool {
	return t.seen[category]
}

// Categories returns fired categories in firing order.
func (t *Tally) Categories() []string {
	out := make([]string, len(t.fired))
	copy(out, t.fired)
	return out
}

// Score returns the accumulated fraud score, clamped when configured.
func (t *Tally) Score() float64 {
	if t.clamp {
		return math.Max(0, math.Min(1, t.score))
	}
	return t.score
}

// Recommendation derives the advisory text for a fraud score. The text is
// informational only; it carries no enforcement semantics.
func Recommendation(score float64) string {
	switch {
	case score > thresholdSuspend:
		return "Immediate review required - suspend score submission"
	case score > thresholdEnhanced:
		return "Enhanced monitoring recommended"
	case score > thresholdMonitor:
		return "Continued monitoring"
	default:
		return "Session appears legitimate"
	}
}
