// Package pattern implements sliding-window input heuristics shared by
// the client instrumentation and the server re-verification pass. It is
// a soft gate: findings annotate the session, nothing is blocked.
package pattern

import (
	"context"
	"strings"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
)

// Detection categories.
const (
	CategoryExactRepetition       = "exact_repetition"
	CategoryImpossibleCombination = "impossible_combination"
	CategoryInhumanTiming         = "inhuman_timing"
	CategoryAutomatedSequence     = "automated_sequence"
)

// Default heuristic configuration constants.
const (
	defaultWindowSize = 20
	repetitionRun     = 3
	minSequenceLen    = 3
	maxSequenceLen    = 6

	// defaultVarianceThreshold is the inter-event interval variance, in
	// squared milliseconds, under which cadence counts as mechanical.
	defaultVarianceThreshold = 100.0

	// defaultMeanIntervalGate bounds the timing check to fast cadences.
	// Uniform slow play (say one move every 200ms) is normal; uniform
	// sub-gate cadence is not sustainable by hand.
	defaultMeanIntervalGate = 150 * time.Millisecond

	// minTimingSamples is the minimum interval count before the timing
	// heuristic has enough evidence to fire.
	minTimingSamples = 10
)

// Sample is one input observation fed to the detector.
type Sample struct {
	Action model.Action
	At     time.Time
}

// Result is the soft-gate outcome over the trailing window.
type Result struct {
	Suspicious bool
	Categories []string
	Reason     string
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithWindowSize sets how many trailing samples are inspected.
func WithWindowSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.windowSize = n
		}
	}
}

// WithVarianceThreshold sets the interval variance threshold in ms².
func WithVarianceThreshold(v float64) Option {
	return func(d *Detector) {
		if v > 0 {
			d.varianceThreshold = v
		}
	}
}

// WithMeanIntervalGate sets the mean-interval bound for the timing check.
func WithMeanIntervalGate(gate time.Duration) Option {
	return func(d *Detector) {
		if gate > 0 {
			d.meanIntervalGate = gate
		}
	}
}

// Detector runs the window heuristics. It holds no per-session state and
// is safe for concurrent use; callers pass their own history.
type Detector struct {
	windowSize        int
	varianceThreshold float64
	meanIntervalGate  time.Duration
}

// New creates a detector with the default window and thresholds.
func New(opts ...Option) *Detector {
	d := &Detector{
		windowSize:        defaultWindowSize,
		varianceThreshold: defaultVarianceThreshold,
		meanIntervalGate:  defaultMeanIntervalGate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Analyze inspects the trailing window of samples. Each detection is
// independent; all firing categories are reported together.
func (d *Detector) Analyze(_ context.Context, samples []Sample) Result {
	if len(samples) > d.windowSize {
		samples = samples[len(samples)-d.windowSize:]
	}

	var res Result
	var reasons []string
	fire := func(category, reason string) {
		res.Suspicious = true
		res.Categories = append(res.Categories, category)
		reasons = append(reasons, reason)
	}

	if d.exactRepetition(samples) {
		fire(CategoryExactRepetition, "last 3 actions identical")
	}
	if d.impossibleCombination(samples) {
		fire(CategoryImpossibleCombination, "opposite-axis actions immediately consecutive")
	}
	if d.inhumanTiming(samples) {
		fire(CategoryInhumanTiming, "inter-event interval variance below human threshold")
	}
	if d.automatedSequence(samples) {
		fire(CategoryAutomatedSequence, "exactly repeating input subsequence in window")
	}

	res.Reason = strings.Join(reasons, "; ")
	return res
}

func (d *Detector) exactRepetition(samples []Sample) bool {
	if len(samples) < repetitionRun {
		return false
	}
	last := samples[len(samples)-1].Action
	for i := len(samples) - repetitionRun; i < len(samples); i++ {
		if samples[i].Action != last {
			return false
		}
	}
	return true
}

// oppositeAxis reports whether two actions oppose each other on the same
// axis. Legitimate rapid direction changes can look like this, so the
// finding flags rather than blocks.
func oppositeAxis(a, b model.Action) bool {
	switch {
	case a == model.ActionMoveLeft && b == model.ActionMoveRight,
		a == model.ActionMoveRight && b == model.ActionMoveLeft,
		a == model.ActionRotateLeft && b == model.ActionRotateRight,
		a == model.ActionRotateRight && b == model.ActionRotateLeft:
		return true
	}
	return false
}

func (d *Detector) impossibleCombination(samples []Sample) bool {
	for i := 1; i < len(samples); i++ {
		if oppositeAxis(samples[i-1].Action, samples[i].Action) {
			return true
		}
	}
	return false
}

func (d *Detector) inhumanTiming(samples []Sample) bool {
	if len(samples) < minTimingSamples+1 {
		return false
	}
	intervals := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		intervals = append(intervals, float64(samples[i].At.Sub(samples[i-1].At).Milliseconds()))
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	mean := sum / float64(len(intervals))
	if mean >= float64(d.meanIntervalGate.Milliseconds()) {
		return false
	}

	var variance float64
	for _, iv := range intervals {
		diff := iv - mean
		variance += diff * diff
	}
	variance /= float64(len(intervals))
	return variance < d.varianceThreshold
}

func (d *Detector) automatedSequence(samples []Sample) bool {
	n := len(samples)
	for length := minSequenceLen; length <= maxSequenceLen; length++ {
		for start := 0; start+2*length <= n; start++ {
			if equalRun(samples, start, start+length, length) {
				return true
			}
		}
	}
	return false
}

func equalRun(samples []Sample, a, b, length int) bool {
	for i := 0; i < length; i++ {
		if samples[a+i].Action != samples[b+i].Action {
			return false
		}
	}
	return true
}
