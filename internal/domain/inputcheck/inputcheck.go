// Package inputcheck validates single input actions structurally and
// against sliding-window rate caps.
package inputcheck

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Default validation configuration constants.
const (
	defaultMaxActionLength = 32
	defaultGlobalCap       = 10
	defaultRateWindow      = time.Second

	// forbiddenChars are markup-like characters never valid in an action.
	forbiddenChars = `<>&"'` + "`" + `{};`
)

// defaultActionCaps returns the per-action caps within one rate window.
// Actions absent from the map are bounded only by the global cap.
func defaultActionCaps() map[model.Action]int {
	return map[model.Action]int{
		model.ActionRotateLeft:  3,
		model.ActionRotateRight: 3,
		model.ActionMoveLeft:    5,
		model.ActionMoveRight:   5,
		model.ActionSoftDrop:    10,
		model.ActionHardDrop:    2,
		model.ActionHold:        1,
	}
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithGlobalCap sets the total actions allowed per rate window.
func WithGlobalCap(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.globalCap = n
		}
	}
}

// WithActionCaps replaces the per-action caps.
func WithActionCaps(caps map[model.Action]int) Option {
	return func(v *Validator) {
		if len(caps) == 0 {
			return
		}
		v.actionCaps = make(map[model.Action]int, len(caps))
		for a, c := range caps {
			if c > 0 {
				v.actionCaps[a] = c
			}
		}
	}
}

// WithMaxActionLength sets the structural length bound.
func WithMaxActionLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxActionLength = n
		}
	}
}

// WithRateWindow sets the sliding window duration.
func WithRateWindow(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.window = d
		}
	}
}

// Validator performs synchronous structural and rate checks on input
// actions. The only state it mutates is the attempt log used for
// windowing.
type Validator struct {
	mu sync.Mutex

	maxActionLength int
	globalCap       int
	actionCaps      map[model.Action]int
	window          time.Duration

	recent   []time.Time
	byAction map[model.Action][]time.Time
}

// New creates a validator with the default caps applied.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxActionLength: defaultMaxActionLength,
		globalCap:       defaultGlobalCap,
		actionCaps:      defaultActionCaps(),
		window:          defaultRateWindow,
		byAction:        make(map[model.Action][]time.Time),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks one action observed at the given instant. A nil return
// means the action was accepted and recorded for windowing. The first
// violated constraint short-circuits with a wrapped sentinel error.
func (v *Validator) Validate(_ context.Context, raw string, at time.Time) error {
	action := model.Action(raw)
	if !model.KnownAction(action) {
		// Length and markup checks refine the reason for unknown input.
		if len(raw) > v.maxActionLength {
			metrics.RecordInputRejected("action_too_long")
			return fmt.Errorf("action exceeds %d characters: %w", v.maxActionLength, ErrActionTooLong)
		}
		if strings.ContainsAny(raw, forbiddenChars) {
			metrics.RecordInputRejected("forbidden_characters")
			return fmt.Errorf("action contains forbidden characters: %w", ErrForbiddenAction)
		}
		metrics.RecordInputRejected("unknown_action")
		return fmt.Errorf("action %q is not in the input vocabulary: %w", raw, ErrUnknownAction)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.prune(at)

	if len(v.recent) >= v.globalCap {
		metrics.RecordInputRejected("rate_limited")
		return fmt.Errorf("global rate of %d actions per %s exceeded: %w", v.globalCap, v.window, ErrRateLimited)
	}
	if limit, ok := v.actionCaps[action]; ok && len(v.byAction[action]) >= limit {
		metrics.RecordInputRejected("rate_limited")
		return fmt.Errorf("%s rate of %d per %s exceeded: %w", action, limit, v.window, ErrRateLimited)
	}

	v.recent = append(v.recent, at)
	v.byAction[action] = append(v.byAction[action], at)
	metrics.RecordInputValidated()
	return nil
}

// prune drops attempts that fell out of the sliding window.
// Must be called with v.mu held.
func (v *Validator) prune(at time.Time) {
	cutoff := at.Add(-v.window)
	v.recent = trim(v.recent, cutoff)
	for action, ts := range v.byAction {
		kept := trim(ts, cutoff)
		if len(kept) == 0 {
			delete(v.byAction, action)
			continue
		}
		v.byAction[action] = kept
	}
}

func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
