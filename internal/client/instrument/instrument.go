// Package instrument observes gameplay through the engine's lifecycle
// hooks and builds the SessionRecord evaluated server-side. It fails open
// for gameplay: detector faults are caught and logged, never interrupting
// the frame loop, and they never remove suspicion already recorded.
package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quarterforge/arcadeguard/internal/adapters/engine"
	"github.com/quarterforge/arcadeguard/internal/config"
	"github.com/quarterforge/arcadeguard/internal/domain/inputcheck"
	"github.com/quarterforge/arcadeguard/internal/domain/manipulation"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/domain/pattern"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Reporter receives suspicious activity for out-of-band reporting. It is
// invoked fire-and-forget off the frame loop; failures are swallowed.
type Reporter func(model.SuspiciousActivity)

// Option applies a configuration option to the Instrumentation.
type Option func(*Instrumentation)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Instrumentation) {
		if l != nil {
			i.log = l
		}
	}
}

// WithValidator sets a custom input validator.
func WithValidator(v *inputcheck.Validator) Option {
	return func(i *Instrumentation) {
		if v != nil {
			i.validator = v
		}
	}
}

// WithHardGate sets a custom manipulation detector.
func WithHardGate(d *manipulation.Detector) Option {
	return func(i *Instrumentation) {
		if d != nil {
			i.hardGate = d
		}
	}
}

// WithPatternDetector sets a custom pattern detector.
func WithPatternDetector(d *pattern.Detector) Option {
	return func(i *Instrumentation) {
		if d != nil {
			i.patterns = d
		}
	}
}

// FromConfig builds the input validator and pattern detector from
// loaded configuration: rate caps, window size, and timing threshold.
func FromConfig(cfg *config.Config) Option {
	return func(i *Instrumentation) {
		if cfg == nil {
			return
		}
		caps := make(map[model.Action]int, len(cfg.ActionCaps))
		for action, limit := range cfg.ActionCaps {
			caps[model.Action(action)] = limit
		}
		i.validator = inputcheck.New(
			inputcheck.WithGlobalCap(cfg.GlobalInputCap),
			inputcheck.WithActionCaps(caps),
		)
		i.patterns = pattern.New(
			pattern.WithWindowSize(cfg.PatternWindowSize),
			pattern.WithVarianceThreshold(cfg.TimingVarianceThreshold),
		)
	}
}

// WithReporter sets the fire-and-forget suspicious activity reporter.
func WithReporter(r Reporter) Option {
	return func(i *Instrumentation) {
		i.reporter = r
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Instrumentation) {
		if now != nil {
			i.now = now
		}
	}
}

// Instrumentation subscribes to the engine lifecycle and owns the session
// record until it is sealed. All hook handlers run synchronously on the
// engine's single-threaded update loop; the mutex only guards against the
// aggregator's independent fingerprint timer.
type Instrumentation struct {
	eng       engine.Engine
	validator *inputcheck.Validator
	hardGate  *manipulation.Detector
	patterns  *pattern.Detector
	log       logger.Logger
	reporter  Reporter
	now       func() time.Time

	guard    recordGuard
	samples  []pattern.Sample
	degraded []engine.HookKind
}

// New creates instrumentation for one play session of the given player.
// A fresh session ID is minted; the record starts empty.
func New(eng engine.Engine, playerID string, opts ...Option) *Instrumentation {
	i := &Instrumentation{
		eng:       eng,
		validator: inputcheck.New(),
		hardGate:  manipulation.New(),
		patterns:  pattern.New(),
		log:       logger.Named("instrument"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.guard.rec = &model.SessionRecord{
		SessionID: uuid.NewString(),
		PlayerID:  playerID,
		StartedAt: i.now(),
	}
	return i
}

// Attach registers the four lifecycle hooks. A missing hook degrades that
// lifecycle point to pass-through with a warning; Attach itself never
// fails so that gameplay always proceeds.
func (i *Instrumentation) Attach(ctx context.Context) {
	hooks := []struct {
		kind engine.HookKind
		fn   engine.HookFunc
	}{
		{engine.HookTick, i.onTick},
		{engine.HookInput, i.onInput},
		{engine.HookScore, i.onScore},
		{engine.HookPiece, i.onPiece},
	}
	for _, h := range hooks {
		if err := i.eng.Register(h.kind, h.fn); err != nil {
			i.degraded = append(i.degraded, h.kind)
			if errors.Is(err, engine.ErrHookUnavailable) {
				i.log.Warn(ctx, "engine hook unavailable; degrading to pass-through",
					logger.String("hook", string(h.kind)))
				continue
			}
			i.log.Warn(ctx, "engine hook registration failed; degrading to pass-through",
				logger.String("hook", string(h.kind)), logger.Error(err))
		}
	}
}

// Degraded returns the lifecycle points running in pass-through mode.
func (i *Instrumentation) Degraded() []engine.HookKind {
	out := make([]engine.HookKind, len(i.degraded))
	copy(out, i.degraded)
	return out
}

// WithRecord runs fn with exclusive access to the session record. The
// aggregator uses this for fingerprinting and sealing.
func (i *Instrumentation) WithRecord(fn func(*model.SessionRecord)) {
	i.guard.with(fn)
}

// SessionID returns the minted session ID.
func (i *Instrumentation) SessionID() string {
	var id string
	i.guard.with(func(r *model.SessionRecord) { id = r.SessionID })
	return id
}

func (i *Instrumentation) onTick(ev engine.Event) {
	defer i.failOpen("tick")

	snap, ok := i.captureSnapshot(ev.At)
	if !ok {
		return
	}
	i.guard.with(func(r *model.SessionRecord) {
		if prev := r.LatestSnapshot(); prev != nil && snap.Score < prev.Score {
			// Score regressions are flagged, never silently corrected.
			i.flagLocked(r, model.SuspiciousActivity{
				Category:  "score_regression",
				Severity:  model.SeverityHigh,
				Timestamp: snap.Timestamp,
				Evidence:  map[string]interface{}{"from": prev.Score, "to": snap.Score},
			})
		}
		r.Snapshots = append(r.Snapshots, snap)
	})
}

func (i *Instrumentation) onInput(ev engine.Event) {
	defer i.failOpen("input")

	at := ev.At
	if at.IsZero() {
		at = i.now()
	}

	if err := i.validator.Validate(context.Background(), ev.Action, at); err != nil {
		category := "invalid_input"
		severity := model.SeverityMedium
		if errors.Is(err, inputcheck.ErrRateLimited) {
			category = "rate_limit"
		}
		if errors.Is(err, inputcheck.ErrForbiddenAction) {
			severity = model.SeverityHigh
		}
		i.guard.with(func(r *model.SessionRecord) {
			i.flagLocked(r, model.SuspiciousActivity{
				Category:  category,
				Severity:  severity,
				Timestamp: at,
				Evidence:  map[string]interface{}{"action": ev.Action, "reason": err.Error()},
			})
		})
		return
	}

	snap, ok := i.captureSnapshot(at)
	var snapRef *model.StateSnapshot
	if ok {
		// An unavailable state accessor degrades to no-snapshot; the hard
		// gate only judges state it actually observed.
		snapRef = &snap
		if res := i.hardGate.Check(context.Background(), snapRef, i.now()); res.Detected {
			// Hard gate: the input is rejected outright and every signal is
			// recorded as critical.
			i.guard.with(func(r *model.SessionRecord) {
				for _, sig := range res.Signals {
					i.flagLocked(r, model.SuspiciousActivity{
						Category:  sig.Category,
						Severity:  model.SeverityCritical,
						Timestamp: at,
						Evidence:  map[string]interface{}{"detail": sig.Detail, "action": ev.Action},
					})
				}
			})
			return
		}
	}

	i.samples = append(i.samples, pattern.Sample{Action: model.Action(ev.Action), At: at})
	res := i.patterns.Analyze(context.Background(), i.samples)

	i.guard.with(func(r *model.SessionRecord) {
		r.Inputs = append(r.Inputs, model.InputEvent{
			Timestamp: at,
			Action:    model.Action(ev.Action),
			Snapshot:  snapRef,
		})
		if res.Suspicious {
			// Soft gate: the input stays accepted, findings only annotate.
			for _, category := range res.Categories {
				i.flagLocked(r, model.SuspiciousActivity{
					Category:  category,
					Severity:  model.SeverityLow,
					Timestamp: at,
					Evidence:  map[string]interface{}{"reason": res.Reason},
				})
			}
		}
	})
}

func (i *Instrumentation) onScore(ev engine.Event) {
	defer i.failOpen("score")

	at := ev.At
	if at.IsZero() {
		at = i.now()
	}
	i.guard.with(func(r *model.SessionRecord) {
		var from int64
		if n := len(r.ScoreDeltas); n > 0 {
			from = r.ScoreDeltas[n-1].To
		} else if snap := r.LatestSnapshot(); snap != nil {
			from = snap.Score
		}
		r.ScoreDeltas = append(r.ScoreDeltas, model.ScoreDelta{Timestamp: at, From: from, To: ev.Score})
		if ev.Score < from {
			i.flagLocked(r, model.SuspiciousActivity{
				Category:  "score_regression",
				Severity:  model.SeverityHigh,
				Timestamp: at,
				Evidence:  map[string]interface{}{"from": from, "to": ev.Score},
			})
		}
	})
}

func (i *Instrumentation) onPiece(ev engine.Event) {
	defer i.failOpen("piece")

	at := ev.At
	if at.IsZero() {
		at = i.now()
	}
	i.guard.with(func(r *model.SessionRecord) {
		r.Pieces = append(r.Pieces, model.PieceEvent{Timestamp: at, Type: ev.PieceType})
	})
}

// captureSnapshot reads engine state. A state accessor fault degrades to
// "no snapshot" rather than interrupting the hook.
func (i *Instrumentation) captureSnapshot(at time.Time) (model.StateSnapshot, bool) {
	if at.IsZero() {
		at = i.now()
	}
	st, err := i.eng.State()
	if err != nil {
		i.log.Warn(context.Background(), "engine state unavailable", logger.Error(err))
		return model.StateSnapshot{}, false
	}
	return st.Snapshot(at), true
}

// flagLocked appends suspicion to the record and fans it out to the
// reporter. Caller must hold the record guard.
func (i *Instrumentation) flagLocked(r *model.SessionRecord, act model.SuspiciousActivity) {
	r.Suspicious = append(r.Suspicious, act)
	metrics.RecordSuspiciousActivity(act.Category)
	if i.reporter != nil {
		go func() {
			// Reporting is best-effort; a panicking reporter must not
			// reach the frame loop.
			defer func() { _ = recover() }()
			i.reporter(act)
		}()
	}
}

// failOpen converts a detector panic into a log line, preserving original
// engine behavior.
func (i *Instrumentation) failOpen(hook string) {
	if r := recover(); r != nil {
		i.log.Error(context.Background(), "detector fault swallowed",
			logger.String("hook", hook), logger.Any("panic", r))
	}
}
