// Package aggregate periodically fingerprints the live session and, at
// session end, seals the record and assembles the submission payload.
package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quarterforge/arcadeguard/internal/client/instrument"
	"github.com/quarterforge/arcadeguard/internal/config"
	"github.com/quarterforge/arcadeguard/internal/domain/fingerprint"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/domain/types"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Default aggregation configuration constants.
const (
	defaultInterval        = 5 * time.Second
	defaultMinFingerprints = 2
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithInterval sets the fingerprint cadence.
func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithScoreCeiling sets the absolute score ceiling for preflight.
func WithScoreCeiling(ceiling int64) Option {
	return func(a *Aggregator) {
		if ceiling > 0 {
			a.ceiling = ceiling
		}
	}
}

// WithMinFingerprints sets the preflight fingerprint floor.
func WithMinFingerprints(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minFingerprints = n
		}
	}
}

// FromConfig maps loaded configuration onto the fingerprint cadence and
// score ceiling.
func FromConfig(cfg *config.Config) Option {
	return func(a *Aggregator) {
		if cfg == nil {
			return
		}
		WithInterval(cfg.FingerprintInterval())(a)
		WithScoreCeiling(cfg.ScoreCeiling)(a)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// PreflightResult is the advisory local check before submission. It never
// replaces server verification.
type PreflightResult struct {
	IsValid    bool
	Issues     []string
	FinalScore int64
}

// Aggregator owns the fingerprint timer for one session. The timer runs
// independently of the frame loop; missed ticks (such as during
// backgrounding) simply leave fewer fingerprints behind.
type Aggregator struct {
	inst            *instrument.Instrumentation
	interval        time.Duration
	ceiling         int64
	minFingerprints int
	log             logger.Logger
	now             func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// New creates an aggregator for the given instrumented session.
func New(inst *instrument.Instrumentation, opts ...Option) *Aggregator {
	a := &Aggregator{
		inst:            inst,
		interval:        defaultInterval,
		ceiling:         model.ScoreCeiling,
		minFingerprints: defaultMinFingerprints,
		log:             logger.Named("aggregate"),
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the periodic fingerprint timer.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-ticker.C:
				a.Fingerprint()
			}
		}
	}()
}

// Fingerprint computes one periodic digest of the current session state
// and appends it to the record. Safe to call directly; the timer does
// exactly this.
func (a *Aggregator) Fingerprint() {
	now := a.now()
	a.inst.WithRecord(func(r *model.SessionRecord) {
		if r.Sealed {
			return
		}
		digest := fingerprint.Compute(a.summaryLocked(r, now))
		r.Fingerprints = append(r.Fingerprints, model.StateFingerprint{Timestamp: now, Digest: digest})
	})
	metrics.RecordFingerprintTaken()
}

// Seal ends the session: the timer stops, the final fingerprint is
// computed, and the record becomes read-only. Sealing twice is an error.
func (a *Aggregator) Seal(ctx context.Context) error {
	a.mu.Lock()
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.mu.Unlock()

	var sealErr error
	now := a.now()
	a.inst.WithRecord(func(r *model.SessionRecord) {
		if r.Sealed {
			sealErr = ErrSessionSealed
			return
		}
		periodic := make([]string, len(r.Fingerprints))
		for i, fp := range r.Fingerprints {
			periodic[i] = fp.Digest
		}
		r.FinalFingerprint = fingerprint.Final(periodic, a.summaryLocked(r, now))
		r.Sealed = true
		a.log.Info(ctx, "session sealed",
			logger.String("session_id", r.SessionID),
			logger.Int("fingerprints", len(r.Fingerprints)),
			logger.Int("suspicious", len(r.Suspicious)),
		)
	})
	return sealErr
}

// PreflightCheck runs the advisory local checks. Zero recorded suspicious
// activity with the structural checks satisfied is an automatic local
// pass; anything recorded is surfaced as an issue without failing the
// check, since judging it is the server's job.
func (a *Aggregator) PreflightCheck() PreflightResult {
	var res PreflightResult
	a.inst.WithRecord(func(r *model.SessionRecord) {
		res.FinalScore = finalScore(r)
		if res.FinalScore > a.ceiling {
			res.Issues = append(res.Issues, fmt.Sprintf("score %d exceeds ceiling %d", res.FinalScore, a.ceiling))
		}
		if len(r.Fingerprints) < a.minFingerprints {
			res.Issues = append(res.Issues, fmt.Sprintf("only %d fingerprints recorded, need %d", len(r.Fingerprints), a.minFingerprints))
		}
		res.IsValid = len(res.Issues) == 0
		if res.IsValid && len(r.Suspicious) > 0 {
			res.Issues = append(res.Issues, fmt.Sprintf("%d suspicious activities recorded; server verification will weigh them", len(r.Suspicious)))
		}
	})
	return res
}

// Submission assembles the final payload from the sealed record.
func (a *Aggregator) Submission() (*types.SubmissionPayload, error) {
	var payload *types.SubmissionPayload
	var err error
	a.inst.WithRecord(func(r *model.SessionRecord) {
		if !r.Sealed {
			err = ErrNotSealed
			return
		}
		payload = buildPayload(r)
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// summaryLocked builds the fingerprint field set. Caller must hold the
// record via WithRecord.
func (a *Aggregator) summaryLocked(r *model.SessionRecord, now time.Time) fingerprint.Summary {
	var level int
	if snap := r.LatestSnapshot(); snap != nil {
		level = snap.Level
	}
	return fingerprint.Summary{
		SessionID:       r.SessionID,
		Elapsed:         now.Sub(r.StartedAt),
		Score:           finalScore(r),
		Level:           level,
		MoveCount:       len(r.Inputs),
		PieceCount:      len(r.Pieces),
		SuspiciousCount: len(r.Suspicious),
	}
}

// finalScore prefers the score-update stream and falls back to the last
// snapshot.
func finalScore(r *model.SessionRecord) int64 {
	if n := len(r.ScoreDeltas); n > 0 {
		return r.ScoreDeltas[n-1].To
	}
	if snap := r.LatestSnapshot(); snap != nil {
		return snap.Score
	}
	return 0
}

func buildPayload(r *model.SessionRecord) *types.SubmissionPayload {
	gs := types.GameState{Score: finalScore(r)}
	if snap := r.LatestSnapshot(); snap != nil {
		gs.Level = snap.Level
		gs.Lines = snap.Lines
	}

	var lastScore int64
	for _, in := range r.Inputs {
		score := lastScore
		if in.Snapshot != nil {
			score = in.Snapshot.Score
			lastScore = score
		}
		gs.Moves = append(gs.Moves, types.MoveRecord{
			Action:     string(in.Action),
			Timestamp:  in.Timestamp.UnixMilli(),
			ScoreAfter: score,
		})
		gs.InputPatterns = append(gs.InputPatterns, types.InputRecord{
			Action:    string(in.Action),
			Timestamp: in.Timestamp.UnixMilli(),
		})
	}
	for _, p := range r.Pieces {
		gs.Pieces = append(gs.Pieces, types.PieceRecord{Type: p.Type, Timestamp: p.Timestamp.UnixMilli()})
	}

	payload := &types.SubmissionPayload{
		SessionID: r.SessionID,
		PlayerID:  r.PlayerID,
		GameState: gs,
		FinalHash: r.FinalFingerprint,
	}
	for _, s := range r.Suspicious {
		payload.SuspiciousPatterns = append(payload.SuspiciousPatterns, types.ReportedActivity{
			Category:  s.Category,
			Severity:  string(s.Severity),
			Timestamp: s.Timestamp.UnixMilli(),
			Evidence:  s.Evidence,
		})
	}
	for _, fp := range r.Fingerprints {
		payload.VerificationData = append(payload.VerificationData, types.Fingerprint{
			Timestamp: fp.Timestamp.UnixMilli(),
			Digest:    fp.Digest,
		})
	}
	return payload
}
