// Package verify implements server-side verification of one submitted
// session: structural validation, independent reconstruction, pattern
// re-analysis, known-signature cross-reference, and the final verdict.
package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/domain/pattern"
	"github.com/quarterforge/arcadeguard/internal/domain/scoring"
	"github.com/quarterforge/arcadeguard/internal/domain/types"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Reconstruction thresholds.
const (
	maxScoreDeltaPerMove int64 = 1000
	minPieceGap                = 100 * time.Millisecond
	identicalPieceRun          = 3
	minMoveGap                 = 16 * time.Millisecond

	defaultHistoryLimit = 1000
	defaultAuditLimit   = 500

	// faultFraudScore is assigned when verification itself faults: the
	// request never crashes, the session is ruled invalid with the
	// maximal contribution.
	faultFraudScore = 1.0
)

// patternWeights are the contributions of the soft-gate categories when
// they re-fire server-side. They keep their own names so they never
// cross-match the signature catalog; only reconstruction-level findings
// do that.
func patternWeights() map[string]float64 {
	return map[string]float64{
		pattern.CategoryExactRepetition:       0.3,
		pattern.CategoryImpossibleCombination: 0.2,
		pattern.CategoryInhumanTiming:         0.2,
		pattern.CategoryAutomatedSequence:     0.3,
	}
}

// signature pairs a known cheat signature with the reconstruction
// category that betrays it.
type signature struct {
	name     string
	category string
}

// knownSignatures is the fixed catalog cross-referenced after analysis.
func knownSignatures() []signature {
	return []signature{
		{name: "memory_manipulation", category: scoring.CategorySessionManipulation},
		{name: "speed_hacking", category: scoring.CategorySpeedHacking},
		{name: "score_injection", category: scoring.CategoryScoreManipulation},
		{name: "input_replay", category: scoring.CategoryInputReplay},
		{name: "timing_manipulation", category: scoring.CategoryTimingAnomalies},
	}
}

// AuditEntry is one invalid session queued for manual review.
type AuditEntry struct {
	SessionID  string
	PlayerID   string
	ReceivedAt time.Time
	Verdict    model.Verdict
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights overrides the reconstruction category weights.
func WithWeights(weights map[string]float64) Option {
	return func(e *Engine) {
		if len(weights) == 0 {
			return
		}
		e.weights = make(map[string]float64, len(weights))
		for cat, w := range weights {
			e.weights[cat] = w
		}
	}
}

// WithClamp bounds fraud scores to [0,1]; off by default to preserve the
// additive behavior of the source heuristic.
func WithClamp(clamp bool) Option {
	return func(e *Engine) {
		e.clamp = clamp
	}
}

// WithThreshold overrides the invalid-verdict threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// WithScoreCeiling overrides the absolute maximum submittable score.
func WithScoreCeiling(ceiling int64) Option {
	return func(e *Engine) {
		if ceiling > 0 {
			e.scoreCeiling = ceiling
		}
	}
}

// WithPatternDetector sets a custom soft-gate detector for re-analysis.
func WithPatternDetector(d *pattern.Detector) Option {
	return func(e *Engine) {
		if d != nil {
			e.patterns = d
		}
	}
}

// WithHistoryLimit bounds the retained verdict history.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithAuditLimit bounds the manual-review audit list.
func WithAuditLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.auditLimit = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine verifies submitted sessions. Verification itself is stateless
// per request; the mutex only guards the audit list and verdict history.
type Engine struct {
	weights      map[string]float64
	clamp        bool
	threshold    float64
	scoreCeiling int64
	patterns     *pattern.Detector
	log          logger.Logger
	historyLimit int
	auditLimit   int

	mu      sync.Mutex
	audit   []AuditEntry
	history []model.Verdict
}

// New creates a verification engine with the default category weights.
func New(opts ...Option) *Engine {
	e := &Engine{
		weights:      scoring.DefaultWeights(),
		threshold:    scoring.VerdictThreshold,
		scoreCeiling: model.ScoreCeiling,
		patterns:     pattern.New(),
		log:          logger.Named("verify"),
		historyLimit: defaultHistoryLimit,
		auditLimit:   defaultAuditLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify runs the full pipeline on one submission. It never returns an
// error and never panics outward: an internal fault degrades to an
// invalid verdict with the maximal fraud contribution.
func (e *Engine) Verify(ctx context.Context, payload *types.SubmissionPayload, receivedAt time.Time) (verdict model.Verdict) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(ctx, "verification fault; ruling session invalid",
				logger.Any("panic", r))
			verdict = model.Verdict{
				IsValid:         false,
				FraudScore:      faultFraudScore,
				Issues:          []string{"Internal reconstruction fault"},
				Recommendations: []string{scoring.Recommendation(faultFraudScore)},
			}
			e.record(payload, verdict, receivedAt)
		}
		metrics.ObserveVerificationLatency(float64(time.Since(start).Milliseconds()))
	}()

	tally := scoring.NewTally(
		scoring.WithWeights(e.mergedWeights()),
		scoring.WithClamp(e.clamp),
	)
	var issues []string

	issues = e.structuralValidate(payload, tally, issues)
	issues = e.reconstructScore(payload, tally, issues)
	issues = e.reconstructPieces(payload, tally, issues)
	issues = e.reconstructMoves(payload, tally, issues, receivedAt)
	issues = e.patternAnalyze(ctx, payload, tally, issues)
	issues = e.crossReference(tally, issues)

	score := tally.Score()
	verdict = model.Verdict{
		IsValid:         score < e.threshold,
		FraudScore:      score,
		Issues:          issues,
		Recommendations: []string{scoring.Recommendation(score)},
	}
	e.record(payload, verdict, receivedAt)
	return verdict
}

// AuditList returns the sessions queued for manual review.
func (e *Engine) AuditList() []AuditEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AuditEntry, len(e.audit))
	copy(out, e.audit)
	return out
}

// History returns the retained verdicts, oldest first.
func (e *Engine) History() []model.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Verdict, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) mergedWeights() map[string]float64 {
	merged := make(map[string]float64, len(e.weights)+4)
	for cat, w := range e.weights {
		merged[cat] = w
	}
	for cat, w := range patternWeights() {
		if _, ok := merged[cat]; !ok {
			merged[cat] = w
		}
	}
	return merged
}

// structuralValidate confirms required fields. Each miss adds its weight
// and an issue but never stops processing; partial evidence still
// contributes.
func (e *Engine) structuralValidate(p *types.SubmissionPayload, tally *scoring.Tally, issues []string) []string {
	miss := func(field string) {
		tally.Add(scoring.StructuralMissWeight)
		issues = append(issues, fmt.Sprintf("Missing required field: %s", field))
		metrics.RecordReconstructionViolation("structural")
	}
	if p.SessionID == "" {
		miss("sessionId")
	}
	if p.PlayerID == "" {
		miss("playerId")
	}
	if len(p.GameState.Moves) == 0 {
		miss("gameState.moves")
	}
	if len(p.GameState.InputPatterns) == 0 {
		miss("gameState.inputPatterns")
	}
	if len(p.VerificationData) == 0 {
		miss("verificationData")
	}
	if p.FinalHash == "" {
		miss("finalHash")
	}
	return issues
}

// reconstructScore re-derives the score progression from the move stream.
func (e *Engine) reconstructScore(p *types.SubmissionPayload, tally *scoring.Tally, issues []string) []string {
	flag := func(issue string) {
		tally.AddCategory(scoring.CategoryScoreManipulation)
		issues = append(issues, issue)
		metrics.RecordReconstructionViolation(scoring.CategoryScoreManipulation)
	}

	if p.GameState.Score < 0 {
		flag(fmt.Sprintf("Negative final score %d", p.GameState.Score))
	}
	if p.GameState.Score > e.scoreCeiling {
		flag(fmt.Sprintf("Score %d exceeds ceiling %d", p.GameState.Score, e.scoreCeiling))
	}

	var prev int64
	for i, mv := range p.GameState.Moves {
		delta := mv.ScoreAfter - prev
		switch {
		case delta < 0:
			flag(fmt.Sprintf("Score decreased by %d at move %d", -delta, i))
		case delta > maxScoreDeltaPerMove:
			flag(fmt.Sprintf("Impossible score increase: +%d at move %d", delta, i))
		}
		prev = mv.ScoreAfter
	}
	return issues
}

// reconstructPieces checks the piece generation stream.
func (e *Engine) reconstructPieces(p *types.SubmissionPayload, tally *scoring.Tally, issues []string) []string {
	pieces := p.GameState.Pieces
	run := 1
	for i := 1; i < len(pieces); i++ {
		gap := time.Duration(pieces[i].Timestamp-pieces[i-1].Timestamp) * time.Millisecond
		if gap < minPieceGap {
			tally.AddCategory(scoring.CategorySpeedHacking)
			issues = append(issues, fmt.Sprintf("Pieces generated %s apart at index %d", gap, i))
			metrics.RecordReconstructionViolation(scoring.CategorySpeedHacking)
		}
		if pieces[i].Type == pieces[i-1].Type {
			run++
			if run >= identicalPieceRun {
				tally.AddCategory(scoring.CategoryInputReplay)
				issues = append(issues, fmt.Sprintf("%d identical consecutive pieces ending at index %d", run, i))
				metrics.RecordReconstructionViolation(scoring.CategoryInputReplay)
			}
		} else {
			run = 1
		}
	}
	return issues
}

// reconstructMoves checks move timing and rules out timestamps past the
// receipt time across every submitted stream.
func (e *Engine) reconstructMoves(p *types.SubmissionPayload, tally *scoring.Tally, issues []string, receivedAt time.Time) []string {
	moves := p.GameState.Moves
	receipt := receivedAt.UnixMilli()

	for i, mv := range moves {
		if mv.Timestamp > receipt {
			tally.AddCategory(scoring.CategoryTimingAnomalies)
			issues = append(issues, fmt.Sprintf("Move %d timestamped after receipt time", i))
			metrics.RecordReconstructionViolation(scoring.CategoryTimingAnomalies)
		}
		if i == 0 {
			continue
		}
		gap := time.Duration(mv.Timestamp-moves[i-1].Timestamp) * time.Millisecond
		if gap < minMoveGap {
			if gap == 0 && oppositePair(moves[i-1].Action, mv.Action) {
				tally.AddCategory(scoring.CategoryTimingAnomalies)
				issues = append(issues, fmt.Sprintf("Opposite-axis moves on the same tick at index %d", i))
				metrics.RecordReconstructionViolation(scoring.CategoryTimingAnomalies)
				continue
			}
			tally.AddCategory(scoring.CategorySpeedHacking)
			issues = append(issues, fmt.Sprintf("Moves %s apart at index %d", gap, i))
			metrics.RecordReconstructionViolation(scoring.CategorySpeedHacking)
		}
	}

	for i, piece := range p.GameState.Pieces {
		if piece.Timestamp > receipt {
			tally.AddCategory(scoring.CategoryTimingAnomalies)
			issues = append(issues, fmt.Sprintf("Piece %d timestamped after receipt time", i))
			metrics.RecordReconstructionViolation(scoring.CategoryTimingAnomalies)
		}
	}

	for i, fp := range p.VerificationData {
		if fp.Timestamp > receipt {
			tally.AddCategory(scoring.CategoryTimingAnomalies)
			issues = append(issues, fmt.Sprintf("Fingerprint %d timestamped after receipt time", i))
			metrics.RecordReconstructionViolation(scoring.CategoryTimingAnomalies)
		}
	}
	return issues
}

func oppositePair(a, b string) bool {
	switch {
	case a == string(model.ActionMoveLeft) && b == string(model.ActionMoveRight),
		a == string(model.ActionMoveRight) && b == string(model.ActionMoveLeft),
		a == string(model.ActionRotateLeft) && b == string(model.ActionRotateRight),
		a == string(model.ActionRotateRight) && b == string(model.ActionRotateLeft):
		return true
	}
	return false
}

// patternAnalyze re-runs the soft-gate heuristics over the submitted
// input history and discounts client self-reports into the score.
func (e *Engine) patternAnalyze(ctx context.Context, p *types.SubmissionPayload, tally *scoring.Tally, issues []string) []string {
	samples := make([]pattern.Sample, len(p.GameState.InputPatterns))
	for i, in := range p.GameState.InputPatterns {
		samples[i] = pattern.Sample{
			Action: model.Action(in.Action),
			At:     time.UnixMilli(in.Timestamp),
		}
	}
	res := e.patterns.Analyze(ctx, samples)
	for _, category := range res.Categories {
		tally.AddCategory(category)
		issues = append(issues, fmt.Sprintf("Pattern detected: %s", category))
		metrics.RecordSuspiciousActivity(category)
	}

	if n := len(p.SuspiciousPatterns); n > 0 {
		// Client reports come from the client under evaluation; trusted
		// but discounted.
		tally.Add(scoring.SelfReportWeight * float64(n))
		issues = append(issues, fmt.Sprintf("%d client-reported suspicious activities", n))
	}
	return issues
}

// crossReference matches fired reconstruction categories against the
// known-signature catalog.
func (e *Engine) crossReference(tally *scoring.Tally, issues []string) []string {
	for _, sig := range knownSignatures() {
		if tally.Fired(sig.category) {
			tally.Add(scoring.SignatureMatchWeight)
			issues = append(issues, fmt.Sprintf("Matches known cheat signature: %s", sig.name))
		}
	}
	return issues
}

// record appends the verdict to the bounded history, queues invalid
// sessions for manual review, and emits metrics.
func (e *Engine) record(p *types.SubmissionPayload, verdict model.Verdict, receivedAt time.Time) {
	var sessionID, playerID string
	if p != nil {
		sessionID = p.SessionID
		playerID = p.PlayerID
	}

	e.mu.Lock()
	e.history = append(e.history, verdict)
	if len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}
	if !verdict.IsValid {
		e.audit = append(e.audit, AuditEntry{
			SessionID:  sessionID,
			PlayerID:   playerID,
			ReceivedAt: receivedAt,
			Verdict:    verdict,
		})
		if len(e.audit) > e.auditLimit {
			e.audit = e.audit[len(e.audit)-e.auditLimit:]
		}
	}
	auditLen := len(e.audit)
	e.mu.Unlock()

	metrics.RecordSessionVerified(verdict.IsValid)
	metrics.ObserveFraudScore(verdict.FraudScore)
	metrics.UpdateAuditListSize(auditLen)
}
