// Package crosssession compares a freshly verified session against the
// player's retained history to catch abuse that no single session
// reveals: sudden skill jumps, rapid resubmission, and replayed input
// streams.
package crosssession

import (
	"context"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/repository"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Finding categories.
const (
	CategoryScoreJump         = "score_jump"
	CategoryRapidResubmission = "rapid_resubmission"
	CategoryInputReplay       = "cross_session_replay"
	CategoryScoreOutlier      = "score_outlier"
)

// Default analysis thresholds.
const (
	defaultScoreJump     int64 = 50_000
	defaultMinGap              = time.Second
	defaultSimilarity          = 0.95
	defaultAverageFactor       = 3.0

	// minInputsForSimilarity keeps trivially short sessions from
	// matching each other.
	minInputsForSimilarity = 10

	// minSessionsForAverage is how much history the outlier check needs
	// before an average is meaningful.
	minSessionsForAverage = 3
)

// findingWeights are the risk contributions per finding category. The
// cross-session risk score is independent of the per-session verdict;
// fusing the two is the caller's policy decision.
func findingWeights() map[string]float64 {
	return map[string]float64{
		CategoryScoreJump:         0.3,
		CategoryRapidResubmission: 0.2,
		CategoryInputReplay:       0.4,
		CategoryScoreOutlier:      0.3,
	}
}

// Finding is one cross-session anomaly.
type Finding struct {
	Category string
	Detail   string
}

// Report is the outcome of analyzing one session against history.
type Report struct {
	PlayerID  string
	Findings  []Finding
	RiskScore float64
	Profile   model.PlayerProfile
}

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithScoreJumpThreshold sets the session-over-session improvement bound.
func WithScoreJumpThreshold(n int64) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.scoreJump = n
		}
	}
}

// WithMinSessionGap sets the minimum believable gap between sessions.
func WithMinSessionGap(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.minGap = d
		}
	}
}

// WithSimilarityThreshold sets the input-stream similarity bound in (0,1].
func WithSimilarityThreshold(v float64) Option {
	return func(a *Analyzer) {
		if v > 0 && v <= 1 {
			a.similarity = v
		}
	}
}

// WithAverageFactor sets the score-to-average multiple for the outlier
// check.
func WithAverageFactor(f float64) Option {
	return func(a *Analyzer) {
		if f > 0 {
			a.averageFactor = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// Analyzer runs history comparisons over the profile store.
type Analyzer struct {
	store         repository.Store
	scoreJump     int64
	minGap        time.Duration
	similarity    float64
	averageFactor float64
	log           logger.Logger
}

// New creates an analyzer over the given store.
func New(store repository.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:         store,
		scoreJump:     defaultScoreJump,
		minGap:        defaultMinGap,
		similarity:    defaultSimilarity,
		averageFactor: defaultAverageFactor,
		log:           logger.Named("crosssession"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze records the session into the player's history and compares it
// against the history as it stood before. Recording and reading the
// prior history are one atomic store operation, so two simultaneous
// submissions from the same player each see the other at most once.
func (a *Analyzer) Analyze(ctx context.Context, playerID string, summary model.SessionSummary, verdict model.Verdict) (Report, error) {
	profile, prior, err := a.store.RecordSession(ctx, playerID, summary, verdict)
	if err != nil {
		return Report{}, err
	}

	report := Report{PlayerID: playerID, Profile: profile}
	weights := findingWeights()
	flag := func(category, detail string) {
		report.Findings = append(report.Findings, Finding{Category: category, Detail: detail})
		report.RiskScore += weights[category]
		metrics.RecordCrossSessionFlag(category)
	}

	if len(prior) > 0 {
		last := prior[len(prior)-1]
		if summary.Score-last.Score > a.scoreJump {
			flag(CategoryScoreJump, "score improved beyond plausible session-over-session progress")
		}
		if gap := summary.SubmittedAt.Sub(last.SubmittedAt); gap >= 0 && gap < a.minGap {
			flag(CategoryRapidResubmission, "consecutive sessions submitted faster than a session can be played")
		}
	}

	if len(summary.Inputs) >= minInputsForSimilarity {
		for _, past := range prior {
			if len(past.Inputs) < minInputsForSimilarity {
				continue
			}
			if inputSimilarity(summary.Inputs, past.Inputs) > a.similarity {
				flag(CategoryInputReplay, "input stream nearly identical to session "+past.SessionID)
				break
			}
		}
	}

	if len(prior) >= minSessionsForAverage {
		var sum float64
		for _, past := range prior {
			sum += float64(past.Score)
		}
		avg := sum / float64(len(prior))
		if avg > 0 && float64(summary.Score) > a.averageFactor*avg {
			flag(CategoryScoreOutlier, "score far above the player's rolling average")
		}
	}

	if report.RiskScore > 0 {
		updated, err := a.store.AddRisk(ctx, playerID, report.RiskScore)
		if err != nil {
			return report, err
		}
		report.Profile = updated
		a.log.Warn(ctx, "cross-session anomalies detected",
			logger.String("player_id", playerID),
			logger.String("session_id", summary.SessionID),
			logger.Int("findings", len(report.Findings)),
			logger.Float64("risk_score", report.RiskScore),
			logger.Float64("total_risk", updated.TotalRisk),
		)
	}
	return report, nil
}

// inputSimilarity is the longest common subsequence of the two action
// streams over the longer stream's length. A replayed stream survives
// trimming, padding, and a handful of inserted or dropped actions; two
// independently played sessions share far less.
func inputSimilarity(a, b []string) float64 {
	longer, shorter := a, b
	if len(b) > len(a) {
		longer, shorter = b, a
	}
	if len(longer) == 0 {
		return 0
	}

	prev := make([]int, len(shorter)+1)
	curr := make([]int, len(shorter)+1)
	for i := 1; i <= len(longer); i++ {
		for j := 1; j <= len(shorter); j++ {
			switch {
			case longer[i-1] == shorter[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return float64(prev[len(shorter)]) / float64(len(longer))
}
