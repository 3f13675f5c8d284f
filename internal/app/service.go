// Package service wires the verification pipeline together: the
// resubmission guard, the submission queue, the worker pool, the
// verification engine, and cross-session analysis behind one boundary.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/mq/queue"
	workerpool "github.com/quarterforge/arcadeguard/internal/adapters/mq/worker"
	"github.com/quarterforge/arcadeguard/internal/adapters/repository"
	"github.com/quarterforge/arcadeguard/internal/config"
	"github.com/quarterforge/arcadeguard/internal/domain/dedupe"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/domain/pattern"
	"github.com/quarterforge/arcadeguard/internal/domain/types"
	"github.com/quarterforge/arcadeguard/internal/server/crosssession"
	"github.com/quarterforge/arcadeguard/internal/server/verify"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Service implements the anti-cheat pipeline boundary. Callers submit
// sealed session payloads; everything past Submit is internal.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	deduper  dedupe.Deduper
	queue    *queue.InMemoryQueue
	engine   *verify.Engine
	analyzer *crosssession.Analyzer
	pool     *workerpool.Pool

	workerCount    int
	queueSize      int
	dedupeSize     int
	historySize    int
	fraudWeights   map[string]float64
	clamp          bool
	threshold      float64
	scoreJump      int64
	scoreCeiling   int64
	patternWindow  int
	timingVariance float64
	logLevel       string
	started        bool
	now            func() time.Time

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of verification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the resubmission guard.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHistorySize sets the per-player retained session count.
func WithHistorySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.historySize = size
		}
	}
}

// WithFraudWeights overrides the detection category weights.
func WithFraudWeights(weights map[string]float64) Option {
	return func(s *Service) {
		if len(weights) > 0 {
			s.fraudWeights = weights
		}
	}
}

// WithClamp bounds fraud scores to [0,1].
func WithClamp(clamp bool) Option {
	return func(s *Service) {
		s.clamp = clamp
	}
}

// WithVerdictThreshold overrides the invalid-verdict threshold.
func WithVerdictThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithScoreJumpThreshold sets the cross-session improvement bound.
func WithScoreJumpThreshold(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoreJump = n
		}
	}
}

// WithScoreCeiling overrides the absolute maximum submittable score.
func WithScoreCeiling(ceiling int64) Option {
	return func(s *Service) {
		if ceiling > 0 {
			s.scoreCeiling = ceiling
		}
	}
}

// WithPatternWindow sets the trailing window for pattern re-analysis.
func WithPatternWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.patternWindow = n
		}
	}
}

// WithTimingVariance sets the inhuman-cadence variance bound in ms².
func WithTimingVariance(v float64) Option {
	return func(s *Service) {
		if v > 0 {
			s.timingVariance = v
		}
	}
}

// WithLogLevel sets the global log verbosity at startup.
func WithLogLevel(level string) Option {
	return func(s *Service) {
		s.logLevel = level
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// FromConfig maps loaded configuration onto service options.
func FromConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		WithWorkerCount(cfg.WorkerCount)(s)
		WithQueueSize(cfg.QueueSize)(s)
		WithDedupeSize(cfg.DedupeSize)(s)
		WithHistorySize(cfg.SessionHistorySize)(s)
		WithFraudWeights(cfg.FraudWeights)(s)
		WithClamp(cfg.ClampFraudScore)(s)
		WithVerdictThreshold(cfg.VerdictThreshold)(s)
		WithScoreJumpThreshold(cfg.ScoreJumpThreshold)(s)
		WithScoreCeiling(cfg.ScoreCeiling)(s)
		WithPatternWindow(cfg.PatternWindowSize)(s)
		WithTimingVariance(cfg.TimingVarianceThreshold)(s)
		WithLogLevel(cfg.LogLevel)(s)
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 4,
		queueSize:   10_000,
		dedupeSize:  50_000,
		historySize: 50,
		threshold:   0.7,
		scoreJump:   50_000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.log == nil {
		s.log = logger.Named("service")
	}
	if s.logLevel != "" {
		if err := logger.SetLevelString(s.logLevel); err != nil {
			s.log.Warn(ctx, "unknown log level; keeping current",
				logger.String("log_level", s.logLevel))
		}
	}

	s.store = repository.NewMemoryStore(
		repository.WithHistoryLimit(s.historySize),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)

	engineOpts := []verify.Option{
		verify.WithClamp(s.clamp),
		verify.WithThreshold(s.threshold),
	}
	if s.fraudWeights != nil {
		engineOpts = append(engineOpts, verify.WithWeights(s.fraudWeights))
	}
	if s.scoreCeiling > 0 {
		engineOpts = append(engineOpts, verify.WithScoreCeiling(s.scoreCeiling))
	}
	if s.patternWindow > 0 || s.timingVariance > 0 {
		engineOpts = append(engineOpts, verify.WithPatternDetector(pattern.New(
			pattern.WithWindowSize(s.patternWindow),
			pattern.WithVarianceThreshold(s.timingVariance),
		)))
	}
	s.engine = verify.New(engineOpts...)

	s.analyzer = crosssession.New(s.store,
		crosssession.WithScoreJumpThreshold(s.scoreJump),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.engine, s.analyzer)
	s.pool.Start(ctx)

	s.started = true
	s.log.Info(ctx, "verification pipeline started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("history_size", s.historySize),
	)
	return nil
}

// Stop gracefully shuts down the pipeline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.log.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	_ = s.queue.Close()
	s.started = false
	s.log.Info(ctx, "verification pipeline stopped")
}

// Submit enqueues a sealed session payload for asynchronous
// verification. Resubmitting a session id is rejected.
func (s *Service) Submit(ctx context.Context, payload *types.SubmissionPayload) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if payload == nil || payload.SessionID == "" {
		return ErrInvalidSubmission
	}

	if s.deduper.SeenAndRecord(ctx, payload.SessionID) {
		metrics.RecordDuplicateSubmission()
		s.log.Warn(ctx, "duplicate submission rejected",
			logger.String("session_id", payload.SessionID),
			logger.String("player_id", payload.PlayerID),
		)
		return ErrDuplicateSubmission
	}

	item := queue.Item{Payload: payload, ReceivedAt: s.now()}
	if !s.queue.Enqueue(ctx, item) {
		// Allow a retry after transient backpressure.
		s.deduper.Unrecord(ctx, payload.SessionID)
		return ErrQueueFull
	}
	return nil
}

// SubmitRaw decodes a wire payload and submits it.
func (s *Service) SubmitRaw(ctx context.Context, raw []byte) error {
	payload, err := types.DecodeSubmission(raw)
	if err != nil {
		return err
	}
	return s.Submit(ctx, payload)
}

// Verify runs a submission through the pipeline synchronously and
// returns the verdict together with the cross-session report. The risk
// score in the report is independent of the verdict; combining the two
// signals is the caller's policy decision. The session is recorded into
// the player's history exactly as on the asynchronous path.
func (s *Service) Verify(ctx context.Context, payload *types.SubmissionPayload) (model.Verdict, crosssession.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Verdict{}, crosssession.Report{}, ErrNotStarted
	}
	if payload == nil || payload.SessionID == "" {
		return model.Verdict{}, crosssession.Report{}, ErrInvalidSubmission
	}
	if s.deduper.SeenAndRecord(ctx, payload.SessionID) {
		metrics.RecordDuplicateSubmission()
		return model.Verdict{}, crosssession.Report{}, ErrDuplicateSubmission
	}

	receivedAt := s.now()
	verdict := s.engine.Verify(ctx, payload, receivedAt)

	summary := model.SessionSummary{
		SessionID:   payload.SessionID,
		SubmittedAt: receivedAt,
		Score:       payload.GameState.Score,
		FraudScore:  verdict.FraudScore,
		IsValid:     verdict.IsValid,
	}
	for _, in := range payload.GameState.InputPatterns {
		summary.Inputs = append(summary.Inputs, in.Action)
	}
	report, err := s.analyzer.Analyze(ctx, payload.PlayerID, summary, verdict)
	if err != nil {
		return verdict, report, err
	}
	return verdict, report, nil
}

// VerifyRaw decodes a wire payload, verifies it synchronously, and
// returns the encoded verdict.
func (s *Service) VerifyRaw(ctx context.Context, raw []byte) ([]byte, error) {
	payload, err := types.DecodeSubmission(raw)
	if err != nil {
		return nil, err
	}
	verdict, _, err := s.Verify(ctx, payload)
	if err != nil {
		return nil, err
	}
	return types.EncodeVerdict(&types.VerdictResponse{
		IsValid:         verdict.IsValid,
		FraudScore:      verdict.FraudScore,
		Issues:          verdict.Issues,
		Recommendations: verdict.Recommendations,
	})
}

// AuditList returns the sessions queued for manual review.
func (s *Service) AuditList() []verify.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.engine.AuditList()
}

// VerdictHistory returns the retained verdicts, oldest first.
func (s *Service) VerdictHistory() []model.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.engine.History()
}

// Profile returns the aggregate profile for a player.
func (s *Service) Profile(ctx context.Context, playerID string) (model.PlayerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.PlayerProfile{}, ErrNotStarted
	}
	return s.store.Profile(ctx, playerID)
}

// PlayerHistory returns a player's retained session summaries.
func (s *Service) PlayerHistory(ctx context.Context, playerID string) ([]model.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store.History(ctx, playerID)
}

// QueueDepth returns the number of submissions awaiting verification.
func (s *Service) QueueDepth(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0
	}
	return s.queue.Len(ctx)
}
