// Package worker runs the asynchronous verification consumers that
// drain the submission queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/mq/queue"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/domain/types"
	"github.com/quarterforge/arcadeguard/internal/server/crosssession"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4
	poolShutdownTimeout     = 30 * time.Second
)

// Verifier produces a verdict for one submission.
type Verifier interface {
	Verify(ctx context.Context, payload *types.SubmissionPayload, receivedAt time.Time) model.Verdict
}

// Analyzer compares a verified session against the player's history.
type Analyzer interface {
	Analyze(ctx context.Context, playerID string, summary model.SessionSummary, verdict model.Verdict) (crosssession.Report, error)
}

// Source defines how workers receive submissions.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Item
}

// Worker processes submissions off the queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// VerifyWorker implements Worker by running each submission through
// verification and then cross-session analysis.
type VerifyWorker struct {
	source   Source
	verifier Verifier
	analyzer Analyzer
	name     string

	shutdown chan struct{}
	done     chan struct{}

	log logger.Logger
}

// NewVerifyWorker creates a worker with configuration options.
func NewVerifyWorker(source Source, verifier Verifier, analyzer Analyzer, opts ...Option) *VerifyWorker {
	w := &VerifyWorker{
		source:   source,
		verifier: verifier,
		analyzer: analyzer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *VerifyWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			w.process(ctx, item)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *VerifyWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.log.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

func (w *VerifyWorker) process(ctx context.Context, item queue.Item) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	verdict := w.verifier.Verify(ctx, item.Payload, item.ReceivedAt)

	summary := model.SessionSummary{
		SessionID:   item.Payload.SessionID,
		SubmittedAt: item.ReceivedAt,
		Score:       item.Payload.GameState.Score,
		FraudScore:  verdict.FraudScore,
		IsValid:     verdict.IsValid,
	}
	for _, in := range item.Payload.GameState.InputPatterns {
		summary.Inputs = append(summary.Inputs, in.Action)
	}

	report, err := w.analyzer.Analyze(ctx, item.Payload.PlayerID, summary, verdict)
	if err != nil {
		metrics.RecordWorkerError()
		w.log.Error(ctx, "cross-session analysis failed",
			logger.String("session_id", item.Payload.SessionID),
			logger.Error(err),
		)
		return
	}

	w.log.Info(ctx, "session processed",
		logger.String("session_id", item.Payload.SessionID),
		logger.String("player_id", item.Payload.PlayerID),
		logger.Bool("valid", verdict.IsValid),
		logger.Float64("fraud_score", verdict.FraudScore),
		logger.Int("cross_session_findings", len(report.Findings)),
	)
}

// Pool manages a fixed set of workers over one queue.
type Pool struct {
	workers []*VerifyWorker
	log     logger.Logger
}

// NewPool creates a worker pool. A non-positive count defaults to a
// multiple of the CPU count.
func NewPool(workerCount int, source Source, verifier Verifier, analyzer Analyzer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*VerifyWorker, workerCount),
		log:     logger.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewVerifyWorker(source, verifier, analyzer,
			WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Start launches every worker in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.log.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown stops every worker, waiting up to the pool timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return firstErr
}
