// Package manipulation implements the hard gate that rejects state
// snapshots carrying internally impossible values.
package manipulation

import (
	"context"
	"fmt"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Signal is one positive manipulation finding.
type Signal struct {
	Category string
	Detail   string
}

// Result is the outcome of checking a snapshot. Any signal rejects the
// input outright; this gate never merely flags.
type Result struct {
	Detected bool
	Signals  []Signal
}

// Detector runs the hard-gate checks. It is stateless and safe for
// concurrent use.
type Detector struct {
	boardWidth  int
	boardHeight int
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithBoardSize overrides the board bounds used for piece checks.
func WithBoardSize(width, height int) Option {
	return func(d *Detector) {
		if width > 0 && height > 0 {
			d.boardWidth = width
			d.boardHeight = height
		}
	}
}

// New creates a detector with standard board bounds.
func New(opts ...Option) *Detector {
	d := &Detector{
		boardWidth:  model.BoardWidth,
		boardHeight: model.BoardHeight,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check inspects the snapshot accompanying the latest input. receivedAt is
// the local clock at receipt; snapshots claiming a later timestamp are
// impossible and flagged.
func (d *Detector) Check(_ context.Context, snap *model.StateSnapshot, receivedAt time.Time) Result {
	var res Result
	add := func(category, detail string) {
		res.Detected = true
		res.Signals = append(res.Signals, Signal{Category: category, Detail: detail})
		metrics.RecordSuspiciousActivity(category)
	}

	if snap == nil {
		add("missing_snapshot", "state snapshot absent for input")
		return res
	}
	if snap.Timestamp.IsZero() {
		add("malformed_snapshot", "snapshot missing timestamp")
	}
	if snap.Score < 0 {
		add("negative_score", fmt.Sprintf("score %d is negative", snap.Score))
	}
	if snap.Level < model.MinLevel || snap.Level > model.MaxLevel {
		add("invalid_level", fmt.Sprintf("level %d outside [%d,%d]", snap.Level, model.MinLevel, model.MaxLevel))
	}
	if snap.Lines < 0 {
		add("malformed_snapshot", fmt.Sprintf("lines cleared %d is negative", snap.Lines))
	}
	if p := snap.Piece; p != nil {
		if p.X < 0 || p.X >= d.boardWidth || p.Y < 0 || p.Y >= d.boardHeight {
			add("piece_out_of_bounds", fmt.Sprintf("piece at (%d,%d) outside %dx%d board", p.X, p.Y, d.boardWidth, d.boardHeight))
		}
		if p.Type == "" {
			add("malformed_snapshot", "active piece missing type")
		}
	}
	if !snap.Timestamp.IsZero() && snap.Timestamp.After(receivedAt) {
		add("timing_manipulation", fmt.Sprintf("snapshot timestamp %s is after receipt time %s",
			snap.Timestamp.Format(time.RFC3339Nano), receivedAt.Format(time.RFC3339Nano)))
	}
	return res
}
