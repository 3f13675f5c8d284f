// Package repository stores player profiles and their bounded session
// histories for cross-session analysis.
package repository

import (
	"context"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
)

// Store keeps per-player verification history. RecordSession is an
// atomic read-modify-write: it returns the history as it stood before
// the new session, so callers can compare the incoming session against
// the past without racing concurrent submissions from the same player.
type Store interface {
	// RecordSession appends the summary to the player's bounded history,
	// updates the profile aggregates, and returns the updated profile
	// along with the prior history, oldest first.
	RecordSession(ctx context.Context, playerID string, summary model.SessionSummary, verdict model.Verdict) (model.PlayerProfile, []model.SessionSummary, error)

	// AddRisk folds a cross-session risk contribution into the player's
	// accumulated total and returns the updated profile.
	AddRisk(ctx context.Context, playerID string, risk float64) (model.PlayerProfile, error)

	// Profile returns the player's aggregate profile.
	Profile(ctx context.Context, playerID string) (model.PlayerProfile, error)

	// History returns the player's retained session summaries, oldest
	// first.
	History(ctx context.Context, playerID string) ([]model.SessionSummary, error)

	// Players returns the number of tracked profiles.
	Players(ctx context.Context) (int, error)
}
