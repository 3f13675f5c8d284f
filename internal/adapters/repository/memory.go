package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/pkg/metrics"
)

// Default in-memory store configuration constants.
const (
	defaultHistoryLimit = 50
	numStripes          = 64
)

// Option applies a configuration option to the in-memory store.
type Option func(*memoryStore)

// WithHistoryLimit bounds the per-player session history.
func WithHistoryLimit(n int) Option {
	return func(s *memoryStore) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

type playerState struct {
	profile model.PlayerProfile
	history []model.SessionSummary
}

type stripe struct {
	mu      sync.Mutex
	players map[string]*playerState
}

// memoryStore is a striped in-memory Store. Players hash onto a fixed
// set of stripes so concurrent submissions from different players never
// contend on one lock.
type memoryStore struct {
	historyLimit int
	stripes      [numStripes]stripe

	playerCount  atomic.Int64
	sessionCount atomic.Int64
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore(opts ...Option) Store {
	s := &memoryStore{historyLimit: defaultHistoryLimit}
	for i := range s.stripes {
		s.stripes[i].players = make(map[string]*playerState)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) stripeFor(playerID string) *stripe {
	return &s.stripes[xxhash.Sum64String(playerID)%numStripes]
}

func (s *memoryStore) RecordSession(_ context.Context, playerID string, summary model.SessionSummary, verdict model.Verdict) (model.PlayerProfile, []model.SessionSummary, error) {
	st := s.stripeFor(playerID)
	st.mu.Lock()

	state, ok := st.players[playerID]
	if !ok {
		state = &playerState{profile: model.PlayerProfile{PlayerID: playerID}}
		st.players[playerID] = state
		s.playerCount.Add(1)
	}

	prior := make([]model.SessionSummary, len(state.history))
	copy(prior, state.history)

	state.history = append(state.history, summary)
	if len(state.history) > s.historyLimit {
		state.history = state.history[len(state.history)-s.historyLimit:]
	} else {
		s.sessionCount.Add(1)
	}

	p := &state.profile
	p.SessionCount++
	p.AverageScore += (float64(summary.Score) - p.AverageScore) / float64(p.SessionCount)
	p.TotalRisk += verdict.FraudScore
	p.LastVerdict = verdict
	p.UpdatedAt = summary.SubmittedAt
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	profile := *p

	st.mu.Unlock()

	metrics.UpdateProfilesTracked(int(s.playerCount.Load()))
	metrics.UpdateSessionsRetained(int(s.sessionCount.Load()))
	return profile, prior, nil
}

func (s *memoryStore) AddRisk(_ context.Context, playerID string, risk float64) (model.PlayerProfile, error) {
	st := s.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	state, ok := st.players[playerID]
	if !ok {
		return model.PlayerProfile{}, ErrProfileNotFound
	}
	state.profile.TotalRisk += risk
	return state.profile, nil
}

func (s *memoryStore) Profile(_ context.Context, playerID string) (model.PlayerProfile, error) {
	st := s.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	state, ok := st.players[playerID]
	if !ok {
		return model.PlayerProfile{}, ErrProfileNotFound
	}
	return state.profile, nil
}

func (s *memoryStore) History(_ context.Context, playerID string) ([]model.SessionSummary, error) {
	st := s.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	state, ok := st.players[playerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := make([]model.SessionSummary, len(state.history))
	copy(out, state.history)
	return out, nil
}

func (s *memoryStore) Players(context.Context) (int, error) {
	return int(s.playerCount.Load()), nil
}
