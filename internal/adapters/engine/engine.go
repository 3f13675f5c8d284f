// Package engine defines the game-engine collaborator boundary. The
// engine itself (rendering, physics, piece generation) lives outside this
// module; instrumentation only subscribes to the lifecycle hooks declared
// here and reads state through the accessor. Engine internals are never
// wrapped or replaced at runtime.
package engine

import (
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
)

// HookKind identifies one of the four lifecycle points.
type HookKind string

// Lifecycle hooks an engine may expose.
const (
	HookTick  HookKind = "tick"
	HookInput HookKind = "input"
	HookScore HookKind = "score"
	HookPiece HookKind = "piece"
)

// Event is the payload delivered to a subscribed hook. Only the fields
// relevant to the hook kind are set.
type Event struct {
	Kind HookKind
	At   time.Time

	// Input hooks.
	Action string

	// Score hooks.
	Score int64

	// Piece hooks.
	PieceType string
}

// HookFunc receives lifecycle events synchronously on the engine's own
// update loop. Implementations must be bounded and never suspend.
type HookFunc func(Event)

// State is the observable game state returned by the accessor.
type State struct {
	Score       int64
	Level       int
	Lines       int
	Piece       *model.ActivePiece
	BoardDigest string
}

// Snapshot converts the state into a timestamped snapshot.
func (s State) Snapshot(at time.Time) model.StateSnapshot {
	return model.StateSnapshot{
		Timestamp:   at,
		Score:       s.Score,
		Level:       s.Level,
		Lines:       s.Lines,
		Piece:       s.Piece,
		BoardDigest: s.BoardDigest,
	}
}

// Engine is the surface instrumentation depends on. Engines that lack a
// lifecycle point return ErrHookUnavailable from Register; subscribers
// degrade to pass-through for that hook rather than failing. State
// returns ErrStateUnavailable when the observable state cannot be read.
type Engine interface {
	Register(kind HookKind, fn HookFunc) error
	State() (State, error)
}
