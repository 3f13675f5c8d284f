// Package model contains domain models passed between the client
// instrumentation and the server verification layers.
package model

import "time"

// Action is one input action from the fixed gameplay vocabulary.
type Action string

// Input action vocabulary.
const (
	ActionMoveLeft    Action = "move_left"
	ActionMoveRight   Action = "move_right"
	ActionSoftDrop    Action = "soft_drop"
	ActionHardDrop    Action = "hard_drop"
	ActionRotateLeft  Action = "rotate_left"
	ActionRotateRight Action = "rotate_right"
	ActionDrop        Action = "drop"
	ActionHold        Action = "hold"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
)

// KnownAction reports whether a belongs to the fixed vocabulary.
func KnownAction(a Action) bool {
	switch a {
	case ActionMoveLeft, ActionMoveRight, ActionSoftDrop, ActionHardDrop,
		ActionRotateLeft, ActionRotateRight, ActionDrop, ActionHold,
		ActionPause, ActionResume:
		return true
	}
	return false
}

// Board and progression bounds enforced by the hard gate.
const (
	BoardWidth  = 10
	BoardHeight = 20
	MinLevel    = 1
	MaxLevel    = 100

	// ScoreCeiling is the absolute maximum score a session can submit.
	ScoreCeiling int64 = 1_000_000
)

// Severity grades a suspicious activity.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActivePiece describes the falling piece in a snapshot.
type ActivePiece struct {
	Type     string
	X        int
	Y        int
	Rotation int
}

// StateSnapshot captures observable game state at one instant.
type StateSnapshot struct {
	Timestamp time.Time
	Score     int64
	Level     int
	Lines     int
	// Piece is nil between spawns.
	Piece       *ActivePiece
	BoardDigest string
}

// InputEvent is one recorded input action.
type InputEvent struct {
	Timestamp time.Time
	Action    Action
	// Snapshot optionally references the state observed with the input.
	Snapshot *StateSnapshot
}

// PieceEvent records one piece generation.
type PieceEvent struct {
	Timestamp time.Time
	Type      string
}

// ScoreDelta records one score transition between snapshots.
type ScoreDelta struct {
	Timestamp time.Time
	From      int64
	To        int64
}

// SuspiciousActivity is one flagged observation, client- or server-side.
type SuspiciousActivity struct {
	Category  string
	Severity  Severity
	Timestamp time.Time
	Evidence  map[string]interface{}
}

// StateFingerprint is a periodic tamper-evidence digest of session state.
type StateFingerprint struct {
	Timestamp time.Time
	Digest    string
}

// SessionRecord is the complete captured record of one play session.
// It is owned by a single instrumentation instance until sealed, and is
// read-only once submitted.
type SessionRecord struct {
	SessionID string
	PlayerID  string
	StartedAt time.Time

	Inputs       []InputEvent
	Snapshots    []StateSnapshot
	Pieces       []PieceEvent
	ScoreDeltas  []ScoreDelta
	Suspicious   []SuspiciousActivity
	Fingerprints []StateFingerprint

	FinalFingerprint string
	Sealed           bool
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists.
func (r *SessionRecord) LatestSnapshot() *StateSnapshot {
	if len(r.Snapshots) == 0 {
		return nil
	}
	return &r.Snapshots[len(r.Snapshots)-1]
}

// Verdict is the outcome of verifying one submitted session.
type Verdict struct {
	IsValid         bool
	FraudScore      float64
	Issues          []string
	Recommendations []string
}

// SessionSummary is the retained digest of one verified session, kept
// for cross-session comparison after the full payload is discarded.
type SessionSummary struct {
	SessionID   string
	SubmittedAt time.Time
	Score       int64
	FraudScore  float64
	IsValid     bool
	// Inputs is the submitted action sequence, kept for replay
	// similarity comparison against later sessions.
	Inputs []string
}

// PlayerProfile aggregates a player's verified history. It is created on
// the first session and updated incrementally; never deleted in scope.
type PlayerProfile struct {
	PlayerID     string
	SessionCount int
	AverageScore float64
	TotalRisk    float64
	LastVerdict  Verdict
	UpdatedAt    time.Time
}
