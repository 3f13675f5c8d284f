package verify_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/types"
	"github.com/quarterforge/arcadeguard/internal/server/verify"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var base = time.Unix(1_700_000_000, 0)

// cleanMoves builds an unremarkable session: evenly spaced moves cycling
// through non-conflicting actions, modest score growth.
func cleanMoves(n int) ([]types.MoveRecord, []types.InputRecord) {
	cycle := []string{"move_left", "soft_drop", "move_right", "hold", "rotate_left", "hard_drop", "rotate_right"}
	moves := make([]types.MoveRecord, n)
	inputs := make([]types.InputRecord, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * 200 * time.Millisecond).UnixMilli()
		moves[i] = types.MoveRecord{
			Action:     cycle[i%len(cycle)],
			Timestamp:  ts,
			ScoreAfter: int64((i + 1) * 50),
		}
		inputs[i] = types.InputRecord{Action: cycle[i%len(cycle)], Timestamp: ts}
	}
	return moves, inputs
}

func cleanPieces(n int) []types.PieceRecord {
	cycle := []string{"T", "L", "S", "Z", "I", "O", "J"}
	pieces := make([]types.PieceRecord, n)
	for i := 0; i < n; i++ {
		pieces[i] = types.PieceRecord{
			Type:      cycle[i%len(cycle)],
			Timestamp: base.Add(time.Duration(i) * 800 * time.Millisecond).UnixMilli(),
		}
	}
	return pieces
}

func cleanPayload() *types.SubmissionPayload {
	moves, inputs := cleanMoves(40)
	return &types.SubmissionPayload{
		SessionID: "session-1",
		PlayerID:  "player-1",
		GameState: types.GameState{
			Score:         2000,
			Level:         3,
			Lines:         8,
			Moves:         moves,
			Pieces:        cleanPieces(12),
			InputPatterns: inputs,
		},
		VerificationData: []types.Fingerprint{
			{Timestamp: base.Add(5 * time.Second).UnixMilli(), Digest: "a1b2c3d4e5f60718"},
			{Timestamp: base.Add(10 * time.Second).UnixMilli(), Digest: "1122334455667788"},
		},
		FinalHash: "8877665544332211",
	}
}

func receipt() time.Time { return base.Add(time.Minute) }

func hasIssue(issues []string, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

func TestCleanSession(t *testing.T) {
	Convey("Given a clean evenly paced session", t, func() {
		eng := verify.New()
		verdict := eng.Verify(context.Background(), cleanPayload(), receipt())

		Convey("Then the verdict is valid with a zero fraud score", func() {
			So(verdict.IsValid, ShouldBeTrue)
			So(verdict.FraudScore, ShouldEqual, 0)
			So(verdict.Issues, ShouldBeEmpty)
			So(verdict.Recommendations, ShouldResemble, []string{"Session appears legitimate"})
		})

		Convey("And verification is deterministic", func() {
			again := verify.New().Verify(context.Background(), cleanPayload(), receipt())
			So(again.FraudScore, ShouldEqual, verdict.FraudScore)
			So(again.IsValid, ShouldEqual, verdict.IsValid)
			So(again.Issues, ShouldResemble, verdict.Issues)
		})
	})
}

func TestRepeatedInputs(t *testing.T) {
	Convey("Given a session ending in five identical rotations", t, func() {
		payload := cleanPayload()
		prefix := []string{"soft_drop", "hold", "move_left", "hard_drop", "move_right"}
		var inputs []types.InputRecord
		for i, action := range prefix {
			inputs = append(inputs, types.InputRecord{
				Action:    action,
				Timestamp: base.Add(time.Duration(i) * 200 * time.Millisecond).UnixMilli(),
			})
		}
		for i := 0; i < 5; i++ {
			inputs = append(inputs, types.InputRecord{
				Action:    "rotate_left",
				Timestamp: base.Add(time.Duration(len(prefix)+i) * 200 * time.Millisecond).UnixMilli(),
			})
		}
		payload.GameState.InputPatterns = inputs

		eng := verify.New()
		verdict := eng.Verify(context.Background(), payload, receipt())

		Convey("Then the repetition raises the score without invalidating", func() {
			So(verdict.FraudScore, ShouldAlmostEqual, 0.3, 1e-9)
			So(verdict.IsValid, ShouldBeTrue)
			So(hasIssue(verdict.Issues, "exact_repetition"), ShouldBeTrue)
		})
	})
}

func TestImpossibleScoreIncrease(t *testing.T) {
	Convey("Given a single move worth 1500 points", t, func() {
		payload := cleanPayload()
		last := len(payload.GameState.Moves) - 1
		payload.GameState.Moves[last].ScoreAfter = payload.GameState.Moves[last-1].ScoreAfter + 1500
		payload.GameState.Score = payload.GameState.Moves[last].ScoreAfter

		eng := verify.New()
		verdict := eng.Verify(context.Background(), payload, receipt())

		Convey("Then score manipulation plus its signature invalidate the session", func() {
			So(verdict.FraudScore, ShouldAlmostEqual, 0.9, 1e-9)
			So(verdict.IsValid, ShouldBeFalse)
			So(hasIssue(verdict.Issues, "Impossible score increase"), ShouldBeTrue)
			So(hasIssue(verdict.Issues, "score_injection"), ShouldBeTrue)
			So(verdict.Recommendations[0], ShouldEqual, "Immediate review required - suspend score submission")
		})

		Convey("And the session lands on the audit list", func() {
			audit := eng.AuditList()
			So(len(audit), ShouldEqual, 1)
			So(audit[0].SessionID, ShouldEqual, "session-1")
			So(audit[0].PlayerID, ShouldEqual, "player-1")
		})
	})
}

func TestStructuralMisses(t *testing.T) {
	Convey("Given a payload with every required field missing", t, func() {
		eng := verify.New()
		verdict := eng.Verify(context.Background(), &types.SubmissionPayload{}, receipt())

		Convey("Then every miss contributes and processing continues to a verdict", func() {
			So(verdict.FraudScore, ShouldAlmostEqual, 1.8, 1e-9)
			So(verdict.IsValid, ShouldBeFalse)
			So(hasIssue(verdict.Issues, "sessionId"), ShouldBeTrue)
			So(hasIssue(verdict.Issues, "finalHash"), ShouldBeTrue)
		})
	})
}

func TestTimingViolations(t *testing.T) {
	Convey("Given moves timestamped after receipt", t, func() {
		payload := cleanPayload()
		last := len(payload.GameState.Moves) - 1
		payload.GameState.Moves[last].Timestamp = receipt().Add(time.Hour).UnixMilli()

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then a timing violation is flagged", func() {
			So(hasIssue(verdict.Issues, "after receipt time"), ShouldBeTrue)
			So(hasIssue(verdict.Issues, "timing_manipulation"), ShouldBeTrue)
			So(verdict.FraudScore, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a fingerprint timestamped after receipt", t, func() {
		payload := cleanPayload()
		payload.VerificationData = append(payload.VerificationData, types.Fingerprint{
			Timestamp: receipt().Add(time.Hour).UnixMilli(),
			Digest:    "ffeeddccbbaa9988",
		})

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then the forged fingerprint is flagged like any future timestamp", func() {
			So(hasIssue(verdict.Issues, "Fingerprint 2 timestamped after receipt time"), ShouldBeTrue)
			So(hasIssue(verdict.Issues, "timing_manipulation"), ShouldBeTrue)
			So(verdict.FraudScore, ShouldAlmostEqual, 0.6, 1e-9)
		})
	})

	Convey("Given opposite-axis moves on the same tick", t, func() {
		payload := cleanPayload()
		ts := base.Add(30 * time.Second).UnixMilli()
		payload.GameState.Moves = append(payload.GameState.Moves,
			types.MoveRecord{Action: "move_left", Timestamp: ts, ScoreAfter: 2000},
			types.MoveRecord{Action: "move_right", Timestamp: ts, ScoreAfter: 2000},
		)

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then the simultaneity is called out", func() {
			So(hasIssue(verdict.Issues, "Opposite-axis moves on the same tick"), ShouldBeTrue)
		})
	})
}

func TestSpeedViolations(t *testing.T) {
	Convey("Given pieces generated 50ms apart", t, func() {
		payload := cleanPayload()
		payload.GameState.Pieces = []types.PieceRecord{
			{Type: "T", Timestamp: base.UnixMilli()},
			{Type: "L", Timestamp: base.Add(50 * time.Millisecond).UnixMilli()},
		}

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then speed hacking fires along with its signature", func() {
			So(verdict.FraudScore, ShouldAlmostEqual, 0.8, 1e-9)
			So(verdict.IsValid, ShouldBeFalse)
			So(hasIssue(verdict.Issues, "speed_hacking"), ShouldBeTrue)
		})
	})

	Convey("Given three identical consecutive pieces", t, func() {
		payload := cleanPayload()
		payload.GameState.Pieces = []types.PieceRecord{
			{Type: "I", Timestamp: base.UnixMilli()},
			{Type: "I", Timestamp: base.Add(time.Second).UnixMilli()},
			{Type: "I", Timestamp: base.Add(2 * time.Second).UnixMilli()},
		}

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then the replayed generation stream is flagged", func() {
			So(hasIssue(verdict.Issues, "identical consecutive pieces"), ShouldBeTrue)
		})
	})
}

func TestSelfReports(t *testing.T) {
	Convey("Given two client-reported suspicious activities", t, func() {
		payload := cleanPayload()
		payload.SuspiciousPatterns = []types.ReportedActivity{
			{Category: "rate_limit", Severity: "medium", Timestamp: base.UnixMilli()},
			{Category: "exact_repetition", Severity: "low", Timestamp: base.UnixMilli()},
		}

		verdict := verify.New().Verify(context.Background(), payload, receipt())

		Convey("Then each report adds its discounted weight", func() {
			So(verdict.FraudScore, ShouldAlmostEqual, 0.2, 1e-9)
			So(verdict.IsValid, ShouldBeTrue)
			So(hasIssue(verdict.Issues, "client-reported"), ShouldBeTrue)
		})
	})
}

func TestFaultDegradesToInvalid(t *testing.T) {
	Convey("Given a payload that faults the pipeline", t, func() {
		eng := verify.New()

		Convey("Then the fault degrades to an invalid verdict, never a crash", func() {
			var verdict = eng.Verify(context.Background(), nil, receipt())
			So(verdict.IsValid, ShouldBeFalse)
			So(verdict.FraudScore, ShouldEqual, 1.0)
			So(hasIssue(verdict.Issues, "fault"), ShouldBeTrue)
			So(len(eng.History()), ShouldEqual, 1)
		})
	})
}

func TestBoundedHistory(t *testing.T) {
	Convey("Given an engine with a two-verdict history limit", t, func() {
		eng := verify.New(verify.WithHistoryLimit(2), verify.WithAuditLimit(2))
		for i := 0; i < 4; i++ {
			payload := cleanPayload()
			payload.SessionID = fmt.Sprintf("session-%d", i)
			payload.FinalHash = ""
			payload.VerificationData = nil
			payload.GameState.Moves = nil
			eng.Verify(context.Background(), payload, receipt())
		}

		Convey("Then history and audit retain only the newest entries", func() {
			So(len(eng.History()), ShouldEqual, 2)
			audit := eng.AuditList()
			So(len(audit), ShouldEqual, 2)
			So(audit[1].SessionID, ShouldEqual, "session-3")
		})
	})
}

func TestClampedScores(t *testing.T) {
	Convey("Given an engine with clamping enabled", t, func() {
		eng := verify.New(verify.WithClamp(true))
		verdict := eng.Verify(context.Background(), &types.SubmissionPayload{}, receipt())

		Convey("Then the score is bounded to one", func() {
			So(verdict.FraudScore, ShouldEqual, 1.0)
			So(verdict.IsValid, ShouldBeFalse)
		})
	})
}
