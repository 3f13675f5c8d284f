package crosssession_test

import (
	"context"
	"testing"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/repository"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	"github.com/quarterforge/arcadeguard/internal/server/crosssession"
	"github.com/quarterforge/arcadeguard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var base = time.Unix(1_700_000_000, 0)

func inputStream(n int) []string {
	cycle := []string{"move_left", "soft_drop", "move_right", "hold", "rotate_left", "hard_drop", "rotate_right"}
	out := make([]string, n)
	for i := range out {
		out[i] = cycle[i%len(cycle)]
	}
	return out
}

func session(id string, score int64, at time.Time, inputs []string) model.SessionSummary {
	return model.SessionSummary{
		SessionID:   id,
		SubmittedAt: at,
		Score:       score,
		IsValid:     true,
		Inputs:      inputs,
	}
}

func cleanVerdict() model.Verdict { return model.Verdict{IsValid: true} }

func TestFirstSession(t *testing.T) {
	Convey("Given a player with no history", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		report, err := a.Analyze(context.Background(), "player-1",
			session("s1", 5000, base, inputStream(20)), cleanVerdict())

		Convey("Then nothing is flagged and the profile starts", func() {
			So(err, ShouldBeNil)
			So(report.Findings, ShouldBeEmpty)
			So(report.RiskScore, ShouldEqual, 0)
			So(report.Profile.SessionCount, ShouldEqual, 1)
		})
	})
}

func TestScoreJump(t *testing.T) {
	Convey("Given a player whose score leaps by more than the jump bound", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		_, err := a.Analyze(context.Background(), "player-1",
			session("s1", 4000, base, inputStream(12)), cleanVerdict())
		So(err, ShouldBeNil)

		report, err := a.Analyze(context.Background(), "player-1",
			session("s2", 90_000, base.Add(time.Hour), inputStream(13)), cleanVerdict())

		Convey("Then the jump is flagged with its weight", func() {
			So(err, ShouldBeNil)
			So(len(report.Findings), ShouldEqual, 1)
			So(report.Findings[0].Category, ShouldEqual, crosssession.CategoryScoreJump)
			So(report.RiskScore, ShouldAlmostEqual, 0.3, 1e-9)
		})
	})
}

func TestRapidResubmission(t *testing.T) {
	Convey("Given two sessions submitted 300ms apart", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		_, err := a.Analyze(context.Background(), "player-1",
			session("s1", 4000, base, inputStream(12)), cleanVerdict())
		So(err, ShouldBeNil)

		report, err := a.Analyze(context.Background(), "player-1",
			session("s2", 4100, base.Add(300*time.Millisecond), inputStream(13)), cleanVerdict())

		Convey("Then the impossible turnaround is flagged", func() {
			So(err, ShouldBeNil)
			So(len(report.Findings), ShouldEqual, 1)
			So(report.Findings[0].Category, ShouldEqual, crosssession.CategoryRapidResubmission)
		})
	})
}

func TestReplayedInputs(t *testing.T) {
	Convey("Given a session whose inputs mirror an earlier one", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		stream := inputStream(40)
		_, err := a.Analyze(context.Background(), "player-1",
			session("s1", 4000, base, stream), cleanVerdict())
		So(err, ShouldBeNil)

		replay := make([]string, len(stream))
		copy(replay, stream)
		replay[len(replay)-1] = "hold"
		report, err := a.Analyze(context.Background(), "player-1",
			session("s2", 4100, base.Add(time.Hour), replay), cleanVerdict())

		Convey("Then the near-identical stream is flagged as a replay", func() {
			So(err, ShouldBeNil)
			So(len(report.Findings), ShouldEqual, 1)
			So(report.Findings[0].Category, ShouldEqual, crosssession.CategoryInputReplay)
			So(report.Findings[0].Detail, ShouldContainSubstring, "s1")
		})

		Convey("And an insertion mid-stream does not hide the replay", func() {
			padded := make([]string, 0, len(stream)+1)
			padded = append(padded, stream[:20]...)
			padded = append(padded, "hold")
			padded = append(padded, stream[20:]...)
			report, err := a.Analyze(context.Background(), "player-1",
				session("s4", 4300, base.Add(3*time.Hour), padded), cleanVerdict())

			Convey("Then the offset stream still matches session s1", func() {
				So(err, ShouldBeNil)
				var categories []string
				for _, f := range report.Findings {
					categories = append(categories, f.Category)
				}
				So(categories, ShouldContain, crosssession.CategoryInputReplay)
			})
		})

		Convey("But a genuinely different stream of the same length is not", func() {
			different := make([]string, len(stream))
			for i := range different {
				different[i] = stream[(i+3)%len(stream)]
			}
			clean, err := a.Analyze(context.Background(), "player-1",
				session("s3", 4200, base.Add(2*time.Hour), different), cleanVerdict())
			So(err, ShouldBeNil)
			for _, f := range clean.Findings {
				So(f.Category, ShouldNotEqual, crosssession.CategoryInputReplay)
			}
		})
	})
}

func TestScoreOutlier(t *testing.T) {
	Convey("Given a steady player who suddenly quadruples the average", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		for i, score := range []int64{1000, 1200, 1100} {
			stream := append(inputStream(15), inputStream(i+1)...)
			_, err := a.Analyze(context.Background(), "player-1",
				session(string(rune('a'+i)), score, base.Add(time.Duration(i)*time.Hour), stream), cleanVerdict())
			So(err, ShouldBeNil)
		}

		report, err := a.Analyze(context.Background(), "player-1",
			session("spike", 4800, base.Add(10*time.Hour), inputStream(33)), cleanVerdict())

		Convey("Then the outlier is flagged against the rolling average", func() {
			So(err, ShouldBeNil)
			So(len(report.Findings), ShouldEqual, 1)
			So(report.Findings[0].Category, ShouldEqual, crosssession.CategoryScoreOutlier)
		})
	})
}

func TestCompoundFindings(t *testing.T) {
	Convey("Given a session tripping jump, turnaround, and replay at once", t, func() {
		a := crosssession.New(repository.NewMemoryStore())
		stream := inputStream(40)
		_, err := a.Analyze(context.Background(), "player-1",
			session("s1", 4000, base, stream), cleanVerdict())
		So(err, ShouldBeNil)

		report, err := a.Analyze(context.Background(), "player-1",
			session("s2", 80_000, base.Add(100*time.Millisecond), stream), cleanVerdict())

		Convey("Then risk accumulates across findings", func() {
			So(err, ShouldBeNil)
			So(len(report.Findings), ShouldEqual, 3)
			So(report.RiskScore, ShouldAlmostEqual, 0.9, 1e-9)
		})

		Convey("And the risk lands on the stored profile", func() {
			So(err, ShouldBeNil)
			So(report.Profile.TotalRisk, ShouldAlmostEqual, 0.9, 1e-9)
		})
	})
}
