package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/repository"
	"github.com/quarterforge/arcadeguard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func summary(id string, score int64, at time.Time) model.SessionSummary {
	return model.SessionSummary{
		SessionID:   id,
		SubmittedAt: at,
		Score:       score,
		IsValid:     true,
		Inputs:      []string{"move_left", "hard_drop"},
	}
}

func TestRecordSession(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		base := time.Unix(50000, 0)

		Convey("When the first session is recorded", func() {
			profile, prior, err := store.RecordSession(ctx, "player-1",
				summary("s1", 1000, base), model.Verdict{IsValid: true, FraudScore: 0.1})

			Convey("Then a fresh profile is created with empty prior history", func() {
				So(err, ShouldBeNil)
				So(prior, ShouldBeEmpty)
				So(profile.PlayerID, ShouldEqual, "player-1")
				So(profile.SessionCount, ShouldEqual, 1)
				So(profile.AverageScore, ShouldEqual, 1000)
				So(profile.TotalRisk, ShouldAlmostEqual, 0.1, 1e-9)
			})
		})

		Convey("When two sessions are recorded", func() {
			_, _, err := store.RecordSession(ctx, "player-1",
				summary("s1", 1000, base), model.Verdict{IsValid: true, FraudScore: 0.1})
			So(err, ShouldBeNil)
			profile, prior, err := store.RecordSession(ctx, "player-1",
				summary("s2", 3000, base.Add(time.Hour)), model.Verdict{IsValid: true, FraudScore: 0.3})

			Convey("Then aggregates roll forward and prior history holds the first", func() {
				So(err, ShouldBeNil)
				So(len(prior), ShouldEqual, 1)
				So(prior[0].SessionID, ShouldEqual, "s1")
				So(profile.SessionCount, ShouldEqual, 2)
				So(profile.AverageScore, ShouldEqual, 2000)
				So(profile.TotalRisk, ShouldAlmostEqual, 0.4, 1e-9)
				So(profile.UpdatedAt.Equal(base.Add(time.Hour)), ShouldBeTrue)
			})
		})

		Convey("When more sessions arrive than the history limit", func() {
			bounded := repository.NewMemoryStore(repository.WithHistoryLimit(3))
			for i := 0; i < 5; i++ {
				_, _, err := bounded.RecordSession(ctx, "player-1",
					summary(fmt.Sprintf("s%d", i), int64(i*100), base.Add(time.Duration(i)*time.Minute)),
					model.Verdict{IsValid: true})
				So(err, ShouldBeNil)
			}
			history, err := bounded.History(ctx, "player-1")

			Convey("Then only the newest summaries are retained", func() {
				So(err, ShouldBeNil)
				So(len(history), ShouldEqual, 3)
				So(history[0].SessionID, ShouldEqual, "s2")
				So(history[2].SessionID, ShouldEqual, "s4")
			})

			Convey("But the profile still counts every session", func() {
				profile, err := bounded.Profile(ctx, "player-1")
				So(err, ShouldBeNil)
				So(profile.SessionCount, ShouldEqual, 5)
			})
		})
	})
}

func TestAddRisk(t *testing.T) {
	Convey("Given a player with a recorded session", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		base := time.Unix(55000, 0)
		_, _, err := store.RecordSession(ctx, "player-1",
			summary("s1", 1000, base), model.Verdict{IsValid: true, FraudScore: 0.2})
		So(err, ShouldBeNil)

		Convey("When cross-session risk is folded in", func() {
			profile, err := store.AddRisk(ctx, "player-1", 0.5)

			Convey("Then it accumulates on top of the verdict contributions", func() {
				So(err, ShouldBeNil)
				So(profile.TotalRisk, ShouldAlmostEqual, 0.7, 1e-9)

				stored, err := store.Profile(ctx, "player-1")
				So(err, ShouldBeNil)
				So(stored.TotalRisk, ShouldAlmostEqual, 0.7, 1e-9)
			})
		})

		Convey("When risk is added for an unknown player", func() {
			_, err := store.AddRisk(ctx, "ghost", 0.5)
			So(errors.Is(err, repository.ErrProfileNotFound), ShouldBeTrue)
		})
	})
}

func TestLookups(t *testing.T) {
	Convey("Given a store without a given player", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		Convey("Then profile lookup reports not found", func() {
			_, err := store.Profile(ctx, "ghost")
			So(errors.Is(err, repository.ErrProfileNotFound), ShouldBeTrue)
		})

		Convey("And history lookup reports not found", func() {
			_, err := store.History(ctx, "ghost")
			So(errors.Is(err, repository.ErrProfileNotFound), ShouldBeTrue)
		})

		Convey("And the player count is zero", func() {
			n, err := store.Players(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestConcurrentRecording(t *testing.T) {
	Convey("Given concurrent submissions from many players", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		base := time.Unix(60000, 0)

		var wg sync.WaitGroup
		for p := 0; p < 8; p++ {
			playerID := fmt.Sprintf("player-%d", p)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(id string, i int) {
					defer wg.Done()
					_, _, _ = store.RecordSession(ctx, id,
						summary(fmt.Sprintf("s%d", i), 100, base), model.Verdict{IsValid: true})
				}(playerID, i)
			}
		}
		wg.Wait()

		Convey("Then every player's count is exact", func() {
			for p := 0; p < 8; p++ {
				profile, err := store.Profile(ctx, fmt.Sprintf("player-%d", p))
				So(err, ShouldBeNil)
				So(profile.SessionCount, ShouldEqual, 20)
			}
			n, err := store.Players(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 8)
		})
	})
}
