package model_test

import (
	"testing"
	"time"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKnownAction(t *testing.T) {
	Convey("Given the input action vocabulary", t, func() {
		Convey("Then every vocabulary action is known", func() {
			for _, a := range []model.Action{
				model.ActionMoveLeft, model.ActionMoveRight,
				model.ActionSoftDrop, model.ActionHardDrop,
				model.ActionRotateLeft, model.ActionRotateRight,
				model.ActionDrop, model.ActionHold,
				model.ActionPause, model.ActionResume,
			} {
				So(model.KnownAction(a), ShouldBeTrue)
			}
		})

		Convey("And anything outside the vocabulary is unknown", func() {
			So(model.KnownAction("teleport"), ShouldBeFalse)
			So(model.KnownAction(""), ShouldBeFalse)
			So(model.KnownAction("MOVE_LEFT"), ShouldBeFalse)
		})
	})
}

func TestSessionRecord(t *testing.T) {
	Convey("Given a session record", t, func() {
		rec := &model.SessionRecord{SessionID: "s1", PlayerID: "p1", StartedAt: time.Now()}

		Convey("Then the latest snapshot is nil when empty", func() {
			So(rec.LatestSnapshot(), ShouldBeNil)
		})

		Convey("When snapshots are appended", func() {
			rec.Snapshots = append(rec.Snapshots,
				model.StateSnapshot{Score: 100},
				model.StateSnapshot{Score: 300},
			)

			Convey("Then the latest snapshot is the last appended", func() {
				snap := rec.LatestSnapshot()
				So(snap, ShouldNotBeNil)
				So(snap.Score, ShouldEqual, 300)
			})
		})
	})
}
