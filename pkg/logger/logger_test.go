package logger_test

import (
	"context"
	"testing"

	"github.com/quarterforge/arcadeguard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(logger.Init(), ShouldBeNil)

		Convey("Then Get returns a usable logger", func() {
			l := logger.Get()
			So(l, ShouldNotBeNil)
			So(func() {
				l.Info(context.Background(), "hello",
					logger.String("k", "v"),
					logger.Int("n", 1),
					logger.Bool("b", true),
				)
			}, ShouldNotPanic)
		})

		Convey("And Named returns a child logger", func() {
			So(logger.Named("verify"), ShouldNotBeNil)
		})

		Convey("When setting levels from strings", func() {
			So(logger.SetLevelString("debug"), ShouldBeNil)
			So(logger.SetLevelString("WARN"), ShouldBeNil)
			So(logger.SetLevelString(""), ShouldBeNil)

			Convey("Then unknown levels are rejected", func() {
				So(logger.SetLevelString("loud"), ShouldNotBeNil)
			})
		})
	})
}

func TestInitJSON(t *testing.T) {
	Convey("Given a JSON-initialized logger", t, func() {
		So(logger.InitJSON(), ShouldBeNil)
		So(func() {
			logger.Get().Warn(context.Background(), "structured", logger.Float64("score", 0.4))
		}, ShouldNotPanic)
	})
}
