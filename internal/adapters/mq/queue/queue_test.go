package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/quarterforge/arcadeguard/internal/adapters/mq/queue"
	"github.com/quarterforge/arcadeguard/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func item(id string) queue.Item {
	return queue.Item{
		Payload:    &types.SubmissionPayload{SessionID: id, PlayerID: "player-1"},
		ReceivedAt: time.Now(),
	}
}

func TestEnqueueDequeue(t *testing.T) {
	Convey("Given an in-memory queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))

		Convey("When submissions are enqueued", func() {
			So(q.Enqueue(ctx, item("s1")), ShouldBeTrue)
			So(q.Enqueue(ctx, item("s2")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			Convey("Then they come out in order", func() {
				out := q.Dequeue(ctx)
				first := <-out
				second := <-out
				So(first.Payload.SessionID, ShouldEqual, "s1")
				So(second.Payload.SessionID, ShouldEqual, "s2")
			})
		})

		Convey("When the queue is full", func() {
			for i := 0; i < 4; i++ {
				So(q.Enqueue(ctx, item("s")), ShouldBeTrue)
			}

			Convey("Then further enqueues are rejected without blocking", func() {
				So(q.Enqueue(ctx, item("overflow")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 4)
			})
		})
	})
}

func TestClose(t *testing.T) {
	Convey("Given a queue with pending submissions", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue()
		So(q.Enqueue(ctx, item("s1")), ShouldBeTrue)

		Convey("When closed", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueues are rejected but drains complete", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, item("late")), ShouldBeFalse)

				out := q.Dequeue(ctx)
				drained := <-out
				So(drained.Payload.SessionID, ShouldEqual, "s1")
				_, open := <-out
				So(open, ShouldBeFalse)
			})

			Convey("And closing again is harmless", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
