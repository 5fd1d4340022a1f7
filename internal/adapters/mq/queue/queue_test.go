package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type trigger struct {
	ProspectID int64
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue[trigger](WithName("test"), WithCapacity(2))
		defer func() { _ = q.Close() }()

		Convey("When filling it past capacity", func() {
			So(q.Enqueue(ctx, trigger{1}), ShouldBeNil)
			So(q.Enqueue(ctx, trigger{2}), ShouldBeNil)
			err := q.Enqueue(ctx, trigger{3})

			Convey("Then the extra item is rejected without blocking", func() {
				So(errors.Is(err, ErrQueueFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("When consuming", func() {
			So(q.Enqueue(ctx, trigger{7}), ShouldBeNil)
			dctx, cancel := context.WithCancel(ctx)
			defer cancel()
			got := <-q.Dequeue(dctx)

			Convey("Then items arrive in order", func() {
				So(got.ProspectID, ShouldEqual, 7)
			})
		})

		Convey("When closed", func() {
			So(q.Enqueue(ctx, trigger{1}), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails and queued items still drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, trigger{2}), ErrQueueClosed), ShouldBeTrue)

				var drained []trigger
				for item := range q.Dequeue(ctx) {
					drained = append(drained, item)
				}
				So(drained, ShouldResemble, []trigger{{1}})
			})
		})

		Convey("When the consumer context is cancelled", func() {
			dctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(dctx)
			cancel()

			Convey("Then the channel closes", func() {
				select {
				case _, ok := <-ch:
					So(ok, ShouldBeFalse)
				case <-time.After(time.Second):
					So("timeout", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestInMemoryQueueConcurrentProducers(t *testing.T) {
	Convey("Given concurrent producers", t, func() {
		q := NewInMemoryQueue[trigger](WithCapacity(1000))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(base int64) {
				defer wg.Done()
				for j := int64(0); j < 100; j++ {
					_ = q.Enqueue(context.Background(), trigger{base*100 + j})
				}
			}(int64(i))
		}
		wg.Wait()
		So(q.Len(), ShouldEqual, 1000)
		So(q.Close(), ShouldBeNil)
	})
}
