package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/leadrouter/internal/adapters/mq/queue"
	"github.com/okian/leadrouter/internal/adapters/mq/worker"
	"github.com/okian/leadrouter/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) Handle(_ context.Context, item int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, item)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over an in-memory queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue[int](queue.WithName("test"), queue.WithCapacity(100))

		convey.Convey("When items are queued and the pool shuts down", func() {
			rec := &recorder{}
			pool := worker.NewPool[int](q, rec, worker.WithName("test"), worker.WithSize(4))
			pool.Start(ctx)
			pool.Start(ctx)
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, i), convey.ShouldBeNil)
			}

			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Shutdown(sctx)

			convey.Convey("Then every queued item is handled before workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.count(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the handler fails or panics", func() {
			var calls atomic.Int32
			h := worker.HandlerFunc[int](func(_ context.Context, item int) error {
				calls.Add(1)
				if item == 1 {
					panic("boom")
				}
				return errors.New("handler failed")
			})
			pool := worker.NewPool[int](q, h, worker.WithSize(1))
			pool.Start(ctx)
			convey.So(q.Enqueue(ctx, 1), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, 2), convey.ShouldBeNil)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(calls.Load(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a handler outlives the shutdown deadline", func() {
			release := make(chan struct{})
			h := worker.HandlerFunc[int](func(ctx context.Context, _ int) error {
				select {
				case <-release:
				case <-ctx.Done():
				}
				return nil
			})
			pool := worker.NewPool[int](q, h, worker.WithSize(1))
			pool.Start(ctx)
			convey.So(q.Enqueue(ctx, 1), convey.ShouldBeNil)
			time.Sleep(20 * time.Millisecond)

			sctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(sctx)
			close(release)

			convey.Convey("Then Shutdown reports the timeout", func() {
				convey.So(errors.Is(err, worker.ErrShutdownTimeout), convey.ShouldBeTrue)
			})
		})
	})
}
