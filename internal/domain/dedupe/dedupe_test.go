package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadrouter/internal/domain/dedupe"
)

func newDeduper(opts ...dedupe.Option) dedupe.Deduper {
	d, err := dedupe.NewInMemoryDeduper(opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When recording a trigger key twice", func() {
			d := newDeduper()
			first := d.SeenAndRecord(ctx, "route:42:req-1")
			second := d.SeenAndRecord(ctx, "route:42:req-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded key is unrecorded", func() {
			d := newDeduper()
			d.SeenAndRecord(ctx, "route:42:req-1")
			d.Unrecord(ctx, "route:42:req-1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "route:42:req-1"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is over capacity", func() {
			d := newDeduper(dedupe.WithMaxSize(3))
			for _, id := range []string{"e-1", "e-2", "e-3", "e-4"} {
				So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
			}

			Convey("Then the oldest key is evicted and the newest kept", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "e-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "e-1"), ShouldBeFalse)
			})
		})

		Convey("When a non-positive size is requested", func() {
			d := newDeduper(dedupe.WithMaxSize(0))

			Convey("Then the default capacity applies", func() {
				for i := 0; i < 1000; i++ {
					d.SeenAndRecord(ctx, fmt.Sprintf("e-%d", i))
				}
				So(d.Size(), ShouldEqual, 1000)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by goroutines", t, func() {
		d := newDeduper(dedupe.WithMaxSize(1000))
		const goroutines = 10

		Convey("When all of them race on the same keys", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						if !d.SeenAndRecord(context.Background(), fmt.Sprintf("e-%d", j)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each key is fresh exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
