package params

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

type fakeSource struct {
	raw   Raw
	err   error
	calls atomic.Int32
}

func (f *fakeSource) GuardianParams(context.Context) (Raw, error) {
	f.calls.Add(1)
	return f.raw, f.err
}

func intp(v int) *int { return &v }

func TestProvider(t *testing.T) {
	Convey("Given a parameter provider", t, func() {
		ctx := context.Background()

		Convey("When the source returns every value", func() {
			src := &fakeSource{raw: Raw{
				ExternalAttemptLimit: intp(2),
				ExternalSLAMinutes:   intp(10),
				InternalAttemptLimit: intp(4),
				InternalSLAMinutes:   intp(30),
			}}
			cfg := NewProvider(src).GuardianConfig(ctx)

			Convey("Then the values pass through", func() {
				So(cfg, ShouldResemble, model.GuardianConfig{
					ExternalAttemptLimit: 2,
					ExternalSLAMinutes:   10,
					InternalAttemptLimit: 4,
					InternalSLAMinutes:   30,
				})
			})
		})

		Convey("When the source fails", func() {
			src := &fakeSource{err: errors.New("db down")}
			cfg := NewProvider(src).GuardianConfig(ctx)

			Convey("Then the defaults are returned", func() {
				So(cfg, ShouldResemble, model.DefaultGuardianConfig())
			})
		})

		Convey("When values are missing, zero or negative", func() {
			src := &fakeSource{raw: Raw{
				ExternalAttemptLimit: intp(0),
				ExternalSLAMinutes:   intp(-5),
				InternalAttemptLimit: intp(7),
			}}
			cfg := NewProvider(src).GuardianConfig(ctx)

			Convey("Then each bad field falls back on its own", func() {
				So(cfg.ExternalAttemptLimit, ShouldEqual, model.DefaultExternalAttemptLimit)
				So(cfg.ExternalSLAMinutes, ShouldEqual, model.DefaultExternalSLAMinutes)
				So(cfg.InternalAttemptLimit, ShouldEqual, 7)
				So(cfg.InternalSLAMinutes, ShouldEqual, model.DefaultInternalSLAMinutes)
			})
		})
	})
}

func TestCachedProvider(t *testing.T) {
	Convey("Given a cached provider", t, func() {
		ctx := context.Background()
		src := &fakeSource{raw: Raw{ExternalAttemptLimit: intp(9)}}

		Convey("When loading twice within the TTL", func() {
			cached, err := NewCachedProvider(NewProvider(src), time.Minute)
			So(err, ShouldBeNil)
			defer cached.Close()

			first := cached.GuardianConfig(ctx)
			second := cached.GuardianConfig(ctx)

			Convey("Then the source is read once", func() {
				So(first.ExternalAttemptLimit, ShouldEqual, 9)
				So(second, ShouldResemble, first)
				So(src.calls.Load(), ShouldEqual, 1)
			})

			Convey("And Invalidate forces a reload", func() {
				cached.Invalidate()
				_ = cached.GuardianConfig(ctx)
				So(src.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the TTL elapses", func() {
			cached, err := NewCachedProvider(NewProvider(src), 20*time.Millisecond)
			So(err, ShouldBeNil)
			defer cached.Close()

			_ = cached.GuardianConfig(ctx)
			time.Sleep(60 * time.Millisecond)
			_ = cached.GuardianConfig(ctx)

			Convey("Then the source is read again", func() {
				So(src.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestStatic(t *testing.T) {
	Convey("Given a static loader", t, func() {
		want := model.GuardianConfig{ExternalAttemptLimit: 1, ExternalSLAMinutes: 1, InternalAttemptLimit: 1, InternalSLAMinutes: 1}
		So(Static(want).GuardianConfig(context.Background()), ShouldResemble, want)
	})
}
