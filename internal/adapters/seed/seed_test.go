package seed_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadrouter/internal/adapters/repository"
	"github.com/okian/leadrouter/internal/adapters/seed"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/selector"
	"github.com/okian/leadrouter/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

const fixture = `
params:
  external_attempt_limit: 2
brokers:
  - id: ext-1
    name: Bia
    email: bia@example.com
    type: External
    areas:
      - {state: SP, city: São Paulo}
  - id: duty-1
    name: Caio
    on_call: true
  - id: gone
    name: Gone
    active: false
clients:
  - {id: c-1, name: Ana, email: ana@example.com}
properties:
  - {id: 1, code: AP-1, title: Flat, state: SP, city: São Paulo}
prospects:
  - {property_id: 1, client_id: c-1, message: hello}
`

func TestSeed(t *testing.T) {
	Convey("Given a YAML fixture", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		Convey("When it is applied to an empty store", func() {
			store, err := repository.Open(ctx, ":memory:")
			So(err, ShouldBeNil)
			defer store.Close()

			f, err := seed.Decode(strings.NewReader(fixture))
			So(err, ShouldBeNil)
			sum, err := seed.Apply(ctx, store, f, now)
			So(err, ShouldBeNil)

			Convey("Then every record is written", func() {
				So(sum.Brokers, ShouldEqual, 3)
				So(sum.Clients, ShouldEqual, 1)
				So(sum.Properties, ShouldEqual, 1)
				So(sum.ProspectIDs, ShouldHaveLength, 1)

				pc, err := store.ProspectContext(ctx, sum.ProspectIDs[0])
				So(err, ShouldBeNil)
				So(pc.Area, ShouldResemble, model.Area{State: "SP", City: "São Paulo"})
				So(pc.ClientEmail, ShouldEqual, "ana@example.com")
			})

			Convey("Then brokers default to active and keep their coverage", func() {
				area := model.Area{State: "SP", City: "São Paulo"}
				cs, err := store.Candidates(ctx, selector.Filter{Type: model.BrokerExternal, Area: &area})
				So(err, ShouldBeNil)
				So(cs, ShouldHaveLength, 1)
				So(cs[0].Broker.ID, ShouldEqual, "ext-1")

				gone, err := store.Broker(ctx, "gone")
				So(err, ShouldBeNil)
				So(gone.Active, ShouldBeFalse)
			})

			Convey("Then only the given parameters are stored", func() {
				raw, err := store.GuardianParams(ctx)
				So(err, ShouldBeNil)
				So(*raw.ExternalAttemptLimit, ShouldEqual, 2)
				So(raw.InternalSLAMinutes, ShouldBeNil)
			})
		})

		Convey("When a broker has an unknown type", func() {
			_, err := seed.Decode(strings.NewReader("brokers:\n  - {id: x, type: Gold}\n"))
			So(errors.Is(err, seed.ErrInvalidFixture), ShouldBeTrue)
		})

		Convey("When the document has unknown keys", func() {
			_, err := seed.Decode(strings.NewReader("agents: []\n"))
			So(errors.Is(err, seed.ErrInvalidFixture), ShouldBeTrue)
		})

		Convey("When the document is empty", func() {
			f, err := seed.Decode(strings.NewReader(""))
			So(err, ShouldBeNil)
			So(f.Brokers, ShouldBeEmpty)
		})
	})
}
