package routing_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/leadrouter/internal/adapters/mq/queue"
	"github.com/okian/leadrouter/internal/adapters/repository"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/params"
	"github.com/okian/leadrouter/internal/domain/routing"
	"github.com/okian/leadrouter/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	goleak.VerifyTestMain(m)
}

var (
	start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sp    = model.Area{State: "SP", City: "São Paulo"}
	rj    = model.Area{State: "RJ", City: "Rio de Janeiro"}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.AssignmentEvent
	err    error
}

// Publish records e and then fails with err when one is set.
func (p *recordingPublisher) Publish(_ context.Context, e model.AssignmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) last() model.AssignmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	store *repository.SQLiteStore
	clock *clock
	pub   *recordingPublisher
	orch  *routing.Orchestrator
}

func newFixture(ctx context.Context) *fixture {
	store, err := repository.Open(ctx, ":memory:")
	So(err, ShouldBeNil)
	f := &fixture{store: store, clock: &clock{now: start}, pub: &recordingPublisher{}}
	f.orch = routing.NewOrchestrator(store, store, store, params.Static(model.DefaultGuardianConfig()),
		routing.WithPublisher(f.pub), routing.WithClock(f.clock.Now))
	return f
}

func (f *fixture) broker(ctx context.Context, b model.Broker, areas ...model.Area) {
	b.Active = true
	b.Name = b.ID
	b.Email = b.ID + "@example.com"
	if b.CreatedAt.IsZero() {
		b.CreatedAt = start.Add(-24 * time.Hour)
	}
	So(f.store.UpsertBroker(ctx, b, areas), ShouldBeNil)
}

// prospect stores a property in area with the given owner and returns a new prospect on it.
func (f *fixture) prospect(ctx context.Context, propertyID int64, area model.Area, owner string) int64 {
	So(f.store.UpsertClient(ctx, repository.Client{ID: "c-1", Name: "Ana", Email: "ana@example.com"}), ShouldBeNil)
	So(f.store.UpsertProperty(ctx, repository.Property{ID: propertyID, Code: "AP", Area: area, OwnerBrokerID: owner}), ShouldBeNil)
	id, err := f.store.CreateProspect(ctx, model.Prospect{PropertyID: propertyID, ClientID: "c-1", CreatedAt: start})
	So(err, ShouldBeNil)
	return id
}

func TestRoute(t *testing.T) {
	Convey("Given an orchestrator over an empty store", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)
		defer f.store.Close()

		Convey("When SP/São Paulo has one External and one Internal broker", func() {
			f.broker(ctx, model.Broker{ID: "ext-1", Type: model.BrokerExternal}, sp)
			f.broker(ctx, model.Broker{ID: "int-1", Type: model.BrokerInternal}, sp)
			id := f.prospect(ctx, 1, sp, "")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(err, ShouldBeNil)

			Convey("Then the External broker is assigned with a five minute deadline", func() {
				So(res.Duplicate, ShouldBeFalse)
				So(res.PassID, ShouldNotBeEmpty)
				So(res.Assignment.BrokerID, ShouldEqual, "ext-1")
				So(res.Assignment.Status, ShouldEqual, model.StatusAssigned)
				So(res.Assignment.ExpiresAt, ShouldNotBeNil)
				So(res.Assignment.ExpiresAt.Equal(start.Add(5*time.Minute)), ShouldBeTrue)
				So(res.Assignment.Motive, ShouldResemble, model.AreaMatchExternal{Source: routing.SourceNewLead, Attempts: 1, Limit: 3})
			})

			Convey("Then the broker is asked to accept", func() {
				So(f.pub.count(), ShouldEqual, 1)
				e := f.pub.last()
				So(e.Kind, ShouldEqual, model.EventAssignmentCreated)
				So(e.ID, ShouldNotBeEmpty)
				So(e.Informational(), ShouldBeFalse)
				So(e.Prospect.ClientEmail, ShouldEqual, "ana@example.com")
			})

			Convey("Then a second pass is a no-op", func() {
				again, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)
				So(again.Assignment.ID, ShouldEqual, res.Assignment.ID)

				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(f.pub.count(), ShouldEqual, 1)
			})
		})

		Convey("When many passes race on one prospect", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			f.broker(ctx, model.Broker{ID: "ext-2"}, sp)
			id := f.prospect(ctx, 1, sp, "")

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
					if err == nil && !res.Duplicate {
						mu.Lock()
						created++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one assignment exists", func() {
				So(created, ShouldEqual, 1)
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
			})
		})

		Convey("When three External attempts are already in history", func() {
			for _, b := range []string{"ext-1", "ext-2", "ext-3", "ext-4"} {
				f.broker(ctx, model.Broker{ID: b, Type: model.BrokerExternal}, sp)
			}
			f.broker(ctx, model.Broker{ID: "int-1", Type: model.BrokerInternal}, sp)
			id := f.prospect(ctx, 1, sp, "")
			for _, b := range []string{"ext-1", "ext-2", "ext-3"} {
				a, err := f.store.CreateAssignment(ctx, routing.NewAssignment{
					ProspectID: id, PropertyID: 1, BrokerID: b, Status: model.StatusAssigned,
					Motive: model.AreaMatchExternal{Source: routing.SourceNewLead}, CreatedAt: f.clock.Now(),
				})
				So(err, ShouldBeNil)
				_, err = f.store.ExpireAssignment(ctx, a.ID, f.clock.Now())
				So(err, ShouldBeNil)
				f.clock.Advance(time.Minute)
			}

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(err, ShouldBeNil)

			Convey("Then the Internal tier is used even though ext-4 is unvisited", func() {
				So(res.Assignment.BrokerID, ShouldEqual, "int-1")
				So(res.Decision.Tier, ShouldEqual, model.TierInternal)
				So(res.Assignment.ExpiresAt.Equal(f.clock.Now().Add(15*time.Minute)), ShouldBeTrue)
				So(res.Assignment.Motive, ShouldResemble, model.AreaMatchInternal{Source: routing.SourceNewLead, Attempts: 1, Limit: 3})
			})
		})

		Convey("When the property has an active owner", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			f.broker(ctx, model.Broker{ID: "owner"}, rj)
			id := f.prospect(ctx, 1, sp, "owner")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(err, ShouldBeNil)

			Convey("Then the owner gets it auto-accepted without a deadline", func() {
				So(res.Assignment.BrokerID, ShouldEqual, "owner")
				So(res.Assignment.Status, ShouldEqual, model.StatusAccepted)
				So(res.Assignment.ExpiresAt, ShouldBeNil)
				So(res.Decision.IsOwner, ShouldBeTrue)
				So(res.Assignment.Motive, ShouldResemble, model.FixedOwner{Source: routing.SourceNewLead})
			})

			Convey("Then the broker notice is informational", func() {
				So(f.pub.last().Informational(), ShouldBeTrue)
			})
		})

		Convey("When the owner is excluded by the caller", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			f.broker(ctx, model.Broker{ID: "owner"}, sp)
			id := f.prospect(ctx, 1, sp, "owner")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id, Exclude: model.NewBrokerSet("owner")})
			So(err, ShouldBeNil)
			So(res.Assignment.BrokerID, ShouldEqual, "ext-1")
			So(res.Decision.IsOwner, ShouldBeFalse)
		})

		Convey("When nobody covers the area but one on-call broker exists elsewhere", func() {
			f.broker(ctx, model.Broker{ID: "ext-rj"}, rj)
			f.broker(ctx, model.Broker{ID: "duty", OnCall: true}, rj)
			id := f.prospect(ctx, 1, sp, "")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(err, ShouldBeNil)

			Convey("Then the global on-call fallback takes it, auto-accepted", func() {
				So(res.Assignment.BrokerID, ShouldEqual, "duty")
				So(res.Assignment.Status, ShouldEqual, model.StatusAccepted)
				So(res.Assignment.ExpiresAt, ShouldBeNil)
				So(res.Assignment.Motive, ShouldResemble, model.FallbackPlantonista{Source: routing.SourceNewLead})
			})

			Convey("Then the on-call broker becomes the property owner", func() {
				pc, err := f.store.ProspectContext(ctx, id)
				So(err, ShouldBeNil)
				So(pc.OwnerBrokerID, ShouldEqual, "duty")
			})
		})

		Convey("When the fallback is forced", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			f.broker(ctx, model.Broker{ID: "duty-sp", OnCall: true}, sp)
			f.broker(ctx, model.Broker{ID: "duty-rj", OnCall: true}, rj)
			id := f.prospect(ctx, 1, sp, "")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id, ForceFallback: true})
			So(err, ShouldBeNil)
			So(res.Assignment.BrokerID, ShouldEqual, "duty-sp")
			So(res.Assignment.Motive, ShouldResemble, model.FallbackPlantonista{Source: routing.SourceNewLead, Area: true})
		})

		Convey("When a start tier is requested", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			f.broker(ctx, model.Broker{ID: "int-1", Type: model.BrokerInternal}, sp)
			id := f.prospect(ctx, 1, sp, "")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id, StartTier: model.TierInternal})
			So(err, ShouldBeNil)
			So(res.Assignment.BrokerID, ShouldEqual, "int-1")
		})

		Convey("When a tier is empty the next one is tried", func() {
			f.broker(ctx, model.Broker{ID: "int-1", Type: model.BrokerInternal}, sp)
			id := f.prospect(ctx, 1, sp, "")

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(err, ShouldBeNil)
			So(res.Assignment.BrokerID, ShouldEqual, "int-1")
			So(res.Decision.Tier, ShouldEqual, model.TierInternal)
		})

		Convey("When the notification queue rejects the event", func() {
			f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
			id := f.prospect(ctx, 1, sp, "")
			f.pub.fail(queue.ErrQueueFull)

			res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})

			Convey("Then the pass still succeeds and the row is kept", func() {
				So(err, ShouldBeNil)
				So(res.Assignment.BrokerID, ShouldEqual, "ext-1")
				So(f.pub.count(), ShouldEqual, 1)
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].ID, ShouldEqual, res.Assignment.ID)
				So(rows[0].Status, ShouldEqual, model.StatusAssigned)
			})
		})

		Convey("When no broker exists at all", func() {
			id := f.prospect(ctx, 1, sp, "")
			_, err := f.orch.Route(ctx, routing.Request{ProspectID: id})

			Convey("Then the pass fails and is audited", func() {
				So(errors.Is(err, routing.ErrNoEligibleBroker), ShouldBeTrue)
				logs, err := f.store.AuditLog(ctx, id)
				So(err, ShouldBeNil)
				So(logs, ShouldHaveLength, 1)
				So(logs[0].Action, ShouldEqual, routing.AuditRoutingFailed)
			})
		})

		Convey("When the prospect is unknown or has no location", func() {
			_, err := f.orch.Route(ctx, routing.Request{ProspectID: 404})
			So(errors.Is(err, routing.ErrProspectNotFound), ShouldBeTrue)

			id := f.prospect(ctx, 1, model.Area{State: "SP"}, "")
			_, err = f.orch.Route(ctx, routing.Request{ProspectID: id})
			So(errors.Is(err, routing.ErrMissingLocation), ShouldBeTrue)
		})
	})
}

func TestAcceptReject(t *testing.T) {
	Convey("Given a pending assignment", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)
		defer f.store.Close()
		f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
		f.broker(ctx, model.Broker{ID: "ext-2"}, sp)
		id := f.prospect(ctx, 1, sp, "")
		res, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
		So(err, ShouldBeNil)
		So(res.Assignment.BrokerID, ShouldEqual, "ext-1")

		Convey("When the broker accepts in time", func() {
			f.clock.Advance(time.Minute)
			a, err := f.orch.Accept(ctx, id, "ext-1")
			So(err, ShouldBeNil)

			Convey("Then the row is accepted, the owner linked and the client notified", func() {
				So(a.Status, ShouldEqual, model.StatusAccepted)
				So(a.AcceptedAt.Equal(f.clock.Now()), ShouldBeTrue)
				pc, err := f.store.ProspectContext(ctx, id)
				So(err, ShouldBeNil)
				So(pc.OwnerBrokerID, ShouldEqual, "ext-1")
				e := f.pub.last()
				So(e.Kind, ShouldEqual, model.EventAssignmentAccepted)
				So(e.Tier, ShouldEqual, model.TierExternal)
			})
		})

		Convey("When the broker accepts after the deadline", func() {
			f.clock.Advance(5 * time.Minute)
			_, err := f.orch.Accept(ctx, id, "ext-1")
			So(errors.Is(err, routing.ErrAssignmentExpired), ShouldBeTrue)
		})

		Convey("When another broker tries to accept", func() {
			_, err := f.orch.Accept(ctx, id, "ext-2")
			So(errors.Is(err, routing.ErrAssignmentNotFound), ShouldBeTrue)
		})

		Convey("When the broker rejects", func() {
			next, err := f.orch.Reject(ctx, id, "ext-1")
			So(err, ShouldBeNil)

			Convey("Then the lead moves to the next broker", func() {
				So(next.Assignment.BrokerID, ShouldEqual, "ext-2")
				So(next.Assignment.Motive, ShouldResemble, model.AreaMatchExternal{
					Source: routing.SourceRejection, PreviousBrokerID: "ext-1", Attempts: 2, Limit: 3,
				})
				So(f.pub.last().PreviousBrokerID, ShouldEqual, "ext-1")
			})
		})
	})
}

func TestSweeper(t *testing.T) {
	Convey("Given an assignment past its deadline", t, func() {
		ctx := context.Background()
		f := newFixture(ctx)
		defer f.store.Close()
		f.broker(ctx, model.Broker{ID: "ext-1"}, sp)
		f.broker(ctx, model.Broker{ID: "ext-2"}, sp)
		id := f.prospect(ctx, 1, sp, "")
		_, err := f.orch.Route(ctx, routing.Request{ProspectID: id})
		So(err, ShouldBeNil)
		f.clock.Advance(6 * time.Minute)

		sw := routing.NewSweeper(f.store, f.orch, params.Static(model.DefaultGuardianConfig()),
			routing.WithSweepClock(f.clock.Now), routing.WithBatchSize(10), routing.WithConcurrency(2))

		Convey("When the sweep runs", func() {
			report, err := sw.RunOnce(ctx)
			So(err, ShouldBeNil)

			Convey("Then the row expires and the lead escalates to the next broker", func() {
				So(report.Scanned, ShouldEqual, 1)
				So(report.Expired, ShouldEqual, 1)
				So(report.Rerouted, ShouldEqual, 1)

				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Status, ShouldEqual, model.StatusExpired)
				So(rows[1].BrokerID, ShouldEqual, "ext-2")
				So(rows[1].Motive, ShouldResemble, model.AreaMatchExternal{
					Source: routing.SourceSLAEscalation, PreviousBrokerID: "ext-1", Attempts: 2, Limit: 3,
				})
				So(f.pub.last().PreviousBrokerID, ShouldEqual, "ext-1")
			})

			Convey("Then a second sweep finds nothing", func() {
				again, err := sw.RunOnce(ctx)
				So(err, ShouldBeNil)
				So(again.Scanned, ShouldEqual, 0)
			})
		})

		Convey("When a fixed-owner row carries a stale deadline", func() {
			f.broker(ctx, model.Broker{ID: "owner"}, sp)
			other := f.prospect(ctx, 2, sp, "owner")
			stale := start
			_, err := f.store.CreateAssignment(ctx, routing.NewAssignment{
				ProspectID: other, PropertyID: 2, BrokerID: "owner", Status: model.StatusAssigned,
				Motive: model.FixedOwner{Source: routing.SourceNewLead}, ExpiresAt: &stale, CreatedAt: start,
			})
			So(err, ShouldBeNil)

			report, err := sw.RunOnce(ctx)
			So(err, ShouldBeNil)

			Convey("Then it is normalized instead of expired", func() {
				So(report.Normalized, ShouldEqual, 1)
				So(report.Scanned, ShouldEqual, 1)
				rows, err := f.store.Assignments(ctx, other)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Status, ShouldEqual, model.StatusAssigned)
			})
		})

		Convey("When the re-route fails on storage", func() {
			failing := routerFunc(func(context.Context, routing.Request) (routing.Result, error) {
				return routing.Result{}, repository.ErrStorage
			})
			flaky := routing.NewSweeper(f.store, failing, params.Static(model.DefaultGuardianConfig()),
				routing.WithSweepClock(f.clock.Now))

			report, err := flaky.RunOnce(ctx)
			So(err, ShouldBeNil)

			Convey("Then the row is reinstated for the next sweep", func() {
				So(report.Scanned, ShouldEqual, 1)
				So(report.Failed, ShouldEqual, 1)
				So(report.Expired, ShouldEqual, 0)
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Status, ShouldEqual, model.StatusAssigned)

				logs, err := f.store.AuditLog(ctx, id)
				So(err, ShouldBeNil)
				So(logs[len(logs)-1].Action, ShouldEqual, routing.AuditExpiryReverted)
			})

			Convey("Then a healthy sweep escalates it", func() {
				report, err := sw.RunOnce(ctx)
				So(err, ShouldBeNil)
				So(report.Rerouted, ShouldEqual, 1)
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].Status, ShouldEqual, model.StatusExpired)
				So(rows[1].BrokerID, ShouldEqual, "ext-2")
			})
		})

		Convey("When a sweep is already running", func() {
			release := make(chan struct{})
			entered := make(chan struct{})
			blocking := routerFunc(func(ctx context.Context, req routing.Request) (routing.Result, error) {
				close(entered)
				<-release
				return routing.Result{}, nil
			})
			slow := routing.NewSweeper(f.store, blocking, params.Static(model.DefaultGuardianConfig()),
				routing.WithSweepClock(f.clock.Now))

			done := make(chan error, 1)
			go func() {
				_, err := slow.RunOnce(ctx)
				done <- err
			}()
			<-entered

			_, err := slow.RunOnce(ctx)
			close(release)

			Convey("Then the overlapping run is refused", func() {
				So(errors.Is(err, routing.ErrSweepInProgress), ShouldBeTrue)
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When Run is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			tick := routing.NewSweeper(f.store, f.orch, params.Static(model.DefaultGuardianConfig()),
				routing.WithSweepClock(f.clock.Now), routing.WithInterval(10*time.Millisecond))
			done := make(chan error, 1)
			go func() { done <- tick.Run(runCtx) }()

			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				if len(rows) == 2 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			Convey("Then it has swept and returns cleanly", func() {
				So(<-done, ShouldBeNil)
				rows, err := f.store.Assignments(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
			})
		})
	})
}

type routerFunc func(ctx context.Context, req routing.Request) (routing.Result, error)

func (f routerFunc) Route(ctx context.Context, req routing.Request) (routing.Result, error) {
	return f(ctx, req)
}
