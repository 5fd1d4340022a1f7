package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadrouter/internal/domain/model"
)

var (
	sp     = model.Area{State: "SP", City: "São Paulo"}
	rio    = model.Area{State: "RJ", City: "Rio de Janeiro"}
	origin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fakeBroker struct {
	cand  Candidate
	areas []model.Area
}

// memSource applies Filter the way the SQL source does.
type memSource struct {
	brokers []fakeBroker
	err     error
	filters []Filter
}

func (m *memSource) Candidates(_ context.Context, f Filter) ([]Candidate, error) {
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	var out []Candidate
	for _, b := range m.brokers {
		if !b.cand.Broker.Active || b.cand.Broker.OnCall != f.OnCall {
			continue
		}
		if f.Type != "" && b.cand.Broker.Type.Normalize() != f.Type {
			continue
		}
		if f.Area != nil && !covers(b.areas, *f.Area) {
			continue
		}
		out = append(out, b.cand)
	}
	return out, nil
}

func covers(areas []model.Area, a model.Area) bool {
	for _, x := range areas {
		if x == a {
			return true
		}
	}
	return false
}

func broker(id string, typ model.BrokerType, onCall bool, areas ...model.Area) fakeBroker {
	return fakeBroker{
		cand: Candidate{Broker: model.Broker{
			ID: id, Type: typ, OnCall: onCall, Active: true, CreatedAt: origin,
		}},
		areas: areas,
	}
}

func TestLess(t *testing.T) {
	Convey("Given two candidates", t, func() {
		a := Candidate{Broker: model.Broker{ID: "a", CreatedAt: origin}}
		b := Candidate{Broker: model.Broker{ID: "b", CreatedAt: origin}}
		earlier := origin.Add(time.Hour)
		later := origin.Add(2 * time.Hour)

		Convey("Fewer assignments wins first", func() {
			a.TotalAssignments, b.TotalAssignments = 3, 1
			a.Broker.ScoreLevel = 99
			So(Less(b, a), ShouldBeTrue)
			So(Less(a, b), ShouldBeFalse)
		})

		Convey("Never received beats any last-received time", func() {
			b.LastReceivedAt = &earlier
			So(Less(a, b), ShouldBeTrue)
			So(Less(b, a), ShouldBeFalse)
		})

		Convey("Older last-received wins", func() {
			a.LastReceivedAt, b.LastReceivedAt = &later, &earlier
			So(Less(b, a), ShouldBeTrue)
		})

		Convey("Higher level then higher xp wins", func() {
			a.Broker.ScoreLevel, b.Broker.ScoreLevel = 1, 2
			So(Less(b, a), ShouldBeTrue)
			a.Broker.ScoreLevel = 2
			a.Broker.ScoreXP, b.Broker.ScoreXP = 500, 100
			So(Less(a, b), ShouldBeTrue)
		})

		Convey("Older account wins, then id", func() {
			b.Broker.CreatedAt = origin.Add(-time.Hour)
			So(Less(b, a), ShouldBeTrue)
			b.Broker.CreatedAt = origin
			So(Less(a, b), ShouldBeTrue)
			So(Less(b, a), ShouldBeFalse)
		})
	})
}

func TestSelector(t *testing.T) {
	Convey("Given brokers in two areas", t, func() {
		ctx := context.Background()
		src := &memSource{brokers: []fakeBroker{
			broker("ext-1", model.BrokerExternal, false, sp),
			broker("ext-2", model.BrokerExternal, false, sp),
			broker("legacy", "", false, sp),
			broker("int-1", model.BrokerInternal, false, sp),
			broker("oncall-rio", model.BrokerInternal, true, rio),
			broker("oncall-sp", model.BrokerExternal, true, sp),
		}}
		src.brokers[0].cand.TotalAssignments = 4
		src.brokers[1].cand.TotalAssignments = 2
		src.brokers[2].cand.TotalAssignments = 2
		src.brokers[2].cand.Broker.ScoreLevel = 5
		s := New(src)

		Convey("When selecting External in SP", func() {
			res, err := s.External(ctx, sp, nil)

			Convey("Then the least loaded External broker wins, unset type reading as External", func() {
				So(err, ShouldBeNil)
				So(res.Broker.ID, ShouldEqual, "legacy")
				So(res.Tier, ShouldEqual, model.TierExternal)
				So(res.AreaMatch, ShouldBeTrue)
			})
		})

		Convey("When the preferred External broker is excluded", func() {
			res, err := s.External(ctx, sp, model.NewBrokerSet("legacy", "ext-2"))

			Convey("Then the next in order is chosen", func() {
				So(err, ShouldBeNil)
				So(res.Broker.ID, ShouldEqual, "ext-1")
			})
		})

		Convey("When selecting Internal in SP", func() {
			res, err := s.Internal(ctx, sp, nil)

			Convey("Then on-call brokers are not considered", func() {
				So(err, ShouldBeNil)
				So(res.Broker.ID, ShouldEqual, "int-1")
			})
		})

		Convey("When nobody regular covers the area", func() {
			res, err := s.External(ctx, rio, nil)

			Convey("Then the result is nil without error", func() {
				So(err, ShouldBeNil)
				So(res, ShouldBeNil)
			})
		})

		Convey("When selecting Plantonista in SP", func() {
			res, err := s.Select(ctx, model.TierPlantonista, sp, nil)

			Convey("Then the area phase wins regardless of broker type", func() {
				So(err, ShouldBeNil)
				So(res.Broker.ID, ShouldEqual, "oncall-sp")
				So(res.AreaMatch, ShouldBeTrue)
			})
		})

		Convey("When the area's on-call broker is excluded", func() {
			res, err := s.Plantonista(ctx, sp, model.NewBrokerSet("oncall-sp"))

			Convey("Then the global phase picks any on-call broker", func() {
				So(err, ShouldBeNil)
				So(res.Broker.ID, ShouldEqual, "oncall-rio")
				So(res.AreaMatch, ShouldBeFalse)
				So(src.filters[len(src.filters)-1].Area, ShouldBeNil)
			})
		})

		Convey("When every on-call broker is excluded", func() {
			res, err := s.Plantonista(ctx, sp, model.NewBrokerSet("oncall-sp", "oncall-rio"))

			Convey("Then nothing is found", func() {
				So(err, ShouldBeNil)
				So(res, ShouldBeNil)
			})
		})

		Convey("When the source fails", func() {
			src.err = errors.New("db down")
			_, err := s.Internal(ctx, sp, nil)

			Convey("Then the error is wrapped", func() {
				So(errors.Is(err, ErrCandidatesUnavailable), ShouldBeTrue)
			})
		})

		Convey("When asking for an unknown tier", func() {
			_, err := s.Select(ctx, model.TierUnset, sp, nil)

			Convey("Then ErrUnknownTier is returned", func() {
				So(errors.Is(err, ErrUnknownTier), ShouldBeTrue)
			})
		})
	})
}
