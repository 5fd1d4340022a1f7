package model_test

import (
	"errors"
	"testing"

	"github.com/okian/leadrouter/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMotive(t *testing.T) {
	Convey("Given a plantonista motive matched on area", t, func() {
		m := model.FallbackPlantonista{Source: "sla_escalation", PreviousBrokerID: "b-1", Attempts: 6, Area: true}

		Convey("Then its tag carries the area suffix", func() {
			So(m.Type(), ShouldEqual, model.MotiveFallbackPlantonistaArea)
			So(m.Type().IsPlantonista(), ShouldBeTrue)
			So(m.Tier(), ShouldEqual, model.TierPlantonista)
		})

		Convey("When encoded and decoded", func() {
			raw, err := model.MarshalMotive(m)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"type":"fallback_plantonista_area"`)

			back, err := model.UnmarshalMotive(raw)
			So(err, ShouldBeNil)

			Convey("Then the area flag survives", func() {
				So(back, ShouldResemble, m)
			})
		})
	})

	Convey("Given an internal area match", t, func() {
		m := model.AreaMatchInternal{Source: "new_lead", Attempts: 2, Limit: 3}
		raw, err := model.MarshalMotive(m)
		So(err, ShouldBeNil)
		So(string(raw), ShouldContainSubstring, `"limit":3`)
		So(m.Type().IsPlantonista(), ShouldBeFalse)
	})

	Convey("Given stored motive payloads", t, func() {
		Convey("When the payload is empty or null", func() {
			m, err := model.UnmarshalMotive(nil)
			So(err, ShouldBeNil)
			So(m, ShouldBeNil)
			m, err = model.UnmarshalMotive([]byte("null"))
			So(err, ShouldBeNil)
			So(m, ShouldBeNil)
		})

		Convey("When the tag is unknown", func() {
			_, err := model.UnmarshalMotive([]byte(`{"type":"round_robin"}`))
			So(errors.Is(err, model.ErrUnknownMotive), ShouldBeTrue)
		})

		Convey("When the payload is not JSON", func() {
			_, err := model.UnmarshalMotive([]byte(`{`))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTier(t *testing.T) {
	Convey("Given the tier cascade", t, func() {
		So(model.TierExternal.Next(), ShouldEqual, model.TierInternal)
		So(model.TierInternal.Next(), ShouldEqual, model.TierPlantonista)
		So(model.TierPlantonista.Next(), ShouldEqual, model.TierPlantonista)

		Convey("When parsing names", func() {
			tier, err := model.ParseTier(" internal ")
			So(err, ShouldBeNil)
			So(tier, ShouldEqual, model.TierInternal)

			tier, err = model.ParseTier("")
			So(err, ShouldBeNil)
			So(tier, ShouldEqual, model.TierUnset)

			_, err = model.ParseTier("gold")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBrokerSet(t *testing.T) {
	Convey("Given an exclusion set", t, func() {
		base := model.NewBrokerSet("a", "", "b")

		Convey("Then empty ids are skipped", func() {
			So(len(base), ShouldEqual, 2)
		})

		Convey("When extending it", func() {
			extended := base.With("c")

			Convey("Then the original is left untouched", func() {
				So(base.Has("c"), ShouldBeFalse)
				So(extended.Has("c"), ShouldBeTrue)
				So(extended.Slice(), ShouldResemble, []string{"a", "b", "c"})
			})
		})

		Convey("Then a nil set answers membership", func() {
			var none model.BrokerSet
			So(none.Has("a"), ShouldBeFalse)
		})
	})

	Convey("Given a broker type read from storage", t, func() {
		So(model.BrokerType("").Normalize(), ShouldEqual, model.BrokerExternal)
		So(model.BrokerInternal.Normalize(), ShouldEqual, model.BrokerInternal)
	})
}
