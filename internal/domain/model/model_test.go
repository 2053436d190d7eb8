package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRolesAndFactions(t *testing.T) {
	convey.Convey("Given the enumerated roles", t, func() {
		convey.Convey("Then Hitler and Fascist play for the Fascists", func() {
			convey.So(model.RoleLiberal.Faction(), convey.ShouldEqual, model.FactionLiberal)
			convey.So(model.RoleFascist.Faction(), convey.ShouldEqual, model.FactionFascist)
			convey.So(model.RoleHitler.Faction(), convey.ShouldEqual, model.FactionFascist)
		})

		convey.Convey("When parsing names", func() {
			r, err := model.ParseRole(" hitler ")
			convey.So(err, convey.ShouldBeNil)
			convey.So(r, convey.ShouldEqual, model.RoleHitler)

			f, err := model.ParseFaction("Faşist")
			convey.So(err, convey.ShouldBeNil)
			convey.So(f, convey.ShouldEqual, model.FactionFascist)

			_, err = model.ParseRole("chancellor")
			convey.So(err, convey.ShouldNotBeNil)
			_, err = model.ParseFaction("")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then only enumerated values are valid", func() {
			convey.So(model.Role("President").Valid(), convey.ShouldBeFalse)
			convey.So(model.Faction("Hitler").Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestPlayerAndDelta(t *testing.T) {
	convey.Convey("Given a new player", t, func() {
		p := model.NewPlayer("p1", "Ayşe", time.Unix(0, 0))

		convey.Convey("Then counters are zero and elo is the base rating", func() {
			convey.So(p.TotalGames, convey.ShouldEqual, 0)
			convey.So(p.Wins, convey.ShouldEqual, 0)
			convey.So(p.PenaltyCount, convey.ShouldEqual, 0)
			convey.So(p.Elo, convey.ShouldEqual, 1000)
		})

		convey.Convey("When a delta and its negation are applied", func() {
			d := model.Delta{TotalGames: 1, Wins: 1, Elo: 10, HitlerGames: 1, HitlerWins: 1}
			after := p.Apply(d)
			back := after.Apply(d.Negate())

			convey.So(after.HitlerWins, convey.ShouldEqual, 1)
			convey.So(after.RoleGames(model.RoleHitler), convey.ShouldEqual, 1)
			convey.So(after.RoleWins(model.RoleHitler), convey.ShouldEqual, 1)
			convey.So(after.Losses(), convey.ShouldEqual, 0)
			convey.So(back, convey.ShouldResemble, p)
			convey.So(d.Add(d.Negate()).IsZero(), convey.ShouldBeTrue)
		})
	})
}

func TestValidateMatchInput(t *testing.T) {
	convey.Convey("Given match submissions", t, func() {
		convey.Convey("When the submission is well formed", func() {
			err := model.ValidateMatchInput(model.FactionLiberal, []model.ParticipantInput{
				{PlayerID: "a", Role: model.RoleLiberal},
				{PlayerID: "b", Role: model.RoleHitler},
			})
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When nothing is selected", func() {
			err := model.ValidateMatchInput("", nil)

			convey.Convey("Then both winner and players are reported", func() {
				var verr *model.ValidationError
				convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
				convey.So(verr.Fields, convey.ShouldContainKey, "winner")
				convey.So(verr.Fields, convey.ShouldContainKey, "players")
			})
		})

		convey.Convey("When a player is listed twice or a role is unknown", func() {
			err := model.ValidateMatchInput(model.FactionFascist, []model.ParticipantInput{
				{PlayerID: "a", Role: model.RoleLiberal},
				{PlayerID: "a", Role: model.RoleFascist},
				{PlayerID: "c", Role: "Chancellor"},
				{PlayerID: " ", Role: model.RoleLiberal},
			})

			convey.Convey("Then each entry is reported", func() {
				var verr *model.ValidationError
				convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
				convey.So(verr.Fields["players[1]"], convey.ShouldContainSubstring, "twice")
				convey.So(verr.Fields["players[2]"], convey.ShouldContainSubstring, "invalid role")
				convey.So(verr.Fields["players[3]"], convey.ShouldEqual, "missing player id")
				convey.So(err.Error(), convey.ShouldStartWith, "validation failed: ")
			})
		})
	})
}
