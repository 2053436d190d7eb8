package export_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport(t *testing.T) {
	Convey("Given two players and a match", t, func() {
		day := time.Date(2024, 3, 1, 21, 30, 0, 0, time.FixedZone("TRT", 3*3600))

		ada := model.NewPlayer("p1", "Ada", day)
		ada.TotalGames, ada.Wins, ada.PenaltyCount, ada.Elo = 3, 2, 1, 1005
		ada.LiberalGames, ada.LiberalWins, ada.HitlerGames, ada.HitlerWins = 2, 1, 1, 1
		bo := model.NewPlayer("p2", "Bo", day)

		m := model.Match{ID: "m1", Date: day, Winner: model.FactionFascist, Players: []model.Participant{
			{PlayerID: "p1", PlayerName: "Ada", Role: model.RoleHitler},
			{PlayerID: "p2", PlayerName: "Bo", Role: model.RoleLiberal},
		}}

		Convey("When writing the leaderboard", func() {
			var buf bytes.Buffer
			So(export.WriteLeaderboard(&buf, []model.Player{ada, bo}), ShouldBeNil)

			Convey("Then the bytes match the fixed format", func() {
				So(buf.String(), ShouldEqual,
					"Name,TotalGames,Wins,Losses,PenaltyCount,Elo\n"+
						"Ada,3,2,1,1,1005\n"+
						"Bo,0,0,0,0,1000")
			})
		})

		Convey("When writing role stats", func() {
			var buf bytes.Buffer
			So(export.WriteRoleStats(&buf, []model.Player{ada}), ShouldBeNil)

			Convey("Then each role pair appears in order", func() {
				So(buf.String(), ShouldEqual,
					"Name,LiberalGames,LiberalWins,FascistGames,FascistWins,HitlerGames,HitlerWins\n"+
						"Ada,2,1,0,0,1,1")
			})
		})

		Convey("When writing matches", func() {
			var buf bytes.Buffer
			So(export.WriteMatches(&buf, []model.Match{m}), ShouldBeNil)

			Convey("Then dates are UTC and players are listed with roles", func() {
				So(buf.String(), ShouldEqual,
					"Date,Winner,Players\n"+
						"2024-03-01T18:30:00Z,Fascist,Ada (Hitler); Bo (Liberal)")
			})
		})

		Convey("When there is nothing to export", func() {
			var buf bytes.Buffer
			So(export.WriteMatches(&buf, nil), ShouldBeNil)
			So(buf.String(), ShouldEqual, "Date,Winner,Players")
		})

		Convey("When the writer fails", func() {
			err := export.WriteLeaderboard(failingWriter{}, []model.Player{ada})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "disk full")
		})
	})

	Convey("Given download names", t, func() {
		k, err := export.ParseKind("roles.csv")
		So(err, ShouldBeNil)
		So(k, ShouldEqual, export.KindRoles)

		_, err = export.ParseKind("players.csv")
		So(err, ShouldNotBeNil)

		day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		So(export.FileName(export.KindRoles, day), ShouldEqual, "role_stats_2024-03-01.csv")
		So(export.FileName(export.KindMatches, day), ShouldEqual, "matches_2024-03-01.csv")
	})
}
