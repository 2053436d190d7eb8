// Package repositorytest holds the behaviour every repository.Store must
// share. Store packages run it from their own tests.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Epoch is a millisecond-precision UTC instant every backend round-trips.
var Epoch = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

// Run exercises newStore against the Store contract. newStore is called once
// per leaf scenario and must return an empty store.
func Run(t *testing.T, name string, newStore func() repository.Store) {
	ctx := context.Background()

	Convey("Given an empty "+name+" store", t, func() {
		s := newStore()
		Reset(func() { _ = s.Close() })

		Convey("When a player is created without an id", func() {
			p, err := s.CreatePlayer(ctx, model.NewPlayer("", "Ada", Epoch))
			So(err, ShouldBeNil)

			Convey("Then an id is generated and the row reads back", func() {
				So(p.ID, ShouldNotBeEmpty)
				got, err := s.GetPlayer(ctx, p.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "Ada")
				So(got.Elo, ShouldEqual, model.BaseElo)
				So(got.CreatedAt.Equal(Epoch), ShouldBeTrue)

				n, err := s.CountPlayers(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then creating the same id again fails", func() {
				_, err := s.CreatePlayer(ctx, model.NewPlayer(p.ID, "Twin", Epoch))
				So(errors.Is(err, repository.ErrDuplicateID), ShouldBeTrue)
			})

			Convey("Then an increment adds to every counter", func() {
				d := model.Delta{TotalGames: 1, Wins: 1, Elo: 10, HitlerGames: 1, HitlerWins: 1}
				got, err := s.IncrementPlayer(ctx, p.ID, d)
				So(err, ShouldBeNil)
				So(got.TotalGames, ShouldEqual, 1)
				So(got.Elo, ShouldEqual, 1010)
				So(got.HitlerWins, ShouldEqual, 1)

				got, err = s.IncrementPlayer(ctx, p.ID, d.Negate())
				So(err, ShouldBeNil)
				So(got, ShouldResemble, p)
			})

			Convey("Then concurrent increments are not lost", func() {
				var wg sync.WaitGroup
				for i := 0; i < 40; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _ = s.IncrementPlayer(ctx, p.ID, model.Delta{TotalGames: 1, Elo: -10})
					}()
				}
				wg.Wait()
				got, err := s.GetPlayer(ctx, p.ID)
				So(err, ShouldBeNil)
				So(got.TotalGames, ShouldEqual, 40)
				So(got.Elo, ShouldEqual, 600)
			})
		})

		Convey("When reading or updating an unknown player", func() {
			_, err := s.GetPlayer(ctx, "nobody")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.IncrementPlayer(ctx, "nobody", model.Delta{Wins: 1})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When listing several players", func() {
			for i, name := range []string{"Cem", "Ada", "Bo"} {
				p := model.NewPlayer("", name, Epoch.Add(time.Duration(i)*time.Minute))
				p.Elo = 1000 + i*10
				_, err := s.CreatePlayer(ctx, p)
				So(err, ShouldBeNil)
			}

			Convey("Then the default order is by name", func() {
				ps, err := s.ListPlayers(ctx, repository.Query{})
				So(err, ShouldBeNil)
				So(names(ps), ShouldResemble, []string{"Ada", "Bo", "Cem"})
			})

			Convey("Then a descending elo window is honoured", func() {
				ps, err := s.ListPlayers(ctx, repository.Query{OrderBy: repository.OrderByElo, Desc: true, Limit: 2})
				So(err, ShouldBeNil)
				So(names(ps), ShouldResemble, []string{"Bo", "Ada"})

				ps, err = s.ListPlayers(ctx, repository.Query{OrderBy: repository.OrderByElo, Desc: true, Offset: 2})
				So(err, ShouldBeNil)
				So(names(ps), ShouldResemble, []string{"Cem"})
			})

			Convey("Then an unknown sort key is rejected", func() {
				_, err := s.ListPlayers(ctx, repository.Query{OrderBy: "name; DROP TABLE players"})
				So(errors.Is(err, repository.ErrInvalidQuery), ShouldBeTrue)
			})
		})

		Convey("When matches are recorded", func() {
			parts := []model.Participant{
				{PlayerID: "p2", PlayerName: "Bo", Role: model.RoleHitler},
				{PlayerID: "p1", PlayerName: "Ada", Role: model.RoleLiberal},
			}
			first, err := s.CreateMatch(ctx, model.Match{Date: Epoch, Winner: model.FactionFascist, Players: parts})
			So(err, ShouldBeNil)
			second, err := s.CreateMatch(ctx, model.Match{ID: "fixed", Date: Epoch.Add(time.Hour), Winner: model.FactionLiberal, Players: parts[1:]})
			So(err, ShouldBeNil)

			Convey("Then ids are generated or kept", func() {
				So(first.ID, ShouldNotBeEmpty)
				So(second.ID, ShouldEqual, "fixed")
			})

			Convey("Then a match reads back with participants in order", func() {
				got, err := s.GetMatch(ctx, first.ID)
				So(err, ShouldBeNil)
				So(got.Winner, ShouldEqual, model.FactionFascist)
				So(got.Date.Equal(Epoch), ShouldBeTrue)
				So(got.Players, ShouldResemble, parts)
			})

			Convey("Then listing newest first returns the later match", func() {
				ms, err := s.ListMatches(ctx, repository.Query{Desc: true, Limit: 1})
				So(err, ShouldBeNil)
				So(ms, ShouldHaveLength, 1)
				So(ms[0].ID, ShouldEqual, "fixed")

				n, err := s.CountMatches(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("Then a deleted match is gone and can be restored verbatim", func() {
				So(s.DeleteMatch(ctx, first.ID), ShouldBeNil)
				_, err := s.GetMatch(ctx, first.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.DeleteMatch(ctx, first.ID), repository.ErrNotFound), ShouldBeTrue)

				_, err = s.CreateMatch(ctx, first)
				So(err, ShouldBeNil)
				got, err := s.GetMatch(ctx, first.ID)
				So(err, ShouldBeNil)
				So(got.Players, ShouldResemble, first.Players)
				So(got.Date.Equal(first.Date), ShouldBeTrue)
			})

			Convey("Then a duplicate id is rejected", func() {
				_, err := s.CreateMatch(ctx, second)
				So(errors.Is(err, repository.ErrDuplicateID), ShouldBeTrue)
			})
		})

		Convey("When subscribed to the change feed", func() {
			var mu sync.Mutex
			var seen []repository.Change
			cancel := s.Subscribe(func(c repository.Change) {
				mu.Lock()
				seen = append(seen, c)
				mu.Unlock()
			})

			p, err := s.CreatePlayer(ctx, model.NewPlayer("", "Ada", Epoch))
			So(err, ShouldBeNil)
			_, err = s.IncrementPlayer(ctx, p.ID, model.Delta{Elo: -5, PenaltyCount: 1})
			So(err, ShouldBeNil)
			cancel()
			_, err = s.CreatePlayer(ctx, model.NewPlayer("", "Bo", Epoch))
			So(err, ShouldBeNil)

			Convey("Then every committed write before cancel is published", func() {
				mu.Lock()
				defer mu.Unlock()
				So(seen, ShouldResemble, []repository.Change{
					{Entity: repository.EntityPlayer, Op: repository.OpCreate, ID: p.ID},
					{Entity: repository.EntityPlayer, Op: repository.OpUpdate, ID: p.ID},
				})
			})
		})
	})
}

func names(ps []model.Player) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
