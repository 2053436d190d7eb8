package service_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/saga"
	"github.com/okian/scoreboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// ticker hands out one second steps so match dates are distinct.
func ticker() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// faultyStore injects failures and stalls into a memory store.
type faultyStore struct {
	*repository.MemoryStore

	mu              sync.Mutex
	failIncrement   func(id string, d model.Delta) bool
	failCreateMatch bool
	stall           chan struct{}
	stalled         chan struct{}
	holdIncrement   chan struct{}
	incrementHeld   chan struct{}
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: repository.NewMemoryStore()}
}

func (f *faultyStore) IncrementPlayer(ctx context.Context, id string, d model.Delta) (model.Player, error) {
	f.mu.Lock()
	fail := f.failIncrement != nil && f.failIncrement(id, d)
	hold, held := f.holdIncrement, f.incrementHeld
	f.holdIncrement = nil
	f.mu.Unlock()
	if hold != nil {
		close(held)
		<-hold
	}
	if fail {
		return model.Player{}, errors.New("disk full")
	}
	return f.MemoryStore.IncrementPlayer(ctx, id, d)
}

func (f *faultyStore) CreateMatch(ctx context.Context, m model.Match) (model.Match, error) {
	f.mu.Lock()
	fail := f.failCreateMatch
	f.mu.Unlock()
	if fail {
		return model.Match{}, errors.New("disk full")
	}
	return f.MemoryStore.CreateMatch(ctx, m)
}

func (f *faultyStore) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if f.stall != nil && p.Name == "slow" {
		close(f.stalled)
		<-f.stall
	}
	return f.MemoryStore.CreatePlayer(ctx, p)
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func mustPlayer(svc *service.Service, name string) model.Player {
	p, err := svc.AddPlayer(context.Background(), name)
	So(err, ShouldBeNil)
	return p
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then nothing works before Start", func() {
			_, err := svc.AddPlayer(ctx, "Ada")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Players(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["store"], ShouldEqual, "memory")
				So(stats["totalPlayers"], ShouldEqual, 0)
				svc.Stop()
			})

			Convey("And stopping it refuses further commands", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.AddPlayer(ctx, "Ada")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Mutations(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := service.New(service.WithClock(ticker()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("When a player is added with surrounding spaces", func() {
			p := mustPlayer(svc, "  Ada ")

			Convey("Then the name is trimmed and counters start at zero", func() {
				So(p.Name, ShouldEqual, "Ada")
				So(p.Elo, ShouldEqual, model.BaseElo)
				So(p.TotalGames, ShouldEqual, 0)
			})
		})

		Convey("When a blank player name is submitted", func() {
			_, err := svc.AddPlayer(ctx, "   ")

			Convey("Then it is a validation failure", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("Given three players", func() {
			ada := mustPlayer(svc, "Ada")
			bob := mustPlayer(svc, "Bob")
			cem := mustPlayer(svc, "Cem")

			req := service.MatchRequest{
				Winner: "fascist",
				Players: []model.ParticipantInput{
					{PlayerID: ada.ID, Role: "Liberal"},
					{PlayerID: bob.ID, Role: "fascist"},
					{PlayerID: cem.ID, Role: model.RoleHitler},
				},
			}

			Convey("When a match is recorded", func() {
				m, err := svc.AddMatch(ctx, req)
				So(err, ShouldBeNil)

				Convey("Then every participant's row reflects the result", func() {
					So(m.ID, ShouldNotBeEmpty)
					So(m.Winner, ShouldEqual, model.FactionFascist)
					So(m.Players[1].PlayerName, ShouldEqual, "Bob")

					a, _ := svc.Player(ctx, ada.ID)
					b, _ := svc.Player(ctx, bob.ID)
					c, _ := svc.Player(ctx, cem.ID)
					So(a.TotalGames, ShouldEqual, 1)
					So(a.Wins, ShouldEqual, 0)
					So(a.Elo, ShouldEqual, 990)
					So(a.LiberalGames, ShouldEqual, 1)
					So(b.Wins, ShouldEqual, 1)
					So(b.FascistWins, ShouldEqual, 1)
					So(b.Elo, ShouldEqual, 1010)
					So(c.HitlerWins, ShouldEqual, 1)

					found, err := svc.CheckConsistency(ctx)
					So(err, ShouldBeNil)
					So(found, ShouldBeEmpty)
				})

				Convey("Then deleting it restores every row exactly", func() {
					deleted, err := svc.DeleteMatch(ctx, m.ID)
					So(err, ShouldBeNil)
					So(deleted.ID, ShouldEqual, m.ID)

					for _, p := range []model.Player{ada, bob, cem} {
						got, _ := svc.Player(ctx, p.ID)
						So(got, ShouldResemble, p)
					}
					_, err = svc.DeleteMatch(ctx, m.ID)
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When the same Idempotency-Key is submitted twice", func() {
				req.IdempotencyKey = "form-1"
				first, err := svc.AddMatch(ctx, req)
				So(err, ShouldBeNil)
				second, err := svc.AddMatch(ctx, req)
				So(err, ShouldBeNil)

				Convey("Then the match is recorded once", func() {
					So(second.ID, ShouldEqual, first.ID)
					a, _ := svc.Player(ctx, ada.ID)
					So(a.TotalGames, ShouldEqual, 1)
					So(svc.Size(), ShouldEqual, 1)
				})

				Convey("Then deleting the match frees the key", func() {
					_, err := svc.DeleteMatch(ctx, first.ID)
					So(err, ShouldBeNil)
					So(svc.Size(), ShouldEqual, 0)

					third, err := svc.AddMatch(ctx, req)
					So(err, ShouldBeNil)
					So(third.ID, ShouldNotEqual, first.ID)
				})
			})

			Convey("When a match names an unknown player", func() {
				req.Players = append(req.Players, model.ParticipantInput{PlayerID: "ghost", Role: model.RoleLiberal})
				_, err := svc.AddMatch(ctx, req)

				Convey("Then it is rejected and nothing is written", func() {
					var verr *model.ValidationError
					So(errors.As(err, &verr), ShouldBeTrue)
					So(verr.Fields["players[3]"], ShouldContainSubstring, "ghost")
					page, _ := svc.MatchPage(ctx, 1, 0)
					So(page.Total, ShouldEqual, 0)
				})
			})

			Convey("When a match input is malformed", func() {
				_, err := svc.AddMatch(ctx, service.MatchRequest{Winner: "Hitler"})

				Convey("Then it is rejected before it is queued", func() {
					So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				})
			})

			Convey("When a penalty is applied", func() {
				p, err := svc.ApplyPenalty(ctx, bob.ID)
				So(err, ShouldBeNil)

				Convey("Then elo drops by five and the row stays consistent", func() {
					So(p.Elo, ShouldEqual, 995)
					So(p.PenaltyCount, ShouldEqual, 1)
					found, _ := svc.CheckConsistency(ctx)
					So(found, ShouldBeEmpty)
				})
			})

			Convey("When a penalty targets an unknown player", func() {
				_, err := svc.ApplyPenalty(ctx, "ghost")

				Convey("Then it is not found", func() {
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})
		})
	})
}

func TestService_Sagas(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service over a store that can fail", t, func() {
		store := newFaultyStore()
		svc := service.New(service.WithStore(store, "faulty"), service.WithClock(ticker()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		ada := mustPlayer(svc, "Ada")
		bob := mustPlayer(svc, "Bob")
		req := service.MatchRequest{
			Winner: model.FactionLiberal,
			Players: []model.ParticipantInput{
				{PlayerID: ada.ID, Role: model.RoleLiberal},
				{PlayerID: bob.ID, Role: model.RoleFascist},
			},
		}

		Convey("When the second participant update fails while recording", func() {
			store.set(func(f *faultyStore) {
				f.failIncrement = func(id string, d model.Delta) bool { return id == bob.ID }
			})
			_, err := svc.AddMatch(ctx, req)

			Convey("Then the saga rolls back the match and the first update", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, saga.ErrCompensationFailed), ShouldBeFalse)

				a, _ := svc.Player(ctx, ada.ID)
				So(a, ShouldResemble, ada)
				page, _ := svc.MatchPage(ctx, 1, 0)
				So(page.Total, ShouldEqual, 0)
				found, _ := svc.CheckConsistency(ctx)
				So(found, ShouldBeEmpty)
			})
		})

		Convey("Given a recorded match", func() {
			m, err := svc.AddMatch(ctx, req)
			So(err, ShouldBeNil)

			Convey("When a reversal fails during delete", func() {
				store.set(func(f *faultyStore) {
					f.failIncrement = func(id string, d model.Delta) bool { return id == bob.ID && d.TotalGames < 0 }
				})
				_, err := svc.DeleteMatch(ctx, m.ID)

				Convey("Then the record and the first reversal are restored", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, saga.ErrCompensationFailed), ShouldBeFalse)

					got, err := svc.RecentMatches(ctx, 0)
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 1)
					So(got[0].ID, ShouldEqual, m.ID)
					found, _ := svc.CheckConsistency(ctx)
					So(found, ShouldBeEmpty)
				})
			})

			Convey("When the reversal fails and the record cannot be restored", func() {
				store.set(func(f *faultyStore) {
					f.failIncrement = func(id string, d model.Delta) bool { return id == bob.ID && d.TotalGames < 0 }
					f.failCreateMatch = true
				})
				_, err := svc.DeleteMatch(ctx, m.ID)

				Convey("Then the failure is reported and the checker sees the drift", func() {
					So(errors.Is(err, saga.ErrCompensationFailed), ShouldBeTrue)

					found, err := svc.CheckConsistency(ctx)
					So(err, ShouldBeNil)
					So(found, ShouldNotBeEmpty)
					ids := map[string]bool{}
					for _, d := range found {
						ids[d.PlayerID] = true
					}
					So(ids[ada.ID], ShouldBeTrue)
					So(ids[bob.ID], ShouldBeTrue)
				})
			})
		})
	})
}

func TestService_CheckDuringWrites(t *testing.T) {
	ctx := context.Background()

	Convey("Given a match recording paused between its record and its deltas", t, func() {
		store := newFaultyStore()
		svc := service.New(service.WithStore(store, "faulty"), service.WithClock(ticker()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		ada := mustPlayer(svc, "Ada")
		bob := mustPlayer(svc, "Bob")
		hold, held := make(chan struct{}), make(chan struct{})
		store.set(func(f *faultyStore) {
			f.holdIncrement = hold
			f.incrementHeld = held
		})

		added := make(chan error, 1)
		go func() {
			_, err := svc.AddMatch(ctx, service.MatchRequest{
				Winner: model.FactionLiberal,
				Players: []model.ParticipantInput{
					{PlayerID: ada.ID, Role: model.RoleLiberal},
					{PlayerID: bob.ID, Role: model.RoleHitler},
				},
			})
			added <- err
		}()
		<-held

		Convey("When the checker runs meanwhile", func() {
			type result struct {
				found []model.Discrepancy
				err   error
			}
			checked := make(chan result, 1)
			go func() {
				found, err := svc.CheckConsistency(ctx)
				checked <- result{found, err}
			}()

			Convey("Then it waits for the recording and reports nothing", func() {
				time.Sleep(50 * time.Millisecond)
				So(len(checked), ShouldEqual, 0)

				close(hold)
				So(<-added, ShouldBeNil)
				r := <-checked
				So(r.err, ShouldBeNil)
				So(r.found, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a stream of matches being recorded", t, func() {
		svc := service.New(service.WithQueueSize(1024))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		var lineup []model.ParticipantInput
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			lineup = append(lineup, model.ParticipantInput{PlayerID: mustPlayer(svc, name).ID, Role: model.RoleLiberal})
		}

		done := make(chan error, 1)
		go func() {
			for i := 0; i < 200; i++ {
				if _, err := svc.AddMatch(ctx, service.MatchRequest{Winner: model.FactionLiberal, Players: lineup}); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()

		Convey("Then every check taken meanwhile is clean", func() {
			var drift []model.Discrepancy
			for running := true; running; {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
					running = false
				default:
				}
				found, err := svc.CheckConsistency(ctx)
				So(err, ShouldBeNil)
				drift = append(drift, found...)
			}
			So(drift, ShouldBeEmpty)
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a writer stalled on a command and a queue of one", t, func() {
		store := newFaultyStore()
		store.stall = make(chan struct{})
		store.stalled = make(chan struct{})
		svc := service.New(
			service.WithStore(store, "faulty"),
			service.WithQueueSize(1),
			service.WithCommandTimeout(2*time.Second),
		)
		So(svc.Start(ctx), ShouldBeNil)
		release := sync.OnceFunc(func() { close(store.stall) })
		Reset(func() {
			release()
			svc.Stop()
		})

		first := make(chan error, 1)
		go func() {
			_, err := svc.AddPlayer(ctx, "slow")
			first <- err
		}()
		<-store.stalled

		second := make(chan error, 1)
		go func() {
			_, err := svc.AddPlayer(ctx, "queued")
			second <- err
		}()
		for svc.GetStats()["queueLength"] != 1 {
			time.Sleep(time.Millisecond)
		}

		Convey("When another command arrives", func() {
			_, err := svc.AddPlayer(ctx, "rejected")

			Convey("Then it is refused without waiting", func() {
				So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)

				release()
				So(<-first, ShouldBeNil)
				So(<-second, ShouldBeNil)
				players, _ := svc.Players(ctx)
				So(players, ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given a short command timeout and a stalled writer", t, func() {
		store := newFaultyStore()
		store.stall = make(chan struct{})
		store.stalled = make(chan struct{})
		svc := service.New(
			service.WithStore(store, "faulty"),
			service.WithCommandTimeout(20*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			close(store.stall)
			svc.Stop()
		})

		Convey("When a command cannot finish in time", func() {
			_, err := svc.AddPlayer(ctx, "slow")

			Convey("Then the caller gets a timeout", func() {
				So(errors.Is(err, service.ErrTimeout), ShouldBeTrue)
			})
		})
	})
}

func TestService_Views(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a few recorded matches", t, func() {
		svc := service.New(service.WithClock(ticker()), service.WithLimits(service.Limits{PageSize: 2}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		ada := mustPlayer(svc, "Ada")
		bob := mustPlayer(svc, "Bob")
		var last model.Match
		for _, w := range []model.Faction{model.FactionLiberal, model.FactionLiberal, model.FactionFascist} {
			m, err := svc.AddMatch(ctx, service.MatchRequest{
				Winner: w,
				Players: []model.ParticipantInput{
					{PlayerID: ada.ID, Role: model.RoleLiberal},
					{PlayerID: bob.ID, Role: model.RoleHitler},
				},
			})
			So(err, ShouldBeNil)
			last = m
		}

		Convey("Then the leaderboard ranks by wins", func() {
			rows, err := svc.Leaderboard(ctx, 0)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Name, ShouldEqual, "Ada")
			So(rows[0].WinRate, ShouldEqual, "66.7%")
			So(rows[1].Rank, ShouldEqual, 2)
		})

		Convey("Then the role table and faction split follow the log", func() {
			rows, err := svc.RoleTable(ctx, "hitler")
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Wins, ShouldEqual, 1)

			_, err = svc.RoleTable(ctx, "mayor")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			f, err := svc.Factions(ctx)
			So(err, ShouldBeNil)
			So(f.TotalMatches, ShouldEqual, 3)
			So(f.Factions[0].Wins, ShouldEqual, 2)
		})

		Convey("Then matches page newest first", func() {
			page, err := svc.MatchPage(ctx, 2, 0)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 3)
			So(page.Pages, ShouldEqual, 2)
			So(page.Matches, ShouldHaveLength, 1)
			So(page.Matches[0].Winner, ShouldEqual, model.FactionLiberal)
		})

		Convey("Then a page far past the end is empty", func() {
			page, err := svc.MatchPage(ctx, math.MaxInt, 0)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 3)
			So(page.Matches, ShouldBeEmpty)
			So(page.Matches, ShouldNotBeNil)
		})

		Convey("Then the last lineup comes back with every role reset", func() {
			got, err := svc.LastParticipants(ctx)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.ParticipantInput{
				{PlayerID: ada.ID, Role: model.RoleLiberal},
				{PlayerID: bob.ID, Role: model.RoleLiberal},
			})
		})

		Convey("Then a player's history shows their form newest first", func() {
			h, err := svc.PlayerHistory(ctx, bob.ID, 0)
			So(err, ShouldBeNil)
			So(h.Form, ShouldEqual, "WLL")
			So(h.Matches[0].MatchID, ShouldEqual, last.ID)

			_, err = svc.PlayerHistory(ctx, "ghost", 0)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then the leaderboard export starts with the fixed header", func() {
			var buf bytes.Buffer
			So(svc.Export(ctx, export.KindLeaderboard, &buf), ShouldBeNil)
			lines := strings.Split(buf.String(), "\n")
			So(lines[0], ShouldEqual, "Name,TotalGames,Wins,Losses,PenaltyCount,Elo")
			So(lines[1], ShouldEqual, "Ada,3,2,1,0,1010")
			So(lines, ShouldHaveLength, 3)
		})

		Convey("Then recompute agrees with the stored rows", func() {
			rows, err := svc.Recompute(ctx)
			So(err, ShouldBeNil)
			players, _ := svc.Players(ctx)
			So(rows, ShouldResemble, players)
		})
	})
}

func TestService_Watch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a leaderboard subscription", t, func() {
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		updates := make(chan any, 8)
		stop, err := svc.Watch(ctx, service.ViewLeaderboard, 0, func(v any) { updates <- v })
		So(err, ShouldBeNil)
		Reset(stop)
		So(<-updates, ShouldBeEmpty)

		Convey("When a player is added", func() {
			mustPlayer(svc, "Ada")

			Convey("Then the new result set is pushed", func() {
				select {
				case v := <-updates:
					So(v, ShouldHaveLength, 1)
				case <-time.After(2 * time.Second):
					So("no update", ShouldBeEmpty)
				}
			})
		})

		Convey("When an unknown view is requested", func() {
			_, err := svc.Watch(ctx, "gossip", 0, func(any) {})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}
