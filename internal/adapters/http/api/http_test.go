package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/http/api"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var adminHash = func() string {
	h, err := auth.HashPassword("secret", bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()

type harness struct {
	svc    *service.Service
	srv    *httptest.Server
	client *http.Client
	token  string
}

func newHarness(deps api.Dependencies, svc *service.Service) *harness {
	authn, err := auth.New("admin", adminHash)
	So(err, ShouldBeNil)

	if deps == nil {
		deps = svc
	}
	s := api.NewServer(deps, authn,
		api.WithClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }),
		api.WithAllowedOrigins([]string{"http://example.test"}),
	)
	mux := http.NewServeMux()
	s.Register(context.Background(), mux)
	srv := httptest.NewServer(s.Wrap(mux))
	Reset(srv.Close)
	return &harness{svc: svc, srv: srv, client: srv.Client()}
}

func (h *harness) do(method, path, body string, headers ...string) (*http.Response, string) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	So(err, ShouldBeNil)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.client.Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (h *harness) login() {
	resp, body := h.do(http.MethodPost, "/api/admin/login", `{"username":"admin","password":"secret"}`)
	So(resp.StatusCode, ShouldEqual, http.StatusOK)
	var out struct {
		Token string `json:"token"`
	}
	So(json.Unmarshal([]byte(body), &out), ShouldBeNil)
	So(out.Token, ShouldNotBeEmpty)
	h.token = out.Token
}

func startService() *service.Service {
	svc := service.New()
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(svc.Stop)
	return svc
}

func TestPublicRoutes(t *testing.T) {
	Convey("Given a running server", t, func() {
		h := newHarness(nil, startService())

		Convey("When scraping metrics", func() {
			resp, _ := h.do(http.MethodGet, "/healthz", "")

			Convey("Then it answers with a request id", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When reading an empty leaderboard", func() {
			resp, body := h.do(http.MethodGet, "/api/leaderboard", "")

			Convey("Then it is an empty list", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(body), ShouldEqual, "[]")
			})
		})

		Convey("When a limit is not a number", func() {
			resp, body := h.do(http.MethodGet, "/api/leaderboard?limit=ten", "")

			Convey("Then it is a bad request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(body, ShouldContainSubstring, `"code":"bad_request"`)
			})
		})

		Convey("When an unknown role or player is requested", func() {
			r1, _ := h.do(http.MethodGet, "/api/roles/mayor", "")
			r2, _ := h.do(http.MethodGet, "/api/players/ghost", "")

			Convey("Then the errors map to 400 and 404", func() {
				So(r1.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(r2.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the stats endpoint is read", func() {
			resp, body := h.do(http.MethodGet, "/stats", "")

			Convey("Then the service reports itself started", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body, ShouldContainSubstring, `"started":true`)
			})
		})

		Convey("When a browser preflights from an allowed origin", func() {
			resp, _ := h.do(http.MethodOptions, "/api/admin/matches", "",
				"Origin", "http://example.test",
				"Access-Control-Request-Method", http.MethodPost,
			)

			Convey("Then CORS allows it", func() {
				So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldEqual, "http://example.test")
			})
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	Convey("Given a running server", t, func() {
		h := newHarness(nil, startService())

		Convey("When an admin route is called without a session", func() {
			resp, body := h.do(http.MethodPost, "/api/admin/players", `{"name":"Ada"}`)

			Convey("Then it is unauthorized", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
				So(body, ShouldContainSubstring, `"code":"unauthorized"`)
			})
		})

		Convey("When logging in with the wrong password", func() {
			resp, _ := h.do(http.MethodPost, "/api/admin/login", `{"username":"admin","password":"nope"}`)

			Convey("Then it is refused", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("Given an admin session", func() {
			h.login()

			Convey("When players and a match are added", func() {
				resp, body := h.do(http.MethodPost, "/api/admin/players", `{"name":"Ada"}`)
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				var ada model.Player
				So(json.Unmarshal([]byte(body), &ada), ShouldBeNil)

				_, body = h.do(http.MethodPost, "/api/admin/players", `{"name":"Bob"}`)
				var bob model.Player
				So(json.Unmarshal([]byte(body), &bob), ShouldBeNil)

				match := `{"winner":"Liberal","players":[{"playerId":"` + ada.ID + `","role":"Liberal"},{"playerId":"` + bob.ID + `","role":"Hitler"}]}`
				resp, body = h.do(http.MethodPost, "/api/admin/matches", match, api.IdempotencyKeyHeader, "k1")
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				var m model.Match
				So(json.Unmarshal([]byte(body), &m), ShouldBeNil)

				Convey("Then a retried submission returns the same match", func() {
					_, body := h.do(http.MethodPost, "/api/admin/matches", match, api.IdempotencyKeyHeader, "k1")
					var again model.Match
					So(json.Unmarshal([]byte(body), &again), ShouldBeNil)
					So(again.ID, ShouldEqual, m.ID)

					_, body = h.do(http.MethodGet, "/api/admin/matches?page=1", "")
					So(body, ShouldContainSubstring, `"total":1`)

					resp, body := h.do(http.MethodGet, "/api/admin/matches?page=9223372036854775807", "")
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(body, ShouldContainSubstring, `"matches":[]`)
				})

				Convey("Then the last lineup comes back with roles reset", func() {
					_, body := h.do(http.MethodGet, "/api/admin/matches/last-participants", "")
					So(body, ShouldContainSubstring, bob.ID)
					So(body, ShouldNotContainSubstring, "Hitler")
				})

				Convey("Then the log is consistent and exports as CSV", func() {
					_, body := h.do(http.MethodGet, "/api/admin/consistency", "")
					So(body, ShouldContainSubstring, `"consistent":true`)

					resp, body := h.do(http.MethodGet, "/api/admin/export/leaderboard.csv", "")
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(resp.Header.Get("Content-Type"), ShouldStartWith, "text/csv")
					So(resp.Header.Get("Content-Disposition"), ShouldContainSubstring, "leaderboard_2024-03-01.csv")
					So(body, ShouldStartWith, "Name,TotalGames,Wins,Losses,PenaltyCount,Elo\nAda,1,1,0,0,1010")

					resp, _ = h.do(http.MethodGet, "/api/admin/export/secrets.csv", "")
					So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				})

				Convey("Then the match can be deleted once", func() {
					resp, _ := h.do(http.MethodDelete, "/api/admin/matches/"+m.ID, "")
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					resp, _ = h.do(http.MethodDelete, "/api/admin/matches/"+m.ID, "")
					So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				})

				Convey("Then a penalty lowers the rating", func() {
					resp, body := h.do(http.MethodPost, "/api/admin/players/"+bob.ID+"/penalty", "")
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(body, ShouldContainSubstring, `"elo":985`)
				})
			})

			Convey("When the input is invalid", func() {
				resp, body := h.do(http.MethodPost, "/api/admin/players", `{"name":"  "}`)
				r2, _ := h.do(http.MethodPost, "/api/admin/matches", `{"winner":"Nobody","players":[]}`)
				r3, _ := h.do(http.MethodPost, "/api/admin/players", `{"nick":"Ada"}`)

				Convey("Then the fields are reported with 400", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(body, ShouldContainSubstring, `"fields":{"name"`)
					So(r2.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(r3.StatusCode, ShouldEqual, http.StatusBadRequest)
				})
			})

			Convey("When logging out", func() {
				resp, _ := h.do(http.MethodPost, "/api/admin/logout", "")
				So(resp.StatusCode, ShouldEqual, http.StatusNoContent)

				Convey("Then the session no longer works", func() {
					resp, _ := h.do(http.MethodGet, "/api/admin/consistency", "")
					So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
				})
			})
		})
	})
}

// failing answers AddPlayer with a fixed error.
type failing struct {
	api.Dependencies
	err error
}

func (f failing) AddPlayer(context.Context, string) (model.Player, error) {
	return model.Player{}, f.err
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrBackpressure, http.StatusTooManyRequests},
		{service.ErrTimeout, http.StatusGatewayTimeout},
		{service.ErrNotStarted, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	Convey("Given a service that fails in each way", t, func() {
		for _, c := range cases {
			h := newHarness(failing{err: c.err}, nil)
			h.login()
			resp, body := h.do(http.MethodPost, "/api/admin/players", `{"name":"Ada"}`)

			So(resp.StatusCode, ShouldEqual, c.status)
			So(body, ShouldNotContainSubstring, "disk full")
		}
	})
}

func TestLive(t *testing.T) {
	Convey("Given a live players subscription", t, func() {
		svc := startService()
		h := newHarness(nil, svc)

		url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/live?view=players"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		Reset(func() { _ = conn.Close() })
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg struct {
			View string         `json:"view"`
			Data []model.Player `json:"data"`
		}
		So(conn.ReadJSON(&msg), ShouldBeNil)
		So(msg.View, ShouldEqual, "players")
		So(msg.Data, ShouldBeEmpty)

		Convey("When a player is added", func() {
			_, err := svc.AddPlayer(context.Background(), "Ada")
			So(err, ShouldBeNil)

			Convey("Then the new list is pushed", func() {
				So(conn.ReadJSON(&msg), ShouldBeNil)
				So(msg.Data, ShouldHaveLength, 1)
				So(msg.Data[0].Name, ShouldEqual, "Ada")
			})
		})

		Convey("When an unknown view is requested", func() {
			_, resp, err := websocket.DefaultDialer.Dial(strings.Replace(url, "players", "gossip", 1), nil)

			Convey("Then the upgrade is refused", func() {
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}
