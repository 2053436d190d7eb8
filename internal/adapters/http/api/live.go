package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

// LiveHandler pushes a view's full result set over a websocket whenever it
// changes.
type LiveHandler struct {
	deps     ReadDependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

type liveMessage struct {
	View string `json:"view"`
	Data any    `json:"data"`
}

// NewLiveHandler creates a live handler. allowedOrigins of "*" accepts any
// origin; empty accepts only same-origin requests.
func NewLiveHandler(deps ReadDependencies, allowedOrigins []string, l logger.Logger) *LiveHandler {
	return &LiveHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: l,
	}
}

// HandleLive handles GET /api/live?view=leaderboard|matches|players|factions.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	const op = "api.live"
	view := r.URL.Query().Get("view")
	if view == "" {
		view = "leaderboard"
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}

	// Hijacked connections outlive the request context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	updates := make(chan any, 1)
	stop, err := h.deps.Watch(ctx, view, limit, func(v any) { latest(updates, v) })
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	metrics.AddLiveSubscribers(1)
	defer metrics.AddLiveSubscribers(-1)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		case v := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(liveMessage{View: view, Data: v}); err != nil {
				h.logger.Debug(ctx, "live write failed", logger.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

// latest replaces whatever is buffered in ch with v; a slow client only
// ever gets the newest result.
func latest(ch chan any, v any) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
