// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/stats"
	"github.com/okian/scoreboard/pkg/logger"
)

// ReadDependencies serve the public pages.
type ReadDependencies interface {
	Leaderboard(ctx context.Context, limit int) ([]stats.LeaderboardRow, error)
	RoleTable(ctx context.Context, role string) ([]stats.RoleRow, error)
	Factions(ctx context.Context) (stats.FactionStats, error)
	RecentMatches(ctx context.Context, limit int) ([]model.Match, error)
	Players(ctx context.Context) ([]model.Player, error)
	Player(ctx context.Context, id string) (model.Player, error)
	PlayerHistory(ctx context.Context, id string, limit int) (stats.PlayerHistory, error)
	Watch(ctx context.Context, view string, limit int, fn func(any)) (stop func(), err error)
}

// AdminDependencies serve the admin panel.
type AdminDependencies interface {
	AddPlayer(ctx context.Context, name string) (model.Player, error)
	AddMatch(ctx context.Context, req service.MatchRequest) (model.Match, error)
	DeleteMatch(ctx context.Context, id string) (model.Match, error)
	ApplyPenalty(ctx context.Context, playerID string) (model.Player, error)
	MatchPage(ctx context.Context, page, size int) (service.MatchPage, error)
	LastParticipants(ctx context.Context) ([]model.ParticipantInput, error)
	CheckConsistency(ctx context.Context) ([]model.Discrepancy, error)
	Recompute(ctx context.Context) ([]model.Player, error)
	Export(ctx context.Context, kind export.Kind, w io.Writer) error
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ReadDependencies
	AdminDependencies
	StatsProvider
}

// Authenticator checks admin credentials and sessions.
type Authenticator interface {
	Enabled() bool
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Validate(ctx context.Context, token string) error
	Logout(ctx context.Context, token string)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	readHandler    *ReadHandler
	adminHandler   *AdminHandler
	sessionHandler *SessionHandler
	liveHandler    *LiveHandler
	auth           Authenticator
	allowedOrigins []string
}

// Option configures the Server.
type Option func(*serverConfig)

type serverConfig struct {
	secureCookies  bool
	allowedOrigins []string
	logger         logger.Logger
	now            func() time.Time
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(c *serverConfig) { c.secureCookies = secure }
}

// WithAllowedOrigins sets the origins allowed by CORS and the live
// websocket. Empty means same origin only.
func WithAllowedOrigins(origins []string) Option {
	return func(c *serverConfig) { c.allowedOrigins = origins }
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source used for export file names.
func WithClock(now func() time.Time) Option {
	return func(c *serverConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, authn Authenticator, opts ...Option) *Server {
	cfg := serverConfig{logger: logger.Get().Named("api"), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		readHandler:    NewReadHandler(deps),
		adminHandler:   NewAdminHandler(deps, cfg.now),
		sessionHandler: NewSessionHandler(authn, cfg.secureCookies),
		liveHandler:    NewLiveHandler(deps, cfg.allowedOrigins, cfg.logger),
		auth:           authn,
		allowedOrigins: cfg.allowedOrigins,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	public := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}
	admin := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(RequireAdmin(s.auth, h), endpoint))
	}

	public("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	public("GET /stats", "stats", s.statsHandler.HandleStats)

	public("GET /api/leaderboard", "leaderboard", s.readHandler.HandleLeaderboard)
	public("GET /api/roles/{role}", "roles", s.readHandler.HandleRoleTable)
	public("GET /api/factions", "factions", s.readHandler.HandleFactions)
	public("GET /api/matches", "matches", s.readHandler.HandleRecentMatches)
	public("GET /api/players", "players", s.readHandler.HandlePlayers)
	public("GET /api/players/{id}", "player", s.readHandler.HandlePlayer)
	public("GET /api/players/{id}/history", "player_history", s.readHandler.HandlePlayerHistory)
	mux.HandleFunc("GET /api/live", s.liveHandler.HandleLive)

	public("POST /api/admin/login", "admin_login", s.sessionHandler.HandleLogin)
	admin("POST /api/admin/logout", "admin_logout", s.sessionHandler.HandleLogout)
	admin("POST /api/admin/players", "admin_add_player", s.adminHandler.HandleAddPlayer)
	admin("POST /api/admin/players/{id}/penalty", "admin_penalty", s.adminHandler.HandleApplyPenalty)
	admin("POST /api/admin/matches", "admin_add_match", s.adminHandler.HandleAddMatch)
	admin("DELETE /api/admin/matches/{id}", "admin_delete_match", s.adminHandler.HandleDeleteMatch)
	admin("GET /api/admin/matches", "admin_matches", s.adminHandler.HandleMatchPage)
	admin("GET /api/admin/matches/last-participants", "admin_last_participants", s.adminHandler.HandleLastParticipants)
	admin("GET /api/admin/consistency", "admin_consistency", s.adminHandler.HandleConsistency)
	admin("GET /api/admin/recompute", "admin_recompute", s.adminHandler.HandleRecompute)
	admin("GET /api/admin/export/{file}", "admin_export", s.adminHandler.HandleExport)
}

// Wrap adds panic recovery, request ids and CORS around h.
func (s *Server) Wrap(h http.Handler) http.Handler {
	if len(s.allowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", IdempotencyKeyHeader, RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: true,
		}).Handler(h)
	}
	return Recover(RequestID(h))
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps a service error to its status code. This is the
// only place that does so.
func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "validation_error", Message: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, model.ErrValidation), errors.Is(err, repository.ErrInvalidQuery), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrBackpressure):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		logger.Get().Named("api").Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(ErrBadRequest, err)
	}
	return nil
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, WrapKind(ErrBadRequest, errors.New(name+" must be a non-negative integer"))
	}
	return n, nil
}
