package api

import (
	"net/http"
)

// ReadHandler serves the public pages.
type ReadHandler struct {
	deps ReadDependencies
}

// NewReadHandler creates a new read handler.
func NewReadHandler(deps ReadDependencies) *ReadHandler {
	return &ReadHandler{deps: deps}
}

// HandleLeaderboard handles GET /api/leaderboard?limit=N requests.
func (h *ReadHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := intParam(r, "limit")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	rows, err := h.deps.Leaderboard(r.Context(), n)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleRoleTable handles GET /api/roles/{role} requests.
func (h *ReadHandler) HandleRoleTable(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.RoleTable(r.Context(), r.PathValue("role"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.get_role_table", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleFactions handles GET /api/factions requests.
func (h *ReadHandler) HandleFactions(w http.ResponseWriter, r *http.Request) {
	f, err := h.deps.Factions(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, "api.get_factions", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleRecentMatches handles GET /api/matches?limit=N requests.
func (h *ReadHandler) HandleRecentMatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_matches"
	n, err := intParam(r, "limit")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	matches, err := h.deps.RecentMatches(r.Context(), n)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandlePlayers handles GET /api/players requests.
func (h *ReadHandler) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.deps.Players(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, "api.get_players", err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// HandlePlayer handles GET /api/players/{id} requests.
func (h *ReadHandler) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Player(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.get_player", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePlayerHistory handles GET /api/players/{id}/history?limit=N requests.
func (h *ReadHandler) HandlePlayerHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_history"
	n, err := intParam(r, "limit")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	hist, err := h.deps.PlayerHistory(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}
