package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/export"
	"github.com/okian/scoreboard/internal/domain/model"
)

// IdempotencyKeyHeader makes a match submission safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// AdminHandler serves the admin panel.
type AdminHandler struct {
	deps AdminDependencies
	now  func() time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, now func() time.Time) *AdminHandler {
	return &AdminHandler{deps: deps, now: now}
}

type addPlayerRequest struct {
	Name string `json:"name"`
}

type addMatchRequest struct {
	Winner  string                   `json:"winner"`
	Players []model.ParticipantInput `json:"players"`
}

// HandleAddPlayer handles POST /api/admin/players requests.
func (h *AdminHandler) HandleAddPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_player"
	var req addPlayerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	p, err := h.deps.AddPlayer(r.Context(), req.Name)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleAddMatch handles POST /api/admin/matches requests.
func (h *AdminHandler) HandleAddMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_match"
	var req addMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	m, err := h.deps.AddMatch(r.Context(), service.MatchRequest{
		Winner:         model.Faction(req.Winner),
		Players:        req.Players,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleDeleteMatch handles DELETE /api/admin/matches/{id} requests.
func (h *AdminHandler) HandleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.DeleteMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.delete_match", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleApplyPenalty handles POST /api/admin/players/{id}/penalty requests.
func (h *AdminHandler) HandleApplyPenalty(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.ApplyPenalty(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, "api.apply_penalty", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleMatchPage handles GET /api/admin/matches?page=&size= requests.
func (h *AdminHandler) HandleMatchPage(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_page"
	page, err := intParam(r, "page")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	size, err := intParam(r, "size")
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	p, err := h.deps.MatchPage(r.Context(), page, size)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleLastParticipants handles GET /api/admin/matches/last-participants.
func (h *AdminHandler) HandleLastParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.deps.LastParticipants(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, "api.last_participants", err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// HandleConsistency handles GET /api/admin/consistency requests.
func (h *AdminHandler) HandleConsistency(w http.ResponseWriter, r *http.Request) {
	found, err := h.deps.CheckConsistency(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, "api.consistency", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent":    len(found) == 0,
		"discrepancies": found,
	})
}

// HandleRecompute handles GET /api/admin/recompute requests.
func (h *AdminHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Recompute(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, "api.recompute", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleExport handles GET /api/admin/export/{kind}.csv requests.
func (h *AdminHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	file := r.PathValue("file")
	if !strings.HasSuffix(file, ".csv") {
		http.NotFound(w, r)
		return
	}
	kind, err := export.ParseKind(file)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Export(r.Context(), kind, &buf); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(kind, h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
