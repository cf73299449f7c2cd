package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/storage"
	"github.com/woozymasta/warden/internal/vars"
)

// memberKey reads ?type= and ?id= shared by the single-member admin endpoints.
func memberKey(w http.ResponseWriter, r *http.Request) (models.Category, int, bool) {
	typeStr := r.URL.Query().Get("type")
	idStr := r.URL.Query().Get("id")

	if typeStr == "" || idStr == "" {
		http.Error(w, "Missing required params (type, id)", http.StatusBadRequest)
		return models.CategoryNone, 0, false
	}

	category := models.ParseCategoryName(typeStr)
	if !category.Valid() {
		http.Error(w, "Unknown server type", http.StatusBadRequest)
		return models.CategoryNone, 0, false
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return models.CategoryNone, 0, false
	}

	return category, id, true
}

// handleGetServer returns a single member.
// Query params: ?type=GAME&id=7
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	category, id, ok := memberKey(w, r)
	if !ok {
		return
	}

	rec, found := s.registry.Get(category, id)
	if !found {
		http.NotFound(w, r)
		return
	}

	respondJSON(w, http.StatusOK, rec.Descriptor())
}

// handleDeregister evicts a member without waiting for the liveness timeout.
// Query params: ?type=GAME&id=7
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	category, id, ok := memberKey(w, r)
	if !ok {
		return
	}

	if !s.registry.Deregister(category, id) {
		http.NotFound(w, r)
		return
	}

	respondStatus(w, models.StatusOK)
}

// handleProbe performs a live A2S query against a registered member.
// Query params: ?type=GAME&id=7
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	category, id, ok := memberKey(w, r)
	if !ok {
		return
	}

	rec, found := s.registry.Get(category, id)
	if !found {
		http.NotFound(w, r)
		return
	}

	info, err := s.probe(&rec, s.a2sOptions)
	if err != nil {
		log.Debug().
			Err(err).
			Str("category", category.String()).
			Int("id", id).
			Msg("A2S probe failed")

		respondJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, info)
}

// handleGates returns the ranked gateway list including gateways excluded from routing.
func (s *Server) handleGates(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Gateways())
}

// handleEvents returns recent journal events.
// Query params: ?type=GATE&limit=50, both optional
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "Journal disabled", http.StatusServiceUnavailable)
		return
	}

	category := models.CategoryNone
	if t := r.URL.Query().Get("type"); t != "" {
		category = models.ParseCategoryName(t)
		if !category.Valid() {
			http.Error(w, "Unknown server type", http.StatusBadRequest)
			return
		}
	}

	limit := storage.DefaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.events.RecentEvents(category, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch journal events")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, vars.Info())
}
