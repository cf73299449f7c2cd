package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/registry"
)

// handleRegister registers or overwrites the calling member.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	desc, ok := s.decodeDescriptor(w, r)
	if !ok {
		return
	}

	respondStatus(w, s.registry.Register(desc))
}

// handleUpdate refreshes the calling member; unknown members are registered.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	desc, ok := s.decodeDescriptor(w, r)
	if !ok {
		return
	}

	respondStatus(w, s.registry.Heartbeat(desc))
}

// handleList returns all members of a category.
// Query params: ?type=GATE or ?type=1
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	category := models.ParseCategoryName(r.URL.Query().Get("type"))

	servers, err := s.registry.ListByCategory(category)
	if errors.Is(err, registry.ErrUnknownCategory) {
		respondJSON(w, http.StatusBadRequest, models.StatusResponse{
			Status:  models.StatusUnknownCategory,
			Message: fmt.Sprintf("server type %q does not exist", r.URL.Query().Get("type")),
		})
		return
	}

	respondJSON(w, http.StatusOK, models.ServerListResponse{Servers: servers})
}

// handleGateList returns the routable gateway list as plain text,
// "host:port;host:port" least loaded first, empty if no gateway is available.
func (s *Server) handleGateList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, s.registry.RoutableGatewayList())
}

func (s *Server) decodeDescriptor(w http.ResponseWriter, r *http.Request) (models.ServerDescriptor, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var desc models.ServerDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		log.Debug().
			Err(err).
			Str("ip", GetRealIP(r, s.trustProxy)).
			Str("path", r.URL.Path).
			Msg("Invalid JSON")

		respondJSON(w, http.StatusBadRequest, models.StatusResponse{
			Status:  models.StatusInvalid,
			Message: models.StatusInvalid.String(),
		})
		return desc, false
	}

	return desc, true
}

func respondStatus(w http.ResponseWriter, status models.Status) {
	code := http.StatusOK
	if status != models.StatusOK {
		code = http.StatusBadRequest
	}

	respondJSON(w, code, models.StatusResponse{Status: status, Message: status.String()})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
