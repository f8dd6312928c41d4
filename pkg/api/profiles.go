package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensnatch/snatchd/pkg/events"
	"github.com/opensnatch/snatchd/pkg/types"
)

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	aliases, err := s.profiles.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if aliases == nil {
		aliases = []string{}
	}
	writeJSON(w, http.StatusOK, aliases)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Alias       string         `json:"alias"`
		ProfileData *types.Profile `json:"profile_data"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Alias == "" || body.ProfileData == nil {
		writeError(w, http.StatusBadRequest, "alias and profile_data are required")
		return
	}
	if err := s.profiles.Upsert(body.Alias, body.ProfileData); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(&events.Event{Type: events.EventProfileCreated, Alias: body.Alias})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alias": body.Alias})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	prof, err := s.profiles.Get(alias)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := s.profiles.Delete(alias); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.publish(&events.Event{Type: events.EventProfileDeleted, Alias: alias})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSetProfileOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Order []string `json:"order"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "order is required")
		return
	}
	if err := s.profiles.SetOrder(body.Order); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
