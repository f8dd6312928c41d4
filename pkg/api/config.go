package api

import (
	"net/http"

	"github.com/opensnatch/snatchd/pkg/types"
)

func (s *Server) handleGetTelegramConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.profiles.TelegramSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetTelegramConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.TelegramSettings
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid telegram config")
		return
	}
	if err := s.profiles.SetTelegramSettings(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetCloudflareConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.profiles.CloudflareSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetCloudflareConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.CloudflareSettings
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cloudflare config")
		return
	}
	if err := s.profiles.SetCloudflareSettings(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetDefaultSSHKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.profiles.DefaultSSHKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleSetDefaultSSHKey(w http.ResponseWriter, r *http.Request) {
	var key types.DefaultSSHKey
	if err := decodeJSON(r, &key); err != nil {
		writeError(w, http.StatusBadRequest, "invalid ssh key payload")
		return
	}
	if err := s.profiles.SetDefaultSSHKey(&key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
