package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensnatch/snatchd/pkg/oci"
)

const (
	sessionCookie = "snatchd_session"
	sessionTTL    = 24 * time.Hour
)

type session struct {
	alias   string
	expires time.Time
}

// sessionStore is the in-memory cookie session table. Sessions do not
// survive a restart; the Bearer key does.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]session)}
}

func (st *sessionStore) create(alias string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	token := uuid.NewString()
	st.sessions[token] = session{alias: alias, expires: time.Now().Add(sessionTTL)}
	return token
}

func (st *sessionStore) lookup(token string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[token]
	if !ok {
		return "", false
	}
	if time.Now().After(sess.expires) {
		delete(st.sessions, token)
		return "", false
	}
	return sess.alias, true
}

// sessionAlias resolves the request's session cookie to a profile alias.
func (s *Server) sessionAlias(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	return s.sessions.lookup(cookie.Value)
}

// handleOpenSession validates a profile's credentials against the
// provider and binds the session cookie to that alias.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Alias string `json:"alias"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Alias == "" {
		writeError(w, http.StatusBadRequest, "alias is required")
		return
	}

	prof, err := s.profiles.Get(body.Alias)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown profile "+body.Alias)
		return
	}

	if _, err := s.clients(r.Context(), prof, true); err != nil {
		switch {
		case errors.Is(err, oci.ErrUnreachable):
			writeError(w, http.StatusGatewayTimeout, "credential validation timed out: "+err.Error())
		case errors.Is(err, oci.ErrProxy):
			writeError(w, http.StatusBadGateway, "proxy unusable: "+err.Error())
		default:
			writeError(w, http.StatusUnauthorized, "credential validation failed: "+err.Error())
		}
		return
	}

	token := s.sessions.create(body.Alias)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alias": body.Alias})
}
