// Package httpapi exposes the synchronous admin and login surface: small
// request/response wrappers over the coordinator for clients that have no
// live connection yet.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gameshowlab/podium/internal/game"
	"github.com/gameshowlab/podium/internal/session"
	"github.com/rs/zerolog/log"
)

// AdminCreds is the configured administrator credential pair. Plain
// comparison; this surface is a game login, not an auth system.
type AdminCreds struct {
	Username string
	Password string
}

// API serves the HTTP surface.
type API struct {
	coord *game.Coordinator
	creds AdminCreds
}

// New returns the HTTP API over coord.
func New(coord *game.Coordinator, creds AdminCreds) *API {
	return &API{coord: coord, creds: creds}
}

// RegisterRoutes mounts all endpoints.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", a.requireAdmin(a.handleBeginSession))
	mux.HandleFunc("POST /api/session/restore", a.requireAdmin(a.handleRestoreSession))
	mux.HandleFunc("DELETE /api/session", a.requireAdmin(a.handleEndSession))
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("POST /api/logout", a.handleLogout)
	mux.HandleFunc("GET /api/room", a.handleSnapshot)
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(a.creds.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(a.creds.Password)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid administrator credentials")
			return
		}
		next(w, r)
	}
}

func (a *API) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	code, err := a.coord.BeginSession(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("begin session failed")
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

func (a *API) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	code, err := a.coord.RestoreSession(r.Context())
	if errors.Is(err, session.ErrSessionStale) {
		writeError(w, http.StatusNotFound, "no persisted session to restore")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("restore session failed")
		writeError(w, http.StatusInternalServerError, "could not restore session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.coord.EndSession(r.Context(), req.Code); err != nil {
		writeRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string         `json:"code"`
		Seat  session.SeatID `json:"seat"`
		Name  string         `json:"name"`
		Token string         `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	result, err := a.coord.LoginSeat(r.Context(), req.Code, req.Seat, req.Name, req.Token)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string         `json:"code"`
		Seat session.SeatID `json:"seat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.coord.LogoutSeat(r.Context(), req.Code, req.Seat); err != nil {
		writeRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	writeJSON(w, http.StatusOK, a.coord.Snapshot(r.Context(), code))
}

// writeRejection maps the error taxonomy to distinguishable HTTP responses.
func writeRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidSeat):
		writeError(w, http.StatusBadRequest, "unknown seat id")
	case errors.Is(err, session.ErrSeatTaken):
		writeError(w, http.StatusConflict, "seat is held by another player")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "possession token mismatch")
	case errors.Is(err, session.ErrSessionStale):
		writeError(w, http.StatusGone, "session is not active or code is stale")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
