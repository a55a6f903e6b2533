package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
)

type (
	credentialsRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	authResponse struct {
		Token string        `json:"token"`
		User  principalJSON `json:"user"`
	}
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	principal, err := s.auth.RegisterUser(r.Context(), creds.Email, creds.Password)
	if err != nil {
		if strings.Contains(err.Error(), "already registered") {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	token, err := s.tokens.Issue(principal)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "token issue failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "user registered", log.FieldUserID, principal.ID)
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: toPrincipalJSON(principal)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	principal, err := s.auth.SignIn(r.Context(), creds.Email, creds.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Issue(principal)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "token issue failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{Token: token, User: toPrincipalJSON(principal)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.SignOut(r.Context()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "sign out failed", log.FieldError, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	respondJSON(w, http.StatusOK, toPrincipalJSON(principal))
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var creds credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return creds, false
	}
	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))
	if creds.Email == "" || creds.Password == "" {
		respondError(w, http.StatusUnprocessableEntity, "email and password are required")
		return creds, false
	}
	return creds, true
}
