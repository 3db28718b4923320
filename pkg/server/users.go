package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weftlang/weft/pkg/stores"
)

// userRequest is the create/update body for user administration.
type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Perms    string `json:"perms"`
	Scope    string `json:"scope"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}
	perms, ok := stores.ParsePerms(req.Perms)
	if !ok {
		http.Error(w, "invalid permission list", http.StatusBadRequest)
		return
	}

	u, err := s.store.CreateUser(r.Context(), req.Username, req.Password, perms, req.Scope)
	if err != nil {
		s.logger.Error().Err(err).Str("user", req.Username).Msg("Failed to create user")
		http.Error(w, "failed to create user", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(u); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode user")
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(users); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode user list")
	}
}

// handleUpdateUser changes permissions, scope, or password for an account.
// Empty fields in the body leave the current value in place.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	current, err := s.store.GetUser(r.Context(), name)
	if errors.Is(err, stores.ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}

	perms := current.Perms
	if req.Perms != "" {
		parsed, ok := stores.ParsePerms(req.Perms)
		if !ok {
			http.Error(w, "invalid permission list", http.StatusBadRequest)
			return
		}
		perms = parsed
	}
	scope := current.Scope
	if req.Scope != "" {
		scope = req.Scope
	}

	if err := s.store.UpdateUser(r.Context(), name, perms, scope); err != nil {
		http.Error(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	if req.Password != "" {
		if err := s.store.SetPassword(r.Context(), name, req.Password); err != nil {
			http.Error(w, "failed to set password", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.store.DeleteUser(r.Context(), name)
	if errors.Is(err, stores.ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to delete user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
