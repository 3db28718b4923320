package server

import (
	"context"
	"net/http"

	"github.com/weftlang/weft/pkg/stores"
)

type userContextKey struct{}

// requireAuth wraps a handler with basic authentication and a permission
// check. The authenticated account is stashed in the request context.
func (s *Server) requireAuth(perm stores.Perm, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			s.reject(w, "authentication required")
			return
		}
		user, err := s.store.Authenticate(r.Context(), username, password)
		if err != nil {
			s.reject(w, "bad credentials")
			return
		}
		if !user.Perms.Has(perm) {
			s.logger.Warn().Str("user", username).Str("perm", perm.String()).Msg("Permission denied")
			http.Error(w, "permission denied", http.StatusForbidden)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
	})
}

func (s *Server) reject(w http.ResponseWriter, msg string) {
	s.metrics.AuthFailure()
	w.Header().Set("WWW-Authenticate", `Basic realm="weft"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// requestUser returns the authenticated account for a request.
func requestUser(r *http.Request) *stores.User {
	u, _ := r.Context().Value(userContextKey{}).(*stores.User)
	return u
}
