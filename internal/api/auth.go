package api

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// requireSession validates the bearer token when sessions are enabled and
// stores the account id in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		sub, err := s.sessions.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, sub)))
	})
}

// authorize reports whether the caller may act on accountID, writing 403
// otherwise. Always true when sessions are disabled.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, accountID string) bool {
	if s.sessions == nil {
		return true
	}
	if sub, _ := r.Context().Value(subjectKey).(string); sub == accountID {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "token does not match account")
	return false
}
