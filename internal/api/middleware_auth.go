// ABOUTME: RequireAPIKey middleware for X-Api-Key header authentication.
// ABOUTME: Injects the key's project (and read-only flag) into the request context.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/auth"
)

// RequireAPIKey returns a middleware that requires a valid X-Api-Key header.
// Read-only keys are accepted only when readOnlyOK is true — listing
// endpoints pass true, mutating endpoints false. On success the project id
// and read-only flag are injected into the request context.
func (srv *Server) RequireAPIKey(readOnlyOK bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-Api-Key")
			if rawKey == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}

			hash := auth.HashAPIKey(rawKey)
			key, err := srv.store.LookupAPIKey(r.Context(), hash)
			if err != nil || key == nil {
				http.Error(w, "wrong api key", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
				http.Error(w, "wrong api key", http.StatusUnauthorized)
				return
			}
			if key.ReadOnly && !readOnlyOK {
				http.Error(w, "read-only api key", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxProjectID, key.ProjectID)
			ctx = context.WithValue(ctx, ctxReadOnly, key.ReadOnly)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// projectID returns the authenticated project id injected by RequireAPIKey.
func projectID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxProjectID).(int64)
	return id
}
