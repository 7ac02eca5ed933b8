// ABOUTME: Unauthenticated ping ingestion keyed by check code.
// ABOUTME: A status-changing ping enqueues a send_alert job via the store.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// pingHandler records a ping of the given action against the check named in
// the URL. Monitored clients hit this from cron jobs and shell scripts, so
// both GET and POST are accepted and the body is a bare "OK".
func (srv *Server) pingHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost &&
			r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		code, err := uuid.Parse(chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		check, err := srv.store.GetCheckByCode(r.Context(), code)
		if err != nil {
			slog.ErrorContext(r.Context(), "ping: lookup check", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if check == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		if _, err := srv.store.RegisterPing(r.Context(), check, action, r.RemoteAddr); err != nil {
			slog.ErrorContext(r.Context(), "ping: register",
				"check", check.Code, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK\n")) //nolint:errcheck
	}
}
