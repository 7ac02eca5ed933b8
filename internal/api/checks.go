// ABOUTME: HTTP handlers for listing and creating checks.
// ABOUTME: Creation requires a read-write API key; listing accepts read-only.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// checkEntry is the serialized check shape.
type checkEntry struct {
	UUID     string     `json:"uuid"`
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	LastPing *time.Time `json:"last_ping"`
	Created  time.Time  `json:"created"`
}

func toCheckEntry(c *store.Check) checkEntry {
	return checkEntry{
		UUID:     c.Code.String(),
		Name:     c.Name,
		Status:   c.Status,
		LastPing: c.LastPing,
		Created:  c.Created,
	}
}

type checksResponse struct {
	Checks []checkEntry `json:"checks"`
}

// listChecksHandler returns the authenticated project's checks.
func (srv *Server) listChecksHandler(w http.ResponseWriter, r *http.Request) {
	checks, err := srv.store.ListProjectChecks(r.Context(), projectID(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "list checks", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := checksResponse{Checks: make([]checkEntry, 0, len(checks))}
	for _, c := range checks {
		resp.Checks = append(resp.Checks, toCheckEntry(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createCheckRequest struct {
	Name string `json:"name"`
}

// createCheckHandler creates a check in the authenticated project.
func (srv *Server) createCheckHandler(w http.ResponseWriter, r *http.Request) {
	var req createCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Name) > 100 {
		http.Error(w, "name too long (max 100)", http.StatusBadRequest)
		return
	}

	check, err := srv.store.CreateCheck(r.Context(), projectID(r), req.Name)
	if err != nil {
		slog.ErrorContext(r.Context(), "create check", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckEntry(check))
}
