// ABOUTME: HTTP handler for the read-only jobs listing endpoint.
// ABOUTME: Jobs are scoped to the caller's project through payload check_code.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// jobsResponse wraps the job list; an empty result serializes as
// {"jobs": []}, never null.
type jobsResponse struct {
	Jobs []store.APIJob `json:"jobs"`
}

// listJobsHandler returns the jobs visible to the authenticated project:
// those whose payload references one of the project's checks. Supports
// optional status, job_type and limit query filters.
func (srv *Server) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	f := store.JobFilter{
		Status:  r.URL.Query().Get("status"),
		JobType: r.URL.Query().Get("job_type"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	jobs, err := srv.store.ListProjectJobs(r.Context(), projectID(r), f)
	if err != nil {
		slog.ErrorContext(r.Context(), "list jobs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := jobsResponse{Jobs: make([]store.APIJob, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, j.ToAPI())
	}
	writeJSON(w, http.StatusOK, resp)
}
