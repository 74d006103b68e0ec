// Package handlers implements the HTTP API of the household bank.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/family-bank/internal/api/middleware"
	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/jobs"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/rs/zerolog"
)

// writeServiceError maps a core error onto an HTTP status. Validation
// problems are echoed to the client; backend details are only logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	log := logger.FromContext(r.Context())

	switch {
	case domain.IsValidation(err), errors.Is(err, ledger.ErrInsufficientFunds):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case domain.IsWriteFailure(err):
		log.Error().Err(err).Msg("Failed to " + action)
		middleware.WriteError(w, http.StatusBadGateway, "Failed to "+action)
	default:
		log.Error().Err(err).Msg("Failed to " + action)
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// Routes registers the jobs endpoints on mux.
func (h *JobsHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
}

// GetJob handles GET /api/jobs/{id}. Jobs of other households are
// reported as missing.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err == nil && job.HouseholdID != middleware.HouseholdFromContext(ctx) {
		err = jobs.ErrJobNotFound
	}
	if err != nil {
		writeServiceError(w, r, err, "get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		HouseholdID: middleware.HouseholdFromContext(ctx),
		MemberID:    query.Get("member_id"),
		Type:        jobs.JobType(query.Get("type")),
		Status:      jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.Job{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health.
func Health(clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   clk.Now().Format(time.RFC3339),
		})
	}
}
