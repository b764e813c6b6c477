package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/jobs"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/scraper"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/session"
)

type Handlers struct {
	scraper *scraper.Service
	jobs    *jobs.Manager
	logger  *slog.Logger
}

func NewHandlers(scraper *scraper.Service, jobs *jobs.Manager, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: scraper,
		jobs:    jobs,
		logger:  logger,
	}
}

// SearchResponse carries the products of one synchronous run plus its
// run-level bookkeeping, so callers can see a truncated run for what it is.
type SearchResponse struct {
	Platform      string            `json:"platform"`
	Query         string            `json:"query"`
	Products      []*models.Product `json:"products"`
	Count         int               `json:"count"`
	Reason        string            `json:"termination_reason"`
	Pages         int               `json:"pages"`
	Duplicates    int               `json:"duplicates"`
	Skipped       int               `json:"skipped"`
	DegradedPages int               `json:"degraded_pages"`
	Refreshes     int               `json:"refreshes"`
	JobID         string            `json:"job_id,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Search runs a blocking scrape and returns whatever it collected.
// A run that failed mid-way still returns 200 with its partial products;
// only runs that produced nothing at all map to an error status.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !h.scraper.Supported(platform) {
		h.respondError(w, http.StatusNotFound, "unknown platform: "+platform)
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		h.respondError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	// Accept the hint under its generic name or its target-specific ones.
	location := r.URL.Query().Get("location")
	if location == "" {
		location = r.URL.Query().Get("store")
	}
	if location == "" {
		location = r.URL.Query().Get("pincode")
	}
	maxPages, _ := strconv.Atoi(r.URL.Query().Get("max_pages"))
	saveToDB, _ := strconv.ParseBool(r.URL.Query().Get("save_to_db"))

	result, err := h.scraper.Search(r.Context(), platform, query, location, maxPages)
	if err != nil && result == nil {
		h.logger.Error("search failed", "platform", platform, "query", query, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrCredentialAcquisition) {
			status = http.StatusBadGateway
		}
		h.respondError(w, status, err.Error())
		return
	}

	resp := SearchResponse{
		Platform:      platform,
		Query:         query,
		Products:      result.Products,
		Count:         len(result.Products),
		Reason:        string(result.Reason),
		Pages:         result.Pages,
		Duplicates:    result.Duplicates,
		Skipped:       result.Skipped,
		DegradedPages: result.DegradedPages,
		Refreshes:     result.Refreshes,
	}
	if resp.Products == nil {
		resp.Products = []*models.Product{}
	}
	if err != nil {
		resp.Error = err.Error()
	}

	if saveToDB && h.jobs != nil {
		job, saveErr := h.jobs.SaveRun(r.Context(), platform, query, location, h.scraper.ClampPages(maxPages), result)
		if saveErr != nil {
			h.logger.Error("failed to persist run", "error", saveErr)
		} else {
			resp.JobID = job.ID
		}
	}

	if result.Reason == pipeline.ReasonFailed && len(result.Products) == 0 {
		h.respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Platforms lists the registered targets.
func (h *Handlers) Platforms(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": h.scraper.Platforms(),
	})
}

// CreateJobRequest represents a job creation request
type CreateJobRequest struct {
	Platform    string `json:"platform"`
	SearchQuery string `json:"search_query"`
	Location    string `json:"location"`
	MaxPages    int    `json:"max_pages"`
}

// CreateJob queues a background scrape job.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SearchQuery == "" {
		h.respondError(w, http.StatusBadRequest, "search_query is required")
		return
	}
	if req.Platform == "" {
		h.respondError(w, http.StatusBadRequest, "platform is required")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Platform, req.SearchQuery, req.Location, req.MaxPages)
	if err != nil {
		if errors.Is(err, scraper.ErrUnknownPlatform) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, job)
}

// GetJob handles job status requests
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles listing recent jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

// CancelJob handles job cancellation requests
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if err := h.jobs.CancelJob(r.Context(), jobID); err != nil {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// GetJobProducts returns the products a finished or running job has stored
func (h *Handlers) GetJobProducts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	products, err := h.jobs.GetJobProducts(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to get products", "job", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get products")
		return
	}
	if products == nil {
		products = []*models.Product{}
	}

	h.respondJSON(w, http.StatusOK, products)
}

// GetStats handles statistics requests
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
