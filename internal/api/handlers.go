package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/metro-catalog-scraper/internal/jobs"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/queue"
)

type Handlers struct {
	jobs   *jobs.Manager
	logger *slog.Logger
}

func NewHandlers(jobs *jobs.Manager, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		logger: logger.With("component", "api"),
	}
}

// CreateScrapeRequest represents a new scraping job request
type CreateScrapeRequest struct {
	City     string `json:"city"`
	Priority int    `json:"priority"`
}

// CreateScrapeResponse represents the job creation response
type CreateScrapeResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// CreateScrape handles new scraping job creation
func (h *Handlers) CreateScrape(w http.ResponseWriter, r *http.Request) {
	var req CreateScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	city := strings.TrimSpace(req.City)
	if city == "" {
		h.respondError(w, http.StatusBadRequest, "city is required")
		return
	}

	job, err := h.jobs.Submit(r.Context(), models.Locality{Name: city}, req.Priority)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		h.respondError(w, http.StatusTooManyRequests, "too many pending jobs")
		return
	case errors.Is(err, queue.ErrQueueClosed):
		h.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateScrapeResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

// GetScrape handles job status retrieval
func (h *Handlers) GetScrape(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListScrapes(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

// GetScrapeProducts handles retrieving products found by a job
func (h *Handlers) GetScrapeProducts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	products, err := h.jobs.Products(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats())
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.Stats()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"jobs": map[string]int{
			"pending": stats.PendingJobs,
			"running": stats.RunningJobs,
		},
	})
}

// Helper methods
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
