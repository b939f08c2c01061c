package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/queue"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Runner performs one category scrape.
type Runner interface {
	Scrape(ctx context.Context, locality models.Locality) (*models.Run, error)
}

// Sink receives every successfully finished run.
type Sink interface {
	Save(ctx context.Context, run *models.Run) error
}

// Job represents a scraping job
type Job struct {
	ID            string     `json:"id"`
	Locality      string     `json:"locality"`
	Priority      int        `json:"priority"`
	Status        Status     `json:"status"`
	RunID         string     `json:"run_id,omitempty"`
	ProductsFound int        `json:"products_found"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	SinkErrors    []string   `json:"sink_errors,omitempty"`
}

// Stats represents scraper statistics
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	TotalProducts int `json:"total_products"`
}

// Manager tracks scrape jobs in memory and feeds them to a single worker.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	products map[string][]models.ProductDetail

	queue  queue.Queue
	runner Runner
	sinks  []Sink
	logger *slog.Logger
}

func NewManager(q queue.Queue, runner Runner, logger *slog.Logger, sinks ...Sink) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		products: make(map[string][]models.ProductDetail),
		queue:    q,
		runner:   runner,
		sinks:    sinks,
		logger:   logger.With("component", "job_manager"),
	}
}

// Submit creates a pending job and enqueues it.
func (m *Manager) Submit(ctx context.Context, locality models.Locality, priority int) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(locality.Name) == "" {
		return nil, fmt.Errorf("locality is required")
	}

	job := &Job{
		ID:        uuid.New().String(),
		Locality:  locality.Name,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{
		ID:        job.ID,
		Locality:  locality,
		Priority:  priority,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "locality", locality.Name)
	return job.clone(), nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.clone(), nil
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Products returns the products collected by a completed job.
func (m *Manager) Products(jobID string) ([]models.ProductDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[jobID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	products := m.products[jobID]
	out := make([]models.ProductDetail, len(products))
	copy(out, products)
	return out, nil
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs)}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalProducts += job.ProductsFound
	}
	return stats
}

func (m *Manager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		fn(job)
	}
}

func (j *Job) clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.SinkErrors = append([]string(nil), j.SinkErrors...)
	return &c
}
