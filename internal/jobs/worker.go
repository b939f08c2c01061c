package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/queue"
)

// StartWorker processes queued jobs one at a time until ctx is done or the
// queue is closed and drained.
func (m *Manager) StartWorker(ctx context.Context) error {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		switch {
		case errors.Is(err, queue.ErrQueueClosed):
			m.logger.Info("job queue closed, worker stopping")
			return nil
		case err != nil:
			m.logger.Info("job worker stopping", "reason", err)
			return err
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	started := time.Now()
	m.update(task.ID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})
	m.logger.Info("processing job", "id", task.ID, "locality", task.Locality.Name)

	run, err := m.runner.Scrape(ctx, task.Locality)
	if err != nil {
		completed := time.Now()
		m.update(task.ID, func(j *Job) {
			j.Status = StatusFailed
			j.CompletedAt = &completed
			j.Error = err.Error()
		})
		m.logger.Error("job failed", "id", task.ID, "error", err)
		return
	}

	var sinkErrors []string
	for _, sink := range m.sinks {
		if err := sink.Save(ctx, run); err != nil {
			m.logger.Error("failed to save run", "id", task.ID, "run_id", run.ID, "error", err)
			sinkErrors = append(sinkErrors, err.Error())
		}
	}

	completed := time.Now()
	m.mu.Lock()
	if job, ok := m.jobs[task.ID]; ok {
		job.Status = StatusCompleted
		job.CompletedAt = &completed
		job.RunID = run.ID.String()
		job.ProductsFound = len(run.Products)
		job.SinkErrors = sinkErrors
		m.products[task.ID] = run.Products
	}
	m.mu.Unlock()

	m.logger.Info("job completed",
		"id", task.ID,
		"products", len(run.Products),
		"duration", completed.Sub(started))
}
