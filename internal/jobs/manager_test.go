package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Scrape(ctx context.Context, locality models.Locality) (*models.Run, error) {
	args := m.Called(ctx, locality)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Run), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Save(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedRun(locality models.Locality) *models.Run {
	run := models.NewRun(locality)
	run.FinishedAt = time.Now()
	run.Products = []models.ProductDetail{
		models.NewProductDetail("42", "Alpen Gold", "https://shop.test/p/42", "", "119", "Alpen Gold"),
	}
	return run
}

func runWorker(t *testing.T, m *Manager, q *queue.InMemoryQueue) {
	t.Helper()
	require.NoError(t, q.Close())

	done := make(chan error, 1)
	go func() { done <- m.StartWorker(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
}

func TestManager_SubmitAndGet(t *testing.T) {
	q := queue.NewInMemoryQueue(0)
	m := NewManager(q, new(MockRunner), testLogger())

	job, err := m.Submit(context.Background(), models.Locality{Name: "Москва"}, 1)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "Москва", job.Locality)
	assert.Equal(t, 1, q.Size())

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	got.Status = StatusFailed
	again, _ := m.Get(job.ID)
	assert.Equal(t, StatusPending, again.Status, "Get returns a snapshot")
}

func TestManager_SubmitValidation(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(0), new(MockRunner), testLogger())

	_, err := m.Submit(context.Background(), models.Locality{Name: " "}, 0)
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestManager_SubmitQueueFull(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(1), new(MockRunner), testLogger())

	_, err := m.Submit(context.Background(), models.Locality{Name: "Москва"}, 0)
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), models.Locality{Name: "Казань"}, 0)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Len(t, m.List(), 1)
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(0), new(MockRunner), testLogger())

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = m.Products("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_WorkerCompletesJob(t *testing.T) {
	moscow := models.Locality{Name: "Москва"}
	run := completedRun(moscow)

	runner := new(MockRunner)
	runner.On("Scrape", mock.Anything, moscow).Return(run, nil).Once()

	sink := new(MockSink)
	sink.On("Save", mock.Anything, run).Return(nil).Once()

	q := queue.NewInMemoryQueue(0)
	m := NewManager(q, runner, testLogger(), sink)

	job, err := m.Submit(context.Background(), moscow, 0)
	require.NoError(t, err)

	runWorker(t, m, q)

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, run.ID.String(), got.RunID)
	assert.Equal(t, 1, got.ProductsFound)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.SinkErrors)

	products, err := m.Products(job.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Products, products)

	runner.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestManager_WorkerRecordsFailure(t *testing.T) {
	moscow := models.Locality{Name: "Москва"}

	runner := new(MockRunner)
	runner.On("Scrape", mock.Anything, moscow).Return(nil, errors.New("engine unavailable")).Once()

	sink := new(MockSink)

	q := queue.NewInMemoryQueue(0)
	m := NewManager(q, runner, testLogger(), sink)

	job, err := m.Submit(context.Background(), moscow, 0)
	require.NoError(t, err)

	runWorker(t, m, q)

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "engine unavailable", got.Error)
	sink.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestManager_SinkErrorsDoNotFailJob(t *testing.T) {
	moscow := models.Locality{Name: "Москва"}
	run := completedRun(moscow)

	runner := new(MockRunner)
	runner.On("Scrape", mock.Anything, moscow).Return(run, nil)

	failing := new(MockSink)
	failing.On("Save", mock.Anything, run).Return(errors.New("redis down"))
	healthy := new(MockSink)
	healthy.On("Save", mock.Anything, run).Return(nil)

	q := queue.NewInMemoryQueue(0)
	m := NewManager(q, runner, testLogger(), failing, healthy)

	job, err := m.Submit(context.Background(), moscow, 0)
	require.NoError(t, err)

	runWorker(t, m, q)

	got, _ := m.Get(job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"redis down"}, got.SinkErrors)
	healthy.AssertExpectations(t)
}

func TestManager_ListAndStats(t *testing.T) {
	moscow := models.Locality{Name: "Москва"}
	kazan := models.Locality{Name: "Казань"}

	runner := new(MockRunner)
	runner.On("Scrape", mock.Anything, moscow).Return(completedRun(moscow), nil)
	runner.On("Scrape", mock.Anything, kazan).Return(nil, errors.New("boom"))

	q := queue.NewInMemoryQueue(0)
	m := NewManager(q, runner, testLogger())

	first, err := m.Submit(context.Background(), moscow, 0)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := m.Submit(context.Background(), kazan, 0)
	require.NoError(t, err)

	assert.Equal(t, Stats{TotalJobs: 2, PendingJobs: 2}, m.Stats())

	runWorker(t, m, q)

	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	assert.Equal(t, Stats{TotalJobs: 2, CompletedJobs: 1, FailedJobs: 1, TotalProducts: 1}, m.Stats())
}

func TestManager_WorkerStopsOnCancel(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(0), new(MockRunner), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.StartWorker(ctx), context.Canceled)
}
