package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Task asks for one category scrape for a locality.
type Task struct {
	ID        string
	Locality  models.Locality
	Priority  int
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	TryPop() (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue orders tasks by descending priority, FIFO within a priority.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   []*Task
	maxSize int
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

// NewInMemoryQueue creates a queue holding at most maxSize tasks; zero means unbounded.
func NewInMemoryQueue(maxSize int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks:   make([]*Task, 0),
		maxSize: maxSize,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.maxSize > 0 && len(q.tasks) >= q.maxSize {
		return ErrQueueFull
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	q.sortByPriority()
	q.signal()

	return nil
}

// Pop blocks until a task is available, the queue is closed and drained,
// or ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		task, err := q.TryPop()
		if !errors.Is(err, ErrQueueEmpty) {
			return task, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// TryPop returns the next task without waiting.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]

	// Wake the next waiter if work remains.
	if len(q.tasks) > 0 {
		q.signal()
	}

	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further pushes. Queued tasks can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *InMemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) sortByPriority() {
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
}
