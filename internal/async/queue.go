package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sheetsnap/sheetsnap/internal/pipeline"
)

// Job is one queued extraction request.
type Job struct {
	Request pipeline.Request
}

// Queue runs pipeline requests on a bounded worker pool. Each job gets its
// own timeout context; shutdown drains queued work before returning.
type Queue struct {
	pipe    *pipeline.Pipeline
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(pipe *pipeline.Pipeline, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		pipe:    pipe,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.pipe.Run(ctx, job.Request)
					cancel()

					if err != nil {
						q.logger.Error("processing failed", "worker_id", workerID, "user_id", job.Request.UserID, "error", err)
					} else {
						q.logger.Info("processed request", "worker_id", workerID, "user_id", job.Request.UserID, "document_id", res.DocumentID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a job, blocking when the queue is full (backpressure).
func (q *Queue) Enqueue(_ context.Context, job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "user_id", job.Request.UserID)
		return
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued request", "user_id", job.Request.UserID)
	default:
		q.logger.Warn("queue full, applying backpressure", "user_id", job.Request.UserID)
		q.ch <- job
	}
}

// Shutdown stops intake, drains in-flight work and waits for the workers,
// bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
