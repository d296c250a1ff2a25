// Package worker provides an asynchronous worker pool that keeps the vector
// index of each conversation in step with its stored turns.
//
// The pool decouples embedding and vector writes from the completion hot
// path: the coordinator enqueues a job after the assistant turn is persisted
// and returns to the client immediately.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/chatmerge/pkg/embeddings"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	maxParallelEmbeds        = 4
)

// Kind is the type of work a Job performs.
type Kind string

const (
	// KindIndex embeds and upserts turns into their conversation namespace.
	KindIndex Kind = "index"

	// KindDelete removes a conversation namespace.
	KindDelete Kind = "delete"
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Kind      Kind
	Namespace string
	Turns     []*storage.Turn
}

// IndexJob builds a job that indexes turns into the namespace of conversationID.
func IndexJob(conversationID string, turns ...*storage.Turn) Job {
	return Job{Kind: KindIndex, Namespace: conversationID, Turns: turns}
}

// DeleteJob builds a job that removes the namespace of conversationID.
func DeleteJob(conversationID string) Job {
	return Job{Kind: KindDelete, Namespace: conversationID}
}

// JobError reports a failed background job.
type JobError struct {
	Job Job
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s job for %s: %v", e.Job.Kind, e.Job.Namespace, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Vectors resolves the vector store for the current credential.
	Vectors vector.Resolver

	// Embedder generates the embeddings for indexed turns.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes vector jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	errs   chan error
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against sends racing Close.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		errs:   make(chan error, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"kind", job.Kind,
			"namespace", job.Namespace,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"kind", job.Kind,
			"namespace", job.Namespace,
			"turns", len(job.Turns),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"kind", job.Kind,
			"namespace", job.Namespace,
		)
		return false
	}
}

// Errors returns the channel failed jobs are reported on. Reports are
// dropped when nobody drains the channel and it is full. The channel is
// closed by Close.
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		close(p.errs)
	})
}

// worker is the inner worker loop that continuously pulls jobs off the jobs queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	err := p.run(ctx, job)
	switch {
	case err == nil:
		return
	case errors.Is(err, vector.ErrNotConfigured):
		p.logger.Debug("vector store not configured, job skipped",
			"kind", job.Kind,
			"namespace", job.Namespace,
		)
		return
	}

	p.logger.Warn("background vector job failed",
		"kind", job.Kind,
		"namespace", job.Namespace,
		"error", err,
	)

	select {
	case p.errs <- &JobError{Job: job, Err: err}:
	default:
	}
}

func (p *Pool) run(ctx context.Context, job Job) error {
	if p.config.Vectors == nil {
		return vector.ErrNotConfigured
	}

	driver, err := p.config.Vectors.Resolve(ctx)
	if err != nil {
		return err
	}

	switch job.Kind {
	case KindIndex:
		return p.index(ctx, driver, job)
	case KindDelete:
		if err := driver.DeleteNamespace(ctx, job.Namespace); err != nil {
			return fmt.Errorf("deleting namespace: %w", err)
		}
		p.logger.Info("namespace deleted", "namespace", job.Namespace)
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// index embeds every turn concurrently and upserts the records in one batch.
func (p *Pool) index(ctx context.Context, driver vector.Driver, job Job) error {
	if p.config.Embedder == nil {
		return vector.ErrNotConfigured
	}

	turns := make([]*storage.Turn, 0, len(job.Turns))
	for _, t := range job.Turns {
		if t != nil && IndexText(t) != "" {
			turns = append(turns, t)
		}
	}
	if len(turns) == 0 {
		return nil
	}

	records := make([]vector.Record, len(turns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelEmbeds)
	for i, t := range turns {
		g.Go(func() error {
			values, err := p.config.Embedder.Embed(gctx, IndexText(t))
			if err != nil {
				return fmt.Errorf("%w: turn %s: %w", vector.ErrEmbedding, t.ID, err)
			}
			records[i] = Record(t, values)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := driver.Upsert(ctx, job.Namespace, records); err != nil {
		return fmt.Errorf("upserting turns: %w", err)
	}

	p.logger.Debug("turns indexed",
		"namespace", job.Namespace,
		"count", len(records),
	)
	return nil
}
