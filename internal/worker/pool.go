package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/services/story"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("analysis queue is full")
	// ErrPoolStopped is returned by Submit after Stop has been called
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Analyzer runs one story analysis
type Analyzer interface {
	Analyze(ctx context.Context, req story.Request) story.Response
}

// WorkerPool runs queued story analyses on a fixed number of workers
type WorkerPool struct {
	analyzer   Analyzer
	logger     arbor.ILogger
	numWorkers int
	jobs       chan story.Request
	wg         sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewWorkerPool(analyzer Analyzer, logger arbor.ILogger, numWorkers, queueSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	return &WorkerPool{
		analyzer:   analyzer,
		logger:     logger,
		numWorkers: numWorkers,
		jobs:       make(chan story.Request, queueSize),
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.stopped {
		return
	}
	wp.started = true

	wp.logger.Info().
		Int("num_workers", wp.numWorkers).
		Int("queue_size", cap(wp.jobs)).
		Msg("Starting worker pool")

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues a request without blocking
func (wp *WorkerPool) Submit(req story.Request) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobs <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work and waits for queued and running analyses to finish.
// A run that outlives ctx keeps going; Stop returns the context error.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	pending := len(wp.jobs)
	close(wp.jobs)
	wp.mu.Unlock()

	wp.logger.Info().Int("pending", pending).Msg("Stopping worker pool...")

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info().Msg("Worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.logger.Warn().Err(ctx.Err()).Msg("Worker pool did not drain before timeout")
		return fmt.Errorf("worker pool stop: %w", ctx.Err())
	}
}

// worker is the main worker loop
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	for req := range wp.jobs {
		wp.process(workerID, req)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker stopping")
}

// process runs one analysis; a panic is logged and the worker carries on
func (wp *WorkerPool) process(workerID int, req story.Request) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", workerID).
				Str("emiten", req.Emiten).
				Str("id", req.RecordID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Analysis panicked in worker")
		}
	}()

	wp.logger.Info().
		Int("worker_id", workerID).
		Str("emiten", req.Emiten).
		Str("id", req.RecordID).
		Msg("Processing story analysis")

	resp := wp.analyzer.Analyze(context.Background(), req)

	event := wp.logger.Info()
	if resp.StatusCode >= 400 {
		event = wp.logger.Warn().Str("error", resp.Body.Error)
	}
	event.
		Int("worker_id", workerID).
		Str("emiten", req.Emiten).
		Str("id", req.RecordID).
		Int("status", resp.StatusCode).
		Msg("Story analysis finished")
}
