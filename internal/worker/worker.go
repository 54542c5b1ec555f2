package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
)

// Sweeper runs the background reindex sweeps behind reindex tasks.
type Sweeper interface {
	ReindexReferencing(ctx context.Context, matchField string, ref domain.EntityReference) (*domain.ReindexResult, error)
	ReindexAll(ctx context.Context, entityTypes []string, recreate bool) ([]*domain.ReindexResult, error)
}

// Worker processes tasks from the task queue.
// It runs a reindex sweep for each reindex task.
type Worker struct {
	taskQueue driven.TaskQueue
	sweeper   Sweeper
	scheduler driving.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds
	purgeInterval  time.Duration
	retention      time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Sweeper        Sweeper
	Scheduler      driving.Scheduler // Optional: started and stopped with the worker
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent task processors
	DequeueTimeout int           // Seconds to wait for a task before checking again
	PurgeInterval  time.Duration // How often finished tasks are purged (default: 1h, negative disables)
	TaskRetention  time.Duration // Age after which finished tasks are purged (default: 24h)
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	purgeInterval := cfg.PurgeInterval
	if purgeInterval == 0 {
		purgeInterval = time.Hour
	}
	retention := cfg.TaskRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		sweeper:        cfg.Sweeper,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		purgeInterval:  purgeInterval,
		retention:      retention,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}
	if w.purgeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.purgeLoop(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			w.sleep(ctx, time.Second)
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// sleep waits for d unless the worker is stopping.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// processTask processes a single task.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	startTime := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypeReindexReferencing:
		err = w.handleReindexReferencing(ctx, task, logger)
	case domain.TaskTypeReindexAll:
		err = w.handleReindexAll(ctx, task, logger)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		// Nack the task so it can be retried
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handleReindexReferencing handles a reindex_referencing task. A sweep
// already running for the same reference fails the attempt so the queue
// retries it after backoff.
func (w *Worker) handleReindexReferencing(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	matchField := task.MatchField()
	ref := task.EntityRef()
	if matchField == "" || ref.ID == "" {
		return fmt.Errorf("match_field and entity_id are required in task payload")
	}

	result, err := w.sweeper.ReindexReferencing(ctx, matchField, ref)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("reindex sweep failed: %s", result.Error)
	}

	logger.Info("reindex sweep finished",
		"match_field", matchField,
		"matched", result.Stats.Matched,
		"indexed", result.Stats.Indexed,
		"errors", result.Stats.Errors,
	)
	return nil
}

// handleReindexAll handles a reindex_all task.
func (w *Worker) handleReindexAll(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	results, err := w.sweeper.ReindexAll(ctx, task.EntityTypes(), task.Recreate())
	if err != nil {
		return err
	}

	var failures []string
	for _, result := range results {
		if !result.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", result.EntityType, result.Error))
		}
	}

	if len(failures) > 0 {
		// Failed types are logged; the rest of the run stands.
		logger.Warn("some entity types failed to reindex",
			"total", len(results),
			"failed", len(failures),
			"failures", failures,
		)
	}
	return nil
}

// purgeLoop periodically removes finished tasks past the retention.
func (w *Worker) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *Worker) purge(ctx context.Context) {
	n, err := w.taskQueue.PurgeTasks(ctx, int(w.retention.Seconds()))
	if err != nil {
		w.logger.Warn("failed to purge finished tasks", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("purged finished tasks", "count", n)
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool               `json:"running"`
	QueueHealth bool               `json:"queue_health"`
	Queue       *driven.QueueStats `json:"queue,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
		return health
	}
	health.QueueHealth = true

	if stats, err := w.taskQueue.Stats(ctx); err == nil {
		health.Queue = stats
	}
	return health
}
