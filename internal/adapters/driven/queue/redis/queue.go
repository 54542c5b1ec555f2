// Package redis provides a TaskQueue on Redis Streams. It is the preferred
// queue when Redis is configured.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

const (
	keyPrefix   = "sercha-catalog:queue:"
	workerGroup = "workers"

	// taskTTL bounds how long finished task records stay readable.
	taskTTL = 24 * time.Hour

	// claimTimeout is how long a delivered task may stay unacknowledged
	// before another worker takes it over.
	claimTimeout = 5 * time.Minute
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Config configures a Queue.
type Config struct {
	// Queue names the task partition; DefaultQueue when empty.
	Queue string
	// Consumer identifies this worker within the consumer group.
	Consumer string
	Logger   *slog.Logger
}

// Queue implements TaskQueue with one Redis stream and consumer group per
// queue name. Task records live in plain keys; delayed tasks wait in a
// sorted set until they are due.
type Queue struct {
	client   *redis.Client
	queue    string
	consumer string
	logger   *slog.Logger

	stream    string
	scheduled string
	inflight  string
	taskKey   string
}

// NewQueue creates the queue and its consumer group.
func NewQueue(ctx context.Context, client *redis.Client, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = domain.DefaultQueue
	}
	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	prefix := keyPrefix + cfg.Queue + ":"
	q := &Queue{
		client:    client,
		queue:     cfg.Queue,
		consumer:  cfg.Consumer,
		logger:    cfg.Logger.With("queue", cfg.Queue),
		stream:    prefix + "stream",
		scheduled: prefix + "scheduled",
		inflight:  prefix + "inflight",
		taskKey:   prefix + "task:",
	}

	err := client.XGroupCreateMkStream(ctx, q.stream, workerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

// push stages a task record and either its stream entry or its delayed
// slot on pipe.
func (q *Queue) push(ctx context.Context, pipe redis.Pipeliner, task *domain.Task, now time.Time) error {
	if task.Queue == "" {
		task.Queue = q.queue
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, q.taskKey+task.ID, data, taskTTL)
	if task.ScheduledFor.After(now) {
		pipe.ZAdd(ctx, q.scheduled, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
		return nil
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"task_id": task.ID, "type": string(task.Type)},
	})
	return nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds tasks in one MULTI/EXEC transaction.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	now := time.Now()
	pipe := q.client.TxPipeline()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.push(ctx, pipe, task, now); err != nil {
			return err
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue returns the next ready task without blocking, or nil.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.dequeue(ctx, -1)
}

// DequeueWithTimeout waits up to timeout seconds for a task.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if timeout <= 0 {
		return q.dequeue(ctx, -1)
	}
	return q.dequeue(ctx, time.Duration(timeout)*time.Second)
}

// dequeue reads one entry from the stream. A negative block returns
// immediately when the stream is empty.
func (q *Queue) dequeue(ctx context.Context, block time.Duration) (*domain.Task, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("promote delayed tasks failed", "error", err)
	}

	if task, err := q.claimAbandoned(ctx); err != nil {
		q.logger.Debug("claim abandoned tasks failed", "error", err)
	} else if task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    workerGroup,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.start(ctx, streams[0].Messages[0])
}

// start marks the task behind a delivered message as processing. Messages
// whose task record is gone are dropped.
func (q *Queue) start(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusProcessing {
		// cancelled or already finished
		q.drop(ctx, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.taskKey+task.ID, data, taskTTL)
	pipe.HSet(ctx, q.inflight, task.ID, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark task %s processing: %w", task.ID, err)
	}
	return task, nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	pipe := q.client.Pipeline()
	pipe.XAck(ctx, q.stream, workerGroup, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("drop stream entry failed", "message_id", msgID, "error", err)
	}
}

// finish acknowledges the stream entry of taskID and stores its new state.
// extra runs on the same transaction.
func (q *Queue) finish(ctx context.Context, task *domain.Task, extra func(redis.Pipeliner)) error {
	msgID, err := q.client.HGet(ctx, q.inflight, task.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message of task %s: %w", task.ID, err)
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, q.stream, workerGroup, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	pipe.HDel(ctx, q.inflight, task.ID)
	pipe.Set(ctx, q.taskKey+task.ID, data, taskTTL)
	if extra != nil {
		extra(pipe)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return nil
}

// Ack marks a task completed and removes its stream entry.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	return q.finish(ctx, task, nil)
}

// Nack records a failure. Retries wait in the delayed set with exponential
// backoff until attempts run out.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !task.CanRetry() {
		task.MarkFailed(reason)
		return q.finish(ctx, task, nil)
	}
	task.Retry(reason)
	return q.finish(ctx, task, func(pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, q.scheduled, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	})
}

// GetTask returns the stored record of a task.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, q.taskKey+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// eachTask calls fn for every readable task record. SCAN makes this O(N);
// it serves the admin views, not the hot path.
func (q *Queue) eachTask(ctx context.Context, fn func(*domain.Task) bool) error {
	iter := q.client.Scan(ctx, 0, q.taskKey+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := q.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if json.Unmarshal(data, &task) != nil {
			continue
		}
		if !fn(&task) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan tasks: %w", err)
	}
	return nil
}

// ListTasks returns tasks matching filter. Records of other queues are
// never visible through this queue.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	if filter.Queue != "" && filter.Queue != q.queue {
		return nil, nil
	}
	var tasks []*domain.Task
	skipped := 0
	err := q.eachTask(ctx, func(task *domain.Task) bool {
		if filter.Status != "" && task.Status != filter.Status {
			return true
		}
		if filter.Type != "" && task.Type != filter.Type {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		tasks = append(tasks, task)
		return filter.Limit <= 0 || len(tasks) < filter.Limit
	})
	return tasks, err
}

// CancelTask fails a task that has not started yet.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidInput, taskID, task.Status)
	}
	task.MarkFailed("cancelled")
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.scheduled, taskID)
	pipe.Set(ctx, q.taskKey+taskID, data, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	return nil
}

// PurgeTasks deletes finished task records older than the given age.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var stale []string
	err := q.eachTask(ctx, func(task *domain.Task) bool {
		finished := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if finished && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, q.taskKey+task.ID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	n, err := q.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return int(n), nil
}

// Stats counts task records by status.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	var oldest time.Time
	err := q.eachTask(ctx, func(task *domain.Task) bool {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(time.Since(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared with other adapters.
func (q *Queue) Close() error {
	return nil
}

// promoteDue moves delayed tasks whose time has come onto the stream.
func (q *Queue) promoteDue(ctx context.Context) error {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		// ZRem first so a concurrent promoter cannot add the entry twice.
		removed, err := q.client.ZRem(ctx, q.scheduled, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, id)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.stream,
			Values: map[string]any{"task_id": task.ID, "type": string(task.Type)},
		})
	}
	_, err = pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// claimAbandoned takes over one entry another consumer left unacknowledged
// for longer than claimTimeout.
func (q *Queue) claimAbandoned(ctx context.Context) (*domain.Task, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    workerGroup,
		Consumer: q.consumer,
		MinIdle:  claimTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return q.start(ctx, msgs[0])
}
