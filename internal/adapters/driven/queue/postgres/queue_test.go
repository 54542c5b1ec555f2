package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

var taskColumnNames = []string{
	"id", "type", "queue", "payload", "status", "priority", "attempts", "max_attempts",
	"error", "created_at", "updated_at", "started_at", "completed_at", "scheduled_for",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Queue) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, NewQueue(db, "")
}

func taskRow(task *domain.Task, attempts int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(taskColumnNames).AddRow(
		task.ID, string(task.Type), task.Queue, []byte(`{"match_field":"tags.tagFQN","entity_id":"t1"}`),
		string(task.Status), task.Priority, attempts, task.MaxAttempts,
		"", now, now, nil, nil, now,
	)
}

func TestNewQueue_DefaultName(t *testing.T) {
	_, _, q := setupMockDB(t)
	assert.Equal(t, domain.DefaultQueue, q.name)
}

func TestEnqueue(t *testing.T) {
	_, mock, q := setupMockDB(t)
	task := domain.NewReindexReferencingTask("tags.tagFQN", domain.EntityReference{ID: "t1"})

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(
			task.ID, task.Type, domain.DefaultQueue, sqlmock.AnyArg(), task.Status, task.Priority,
			task.Attempts, task.MaxAttempts, task.Error, task.CreatedAt, task.UpdatedAt, task.ScheduledFor,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, q.Enqueue(context.Background(), task))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueBatch_RollsBackOnFailure(t *testing.T) {
	_, mock, q := setupMockDB(t)
	first := domain.NewReindexAllTask(nil, false)
	second := domain.NewReindexAllTask([]string{"table"}, true)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := q.EnqueueBatch(context.Background(), []*domain.Task{first, second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeue(t *testing.T) {
	_, mock, q := setupMockDB(t)
	task := domain.NewReindexReferencingTask("tags.tagFQN", domain.EntityReference{ID: "t1"})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM tasks\s+WHERE status = \$1 AND queue = \$2 .+ FOR UPDATE SKIP LOCKED`).
		WithArgs(domain.TaskStatusPending, domain.DefaultQueue).
		WillReturnRows(taskRow(task, 0))
	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1`).
		WithArgs(domain.TaskStatusProcessing, sqlmock.AnyArg(), task.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "tags.tagFQN", got.MatchField())
	assert.Equal(t, "t1", got.EntityRef().ID)
	assert.NotNil(t, got.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeue_Empty(t *testing.T) {
	_, mock, q := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM tasks`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueWithTimeout_Cancelled(t *testing.T) {
	_, _, q := setupMockDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.DequeueWithTimeout(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAck(t *testing.T) {
	_, mock, q := setupMockDB(t)

	mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, completed_at`).
		WithArgs(domain.TaskStatusCompleted, sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, q.Ack(context.Background(), "task-1"))

	mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, q.Ack(context.Background(), "missing"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNack(t *testing.T) {
	task := domain.NewReindexAllTask(nil, false)

	tests := []struct {
		name       string
		attempts   int
		wantStatus domain.TaskStatus
	}{
		{"retries with backoff", 1, domain.TaskStatusPending},
		{"fails after max attempts", 3, domain.TaskStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, q := setupMockDB(t)

			mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id = \$1`).
				WithArgs(task.ID).
				WillReturnRows(taskRow(task, tt.attempts))
			if tt.wantStatus == domain.TaskStatusPending {
				mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, error = \$2, updated_at = \$3, scheduled_for = \$4`).
					WithArgs(tt.wantStatus, "boom", sqlmock.AnyArg(), sqlmock.AnyArg(), task.ID).
					WillReturnResult(sqlmock.NewResult(0, 1))
			} else {
				mock.ExpectExec(`UPDATE tasks\s+SET status = \$1, error = \$2, updated_at = \$3\s+WHERE`).
					WithArgs(tt.wantStatus, "boom", sqlmock.AnyArg(), task.ID).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			require.NoError(t, q.Nack(context.Background(), task.ID, "boom"))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetTask_NotFound(t *testing.T) {
	_, mock, q := setupMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, err := q.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListTasks_Filter(t *testing.T) {
	_, mock, q := setupMockDB(t)
	task := domain.NewReindexAllTask(nil, false)

	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE queue = \$1 AND status = \$2 AND type = \$3 ORDER BY created_at DESC LIMIT \$4`).
		WithArgs(domain.DefaultQueue, domain.TaskStatusPending, domain.TaskTypeReindexAll, 5).
		WillReturnRows(taskRow(task, 0))

	tasks, err := q.ListTasks(context.Background(), driven.TaskFilter{
		Status: domain.TaskStatusPending,
		Type:   domain.TaskTypeReindexAll,
		Limit:  5,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTask_NotPending(t *testing.T) {
	_, mock, q := setupMockDB(t)
	mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.CancelTask(context.Background(), "task-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeTasks(t *testing.T) {
	_, mock, q := setupMockDB(t)

	mock.ExpectExec(`DELETE FROM tasks\s+WHERE status = ANY\(\$1\)`).
		WithArgs(pq.Array(finishedStatuses), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := q.PurgeTasks(context.Background(), 3600)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	_, mock, q := setupMockDB(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM tasks`).
		WithArgs(domain.DefaultQueue).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("failed", 1))
	mock.ExpectQuery(`SELECT EXTRACT`).
		WithArgs(domain.TaskStatusPending, domain.DefaultQueue).
		WillReturnRows(sqlmock.NewRows([]string{"age"}).AddRow(42))

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.PendingCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Equal(t, int64(42), stats.OldestPendingAge)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 8*time.Second, backoff(3))
	assert.Equal(t, maxBackoff, backoff(20))
	assert.Equal(t, maxBackoff, backoff(80))
}
