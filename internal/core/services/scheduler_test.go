package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven/mocks"
)

func dueSchedule(id string) *domain.ScheduledTask {
	s := domain.NewScheduledTask(id, "Full Reindex", domain.TaskTypeReindexAll, time.Hour)
	s.NextRun = time.Now().Add(-time.Minute)
	return s
}

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:        mocks.NewMockSchedulerStore(),
		TaskQueue:    mocks.NewMockTaskQueue(),
		PollInterval: time.Minute,
	})

	if s.interval != time.Minute {
		t.Errorf("expected interval 1m, got %v", s.interval)
	}
	if s.lockTTL != 2*time.Minute {
		t.Errorf("expected lock ttl 2m, got %v", s.lockTTL)
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockSchedulerStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
	if s.lockRequired {
		t.Error("lock should not be required without a lock")
	}

	withLock := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockSchedulerStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
		Lock:      mocks.NewMockDistributedLock(),
	})
	if !withLock.lockRequired {
		t.Error("lock should be required when configured")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:        mocks.NewMockSchedulerStore(),
		TaskQueue:    mocks.NewMockTaskQueue(),
		PollInterval: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		t.Error("expected scheduler to be running")
	}

	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()
	if running {
		t.Error("expected scheduler to be stopped")
	}

	s.Stop()
}

func TestScheduler_CheckAndEnqueue(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	ctx := context.Background()

	due := dueSchedule("full-reindex")
	due.Payload = map[string]string{domain.PayloadEntityTypes: "table,topic"}
	_ = store.SaveScheduledTask(ctx, due)
	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("later", "Later", domain.TaskTypeReindexAll, time.Hour))

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	s.checkAndEnqueue(ctx)

	tasks := queue.Pending()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Type != domain.TaskTypeReindexAll {
		t.Errorf("expected reindex_all, got %s", task.Type)
	}
	if task.Queue != domain.DefaultQueue {
		t.Errorf("expected default queue, got %s", task.Queue)
	}
	if got := task.EntityTypes(); len(got) != 2 || got[0] != "table" || got[1] != "topic" {
		t.Errorf("expected payload copied, got %v", got)
	}

	task.Payload["recreate"] = "true"
	if _, ok := due.Payload["recreate"]; ok {
		t.Error("task payload must not alias the schedule payload")
	}

	if due.LastRun == nil {
		t.Error("expected last run recorded")
	}
	if !due.NextRun.After(time.Now()) {
		t.Error("expected next run moved forward")
	}
}

func TestScheduler_CheckAndEnqueue_EnqueueError(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	queue.EnqueueFn = func(*domain.Task) error { return errors.New("queue down") }
	ctx := context.Background()

	due := dueSchedule("full-reindex")
	_ = store.SaveScheduledTask(ctx, due)

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	s.checkAndEnqueue(ctx)

	if due.LastError != "queue down" {
		t.Errorf("expected last error recorded, got %q", due.LastError)
	}
}

func TestScheduler_CheckAndEnqueue_LockHeld(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld(schedulerLockName, time.Minute)
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("full-reindex"))

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock})
	s.checkAndEnqueue(ctx)

	if len(queue.Pending()) != 0 {
		t.Error("expected no task while another instance holds the lock")
	}
	if got := lock.Events(schedulerLockName); len(got) != 1 || got[0] != mocks.LockRefused {
		t.Errorf("expected a single refused acquire, got %v", got)
	}
}

func TestScheduler_CheckAndEnqueue_LockError(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.AcquireFn = func(string, time.Duration) (bool, error) { return false, errors.New("redis down") }
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("full-reindex"))

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock})
	s.checkAndEnqueue(ctx)

	if len(queue.Pending()) != 0 {
		t.Error("expected cycle skipped when the lock backend fails")
	}
}

func TestScheduler_CheckAndEnqueue_ReleasesLock(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("full-reindex"))

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock})
	s.checkAndEnqueue(ctx)

	if len(queue.Pending()) != 1 {
		t.Errorf("expected 1 task, got %d", len(queue.Pending()))
	}
	if lock.IsHeld(schedulerLockName) {
		t.Error("expected lock released after the cycle")
	}
	want := []string{mocks.LockAcquired, mocks.LockReleased}
	if got := lock.Events(schedulerLockName); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("lock events = %v, want %v", got, want)
	}
}

func TestScheduler_CronSchedule(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	ctx := context.Background()

	cronTask, err := domain.NewCronScheduledTask("nightly", "Nightly", domain.TaskTypeReindexAll, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewCronScheduledTask: %v", err)
	}
	cronTask.NextRun = time.Now().Add(-time.Second)
	_ = store.SaveScheduledTask(ctx, cronTask)

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	s.checkAndEnqueue(ctx)

	if len(queue.Pending()) != 1 {
		t.Fatalf("expected 1 task, got %d", len(queue.Pending()))
	}
	next := cronTask.NextRun
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("expected next run at 03:00, got %v", next)
	}
}

func TestScheduler_EnsureScheduledTasks(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	ctx := context.Background()

	existing := domain.NewScheduledTask("full-reindex", "Full Reindex", domain.TaskTypeReindexAll, time.Hour)
	existing.Enabled = false
	_ = store.SaveScheduledTask(ctx, existing)

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: mocks.NewMockTaskQueue()})

	err := s.EnsureScheduledTasks(ctx, []*domain.ScheduledTask{
		domain.NewScheduledTask("full-reindex", "Full Reindex", domain.TaskTypeReindexAll, 24*time.Hour),
		domain.NewScheduledTask("other", "Other", domain.TaskTypeReindexAll, time.Hour),
	})
	if err != nil {
		t.Fatalf("EnsureScheduledTasks: %v", err)
	}

	got, _ := store.GetScheduledTask(ctx, "full-reindex")
	if got.Enabled {
		t.Error("existing schedule must keep its state")
	}
	if _, err := store.GetScheduledTask(ctx, "other"); err != nil {
		t.Errorf("expected new schedule saved: %v", err)
	}

	bad := &domain.ScheduledTask{ID: "bad", CronSpec: "not a cron", Enabled: true}
	if err := s.EnsureScheduledTasks(ctx, []*domain.ScheduledTask{bad}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a bad cron spec, got %v", err)
	}
}

func TestScheduler_CRUD(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: mocks.NewMockTaskQueue()})
	ctx := context.Background()

	_ = s.CreateScheduledTask(ctx, domain.NewScheduledTask("s1", "One", domain.TaskTypeReindexAll, time.Hour))
	_ = s.CreateScheduledTask(ctx, domain.NewScheduledTask("s2", "Two", domain.TaskTypeReindexAll, time.Hour))

	tasks, err := s.ListScheduledTasks(ctx)
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(tasks))
	}

	if err := s.SetEnabled(ctx, "s1", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	got, _ := s.GetScheduledTask(ctx, "s1")
	if got.Enabled {
		t.Error("expected s1 disabled")
	}

	if err := s.DeleteScheduledTask(ctx, "s2"); err != nil {
		t.Fatalf("DeleteScheduledTask: %v", err)
	}
	if _, err := s.GetScheduledTask(ctx, "s2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetEnabled(ctx, "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_TriggerNow(t *testing.T) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	ctx := context.Background()

	_ = s.CreateScheduledTask(ctx, domain.NewScheduledTask("s1", "One", domain.TaskTypeReindexAll, time.Hour))

	task, err := s.TriggerNow(ctx, "s1")
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if task.Type != domain.TaskTypeReindexAll {
		t.Errorf("unexpected task type %s", task.Type)
	}
	if len(queue.Pending()) != 1 {
		t.Errorf("expected 1 task enqueued, got %d", len(queue.Pending()))
	}

	if _, err := s.TriggerNow(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:        mocks.NewMockSchedulerStore(),
		TaskQueue:    mocks.NewMockTaskQueue(),
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-s.doneCh:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after cancellation")
	}
}
