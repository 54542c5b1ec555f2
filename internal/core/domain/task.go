package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeReindexReferencing rebuilds every document referencing an entity
	TaskTypeReindexReferencing TaskType = "reindex_referencing"
	// TaskTypeReindexAll rebuilds every document of the given entity types
	TaskTypeReindexAll TaskType = "reindex_all"
)

// Payload keys used by reindex tasks.
const (
	PayloadMatchField  = "match_field"
	PayloadEntityID    = "entity_id"
	PayloadEntityType  = "entity_type"
	PayloadEntityFQN   = "entity_fqn"
	PayloadEntityTypes = "entity_types"
	PayloadRecreate    = "recreate"
)

// DefaultQueue is the queue name used when tasks are not partitioned.
const DefaultQueue = "default"

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// Queue partitions tasks; DefaultQueue unless configured otherwise
	Queue string `json:"queue"`

	// Payload contains task-specific data
	// For reindex_referencing: {"match_field": "tags.tagFQN", "entity_id": "...", "entity_fqn": "..."}
	// For reindex_all: {"entity_types": "table,topic", "recreate": "false"}
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	// Default is 0, range is -100 to 100
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	// CreatedAt is when the task was enqueued
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is when processing began (nil if not started)
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when processing finished (nil if not complete)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, queue string, payload map[string]string) *Task {
	now := time.Now()
	if queue == "" {
		queue = DefaultQueue
	}
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		Queue:        queue,
		Payload:      payload,
		Status:       TaskStatusPending,
		Priority:     0,
		Attempts:     0,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewReindexReferencingTask creates a task that rebuilds every document whose
// matchField references ref.
func NewReindexReferencingTask(matchField string, ref EntityReference) *Task {
	return NewTask(TaskTypeReindexReferencing, DefaultQueue, map[string]string{
		PayloadMatchField: matchField,
		PayloadEntityID:   ref.ID,
		PayloadEntityType: ref.Type,
		PayloadEntityFQN:  ref.FullyQualifiedName,
	})
}

// NewReindexAllTask creates a task that rebuilds every document of the given
// entity types; no types means every registered type.
func NewReindexAllTask(entityTypes []string, recreate bool) *Task {
	payload := map[string]string{PayloadEntityTypes: strings.Join(entityTypes, ",")}
	if recreate {
		payload[PayloadRecreate] = "true"
	}
	return NewTask(TaskTypeReindexAll, DefaultQueue, payload)
}

// MatchField returns the referencing field of a reindex_referencing task.
func (t *Task) MatchField() string {
	return t.Payload[PayloadMatchField]
}

// EntityRef returns the referenced entity of a reindex_referencing task.
func (t *Task) EntityRef() EntityReference {
	return EntityReference{
		ID:                 t.Payload[PayloadEntityID],
		Type:               t.Payload[PayloadEntityType],
		FullyQualifiedName: t.Payload[PayloadEntityFQN],
	}
}

// EntityTypes returns the entity types of a reindex_all task.
func (t *Task) EntityTypes() []string {
	raw := t.Payload[PayloadEntityTypes]
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Recreate reports whether a reindex_all task should recreate its indices.
func (t *Task) Recreate() bool {
	return t.Payload[PayloadRecreate] == "true"
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && time.Now().After(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// Exponential backoff: 1s, 2s, 4s, 8s, etc.
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute // Cap at 5 minutes
	}
	t.ScheduledFor = now.Add(backoff)
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	ItemsCount  int           `json:"items_count,omitempty"`  // documents reindexed
	ErrorsCount int           `json:"errors_count,omitempty"` // documents that failed
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	// ID is the unique identifier for this scheduled task
	ID string `json:"id"`

	// Name is a human-readable name for the task
	Name string `json:"name"`

	// Type is the task type to create when triggered
	Type TaskType `json:"type"`

	// Payload is copied onto every task created from this schedule
	Payload map[string]string `json:"payload,omitempty"`

	// Interval is how often to run the task when CronSpec is empty
	Interval time.Duration `json:"interval"`

	// CronSpec is a standard five-field cron expression; it wins over Interval
	CronSpec string `json:"cron_spec,omitempty"`

	// Enabled indicates if the schedule is active
	Enabled bool `json:"enabled"`

	// LastRun is when the task was last triggered
	LastRun *time.Time `json:"last_run,omitempty"`

	// NextRun is when the task should next be triggered
	NextRun time.Time `json:"next_run"`

	// LastError contains the last error if the scheduled task failed
	LastError string `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new interval-based scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// NewCronScheduledTask creates a scheduled task driven by a cron expression
func NewCronScheduledTask(id, name string, taskType TaskType, spec string) (*ScheduledTask, error) {
	s := &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		CronSpec: spec,
		Enabled:  true,
	}
	next, err := s.NextAfter(time.Now())
	if err != nil {
		return nil, err
	}
	s.NextRun = next
	return s, nil
}

// NextAfter computes the next run time after t.
func (s *ScheduledTask) NextAfter(t time.Time) (time.Time, error) {
	if s.CronSpec == "" {
		return t.Add(s.Interval), nil
	}
	sched, err := cron.ParseStandard(s.CronSpec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cron spec %q: %v", ErrInvalidInput, s.CronSpec, err)
	}
	return sched.Next(t), nil
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	next, err := s.NextAfter(now)
	if err != nil {
		// an invalid spec falls back to the interval so the schedule keeps moving
		next = now.Add(s.Interval)
	}
	s.NextRun = next
}

// DefaultSchedulerConfig returns the default scheduled tasks. A non-empty
// cronSpec replaces the daily interval of the full reindex.
func DefaultSchedulerConfig(cronSpec string) []*ScheduledTask {
	if cronSpec != "" {
		if task, err := NewCronScheduledTask("full-reindex", "Full Reindex", TaskTypeReindexAll, cronSpec); err == nil {
			return []*ScheduledTask{task}
		}
	}
	return []*ScheduledTask{
		NewScheduledTask(
			"full-reindex",
			"Full Reindex",
			TaskTypeReindexAll,
			24*time.Hour,
		),
	}
}
