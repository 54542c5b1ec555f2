package driving

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// Scheduler enqueues recurring tasks (periodic full reindex)
type Scheduler interface {
	// Start begins the scheduler loop
	Start(ctx context.Context) error

	// Stop waits for the loop to exit
	Stop()

	// EnsureScheduledTasks saves the given schedules unless they exist
	EnsureScheduledTasks(ctx context.Context, tasks []*domain.ScheduledTask) error

	// TriggerNow enqueues a scheduled task immediately
	TriggerNow(ctx context.Context, id string) (*domain.Task, error)
}
