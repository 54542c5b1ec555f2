package driving

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// IndexService keeps search documents in step with entity lifecycle events.
// Primary write failures are returned; propagation and cascade failures are
// logged per target and never returned.
type IndexService interface {
	// IndexEntity builds and upserts the document of a new entity
	IndexEntity(ctx context.Context, entity *domain.Entity) error

	// UpdateEntity patches or rebuilds the document and propagates
	// inheritable field changes to dependents
	UpdateEntity(ctx context.Context, entity *domain.Entity) error

	// SoftDeleteOrRestore flips the deleted flag and cascades to dependents
	SoftDeleteOrRestore(ctx context.Context, entity *domain.Entity, deleted bool) error

	// DeleteEntity removes the document and cascades to dependents
	DeleteEntity(ctx context.Context, entity *domain.Entity) error

	// DeleteByFqnPrefix deletes the entity and every document whose FQN
	// lies under it
	DeleteByFqnPrefix(ctx context.Context, entity *domain.Entity) error

	// AddLineage embeds an edge in the documents of both endpoints
	AddLineage(ctx context.Context, edge domain.LineageEdge) error

	// DeleteLineage removes an edge from the documents of both endpoints
	DeleteLineage(ctx context.Context, edge domain.LineageEdge) error

	// ReindexReferencing schedules a background rebuild of every document
	// whose matchField references the entity
	ReindexReferencing(ctx context.Context, matchField string, ref domain.EntityReference) (*domain.Task, error)
}
