package driven

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// EntityStore reads the authoritative projected state of catalog entities.
// It is read-only from the indexing side.
type EntityStore interface {
	// GetCurrentProjection returns the current state of an entity.
	// fields limits the projection; nil means every field.
	// Returns domain.ErrNotFound if the entity does not exist.
	GetCurrentProjection(ctx context.Context, entityType, id string, fields []string) (*domain.Entity, error)

	// ListEntities pages through every entity of a type ordered by id.
	// after is the cursor returned by the previous call ("" for the first
	// page). The returned cursor is "" once the last page was read.
	ListEntities(ctx context.Context, entityType, after string, limit int) ([]*domain.Entity, string, error)
}

// RelationshipStore resolves lineage relationships between entities.
type RelationshipStore interface {
	// FindEdges returns the lineage edges of an entity. Upstream returns
	// edges ending at the entity, downstream edges starting from it.
	FindEdges(ctx context.Context, id, entityType string, direction domain.Direction) ([]domain.LineageEdge, error)
}

// QualityStore answers data-quality questions about entities.
type QualityStore interface {
	// HasTestCaseFailure reports whether any test case of the entity with
	// the given FQN currently has a failed result.
	HasTestCaseFailure(ctx context.Context, fqn string) (bool, error)
}
