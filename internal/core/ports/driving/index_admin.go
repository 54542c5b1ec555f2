package driving

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// IndexAdminService manages physical indices and full reindexing
type IndexAdminService interface {
	// CreateIndexes creates the indices of the given types (all when empty)
	// that do not exist yet
	CreateIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error)

	// UpdateIndexes pushes the current mappings to existing indices
	UpdateIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error)

	// DeleteIndexes drops the indices of the given types
	DeleteIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error)

	// Status reports index existence and backend health
	Status(ctx context.Context) (*IndexAdminStatus, error)

	// TriggerReindex enqueues a full reindex of the given types
	TriggerReindex(ctx context.Context, entityTypes []string, recreate bool) (*domain.Task, error)
}

// IndexAdminStatus represents the state of the index backend
type IndexAdminStatus struct {
	// Healthy indicates if the backend answered its health check
	Healthy bool `json:"healthy"`

	// ClusterAlias is the prefix applied to index names and aliases
	ClusterAlias string `json:"cluster_alias,omitempty"`

	// Indices lists every mapped index
	Indices []domain.IndexStatus `json:"indices"`

	// Error holds the health check failure, if any
	Error string `json:"error,omitempty"`
}
