package driven

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// SearchEngine is the index store holding search documents.
// Index arguments are physical index names; alias resolution happens in
// the mapping registry before a call reaches the engine.
type SearchEngine interface {
	// CreateIndex creates an index. Creating an existing index is a no-op.
	CreateIndex(ctx context.Context, mapping domain.IndexMapping) error

	// UpdateIndex applies mapping changes to an existing index.
	UpdateIndex(ctx context.Context, mapping domain.IndexMapping) error

	// DeleteIndex drops an index and every document in it.
	DeleteIndex(ctx context.Context, index string) error

	// IndexExists reports whether an index has been created.
	IndexExists(ctx context.Context, index string) (bool, error)

	// Upsert writes a whole document, replacing any previous version.
	Upsert(ctx context.Context, index, id string, doc domain.SearchDocument) error

	// Get returns a document or domain.ErrNotFound.
	Get(ctx context.Context, index, id string) (domain.SearchDocument, error)

	// Delete removes a document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, index, id string) error

	// Update applies a script to one document.
	// Returns domain.ErrNotFound when the document does not exist.
	Update(ctx context.Context, index, id string, script domain.Script) error

	// UpdateByQuery applies a script to every matching document in the
	// given indices and returns how many documents changed.
	UpdateByQuery(ctx context.Context, indices []string, query domain.Query, script domain.Script) (int, error)

	// DeleteByQuery removes every matching document and returns the count.
	DeleteByQuery(ctx context.Context, indices []string, query domain.Query) (int, error)

	// Bulk executes a batch of writes. Per-item failures are reported in the
	// result; the error is reserved for request-level failures.
	Bulk(ctx context.Context, ops []domain.BulkOp) (*domain.BulkResult, error)

	// Search runs a paginated query.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}
