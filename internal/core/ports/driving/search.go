package driving

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// SearchService handles validated, paginated queries over the index
type SearchService interface {
	// Search runs a query against an entity type or alias (default "all")
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchPage, error)

	// Suggest returns entities whose name or FQN starts with the prefix
	Suggest(ctx context.Context, query domain.SuggestQuery) ([]domain.EntityHit, error)

	// EntitiesContainingFQN finds documents across the global indices whose
	// matchField equals fqn
	EntitiesContainingFQN(ctx context.Context, matchField, fqn string, from, size int) ([]domain.EntityHit, int, error)
}
