package driving

import (
	"context"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// LineageService resolves lineage graphs from embedded document edges
type LineageService interface {
	// Lineage walks upstream and downstream from an entity
	Lineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageGraph, error)

	// DataQualityLineage returns the upstream paths leading to entities
	// with failing test cases
	DataQualityLineage(ctx context.Context, req domain.DataQualityRequest) (*domain.LineageGraph, error)
}
