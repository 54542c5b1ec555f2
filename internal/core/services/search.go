package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

const (
	defaultSuggestSize = 10
	maxSuggestSize     = 100
	// suggestOverfetch widens the text match so prefix filtering still
	// fills the page.
	suggestOverfetch = 5
)

// Ensure searchService implements SearchService
var _ driving.SearchService = (*searchService)(nil)

// searchService implements the SearchService interface
type searchService struct {
	registry *mapping.Registry
	engine   driven.SearchEngine
	logger   *slog.Logger
}

// NewSearchService creates a new SearchService
func NewSearchService(registry *mapping.Registry, engine driven.SearchEngine, logger *slog.Logger) driving.SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &searchService{
		registry: registry,
		engine:   engine,
		logger:   logger,
	}
}

// Search runs a query against an entity type or alias
func (s *searchService) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchPage, error) {
	start := time.Now()

	indices, err := s.indices(query.Index)
	if err != nil {
		return nil, err
	}
	req, err := query.Request(indices)
	if err != nil {
		return nil, err
	}

	page, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	s.logger.Debug("search completed",
		"index", query.Index,
		"total", page.Total,
		"duration", time.Since(start),
	)
	return page, nil
}

// Suggest returns entities whose name, display name, or FQN starts with
// the prefix
func (s *searchService) Suggest(ctx context.Context, query domain.SuggestQuery) ([]domain.EntityHit, error) {
	prefix := strings.TrimSpace(query.Prefix)
	if prefix == "" {
		return nil, fmt.Errorf("%w: prefix is required", domain.ErrInvalidQuery)
	}

	// Apply defaults
	size := query.Size
	if size <= 0 {
		size = defaultSuggestSize
	}
	if size > maxSuggestSize {
		size = maxSuggestSize
	}

	indices, err := s.indices(query.Index)
	if err != nil {
		return nil, err
	}

	page, err := s.engine.Search(ctx, domain.SearchRequest{
		Indices: indices,
		Text:    prefix,
		Query:   domain.Query{}.WithDeleted(false),
		Size:    size * suggestOverfetch,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	lower := strings.ToLower(prefix)
	hits := make([]domain.EntityHit, 0, size)
	for _, h := range page.Hits {
		if !hasPrefix(h.Source, lower) {
			continue
		}
		hits = append(hits, toEntityHit(h))
		if len(hits) == size {
			break
		}
	}
	return hits, nil
}

// EntitiesContainingFQN finds documents across the global indices whose
// matchField equals fqn
func (s *searchService) EntitiesContainingFQN(ctx context.Context, matchField, fqn string, from, size int) ([]domain.EntityHit, int, error) {
	if matchField == "" || fqn == "" {
		return nil, 0, fmt.Errorf("%w: match field and fqn are required", domain.ErrInvalidQuery)
	}
	if size == 0 {
		size = domain.DefaultPageSize
	}

	page, err := s.engine.Search(ctx, domain.SearchRequest{
		Indices:   s.registry.GlobalIndices(),
		Query:     domain.TermQuery(matchField, fqn),
		SortField: domain.DocFieldID,
		From:      from,
		Size:      size,
	})
	if err != nil {
		return nil, 0, err
	}

	hits := make([]domain.EntityHit, 0, len(page.Hits))
	for _, h := range page.Hits {
		hits = append(hits, toEntityHit(h))
	}
	return hits, page.Total, nil
}

// indices resolves an entity type or alias, defaulting to the global alias.
func (s *searchService) indices(index string) ([]string, error) {
	if index == "" {
		index = domain.GlobalAlias
	}
	indices, err := s.registry.ResolveAliases(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return indices, nil
}

func hasPrefix(doc domain.SearchDocument, lowerPrefix string) bool {
	for _, field := range []string{domain.DocFieldName, domain.DocFieldDisplayName, domain.DocFieldFQN} {
		for _, v := range doc.Values(field) {
			if s, ok := v.(string); ok && strings.HasPrefix(strings.ToLower(s), lowerPrefix) {
				return true
			}
		}
	}
	return false
}

func toEntityHit(h domain.Hit) domain.EntityHit {
	return domain.EntityHit{
		ID:         h.ID,
		EntityType: h.Source.EntityType(),
		FQN:        h.Source.FQN(),
		Index:      h.Index,
	}
}
