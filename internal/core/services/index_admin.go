package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

// Ensure indexAdminService implements IndexAdminService
var _ driving.IndexAdminService = (*indexAdminService)(nil)

// indexAdminService implements the IndexAdminService interface
type indexAdminService struct {
	registry  *mapping.Registry
	engine    driven.SearchEngine
	taskQueue driven.TaskQueue
	logger    *slog.Logger
}

// NewIndexAdminService creates a new IndexAdminService
func NewIndexAdminService(
	registry *mapping.Registry,
	engine driven.SearchEngine,
	taskQueue driven.TaskQueue,
	logger *slog.Logger,
) driving.IndexAdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &indexAdminService{
		registry:  registry,
		engine:    engine,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// CreateIndexes creates every missing index of the given types
func (s *indexAdminService) CreateIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error) {
	return s.each(ctx, entityTypes, func(m domain.IndexMapping, exists bool) (bool, error) {
		if exists {
			return true, nil
		}
		if err := s.engine.CreateIndex(ctx, m); err != nil {
			return false, fmt.Errorf("create index %s: %w", m.IndexName, err)
		}
		s.logger.Info("created index", "entity_type", m.EntityType, "index", m.IndexName)
		return true, nil
	})
}

// UpdateIndexes pushes the current mapping to every existing index
func (s *indexAdminService) UpdateIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error) {
	return s.each(ctx, entityTypes, func(m domain.IndexMapping, exists bool) (bool, error) {
		if !exists {
			s.logger.Warn("index missing, not updated", "entity_type", m.EntityType, "index", m.IndexName)
			return false, nil
		}
		if err := s.engine.UpdateIndex(ctx, m); err != nil {
			return true, fmt.Errorf("update index %s: %w", m.IndexName, err)
		}
		return true, nil
	})
}

// DeleteIndexes drops the indices of the given types
func (s *indexAdminService) DeleteIndexes(ctx context.Context, entityTypes ...string) ([]domain.IndexStatus, error) {
	return s.each(ctx, entityTypes, func(m domain.IndexMapping, exists bool) (bool, error) {
		if !exists {
			return false, nil
		}
		if err := s.engine.DeleteIndex(ctx, m.IndexName); err != nil {
			return true, fmt.Errorf("delete index %s: %w", m.IndexName, err)
		}
		s.logger.Info("deleted index", "entity_type", m.EntityType, "index", m.IndexName)
		return false, nil
	})
}

// Status reports index existence and backend health
func (s *indexAdminService) Status(ctx context.Context) (*driving.IndexAdminStatus, error) {
	status := &driving.IndexAdminStatus{
		Healthy:      true,
		ClusterAlias: s.registry.ClusterAlias(),
	}
	if err := s.engine.HealthCheck(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
		return status, nil
	}

	indices, err := s.each(ctx, nil, func(_ domain.IndexMapping, exists bool) (bool, error) {
		return exists, nil
	})
	if err != nil {
		return nil, err
	}
	status.Indices = indices
	return status, nil
}

// TriggerReindex enqueues a full reindex of the given types
func (s *indexAdminService) TriggerReindex(ctx context.Context, entityTypes []string, recreate bool) (*domain.Task, error) {
	if err := s.registry.Validate(entityTypes...); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if s.taskQueue == nil {
		return nil, fmt.Errorf("%w: no task queue configured", domain.ErrServiceUnavailable)
	}

	task := domain.NewReindexAllTask(entityTypes, recreate)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue reindex task: %w", err)
	}
	s.logger.Info("enqueued full reindex", "task_id", task.ID, "entity_types", entityTypes, "recreate", recreate)
	return task, nil
}

// each runs fn over the physical mapping of every requested type (all
// types when empty) and collects the resulting statuses.
func (s *indexAdminService) each(
	ctx context.Context,
	entityTypes []string,
	fn func(m domain.IndexMapping, exists bool) (bool, error),
) ([]domain.IndexStatus, error) {
	if len(entityTypes) == 0 {
		entityTypes = s.registry.EntityTypes()
	}
	if err := s.registry.Validate(entityTypes...); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	statuses := make([]domain.IndexStatus, 0, len(entityTypes))
	for _, entityType := range entityTypes {
		m, err := s.registry.Get(entityType)
		if err != nil {
			return statuses, err
		}
		if m.IndexName, err = s.registry.IndexName(entityType); err != nil {
			return statuses, err
		}
		exists, err := s.engine.IndexExists(ctx, m.IndexName)
		if err != nil {
			return statuses, fmt.Errorf("check index %s: %w", m.IndexName, err)
		}
		exists, err = fn(m, exists)
		statuses = append(statuses, domain.IndexStatus{EntityType: entityType, IndexName: m.IndexName, Exists: exists})
		if err != nil {
			return statuses, err
		}
	}
	return statuses, nil
}
