package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-catalog/internal/builder"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

// Ensure indexService implements IndexService
var _ driving.IndexService = (*indexService)(nil)

// indexService keeps search documents in step with entity lifecycle events.
type indexService struct {
	registry   *mapping.Registry
	builder    *builder.Builder
	engine     driven.SearchEngine
	propagator *Propagator
	taskQueue  driven.TaskQueue
	logger     *slog.Logger
}

// IndexServiceConfig holds the dependencies of the index service.
type IndexServiceConfig struct {
	Registry   *mapping.Registry
	Builder    *builder.Builder
	Engine     driven.SearchEngine
	Propagator *Propagator      // Optional: defaults to a propagator over Registry
	TaskQueue  driven.TaskQueue // Optional: required by ReindexReferencing
	Logger     *slog.Logger
}

// NewIndexService creates a new IndexService.
func NewIndexService(cfg IndexServiceConfig) driving.IndexService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	propagator := cfg.Propagator
	if propagator == nil {
		propagator = NewPropagator(cfg.Registry)
	}
	return &indexService{
		registry:   cfg.Registry,
		builder:    cfg.Builder,
		engine:     cfg.Engine,
		propagator: propagator,
		taskQueue:  cfg.TaskQueue,
		logger:     logger,
	}
}

// IndexEntity builds the document of a new entity and writes it.
func (s *indexService) IndexEntity(ctx context.Context, e *domain.Entity) error {
	index, ok, err := s.target(e)
	if err != nil || !ok {
		return err
	}
	return s.rebuild(ctx, index, e)
}

// UpdateEntity patches the document in place when the change is contiguous
// and touches only scriptable fields, and rebuilds it otherwise. Inherited
// field changes are propagated afterwards.
func (s *indexService) UpdateEntity(ctx context.Context, e *domain.Entity) error {
	index, ok, err := s.target(e)
	if err != nil || !ok {
		return err
	}

	scripted := false
	if script, ok := scriptedUpdate(e); ok {
		err := s.engine.Update(ctx, index, e.ID, script)
		switch {
		case err == nil:
			scripted = true
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Debug("document missing for scripted update, rebuilding",
				"entity_id", e.ID, "entity_type", e.Type, "index", index)
		default:
			s.logger.Error("scripted update failed",
				"entity_id", e.ID, "entity_type", e.Type, "index", index, "error", err)
			return fmt.Errorf("update %s %s: %w", e.Type, e.ID, err)
		}
	}
	if !scripted {
		if err := s.rebuild(ctx, index, e); err != nil {
			return err
		}
	}

	s.apply(ctx, e, s.propagator.Plan(e.Type, e))
	return nil
}

// SoftDeleteOrRestore flips the deleted flag and cascades it to children.
func (s *indexService) SoftDeleteOrRestore(ctx context.Context, e *domain.Entity, deleted bool) error {
	index, ok, err := s.target(e)
	if err != nil || !ok {
		return err
	}

	script := domain.NewScript("softDelete", domain.SetField(domain.DocFieldDeleted, deleted))
	if err := s.engine.Update(ctx, index, e.ID, script); err != nil {
		s.logger.Error("failed to set deleted flag",
			"entity_id", e.ID, "entity_type", e.Type, "deleted", deleted, "error", err)
		return fmt.Errorf("soft delete %s %s: %w", e.Type, e.ID, err)
	}

	s.apply(ctx, e, s.propagator.SoftDeleteCascade(e.Type, e, deleted))
	return nil
}

// DeleteEntity removes the document and cascades to children.
func (s *indexService) DeleteEntity(ctx context.Context, e *domain.Entity) error {
	index, ok, err := s.target(e)
	if err != nil || !ok {
		return err
	}

	if err := s.engine.Delete(ctx, index, e.ID); err != nil {
		s.logger.Error("failed to delete document",
			"entity_id", e.ID, "entity_type", e.Type, "error", err)
		return fmt.Errorf("delete %s %s: %w", e.Type, e.ID, err)
	}

	s.apply(ctx, e, s.propagator.DeleteCascade(e.Type, e))
	return nil
}

// DeleteByFqnPrefix deletes the entity and every document nested under its
// FQN in its own and its child indices.
func (s *indexService) DeleteByFqnPrefix(ctx context.Context, e *domain.Entity) error {
	index, ok, err := s.target(e)
	if err != nil || !ok {
		return err
	}
	if err := s.DeleteEntity(ctx, e); err != nil {
		return err
	}
	if e.FullyQualifiedName == "" {
		return nil
	}

	indices := append([]string{index}, s.registry.ChildIndices(e.Type)...)
	n, err := s.engine.DeleteByQuery(ctx, indices, domain.Query{FQNPrefix: domain.FQNPrefix(e.FullyQualifiedName)})
	if err != nil {
		s.logger.Error("failed to delete nested documents",
			"entity_id", e.ID, "entity_type", e.Type, "error", err)
		return fmt.Errorf("delete under %s: %w", e.FullyQualifiedName, err)
	}
	s.logger.Debug("deleted nested documents", "entity_id", e.ID, "entity_type", e.Type, "count", n)
	return nil
}

// AddLineage embeds the edge into the documents of both endpoints.
func (s *indexService) AddLineage(ctx context.Context, edge domain.LineageEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	return s.updateEndpoints(ctx, edge, domain.NewScript("addLineage", domain.UpsertEdge(edge)))
}

// DeleteLineage removes the edge from the documents of both endpoints.
func (s *indexService) DeleteLineage(ctx context.Context, edge domain.LineageEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	return s.updateEndpoints(ctx, edge, domain.NewScript("deleteLineage", domain.RemoveEdge(edge)))
}

func (s *indexService) updateEndpoints(ctx context.Context, edge domain.LineageEdge, script domain.Script) error {
	var errs []error
	for _, end := range []domain.EdgeRef{edge.FromEntity, edge.ToEntity} {
		index, err := s.registry.IndexName(end.Type)
		if err != nil {
			s.logger.Warn("no index for lineage endpoint, skipping",
				"entity_id", end.ID, "entity_type", end.Type)
			continue
		}
		err = s.engine.Update(ctx, index, end.ID, script)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Debug("lineage endpoint not indexed yet",
				"entity_id", end.ID, "entity_type", end.Type, "index", index)
		default:
			s.logger.Error("failed to update lineage",
				"entity_id", end.ID, "entity_type", end.Type, "edge", edge.Key().String(), "error", err)
			errs = append(errs, fmt.Errorf("%s lineage on %s %s: %w", script.Name, end.Type, end.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ReindexReferencing schedules a background sweep rebuilding every document
// that references ref through matchField.
func (s *indexService) ReindexReferencing(ctx context.Context, matchField string, ref domain.EntityReference) (*domain.Task, error) {
	if matchField == "" || ref.ID == "" {
		return nil, fmt.Errorf("%w: match field and entity id are required", domain.ErrInvalidInput)
	}
	if s.taskQueue == nil {
		return nil, fmt.Errorf("%w: no task queue configured", domain.ErrServiceUnavailable)
	}

	task := domain.NewReindexReferencingTask(matchField, ref)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue reindex task: %w", err)
	}
	s.logger.Info("enqueued reindex sweep",
		"task_id", task.ID, "match_field", matchField, "entity_id", ref.ID, "entity_type", ref.Type)
	return task, nil
}

// target resolves the index of an entity. ok is false for types without a
// mapping or builder, which are skipped.
func (s *indexService) target(e *domain.Entity) (index string, ok bool, err error) {
	if e == nil || e.ID == "" {
		return "", false, fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	}
	if e.Type == "" {
		return "", false, fmt.Errorf("%w: entity type is required", domain.ErrInvalidInput)
	}
	if !s.builder.Supports(e.Type) {
		s.logger.Warn("no document builder for entity type, skipping", "entity_id", e.ID, "entity_type", e.Type)
		return "", false, nil
	}
	index, err = s.registry.IndexName(e.Type)
	if err != nil {
		s.logger.Warn("no index mapping for entity type, skipping", "entity_id", e.ID, "entity_type", e.Type)
		return "", false, nil
	}
	return index, true, nil
}

func (s *indexService) rebuild(ctx context.Context, index string, e *domain.Entity) error {
	doc, err := s.builder.Build(ctx, e.Type, e)
	if err != nil {
		s.logger.Error("failed to build document",
			"entity_id", e.ID, "entity_type", e.Type, "error", err)
		return fmt.Errorf("build %s %s: %w", e.Type, e.ID, err)
	}
	if err := s.engine.Upsert(ctx, index, e.ID, doc); err != nil {
		s.logger.Error("failed to write document",
			"entity_id", e.ID, "entity_type", e.Type, "index", index, "error", err)
		return fmt.Errorf("index %s %s: %w", e.Type, e.ID, err)
	}
	return nil
}

// apply runs propagation and cascade plans. Failures are logged per plan.
func (s *indexService) apply(ctx context.Context, e *domain.Entity, plans []PropagationPlan) {
	for _, plan := range plans {
		var (
			n   int
			err error
		)
		if plan.IsDelete() {
			n, err = s.engine.DeleteByQuery(ctx, plan.Indices, plan.Query)
		} else {
			n, err = s.engine.UpdateByQuery(ctx, plan.Indices, plan.Query, plan.Script)
		}
		if err != nil {
			s.logger.Warn("propagation failed",
				"entity_id", e.ID, "entity_type", e.Type, "plan", plan.Name, "indices", plan.Indices, "error", err)
			continue
		}
		s.logger.Debug("propagation applied",
			"entity_id", e.ID, "entity_type", e.Type, "plan", plan.Name, "count", n)
	}
}

// scriptedUpdate returns the in-place patch for a contiguous change that
// touches scriptable fields only.
func scriptedUpdate(e *domain.Entity) (domain.Script, bool) {
	cd := e.ChangeDescription
	if !cd.IsContiguous(e.Version) {
		return domain.Script{}, false
	}
	fields := cd.ChangedFields()
	if len(fields) == 0 {
		return domain.Script{}, false
	}
	for _, f := range fields {
		if !domain.ScriptableFields[f] {
			return domain.Script{}, false
		}
	}

	m, err := e.Map()
	if err != nil {
		return domain.Script{}, false
	}
	script := domain.NewScript("scriptedUpdate", domain.SetField(domain.DocFieldUpdatedAt, e.UpdatedAt))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		script = script.Add(scriptedField(e, m, f)...)
	}
	return script, true
}

func scriptedField(e *domain.Entity, m map[string]any, field string) []domain.ScriptOp {
	switch field {
	case domain.DocFieldFollowers:
		ids := make([]string, 0, len(e.Followers))
		for _, f := range e.Followers {
			ids = append(ids, f.ID)
		}
		return []domain.ScriptOp{domain.SetField(field, ids)}
	case domain.DocFieldVotes:
		total := 0
		if e.Votes != nil {
			total = e.Votes.UpVotes - e.Votes.DownVotes
		}
		ops := []domain.ScriptOp{domain.SetField(domain.DocFieldTotalVotes, float64(total))}
		if v, ok := m[field]; ok {
			return append(ops, domain.SetField(field, v))
		}
		return append(ops, domain.RemoveField(field))
	}
	if v, ok := m[field]; ok && v != nil {
		return []domain.ScriptOp{domain.SetField(field, v)}
	}
	return []domain.ScriptOp{domain.RemoveField(field)}
}
