package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-catalog/internal/builder"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

const (
	defaultReindexPageSize    = 100
	defaultReindexConcurrency = 4
	defaultReindexLockTTL     = 15 * time.Minute
	reindexAllLockName        = "reindex:all"
)

// Reindexer rebuilds documents from the authoritative entity store.
// It runs background sweeps on worker nodes:
//  1. ReindexReferencing: every document that references an entity
//  2. ReindexAll: every entity of the given types
//
// Each page is throttled, fetched with bounded concurrency, rebuilt, and
// written with one bulk request.
type Reindexer struct {
	registry    *mapping.Registry
	builder     *builder.Builder
	engine      driven.SearchEngine
	entities    driven.EntityStore
	lock        driven.DistributedLock
	limiter     *rate.Limiter
	pageSize    int
	concurrency int
	lockTTL     time.Duration
	logger      *slog.Logger
}

// ReindexerConfig holds dependencies for Reindexer.
type ReindexerConfig struct {
	Registry    *mapping.Registry
	Builder     *builder.Builder
	Engine      driven.SearchEngine
	Entities    driven.EntityStore
	Lock        driven.DistributedLock // Optional: one sweep per reference across instances
	PageSize    int                    // Documents per page (default: 100)
	Rate        float64                // Pages per second (default: unlimited)
	Concurrency int                    // Parallel projection fetches per page (default: 4)
	LockTTL     time.Duration          // Sweep lock TTL (default: 15m)
	Logger      *slog.Logger
}

// NewReindexer creates a new reindexer.
func NewReindexer(cfg ReindexerConfig) *Reindexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultReindexPageSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultReindexConcurrency
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultReindexLockTTL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	return &Reindexer{
		registry:    cfg.Registry,
		builder:     cfg.Builder,
		engine:      cfg.Engine,
		entities:    cfg.Entities,
		lock:        cfg.Lock,
		limiter:     limiter,
		pageSize:    pageSize,
		concurrency: concurrency,
		lockTTL:     lockTTL,
		logger:      logger,
	}
}

// docRef locates one document to rebuild.
type docRef struct {
	entityType string
	index      string
	id         string
}

// ReindexReferencing rebuilds every document whose matchField references
// ref. Only one sweep per (matchField, ref.ID) runs at a time.
func (r *Reindexer) ReindexReferencing(ctx context.Context, matchField string, ref domain.EntityReference) (*domain.ReindexResult, error) {
	if matchField == "" || ref.ID == "" {
		return nil, fmt.Errorf("%w: match field and entity id are required", domain.ErrInvalidInput)
	}
	startTime := time.Now()
	value := matchValue(matchField, ref)
	result := &domain.ReindexResult{MatchField: matchField, MatchValue: value}

	lockName := "reindex:" + matchField + ":" + ref.ID
	release, err := r.acquire(ctx, lockName)
	if err != nil {
		return nil, err
	}
	defer release()

	r.logger.Info("starting reindex sweep", "match_field", matchField, "match_value", value)

	// Snapshot matching ids before writing so rebuilt documents cannot
	// shift the pages still to be read.
	refs, err := r.snapshot(ctx, domain.TermQuery(matchField, value), &result.Stats)
	if err != nil {
		return r.fail(result, startTime, err)
	}

	for start := 0; start < len(refs); start += r.pageSize {
		end := start + r.pageSize
		if end > len(refs) {
			end = len(refs)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return r.fail(result, startTime, err)
		}
		ops := r.rebuildPage(ctx, refs[start:end], &result.Stats)
		if err := r.write(ctx, ops, &result.Stats); err != nil {
			return r.fail(result, startTime, err)
		}
		r.extend(ctx, lockName)
	}

	return r.finish(result, startTime), nil
}

// snapshot reads the locations of every matching document across the
// global indices, a page at a time.
func (r *Reindexer) snapshot(ctx context.Context, q domain.Query, stats *domain.ReindexStats) ([]docRef, error) {
	indices := r.registry.GlobalIndices()
	var refs []docRef
	for from := 0; ; from += r.pageSize {
		if from+r.pageSize > domain.MaxResultWindow {
			r.logger.Warn("reindex sweep hit the result window, remaining matches skipped",
				"matched", len(refs))
			break
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := r.engine.Search(ctx, domain.SearchRequest{
			Indices:   indices,
			Query:     q,
			SortField: domain.DocFieldID,
			From:      from,
			Size:      r.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("read matches: %w", err)
		}
		stats.Pages++
		for _, h := range page.Hits {
			entityType := h.Source.EntityType()
			if entityType == "" {
				entityType, _ = r.registry.EntityTypeForIndex(h.Index)
			}
			refs = append(refs, docRef{entityType: entityType, index: h.Index, id: h.ID})
		}
		if len(page.Hits) < r.pageSize {
			break
		}
	}
	stats.Matched = len(refs)
	return refs, nil
}

// rebuildPage fetches and rebuilds a page of documents. Per-document
// failures are counted and logged; missing entities are skipped.
func (r *Reindexer) rebuildPage(ctx context.Context, refs []docRef, stats *domain.ReindexStats) []domain.BulkOp {
	ops := make([]domain.BulkOp, len(refs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			op, err := r.rebuildOne(gctx, ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ops[i] = op
			case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownEntityType):
				stats.Skipped++
			default:
				stats.Errors++
				r.logger.Warn("failed to rebuild document",
					"entity_id", ref.id, "entity_type", ref.entityType, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := ops[:0]
	for _, op := range ops {
		if op.ID != "" {
			out = append(out, op)
		}
	}
	return out
}

func (r *Reindexer) rebuildOne(ctx context.Context, ref docRef) (domain.BulkOp, error) {
	e, err := r.entities.GetCurrentProjection(ctx, ref.entityType, ref.id, nil)
	if err != nil {
		return domain.BulkOp{}, err
	}
	if e.Type == "" {
		e.Type = ref.entityType
	}
	return r.buildOp(ctx, ref.index, e)
}

func (r *Reindexer) buildOp(ctx context.Context, index string, e *domain.Entity) (domain.BulkOp, error) {
	doc, err := r.builder.Build(ctx, e.Type, e)
	if err != nil {
		return domain.BulkOp{}, err
	}
	return domain.BulkOp{Action: domain.BulkUpsert, Index: index, ID: e.ID, Doc: doc}, nil
}

// write submits one bulk request and folds its result into stats.
func (r *Reindexer) write(ctx context.Context, ops []domain.BulkOp, stats *domain.ReindexStats) error {
	if len(ops) == 0 {
		return nil
	}
	res, err := r.engine.Bulk(ctx, ops)
	stats.Requests++
	if err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	stats.Indexed += res.Succeeded
	stats.Errors += len(res.Failed)
	for key, reason := range res.Failed {
		r.logger.Warn("bulk item failed", "document", key, "error", reason)
	}
	return nil
}

// ReindexAll rebuilds every entity of the given types (all types when
// empty), recreating their indices first when recreate is set.
func (r *Reindexer) ReindexAll(ctx context.Context, entityTypes []string, recreate bool) ([]*domain.ReindexResult, error) {
	if len(entityTypes) == 0 {
		entityTypes = r.builder.Types()
	}
	if err := r.registry.Validate(entityTypes...); err != nil {
		return nil, err
	}

	release, err := r.acquire(ctx, reindexAllLockName)
	if err != nil {
		return nil, err
	}
	defer release()

	var results []*domain.ReindexResult
	for _, entityType := range entityTypes {
		result, err := r.reindexType(ctx, entityType, recreate)
		if err != nil {
			r.logger.Error("reindex failed", "entity_type", entityType, "error", err)
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Reindexer) reindexType(ctx context.Context, entityType string, recreate bool) (*domain.ReindexResult, error) {
	startTime := time.Now()
	result := &domain.ReindexResult{EntityType: entityType}

	m, err := r.registry.Get(entityType)
	if err != nil {
		return r.fail(result, startTime, err)
	}
	index, err := r.registry.IndexName(entityType)
	if err != nil {
		return r.fail(result, startTime, err)
	}
	if err := r.prepareIndex(ctx, m, index, recreate); err != nil {
		return r.fail(result, startTime, err)
	}

	r.logger.Info("starting full reindex", "entity_type", entityType, "index", index, "recreate", recreate)

	after := ""
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.fail(result, startTime, err)
		}
		batch, next, err := r.entities.ListEntities(ctx, entityType, after, r.pageSize)
		if err != nil {
			return r.fail(result, startTime, fmt.Errorf("list %s: %w", entityType, err))
		}
		result.Stats.Pages++
		result.Stats.Matched += len(batch)

		ops := r.buildBatch(ctx, entityType, index, batch, &result.Stats)
		if err := r.write(ctx, ops, &result.Stats); err != nil {
			return r.fail(result, startTime, err)
		}

		if next == "" || len(batch) == 0 {
			break
		}
		after = next
		r.extend(ctx, reindexAllLockName)
	}

	return r.finish(result, startTime), nil
}

// prepareIndex recreates the index, or creates it when missing.
func (r *Reindexer) prepareIndex(ctx context.Context, m domain.IndexMapping, index string, recreate bool) error {
	if recreate {
		if err := r.engine.DeleteIndex(ctx, index); err != nil {
			return fmt.Errorf("drop index %s: %w", index, err)
		}
		m.IndexName = index
		if err := r.engine.CreateIndex(ctx, m); err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		return nil
	}
	exists, err := r.engine.IndexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	if !exists {
		m.IndexName = index
		if err := r.engine.CreateIndex(ctx, m); err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
	}
	return nil
}

func (r *Reindexer) buildBatch(ctx context.Context, entityType, index string, batch []*domain.Entity, stats *domain.ReindexStats) []domain.BulkOp {
	ops := make([]domain.BulkOp, len(batch))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, e := range batch {
		g.Go(func() error {
			if e.Type == "" {
				e.Type = entityType
			}
			op, err := r.buildOp(gctx, index, e)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Errors++
				r.logger.Warn("failed to build document", "entity_id", e.ID, "entity_type", entityType, "error", err)
				return nil
			}
			ops[i] = op
			return nil
		})
	}
	_ = g.Wait()

	out := ops[:0]
	for _, op := range ops {
		if op.ID != "" {
			out = append(out, op)
		}
	}
	return out
}

// acquire takes the named sweep lock when a lock is configured.
func (r *Reindexer) acquire(ctx context.Context, name string) (func(), error) {
	if r.lock == nil {
		return func() {}, nil
	}
	acquired, err := r.lock.Acquire(ctx, name, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", domain.ErrSweepInProgress, name)
	}
	return func() {
		if err := r.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			r.logger.Warn("failed to release reindex lock", "lock", name, "error", err)
		}
	}, nil
}

// extend keeps the sweep lock alive across long paginated runs.
func (r *Reindexer) extend(ctx context.Context, name string) {
	if r.lock == nil {
		return
	}
	if err := r.lock.Extend(ctx, name, r.lockTTL); err != nil {
		r.logger.Warn("failed to extend reindex lock", "lock", name, "error", err)
	}
}

func (r *Reindexer) finish(result *domain.ReindexResult, startTime time.Time) *domain.ReindexResult {
	result.Success = true
	result.Duration = time.Since(startTime).Seconds()
	r.logger.Info("reindex completed",
		"entity_type", result.EntityType,
		"match_field", result.MatchField,
		"matched", result.Stats.Matched,
		"indexed", result.Stats.Indexed,
		"skipped", result.Stats.Skipped,
		"errors", result.Stats.Errors,
		"duration_seconds", result.Duration,
	)
	return result
}

// fail marks a run as failed and returns the result.
func (r *Reindexer) fail(result *domain.ReindexResult, startTime time.Time, err error) (*domain.ReindexResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.Duration = time.Since(startTime).Seconds()
	return result, err
}

// matchValue picks the reference attribute compared against matchField:
// the id for ".id" fields, the FQN otherwise.
func matchValue(matchField string, ref domain.EntityReference) string {
	if matchField == domain.DocFieldID || strings.HasSuffix(matchField, ".id") || ref.FullyQualifiedName == "" {
		return ref.ID
	}
	return ref.FullyQualifiedName
}
