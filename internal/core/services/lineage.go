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

// DefaultMaxLineageDepth caps lineage traversal depth in either direction.
const DefaultMaxLineageDepth = 10

const (
	lineageFromFQN     = "lineage.fromEntity.fqn"
	lineageToFQN       = "lineage.toEntity.fqn"
	lineagePipelineFQN = "lineage.pipeline.fullyQualifiedName"
	lineagePageSize    = 1000
)

// Ensure lineageService implements LineageService
var _ driving.LineageService = (*lineageService)(nil)

// lineageService resolves lineage graphs from the edges embedded in
// search documents.
type lineageService struct {
	registry *mapping.Registry
	engine   driven.SearchEngine
	quality  driven.QualityStore
	maxDepth int
	pageSize int
	logger   *slog.Logger
}

// LineageServiceConfig holds the dependencies of the lineage service.
type LineageServiceConfig struct {
	Registry *mapping.Registry
	Engine   driven.SearchEngine
	Quality  driven.QualityStore // Required by DataQualityLineage
	MaxDepth int                 // Depth cap (default: DefaultMaxLineageDepth)
	PageSize int                 // Hits fetched per edge lookup (default: 1000)
	Logger   *slog.Logger
}

// NewLineageService creates a new LineageService.
func NewLineageService(cfg LineageServiceConfig) driving.LineageService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxLineageDepth
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = lineagePageSize
	}
	return &lineageService{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		quality:  cfg.Quality,
		maxDepth: maxDepth,
		pageSize: pageSize,
		logger:   logger,
	}
}

// lineageStep is one worklist entry: a node and the steps left from it.
type lineageStep struct {
	fqn   string
	depth int
}

// lineageScope carries what every edge lookup of one request shares.
type lineageScope struct {
	indices        []string
	filter         domain.Filter
	includeDeleted bool
}

// Lineage walks upstream and downstream from the requested entity.
func (s *lineageService) Lineage(ctx context.Context, req domain.LineageRequest) (*domain.LineageGraph, error) {
	if req.FQN == "" {
		return nil, fmt.Errorf("%w: fqn is required", domain.ErrInvalidInput)
	}
	filter, err := domain.ParseFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	scope := lineageScope{indices: s.registry.GlobalIndices(), filter: filter, includeDeleted: req.IncludeDeleted}
	up, down := s.clamp(req.UpstreamDepth), s.clamp(req.DownstreamDepth)

	graph := domain.NewLineageGraph()
	root, err := s.findByFQN(ctx, scope.indices, req.FQN)
	if err != nil {
		return nil, err
	}
	if root != nil {
		graph.Entity = root.WithoutLineage()
	}

	upSeeds := []lineageStep{{fqn: req.FQN, depth: up}}
	downSeeds := []lineageStep{{fqn: req.FQN, depth: down}}
	if domain.IsPipelineLike(req.EntityType) {
		found, err := s.pipelineEdges(ctx, scope, req.FQN, graph)
		if err != nil {
			return nil, err
		}
		// Endpoints of pipeline-annotated edges walk with the full depth,
		// next to the pipeline's own edges.
		for _, e := range found {
			upSeeds = append(upSeeds, lineageStep{fqn: e.FromEntity.FQN, depth: up})
			downSeeds = append(downSeeds, lineageStep{fqn: e.ToEntity.FQN, depth: down})
		}
	}

	if err := s.walk(ctx, scope, domain.DirectionUpstream, upSeeds, graph); err != nil {
		return nil, err
	}
	if err := s.walk(ctx, scope, domain.DirectionDownstream, downSeeds, graph); err != nil {
		return nil, err
	}
	return graph, nil
}

// pipelineEdges adds every edge carrying fqn as its pipeline, together with
// the endpoint documents, and returns those edges.
func (s *lineageService) pipelineEdges(ctx context.Context, scope lineageScope, fqn string, graph *domain.LineageGraph) ([]domain.LineageEdge, error) {
	docs, err := s.edgeDocs(ctx, scope, lineagePipelineFQN, fqn)
	if err != nil {
		return nil, err
	}
	var found []domain.LineageEdge
	for _, doc := range docs {
		for _, e := range doc.LineageEdges() {
			if e.PipelineFQN() != fqn {
				continue
			}
			if graph.AddEdge(e) {
				found = append(found, e)
			}
		}
		if doc.FQN() != fqn {
			graph.AddNode(doc)
		}
	}
	return found, nil
}

// walk runs a breadth-first worklist in one direction. Each visited node is
// expanded once; neighbors are queued with one step less.
func (s *lineageService) walk(ctx context.Context, scope lineageScope, dir domain.Direction, seeds []lineageStep, graph *domain.LineageGraph) error {
	field := lineageToFQN
	if dir == domain.DirectionDownstream {
		field = lineageFromFQN
	}

	visited := make(map[string]bool)
	queue := append([]lineageStep(nil), seeds...)
	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		if step.depth <= 0 || visited[step.fqn] {
			continue
		}
		visited[step.fqn] = true

		docs, err := s.edgeDocs(ctx, scope, field, step.fqn)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.FQN() != step.fqn {
				graph.AddNode(doc)
			}
			for _, e := range doc.LineageEdges() {
				next, ok := neighbor(e, dir, step.fqn)
				if !ok {
					continue
				}
				graph.AddEdge(e)
				if !visited[next] {
					queue = append(queue, lineageStep{fqn: next, depth: step.depth - 1})
				}
			}
		}
	}
	return nil
}

// neighbor returns the far endpoint of e when e touches fqn on the side
// matching dir.
func neighbor(e domain.LineageEdge, dir domain.Direction, fqn string) (string, bool) {
	if dir == domain.DirectionUpstream {
		return e.FromEntity.FQN, e.ToEntity.FQN == fqn
	}
	return e.ToEntity.FQN, e.FromEntity.FQN == fqn
}

// DataQualityLineage collects the upstream graph of an entity, then keeps
// only the paths that start at an entity with a failing test case.
func (s *lineageService) DataQualityLineage(ctx context.Context, req domain.DataQualityRequest) (*domain.LineageGraph, error) {
	if req.FQN == "" {
		return nil, fmt.Errorf("%w: fqn is required", domain.ErrInvalidInput)
	}
	filter, err := domain.ParseFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	if s.quality == nil {
		return nil, fmt.Errorf("%w: no quality store configured", domain.ErrServiceUnavailable)
	}
	scope := lineageScope{indices: s.registry.GlobalIndices(), filter: filter, includeDeleted: req.IncludeDeleted}

	graph := domain.NewLineageGraph()
	root, err := s.findByFQN(ctx, scope.indices, req.FQN)
	if err != nil {
		return nil, err
	}
	if root != nil {
		graph.Entity = root.WithoutLineage()
	}

	// Collect: node documents by FQN, upstream edges by source FQN.
	nodes := make(map[string]domain.SearchDocument)
	bySource := make(map[string][]domain.LineageEdge)
	seenEdge := make(map[domain.EdgeKey]bool)
	failing := make(map[string]bool)
	var flagged []string

	processed := make(map[string]bool)
	queue := []lineageStep{{fqn: req.FQN, depth: s.clamp(req.UpstreamDepth)}}
	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		if step.depth <= 0 || processed[step.fqn] {
			continue
		}
		processed[step.fqn] = true

		docs, err := s.edgeDocs(ctx, scope, lineageToFQN, step.fqn)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			fqn := doc.FQN()
			if _, ok := nodes[fqn]; !ok && fqn != req.FQN {
				nodes[fqn] = doc
			}
			for _, e := range doc.LineageEdges() {
				if e.ToEntity.FQN != step.fqn || seenEdge[e.Key()] {
					continue
				}
				seenEdge[e.Key()] = true
				src := e.FromEntity.FQN
				bySource[src] = append(bySource[src], e)

				if _, checked := failing[src]; !checked && src != req.FQN {
					failing[src] = s.hasFailure(ctx, src)
					if failing[src] {
						flagged = append(flagged, src)
					}
				}
				queue = append(queue, lineageStep{fqn: src, depth: step.depth - 1})
			}
		}
	}

	// Trace back: follow edges forward from each failing node.
	traced := make(map[string]bool)
	work := append([]string(nil), flagged...)
	for len(work) > 0 {
		fqn := work[0]
		work = work[1:]
		if traced[fqn] {
			continue
		}
		traced[fqn] = true
		if doc, ok := nodes[fqn]; ok {
			graph.AddNode(doc)
		}
		for _, e := range bySource[fqn] {
			graph.AddEdge(e)
			work = append(work, e.ToEntity.FQN)
		}
	}
	return graph, nil
}

func (s *lineageService) hasFailure(ctx context.Context, fqn string) bool {
	failed, err := s.quality.HasTestCaseFailure(ctx, fqn)
	if err != nil {
		s.logger.Warn("failed to check test case results", "fqn", fqn, "error", err)
		return false
	}
	return failed
}

// edgeDocs pages through every document whose embedded lineage has fqn at
// field.
func (s *lineageService) edgeDocs(ctx context.Context, scope lineageScope, field, fqn string) ([]domain.SearchDocument, error) {
	q := domain.TermQuery(field, fqn)
	q.Filter = scope.filter
	if !scope.includeDeleted {
		q = q.WithDeleted(false)
	}

	var docs []domain.SearchDocument
	for from := 0; from < domain.MaxResultWindow; from += s.pageSize {
		size := s.pageSize
		if from+size > domain.MaxResultWindow {
			size = domain.MaxResultWindow - from
		}
		page, err := s.engine.Search(ctx, domain.SearchRequest{
			Indices:   scope.indices,
			Query:     q,
			SortField: domain.DocFieldFQN,
			From:      from,
			Size:      size,
		})
		if err != nil {
			return nil, fmt.Errorf("lineage lookup %s=%s: %w", field, fqn, err)
		}
		docs = append(docs, page.Documents()...)
		if len(page.Hits) < size {
			break
		}
	}
	return docs, nil
}

// findByFQN returns the document with the given FQN, or nil.
func (s *lineageService) findByFQN(ctx context.Context, indices []string, fqn string) (domain.SearchDocument, error) {
	page, err := s.engine.Search(ctx, domain.SearchRequest{
		Indices: indices,
		Query:   domain.TermQuery(domain.DocFieldFQN, fqn),
		Size:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", fqn, err)
	}
	if len(page.Hits) == 0 {
		return nil, nil
	}
	return page.Hits[0].Source, nil
}

func (s *lineageService) clamp(depth int) int {
	switch {
	case depth < 0:
		return 0
	case depth > s.maxDepth:
		return s.maxDepth
	}
	return depth
}
