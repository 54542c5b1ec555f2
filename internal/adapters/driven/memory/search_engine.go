// Package memory provides an in-process SearchEngine used for single-node
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchEngine = (*SearchEngine)(nil)

// textFields are matched by free-text search.
var textFields = []string{
	domain.DocFieldName,
	domain.DocFieldDisplayName,
	domain.DocFieldFQN,
	domain.DocFieldDescription,
}

type index struct {
	mapping domain.IndexMapping
	docs    map[string]domain.SearchDocument
}

// SearchEngine keeps documents in memory. Documents are deep-copied on the
// way in and out so callers never share state with the store.
type SearchEngine struct {
	mu      sync.RWMutex
	indices map[string]*index
	logger  *slog.Logger
}

// NewSearchEngine creates an empty engine.
func NewSearchEngine(logger *slog.Logger) *SearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchEngine{
		indices: make(map[string]*index),
		logger:  logger,
	}
}

func (e *SearchEngine) CreateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	if mapping.IndexName == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[mapping.IndexName]; ok {
		return nil
	}
	e.indices[mapping.IndexName] = &index{mapping: mapping, docs: make(map[string]domain.SearchDocument)}
	e.logger.Debug("index created", "index", mapping.IndexName)
	return nil
}

func (e *SearchEngine) UpdateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[mapping.IndexName]
	if !ok {
		return fmt.Errorf("%w: index %s", domain.ErrNotFound, mapping.IndexName)
	}
	idx.mapping = mapping
	return nil
}

func (e *SearchEngine) DeleteIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices, name)
	return nil
}

func (e *SearchEngine) IndexExists(ctx context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

func (e *SearchEngine) Upsert(ctx context.Context, indexName, id string, doc domain.SearchDocument) error {
	if id == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensure(indexName).docs[id] = doc.Clone()
	return nil
}

func (e *SearchEngine) Get(ctx context.Context, indexName, id string) (domain.SearchDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[indexName]
	if !ok {
		return nil, fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, indexName, id)
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, indexName, id)
	}
	return doc.Clone(), nil
}

func (e *SearchEngine) Delete(ctx context.Context, indexName, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[indexName]; ok {
		delete(idx.docs, id)
	}
	return nil
}

func (e *SearchEngine) Update(ctx context.Context, indexName, id string, script domain.Script) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indices[indexName]
	if !ok {
		return fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, indexName, id)
	}
	doc, ok := idx.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, indexName, id)
	}
	cp := doc.Clone()
	if script.Apply(cp) {
		idx.docs[id] = cp.Clone()
	}
	return nil
}

func (e *SearchEngine) UpdateByQuery(ctx context.Context, indices []string, query domain.Query, script domain.Script) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	updated := 0
	for _, name := range indices {
		idx, ok := e.indices[name]
		if !ok {
			continue
		}
		for id, doc := range idx.docs {
			if !query.Matches(doc) {
				continue
			}
			cp := doc.Clone()
			if script.Apply(cp) {
				idx.docs[id] = cp.Clone()
				updated++
			}
		}
	}
	return updated, nil
}

func (e *SearchEngine) DeleteByQuery(ctx context.Context, indices []string, query domain.Query) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	deleted := 0
	for _, name := range indices {
		idx, ok := e.indices[name]
		if !ok {
			continue
		}
		for id, doc := range idx.docs {
			if query.Matches(doc) {
				delete(idx.docs, id)
				deleted++
			}
		}
	}
	return deleted, nil
}

func (e *SearchEngine) Bulk(ctx context.Context, ops []domain.BulkOp) (*domain.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := &domain.BulkResult{}
	for _, op := range ops {
		switch op.Action {
		case domain.BulkUpsert:
			if op.ID == "" {
				result.Fail(op, "document id is required")
				continue
			}
			e.ensure(op.Index).docs[op.ID] = op.Doc.Clone()
		case domain.BulkDelete:
			if idx, ok := e.indices[op.Index]; ok {
				delete(idx.docs, op.ID)
			}
		default:
			result.Fail(op, "unknown bulk action "+string(op.Action))
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (e *SearchEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	text := strings.ToLower(strings.TrimSpace(req.Text))
	if text == "*" {
		text = ""
	}

	var hits []domain.Hit
	for _, name := range req.Indices {
		idx, ok := e.indices[name]
		if !ok {
			continue
		}
		for id, doc := range idx.docs {
			if !req.Query.Matches(doc) {
				continue
			}
			score := 1.0
			if text != "" {
				score = textScore(doc, text)
				if score == 0 {
					continue
				}
			}
			hits = append(hits, domain.Hit{Index: name, ID: id, Score: score, Source: doc})
		}
	}

	sortHits(hits, req.SortField, req.SortOrder)

	page := &domain.SearchPage{Total: len(hits), Hits: []domain.Hit{}}
	if req.From >= len(hits) {
		return page, nil
	}
	end := req.From + req.Size
	if end > len(hits) {
		end = len(hits)
	}
	for _, h := range hits[req.From:end] {
		h.Source = h.Source.Clone()
		page.Hits = append(page.Hits, h)
	}
	return page, nil
}

func (e *SearchEngine) HealthCheck(ctx context.Context) error {
	return nil
}

// ensure returns the named index, creating it implicitly like a write to an
// unknown index would on a real backend. Caller holds the write lock.
func (e *SearchEngine) ensure(name string) *index {
	idx, ok := e.indices[name]
	if !ok {
		idx = &index{mapping: domain.IndexMapping{IndexName: name}, docs: make(map[string]domain.SearchDocument)}
		e.indices[name] = idx
	}
	return idx
}

func textScore(doc domain.SearchDocument, text string) float64 {
	score := 0.0
	for _, field := range textFields {
		for _, v := range doc.Values(field) {
			s, ok := v.(string)
			if !ok {
				continue
			}
			lower := strings.ToLower(s)
			switch {
			case lower == text:
				score += 10
			case strings.HasPrefix(lower, text):
				score += 5
			case strings.Contains(lower, text):
				score++
			}
		}
	}
	return score
}

func sortHits(hits []domain.Hit, field string, order domain.SortOrder) {
	desc := order == domain.SortDesc
	sort.SliceStable(hits, func(i, j int) bool {
		if field != "" {
			c := compareValues(firstValue(hits[i].Source, field), firstValue(hits[j].Source, field))
			if c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		} else if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Index != hits[j].Index {
			return hits[i].Index < hits[j].Index
		}
		return hits[i].ID < hits[j].ID
	})
}

func firstValue(doc domain.SearchDocument, field string) any {
	values := doc.Values(field)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// compareValues orders numbers numerically and everything else by its term
// rendering. Missing values sort last.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, _ := domain.TermValue(a)
	sb, _ := domain.TermValue(b)
	return strings.Compare(sa, sb)
}
