// Package vespa implements the SearchEngine port on Vespa. Every logical
// index shares one catalog_entity document type and is told apart by the
// index attribute; index metadata lives in catalog_index documents.
package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchEngine = (*SearchEngine)(nil)

const (
	namespace   = "catalog"
	entityType  = "catalog_entity"
	indexType   = "catalog_index"
	clusterName = "catalog"

	visitBatch = 400
)

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the query and document API endpoint (e.g. http://localhost:8080)
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration

	// BulkConcurrency bounds parallel document writes in Bulk
	BulkConcurrency int

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		BulkConcurrency: 8,
	}
}

// SearchEngine implements driven.SearchEngine over the Vespa document and
// query APIs.
type SearchEngine struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewSearchEngine creates a new Vespa-backed SearchEngine
func NewSearchEngine(cfg Config) (*SearchEngine, error) {
	base, err := validateEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SearchEngine{
		baseURL:     base,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		concurrency: cfg.BulkConcurrency,
		logger:      cfg.Logger,
	}, nil
}

// statusError is a non-2xx response from Vespa.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vespa returned %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (s *SearchEngine) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func docPath(docType, key string) string {
	return fmt.Sprintf("/document/v1/%s/%s/docid/%s", namespace, docType, url.PathEscape(key))
}

func entityKey(index, id string) string {
	return index + "/" + id
}

// Index metadata

type indexFields struct {
	Name    string `json:"name"`
	Mapping string `json:"mapping"`
}

func (s *SearchEngine) putIndex(ctx context.Context, mapping domain.IndexMapping) error {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	body := map[string]any{"fields": indexFields{Name: mapping.IndexName, Mapping: string(raw)}}
	if err := s.do(ctx, http.MethodPost, docPath(indexType, mapping.IndexName), nil, body, nil); err != nil {
		return fmt.Errorf("put index %s: %w", mapping.IndexName, err)
	}
	return nil
}

// CreateIndex registers the index. Creating an existing index is a no-op.
func (s *SearchEngine) CreateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	if mapping.IndexName == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidInput)
	}
	exists, err := s.IndexExists(ctx, mapping.IndexName)
	if err != nil || exists {
		return err
	}
	if err := s.putIndex(ctx, mapping); err != nil {
		return err
	}
	s.logger.Info("index created", "index", mapping.IndexName)
	return nil
}

// UpdateIndex stores a new mapping for an existing index.
func (s *SearchEngine) UpdateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	exists, err := s.IndexExists(ctx, mapping.IndexName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: index %s", domain.ErrNotFound, mapping.IndexName)
	}
	return s.putIndex(ctx, mapping)
}

type visitResponse struct {
	Documents []struct {
		ID     string         `json:"id"`
		Fields entityResponse `json:"fields"`
	} `json:"documents"`
	Continuation  string `json:"continuation"`
	DocumentCount int    `json:"documentCount"`
}

// DeleteIndex removes every document of the index, then its metadata.
func (s *SearchEngine) DeleteIndex(ctx context.Context, index string) error {
	query := url.Values{
		"selection": {indexSelection(index)},
		"cluster":   {clusterName},
	}
	removed := 0
	for {
		var resp visitResponse
		if err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/document/v1/%s/%s/docid", namespace, entityType), query, nil, &resp); err != nil {
			return fmt.Errorf("delete documents of %s: %w", index, err)
		}
		removed += resp.DocumentCount
		if resp.Continuation == "" {
			break
		}
		query.Set("continuation", resp.Continuation)
	}
	if err := s.do(ctx, http.MethodDelete, docPath(indexType, index), nil, nil, nil); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete index %s: %w", index, err)
	}
	s.logger.Info("index deleted", "index", index, "documents", removed)
	return nil
}

// IndexExists reports whether index metadata has been stored.
func (s *SearchEngine) IndexExists(ctx context.Context, index string) (bool, error) {
	err := s.do(ctx, http.MethodGet, docPath(indexType, index), nil, nil, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	return true, nil
}

// Documents

// entityResponse is the subset of catalog_entity fields read back.
type entityResponse struct {
	Index  string `json:"index"`
	DocID  string `json:"doc_id"`
	Source string `json:"source"`
}

func (r entityResponse) document() (domain.SearchDocument, error) {
	var doc domain.SearchDocument
	if err := json.Unmarshal([]byte(r.Source), &doc); err != nil {
		return nil, fmt.Errorf("decode source of %s/%s: %w", r.Index, r.DocID, err)
	}
	return doc, nil
}

// Upsert writes a whole document.
func (s *SearchEngine) Upsert(ctx context.Context, index, id string, doc domain.SearchDocument) error {
	if id == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	fields, err := entityFields(index, id, doc)
	if err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodPost, docPath(entityType, entityKey(index, id)), nil, map[string]any{"fields": fields}, nil); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", index, id, err)
	}
	return nil
}

// Get returns a document or domain.ErrNotFound.
func (s *SearchEngine) Get(ctx context.Context, index, id string) (domain.SearchDocument, error) {
	var resp struct {
		Fields entityResponse `json:"fields"`
	}
	err := s.do(ctx, http.MethodGet, docPath(entityType, entityKey(index, id)), nil, nil, &resp)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, index, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	return resp.Fields.document()
}

// Delete removes a document. Vespa treats deleting a missing document as
// success.
func (s *SearchEngine) Delete(ctx context.Context, index, id string) error {
	if err := s.do(ctx, http.MethodDelete, docPath(entityType, entityKey(index, id)), nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	return nil
}

// Update applies the script client-side and writes the result back when
// it changed anything.
func (s *SearchEngine) Update(ctx context.Context, index, id string, script domain.Script) error {
	doc, err := s.Get(ctx, index, id)
	if err != nil {
		return err
	}
	if !script.Apply(doc) {
		return nil
	}
	return s.Upsert(ctx, index, id, doc)
}

// visit pages through every document of index, calling fn with each.
func (s *SearchEngine) visit(ctx context.Context, index string, fn func(id string, doc domain.SearchDocument) error) error {
	query := url.Values{
		"selection":           {indexSelection(index)},
		"cluster":             {clusterName},
		"wantedDocumentCount": {strconv.Itoa(visitBatch)},
	}
	for {
		var resp visitResponse
		if err := s.do(ctx, http.MethodGet, fmt.Sprintf("/document/v1/%s/%s/docid", namespace, entityType), query, nil, &resp); err != nil {
			return fmt.Errorf("visit %s: %w", index, err)
		}
		for _, d := range resp.Documents {
			doc, err := d.Fields.document()
			if err != nil {
				s.logger.Warn("skipping undecodable document", "index", index, "vespa_id", d.ID, "error", err)
				continue
			}
			if err := fn(d.Fields.DocID, doc); err != nil {
				return err
			}
		}
		if resp.Continuation == "" {
			return nil
		}
		query.Set("continuation", resp.Continuation)
	}
}

// UpdateByQuery visits each index and rewrites the matching documents the
// script changes. Queries are evaluated client-side so arbitrary term
// paths work without schema support.
func (s *SearchEngine) UpdateByQuery(ctx context.Context, indices []string, query domain.Query, script domain.Script) (int, error) {
	updated := 0
	for _, index := range indices {
		err := s.visit(ctx, index, func(id string, doc domain.SearchDocument) error {
			if !query.Matches(doc) || !script.Apply(doc) {
				return nil
			}
			if err := s.Upsert(ctx, index, id, doc); err != nil {
				return err
			}
			updated++
			return nil
		})
		if err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// DeleteByQuery removes every matching document.
func (s *SearchEngine) DeleteByQuery(ctx context.Context, indices []string, query domain.Query) (int, error) {
	deleted := 0
	for _, index := range indices {
		var ids []string
		err := s.visit(ctx, index, func(id string, doc domain.SearchDocument) error {
			if query.Matches(doc) {
				ids = append(ids, id)
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		for _, id := range ids {
			if err := s.Delete(ctx, index, id); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// Bulk writes the operations in parallel. Per-item failures are collected
// in the result.
func (s *SearchEngine) Bulk(ctx context.Context, ops []domain.BulkOp) (*domain.BulkResult, error) {
	result := &domain.BulkResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, op := range ops {
		g.Go(func() error {
			var err error
			switch op.Action {
			case domain.BulkUpsert:
				err = s.Upsert(gctx, op.Index, op.ID, op.Doc)
			case domain.BulkDelete:
				err = s.Delete(gctx, op.Index, op.ID)
			default:
				err = fmt.Errorf("unknown bulk action %s", op.Action)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Fail(op, err.Error())
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

type searchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Relevance float64        `json:"relevance"`
			Fields    entityResponse `json:"fields"`
		} `json:"children"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"root"`
}

// Search runs a YQL query built from the request.
func (s *SearchEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	page := &domain.SearchPage{Hits: []domain.Hit{}}
	if len(req.Indices) == 0 {
		return page, nil
	}
	yql, err := buildYQL(req)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"yql":    yql,
		"hits":   req.Size,
		"offset": req.From,
	}
	var resp searchResponse
	if err := s.do(ctx, http.MethodPost, "/search/", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(resp.Root.Errors) > 0 {
		return nil, fmt.Errorf("query: %s", resp.Root.Errors[0].Message)
	}

	page.Total = resp.Root.Fields.TotalCount
	for _, child := range resp.Root.Children {
		doc, err := child.Fields.document()
		if err != nil {
			return nil, err
		}
		page.Hits = append(page.Hits, domain.Hit{
			Index:  child.Fields.Index,
			ID:     child.Fields.DocID,
			Score:  child.Relevance,
			Source: doc,
		})
	}
	return page, nil
}

// HealthCheck reads the container's health state.
func (s *SearchEngine) HealthCheck(ctx context.Context) error {
	var resp struct {
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	}
	if err := s.do(ctx, http.MethodGet, "/state/v1/health", nil, nil, &resp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if resp.Status.Code != "up" {
		return fmt.Errorf("%w: vespa status %q", domain.ErrServiceUnavailable, resp.Status.Code)
	}
	return nil
}
