package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-catalog/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// MockSearchEngine wraps the in-memory engine, counts calls per method and
// lets tests inject failures.
type MockSearchEngine struct {
	*memory.SearchEngine

	mu    sync.Mutex
	calls map[string]int

	// Errors maps a method name to the error it should return (optional)
	Errors map[string]error
	// Scripts records every script passed to Update and UpdateByQuery
	Scripts []domain.Script
}

var _ driven.SearchEngine = (*MockSearchEngine)(nil)

// NewMockSearchEngine creates a new MockSearchEngine
func NewMockSearchEngine() *MockSearchEngine {
	return &MockSearchEngine{
		SearchEngine: memory.NewSearchEngine(nil),
		calls:        make(map[string]int),
		Errors:       make(map[string]error),
	}
}

func (m *MockSearchEngine) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.Errors[method]
}

// Calls returns how many times a method was invoked.
func (m *MockSearchEngine) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// ResetCalls clears the call counters and recorded scripts.
func (m *MockSearchEngine) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.Scripts = nil
}

func (m *MockSearchEngine) CreateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	if err := m.record("CreateIndex"); err != nil {
		return err
	}
	return m.SearchEngine.CreateIndex(ctx, mapping)
}

func (m *MockSearchEngine) UpdateIndex(ctx context.Context, mapping domain.IndexMapping) error {
	if err := m.record("UpdateIndex"); err != nil {
		return err
	}
	return m.SearchEngine.UpdateIndex(ctx, mapping)
}

func (m *MockSearchEngine) DeleteIndex(ctx context.Context, index string) error {
	if err := m.record("DeleteIndex"); err != nil {
		return err
	}
	return m.SearchEngine.DeleteIndex(ctx, index)
}

func (m *MockSearchEngine) IndexExists(ctx context.Context, index string) (bool, error) {
	if err := m.record("IndexExists"); err != nil {
		return false, err
	}
	return m.SearchEngine.IndexExists(ctx, index)
}

func (m *MockSearchEngine) Upsert(ctx context.Context, index, id string, doc domain.SearchDocument) error {
	if err := m.record("Upsert"); err != nil {
		return err
	}
	return m.SearchEngine.Upsert(ctx, index, id, doc)
}

func (m *MockSearchEngine) Get(ctx context.Context, index, id string) (domain.SearchDocument, error) {
	if err := m.record("Get"); err != nil {
		return nil, err
	}
	return m.SearchEngine.Get(ctx, index, id)
}

func (m *MockSearchEngine) Delete(ctx context.Context, index, id string) error {
	if err := m.record("Delete"); err != nil {
		return err
	}
	return m.SearchEngine.Delete(ctx, index, id)
}

func (m *MockSearchEngine) Update(ctx context.Context, index, id string, script domain.Script) error {
	m.addScript(script)
	if err := m.record("Update"); err != nil {
		return err
	}
	return m.SearchEngine.Update(ctx, index, id, script)
}

func (m *MockSearchEngine) UpdateByQuery(ctx context.Context, indices []string, query domain.Query, script domain.Script) (int, error) {
	m.addScript(script)
	if err := m.record("UpdateByQuery"); err != nil {
		return 0, err
	}
	return m.SearchEngine.UpdateByQuery(ctx, indices, query, script)
}

func (m *MockSearchEngine) DeleteByQuery(ctx context.Context, indices []string, query domain.Query) (int, error) {
	if err := m.record("DeleteByQuery"); err != nil {
		return 0, err
	}
	return m.SearchEngine.DeleteByQuery(ctx, indices, query)
}

func (m *MockSearchEngine) Bulk(ctx context.Context, ops []domain.BulkOp) (*domain.BulkResult, error) {
	if err := m.record("Bulk"); err != nil {
		return nil, err
	}
	return m.SearchEngine.Bulk(ctx, ops)
}

func (m *MockSearchEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchPage, error) {
	if err := m.record("Search"); err != nil {
		return nil, err
	}
	return m.SearchEngine.Search(ctx, req)
}

func (m *MockSearchEngine) HealthCheck(ctx context.Context) error {
	if err := m.record("HealthCheck"); err != nil {
		return err
	}
	return m.SearchEngine.HealthCheck(ctx)
}

func (m *MockSearchEngine) addScript(s domain.Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scripts = append(m.Scripts, s)
}
