package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// MockEntityStore is a mock implementation of EntityStore for testing
type MockEntityStore struct {
	mu       sync.RWMutex
	entities map[string]map[string]*domain.Entity

	// GetFn overrides GetCurrentProjection when set (optional)
	GetFn func(entityType, id string) (*domain.Entity, error)
}

var _ driven.EntityStore = (*MockEntityStore)(nil)

// NewMockEntityStore creates a new MockEntityStore
func NewMockEntityStore() *MockEntityStore {
	return &MockEntityStore{
		entities: make(map[string]map[string]*domain.Entity),
	}
}

// Put stores an entity under its type.
func (m *MockEntityStore) Put(e *domain.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.entities[e.Type]
	if !ok {
		byID = make(map[string]*domain.Entity)
		m.entities[e.Type] = byID
	}
	byID[e.ID] = e
}

func (m *MockEntityStore) GetCurrentProjection(ctx context.Context, entityType, id string, fields []string) (*domain.Entity, error) {
	if m.GetFn != nil {
		return m.GetFn(entityType, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[entityType][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEntityStore) ListEntities(ctx context.Context, entityType, after string, limit int) ([]*domain.Entity, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entities[entityType]))
	for id := range m.entities[entityType] {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []*domain.Entity
	for _, id := range ids {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *m.entities[entityType][id]
		out = append(out, &cp)
	}
	next := ""
	if limit > 0 && len(out) == limit && len(ids) > limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// MockRelationshipStore is a mock implementation of RelationshipStore for testing
type MockRelationshipStore struct {
	mu    sync.RWMutex
	edges []domain.LineageEdge

	// Err is returned from FindEdges when set (optional)
	Err error
}

var _ driven.RelationshipStore = (*MockRelationshipStore)(nil)

// NewMockRelationshipStore creates a new MockRelationshipStore
func NewMockRelationshipStore(edges ...domain.LineageEdge) *MockRelationshipStore {
	return &MockRelationshipStore{edges: edges}
}

// AddEdge registers a lineage edge.
func (m *MockRelationshipStore) AddEdge(e domain.LineageEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
}

func (m *MockRelationshipStore) FindEdges(ctx context.Context, id, entityType string, direction domain.Direction) ([]domain.LineageEdge, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.LineageEdge
	for _, e := range m.edges {
		switch direction {
		case domain.DirectionUpstream:
			if e.ToEntity.ID == id {
				out = append(out, e)
			}
		case domain.DirectionDownstream:
			if e.FromEntity.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// MockQualityStore is a mock implementation of QualityStore for testing
type MockQualityStore struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   map[string]int

	// Err is returned from HasTestCaseFailure when set (optional)
	Err error
}

var _ driven.QualityStore = (*MockQualityStore)(nil)

// NewMockQualityStore creates a store where the given FQNs have failures.
func NewMockQualityStore(failing ...string) *MockQualityStore {
	m := &MockQualityStore{failing: make(map[string]bool), calls: make(map[string]int)}
	for _, fqn := range failing {
		m.failing[fqn] = true
	}
	return m
}

func (m *MockQualityStore) HasTestCaseFailure(ctx context.Context, fqn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[fqn]++
	if m.Err != nil {
		return false, m.Err
	}
	return m.failing[fqn], nil
}

// Calls returns how many times fqn was checked.
func (m *MockQualityStore) Calls(fqn string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[fqn]
}
