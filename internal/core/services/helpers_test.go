package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/custodia-labs/sercha-catalog/internal/builder"
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	reg, err := mapping.Default("")
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}
	return reg
}

// indexFixture wires an index service over the mock engine.
type indexFixture struct {
	registry *mapping.Registry
	builder  *builder.Builder
	engine   *mocks.MockSearchEngine
	queue    *mocks.MockTaskQueue
	svc      *indexService
}

func newIndexFixture(t *testing.T) *indexFixture {
	t.Helper()
	reg := testRegistry(t)
	b := builder.New(builder.Config{Logger: quietLogger()})
	engine := mocks.NewMockSearchEngine()
	queue := mocks.NewMockTaskQueue()
	svc := NewIndexService(IndexServiceConfig{
		Registry:  reg,
		Builder:   b,
		Engine:    engine,
		TaskQueue: queue,
		Logger:    quietLogger(),
	}).(*indexService)
	return &indexFixture{registry: reg, builder: b, engine: engine, queue: queue, svc: svc}
}

// index writes entities through IndexEntity and clears the call counters.
func (f *indexFixture) index(t *testing.T, entities ...*domain.Entity) {
	t.Helper()
	for _, e := range entities {
		if err := f.svc.IndexEntity(context.Background(), e); err != nil {
			t.Fatalf("IndexEntity(%s) error = %v", e.ID, err)
		}
	}
	f.engine.ResetCalls()
}

func (f *indexFixture) doc(t *testing.T, entityType, id string) domain.SearchDocument {
	t.Helper()
	index, err := f.registry.IndexName(entityType)
	if err != nil {
		t.Fatalf("IndexName(%s) error = %v", entityType, err)
	}
	doc, err := f.engine.SearchEngine.Get(context.Background(), index, id)
	if err != nil {
		t.Fatalf("Get(%s/%s) error = %v", index, id, err)
	}
	return doc
}

func (f *indexFixture) missing(t *testing.T, entityType, id string) bool {
	t.Helper()
	index, _ := f.registry.IndexName(entityType)
	_, err := f.engine.SearchEngine.Get(context.Background(), index, id)
	return err != nil
}

func ref(id, entityType string) map[string]any {
	return map[string]any{"id": id, "type": entityType, "name": id}
}

func table(id, schemaID string) *domain.Entity {
	return &domain.Entity{
		ID:                 id,
		Type:               domain.EntityTypeTable,
		Name:               id,
		FullyQualifiedName: "svc.db.sch." + id,
		Version:            1,
		Service:            &domain.EntityReference{ID: "svc1", Type: domain.EntityTypeDatabaseService, Name: "svc"},
		Attributes: map[string]any{
			"databaseSchema": ref(schemaID, domain.EntityTypeDatabaseSchema),
		},
	}
}

func schema(id string) *domain.Entity {
	return &domain.Entity{
		ID:                 id,
		Type:               domain.EntityTypeDatabaseSchema,
		Name:               "sch",
		FullyQualifiedName: "svc.db.sch",
		Version:            1,
		Service:            &domain.EntityReference{ID: "svc1", Type: domain.EntityTypeDatabaseService, Name: "svc"},
	}
}

func ownerNames(doc domain.SearchDocument) map[string]bool {
	out := make(map[string]bool)
	for _, v := range doc.Values("owners.id") {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}
