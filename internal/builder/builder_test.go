package builder

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

func newTable() *domain.Entity {
	return &domain.Entity{
		ID:                 "t1",
		Type:               domain.EntityTypeTable,
		Name:               "orders",
		FullyQualifiedName: "svc.db.sch.orders",
		Version:            0.2,
		Owners:             []domain.EntityReference{{ID: "u1", Type: "user", Name: "alice"}},
		Followers:          []domain.EntityReference{{ID: "u2", Type: "user"}, {ID: "u3", Type: "user"}},
		Votes:              &domain.Votes{UpVotes: 5, DownVotes: 2},
		Service:            &domain.EntityReference{ID: "s1", Type: domain.EntityTypeDatabaseService, Name: "svc"},
		Tags: []domain.TagLabel{
			{TagFQN: "Tier.Tier1", Source: domain.TagSourceClassification},
			{TagFQN: "PII.Sensitive", Source: domain.TagSourceClassification},
		},
		ChangeDescription: &domain.ChangeDescription{PreviousVersion: 0.1},
		Attributes: map[string]any{
			"database":       map[string]any{"id": "db1", "type": "database", "name": "db"},
			"databaseSchema": map[string]any{"id": "sc1", "type": "databaseSchema", "name": "sch", "displayName": "Schema"},
			"sampleData":     map[string]any{"rows": []any{}},
			"columns": []any{
				map[string]any{
					"name":        "id",
					"description": "primary key",
					"tags":        []any{map[string]any{"tagFQN": "PII.Sensitive"}},
				},
				map[string]any{
					"name": "address",
					"tags": []any{map[string]any{"tagFQN": "PII.Address"}},
					"children": []any{
						map[string]any{"name": "city", "description": "city"},
					},
				},
			},
		},
	}
}

func TestBuild_UnknownType(t *testing.T) {
	b := New(Config{})

	_, err := b.Build(context.Background(), "spaceship", newTable())
	if !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Fatalf("expected ErrUnknownEntityType, got %v", err)
	}
}

func TestBuild_MissingID(t *testing.T) {
	b := New(Config{})

	_, err := b.Build(context.Background(), domain.EntityTypeTable, &domain.Entity{Name: "x"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuild_CommonAttributes(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeTable, newTable())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if doc.EntityType() != domain.EntityTypeTable {
		t.Errorf("expected entityType table, got %q", doc.EntityType())
	}
	if doc["displayName"] != "orders" {
		t.Errorf("expected displayName to fall back to name, got %v", doc["displayName"])
	}
	if _, ok := doc["domain"]; ok {
		t.Error("expected domain to be omitted")
	}
	if !doc.HasTerm("owners.displayName", "alice") {
		t.Error("expected owner display name backfilled")
	}
	if !reflect.DeepEqual(doc["followers"], []any{"u2", "u3"}) {
		t.Errorf("unexpected followers: %v", doc["followers"])
	}
	if doc["totalVotes"] != float64(3) {
		t.Errorf("expected totalVotes 3, got %v", doc["totalVotes"])
	}
	if doc["descriptionStatus"] != domain.DescriptionStatusIncomplete {
		t.Errorf("expected INCOMPLETE, got %v", doc["descriptionStatus"])
	}
	if doc.IsDeleted() {
		t.Error("expected deleted=false")
	}

	wantParts := []any{"orders", "svc", "svc.db", "svc.db.sch", "svc.db.sch.orders"}
	if !reflect.DeepEqual(doc["fqnParts"], wantParts) {
		t.Errorf("fqnParts = %v, want %v", doc["fqnParts"], wantParts)
	}

	suggest, _ := doc["suggest"].([]any)
	if len(suggest) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", doc["suggest"])
	}
}

func TestBuild_TableSpecificFields(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeTable, newTable())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !reflect.DeepEqual(doc["columnNames"], []any{"id", "address", "address.city"}) {
		t.Errorf("unexpected columnNames: %v", doc["columnNames"])
	}
	if doc["columnDescriptionStatus"] != domain.DescriptionStatusIncomplete {
		t.Errorf("expected column description INCOMPLETE, got %v", doc["columnDescriptionStatus"])
	}

	if !doc.HasTerm("tier.tagFQN", "Tier.Tier1") {
		t.Errorf("expected tier extracted, got %v", doc["tier"])
	}
	if doc.HasTerm("tags.tagFQN", "Tier.Tier1") {
		t.Error("tier tag must not stay in tags")
	}
	tags, _ := doc["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("expected PII.Sensitive and PII.Address once each, got %v", tags)
	}
	if !doc.HasTerm("tags.tagFQN", "PII.Address") {
		t.Error("expected column tag merged into document tags")
	}

	if !doc.HasTerm("database.displayName", "db") {
		t.Error("expected database display name backfilled")
	}
	if !doc.HasTerm("databaseSchema.displayName", "Schema") {
		t.Error("expected existing display name kept")
	}
	if !doc.HasTerm("service.id", "s1") {
		t.Error("expected service reference")
	}

	for _, field := range []string{"sampleData", "changeDescription"} {
		if _, ok := doc[field]; ok {
			t.Errorf("expected %s to be excluded", field)
		}
	}
}

func TestBuild_DomainBackfill(t *testing.T) {
	b := New(Config{})
	e := newTable()
	e.Domain = &domain.EntityReference{ID: "dm1", Type: "domain", Name: "Sales"}

	doc, err := b.Build(context.Background(), domain.EntityTypeTable, e)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !doc.HasTerm("domain.displayName", "Sales") {
		t.Errorf("expected domain display name backfilled, got %v", doc["domain"])
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := New(Config{Relationships: mocks.NewMockRelationshipStore(
		domain.LineageEdge{FromEntity: domain.EdgeRef{ID: "t0", Type: "table", FQN: "svc.db.sch.raw"}, ToEntity: domain.EdgeRef{ID: "t1", Type: "table", FQN: "svc.db.sch.orders"}},
		domain.LineageEdge{FromEntity: domain.EdgeRef{ID: "t1", Type: "table", FQN: "svc.db.sch.orders"}, ToEntity: domain.EdgeRef{ID: "t2", Type: "table", FQN: "svc.db.sch.report"}},
	)})

	first, err := b.Build(context.Background(), domain.EntityTypeTable, newTable())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(context.Background(), domain.EntityTypeTable, newTable())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	a, _ := json.Marshal(first)
	c, _ := json.Marshal(second)
	if string(a) != string(c) {
		t.Errorf("expected byte-identical documents:\n%s\n%s", a, c)
	}
}

func TestBuild_EmbedsLineage(t *testing.T) {
	up := domain.LineageEdge{
		FromEntity: domain.EdgeRef{ID: "t0", Type: "table", FQN: "svc.db.sch.raw"},
		ToEntity:   domain.EdgeRef{ID: "t1", Type: "table", FQN: "svc.db.sch.orders"},
		Pipeline:   &domain.PipelineRef{ID: "p1", FullyQualifiedName: "airflow.load"},
	}
	down := domain.LineageEdge{
		FromEntity: domain.EdgeRef{ID: "t1", Type: "table", FQN: "svc.db.sch.orders"},
		ToEntity:   domain.EdgeRef{ID: "t2", Type: "table", FQN: "svc.db.sch.report"},
	}
	b := New(Config{Relationships: mocks.NewMockRelationshipStore(up, down)})

	doc, err := b.Build(context.Background(), domain.EntityTypeTable, newTable())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	edges := doc.LineageEdges()
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	for _, e := range edges {
		if e.DocID == "" {
			t.Errorf("expected doc id on edge %v", e.Key())
		}
	}
	if !doc.HasTerm("lineage.pipeline.fullyQualifiedName", "airflow.load") {
		t.Error("expected pipeline annotation preserved")
	}
}

func TestBuild_NoLineageForChart(t *testing.T) {
	rel := mocks.NewMockRelationshipStore(domain.LineageEdge{
		FromEntity: domain.EdgeRef{ID: "c1", Type: "chart", FQN: "looker.c1"},
		ToEntity:   domain.EdgeRef{ID: "t1", Type: "table", FQN: "svc.db.sch.orders"},
	})
	b := New(Config{Relationships: rel})

	doc, err := b.Build(context.Background(), domain.EntityTypeChart, &domain.Entity{
		ID: "c1", Type: domain.EntityTypeChart, Name: "c1", FullyQualifiedName: "looker.c1",
		Attributes: map[string]any{"dashboards": []any{map[string]any{"id": "d1", "name": "sales"}}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := doc["lineage"]; ok {
		t.Error("charts must not embed lineage")
	}
	if !doc.HasTerm("dashboards.displayName", "sales") {
		t.Error("expected dashboards references backfilled")
	}
}

func TestBuild_LineageLookupError(t *testing.T) {
	rel := mocks.NewMockRelationshipStore()
	rel.Err = errors.New("connection refused")
	b := New(Config{Relationships: rel})

	if _, err := b.Build(context.Background(), domain.EntityTypeTable, newTable()); err == nil {
		t.Fatal("expected lineage lookup error")
	}
}

func TestBuild_ReportDataIsRaw(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeEntityReportData, &domain.Entity{
		ID:         "r1",
		Attributes: map[string]any{"timestamp": 1700000000000.0, "data": map[string]any{"entityCount": 4.0}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if doc.EntityType() != domain.EntityTypeEntityReportData {
		t.Errorf("unexpected entityType %q", doc.EntityType())
	}
	for _, field := range []string{"suggest", "fqnParts", "descriptionStatus"} {
		if _, ok := doc[field]; ok {
			t.Errorf("report data must not carry %s", field)
		}
	}
	if !doc.HasTerm("data.entityCount", "4") {
		t.Errorf("expected report payload kept, got %v", doc)
	}
}

func TestBuild_ServiceExclusions(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeMetadataService, &domain.Entity{
		ID: "m1", Name: "om", FullyQualifiedName: "om",
		Attributes: map[string]any{
			"connection":                   map[string]any{"password": "secret"},
			"openMetadataServerConnection": map[string]any{"token": "x"},
			"serviceType":                  "OpenMetadata",
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, field := range []string{"connection", "openMetadataServerConnection"} {
		if _, ok := doc[field]; ok {
			t.Errorf("expected %s removed", field)
		}
	}
	if doc["serviceType"] != "OpenMetadata" {
		t.Errorf("expected serviceType kept, got %v", doc["serviceType"])
	}
}

func TestBuild_GlossaryTermSynonyms(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeGlossaryTerm, &domain.Entity{
		ID: "g1", Name: "Revenue", FullyQualifiedName: "Business.Revenue",
		Attributes: map[string]any{
			"synonyms": []any{"Income"},
			"glossary": map[string]any{"id": "gl", "name": "Business"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !doc.HasTerm("suggest.input", "Income") {
		t.Errorf("expected synonym suggestion, got %v", doc["suggest"])
	}
	if !doc.HasTerm("fqnParts", "Business") {
		t.Errorf("expected glossary prefix in fqnParts, got %v", doc["fqnParts"])
	}
	if !doc.HasTerm("glossary.displayName", "Business") {
		t.Error("expected glossary reference backfilled")
	}
}

func TestBuild_TestCaseOrigin(t *testing.T) {
	b := New(Config{})

	doc, err := b.Build(context.Background(), domain.EntityTypeTestCase, &domain.Entity{
		ID: "tc1", Name: "not_null", FullyQualifiedName: "svc.db.sch.orders.id.not_null",
		Attributes: map[string]any{
			"entityLink":       "<#E::table::svc.db.sch.orders::columns::id>",
			"failedRowsSample": map[string]any{"rows": []any{}},
			"testSuite":        map[string]any{"id": "ts1", "name": "orders.testSuite"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if doc["originEntityFQN"] != "svc.db.sch.orders" {
		t.Errorf("unexpected origin fqn %v", doc["originEntityFQN"])
	}
	if doc["originEntityType"] != domain.EntityTypeTable {
		t.Errorf("unexpected origin type %v", doc["originEntityType"])
	}
	if _, ok := doc["failedRowsSample"]; ok {
		t.Error("expected failedRowsSample removed")
	}
	if !doc.HasTerm("testSuite.id", "ts1") {
		t.Error("expected testSuite reference kept")
	}
}

func TestParseEntityLink(t *testing.T) {
	tests := []struct {
		link     string
		wantType string
		wantFQN  string
		wantOK   bool
	}{
		{"<#E::table::a.b.c>", "table", "a.b.c", true},
		{"<#E::table::a.b.c::columns::id>", "table", "a.b.c", true},
		{"table::a.b.c", "", "", false},
		{"<#E::table>", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			gotType, gotFQN, ok := parseEntityLink(tt.link)
			if ok != tt.wantOK || gotType != tt.wantType || gotFQN != tt.wantFQN {
				t.Errorf("parseEntityLink(%q) = %q, %q, %v", tt.link, gotType, gotFQN, ok)
			}
		})
	}
}

func TestBuilder_Types(t *testing.T) {
	b := New(Config{})

	types := b.Types()
	if len(types) != 42 {
		t.Errorf("expected 42 variants, got %d", len(types))
	}
	if !b.Supports(domain.EntityTypeMetric) || b.Supports("spaceship") {
		t.Error("unexpected Supports result")
	}

	reg, err := mapping.Default("")
	if err != nil {
		t.Fatalf("Default mappings: %v", err)
	}
	if err := reg.Validate(types...); err != nil {
		t.Errorf("every builder type needs a mapping: %v", err)
	}
}

func TestBuilder_CustomVariants(t *testing.T) {
	b := New(Config{Variants: map[string]Variant{"widget": &variant{nameWeight: 1}}})

	if _, err := b.Build(context.Background(), domain.EntityTypeTable, newTable()); !errors.Is(err, domain.ErrUnknownEntityType) {
		t.Errorf("expected table to be unknown with a custom table, got %v", err)
	}
	doc, err := b.Build(context.Background(), "widget", &domain.Entity{ID: "w1", Name: "w"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if doc.EntityType() != "widget" {
		t.Errorf("unexpected entityType %q", doc.EntityType())
	}
}
