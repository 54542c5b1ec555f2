package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven/mocks"
)

// lineageWorld indexes table documents that embed every edge touching them,
// the way the document builder does.
type lineageWorld struct {
	t       *testing.T
	engine  *mocks.MockSearchEngine
	index   string
	deleted map[string]bool
	edges   []domain.LineageEdge
	nodes   map[string]bool
}

func newLineageWorld(t *testing.T) *lineageWorld {
	t.Helper()
	index, err := testRegistry(t).IndexName(domain.EntityTypeTable)
	if err != nil {
		t.Fatalf("IndexName() error = %v", err)
	}
	return &lineageWorld{
		t:       t,
		engine:  mocks.NewMockSearchEngine(),
		index:   index,
		deleted: make(map[string]bool),
		nodes:   make(map[string]bool),
	}
}

func edgeRef(name string) domain.EdgeRef {
	return domain.EdgeRef{ID: "id-" + name, Type: domain.EntityTypeTable, FQN: name}
}

func (w *lineageWorld) edge(from, to string) *lineageWorld {
	w.edges = append(w.edges, domain.LineageEdge{FromEntity: edgeRef(from), ToEntity: edgeRef(to)})
	w.nodes[from], w.nodes[to] = true, true
	return w
}

func (w *lineageWorld) pipelineEdge(from, to, pipeline string) *lineageWorld {
	w.edges = append(w.edges, domain.LineageEdge{
		FromEntity: edgeRef(from),
		ToEntity:   edgeRef(to),
		Pipeline:   &domain.PipelineRef{ID: "id-" + pipeline, Type: domain.EntityTypePipeline, FullyQualifiedName: pipeline},
	})
	w.nodes[from], w.nodes[to] = true, true
	return w
}

func (w *lineageWorld) softDeleted(name string) *lineageWorld {
	w.deleted[name] = true
	return w
}

// build writes one document per node.
func (w *lineageWorld) build() *lineageWorld {
	w.t.Helper()
	ctx := context.Background()
	for name := range w.nodes {
		var own []domain.LineageEdge
		for _, e := range w.edges {
			if e.FromEntity.FQN == name || e.ToEntity.FQN == name {
				own = append(own, e.WithDocID())
			}
		}
		raw, err := domain.Normalize(map[string]any{
			domain.DocFieldID:         "id-" + name,
			domain.DocFieldEntityType: domain.EntityTypeTable,
			domain.DocFieldName:       name,
			domain.DocFieldFQN:        name,
			domain.DocFieldDeleted:    w.deleted[name],
			domain.DocFieldLineage:    own,
		})
		if err != nil {
			w.t.Fatalf("normalize: %v", err)
		}
		if err := w.engine.SearchEngine.Upsert(ctx, w.index, "id-"+name, domain.SearchDocument(raw.(map[string]any))); err != nil {
			w.t.Fatalf("upsert: %v", err)
		}
	}
	return w
}

func (w *lineageWorld) service(quality *mocks.MockQualityStore, maxDepth int) *lineageService {
	cfg := LineageServiceConfig{
		Registry: testRegistry(w.t),
		Engine:   w.engine,
		MaxDepth: maxDepth,
		Logger:   quietLogger(),
	}
	if quality != nil {
		cfg.Quality = quality
	}
	return NewLineageService(cfg).(*lineageService)
}

func nodeFQNs(g *domain.LineageGraph) []string {
	var out []string
	for _, n := range g.NodeList() {
		out = append(out, n.FQN())
	}
	return out
}

func edgeKeys(g *domain.LineageGraph) []string {
	var out []string
	for _, e := range g.EdgeList() {
		out = append(out, e.FromEntity.FQN+">"+e.ToEntity.FQN)
	}
	sort.Strings(out)
	return out
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func TestLineageService_DepthBound(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").edge("b", "c").edge("c", "d").edge("d", "e").build()
	svc := w.service(nil, 0)
	ctx := context.Background()

	tests := []struct {
		name      string
		up, down  int
		wantNodes []string
		wantEdges []string
	}{
		{"upstream 1", 1, 0, []string{"b"}, []string{"b>c"}},
		{"upstream 2", 2, 0, []string{"a", "b"}, []string{"a>b", "b>c"}},
		{"downstream 1", 0, 1, []string{"d"}, []string{"c>d"}},
		{"both 1", 1, 1, []string{"b", "d"}, []string{"b>c", "c>d"}},
		{"both large", 9, 9, []string{"a", "b", "d", "e"}, []string{"a>b", "b>c", "c>d", "d>e"}},
		{"zero", 0, 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := svc.Lineage(ctx, domain.LineageRequest{FQN: "c", UpstreamDepth: tt.up, DownstreamDepth: tt.down})
			if err != nil {
				t.Fatalf("Lineage() error = %v", err)
			}
			assertStrings(t, "nodes", nodeFQNs(g), tt.wantNodes)
			assertStrings(t, "edges", edgeKeys(g), tt.wantEdges)
			if g.Entity.FQN() != "c" {
				t.Errorf("entity = %v, want c", g.Entity.FQN())
			}
			if _, ok := g.Entity[domain.DocFieldLineage]; ok {
				t.Error("entity should not carry embedded lineage")
			}
		})
	}
}

func TestLineageService_DepthClamped(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").edge("b", "c").edge("c", "d").build()

	g, err := w.service(nil, 2).Lineage(context.Background(), domain.LineageRequest{FQN: "d", UpstreamDepth: 50})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "nodes", nodeFQNs(g), []string{"b", "c"})
}

func TestLineageService_Diamond(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").edge("a", "c").edge("b", "d").edge("c", "d").build()

	g, err := w.service(nil, 0).Lineage(context.Background(), domain.LineageRequest{FQN: "d", UpstreamDepth: 5})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "nodes", nodeFQNs(g), []string{"a", "b", "c"})
	assertStrings(t, "edges", edgeKeys(g), []string{"a>b", "a>c", "b>d", "c>d"})
}

func TestLineageService_Cycle(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").edge("b", "c").edge("c", "a").build()

	g, err := w.service(nil, 0).Lineage(context.Background(), domain.LineageRequest{FQN: "a", UpstreamDepth: 10, DownstreamDepth: 10})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "edges", edgeKeys(g), []string{"a>b", "b>c", "c>a"})
}

func TestLineageService_Pipeline(t *testing.T) {
	w := newLineageWorld(t).
		edge("src", "a").
		pipelineEdge("a", "b", "airflow.etl").
		edge("b", "c").
		edge("c", "d").
		edge("airflow.etl", "report").
		build()
	svc := w.service(nil, 0)

	tests := []struct {
		name      string
		up, down  int
		wantEdges []string
		wantNodes []string
	}{
		{
			name: "depth one",
			up:   1, down: 1,
			wantEdges: []string{"a>b", "airflow.etl>report", "b>c", "src>a"},
			wantNodes: []string{"a", "b", "c", "report", "src"},
		},
		{
			name: "depth two",
			up:   2, down: 2,
			wantEdges: []string{"a>b", "airflow.etl>report", "b>c", "c>d", "src>a"},
			wantNodes: []string{"a", "b", "c", "d", "report", "src"},
		},
		{
			name: "downstream only",
			up:   0, down: 1,
			wantEdges: []string{"a>b", "airflow.etl>report", "b>c"},
			wantNodes: []string{"a", "b", "c", "report"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := svc.Lineage(context.Background(), domain.LineageRequest{
				FQN:             "airflow.etl",
				EntityType:      domain.EntityTypePipeline,
				UpstreamDepth:   tt.up,
				DownstreamDepth: tt.down,
			})
			if err != nil {
				t.Fatalf("Lineage() error = %v", err)
			}
			assertStrings(t, "edges", edgeKeys(g), tt.wantEdges)
			assertStrings(t, "nodes", nodeFQNs(g), tt.wantNodes)
		})
	}
}

func TestLineageService_PipelineWithoutEdgesFallsBack(t *testing.T) {
	w := newLineageWorld(t).edge("etl", "b").build()

	g, err := w.service(nil, 0).Lineage(context.Background(), domain.LineageRequest{
		FQN:             "etl",
		EntityType:      domain.EntityTypePipeline,
		DownstreamDepth: 1,
	})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "edges", edgeKeys(g), []string{"etl>b"})
}

func TestLineageService_DeletedNodes(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").edge("b", "c").softDeleted("b").build()
	svc := w.service(nil, 0)
	ctx := context.Background()

	g, err := svc.Lineage(ctx, domain.LineageRequest{FQN: "c", UpstreamDepth: 1})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "nodes without deleted", nodeFQNs(g), nil)

	g, err = svc.Lineage(ctx, domain.LineageRequest{FQN: "c", UpstreamDepth: 1, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "nodes with deleted", nodeFQNs(g), []string{"b"})
}

func TestLineageService_InvalidRequests(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").build()
	svc := w.service(mocks.NewMockQualityStore(), 0)
	ctx := context.Background()

	if _, err := svc.Lineage(ctx, domain.LineageRequest{FQN: "b", UpstreamDepth: 1, Filter: "{not json"}); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("Lineage() error = %v, want ErrInvalidQuery", err)
	}
	if _, err := svc.DataQualityLineage(ctx, domain.DataQualityRequest{FQN: "b", UpstreamDepth: 1, Filter: "[1]"}); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("DataQualityLineage() error = %v, want ErrInvalidQuery", err)
	}
	if n := w.engine.Calls("Search"); n != 0 {
		t.Errorf("Search calls = %d, want 0 for rejected filters", n)
	}
	if _, err := svc.Lineage(ctx, domain.LineageRequest{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty fqn error = %v, want ErrInvalidInput", err)
	}
}

func TestLineageService_Filter(t *testing.T) {
	w := newLineageWorld(t).edge("a", "c").edge("b", "c").build()
	svc := w.service(nil, 0)

	g, err := svc.Lineage(context.Background(), domain.LineageRequest{
		FQN:           "c",
		UpstreamDepth: 1,
		Filter:        `{"name": ["a", "c"]}`,
	})
	if err != nil {
		t.Fatalf("Lineage() error = %v", err)
	}
	assertStrings(t, "nodes", nodeFQNs(g), []string{"a"})
}

func TestLineageService_DataQualityLineage(t *testing.T) {
	// e -> a -> b -> d, c -> d; only a fails.
	w := newLineageWorld(t).
		edge("e", "a").
		edge("a", "b").
		edge("b", "d").
		edge("c", "d").
		build()
	quality := mocks.NewMockQualityStore("a")
	svc := w.service(quality, 0)

	g, err := svc.DataQualityLineage(context.Background(), domain.DataQualityRequest{FQN: "d", UpstreamDepth: 5})
	if err != nil {
		t.Fatalf("DataQualityLineage() error = %v", err)
	}
	assertStrings(t, "nodes", nodeFQNs(g), []string{"a", "b"})
	assertStrings(t, "edges", edgeKeys(g), []string{"a>b", "b>d"})
	if g.Entity.FQN() != "d" {
		t.Errorf("entity = %q, want d", g.Entity.FQN())
	}
}

func TestLineageService_DataQualityLineage_Memoized(t *testing.T) {
	// a reaches d through both b and c.
	w := newLineageWorld(t).edge("a", "b").edge("a", "c").edge("b", "d").edge("c", "d").build()
	quality := mocks.NewMockQualityStore("a")

	g, err := w.service(quality, 0).DataQualityLineage(context.Background(), domain.DataQualityRequest{FQN: "d", UpstreamDepth: 5})
	if err != nil {
		t.Fatalf("DataQualityLineage() error = %v", err)
	}
	if n := quality.Calls("a"); n != 1 {
		t.Errorf("quality checks for a = %d, want 1", n)
	}
	assertStrings(t, "edges", edgeKeys(g), []string{"a>b", "a>c", "b>d", "c>d"})
}

func TestLineageService_DataQualityLineage_NoFailures(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").build()

	g, err := w.service(mocks.NewMockQualityStore(), 0).DataQualityLineage(context.Background(), domain.DataQualityRequest{FQN: "b", UpstreamDepth: 3})
	if err != nil {
		t.Fatalf("DataQualityLineage() error = %v", err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("graph = %v nodes, %v edges, want empty", len(g.Nodes), len(g.Edges))
	}
}

func TestLineageService_DataQualityLineage_QualityErrorsIgnored(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").build()
	quality := mocks.NewMockQualityStore("a")
	quality.Err = errors.New("db down")

	g, err := w.service(quality, 0).DataQualityLineage(context.Background(), domain.DataQualityRequest{FQN: "b", UpstreamDepth: 3})
	if err != nil {
		t.Fatalf("DataQualityLineage() error = %v", err)
	}
	if len(g.Edges) != 0 {
		t.Errorf("edges = %d, want 0 when failures cannot be checked", len(g.Edges))
	}
}

func TestLineageService_DataQualityLineage_NoStore(t *testing.T) {
	w := newLineageWorld(t).edge("a", "b").build()

	_, err := w.service(nil, 0).DataQualityLineage(context.Background(), domain.DataQualityRequest{FQN: "b", UpstreamDepth: 1})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
}
