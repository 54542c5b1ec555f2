package domain

import (
	"errors"
	"testing"
)

func TestLineageEdge_Key(t *testing.T) {
	e := LineageEdge{
		FromEntity: EdgeRef{ID: "a", FQN: "s.a"},
		ToEntity:   EdgeRef{ID: "b", FQN: "s.b"},
	}
	if got := e.Key().String(); got != "a->b" {
		t.Errorf("expected a->b, got %s", got)
	}

	e.Pipeline = &PipelineRef{ID: "p1", FullyQualifiedName: "airflow.etl"}
	if got := e.Key().String(); got != "a->b via p1" {
		t.Errorf("expected pipeline key, got %s", got)
	}
	if e.PipelineFQN() != "airflow.etl" {
		t.Errorf("unexpected pipeline fqn %s", e.PipelineFQN())
	}
	if e.WithDocID().DocID != "a->b via p1" {
		t.Errorf("unexpected doc id %s", e.WithDocID().DocID)
	}
}

func TestLineageEdge_Validate(t *testing.T) {
	bad := LineageEdge{FromEntity: EdgeRef{ID: "a"}, ToEntity: EdgeRef{ID: "b"}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	good := LineageEdge{FromEntity: EdgeRef{ID: "a", FQN: "s.a"}, ToEntity: EdgeRef{ID: "b", FQN: "s.b"}}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLineageGraph_Dedup(t *testing.T) {
	g := NewLineageGraph()
	node := SearchDocument{"id": "a", "fullyQualifiedName": "s.a", "lineage": []any{}}

	if !g.AddNode(node) {
		t.Fatal("expected new node")
	}
	if g.AddNode(node) {
		t.Error("node added twice")
	}
	if g.AddNode(SearchDocument{}) {
		t.Error("node without id must be ignored")
	}
	if _, ok := g.Nodes["a"]["lineage"]; ok {
		t.Error("graph nodes should not carry embedded lineage")
	}

	e := LineageEdge{FromEntity: EdgeRef{ID: "b"}, ToEntity: EdgeRef{ID: "a"}}
	if !g.AddEdge(e) || g.AddEdge(e) {
		t.Error("expected edge to be added exactly once")
	}
	g.AddNode(SearchDocument{"id": "b", "fullyQualifiedName": "s.b"})

	resp := g.Response()
	if len(resp.Nodes) != 2 || resp.Nodes[0].ID() != "a" {
		t.Errorf("expected nodes sorted by fqn, got %v", resp.Nodes)
	}
	if len(resp.Edges) != 1 {
		t.Errorf("expected 1 edge, got %d", len(resp.Edges))
	}
}
