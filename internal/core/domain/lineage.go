package domain

import (
	"fmt"
	"sort"
)

// EdgeRef identifies one endpoint of a lineage edge.
type EdgeRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	FQN  string `json:"fqn"`
}

// PipelineRef is the optional pipeline annotation on an edge.
type PipelineRef struct {
	ID                 string `json:"id"`
	Type               string `json:"type,omitempty"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
}

// ColumnLineage maps source columns to a destination column.
type ColumnLineage struct {
	FromColumns []string `json:"fromColumns,omitempty"`
	ToColumn    string   `json:"toColumn,omitempty"`
	Function    string   `json:"function,omitempty"`
}

// LineageDetails carries the optional annotations of an edge.
type LineageDetails struct {
	SQLQuery    string          `json:"sqlQuery,omitempty"`
	Columns     []ColumnLineage `json:"columns,omitempty"`
	Source      string          `json:"source,omitempty"`
	Description string          `json:"description,omitempty"`
}

// LineageEdge is a directed dependency between two entities.
type LineageEdge struct {
	FromEntity EdgeRef         `json:"fromEntity"`
	ToEntity   EdgeRef         `json:"toEntity"`
	Pipeline   *PipelineRef    `json:"pipeline,omitempty"`
	Details    *LineageDetails `json:"lineageDetails,omitempty"`
	DocID      string          `json:"docUniqueId,omitempty"`
}

// EdgeKey is the identity of a lineage edge.
type EdgeKey struct {
	From     string
	To       string
	Pipeline string
}

func (k EdgeKey) String() string {
	if k.Pipeline == "" {
		return k.From + "->" + k.To
	}
	return fmt.Sprintf("%s->%s via %s", k.From, k.To, k.Pipeline)
}

// Key returns the edge identity (from id, to id, pipeline id or "").
func (e LineageEdge) Key() EdgeKey {
	k := EdgeKey{From: e.FromEntity.ID, To: e.ToEntity.ID}
	if e.Pipeline != nil {
		k.Pipeline = e.Pipeline.ID
	}
	return k
}

// PipelineFQN returns the edge's pipeline FQN or "".
func (e LineageEdge) PipelineFQN() string {
	if e.Pipeline == nil {
		return ""
	}
	return e.Pipeline.FullyQualifiedName
}

// WithDocID fills the stable unique id stored alongside embedded edges.
func (e LineageEdge) WithDocID() LineageEdge {
	e.DocID = e.Key().String()
	return e
}

// Validate checks that both endpoints are identified.
func (e LineageEdge) Validate() error {
	if e.FromEntity.ID == "" || e.ToEntity.ID == "" {
		return fmt.Errorf("%w: lineage edge needs both endpoint ids", ErrInvalidInput)
	}
	if e.FromEntity.FQN == "" || e.ToEntity.FQN == "" {
		return fmt.Errorf("%w: lineage edge needs both endpoint fqns", ErrInvalidInput)
	}
	return nil
}

// Direction selects upstream or downstream edges.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
)

// LineageGraph is the result of a lineage query. Nodes are keyed by
// document id and edges by edge identity, so neither can repeat.
type LineageGraph struct {
	Entity SearchDocument            `json:"entity,omitempty"`
	Nodes  map[string]SearchDocument `json:"nodes"`
	Edges  map[EdgeKey]LineageEdge   `json:"-"`
}

// NewLineageGraph returns an empty graph.
func NewLineageGraph() *LineageGraph {
	return &LineageGraph{
		Nodes: make(map[string]SearchDocument),
		Edges: make(map[EdgeKey]LineageEdge),
	}
}

// AddNode adds a node once; it reports whether the node was new.
func (g *LineageGraph) AddNode(doc SearchDocument) bool {
	id := doc.ID()
	if id == "" {
		return false
	}
	if _, ok := g.Nodes[id]; ok {
		return false
	}
	g.Nodes[id] = doc.WithoutLineage()
	return true
}

// AddEdge adds an edge once; it reports whether the edge was new.
func (g *LineageGraph) AddEdge(e LineageEdge) bool {
	k := e.Key()
	if _, ok := g.Edges[k]; ok {
		return false
	}
	g.Edges[k] = e
	return true
}

// EdgeList returns the edges sorted by identity for stable output.
func (g *LineageGraph) EdgeList() []LineageEdge {
	out := make([]LineageEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

// NodeList returns the nodes sorted by FQN for stable output.
func (g *LineageGraph) NodeList() []SearchDocument {
	out := make([]SearchDocument, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FQN() == out[j].FQN() {
			return out[i].ID() < out[j].ID()
		}
		return out[i].FQN() < out[j].FQN()
	})
	return out
}

// LineageResponse is the serialized form of a LineageGraph.
type LineageResponse struct {
	Entity SearchDocument   `json:"entity,omitempty"`
	Nodes  []SearchDocument `json:"nodes"`
	Edges  []LineageEdge    `json:"edges"`
}

// Response converts the graph into a stable, serializable response.
func (g *LineageGraph) Response() LineageResponse {
	return LineageResponse{Entity: g.Entity, Nodes: g.NodeList(), Edges: g.EdgeList()}
}

// LineageRequest parameterizes a lineage query.
type LineageRequest struct {
	FQN             string
	EntityType      string
	UpstreamDepth   int
	DownstreamDepth int
	Filter          string
	IncludeDeleted  bool
}

// DataQualityRequest parameterizes a data-quality lineage trace.
type DataQualityRequest struct {
	FQN            string
	UpstreamDepth  int
	Filter         string
	IncludeDeleted bool
}
