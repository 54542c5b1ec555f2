package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RelationshipStore = (*RelationshipStore)(nil)

// RelationUpstream marks lineage rows in entity_relationships.
const RelationUpstream = "upstream"

// RelationshipStore resolves lineage edges from entity_relationships.
// Endpoint FQNs are joined from the entities table.
type RelationshipStore struct {
	db *DB
}

// NewRelationshipStore creates a new RelationshipStore
func NewRelationshipStore(db *DB) *RelationshipStore {
	return &RelationshipStore{db: db}
}

const edgeSelect = `
	SELECT r.from_id, r.from_entity, COALESCE(f.fqn, ''),
	       r.to_id, r.to_entity, COALESCE(t.fqn, ''),
	       r.json
	FROM entity_relationships r
	LEFT JOIN entities f ON f.entity_type = r.from_entity AND f.id = r.from_id
	LEFT JOIN entities t ON t.entity_type = r.to_entity AND t.id = r.to_id
`

// edgeJSON is the stored annotation of an edge.
type edgeJSON struct {
	Pipeline *domain.PipelineRef `json:"pipeline,omitempty"`
	domain.LineageDetails
}

// FindEdges returns the lineage edges ending at the entity (upstream) or
// starting from it (downstream).
func (s *RelationshipStore) FindEdges(ctx context.Context, id, entityType string, direction domain.Direction) ([]domain.LineageEdge, error) {
	var where string
	switch direction {
	case domain.DirectionUpstream:
		where = `WHERE r.to_id = $1 AND r.to_entity = $2 AND r.relation = $3 ORDER BY r.from_id`
	case domain.DirectionDownstream:
		where = `WHERE r.from_id = $1 AND r.from_entity = $2 AND r.relation = $3 ORDER BY r.to_id`
	default:
		return nil, fmt.Errorf("%w: direction %q", domain.ErrInvalidInput, direction)
	}

	rows, err := s.db.QueryContext(ctx, edgeSelect+where, id, entityType, RelationUpstream)
	if err != nil {
		return nil, fmt.Errorf("query %s edges: %w", direction, err)
	}
	defer rows.Close()

	var edges []domain.LineageEdge
	for rows.Next() {
		var e domain.LineageEdge
		var raw []byte
		err := rows.Scan(
			&e.FromEntity.ID, &e.FromEntity.Type, &e.FromEntity.FQN,
			&e.ToEntity.ID, &e.ToEntity.Type, &e.ToEntity.FQN,
			&raw,
		)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if len(raw) > 0 {
			var annotation edgeJSON
			if err := json.Unmarshal(raw, &annotation); err != nil {
				return nil, fmt.Errorf("decode edge %s->%s: %w", e.FromEntity.ID, e.ToEntity.ID, err)
			}
			e.Pipeline = annotation.Pipeline
			if d := annotation.LineageDetails; d.SQLQuery != "" || len(d.Columns) > 0 || d.Source != "" || d.Description != "" {
				e.Details = &d
			}
		}
		edges = append(edges, e.WithDocID())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}
