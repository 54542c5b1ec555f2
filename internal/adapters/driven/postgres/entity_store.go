package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore reads projected entities from the entities table.
type EntityStore struct {
	db *DB
}

// NewEntityStore creates a new EntityStore
func NewEntityStore(db *DB) *EntityStore {
	return &EntityStore{db: db}
}

// GetCurrentProjection returns the stored JSON of an entity, restricted to
// fields when fields is non-nil. Soft-deleted entities are returned as well.
func (s *EntityStore) GetCurrentProjection(ctx context.Context, entityType, id string, fields []string) (*domain.Entity, error) {
	query := `SELECT json FROM entities WHERE entity_type = $1 AND id = $2`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, entityType, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", entityType, id, err)
	}
	return decodeEntity(raw, entityType, fields)
}

// ListEntities pages through the entities of a type in id order. One extra
// row is read to tell whether another page follows.
func (s *EntityStore) ListEntities(ctx context.Context, entityType, after string, limit int) ([]*domain.Entity, string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT json FROM entities
		WHERE entity_type = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, entityType, after, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("list %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, "", fmt.Errorf("scan %s: %w", entityType, err)
		}
		e, err := decodeEntity(raw, entityType, nil)
		if err != nil {
			return nil, "", err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate %s: %w", entityType, err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

// decodeEntity unmarshals the stored JSON. id and entityType survive any
// projection so the result stays addressable.
func decodeEntity(raw []byte, entityType string, fields []string) (*domain.Entity, error) {
	if fields != nil {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entityType, err)
		}
		keep := map[string]bool{"id": true, "entityType": true}
		for _, f := range fields {
			keep[f] = true
		}
		for k := range m {
			if !keep[k] {
				delete(m, k)
			}
		}
		projected, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", entityType, err)
		}
		raw = projected
	}

	var e domain.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entityType, err)
	}
	if e.Type == "" {
		e.Type = entityType
	}
	return &e, nil
}
