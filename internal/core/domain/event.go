package domain

import "fmt"

// EventType names an entity lifecycle event delivered to the indexer.
type EventType string

const (
	EventEntityCreated         EventType = "entityCreated"
	EventEntityUpdated         EventType = "entityUpdated"
	EventEntitySoftDeleted     EventType = "entitySoftDeleted"
	EventEntityRestored        EventType = "entityRestored"
	EventEntityDeleted         EventType = "entityDeleted"
	EventEntityDeletedByPrefix EventType = "entityDeletedByPrefix"
	EventLineageAdded          EventType = "lineageAdded"
	EventLineageDeleted        EventType = "lineageDeleted"
)

// IsLineage reports whether the event carries an edge instead of an entity.
func (t EventType) IsLineage() bool {
	return t == EventLineageAdded || t == EventLineageDeleted
}

// EntityEvent is a lifecycle event. Entity events carry the entity;
// lineage events carry the edge.
type EntityEvent struct {
	EventType  EventType    `json:"eventType"`
	EntityType string       `json:"entityType,omitempty"`
	Entity     *Entity      `json:"entity,omitempty"`
	Deleted    bool         `json:"deleted,omitempty"`
	Edge       *LineageEdge `json:"edge,omitempty"`
}

// Validate checks the event carries what its type needs and fills the
// entity type from the envelope when the entity omits it.
func (e *EntityEvent) Validate() error {
	switch e.EventType {
	case EventLineageAdded, EventLineageDeleted:
		if e.Edge == nil {
			return fmt.Errorf("%w: %s event requires an edge", ErrInvalidInput, e.EventType)
		}
		return e.Edge.Validate()
	case EventEntityCreated, EventEntityUpdated, EventEntitySoftDeleted,
		EventEntityRestored, EventEntityDeleted, EventEntityDeletedByPrefix:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, e.EventType)
	}

	if e.Entity == nil || e.Entity.ID == "" {
		return fmt.Errorf("%w: %s event requires an entity with an id", ErrInvalidInput, e.EventType)
	}
	if e.Entity.Type == "" {
		e.Entity.Type = e.EntityType
	}
	if e.Entity.Type == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidInput)
	}
	return nil
}
