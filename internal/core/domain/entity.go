package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// EntityReference is a lightweight pointer to another entity.
// Inherited is true when the reference was propagated from a parent.
type EntityReference struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Name               string `json:"name,omitempty"`
	DisplayName        string `json:"displayName,omitempty"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	Description        string `json:"description,omitempty"`
	Deleted            bool   `json:"deleted,omitempty"`
	Inherited          bool   `json:"inherited,omitempty"`
}

// TagSource identifies where a tag label comes from.
type TagSource string

const (
	TagSourceClassification TagSource = "Classification"
	TagSourceGlossary       TagSource = "Glossary"
)

// LabelType describes how a tag label was applied.
type LabelType string

const (
	LabelTypeManual     LabelType = "Manual"
	LabelTypePropagated LabelType = "Propagated"
	LabelTypeAutomated  LabelType = "Automated"
	// LabelTypeDerived marks tags added because a glossary term carries them.
	LabelTypeDerived LabelType = "Derived"
)

// TagLabel is a tag or glossary term applied to an entity.
type TagLabel struct {
	TagFQN      string    `json:"tagFQN"`
	Name        string    `json:"name,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Description string    `json:"description,omitempty"`
	Source      TagSource `json:"source,omitempty"`
	LabelType   LabelType `json:"labelType,omitempty"`
	State       string    `json:"state,omitempty"`
}

// Votes holds up/down vote counts.
type Votes struct {
	UpVotes   int `json:"upVotes"`
	DownVotes int `json:"downVotes"`
}

// FieldChange is one changed field inside a ChangeDescription.
// OldValue and NewValue are JSON values, sometimes encoded as JSON strings.
type FieldChange struct {
	Name     string `json:"name"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// ChangeDescription describes what changed between two entity versions.
type ChangeDescription struct {
	PreviousVersion float64       `json:"previousVersion"`
	FieldsAdded     []FieldChange `json:"fieldsAdded,omitempty"`
	FieldsUpdated   []FieldChange `json:"fieldsUpdated,omitempty"`
	FieldsDeleted   []FieldChange `json:"fieldsDeleted,omitempty"`
}

// IsContiguous reports whether the change moved exactly one version from
// previousVersion to current, meaning no intervening write was missed.
func (c *ChangeDescription) IsContiguous(current float64) bool {
	if c == nil {
		return false
	}
	return math.Abs(current-1-c.PreviousVersion) < 1e-9
}

// ChangedFields returns the names of every added, updated, or deleted field.
func (c *ChangeDescription) ChangedFields() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, group := range [][]FieldChange{c.FieldsAdded, c.FieldsUpdated, c.FieldsDeleted} {
		for _, f := range group {
			out = append(out, f.Name)
		}
	}
	return out
}

// Entity is the projected state of a catalog entity as delivered by the
// authoritative store. Type-specific fields live in Attributes.
type Entity struct {
	ID                 string             `json:"id"`
	Type               string             `json:"entityType,omitempty"`
	Name               string             `json:"name"`
	DisplayName        string             `json:"displayName,omitempty"`
	FullyQualifiedName string             `json:"fullyQualifiedName,omitempty"`
	Description        string             `json:"description,omitempty"`
	Version            float64            `json:"version,omitempty"`
	UpdatedAt          int64              `json:"updatedAt,omitempty"`
	UpdatedBy          string             `json:"updatedBy,omitempty"`
	Deleted            bool               `json:"deleted,omitempty"`
	Owners             []EntityReference  `json:"owners,omitempty"`
	Domain             *EntityReference   `json:"domain,omitempty"`
	Followers          []EntityReference  `json:"followers,omitempty"`
	Tags               []TagLabel         `json:"tags,omitempty"`
	Votes              *Votes             `json:"votes,omitempty"`
	Service            *EntityReference   `json:"service,omitempty"`
	ChangeDescription  *ChangeDescription `json:"changeDescription,omitempty"`

	Attributes map[string]any `json:"-"`
}

var entityFields = []string{
	"id", "entityType", "name", "displayName", "fullyQualifiedName", "description",
	"version", "updatedAt", "updatedBy", "deleted", "owners", "domain", "followers",
	"tags", "votes", "service", "changeDescription",
}

type plainEntity Entity

// UnmarshalJSON decodes the typed fields and keeps every other key in Attributes.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var p plainEntity
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var rest map[string]any
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	for _, k := range entityFields {
		delete(rest, k)
	}
	if len(rest) > 0 {
		p.Attributes = rest
	}
	*e = Entity(p)
	return nil
}

// MarshalJSON writes the typed fields and Attributes as a single object.
func (e Entity) MarshalJSON() ([]byte, error) {
	m, err := e.Map()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Map returns a JSON-normalized copy of the entity as an untyped map.
// Typed fields win over attributes with the same key.
func (e Entity) Map() (map[string]any, error) {
	out := make(map[string]any, len(e.Attributes)+len(entityFields))
	if len(e.Attributes) > 0 {
		attrs, err := Normalize(e.Attributes)
		if err != nil {
			return nil, fmt.Errorf("normalize attributes: %w", err)
		}
		for k, v := range attrs.(map[string]any) {
			out[k] = v
		}
	}
	raw, err := json.Marshal(plainEntity(e))
	if err != nil {
		return nil, err
	}
	var typed map[string]any
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		out[k] = v
	}
	return out, nil
}

// Ref returns a reference pointing at this entity.
func (e *Entity) Ref() EntityReference {
	return EntityReference{
		ID:                 e.ID,
		Type:               e.Type,
		Name:               e.Name,
		DisplayName:        e.DisplayName,
		FullyQualifiedName: e.FullyQualifiedName,
		Deleted:            e.Deleted,
	}
}

// Attr decodes a type-specific attribute into out. Missing attributes leave
// out untouched and return false.
func (e *Entity) Attr(name string, out any) (bool, error) {
	v, ok := e.Attributes[name]
	if !ok || v == nil {
		return false, nil
	}
	if err := DecodeValue(v, out); err != nil {
		return false, fmt.Errorf("decode attribute %s: %w", name, err)
	}
	return true, nil
}

// Validate checks the fields every indexable entity must carry.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidInput)
	}
	if e.Name == "" && e.FullyQualifiedName == "" {
		return fmt.Errorf("%w: entity %s has no name", ErrInvalidInput, e.ID)
	}
	return nil
}

// DecodeValue converts a JSON value into out. Values that arrive as JSON
// encoded strings (as change descriptions often carry them) are decoded first.
func DecodeValue(v any, out any) error {
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), out); err == nil {
			return nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Normalize deep-copies v into plain JSON types (map[string]any, []any,
// float64, string, bool, nil).
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
