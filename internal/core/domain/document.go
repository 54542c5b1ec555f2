package domain

import (
	"sort"
	"strconv"
	"strings"
)

// SearchDocument is the flat, query-optimized representation of an entity.
// Field sets vary per entity type; the common fields are listed below.
type SearchDocument map[string]any

// Common document fields.
const (
	DocFieldID                  = "id"
	DocFieldEntityType          = "entityType"
	DocFieldFQN                 = "fullyQualifiedName"
	DocFieldFQNParts            = "fqnParts"
	DocFieldDisplayName         = "displayName"
	DocFieldOwners              = "owners"
	DocFieldDomain              = "domain"
	DocFieldFollowers           = "followers"
	DocFieldTags                = "tags"
	DocFieldDeleted             = "deleted"
	DocFieldDescriptionStatus   = "descriptionStatus"
	DocFieldSuggest             = "suggest"
	DocFieldLineage             = "lineage"
	DocFieldUpdatedAt           = "updatedAt"
	DocFieldTotalVotes          = "totalVotes"
	DocFieldVotes               = "votes"
	DocFieldName                = "name"
	DocFieldDescription         = "description"
	DescriptionStatusComplete   = "COMPLETE"
	DescriptionStatusIncomplete = "INCOMPLETE"
)

// maxTermLength skips long free-text values when flattening term keys.
const maxTermLength = 256

// Suggestion is a completion input with a static ranking weight.
type Suggestion struct {
	Input  string `json:"input"`
	Weight int    `json:"weight"`
}

func (d SearchDocument) str(key string) string {
	s, _ := d[key].(string)
	return s
}

// ID returns the document id.
func (d SearchDocument) ID() string { return d.str(DocFieldID) }

// EntityType returns the entity type the document was built from.
func (d SearchDocument) EntityType() string { return d.str(DocFieldEntityType) }

// FQN returns the fully qualified name.
func (d SearchDocument) FQN() string { return d.str(DocFieldFQN) }

// IsDeleted reports the soft-delete flag.
func (d SearchDocument) IsDeleted() bool {
	b, _ := d[DocFieldDeleted].(bool)
	return b
}

// Clone returns a deep copy in plain JSON types.
func (d SearchDocument) Clone() SearchDocument {
	if d == nil {
		return nil
	}
	v, err := Normalize(map[string]any(d))
	if err != nil {
		// documents are built from JSON values; fall back to a shallow copy
		out := make(SearchDocument, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	return SearchDocument(v.(map[string]any))
}

// Values returns every value found at a dotted path, looking through arrays.
func (d SearchDocument) Values(path string) []any {
	return collect(map[string]any(d), strings.Split(path, "."))
}

func collect(v any, path []string) []any {
	if len(path) == 0 {
		if arr, ok := v.([]any); ok {
			return arr
		}
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[path[0]]
		if !ok {
			return nil
		}
		return collect(next, path[1:])
	case SearchDocument:
		return collect(map[string]any(t), path)
	case []any:
		var out []any
		for _, item := range t {
			out = append(out, collect(item, path)...)
		}
		return out
	}
	return nil
}

// HasTerm reports whether any value at field equals value once rendered as a term.
func (d SearchDocument) HasTerm(field, value string) bool {
	for _, v := range d.Values(field) {
		if s, ok := TermValue(v); ok && s == value {
			return true
		}
	}
	return false
}

// TermKey renders a field/value pair as an exact-match key.
func TermKey(field, value string) string {
	return field + "=" + value
}

// TermValue renders a scalar JSON value for term matching.
func TermValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

// Terms flattens the document into sorted, unique term keys. Arrays are
// transparent, so a list of owners yields one "owners.id=<id>" per owner.
func (d SearchDocument) Terms() []string {
	set := make(map[string]struct{})
	flatten("", map[string]any(d), set)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func flatten(prefix string, v any, set map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if prefix == "" && k == DocFieldSuggest {
				continue
			}
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flatten(p, child, set)
		}
	case SearchDocument:
		flatten(prefix, map[string]any(t), set)
	case []any:
		for _, item := range t {
			flatten(prefix, item, set)
		}
	default:
		s, ok := TermValue(t)
		if !ok || len(s) > maxTermLength || prefix == "" {
			return
		}
		set[TermKey(prefix, s)] = struct{}{}
	}
}

// LineageEdges decodes the embedded lineage edges, if any.
func (d SearchDocument) LineageEdges() []LineageEdge {
	raw, ok := d[DocFieldLineage]
	if !ok || raw == nil {
		return nil
	}
	var edges []LineageEdge
	if err := DecodeValue(raw, &edges); err != nil {
		return nil
	}
	return edges
}

// WithoutLineage returns a shallow copy without the embedded lineage field,
// used for graph nodes.
func (d SearchDocument) WithoutLineage() SearchDocument {
	out := make(SearchDocument, len(d))
	for k, v := range d {
		if k == DocFieldLineage {
			continue
		}
		out[k] = v
	}
	return out
}
