package builder

import (
	"strings"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// Variant builds the type-specific part of a search document.
type Variant interface {
	// Suggest returns the completion inputs of the entity.
	Suggest(e *domain.Entity) []domain.Suggestion

	// Enrich adds type-specific fields to a document that already carries
	// the common attributes.
	Enrich(e *domain.Entity, doc domain.SearchDocument) error

	// ExcludedFields lists non-indexable fields removed after building.
	// Dotted paths look through nested objects and arrays.
	ExcludedFields() []string

	// Raw reports whether the document is the entity as-is, without the
	// common attributes. Report data uses this.
	Raw() bool

	// HasLineage reports whether lineage edges are embedded in the document.
	HasLineage() bool
}

// nestedField describes a tree of named children (columns, schema fields,
// features) flattened into a name list.
type nestedField struct {
	// path is the dotted location of the child list in the entity map.
	path string
	// names receives the flattened child names.
	names string
	// status receives the description status across children (optional).
	status string
	// suggest receives a suggestion per child (optional).
	suggest string
}

// variant is the table-driven Variant used for every built-in entity type.
type variant struct {
	nameWeight        int
	fqnWeight         int
	displayNameWeight int
	synonyms          bool

	// refs are reference fields (single or list) whose display names are
	// backfilled from the referenced name.
	refs   []string
	nested []nestedField
	tier   bool

	lineage  bool
	raw      bool
	excluded []string

	enrich func(e *domain.Entity, doc domain.SearchDocument) error
}

var _ Variant = (*variant)(nil)

func (v *variant) Suggest(e *domain.Entity) []domain.Suggestion {
	var out []domain.Suggestion
	add := func(input string, weight int) {
		if input == "" || weight == 0 {
			return
		}
		out = append(out, domain.Suggestion{Input: input, Weight: weight})
	}
	add(e.Name, v.nameWeight)
	add(e.FullyQualifiedName, v.fqnWeight)
	add(e.DisplayName, v.displayNameWeight)
	if v.synonyms {
		var synonyms []string
		if ok, _ := e.Attr("synonyms", &synonyms); ok {
			for _, s := range synonyms {
				add(s, 5)
			}
		}
	}
	return out
}

func (v *variant) Enrich(e *domain.Entity, doc domain.SearchDocument) error {
	for _, field := range v.refs {
		backfillRefs(doc[field])
	}

	var nestedTags []any
	for _, n := range v.nested {
		nestedTags = append(nestedTags, flattenNested(doc, n)...)
	}

	if v.tier || len(nestedTags) > 0 {
		splitTags(doc, nestedTags, v.tier)
	}

	if v.enrich != nil {
		return v.enrich(e, doc)
	}
	return nil
}

func (v *variant) ExcludedFields() []string { return v.excluded }
func (v *variant) Raw() bool                { return v.raw }
func (v *variant) HasLineage() bool         { return v.lineage }

// backfillRefs fills a missing displayName from name on a reference or a
// list of references.
func backfillRefs(v any) {
	switch t := v.(type) {
	case map[string]any:
		if s, _ := t["displayName"].(string); s == "" {
			if name, ok := t["name"].(string); ok && name != "" {
				t["displayName"] = name
			}
		}
	case []any:
		for _, item := range t {
			backfillRefs(item)
		}
	}
}

// flattenNested walks the child tree at n.path and records the flattened
// names. It returns every tag found on the children.
func flattenNested(doc domain.SearchDocument, n nestedField) []any {
	var children []any
	for _, v := range doc.Values(n.path) {
		if m, ok := v.(map[string]any); ok {
			children = append(children, m)
		}
	}
	if len(children) == 0 {
		return nil
	}

	var names []any
	var suggest []any
	var tags []any
	complete := true
	var walk func(items []any, parent string)
	walk = func(items []any, parent string) {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				continue
			}
			full := name
			if parent != "" {
				full = domain.BuildFQN(parent, name)
			}
			names = append(names, full)
			suggest = append(suggest, map[string]any{"input": full, "weight": float64(5)})
			if d, _ := m["description"].(string); strings.TrimSpace(d) == "" {
				complete = false
			}
			if t, ok := m["tags"].([]any); ok {
				tags = append(tags, t...)
			}
			if kids, ok := m["children"].([]any); ok {
				walk(kids, full)
			}
		}
	}
	walk(children, "")

	doc[n.names] = names
	if n.status != "" {
		doc[n.status] = descriptionStatus(complete)
	}
	if n.suggest != "" {
		doc[n.suggest] = suggest
	}
	return tags
}

// splitTags merges child tags into the document tag list, deduplicated by
// tagFQN, and moves the tier tag into its own field when withTier is set.
func splitTags(doc domain.SearchDocument, extra []any, withTier bool) {
	all := append(asList(doc[domain.DocFieldTags]), extra...)
	seen := make(map[string]struct{}, len(all))
	tags := make([]any, 0, len(all))
	for _, t := range all {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		fqn, _ := m["tagFQN"].(string)
		if fqn == "" {
			continue
		}
		if _, dup := seen[fqn]; dup {
			continue
		}
		seen[fqn] = struct{}{}
		if withTier && strings.HasPrefix(fqn, tierPrefix) {
			if _, ok := doc[fieldTier]; !ok {
				doc[fieldTier] = m
			}
			continue
		}
		tags = append(tags, m)
	}
	doc[domain.DocFieldTags] = tags
}

func descriptionStatus(complete bool) string {
	if complete {
		return domain.DescriptionStatusComplete
	}
	return domain.DescriptionStatusIncomplete
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	}
	return []any{v}
}
