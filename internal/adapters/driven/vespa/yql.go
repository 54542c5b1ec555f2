package vespa

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// sortAttributes maps document sort fields to catalog_entity attributes.
var sortAttributes = map[string]string{
	domain.DocFieldID:         "doc_id",
	domain.DocFieldName:       "name_sort",
	domain.DocFieldFQN:        "fqn_lower",
	domain.DocFieldEntityType: "entity_type",
	domain.DocFieldUpdatedAt:  "updated_at",
	domain.DocFieldTotalVotes: "total_votes",
}

// entityFields projects a search document onto the catalog_entity schema.
// The full document travels in source; the rest are query attributes.
func entityFields(index, id string, doc domain.SearchDocument) (map[string]any, error) {
	source, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s/%s: %w", index, id, err)
	}
	name, _ := doc[domain.DocFieldName].(string)
	display, _ := doc[domain.DocFieldDisplayName].(string)
	description, _ := doc[domain.DocFieldDescription].(string)

	return map[string]any{
		"index":        index,
		"doc_id":       id,
		"entity_type":  doc.EntityType(),
		"name":         name,
		"name_sort":    strings.ToLower(name),
		"display_name": display,
		"fqn":          doc.FQN(),
		"fqn_lower":    strings.ToLower(doc.FQN()),
		"description":  description,
		"deleted":      doc.IsDeleted(),
		"updated_at":   numberField(doc[domain.DocFieldUpdatedAt]),
		"total_votes":  numberField(doc[domain.DocFieldTotalVotes]),
		"terms":        doc.Terms(),
		"source":       string(source),
	}, nil
}

func numberField(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UnixMilli()
		}
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// quote renders s as a YQL string literal.
func quote(s string) string {
	return strconv.Quote(s)
}

func indexSelection(index string) string {
	return fmt.Sprintf("%s.index==%s", entityType, quote(index))
}

// buildYQL translates a search request into a YQL statement. Ordering
// falls back to relevance, then index and id.
func buildYQL(req domain.SearchRequest) (string, error) {
	var where []string

	indices := make([]string, 0, len(req.Indices))
	for _, idx := range req.Indices {
		indices = append(indices, quote(idx))
	}
	where = append(where, fmt.Sprintf("index in (%s)", strings.Join(indices, ", ")))

	if text := strings.TrimSpace(req.Text); text != "" && text != "*" {
		lower := quote(strings.ToLower(text))
		where = append(where, fmt.Sprintf(
			"(userInput(%s) or name_sort contains ({prefix:true}%s) or fqn_lower contains ({prefix:true}%s))",
			quote(text), lower, lower))
	}

	q := req.Query
	for _, t := range q.Terms {
		where = append(where, "terms contains "+quote(t.Key()))
	}
	for _, field := range q.Filter.Fields() {
		var alts []string
		for _, v := range q.Filter[field] {
			alts = append(alts, "terms contains "+quote(domain.TermKey(field, v)))
		}
		where = append(where, "("+strings.Join(alts, " or ")+")")
	}
	if q.FQNPrefix != "" {
		where = append(where, fmt.Sprintf("fqn_lower contains ({prefix:true}%s)", quote(strings.ToLower(q.FQNPrefix))))
	}
	if q.Deleted != nil {
		where = append(where, "deleted = "+strconv.FormatBool(*q.Deleted))
	}

	order, err := orderBy(req.SortField, req.SortOrder)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("select * from %s where %s order by %s", entityType, strings.Join(where, " and "), order), nil
}

func orderBy(field string, order domain.SortOrder) (string, error) {
	dir := "asc"
	if order == domain.SortDesc {
		dir = "desc"
	}
	tiebreak := "index asc, doc_id asc"
	if field == "" {
		return "[relevance] desc, " + tiebreak, nil
	}
	attr, ok := sortAttributes[field]
	if !ok {
		supported := make([]string, 0, len(sortAttributes))
		for k := range sortAttributes {
			supported = append(supported, k)
		}
		sort.Strings(supported)
		return "", fmt.Errorf("%w: cannot sort by %s (supported: %s)", domain.ErrInvalidQuery, field, strings.Join(supported, ", "))
	}
	return fmt.Sprintf("%s %s, %s", attr, dir, tiebreak), nil
}
