package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Term is an exact match on a flattened document field.
type Term struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Key renders the term as a term key.
func (t Term) Key() string { return TermKey(t.Field, t.Value) }

// Filter is an opaque, validated filter expression: each flattened field
// path maps to one or more accepted scalar values. All fields must match;
// within a field any listed value matches.
type Filter map[string][]string

// ParseFilter validates a JSON filter expression. An empty expression
// yields a nil filter. Only objects of scalars or scalar arrays are accepted.
func ParseFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(expr)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: filter must be a JSON object: %v", ErrInvalidQuery, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after filter", ErrInvalidQuery)
	}
	f := make(Filter, len(raw))
	for field, v := range raw {
		if field == "" || strings.ContainsAny(field, "= ") {
			return nil, fmt.Errorf("%w: invalid filter field %q", ErrInvalidQuery, field)
		}
		values, err := filterValues(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidQuery, field, err)
		}
		f[field] = values
	}
	return f, nil
}

func filterValues(v any) ([]string, error) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, fmt.Errorf("empty value list")
		}
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := filterScalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := filterScalar(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func filterScalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported value %v", v)
}

// Fields returns the filter fields in sorted order.
func (f Filter) Fields() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Matches reports whether doc satisfies every field of the filter.
func (f Filter) Matches(doc SearchDocument) bool {
	for field, accepted := range f {
		ok := false
		for _, v := range accepted {
			if doc.HasTerm(field, v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Query selects documents. All set criteria must hold.
type Query struct {
	Terms     []Term `json:"terms,omitempty"`
	FQNPrefix string `json:"fqnPrefix,omitempty"`
	Filter    Filter `json:"filter,omitempty"`
	// Deleted restricts matches to the given soft-delete state when set.
	Deleted *bool `json:"deleted,omitempty"`
}

// TermQuery matches documents where field equals value.
func TermQuery(field, value string) Query {
	return Query{Terms: []Term{{Field: field, Value: value}}}
}

// WithDeleted returns a copy restricted to the given deleted state.
func (q Query) WithDeleted(deleted bool) Query {
	q.Deleted = &deleted
	return q
}

// IsEmpty reports whether the query would match every document.
func (q Query) IsEmpty() bool {
	return len(q.Terms) == 0 && q.FQNPrefix == "" && len(q.Filter) == 0 && q.Deleted == nil
}

// Matches evaluates the query against a document.
func (q Query) Matches(doc SearchDocument) bool {
	for _, t := range q.Terms {
		if !doc.HasTerm(t.Field, t.Value) {
			return false
		}
	}
	if q.FQNPrefix != "" && !strings.HasPrefix(strings.ToLower(doc.FQN()), strings.ToLower(q.FQNPrefix)) {
		return false
	}
	if q.Deleted != nil && doc.IsDeleted() != *q.Deleted {
		return false
	}
	return q.Filter.Matches(doc)
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Pagination bounds for search requests.
const (
	DefaultPageSize = 10
	MaxResultWindow = 10000
)

// SearchRequest is a backend-level search over physical indices.
type SearchRequest struct {
	Indices   []string  `json:"indices"`
	Text      string    `json:"text,omitempty"`
	Query     Query     `json:"query"`
	SortField string    `json:"sortField,omitempty"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
	From      int       `json:"from"`
	Size      int       `json:"size"`
}

// Validate enforces pagination bounds and sort order.
func (r SearchRequest) Validate() error {
	if r.From < 0 {
		return fmt.Errorf("%w: from must be >= 0", ErrInvalidQuery)
	}
	if r.Size < 1 || r.Size > MaxResultWindow {
		return fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidQuery, MaxResultWindow)
	}
	if r.From+r.Size > MaxResultWindow {
		return fmt.Errorf("%w: from + size must not exceed %d", ErrInvalidQuery, MaxResultWindow)
	}
	switch r.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidQuery)
	}
	return nil
}

// Hit is one search result.
type Hit struct {
	Index  string         `json:"index"`
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Source SearchDocument `json:"source"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Hits  []Hit `json:"hits"`
	Total int   `json:"total"`
}

// Documents returns the sources of every hit.
func (p *SearchPage) Documents() []SearchDocument {
	out := make([]SearchDocument, 0, len(p.Hits))
	for _, h := range p.Hits {
		out = append(out, h.Source)
	}
	return out
}

// BulkAction is the kind of a bulk operation.
type BulkAction string

const (
	BulkUpsert BulkAction = "upsert"
	BulkDelete BulkAction = "delete"
)

// BulkOp is one write in a bulk request.
type BulkOp struct {
	Action BulkAction     `json:"action"`
	Index  string         `json:"index"`
	ID     string         `json:"id"`
	Doc    SearchDocument `json:"doc,omitempty"`
}

// BulkResult reports per-item failures of a bulk request.
type BulkResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Fail records a per-item failure keyed by "<index>/<id>".
func (r *BulkResult) Fail(op BulkOp, reason string) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[op.Index+"/"+op.ID] = reason
}
