package domain

// SearchQuery is a caller-level search request. Index is an entity type or
// alias; Filter is the opaque JSON filter expression.
type SearchQuery struct {
	Query     string    `json:"query"`
	Index     string    `json:"index,omitempty"`
	Filter    string    `json:"filter,omitempty"`
	SortField string    `json:"sort_field,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
	From      int       `json:"from"`
	Size      int       `json:"size"`
	Deleted   *bool     `json:"deleted,omitempty"`
}

// SuggestQuery asks for completions of a name or FQN prefix.
type SuggestQuery struct {
	Prefix string `json:"prefix"`
	Index  string `json:"index,omitempty"`
	Size   int    `json:"size"`
}

// EntityHit identifies an entity found in the index.
type EntityHit struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	FQN        string `json:"fqn"`
	Index      string `json:"index"`
}

// Request resolves the query against physical indices. Size defaults to
// DefaultPageSize; the filter is parsed and the pagination bounds enforced.
func (q SearchQuery) Request(indices []string) (SearchRequest, error) {
	filter, err := ParseFilter(q.Filter)
	if err != nil {
		return SearchRequest{}, err
	}
	size := q.Size
	if size == 0 {
		size = DefaultPageSize
	}
	req := SearchRequest{
		Indices:   indices,
		Text:      q.Query,
		Query:     Query{Filter: filter, Deleted: q.Deleted},
		SortField: q.SortField,
		SortOrder: q.SortOrder,
		From:      q.From,
		Size:      size,
	}
	if err := req.Validate(); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}
