package domain

// ReindexStats holds counters for one reindex run.
type ReindexStats struct {
	Matched  int `json:"matched"`
	Indexed  int `json:"indexed"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Pages    int `json:"pages"`
	Requests int `json:"requests"`
}

// ReindexResult is the outcome of a reindex sweep or a full reindex of one type.
type ReindexResult struct {
	EntityType string       `json:"entity_type,omitempty"`
	MatchField string       `json:"match_field,omitempty"`
	MatchValue string       `json:"match_value,omitempty"`
	Success    bool         `json:"success"`
	Stats      ReindexStats `json:"stats"`
	Error      string       `json:"error,omitempty"`
	Duration   float64      `json:"duration_seconds"`
}
