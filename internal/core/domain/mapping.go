package domain

// IndexMapping binds an entity type to its physical index and aliases.
type IndexMapping struct {
	EntityType    string   `json:"entityType" yaml:"-"`
	IndexName     string   `json:"indexName" yaml:"indexName"`
	Alias         string   `json:"alias" yaml:"alias"`
	ParentAliases []string `json:"parentAliases" yaml:"parentAliases"`
	ChildAliases  []string `json:"childAliases" yaml:"childAliases"`
	// Searchable is false for indices kept out of the global alias.
	Searchable bool `json:"searchable" yaml:"-"`
}

// HasParentAlias reports whether the mapping is reachable through alias.
func (m IndexMapping) HasParentAlias(alias string) bool {
	for _, a := range m.ParentAliases {
		if a == alias {
			return true
		}
	}
	return false
}

// IndexStatus reports the state of one physical index.
type IndexStatus struct {
	EntityType string `json:"entity_type"`
	IndexName  string `json:"index_name"`
	Exists     bool   `json:"exists"`
}
