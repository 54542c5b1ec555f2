// Package mapping binds entity types to physical search indices and aliases.
package mapping

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

//go:embed indexmapping.yaml
var defaultMappings string

// Registry is an immutable set of index mappings. It is built once at
// startup and passed explicitly to the components that need it.
type Registry struct {
	clusterAlias string
	byType       map[string]domain.IndexMapping
	byIndex      map[string]string
	types        []string
}

// Default loads the embedded mapping file.
func Default(clusterAlias string) (*Registry, error) {
	return Load(strings.NewReader(defaultMappings), clusterAlias)
}

// Load parses a YAML document keyed by entity type. When clusterAlias is
// set, every index name and alias is prefixed with "<clusterAlias>_".
func Load(r io.Reader, clusterAlias string) (*Registry, error) {
	var raw map[string]domain.IndexMapping
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty index mapping document", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("decode index mappings: %w", err)
	}

	reg := &Registry{
		clusterAlias: clusterAlias,
		byType:       make(map[string]domain.IndexMapping, len(raw)),
		byIndex:      make(map[string]string, len(raw)),
	}
	for entityType, m := range raw {
		if m.IndexName == "" {
			return nil, fmt.Errorf("%w: mapping for %s has no index name", domain.ErrInvalidInput, entityType)
		}
		if m.Alias == "" {
			m.Alias = entityType
		}
		if other, ok := reg.byIndex[m.IndexName]; ok {
			return nil, fmt.Errorf("%w: index %s mapped by both %s and %s", domain.ErrInvalidInput, m.IndexName, other, entityType)
		}
		m.EntityType = entityType
		m.Searchable = m.HasParentAlias(domain.GlobalAlias)
		reg.byType[entityType] = m
		reg.byIndex[m.IndexName] = entityType
		reg.types = append(reg.types, entityType)
	}
	sort.Strings(reg.types)

	for _, entityType := range reg.types {
		for _, child := range reg.byType[entityType].ChildAliases {
			if len(reg.resolve(child)) == 0 {
				return nil, fmt.Errorf("%w: %s has unknown child alias %s", domain.ErrInvalidInput, entityType, child)
			}
		}
	}
	return reg, nil
}

// ClusterAlias returns the configured cluster prefix.
func (r *Registry) ClusterAlias() string { return r.clusterAlias }

// EntityTypes returns every mapped entity type, sorted.
func (r *Registry) EntityTypes() []string {
	return append([]string(nil), r.types...)
}

// Get returns the mapping for entityType with cluster-prefixed names.
func (r *Registry) Get(entityType string) (domain.IndexMapping, error) {
	m, ok := r.byType[entityType]
	if !ok {
		return domain.IndexMapping{}, fmt.Errorf("%w: %s", domain.ErrMappingNotFound, entityType)
	}
	m.IndexName = r.prefixed(m.IndexName)
	m.Alias = r.prefixed(m.Alias)
	m.ParentAliases = r.prefixedAll(m.ParentAliases)
	m.ChildAliases = r.prefixedAll(m.ChildAliases)
	return m, nil
}

// IndexName returns the physical index of entityType.
func (r *Registry) IndexName(entityType string) (string, error) {
	m, ok := r.byType[entityType]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrMappingNotFound, entityType)
	}
	return r.prefixed(m.IndexName), nil
}

// EntityTypeForIndex maps a physical index back to its entity type.
func (r *Registry) EntityTypeForIndex(index string) (string, bool) {
	t, ok := r.byIndex[r.unprefixed(index)]
	return t, ok
}

// ChildIndices returns the physical indices holding documents that
// reference entityType. Unknown types have no children.
func (r *Registry) ChildIndices(entityType string) []string {
	m, ok := r.byType[entityType]
	if !ok {
		return nil
	}
	set := make(map[string]struct{})
	for _, alias := range m.ChildAliases {
		for _, idx := range r.resolve(alias) {
			set[idx] = struct{}{}
		}
	}
	return r.sortedPrefixed(set)
}

// ResolveAliases returns the physical indices behind each alias, parent
// alias, or entity type. Names may carry the cluster prefix.
func (r *Registry) ResolveAliases(aliases ...string) ([]string, error) {
	set := make(map[string]struct{})
	for _, alias := range aliases {
		found := r.resolve(r.unprefixed(alias))
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: no index for alias %s", domain.ErrMappingNotFound, alias)
		}
		for _, idx := range found {
			set[idx] = struct{}{}
		}
	}
	return r.sortedPrefixed(set), nil
}

// GlobalIndices returns every index under the global alias.
func (r *Registry) GlobalIndices() []string {
	set := make(map[string]struct{})
	for _, t := range r.types {
		if m := r.byType[t]; m.Searchable {
			set[m.IndexName] = struct{}{}
		}
	}
	return r.sortedPrefixed(set)
}

// Validate checks that every given entity type has a mapping.
func (r *Registry) Validate(entityTypes ...string) error {
	var missing []string
	for _, t := range entityTypes {
		if _, ok := r.byType[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", domain.ErrMappingNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// resolve works on unprefixed names and returns unprefixed index names.
func (r *Registry) resolve(alias string) []string {
	if m, ok := r.byType[alias]; ok {
		return []string{m.IndexName}
	}
	if _, ok := r.byIndex[alias]; ok {
		return []string{alias}
	}
	var out []string
	for _, t := range r.types {
		m := r.byType[t]
		if m.Alias == alias || m.HasParentAlias(alias) {
			out = append(out, m.IndexName)
		}
	}
	return out
}

func (r *Registry) prefixed(name string) string {
	if r.clusterAlias == "" {
		return name
	}
	return r.clusterAlias + "_" + name
}

func (r *Registry) unprefixed(name string) string {
	if r.clusterAlias == "" {
		return name
	}
	return strings.TrimPrefix(name, r.clusterAlias+"_")
}

func (r *Registry) prefixedAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = r.prefixed(n)
	}
	return out
}

func (r *Registry) sortedPrefixed(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for idx := range set {
		out = append(out, r.prefixed(idx))
	}
	sort.Strings(out)
	return out
}
