// Package builder turns projected catalog entities into search documents.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

const (
	tierPrefix = "Tier."
	fieldTier  = "tier"
)

// commonExcluded is removed from every document.
var commonExcluded = []string{
	"changeDescription",
	"incrementalChangeDescription",
	"connection",
	"href",
	"lineage.pipeline.changeDescription",
}

// Config holds dependencies for the Builder.
type Config struct {
	// Relationships loads lineage edges for graph-bearing types (optional).
	// Without it no lineage is embedded.
	Relationships driven.RelationshipStore
	// Variants replaces the built-in variant table when set.
	Variants map[string]Variant
	Logger   *slog.Logger
}

// Builder builds search documents from entities. It is safe for concurrent
// use; the variant table is fixed at construction.
type Builder struct {
	variants      map[string]Variant
	relationships driven.RelationshipStore
	logger        *slog.Logger
}

// New creates a Builder.
func New(cfg Config) *Builder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	src := cfg.Variants
	if src == nil {
		src = DefaultVariants()
	}
	variants := make(map[string]Variant, len(src))
	for t, v := range src {
		variants[t] = v
	}
	return &Builder{
		variants:      variants,
		relationships: cfg.Relationships,
		logger:        cfg.Logger,
	}
}

// Types returns every entity type with a variant, sorted.
func (b *Builder) Types() []string {
	out := make([]string, 0, len(b.variants))
	for t := range b.variants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether entityType has a variant.
func (b *Builder) Supports(entityType string) bool {
	_, ok := b.variants[entityType]
	return ok
}

// Build converts e into the search document of entityType.
func (b *Builder) Build(ctx context.Context, entityType string, e *domain.Entity) (domain.SearchDocument, error) {
	v, ok := b.variants[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntityType, entityType)
	}
	if e == nil || e.ID == "" {
		return nil, fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	}

	m, err := e.Map()
	if err != nil {
		return nil, fmt.Errorf("map entity %s: %w", e.ID, err)
	}
	doc := domain.SearchDocument(m)
	doc[domain.DocFieldEntityType] = entityType

	if !v.Raw() {
		addCommon(doc, e, v.Suggest(e))
	}
	if err := v.Enrich(e, doc); err != nil {
		return nil, fmt.Errorf("build %s %s: %w", entityType, e.ID, err)
	}

	if v.HasLineage() && b.relationships != nil {
		edges, err := b.lineage(ctx, entityType, e.ID)
		if err != nil {
			return nil, err
		}
		doc[domain.DocFieldLineage] = edges
	}

	for _, path := range commonExcluded {
		removePath(map[string]any(doc), strings.Split(path, "."))
	}
	for _, path := range v.ExcludedFields() {
		removePath(map[string]any(doc), strings.Split(path, "."))
	}

	out, err := domain.Normalize(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("normalize document %s: %w", e.ID, err)
	}
	return domain.SearchDocument(out.(map[string]any)), nil
}

// addCommon writes the attributes shared by every non-raw document.
func addCommon(doc domain.SearchDocument, e *domain.Entity, suggest []domain.Suggestion) {
	displayName := e.DisplayName
	if displayName == "" {
		displayName = e.Name
	}
	doc[domain.DocFieldDisplayName] = displayName

	owners := make([]domain.EntityReference, len(e.Owners))
	for i, o := range e.Owners {
		owners[i] = withDisplayName(o)
	}
	doc[domain.DocFieldOwners] = toJSON(owners)

	if e.Domain != nil {
		doc[domain.DocFieldDomain] = toJSON(withDisplayName(*e.Domain))
	} else {
		delete(doc, domain.DocFieldDomain)
	}
	if e.Service != nil {
		doc["service"] = toJSON(withDisplayName(*e.Service))
	}

	followers := make([]any, 0, len(e.Followers))
	for _, f := range e.Followers {
		followers = append(followers, f.ID)
	}
	doc[domain.DocFieldFollowers] = followers

	votes := 0
	if e.Votes != nil {
		votes = e.Votes.UpVotes - e.Votes.DownVotes
	}
	doc[domain.DocFieldTotalVotes] = float64(votes)

	doc[domain.DocFieldDescriptionStatus] = descriptionStatus(strings.TrimSpace(e.Description) != "")
	doc[domain.DocFieldDeleted] = e.Deleted
	if _, ok := doc[domain.DocFieldTags]; !ok {
		doc[domain.DocFieldTags] = []any{}
	}

	doc[domain.DocFieldSuggest] = toJSON(suggestOrEmpty(suggest))
	doc[domain.DocFieldFQNParts] = fqnParts(e.FullyQualifiedName, suggest)
}

// fqnParts is the sorted set of the FQN, every FQN ancestor, and every
// suggestion input.
func fqnParts(fqn string, suggest []domain.Suggestion) []any {
	set := make(map[string]struct{})
	if fqn != "" {
		set[fqn] = struct{}{}
		for _, a := range domain.FQNAncestors(fqn) {
			set[a] = struct{}{}
		}
	}
	for _, s := range suggest {
		set[s.Input] = struct{}{}
	}
	parts := make([]string, 0, len(set))
	for p := range set {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

// lineage loads the upstream and downstream edges of an entity and returns
// them deduplicated and ordered by edge identity.
func (b *Builder) lineage(ctx context.Context, entityType, id string) ([]any, error) {
	directions := []domain.Direction{domain.DirectionUpstream, domain.DirectionDownstream}
	found := make([][]domain.LineageEdge, len(directions))

	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range directions {
		g.Go(func() error {
			edges, err := b.relationships.FindEdges(gctx, id, entityType, dir)
			if err != nil {
				return fmt.Errorf("find %s edges of %s %s: %w", dir, entityType, id, err)
			}
			found[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.Warn("lineage lookup failed", "entity_id", id, "entity_type", entityType, "error", err)
		return nil, err
	}

	byKey := make(map[string]domain.LineageEdge)
	for _, edges := range found {
		for _, e := range edges {
			e = e.WithDocID()
			byKey[e.DocID] = e
		}
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, toJSON(byKey[k]))
	}
	return out, nil
}

// removePath deletes a dotted path, looking through arrays of objects.
func removePath(v any, path []string) {
	switch t := v.(type) {
	case map[string]any:
		if len(path) == 1 {
			delete(t, path[0])
			return
		}
		if next, ok := t[path[0]]; ok {
			removePath(next, path[1:])
		}
	case []any:
		for _, item := range t {
			removePath(item, path)
		}
	}
}

func withDisplayName(ref domain.EntityReference) domain.EntityReference {
	if ref.DisplayName == "" {
		ref.DisplayName = ref.Name
	}
	return ref
}

func suggestOrEmpty(s []domain.Suggestion) []domain.Suggestion {
	if s == nil {
		return []domain.Suggestion{}
	}
	return s
}

// toJSON converts typed values into plain JSON values. The inputs are
// plain structs, so normalization cannot fail.
func toJSON(v any) any {
	out, err := domain.Normalize(v)
	if err != nil {
		return nil
	}
	return out
}
