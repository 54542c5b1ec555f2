package services

import (
	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
	"github.com/custodia-labs/sercha-catalog/internal/mapping"
)

// PropagationPlan is one scripted update applied to every document matching
// Query in Indices. A plan with an empty script deletes the matches instead.
type PropagationPlan struct {
	Name    string
	Indices []string
	Query   domain.Query
	Script  domain.Script
}

// IsDelete reports whether the plan removes its matches.
func (p PropagationPlan) IsDelete() bool { return p.Script.IsEmpty() }

// CascadeCategory groups entity types that cascade the same way.
type CascadeCategory string

const (
	CascadeDefault      CascadeCategory = "default"
	CascadeGrouping     CascadeCategory = "grouping"
	CascadeTag          CascadeCategory = "tag"
	CascadeMultiParent  CascadeCategory = "multiParent"
	CascadeTestGrouping CascadeCategory = "testGrouping"
	CascadeService      CascadeCategory = "service"
)

const multiParentField = "dashboards"

var cascadeCategories = map[string]CascadeCategory{
	domain.EntityTypeDomain:       CascadeGrouping,
	domain.EntityTypeTag:          CascadeTag,
	domain.EntityTypeGlossaryTerm: CascadeTag,
	domain.EntityTypeDashboard:    CascadeMultiParent,
	domain.EntityTypeTestSuite:    CascadeTestGrouping,
}

// CascadeFor returns the cascade category of an entity type.
func CascadeFor(entityType string) CascadeCategory {
	if c, ok := cascadeCategories[entityType]; ok {
		return c
	}
	if domain.IsServiceType(entityType) {
		return CascadeService
	}
	return CascadeDefault
}

// Propagator turns entity changes into scripted updates of dependent
// documents. It never touches the engine itself.
type Propagator struct {
	registry *mapping.Registry
}

// NewPropagator creates a propagator over the given mappings.
func NewPropagator(registry *mapping.Registry) *Propagator {
	return &Propagator{registry: registry}
}

// Plan returns the updates needed to push inheritable field changes down to
// child documents, plus glossary tag propagation for glossary terms.
func (p *Propagator) Plan(entityType string, e *domain.Entity) []PropagationPlan {
	if e == nil || e.ChangeDescription == nil {
		return nil
	}
	var plans []PropagationPlan
	if plan, ok := p.inheritancePlan(entityType, e); ok {
		plans = append(plans, plan)
	}
	if entityType == domain.EntityTypeGlossaryTerm {
		plans = append(plans, p.glossaryTagPlans(e)...)
	}
	return plans
}

func (p *Propagator) inheritancePlan(entityType string, e *domain.Entity) (PropagationPlan, bool) {
	changes := e.ChangeDescription.InheritedChanges()
	if len(changes) == 0 {
		return PropagationPlan{}, false
	}
	indices := p.registry.ChildIndices(entityType)
	if len(indices) == 0 {
		return PropagationPlan{}, false
	}

	script := domain.NewScript("propagateInherited")
	for _, c := range changes {
		script = script.Add(inheritedOps(c)...)
	}
	if script.IsEmpty() {
		return PropagationPlan{}, false
	}
	return PropagationPlan{
		Name:    script.Name,
		Indices: indices,
		Query:   domain.TermQuery(domain.ParentMatchField(entityType), e.ID),
		Script:  script,
	}, true
}

func inheritedOps(c domain.InheritedChange) []domain.ScriptOp {
	field := string(c.Field)
	switch c.Field {
	case domain.FieldOwners:
		switch c.Kind {
		case domain.ChangeAdded:
			if refs := decodeRefs(c.NewValue); len(refs) > 0 {
				return []domain.ScriptOp{domain.AppendInheritedList(field, refs)}
			}
		case domain.ChangeUpdated:
			return []domain.ScriptOp{domain.ReplaceInheritedList(field, refIDs(decodeRefs(c.OldValue)), decodeRefs(c.NewValue))}
		case domain.ChangeDeleted:
			if ids := refIDs(decodeRefs(c.OldValue)); len(ids) > 0 {
				return []domain.ScriptOp{domain.RemoveInheritedItems(field, ids...)}
			}
		}

	case domain.FieldDomain:
		switch c.Kind {
		case domain.ChangeAdded:
			if refs := decodeRefs(c.NewValue); len(refs) > 0 {
				return []domain.ScriptOp{domain.SetIfInheritable(field, refs[0])}
			}
		case domain.ChangeUpdated:
			old, cur := decodeRefs(c.OldValue), decodeRefs(c.NewValue)
			if len(old) > 0 && len(cur) > 0 {
				return []domain.ScriptOp{domain.ReplaceInherited(field, old[0].ID, cur[0])}
			}
		case domain.ChangeDeleted:
			if old := decodeRefs(c.OldValue); len(old) > 0 {
				return []domain.ScriptOp{domain.RemoveInherited(field, old[0].ID, false)}
			}
		}

	case domain.FieldDisabled:
		switch c.Kind {
		case domain.ChangeAdded:
			return []domain.ScriptOp{domain.SetField(field, decodeScalar(c.NewValue))}
		case domain.ChangeUpdated:
			return []domain.ScriptOp{domain.ReplaceIfEquals(field, decodeScalar(c.OldValue), decodeScalar(c.NewValue))}
		case domain.ChangeDeleted:
			return []domain.ScriptOp{domain.RemoveField(field)}
		}

	case domain.FieldTestSuites:
		switch c.Kind {
		case domain.ChangeAdded:
			if refs := decodeRefs(c.NewValue); len(refs) > 0 {
				return []domain.ScriptOp{domain.AppendUnique(field, "id", refs)}
			}
		case domain.ChangeUpdated:
			return []domain.ScriptOp{domain.SetField(field, decodeRefs(c.NewValue))}
		case domain.ChangeDeleted:
			if ids := refIDs(decodeRefs(c.OldValue)); len(ids) > 0 {
				return []domain.ScriptOp{domain.RemoveItems(field, "id", ids...)}
			}
		}
	}
	return nil
}

// glossaryTagPlans mirrors tag changes on a glossary term onto every
// document tagged with the term.
func (p *Propagator) glossaryTagPlans(e *domain.Entity) []PropagationPlan {
	if e.FullyQualifiedName == "" {
		return nil
	}
	cd := e.ChangeDescription
	query := domain.TermQuery("tags.tagFQN", e.FullyQualifiedName)
	indices := p.registry.GlobalIndices()

	var plans []PropagationPlan
	if added, ok := cd.FieldChange(domain.ChangeAdded, domain.DocFieldTags); ok {
		if tags := decodeTags(added.NewValue); len(tags) > 0 {
			plans = append(plans, PropagationPlan{
				Name:    "addDerivedTags",
				Indices: indices,
				Query:   query,
				Script:  domain.NewScript("addDerivedTags", domain.AddDerivedTags(tags)),
			})
		}
	}
	if deleted, ok := cd.FieldChange(domain.ChangeDeleted, domain.DocFieldTags); ok {
		tags := decodeTags(deleted.OldValue)
		fqns := make([]string, 0, len(tags))
		for _, t := range tags {
			fqns = append(fqns, t.TagFQN)
		}
		if len(fqns) > 0 {
			plans = append(plans, PropagationPlan{
				Name:    "removeDerivedTags",
				Indices: indices,
				Query:   query,
				Script:  domain.NewScript("removeDerivedTags", domain.RemoveDerivedTags(fqns...)),
			})
		}
	}
	return plans
}

// DeleteCascade returns the plans run after an entity was hard deleted.
func (p *Propagator) DeleteCascade(entityType string, e *domain.Entity) []PropagationPlan {
	children := p.registry.ChildIndices(entityType)
	byParent := domain.TermQuery(domain.ParentMatchField(entityType), e.ID)

	switch CascadeFor(entityType) {
	case CascadeGrouping:
		// Children go first: the global pass strips the reference they are
		// matched by.
		return nonEmpty(
			deletePlan("deleteChildren", children, byParent),
			PropagationPlan{
				Name:    "removeDomain",
				Indices: p.registry.GlobalIndices(),
				Query:   domain.TermQuery("domain.id", e.ID),
				Script:  domain.NewScript("removeDomain", domain.RemoveInherited(domain.DocFieldDomain, e.ID, true)),
			},
		)

	case CascadeTag:
		if e.FullyQualifiedName == "" {
			return nil
		}
		return nonEmpty(PropagationPlan{
			Name:    "removeTag",
			Indices: p.registry.GlobalIndices(),
			Query:   domain.TermQuery("tags.tagFQN", e.FullyQualifiedName),
			Script:  domain.NewScript("removeTag", domain.RemoveTag(e.FullyQualifiedName)),
		})

	case CascadeMultiParent:
		return nonEmpty(PropagationPlan{
			Name:    "detachParent",
			Indices: children,
			Query:   domain.TermQuery(multiParentField+".id", e.ID),
			Script:  domain.NewScript("detachParent", domain.DetachParentRef(multiParentField, e.ID)),
		})

	case CascadeTestGrouping:
		if isExecutableSuite(e) {
			return nonEmpty(deletePlan("deleteTestCases", children, byParent))
		}
		return nonEmpty(PropagationPlan{
			Name:    "removeTestSuite",
			Indices: children,
			Query:   domain.TermQuery("testSuites.id", e.ID),
			Script:  domain.NewScript("removeTestSuite", domain.RemoveItems("testSuites", "id", e.ID)),
		})
	}
	return nonEmpty(deletePlan("deleteChildren", children, byParent))
}

// SoftDeleteCascade returns the plans run after an entity was soft deleted
// or restored.
func (p *Propagator) SoftDeleteCascade(entityType string, e *domain.Entity, deleted bool) []PropagationPlan {
	children := p.registry.ChildIndices(entityType)
	if CascadeFor(entityType) == CascadeMultiParent {
		return nonEmpty(PropagationPlan{
			Name:    "markParent",
			Indices: children,
			Query:   domain.TermQuery(multiParentField+".id", e.ID),
			Script:  domain.NewScript("markParent", domain.MarkParentRef(multiParentField, e.ID, deleted)),
		})
	}
	return nonEmpty(PropagationPlan{
		Name:    "setDeleted",
		Indices: children,
		Query:   domain.TermQuery(domain.ParentMatchField(entityType), e.ID),
		Script:  domain.NewScript("setDeleted", domain.SetField(domain.DocFieldDeleted, deleted)),
	})
}

func deletePlan(name string, indices []string, q domain.Query) PropagationPlan {
	return PropagationPlan{Name: name, Indices: indices, Query: q}
}

// nonEmpty drops plans without target indices.
func nonEmpty(plans ...PropagationPlan) []PropagationPlan {
	out := plans[:0]
	for _, p := range plans {
		if len(p.Indices) > 0 {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// isExecutableSuite reports whether a test suite owns its test cases, as
// opposed to a logical suite that only groups them.
func isExecutableSuite(e *domain.Entity) bool {
	for _, attr := range []string{"executable", "basic"} {
		var v bool
		if ok, err := e.Attr(attr, &v); err == nil && ok && v {
			return true
		}
	}
	return false
}

// decodeRefs reads a change value holding one reference or a list of them.
func decodeRefs(v any) []domain.EntityReference {
	if v == nil {
		return nil
	}
	var list []domain.EntityReference
	if err := domain.DecodeValue(v, &list); err == nil {
		return list
	}
	var one domain.EntityReference
	if err := domain.DecodeValue(v, &one); err == nil && one.ID != "" {
		return []domain.EntityReference{one}
	}
	return nil
}

func decodeTags(v any) []domain.TagLabel {
	if v == nil {
		return nil
	}
	var tags []domain.TagLabel
	if err := domain.DecodeValue(v, &tags); err != nil {
		return nil
	}
	return tags
}

// decodeScalar unwraps values that change descriptions carry as JSON text,
// such as "true".
func decodeScalar(v any) any {
	if s, ok := v.(string); ok {
		var out any
		if err := domain.DecodeValue(s, &out); err == nil {
			return out
		}
	}
	return v
}

func refIDs(refs []domain.EntityReference) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}
