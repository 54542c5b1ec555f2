package services

import (
	"reflect"
	"testing"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

func TestCascadeFor(t *testing.T) {
	tests := []struct {
		entityType string
		want       CascadeCategory
	}{
		{domain.EntityTypeDomain, CascadeGrouping},
		{domain.EntityTypeTag, CascadeTag},
		{domain.EntityTypeGlossaryTerm, CascadeTag},
		{domain.EntityTypeDashboard, CascadeMultiParent},
		{domain.EntityTypeTestSuite, CascadeTestGrouping},
		{domain.EntityTypeDatabaseService, CascadeService},
		{domain.EntityTypeMessagingService, CascadeService},
		{domain.EntityTypeTable, CascadeDefault},
		{domain.EntityTypeDatabaseSchema, CascadeDefault},
	}
	for _, tt := range tests {
		if got := CascadeFor(tt.entityType); got != tt.want {
			t.Errorf("CascadeFor(%q) = %q, want %q", tt.entityType, got, tt.want)
		}
	}
}

func opKinds(s domain.Script) []domain.ScriptOpKind {
	out := make([]domain.ScriptOpKind, 0, len(s.Ops))
	for _, op := range s.Ops {
		out = append(out, op.Kind)
	}
	return out
}

func TestPropagator_Plan_InheritedFields(t *testing.T) {
	p := NewPropagator(testRegistry(t))
	owner := map[string]any{"id": "u1", "type": "user"}
	dom := map[string]any{"id": "d1", "type": "domain"}

	tests := []struct {
		name   string
		change domain.ChangeDescription
		want   []domain.ScriptOpKind
	}{
		{
			name:   "owners added",
			change: domain.ChangeDescription{FieldsAdded: []domain.FieldChange{{Name: "owners", NewValue: []any{owner}}}},
			want:   []domain.ScriptOpKind{domain.OpAppendInheritedList},
		},
		{
			name:   "owners updated",
			change: domain.ChangeDescription{FieldsUpdated: []domain.FieldChange{{Name: "owners", OldValue: []any{owner}, NewValue: []any{}}}},
			want:   []domain.ScriptOpKind{domain.OpReplaceInheritedList},
		},
		{
			name:   "owners deleted",
			change: domain.ChangeDescription{FieldsDeleted: []domain.FieldChange{{Name: "owners", OldValue: []any{owner}}}},
			want:   []domain.ScriptOpKind{domain.OpRemoveInheritedItems},
		},
		{
			name:   "domain added",
			change: domain.ChangeDescription{FieldsAdded: []domain.FieldChange{{Name: "domain", NewValue: dom}}},
			want:   []domain.ScriptOpKind{domain.OpSetIfInheritable},
		},
		{
			name:   "domain updated",
			change: domain.ChangeDescription{FieldsUpdated: []domain.FieldChange{{Name: "domain", OldValue: dom, NewValue: `{"id":"d2","type":"domain"}`}}},
			want:   []domain.ScriptOpKind{domain.OpReplaceInherited},
		},
		{
			name:   "domain deleted",
			change: domain.ChangeDescription{FieldsDeleted: []domain.FieldChange{{Name: "domain", OldValue: dom}}},
			want:   []domain.ScriptOpKind{domain.OpRemoveInherited},
		},
		{
			name:   "disabled added",
			change: domain.ChangeDescription{FieldsAdded: []domain.FieldChange{{Name: "disabled", NewValue: "true"}}},
			want:   []domain.ScriptOpKind{domain.OpSet},
		},
		{
			name:   "disabled updated",
			change: domain.ChangeDescription{FieldsUpdated: []domain.FieldChange{{Name: "disabled", OldValue: true, NewValue: false}}},
			want:   []domain.ScriptOpKind{domain.OpReplaceIfEquals},
		},
		{
			name:   "disabled deleted",
			change: domain.ChangeDescription{FieldsDeleted: []domain.FieldChange{{Name: "disabled", OldValue: true}}},
			want:   []domain.ScriptOpKind{domain.OpRemove},
		},
		{
			name:   "test suites added",
			change: domain.ChangeDescription{FieldsAdded: []domain.FieldChange{{Name: "testSuites", NewValue: []any{map[string]any{"id": "ts1"}}}}},
			want:   []domain.ScriptOpKind{domain.OpAppendUnique},
		},
		{
			name:   "test suites updated",
			change: domain.ChangeDescription{FieldsUpdated: []domain.FieldChange{{Name: "testSuites", NewValue: []any{map[string]any{"id": "ts2"}}}}},
			want:   []domain.ScriptOpKind{domain.OpSet},
		},
		{
			name:   "test suites deleted",
			change: domain.ChangeDescription{FieldsDeleted: []domain.FieldChange{{Name: "testSuites", OldValue: []any{map[string]any{"id": "ts1"}}}}},
			want:   []domain.ScriptOpKind{domain.OpRemoveItems},
		},
		{
			name: "several fields in one plan",
			change: domain.ChangeDescription{
				FieldsAdded:   []domain.FieldChange{{Name: "owners", NewValue: []any{owner}}},
				FieldsDeleted: []domain.FieldChange{{Name: "domain", OldValue: dom}},
			},
			want: []domain.ScriptOpKind{domain.OpAppendInheritedList, domain.OpRemoveInherited},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := tt.change
			e := &domain.Entity{ID: "sc1", Type: domain.EntityTypeDatabaseSchema, ChangeDescription: &cd}
			plans := p.Plan(domain.EntityTypeDatabaseSchema, e)
			if len(plans) != 1 {
				t.Fatalf("plans = %d, want 1", len(plans))
			}
			if got := opKinds(plans[0].Script); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ops = %v, want %v", got, tt.want)
			}
			if want := domain.TermQuery("databaseSchema.id", "sc1"); !reflect.DeepEqual(plans[0].Query, want) {
				t.Errorf("query = %+v, want %+v", plans[0].Query, want)
			}
		})
	}
}

func TestPropagator_Plan_NoInheritableChange(t *testing.T) {
	p := NewPropagator(testRegistry(t))
	e := &domain.Entity{
		ID:   "sc1",
		Type: domain.EntityTypeDatabaseSchema,
		ChangeDescription: &domain.ChangeDescription{
			FieldsUpdated: []domain.FieldChange{{Name: "description", NewValue: "x"}},
		},
	}
	if plans := p.Plan(domain.EntityTypeDatabaseSchema, e); len(plans) != 0 {
		t.Errorf("plans = %v, want none", plans)
	}
	if plans := p.Plan(domain.EntityTypeDatabaseSchema, &domain.Entity{ID: "sc1"}); plans != nil {
		t.Errorf("plans without change description = %v, want nil", plans)
	}
}

func TestPropagator_Plan_ServiceTargetsServiceID(t *testing.T) {
	reg := testRegistry(t)
	p := NewPropagator(reg)
	e := &domain.Entity{
		ID:   "svc1",
		Type: domain.EntityTypeDatabaseService,
		ChangeDescription: &domain.ChangeDescription{
			FieldsAdded: []domain.FieldChange{{Name: "domain", NewValue: map[string]any{"id": "d1"}}},
		},
	}
	plans := p.Plan(domain.EntityTypeDatabaseService, e)
	if len(plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(plans))
	}
	if want := domain.TermQuery("service.id", "svc1"); !reflect.DeepEqual(plans[0].Query, want) {
		t.Errorf("query = %+v, want %+v", plans[0].Query, want)
	}
	if want := reg.ChildIndices(domain.EntityTypeDatabaseService); !reflect.DeepEqual(plans[0].Indices, want) {
		t.Errorf("indices = %v, want %v", plans[0].Indices, want)
	}
}

func TestPropagator_Plan_LeafTypeHasNoPlan(t *testing.T) {
	p := NewPropagator(testRegistry(t))
	e := &domain.Entity{
		ID:   "t1",
		Type: domain.EntityTypeTable,
		ChangeDescription: &domain.ChangeDescription{
			FieldsAdded: []domain.FieldChange{{Name: "owners", NewValue: []any{map[string]any{"id": "u1"}}}},
		},
	}
	if plans := p.Plan(domain.EntityTypeTable, e); len(plans) != 0 {
		t.Errorf("plans = %v, want none for a type without children", plans)
	}
}

func TestPropagator_Plan_GlossaryTags(t *testing.T) {
	reg := testRegistry(t)
	p := NewPropagator(reg)
	e := &domain.Entity{
		ID:                 "g1",
		Type:               domain.EntityTypeGlossaryTerm,
		FullyQualifiedName: "Business.Revenue",
		ChangeDescription: &domain.ChangeDescription{
			FieldsAdded:   []domain.FieldChange{{Name: "tags", NewValue: `[{"tagFQN":"PII.Sensitive"}]`}},
			FieldsDeleted: []domain.FieldChange{{Name: "tags", OldValue: []any{map[string]any{"tagFQN": "Tier.Tier1"}}}},
		},
	}

	plans := p.Plan(domain.EntityTypeGlossaryTerm, e)
	if len(plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(plans))
	}
	for _, plan := range plans {
		if want := domain.TermQuery("tags.tagFQN", "Business.Revenue"); !reflect.DeepEqual(plan.Query, want) {
			t.Errorf("%s query = %+v", plan.Name, plan.Query)
		}
		if !reflect.DeepEqual(plan.Indices, reg.GlobalIndices()) {
			t.Errorf("%s should target the global indices", plan.Name)
		}
	}

	doc := domain.SearchDocument{"tags": []any{map[string]any{"tagFQN": "Business.Revenue"}}}
	plans[0].Script.Apply(doc)
	if !doc.HasTerm("tags.labelType", string(domain.LabelTypeDerived)) || !doc.HasTerm("tags.tagFQN", "PII.Sensitive") {
		t.Errorf("tags after add = %v", doc["tags"])
	}
	if want := []domain.ScriptOpKind{domain.OpRemoveDerivedTag}; !reflect.DeepEqual(opKinds(plans[1].Script), want) {
		t.Errorf("remove plan ops = %v", opKinds(plans[1].Script))
	}
}

func TestPropagator_DeleteCascade(t *testing.T) {
	reg := testRegistry(t)
	p := NewPropagator(reg)

	t.Run("grouping deletes children before stripping the domain", func(t *testing.T) {
		plans := p.DeleteCascade(domain.EntityTypeDomain, &domain.Entity{ID: "d1"})
		if len(plans) != 2 {
			t.Fatalf("plans = %d, want 2", len(plans))
		}
		if !plans[0].IsDelete() || !reflect.DeepEqual(plans[0].Query, domain.TermQuery("domain.id", "d1")) {
			t.Errorf("first plan = %+v, want delete by domain.id", plans[0])
		}
		if plans[1].IsDelete() || plans[1].Script.Ops[0].Kind != domain.OpRemoveInherited || !plans[1].Script.Ops[0].Flag {
			t.Errorf("second plan = %+v, want forced removeInherited", plans[1])
		}
	})

	t.Run("tag removes the label everywhere", func(t *testing.T) {
		plans := p.DeleteCascade(domain.EntityTypeTag, &domain.Entity{ID: "t1", FullyQualifiedName: "PII.Sensitive"})
		if len(plans) != 1 || plans[0].Script.Ops[0].Kind != domain.OpRemoveTag {
			t.Fatalf("plans = %+v", plans)
		}
	})

	t.Run("executable test suite deletes its test cases", func(t *testing.T) {
		suite := &domain.Entity{ID: "ts1", Attributes: map[string]any{"executable": true}}
		plans := p.DeleteCascade(domain.EntityTypeTestSuite, suite)
		if len(plans) != 1 || !plans[0].IsDelete() {
			t.Fatalf("plans = %+v, want one delete", plans)
		}
		if !reflect.DeepEqual(plans[0].Query, domain.TermQuery("testSuite.id", "ts1")) {
			t.Errorf("query = %+v", plans[0].Query)
		}
	})

	t.Run("logical test suite is removed from lists", func(t *testing.T) {
		plans := p.DeleteCascade(domain.EntityTypeTestSuite, &domain.Entity{ID: "ts2"})
		if len(plans) != 1 || plans[0].Script.Ops[0].Kind != domain.OpRemoveItems {
			t.Fatalf("plans = %+v, want removeItems", plans)
		}
	})

	t.Run("service deletes by service id", func(t *testing.T) {
		plans := p.DeleteCascade(domain.EntityTypePipelineService, &domain.Entity{ID: "ps1"})
		if len(plans) != 1 || !reflect.DeepEqual(plans[0].Query, domain.TermQuery("service.id", "ps1")) {
			t.Fatalf("plans = %+v", plans)
		}
	})

	t.Run("leaf type has nothing to cascade", func(t *testing.T) {
		if plans := p.DeleteCascade(domain.EntityTypeTable, &domain.Entity{ID: "t1"}); plans != nil {
			t.Errorf("plans = %+v, want nil", plans)
		}
	})
}

func TestPropagator_SoftDeleteCascade(t *testing.T) {
	p := NewPropagator(testRegistry(t))

	plans := p.SoftDeleteCascade(domain.EntityTypeDashboard, &domain.Entity{ID: "d1"}, true)
	if len(plans) != 1 || plans[0].Script.Ops[0].Kind != domain.OpMarkParentRef || !plans[0].Script.Ops[0].Flag {
		t.Fatalf("dashboard plans = %+v", plans)
	}

	plans = p.SoftDeleteCascade(domain.EntityTypeDatabase, &domain.Entity{ID: "db1"}, false)
	if len(plans) != 1 {
		t.Fatalf("database plans = %d, want 1", len(plans))
	}
	op := plans[0].Script.Ops[0]
	if op.Kind != domain.OpSet || op.Field != domain.DocFieldDeleted || op.Value != false {
		t.Errorf("op = %+v, want set deleted=false", op)
	}
	if !reflect.DeepEqual(plans[0].Query, domain.TermQuery("database.id", "db1")) {
		t.Errorf("query = %+v", plans[0].Query)
	}
}
