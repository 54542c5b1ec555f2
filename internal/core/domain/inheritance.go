package domain

// InheritableField is a field whose value flows from a parent entity to the
// documents of its children.
type InheritableField string

const (
	FieldOwners     InheritableField = "owners"
	FieldDomain     InheritableField = "domain"
	FieldDisabled   InheritableField = "disabled"
	FieldTestSuites InheritableField = "testSuites"
)

// InheritableFields is the closed set of inheritable fields.
var InheritableFields = []InheritableField{FieldOwners, FieldDomain, FieldDisabled, FieldTestSuites}

// AsInheritable returns the inheritable field with the given name.
func AsInheritable(name string) (InheritableField, bool) {
	for _, f := range InheritableFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// ScriptableFields lists the fields a contiguous update may patch in place
// instead of rebuilding the whole document.
var ScriptableFields = map[string]bool{
	"followers":      true,
	"usageSummary":   true,
	"votes":          true,
	"pipelineStatus": true,
	"testSuites":     true,
	"queryUsedIn":    true,
}

// ChangeKind is the section of a change description a field change came from.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// InheritedChange is a change to one inheritable field.
type InheritedChange struct {
	Field    InheritableField
	Kind     ChangeKind
	OldValue any
	NewValue any
}

// InheritedChanges extracts every change to an inheritable field, in
// added, updated, deleted order.
func (c *ChangeDescription) InheritedChanges() []InheritedChange {
	if c == nil {
		return nil
	}
	var out []InheritedChange
	groups := []struct {
		kind   ChangeKind
		fields []FieldChange
	}{
		{ChangeAdded, c.FieldsAdded},
		{ChangeUpdated, c.FieldsUpdated},
		{ChangeDeleted, c.FieldsDeleted},
	}
	for _, g := range groups {
		for _, fc := range g.fields {
			f, ok := AsInheritable(fc.Name)
			if !ok {
				continue
			}
			out = append(out, InheritedChange{Field: f, Kind: g.kind, OldValue: fc.OldValue, NewValue: fc.NewValue})
		}
	}
	return out
}

// FieldChange returns the first change for name in the given section.
func (c *ChangeDescription) FieldChange(kind ChangeKind, name string) (FieldChange, bool) {
	if c == nil {
		return FieldChange{}, false
	}
	var fields []FieldChange
	switch kind {
	case ChangeAdded:
		fields = c.FieldsAdded
	case ChangeUpdated:
		fields = c.FieldsUpdated
	case ChangeDeleted:
		fields = c.FieldsDeleted
	}
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldChange{}, false
}
