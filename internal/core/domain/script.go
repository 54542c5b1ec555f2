package domain

import (
	"reflect"
)

// ScriptOpKind is one of the closed set of partial-update operations.
type ScriptOpKind string

const (
	OpSet                  ScriptOpKind = "set"
	OpRemove               ScriptOpKind = "remove"
	OpSetIfInheritable     ScriptOpKind = "setIfInheritable"
	OpReplaceInherited     ScriptOpKind = "replaceInherited"
	OpRemoveInherited      ScriptOpKind = "removeInherited"
	OpReplaceIfEquals      ScriptOpKind = "replaceIfEquals"
	OpAppendUnique         ScriptOpKind = "appendUnique"
	OpRemoveItems          ScriptOpKind = "removeItems"
	OpAppendInheritedList  ScriptOpKind = "appendInheritedList"
	OpReplaceInheritedList ScriptOpKind = "replaceInheritedList"
	OpRemoveInheritedItems ScriptOpKind = "removeInheritedItems"
	OpRemoveTag            ScriptOpKind = "removeTag"
	OpAddDerivedTag        ScriptOpKind = "addDerivedTag"
	OpRemoveDerivedTag     ScriptOpKind = "removeDerivedTag"
	OpMarkParentRef        ScriptOpKind = "markParentRef"
	OpDetachParentRef      ScriptOpKind = "detachParentRef"
	OpUpsertEdge           ScriptOpKind = "upsertEdge"
	OpRemoveEdge           ScriptOpKind = "removeEdge"
)

// ScriptOp is a single operation on a top-level document field.
type ScriptOp struct {
	Kind  ScriptOpKind `json:"kind"`
	Field string       `json:"field"`
	Value any          `json:"value,omitempty"`
	Old   any          `json:"old,omitempty"`
	Key   string       `json:"key,omitempty"`
	Flag  bool         `json:"flag,omitempty"`
}

// Script is an ordered list of operations applied to one document.
// Every operation is idempotent.
type Script struct {
	Name string     `json:"name"`
	Ops  []ScriptOp `json:"ops"`
}

// NewScript creates a named script.
func NewScript(name string, ops ...ScriptOp) Script {
	return Script{Name: name, Ops: ops}
}

// Add appends operations and returns the script.
func (s Script) Add(ops ...ScriptOp) Script {
	s.Ops = append(s.Ops, ops...)
	return s
}

// IsEmpty reports whether the script has no operations.
func (s Script) IsEmpty() bool { return len(s.Ops) == 0 }

// Apply evaluates the script against doc in place and reports whether
// anything changed.
func (s Script) Apply(doc SearchDocument) bool {
	changed := false
	for _, op := range s.Ops {
		if op.apply(doc) {
			changed = true
		}
	}
	return changed
}

// Operation constructors. Values are normalized to plain JSON types so that
// documents stay comparable after scripts run.

func SetField(field string, value any) ScriptOp {
	return ScriptOp{Kind: OpSet, Field: field, Value: jsonValue(value)}
}

func RemoveField(field string) ScriptOp {
	return ScriptOp{Kind: OpRemove, Field: field}
}

func SetIfInheritable(field string, ref EntityReference) ScriptOp {
	ref.Inherited = true
	return ScriptOp{Kind: OpSetIfInheritable, Field: field, Value: jsonValue(ref)}
}

func ReplaceInherited(field, oldID string, ref EntityReference) ScriptOp {
	ref.Inherited = true
	return ScriptOp{Kind: OpReplaceInherited, Field: field, Value: jsonValue(ref), Old: oldID}
}

// RemoveInherited removes field when it references oldID. With force the
// inherited flag is ignored, used when the referenced entity itself is gone.
func RemoveInherited(field, oldID string, force bool) ScriptOp {
	return ScriptOp{Kind: OpRemoveInherited, Field: field, Old: oldID, Flag: force}
}

func ReplaceIfEquals(field string, old, value any) ScriptOp {
	return ScriptOp{Kind: OpReplaceIfEquals, Field: field, Value: jsonValue(value), Old: jsonValue(old)}
}

func AppendUnique(field, key string, items any) ScriptOp {
	return ScriptOp{Kind: OpAppendUnique, Field: field, Key: key, Value: jsonValue(items)}
}

func RemoveItems(field, key string, keys ...string) ScriptOp {
	return ScriptOp{Kind: OpRemoveItems, Field: field, Key: key, Value: stringsToAny(keys)}
}

func AppendInheritedList(field string, refs []EntityReference) ScriptOp {
	return ScriptOp{Kind: OpAppendInheritedList, Field: field, Value: jsonValue(markInherited(refs))}
}

func ReplaceInheritedList(field string, oldIDs []string, refs []EntityReference) ScriptOp {
	return ScriptOp{Kind: OpReplaceInheritedList, Field: field, Value: jsonValue(markInherited(refs)), Old: stringsToAny(oldIDs)}
}

func RemoveInheritedItems(field string, ids ...string) ScriptOp {
	return ScriptOp{Kind: OpRemoveInheritedItems, Field: field, Value: stringsToAny(ids)}
}

func RemoveTag(tagFQN string) ScriptOp {
	return ScriptOp{Kind: OpRemoveTag, Field: DocFieldTags, Value: tagFQN}
}

func AddDerivedTags(tags []TagLabel) ScriptOp {
	derived := make([]TagLabel, len(tags))
	for i, t := range tags {
		t.LabelType = LabelTypeDerived
		derived[i] = t
	}
	return ScriptOp{Kind: OpAddDerivedTag, Field: DocFieldTags, Value: jsonValue(derived)}
}

func RemoveDerivedTags(tagFQNs ...string) ScriptOp {
	return ScriptOp{Kind: OpRemoveDerivedTag, Field: DocFieldTags, Value: stringsToAny(tagFQNs)}
}

// MarkParentRef flags the reference to parentID in a multi-parent list as
// deleted or restored. The document itself is marked deleted once no live
// parent remains, and restored when the first parent comes back.
func MarkParentRef(field, parentID string, deleted bool) ScriptOp {
	return ScriptOp{Kind: OpMarkParentRef, Field: field, Value: parentID, Flag: deleted}
}

// DetachParentRef removes the reference to parentID; the document is marked
// deleted when it was the last live parent.
func DetachParentRef(field, parentID string) ScriptOp {
	return ScriptOp{Kind: OpDetachParentRef, Field: field, Value: parentID}
}

func UpsertEdge(edge LineageEdge) ScriptOp {
	return ScriptOp{Kind: OpUpsertEdge, Field: DocFieldLineage, Value: jsonValue(edge.WithDocID())}
}

func RemoveEdge(edge LineageEdge) ScriptOp {
	return ScriptOp{Kind: OpRemoveEdge, Field: DocFieldLineage, Value: jsonValue(edge.WithDocID())}
}

func (op ScriptOp) apply(doc SearchDocument) bool {
	cur, present := doc[op.Field]
	switch op.Kind {
	case OpSet:
		if present && reflect.DeepEqual(cur, op.Value) {
			return false
		}
		doc[op.Field] = op.Value
		return true

	case OpRemove:
		if !present {
			return false
		}
		delete(doc, op.Field)
		return true

	case OpSetIfInheritable:
		if cur != nil && !isInherited(cur) {
			return false
		}
		return setIfDifferent(doc, op.Field, op.Value)

	case OpReplaceInherited:
		if cur == nil || !isInherited(cur) || refID(cur) != asString(op.Old) {
			return false
		}
		return setIfDifferent(doc, op.Field, op.Value)

	case OpRemoveInherited:
		if cur == nil || refID(cur) != asString(op.Old) {
			return false
		}
		if !op.Flag && !isInherited(cur) {
			return false
		}
		delete(doc, op.Field)
		return true

	case OpReplaceIfEquals:
		if present && cur != nil && !reflect.DeepEqual(cur, op.Old) {
			return false
		}
		return setIfDifferent(doc, op.Field, op.Value)

	case OpAppendUnique:
		key := keyOrID(op.Key)
		list := asList(cur)
		seen := keySet(list, key)
		changed := false
		for _, item := range asList(op.Value) {
			k := itemKey(item, key)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			list = append(list, item)
			changed = true
		}
		if changed {
			doc[op.Field] = list
		}
		return changed

	case OpRemoveItems:
		key := keyOrID(op.Key)
		drop := stringSet(op.Value)
		return filterList(doc, op.Field, func(item any) bool {
			_, ok := drop[itemKey(item, key)]
			return !ok
		})

	case OpAppendInheritedList:
		list := asList(cur)
		for _, item := range list {
			if !isInherited(item) {
				return false
			}
		}
		seen := keySet(list, "id")
		changed := false
		for _, item := range asList(op.Value) {
			if _, ok := seen[refID(item)]; ok {
				continue
			}
			list = append(list, item)
			changed = true
		}
		if changed {
			doc[op.Field] = list
		}
		return changed

	case OpReplaceInheritedList:
		list := asList(cur)
		for _, item := range list {
			if !isInherited(item) {
				return false
			}
		}
		if len(list) > 0 && !sameKeys(keySet(list, "id"), stringSet(op.Old)) {
			return false
		}
		return setIfDifferent(doc, op.Field, asList(op.Value))

	case OpRemoveInheritedItems:
		drop := stringSet(op.Value)
		return filterList(doc, op.Field, func(item any) bool {
			if !isInherited(item) {
				return true
			}
			if len(drop) == 0 {
				return false
			}
			_, ok := drop[refID(item)]
			return !ok
		})

	case OpRemoveTag:
		fqn := asString(op.Value)
		return filterList(doc, op.Field, func(item any) bool {
			return itemKey(item, "tagFQN") != fqn
		})

	case OpAddDerivedTag:
		list := asList(cur)
		seen := keySet(list, "tagFQN")
		changed := false
		for _, item := range asList(op.Value) {
			k := itemKey(item, "tagFQN")
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			list = append(list, item)
			changed = true
		}
		if changed {
			doc[op.Field] = list
		}
		return changed

	case OpRemoveDerivedTag:
		drop := stringSet(op.Value)
		return filterList(doc, op.Field, func(item any) bool {
			if itemKey(item, "labelType") != string(LabelTypeDerived) {
				return true
			}
			_, ok := drop[itemKey(item, "tagFQN")]
			return !ok
		})

	case OpMarkParentRef:
		return markParentRef(doc, op.Field, asString(op.Value), op.Flag)

	case OpDetachParentRef:
		parentID := asString(op.Value)
		list := asList(cur)
		if len(list) == 0 {
			return false
		}
		removed := filterList(doc, op.Field, func(item any) bool { return refID(item) != parentID })
		if !removed {
			return false
		}
		if liveRefs(asList(doc[op.Field])) == 0 {
			doc[DocFieldDeleted] = true
		}
		return true

	case OpUpsertEdge:
		key := edgeIdentity(op.Value)
		list := asList(cur)
		for i, item := range list {
			if edgeIdentity(item) == key {
				if reflect.DeepEqual(item, op.Value) {
					return false
				}
				updated := append([]any(nil), list...)
				updated[i] = op.Value
				doc[op.Field] = updated
				return true
			}
		}
		doc[op.Field] = append(list, op.Value)
		return true

	case OpRemoveEdge:
		key := edgeIdentity(op.Value)
		return filterList(doc, op.Field, func(item any) bool { return edgeIdentity(item) != key })
	}
	return false
}

func markParentRef(doc SearchDocument, field, parentID string, deleted bool) bool {
	list := asList(doc[field])
	liveBefore := liveRefs(list)
	changed := false
	updated := make([]any, len(list))
	for i, item := range list {
		updated[i] = item
		m, ok := item.(map[string]any)
		if !ok || asString(m["id"]) != parentID {
			continue
		}
		if wasDeleted, _ := m["deleted"].(bool); wasDeleted == deleted {
			continue
		}
		cp := make(map[string]any, len(m)+1)
		for k, v := range m {
			cp[k] = v
		}
		if deleted {
			cp["deleted"] = true
		} else {
			delete(cp, "deleted")
		}
		updated[i] = cp
		changed = true
	}
	if !changed {
		return false
	}
	doc[field] = updated
	liveAfter := liveRefs(updated)
	if deleted && liveAfter == 0 {
		doc[DocFieldDeleted] = true
	}
	if !deleted && liveBefore == 0 && liveAfter > 0 {
		doc[DocFieldDeleted] = false
	}
	return true
}

func liveRefs(list []any) int {
	n := 0
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			if d, _ := m["deleted"].(bool); d {
				continue
			}
		}
		n++
	}
	return n
}

func setIfDifferent(doc SearchDocument, field string, value any) bool {
	if cur, ok := doc[field]; ok && reflect.DeepEqual(cur, value) {
		return false
	}
	doc[field] = value
	return true
}

func filterList(doc SearchDocument, field string, keep func(any) bool) bool {
	list := asList(doc[field])
	if len(list) == 0 {
		return false
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if keep(item) {
			out = append(out, item)
		}
	}
	if len(out) == len(list) {
		return false
	}
	doc[field] = out
	return true
}

func edgeIdentity(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	from, _ := m["fromEntity"].(map[string]any)
	to, _ := m["toEntity"].(map[string]any)
	k := EdgeKey{From: asString(from["id"]), To: asString(to["id"])}
	if p, ok := m["pipeline"].(map[string]any); ok {
		k.Pipeline = asString(p["id"])
	}
	return k.String()
}

func isInherited(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	b, _ := m["inherited"].(bool)
	return b
}

func refID(v any) string {
	return itemKey(v, "id")
}

func itemKey(v any, key string) string {
	if m, ok := v.(map[string]any); ok {
		return asString(m[key])
	}
	s, _ := TermValue(v)
	return s
}

func keyOrID(key string) string {
	if key == "" {
		return "id"
	}
	return key
}

func keySet(list []any, key string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, item := range list {
		out[itemKey(item, key)] = struct{}{}
	}
	return out
}

func sameKeys(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func stringSet(v any) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range asList(v) {
		if s, ok := TermValue(item); ok {
			out[s] = struct{}{}
		}
	}
	return out
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	}
	return []any{v}
}

func asString(v any) string {
	s, _ := TermValue(v)
	return s
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func markInherited(refs []EntityReference) []EntityReference {
	out := make([]EntityReference, len(refs))
	for i, r := range refs {
		r.Inherited = true
		out[i] = r
	}
	return out
}

func jsonValue(v any) any {
	n, err := Normalize(v)
	if err != nil {
		return v
	}
	return n
}
