package domain

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// idGen produces short ids so generated operations collide with existing
// document values often enough to be interesting.
func idGen() gopter.Gen {
	return pick("u1", "u2", "u3", "d1", "d2")
}

func pick(values ...string) gopter.Gen {
	return gen.IntRange(0, len(values)-1).Map(func(i int) string { return values[i] })
}

func scriptOpGen() gopter.Gen {
	return gen.IntRange(0, 11).FlatMap(func(v any) gopter.Gen {
		kind := v.(int)
		return gopter.CombineGens(idGen(), idGen(), gen.Bool()).Map(func(vals []any) ScriptOp {
			a, b, flag := vals[0].(string), vals[1].(string), vals[2].(bool)
			switch kind {
			case 0:
				return SetField("tier", a)
			case 1:
				return RemoveField("tier")
			case 2:
				return SetIfInheritable("domain", EntityReference{ID: a, Type: "domain"})
			case 3:
				return ReplaceInherited("domain", a, EntityReference{ID: b, Type: "domain"})
			case 4:
				return RemoveInherited("domain", a, flag)
			case 5:
				return AppendUnique("followers", "", []string{a, b})
			case 6:
				return RemoveItems("followers", "", a)
			case 7:
				return AppendInheritedList("owners", []EntityReference{{ID: a, Type: "user"}})
			case 8:
				return RemoveInheritedItems("owners", a)
			case 9:
				return MarkParentRef("dashboards", a, flag)
			case 10:
				return DetachParentRef("dashboards", a)
			default:
				return UpsertEdge(LineageEdge{
					FromEntity: EdgeRef{ID: a, Type: "table", FQN: "s." + a},
					ToEntity:   EdgeRef{ID: b, Type: "table", FQN: "s." + b},
				})
			}
		})
	}, reflect.TypeOf(ScriptOp{}))
}

func seedDocument() SearchDocument {
	return SearchDocument{
		"id":        "t1",
		"deleted":   false,
		"followers": []any{"u1"},
		"owners":    []any{map[string]any{"id": "u1", "type": "user", "inherited": true}},
		"domain":    map[string]any{"id": "d1", "type": "domain", "inherited": true},
		"dashboards": []any{
			map[string]any{"id": "d1"},
			map[string]any{"id": "d2"},
		},
	}
}

func TestProperty_ScriptOpsAreIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("applying an operation twice equals applying it once", prop.ForAll(
		func(op ScriptOp) bool {
			once := seedDocument()
			op.apply(once)

			twice := once.Clone()
			if op.apply(twice) {
				return false
			}
			return reflect.DeepEqual(once, twice)
		},
		scriptOpGen(),
	))

	properties.Property("re-applying a whole script reports no change", prop.ForAll(
		func(ops []ScriptOp) bool {
			// ordered scripts are idempotent as a unit only when each op
			// commutes with the later ones; verify the common single-field case
			byField := make(map[string]ScriptOp)
			for _, op := range ops {
				byField[op.Field] = op
			}
			script := NewScript("p")
			for _, op := range byField {
				script = script.Add(op)
			}

			doc := seedDocument()
			script.Apply(doc)
			return !script.Apply(doc)
		},
		gen.SliceOfN(6, scriptOpGen()),
	))

	properties.TestingRun(t)
}

func TestProperty_FQNAncestors(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	segment := pick("svc", "db", "schema", "orders", "my.db", "raw")

	properties.Property("every ancestor is a strict prefix of the fqn", prop.ForAll(
		func(segments []string) bool {
			if len(segments) == 0 {
				return true
			}
			fqn := BuildFQN(segments...)
			ancestors := FQNAncestors(fqn)
			if len(ancestors) != len(segments)-1 {
				return false
			}
			for _, a := range ancestors {
				if !strings.HasPrefix(fqn, FQNPrefix(a)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(segment),
	))

	properties.Property("split inverts build", prop.ForAll(
		func(segments []string) bool {
			if len(segments) == 0 {
				return true
			}
			fqn := BuildFQN(segments...)
			return BuildFQN(SplitFQN(fqn)...) == fqn && len(SplitFQN(fqn)) == len(segments)
		},
		gen.SliceOf(segment),
	))

	properties.TestingRun(t)
}
