package executor

import (
	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// fieldGroup is every selection of one response name, in query order.
type fieldGroup struct {
	name   string
	fields []*language.Field
}

// collectFields flattens sel for objectType: fragments that apply are
// inlined, @skip and @include are honored, and fields sharing a response
// name are grouped. Groups keep the order of their first occurrence.
func (ex *execution) collectFields(objectType *schema.Type, sel language.SelectionSet) []fieldGroup {
	var groups []fieldGroup
	index := map[string]int{}
	visited := map[string]bool{}

	var walk func(language.SelectionSet)
	walk = func(sel language.SelectionSet) {
		for _, s := range sel {
			switch s := s.(type) {
			case *language.Field:
				if !ex.included(s.Directives) {
					continue
				}
				name := s.Alias
				if name == "" {
					name = s.Name
				}
				if i, ok := index[name]; ok {
					groups[i].fields = append(groups[i].fields, s)
					continue
				}
				index[name] = len(groups)
				groups = append(groups, fieldGroup{name: name, fields: []*language.Field{s}})

			case *language.InlineFragment:
				if ex.included(s.Directives) && ex.applies(objectType, s.TypeCondition) {
					walk(s.SelectionSet)
				}

			case *language.FragmentSpread:
				if !ex.included(s.Directives) || visited[s.Name] {
					continue
				}
				visited[s.Name] = true
				def := ex.doc.Fragments.ForName(s.Name)
				if def == nil || !ex.included(def.Directives) || !ex.applies(objectType, def.TypeCondition) {
					continue
				}
				walk(def.SelectionSet)
			}
		}
	}
	walk(sel)
	return groups
}

// applies reports whether a fragment on typeCondition applies to objectType,
// directly or through an interface or union.
func (ex *execution) applies(objectType *schema.Type, typeCondition string) bool {
	if typeCondition == "" || typeCondition == objectType.Name || objectType.Implements(typeCondition) {
		return true
	}
	cond := ex.schema.Types[typeCondition]
	if cond == nil || (cond.Kind != schema.TypeKindInterface && cond.Kind != schema.TypeKindUnion) {
		return false
	}
	for _, name := range cond.PossibleTypes {
		if name == objectType.Name {
			return true
		}
	}
	return false
}

// included evaluates @skip(if:) and @include(if:). A condition that is not a
// boolean leaves the selection in.
func (ex *execution) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if skip, ok := ex.condition(d); ok && skip {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if include, ok := ex.condition(d); ok && !include {
			return false
		}
	}
	return true
}

func (ex *execution) condition(d *language.Directive) (value, ok bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	value, ok = valueFromAST(arg.Value, ex.vars).(bool)
	return value, ok
}

// mergeSelections joins the sub-selections of a field group.
func mergeSelections(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}
