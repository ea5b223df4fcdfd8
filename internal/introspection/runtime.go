// Package introspection answers __schema and __type on top of another
// Runtime.
package introspection

import (
	"context"
	"fmt"
	"sort"

	executor "github.com/hanpama/opgraph/internal/executor"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// Wrapper is the introspection-enabled pair handed to the executor.
type Wrapper struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap extends sch with the introspection types and returns a Runtime that
// serves them, delegating every other field to base. sch itself is left
// untouched and is what introspection queries describe.
func Wrap(base executor.Runtime, sch *schema.Schema) *Wrapper {
	return &Wrapper{
		Runtime: &runtime{Runtime: base, described: sch},
		Schema:  extend(sch),
	}
}

// runtime embeds the wrapped Runtime; only ResolveSync is intercepted since
// every introspection field is synchronous.
type runtime struct {
	executor.Runtime
	described *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	var (
		value any
		ok    bool
	)
	switch objectType {
	case "__Schema":
		value, ok = r.schemaField(field)
	case "__Type":
		value, ok = r.typeField(source, field, args)
	case "__Field":
		value, ok = r.fieldField(source.(*schema.Field), field, args)
	case "__InputValue":
		value, ok = r.inputValueField(source.(*schema.InputValue), field)
	case "__EnumValue":
		value, ok = enumValueField(source.(*schema.EnumValue), field)
	case "__Directive":
		value, ok = directiveField(source.(*schema.Directive), field, args)
	default:
		if objectType == r.described.QueryType && field == "__schema" {
			return r.described, nil
		}
		if objectType == r.described.QueryType && field == "__type" {
			name, _ := args["name"].(string)
			return r.lookup(name), nil
		}
		return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
	}
	if !ok {
		return nil, fmt.Errorf("unknown introspection field %s.%s", objectType, field)
	}
	return value, nil
}

// lookup finds a named type of the described schema or one of the
// introspection types. It returns an untyped nil on a miss.
func (r *runtime) lookup(name string) any {
	if t, ok := r.described.Types[name]; ok {
		return t
	}
	if t, ok := introspectionTypes()[name]; ok {
		return t
	}
	return nil
}

// typeValue is the __Type value of ref: wrappers stay references, named
// references become their definition.
func (r *runtime) typeValue(ref *schema.TypeRef) any {
	switch {
	case ref == nil:
		return nil
	case ref.Kind != schema.TypeRefKindNamed:
		return ref
	case ref.Def != nil && r.described.Types[ref.Named] == nil:
		return ref.Def
	}
	return r.lookup(ref.Named)
}

func (r *runtime) schemaField(field string) (any, bool) {
	s := r.described
	switch field {
	case "description":
		return nullable(s.Description), true
	case "queryType":
		return root(s.GetQueryType()), true
	case "mutationType":
		return root(s.GetMutationType()), true
	case "subscriptionType":
		return root(s.GetSubscriptionType()), true
	case "types":
		types := make([]*schema.Type, 0, len(s.Types)+8)
		for _, t := range s.Types {
			types = append(types, t)
		}
		for name, t := range introspectionTypes() {
			if s.Types[name] == nil {
				types = append(types, t)
			}
		}
		sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
		return types, true
	case "directives":
		directives := make([]*schema.Directive, 0, len(s.Directives))
		for _, d := range s.Directives {
			directives = append(directives, d)
		}
		sort.Slice(directives, func(i, j int) bool { return directives[i].Name < directives[j].Name })
		return directives, true
	}
	return nil, false
}

// typeField serves a __Type field of a named type or a LIST/NON_NULL wrapper.
func (r *runtime) typeField(source any, field string, args map[string]any) (any, bool) {
	if ref, isRef := source.(*schema.TypeRef); isRef {
		switch field {
		case "kind":
			return string(ref.Kind), true
		case "ofType":
			return r.typeValue(ref.OfType), true
		}
		return nil, true
	}

	t := source.(*schema.Type)
	deprecated := includeDeprecated(args)
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return nullable(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "ofType":
		return nil, true
	}

	switch t.Kind {
	case schema.TypeKindObject, schema.TypeKindInterface:
		switch field {
		case "fields":
			fields := []*schema.Field{}
			for _, f := range t.Fields {
				if deprecated || !f.IsDeprecated {
					fields = append(fields, f)
				}
			}
			return fields, true
		case "interfaces":
			return r.types(t.Interfaces), true
		}
	case schema.TypeKindEnum:
		if field == "enumValues" {
			values := []*schema.EnumValue{}
			for _, v := range t.EnumValues {
				if deprecated || !v.IsDeprecated {
					values = append(values, v)
				}
			}
			return values, true
		}
	case schema.TypeKindInputObject:
		switch field {
		case "inputFields":
			return inputValues(t.InputFields, deprecated), true
		case "isOneOf":
			return t.OneOf, true
		}
	}
	if field == "possibleTypes" && (t.Kind == schema.TypeKindInterface || t.Kind == schema.TypeKindUnion) {
		return r.types(t.PossibleTypes), true
	}

	switch field {
	case "fields", "interfaces", "possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, true
	}
	return nil, false
}

func (r *runtime) types(names []string) []*schema.Type {
	types := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.described.Types[name]; t != nil {
			types = append(types, t)
		}
	}
	return types
}

func (r *runtime) fieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return nullable(f.Description), true
	case "args":
		return inputValues(f.Arguments, includeDeprecated(args)), true
	case "type":
		return r.typeValue(f.Type), true
	}
	return deprecation(f.IsDeprecated, f.DeprecationReason, field)
}

func (r *runtime) inputValueField(v *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return v.Name, true
	case "description":
		return nullable(v.Description), true
	case "type":
		return r.typeValue(v.Type), true
	case "defaultValue":
		if v.DefaultValue == nil {
			return nil, true
		}
		return schema.RenderValue(v.DefaultValue), true
	}
	return deprecation(v.IsDeprecated, v.DeprecationReason, field)
}

func enumValueField(v *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return v.Name, true
	case "description":
		return nullable(v.Description), true
	}
	return deprecation(v.IsDeprecated, v.DeprecationReason, field)
}

func directiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return nullable(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return append([]string(nil), d.Locations...), true
	case "args":
		return inputValues(d.Arguments, includeDeprecated(args)), true
	}
	return nil, false
}

// deprecation serves isDeprecated and deprecationReason.
func deprecation(is bool, reason, field string) (any, bool) {
	switch field {
	case "isDeprecated":
		return is, true
	case "deprecationReason":
		if !is {
			return nil, true
		}
		return reason, true
	}
	return nil, false
}

func inputValues(values []*schema.InputValue, deprecated bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range values {
		if deprecated || !v.IsDeprecated {
			out = append(out, v)
		}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// root keeps an absent root type from turning into a typed nil.
func root(t *schema.Type) any {
	if t == nil {
		return nil
	}
	return t
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}
