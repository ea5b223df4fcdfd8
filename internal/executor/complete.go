package executor

import (
	"fmt"
	"reflect"

	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// The completion functions return ok=false when the value at path is null
// although its type is Non-Null. The caller then nulls its own position or,
// if that is Non-Null too, passes the failure up.

func (ex *execution) executeFields(objectType *schema.Type, sel language.SelectionSet, source any, path Path) (map[string]any, bool) {
	groups := ex.collectFields(objectType, sel)
	out := make(map[string]any, len(groups))
	for _, g := range groups {
		fieldPath := path.with(g.name)
		name := g.fields[0].Name
		if name == "__typename" {
			out[g.name] = objectType.Name
			continue
		}
		def := objectType.Field(name)
		if def == nil {
			ex.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", name, objectType.Name), fieldPath)
			continue
		}
		v, ok := ex.executeField(objectType, def, g.fields, source, fieldPath)
		if !ok {
			return nil, false
		}
		out[g.name] = v
	}
	return out, true
}

// executeField resolves a sync field in place. An async field is queued and
// holds null until its batch completes.
func (ex *execution) executeField(objectType *schema.Type, def *schema.Field, fields []*language.Field, source any, path Path) (any, bool) {
	args, err := coerceArgumentValues(ex.schema, def, fields[0].Arguments, ex.vars)
	if err != nil {
		ex.addError(err.Error(), path)
		return ex.completeValue(def.Type, fields, nil, path)
	}
	if def.Async {
		ex.pending = append(ex.pending, &deferredField{
			task:   AsyncResolveTask{ObjectType: objectType.Name, Field: def.Name, Source: source, Args: args},
			path:   path,
			typ:    def.Type,
			fields: fields,
		})
		return nil, true
	}
	raw, err := ex.rt.ResolveSync(ex.ctx, objectType.Name, def.Name, source, args)
	if err != nil {
		ex.addError(err.Error(), path)
		raw = nil
	}
	return ex.completeValue(def.Type, fields, raw, path)
}

func (ex *execution) completeValue(typ *schema.TypeRef, fields []*language.Field, result any, path Path) (any, bool) {
	nonNull := schema.IsNonNull(typ)
	if nonNull {
		typ = schema.Unwrap(typ)
	}
	if isNullish(result) {
		return nil, ex.nullAllowed(nonNull, path)
	}

	v, ok := ex.completeNullable(typ, nonNull, fields, result, path)
	if ok {
		if isNullish(v) {
			return nil, ex.nullAllowed(nonNull, path)
		}
		return v, true
	}
	if nonNull {
		return nil, false
	}
	ex.nulled[path.String()] = true
	return nil, true
}

// nullAllowed reports whether a plain null may stand at path, recording the
// error when it may not.
func (ex *execution) nullAllowed(nonNull bool, path Path) bool {
	if !nonNull {
		return true
	}
	if !ex.errorAt[path.String()] {
		ex.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
	}
	return false
}

// completeNullable completes a non-null result against typ, which is not
// Non-Null itself. nonNull tells whether the enclosing position was.
func (ex *execution) completeNullable(typ *schema.TypeRef, nonNull bool, fields []*language.Field, result any, path Path) (any, bool) {
	if schema.IsList(typ) {
		ex.nullable[path.String()] = !nonNull
		return ex.completeList(typ, fields, result, path)
	}
	name := schema.GetNamedType(typ)
	def := ex.schema.Types[name]
	if def == nil {
		ex.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil, false
	}
	switch def.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := ex.rt.SerializeLeafValue(ex.ctx, name, result)
		if err != nil {
			ex.addError(err.Error(), path)
			return nil, false
		}
		return v, true
	case schema.TypeKindObject:
		ex.nullable[path.String()] = !nonNull
		return ex.executeFields(def, mergeSelections(fields), result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		ex.nullable[path.String()] = !nonNull
		return ex.completeAbstract(def, fields, result, path)
	}
	ex.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", def.Kind), path)
	return nil, false
}

func (ex *execution) completeList(typ *schema.TypeRef, fields []*language.Field, result any, path Path) (any, bool) {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			ex.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil, false
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}
	itemType := schema.Unwrap(typ)
	out := make([]any, len(items))
	for i, item := range items {
		v, ok := ex.completeValue(itemType, fields, item, path.with(i))
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (ex *execution) completeAbstract(abstract *schema.Type, fields []*language.Field, result any, path Path) (any, bool) {
	typeName, err := ex.rt.ResolveType(ex.ctx, abstract.Name, result)
	if err != nil {
		ex.addError(err.Error(), path)
		return nil, false
	}
	objectType := ex.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		ex.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstract.Name, typeName), path)
		return nil, false
	}
	return ex.executeFields(objectType, mergeSelections(fields), result, path)
}

// isNullish is true for nil and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
