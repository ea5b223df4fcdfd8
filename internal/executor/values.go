package executor

import (
	"fmt"
	"math"
	"strconv"

	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// coerceVariableValues coerces the request's variables to their declared
// types. Omitted variables take their default; omitted nullable variables
// without one stay unset.
func coerceVariableValues(s *schema.Schema, op *language.OperationDefinition, provided map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		name, t := def.Variable, def.Type
		val, ok := provided[name]
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = valueFromAST(def.DefaultValue, nil)
			case t.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			default:
				continue
			}
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := coerceValue(s, val, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the arguments of one field. A failure makes
// the whole field fail, so the resolver is not called.
func coerceArgumentValues(s *schema.Schema, field *schema.Field, args language.ArgumentList, vars map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(field.Arguments))
	for _, arg := range args {
		def := field.Argument(arg.Name)
		if def == nil {
			return nil, fmt.Errorf("Unknown argument '%s' on field '%s'", arg.Name, field.Name)
		}
		if arg.Value != nil && arg.Value.Kind == language.Variable {
			if _, ok := vars[arg.Value.Raw]; !ok {
				// unset variables behave like an omitted argument
				continue
			}
		}
		cv, err := coerceValue(s, valueFromAST(arg.Value, vars), def.Type)
		if err != nil {
			return nil, fmt.Errorf("Argument '%s' cannot be coerced: %v", arg.Name, err)
		}
		coerced[arg.Name] = cv
	}
	for _, def := range field.Arguments {
		if _, ok := coerced[def.Name]; ok {
			continue
		}
		if def.DefaultValue != nil {
			coerced[def.Name] = def.DefaultValue
		} else if schema.IsNonNull(def.Type) {
			return nil, fmt.Errorf("Argument '%s' of required type %s was not provided", def.Name, def.Type)
		}
	}
	return coerced, nil
}

// valueFromAST turns a literal into a Go value. Variables are looked up in
// vars; unknown ones read as null.
func valueFromAST(v *language.Value, vars map[string]any) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.Variable:
		return vars[v.Raw]
	case language.IntValue:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			if n >= math.MinInt && n <= math.MaxInt {
				return int(n)
			}
		}
		return v.Raw
	case language.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return v.Raw
	case language.BooleanValue:
		return v.Raw == "true"
	case language.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = valueFromAST(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = valueFromAST(c.Value, vars)
		}
		return out
	}
	return nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	var ref *schema.TypeRef
	if t.Elem != nil {
		ref = schema.ListType(typeRefFromAST(t.Elem))
	} else {
		ref = schema.NamedType(t.NamedType)
	}
	if t.NonNull {
		return schema.NonNullType(ref)
	}
	return ref
}

var builtinInputs = map[string]func(any) (any, error){
	"Int":     coerceInt,
	"Float":   coerceFloat,
	"String":  coerceString,
	"Boolean": coerceBoolean,
	"ID":      coerceID,
}

// coerceValue coerces value to an input type. s may be nil, in which case
// input objects and enums not attached to the reference pass through.
func coerceValue(s *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	if schema.IsNonNull(t) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(s, value, schema.Unwrap(t))
	}
	if value == nil {
		return nil, nil
	}
	if schema.IsList(t) {
		return coerceList(s, value, schema.Unwrap(t))
	}

	name := schema.GetNamedType(t)
	if fn, ok := builtinInputs[name]; ok {
		return fn(value)
	}
	def := t.NamedDef()
	if def == nil && s != nil {
		def = s.Types[name]
	}
	if def == nil {
		return value, nil
	}
	switch def.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(s, value, def)
	case schema.TypeKindEnum:
		return coerceEnum(value, def)
	}
	// custom scalars are passed through
	return value, nil
}

// coerceList accepts a list, or a single value as a list of one.
func coerceList(s *schema.Schema, value any, item *schema.TypeRef) (any, error) {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	out := make([]any, len(items))
	for i, v := range items {
		cv, err := coerceValue(s, v, item)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

func coerceInputObject(s *schema.Schema, value any, def *schema.Type) (any, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for %s, got %T", def.Name, value)
	}
	for name := range fields {
		if def.InputField(name) == nil {
			return nil, fmt.Errorf("field %q is not defined by type %s", name, def.Name)
		}
	}
	if def.OneOf {
		set := 0
		for _, v := range fields {
			if v != nil {
				set++
			}
		}
		if set != 1 || len(fields) != 1 {
			return nil, fmt.Errorf("exactly one field of %s must be provided and non-null", def.Name)
		}
	}
	out := make(map[string]any, len(def.InputFields))
	for _, f := range def.InputFields {
		v, present := fields[f.Name]
		if !present {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if schema.IsNonNull(f.Type) {
				return nil, fmt.Errorf("required field '%s' of type %s was not provided", f.Name, def.Name)
			}
			continue
		}
		cv, err := coerceValue(s, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", def.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerceEnum(value any, def *schema.Type) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("enum %s cannot represent non-string value %v", def.Name, value)
	}
	for _, ev := range def.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("value %q does not exist in enum %s", name, def.Name)
}

func coerceInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		n = int64(v)
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("%d is not a 32-bit signed integer", n)
	}
	return int(n), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to string", value, value)
}

func coerceBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
