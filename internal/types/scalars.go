package types

import (
	"reflect"
	"time"

	schema "github.com/hanpama/opgraph/internal/schema"
)

// ID is a string that is exposed as the ID scalar.
type ID string

// required marks a descriptor as Non-Null wherever it appears, including as
// the element of a list descriptor.
type required struct{ of any }

// Required wraps descriptor so that it resolves to a Non-Null type, e.g.
// []any{types.Required(reflect.TypeOf(Cat{}))} is [Cat!].
func Required(descriptor any) any { return required{of: descriptor} }

func builtinScalars() map[reflect.Type]*schema.TypeRef {
	str := schema.RefTo(schema.StringType)
	integer := schema.RefTo(schema.IntType)
	float := schema.RefTo(schema.FloatType)
	boolean := schema.RefTo(schema.BooleanType)

	m := map[reflect.Type]*schema.TypeRef{
		reflect.TypeOf(""):               str,
		reflect.TypeOf(false):            boolean,
		reflect.TypeOf(float32(0)):       float,
		reflect.TypeOf(float64(0)):       float,
		reflect.TypeOf(time.Time{}):      str,
		reflect.TypeOf(time.Duration(0)): str,
		reflect.TypeOf(ID("")):           schema.RefTo(schema.IDType),
		reflect.TypeOf([]byte(nil)):      str,
	}
	for _, v := range []any{int(0), int8(0), int16(0), int32(0), int64(0), uint(0), uint8(0), uint16(0), uint32(0), uint64(0)} {
		m[reflect.TypeOf(v)] = integer
	}
	return m
}

// scalarByKind maps named Go types without their own entry (type Size string)
// onto the scalar of their underlying kind.
func scalarByKind(scalars map[reflect.Type]*schema.TypeRef, t reflect.Type) (*schema.TypeRef, bool) {
	switch t.Kind() {
	case reflect.String:
		return scalars[reflect.TypeOf("")], true
	case reflect.Bool:
		return scalars[reflect.TypeOf(false)], true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalars[reflect.TypeOf(0)], true
	case reflect.Float32, reflect.Float64:
		return scalars[reflect.TypeOf(0.0)], true
	case reflect.Map, reflect.Interface:
		// opaque values are serialized as JSON strings
		return scalars[reflect.TypeOf("")], true
	}
	return nil, false
}
