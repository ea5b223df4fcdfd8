package assembler

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	executor "github.com/hanpama/opgraph/internal/executor"
	logging "github.com/hanpama/opgraph/internal/logging"
	operation "github.com/hanpama/opgraph/internal/operation"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// runtime executes a built schema: fields with a Resolve closure call it,
// other fields read the matching key or struct field of their parent.
type runtime struct {
	schema       *schema.Schema
	typeResolver TypeResolver
	log          *zap.Logger
}

var _ executor.Runtime = (*runtime)(nil)

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	return r.resolve(ctx, objectType, field, source, args)
}

// BatchResolveAsync runs query fields concurrently. Mutation root fields run
// one after another in document order.
func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	serial := true
	for _, task := range tasks {
		if task.ObjectType != r.schema.MutationType {
			serial = false
			break
		}
	}
	if serial || len(tasks) == 1 {
		for i, task := range tasks {
			v, err := r.resolve(ctx, task.ObjectType, task.Field, task.Source, task.Args)
			results[i] = executor.AsyncResolveResult{Value: v, Error: err}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task executor.AsyncResolveTask) {
			defer wg.Done()
			v, err := r.resolve(ctx, task.ObjectType, task.Field, task.Source, task.Args)
			results[i] = executor.AsyncResolveResult{Value: v, Error: err}
		}(i, task)
	}
	wg.Wait()
	return results
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if named, ok := value.(interface{ GraphQLTypeName() string }); ok {
		return named.GraphQLTypeName(), nil
	}
	if r.typeResolver == nil {
		return "", fmt.Errorf("no type resolver configured for abstract type %s", abstractType)
	}
	return r.typeResolver(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	return serializeLeaf(typeName, value)
}

func (r *runtime) resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (v any, err error) {
	t := r.schema.Types[objectType]
	if t == nil {
		return nil, fmt.Errorf("unknown type %s", objectType)
	}
	def := t.Field(field)
	if def == nil {
		return nil, fmt.Errorf("unknown field %s.%s", objectType, field)
	}
	if def.Resolve == nil {
		return defaultResolve(source, field)
	}

	defer func() {
		if p := recover(); p != nil {
			v, err = nil, fmt.Errorf("panic: %v", p)
		}
		err = r.clientSafe(ctx, objectType, field, err)
	}()
	return def.Resolve(ctx, source, args)
}

// clientSafe hides failures that did not pass a resolver boundary of their
// own, such as backend errors during node lookups.
func (r *runtime) clientSafe(ctx context.Context, objectType, field string, err error) error {
	if err == nil || errors.Is(err, operation.ErrInternal) {
		return err
	}
	var opErr *operation.Error
	if errors.As(err, &opErr) {
		return opErr
	}
	logging.Exception(logging.WithRequest(ctx, r.log), "Unexpected exception during field resolution", err,
		zap.String("field", objectType+"."+field))
	return operation.ErrInternal
}

// defaultResolve reads field from maps (by key) and structs (by graphql tag
// or case-insensitive field name).
func defaultResolve(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}
	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(sf.Tag.Get("graphql"), ",")
			if name == field || (name == "" && strings.EqualFold(sf.Name, field)) {
				return rv.Field(i).Interface(), nil
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("cannot read field %s from %T", field, source)
}

func serializeLeaf(typeName string, value any) (any, error) {
	value, err := leafValue(value)
	if err != nil || value == nil {
		return nil, err
	}
	switch typeName {
	case "String", "ID":
		return serializeString(value)
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "Boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", value)
		}
		return b, nil
	}
	// enums and custom scalars
	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return value, nil
}

// leafValue unwraps pointers and driver.Valuer implementations (sql.Null*).
func leafValue(value any) (any, error) {
	if v, ok := value.(driver.Valuer); ok {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		return v.Value()
	}
	rv := reflect.ValueOf(value)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}
	return rv.Interface(), nil
}

func serializeString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case time.Duration:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	}
	// opaque values (maps, structs, slices) are exposed as JSON
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("String cannot represent %T: %w", value, err)
	}
	return string(b), nil
}

func serializeInt(value any) (any, error) {
	rv := reflect.ValueOf(value)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", value)
		}
		n = int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", value)
		}
		n = int64(f)
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("Int cannot represent non-integer value: %v", value)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %v", value)
	}
	return int(n), nil
}

func serializeFloat(value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("Float cannot represent non numeric value: %v", value)
}
