// Package structs exposes plain Go struct types as object types.
//
// Exported fields become fields of the object type. The graphql tag renames a
// field ("-" hides it), and the ",id" option marks the identifier; a field
// named ID is the identifier otherwise. With global ids enabled, types with an
// identifier implement Node and expose it as a global id.
//
//	type Cat struct {
//		Key  int    `graphql:"id,id"`
//		Name string
//		Vet  func() `graphql:"-"`
//	}
package structs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"

	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

const Prefix = "Struct"

var ErrNotStruct = errors.New("model must be a struct type")

// Finder loads the model with the given native id. It returns (nil, nil) when
// there is no such model.
type Finder func(ctx context.Context, id string) (any, error)

type model struct {
	typ  reflect.Type
	find Finder
}

type Extension struct {
	log *zap.Logger

	mu     sync.RWMutex
	models map[reflect.Type]*model
	types  map[reflect.Type]*schema.Type
}

var _ types.Extension = (*Extension)(nil)

type Option func(*Extension)

func WithLogger(log *zap.Logger) Option { return func(e *Extension) { e.log = log } }

func New(opts ...Option) *Extension {
	e := &Extension{
		log:    zap.NewNop(),
		models: map[reflect.Type]*model{},
		types:  map[reflect.Type]*schema.Type{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register declares a model. sample is a value or pointer of the struct
// type; find may be nil for models that cannot be refetched by id.
func (e *Extension) Register(sample any, find Finder) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T", ErrNotStruct, sample)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.models[t] = &model{typ: t, find: find}
	return nil
}

func (e *Extension) Prefix() string { return Prefix }

func (e *Extension) Resolve(r types.Resolver, d any) (*schema.Type, error) {
	t, ok := d.(reflect.Type)
	if !ok {
		return nil, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	e.mu.Lock()
	if def, ok := e.types[t]; ok {
		e.mu.Unlock()
		return def, nil
	}
	if _, ok := e.models[t]; !ok {
		e.mu.Unlock()
		return nil, nil
	}
	def := schema.NewType(r.TypeName(Prefix, t.Name()), schema.TypeKindObject, "")
	e.types[t] = def
	e.mu.Unlock()

	idIndex := identifier(t)
	if node := r.NodeInterface(); node != nil && idIndex >= 0 {
		def.AddInterface(node.Name)
		def.AddField(GlobalIDField(def.Name, idIndex))
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _ := tag(f)
		if !f.IsExported() || name == "-" {
			continue
		}
		if i == idIndex && r.NodeInterface() != nil {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			e.log.Warn("Skipping field with unsupported kind",
				zap.String("type", def.Name), zap.String("field", f.Name), zap.Stringer("kind", f.Type.Kind()))
			continue
		}
		ref, err := r.Resolve(f.Type, false)
		if err != nil {
			e.forget(t, def)
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		if name == "" {
			name = f.Name
		}
		def.AddField(schema.NewField(r.FieldName(name), "", ref).SetResolve(Project(i)))
	}
	return def, nil
}

// forget drops def when its fields could not be resolved, unless a Clear
// already replaced it.
func (e *Extension) forget(t reflect.Type, def *schema.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.types[t] == def {
		delete(e.types, t)
	}
}

// Lookup finds the registered model emitted as typeName.
func (e *Extension) Lookup(ctx context.Context, typeName, id string) (any, error) {
	e.mu.RLock()
	var m *model
	for t, def := range e.types {
		if def.Name == typeName {
			m = e.models[t]
			break
		}
	}
	e.mu.RUnlock()
	if m == nil || m.find == nil {
		return nil, nil
	}
	return m.find(ctx, id)
}

func (e *Extension) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = map[reflect.Type]*schema.Type{}
}

// identifier returns the index of the identifier field, or -1.
func identifier(t reflect.Type) int {
	byName := -1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if _, isID := tag(f); isID {
			return i
		}
		if f.Name == "ID" {
			byName = i
		}
	}
	return byName
}

func tag(f reflect.StructField) (name string, isID bool) {
	name, opts, _ := strings.Cut(f.Tag.Get("graphql"), ",")
	for _, opt := range strings.Split(opts, ",") {
		if opt == "id" {
			isID = true
		}
	}
	return name, isID
}

// GlobalIDField is the Node id field of typeName, encoding the identifier
// stored at index.
func GlobalIDField(typeName string, index int) *schema.Field {
	native := Project(index)
	return schema.NewField("id", "ID of the object.", schema.NonNullType(schema.RefTo(schema.IDType))).
		SetResolve(func(ctx context.Context, source any, args map[string]any) (any, error) {
			v, err := native(ctx, source, args)
			if err != nil || v == nil {
				return nil, err
			}
			return relay.ToGlobalID(typeName, fmt.Sprint(v)), nil
		})
}

// Project returns a resolver reading the struct field at index of the source
// object. Nil pointers resolve to nil.
func Project(index int) schema.ResolveFn {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		v := reflect.ValueOf(source)
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || index >= v.NumField() {
			return nil, fmt.Errorf("cannot read field %d of %T", index, source)
		}
		return v.Field(index).Interface(), nil
	}
}
