// Package types maps native type descriptors onto schema types.
//
// A Registry resolves Go types, list descriptors and extension-specific
// descriptors (proto message descriptors, table models) to *schema.TypeRef
// values. Built-in scalars are seeded at construction; anything an extension
// produces is cached until Clear.
package types

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	naming "github.com/hanpama/opgraph/internal/naming"
	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
)

var (
	ErrInvalidTypeDescriptor = errors.New("invalid type descriptor")
	ErrDuplicatePrefix       = errors.New("duplicate extension prefix")
)

type Registry struct {
	namer     naming.Namer
	log       *zap.Logger
	globalIDs bool

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// snapshot is immutable once published; writers copy and swap it.
type snapshot struct {
	scalars map[reflect.Type]*schema.TypeRef
	cache   map[any]*schema.TypeRef
	exts    []Extension
}

type Option func(*Registry)

func WithNamer(n naming.Namer) Option { return func(r *Registry) { r.namer = n } }

func WithLogger(log *zap.Logger) Option { return func(r *Registry) { r.log = log } }

// WithGlobalIDs controls whether extensions make their object types implement
// Node. Enabled by default.
func WithGlobalIDs(enabled bool) Option { return func(r *Registry) { r.globalIDs = enabled } }

func New(opts ...Option) *Registry {
	r := &Registry{
		namer:     naming.New(true),
		log:       zap.NewNop(),
		globalIDs: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{
		scalars: builtinScalars(),
		cache:   map[any]*schema.TypeRef{},
	})
	return r
}

func (r *Registry) Namer() naming.Namer { return r.namer }

func (r *Registry) GlobalIDs() bool { return r.globalIDs }

// Resolve returns the schema type for descriptor, wrapped in Non-Null when
// required is set. Resolving the same descriptor twice yields the same
// reference until Clear is called.
func (r *Registry) Resolve(descriptor any, required bool) (*schema.TypeRef, error) {
	ref, err := r.resolve(descriptor, r.miss)
	if err != nil {
		return nil, err
	}
	if required {
		return nonNull(ref), nil
	}
	return ref, nil
}

// Lookup asks every extension in registration order for the object with the
// given type name and native id. Unknown type names yield (nil, nil).
func (r *Registry) Lookup(ctx context.Context, typeName, id string) (any, error) {
	for _, ext := range r.snap.Load().exts {
		obj, err := ext.Lookup(ctx, typeName, id)
		if err != nil {
			return nil, fmt.Errorf("%s lookup %s(%s): %w", ext.Prefix(), typeName, id, err)
		}
		if obj != nil {
			return obj, nil
		}
	}
	return nil, nil
}

// NativeType returns the descriptor obj's schema type was resolved from.
func (r *Registry) NativeType(obj any) any {
	for _, ext := range r.snap.Load().exts {
		if typer, ok := ext.(ObjectTyper); ok {
			if d, ok := typer.NativeType(obj); ok {
				return d
			}
		}
	}
	return reflect.TypeOf(obj)
}

// AddExtension appends ext to the resolution order. Once a second extension
// is registered every extension namespaces its type names, so previously
// derived types are dropped and rebuilt on demand.
func (r *Registry) AddExtension(ext Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	for _, e := range cur.exts {
		if e.Prefix() == ext.Prefix() {
			return fmt.Errorf("%w: %q", ErrDuplicatePrefix, ext.Prefix())
		}
	}
	next := &snapshot{
		scalars: cur.scalars,
		cache:   cur.cache,
		exts:    append(append([]Extension(nil), cur.exts...), ext),
	}
	if len(next.exts) == 2 {
		next.cache = map[any]*schema.TypeRef{}
		for _, e := range cur.exts {
			e.Clear()
		}
	}
	r.snap.Store(next)
	return nil
}

// Alias permanently maps native onto the type target resolves to. Aliases
// survive Clear like the built-in scalars.
func (r *Registry) Alias(native reflect.Type, target any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := &locked{r: r, pending: map[any]*schema.TypeRef{}}
	ref, err := l.Resolve(target, false)
	if err != nil {
		return err
	}
	for native.Kind() == reflect.Pointer {
		native = native.Elem()
	}
	cur := r.snap.Load()
	scalars := make(map[reflect.Type]*schema.TypeRef, len(cur.scalars)+1)
	for k, v := range cur.scalars {
		scalars[k] = v
	}
	scalars[native] = ref
	r.snap.Store(&snapshot{scalars: scalars, cache: mergeCache(cur.cache, l.pending), exts: cur.exts})
	return nil
}

// Clear drops every extension-derived type and asks the extensions to drop
// theirs. Scalars and aliases are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	for _, ext := range cur.exts {
		ext.Clear()
	}
	r.snap.Store(&snapshot{scalars: cur.scalars, cache: map[any]*schema.TypeRef{}, exts: cur.exts})
}

// UseNamespaces reports whether type names are prefixed with their
// extension's tag.
func (r *Registry) UseNamespaces() bool { return len(r.snap.Load().exts) > 1 }

func (r *Registry) TypeName(prefix, name string) string {
	if !r.UseNamespaces() {
		prefix = ""
	}
	return r.namer.Type(name, prefix)
}

func (r *Registry) FieldName(name string) string { return r.namer.Field(name) }

func (r *Registry) NodeInterface() *schema.Type {
	if !r.globalIDs {
		return nil
	}
	return relay.NodeInterface()
}

// resolve handles the structural descriptor forms and the scalar table, and
// calls miss for anything that needs an extension.
func (r *Registry) resolve(d any, miss func(any) (*schema.TypeRef, error)) (*schema.TypeRef, error) {
	switch v := d.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidTypeDescriptor)
	case *schema.TypeRef:
		return v, nil
	case *schema.Type:
		return schema.RefTo(v), nil
	case required:
		ref, err := r.resolve(v.of, miss)
		if err != nil {
			return nil, err
		}
		return nonNull(ref), nil
	case []any:
		if len(v) != 1 {
			return nil, fmt.Errorf("%w: Lists must be specified with single-element arrays", ErrInvalidTypeDescriptor)
		}
		elem, err := r.resolve(v[0], miss)
		if err != nil {
			return nil, err
		}
		return schema.ListType(elem), nil
	case reflect.Type:
		return r.resolveNative(v, miss)
	}
	return r.cached(d, miss)
}

func (r *Registry) resolveNative(t reflect.Type, miss func(any) (*schema.TypeRef, error)) (*schema.TypeRef, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	scalars := r.snap.Load().scalars
	if ref, ok := scalars[t]; ok {
		return ref, nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return scalars[reflect.TypeOf("")], nil
		}
		elem, err := r.resolveNative(t.Elem(), miss)
		if err != nil {
			return nil, err
		}
		return schema.ListType(elem), nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("%w: %s values cannot be exposed", ErrInvalidTypeDescriptor, t.Kind())
	}
	if ref, ok := scalarByKind(scalars, t); ok {
		return ref, nil
	}
	return r.cached(t, miss)
}

func (r *Registry) cached(d any, miss func(any) (*schema.TypeRef, error)) (*schema.TypeRef, error) {
	if key, ok := cacheKey(d); ok {
		if ref, ok := r.snap.Load().cache[key]; ok {
			return ref, nil
		}
	}
	return miss(d)
}

// miss resolves d through the extensions while holding the write lock and
// publishes everything derived along the way.
func (r *Registry) miss(d any) (*schema.TypeRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := &locked{r: r, pending: map[any]*schema.TypeRef{}}
	ref, err := l.miss(d)
	if err != nil {
		return nil, err
	}
	if len(l.pending) > 0 {
		cur := r.snap.Load()
		r.snap.Store(&snapshot{scalars: cur.scalars, cache: mergeCache(cur.cache, l.pending), exts: cur.exts})
	}
	return ref, nil
}

// locked is the Resolver handed to extensions during a miss. Nested
// resolutions reuse the held lock and collect their results in pending.
type locked struct {
	r       *Registry
	pending map[any]*schema.TypeRef
}

func (l *locked) Resolve(descriptor any, required bool) (*schema.TypeRef, error) {
	ref, err := l.r.resolve(descriptor, l.miss)
	if err != nil {
		return nil, err
	}
	if required {
		return nonNull(ref), nil
	}
	return ref, nil
}

func (l *locked) TypeName(prefix, name string) string { return l.r.TypeName(prefix, name) }
func (l *locked) FieldName(name string) string        { return l.r.FieldName(name) }
func (l *locked) NodeInterface() *schema.Type         { return l.r.NodeInterface() }

func (l *locked) miss(d any) (*schema.TypeRef, error) {
	key, cacheable := cacheKey(d)
	if cacheable {
		if ref, ok := l.pending[key]; ok {
			return ref, nil
		}
		if ref, ok := l.r.snap.Load().cache[key]; ok {
			return ref, nil
		}
	}
	for _, ext := range l.r.snap.Load().exts {
		def, err := ext.Resolve(l, d)
		if err != nil {
			return nil, fmt.Errorf("%s extension: %w", ext.Prefix(), err)
		}
		if def == nil {
			continue
		}
		if !cacheable {
			return schema.RefTo(def), nil
		}
		// a cyclic resolution may already have recorded the same definition
		if ref, ok := l.pending[key]; ok && ref.Def == def {
			return ref, nil
		}
		ref := schema.RefTo(def)
		l.pending[key] = ref
		return ref, nil
	}
	l.r.log.Warn("Unable to resolve type", zap.String("descriptor", fmt.Sprint(d)))
	return l.r.snap.Load().scalars[reflect.TypeOf("")], nil
}

func cacheKey(d any) (any, bool) {
	if d == nil || !reflect.TypeOf(d).Comparable() {
		return nil, false
	}
	return d, true
}

func mergeCache(base, added map[any]*schema.TypeRef) map[any]*schema.TypeRef {
	if len(added) == 0 {
		return base
	}
	out := make(map[any]*schema.TypeRef, len(base)+len(added))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range added {
		out[k] = v
	}
	return out
}

func nonNull(ref *schema.TypeRef) *schema.TypeRef {
	if ref.IsNonNull() {
		return ref
	}
	return schema.NonNullType(ref)
}
