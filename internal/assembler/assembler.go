// Package assembler collects root operation fields and builds the executable
// schema from them.
//
// The built Instance is cached until the next registration or Clear, so
// concurrent requests share one schema and executor without locking.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	executor "github.com/hanpama/opgraph/internal/executor"
	introspection "github.com/hanpama/opgraph/internal/introspection"
	language "github.com/hanpama/opgraph/internal/language"
	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
)

var (
	ErrDuplicateOperationName = errors.New("duplicate operation name")
	ErrDuplicateTypeName      = errors.New("duplicate type name")
)

const (
	QueryTypeName    = "Query"
	MutationTypeName = "Mutation"
)

// TypeResolver returns the concrete object type name of value for an
// interface or union type.
type TypeResolver func(ctx context.Context, abstractType string, value any) (string, error)

// Instance is an immutable built schema together with the executor serving
// it. Schema excludes the introspection types.
type Instance struct {
	Schema   *schema.Schema
	Executor *executor.Executor
}

type Assembler struct {
	nodeField     *schema.Field
	typeResolver  TypeResolver
	maxDepth      int
	introspection bool
	log           *zap.Logger

	mu        sync.Mutex
	queries   []*schema.Field
	mutations []*schema.Field
	instance  atomic.Pointer[Instance]
}

type Option func(*Assembler)

// WithNodeField appends f to the query root of every built schema.
func WithNodeField(f *schema.Field) Option { return func(a *Assembler) { a.nodeField = f } }

func WithTypeResolver(fn TypeResolver) Option { return func(a *Assembler) { a.typeResolver = fn } }

// WithMaxDepth rejects operations nested deeper than n fields. 0 disables the
// check.
func WithMaxDepth(n int) Option { return func(a *Assembler) { a.maxDepth = n } }

func WithIntrospection(enabled bool) Option { return func(a *Assembler) { a.introspection = enabled } }

func WithLogger(log *zap.Logger) Option { return func(a *Assembler) { a.log = log } }

func New(opts ...Option) *Assembler {
	a := &Assembler{introspection: true, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assembler) AddQuery(f *schema.Field) error {
	return a.add(&a.queries, QueryTypeName, f)
}

func (a *Assembler) AddMutation(f *schema.Field) error {
	return a.add(&a.mutations, MutationTypeName, f)
}

func (a *Assembler) add(list *[]*schema.Field, root string, f *schema.Field) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range *list {
		if existing.Name == f.Name {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateOperationName, root, f.Name)
		}
	}
	if root == QueryTypeName && a.nodeField != nil && a.nodeField.Name == f.Name {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateOperationName, root, f.Name)
	}
	*list = append(*list, f)
	a.instance.Store(nil)
	return nil
}

// Clear drops every registered operation.
func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries, a.mutations = nil, nil
	a.instance.Store(nil)
}

// Instance returns the cached schema instance, building it first when a
// registration invalidated it.
func (a *Assembler) Instance() (*Instance, error) {
	if inst := a.instance.Load(); inst != nil {
		return inst, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if inst := a.instance.Load(); inst != nil {
		return inst, nil
	}
	inst, err := a.build()
	if err != nil {
		return nil, err
	}
	a.instance.Store(inst)
	return inst, nil
}

func (a *Assembler) build() (*Instance, error) {
	s := schema.NewSchema("")
	var roots []*schema.Type

	queries := a.queries
	if a.nodeField != nil {
		queries = append(append([]*schema.Field(nil), queries...), a.nodeField)
	}
	if len(queries) > 0 {
		q := schema.NewType(QueryTypeName, schema.TypeKindObject, "Root query for this schema")
		q.Fields = queries
		roots = append(roots, q)
		s.SetQueryType(QueryTypeName)
	}
	if len(a.mutations) > 0 {
		m := schema.NewType(MutationTypeName, schema.TypeKindObject, "Root mutation for this schema")
		m.Fields = append([]*schema.Field(nil), a.mutations...)
		roots = append(roots, m)
		s.SetMutationType(MutationTypeName)
	}

	c := &collector{types: map[string]*schema.Type{}, abstract: map[string]*schema.Type{}}
	for name, t := range s.Types {
		c.types[name] = t
	}
	for _, root := range roots {
		if err := c.add(root); err != nil {
			return nil, err
		}
	}
	if err := c.addInterfaces(); err != nil {
		return nil, err
	}
	for _, t := range c.types {
		s.AddType(t)
	}

	a.log.Debug("Built schema", zap.Int("types", len(s.Types)),
		zap.Int("queries", len(a.queries)), zap.Int("mutations", len(a.mutations)))

	rt := &runtime{schema: s, typeResolver: a.typeResolver, log: a.log}
	var (
		execRuntime executor.Runtime = rt
		execSchema                   = s
	)
	if a.introspection {
		w := introspection.Wrap(rt, s)
		execRuntime, execSchema = w.Runtime, w.Schema
	}
	execOpts := []executor.Option{executor.WithMaxDepth(a.maxDepth)}
	if v, err := language.LoadValidationSchema("schema.graphql", schema.Render(s)); err != nil {
		a.log.Warn("Schema is not valid GraphQL, documents will run unvalidated", zap.Error(err))
	} else {
		execOpts = append(execOpts, executor.WithValidation(v))
	}
	exec := executor.NewExecutor(execRuntime, execSchema, execOpts...)
	return &Instance{Schema: s, Executor: exec}, nil
}

// collector gathers every named type reachable from the roots.
type collector struct {
	types map[string]*schema.Type
	// copies of interface definitions, so possible types of one schema do
	// not leak into shared definitions
	abstract map[string]*schema.Type
}

func (c *collector) add(t *schema.Type) error {
	if existing, ok := c.types[t.Name]; ok {
		if existing != t && c.abstract[t.Name] != t {
			return fmt.Errorf("%w: %s", ErrDuplicateTypeName, t.Name)
		}
		return nil
	}
	if t.Kind == schema.TypeKindInterface || t.Kind == schema.TypeKindUnion {
		cp := *t
		cp.PossibleTypes = append([]string(nil), t.PossibleTypes...)
		c.abstract[t.Name] = t
		c.types[t.Name] = &cp
	} else {
		c.types[t.Name] = t
	}

	for _, f := range t.Fields {
		if err := c.addRef(f.Type); err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
		}
		for _, arg := range f.Arguments {
			if err := c.addRef(arg.Type); err != nil {
				return fmt.Errorf("%s.%s(%s): %w", t.Name, f.Name, arg.Name, err)
			}
		}
	}
	for _, f := range t.InputFields {
		if err := c.addRef(f.Type); err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
		}
	}
	return nil
}

func (c *collector) addRef(ref *schema.TypeRef) error {
	def := ref.NamedDef()
	if def == nil {
		name := ref.GetNamedType()
		if _, ok := c.types[name]; ok {
			return nil
		}
		return fmt.Errorf("reference to %s carries no definition", name)
	}
	return c.add(def)
}

// addInterfaces makes sure every implemented interface is part of the schema
// and records the implementations on it.
func (c *collector) addInterfaces() error {
	objects := make([]*schema.Type, 0, len(c.types))
	for _, t := range c.types {
		if t.Kind == schema.TypeKindObject {
			objects = append(objects, t)
		}
	}
	for _, obj := range objects {
		for _, name := range obj.Interfaces {
			if _, ok := c.types[name]; !ok {
				if name != relay.NodeInterfaceName {
					return fmt.Errorf("%s implements undefined interface %s", obj.Name, name)
				}
				if err := c.add(relay.NodeInterface()); err != nil {
					return err
				}
			}
			c.types[name].AddPossibleType(obj.Name)
		}
	}
	for _, t := range c.types {
		if t.Kind == schema.TypeKindInterface {
			sort.Strings(t.PossibleTypes)
		}
	}
	return nil
}
