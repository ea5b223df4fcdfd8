// Package dsl declares query and mutation operations.
//
// An Operations value plays the role of an operation class: it owns one
// callback chain, and every query or mutation declared through it runs that
// chain around its resolve body.
//
//	ops := dsl.New(reg, asm)
//	ops.Callbacks().Before(requireUser, callbacks.Except("version"))
//	err := ops.Query("find_cats", []any{reflect.TypeOf(Cat{})}, func(d *dsl.Definition) {
//		d.Description("This query returns a list of Cat models")
//		d.Argument("age", reflect.TypeOf(0), dsl.Required)
//		d.Resolve(func(oc *operation.Context) (any, error) {
//			age, _ := oc.Arg("age")
//			return store.FindCats(oc.Context(), age.(int))
//		})
//	})
package dsl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	assembler "github.com/hanpama/opgraph/internal/assembler"
	callbacks "github.com/hanpama/opgraph/internal/callbacks"
	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
	logging "github.com/hanpama/opgraph/internal/logging"
	operation "github.com/hanpama/opgraph/internal/operation"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

var (
	ErrInvalidMutationShape = errors.New("invalid mutation shape")
	ErrMissingResolver      = errors.New("missing resolve body")
)

type Operations struct {
	reg   *types.Registry
	asm   *assembler.Assembler
	chain *callbacks.Chain
	log   *zap.Logger
}

type Option func(*Operations)

func WithLogger(log *zap.Logger) Option { return func(o *Operations) { o.log = log } }

// WithCallbacks shares an existing chain instead of creating a new one.
func WithCallbacks(c *callbacks.Chain) Option { return func(o *Operations) { o.chain = c } }

func New(reg *types.Registry, asm *assembler.Assembler, opts ...Option) *Operations {
	o := &Operations{reg: reg, asm: asm, log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.chain == nil {
		o.chain = callbacks.New()
	}
	return o
}

func (o *Operations) Callbacks() *callbacks.Chain { return o.chain }

// Definition collects the declaration of one operation.
type Definition struct {
	name        string
	description string
	deprecation *string
	args        []argument
	resolve     callbacks.Body
}

type argument struct {
	name        string
	typ         any
	required    bool
	description string
	def         any
}

func (d *Definition) Description(s string) { d.description = s }

// Deprecated marks the operation's field as deprecated.
func (d *Definition) Deprecated(reason string) { d.deprecation = &reason }

func (d *Definition) Argument(name string, typ any, opts ...ArgOption) {
	a := argument{name: name, typ: typ}
	for _, opt := range opts {
		opt(&a)
	}
	d.args = append(d.args, a)
}

func (d *Definition) Resolve(fn func(oc *operation.Context) (any, error)) { d.resolve = fn }

type ArgOption func(*argument)

// Required makes an argument Non-Null.
var Required ArgOption = func(a *argument) { a.required = true }

func DefaultValue(v any) ArgOption { return func(a *argument) { a.def = v } }

func ArgDescription(s string) ArgOption { return func(a *argument) { a.description = s } }

func (o *Operations) define(kind operation.Kind, name string, build func(*Definition)) (*Definition, error) {
	def := &Definition{name: name}
	if build != nil {
		build(def)
	}
	if def.resolve == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrMissingResolver, kind, name)
	}
	o.log.Debug("Adding "+string(kind), zap.String("field", o.reg.FieldName(name)))
	return def, nil
}

// Query declares a query field returning typ, which may be any descriptor
// the registry resolves.
func (o *Operations) Query(name string, typ any, build func(*Definition)) error {
	def, err := o.define(operation.KindQuery, name, build)
	if err != nil {
		return err
	}
	ret, err := o.reg.Resolve(typ, false)
	if err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	field := schema.NewField(o.reg.FieldName(name), def.description, ret).SetAsync(true)
	args, err := o.inputValues(def.args)
	if err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	field.Arguments = args
	if def.deprecation != nil {
		field.Deprecate(*def.deprecation)
	}

	field.SetResolve(func(ctx context.Context, source any, raw map[string]any) (any, error) {
		oc := operation.New(ctx, operation.KindQuery, name, field.Name, ret, source, o.declared(def.args, raw))
		return o.invoke(oc, def.resolve)
	})
	return o.asm.AddQuery(field)
}

func (o *Operations) inputValues(args []argument) ([]*schema.InputValue, error) {
	out := make([]*schema.InputValue, 0, len(args))
	for _, a := range args {
		ref, err := o.reg.Resolve(a.typ, a.required)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.name, err)
		}
		out = append(out, schema.NewInputValue(o.reg.FieldName(a.name), a.description, ref).SetDefault(a.def))
	}
	return out, nil
}

// declared re-keys coerced arguments from their emitted names to the names
// the operation declared them with.
func (o *Operations) declared(args []argument, raw map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for _, a := range args {
		if v, ok := raw[o.reg.FieldName(a.name)]; ok {
			out[a.name] = v
		}
	}
	return out
}

// invoke is the resolver boundary: it runs the callback chain around body
// and decides what the client gets to see of a failure.
func (o *Operations) invoke(oc *operation.Context, body callbacks.Body) (result any, err error) {
	ctx := oc.Context()
	id := uuid.NewString()
	start := time.Now()
	eventbus.Publish(ctx, events.OperationStart{ID: id, Kind: string(oc.Kind), Name: oc.Name, Field: oc.Field})

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("panic: %v", p)
		}
		internal := false
		if err != nil {
			var opErr *operation.Error
			if !errors.As(err, &opErr) {
				logging.Exception(logging.WithRequest(ctx, o.log), "Unexpected exception during "+string(oc.Kind), err,
					zap.String("operation", oc.Name))
				err, internal = operation.ErrInternal, true
			} else {
				err = opErr
			}
		}
		eventbus.Publish(ctx, events.OperationFinish{
			ID: id, Kind: string(oc.Kind), Name: oc.Name, Field: oc.Field,
			Err: err, Internal: internal, Duration: time.Since(start),
		})
	}()

	return o.chain.Run(oc, body)
}
