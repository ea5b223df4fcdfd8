// Package operation holds the per-invocation state of a query or mutation
// resolver and the domain error type whose message reaches clients.
package operation

import (
	"context"
	"errors"
	"fmt"

	schema "github.com/hanpama/opgraph/internal/schema"
)

type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Context is created for one resolver invocation and discarded afterwards.
// It is owned by the goroutine running the invocation.
type Context struct {
	Kind Kind
	// Name is the operation name as declared; Field is the emitted field name.
	Name  string
	Field string
	// DeclaredType is the return type the operation was declared with. For
	// mutations it is the generated output type.
	DeclaredType *schema.TypeRef
	// Receiver is the parent value the field is resolved on (nil for roots).
	Receiver  any
	Arguments map[string]any
	// Ambient carries values supplied by the transport, such as the current
	// user or request headers.
	Ambient          map[string]any
	ClientMutationID string

	ctx     context.Context
	scratch map[string]any
}

func New(ctx context.Context, kind Kind, name, field string, declared *schema.TypeRef, receiver any, args map[string]any) *Context {
	if args == nil {
		args = map[string]any{}
	}
	return &Context{
		Kind:         kind,
		Name:         name,
		Field:        field,
		DeclaredType: declared,
		Receiver:     receiver,
		Arguments:    args,
		Ambient:      AmbientFrom(ctx),
		ctx:          ctx,
	}
}

// Context returns the Go context of the request being executed.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Arg returns the argument called name and whether it was supplied.
func (c *Context) Arg(name string) (any, bool) {
	v, ok := c.Arguments[name]
	return v, ok
}

// Set stores a value for later hooks of the same invocation.
func (c *Context) Set(key string, value any) {
	if c.scratch == nil {
		c.scratch = map[string]any{}
	}
	c.scratch[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.scratch[key]
	return v, ok
}

type ambientKey struct{}

// WithAmbient attaches the transport's ambient values to ctx.
func WithAmbient(ctx context.Context, ambient map[string]any) context.Context {
	return context.WithValue(ctx, ambientKey{}, ambient)
}

// AmbientFrom returns the ambient values attached to ctx, never nil.
func AmbientFrom(ctx context.Context) map[string]any {
	if ctx != nil {
		if m, ok := ctx.Value(ambientKey{}).(map[string]any); ok && m != nil {
			return m
		}
	}
	return map[string]any{}
}

// ErrInternal replaces failures whose details must not reach the client.
var ErrInternal = errors.New("Internal error")

// Error is a failure whose message is safe to show to the client.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Errorf formats a client-visible error message.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a client-visible error with message that keeps err for
// logging and errors.Is.
func Wrap(err error, message string) *Error {
	return &Error{Message: message, Err: err}
}
