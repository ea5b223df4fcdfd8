package types

import (
	"context"

	schema "github.com/hanpama/opgraph/internal/schema"
)

// Extension teaches the registry about the native types of one backing store.
//
// Resolve returns (nil, nil) for descriptors the extension does not handle, and
// Lookup returns (nil, nil) when it has no object for the given type name and
// id. Extensions must cache the types they emit, inserting a type into the
// cache before resolving its fields so that cyclic model graphs terminate.
type Extension interface {
	// Prefix is the short tag prepended to type names when more than one
	// extension is registered.
	Prefix() string
	Resolve(r Resolver, descriptor any) (*schema.Type, error)
	Lookup(ctx context.Context, typeName, id string) (any, error)
	// Clear drops the extension's cached types.
	Clear()
}

// ObjectTyper is implemented by extensions whose objects do not carry their
// schema type in their Go type (dynamic messages, generic documents). It maps
// an object back to the descriptor the extension resolved it from.
type ObjectTyper interface {
	NativeType(obj any) (descriptor any, ok bool)
}

// Resolver is the view of the registry handed to extensions while they build
// a type. Nested descriptors must be resolved through it.
type Resolver interface {
	Resolve(descriptor any, required bool) (*schema.TypeRef, error)
	// TypeName returns the emitted name for a type declared by the extension
	// with the given prefix.
	TypeName(prefix, name string) string
	FieldName(name string) string
	// NodeInterface returns the Node interface when global ids are enabled,
	// nil otherwise.
	NodeInterface() *schema.Type
}
