package executor

import (
	"context"
)

// Runtime is the host side of execution: it resolves fields, resolves the
// concrete type of interface values and serializes leaves.
//
// The Executor works depth by depth. Sync fields (schema.Field.Async false)
// go through ResolveSync as soon as they are reached; async fields found at
// the same depth are handed to BatchResolveAsync in one call, and the next
// depth starts once that call returns.
//
// Errors returned from any method become located GraphQL errors. A failing
// Non-Null field nulls its nearest nullable ancestor.
//
// Implementations must be safe for concurrent use by different requests and
// must not mutate source or args.
type Runtime interface {
	// ResolveSync returns the raw value of a sync field. source is the parent
	// object (nil on roots) and args are already coerced.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves every async field task of one depth. It must
	// return one result per task, in task order; a failure of one task does
	// not fail the others.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType returns the object type name of value, which was returned
	// for the interface or union abstractType.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue converts a scalar or enum value to a JSON-safe Go
	// value. Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	ObjectType string
	Field      string
	// Source is the parent object value (nil for root fields).
	Source any
	Args   map[string]any
}

type AsyncResolveResult struct {
	Value any
	Error error
}
