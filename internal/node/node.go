// Package node resolves Relay global ids to objects through the type
// registry, and provides the node(id:) root field.
package node

import (
	"context"
	"errors"
	"fmt"

	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

var ErrUnknownObjectType = errors.New("object has no registered type")

type Identification struct {
	reg *types.Registry
}

func New(reg *types.Registry) *Identification {
	return &Identification{reg: reg}
}

// ObjectFromID decodes id and looks the object up in the registered
// extensions. Malformed ids and unknown type names give (nil, nil); backend
// failures are returned.
func (n *Identification) ObjectFromID(ctx context.Context, id string) (any, error) {
	typeName, nativeID, err := relay.FromGlobalID(id)
	if err != nil {
		return nil, nil
	}
	return n.reg.Lookup(ctx, typeName, nativeID)
}

// TypeFromObject returns the object type obj was declared with.
func (n *Identification) TypeFromObject(obj any) (*schema.Type, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnknownObjectType)
	}
	ref, err := n.reg.Resolve(n.reg.NativeType(obj), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnknownObjectType, obj, err)
	}
	def := ref.NamedDef()
	if def == nil || def.Kind != schema.TypeKindObject {
		return nil, fmt.Errorf("%w: %T resolves to %s", ErrUnknownObjectType, obj, ref)
	}
	return def, nil
}

// ResolveType names the concrete type of a value returned for an interface
// field. It is the assembler's type resolver.
func (n *Identification) ResolveType(_ context.Context, _ string, value any) (string, error) {
	t, err := n.TypeFromObject(value)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// Field returns the node(id: ID!): Node root field.
func (n *Identification) Field() *schema.Field {
	return schema.NewField("node", "Fetches an object given its ID.", schema.RefTo(relay.NodeInterface())).
		AddArgument(schema.NewInputValue("id", "ID of the object.", schema.NonNullType(schema.RefTo(schema.IDType)))).
		SetAsync(true).
		SetResolve(func(ctx context.Context, _ any, args map[string]any) (any, error) {
			id, _ := args["id"].(string)
			return n.ObjectFromID(ctx, id)
		})
}
