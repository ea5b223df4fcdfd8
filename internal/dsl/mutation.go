package dsl

import (
	"context"
	"fmt"
	"sort"

	naming "github.com/hanpama/opgraph/internal/naming"
	operation "github.com/hanpama/opgraph/internal/operation"
	schema "github.com/hanpama/opgraph/internal/schema"
)

const clientMutationID = "clientMutationId"

// Field is one named output of a mutation.
type Field struct {
	Name string
	Type any
}

// Fields is the ordered output shape of a mutation.
type Fields []Field

// Result is the key/value result a mutation resolve body returns. Keys use
// the declared output names.
type Result map[string]any

// Mutation declares a Relay-style mutation. output is the mutation's shape,
// given as Fields or as a map[string]any of descriptors (emitted in key
// order). The arguments become the fields of a generated <Name>Input type and
// the outputs the fields of <Name>Output, both carrying clientMutationId.
func (o *Operations) Mutation(name string, output any, build func(*Definition)) error {
	shape, err := mutationShape(output)
	if err != nil {
		return fmt.Errorf("mutation %s: %w", name, err)
	}
	def, err := o.define(operation.KindMutation, name, build)
	if err != nil {
		return err
	}

	fieldName := o.reg.FieldName(name)
	typeName := naming.New(true).Type(fieldName, "")

	input := schema.NewType(typeName+"Input", schema.TypeKindInputObject, "Generated input type for "+fieldName)
	args, err := o.inputValues(def.args)
	if err != nil {
		return fmt.Errorf("mutation %s: %w", name, err)
	}
	for _, a := range args {
		input.AddInputField(a)
	}
	input.AddInputField(schema.NewInputValue(clientMutationID, "Unique identifier for client performing mutation",
		schema.NonNullType(schema.RefTo(schema.StringType))))

	out := schema.NewType(typeName+"Output", schema.TypeKindObject, "Generated output type for "+fieldName)
	for _, f := range shape {
		ref, err := o.reg.Resolve(f.Type, false)
		if err != nil {
			return fmt.Errorf("mutation %s output %s: %w", name, f.Name, err)
		}
		out.AddField(schema.NewField(o.reg.FieldName(f.Name), "", ref))
	}
	out.AddField(schema.NewField(clientMutationID, "Unique identifier for client performing mutation",
		schema.RefTo(schema.StringType)))

	ret := schema.RefTo(out)
	field := schema.NewField(fieldName, def.description, ret).
		AddArgument(schema.NewInputValue("input", "", schema.NonNullType(schema.RefTo(input)))).
		SetAsync(true)
	if def.deprecation != nil {
		field.Deprecate(*def.deprecation)
	}

	field.SetResolve(func(ctx context.Context, source any, raw map[string]any) (any, error) {
		in, _ := raw["input"].(map[string]any)
		oc := operation.New(ctx, operation.KindMutation, name, fieldName, ret, source, o.declared(def.args, in))
		oc.ClientMutationID, _ = in[clientMutationID].(string)
		return o.invoke(oc, func(oc *operation.Context) (any, error) {
			v, err := def.resolve(oc)
			if err != nil {
				return nil, err
			}
			return o.mutationResult(oc, v)
		})
	})
	return o.asm.AddMutation(field)
}

func mutationShape(output any) (Fields, error) {
	switch v := output.(type) {
	case Fields:
		return v, nil
	case []Field:
		return v, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		shape := make(Fields, len(keys))
		for i, k := range keys {
			shape[i] = Field{Name: k, Type: v[k]}
		}
		return shape, nil
	}
	return nil, fmt.Errorf("%w: Mutations must be specified with key/value results, got %T", ErrInvalidMutationShape, output)
}

// mutationResult re-keys the body's result to emitted field names and echoes
// the client mutation id.
func (o *Operations) mutationResult(oc *operation.Context, v any) (map[string]any, error) {
	var m map[string]any
	switch r := v.(type) {
	case nil:
	case map[string]any:
		m = r
	case Result:
		m = r
	default:
		return nil, fmt.Errorf("mutation %s returned %T, want a key/value result", oc.Name, v)
	}
	out := make(map[string]any, len(m)+1)
	for k, val := range m {
		out[o.reg.FieldName(k)] = val
	}
	out[clientMutationID] = oc.ClientMutationID
	return out, nil
}
