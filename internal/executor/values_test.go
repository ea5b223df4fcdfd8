package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/opgraph/internal/schema"
)

func TestCoerceValue(t *testing.T) {
	kind := schema.NewType("Kind", schema.TypeKindEnum, "")
	kind.AddEnumValue(schema.NewEnumValue("CAT", ""))

	cases := []struct {
		name  string
		typ   *schema.TypeRef
		value any
		want  any
		err   string
	}{
		{name: "int from JSON number", typ: named("Int"), value: float64(3), want: 3},
		{name: "fractional int", typ: named("Int"), value: 2.5, err: "cannot coerce 2.5 (float64) to int"},
		{name: "int out of range", typ: named("Int"), value: int64(1) << 40, err: "1099511627776 is not a 32-bit signed integer"},
		{name: "int from string", typ: named("Int"), value: "3", err: "cannot coerce 3 (string) to int"},
		{name: "float from int", typ: named("Float"), value: 2, want: 2.0},
		{name: "id from number", typ: named("ID"), value: 12, want: "12"},
		{name: "boolean from string", typ: named("Boolean"), value: "true", err: "cannot coerce true (string) to boolean"},
		{name: "string from int", typ: named("String"), value: 3, err: "cannot coerce 3 (int) to string"},
		{name: "string from object", typ: nonNull(named("String")), value: map[string]any{"a": 1}, err: "cannot coerce map[a:1] (map[string]interface {}) to string"},
		{name: "null", typ: named("String"), value: nil, want: nil},
		{name: "null for non-null", typ: nonNull(named("String")), value: nil, err: "cannot provide null for non-null type"},
		{name: "single value as list", typ: list(named("Int")), value: 4, want: []any{4}},
		{name: "list item", typ: list(nonNull(named("Int"))), value: []any{1, nil}, err: "cannot provide null for non-null type"},
		{name: "enum", typ: schema.RefTo(kind), value: "CAT", want: "CAT"},
		{name: "unknown enum value", typ: schema.RefTo(kind), value: "DOG", err: `value "DOG" does not exist in enum Kind`},
		{name: "custom scalar", typ: named("DateTime"), value: "2024-01-01", want: "2024-01-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerceValue(nil, tc.value, tc.typ)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func paintSchema() *schema.Schema {
	sch := schema.NewSchema("")
	color := schema.NewType("Color", schema.TypeKindEnum, "")
	color.AddEnumValue(schema.NewEnumValue("RED", "")).AddEnumValue(schema.NewEnumValue("BLUE", ""))
	input := schema.NewType("PaintInput", schema.TypeKindInputObject, "")
	input.AddInputField(schema.NewInputValue("color", "", nonNull(schema.RefTo(color))))
	input.AddInputField(schema.NewInputValue("coats", "", named("Int")).SetDefault(1))
	target := schema.NewType("Target", schema.TypeKindInputObject, "").SetOneOf(true)
	target.AddInputField(schema.NewInputValue("wall", "", named("ID")))
	target.AddInputField(schema.NewInputValue("door", "", named("ID")))
	query := newObjectType("Query",
		field("paint", named("String")).
			AddArgument(schema.NewInputValue("input", "", nonNull(schema.RefTo(input)))).
			AddArgument(schema.NewInputValue("target", "", schema.RefTo(target))),
	)
	sch.AddType(color).AddType(input).AddType(target).AddType(query).SetQueryType("Query")
	return sch
}

func TestInputObjects(t *testing.T) {
	var got map[string]any
	rt := newFakeRuntime(map[string]resolverFunc{
		"Query.paint": func(_ context.Context, _ any, args map[string]any) (any, error) {
			got = args
			return "ok", nil
		},
	})
	sch := paintSchema()

	cases := []struct {
		name  string
		query string
		vars  map[string]any
		args  map[string]any
		err   string
	}{
		{
			name:  "literal with default",
			query: `{ paint(input: {color: RED}) }`,
			args:  map[string]any{"input": map[string]any{"color": "RED", "coats": 1}},
		},
		{
			name:  "variables from JSON",
			query: `query($in: PaintInput!) { paint(input: $in) }`,
			vars:  map[string]any{"in": map[string]any{"color": "BLUE", "coats": float64(3)}},
			args:  map[string]any{"input": map[string]any{"color": "BLUE", "coats": 3}},
		},
		{
			name:  "nested variable",
			query: `query($c: Color!) { paint(input: {color: $c, coats: 2}) }`,
			vars:  map[string]any{"c": "RED"},
			args:  map[string]any{"input": map[string]any{"color": "RED", "coats": 2}},
		},
		{
			name:  "one of",
			query: `{ paint(input: {color: RED}, target: {door: 7}) }`,
			args: map[string]any{
				"input":  map[string]any{"color": "RED", "coats": 1},
				"target": map[string]any{"door": "7"},
			},
		},
		{
			name:  "unknown enum value",
			query: `query($in: PaintInput!) { paint(input: $in) }`,
			vars:  map[string]any{"in": map[string]any{"color": "GREEN"}},
			err:   `value "GREEN" does not exist in enum Color`,
		},
		{
			name:  "unknown input field",
			query: `{ paint(input: {color: RED, gloss: true}) }`,
			err:   `field "gloss" is not defined by type PaintInput`,
		},
		{
			name:  "missing required field",
			query: `{ paint(input: {coats: 2}) }`,
			err:   "required field 'color' of type PaintInput was not provided",
		},
		{
			name:  "one of with two fields",
			query: `{ paint(input: {color: RED}, target: {door: 7, wall: 1}) }`,
			err:   "exactly one field of Target must be provided and non-null",
		},
		{
			name:  "missing required argument",
			query: `{ paint }`,
			err:   "Argument 'input' of required type PaintInput! was not provided",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = nil
			res := execute(t, sch, rt, tc.query, tc.vars)
			if tc.err != "" {
				require.Len(t, res.Errors, 1)
				assert.Contains(t, res.Errors[0].Message, tc.err)
				assert.Nil(t, got)
				return
			}
			require.Empty(t, res.Errors)
			assert.Equal(t, tc.args, got)
		})
	}
}
