package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNullPropagation(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		resolvers map[string]resolverFunc
		want      *ExecutionResult
	}{
		{
			name:      "nullable field error",
			query:     `{ maybe { name } }`,
			resolvers: map[string]resolverFunc{"Query.maybe": failing("boom")},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": nil},
				Errors: []GraphQLError{{Message: "boom", Path: Path{"maybe"}}},
			},
		},
		{
			name:      "null non-null child nulls its object",
			query:     `{ maybe { id name } }`,
			resolvers: map[string]resolverFunc{"Query.maybe": fixed(map[string]any{"id": "1"})},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": nil},
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field maybe.name", Path: Path{"maybe", "name"}}},
			},
		},
		{
			name:  "non-null root field nulls data",
			query: `{ version pet { name } }`,
			resolvers: map[string]resolverFunc{
				"Query.version": fixed("1.0"),
				"Query.pet":     failing("gone"),
			},
			want: &ExecutionResult{Errors: []GraphQLError{{Message: "gone", Path: Path{"pet"}}}},
		},
		{
			name:  "null list item",
			query: `{ maybe { name tags } }`,
			resolvers: map[string]resolverFunc{
				"Query.maybe": fixed(map[string]any{"name": "Rex", "tags": []any{"a", nil}}),
			},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": map[string]any{"name": "Rex", "tags": nil}},
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field maybe.tags.[1]", Path: Path{"maybe", "tags", 1}}},
			},
		},
		{
			name:  "async non-null field nulls nearest nullable ancestor",
			query: `{ pet { name owner { name strict { name } } } }`,
			resolvers: map[string]resolverFunc{
				"Query.pet": fixed(map[string]any{"id": "1", "name": "Rex", "owner": map[string]any{
					"name":   "Ann",
					"strict": []any{map[string]any{"id": "2"}},
				}}),
			},
			want: &ExecutionResult{
				Data: map[string]any{"pet": map[string]any{"name": "Rex", "owner": nil}},
				Errors: []GraphQLError{{
					Message: "Cannot return null for non-nullable field pet.owner.strict.[0].name",
					Path:    Path{"pet", "owner", "strict", 0, "name"},
				}},
			},
		},
		{
			name:  "async non-null field nulls its list item",
			query: `{ pets { name best { name } } }`,
			resolvers: map[string]resolverFunc{
				"Query.pets": fixed([]any{
					map[string]any{"id": "1", "name": "Rex", "best": map[string]any{"name": "Tom"}},
					map[string]any{"id": "2", "name": "Tom"},
				}),
			},
			want: &ExecutionResult{
				Data: map[string]any{"pets": []any{
					map[string]any{"name": "Rex", "best": map[string]any{"name": "Tom"}},
					nil,
				}},
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field pets.[1].best", Path: Path{"pets", 1, "best"}}},
			},
		},
		{
			name:  "failing async non-null field under non-null root",
			query: `{ pet { name best { name } } }`,
			resolvers: map[string]resolverFunc{
				"Query.pet": fixed(rex()),
				"Pet.best":  failing("lost"),
			},
			want: &ExecutionResult{Errors: []GraphQLError{{Message: "lost", Path: Path{"pet", "best"}}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, petSchema(), newFakeRuntime(tc.resolvers), tc.query, nil)
			if diff := cmp.Diff(tc.want, res); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNulledSubtreeIsNotResolved(t *testing.T) {
	rt := newFakeRuntime(map[string]resolverFunc{
		"Query.maybe": fixed(map[string]any{"id": "1", "friend": rex()}),
	})
	res := execute(t, petSchema(), rt, `{ maybe { friend { name } name } }`, nil)

	assert.Equal(t, map[string]any{"maybe": nil}, res.Data)
	_, batches := rt.calls()
	assert.Equal(t, [][]string{{"Query.maybe"}}, batches)
}

func TestSiblingNullingInOneBatch(t *testing.T) {
	// strict and pets share a batch; strict nulls owner first
	rt := newFakeRuntime(map[string]resolverFunc{
		"Query.owner": fixed(map[string]any{"name": "Ann"}),
		"Owner.strict": func(context.Context, any, map[string]any) (any, error) {
			return nil, errors.New("strict failed")
		},
		"Owner.pets": fixed([]any{rex()}),
	})
	res := execute(t, petSchema(), rt, `{ owner { strict { name } pets { name } } }`, nil)

	want := &ExecutionResult{
		Data:   map[string]any{"owner": nil},
		Errors: []GraphQLError{{Message: "strict failed", Path: Path{"owner", "strict"}}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestLeafSerialization(t *testing.T) {
	serialize := func(typeName string, v any) (any, error) {
		switch typeName {
		case "Kind":
			if s := v.(string); s == "CAT" || s == "DOG" {
				return s, nil
			}
			return nil, fmt.Errorf("Kind cannot represent %q", v)
		case "String":
			if v == "" {
				return nil, nil
			}
		}
		return v, nil
	}

	cases := []struct {
		name  string
		query string
		value map[string]any
		want  *ExecutionResult
	}{
		{
			name:  "enum",
			query: `{ maybe { kind } }`,
			value: map[string]any{"kind": "DOG"},
			want:  &ExecutionResult{Data: map[string]any{"maybe": map[string]any{"kind": "DOG"}}},
		},
		{
			name:  "serialization error",
			query: `{ maybe { kind } }`,
			value: map[string]any{"kind": "BIRD"},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": map[string]any{"kind": nil}},
				Errors: []GraphQLError{{Message: `Kind cannot represent "BIRD"`, Path: Path{"maybe", "kind"}}},
			},
		},
		{
			name:  "serialized to null in non-null position",
			query: `{ maybe { name } }`,
			value: map[string]any{"name": ""},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": nil},
				Errors: []GraphQLError{{Message: "Cannot return null for non-nullable field maybe.name", Path: Path{"maybe", "name"}}},
			},
		},
		{
			name:  "not a list",
			query: `{ maybe { tags } }`,
			value: map[string]any{"tags": "indoor"},
			want: &ExecutionResult{
				Data:   map[string]any{"maybe": map[string]any{"tags": nil}},
				Errors: []GraphQLError{{Message: "Expected list value, got string", Path: Path{"maybe", "tags"}}},
			},
		},
		{
			name:  "typed slice",
			query: `{ maybe { tags } }`,
			value: map[string]any{"tags": []string{"indoor", "calm"}},
			want:  &ExecutionResult{Data: map[string]any{"maybe": map[string]any{"tags": []any{"indoor", "calm"}}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime(map[string]resolverFunc{"Query.maybe": fixed(tc.value)})
			rt.serialize = serialize
			res := execute(t, petSchema(), rt, tc.query, nil)
			if diff := cmp.Diff(tc.want, res); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAbstractTypes(t *testing.T) {
	cases := []struct {
		name  string
		query string
		thing any
		want  *ExecutionResult
	}{
		{
			name:  "union member",
			query: `{ thing { __typename ... on Owner { name } ... on Pet { id } } }`,
			thing: map[string]any{"__typename": "Owner", "name": "Ann"},
			want:  &ExecutionResult{Data: map[string]any{"thing": map[string]any{"__typename": "Owner", "name": "Ann"}}},
		},
		{
			name:  "unresolvable",
			query: `{ thing { __typename } }`,
			thing: "plain",
			want: &ExecutionResult{
				Data:   map[string]any{"thing": nil},
				Errors: []GraphQLError{{Message: "cannot resolve Thing for string", Path: Path{"thing"}}},
			},
		},
		{
			name:  "resolved to a non-object type",
			query: `{ thing { __typename } }`,
			thing: map[string]any{"__typename": "Node"},
			want: &ExecutionResult{
				Data:   map[string]any{"thing": nil},
				Errors: []GraphQLError{{Message: "Abstract type Thing must resolve to an Object type at runtime. Got: Node", Path: Path{"thing"}}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime(map[string]resolverFunc{"Query.thing": fixed(tc.thing)})
			res := execute(t, petSchema(), rt, tc.query, nil)
			if diff := cmp.Diff(tc.want, res); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("interface fragments", func(t *testing.T) {
		rt := newFakeRuntime(map[string]resolverFunc{"Query.node": fixed(rex())})
		res := execute(t, petSchema(), rt, `
			query {
				node {
					... on Node { id }
					... on Pet { name }
					...Other
				}
			}
			fragment Other on Query { version }
		`, nil)
		want := &ExecutionResult{Data: map[string]any{"node": map[string]any{"id": "1", "name": "Rex"}}}
		if diff := cmp.Diff(want, res); diff != "" {
			t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
		}
	})
}
