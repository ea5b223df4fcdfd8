package introspection

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/opgraph/internal/executor"
	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// noopRuntime implements executor.Runtime with no behaviour.
type noopRuntime struct{}

func (noopRuntime) ResolveSync(context.Context, string, string, any, map[string]any) (any, error) {
	return nil, nil
}

func (noopRuntime) BatchResolveAsync(_ context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return make([]executor.AsyncResolveResult, len(tasks))
}

func (noopRuntime) ResolveType(context.Context, string, any) (string, error) {
	return "", nil
}

func (noopRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

const petsSDL = `
"Root query for this schema"
type Query {
  pet(id: ID!, "include archived pets" archived: Boolean = false): Pet
  version: String! @deprecated(reason: "use build")
}

interface Node { id: ID! }

type Pet implements Node {
  id: ID!
  name: String
  age: Int
}

enum Mood { HAPPY GRUMPY }
`

func execute(t *testing.T, sch *schema.Schema, query string) map[string]any {
	t.Helper()
	w := Wrap(noopRuntime{}, sch)
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := executor.NewExecutor(w.Runtime, w.Schema).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	return res.Data.(map[string]any)
}

func TestSchemaQueryType(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	data := execute(t, sch, `{ __schema { queryType { name } mutationType { name } } }`)
	want := map[string]any{
		"__schema": map[string]any{
			"queryType":    map[string]any{"name": "Query"},
			"mutationType": nil,
		},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestTypeKeepsDeclarationOrder(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	data := execute(t, sch, `{ __type(name: "Pet") { kind name interfaces { name } fields { name type { kind name ofType { kind name } } } } }`)
	want := map[string]any{
		"__type": map[string]any{
			"kind":       "OBJECT",
			"name":       "Pet",
			"interfaces": []any{map[string]any{"name": "Node"}},
			"fields": []any{
				map[string]any{"name": "id", "type": map[string]any{
					"kind": "NON_NULL", "name": nil,
					"ofType": map[string]any{"kind": "SCALAR", "name": "ID"},
				}},
				map[string]any{"name": "name", "type": map[string]any{
					"kind": "SCALAR", "name": "String", "ofType": nil,
				}},
				map[string]any{"name": "age", "type": map[string]any{
					"kind": "SCALAR", "name": "Int", "ofType": nil,
				}},
			},
		},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestArgumentsAndDeprecation(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	data := execute(t, sch, `{ __type(name: "Query") {
		description
		fields(includeDeprecated: true) { name isDeprecated deprecationReason args { name description defaultValue } }
	} }`)
	typ := data["__type"].(map[string]any)
	require.Equal(t, "Root query for this schema", typ["description"])

	fields := typ["fields"].([]any)
	require.Len(t, fields, 2)
	pet := fields[0].(map[string]any)
	require.Equal(t, []any{
		map[string]any{"name": "id", "description": nil, "defaultValue": nil},
		map[string]any{"name": "archived", "description": "include archived pets", "defaultValue": "false"},
	}, pet["args"])
	version := fields[1].(map[string]any)
	require.Equal(t, true, version["isDeprecated"])
	require.Equal(t, "use build", version["deprecationReason"])

	data = execute(t, sch, `{ __type(name: "Query") { fields { name } } }`)
	require.Len(t, data["__type"].(map[string]any)["fields"], 1)
}

func TestPossibleTypesAndEnums(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	data := execute(t, sch, `{
		node: __type(name: "Node") { kind possibleTypes { name } }
		mood: __type(name: "Mood") { enumValues { name } }
		missing: __type(name: "Cat") { name }
	}`)
	require.Equal(t, map[string]any{"kind": "INTERFACE", "possibleTypes": []any{map[string]any{"name": "Pet"}}}, data["node"])
	require.Equal(t, map[string]any{"enumValues": []any{map[string]any{"name": "HAPPY"}, map[string]any{"name": "GRUMPY"}}}, data["mood"])
	require.Nil(t, data["missing"])
}

func TestIntrospectionTypesAreListed(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	data := execute(t, sch, `{ __schema { types { name } } }`)
	names := map[string]bool{}
	for _, v := range data["__schema"].(map[string]any)["types"].([]any) {
		names[v.(map[string]any)["name"].(string)] = true
	}
	for _, name := range []string{"Query", "Pet", "Node", "Mood", "String", "__Schema", "__Type", "__TypeKind"} {
		require.True(t, names[name], name)
	}

	data = execute(t, sch, `{ __type(name: "__TypeKind") { kind } }`)
	require.Equal(t, map[string]any{"kind": "ENUM"}, data["__type"])
}

func TestWrapLeavesSchemaUntouched(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	w := Wrap(noopRuntime{}, sch)
	require.Nil(t, sch.Types["__Schema"])
	require.Nil(t, sch.GetQueryType().Field("__schema"))
	require.NotNil(t, w.Schema.GetQueryType().Field("__schema"))
	require.NotNil(t, w.Schema.Types["__Type"])
}

func TestTypenameField(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL)
	require.NoError(t, err)

	doc, err := language.ParseQuery("{__typename}")
	require.NoError(t, err)
	res := executor.NewExecutor(noopRuntime{}, sch).ExecuteRequest(context.Background(), doc, "", nil, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"__typename": "Query"}, res.Data)
}

func TestDirectivesAndScalars(t *testing.T) {
	sch, err := schema.BuildFromSDL(petsSDL + `
scalar DateTime @specifiedBy(url: "https://tools.ietf.org/html/rfc3339")
`)
	require.NoError(t, err)

	data := execute(t, sch, `{
		__schema { directives { name locations args { name defaultValue } } }
		when: __type(name: "DateTime") { kind specifiedByURL fields { name } }
	}`)
	require.Equal(t, map[string]any{
		"kind":           "SCALAR",
		"specifiedByURL": "https://tools.ietf.org/html/rfc3339",
		"fields":         nil,
	}, data["when"])

	byName := map[string]map[string]any{}
	for _, d := range data["__schema"].(map[string]any)["directives"].([]any) {
		byName[d.(map[string]any)["name"].(string)] = d.(map[string]any)
	}
	require.Len(t, byName, 5)
	require.Equal(t, []any{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"}, byName["skip"]["locations"])
	require.Equal(t, []any{map[string]any{"name": "reason", "defaultValue": `"No longer supported"`}}, byName["deprecated"]["args"])
}
