package assembler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assembler "github.com/hanpama/opgraph/internal/assembler"
	language "github.com/hanpama/opgraph/internal/language"
	operation "github.com/hanpama/opgraph/internal/operation"
	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
)

func constField(name string, typ *schema.TypeRef, v any) *schema.Field {
	return schema.NewField(name, "", typ).SetAsync(true).
		SetResolve(func(context.Context, any, map[string]any) (any, error) { return v, nil })
}

func run(t *testing.T, asm *assembler.Assembler, query string) (any, []string) {
	t.Helper()
	inst, err := asm.Instance()
	require.NoError(t, err)
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := inst.Executor.ExecuteRequest(context.Background(), doc, "", nil, nil)
	var msgs []string
	for _, e := range res.Errors {
		msgs = append(msgs, e.Message)
	}
	return res.Data, msgs
}

func TestDeterministicSchema(t *testing.T) {
	build := func() string {
		asm := assembler.New()
		require.NoError(t, asm.AddQuery(constField("q1", schema.RefTo(schema.StringType), "a")))
		require.NoError(t, asm.AddQuery(constField("q2", schema.RefTo(schema.IntType), 1)))
		inst, err := asm.Instance()
		require.NoError(t, err)
		return schema.Render(inst.Schema)
	}
	first := build()
	assert.Equal(t, first, build())

	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("q1", schema.RefTo(schema.StringType), "a")))
	require.NoError(t, asm.AddQuery(constField("q2", schema.RefTo(schema.IntType), 1)))
	inst, err := asm.Instance()
	require.NoError(t, err)
	q := inst.Schema.GetQueryType()
	require.Equal(t, "Root query for this schema", q.Description)
	require.Len(t, q.Fields, 2)
	assert.Equal(t, "q1", q.Fields[0].Name)
	assert.Equal(t, "q2", q.Fields[1].Name)
	assert.Nil(t, inst.Schema.GetMutationType())
}

func TestDuplicateOperationName(t *testing.T) {
	node := constField("node", schema.RefTo(relay.NodeInterface()), nil)
	asm := assembler.New(assembler.WithNodeField(node))

	require.NoError(t, asm.AddQuery(constField("version", schema.RefTo(schema.StringType), "1")))
	err := asm.AddQuery(constField("version", schema.RefTo(schema.StringType), "2"))
	require.ErrorIs(t, err, assembler.ErrDuplicateOperationName)

	err = asm.AddQuery(constField("node", schema.RefTo(schema.StringType), "x"))
	require.ErrorIs(t, err, assembler.ErrDuplicateOperationName)

	// queries and mutations have separate namespaces
	require.NoError(t, asm.AddMutation(constField("version", schema.RefTo(schema.StringType), "3")))
}

func TestDuplicateTypeName(t *testing.T) {
	a := schema.NewType("Cat", schema.TypeKindObject, "")
	a.AddField(schema.NewField("name", "", schema.RefTo(schema.StringType)))
	b := schema.NewType("Cat", schema.TypeKindObject, "")
	b.AddField(schema.NewField("age", "", schema.RefTo(schema.IntType)))

	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("a", schema.RefTo(a), nil)))
	require.NoError(t, asm.AddQuery(constField("b", schema.RefTo(b), nil)))
	_, err := asm.Instance()
	require.ErrorIs(t, err, assembler.ErrDuplicateTypeName)
}

func TestInstanceCaching(t *testing.T) {
	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("a", schema.RefTo(schema.StringType), "A")))

	first, err := asm.Instance()
	require.NoError(t, err)
	again, err := asm.Instance()
	require.NoError(t, err)
	require.Same(t, first, again)

	require.NoError(t, asm.AddQuery(constField("b", schema.RefTo(schema.StringType), "B")))
	rebuilt, err := asm.Instance()
	require.NoError(t, err)
	require.NotSame(t, first, rebuilt)
	require.NotNil(t, rebuilt.Schema.GetQueryType().Field("b"))

	asm.Clear()
	cleared, err := asm.Instance()
	require.NoError(t, err)
	require.Nil(t, cleared.Schema.GetQueryType())
}

func TestConcurrentInstance(t *testing.T) {
	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("a", schema.RefTo(schema.StringType), "A")))

	var wg sync.WaitGroup
	instances := make([]*assembler.Instance, 16)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := asm.Instance()
			assert.NoError(t, err)
			instances[i] = inst
		}(i)
	}
	wg.Wait()
	for _, inst := range instances {
		require.Same(t, instances[0], inst)
	}
}

type pet struct {
	ID   string `graphql:"id"`
	Name string
	Age  int
}

func (pet) GraphQLTypeName() string { return "Pet" }

func TestNodeFieldAndInterfaces(t *testing.T) {
	petType := schema.NewType("Pet", schema.TypeKindObject, "")
	petType.AddInterface(relay.NodeInterfaceName)
	petType.AddField(schema.NewField("id", "", schema.NonNullType(schema.RefTo(schema.IDType))))
	petType.AddField(schema.NewField("name", "", schema.RefTo(schema.StringType)))
	petType.AddField(schema.NewField("age", "", schema.RefTo(schema.IntType)))

	node := schema.NewField("node", "Fetches an object given its ID.", schema.RefTo(relay.NodeInterface())).
		AddArgument(schema.NewInputValue("id", "", schema.NonNullType(schema.RefTo(schema.IDType)))).
		SetAsync(true).
		SetResolve(func(_ context.Context, _ any, args map[string]any) (any, error) {
			if args["id"] == "UGV0OjE" {
				return pet{ID: "UGV0OjE", Name: "Rex", Age: 3}, nil
			}
			return nil, nil
		})

	asm := assembler.New(assembler.WithNodeField(node))
	require.NoError(t, asm.AddQuery(constField("pets", schema.ListType(schema.RefTo(petType)), []pet{{ID: "UGV0OjI", Name: "Tom"}})))

	inst, err := asm.Instance()
	require.NoError(t, err)
	q := inst.Schema.GetQueryType()
	require.Equal(t, "node", q.Fields[len(q.Fields)-1].Name)
	require.Equal(t, []string{"Pet"}, inst.Schema.Types["Node"].PossibleTypes)
	require.Empty(t, relay.NodeInterface().PossibleTypes, "shared interface must not be mutated")

	data, errs := run(t, asm, `{
		node(id: "UGV0OjE") { id ... on Pet { name age } }
		missing: node(id: "nope") { id }
		pets { name age }
	}`)
	require.Empty(t, errs)
	want := map[string]any{
		"node":    map[string]any{"id": "UGV0OjE", "name": "Rex", "age": 3},
		"missing": nil,
		"pets":    []any{map[string]any{"name": "Tom", "age": 0}},
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("unexpected data (-want +got):\n%s", diff)
	}
}

func TestResolverErrorsAreGenericized(t *testing.T) {
	asm := assembler.New()
	str := schema.RefTo(schema.StringType)
	require.NoError(t, asm.AddQuery(schema.NewField("backend", "", str).SetAsync(true).
		SetResolve(func(context.Context, any, map[string]any) (any, error) {
			return nil, errors.New("connection refused on 10.0.0.3")
		})))
	require.NoError(t, asm.AddQuery(schema.NewField("domain", "", str).SetAsync(true).
		SetResolve(func(context.Context, any, map[string]any) (any, error) {
			return nil, operation.Errorf("Cat not found")
		})))
	require.NoError(t, asm.AddQuery(schema.NewField("panics", "", str).SetAsync(true).
		SetResolve(func(context.Context, any, map[string]any) (any, error) {
			panic("boom")
		})))

	_, errs := run(t, asm, `{ backend domain panics }`)
	assert.ElementsMatch(t, []string{"Internal error", "Cat not found", "Internal error"}, errs)
}

func TestMutationsRunSerially(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	step := func(name string, delay time.Duration) *schema.Field {
		return schema.NewField(name, "", schema.RefTo(schema.StringType)).SetAsync(true).
			SetResolve(func(context.Context, any, map[string]any) (any, error) {
				time.Sleep(delay)
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return name, nil
			})
	}
	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("version", schema.RefTo(schema.StringType), "1")))
	require.NoError(t, asm.AddMutation(step("first", 20*time.Millisecond)))
	require.NoError(t, asm.AddMutation(step("second", 0)))

	inst, err := asm.Instance()
	require.NoError(t, err)
	require.Equal(t, "Root mutation for this schema", inst.Schema.GetMutationType().Description)

	data, errs := run(t, asm, `mutation { first second }`)
	require.Empty(t, errs)
	require.Equal(t, map[string]any{"first": "first", "second": "second"}, data)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestMaxDepthAndIntrospection(t *testing.T) {
	asm := assembler.New(assembler.WithMaxDepth(1), assembler.WithIntrospection(false))
	require.NoError(t, asm.AddQuery(constField("version", schema.RefTo(schema.StringType), "1")))

	data, errs := run(t, asm, `{ version }`)
	require.Empty(t, errs)
	require.Equal(t, map[string]any{"version": "1"}, data)

	_, errs = run(t, asm, `{ __schema { queryType { name } } }`)
	require.Equal(t, []string{"Cannot query field '__schema' on type 'Query'"}, errs)
}

func TestLeafSerialization(t *testing.T) {
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	name := "Rex"
	asm := assembler.New()
	require.NoError(t, asm.AddQuery(constField("when", schema.RefTo(schema.StringType), when)))
	require.NoError(t, asm.AddQuery(constField("ptr", schema.RefTo(schema.StringType), &name)))
	require.NoError(t, asm.AddQuery(constField("opaque", schema.RefTo(schema.StringType), map[string]any{"a": 1})))
	require.NoError(t, asm.AddQuery(constField("num", schema.RefTo(schema.IDType), 42)))
	require.NoError(t, asm.AddQuery(constField("big", schema.RefTo(schema.IntType), int64(1)<<40)))

	data, errs := run(t, asm, `{ when ptr opaque num big }`)
	require.Equal(t, []string{"Int cannot represent non 32-bit signed integer value: 1099511627776"}, errs)
	require.Equal(t, map[string]any{
		"when":   "2024-05-01T12:00:00Z",
		"ptr":    "Rex",
		"opaque": `{"a":1}`,
		"num":    "42",
		"big":    nil,
	}, data)
}
