package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// resolverFunc resolves one "Type.field".
type resolverFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// fakeRuntime resolves fields through per-field functions, falling back to
// reading the field from a map source. Abstract values name their type in a
// "__typename" key. Every call is recorded.
type fakeRuntime struct {
	resolvers map[string]resolverFunc
	serialize func(typeName string, value any) (any, error)

	mu      sync.Mutex
	syncs   []string
	batches [][]string
}

func newFakeRuntime(resolvers map[string]resolverFunc) *fakeRuntime {
	if resolvers == nil {
		resolvers = map[string]resolverFunc{}
	}
	return &fakeRuntime{resolvers: resolvers}
}

func (f *fakeRuntime) resolve(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if fn, ok := f.resolvers[objectType+"."+field]; ok {
		return fn(ctx, source, args)
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}
	return nil, nil
}

func (f *fakeRuntime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	f.mu.Lock()
	f.syncs = append(f.syncs, objectType+"."+field)
	f.mu.Unlock()
	return f.resolve(ctx, objectType, field, source, args)
}

func (f *fakeRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	names := make([]string, len(tasks))
	results := make([]AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		names[i] = t.ObjectType + "." + t.Field
		results[i].Value, results[i].Error = f.resolve(ctx, t.ObjectType, t.Field, t.Source, t.Args)
	}
	f.mu.Lock()
	f.batches = append(f.batches, names)
	f.mu.Unlock()
	return results
}

func (f *fakeRuntime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve %s for %T", abstractType, value)
}

func (f *fakeRuntime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	if f.serialize != nil {
		return f.serialize(typeName, value)
	}
	return value, nil
}

func (f *fakeRuntime) calls() (syncs []string, batches [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, f.batches
}

func fixed(v any) resolverFunc {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

func failing(msg string) resolverFunc {
	return func(context.Context, any, map[string]any) (any, error) { return nil, fmt.Errorf("%s", msg) }
}

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	require.NoError(t, err)
	return d
}

func execute(t *testing.T, sch *schema.Schema, rt Runtime, query string, vars map[string]any, opts ...Option) *ExecutionResult {
	t.Helper()
	return NewExecutor(rt, sch, opts...).ExecuteRequest(context.Background(), mustParseQuery(t, query), "", vars, nil)
}

func newObjectType(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	for _, field := range fields {
		t.AddField(field)
	}
	return t
}

func field(name string, typ *schema.TypeRef) *schema.Field { return schema.NewField(name, "", typ) }

func named(name string) *schema.TypeRef { return schema.NamedType(name) }

func nonNull(t *schema.TypeRef) *schema.TypeRef { return schema.NonNullType(t) }

func list(t *schema.TypeRef) *schema.TypeRef { return schema.ListType(t) }

// petSchema is the schema most tests run against:
//
//	interface Node { id: ID! }
//	type Pet implements Node { id: ID! name: String! nick: String friend: Pet best: Pet!
//	                           owner: Owner tags: [String!] kind: Kind }
//	type Owner { name: String pets: [Pet] strict: [Pet!]! }
//	enum Kind { CAT DOG }
//	union Thing = Pet | Owner
//	type Query { pet: Pet! maybe: Pet node: Node owner: Owner thing: Thing
//	             pets: [Pet] version: String count(n: Int = 1): Int }
//	type Mutation { first: String second: String }
//
// Fields of Query and Mutation are async, and so are the object fields of Pet
// and Owner.
func petSchema() *schema.Schema {
	sch := schema.NewSchema("")
	node := schema.NewType("Node", schema.TypeKindInterface, "")
	node.AddField(field("id", nonNull(named("ID"))))
	node.AddPossibleType("Pet")

	kind := schema.NewType("Kind", schema.TypeKindEnum, "")
	kind.AddEnumValue(schema.NewEnumValue("CAT", "")).AddEnumValue(schema.NewEnumValue("DOG", ""))

	pet := newObjectType("Pet",
		field("id", nonNull(named("ID"))),
		field("name", nonNull(named("String"))),
		field("nick", named("String")),
		field("friend", named("Pet")).SetAsync(true),
		field("best", nonNull(named("Pet"))).SetAsync(true),
		field("owner", named("Owner")).SetAsync(true),
		field("tags", list(nonNull(named("String")))),
		field("kind", named("Kind")),
	)
	pet.AddInterface("Node")
	owner := newObjectType("Owner",
		field("name", named("String")),
		field("pets", list(named("Pet"))).SetAsync(true),
		field("strict", nonNull(list(nonNull(named("Pet"))))).SetAsync(true),
	)
	thing := schema.NewType("Thing", schema.TypeKindUnion, "")
	thing.AddPossibleType("Pet").AddPossibleType("Owner")

	query := newObjectType("Query",
		field("pet", nonNull(named("Pet"))).SetAsync(true),
		field("maybe", named("Pet")).SetAsync(true),
		field("node", named("Node")).SetAsync(true),
		field("owner", named("Owner")).SetAsync(true),
		field("thing", named("Thing")).SetAsync(true),
		field("pets", list(named("Pet"))).SetAsync(true),
		field("version", named("String")),
		field("count", named("Int")).
			AddArgument(schema.NewInputValue("n", "", named("Int")).SetDefault(1)),
	)
	mutation := newObjectType("Mutation",
		field("first", named("String")).SetAsync(true),
		field("second", named("String")).SetAsync(true),
	)
	for _, typ := range []*schema.Type{node, kind, pet, owner, thing, query, mutation} {
		sch.AddType(typ)
	}
	sch.SetQueryType("Query").SetMutationType("Mutation")
	return sch
}

func rex() map[string]any {
	return map[string]any{"id": "1", "name": "Rex", "__typename": "Pet"}
}
