package introspection

import (
	"fmt"
	"sync"

	schema "github.com/hanpama/opgraph/internal/schema"
)

const introspectionSDL = `
"A GraphQL Schema defines the capabilities of a GraphQL server."
type __Schema {
  description: String
  "A list of all types supported by this server."
  types: [__Type!]!
  "The type that query operations will be rooted at."
  queryType: __Type!
  "If this server supports mutation, the type that mutation operations will be rooted at."
  mutationType: __Type
  "If this server support subscription, the type that subscription operations will be rooted at."
  subscriptionType: __Type
  "A list of all directives supported by this server."
  directives: [__Directive!]!
}

"The fundamental unit of any GraphQL Schema is the type."
type __Type {
  kind: __TypeKind!
  name: String
  description: String
  specifiedByURL: String
  fields(includeDeprecated: Boolean = false): [__Field!]
  interfaces: [__Type!]
  possibleTypes: [__Type!]
  enumValues(includeDeprecated: Boolean = false): [__EnumValue!]
  inputFields(includeDeprecated: Boolean = false): [__InputValue!]
  ofType: __Type
  isOneOf: Boolean
}

"Object and Interface types are described by a list of Fields, each of which has a name, potentially a list of arguments, and a return type."
type __Field {
  name: String!
  description: String
  args(includeDeprecated: Boolean = false): [__InputValue!]!
  type: __Type!
  isDeprecated: Boolean!
  deprecationReason: String
}

"Arguments provided to Fields or Directives and the input fields of an InputObject are represented as Input Values which describe their type and optionally a default value."
type __InputValue {
  name: String!
  description: String
  type: __Type!
  "A GraphQL-formatted string representing the default value for this input value."
  defaultValue: String
  isDeprecated: Boolean!
  deprecationReason: String
}

"One possible value for a given Enum."
type __EnumValue {
  name: String!
  description: String
  isDeprecated: Boolean!
  deprecationReason: String
}

"A Directive provides a way to describe alternate runtime execution and type validation behavior in a GraphQL document."
type __Directive {
  name: String!
  description: String
  isRepeatable: Boolean!
  locations: [__DirectiveLocation!]!
  args(includeDeprecated: Boolean = false): [__InputValue!]!
}

"An enum describing what kind of type a given __Type is."
enum __TypeKind {
  SCALAR
  OBJECT
  INTERFACE
  UNION
  ENUM
  INPUT_OBJECT
  LIST
  NON_NULL
}

"A Directive can be adjacent to many parts of the GraphQL language."
enum __DirectiveLocation {
  QUERY
  MUTATION
  SUBSCRIPTION
  FIELD
  FRAGMENT_DEFINITION
  FRAGMENT_SPREAD
  INLINE_FRAGMENT
  VARIABLE_DEFINITION
  SCHEMA
  SCALAR
  OBJECT
  FIELD_DEFINITION
  ARGUMENT_DEFINITION
  INTERFACE
  UNION
  ENUM
  ENUM_VALUE
  INPUT_OBJECT
  INPUT_FIELD_DEFINITION
}
`

var (
	metaOnce  sync.Once
	metaTypes map[string]*schema.Type
)

// introspectionTypes returns the __ types. They are built once and shared,
// read-only, by every wrapped schema.
func introspectionTypes() map[string]*schema.Type {
	metaOnce.Do(func() {
		s, err := schema.BuildFromSDL(introspectionSDL)
		if err != nil {
			panic(fmt.Sprintf("introspection: %v", err))
		}
		metaTypes = make(map[string]*schema.Type)
		for name, t := range s.Types {
			if !schema.IsBuiltin(t) {
				metaTypes[name] = t
			}
		}
	})
	return metaTypes
}

// extend returns a copy of original carrying the introspection types and a
// query root extended with __schema and __type.
func extend(original *schema.Schema) *schema.Schema {
	extended := &schema.Schema{
		QueryType:        original.QueryType,
		MutationType:     original.MutationType,
		SubscriptionType: original.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(original.Types)+8),
		Directives:       original.Directives,
		Description:      original.Description,
	}
	for name, t := range original.Types {
		extended.Types[name] = t
	}
	meta := introspectionTypes()
	for name, t := range meta {
		extended.Types[name] = t
	}

	query := extended.GetQueryType()
	if query == nil {
		return extended
	}
	root := *query
	root.Fields = append(append([]*schema.Field(nil), query.Fields...),
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.RefTo(meta["__Schema"]))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.RefTo(meta["__Type"])).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.RefTo(schema.StringType)))),
	)
	extended.Types[root.Name] = &root
	return extended
}
