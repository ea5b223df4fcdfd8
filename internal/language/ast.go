// Package language parses GraphQL documents with gqlparser and re-exports
// the AST nodes the rest of the module works with.
package language

import "github.com/vektah/gqlparser/v2/ast"

// Executable documents.
type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	Operation           = ast.Operation
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
	Type                = ast.Type
)

// Schema documents.
type (
	SchemaDocument      = ast.SchemaDocument
	Definition          = ast.Definition
	FieldDefinition     = ast.FieldDefinition
	DirectiveDefinition = ast.DirectiveDefinition
)

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

// Definition kinds.
const (
	Object      = ast.Object
	Interface   = ast.Interface
	Union       = ast.Union
	Scalar      = ast.Scalar
	Enum        = ast.Enum
	InputObject = ast.InputObject
)

// Value kinds.
const (
	Variable     = ast.Variable
	IntValue     = ast.IntValue
	FloatValue   = ast.FloatValue
	StringValue  = ast.StringValue
	BlockValue   = ast.BlockValue
	BooleanValue = ast.BooleanValue
	NullValue    = ast.NullValue
	EnumValue    = ast.EnumValue
	ListValue    = ast.ListValue
	ObjectValue  = ast.ObjectValue
)
