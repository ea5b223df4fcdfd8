package schema

// Scalars every schema starts with.
var (
	StringType  = scalar("String", "The `String` scalar type represents textual data, represented as UTF-8 character sequences.")
	IntType     = scalar("Int", "The `Int` scalar type represents non-fractional signed whole numeric values.")
	FloatType   = scalar("Float", "The `Float` scalar type represents signed double-precision fractional values.")
	BooleanType = scalar("Boolean", "The `Boolean` scalar type represents `true` or `false`.")
	IDType      = scalar("ID", "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.")
)

var builtinScalars = []*Type{StringType, IntType, FloatType, BooleanType, IDType}

var builtinDirectives = []*Directive{
	NewDirective("include", "Directs the executor to include this field or fragment only when the `if` argument is true.",
		"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT").
		AddArgument(NewInputValue("if", "Included when true.", NonNullType(RefTo(BooleanType)))),
	NewDirective("skip", "Directs the executor to skip this field or fragment when the `if` argument is true.",
		"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT").
		AddArgument(NewInputValue("if", "Skipped when true.", NonNullType(RefTo(BooleanType)))),
	NewDirective("deprecated", "Marks an element of a GraphQL schema as no longer supported.",
		"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE").
		AddArgument(NewInputValue("reason", "", RefTo(StringType)).SetDefault("No longer supported")),
	NewDirective("specifiedBy", "Exposes a URL that specifies the behavior of this scalar.", "SCALAR").
		AddArgument(NewInputValue("url", "", NonNullType(RefTo(StringType)))),
	NewDirective("oneOf", "Indicates exactly one field must be supplied and this field must not be `null`.", "INPUT_OBJECT"),
}

func scalar(name, description string) *Type {
	return NewType(name, TypeKindScalar, description)
}

// IsBuiltin reports whether t is one of the scalars shared by every schema.
func IsBuiltin(t *Type) bool {
	for _, b := range builtinScalars {
		if t == b {
			return true
		}
	}
	return false
}

// IsBuiltinDirective reports whether d is one of the directives every schema
// starts with.
func IsBuiltinDirective(d *Directive) bool {
	for _, b := range builtinDirectives {
		if d == b {
			return true
		}
	}
	return false
}
