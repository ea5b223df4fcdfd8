package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// ValidationSchema is the form of a schema executable documents are checked
// against. It includes the introspection types and built-in directives.
type ValidationSchema = ast.Schema

// ValidationError is one rule violation found in a document.
type ValidationError = gqlerror.Error

// LoadValidationSchema loads sdl on top of the built-in prelude.
func LoadValidationSchema(name, sdl string) (*ValidationSchema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
}

// Validate checks doc against the standard validation rules.
func Validate(s *ValidationSchema, doc *QueryDocument) []*ValidationError {
	return validator.ValidateWithRules(s, doc, nil)
}
