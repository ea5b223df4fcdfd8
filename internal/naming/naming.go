// Package naming converts declared names into the names emitted in the schema.
//
// Declarations may use snake_case ("find_cats"), Go identifiers ("FindCats")
// or names that are already in GraphQL form ("findCats"). Under LowerCamel all
// of them become "findCats" for fields and "FindCats" for types; under
// Verbatim field names are kept as declared and type names only have
// non-word characters replaced.
package naming

import (
	"strings"
	"unicode"
)

type Convention int

const (
	LowerCamel Convention = iota
	Verbatim
)

func (c Convention) String() string {
	if c == Verbatim {
		return "verbatim"
	}
	return "lower_camel"
}

// Namer applies one convention to every emitted field, argument and type name.
type Namer struct {
	Convention Convention
}

// New returns a Namer using lower camel case when camelCase is set.
func New(camelCase bool) Namer {
	if camelCase {
		return Namer{Convention: LowerCamel}
	}
	return Namer{Convention: Verbatim}
}

// Field converts a field or argument name. A leading underscore is kept.
func (n Namer) Field(name string) string {
	if strings.HasPrefix(name, "_") {
		return "_" + n.Field(name[1:])
	}
	if n.Convention == Verbatim {
		return name
	}
	return camelize(name, false)
}

// Type converts a type name and prepends namespace when it is not empty.
func (n Namer) Type(name, namespace string) string {
	if namespace != "" {
		return namespace + n.Type(name, "")
	}
	if n.Convention == LowerCamel {
		name = camelize(name, true)
	}
	return sanitize(name)
}

// camelize joins the words of name, capitalizing each word except possibly
// the first. Words are split on underscores, dashes and spaces; a leading run
// of capitals is treated as an acronym ("HTTPServer" -> "httpServer").
func camelize(name string, upper bool) string {
	var b strings.Builder
	first := true
	for _, word := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		if first && !upper {
			b.WriteString(lowerLeading(word))
		} else {
			b.WriteString(upperFirst(word))
		}
		first = false
	}
	return b.String()
}

func upperFirst(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func lowerLeading(s string) string {
	rs := []rune(s)
	i := 0
	for i < len(rs) && unicode.IsUpper(rs[i]) {
		i++
	}
	switch {
	case i == 0:
		return s
	case i == 1 || i == len(rs):
		// "Cat" -> "cat", "ID" -> "id"
	default:
		// keep the capital that starts the next word: "HTTPServer" -> "httpServer"
		if unicode.IsLetter(rs[i]) {
			i--
		}
	}
	for j := 0; j < i; j++ {
		rs[j] = unicode.ToLower(rs[j])
	}
	return string(rs)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}
