package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints s as SDL. Types and directives are sorted by name; built-in
// scalars, introspection types and built-in directives are left out. A schema
// block is printed only when a root type has a non-conventional name.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	p := &printer{}
	p.roots(s)

	names := make([]string, 0, len(s.Types))
	for name, t := range s.Types {
		if !IsBuiltin(t) && !strings.HasPrefix(name, "__") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		p.typ(s.Types[name])
	}

	directives := make([]string, 0, len(s.Directives))
	for name, d := range s.Directives {
		if !IsBuiltinDirective(d) {
			directives = append(directives, name)
		}
	}
	sort.Strings(directives)
	for _, name := range directives {
		p.directive(s.Directives[name])
	}
	return strings.TrimRight(p.String(), "\n") + "\n"
}

type printer struct{ strings.Builder }

func (p *printer) roots(s *Schema) {
	conventional := (s.QueryType == "" || s.QueryType == "Query") &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription")
	if conventional {
		return
	}
	p.description(s.Description, "")
	p.WriteString("schema {\n")
	for _, root := range [][2]string{
		{"query", s.QueryType},
		{"mutation", s.MutationType},
		{"subscription", s.SubscriptionType},
	} {
		if root[1] != "" {
			fmt.Fprintf(p, "  %s: %s\n", root[0], root[1])
		}
	}
	p.WriteString("}\n\n")
}

func (p *printer) typ(t *Type) {
	p.description(t.Description, "")
	switch t.Kind {
	case TypeKindScalar:
		p.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			fmt.Fprintf(p, " @specifiedBy(url: %s)", strconv.Quote(*t.SpecifiedByURL))
		}
		p.WriteString("\n\n")

	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		p.WriteString(keyword + t.Name)
		if len(t.Interfaces) > 0 {
			p.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		p.WriteString(" {\n")
		for _, f := range t.Fields {
			p.description(f.Description, "  ")
			p.WriteString("  " + f.Name)
			p.arguments(f.Arguments)
			p.WriteString(": " + f.Type.String())
			p.deprecated(f.IsDeprecated, f.DeprecationReason)
			p.WriteByte('\n')
		}
		p.WriteString("}\n\n")

	case TypeKindUnion:
		fmt.Fprintf(p, "union %s = %s\n\n", t.Name, strings.Join(t.PossibleTypes, " | "))

	case TypeKindEnum:
		p.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			p.description(v.Description, "  ")
			p.WriteString("  " + v.Name)
			p.deprecated(v.IsDeprecated, v.DeprecationReason)
			p.WriteByte('\n')
		}
		p.WriteString("}\n\n")

	case TypeKindInputObject:
		p.WriteString("input " + t.Name)
		if t.OneOf {
			p.WriteString(" @oneOf")
		}
		p.WriteString(" {\n")
		for _, v := range t.InputFields {
			p.description(v.Description, "  ")
			p.WriteString("  ")
			p.inputValue(v)
			p.deprecated(v.IsDeprecated, v.DeprecationReason)
			p.WriteByte('\n')
		}
		p.WriteString("}\n\n")
	}
}

func (p *printer) directive(d *Directive) {
	p.description(d.Description, "")
	p.WriteString("directive @" + d.Name)
	p.arguments(d.Arguments)
	if d.IsRepeatable {
		p.WriteString(" repeatable")
	}
	locations := make([]string, len(d.Locations))
	for i, l := range d.Locations {
		locations[i] = string(l)
	}
	p.WriteString(" on " + strings.Join(locations, " | ") + "\n\n")
}

func (p *printer) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	p.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			p.WriteString(", ")
		}
		p.inputValue(a)
	}
	p.WriteByte(')')
}

func (p *printer) inputValue(v *InputValue) {
	p.WriteString(v.Name + ": " + v.Type.String())
	if v.DefaultValue != nil {
		p.WriteString(" = " + RenderValue(v.DefaultValue))
	}
}

func (p *printer) deprecated(is bool, reason string) {
	if !is {
		return
	}
	p.WriteString(" @deprecated")
	if reason != "" {
		fmt.Fprintf(p, "(reason: %s)", strconv.Quote(reason))
	}
}

// description prints desc as a block string at the given indentation.
func (p *printer) description(desc, indent string) {
	if desc == "" {
		return
	}
	p.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		p.WriteString(indent + line + "\n")
	}
	p.WriteString(indent + `"""` + "\n")
}

func renderTypeRef(t *TypeRef) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + renderTypeRef(t.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(t.OfType) + "!"
	}
	return t.Named
}

// RenderValue prints a default value in GraphQL literal notation. Strings
// are quoted; enum values must be passed as a different type to print bare.
func RenderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = RenderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + RenderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(value)
}
