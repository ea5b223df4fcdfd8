package schema

import (
	"fmt"

	language "github.com/hanpama/opgraph/internal/language"
)

// BuildFromSDL parses SDL and returns the corresponding Schema. A missing
// schema definition defaults the root types to Query/Mutation/Subscription
// when types with those names exist.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.ParseSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc)
}

// BuildFromDocument builds a Schema from a parsed SDL document. Type
// extensions are merged into their base definitions and every named reference
// is linked to its definition.
func BuildFromDocument(doc *language.SchemaDocument) (*Schema, error) {
	s := NewSchema("")

	for _, def := range doc.Definitions {
		if _, exists := s.Types[def.Name]; exists && !IsBuiltin(s.Types[def.Name]) {
			return nil, fmt.Errorf("type %s defined more than once", def.Name)
		}
		t, err := buildDefinition(def)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, ext := range doc.Extensions {
		base := s.Types[ext.Name]
		if base == nil {
			return nil, fmt.Errorf("cannot extend undefined type %s", ext.Name)
		}
		extended, err := buildDefinition(ext)
		if err != nil {
			return nil, err
		}
		base.Fields = append(base.Fields, extended.Fields...)
		base.InputFields = append(base.InputFields, extended.InputFields...)
		base.EnumValues = append(base.EnumValues, extended.EnumValues...)
		for _, name := range extended.Interfaces {
			base.AddInterface(name)
		}
		for _, name := range extended.PossibleTypes {
			base.AddPossibleType(name)
		}
	}
	for _, dir := range doc.Directives {
		s.AddDirective(buildDirective(dir))
	}

	roots := map[language.Operation]string{}
	for _, sd := range append(doc.Schema, doc.SchemaExtension...) {
		if sd.Description != "" {
			s.Description = sd.Description
		}
		for _, op := range sd.OperationTypes {
			roots[op.Operation] = op.Type
		}
	}
	s.SetQueryType(rootName(s, roots, language.Query, "Query")).
		SetMutationType(rootName(s, roots, language.Mutation, "Mutation")).
		SetSubscriptionType(rootName(s, roots, language.Subscription, "Subscription"))

	// Implementations are recorded on the abstract side for introspection.
	for _, t := range s.Types {
		for _, iface := range t.Interfaces {
			if it := s.Types[iface]; it != nil && it.Kind == TypeKindInterface {
				it.AddPossibleType(t.Name)
			}
		}
	}
	if err := link(s); err != nil {
		return nil, err
	}
	return s, nil
}

func rootName(s *Schema, declared map[language.Operation]string, op language.Operation, fallback string) string {
	if name, ok := declared[op]; ok {
		return name
	}
	if _, ok := s.Types[fallback]; ok {
		return fallback
	}
	return ""
}

func buildDefinition(def *language.Definition) (*Type, error) {
	switch def.Kind {
	case language.Object, language.Interface:
		kind := TypeKindObject
		if def.Kind == language.Interface {
			kind = TypeKindInterface
		}
		t := NewType(def.Name, kind, def.Description)
		for _, name := range def.Interfaces {
			t.AddInterface(name)
		}
		for _, fd := range def.Fields {
			t.AddField(buildField(fd))
		}
		return t, nil
	case language.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t, nil
	case language.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t, nil
	case language.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, fd := range def.Fields {
			t.AddInputField(buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives))
		}
		return t, nil
	case language.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported definition kind %s for %s", def.Kind, def.Name)
}

func buildField(fd *language.FieldDefinition) *Field {
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
	if reason, ok := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range fd.Arguments {
		f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return f
}

func buildInputValue(name, description string, t *language.Type, def *language.Value, dirs language.DirectiveList) *InputValue {
	in := NewInputValue(name, description, buildTypeRef(t))
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.SetDefault(v)
		}
	}
	if reason, ok := deprecation(dirs); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildDirective(dir *language.DirectiveDefinition) *Directive {
	d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return d
}

func buildTypeRef(t *language.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs language.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil {
		reason = arg.Value.Raw
	}
	return reason, true
}

// link points every named reference in s at its definition.
func link(s *Schema) error {
	var linkRef func(owner string, r *TypeRef) error
	linkRef = func(owner string, r *TypeRef) error {
		for cur := r; cur != nil; cur = cur.OfType {
			if cur.Kind != TypeRefKindNamed {
				continue
			}
			def := s.Types[cur.Named]
			if def == nil {
				return fmt.Errorf("%s refers to undefined type %s", owner, cur.Named)
			}
			cur.Def = def
		}
		return nil
	}
	for _, t := range s.Types {
		for _, f := range t.Fields {
			if err := linkRef(t.Name+"."+f.Name, f.Type); err != nil {
				return err
			}
			for _, a := range f.Arguments {
				if err := linkRef(t.Name+"."+f.Name+"("+a.Name+")", a.Type); err != nil {
					return err
				}
			}
		}
		for _, v := range t.InputFields {
			if err := linkRef(t.Name+"."+v.Name, v.Type); err != nil {
				return err
			}
		}
	}
	for _, d := range s.Directives {
		for _, a := range d.Arguments {
			if err := linkRef("@"+d.Name+"("+a.Name+")", a.Type); err != nil {
				return err
			}
		}
	}
	return nil
}
