package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Depth returns the deepest field nesting of op, following fragment spreads.
// Introspection meta fields are not counted. Each fragment is measured once.
func Depth(doc *QueryDocument, op *OperationDefinition) int {
	m := &depthMeter{doc: doc, fragments: map[string]int{}, visiting: map[string]bool{}}
	return m.selectionDepth(op.SelectionSet)
}

type depthMeter struct {
	doc       *QueryDocument
	fragments map[string]int
	visiting  map[string]bool
}

func (m *depthMeter) selectionDepth(set SelectionSet) int {
	max := 0
	for _, sel := range set {
		d := 0
		switch s := sel.(type) {
		case *Field:
			if s.Name == "__schema" || s.Name == "__type" {
				continue
			}
			d = 1 + m.selectionDepth(s.SelectionSet)
		case *InlineFragment:
			d = m.selectionDepth(s.SelectionSet)
		case *FragmentSpread:
			d = m.fragmentDepth(s.Name)
		}
		if d > max {
			max = d
		}
	}
	return max
}

// fragmentDepth is 0 for unknown fragments and for spreads that close a
// cycle.
func (m *depthMeter) fragmentDepth(name string) int {
	if d, ok := m.fragments[name]; ok {
		return d
	}
	if m.visiting[name] {
		return 0
	}
	frag := m.doc.Fragments.ForName(name)
	if frag == nil {
		return 0
	}
	m.visiting[name] = true
	d := m.selectionDepth(frag.SelectionSet)
	delete(m.visiting, name)
	m.fragments[name] = d
	return d
}
