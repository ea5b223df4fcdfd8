package executor

import (
	"strconv"
	"strings"
)

// Path locates a value in the response: field response names and list
// indexes from the root.
type Path []PathElement

// PathElement is a string response name or an int list index.
type PathElement any

// String renders p as "pets.[0].name".
func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func (p Path) with(elem PathElement) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// assign replaces the value at p inside root. Containers on the way must
// already exist; a missing one means an ancestor was nulled and nothing is
// written.
func assign(root map[string]any, p Path, value any) {
	if len(p) == 0 {
		return
	}
	var cur any = root
	for _, elem := range p[:len(p)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			cur = m[e]
		case int:
			s, ok := cur.([]any)
			if !ok || e >= len(s) {
				return
			}
			cur = s[e]
		}
	}
	switch e := p[len(p)-1].(type) {
	case string:
		if m, ok := cur.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if s, ok := cur.([]any); ok && e < len(s) {
			s[e] = value
		}
	}
}
