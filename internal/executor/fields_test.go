package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFields(t *testing.T) {
	sch := petSchema()
	doc := mustParseQuery(t, `
		query($yes: Boolean, $no: Boolean, $missing: Boolean) {
			version
			a: version @skip(if: true)
			b: version @include(if: $no)
			c: version @include(if: $yes)
			d: version @skip(if: $missing)
			... on Query { count version }
			...F @skip(if: $yes)
			...G
			... @include(if: false) { pet { name } }
			... on Pet { name }
		}
		fragment F on Query { maybe { name } }
		fragment G on Query { node { id } ...G }
	`)
	ex := &execution{schema: sch, doc: doc, vars: map[string]any{"yes": true, "no": false}}

	groups := ex.collectFields(sch.GetQueryType(), doc.Operations[0].SelectionSet)

	var names []string
	for _, g := range groups {
		names = append(names, g.name)
	}
	assert.Equal(t, []string{"version", "c", "d", "count", "node"}, names)
	require.Len(t, groups[0].fields, 2)
	assert.Empty(t, groups[0].fields[1].SelectionSet)
}

func TestFragmentApplies(t *testing.T) {
	sch := petSchema()
	ex := &execution{schema: sch}
	pet := sch.Types["Pet"]

	for cond, want := range map[string]bool{
		"":      true,
		"Pet":   true,
		"Node":  true,
		"Thing": true,
		"Owner": false,
		"Query": false,
		"Nope":  false,
	} {
		assert.Equal(t, want, ex.applies(pet, cond), cond)
	}
}

func TestMergedSelections(t *testing.T) {
	rt := newFakeRuntime(map[string]resolverFunc{"Query.maybe": fixed(rex())})
	res := execute(t, petSchema(), rt, `
		{
			maybe { id }
			maybe { name }
			... on Query { maybe { id nick } }
		}
	`, nil)
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{"maybe": map[string]any{"id": "1", "name": "Rex", "nick": nil}}, res.Data)

	_, batches := rt.calls()
	assert.Equal(t, [][]string{{"Query.maybe"}}, batches)
}
