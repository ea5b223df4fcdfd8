package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalIDRoundTrip(t *testing.T) {
	pairs := []struct{ typeName, id string }{
		{"Cat", "1"},
		{"SqlOwner", "42"},
		{"Pet", "a:b:c"},
		{"Pet", ""},
		{"Proto_pets_v1_Pet", "日本"},
	}
	for _, p := range pairs {
		t.Run(p.typeName+"/"+p.id, func(t *testing.T) {
			gid := ToGlobalID(p.typeName, p.id)
			typeName, id, err := FromGlobalID(gid)
			require.NoError(t, err)
			assert.Equal(t, p.typeName, typeName)
			assert.Equal(t, p.id, id)
		})
	}
}

func TestFromGlobalIDMalformed(t *testing.T) {
	for _, in := range []string{"not-a-valid-id", "", "!!!", ToGlobalID("", "1")} {
		_, _, err := FromGlobalID(in)
		require.ErrorIs(t, err, ErrInvalidGlobalID, in)
	}
}

func TestNodeInterface(t *testing.T) {
	node := NodeInterface()
	require.Same(t, node, NodeInterface())
	require.Equal(t, "ID!", node.Field("id").Type.String())
}
