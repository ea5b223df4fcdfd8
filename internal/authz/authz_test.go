package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	callbacks "github.com/hanpama/opgraph/internal/callbacks"
	operation "github.com/hanpama/opgraph/internal/operation"
)

type pet struct{ owner string }

func ownerPolicy(built *int) *Policy {
	return New(func(user any) Ability {
		*built++
		name, _ := user.(string)
		return AbilityFunc(func(action string, subject any) bool {
			p, ok := subject.(pet)
			return action == "update" && ok && name != "" && p.owner == name
		})
	})
}

func invocation(name string, user any) *operation.Context {
	ctx := context.Background()
	if user != nil {
		ctx = operation.WithAmbient(ctx, map[string]any{CurrentUserKey: user})
	}
	return operation.New(ctx, operation.KindMutation, name, name, nil, nil, nil)
}

func clientMessage(t *testing.T, err error) string {
	t.Helper()
	var opErr *operation.Error
	require.True(t, errors.As(err, &opErr), "want a client-visible error, got %v", err)
	return opErr.Message
}

func TestCheckAuthorization(t *testing.T) {
	var built int
	policy := ownerPolicy(&built)
	chain := callbacks.New()
	CheckAuthorization(chain, callbacks.Except("version"))
	SkipAuthorizationCheck(chain, callbacks.Only("public_pets"))

	renamePet := func(oc *operation.Context) (any, error) {
		if err := policy.Authorize(oc, "update", pet{owner: "alice"}); err != nil {
			return nil, err
		}
		return "renamed", nil
	}
	forgetful := func(*operation.Context) (any, error) { return "done", nil }

	tests := []struct {
		name    string
		op      string
		user    any
		body    callbacks.Body
		want    any
		wantMsg string
	}{
		{"authorized owner", "rename_pet", "alice", renamePet, "renamed", ""},
		{"other user denied", "rename_pet", "bob", renamePet, nil, MsgDenied},
		{"anonymous denied", "rename_pet", nil, renamePet, nil, MsgDenied},
		{"missing check", "delete_pet", "alice", forgetful, nil, MsgUnchecked},
		{"skipped", "public_pets", nil, forgetful, "done", ""},
		{"excepted", "version", nil, forgetful, "done", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chain.Run(invocation(tt.op, tt.user), tt.body)
			if tt.wantMsg != "" {
				require.Equal(t, tt.wantMsg, clientMessage(t, err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDeniedKeepsCause(t *testing.T) {
	var built int
	policy := ownerPolicy(&built)
	err := policy.Authorize(invocation("rename_pet", "bob"), "update", pet{owner: "alice"})
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestAbilityIsBuiltOncePerInvocation(t *testing.T) {
	var built int
	policy := ownerPolicy(&built)
	oc := invocation("rename_pet", "alice")

	assert.True(t, policy.Can(oc, "update", pet{owner: "alice"}))
	assert.True(t, policy.Cannot(oc, "delete", pet{owner: "alice"}))
	assert.False(t, Authorized(oc))
	require.NoError(t, policy.Authorize(oc, "update", pet{owner: "alice"}))
	assert.True(t, Authorized(oc))
	assert.Equal(t, 1, built)

	policy.Can(invocation("rename_pet", "alice"), "update", pet{})
	assert.Equal(t, 2, built)
}

func TestCurrentUser(t *testing.T) {
	assert.Equal(t, "alice", CurrentUser(invocation("x", "alice")))
	assert.Nil(t, CurrentUser(invocation("x", nil)))

	nilAbility := New(func(any) Ability { return nil })
	assert.False(t, nilAbility.Can(invocation("x", "alice"), "read", pet{}))
}
