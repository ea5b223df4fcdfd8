// Package authz is an optional authorization policy for declared operations.
//
// CheckAuthorization installs an after hook that fails every invocation that
// neither called Authorize nor was exempted with SkipAuthorizationCheck.
// Both failures reach the client with a fixed message.
package authz

import (
	"errors"

	callbacks "github.com/hanpama/opgraph/internal/callbacks"
	operation "github.com/hanpama/opgraph/internal/operation"
)

const (
	MsgUnchecked = "This operation failed to perform an authorization check"
	MsgDenied    = "You are not authorized to perform this operation"

	// CurrentUserKey is the ambient key transports store the caller under.
	CurrentUserKey = "current_user"
)

var ErrAccessDenied = errors.New("access denied")

const (
	authorizedKey = "authz.authorized"
	abilityKey    = "authz.ability"
)

// Ability decides what one user may do.
type Ability interface {
	Can(action string, subject any) bool
}

// AbilityFunc adapts a function to Ability.
type AbilityFunc func(action string, subject any) bool

func (f AbilityFunc) Can(action string, subject any) bool { return f(action, subject) }

// Policy builds an Ability for the current user of each invocation.
type Policy struct {
	abilityFor func(user any) Ability
}

func New(abilityFor func(user any) Ability) *Policy {
	return &Policy{abilityFor: abilityFor}
}

// CheckAuthorization requires an authorization decision in every operation
// matched by opts.
func CheckAuthorization(chain *callbacks.Chain, opts ...callbacks.Option) {
	chain.After(func(oc *operation.Context) error {
		if Authorized(oc) {
			return nil
		}
		return operation.Errorf(MsgUnchecked)
	}, opts...)
}

// SkipAuthorizationCheck exempts the operations matched by opts.
func SkipAuthorizationCheck(chain *callbacks.Chain, opts ...callbacks.Option) {
	chain.Before(func(oc *operation.Context) error {
		oc.Set(authorizedKey, true)
		return nil
	}, opts...)
}

// Authorized reports whether an authorization decision was recorded.
func Authorized(oc *operation.Context) bool {
	_, ok := oc.Get(authorizedKey)
	return ok
}

// Authorize records that a check happened and fails unless the current user
// can perform action on subject.
func (p *Policy) Authorize(oc *operation.Context, action string, subject any) error {
	oc.Set(authorizedKey, true)
	if !p.Ability(oc).Can(action, subject) {
		return operation.Wrap(ErrAccessDenied, MsgDenied)
	}
	return nil
}

func (p *Policy) Can(oc *operation.Context, action string, subject any) bool {
	return p.Ability(oc).Can(action, subject)
}

func (p *Policy) Cannot(oc *operation.Context, action string, subject any) bool {
	return !p.Can(oc, action, subject)
}

// Ability returns the current user's ability, built once per invocation.
func (p *Policy) Ability(oc *operation.Context) Ability {
	if a, ok := oc.Get(abilityKey); ok {
		return a.(Ability)
	}
	a := p.abilityFor(CurrentUser(oc))
	if a == nil {
		a = AbilityFunc(func(string, any) bool { return false })
	}
	oc.Set(abilityKey, a)
	return a
}

// CurrentUser returns the ambient current user, or nil.
func CurrentUser(oc *operation.Context) any {
	return oc.Ambient[CurrentUserKey]
}
