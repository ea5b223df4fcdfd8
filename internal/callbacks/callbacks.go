// Package callbacks runs before/around/after hooks around operation resolvers.
//
// A Chain belongs to one operation class and applies to every operation it
// declares. Hooks are filtered per invocation by operation name, run in
// registration order and stop at the first error.
package callbacks

import (
	"slices"
	"sync"
	"sync/atomic"

	operation "github.com/hanpama/opgraph/internal/operation"
)

type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAround Phase = "around"
	PhaseAfter  Phase = "after"
)

// Hook runs before or after the resolver body.
type Hook func(oc *operation.Context) error

// Body is the resolver body, or the remainder of the chain seen by an around
// hook.
type Body func(oc *operation.Context) (any, error)

// AroundHook wraps next. It must call next to continue the chain.
type AroundHook func(oc *operation.Context, next Body) (any, error)

type Option func(*registration)

// Only restricts a hook to the named operations.
func Only(names ...string) Option {
	return func(r *registration) { r.only = append(r.only, names...) }
}

// Except skips a hook for the named operations.
func Except(names ...string) Option {
	return func(r *registration) { r.except = append(r.except, names...) }
}

// If runs the hook only when cond reports true for the invocation.
func If(cond func(*operation.Context) bool) Option {
	return func(r *registration) { r.conds = append(r.conds, cond) }
}

// Unless skips the hook when cond reports true for the invocation.
func Unless(cond func(*operation.Context) bool) Option {
	return func(r *registration) {
		r.conds = append(r.conds, func(oc *operation.Context) bool { return !cond(oc) })
	}
}

type registration struct {
	phase  Phase
	only   []string
	except []string
	conds  []func(*operation.Context) bool
	hook   Hook
	around AroundHook
}

// applies matches names against both the declared and the emitted operation
// name, so hooks can be written either way.
func (r *registration) applies(oc *operation.Context) bool {
	named := func(names []string) bool {
		return slices.Contains(names, oc.Name) || slices.Contains(names, oc.Field)
	}
	if len(r.only) > 0 && !named(r.only) {
		return false
	}
	if named(r.except) {
		return false
	}
	for _, cond := range r.conds {
		if !cond(oc) {
			return false
		}
	}
	return true
}

type Chain struct {
	mu   sync.Mutex
	regs atomic.Pointer[[]*registration]
}

func New() *Chain {
	c := &Chain{}
	c.regs.Store(&[]*registration{})
	return c
}

func (c *Chain) Before(h Hook, opts ...Option) { c.add(&registration{phase: PhaseBefore, hook: h}, opts) }

func (c *Chain) After(h Hook, opts ...Option) { c.add(&registration{phase: PhaseAfter, hook: h}, opts) }

func (c *Chain) Around(h AroundHook, opts ...Option) {
	c.add(&registration{phase: PhaseAround, around: h}, opts)
}

// BeforeFilter, AfterFilter and AroundFilter are aliases kept for callers
// that use the filter spelling.
func (c *Chain) BeforeFilter(h Hook, opts ...Option)       { c.Before(h, opts...) }
func (c *Chain) AfterFilter(h Hook, opts ...Option)        { c.After(h, opts...) }
func (c *Chain) AroundFilter(h AroundHook, opts ...Option) { c.Around(h, opts...) }

func (c *Chain) add(r *registration, opts []Option) {
	for _, opt := range opts {
		opt(r)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.regs.Load()
	next := make([]*registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, r)
	c.regs.Store(&next)
}

// Len returns the number of registered hooks.
func (c *Chain) Len() int { return len(*c.regs.Load()) }

// Run executes the matching hooks and body for one invocation. Hooks
// registered while Run is in progress apply from the next invocation.
func (c *Chain) Run(oc *operation.Context, body Body) (any, error) {
	var befores, afters, arounds []*registration
	for _, r := range *c.regs.Load() {
		if !r.applies(oc) {
			continue
		}
		switch r.phase {
		case PhaseBefore:
			befores = append(befores, r)
		case PhaseAfter:
			afters = append(afters, r)
		case PhaseAround:
			arounds = append(arounds, r)
		}
	}

	for _, r := range befores {
		if err := r.hook(oc); err != nil {
			return nil, err
		}
	}

	// first registered around hook is outermost
	next := body
	for i := len(arounds) - 1; i >= 0; i-- {
		hook, inner := arounds[i].around, next
		next = func(oc *operation.Context) (any, error) { return hook(oc, inner) }
	}
	result, err := next(oc)
	if err != nil {
		return nil, err
	}

	for _, r := range afters {
		if err := r.hook(oc); err != nil {
			return nil, err
		}
	}
	return result, nil
}
