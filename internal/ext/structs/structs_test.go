package structs

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

type cat struct {
	Key     int    `graphql:"id,id"`
	Name    string `graphql:"full_name"`
	Lives   int
	Friend  *cat
	Vet     func()
	Secret  string `graphql:"-"`
	checked bool
}

type label struct {
	Text string
}

func fieldNames(t *testing.T, r *types.Registry, model any) []string {
	t.Helper()
	ref, err := r.Resolve(reflect.TypeOf(model), false)
	require.NoError(t, err)
	var names []string
	for _, f := range ref.NamedDef().Fields {
		names = append(names, f.Name)
	}
	return names
}

func TestResolveModel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ext := New(WithLogger(zap.New(core)))
	require.NoError(t, ext.Register(&cat{}, nil))
	r := types.New()
	require.NoError(t, r.AddExtension(ext))

	ref, err := r.Resolve(reflect.TypeOf(&cat{}), false)
	require.NoError(t, err)
	def := ref.NamedDef()
	require.Equal(t, "Cat", def.Name)
	require.Equal(t, []string{relay.NodeInterfaceName}, def.Interfaces)
	require.Equal(t, []string{"id", "fullName", "lives", "friend"}, fieldNames(t, r, cat{}))
	require.Equal(t, "ID!", def.Field("id").Type.String())
	require.Same(t, def, def.Field("friend").Type.NamedDef())
	require.Equal(t, 1, logs.FilterMessage("Skipping field with unsupported kind").Len())

	ctx := context.Background()
	src := &cat{Key: 7, Name: "Tom", Lives: 9}
	id, err := def.Field("id").Resolve(ctx, src, nil)
	require.NoError(t, err)
	require.Equal(t, relay.ToGlobalID("Cat", "7"), id)
	name, err := def.Field("fullName").Resolve(ctx, *src, nil)
	require.NoError(t, err)
	require.Equal(t, "Tom", name)
	friend, err := def.Field("friend").Resolve(ctx, src, nil)
	require.NoError(t, err)
	require.Nil(t, friend)
}

func TestWithoutGlobalIDs(t *testing.T) {
	ext := New()
	require.NoError(t, ext.Register(cat{}, nil))
	require.NoError(t, ext.Register(label{}, nil))
	r := types.New(types.WithGlobalIDs(false))
	require.NoError(t, r.AddExtension(ext))

	ref, err := r.Resolve(reflect.TypeOf(cat{}), false)
	require.NoError(t, err)
	assert.Empty(t, ref.NamedDef().Interfaces)
	assert.Equal(t, "Int", ref.NamedDef().Field("id").Type.String())

	v, err := ref.NamedDef().Field("id").Resolve(context.Background(), cat{Key: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// no identifier, no Node
	ref, err = r.Resolve(reflect.TypeOf(label{}), false)
	require.NoError(t, err)
	assert.Empty(t, ref.NamedDef().Interfaces)
	assert.Equal(t, []string{"text"}, fieldNames(t, r, label{}))
}

func TestUnregisteredStructs(t *testing.T) {
	ext := New()
	r := types.New()
	require.NoError(t, r.AddExtension(ext))

	ref, err := r.Resolve(reflect.TypeOf(cat{}), false)
	require.NoError(t, err)
	require.Equal(t, "String", ref.String())

	require.ErrorIs(t, ext.Register(42, nil), ErrNotStruct)
	require.ErrorIs(t, ext.Register(nil, nil), ErrNotStruct)
}

func TestLookup(t *testing.T) {
	boom := errors.New("store offline")
	ext := New()
	require.NoError(t, ext.Register(cat{}, func(_ context.Context, id string) (any, error) {
		switch id {
		case "1":
			return &cat{Key: 1, Name: "Tom"}, nil
		case "err":
			return nil, boom
		}
		return nil, nil
	}))
	require.NoError(t, ext.Register(label{}, nil))
	r := types.New()
	require.NoError(t, r.AddExtension(ext))
	_, err := r.Resolve(reflect.TypeOf(cat{}), false)
	require.NoError(t, err)
	_, err = r.Resolve(reflect.TypeOf(label{}), false)
	require.NoError(t, err)

	ctx := context.Background()
	obj, err := ext.Lookup(ctx, "Cat", "1")
	require.NoError(t, err)
	require.Equal(t, &cat{Key: 1, Name: "Tom"}, obj)

	obj, err = ext.Lookup(ctx, "Cat", "2")
	require.NoError(t, err)
	require.Nil(t, obj)

	obj, err = ext.Lookup(ctx, "Label", "1")
	require.NoError(t, err)
	require.Nil(t, obj)

	_, err = ext.Lookup(ctx, "Cat", "err")
	require.ErrorIs(t, err, boom)

	ext.Clear()
	obj, err = ext.Lookup(ctx, "Cat", "1")
	require.NoError(t, err)
	require.Nil(t, obj)
}

type otherExt struct{ *Extension }

func (otherExt) Prefix() string { return "Other" }

func TestNamespacedName(t *testing.T) {
	ext := New()
	require.NoError(t, ext.Register(label{}, nil))
	r := types.New()
	require.NoError(t, r.AddExtension(ext))
	require.NoError(t, r.AddExtension(otherExt{New()}))

	ref, err := r.Resolve(reflect.TypeOf(label{}), false)
	require.NoError(t, err)
	require.Equal(t, "StructLabel", ref.NamedDef().Name)
}

type tally struct {
	Count int
	Note  string
}

// flakyResolver fails every int field while fail is set.
type flakyResolver struct{ fail bool }

var errUnavailable = errors.New("type unavailable")

func (r *flakyResolver) Resolve(d any, _ bool) (*schema.TypeRef, error) {
	if r.fail && d == reflect.TypeOf(0) {
		return nil, errUnavailable
	}
	return schema.RefTo(schema.StringType), nil
}

func (*flakyResolver) TypeName(_, name string) string { return name }
func (*flakyResolver) FieldName(name string) string   { return name }
func (*flakyResolver) NodeInterface() *schema.Type    { return nil }

func TestFailedFieldsAreNotCached(t *testing.T) {
	ext := New()
	require.NoError(t, ext.Register(tally{}, nil))
	r := &flakyResolver{fail: true}

	_, err := ext.Resolve(r, reflect.TypeOf(tally{}))
	require.ErrorIs(t, err, errUnavailable)

	r.fail = false
	def, err := ext.Resolve(r, reflect.TypeOf(tally{}))
	require.NoError(t, err)
	var names []string
	for _, f := range def.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"Count", "Note"}, names)
}
