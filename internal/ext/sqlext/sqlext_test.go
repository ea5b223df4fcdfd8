package sqlext

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

type owner struct {
	ID     int64          `db:"id"`
	Name   string         `db:"full_name"`
	Email  sql.NullString `db:"email"`
	Rating sql.NullFloat64
	Notes  string `db:"-"`
}

type noKey struct {
	Name string
}

const ownerQuery = `SELECT "id", "full_name", "email", "rating" FROM "owners" WHERE "id" = $1`

func setup(t *testing.T, opts ...types.Option) (*Extension, sqlmock.Sqlmock, *schema.Type) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ext := New(db)
	require.NoError(t, ext.Register("owners", owner{}))
	reg := types.New(opts...)
	require.NoError(t, ext.Install(reg))
	ref, err := reg.Resolve(reflect.TypeOf(owner{}), false)
	require.NoError(t, err)
	return ext, mock, ref.NamedDef()
}

func TestResolveTable(t *testing.T) {
	_, _, def := setup(t)
	require.Equal(t, "Owner", def.Name)
	require.True(t, def.Implements(relay.NodeInterfaceName))

	var names []string
	for _, f := range def.Fields {
		names = append(names, f.Name+": "+f.Type.String())
	}
	require.Equal(t, []string{"id: ID!", "fullName: String", "email: String", "rating: Float"}, names)

	ctx := context.Background()
	row := &owner{ID: 4, Name: "Alice", Email: sql.NullString{String: "a@example.com", Valid: true}}
	id, err := def.Field("id").Resolve(ctx, row, nil)
	require.NoError(t, err)
	assert.Equal(t, relay.ToGlobalID("Owner", "4"), id)
	email, err := def.Field("email").Resolve(ctx, row, nil)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)
	rating, err := def.Field("rating").Resolve(ctx, row, nil)
	require.NoError(t, err)
	assert.Nil(t, rating)
}

func TestNativeKeyWithoutGlobalIDs(t *testing.T) {
	_, _, def := setup(t, types.WithGlobalIDs(false))
	require.Empty(t, def.Interfaces)
	require.Equal(t, "Int!", def.Field("id").Type.String())
}

func TestLookup(t *testing.T) {
	ext, mock, _ := setup(t)
	ctx := context.Background()
	cols := []string{"id", "full_name", "email", "rating"}

	mock.ExpectQuery(ownerQuery).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(4), "Alice", nil, 4.5))
	got, err := ext.Lookup(ctx, "Owner", "4")
	require.NoError(t, err)
	require.Equal(t, &owner{ID: 4, Name: "Alice", Rating: sql.NullFloat64{Float64: 4.5, Valid: true}}, got)

	mock.ExpectQuery(ownerQuery).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(cols))
	got, err = ext.Lookup(ctx, "Owner", "5")
	require.NoError(t, err)
	require.Nil(t, got)

	boom := errors.New("connection reset")
	mock.ExpectQuery(ownerQuery).WithArgs(int64(6)).WillReturnError(boom)
	_, err = ext.Lookup(ctx, "Owner", "6")
	require.ErrorIs(t, err, boom)

	for _, malformed := range []string{"abc", "", "4.5", "99999999999999999999"} {
		got, err = ext.Lookup(ctx, "Owner", malformed)
		require.NoError(t, err, malformed)
		require.Nil(t, got, malformed)
	}

	got, err = ext.Lookup(ctx, "Pet", "4")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupAfterClear(t *testing.T) {
	ext, mock, _ := setup(t)
	ext.Clear()
	got, err := ext.Lookup(context.Background(), "Owner", "4")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterErrors(t *testing.T) {
	ext := New(nil)
	require.ErrorIs(t, ext.Register("owners", 42), ErrNotStruct)
	require.ErrorIs(t, ext.Register("labels", noKey{}), ErrNoKey)
}

// flakyResolver fails every string column while fail is set.
type flakyResolver struct{ fail bool }

var errUnavailable = errors.New("type unavailable")

func (r *flakyResolver) Resolve(d any, _ bool) (*schema.TypeRef, error) {
	if r.fail && d == reflect.TypeOf("") {
		return nil, errUnavailable
	}
	return schema.RefTo(schema.StringType), nil
}

func (*flakyResolver) TypeName(prefix, name string) string { return prefix + name }
func (*flakyResolver) FieldName(name string) string        { return name }
func (*flakyResolver) NodeInterface() *schema.Type         { return nil }

func TestFailedColumnsAreNotCached(t *testing.T) {
	ext := New(nil)
	require.NoError(t, ext.Register("owners", owner{}))
	r := &flakyResolver{fail: true}

	_, err := ext.Resolve(r, reflect.TypeOf(owner{}))
	require.ErrorIs(t, err, errUnavailable)
	got, err := ext.Lookup(context.Background(), "Sqlowner", "1")
	require.NoError(t, err)
	require.Nil(t, got)

	r.fail = false
	def, err := ext.Resolve(r, reflect.TypeOf(owner{}))
	require.NoError(t, err)
	require.Equal(t, "Sqlowner", def.Name)
	require.Len(t, def.Fields, 4)
}
