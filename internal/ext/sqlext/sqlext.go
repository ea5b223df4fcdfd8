// Package sqlext exposes rows of SQL tables as object types.
//
// A table is registered with a struct whose fields carry db tags naming the
// columns; untagged exported fields use their lower-cased name. The column
// named "id" (or the field tagged `db:"...,key"`) identifies a row and is used
// by Lookup:
//
//	SELECT "id", "name" FROM "owners" WHERE "id" = $1
//
// Identifiers are quoted for PostgreSQL.
package sqlext

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	structs "github.com/hanpama/opgraph/internal/ext/structs"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

const Prefix = "Sql"

var (
	ErrNotStruct = errors.New("table model must be a struct type")
	ErrNoKey     = errors.New("table model has no key column")
)

type column struct {
	name  string
	index int
}

type table struct {
	name    string
	typ     reflect.Type
	key     int
	columns []column
	query   string
}

type Extension struct {
	db  *sql.DB
	log *zap.Logger

	mu     sync.RWMutex
	tables map[reflect.Type]*table
	types  map[reflect.Type]*schema.Type
}

var _ types.Extension = (*Extension)(nil)

type Option func(*Extension)

func WithLogger(log *zap.Logger) Option { return func(e *Extension) { e.log = log } }

func New(db *sql.DB, opts ...Option) *Extension {
	e := &Extension{
		db:     db,
		log:    zap.NewNop(),
		tables: map[reflect.Type]*table{},
		types:  map[reflect.Type]*schema.Type{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nullScalars are the database/sql wrappers exposed as their plain scalar.
var nullScalars = map[reflect.Type]reflect.Type{
	reflect.TypeOf(sql.NullString{}):  reflect.TypeOf(""),
	reflect.TypeOf(sql.NullInt64{}):   reflect.TypeOf(int64(0)),
	reflect.TypeOf(sql.NullInt32{}):   reflect.TypeOf(int32(0)),
	reflect.TypeOf(sql.NullInt16{}):   reflect.TypeOf(int16(0)),
	reflect.TypeOf(sql.NullFloat64{}): reflect.TypeOf(float64(0)),
	reflect.TypeOf(sql.NullBool{}):    reflect.TypeOf(false),
	reflect.TypeOf(sql.NullTime{}):    reflect.TypeOf(time.Time{}),
}

// Install aliases the sql.Null* types onto their scalars and adds e to reg.
func (e *Extension) Install(reg *types.Registry) error {
	for native, scalar := range nullScalars {
		if err := reg.Alias(native, scalar); err != nil {
			return fmt.Errorf("alias %s: %w", native, err)
		}
	}
	return reg.AddExtension(e)
}

// Register maps name to the struct type of sample.
func (e *Extension) Register(name string, sample any) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T", ErrNotStruct, sample)
	}

	tb := &table{name: name, typ: t, key: -1}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		col, isKey := columnTag(f)
		if !f.IsExported() || col == "-" {
			continue
		}
		if isKey || (col == "id" && tb.key < 0) {
			tb.key = len(tb.columns)
		}
		tb.columns = append(tb.columns, column{name: col, index: i})
	}
	if tb.key < 0 {
		return fmt.Errorf("%w: %s", ErrNoKey, name)
	}
	tb.query = selectByKey(tb)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[t] = tb
	return nil
}

func (e *Extension) Prefix() string { return Prefix }

func (e *Extension) Resolve(r types.Resolver, d any) (*schema.Type, error) {
	t, ok := d.(reflect.Type)
	if !ok {
		return nil, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	e.mu.Lock()
	if def, ok := e.types[t]; ok {
		e.mu.Unlock()
		return def, nil
	}
	tb, ok := e.tables[t]
	if !ok {
		e.mu.Unlock()
		return nil, nil
	}
	def := schema.NewType(r.TypeName(Prefix, t.Name()), schema.TypeKindObject, fmt.Sprintf("Row of the %s table.", tb.name))
	e.types[t] = def
	e.mu.Unlock()

	node := r.NodeInterface()
	for i, col := range tb.columns {
		if i == tb.key && node != nil {
			def.AddInterface(node.Name)
			def.AddField(structs.GlobalIDField(def.Name, col.index))
			continue
		}
		f := t.Field(col.index)
		ref, err := r.Resolve(f.Type, i == tb.key)
		if err != nil {
			e.forget(t, def)
			return nil, fmt.Errorf("%s.%s: %w", tb.name, col.name, err)
		}
		def.AddField(schema.NewField(r.FieldName(col.name), "", ref).SetResolve(project(col.index)))
	}
	return def, nil
}

// forget drops def when its fields could not be resolved, unless a Clear
// already replaced it.
func (e *Extension) forget(t reflect.Type, def *schema.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.types[t] == def {
		delete(e.types, t)
	}
}

// Lookup loads the row with the given key from the table emitted as typeName.
func (e *Extension) Lookup(ctx context.Context, typeName, id string) (any, error) {
	e.mu.RLock()
	var tb *table
	for t, def := range e.types {
		if def.Name == typeName {
			tb = e.tables[t]
			break
		}
	}
	e.mu.RUnlock()
	if tb == nil {
		return nil, nil
	}
	key, ok := keyArg(tb.typ.Field(tb.columns[tb.key].index).Type, id)
	if !ok {
		e.log.Debug("Malformed row key", zap.String("table", tb.name), zap.String("id", id))
		return nil, nil
	}

	row := reflect.New(tb.typ)
	dest := make([]any, len(tb.columns))
	for i, col := range tb.columns {
		dest[i] = row.Elem().Field(col.index).Addr().Interface()
	}
	e.log.Debug("Loading row", zap.String("table", tb.name), zap.String("id", id))
	err := e.db.QueryRowContext(ctx, tb.query, key).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Interface(), nil
}

func (e *Extension) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = map[reflect.Type]*schema.Type{}
}

// keyArg converts id to the kind of the key column. ok is false when no row
// of that column can have id as its key.
func keyArg(t reflect.Type, id string) (key any, ok bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if scalar, isNull := nullScalars[t]; isNull {
		t = scalar
	}
	var err error
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		key, err = strconv.ParseInt(id, 10, t.Bits())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		key, err = strconv.ParseUint(id, 10, t.Bits())
	case reflect.Float32, reflect.Float64:
		key, err = strconv.ParseFloat(id, t.Bits())
	case reflect.Bool:
		key, err = strconv.ParseBool(id)
	default:
		key = id
	}
	return key, err == nil
}

func columnTag(f reflect.StructField) (name string, isKey bool) {
	name, opts, _ := strings.Cut(f.Tag.Get("db"), ",")
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "key" {
			isKey = true
		}
	}
	return name, isKey
}

func selectByKey(tb *table) string {
	cols := make([]string, len(tb.columns))
	for i, col := range tb.columns {
		cols[i] = pq.QuoteIdentifier(col.name)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(cols, ", "), pq.QuoteIdentifier(tb.name), pq.QuoteIdentifier(tb.columns[tb.key].name))
}

// project reads a column value from a row, unwrapping sql.Null* values.
func project(index int) schema.ResolveFn {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		v := reflect.ValueOf(source)
		for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || index >= v.NumField() {
			return nil, fmt.Errorf("cannot read column %d of %T", index, source)
		}
		value := v.Field(index).Interface()
		if valuer, ok := value.(driver.Valuer); ok {
			return valuer.Value()
		}
		return value, nil
	}
}
