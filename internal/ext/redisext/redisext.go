// Package redisext exposes JSON documents stored in Redis as object types.
//
// Each registered collection is a Go struct; its exported fields become
// fields of the object type, named after their json tags. Documents live at
// "<prefix>:<collection>:<id>" and the ids of a collection are kept in the
// set "<prefix>:<collection>".
package redisext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	structs "github.com/hanpama/opgraph/internal/ext/structs"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

const Prefix = "Redis"

var (
	ErrNotStruct         = errors.New("document model must be a struct type")
	ErrNoIdentifier      = errors.New("document model has no id field")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrMissingID         = errors.New("document has an empty id")
)

type collection struct {
	name string
	typ  reflect.Type
	id   int
}

type Extension struct {
	client redis.UniversalClient
	prefix string
	log    *zap.Logger

	mu          sync.RWMutex
	collections map[reflect.Type]*collection
	types       map[reflect.Type]*schema.Type
}

var _ types.Extension = (*Extension)(nil)

type Option func(*Extension)

func WithLogger(log *zap.Logger) Option { return func(e *Extension) { e.log = log } }

// WithKeyPrefix sets the prefix of every key. The default is "opgraph".
func WithKeyPrefix(prefix string) Option { return func(e *Extension) { e.prefix = prefix } }

func New(client redis.UniversalClient, opts ...Option) *Extension {
	e := &Extension{
		client:      client,
		prefix:      "opgraph",
		log:         zap.NewNop(),
		collections: map[reflect.Type]*collection{},
		types:       map[reflect.Type]*schema.Type{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register declares the collection name holding documents shaped like sample.
// The identifier is the field whose json name is "id".
func (e *Extension) Register(name string, sample any) error {
	t := structType(sample)
	if t == nil {
		return fmt.Errorf("%w: %T", ErrNotStruct, sample)
	}
	c := &collection{name: name, typ: t, id: -1}
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == "id" {
			c.id = i
			break
		}
	}
	if c.id < 0 {
		return fmt.Errorf("%w: %s", ErrNoIdentifier, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[t] = c
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
	c, ok := e.collections[t]
	if !ok {
		e.mu.Unlock()
		return nil, nil
	}
	def := schema.NewType(r.TypeName(Prefix, t.Name()), schema.TypeKindObject, "")
	e.types[t] = def
	e.mu.Unlock()

	node := r.NodeInterface()
	if node != nil {
		def.AddInterface(node.Name)
		def.AddField(structs.GlobalIDField(def.Name, c.id))
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if name == "" || (i == c.id && node != nil) {
			continue
		}
		ref, err := r.Resolve(f.Type, i == c.id)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.name, name, err)
		}
		def.AddField(schema.NewField(r.FieldName(name), "", ref).SetResolve(structs.Project(i)))
	}
	return def, nil
}

// Lookup loads the document with the given id from the collection emitted
// as typeName.
func (e *Extension) Lookup(ctx context.Context, typeName, id string) (any, error) {
	e.mu.RLock()
	var c *collection
	for t, def := range e.types {
		if def.Name == typeName {
			c = e.collections[t]
			break
		}
	}
	e.mu.RUnlock()
	if c == nil {
		return nil, nil
	}
	return e.load(ctx, c, id)
}

func (e *Extension) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = map[reflect.Type]*schema.Type{}
}

// Load fetches one document into a new value of the type of sample.
// A missing document yields (nil, nil).
func (e *Extension) Load(ctx context.Context, sample any, id string) (any, error) {
	c, err := e.collectionOf(sample)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, c, id)
}

// List returns every document of the collection of sample, ordered by id.
func (e *Extension) List(ctx context.Context, sample any) ([]any, error) {
	c, err := e.collectionOf(sample)
	if err != nil {
		return nil, err
	}
	ids, err := e.client.SMembers(ctx, e.setKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", c.name, err)
	}
	if len(ids) == 0 {
		return []any{}, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = e.key(c, id)
	}
	values, err := e.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s documents: %w", c.name, err)
	}
	docs := make([]any, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decode(c, []byte(data))
		if err != nil {
			e.log.Warn("Skipping undecodable document", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Save stores doc under its id and adds the id to the collection set.
func (e *Extension) Save(ctx context.Context, doc any) error {
	c, err := e.collectionOf(doc)
	if err != nil {
		return err
	}
	v := reflect.Indirect(reflect.ValueOf(doc))
	if !v.IsValid() {
		return ErrMissingID
	}
	id := fmt.Sprint(v.Field(c.id).Interface())
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.name, err)
	}
	_, err = e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, e.key(c, id), data, 0)
		pipe.SAdd(ctx, e.setKey(c), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", c.name, id, err)
	}
	return nil
}

func (e *Extension) load(ctx context.Context, c *collection, id string) (any, error) {
	data, err := e.client.Get(ctx, e.key(c, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", c.name, id, err)
	}
	return decode(c, data)
}

func (e *Extension) collectionOf(sample any) (*collection, error) {
	t := structType(sample)
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[t]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownCollection, sample)
	}
	return c, nil
}

func (e *Extension) key(c *collection, id string) string {
	return e.setKey(c) + ":" + id
}

func (e *Extension) setKey(c *collection) string {
	if e.prefix == "" {
		return c.name
	}
	return e.prefix + ":" + c.name
}

func decode(c *collection, data []byte) (any, error) {
	doc := reflect.New(c.typ)
	if err := json.Unmarshal(data, doc.Interface()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.name, err)
	}
	return doc.Interface(), nil
}

func structType(sample any) reflect.Type {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// jsonName is the document key of f, or "" when f is not serialized.
func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
