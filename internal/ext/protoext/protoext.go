// Package protoext exposes protobuf messages as object types.
//
// Message descriptors are the type descriptors: scalar fields map onto the
// matching scalars, repeated fields onto lists, enums onto String and nested
// messages onto their own object types. Objects are protoreflect messages,
// usually dynamic ones returned by a gRPC backend.
//
// A message can be fetched by id when a registered service has a method
// named Load<Message>ById whose request carries an id field and whose
// response is the message itself or wraps it in its only message field.
package protoext

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	relay "github.com/hanpama/opgraph/internal/relay"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

const Prefix = "Proto"

var (
	ErrNoCaller      = errors.New("no gRPC caller configured")
	ErrInvalidLoader = errors.New("invalid loader method")
	ErrNotMessage    = errors.New("object is not a protobuf message")
)

// Caller invokes one unary method with a request message.
type Caller interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)

func (f CallerFunc) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	return f(ctx, method, request)
}

type loader struct {
	method protoreflect.MethodDescriptor
	id     protoreflect.FieldDescriptor
	// wrapped is the response field holding the message, nil when the
	// response is the message.
	wrapped protoreflect.FieldDescriptor
}

type Extension struct {
	caller Caller
	log    *zap.Logger

	mu      sync.RWMutex
	loaders map[protoreflect.FullName]*loader
	types   map[protoreflect.FullName]*schema.Type
	byName  map[string]protoreflect.MessageDescriptor
}

var (
	_ types.Extension   = (*Extension)(nil)
	_ types.ObjectTyper = (*Extension)(nil)
)

type Option func(*Extension)

func WithLogger(log *zap.Logger) Option { return func(e *Extension) { e.log = log } }

// New returns an extension loading objects through caller, which may be nil
// when no message needs to be fetched by id.
func New(caller Caller, opts ...Option) *Extension {
	e := &Extension{
		caller:  caller,
		log:     zap.NewNop(),
		loaders: map[protoreflect.FullName]*loader{},
		types:   map[protoreflect.FullName]*schema.Type{},
		byName:  map[string]protoreflect.MessageDescriptor{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterService records the Load<Message>ById methods of svc and returns
// the messages that became loadable.
func (e *Extension) RegisterService(svc protoreflect.ServiceDescriptor) ([]protoreflect.MessageDescriptor, error) {
	var loadable []protoreflect.MessageDescriptor
	methods := svc.Methods()
	for i := 0; i < methods.Len(); i++ {
		m := methods.Get(i)
		name := string(m.Name())
		if !strings.HasPrefix(name, "Load") || !strings.HasSuffix(name, "ById") {
			continue
		}
		l, target, err := newLoader(m)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.loaders[target.FullName()] = l
		e.mu.Unlock()
		loadable = append(loadable, target)
	}
	return loadable, nil
}

func newLoader(m protoreflect.MethodDescriptor) (*loader, protoreflect.MessageDescriptor, error) {
	if m.IsStreamingClient() || m.IsStreamingServer() {
		return nil, nil, fmt.Errorf("%w: %s is streaming", ErrInvalidLoader, m.FullName())
	}
	id := m.Input().Fields().ByName("id")
	if id == nil || id.IsList() || id.IsMap() {
		return nil, nil, fmt.Errorf("%w: %s has no id field", ErrInvalidLoader, m.FullName())
	}
	switch id.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind, protoreflect.BytesKind, protoreflect.BoolKind, protoreflect.EnumKind:
		return nil, nil, fmt.Errorf("%w: %s id is %s", ErrInvalidLoader, m.FullName(), id.Kind())
	}

	want := strings.TrimSuffix(strings.TrimPrefix(string(m.Name()), "Load"), "ById")
	out := m.Output()
	if string(out.Name()) == want {
		return &loader{method: m, id: id}, out, nil
	}
	fields := out.Fields()
	if fields.Len() == 1 && fields.Get(0).Message() != nil && !fields.Get(0).IsList() && !fields.Get(0).IsMap() {
		return &loader{method: m, id: id, wrapped: fields.Get(0)}, fields.Get(0).Message(), nil
	}
	return nil, nil, fmt.Errorf("%w: %s does not return %s", ErrInvalidLoader, m.FullName(), want)
}

func (e *Extension) Prefix() string { return Prefix }

func (e *Extension) Resolve(r types.Resolver, d any) (*schema.Type, error) {
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, nil
	}
	if md.IsMapEntry() {
		return nil, nil
	}

	e.mu.Lock()
	if def, ok := e.types[md.FullName()]; ok {
		e.mu.Unlock()
		return def, nil
	}
	def := schema.NewType(r.TypeName(Prefix, string(md.Name())), schema.TypeKindObject, "")
	e.types[md.FullName()] = def
	e.byName[def.Name] = md
	e.mu.Unlock()

	fields := md.Fields()
	node := r.NodeInterface()
	if id := fields.ByName("id"); id != nil && node != nil && !id.IsList() && !id.IsMap() {
		def.AddInterface(node.Name)
		def.AddField(globalIDField(def.Name, id))
	}
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Name() == "id" && node != nil && def.Implements(node.Name) {
			continue
		}
		if fd.IsMap() {
			e.log.Warn("Skipping field with unsupported kind",
				zap.String("type", def.Name), zap.String("field", string(fd.Name())), zap.String("kind", "map"))
			continue
		}
		ref, err := e.fieldType(r, fd)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", md.FullName(), fd.Name(), err)
		}
		if fd.IsList() {
			ref = schema.ListType(ref)
		}
		def.AddField(schema.NewField(r.FieldName(string(fd.Name())), "", ref).SetResolve(project(fd)))
	}
	return def, nil
}

func (e *Extension) fieldType(r types.Resolver, fd protoreflect.FieldDescriptor) (*schema.TypeRef, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return schema.RefTo(schema.BooleanType), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return schema.RefTo(schema.IntType), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return schema.RefTo(schema.FloatType), nil
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.EnumKind:
		return schema.RefTo(schema.StringType), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return r.Resolve(fd.Message(), false)
	}
	return nil, fmt.Errorf("unsupported kind %s", fd.Kind())
}

// Lookup fetches the message emitted as typeName through its loader method.
// A NotFound status or an empty response yields (nil, nil).
func (e *Extension) Lookup(ctx context.Context, typeName, id string) (any, error) {
	e.mu.RLock()
	md := e.byName[typeName]
	var l *loader
	if md != nil {
		l = e.loaders[md.FullName()]
	}
	e.mu.RUnlock()
	if l == nil {
		return nil, nil
	}
	if e.caller == nil {
		return nil, ErrNoCaller
	}

	req := dynamicpb.NewMessage(l.method.Input())
	v, err := idValue(l.id, id)
	if err != nil {
		return nil, nil
	}
	req.Set(l.id, v)

	e.log.Debug("Loading message", zap.String("method", string(l.method.FullName())), zap.String("id", id))
	resp, err := e.caller.Call(ctx, l.method, req)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	if l.wrapped != nil {
		if !resp.Has(l.wrapped) {
			return nil, nil
		}
		resp = resp.Get(l.wrapped).Message()
	}
	if !resp.IsValid() {
		return nil, nil
	}
	return resp, nil
}

// NativeType maps a message object onto its descriptor.
func (e *Extension) NativeType(obj any) (any, bool) {
	msg, ok := message(obj)
	if !ok {
		return nil, false
	}
	return msg.Descriptor(), true
}

func (e *Extension) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = map[protoreflect.FullName]*schema.Type{}
	e.byName = map[string]protoreflect.MessageDescriptor{}
}

// idValue converts a native id into the request's id field. Ids that do not
// parse for the field kind cannot name an existing message.
func idValue(fd protoreflect.FieldDescriptor, id string) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(id), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := strconv.ParseInt(id, 10, 32)
		return protoreflect.ValueOfInt32(int32(n)), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := strconv.ParseInt(id, 10, 64)
		return protoreflect.ValueOfInt64(n), err
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := strconv.ParseUint(id, 10, 32)
		return protoreflect.ValueOfUint32(uint32(n)), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := strconv.ParseUint(id, 10, 64)
		return protoreflect.ValueOfUint64(n), err
	}
	return protoreflect.Value{}, fmt.Errorf("unsupported id kind %s", fd.Kind())
}

func message(obj any) (protoreflect.Message, bool) {
	switch m := obj.(type) {
	case protoreflect.Message:
		return m, true
	case interface{ ProtoReflect() protoreflect.Message }:
		return m.ProtoReflect(), true
	}
	return nil, false
}

func globalIDField(typeName string, fd protoreflect.FieldDescriptor) *schema.Field {
	return schema.NewField("id", "ID of the object.", schema.NonNullType(schema.RefTo(schema.IDType))).
		SetResolve(func(_ context.Context, source any, _ map[string]any) (any, error) {
			msg, ok := message(source)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrNotMessage, source)
			}
			return relay.ToGlobalID(typeName, fmt.Sprint(msg.Get(fd).Interface())), nil
		})
}

// project reads fd from the source message. Unset message fields are null;
// unset scalars read as their default.
func project(fd protoreflect.FieldDescriptor) schema.ResolveFn {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		msg, ok := message(source)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotMessage, source)
		}
		if fd.Message() != nil && !fd.IsList() && !msg.Has(fd) {
			return nil, nil
		}
		v := msg.Get(fd)
		if fd.IsList() {
			list := v.List()
			out := make([]any, list.Len())
			for i := range out {
				out[i] = scalar(fd, list.Get(i))
			}
			return out, nil
		}
		return scalar(fd, v), nil
	}
}

func scalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return strconv.Itoa(int(v.Enum()))
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return v.Message()
	}
	return v.Interface()
}
