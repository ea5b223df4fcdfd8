package grpctp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
	protoext "github.com/hanpama/opgraph/internal/ext/protoext"
)

// ServiceHeader carries the full service name on every outgoing call.
const ServiceHeader = "x-opgraph-service"

// Transport calls unary methods of backend services with dynamic messages.
//
// Each endpoint gets a small set of long-lived client connections which are
// dialed lazily and used round-robin. Endpoints of a service are rotated the
// same way. Calls without a deadline get the configured RPC timeout.
type Transport struct {
	opts *Options

	mu       sync.Mutex
	channels map[string]*channelSet // by endpoint
	cursors  map[string]uint64      // next endpoint index by service
	closed   bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	if o.MaxConnsPerEndpoint <= 0 {
		o.MaxConnsPerEndpoint = 1
	}
	return &Transport{
		opts:     o,
		channels: make(map[string]*channelSet),
		cursors:  make(map[string]uint64),
	}
}

var _ protoext.Caller = (*Transport)(nil)

// Call invokes method on one endpoint of its service. Outgoing metadata
// already in ctx is forwarded.
func (t *Transport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	if t.opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if method.IsStreamingClient() || method.IsStreamingServer() {
		return nil, fmt.Errorf("%w: %s", ErrStreaming, method.FullName())
	}
	service := string(method.Parent().FullName())
	name := string(method.Name())

	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return nil, err
	}
	endpoint, cc, err := t.pick(service, endpoints)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, ServiceHeader, service)

	call := events.BackendCall{ID: uuid.NewString(), Service: service, Method: name, Target: endpoint}
	eventbus.Publish(ctx, events.GRPCClientStart{BackendCall: call})
	start := time.Now()
	out := dynamicpb.NewMessage(method.Output())
	err = cc.Invoke(ctx, "/"+service+"/"+name, request.Interface(), out)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		BackendCall: call,
		Code:        status.Code(err),
		Err:         err,
		Duration:    time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pick rotates over the endpoints of service and returns a connection to the
// chosen one.
func (t *Transport) pick(service string, endpoints []string) (string, *grpc.ClientConn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", nil, ErrClosed
	}
	n := t.cursors[service]
	t.cursors[service] = n + 1
	endpoint := endpoints[n%uint64(len(endpoints))]
	set := t.channels[endpoint]
	if set == nil {
		set = &channelSet{target: endpoint, conns: make([]*grpc.ClientConn, t.opts.MaxConnsPerEndpoint)}
		t.channels[endpoint] = set
	}
	t.mu.Unlock()

	cc, err := set.next(t.opts.DialOptions)
	return endpoint, cc, err
}

// Close releases every connection. Calls made afterwards fail with ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, set := range t.channels {
		set.close()
	}
	t.channels = nil
	return nil
}

// channelSet holds the connections of one endpoint. A gRPC client connection
// multiplexes concurrent calls, so several of them only spread load over
// separate HTTP/2 transports.
type channelSet struct {
	target string

	mu    sync.Mutex
	conns []*grpc.ClientConn
	n     uint64
}

func (s *channelSet) next(dialOpts []grpc.DialOption) (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.n % uint64(len(s.conns))
	s.n++
	if s.conns[i] == nil {
		cc, err := grpc.NewClient(s.target, dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("grpctp: dial %s: %w", s.target, err)
		}
		s.conns[i] = cc
	}
	return s.conns[i], nil
}

func (s *channelSet) dialed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cc := range s.conns {
		if cc != nil {
			n++
		}
	}
	return n
}

func (s *channelSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cc := range s.conns {
		if cc != nil {
			_ = cc.Close()
			s.conns[i] = nil
		}
	}
}
