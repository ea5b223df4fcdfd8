package grpctp

import (
	"time"

	"google.golang.org/grpc"

	config "github.com/hanpama/opgraph/internal/config"
)

// Options configures the transport. By default every endpoint is served by
// up to two connections and calls without a deadline time out after 3s.
// Without DialOptions connections are plaintext. Calls fail until a
// Provider is set.
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	DialOptions []grpc.DialOption
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}

// FromConfig maps the [grpc] configuration section onto options backed by
// static endpoints.
func FromConfig(c config.GRPC) []Option {
	return []Option{
		WithProvider(NewStaticEndpoints(c.Backends)),
		WithMaxConnsPerEndpoint(c.MaxConnsPerEndpoint),
		WithRPCTimeout(c.RPCTimeout.Duration),
	}
}
