package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	ErrNoProvider  = errors.New("grpctp: provider not configured")
	ErrClosed      = errors.New("grpctp: closed")
	ErrStreaming   = errors.New("grpctp: streaming methods are not supported")
)
