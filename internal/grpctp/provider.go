package grpctp

import (
	"context"
	"fmt"
	"sync"
)

// EndpointProvider lists the reachable endpoints (host:port or a gRPC target)
// of a fully qualified service name such as "pets.v1.PetService".
// Implementations must be safe for concurrent use and return at least one
// endpoint or an error.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// Wildcard keys the endpoints used for services without their own entry.
const Wildcard = "*"

// StaticEndpoints is a provider backed by a fixed map.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = append([]string(nil), v...)
	}
	return &StaticEndpoints{data: cp}
}

// Set replaces the endpoints of service.
func (s *StaticEndpoints) Set(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[service] = append([]string(nil), endpoints...)
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		arr = s.data[Wildcard]
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoints, service)
	}
	return append([]string(nil), arr...), nil
}
