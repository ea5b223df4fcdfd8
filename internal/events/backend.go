package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// BackendCall identifies one unary call to a gRPC backend. ID is shared by
// the start and finish events of the call.
type BackendCall struct {
	ID      string
	Service string // fully qualified, e.g. pets.v1.PetService
	Method  string
	Target  string
}

type GRPCClientStart struct {
	BackendCall
}

// GRPCClientFinish carries the status code of the call; Err is nil on OK.
type GRPCClientFinish struct {
	BackendCall
	Code     codes.Code
	Err      error
	Duration time.Duration
}
