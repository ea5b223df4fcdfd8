// Package events defines the payloads published on the event bus. Every
// Start event has a Finish counterpart emitted with the same context.
package events

import (
	"net/http"
	"time"
)

// HTTPStart opens an HTTP request. The emitting context carries the request
// id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish closes an HTTP request with the status written.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// GraphQLStart precedes execution of a parsed document. OperationType is
// empty when no operation matches the requested name.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish follows execution with the errors of the response.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}
