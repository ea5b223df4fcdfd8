package events

import "time"

// OperationStart is emitted before a declared query or mutation resolver runs
// its callback chain. ID is unique per invocation.
type OperationStart struct {
	ID    string
	Kind  string
	Name  string
	Field string
}

// OperationFinish is emitted after the resolver boundary translated the
// outcome. Internal is set when the failure was replaced by a generic error.
type OperationFinish struct {
	ID       string
	Kind     string
	Name     string
	Field    string
	Err      error
	Internal bool
	Duration time.Duration
}
