// Package executor runs GraphQL operations breadth first against a Runtime.
//
// # Execution
//
// Before any field runs, the executor selects the operation (by name, or the
// only one when unnamed), enforces the optional maximum depth, and coerces
// variables against their declarations, including input objects and enums.
// Any failure here ends the request with a single error and no data.
//
// Fields are then expanded level by level:
//
//   - Sync fields (schema.Field.Async false) resolve through
//     Runtime.ResolveSync and are completed at once, so a chain of sync fields
//     never adds a level.
//   - Async fields are queued. When the current level is drained, every queued
//     task goes to Runtime.BatchResolveAsync in a single call, and their
//     completion discovers the next level.
//
// For an operation whose async fields nest d deep, BatchResolveAsync is called
// exactly d times. Operation root fields and the node field are async; fields
// of returned objects are sync projections unless they carry a resolver.
//
// # Completion
//
// Lists complete element by element with indexed paths. Leaves go through
// Runtime.SerializeLeafValue. Interface and union values go through
// Runtime.ResolveType and must land on an object type of the schema.
// Fragments apply when their type condition names the object type, an
// interface it implements, or a union containing it.
//
// # Errors
//
// Errors are collected with their response path and execution continues. A
// null or failing Non-Null field nulls its nearest nullable ancestor, and
// queued tasks below a nulled path are dropped before the next batch.
package executor
