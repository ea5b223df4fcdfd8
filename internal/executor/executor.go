package executor

import (
	"context"
	"fmt"

	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

type Executor struct {
	runtime    Runtime
	schema     *schema.Schema
	maxDepth   int
	validation *language.ValidationSchema
}

type Option func(*Executor)

// WithMaxDepth rejects operations whose field nesting exceeds n before any
// resolver runs. n <= 0 disables the check.
func WithMaxDepth(n int) Option { return func(e *Executor) { e.maxDepth = n } }

// WithValidation checks every document against v before executing it.
// Invalid documents are answered with their rule violations and no data.
func WithValidation(v *language.ValidationSchema) Option {
	return func(e *Executor) { e.validation = v }
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: schema}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema requests are executed against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// ExecuteRequest runs one operation of document. initialValue is the source
// of the root fields.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	if e.validation != nil {
		if errs := language.Validate(e.validation, document); len(errs) > 0 {
			return invalid(errs)
		}
	}
	op, err := selectOperation(document, operationName)
	if err != nil {
		return failed(err.Error())
	}
	if e.maxDepth > 0 {
		if depth := language.Depth(document, op); depth > e.maxDepth {
			return failed(fmt.Sprintf("Query has depth of %d, which exceeds max depth of %d", depth, e.maxDepth))
		}
	}
	vars, err := coerceVariableValues(e.schema, op, variableValues)
	if err != nil {
		return failed(err.Error())
	}
	root, err := e.rootType(op.Operation)
	if err != nil {
		return failed(err.Error())
	}

	ex := &execution{
		ctx:      ctx,
		rt:       e.runtime,
		schema:   e.schema,
		doc:      document,
		vars:     vars,
		errorAt:  make(map[string]bool),
		nullable: make(map[string]bool),
		nulled:   make(map[string]bool),
	}
	return ex.run(root, op.SelectionSet, initialValue)
}

func failed(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

func invalid(errs []*language.ValidationError) *ExecutionResult {
	res := &ExecutionResult{Errors: make([]GraphQLError, len(errs))}
	for i, err := range errs {
		res.Errors[i].Message = err.Message
		for _, loc := range err.Locations {
			res.Errors[i].Locations = append(res.Errors[i].Locations, Location{Line: loc.Line, Column: loc.Column})
		}
	}
	return res
}

// selectOperation picks the named operation, or the only one when name is
// empty.
func selectOperation(doc *language.QueryDocument, name string) (*language.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		if len(doc.Operations) == 0 {
			return nil, fmt.Errorf("operation not found")
		}
		return nil, fmt.Errorf("operation name is required when the document has %d operations", len(doc.Operations))
	}
	if op := doc.Operations.ForName(name); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("operation not found")
}

func (e *Executor) rootType(kind language.Operation) (*schema.Type, error) {
	var root *schema.Type
	switch kind {
	case language.Query:
		root = e.schema.GetQueryType()
	case language.Mutation:
		root = e.schema.GetMutationType()
	case language.Subscription:
		root = e.schema.GetSubscriptionType()
	default:
		return nil, fmt.Errorf("unsupported operation type: %s", kind)
	}
	if root == nil {
		return nil, fmt.Errorf("root type not found for %s operation", kind)
	}
	return root, nil
}

// execution is the state of one ExecuteRequest call.
type execution struct {
	ctx    context.Context
	rt     Runtime
	schema *schema.Schema
	doc    *language.QueryDocument
	vars   map[string]any

	errors  []GraphQLError
	errorAt map[string]bool

	data     map[string]any
	dataNull bool
	pending  []*deferredField

	// nullable records, by path, whether a completed list or object position
	// may hold null. nulled holds positions replaced by null after the fact.
	nullable map[string]bool
	nulled   map[string]bool
}

func (ex *execution) run(root *schema.Type, sel language.SelectionSet, source any) *ExecutionResult {
	data, ok := ex.executeFields(root, sel, source, nil)
	if !ok {
		return &ExecutionResult{Errors: ex.errors}
	}
	ex.data = data
	for len(ex.pending) > 0 && !ex.dataNull {
		ex.flush()
	}
	if ex.dataNull {
		return &ExecutionResult{Errors: ex.errors}
	}
	return &ExecutionResult{Data: ex.data, Errors: ex.errors}
}

func (ex *execution) addError(message string, path Path) {
	ex.errors = append(ex.errors, GraphQLError{Message: message, Path: path})
	ex.errorAt[path.String()] = true
}

// underNulled reports whether p or one of its ancestors was nulled.
func (ex *execution) underNulled(p Path) bool {
	if len(ex.nulled) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if ex.nulled[p[:i].String()] {
			return true
		}
	}
	return false
}
