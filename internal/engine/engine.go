// Package engine wires the type registry, schema assembler, node
// identification and operation DSL into one executable GraphQL endpoint.
//
//	eng := engine.New(config.Default().Engine, engine.WithLogger(log))
//	err := eng.Declare(func(e *engine.Engine) error {
//		return e.Operations().Query("version", reflect.TypeOf(""), ...)
//	})
//	res, err := eng.Execute(ctx, engine.Request{Query: "{ version }"})
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	assembler "github.com/hanpama/opgraph/internal/assembler"
	config "github.com/hanpama/opgraph/internal/config"
	dsl "github.com/hanpama/opgraph/internal/dsl"
	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
	executor "github.com/hanpama/opgraph/internal/executor"
	language "github.com/hanpama/opgraph/internal/language"
	logging "github.com/hanpama/opgraph/internal/logging"
	naming "github.com/hanpama/opgraph/internal/naming"
	node "github.com/hanpama/opgraph/internal/node"
	operation "github.com/hanpama/opgraph/internal/operation"
	schema "github.com/hanpama/opgraph/internal/schema"
	types "github.com/hanpama/opgraph/internal/types"
)

// ErrInternal is returned for failures whose details stay in the log.
var ErrInternal = operation.ErrInternal

type ClientErrorKind string

const (
	KindQuery     ClientErrorKind = "query"
	KindVariables ClientErrorKind = "variables"
)

// ClientError is a request the engine could not accept. Message is fixed per
// kind and safe to return to the caller.
type ClientError struct {
	Kind    ClientErrorKind
	Message string
	Err     error
}

func (e *ClientError) Error() string { return e.Message }
func (e *ClientError) Unwrap() error { return e.Err }

// Request is one GraphQL operation to execute. Variables may be a
// map[string]any, a JSON object as string or []byte, or nil. Context is
// exposed to resolvers as the ambient values of each operation.
type Request struct {
	Query         string
	OperationName string
	Variables     any
	Context       map[string]any
}

// Declaration declares operations on an engine. Declarations run again after
// every Reload.
type Declaration func(e *Engine) error

type Engine struct {
	cfg  config.Engine
	log  *zap.Logger
	reg  *types.Registry
	asm  *assembler.Assembler
	node *node.Identification

	mu           sync.RWMutex
	ops          *dsl.Operations
	declarations []Declaration
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option { return func(e *Engine) { e.log = log } }

func New(cfg config.Engine, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	e.reg = types.New(
		types.WithNamer(naming.New(cfg.CamelCase)),
		types.WithGlobalIDs(cfg.GlobalIDs),
		types.WithLogger(e.log),
	)
	e.node = node.New(e.reg)
	asmOpts := []assembler.Option{
		assembler.WithTypeResolver(e.node.ResolveType),
		assembler.WithMaxDepth(cfg.MaxDepth),
		assembler.WithIntrospection(cfg.Introspection),
		assembler.WithLogger(e.log),
	}
	if cfg.GlobalIDs {
		asmOpts = append(asmOpts, assembler.WithNodeField(e.node.Field()))
	}
	e.asm = assembler.New(asmOpts...)
	e.ops = dsl.New(e.reg, e.asm, dsl.WithLogger(e.log))
	return e
}

func (e *Engine) Config() config.Engine { return e.cfg }

func (e *Engine) Types() *types.Registry { return e.reg }

func (e *Engine) Assembler() *assembler.Assembler { return e.asm }

func (e *Engine) Node() *node.Identification { return e.node }

// Operations returns the operation builder declarations should use.
func (e *Engine) Operations() *dsl.Operations {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ops
}

// Declare runs d now and remembers it for Reload.
func (e *Engine) Declare(d Declaration) error {
	if err := d(e); err != nil {
		return err
	}
	e.mu.Lock()
	e.declarations = append(e.declarations, d)
	e.mu.Unlock()
	return nil
}

// Reload drops every derived type and declared operation, then runs the
// declarations again against a fresh operation builder.
func (e *Engine) Reload() error {
	e.mu.Lock()
	e.reg.Clear()
	e.asm.Clear()
	e.ops = dsl.New(e.reg, e.asm, dsl.WithLogger(e.log))
	declarations := append([]Declaration(nil), e.declarations...)
	e.mu.Unlock()

	e.log.Debug("Loading operations", zap.Int("declarations", len(declarations)))
	for _, d := range declarations {
		if err := d(e); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	return nil
}

// Schema returns the current executable schema without introspection types.
func (e *Engine) Schema() (*schema.Schema, error) {
	inst, err := e.asm.Instance()
	if err != nil {
		return nil, err
	}
	return inst.Schema, nil
}

// SDL renders the current schema.
func (e *Engine) SDL() (string, error) {
	s, err := e.Schema()
	if err != nil {
		return "", err
	}
	return schema.Render(s), nil
}

// Execute runs one request. Validation and field failures are reported inside
// the result; the returned error is a *ClientError or ErrInternal.
func (e *Engine) Execute(ctx context.Context, req Request) (res *executor.ExecutionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Exception(logging.WithRequest(ctx, e.log), "Unexpected exception during execution", fmt.Errorf("panic: %v", p))
			res, err = nil, ErrInternal
		}
	}()

	doc, perr := language.ParseQuery(req.Query)
	if perr == nil && len(doc.Operations) == 0 {
		perr = errNoOperations
	}
	if perr != nil {
		return nil, &ClientError{Kind: KindQuery, Message: "Unable to parse query", Err: perr}
	}
	vars, verr := ParseVariables(req.Variables)
	if verr != nil {
		return nil, &ClientError{Kind: KindVariables, Message: "Unable to parse variables", Err: verr}
	}
	inst, ierr := e.asm.Instance()
	if ierr != nil {
		logging.Exception(logging.WithRequest(ctx, e.log), "Unexpected exception during execution", ierr)
		return nil, ErrInternal
	}
	if len(req.Context) > 0 {
		ctx = operation.WithAmbient(ctx, req.Context)
	}

	opType := operationType(doc, req.OperationName)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	res = inst.Executor.ExecuteRequest(ctx, doc, req.OperationName, vars, nil)
	errs := make([]error, len(res.Errors))
	for i := range res.Errors {
		errs[i] = res.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return res, nil
}

var (
	errNoOperations       = errors.New("document contains no operations")
	errVariablesNotObject = errors.New("variables must be a JSON object")
)

// ParseVariables normalizes the accepted variable encodings. Blank input and
// JSON null mean no variables.
func ParseVariables(v any) (map[string]any, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	default:
		return nil, fmt.Errorf("%w: got %T", errVariablesNotObject, v)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	switch t := out.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	}
	return nil, errVariablesNotObject
}

func operationType(doc *language.QueryDocument, name string) string {
	op := doc.Operations.ForName(name)
	if op == nil && len(doc.Operations) == 1 {
		op = doc.Operations[0]
	}
	if op == nil {
		return ""
	}
	return string(op.Operation)
}
