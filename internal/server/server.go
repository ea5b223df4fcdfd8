// Package server serves an engine over HTTP.
//
// Queries are accepted as GET parameters or as a JSON POST body (a single
// request or a batch). Malformed queries and variables are answered with
// 400, unexpected failures with 500; everything else, including field errors,
// is a 200 GraphQL response.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	authz "github.com/hanpama/opgraph/internal/authz"
	engine "github.com/hanpama/opgraph/internal/engine"
	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
	executor "github.com/hanpama/opgraph/internal/executor"
	reqid "github.com/hanpama/opgraph/internal/reqid"
)

// RequestIDHeader is read from requests, echoed on responses and forwarded
// to backends as metadata.
const RequestIDHeader = "X-Request-Id"

// Executor runs one GraphQL request. *engine.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, req engine.Request) (*executor.ExecutionResult, error)
}

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	exec      Executor
	opt       Options
	forwarded map[string]bool // lower-cased header names
}

// New creates a GraphQL HTTP handler executing requests with exec. Requests
// time out after 10s unless WithTimeout says otherwise.
func New(exec Executor, opts ...Option) *Handler {
	h := &Handler{exec: exec, opt: Options{Timeout: 10 * time.Second, Logger: zap.NewNop()}}
	for _, f := range opts {
		f(&h.opt)
	}
	h.forwarded = make(map[string]bool, len(h.opt.MetadataHeaders))
	for _, name := range h.opt.MetadataHeaders {
		h.forwarded[strings.ToLower(name)] = true
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := requestContext(r)
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	w.Header().Set(RequestIDHeader, rid)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: rec.status, Duration: time.Since(start)})
	}()

	h.serve(ctx, rec, r, rid)
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request, rid string) {
	h.allowOrigin(w, r)
	switch {
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case r.Method != http.MethodGet && r.Method != http.MethodPost:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("Method not allowed"), h.opt.Pretty)
		return
	case r.Method == http.MethodGet && h.opt.GraphiQL && r.URL.Query().Get("query") == "" && acceptsHTML(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	claims, err := bearerClaims(r, h.opt.JWTSecret)
	if err != nil {
		h.opt.Logger.Debug("Rejected bearer token", zap.String("request_id", rid), zap.Error(err))
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSON(w, http.StatusUnauthorized, errorBody("Invalid token"), h.opt.Pretty)
		return
	}
	var ambient map[string]any
	if claims != nil {
		ambient = map[string]any{authz.CurrentUserKey: claims}
	}

	reqs, batch, err := readRequests(r, h.opt.MaxBodyBytes)
	if err != nil {
		var he *httpError
		errors.As(err, &he)
		writeJSON(w, he.status, errorBody(he.message), h.opt.Pretty)
		return
	}

	ctx = metadata.NewOutgoingContext(ctx, h.outgoingMetadata(r, rid))
	if !batch {
		status, body := h.execute(ctx, reqs[0], ambient)
		writeJSON(w, status, body, h.opt.Pretty)
		return
	}
	// Per-request failures of a batch are reported in its entries.
	bodies := make([]any, len(reqs))
	for i, req := range reqs {
		_, bodies[i] = h.execute(ctx, req, ambient)
	}
	writeJSON(w, http.StatusOK, bodies, h.opt.Pretty)
}

func (h *Handler) execute(ctx context.Context, req GraphQLRequest, ambient map[string]any) (int, any) {
	res, err := h.exec.Execute(ctx, engine.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
		Context:       ambient,
	})
	if err != nil {
		var ce *engine.ClientError
		if errors.As(err, &ce) {
			return http.StatusBadRequest, errorBody(ce.Message)
		}
		return http.StatusInternalServerError, errorBody(engine.ErrInternal.Error())
	}
	return http.StatusOK, resultBody(res)
}

// requestContext attaches the incoming request ID to the context, or a new
// one when the client sent none.
func requestContext(r *http.Request) (context.Context, string) {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return reqid.WithID(r.Context(), id)
	}
	return reqid.NewContext(r.Context())
}

func (h *Handler) outgoingMetadata(r *http.Request, rid string) metadata.MD {
	md := metadata.MD{}
	for name, values := range r.Header {
		if lower := strings.ToLower(name); h.forwarded[lower] {
			md[lower] = values
		}
	}
	md.Set(strings.ToLower(RequestIDHeader), rid)
	return md
}

func (h *Handler) allowOrigin(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opt.AllowedOrigins) == 0 {
		return
	}
	allow := ""
	for _, o := range h.opt.AllowedOrigins {
		if o == "*" {
			allow = "*"
			break
		}
		if o == origin {
			allow = origin
		}
	}
	switch allow {
	case "":
		return
	case "*":
		w.Header().Set("Access-Control-Allow-Origin", "*")
	default:
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
	}
}

func acceptsHTML(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if mt == "text/html" || mt == "*/*" {
			return true
		}
	}
	return false
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
