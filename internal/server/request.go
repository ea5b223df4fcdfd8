package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	executor "github.com/hanpama/opgraph/internal/executor"
)

// GraphQLRequest is one request of a POST body. Variables may be an object
// or a string holding a JSON object.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     any            `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// httpError is a failure answered before any operation runs.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func invalidBody() *httpError {
	return &httpError{status: http.StatusBadRequest, message: "Unable to parse request body"}
}

// readRequests decodes the GraphQL requests carried by r. batch reports
// whether the body was a JSON array.
func readRequests(r *http.Request, limit int64) (reqs []GraphQLRequest, batch bool, err error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := GraphQLRequest{Query: q.Get("query"), OperationName: q.Get("operationName")}
		if v := q.Get("variables"); v != "" {
			req.Variables = v
		}
		return []GraphQLRequest{req}, false, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
			return nil, false, &httpError{status: http.StatusUnsupportedMediaType, message: "Unsupported Content-Type"}
		}
	}
	defer r.Body.Close()
	body := io.Reader(r.Body)
	if limit > 0 {
		body = io.LimitReader(r.Body, limit+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, false, &httpError{status: http.StatusBadRequest, message: "Unable to read request body"}
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, false, &httpError{status: http.StatusRequestEntityTooLarge, message: "Request body too large"}
	}

	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("[")) {
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, true, invalidBody()
		}
		if len(reqs) == 0 {
			return nil, true, &httpError{status: http.StatusBadRequest, message: "Empty batch"}
		}
		return reqs, true, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, false, invalidBody()
	}
	return []GraphQLRequest{req}, false, nil
}

// response is the JSON body of an operation that started executing. Data is
// null when a Non-Null failure reached the root.
type response struct {
	Data   any                     `json:"data"`
	Errors []executor.GraphQLError `json:"errors,omitempty"`
}

// requestError is the JSON body of a request that failed before any field
// ran.
type requestError struct {
	Errors []executor.GraphQLError `json:"errors"`
}

func errorBody(message string) requestError {
	return requestError{Errors: []executor.GraphQLError{{Message: message}}}
}

// resultBody leaves data out of results that never reached a field. Field
// errors always carry a path, errors raised before execution never do.
func resultBody(res *executor.ExecutionResult) any {
	if res.Data != nil {
		return response{Data: res.Data, Errors: res.Errors}
	}
	for _, e := range res.Errors {
		if len(e.Path) > 0 {
			return response{Errors: res.Errors}
		}
	}
	return requestError{Errors: res.Errors}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}
