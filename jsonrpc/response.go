package jsonrpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ruteri/account-generator/metrics"
)

// ResponseFactory encodes responses onto the HTTP response writer.
type ResponseFactory struct {
	log *slog.Logger
}

func NewResponseFactory(log *slog.Logger) *ResponseFactory {
	return &ResponseFactory{log: log}
}

func (f *ResponseFactory) Create(w http.ResponseWriter, status int, resp *Response) {
	resp.JSONRPC = Version
	body, err := json.Marshal(resp)
	if err != nil {
		// Only a handler result can fail to encode.
		f.log.Error("Failed to encode JSON-RPC response", "err", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(&Response{JSONRPC: Version, Error: NewError(InternalError, nil), ID: resp.ID})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		f.log.Debug("Failed to write JSON-RPC response", "err", err)
	}
}

func (f *ResponseFactory) Success(w http.ResponseWriter, id json.RawMessage, result any) {
	f.Create(w, http.StatusOK, &Response{Result: result, ID: id})
}

func (f *ResponseFactory) Failure(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	f.Create(w, StatusFor(rpcErr.Code), &Response{Error: rpcErr, ID: id})
}

// ResponseSink is what handlers answer through. It accepts exactly one
// response; later writes are dropped and logged.
type ResponseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	id      json.RawMessage
	method  string
	written bool

	factory *ResponseFactory
	log     *slog.Logger
}

func newResponseSink(w http.ResponseWriter, req *Request, metricsMethod string, factory *ResponseFactory, log *slog.Logger) *ResponseSink {
	return &ResponseSink{
		w:       w,
		id:      req.ID,
		method:  metricsMethod,
		factory: factory,
		log:     log,
	}
}

func (s *ResponseSink) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		s.log.Warn("Dropping duplicate JSON-RPC response", "method", s.method)
		return false
	}
	s.written = true
	return true
}

func (s *ResponseSink) WriteResult(result any) {
	if !s.claim() {
		return
	}
	metrics.RecordRPC(s.method, metrics.StatusSuccess)
	s.factory.Success(s.w, s.id, result)
}

func (s *ResponseSink) WriteError(rpcErr *Error) {
	if !s.claim() {
		return
	}
	metrics.RecordRPC(s.method, rpcErr.Code.Name())
	s.factory.Failure(s.w, s.id, rpcErr)
}

func (s *ResponseSink) Written() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
