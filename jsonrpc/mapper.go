package jsonrpc

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// RequestHandler answers one decoded request through the sink. Handlers run
// on worker goroutines and must write exactly one response.
type RequestHandler interface {
	Handle(ctx context.Context, sink *ResponseSink, req *Request)
}

type HandlerFunc func(ctx context.Context, sink *ResponseSink, req *Request)

func (f HandlerFunc) Handle(ctx context.Context, sink *ResponseSink, req *Request) {
	f(ctx, sink, req)
}

// MethodNotFoundHandler is returned by the mapper for unknown methods.
var MethodNotFoundHandler RequestHandler = HandlerFunc(func(_ context.Context, sink *ResponseSink, req *Request) {
	sink.WriteError(NewError(MethodNotFound, req.Method))
})

// RequestMapper routes method names to handlers. Registration happens during
// startup; once frozen the mapper is read-only.
type RequestMapper struct {
	mu       sync.RWMutex
	handlers map[string]RequestHandler
	frozen   bool
}

func NewRequestMapper() *RequestMapper {
	return &RequestMapper{handlers: make(map[string]RequestHandler)}
}

// Register panics on a duplicate method or after Freeze.
func (m *RequestMapper) Register(method string, h RequestHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		panic(fmt.Sprintf("jsonrpc: register %q on a frozen mapper", method))
	}
	if method == "" || h == nil {
		panic("jsonrpc: register requires a method name and a handler")
	}
	if _, ok := m.handlers[method]; ok {
		panic(fmt.Sprintf("jsonrpc: method %q registered twice", method))
	}
	m.handlers[method] = h
}

func (m *RequestMapper) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// MatchingHandler resolves method exactly (case-sensitive). Unknown methods
// resolve to MethodNotFoundHandler.
func (m *RequestMapper) MatchingHandler(method string) RequestHandler {
	h, _ := m.lookup(method)
	return h
}

func (m *RequestMapper) lookup(method string) (RequestHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.handlers[method]; ok {
		return h, true
	}
	return MethodNotFoundHandler, false
}

func (m *RequestMapper) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	methods := make([]string, 0, len(m.handlers))
	for method := range m.handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}
