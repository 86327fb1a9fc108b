package jsonrpc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/account-generator/metrics"
)

const maxBodySize = 1 << 20

// Executor runs tasks off the HTTP goroutine. Submit returns an error when
// the task could not be queued; once accepted the task always runs.
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

// Dispatcher is the HTTP entry point for JSON-RPC calls. Decoding happens on
// the HTTP goroutine, the handler runs on the executor and the HTTP goroutine
// waits for it. Client disconnects do not cancel a running handler.
type Dispatcher struct {
	mapper    *RequestMapper
	exec      Executor
	responses *ResponseFactory
	log       *slog.Logger
}

func NewDispatcher(mapper *RequestMapper, exec Executor, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mapper:    mapper,
		exec:      exec,
		responses: NewResponseFactory(log),
		log:       log,
	}
}

func (d *Dispatcher) RegisterRoutes(r chi.Router) {
	r.Post("/", d.ServeHTTP)
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		d.log.Info("Dropping request from "+r.RemoteAddr, "err", err)
		d.rejectUnparsable(w)
		return
	}

	req, rpcErr := DecodeRequest(body)
	if rpcErr != nil {
		d.log.Info("Dropping request from "+r.RemoteAddr, "err", rpcErr.Data)
		d.log.Debug("Dropped request body", "body", string(body))
		d.rejectUnparsable(w)
		return
	}

	handler, known := d.mapper.lookup(req.Method)
	metricsMethod := req.Method
	if !known {
		metricsMethod = metrics.MethodUnknown
	}

	log := d.log.With("method", req.Method)
	sink := newResponseSink(w, req, metricsMethod, d.responses, log)

	done := make(chan struct{})
	task := func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				log.Error("JSON-RPC handler panicked", "panic", p, "stack", string(debug.Stack()))
			}
			if !sink.Written() {
				log.Error("JSON-RPC handler returned without a response")
				sink.WriteError(NewError(InternalError, nil))
			}
		}()
		handler.Handle(context.WithoutCancel(r.Context()), sink, req)
	}

	if err := d.exec.Submit(r.Context(), task); err != nil {
		log.Warn("Failed to schedule JSON-RPC handler", "err", err)
		sink.WriteError(NewError(InternalError, "server busy"))
		return
	}
	<-done
}

// rejectUnparsable writes the same PARSE_ERROR object for every bad body.
// Decoding details only go to the log.
func (d *Dispatcher) rejectUnparsable(w http.ResponseWriter) {
	rpcErr := NewError(ParseError, nil)
	metrics.RecordRPC(metrics.MethodUnknown, rpcErr.Code.Name())
	d.responses.Failure(w, nil, rpcErr)
}
