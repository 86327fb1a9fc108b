// Package jsonrpc implements the JSON-RPC 2.0 request path of the account
// generator: decoding, method routing, response encoding and the HTTP
// dispatcher that hands requests to a worker pool.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	// ID is echoed verbatim; absent IDs are answered with null.
	ID json.RawMessage `json:"id,omitempty"`
}

// Response carries either Result or Error, never both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type ErrorCode int

const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

func (c ErrorCode) Message() string {
	switch c {
	case ParseError:
		return "Parse error"
	case InvalidRequest:
		return "Invalid Request"
	case MethodNotFound:
		return "Method not found"
	case InvalidParams:
		return "Invalid params"
	case InternalError:
		return "Internal error"
	}
	return "Server error"
}

// Name is used as a metrics label.
func (c ErrorCode) Name() string {
	switch c {
	case ParseError:
		return "parse_error"
	case InvalidRequest:
		return "invalid_request"
	case MethodNotFound:
		return "method_not_found"
	case InvalidParams:
		return "invalid_params"
	case InternalError:
		return "internal_error"
	}
	return fmt.Sprintf("code_%d", int(c))
}

// StatusFor maps an error code to the HTTP status of the response carrying it.
func StatusFor(c ErrorCode) int {
	switch c {
	case ParseError, InvalidRequest, MethodNotFound, InvalidParams:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func NewError(code ErrorCode, data any) *Error {
	return &Error{Code: code, Message: code.Message(), Data: data}
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
