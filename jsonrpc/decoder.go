package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeRequest parses a single JSON-RPC request. Anything that is not a
// JSON object with a non-empty string method, a string/number/null id and
// object or array params is rejected with a PARSE_ERROR.
func DecodeRequest(body []byte) (*Request, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, NewError(ParseError, fmt.Sprintf("request is not a JSON object: %v", err))
	}
	if fields == nil {
		return nil, NewError(ParseError, "request is not a JSON object")
	}

	req := &Request{}

	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &req.JSONRPC); err != nil {
			return nil, NewError(ParseError, "jsonrpc must be a string")
		}
	}

	raw, ok := fields["method"]
	if !ok {
		return nil, NewError(ParseError, "method is missing")
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil || isNull(raw) {
		return nil, NewError(ParseError, "method must be a string")
	}
	if req.Method == "" {
		return nil, NewError(ParseError, "method must not be empty")
	}

	if raw, ok := fields["id"]; ok {
		if err := validateID(raw); err != nil {
			return nil, NewError(ParseError, err.Error())
		}
		req.ID = raw
	}

	if raw, ok := fields["params"]; ok && !isNull(raw) {
		switch firstByte(raw) {
		case '{', '[':
			req.Params = raw
		default:
			return nil, NewError(ParseError, "params must be an object or an array")
		}
	}

	return req, nil
}

func validateID(raw json.RawMessage) error {
	switch firstByte(raw) {
	case '"', 'n':
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return nil
	}
	return errors.New("id must be a string, a number or null")
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
