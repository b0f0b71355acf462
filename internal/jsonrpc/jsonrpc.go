package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Version is the JSON-RPC protocol version the gateway speaks.
const Version = "2.0"

// ValidateEnvelope checks a basic JSON-RPC 2.0 request envelope.
// Notifications (no id) fail validation: the HTTP boundary has nothing
// to return for them, so the gateway requires a correlatable id. The id
// is returned as its raw token so large or fractional numeric ids are
// matched against responses without a float64 round trip.
func ValidateEnvelope(body []byte) (id json.RawMessage, method string, ok bool) {
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
	}
	if json.Unmarshal(body, &env) != nil {
		return nil, "", false
	}
	if env.JSONRPC != Version || env.Method == "" {
		return nil, "", false
	}
	if _, idOK := IDKey(env.ID); !idOK {
		return nil, "", false
	}
	return env.ID, env.Method, true
}

// IDKey canonicalizes a JSON-RPC id (string or number) into a map key.
// Numbers are keyed by their literal token so "1" (string) and 1
// (number) stay distinct.
func IDKey(raw json.RawMessage) (string, bool) {
	tok := bytes.TrimSpace(raw)
	if len(tok) == 0 || bytes.Equal(tok, []byte("null")) {
		return "", false
	}
	if tok[0] == '"' {
		var s string
		if json.Unmarshal(tok, &s) != nil {
			return "", false
		}
		return "s:" + s, true
	}
	var n json.Number
	if json.Unmarshal(tok, &n) != nil {
		return "", false
	}
	return "n:" + n.String(), true
}

// IDKeyValue canonicalizes a Go id value the gateway minted itself,
// e.g. the supervisor's handshake id.
func IDKeyValue(v any) (string, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return IDKey(b)
}

// ExtractID pulls the raw id member out of a response line without
// decoding the rest of the message. ok is false when the id is absent
// or null, i.e. the line is a notification.
func ExtractID(line []byte) (key string, ok bool) {
	var env struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(line, &env) != nil {
		return "", false
	}
	return IDKey(env.ID)
}

// IsErrorResponse reports whether a response payload carries a JSON-RPC
// error member. Used only for log and metric outcome labels; the
// payload itself is always passed through verbatim.
func IsErrorResponse(payload []byte) bool {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(payload, &env) != nil {
		return false
	}
	return len(env.Error) > 0 && !bytes.Equal(bytes.TrimSpace(env.Error), []byte("null"))
}

// Request is a JSON-RPC request assembled by the gateway itself, e.g.
// the supervisor's initialize handshake.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request envelope with the protocol version set.
func NewRequest(id any, method string, params any) Request {
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}
