package jsonrpc

// Canonical gateway error codes surfaced in error envelopes.
const (
	ErrSchema            = "MCP_SCHEMA_ERROR"
	ErrEngineUnavailable = "MCP_ENGINE_UNAVAILABLE"
	ErrTimeout           = "MCP_TIMEOUT"
	ErrConnectionLost    = "MCP_CONNECTION_LOST"
	ErrUpstreamError     = "MCP_UPSTREAM_ERROR"
	ErrLimitExceeded     = "MCP_LIMIT_EXCEEDED"
)
