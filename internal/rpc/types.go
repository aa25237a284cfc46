// Package rpc defines the JSON documents exchanged with the gateway: tool
// requests, tool responses, the post-filter {request, response} envelope and
// the JSON-RPC style error payload returned when a filter blocks.
package rpc

import (
	"fmt"
	"time"
)

// JSON-RPC error codes. Only InternalError and MethodNotFound are emitted by
// the filters; the rest are kept for completeness of the convention.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// UnknownMethod is the method name used when a request carries none.
const UnknownMethod = "unknown"

// ErrorBody is a JSON-RPC 2.0 error object.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorDocument is the substitute payload emitted when a filter blocks.
type ErrorDocument struct {
	Error ErrorBody `json:"error"`
}

// NewErrorDocument builds a block payload. data may be nil.
func NewErrorDocument(code int, message string, data any) ErrorDocument {
	return ErrorDocument{Error: ErrorBody{Code: code, Message: message, Data: data}}
}

// ToolRequest is one tool invocation as received from the gateway.
type ToolRequest struct {
	Method string
	Params map[string]any
	ID     any

	doc map[string]any
}

// Document returns the request exactly as decoded, including fields the
// filters do not interpret. Callers must not modify it.
func (r *ToolRequest) Document() map[string]any { return r.doc }

// Hash returns the correlation hash of the request document.
func (r *ToolRequest) Hash() string {
	h, err := Hash(r.doc)
	if err != nil {
		// doc came from the JSON decoder, so it always re-encodes.
		return ""
	}
	return h
}

// ToolResponse wraps a tool result document. Result and Error are kept as
// decoded; Error is authoritative when present.
type ToolResponse struct {
	doc map[string]any
}

// NewToolResponse wraps an already decoded response document.
func NewToolResponse(doc map[string]any) *ToolResponse {
	if doc == nil {
		doc = map[string]any{}
	}
	return &ToolResponse{doc: doc}
}

func (r *ToolResponse) Document() map[string]any { return r.doc }

func (r *ToolResponse) Result() any { return r.doc["result"] }

// HasError reports whether the response carries an error field.
func (r *ToolResponse) HasError() bool {
	_, ok := r.doc["error"]
	return ok
}

// ErrorCode returns the code of an error object, or nil when the response has
// no error or the error is not an object.
func (r *ToolResponse) ErrorCode() any {
	e, ok := r.doc["error"].(map[string]any)
	if !ok {
		return nil
	}
	return e["code"]
}

// Envelope is the post-filter input: the request that was sent and the
// response that came back.
type Envelope struct {
	Request  *ToolRequest
	Response *ToolResponse
}

// ShapeError reports a document whose structure does not match what a
// filter expects.
type ShapeError struct {
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Timestamp formats t the way every emitted document does.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Session is the caller context supplied by the gateway alongside each
// invocation. It is trusted as given.
type Session struct {
	SessionID        string `json:"session_id"`
	ClientIP         string `json:"client_ip"`
	UserRole         string `json:"user_role"`
	UserAgent        string `json:"user_agent"`
	AuthLevel        string `json:"auth_level"`
	ProcessingTimeMS string `json:"processing_time_ms"`
	MemoryUsageMB    string `json:"memory_usage_mb"`
}
