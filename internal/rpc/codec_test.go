package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"method":"read_file","params":{"path":"/tmp/a.txt"},"id":7}`))
	require.NoError(t, err)

	assert.Equal(t, "read_file", req.Method)
	assert.Equal(t, "/tmp/a.txt", req.Params["path"])
	assert.Equal(t, json.Number("7"), req.ID)
}

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest([]byte(`{"params":null}`))
	require.NoError(t, err)

	assert.Equal(t, UnknownMethod, req.Method)
	assert.NotNil(t, req.Params)
	assert.Empty(t, req.Params)
}

func TestParseRequest_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"method not string", `{"method":42}`, "method"},
		{"params is array", `{"method":"x","params":[1,2]}`, "params"},
		{"document is array", `[1,2,3]`, "document"},
		{"trailing data", `{"method":"x"} {"method":"y"}`, "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.input))
			var shape *ShapeError
			require.True(t, errors.As(err, &shape), "got %v", err)
			assert.Equal(t, tt.field, shape.Field)
		})
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	_, err := ParseRequest([]byte(`{"method":`))
	require.Error(t, err)
}

func TestCanonical_SortedAndUnescaped(t *testing.T) {
	doc, err := Decode([]byte(`{"b":1,"a":"<script>","c":{"z":1.50,"y":2}}`))
	require.NoError(t, err)

	got, err := CanonicalString(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<script>","b":1,"c":{"y":2,"z":1.50}}`, got)
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	a, err := ParseRequest([]byte(`{"method":"m","params":{"x":1,"y":2}}`))
	require.NoError(t, err)
	b, err := ParseRequest([]byte(`{"params":{"y":2,"x":1},"method":"m"}`))
	require.NoError(t, err)
	c, err := ParseRequest([]byte(`{"params":{"y":3,"x":1},"method":"m"}`))
	require.NoError(t, err)

	assert.Len(t, a.Hash(), HashLength)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"request":{"method":"read_file"},"response":{"error":{"code":-32000,"message":"boom"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "read_file", env.Request.Method)
	assert.True(t, env.Response.HasError())
	assert.Equal(t, json.Number("-32000"), env.Response.ErrorCode())
}

func TestParseEnvelope_Missing(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, UnknownMethod, env.Request.Method)
	assert.False(t, env.Response.HasError())
	assert.Nil(t, env.Response.ErrorCode())
}

func TestParseEnvelope_BadResponse(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"request":{},"response":"text"}`))
	var shape *ShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "response", shape.Field)
}

func TestNewErrorDocument(t *testing.T) {
	doc := NewErrorDocument(CodeMethodNotFound, "Tool access denied", map[string]any{"type": "access_control_violation"})
	b, err := Canonical(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":-32601,"message":"Tool access denied","data":{"type":"access_control_violation"}}}`, string(b))
}
