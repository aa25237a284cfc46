package rpc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HashLength is the number of hex characters kept from the SHA-256 digest.
const HashLength = 16

// Decode parses a single JSON object. Numbers are kept as json.Number so that
// re-encoding reproduces them exactly.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ShapeError{Field: "document", Reason: "trailing data after JSON object"}
	}

	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &ShapeError{Field: "document", Reason: "expected a JSON object"}
	}
	return doc, nil
}

// DecodeValue parses any JSON value, keeping numbers as json.Number.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// Canonical serializes v with object keys sorted and without HTML escaping,
// so that '<' and '>' survive for content inspection.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalString is Canonical returning a string.
func CanonicalString(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the first HashLength hex characters of the SHA-256 digest of
// the canonical serialization of v.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:HashLength], nil
}

// ParseRequest decodes a tool request. A missing method becomes "unknown"
// and missing or null params become an empty object; a method or params of
// the wrong type is a ShapeError.
func ParseRequest(data []byte) (*ToolRequest, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return RequestFromDocument(doc)
}

// RequestFromDocument builds a ToolRequest from an already decoded object.
func RequestFromDocument(doc map[string]any) (*ToolRequest, error) {
	req := &ToolRequest{Method: UnknownMethod, Params: map[string]any{}, ID: doc["id"], doc: doc}

	switch m := doc["method"].(type) {
	case nil:
	case string:
		req.Method = m
	default:
		return req, &ShapeError{Field: "method", Reason: fmt.Sprintf("expected string, got %s", TypeName(m))}
	}

	switch p := doc["params"].(type) {
	case nil:
	case map[string]any:
		req.Params = p
	default:
		return req, &ShapeError{Field: "params", Reason: fmt.Sprintf("expected object, got %s", TypeName(p))}
	}

	return req, nil
}

// ParseEnvelope decodes a {request, response} document. A missing request is
// treated as an empty request; a missing response as an empty response.
func ParseEnvelope(data []byte) (*Envelope, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EnvelopeFromDocument(doc)
}

// EnvelopeFromDocument builds an Envelope from an already decoded object.
func EnvelopeFromDocument(doc map[string]any) (*Envelope, error) {
	reqDoc, err := objectField(doc, "request")
	if err != nil {
		return nil, err
	}
	respDoc, err := objectField(doc, "response")
	if err != nil {
		return nil, err
	}

	req, err := RequestFromDocument(reqDoc)
	if err != nil {
		return nil, err
	}
	return &Envelope{Request: req, Response: NewToolResponse(respDoc)}, nil
}

func objectField(doc map[string]any, name string) (map[string]any, error) {
	switch v := doc[name].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, &ShapeError{Field: name, Reason: fmt.Sprintf("expected object, got %s", TypeName(v))}
	}
}

// TypeName names the JSON type of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
