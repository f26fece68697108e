// Package schema validates and normalizes every request body that
// crosses from an external caller into business logic. Closed field
// sets and basic type/length bounds are enforced by compiled JSON
// Schemas (github.com/santhosh-tekuri/jsonschema/v5); cross-field
// constraints and string normalization, which JSON Schema has no clean
// way to express, are enforced afterward in plain Go, exactly once,
// before the value is used anywhere else.
package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compile builds a Draft 2020-12 schema from a literal JSON Schema
// document. It panics on a bad schema literal, which can only happen due
// to a programming error in this package, never from external input.
func compile(id, doc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(id, strings.NewReader(doc)); err != nil {
		panic(fmt.Sprintf("schema: bad literal schema %s: %v", id, err))
	}
	compiled, err := c.Compile(id)
	if err != nil {
		panic(fmt.Sprintf("schema: failed to compile %s: %v", id, err))
	}
	return compiled
}

// decodeStrict parses raw JSON into a generic tree with numbers preserved
// as json.Number, for validation against a compiled schema.
func decodeStrict(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return v, nil
}

// Normalize trims whitespace and lowercases s. Vendor and category strings
// are normalized exactly once, here, at the schema boundary — the
// enforcement engine and store compare raw equality afterward.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeAll normalizes every string in ss, in place order preserved.
func NormalizeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = Normalize(s)
	}
	return out
}

// DecodeBase64Key decodes a base64-encoded key or signature and checks its
// decoded length against expectedLen. Base64 that decodes to an
// unexpected byte count is rejected rather than silently truncated or padded.
func DecodeBase64Key(s string, expectedLen int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(b) != expectedLen {
		return nil, fmt.Errorf("expected %d decoded bytes, got %d", expectedLen, len(b))
	}
	return b, nil
}
