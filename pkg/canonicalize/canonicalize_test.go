package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_DomainPrefix(t *testing.T) {
	out, err := Canonicalize(DomainCapDoc, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `capnet:capdoc/0.1:{"a":1}`, string(out))
}

func TestCanonicalize_DomainSeparation(t *testing.T) {
	v := map[string]any{"cap_id": "x"}
	capBytes, err := Canonicalize(DomainCapDoc, v)
	require.NoError(t, err)
	receiptBytes, err := Canonicalize(DomainReceipt, v)
	require.NoError(t, err)
	assert.NotEqual(t, capBytes, receiptBytes)
}

func TestStableJSON_KeyOrderIndependence(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}

	outA, err := StableJSON(a)
	require.NoError(t, err)
	outB, err := StableJSON(b)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)
	assert.Equal(t, `{"a":1,"b":2}`, string(outA))
}

func TestStableJSON_NestedKeyOrder(t *testing.T) {
	v := map[string]any{"x": map[string]any{"z": 10, "y": 5}}
	out, err := StableJSON(v)
	require.NoError(t, err)
	assert.Equal(t, `{"x":{"y":5,"z":10}}`, string(out))
}

func TestStableJSON_ArrayOrderPreserved(t *testing.T) {
	out, err := StableJSON([]any{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(out))
}

func TestStableJSON_NoHTMLEscaping(t *testing.T) {
	out, err := StableJSON(map[string]any{"html": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>&</b>"}`, string(out))
}

func TestStableJSON_RejectsOutOfSafeRangeInteger(t *testing.T) {
	_, err := StableJSON(map[string]any{"n": json.Number("99999999999999999999999")})
	require.Error(t, err)
}

func TestStableJSON_AcceptsAtSafeRangeBoundary(t *testing.T) {
	out, err := StableJSON(map[string]any{"n": int64(9007199254740991)})
	require.NoError(t, err)
	assert.Equal(t, `{"n":9007199254740991}`, string(out))
}

func TestStableJSON_RejectsJustAboveSafeRangeBoundary(t *testing.T) {
	_, err := StableJSON(map[string]any{"n": uint64(9007199254740992)})
	require.Error(t, err)
}

func TestStableJSON_RejectsFunc(t *testing.T) {
	_, err := StableJSON(map[string]any{"f": func() {}})
	require.Error(t, err)
}

func FuzzStableJSON(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"html":"<script>alert(1)</script>"}`))
	f.Add([]byte(`{"arr":[3,1,2]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"unicode":"こんにちは"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if json.Unmarshal(data, &v) != nil {
			t.Skip("invalid JSON input")
		}
		out1, err1 := StableJSON(v)
		out2, err2 := StableJSON(v)
		if err1 != nil || err2 != nil {
			return
		}
		assert.Equal(t, out1, out2, "canonicalization must be deterministic")
	})
}
