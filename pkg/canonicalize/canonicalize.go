// Package canonicalize provides deterministic, domain-separated serialization
// of JSON-shaped values for signing and hashing. It is the one place in the
// module allowed to decide what "the same value" means byte-for-byte.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Domain separates the signing surface of one artifact class from another,
// so a signature produced for one can never be replayed as a signature for
// another.
type Domain string

const (
	DomainCapDoc        Domain = "capdoc"
	DomainReceipt       Domain = "receipt"
	DomainActionRequest Domain = "actionrequest"
)

// maxSafeInteger mirrors the JavaScript Number.MAX_SAFE_INTEGER boundary
// (2^53 - 1), so canonicalization enforces the same integer ceiling
// regardless of host language on either side of a signature.
const maxSafeInteger = 1<<53 - 1

// Canonicalize produces domain_prefix(d) ‖ stable_json(v).
//
// The prefix is the ASCII literal "capnet:<d>/0.1:". stable_json sorts
// object keys byte-wise, preserves array order, emits no insignificant
// whitespace, and rejects (rather than coerces) non-finite numbers,
// out-of-safe-integer-range integers, and values that didn't survive a
// plain-JSON round trip.
func Canonicalize(domain Domain, v any) ([]byte, error) {
	body, err := StableJSON(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	prefix := []byte(fmt.Sprintf("capnet:%s/0.1:", domain))
	return append(prefix, body...), nil
}

// StableJSON returns the canonical JSON byte representation of v: sorted
// object keys, no insignificant whitespace, no HTML escaping, UTF-8.
//
// v is first passed through the standard encoding/json marshaler (so struct
// tags are honored) and then decoded into a generic tree with
// json.Number preserved, which is re-encoded deterministically. Any value
// that fails to round-trip this way — channels, funcs, NaN/Inf floats,
// cyclic structures — is rejected rather than silently coerced.
func StableJSON(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pre-marshal failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("intermediate decode failed: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return writeNumber(buf, t)
	case string:
		return writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("non-plain value of type %T cannot be canonicalized", v)
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("string encode failed: %w", err)
	}
	buf.Write(bytes.TrimSuffix(sb.Bytes(), []byte("\n")))
	return nil
}

// writeNumber rejects non-finite and out-of-safe-integer-range numbers
// rather than emitting an ambiguous representation.
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite number %q cannot be canonicalized", s)
		}
	}

	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if i > maxSafeInteger || i < -maxSafeInteger {
				return fmt.Errorf("integer %q exceeds safe-integer range", s)
			}
		} else {
			// Doesn't fit in int64 at all — definitely outside the safe range.
			return fmt.Errorf("integer %q exceeds safe-integer range", s)
		}
	}

	buf.WriteString(s)
	return nil
}
