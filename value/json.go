package value

import (
	"bytes"
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// EncodeJSON renders v as JSON. List-like arrays become JSON arrays, other
// arrays become objects in entry order; non-finite floats become null.
func EncodeJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindArray:
		if v.a.IsList() {
			buf.WriteByte('[')
			for i, e := range v.a.entries {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := encodeJSON(buf, e.Value); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
			return nil
		}
		buf.WriteByte('{')
		for i, e := range v.a.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e.Key.Str()); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeJSON(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, v.f)
	case KindString:
		return writeJSON(buf, string(v.s))
	default:
		return writeJSON(buf, toHost(v, &hostConfig{}))
	}
}

func writeJSON(buf *bytes.Buffer, x any) error {
	b, err := json.Marshal(x)
	if err != nil {
		return fmt.Errorf("value: encode json: %w", err)
	}
	buf.Write(b)
	return nil
}

// DecodeJSON parses JSON into a Value. Object keys come back sorted, and
// numbers without a fractional part become integers.
func DecodeJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("value: decode json: %w", err)
	}
	return FromHost(integralFloats(raw))
}

func integralFloats(x any) any {
	switch t := x.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = integralFloats(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = integralFloats(t[k])
		}
		return t
	}
	return x
}
