package value

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrCorrupt is returned when stored bytes do not decode to a Value.
var ErrCorrupt = errors.New("value: corrupt encoding")

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("value: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{MaxNestedLevels: 1024}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("value: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Marshal serializes v to CBOR. Strings become byte strings; an array
// becomes a CBOR array of [key, value] pairs whose key is an integer or a
// text string, which keeps both order and key types.
func Marshal(v Value) ([]byte, error) {
	return cborEncMode.Marshal(toWire(v))
}

// Unmarshal deserializes bytes produced by Marshal.
func Unmarshal(data []byte) (Value, error) {
	var raw any
	if err := cborDecMode.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return fromWire(raw)
}

func toWire(v Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		if v.s == nil {
			return []byte{}
		}
		return v.s
	case KindArray:
		pairs := make([]any, 0, v.a.Len())
		for _, e := range v.a.entries {
			var k any = e.Key.num
			if e.Key.isStr {
				k = e.Key.str
			}
			pairs = append(pairs, []any{k, toWire(e.Value)})
		}
		return pairs
	default:
		return nil
	}
}

func fromWire(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case uint64:
		return fromUint(x), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case []byte:
		return Value{kind: KindString, s: x}, nil
	case []any:
		a := NewArray()
		for _, item := range x {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return Value{}, fmt.Errorf("%w: array entry is not a pair", ErrCorrupt)
			}
			iv, err := fromWire(pair[1])
			if err != nil {
				return Value{}, err
			}
			switch k := pair[0].(type) {
			case string:
				a.SetString(k, iv)
			case uint64:
				a.Set(IntKey(int64(k)), iv)
			case int64:
				a.Set(IntKey(k), iv)
			default:
				return Value{}, fmt.Errorf("%w: array key of type %T", ErrCorrupt, pair[0])
			}
		}
		return ArrayValue(a), nil
	}
	return Value{}, fmt.Errorf("%w: unexpected %T", ErrCorrupt, raw)
}
