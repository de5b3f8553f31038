package value

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// ErrUnsupported is returned by FromHost for Go values with no dynamic
// counterpart (funcs, channels, structs, ...).
var ErrUnsupported = errors.New("value: unsupported host type")

// maxDepth bounds recursion so self-referencing host maps fail instead of
// overflowing the stack.
const maxDepth = 128

// Map is an insertion-ordered host map. FromHost keeps its order, and
// ToHost produces one when asked for ordered maps.
type Map struct {
	keys []any
	vals map[any]any
}

// NewMap returns an empty ordered map.
func NewMap() *Map { return &Map{vals: make(map[any]any)} }

// Set stores v under k, keeping the original position of existing keys.
// k must be comparable.
func (m *Map) Set(k, v any) *Map {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
	return m
}

// Get looks up k.
func (m *Map) Get(k any) (any, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []any { return slices.Clone(m.keys) }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// ---------------------------------------------------------------------------
// Host -> Dynamic
// ---------------------------------------------------------------------------

// FromHost converts a Go value into a Value.
//
// Map entries with string keys keep their key; entries with any other key
// type are added under the next automatic index, so the original key is
// lost. Plain Go maps are unordered and are converted in sorted key order;
// use *Map to control order.
func FromHost(v any) (Value, error) {
	return fromHost(v, 0)
}

// MustFromHost is FromHost for values known to be convertible.
func MustFromHost(v any) Value {
	out, err := FromHost(v)
	if err != nil {
		panic(err)
	}
	return out
}

func fromHost(v any, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupported, maxDepth)
	}

	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x.Clone(), nil
	case *Array:
		if x == nil {
			return Null(), nil
		}
		return ArrayValue(x.Clone()), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint64:
		return fromUint(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		a := NewArray()
		for _, item := range x {
			iv, err := fromHost(item, depth+1)
			if err != nil {
				return Value{}, err
			}
			a.Append(iv)
		}
		return ArrayValue(a), nil
	case map[string]any:
		a := NewArray()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			iv, err := fromHost(x[k], depth+1)
			if err != nil {
				return Value{}, err
			}
			a.SetString(k, iv)
		}
		return ArrayValue(a), nil
	case *Map:
		if x == nil {
			return Null(), nil
		}
		a := NewArray()
		for _, k := range x.keys {
			if err := addHostEntry(a, k, x.vals[k], depth); err != nil {
				return Value{}, err
			}
		}
		return ArrayValue(a), nil
	}

	return fromReflect(reflect.ValueOf(v), depth)
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

func addHostEntry(a *Array, k, v any, depth int) error {
	iv, err := fromHost(v, depth+1)
	if err != nil {
		return err
	}
	switch ks := k.(type) {
	case string:
		a.SetString(ks, iv)
	case []byte:
		a.SetString(string(ks), iv)
	default:
		a.Append(iv)
	}
	return nil
}

func fromReflect(rv reflect.Value, depth int) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return fromHost(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return ArrayValue(nil), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes(reflectBytes(rv)), nil
		}
		a := NewArray()
		for i := 0; i < rv.Len(); i++ {
			iv, err := fromHost(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return Value{}, err
			}
			a.Append(iv)
		}
		return ArrayValue(a), nil
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(x, y reflect.Value) int {
			return strings.Compare(fmt.Sprint(x.Interface()), fmt.Sprint(y.Interface()))
		})
		a := NewArray()
		for _, k := range keys {
			kv := k.Interface()
			if k.Kind() == reflect.String {
				kv = k.String()
			}
			if err := addHostEntry(a, kv, rv.MapIndex(k).Interface(), depth); err != nil {
				return Value{}, err
			}
		}
		return ArrayValue(a), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
}

func reflectBytes(rv reflect.Value) []byte {
	out := make([]byte, rv.Len())
	for i := range out {
		out[i] = byte(rv.Index(i).Uint())
	}
	return out
}

// ---------------------------------------------------------------------------
// Dynamic -> Host
// ---------------------------------------------------------------------------

// HostOption adjusts ToHost.
type HostOption func(*hostConfig)

type hostConfig struct {
	bytes   bool
	ordered bool
}

// WithBytes makes ToHost surface strings as []byte instead of string.
func WithBytes() HostOption {
	return func(c *hostConfig) { c.bytes = true }
}

// WithOrderedMaps makes ToHost surface map-like arrays as *Map.
func WithOrderedMaps() HostOption {
	return func(c *hostConfig) { c.ordered = true }
}

// ToHost converts v to plain Go values: nil, bool, int64, float64, string
// (or []byte), []any for arrays keyed exactly 0..n-1, and for any other
// array map[string]any, or map[any]any when integer keys remain.
func ToHost(v Value, opts ...HostOption) any {
	var cfg hostConfig
	for _, o := range opts {
		o(&cfg)
	}
	return toHost(v, &cfg)
}

func toHost(v Value, cfg *hostConfig) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		if cfg.bytes {
			out := make([]byte, len(v.s))
			copy(out, v.s)
			return out
		}
		return string(v.s)
	case KindArray:
		return arrayToHost(v.a, cfg)
	default:
		return nil
	}
}

func arrayToHost(a *Array, cfg *hostConfig) any {
	if a.IsList() {
		out := make([]any, 0, a.Len())
		for _, e := range a.entries {
			out = append(out, toHost(e.Value, cfg))
		}
		return out
	}

	if cfg.ordered {
		m := NewMap()
		for _, e := range a.entries {
			m.Set(keyToHost(e.Key), toHost(e.Value, cfg))
		}
		return m
	}

	if !a.HasStringKeysOnly() {
		out := make(map[any]any, a.Len())
		for _, e := range a.entries {
			out[keyToHost(e.Key)] = toHost(e.Value, cfg)
		}
		return out
	}

	out := make(map[string]any, a.Len())
	for _, e := range a.entries {
		out[e.Key.str] = toHost(e.Value, cfg)
	}
	return out
}

func keyToHost(k Key) any {
	if k.isStr {
		return k.str
	}
	return k.num
}

// HasStringKeysOnly reports whether every key is a string.
func (a *Array) HasStringKeysOnly() bool {
	for _, e := range a.entries {
		if !e.Key.isStr {
			return false
		}
	}
	return true
}
