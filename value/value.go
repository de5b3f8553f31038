// Package value implements the dynamic value graph shared by the script
// engine and the collection store, plus the bridge to and from plain Go
// values.
//
// A [Value] is one of null, bool, int, float, string (opaque bytes) or
// array. An [Array] is an ordered list of entries keyed either by an
// automatic integer index or by a string, so it stands in for both lists
// and maps.
package value

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged union. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    []byte
	a    *Array
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps text as its UTF-8 bytes.
func String(s string) Value { return Value{kind: KindString, s: []byte(s)} }

// Bytes wraps a byte string. The slice is copied.
func Bytes(b []byte) Value {
	out := make([]byte, len(b))
	copy(out, b)
	return Value{kind: KindString, s: out}
}

// ArrayValue wraps an array. A nil array becomes an empty one.
func ArrayValue(a *Array) Value {
	if a == nil {
		a = NewArray()
	}
	return Value{kind: KindArray, a: a}
}

// List builds a positional array from vals.
func List(vals ...Value) Value {
	a := NewArray()
	for _, v := range vals {
		a.Append(v)
	}
	return ArrayValue(a)
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsArray() bool  { return v.kind == KindArray }
func (v Value) IsString() bool { return v.kind == KindString }

// IsNumeric reports whether v is an int or a float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// RawBool returns the boolean payload; false for other kinds.
func (v Value) RawBool() bool { return v.kind == KindBool && v.b }

// RawInt returns the integer payload; 0 for other kinds.
func (v Value) RawInt() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// RawFloat returns the float payload; 0 for other kinds.
func (v Value) RawFloat() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return v.f
}

// RawBytes returns the string payload without copying; nil for other kinds.
func (v Value) RawBytes() []byte {
	if v.kind != KindString {
		return nil
	}
	return v.s
}

// Array returns the array payload; nil for other kinds.
func (v Value) Array() *Array {
	if v.kind != KindArray {
		return nil
	}
	return v.a
}

// Clone returns a deep copy. Scalars share nothing mutable except string
// bytes, which are never mutated in place.
func (v Value) Clone() Value {
	if v.kind == KindArray {
		return ArrayValue(v.a.Clone())
	}
	return v
}

// Truthy applies the scripting language's boolean conversion.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return len(v.s) > 0 && !(len(v.s) == 1 && v.s[0] == '0')
	case KindArray:
		return v.a.Len() > 0
	default:
		return false
	}
}

// ToInt converts to an integer. Strings contribute their leading numeric
// prefix; arrays convert to 0 or 1.
func (v Value) ToInt() int64 {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindInt:
		return v.i
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return 0
		}
		return int64(v.f)
	case KindString:
		n, _ := parseNumber(v.s)
		return n.ToInt()
	case KindArray:
		if v.a.Len() > 0 {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// ToFloat converts to a float the same way ToInt converts to an integer.
func (v Value) ToFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindString:
		n, _ := parseNumber(v.s)
		if n.kind == KindFloat {
			return n.f
		}
		return float64(n.i)
	default:
		return float64(v.ToInt())
	}
}

// ToNumber converts to an int or float value, keeping integers exact.
func (v Value) ToNumber() Value {
	switch v.kind {
	case KindInt, KindFloat:
		return v
	case KindString:
		n, _ := parseNumber(v.s)
		return n
	default:
		return Int(v.ToInt())
	}
}

// ToBytes renders v as a byte string the way string concatenation does.
func (v Value) ToBytes() []byte {
	if v.kind == KindString {
		return v.s
	}
	return []byte(v.ToText())
}

// ToText renders v as text the way string concatenation does.
func (v Value) ToText() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "1"
		}
		return ""
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return string(v.s)
	case KindArray:
		return "Array"
	default:
		return ""
	}
}

// String implements fmt.Stringer with a debug rendering.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(string(v.s))
	case KindArray:
		return v.a.String()
	default:
		return v.ToText()
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatInt(int64(f), 10)
	default:
		return strconv.FormatFloat(f, 'g', 14, 64)
	}
}

// parseNumber reads the longest numeric prefix of s (after leading
// whitespace). ok reports whether all of s was numeric.
func parseNumber(s []byte) (Value, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	isFloat := false
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > i+1 || i > digits {
			isFloat = true
			i = j
		}
	}
	if i == digits {
		return Int(0), false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			isFloat = true
			i = j
		}
	}
	text := string(s[start:i])
	whole := i == len(s)
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Int(n), whole
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Int(0), false
	}
	return Float(f), whole
}

// IsNumericString reports whether b parses entirely as a number.
func IsNumericString(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	_, ok := parseNumber(b)
	return ok
}
