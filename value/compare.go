package value

import (
	"bytes"
	"cmp"
)

// StrictEqual is the `===` comparison: same kind and same payload, arrays
// compared entry by entry in order.
func StrictEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return bytes.Equal(a.s, b.s)
	case KindArray:
		if a.a.Len() != b.a.Len() {
			return false
		}
		for i, e := range a.a.entries {
			o := b.a.entries[i]
			if e.Key != o.Key || !StrictEqual(e.Value, o.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// LooseEqual is the `==` comparison with type juggling.
func LooseEqual(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare orders two values with type juggling and returns -1, 0 or 1:
// bools and nulls compare by truthiness, numbers and numeric strings
// numerically, other strings bytewise, arrays by size then entries.
func Compare(a, b Value) int {
	switch {
	case a.kind == KindArray && b.kind == KindArray:
		return compareArrays(a.a, b.a)
	case a.kind == KindBool || b.kind == KindBool:
		return compareBool(a.Truthy(), b.Truthy())
	case a.kind == KindNull && b.kind == KindString:
		return cmp.Compare(0, len(b.s))
	case a.kind == KindString && b.kind == KindNull:
		return cmp.Compare(len(a.s), 0)
	case a.kind == KindNull || b.kind == KindNull:
		return compareBool(a.Truthy(), b.Truthy())
	case a.kind == KindArray:
		return 1
	case b.kind == KindArray:
		return -1
	case a.kind == KindString && b.kind == KindString:
		if IsNumericString(a.s) && IsNumericString(b.s) {
			return compareNumbers(a.ToNumber(), b.ToNumber())
		}
		return bytes.Compare(a.s, b.s)
	case a.kind == KindString:
		if !IsNumericString(a.s) {
			return bytes.Compare(a.s, []byte(b.ToText()))
		}
	case b.kind == KindString:
		if !IsNumericString(b.s) {
			return bytes.Compare([]byte(a.ToText()), b.s)
		}
	}
	return compareNumbers(a.ToNumber(), b.ToNumber())
}

func compareNumbers(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i, b.i)
	}
	return cmp.Compare(a.ToFloat(), b.ToFloat())
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func compareArrays(a, b *Array) int {
	if c := cmp.Compare(a.Len(), b.Len()); c != 0 {
		return c
	}
	for _, e := range a.entries {
		o, ok := b.Get(e.Key)
		if !ok {
			return 1
		}
		if c := Compare(e.Value, o); c != 0 {
			return c
		}
	}
	return 0
}
