package value

import (
	"iter"
	"strconv"
	"strings"
)

// Key addresses an Array entry: an integer index or a string.
type Key struct {
	str   string
	num   int64
	isStr bool
}

// IntKey returns an integer key.
func IntKey(i int64) Key { return Key{num: i} }

// StrKey returns a string key.
func StrKey(s string) Key { return Key{str: s, isStr: true} }

// IsString reports whether k is a string key.
func (k Key) IsString() bool { return k.isStr }

// Int returns the integer index; 0 for string keys.
func (k Key) Int() int64 { return k.num }

// Str returns the string key; the decimal index for integer keys.
func (k Key) Str() string {
	if k.isStr {
		return k.str
	}
	return strconv.FormatInt(k.num, 10)
}

// Value returns the key as a script value.
func (k Key) Value() Value {
	if k.isStr {
		return String(k.str)
	}
	return Int(k.num)
}

func (k Key) String() string {
	if k.isStr {
		return strconv.Quote(k.str)
	}
	return strconv.FormatInt(k.num, 10)
}

// KeyOf converts a script value used as an index into a Key: integers and
// integral floats/bools index numerically, everything else by its text.
func KeyOf(v Value) Key {
	switch v.kind {
	case KindInt:
		return IntKey(v.i)
	case KindFloat, KindBool:
		return IntKey(v.ToInt())
	case KindNull:
		return StrKey("")
	default:
		return StrKey(v.ToText())
	}
}

// Entry is one key/value pair of an Array.
type Entry struct {
	Key   Key
	Value Value
}

// Array is an insertion-ordered associative array. The zero value is not
// usable; call NewArray.
type Array struct {
	entries []Entry
	index   map[Key]int
	next    int64
}

// NewArray returns an empty array.
func NewArray() *Array {
	return &Array{index: make(map[Key]int)}
}

// Len returns the number of entries.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Get looks up k.
func (a *Array) Get(k Key) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	i, ok := a.index[k]
	if !ok {
		return Value{}, false
	}
	return a.entries[i].Value, true
}

// GetString is Get with a string key.
func (a *Array) GetString(k string) (Value, bool) { return a.Get(StrKey(k)) }

// Has reports whether k is present.
func (a *Array) Has(k Key) bool {
	if a == nil {
		return false
	}
	_, ok := a.index[k]
	return ok
}

// Set stores v under k, keeping k's position when it already exists.
func (a *Array) Set(k Key, v Value) {
	if i, ok := a.index[k]; ok {
		a.entries[i].Value = v
		return
	}
	a.index[k] = len(a.entries)
	a.entries = append(a.entries, Entry{Key: k, Value: v})
	if !k.isStr && k.num >= a.next {
		a.next = k.num + 1
	}
}

// SetString is Set with a string key.
func (a *Array) SetString(k string, v Value) { a.Set(StrKey(k), v) }

// Append stores v under the next automatic index and returns that key.
func (a *Array) Append(v Value) Key {
	k := IntKey(a.next)
	a.Set(k, v)
	return k
}

// Delete removes k. It reports whether k was present. Automatic indexing
// continues from where it was.
func (a *Array) Delete(k Key) bool {
	i, ok := a.index[k]
	if !ok {
		return false
	}
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	delete(a.index, k)
	for j := i; j < len(a.entries); j++ {
		a.index[a.entries[j].Key] = j
	}
	return true
}

// At returns the i-th entry in insertion order.
func (a *Array) At(i int) Entry { return a.entries[i] }

// All iterates entries in insertion order.
func (a *Array) All() iter.Seq2[Key, Value] {
	return func(yield func(Key, Value) bool) {
		if a == nil {
			return
		}
		for _, e := range a.entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// Values returns the values in insertion order.
func (a *Array) Values() []Value {
	out := make([]Value, 0, a.Len())
	for _, v := range a.All() {
		out = append(out, v)
	}
	return out
}

// IsList reports whether the keys are exactly 0..n-1 in order.
func (a *Array) IsList() bool {
	for i, e := range a.entries {
		if e.Key.isStr || e.Key.num != int64(i) {
			return false
		}
	}
	return true
}

// HasOnlyIntKeys reports whether no entry has a string key.
func (a *Array) HasOnlyIntKeys() bool {
	for _, e := range a.entries {
		if e.Key.isStr {
			return false
		}
	}
	return true
}

// Clone deep-copies the array.
func (a *Array) Clone() *Array {
	out := &Array{
		entries: make([]Entry, len(a.entries)),
		index:   make(map[Key]int, len(a.entries)),
		next:    a.next,
	}
	for i, e := range a.entries {
		out.entries[i] = Entry{Key: e.Key, Value: e.Value.Clone()}
		out.index[e.Key] = i
	}
	return out
}

func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, e := range a.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Key.String())
		sb.WriteString(": ")
		sb.WriteString(e.Value.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
