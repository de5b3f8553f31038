package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{name: "null", in: nil},
		{name: "bool", in: true},
		{name: "int", in: int64(-42)},
		{name: "float", in: 3.25},
		{name: "text", in: "héllo"},
		{name: "list", in: []any{int64(1), "two", 3.5, nil, false}},
		{name: "map", in: map[string]any{"name": "huey", "age": int64(3)}},
		{name: "nested_depth_4", in: map[string]any{
			"a": []any{
				map[string]any{
					"b": []any{int64(1), int64(2), map[string]any{"c": "deep"}},
				},
			},
		}},
		{name: "empty_list", in: []any{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := FromHost(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.in, ToHost(v))
		})
	}
}

func TestBridgeIntegerKeyMapBecomesPositional(t *testing.T) {
	v, err := FromHost(map[int]int{1: 2})
	require.NoError(t, err)

	a := v.Array()
	require.NotNil(t, a)
	assert.True(t, a.IsList())
	assert.Equal(t, []any{int64(2)}, ToHost(v))
}

func TestBridgeHostConversions(t *testing.T) {
	v, err := FromHost([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ToHost(v))

	v, err = FromHost([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", ToHost(v))
	assert.Equal(t, []byte("raw"), ToHost(v, WithBytes()))

	var nilPtr *int
	v, err = FromHost(nilPtr)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = FromHost(make(chan int))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromHost(struct{ A int }{A: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestBridgeOrderedMap(t *testing.T) {
	m := NewMap().Set("z", int64(1)).Set("a", int64(2)).Set(7, "seven")

	v, err := FromHost(m)
	require.NoError(t, err)

	var keys []string
	for k := range v.Array().All() {
		keys = append(keys, k.Str())
	}
	assert.Equal(t, []string{"z", "a", "0"}, keys)

	out, ok := ToHost(v, WithOrderedMaps()).(*Map)
	require.True(t, ok)
	assert.Equal(t, []any{"z", "a", int64(0)}, out.Keys())

	mixed, ok := ToHost(v).(map[any]any)
	require.True(t, ok)
	assert.Equal(t, "seven", mixed[int64(0)])
}

func TestArraySemantics(t *testing.T) {
	a := NewArray()
	assert.Equal(t, IntKey(0), a.Append(String("a")))
	a.Set(IntKey(5), String("five"))
	assert.Equal(t, IntKey(6), a.Append(String("six")))
	a.SetString("name", String("x"))

	assert.Equal(t, 4, a.Len())
	assert.False(t, a.IsList())

	assert.True(t, a.Delete(IntKey(5)))
	assert.False(t, a.Delete(IntKey(5)))
	got, ok := a.Get(IntKey(6))
	require.True(t, ok)
	assert.Equal(t, "six", got.ToText())

	c := a.Clone()
	c.SetString("name", String("changed"))
	orig, _ := a.GetString("name")
	assert.Equal(t, "x", orig.ToText())
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(-1), true},
		{Float(0), false},
		{String(""), false},
		{String("0"), false},
		{String("0.0"), true},
		{List(), false},
		{List(Null()), true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.v.Truthy(), "%s", tc.v)
	}
}

func TestCompare(t *testing.T) {
	assert.True(t, LooseEqual(Int(1), String("1")))
	assert.True(t, LooseEqual(Int(1), Float(1.0)))
	assert.True(t, LooseEqual(Null(), Bool(false)))
	assert.True(t, LooseEqual(Null(), String("")))
	assert.False(t, LooseEqual(String("abc"), Int(0)))
	assert.True(t, LooseEqual(String("10"), String("1e1")))

	assert.False(t, StrictEqual(Int(1), String("1")))
	assert.True(t, StrictEqual(List(Int(1), String("a")), List(Int(1), String("a"))))

	assert.Equal(t, -1, Compare(Int(2), Int(10)))
	assert.Equal(t, 1, Compare(String("b"), String("a")))
	assert.Equal(t, -1, Compare(String("2"), String("10")))
	assert.Equal(t, 1, Compare(Float(2.5), Int(2)))
}

func TestNumericConversions(t *testing.T) {
	assert.Equal(t, int64(12), String("12abc").ToInt())
	assert.Equal(t, 1.5, String(" 1.5").ToFloat())
	assert.Equal(t, int64(0), String("abc").ToInt())
	assert.Equal(t, KindInt, String("7").ToNumber().Kind())
	assert.Equal(t, KindFloat, String("7.0").ToNumber().Kind())
	assert.Equal(t, "3", Float(3).ToText())
	assert.Equal(t, "0.1", Float(0.1).ToText())
	assert.Equal(t, "", Bool(false).ToText())
	assert.Equal(t, int64(0), Float(math.NaN()).ToInt())
}

func TestCodecPreservesKeysAndKinds(t *testing.T) {
	a := NewArray()
	a.SetString("name", String("mickey"))
	a.Set(IntKey(3), Float(1.5))
	a.Append(List(Int(-7), Null(), Bool(true), Bytes([]byte{0, 1, 2})))
	a.SetString("big", Int(math.MaxInt64))
	in := ArrayValue(a)

	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, StrictEqual(in, out), "got %s", out)

	// Automatic indexing resumes after the highest integer key.
	assert.Equal(t, IntKey(5), out.Array().Append(Null()))
}

func TestUnmarshalCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "stray break", data: []byte{0xff}},
		{name: "truncated array", data: []byte{0x82, 0x01}},
		{name: "map instead of pairs", data: []byte{0xa0}},
		{name: "entry not a pair", data: []byte{0x81, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestJSON(t *testing.T) {
	a := NewArray()
	a.SetString("b", Int(1))
	a.SetString("a", List(String("x"), Float(2.5), Null()))

	out, err := EncodeJSON(ArrayValue(a))
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":1,"a":["x",2.5,null]}`, string(out))
	assert.Equal(t, `{"b":1,"a":["x",2.5,null]}`, string(out))

	v, err := DecodeJSON([]byte(`{"n": 3, "f": 0.5, "l": [true]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(3), "f": 0.5, "l": []any{true}}, ToHost(v))
}
