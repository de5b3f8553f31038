package script

import (
	"bytes"
	"maps"

	"github.com/beyondbrewing/cask/value"
)

type builtinFunc func(r *run, pos Position, args []value.Value) (value.Value, error)

// builtins is filled in init because db_fetch_all calls back into the
// dispatcher that reads this map.
var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"count":        bCount,
		"strlen":       bStrlen,
		"is_null":      isKind(value.KindNull),
		"is_bool":      isKind(value.KindBool),
		"is_int":       isKind(value.KindInt),
		"is_integer":   isKind(value.KindInt),
		"is_float":     isKind(value.KindFloat),
		"is_string":    isKind(value.KindString),
		"is_array":     isKind(value.KindArray),
		"is_numeric":   bIsNumeric,
		"json_encode":  bJSONEncode,
		"json_decode":  bJSONDecode,
		"array_keys":   bArrayKeys,
		"array_values": bArrayValues,
		"in_array":     bInArray,
		"implode":      bImplode,
		"intval":       bIntval,
		"floatval":     bFloatval,
		"strval":       bStrval,
		"rand":         bRand,
		"rand_str":     bRandStr,
	}
	maps.Copy(builtins, dbBuiltins())
}

// arg returns args[i], or Null when the call supplied fewer arguments.
func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Null()
}

func argc(pos Position, name string, args []value.Value, want int) error {
	if len(args) < want {
		return runtimeErrorf(pos, "%s() expects at least %d argument(s), %d given", name, want, len(args))
	}
	return nil
}

func bCount(_ *run, _ Position, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	switch {
	case v.IsArray():
		return value.Int(int64(v.Array().Len())), nil
	case v.IsNull():
		return value.Int(0), nil
	}
	return value.Int(1), nil
}

func bStrlen(_ *run, _ Position, args []value.Value) (value.Value, error) {
	return value.Int(int64(len(arg(args, 0).ToBytes()))), nil
}

func isKind(k value.Kind) builtinFunc {
	return func(_ *run, _ Position, args []value.Value) (value.Value, error) {
		return value.Bool(arg(args, 0).Kind() == k), nil
	}
}

func bIsNumeric(_ *run, _ Position, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	switch {
	case v.IsNumeric():
		return value.Bool(true), nil
	case v.IsString():
		return value.Bool(value.IsNumericString(v.RawBytes())), nil
	}
	return value.Bool(false), nil
}

func bJSONEncode(_ *run, pos Position, args []value.Value) (value.Value, error) {
	if err := argc(pos, "json_encode", args, 1); err != nil {
		return value.Null(), err
	}
	out, err := value.EncodeJSON(args[0])
	if err != nil {
		return value.Null(), err
	}
	return value.Bytes(out), nil
}

// bJSONDecode yields Null for malformed input.
func bJSONDecode(r *run, pos Position, args []value.Value) (value.Value, error) {
	if err := argc(pos, "json_decode", args, 1); err != nil {
		return value.Null(), err
	}
	v, err := value.DecodeJSON(args[0].ToBytes())
	if err != nil {
		r.vm.log.Debug("json_decode failed", "error", err)
		return value.Null(), nil
	}
	return v, nil
}

func bArrayKeys(_ *run, _ Position, args []value.Value) (value.Value, error) {
	out := value.NewArray()
	if v := arg(args, 0); v.IsArray() {
		for k := range v.Array().All() {
			out.Append(k.Value())
		}
	}
	return value.ArrayValue(out), nil
}

func bArrayValues(_ *run, _ Position, args []value.Value) (value.Value, error) {
	out := value.NewArray()
	if v := arg(args, 0); v.IsArray() {
		for _, e := range v.Array().Values() {
			out.Append(e)
		}
	}
	return value.ArrayValue(out), nil
}

// bInArray compares loosely unless the third argument is truthy.
func bInArray(_ *run, pos Position, args []value.Value) (value.Value, error) {
	if err := argc(pos, "in_array", args, 2); err != nil {
		return value.Null(), err
	}
	if !args[1].IsArray() {
		return value.Bool(false), nil
	}
	strict := arg(args, 2).Truthy()
	for _, v := range args[1].Array().Values() {
		if strict && value.StrictEqual(args[0], v) || !strict && value.LooseEqual(args[0], v) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

// bImplode joins the values of an array; implode(glue, array).
func bImplode(_ *run, pos Position, args []value.Value) (value.Value, error) {
	if err := argc(pos, "implode", args, 1); err != nil {
		return value.Null(), err
	}
	glue, pieces := value.String(""), args[0]
	if len(args) > 1 {
		glue, pieces = args[0], args[1]
	}
	if !pieces.IsArray() {
		return value.String(""), nil
	}
	parts := make([][]byte, 0, pieces.Array().Len())
	for _, v := range pieces.Array().Values() {
		parts = append(parts, v.ToBytes())
	}
	return value.Bytes(bytes.Join(parts, glue.ToBytes())), nil
}

func bIntval(_ *run, _ Position, args []value.Value) (value.Value, error) {
	return value.Int(arg(args, 0).ToInt()), nil
}

func bFloatval(_ *run, _ Position, args []value.Value) (value.Value, error) {
	return value.Float(arg(args, 0).ToFloat()), nil
}

func bStrval(_ *run, _ Position, args []value.Value) (value.Value, error) {
	return value.Bytes(arg(args, 0).ToBytes()), nil
}

func bRand(r *run, _ Position, _ []value.Value) (value.Value, error) {
	if r.vm.engine == nil {
		return value.Null(), ErrNoEngine
	}
	return value.Int(r.vm.engine.KV().RandomInt()), nil
}

// bRandStr returns rand_str(n) lowercase letters; n defaults to 16.
func bRandStr(r *run, _ Position, args []value.Value) (value.Value, error) {
	if r.vm.engine == nil {
		return value.Null(), ErrNoEngine
	}
	n := int64(16)
	if len(args) > 0 {
		n = args[0].ToInt()
	}
	return value.Bytes(r.vm.engine.KV().RandomString(int(n))), nil
}
