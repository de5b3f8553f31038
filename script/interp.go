package script

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/beyondbrewing/cask/value"
)

const maxCallDepth = 256

type ctl int

const (
	ctlNone ctl = iota
	ctlBreak
	ctlContinue
	ctlReturn
)

type scope struct {
	vars map[string]value.Value
}

func newScope() *scope { return &scope{vars: make(map[string]value.Value)} }

func (s *scope) get(name string) value.Value { return s.vars[name] }

func (s *scope) set(name string, v value.Value) { s.vars[name] = v }

// run is the state of one Execute call.
type run struct {
	vm    *VM
	ctx   context.Context
	depth int
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (r *run) execBlock(sc *scope, stmts []Stmt) (ctl, value.Value, error) {
	for _, s := range stmts {
		c, v, err := r.exec(sc, s)
		if err != nil || c != ctlNone {
			return c, v, err
		}
	}
	return ctlNone, value.Null(), nil
}

func (r *run) exec(sc *scope, s Stmt) (ctl, value.Value, error) {
	if err := r.ctx.Err(); err != nil {
		return ctlNone, value.Null(), atPos(s.Pos(), err)
	}

	switch n := s.(type) {
	case *ExprStmt:
		_, err := r.eval(sc, n.Expr)
		return ctlNone, value.Null(), err
	case *Block:
		return r.execBlock(sc, n.Stmts)
	case *If:
		cond, err := r.eval(sc, n.Cond)
		if err != nil {
			return ctlNone, value.Null(), err
		}
		switch {
		case cond.Truthy():
			return r.exec(sc, n.Then)
		case n.Else != nil:
			return r.exec(sc, n.Else)
		}
		return ctlNone, value.Null(), nil
	case *While:
		return r.loop(sc, n.Cond, nil, n.Body)
	case *For:
		for _, e := range n.Init {
			if _, err := r.eval(sc, e); err != nil {
				return ctlNone, value.Null(), err
			}
		}
		return r.loop(sc, n.Cond, n.Step, n.Body)
	case *Foreach:
		return r.execForeach(sc, n)
	case *Break:
		return ctlBreak, value.Null(), nil
	case *Continue:
		return ctlContinue, value.Null(), nil
	case *Return:
		if n.Value == nil {
			return ctlReturn, value.Null(), nil
		}
		v, err := r.eval(sc, n.Value)
		return ctlReturn, v, err
	case *Print:
		for _, e := range n.Args {
			v, err := r.eval(sc, e)
			if err != nil {
				return ctlNone, value.Null(), err
			}
			if _, err := r.vm.out.Write(v.ToBytes()); err != nil {
				return ctlNone, value.Null(), atPos(n.At, err)
			}
		}
		return ctlNone, value.Null(), nil
	case *FuncDecl:
		return ctlNone, value.Null(), nil
	}
	return ctlNone, value.Null(), runtimeErrorf(s.Pos(), "unsupported statement %T", s)
}

// loop runs while/for bodies. A nil cond loops forever.
func (r *run) loop(sc *scope, cond Expr, step []Expr, body Stmt) (ctl, value.Value, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return ctlNone, value.Null(), atPos(body.Pos(), err)
		}
		if cond != nil {
			c, err := r.eval(sc, cond)
			if err != nil {
				return ctlNone, value.Null(), err
			}
			if !c.Truthy() {
				return ctlNone, value.Null(), nil
			}
		}
		c, v, err := r.exec(sc, body)
		if err != nil {
			return ctlNone, value.Null(), err
		}
		switch c {
		case ctlBreak:
			return ctlNone, value.Null(), nil
		case ctlReturn:
			return c, v, nil
		}
		for _, e := range step {
			if _, err := r.eval(sc, e); err != nil {
				return ctlNone, value.Null(), err
			}
		}
	}
}

func (r *run) execForeach(sc *scope, n *Foreach) (ctl, value.Value, error) {
	subject, err := r.eval(sc, n.Subject)
	if err != nil {
		return ctlNone, value.Null(), err
	}
	if subject.IsNull() {
		return ctlNone, value.Null(), nil
	}
	if !subject.IsArray() {
		return ctlNone, value.Null(), runtimeErrorf(n.At, "foreach over %s", subject.Kind())
	}

	for k, v := range subject.Array().Clone().All() {
		if err := r.ctx.Err(); err != nil {
			return ctlNone, value.Null(), atPos(n.At, err)
		}
		if n.KeyVar != "" {
			sc.set(n.KeyVar, k.Value())
		}
		sc.set(n.ValueVar, v)
		c, rv, err := r.exec(sc, n.Body)
		if err != nil {
			return ctlNone, value.Null(), err
		}
		switch c {
		case ctlBreak:
			return ctlNone, value.Null(), nil
		case ctlReturn:
			return c, rv, nil
		}
	}
	return ctlNone, value.Null(), nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (r *run) eval(sc *scope, e Expr) (value.Value, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil
	case *Variable:
		return sc.get(n.Name), nil
	case *Name:
		return value.String(n.Name), nil
	case *ArrayLit:
		return r.evalArray(sc, n)
	case *Index:
		return r.evalIndex(sc, n)
	case *Call:
		args := make([]value.Value, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := r.eval(sc, a)
			if err != nil {
				return value.Null(), err
			}
			args = append(args, v.Clone())
		}
		return r.call(n.At, n.Name, args)
	case *Unary:
		v, err := r.eval(sc, n.Operand)
		if err != nil {
			return value.Null(), err
		}
		return unary(n.Op, v), nil
	case *Binary:
		return r.evalBinary(sc, n)
	case *Ternary:
		cond, err := r.eval(sc, n.Cond)
		if err != nil {
			return value.Null(), err
		}
		switch {
		case cond.Truthy() && n.Then == nil:
			return cond, nil
		case cond.Truthy():
			return r.eval(sc, n.Then)
		}
		return r.eval(sc, n.Else)
	case *Assign:
		return r.evalAssign(sc, n)
	}
	return value.Null(), runtimeErrorf(e.Pos(), "unsupported expression %T", e)
}

func (r *run) evalArray(sc *scope, n *ArrayLit) (value.Value, error) {
	a := value.NewArray()
	for _, entry := range n.Entries {
		v, err := r.eval(sc, entry.Value)
		if err != nil {
			return value.Null(), err
		}
		if entry.Key == nil {
			a.Append(v.Clone())
			continue
		}
		k, err := r.eval(sc, entry.Key)
		if err != nil {
			return value.Null(), err
		}
		a.Set(value.KeyOf(k), v.Clone())
	}
	return value.ArrayValue(a), nil
}

func (r *run) evalIndex(sc *scope, n *Index) (value.Value, error) {
	if n.Index == nil {
		return value.Null(), runtimeErrorf(n.At, "cannot use [] for reading")
	}
	target, err := r.eval(sc, n.Target)
	if err != nil {
		return value.Null(), err
	}
	idx, err := r.eval(sc, n.Index)
	if err != nil {
		return value.Null(), err
	}
	switch {
	case target.IsArray():
		v, _ := target.Array().Get(value.KeyOf(idx))
		return v, nil
	case target.IsString():
		s := target.RawBytes()
		i := idx.ToInt()
		if i < 0 {
			i += int64(len(s))
		}
		if i < 0 || i >= int64(len(s)) {
			return value.String(""), nil
		}
		return value.Bytes(s[i : i+1]), nil
	}
	return value.Null(), nil
}

func (r *run) evalBinary(sc *scope, n *Binary) (value.Value, error) {
	left, err := r.eval(sc, n.Left)
	if err != nil {
		return value.Null(), err
	}
	switch n.Op {
	case TokenAnd:
		if !left.Truthy() {
			return value.Bool(false), nil
		}
		right, err := r.eval(sc, n.Right)
		return value.Bool(right.Truthy()), err
	case TokenOr:
		if left.Truthy() {
			return value.Bool(true), nil
		}
		right, err := r.eval(sc, n.Right)
		return value.Bool(right.Truthy()), err
	}

	right, err := r.eval(sc, n.Right)
	if err != nil {
		return value.Null(), err
	}
	v, err := binary(n.Op, left, right)
	if err != nil {
		return value.Null(), &RuntimeError{Pos: n.At, Err: err}
	}
	return v, nil
}

var compoundOps = map[TokenType]TokenType{
	TokenPlusAssign:  TokenPlus,
	TokenMinusAssign: TokenMinus,
	TokenStarAssign:  TokenStar,
	TokenSlashAssign: TokenSlash,
	TokenPercAssign:  TokenPercent,
	TokenDotAssign:   TokenDot,
}

func (r *run) evalAssign(sc *scope, n *Assign) (value.Value, error) {
	v, err := r.eval(sc, n.Value)
	if err != nil {
		return value.Null(), err
	}
	if op, ok := compoundOps[n.Op]; ok {
		cur, err := r.eval(sc, n.Target)
		if err != nil {
			return value.Null(), err
		}
		if v, err = binary(op, cur, v); err != nil {
			return value.Null(), &RuntimeError{Pos: n.At, Err: err}
		}
	}
	v = v.Clone()
	if err := r.assign(sc, n.Target, v); err != nil {
		return value.Null(), err
	}
	return v, nil
}

func (r *run) assign(sc *scope, target Expr, v value.Value) error {
	switch t := target.(type) {
	case *Variable:
		sc.set(t.Name, v)
		return nil
	case *Index:
		parent, err := r.containerFor(sc, t.Target)
		if err != nil {
			return err
		}
		if t.Index == nil {
			parent.Append(v)
			return nil
		}
		k, err := r.eval(sc, t.Index)
		if err != nil {
			return err
		}
		parent.Set(value.KeyOf(k), v)
		return nil
	}
	return runtimeErrorf(target.Pos(), "cannot assign to this expression")
}

// containerFor resolves e to an array that can be modified in place,
// creating arrays along the way for unset or null slots.
func (r *run) containerFor(sc *scope, e Expr) (*value.Array, error) {
	switch t := e.(type) {
	case *Variable:
		cur := sc.get(t.Name)
		if cur.IsArray() {
			return cur.Array(), nil
		}
		if !cur.IsNull() {
			return nil, runtimeErrorf(t.At, "cannot use a %s as an array", cur.Kind())
		}
		a := value.NewArray()
		sc.set(t.Name, value.ArrayValue(a))
		return a, nil
	case *Index:
		parent, err := r.containerFor(sc, t.Target)
		if err != nil {
			return nil, err
		}
		if t.Index == nil {
			a := value.NewArray()
			parent.Append(value.ArrayValue(a))
			return a, nil
		}
		kv, err := r.eval(sc, t.Index)
		if err != nil {
			return nil, err
		}
		k := value.KeyOf(kv)
		cur, _ := parent.Get(k)
		if cur.IsArray() {
			return cur.Array(), nil
		}
		if !cur.IsNull() {
			return nil, runtimeErrorf(t.At, "cannot use a %s as an array", cur.Kind())
		}
		a := value.NewArray()
		parent.Set(k, value.ArrayValue(a))
		return a, nil
	}
	return nil, runtimeErrorf(e.Pos(), "cannot assign to this expression")
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (r *run) call(pos Position, name string, args []value.Value) (value.Value, error) {
	key := strings.ToLower(name)
	if fn, ok := r.vm.prog.funcs[key]; ok {
		return r.callUser(pos, fn, args)
	}
	if fn, ok := r.vm.foreign[key]; ok {
		return r.vm.callForeign(pos, name, fn, args)
	}
	if fn, ok := builtins[key]; ok {
		v, err := fn(r, pos, args)
		return v, atPos(pos, err)
	}
	return value.Null(), &RuntimeError{Pos: pos, Err: fmt.Errorf("%w: %s()", ErrUnknownFunction, name)}
}

// callValue calls the function named by a callable value.
func (r *run) callValue(pos Position, callable value.Value, args ...value.Value) (value.Value, error) {
	if !callable.IsString() || len(callable.RawBytes()) == 0 {
		return value.Null(), runtimeErrorf(pos, "%s is not callable", callable.Kind())
	}
	return r.call(pos, callable.ToText(), args)
}

func (r *run) callUser(pos Position, fn *FuncDecl, args []value.Value) (value.Value, error) {
	if r.depth >= maxCallDepth {
		return value.Null(), runtimeErrorf(pos, "maximum call depth of %d exceeded in %s()", maxCallDepth, fn.Name)
	}
	r.depth++
	defer func() { r.depth-- }()

	local := newScope()
	for i, p := range fn.Params {
		switch {
		case i < len(args):
			local.set(p.Name, args[i])
		case p.Default != nil:
			v, err := r.eval(local, p.Default)
			if err != nil {
				return value.Null(), err
			}
			local.set(p.Name, v.Clone())
		default:
			local.set(p.Name, value.Null())
		}
	}

	c, v, err := r.execBlock(local, fn.Body.Stmts)
	if err != nil {
		return value.Null(), err
	}
	switch c {
	case ctlReturn:
		return v, nil
	case ctlBreak, ctlContinue:
		return value.Null(), runtimeErrorf(fn.At, "break or continue outside a loop in %s()", fn.Name)
	}
	return value.Null(), nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func unary(op TokenType, v value.Value) value.Value {
	switch op {
	case TokenNot:
		return value.Bool(!v.Truthy())
	case TokenMinus:
		n := v.ToNumber()
		if n.Kind() == value.KindInt {
			if n.RawInt() == math.MinInt64 {
				return value.Float(-float64(n.RawInt()))
			}
			return value.Int(-n.RawInt())
		}
		return value.Float(-n.RawFloat())
	default:
		return v.ToNumber()
	}
}

func binary(op TokenType, a, b value.Value) (value.Value, error) {
	switch op {
	case TokenDot, TokenDotDot:
		ab, bb := a.ToBytes(), b.ToBytes()
		out := make([]byte, 0, len(ab)+len(bb))
		return value.Bytes(append(append(out, ab...), bb...)), nil
	case TokenEq:
		return value.Bool(value.LooseEqual(a, b)), nil
	case TokenNotEq:
		return value.Bool(!value.LooseEqual(a, b)), nil
	case TokenIdentical:
		return value.Bool(value.StrictEqual(a, b)), nil
	case TokenNotIdent:
		return value.Bool(!value.StrictEqual(a, b)), nil
	case TokenLess:
		return value.Bool(value.Compare(a, b) < 0), nil
	case TokenLessEq:
		return value.Bool(value.Compare(a, b) <= 0), nil
	case TokenGreater:
		return value.Bool(value.Compare(a, b) > 0), nil
	case TokenGreaterEq:
		return value.Bool(value.Compare(a, b) >= 0), nil
	case TokenPlus:
		if a.IsArray() && b.IsArray() {
			return union(a.Array(), b.Array()), nil
		}
	}
	return arith(op, a.ToNumber(), b.ToNumber())
}

// union keeps every entry of a and adds entries of b whose keys a lacks.
func union(a, b *value.Array) value.Value {
	out := a.Clone()
	for k, v := range b.All() {
		if !out.Has(k) {
			out.Set(k, v.Clone())
		}
	}
	return value.ArrayValue(out)
}

func arith(op TokenType, a, b value.Value) (value.Value, error) {
	if a.Kind() == value.KindInt && b.Kind() == value.KindInt {
		x, y := a.RawInt(), b.RawInt()
		switch op {
		case TokenPlus:
			if s := x + y; (s > x) == (y > 0) {
				return value.Int(s), nil
			}
		case TokenMinus:
			if d := x - y; (d < x) == (y > 0) {
				return value.Int(d), nil
			}
		case TokenStar:
			if x == 0 || y == 0 {
				return value.Int(0), nil
			}
			if p := x * y; p/y == x && !(x == -1 && y == math.MinInt64) && !(y == -1 && x == math.MinInt64) {
				return value.Int(p), nil
			}
		case TokenSlash:
			if y == 0 {
				return value.Null(), fmt.Errorf("division by zero")
			}
			if x%y == 0 && !(x == math.MinInt64 && y == -1) {
				return value.Int(x / y), nil
			}
		case TokenPercent:
			if y == 0 {
				return value.Null(), fmt.Errorf("modulo by zero")
			}
			if y == -1 {
				return value.Int(0), nil
			}
			return value.Int(x % y), nil
		}
	}

	if op == TokenPercent {
		y := b.ToInt()
		if y == 0 {
			return value.Null(), fmt.Errorf("modulo by zero")
		}
		if y == -1 {
			return value.Int(0), nil
		}
		return value.Int(a.ToInt() % y), nil
	}

	x, y := a.ToFloat(), b.ToFloat()
	switch op {
	case TokenPlus:
		return value.Float(x + y), nil
	case TokenMinus:
		return value.Float(x - y), nil
	case TokenStar:
		return value.Float(x * y), nil
	case TokenSlash:
		if y == 0 {
			return value.Null(), fmt.Errorf("division by zero")
		}
		return value.Float(x / y), nil
	}
	return value.Null(), fmt.Errorf("unsupported operator %s", op)
}
