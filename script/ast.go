package script

import "github.com/beyondbrewing/cask/value"

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() Position
	node()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Literal is a constant scalar.
type Literal struct {
	At    Position
	Value value.Value
}

// Variable reads $Name.
type Variable struct {
	At   Position
	Name string
}

// Name is a bare identifier; it evaluates to its own text, which is how
// callables are passed around.
type Name struct {
	At   Position
	Name string
}

// ArrayLit is [a, b] or {"k": v}. Entries without a key are appended.
type ArrayLit struct {
	At      Position
	Entries []ArrayEntry
}

// ArrayEntry is one element of an ArrayLit.
type ArrayEntry struct {
	Key   Expr // nil for positional entries
	Value Expr
}

// Index is Target[Index]; a nil Index is the append form Target[].
type Index struct {
	At     Position
	Target Expr
	Index  Expr
}

// Call invokes a function by name.
type Call struct {
	At   Position
	Name string
	Args []Expr
}

// Unary is a prefix operator.
type Unary struct {
	At      Position
	Op      TokenType
	Operand Expr
}

// Binary is an infix operator, including the short-circuit logical ones.
type Binary struct {
	At          Position
	Op          TokenType
	Left, Right Expr
}

// Ternary is Cond ? Then : Else; a nil Then is the short form Cond ?: Else.
type Ternary struct {
	At               Position
	Cond, Then, Else Expr
}

// Assign stores Value into Target, combined with Op for compound forms.
type Assign struct {
	At     Position
	Op     TokenType // TokenAssign or a compound assignment
	Target Expr      // *Variable or *Index
	Value  Expr
}

func (n *Literal) Pos() Position  { return n.At }
func (n *Variable) Pos() Position { return n.At }
func (n *Name) Pos() Position     { return n.At }
func (n *ArrayLit) Pos() Position { return n.At }
func (n *Index) Pos() Position    { return n.At }
func (n *Call) Pos() Position     { return n.At }
func (n *Unary) Pos() Position    { return n.At }
func (n *Binary) Pos() Position   { return n.At }
func (n *Ternary) Pos() Position  { return n.At }
func (n *Assign) Pos() Position   { return n.At }

func (*Literal) node()  {}
func (*Variable) node() {}
func (*Name) node()     {}
func (*ArrayLit) node() {}
func (*Index) node()    {}
func (*Call) node()     {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Ternary) node()  {}
func (*Assign) node()   {}

func (*Literal) expr()  {}
func (*Variable) expr() {}
func (*Name) expr()     {}
func (*ArrayLit) expr() {}
func (*Index) expr()    {}
func (*Call) expr()     {}
func (*Unary) expr()    {}
func (*Binary) expr()   {}
func (*Ternary) expr()  {}
func (*Assign) expr()   {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ExprStmt evaluates an expression for its effects.
type ExprStmt struct {
	At   Position
	Expr Expr
}

// Block is a braced statement list.
type Block struct {
	At    Position
	Stmts []Stmt
}

// If is if/elseif/else; Else is nil, a *Block or another *If.
type If struct {
	At   Position
	Cond Expr
	Then Stmt
	Else Stmt
}

// While loops while Cond is truthy.
type While struct {
	At   Position
	Cond Expr
	Body Stmt
}

// For is the three-clause loop. Any clause may be empty.
type For struct {
	At   Position
	Init []Expr
	Cond Expr
	Step []Expr
	Body Stmt
}

// Foreach iterates a copy of Subject. KeyVar is empty without "$k =>".
type Foreach struct {
	At       Position
	Subject  Expr
	KeyVar   string
	ValueVar string
	Body     Stmt
}

// Break leaves the innermost loop.
type Break struct{ At Position }

// Continue starts the next iteration of the innermost loop.
type Continue struct{ At Position }

// Return leaves the current function, or ends the program at top level.
type Return struct {
	At    Position
	Value Expr // may be nil
}

// Print writes its arguments to the VM output.
type Print struct {
	At   Position
	Args []Expr
}

// FuncDecl declares a script function. Declarations are hoisted.
type FuncDecl struct {
	At     Position
	Name   string
	Params []Param
	Body   *Block
}

// Param is a function parameter with an optional default.
type Param struct {
	Name    string
	Default Expr
}

func (n *ExprStmt) Pos() Position { return n.At }
func (n *Block) Pos() Position    { return n.At }
func (n *If) Pos() Position       { return n.At }
func (n *While) Pos() Position    { return n.At }
func (n *For) Pos() Position      { return n.At }
func (n *Foreach) Pos() Position  { return n.At }
func (n *Break) Pos() Position    { return n.At }
func (n *Continue) Pos() Position { return n.At }
func (n *Return) Pos() Position   { return n.At }
func (n *Print) Pos() Position    { return n.At }
func (n *FuncDecl) Pos() Position { return n.At }

func (*ExprStmt) node() {}
func (*Block) node()    {}
func (*If) node()       {}
func (*While) node()    {}
func (*For) node()      {}
func (*Foreach) node()  {}
func (*Break) node()    {}
func (*Continue) node() {}
func (*Return) node()   {}
func (*Print) node()    {}
func (*FuncDecl) node() {}

func (*ExprStmt) stmt() {}
func (*Block) stmt()    {}
func (*If) stmt()       {}
func (*While) stmt()    {}
func (*For) stmt()      {}
func (*Foreach) stmt()  {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Return) stmt()   {}
func (*Print) stmt()    {}
func (*FuncDecl) stmt() {}
