package script

import (
	"math"
	"strconv"
	"strings"

	"github.com/beyondbrewing/cask/value"
)

// Parser is a recursive descent parser. It stops at the first error.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
	funcs map[string]*FuncDecl
	err   *SyntaxError
}

// NewParser returns a parser over input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), funcs: make(map[string]*FuncDecl)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
	if p.cur.Type == TokenIllegal {
		p.fail(p.cur.Pos, p.cur.Literal)
	}
}

func (p *Parser) curIs(t TokenType) bool { return p.cur.Type == t }

func (p *Parser) fail(pos Position, msg string) {
	if p.err == nil {
		p.err = &SyntaxError{Pos: pos, Msg: msg}
	}
}

func (p *Parser) failed() bool { return p.err != nil }

func (p *Parser) unexpected(want string) {
	p.fail(p.cur.Pos, "expected "+want+", got "+p.cur.String())
}

func (p *Parser) expect(t TokenType) bool {
	if p.curIs(t) {
		p.nextToken()
		return true
	}
	p.unexpected(t.String())
	return false
}

// endStatement consumes a ';'. It may be omitted before '}' and at EOF.
func (p *Parser) endStatement() {
	switch p.cur.Type {
	case TokenSemicolon:
		p.nextToken()
	case TokenRBrace, TokenEOF:
	default:
		p.unexpected("';'")
	}
}

// ParseProgram parses a whole script.
func (p *Parser) ParseProgram() ([]Stmt, map[string]*FuncDecl, error) {
	var stmts []Stmt
	for !p.curIs(TokenEOF) && !p.failed() {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	if p.err != nil {
		return nil, nil, p.err
	}
	return stmts, p.funcs, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	pos := p.cur.Pos
	switch p.cur.Type {
	case TokenSemicolon:
		p.nextToken()
		return nil
	case TokenLBrace:
		return p.parseBlock()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		cond := p.parseCondition()
		body := p.parseBody()
		return &While{At: pos, Cond: cond, Body: body}
	case TokenFor:
		return p.parseFor()
	case TokenForeach:
		return p.parseForeach()
	case TokenBreak:
		p.nextToken()
		p.endStatement()
		return &Break{At: pos}
	case TokenContinue:
		p.nextToken()
		p.endStatement()
		return &Continue{At: pos}
	case TokenReturn:
		p.nextToken()
		ret := &Return{At: pos}
		if !p.curIs(TokenSemicolon) && !p.curIs(TokenRBrace) && !p.curIs(TokenEOF) {
			ret.Value = p.parseExpr()
		}
		p.endStatement()
		return ret
	case TokenPrint:
		p.nextToken()
		pr := &Print{At: pos}
		for !p.failed() {
			pr.Args = append(pr.Args, p.parseExpr())
			if !p.curIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		p.endStatement()
		return pr
	case TokenFunction:
		return p.parseFuncDecl()
	}

	e := p.parseExpr()
	if p.failed() {
		return nil
	}
	p.endStatement()
	return &ExprStmt{At: pos, Expr: e}
}

func (p *Parser) parseBlock() *Block {
	b := &Block{At: p.cur.Pos}
	if !p.expect(TokenLBrace) {
		return b
	}
	for !p.curIs(TokenRBrace) && !p.failed() {
		if p.curIs(TokenEOF) {
			p.unexpected("'}'")
			return b
		}
		if s := p.parseStatement(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	p.expect(TokenRBrace)
	return b
}

// parseBody parses a loop or branch body; a lone ';' is an empty body.
func (p *Parser) parseBody() Stmt {
	pos := p.cur.Pos
	if s := p.parseStatement(); s != nil {
		return s
	}
	return &Block{At: pos}
}

func (p *Parser) parseCondition() Expr {
	if !p.expect(TokenLParen) {
		return nil
	}
	cond := p.parseExpr()
	p.expect(TokenRParen)
	return cond
}

func (p *Parser) parseIf() Stmt {
	pos := p.cur.Pos
	p.nextToken()
	n := &If{At: pos, Cond: p.parseCondition()}
	n.Then = p.parseBody()
	switch p.cur.Type {
	case TokenElseIf:
		n.Else = p.parseIf()
	case TokenElse:
		p.nextToken()
		if p.curIs(TokenIf) {
			n.Else = p.parseIf()
		} else {
			n.Else = p.parseBody()
		}
	}
	return n
}

func (p *Parser) parseFor() Stmt {
	n := &For{At: p.cur.Pos}
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	n.Init = p.parseExprList(TokenSemicolon)
	p.expect(TokenSemicolon)
	if !p.curIs(TokenSemicolon) {
		n.Cond = p.parseExpr()
	}
	p.expect(TokenSemicolon)
	n.Step = p.parseExprList(TokenRParen)
	p.expect(TokenRParen)
	n.Body = p.parseBody()
	return n
}

func (p *Parser) parseExprList(end TokenType) []Expr {
	var list []Expr
	for !p.curIs(end) && !p.failed() {
		list = append(list, p.parseExpr())
		if !p.curIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return list
}

func (p *Parser) parseForeach() Stmt {
	n := &Foreach{At: p.cur.Pos}
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	n.Subject = p.parseExpr()
	if !p.expect(TokenAs) {
		return nil
	}
	if !p.curIs(TokenVariable) {
		p.unexpected("variable")
		return nil
	}
	n.ValueVar = p.cur.Literal
	p.nextToken()
	if p.curIs(TokenArrow) {
		p.nextToken()
		if !p.curIs(TokenVariable) {
			p.unexpected("variable")
			return nil
		}
		n.KeyVar, n.ValueVar = n.ValueVar, p.cur.Literal
		p.nextToken()
	}
	p.expect(TokenRParen)
	n.Body = p.parseBody()
	return n
}

func (p *Parser) parseFuncDecl() Stmt {
	pos := p.cur.Pos
	p.nextToken()
	if !p.curIs(TokenIdent) {
		p.unexpected("function name")
		return nil
	}
	fn := &FuncDecl{At: pos, Name: p.cur.Literal}
	p.nextToken()
	if !p.expect(TokenLParen) {
		return nil
	}
	for !p.curIs(TokenRParen) && !p.failed() {
		if !p.curIs(TokenVariable) {
			p.unexpected("parameter")
			return nil
		}
		param := Param{Name: p.cur.Literal}
		p.nextToken()
		if p.curIs(TokenAssign) {
			p.nextToken()
			param.Default = p.parseExpr()
		}
		fn.Params = append(fn.Params, param)
		if !p.curIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	fn.Body = p.parseBlock()

	key := strings.ToLower(fn.Name)
	if _, dup := p.funcs[key]; dup {
		p.fail(pos, "function "+fn.Name+" redeclared")
		return nil
	}
	p.funcs[key] = fn
	return fn
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpr() Expr {
	return p.parseAssign()
}

var assignOps = map[TokenType]bool{
	TokenAssign:      true,
	TokenPlusAssign:  true,
	TokenMinusAssign: true,
	TokenStarAssign:  true,
	TokenSlashAssign: true,
	TokenPercAssign:  true,
	TokenDotAssign:   true,
}

func (p *Parser) parseAssign() Expr {
	left := p.parseTernary()
	if p.failed() || !assignOps[p.cur.Type] {
		return left
	}
	switch left.(type) {
	case *Variable, *Index:
	default:
		p.fail(p.cur.Pos, "cannot assign to this expression")
		return nil
	}
	op, pos := p.cur.Type, p.cur.Pos
	p.nextToken()
	right := p.parseAssign()
	return &Assign{At: pos, Op: op, Target: left, Value: right}
}

func (p *Parser) parseTernary() Expr {
	cond := p.parseBinary(1)
	if p.failed() || !p.curIs(TokenQuestion) {
		return cond
	}
	n := &Ternary{At: p.cur.Pos, Cond: cond}
	p.nextToken()
	if !p.curIs(TokenColon) {
		n.Then = p.parseAssign()
	}
	if !p.expect(TokenColon) {
		return nil
	}
	n.Else = p.parseAssign()
	return n
}

func binaryPrec(t TokenType) int {
	switch t {
	case TokenOr:
		return 1
	case TokenAnd:
		return 2
	case TokenEq, TokenNotEq, TokenIdentical, TokenNotIdent:
		return 3
	case TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq:
		return 4
	case TokenPlus, TokenMinus, TokenDot, TokenDotDot:
		return 5
	case TokenStar, TokenSlash, TokenPercent:
		return 6
	}
	return 0
}

func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for !p.failed() {
		prec := binaryPrec(p.cur.Type)
		if prec == 0 || prec < minPrec {
			break
		}
		op, pos := p.cur.Type, p.cur.Pos
		p.nextToken()
		right := p.parseBinary(prec + 1)
		left = &Binary{At: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	switch p.cur.Type {
	case TokenNot, TokenMinus, TokenPlus:
		op, pos := p.cur.Type, p.cur.Pos
		p.nextToken()
		return &Unary{At: pos, Op: op, Operand: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	e := p.parsePrimary()
	for !p.failed() && p.curIs(TokenLBracket) {
		n := &Index{At: p.cur.Pos, Target: e}
		p.nextToken()
		if !p.curIs(TokenRBracket) {
			n.Index = p.parseExpr()
		}
		p.expect(TokenRBracket)
		e = n
	}
	return e
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	switch tok.Type {
	case TokenVariable:
		p.nextToken()
		return &Variable{At: tok.Pos, Name: tok.Literal}
	case TokenInt:
		p.nextToken()
		return &Literal{At: tok.Pos, Value: parseIntLiteral(tok.Literal)}
	case TokenFloat:
		p.nextToken()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil && !isRangeErr(err) {
			p.fail(tok.Pos, "malformed number "+tok.Literal)
			return nil
		}
		return &Literal{At: tok.Pos, Value: value.Float(f)}
	case TokenString:
		p.nextToken()
		return &Literal{At: tok.Pos, Value: value.String(tok.Literal)}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &Literal{At: tok.Pos, Value: value.Bool(tok.Type == TokenTrue)}
	case TokenNull:
		p.nextToken()
		return &Literal{At: tok.Pos, Value: value.Null()}
	case TokenIdent:
		p.nextToken()
		if p.curIs(TokenLParen) {
			p.nextToken()
			args := p.parseExprList(TokenRParen)
			p.expect(TokenRParen)
			return &Call{At: tok.Pos, Name: tok.Literal, Args: args}
		}
		return &Name{At: tok.Pos, Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		e := p.parseExpr()
		p.expect(TokenRParen)
		return e
	case TokenLBracket:
		return p.parseArrayLit(TokenRBracket)
	case TokenLBrace:
		return p.parseArrayLit(TokenRBrace)
	}
	p.fail(tok.Pos, "unexpected "+tok.String())
	return nil
}

// parseArrayLit parses [v, k => v] and {"k": v, k => v}.
func (p *Parser) parseArrayLit(end TokenType) Expr {
	n := &ArrayLit{At: p.cur.Pos}
	p.nextToken()
	for !p.curIs(end) && !p.failed() {
		first := p.parseExpr()
		entry := ArrayEntry{Value: first}
		if p.curIs(TokenArrow) || (end == TokenRBrace && p.curIs(TokenColon)) {
			p.nextToken()
			entry = ArrayEntry{Key: first, Value: p.parseExpr()}
		} else if end == TokenRBrace {
			p.unexpected("':'")
			return nil
		}
		n.Entries = append(n.Entries, entry)
		if !p.curIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(end)
	return n
}

// parseIntLiteral falls back to a float for literals beyond int64.
func parseIntLiteral(lit string) value.Value {
	if i, err := strconv.ParseInt(lit, 0, 64); err == nil {
		return value.Int(i)
	}
	if u, err := strconv.ParseUint(lit, 0, 64); err == nil {
		return value.Float(float64(u))
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return value.Float(math.Inf(1))
	}
	return value.Float(f)
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
