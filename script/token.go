package script

import "fmt"

// TokenType is the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals and names
	TokenVariable // $name
	TokenIdent    // name
	TokenInt      // 42, 0x2a
	TokenFloat    // 1.5, 2e10
	TokenString   // 'raw', "escaped"

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenQuestion  // ?
	TokenArrow     // =>

	// Operators
	TokenAssign      // =
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenStarAssign  // *=
	TokenSlashAssign // /=
	TokenPercAssign  // %=
	TokenDotAssign   // .=
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenDot         // .
	TokenDotDot      // ..
	TokenEq          // ==
	TokenNotEq       // !=
	TokenIdentical   // ===
	TokenNotIdent    // !==
	TokenLess        // <
	TokenLessEq      // <=
	TokenGreater     // >
	TokenGreaterEq   // >=
	TokenAnd         // && and
	TokenOr          // || or
	TokenNot         // !

	// Keywords
	TokenIf
	TokenElse
	TokenElseIf
	TokenWhile
	TokenFor
	TokenForeach
	TokenAs
	TokenBreak
	TokenContinue
	TokenReturn
	TokenPrint
	TokenFunction
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenIllegal:     "ILLEGAL",
	TokenVariable:    "VARIABLE",
	TokenIdent:       "IDENT",
	TokenInt:         "INT",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenSemicolon:   ";",
	TokenColon:       ":",
	TokenQuestion:    "?",
	TokenArrow:       "=>",
	TokenAssign:      "=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenSlashAssign: "/=",
	TokenPercAssign:  "%=",
	TokenDotAssign:   ".=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenDot:         ".",
	TokenDotDot:      "..",
	TokenEq:          "==",
	TokenNotEq:       "!=",
	TokenIdentical:   "===",
	TokenNotIdent:    "!==",
	TokenLess:        "<",
	TokenLessEq:      "<=",
	TokenGreater:     ">",
	TokenGreaterEq:   ">=",
	TokenAnd:         "&&",
	TokenOr:          "||",
	TokenNot:         "!",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenElseIf:      "elseif",
	TokenWhile:       "while",
	TokenFor:         "for",
	TokenForeach:     "foreach",
	TokenAs:          "as",
	TokenBreak:       "break",
	TokenContinue:    "continue",
	TokenReturn:      "return",
	TokenPrint:       "print",
	TokenFunction:    "function",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenNull:        "null",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token is a lexical token.
type Token struct {
	Type    TokenType
	Literal string // decoded text for strings, the name for variables
	Pos     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenVariable:
		return "$" + t.Literal
	case TokenIdent, TokenInt, TokenFloat:
		return t.Literal
	case TokenString:
		if len(t.Literal) > 20 {
			return fmt.Sprintf("%q...", t.Literal[:20])
		}
		return fmt.Sprintf("%q", t.Literal)
	default:
		return t.Type.String()
	}
}

// Keywords are case-insensitive.
var keywords = map[string]TokenType{
	"if":       TokenIf,
	"else":     TokenElse,
	"elseif":   TokenElseIf,
	"while":    TokenWhile,
	"for":      TokenFor,
	"foreach":  TokenForeach,
	"as":       TokenAs,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"print":    TokenPrint,
	"echo":     TokenPrint,
	"function": TokenFunction,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
	"and":      TokenAnd,
	"or":       TokenOr,
}
