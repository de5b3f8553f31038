package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgram(t *testing.T) {
	stmts, funcs, err := NewParser(`
		function Greet($name, $greeting = "hi") { return $greeting . " " . $name; }
		foreach ($list as $k => $v) { print $k; }
		$x = 1 + 2 * 3;
	`).ParseProgram()
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	fn, ok := funcs["greet"]
	require.True(t, ok)
	assert.Equal(t, "Greet", fn.Name)
	require.Len(t, fn.Params, 2)
	assert.Nil(t, fn.Params[0].Default)
	assert.NotNil(t, fn.Params[1].Default)

	fe, ok := stmts[1].(*Foreach)
	require.True(t, ok)
	assert.Equal(t, "k", fe.KeyVar)
	assert.Equal(t, "v", fe.ValueVar)

	es, ok := stmts[2].(*ExprStmt)
	require.True(t, ok)
	as, ok := es.Expr.(*Assign)
	require.True(t, ok)
	sum, ok := as.Value.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokenPlus, sum.Op)
	prod, ok := sum.Right.(*Binary)
	require.True(t, ok)
	assert.Equal(t, TokenStar, prod.Op)
}

func TestParseOptionalSemicolons(t *testing.T) {
	_, _, err := NewParser(`if ($a) { $b = 1 } $c = 2`).ParseProgram()
	assert.NoError(t, err)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		msg    string
		line   int
		column int
	}{
		{name: "missing_operand", source: `$a = ;`, msg: "unexpected ;", line: 1, column: 6},
		{name: "missing_semicolon", source: "$a = 1\n$b = 2;", msg: "expected ';', got $b", line: 2, column: 1},
		{name: "unclosed_condition", source: `if ($a { }`, msg: "expected ), got {", line: 1, column: 8},
		{name: "redeclared_function", source: `function f() {} function F() {}`, msg: "function F redeclared", line: 1, column: 17},
		{name: "assign_to_literal", source: `1 = 2;`, msg: "cannot assign to this expression", line: 1, column: 3},
		{name: "object_without_colon", source: `$x = {"a" 1};`, msg: "expected ':', got 1", line: 1, column: 11},
		{name: "unclosed_block", source: `while (true) { $a = 1;`, msg: "expected '}', got EOF", line: 1, column: 23},
		{name: "lexical_error", source: `$a = "abc`, msg: "unterminated string", line: 1, column: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.source)
			require.Error(t, err)

			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %T", err)
			assert.Equal(t, tt.msg, se.Msg)
			assert.Equal(t, tt.line, se.Pos.Line)
			assert.Equal(t, tt.column, se.Pos.Column)
			assert.Contains(t, err.Error(), "syntax error")
		})
	}
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile(`$a = `) })
	assert.NotPanics(t, func() { MustCompile(`$a = 1;`) })
}
