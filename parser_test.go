package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, source string) *FunctionNode {
	t.Helper()
	diags := NewDiagnosticLog()
	lexer := NewLexer(source, diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors(), "parse errors: %v", diags.Err())
	return root
}

func onlyStatement(t *testing.T, root *FunctionNode) Node {
	t.Helper()
	block, ok := root.Body.(*BlockNode)
	require.True(t, ok)
	require.Len(t, block.Statements, 1)
	return block.Statements[0]
}

func TestParser_MultiplicationBindsTighterThanAddition(t *testing.T) {
	root := parseSource(t, "1 + 2 * 3")
	stmt := onlyStatement(t, root)

	add, ok := stmt.(*BinaryOpNode)
	require.True(t, ok)
	require.Equal(t, TokPlus, add.Op)

	_, leftIsInt := add.Left.(*IntNode)
	require.True(t, leftIsInt)

	mul, ok := add.Right.(*BinaryOpNode)
	require.True(t, ok)
	require.Equal(t, TokStar, mul.Op)
}

func TestParser_ParenthesesOverridePrecedence(t *testing.T) {
	root := parseSource(t, "(1 + 2) * 3")
	stmt := onlyStatement(t, root)

	mul, ok := stmt.(*BinaryOpNode)
	require.True(t, ok)
	require.Equal(t, TokStar, mul.Op)

	add, ok := mul.Left.(*BinaryOpNode)
	require.True(t, ok)
	require.Equal(t, TokPlus, add.Op)
}

func TestParser_ArrayLiteralVsObjectLiteralDisambiguation(t *testing.T) {
	arrRoot := parseSource(t, "[1, 2, 3]")
	arr, ok := onlyStatement(t, arrRoot).(*ArrayNode)
	require.True(t, ok)
	require.Len(t, arr.Elements, 3)

	objRoot := parseSource(t, "[x=1, y=2]")
	obj, ok := onlyStatement(t, objRoot).(*ObjectNode)
	require.True(t, ok)
	require.Len(t, obj.Keys, 2)
	require.Equal(t, "x", obj.Keys[0].Name)
	require.Equal(t, "y", obj.Keys[1].Name)

	emptyRoot := parseSource(t, "[=]")
	_, ok = onlyStatement(t, emptyRoot).(*ObjectNode)
	require.True(t, ok)
}

func TestParser_MixingArrayAndObjectSyntaxIsAnError(t *testing.T) {
	diags := NewDiagnosticLog()
	lexer := NewLexer("[1, y=2]", diags)
	parser := NewParser(lexer, diags)
	parser.Parse()
	require.True(t, diags.HasErrors())
}

func TestParser_ArrayDestructuringAssignmentShape(t *testing.T) {
	root := parseSource(t, "[a, b, c] = [10, 20, 30]")
	stmt := onlyStatement(t, root)

	assign, ok := stmt.(*BinaryOpNode)
	require.True(t, ok)
	require.Equal(t, TokEqual, assign.Op)

	pattern, ok := assign.Left.(*ArrayNode)
	require.True(t, ok)
	require.Len(t, pattern.Elements, 3)

	rhs, ok := assign.Right.(*ArrayNode)
	require.True(t, ok)
	require.Len(t, rhs.Elements, 3)
}

func TestParser_WhileLoopShape(t *testing.T) {
	root := parseSource(t, "while (1) { 2 }")
	stmt := onlyStatement(t, root)

	w, ok := stmt.(*WhileNode)
	require.True(t, ok)
	_, condIsInt := w.Cond.(*IntNode)
	require.True(t, condIsInt)
	_, bodyIsBlock := w.Body.(*BlockNode)
	require.True(t, bodyIsBlock)
}

func TestParser_ForLoopShape(t *testing.T) {
	root := parseSource(t, `for (c in "AB") { c }`)
	stmt := onlyStatement(t, root)

	f, ok := stmt.(*ForNode)
	require.True(t, ok)
	require.Equal(t, "c", f.Var.Name)
	_, iterIsString := f.Iterable.(*StringNode)
	require.True(t, iterIsString)
}

func TestParser_IfElifElseShape(t *testing.T) {
	root := parseSource(t, `
if (1) { 10 }
elif (2) { 20 }
else { 30 }
`)
	stmt := onlyStatement(t, root)

	ifNode, ok := stmt.(*IfNode)
	require.True(t, ok)
	require.Len(t, ifNode.Conds, 2)
	require.Len(t, ifNode.Blocks, 2)
	require.NotNil(t, ifNode.Else)
}

func TestParser_FunctionLiteralParamsAndBody(t *testing.T) {
	root := parseSource(t, ":(x, y) { x + y }")
	stmt := onlyStatement(t, root)

	fn, ok := stmt.(*FunctionNode)
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, fn.Params)
}
