package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzeSource(t *testing.T, source string) (*FunctionNode, *Analyzer, *DiagnosticLog) {
	t.Helper()
	diags := NewDiagnosticLog()
	lexer := NewLexer(source, diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors(), "parse errors: %v", diags.Err())

	bridge := NewNativeBridge()
	analyzer := NewAnalyzer(bridge.NameIndex(), diags)
	analyzer.Analyze(root)
	return root, analyzer, diags
}

func firstVariableNamed(n Node, name string) *Variable {
	var found *Variable
	var walk func(Node)
	walk = func(node Node) {
		if found != nil || node == nil {
			return
		}
		switch x := node.(type) {
		case *Variable:
			if x.Kind == VarIdentifier && x.Name == name {
				found = x
			}
		case *BlockNode:
			for _, s := range x.Statements {
				walk(s)
			}
		case *BinaryOpNode:
			walk(x.Left)
			walk(x.Right)
		case *UnaryOpNode:
			walk(x.Operand)
		case *FunctionNode:
			walk(x.Body)
		case *FunctionCallNode:
			walk(x.Callee)
			for _, a := range x.Args {
				walk(a)
			}
		case *IfNode:
			for i := range x.Conds {
				walk(x.Conds[i])
				walk(x.Blocks[i])
			}
			walk(x.Else)
		case *WhileNode:
			walk(x.Cond)
			walk(x.Body)
		case *ForNode:
			walk(x.Iterable)
			walk(x.Body)
		case *ReturnNode:
			walk(x.Value)
		}
	}
	walk(n)
	return found
}

func TestAnalyzer_TopLevelAssignmentBecomesGlobal(t *testing.T) {
	root, analyzer, diags := analyzeSource(t, "x = 1\nx")
	require.True(t, !diags.HasErrors())

	use := firstVariableNamed(root.Body, "x")
	require.NotNil(t, use)
	assert.Equal(t, SemGlobal, use.Class)
	require.Contains(t, analyzer.Globals(), "x")
}

func TestAnalyzer_FunctionParameterIsLocal(t *testing.T) {
	root, _, diags := analyzeSource(t, "f = :(x) { x + 1 }")
	require.False(t, diags.HasErrors())

	assign := onlyStatement(t, root).(*BinaryOpNode)
	fn := assign.Right.(*FunctionNode)
	use := firstVariableNamed(fn.Body, "x")
	require.NotNil(t, use)
	assert.Equal(t, SemLocal, use.Class)
	assert.Equal(t, 0, use.Slot)
}

func TestAnalyzer_ClosureOverOuterLocalIsFreeVariable(t *testing.T) {
	root, _, diags := analyzeSource(t, `
make_counter = :() { n = 0; :() { n = n + 1 } }
`)
	require.False(t, diags.HasErrors())

	assign := onlyStatement(t, root).(*BinaryOpNode)
	outer := assign.Right.(*FunctionNode)
	outerBlock := outer.Body.(*BlockNode)
	inner := outerBlock.Statements[1].(*FunctionNode)

	use := firstVariableNamed(inner.Body, "n")
	require.NotNil(t, use)
	assert.Equal(t, SemFreeVariable, use.Class)
	require.Len(t, inner.FreeVariables, 1)
}

func TestAnalyzer_NativeFunctionNameResolvesToSemNative(t *testing.T) {
	root, _, diags := analyzeSource(t, `print("hi")`)
	require.False(t, diags.HasErrors())

	call := onlyStatement(t, root).(*FunctionCallNode)
	callee, ok := call.Callee.(*Variable)
	require.True(t, ok)
	assert.Equal(t, SemNative, callee.Class)
}

func TestAnalyzer_AssigningToUndeclaredNameIsNotAnError(t *testing.T) {
	_, _, diags := analyzeSource(t, "y = 10\ny")
	assert.False(t, diags.HasErrors())
}

func TestAnalyzer_BoxingALocalDoesNotReclassifyAGlobalAtTheSameSlotNumber(t *testing.T) {
	// x is the first global (slot 0); n is the first local of f (also
	// slot 0). Both are referenced inside f, so f.ReferencedVariables
	// holds both entries. Capturing n in the nested closure must only
	// flip n's own SemLocal entry to SemLocalBoxed, never x's unrelated
	// SemGlobal entry that happens to share the same Slot number.
	root, _, diags := analyzeSource(t, `
x = 1
f = :() {
  n = 0
  x
  :() { n = n + 1 }
}
`)
	require.False(t, diags.HasErrors())

	block, ok := root.Body.(*BlockNode)
	require.True(t, ok)
	require.Len(t, block.Statements, 2)
	assign := block.Statements[1].(*BinaryOpNode)
	fn := assign.Right.(*FunctionNode)

	xUse := firstVariableNamed(fn.Body, "x")
	require.NotNil(t, xUse)
	assert.Equal(t, SemGlobal, xUse.Class, "global reference must not be reclassified as SemLocalBoxed just because it shares a slot number with a boxed local")
	assert.Equal(t, 0, xUse.Slot)
}

func TestAnalyzer_BreakOutsideLoopIsAnalysisError(t *testing.T) {
	diags := NewDiagnosticLog()
	lexer := NewLexer("break", diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors())

	bridge := NewNativeBridge()
	analyzer := NewAnalyzer(bridge.NameIndex(), diags)
	ok := analyzer.Analyze(root)
	assert.False(t, ok)
	assert.True(t, diags.HasErrors())
}
