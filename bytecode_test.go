package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// compileSource runs a source string through parse->analyze->compile
// and returns the resulting Program, for tests that only need the
// compiled artifact rather than a full VM run.
func compileSource(t *testing.T, source string) *Program {
	t.Helper()
	diags := NewDiagnosticLog()
	lexer := NewLexer(source, diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors())

	bridge := NewNativeBridge()
	analyzer := NewAnalyzer(bridge.NameIndex(), diags)
	require.True(t, analyzer.Analyze(root))

	compiler := NewCompiler()
	prog, err := compiler.Compile(root, len(analyzer.Globals()))
	require.NoError(t, err)
	return prog
}

func TestBytecode_MarshalUnmarshalRoundTrip(t *testing.T) {
	prog := compileSource(t, `
a = 1
b = 2.5
c = "hello"
f = :(x) { x + a }
f(b)
`)

	blob, err := prog.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(blob)
	require.NoError(t, err)

	require.Equal(t, prog.GlobalCount, restored.GlobalCount)
	require.Equal(t, prog.EntryCode, restored.EntryCode)
	require.Equal(t, len(prog.Constants), len(restored.Constants))

	origSyms := prog.Symbols.All()
	restoredSyms := restored.Symbols.All()
	require.Equal(t, len(origSyms), len(restoredSyms))
	for _, s := range origSyms {
		got, ok := restored.Symbols.Lookup(s.Name)
		require.True(t, ok)
		require.Equal(t, s.Hash, got.Hash)
	}

	for i, c := range prog.Constants {
		rc := restored.Constants[i]
		require.Equal(t, c.Kind, rc.Kind)
		switch c.Kind {
		case ConstInt:
			require.Equal(t, c.Int, rc.Int)
		case ConstFloat:
			require.Equal(t, c.Float, rc.Float)
		case ConstString:
			require.Equal(t, c.Str, rc.Str)
		case ConstCode:
			require.Equal(t, len(c.Code.Instructions), len(rc.Code.Instructions))
			for j, instr := range c.Code.Instructions {
				require.Equal(t, instr.Op, rc.Code.Instructions[j].Op)
				require.Equal(t, instr.Operand, rc.Code.Instructions[j].Operand)
			}
		}
	}
}

// TestBytecode_CodeObjectNameSurvivesRoundTrip guards against Marshal/
// Unmarshal silently dropping CodeObject.Name, which disasm.go and the
// VM's -dc call-trace logging (vm.go) both read.
func TestBytecode_CodeObjectNameSurvivesRoundTrip(t *testing.T) {
	prog := &Program{
		Symbols: NewSymbolTable(),
		Constants: []Constant{
			{Kind: ConstNil},
			{Kind: ConstCode, Code: &CodeObject{
				Name:            "make_counter",
				Instructions:    []Instruction{{Op: OpLoadConstant, Operand: 0}, {Op: OpEndFunction}},
				Lines:           []LineEntry{{Line: 1, FirstInstructionIndex: 0}},
				LocalCount:      2,
				NamedParamCount: 1,
				ClosureMapping:  []int32{-1},
			}},
		},
		EntryCode:   1,
		GlobalCount: 0,
	}

	blob, err := prog.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(blob)
	require.NoError(t, err)

	require.Equal(t, "make_counter", restored.Constants[1].Code.Name)
	require.Equal(t, prog.Constants[1].Code.LocalCount, restored.Constants[1].Code.LocalCount)
	require.Equal(t, prog.Constants[1].Code.ClosureMapping, restored.Constants[1].Code.ClosureMapping)
}

func TestCodeObject_LineForFindsEnclosingLine(t *testing.T) {
	code := &CodeObject{
		Lines: []LineEntry{
			{Line: 1, FirstInstructionIndex: 0},
			{Line: 3, FirstInstructionIndex: 2},
			{Line: 7, FirstInstructionIndex: 5},
		},
	}
	require.EqualValues(t, 1, code.LineFor(0))
	require.EqualValues(t, 1, code.LineFor(1))
	require.EqualValues(t, 3, code.LineFor(2))
	require.EqualValues(t, 3, code.LineFor(4))
	require.EqualValues(t, 7, code.LineFor(5))
	require.EqualValues(t, 7, code.LineFor(100))
}
