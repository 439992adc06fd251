package ember

import (
	"fmt"
	"strings"

	"github.com/ember-lang/ember/ascii"
	"github.com/ember-lang/ember/internal/debugdump"
)

// DumpRuntimeError renders a runtime error (and, via go-spew, any
// structured detail it wraps) for the CLI's -dr flag — a deep,
// cycle-safe dump rather than just err.Error()'s single line.
func DumpRuntimeError(err error) string {
	return debugdump.Dump(err)
}

// DisassembleCode renders one CodeObject's instruction stream as
// `offset  line  OPCODE  operand` rows, recursing into any nested
// CodeObject constants so a function literal's body prints inline
// with its enclosing function (the -dc debug flag's output).
func DisassembleCode(prog *Program, code *CodeObject) string {
	var b strings.Builder
	disassembleCode(&b, prog, code, 0)
	return b.String()
}

func disassembleCode(b *strings.Builder, prog *Program, code *CodeObject, indent int) {
	pad := strings.Repeat("  ", indent)
	name := code.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(b, "%s%s:\n", pad, ascii.Color(ascii.DefaultTheme.Label, "%s", name))

	var lastLine int32 = -1
	for i, instr := range code.Instructions {
		line := code.LineFor(i)
		lineCol := "   "
		if line != lastLine {
			lineCol = fmt.Sprintf("%3d", line)
			lastLine = line
		}
		op := ascii.Color(ascii.DefaultTheme.Operator, "%-18s", instr.Op.String())
		operand := ""
		if opcodeHasOperand(instr.Op) {
			operand = ascii.Color(ascii.DefaultTheme.Operand, "%d", instr.Operand)
		}
		fmt.Fprintf(b, "%s  %04d  %s  %s%s\n", pad, i, lineCol, op, operand)

		if instr.Op == OpLoadConstant && int(instr.Operand) < len(prog.Constants) {
			if c := prog.Constants[instr.Operand]; c.Kind == ConstCode && c.Code != nil {
				disassembleCode(b, prog, c.Code, indent+1)
			}
		}
	}
}

// opcodeHasOperand reports whether an opcode's operand field is
// meaningful; a handful of zero-argument opcodes always carry a zero
// operand and disassembly omits it to keep the listing uncluttered.
func opcodeHasOperand(op Opcode) bool {
	switch op {
	case OpPop, OpRotate2, OpMoveToTOS2, OpDuplicate,
		OpLoadArgsArray, OpLoadThis,
		OpLoadElement, OpStoreElement, OpPopStoreElement,
		OpArrayPushBack, OpArrayPopBack,
		OpMakeEmptyObject, OpLoadMember, OpStoreMember, OpPopStoreMember,
		OpMakeIterator, OpIteratorHasNext, OpIteratorGetNext,
		OpMakeClosure, OpYield, OpEndFunction,
		OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo, OpPower,
		OpConcatenate, OpXor, OpEqual, OpNotEqual,
		OpLess, OpGreater, OpLessEqual, OpGreaterEqual,
		OpUnaryPlus, OpUnaryMinus, OpUnaryNot, OpUnaryConcatenate, OpUnarySizeOf:
		return false
	default:
		return true
	}
}

// DisassembleSymbols renders the interned symbol table in probe-slot
// (serialization) order — the -ds debug flag's symbol half.
func DisassembleSymbols(prog *Program) string {
	var b strings.Builder
	b.WriteString(ascii.Color(ascii.DefaultTheme.Label, "symbols:\n"))
	for _, s := range prog.Symbols.All() {
		fmt.Fprintf(&b, "  %-20s hash=%d\n", s.Name, s.Hash)
	}
	return b.String()
}

// DisassembleConstants renders the constant pool — the -ds debug
// flag's constant-pool half. CodeObject entries print their own
// nested disassembly via DisassembleCode rather than a raw dump.
func DisassembleConstants(prog *Program) string {
	var b strings.Builder
	b.WriteString(ascii.Color(ascii.DefaultTheme.Label, "constants:\n"))
	for i, c := range prog.Constants {
		switch c.Kind {
		case ConstNil:
			fmt.Fprintf(&b, "  [%d] nil\n", i)
		case ConstBool:
			fmt.Fprintf(&b, "  [%d] bool %t\n", i, c.Bool)
		case ConstInt:
			fmt.Fprintf(&b, "  [%d] int %d\n", i, c.Int)
		case ConstFloat:
			fmt.Fprintf(&b, "  [%d] float %g\n", i, c.Float)
		case ConstString:
			fmt.Fprintf(&b, "  [%d] string %q\n", i, c.Str)
		case ConstCode:
			fmt.Fprintf(&b, "  [%d] code:\n", i)
			b.WriteString(DisassembleCode(prog, c.Code))
		}
	}
	return b.String()
}

// DumpAST renders an AST node tree one-per-line using each node's own
// String() (see ast.go) — the -da debug flag's output. Block-shaped
// nodes recurse with increasing indentation.
func DumpAST(n Node) string {
	var b strings.Builder
	dumpAST(&b, n, 0)
	return b.String()
}

func dumpAST(b *strings.Builder, n Node, indent int) {
	if n == nil {
		return
	}
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s\n", pad, ascii.Color(ascii.DefaultTheme.Accent, "%s", n.String()))
	for _, child := range astChildren(n) {
		dumpAST(b, child, indent+1)
	}
}

// astChildren enumerates a node's direct subexpressions. The Node
// interface stays a minimal Pos/String pair (see ast.go), so traversal
// for debug dumps is a type switch here rather than a Visitor method
// every node variant would otherwise have to carry.
func astChildren(n Node) []Node {
	switch v := n.(type) {
	case *ArrayNode:
		return v.Elements
	case *ObjectNode:
		out := make([]Node, 0, len(v.Values))
		out = append(out, v.Values...)
		return out
	case *FunctionNode:
		return []Node{v.Body}
	case *FunctionCallNode:
		out := make([]Node, 0, len(v.Args)+1)
		out = append(out, v.Callee)
		out = append(out, v.Args...)
		return out
	case *UnaryOpNode:
		return []Node{v.Operand}
	case *BinaryOpNode:
		return []Node{v.Left, v.Right}
	case *BlockNode:
		return v.Statements
	case *IfNode:
		out := make([]Node, 0, len(v.Conds)+len(v.Blocks)+1)
		for i := range v.Conds {
			out = append(out, v.Conds[i], v.Blocks[i])
		}
		if v.Else != nil {
			out = append(out, v.Else)
		}
		return out
	case *WhileNode:
		return []Node{v.Cond, v.Body}
	case *ForNode:
		return []Node{v.Iterable, v.Body}
	case *ReturnNode:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	case *BreakNode:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	case *ContinueNode:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	case *YieldNode:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	default:
		return nil
	}
}
