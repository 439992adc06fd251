package ember

import (
	"fmt"
	"strings"
)

// SemClass is the semantic analyzer's classification of a Variable
// reference, decided during name resolution (Pass 2, see analyzer.go).
type SemClass int

const (
	SemUnresolved SemClass = iota
	SemLocal
	SemGlobal
	SemNative
	SemLocalBoxed
	SemFreeVariable
)

func (c SemClass) String() string {
	switch c {
	case SemLocal:
		return "local"
	case SemGlobal:
		return "global"
	case SemNative:
		return "native"
	case SemLocalBoxed:
		return "local-boxed"
	case SemFreeVariable:
		return "free-variable"
	default:
		return "unresolved"
	}
}

// VariableKind distinguishes the handful of things a Variable AST node
// can stand for.
type VariableKind int

const (
	VarIdentifier VariableKind = iota
	VarThis
	VarArgsAll  // $$
	VarArgN     // $N
	VarDiscard  // _
)

// Node is implemented by every AST variant. Dispatch over the variant
// is done by the analyzer/compiler with type switches, not through a
// visitor: the node set is a closed tagged union and a type switch
// keeps every consumer's handling exhaustively checkable at the call
// site, which is what a sum type buys you in Go.
type Node interface {
	Pos() Location
	String() string
}

type base struct{ loc Location }

func (b base) Pos() Location { return b.loc }

// --- Literals ---

type NilNode struct{ base }

func (n *NilNode) String() string { return "nil" }

type IntNode struct {
	base
	Value int64
}

func (n *IntNode) String() string { return fmt.Sprintf("%d", n.Value) }

type FloatNode struct {
	base
	Value float64
}

func (n *FloatNode) String() string { return fmt.Sprintf("%g", n.Value) }

type BoolNode struct {
	base
	Value bool
}

func (n *BoolNode) String() string { return fmt.Sprintf("%t", n.Value) }

type StringNode struct {
	base
	Value string
}

func (n *StringNode) String() string { return fmt.Sprintf("%q", n.Value) }

// --- Variable ---

// Variable is a named identifier, `this`, `$$`, `$N`, or the discard
// target `_`. The analyzer decorates it with Class/Slot; for a free
// variable, Slot is its index in the function's free-variable list.
type Variable struct {
	base
	Kind VariableKind
	Name string // set when Kind == VarIdentifier
	ArgN int    // set when Kind == VarArgN

	Class SemClass
	Slot  int

	// FirstOccurrence marks the defining-assignment site of a
	// variable that the analyzer decided to box: the compiler
	// emits MakeBox immediately before the store at this site.
	FirstOccurrence bool
}

func (n *Variable) String() string {
	switch n.Kind {
	case VarThis:
		return "this"
	case VarArgsAll:
		return "$$"
	case VarArgN:
		return fmt.Sprintf("$%d", n.ArgN)
	case VarDiscard:
		return "_"
	default:
		return n.Name
	}
}

// IsAssignable reports whether this Variable can appear as an
// assignment target. `this`, `$`, `$N` and `$$` are never assignable.
func (n *Variable) IsAssignable() bool {
	return n.Kind == VarIdentifier || n.Kind == VarDiscard
}

// --- Collections ---

type ArrayNode struct {
	base
	Elements []Node
}

func (n *ArrayNode) String() string {
	parts := make([]string, len(n.Elements))
	for i, e := range n.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObjectNode is an object literal: a list of key/value pairs. Keys
// are always named-identifier Variables (validated by the analyzer).
type ObjectNode struct {
	base
	Keys   []*Variable
	Values []Node
}

func (n *ObjectNode) String() string {
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = fmt.Sprintf("%s=%s", n.Keys[i].Name, n.Values[i].String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// --- Functions & calls ---

// FunctionNode is both a function literal and, for the single root
// function, the whole compiled program (no parameters, one block body).
type FunctionNode struct {
	base
	Params []string
	Body   Node

	// Analyzer-populated fields.
	LocalCount          int
	ParametersToBox     []int // slot indices of params the analyzer decided to box
	ClosureMapping      []int // see spec.md §3 "Function (closure)"
	FreeVariables       []*Variable
	ReferencedVariables []*Variable

	// Compiler-populated field: index of this function's CodeObject
	// in the constant pool, filled in once compiled.
	ConstIndex int
}

func (n *FunctionNode) String() string {
	return fmt.Sprintf(":(%s) { ... }", strings.Join(n.Params, ", "))
}

type FunctionCallNode struct {
	base
	Callee Node
	Args   []Node
}

func (n *FunctionCallNode) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Callee.String(), strings.Join(parts, ", "))
}

// --- Operators ---

type UnaryOpNode struct {
	base
	Op      Category
	Operand Node
}

func (n *UnaryOpNode) String() string {
	return fmt.Sprintf("%s%s", n.Op, n.Operand.String())
}

type BinaryOpNode struct {
	base
	Op    Category
	Left  Node
	Right Node
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left.String(), n.Op, n.Right.String())
}

// --- Structured control flow ---

type BlockNode struct {
	base
	Statements []Node

	// explicitFunctionBlock is set by the analyzer when this block is
	// the direct body of a Function node: such a block resolves names
	// directly into the function's scope instead of opening a nested
	// block scope (parameters already occupy that function's block 0).
	explicitFunctionBlock bool
}

func (n *BlockNode) String() string {
	parts := make([]string, len(n.Statements))
	for i, s := range n.Statements {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

// IfNode models `if`, optional `elif` clauses, and an optional final
// `else`. It is always an expression: if no else branch is given the
// compiler synthesizes a nil arm so every path produces a value.
type IfNode struct {
	base
	Conds  []Node // condition for `if` and each `elif`, in order
	Blocks []Node // matching body for each entry in Conds
	Else   Node   // nil if there is no `else`
}

func (n *IfNode) String() string { return "if ..." }

type WhileNode struct {
	base
	Cond Node
	Body Node
}

func (n *WhileNode) String() string { return "while ..." }

// ForNode binds each value produced by iterating Iterable to Var and
// runs Body once per value.
type ForNode struct {
	base
	Var      *Variable
	Iterable Node
	Body     Node
}

func (n *ForNode) String() string { return "for ..." }

type ReturnNode struct {
	base
	Value Node // nil for a bare `return`
}

func (n *ReturnNode) String() string { return "return" }

type BreakNode struct {
	base
	Value Node
}

func (n *BreakNode) String() string { return "break" }

type ContinueNode struct {
	base
	Value Node
}

func (n *ContinueNode) String() string { return "continue" }

type YieldNode struct {
	base
	Value Node
}

func (n *YieldNode) String() string { return "yield" }
