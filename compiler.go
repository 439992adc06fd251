package ember

import "fmt"

// loopCtx is the active loop's break/continue targets. continueTarget
// is always a backward jump to an instruction index already emitted
// (the loop's condition/re-check point), so it needs no patching;
// breakJumps collects forward-jump indices patched once the loop's
// end address is known.
type loopCtx struct {
	keepValue      bool
	continueTarget int
	breakJumps     []int

	// forLoop is true when this loop is a for-loop: its carried value
	// sits beneath a live iterator on the stack, so break/continue
	// must collapse [carry, iterator, newValue] with MoveToTOS2. A
	// while-loop has already popped its old carry before the body, so
	// there break/continue just leave their new value on the stack.
	forLoop bool
}

// funcCtx is the per-CodeObject compilation state: the instruction
// stream under construction, its line table, the stack of loops
// currently open (for break/continue), pending `return` jumps to the
// function's epilogue, and the "for-loop garbage" depth every return
// inside an active for-loop must drop before pushing its value.
type funcCtx struct {
	code        *CodeObject
	lastLine    int32
	loops       []*loopCtx
	returnJumps []int
	forGarbage  int
}

// Compiler lowers a decorated AST (the semantic analyzer's output)
// into a Program: a shared symbol table and constant pool, with one
// CodeObject per Function node. Constant pool and symbol table persist
// across repeated Compile calls so a REPL can extend a running program
// incrementally without renumbering anything already emitted.
type Compiler struct {
	prog *Program

	intIndex    map[int64]int
	floatIndex  map[float64]int
	stringIndex map[string]int

	funcs []*funcCtx
}

func NewCompiler() *Compiler {
	c := &Compiler{
		prog:        &Program{Symbols: NewSymbolTable()},
		intIndex:    make(map[int64]int),
		floatIndex:  make(map[float64]int),
		stringIndex: make(map[string]int),
	}
	c.prog.AddConstant(Constant{Kind: ConstNil})
	c.prog.AddConstant(Constant{Kind: ConstBool, Bool: true})
	c.prog.AddConstant(Constant{Kind: ConstBool, Bool: false})
	return c
}

const (
	constNilIndex   = 0
	constTrueIndex  = 1
	constFalseIndex = 2
)

// Compile lowers root (the top-level script function, itself a
// zero-parameter Function node per the analyzer's convention) into
// this compiler's Program, setting EntryCode to its CodeObject.
func (c *Compiler) Compile(root *FunctionNode, globalCount int) (*Program, error) {
	idx, err := c.compileFunction(root)
	if err != nil {
		return nil, err
	}
	c.prog.EntryCode = idx
	if globalCount > c.prog.GlobalCount {
		c.prog.GlobalCount = globalCount
	}
	return c.prog, nil
}

func (c *Compiler) fn() *funcCtx { return c.funcs[len(c.funcs)-1] }

func (c *Compiler) compileFunction(n *FunctionNode) (int, error) {
	code := &CodeObject{
		LocalCount:      int32(n.LocalCount),
		NamedParamCount: int32(len(n.Params)),
	}
	for _, m := range n.ClosureMapping {
		code.ClosureMapping = append(code.ClosureMapping, int32(m))
	}
	idx := c.prog.AddConstant(Constant{Kind: ConstCode, Code: code})
	n.ConstIndex = idx

	fc := &funcCtx{code: code, lastLine: -1}
	c.funcs = append(c.funcs, fc)

	for _, slot := range n.ParametersToBox {
		c.emitOp(OpMakeBox, int32(slot))
	}

	if err := c.emit(n.Body, true); err != nil {
		return 0, err
	}
	end := int32(len(code.Instructions))
	c.emitOp(OpEndFunction, 0)

	for _, j := range fc.returnJumps {
		code.Instructions[j].Operand = end
	}

	c.funcs = c.funcs[:len(c.funcs)-1]
	return idx, nil
}

// --- low-level emission helpers ---

func (c *Compiler) emitOp(op Opcode, operand int32) int {
	fc := c.fn()
	fc.code.Instructions = append(fc.code.Instructions, Instruction{Op: op, Operand: operand})
	return len(fc.code.Instructions) - 1
}

func (c *Compiler) markLine(loc Location) {
	fc := c.fn()
	if int32(loc.Line) == fc.lastLine {
		return
	}
	fc.lastLine = int32(loc.Line)
	fc.code.Lines = append(fc.code.Lines, LineEntry{Line: int32(loc.Line), FirstInstructionIndex: int32(len(fc.code.Instructions))})
}

func (c *Compiler) here() int { return len(c.fn().code.Instructions) }

func (c *Compiler) patchJump(instrIndex int, target int) {
	c.fn().code.Instructions[instrIndex].Operand = int32(target)
}

func (c *Compiler) internInt(v int64) int {
	if idx, ok := c.intIndex[v]; ok {
		return idx
	}
	idx := c.prog.AddConstant(Constant{Kind: ConstInt, Int: v})
	c.intIndex[v] = idx
	return idx
}

func (c *Compiler) internFloat(v float64) int {
	if idx, ok := c.floatIndex[v]; ok {
		return idx
	}
	idx := c.prog.AddConstant(Constant{Kind: ConstFloat, Float: v})
	c.floatIndex[v] = idx
	return idx
}

func (c *Compiler) internString(v string) int {
	if idx, ok := c.stringIndex[v]; ok {
		return idx
	}
	idx := c.prog.AddConstant(Constant{Kind: ConstString, Str: v})
	c.stringIndex[v] = idx
	return idx
}

func (c *Compiler) emitPopIfUnkept(keep bool) {
	if !keep {
		c.emitOp(OpPop, 0)
	}
}

// --- expression/statement emission ---

// emit lowers node, leaving exactly one value on the stack if keep is
// true and none otherwise (side effects, if any, always happen).
func (c *Compiler) emit(node Node, keep bool) error {
	if node == nil {
		if keep {
			c.emitOp(OpLoadConstant, constNilIndex)
		}
		return nil
	}
	c.markLine(node.Pos())

	switch n := node.(type) {
	case *NilNode:
		if keep {
			c.emitOp(OpLoadConstant, constNilIndex)
		}
	case *BoolNode:
		if keep {
			idx := constFalseIndex
			if n.Value {
				idx = constTrueIndex
			}
			c.emitOp(OpLoadConstant, int32(idx))
		}
	case *IntNode:
		if keep {
			c.emitOp(OpLoadConstant, int32(c.internInt(n.Value)))
		}
	case *FloatNode:
		if keep {
			c.emitOp(OpLoadConstant, int32(c.internFloat(n.Value)))
		}
	case *StringNode:
		if keep {
			c.emitOp(OpLoadConstant, int32(c.internString(n.Value)))
		}

	case *Variable:
		if keep {
			c.emitLoadVariable(n)
		}

	case *ArrayNode:
		for _, e := range n.Elements {
			if err := c.emit(e, true); err != nil {
				return err
			}
		}
		c.emitOp(OpMakeArray, int32(len(n.Elements)))
		c.emitPopIfUnkept(keep)

	case *ObjectNode:
		if err := c.emitObjectLiteral(n); err != nil {
			return err
		}
		c.emitPopIfUnkept(keep)

	case *FunctionNode:
		idx, err := c.compileFunction(n)
		if err != nil {
			return err
		}
		if keep {
			c.emitOp(OpLoadConstant, int32(idx))
			if len(n.ClosureMapping) > 0 {
				c.emitOp(OpMakeClosure, 0)
			}
		}

	case *FunctionCallNode:
		for _, a := range n.Args {
			if err := c.emit(a, true); err != nil {
				return err
			}
		}
		if err := c.emit(n.Callee, true); err != nil {
			return err
		}
		c.emitOp(OpFunctionCall, int32(len(n.Args)))
		c.emitPopIfUnkept(keep)

	case *UnaryOpNode:
		if err := c.emit(n.Operand, true); err != nil {
			return err
		}
		op, ok := unaryOpcodes[n.Op]
		if !ok {
			return fmt.Errorf("compiler: unsupported unary operator %s", n.Op)
		}
		c.emitOp(op, 0)
		c.emitPopIfUnkept(keep)

	case *BinaryOpNode:
		return c.emitBinary(n, keep)

	case *BlockNode:
		return c.emitBlockBody(n, keep)

	case *IfNode:
		return c.emitIf(n, keep)

	case *WhileNode:
		return c.emitWhile(n, keep)

	case *ForNode:
		return c.emitFor(n, keep)

	case *ReturnNode:
		return c.emitReturn(n)

	case *BreakNode:
		return c.emitBreakContinue(n.Value, true)

	case *ContinueNode:
		return c.emitBreakContinue(n.Value, false)

	case *YieldNode:
		if err := c.emit(n.Value, true); err != nil {
			return err
		}
		c.emitOp(OpYield, 0)
		c.emitPopIfUnkept(keep)

	default:
		return fmt.Errorf("compiler: unhandled node type %T", node)
	}
	return nil
}

var unaryOpcodes = map[Category]Opcode{
	TokNot:   OpUnaryNot,
	TokMinus: OpUnaryMinus,
	TokTilde: OpUnaryConcatenate,
	TokHash:  OpUnarySizeOf,
}

var binaryOpcodes = map[Category]Opcode{
	TokPlus:        OpAdd,
	TokMinus:       OpSubtract,
	TokStar:        OpMultiply,
	TokSlash:       OpDivide,
	TokPercent:     OpModulo,
	TokCaret:       OpPower,
	TokTilde:       OpConcatenate,
	TokXor:         OpXor,
	TokEqualEqual:  OpEqual,
	TokNotEqual:    OpNotEqual,
	TokLess:        OpLess,
	TokGreater:     OpGreater,
	TokLessEqual:   OpLessEqual,
	TokGreaterEqual: OpGreaterEqual,
}

func (c *Compiler) emitBlockBody(n *BlockNode, keep bool) error {
	for i, s := range n.Statements {
		last := i == len(n.Statements)-1
		if err := c.emit(s, last && keep); err != nil {
			return err
		}
	}
	if len(n.Statements) == 0 && keep {
		c.emitOp(OpLoadConstant, constNilIndex)
	}
	return nil
}

func (c *Compiler) emitLoadVariable(n *Variable) {
	switch n.Class {
	case SemLocal:
		c.emitOp(OpLoadLocal, int32(n.Slot))
	case SemLocalBoxed:
		c.emitOp(OpLoadFromBox, int32(n.Slot))
	case SemFreeVariable:
		c.emitOp(OpLoadFromClosure, int32(n.Slot))
	case SemGlobal:
		c.emitOp(OpLoadGlobal, int32(n.Slot))
	case SemNative:
		c.emitOp(OpLoadNative, int32(n.Slot))
	default:
		switch n.Kind {
		case VarThis:
			c.emitOp(OpLoadThis, 0)
		case VarArgsAll:
			c.emitOp(OpLoadArgsArray, 0)
		case VarArgN:
			c.emitOp(OpLoadArgument, int32(n.ArgN))
		default:
			c.emitOp(OpLoadConstant, constNilIndex)
		}
	}
}

// emitObjectLiteral always leaves exactly the object on the stack;
// callers pop it themselves when keep is false, matching every other
// collection-literal node.
func (c *Compiler) emitObjectLiteral(n *ObjectNode) error {
	if len(n.Keys) == 0 {
		c.emitOp(OpMakeEmptyObject, 0)
		return nil
	}

	protoHash := c.prog.Symbols.ProtoSymbol().Hash
	haveProto := false
	for i, k := range n.Keys {
		sym := c.prog.Symbols.Intern(k.Name)
		if sym.Hash == protoHash {
			haveProto = true
		}
		c.emitOp(OpLoadHash, int32(sym.Hash))
		if err := c.emit(n.Values[i], true); err != nil {
			return err
		}
	}
	count := len(n.Keys)
	if !haveProto {
		c.emitOp(OpLoadHash, int32(protoHash))
		c.emitOp(OpLoadConstant, constNilIndex)
		count++
	}
	c.emitOp(OpMakeObject, int32(count))
	return nil
}

// emitBinary handles every BinaryOpNode: assignment/compound
// assignment, short-circuiting `and`/`or`, index/member load-or-store,
// array push/pop-back, and plain arithmetic/comparison operators.
func (c *Compiler) emitBinary(n *BinaryOpNode, keep bool) error {
	switch {
	case n.Op == TokEqual:
		if arr, ok := n.Left.(*ArrayNode); ok {
			return c.emitDestructure(arr, n.Right, keep)
		}
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		return c.emitStore(n.Left, keep)

	case isCompoundAssign(n.Op):
		baseOp := compoundAssignOps[n.Op]
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.emitOp(binaryOpcodes[baseOp], 0)
		return c.emitStore(n.Left, keep)

	case n.Op == TokAnd:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		jmp := c.emitOp(OpJumpIfFalseOrPop, 0)
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.patchJump(jmp, c.here())
		c.emitPopIfUnkept(keep)
		return nil

	case n.Op == TokOr:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		jmp := c.emitOp(OpJumpIfTrueOrPop, 0)
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.patchJump(jmp, c.here())
		c.emitPopIfUnkept(keep)
		return nil

	case n.Op == TokLBracket:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.emitOp(OpLoadElement, 0)
		c.emitPopIfUnkept(keep)
		return nil

	case n.Op == TokDot:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		name, err := memberName(n.Right)
		if err != nil {
			return err
		}
		sym := c.prog.Symbols.Intern(name)
		c.emitOp(OpLoadHash, int32(sym.Hash))
		c.emitOp(OpLoadMember, 0)
		c.emitPopIfUnkept(keep)
		return nil

	case n.Op == TokShiftLeft:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.emitOp(OpArrayPushBack, 0)
		c.emitPopIfUnkept(keep)
		return nil

	case n.Op == TokShiftRight:
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		c.emitOp(OpArrayPopBack, 0)
		return c.emitStore(n.Right, keep)

	default:
		op, ok := binaryOpcodes[n.Op]
		if !ok {
			return fmt.Errorf("compiler: unsupported binary operator %s", n.Op)
		}
		if err := c.emit(n.Left, true); err != nil {
			return err
		}
		if err := c.emit(n.Right, true); err != nil {
			return err
		}
		c.emitOp(op, 0)
		c.emitPopIfUnkept(keep)
		return nil
	}
}

func memberName(n Node) (string, error) {
	v, ok := n.(*Variable)
	if !ok || v.Kind != VarIdentifier {
		return "", fmt.Errorf("compiler: invalid member-access name %v", n)
	}
	return v.Name, nil
}

// emitStore consumes the value currently on top of the stack and
// stores it into target, leaving a copy behind iff keep is true.
func (c *Compiler) emitStore(target Node, keep bool) error {
	switch t := target.(type) {
	case *Variable:
		if t.Kind == VarDiscard {
			c.emitPopIfUnkept(keep)
			return nil
		}
		switch t.Class {
		case SemLocal:
			c.emitStoreOp(OpStoreLocal, OpPopStoreLocal, int32(t.Slot), keep)
		case SemLocalBoxed:
			if t.FirstOccurrence {
				c.emitOp(OpMakeBox, int32(t.Slot))
			}
			c.emitStoreOp(OpStoreToBox, OpPopStoreToBox, int32(t.Slot), keep)
		case SemFreeVariable:
			c.emitStoreOp(OpStoreToClosure, OpPopStoreToClosure, int32(t.Slot), keep)
		case SemGlobal:
			c.emitStoreOp(OpStoreGlobal, OpPopStoreGlobal, int32(t.Slot), keep)
		default:
			return fmt.Errorf("compiler: variable %q is not assignable", t.Name)
		}
		return nil

	case *BinaryOpNode:
		switch t.Op {
		case TokLBracket:
			if err := c.emit(t.Left, true); err != nil {
				return err
			}
			if err := c.emit(t.Right, true); err != nil {
				return err
			}
			c.emitStoreOp(OpStoreElement, OpPopStoreElement, 0, keep)
			return nil
		case TokDot:
			if err := c.emit(t.Left, true); err != nil {
				return err
			}
			name, err := memberName(t.Right)
			if err != nil {
				return err
			}
			sym := c.prog.Symbols.Intern(name)
			c.emitOp(OpLoadHash, int32(sym.Hash))
			c.emitStoreOp(OpStoreMember, OpPopStoreMember, 0, keep)
			return nil
		}
	}
	return fmt.Errorf("compiler: invalid assignment target %v", target)
}

func (c *Compiler) emitStoreOp(keepOp, popOp Opcode, operand int32, keep bool) {
	if keep {
		c.emitOp(keepOp, operand)
	} else {
		c.emitOp(popOp, operand)
	}
}

// emitDestructure lowers `[a, b, c] = expr`: Duplicate (if keep),
// Unpack <N>, then store each target in reverse pop order (rightmost
// element comes off the stack first).
func (c *Compiler) emitDestructure(pattern *ArrayNode, rhs Node, keep bool) error {
	if err := c.emit(rhs, true); err != nil {
		return err
	}
	if keep {
		c.emitOp(OpDuplicate, 0)
	}
	n := len(pattern.Elements)
	c.emitOp(OpUnpack, int32(n))
	for i := n - 1; i >= 0; i-- {
		if err := c.emitStore(pattern.Elements[i], false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) emitIf(n *IfNode, keep bool) error {
	var endJumps []int
	for i, cond := range n.Conds {
		if err := c.emit(cond, true); err != nil {
			return err
		}
		skip := c.emitOp(OpPopJumpIfFalse, 0)
		if err := c.emit(n.Blocks[i], keep); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emitOp(OpJump, 0))
		c.patchJump(skip, c.here())
	}
	if n.Else != nil {
		if err := c.emit(n.Else, keep); err != nil {
			return err
		}
	} else if keep {
		c.emitOp(OpLoadConstant, constNilIndex)
	}
	for _, j := range endJumps {
		c.patchJump(j, c.here())
	}
	return nil
}

// emitWhile follows the lowering: optional default nil (if keep),
// condition, PopJumpIfFalse -> end, optional pop-old-value (if keep),
// body, Jump -> condition. Since the old value is popped before the
// body runs, break/continue only push their carried value and jump.
func (c *Compiler) emitWhile(n *WhileNode, keep bool) error {
	if keep {
		c.emitOp(OpLoadConstant, constNilIndex)
	}
	condStart := c.here()
	if err := c.emit(n.Cond, true); err != nil {
		return err
	}
	endJump := c.emitOp(OpPopJumpIfFalse, 0)
	if keep {
		c.emitOp(OpPop, 0)
	}

	lp := &loopCtx{keepValue: keep, continueTarget: condStart}
	c.fn().loops = append(c.fn().loops, lp)
	if err := c.emit(n.Body, keep); err != nil {
		return err
	}
	c.fn().loops = c.fn().loops[:len(c.fn().loops)-1]

	c.emitOp(OpJump, int32(condStart))
	end := c.here()
	c.patchJump(endJump, end)
	for _, j := range lp.breakJumps {
		c.patchJump(j, end)
	}
	return nil
}

// emitFor follows the lowering: evaluate the iterable, MakeIterator,
// optional nil-under-iterator (if keep), loop: IteratorHasNext,
// PopJumpIfFalse -> end, IteratorGetNext, store to the loop variable,
// body, (if keep: MoveToTOS2 to save the body's result under the
// iterator), Jump -> loop; end pops the iterator. A value-keeping
// for-loop leaves two scaffolding slots live on the stack throughout the
// body (the carried result and the iterator) instead of one, so
// `return` must drop both; forGarbage is bumped by 2 rather than 1 in
// that case.
func (c *Compiler) emitFor(n *ForNode, keep bool) error {
	if keep {
		c.emitOp(OpLoadConstant, constNilIndex)
	}
	if err := c.emit(n.Iterable, true); err != nil {
		return err
	}
	c.emitOp(OpMakeIterator, 0)

	fc := c.fn()
	garbage := 1
	if keep {
		garbage = 2
	}
	fc.forGarbage += garbage
	loopStart := c.here()

	c.emitOp(OpIteratorHasNext, 0)
	endJump := c.emitOp(OpPopJumpIfFalse, 0)
	c.emitOp(OpIteratorGetNext, 0)
	if err := c.emitStore(n.Var, false); err != nil {
		return err
	}

	lp := &loopCtx{keepValue: keep, continueTarget: loopStart, forLoop: true}
	fc.loops = append(fc.loops, lp)
	if err := c.emit(n.Body, keep); err != nil {
		return err
	}
	fc.loops = fc.loops[:len(fc.loops)-1]

	if keep {
		c.emitOp(OpMoveToTOS2, 0)
	}
	c.emitOp(OpJump, int32(loopStart))

	end := c.here()
	c.patchJump(endJump, end)
	for _, j := range lp.breakJumps {
		c.patchJump(j, end)
	}
	fc.forGarbage -= garbage
	// stack is [result-or-nothing, iterator]; drop the iterator,
	// leaving the saved result (if any) as the for-expression's value.
	c.emitOp(OpPop, 0)
	return nil
}

func (c *Compiler) emitReturn(n *ReturnNode) error {
	fc := c.fn()
	if fc.forGarbage > 0 {
		c.emitOp(OpPopN, int32(fc.forGarbage))
	}
	if err := c.emit(n.Value, true); err != nil {
		return err
	}
	j := c.emitOp(OpJump, 0)
	fc.returnJumps = append(fc.returnJumps, j)
	return nil
}

// emitBreakContinue implements the carried-value handoff described in
// the while/for lowerings: if the loop keeps a value, the new value is
// pushed (and, in a for-loop, moved under the iterator with
// MoveToTOS2, replacing the old carry) before jumping.
func (c *Compiler) emitBreakContinue(value Node, isBreak bool) error {
	fc := c.fn()
	if len(fc.loops) == 0 {
		return fmt.Errorf("compiler: break/continue outside of a loop")
	}
	lp := fc.loops[len(fc.loops)-1]

	if lp.keepValue {
		if err := c.emit(value, true); err != nil {
			return err
		}
		if lp.forLoop {
			c.emitOp(OpMoveToTOS2, 0)
		}
	} else if value != nil {
		if err := c.emit(value, false); err != nil {
			return err
		}
	}

	if isBreak {
		j := c.emitOp(OpJump, 0)
		lp.breakJumps = append(lp.breakJumps, j)
	} else {
		c.emitOp(OpJump, int32(lp.continueTarget))
	}
	return nil
}
