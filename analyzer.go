package ember

// contextKind is one entry of the analyzer's context stack, used to
// decide whether break/continue/return/yield are legal at a given
// point and whether a collection literal currently being built blocks
// control jumps to an outer loop or function.
type contextKind int

const (
	ctxInGlobal contextKind = iota
	ctxInFunction
	ctxInLoop
	ctxInObject
	ctxInArray
	ctxInArguments
)

// Analyzer performs the two-pass walk described for the semantic
// stage: Pass 1 validates structure (break/continue/return placement,
// assignability, member-access targets) while recording every
// Function node's referenced variables; Pass 2 resolves every named
// Variable to a Local/Global/Native/LocalBoxed/FreeVariable slot,
// threading closure captures through intermediate functions.
type Analyzer struct {
	diags *DiagnosticLog

	context        []contextKind
	currentFn      *FunctionNode
	functionScopes []*functionScope
	globals        []string
	natives        map[string]int
}

// NewAnalyzer creates an Analyzer. natives maps every bridged native
// function name to its fixed index in the native-function table.
func NewAnalyzer(natives map[string]int, log *DiagnosticLog) *Analyzer {
	return &Analyzer{diags: log, natives: natives}
}

// Globals returns the names of every global variable discovered
// during analysis, indexed by slot.
func (a *Analyzer) Globals() []string { return a.globals }

// Analyze runs both passes over root, the top-level script function.
// It returns false if Pass 1 found a structural error (Pass 2 always
// succeeds — unresolved names simply become new globals or locals).
func (a *Analyzer) Analyze(root *FunctionNode) bool {
	ok := a.validate(root)
	if !ok {
		return false
	}
	a.resolveNames([]Node{root})
	a.context = nil
	a.functionScopes = nil
	return true
}

func (a *Analyzer) errorf(n Node, format string, args ...any) bool {
	a.diags.Addf(StageSemantic, Span{Start: n.Pos(), End: n.Pos()}, format, args...)
	return false
}

// --- Pass 1: structural validation ---

func (a *Analyzer) validate(node Node) bool {
	if node == nil {
		return true
	}

	switch n := node.(type) {
	case *NilNode, *BoolNode, *IntNode, *FloatNode, *StringNode:
		return true

	case *Variable:
		if a.currentFn != nil {
			a.currentFn.ReferencedVariables = append(a.currentFn.ReferencedVariables, n)
		}
		return true

	case *UnaryOpNode:
		if isBreakContinueReturn(n.Operand) {
			return a.errorf(n, "break, continue, return cannot be arguments to unary operators")
		}
		return a.validate(n.Operand)

	case *BinaryOpNode:
		return a.validateBinaryOp(n)

	case *IfNode:
		for i, cond := range n.Conds {
			if !a.validate(cond) {
				return false
			}
			if !a.validate(n.Blocks[i]) {
				return false
			}
		}
		if n.Else != nil {
			return a.validate(n.Else)
		}
		return true

	case *WhileNode:
		a.context = append(a.context, ctxInLoop)
		ok := a.validate(n.Cond) && a.validate(n.Body)
		a.context = a.context[:len(a.context)-1]
		return ok

	case *ForNode:
		if !a.checkAssignable(n.Var) {
			return false
		}
		a.context = append(a.context, ctxInLoop)
		ok := a.validate(n.Var) && a.validate(n.Iterable) && a.validate(n.Body)
		a.context = a.context[:len(a.context)-1]
		return ok

	case *BlockNode:
		for _, s := range n.Statements {
			if !a.validate(s) {
				return false
			}
		}
		return true

	case *ArrayNode:
		a.context = append(a.context, ctxInArray)
		for _, e := range n.Elements {
			if !a.validate(e) {
				a.context = a.context[:len(a.context)-1]
				return false
			}
		}
		a.context = a.context[:len(a.context)-1]
		return true

	case *ObjectNode:
		a.context = append(a.context, ctxInObject)
		for i, v := range n.Values {
			if n.Keys[i].Kind != VarIdentifier {
				a.context = a.context[:len(a.context)-1]
				return a.errorf(n.Keys[i], "only valid identifiers can be object keys")
			}
			if !a.validate(v) {
				a.context = a.context[:len(a.context)-1]
				return false
			}
		}
		a.context = a.context[:len(a.context)-1]
		return true

	case *FunctionNode:
		if b, ok := n.Body.(*BlockNode); ok {
			b.explicitFunctionBlock = true
		}
		if len(a.context) == 0 {
			a.context = append(a.context, ctxInGlobal)
		} else {
			a.context = append(a.context, ctxInFunction)
		}
		prevFn := a.currentFn
		a.currentFn = n
		ok := a.validate(n.Body)
		a.currentFn = prevFn
		a.context = a.context[:len(a.context)-1]
		return ok

	case *FunctionCallNode:
		if !callableTarget(n.Callee) {
			return a.errorf(n, "invalid target for function call")
		}
		if !a.validate(n.Callee) {
			return false
		}
		a.context = append(a.context, ctxInArguments)
		for _, arg := range n.Args {
			if !a.validate(arg) {
				a.context = a.context[:len(a.context)-1]
				return false
			}
		}
		a.context = a.context[:len(a.context)-1]
		return true

	case *ReturnNode:
		if a.isInConstruction() {
			return a.errorf(n, "return cannot be used inside array, object or argument constructions")
		}
		if !a.isInFunction() {
			return a.errorf(n, "return can only be used inside a function")
		}
		if n.Value != nil {
			return a.validate(n.Value)
		}
		return true

	case *BreakNode:
		if a.isInConstruction() {
			return a.errorf(n, "break cannot be used inside array, object or argument constructions")
		}
		if !a.isInLoop() {
			return a.errorf(n, "break can only be used inside a loop")
		}
		if n.Value != nil {
			return a.validate(n.Value)
		}
		return true

	case *ContinueNode:
		if a.isInConstruction() {
			return a.errorf(n, "continue cannot be used inside array, object or argument constructions")
		}
		if !a.isInLoop() {
			return a.errorf(n, "continue can only be used inside a loop")
		}
		if n.Value != nil {
			return a.validate(n.Value)
		}
		return true

	case *YieldNode:
		if a.isInConstruction() {
			return a.errorf(n, "yield cannot be used inside array, object or argument constructions")
		}
		if !a.isInFunction() {
			return a.errorf(n, "yield can only be used inside a function")
		}
		if n.Value != nil {
			return a.validate(n.Value)
		}
		return true
	}

	return true
}

func callableTarget(callee Node) bool {
	switch callee.(type) {
	case *NilNode, *IntNode, *FloatNode, *BoolNode, *StringNode,
		*ArrayNode, *ObjectNode, *ReturnNode, *BreakNode, *ContinueNode, *YieldNode:
		return false
	}
	return true
}

func (a *Analyzer) validateBinaryOp(n *BinaryOpNode) bool {
	if n.Op != TokAnd && n.Op != TokOr && (isBreakContinueReturn(n.Left) || isBreakContinueReturn(n.Right)) {
		return a.errorf(n, "break, continue, return can only be used with 'and' and 'or' operators")
	}

	if n.Op == TokEqual || isCompoundAssign(n.Op) {
		if _, isArray := n.Left.(*ArrayNode); isArray && n.Op != TokEqual {
			return a.errorf(n.Left, "cannot use compound assignment with an array on the left hand side")
		}
		if !a.checkAssignable(n.Left) {
			return false
		}
	}

	if n.Op == TokEqual {
		if v, ok := n.Right.(*Variable); ok && v.Kind == VarArgsAll {
			return a.errorf(n.Right, "argument arrays cannot be assigned to variables, they must be copied")
		}
	}

	if n.Op == TokShiftRight { // array-pop: `arr >> target`
		if !a.checkAssignable(n.Right) {
			return false
		}
	}

	if n.Op == TokLBracket && !indexableTarget(n.Left) {
		return a.errorf(n.Left, "invalid target for index operation")
	}

	if n.Op == TokDot && !memberTarget(n.Left) {
		return a.errorf(n.Left, "invalid target for member access")
	}

	return a.validate(n.Left) && a.validate(n.Right)
}

func isCompoundAssign(op Category) bool {
	_, ok := compoundAssignOps[op]
	return ok
}

func indexableTarget(n Node) bool {
	switch n.(type) {
	case *NilNode, *IntNode, *FloatNode, *BoolNode,
		*FunctionNode, *ReturnNode, *BreakNode, *ContinueNode, *YieldNode:
		return false
	}
	return true
}

func memberTarget(n Node) bool {
	switch n.(type) {
	case *NilNode, *IntNode, *FloatNode, *BoolNode, *StringNode, *ArrayNode,
		*FunctionNode, *ReturnNode, *BreakNode, *ContinueNode, *YieldNode:
		return false
	}
	return true
}

// checkAssignable reports (recording a diagnostic on failure) whether
// node is a valid assignment target: a named/discard Variable, an
// index or member-access BinaryOp, or an array-destructuring pattern
// made of such targets.
func (a *Analyzer) checkAssignable(node Node) bool {
	switch n := node.(type) {
	case *Variable:
		switch n.Kind {
		case VarThis:
			return a.errorf(n, "the 'this' variable is not assignable")
		case VarArgsAll:
			return a.errorf(n, "the $$ array is not assignable")
		case VarArgN:
			return a.errorf(n, "the $%d variable is not assignable", n.ArgN)
		}
		return true

	case *BinaryOpNode:
		if n.Op != TokLBracket && n.Op != TokDot {
			return a.errorf(n, "assignment must have a variable on the left hand side")
		}
		if n.Op == TokLBracket {
			if v, ok := n.Left.(*Variable); ok && v.Kind == VarArgsAll {
				return a.errorf(n, "elements of the $$ array are not assignable")
			}
		}
		if n.Op == TokDot {
			return a.checkAssignable(n.Right)
		}
		return true

	case *ArrayNode:
		for _, e := range n.Elements {
			if !a.checkAssignable(e) {
				return false
			}
		}
		return true
	}

	return a.errorf(node, "invalid assignment")
}

func isBreakContinueReturn(n Node) bool {
	switch n.(type) {
	case *BreakNode, *ContinueNode, *ReturnNode:
		return true
	}
	return false
}

func (a *Analyzer) isInLoop() bool {
	for i := len(a.context) - 1; i >= 0; i-- {
		switch a.context[i] {
		case ctxInFunction:
			return false
		case ctxInLoop:
			return true
		}
	}
	return false
}

func (a *Analyzer) isInFunction() bool {
	for i := len(a.context) - 1; i >= 0; i-- {
		if a.context[i] == ctxInFunction {
			return true
		}
	}
	return false
}

func (a *Analyzer) isInConstruction() bool {
	if len(a.context) == 0 {
		return false
	}
	switch a.context[len(a.context)-1] {
	case ctxInArray, ctxInObject, ctxInArguments:
		return true
	}
	return false
}

// --- Pass 2: name resolution ---

// resolveNames walks nodesToProcess depth-first (as an explicit stack,
// mirroring the worklist this analyzer's ancestor implementation
// uses), deferring Block and Function nodes to a second round so that
// every name reference inside a function is resolved with that
// function's scope already current.
func (a *Analyzer) resolveNames(nodesToProcess []Node) {
	var deferred []Node

	for len(nodesToProcess) > 0 {
		node := nodesToProcess[len(nodesToProcess)-1]
		nodesToProcess = nodesToProcess[:len(nodesToProcess)-1]

		switch n := node.(type) {
		case *NilNode, *BoolNode, *IntNode, *FloatNode, *StringNode:

		case *Variable:
			if n.Kind == VarIdentifier {
				a.resolveName(n)
			}

		case *BlockNode, *FunctionNode:
			deferred = append(deferred, node)

		case *UnaryOpNode:
			nodesToProcess = append(nodesToProcess, n.Operand)

		case *BinaryOpNode:
			nodesToProcess = append(nodesToProcess, n.Right, n.Left)

		case *IfNode:
			if n.Else != nil {
				nodesToProcess = append(nodesToProcess, n.Else)
			}
			for i := len(n.Conds) - 1; i >= 0; i-- {
				nodesToProcess = append(nodesToProcess, n.Blocks[i], n.Conds[i])
			}

		case *WhileNode:
			nodesToProcess = append(nodesToProcess, n.Body, n.Cond)

		case *ForNode:
			nodesToProcess = append(nodesToProcess, n.Body, n.Iterable, n.Var)

		case *ArrayNode:
			for i := len(n.Elements) - 1; i >= 0; i-- {
				nodesToProcess = append(nodesToProcess, n.Elements[i])
			}

		case *ObjectNode:
			for i := len(n.Values) - 1; i >= 0; i-- {
				nodesToProcess = append(nodesToProcess, n.Values[i], n.Keys[i])
			}

		case *FunctionCallNode:
			for i := len(n.Args) - 1; i >= 0; i-- {
				nodesToProcess = append(nodesToProcess, n.Args[i])
			}
			nodesToProcess = append(nodesToProcess, n.Callee)

		case *ReturnNode:
			if n.Value != nil {
				nodesToProcess = append(nodesToProcess, n.Value)
			}
		case *BreakNode:
			if n.Value != nil {
				nodesToProcess = append(nodesToProcess, n.Value)
			}
		case *ContinueNode:
			if n.Value != nil {
				nodesToProcess = append(nodesToProcess, n.Value)
			}
		case *YieldNode:
			if n.Value != nil {
				nodesToProcess = append(nodesToProcess, n.Value)
			}
		}
	}

	for _, node := range deferred {
		switch n := node.(type) {
		case *BlockNode:
			toProcess := make([]Node, len(n.Statements))
			for i, s := range n.Statements {
				toProcess[len(n.Statements)-1-i] = s
			}
			if n.explicitFunctionBlock {
				a.resolveNames(toProcess)
			} else {
				fs := a.functionScopes[len(a.functionScopes)-1]
				fs.pushBlock()
				a.resolveNames(toProcess)
				fs.popBlock()
			}

		case *FunctionNode:
			isGlobal := len(a.functionScopes) == 0
			fs := newFunctionScope(n)
			if isGlobal {
				fs.blocks = fs.blocks[:0]
			}
			a.functionScopes = append(a.functionScopes, fs)
			a.resolveNames([]Node{n.Body})
			a.functionScopes = a.functionScopes[:len(a.functionScopes)-1]
		}
	}
}

func (a *Analyzer) resolveName(vn *Variable) {
	name := vn.Name

	if len(a.functionScopes) == 1 && len(a.functionScopes[0].blocks) == 0 {
		a.resolveGlobalName(vn, name)
		return
	}

	fs := a.functionScopes[len(a.functionScopes)-1]

	for i, p := range fs.parameters {
		if p == name {
			vn.Class = SemLocal
			vn.Slot = i
			vn.FirstOccurrence = false
			return
		}
	}

	for i, f := range fs.freeVariables {
		if f == name {
			vn.Class = SemFreeVariable
			vn.Slot = i
			vn.FirstOccurrence = false
			return
		}
	}

	for i := len(fs.blocks) - 1; i >= 0; i-- {
		if found, ok := fs.blocks[i].variables[name]; ok {
			vn.Class = found.Class
			vn.Slot = found.Slot
			vn.FirstOccurrence = false
			return
		}
	}

	if a.tryFindInEnclosingFunctions(vn) {
		return
	}

	for i, g := range a.globals {
		if g == name {
			vn.Class = SemGlobal
			vn.Slot = i
			vn.FirstOccurrence = false
			return
		}
	}

	if idx, ok := a.natives[name]; ok {
		vn.Class = SemNative
		vn.Slot = idx
		vn.FirstOccurrence = false
		return
	}

	vn.Class = SemLocal
	vn.Slot = fs.node.LocalCount
	fs.node.LocalCount++
	vn.FirstOccurrence = true
	fs.currentBlock().variables[name] = vn
}

func (a *Analyzer) resolveGlobalName(vn *Variable, name string) {
	for i, g := range a.globals {
		if g == name {
			vn.Class = SemGlobal
			vn.Slot = i
			vn.FirstOccurrence = false
			return
		}
	}
	if idx, ok := a.natives[name]; ok {
		vn.Class = SemNative
		vn.Slot = idx
		vn.FirstOccurrence = false
		return
	}
	vn.Class = SemGlobal
	vn.Slot = len(a.globals)
	vn.FirstOccurrence = true
	a.globals = append(a.globals, name)
}

// tryFindInEnclosingFunctions looks for name in every function scope
// enclosing the current one, from innermost to outermost. If found,
// it marks the defining occurrence (and every other reference to it
// already recorded in that function's referencedVariables) as boxed,
// then threads the capture through every intermediate function scope
// as a new free variable, recording each one's contribution to its
// closure mapping.
func (a *Analyzer) tryFindInEnclosingFunctions(vn *Variable) bool {
	name := vn.Name
	found := false
	foundAtIndex := 0
	foundFunctionScopeIndex := -1

	for i := len(a.functionScopes) - 2; i >= 0; i-- {
		fs := a.functionScopes[i]

		for j, f := range fs.freeVariables {
			if f == name {
				found = true
				foundAtIndex = -j - 1
				break
			}
		}

		if !found {
			for j, p := range fs.parameters {
				if p == name {
					found = true
					foundAtIndex = j
					if !containsInt(fs.node.ParametersToBox, j) {
						a.makeBoxed(fs, j)
					}
					break
				}
			}
		}

		if !found {
			for b := len(fs.blocks) - 1; b >= 0; b-- {
				if v, ok := fs.blocks[b].variables[name]; ok {
					found = true
					foundAtIndex = v.Slot
					if v.Class == SemLocal {
						a.makeBoxed(fs, v.Slot)
					}
					break
				}
			}
		}

		if found {
			foundFunctionScopeIndex = i
			break
		}
	}

	if !found {
		return false
	}

	localFunctionScopeIndex := len(a.functionScopes) - 1
	for foundFunctionScopeIndex+1 < localFunctionScopeIndex {
		fs := a.functionScopes[foundFunctionScopeIndex+1]

		newFreeVarIndex := -len(fs.freeVariables) - 1

		fs.freeVariables = append(fs.freeVariables, name)
		fs.node.ClosureMapping = append(fs.node.ClosureMapping, foundAtIndex)
		fs.node.FreeVariables = append(fs.node.FreeVariables, vn)

		foundAtIndex = newFreeVarIndex
		foundFunctionScopeIndex++
	}

	local := a.functionScopes[len(a.functionScopes)-1]
	local.freeVariables = append(local.freeVariables, name)
	local.node.ClosureMapping = append(local.node.ClosureMapping, foundAtIndex)
	local.node.FreeVariables = append(local.node.FreeVariables, vn)

	vn.Class = SemFreeVariable
	vn.Slot = len(local.freeVariables) - 1
	vn.FirstOccurrence = true
	return true
}

// makeBoxed marks every already-recorded reference to the local at
// slot index inside fs's function as SemLocalBoxed (so the compiler
// emits box load/store for it instead of a plain slot access) and, if
// the slot belongs to a named parameter, records it for a MakeBox
// emitted at function entry.
func (a *Analyzer) makeBoxed(fs *functionScope, index int) {
	for _, ref := range fs.node.ReferencedVariables {
		if ref.Class == SemLocal && ref.Slot == index {
			ref.Class = SemLocalBoxed
		}
	}
	if index < len(fs.node.Params) {
		fs.node.ParametersToBox = append(fs.node.ParametersToBox, index)
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
