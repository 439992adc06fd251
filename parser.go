package ember

// Parser produces an AST whose root is always a FunctionNode
// representing the top-level script (no named parameters, one block
// body). It implements a precedence-climbing ("shunting-yard")
// expression parser with two stacks (operators + operands) and a
// sentinel at the bottom of the operator stack.
type Parser struct {
	lexer *Lexer
	cur   Category
	loc   Location

	diags *DiagnosticLog
	failed bool
}

// NewParser creates a Parser reading tokens from lexer, reporting
// syntax errors into log.
func NewParser(lexer *Lexer, log *DiagnosticLog) *Parser {
	return &Parser{lexer: lexer, diags: log}
}

func (p *Parser) advance() Category {
	p.cur = p.lexer.NextToken()
	p.loc = p.lexer.CurrentCoords
	return p.cur
}

func (p *Parser) advanceIgnoreNL() Category {
	p.cur = p.lexer.NextTokenIgnoringNewlines()
	p.loc = p.lexer.CurrentCoords
	return p.cur
}

func (p *Parser) errorf(format string, args ...any) {
	p.failed = true
	p.diags.Addf(StageParse, Span{Start: p.loc, End: p.loc}, format, args...)
}

func isTerminator(c Category) bool {
	switch c {
	case TokNewline, TokSemicolon, TokComma, TokRParen, TokRBracket, TokRBrace,
		TokElse, TokElif, TokIn, TokEOF:
		return true
	}
	return false
}

// Parse parses the whole source as the body of the top-level function
// and returns its root FunctionNode, or nil plus recorded diagnostics
// on any syntax error.
func (p *Parser) Parse() *FunctionNode {
	p.advanceIgnoreNL()
	loc := p.loc
	stmts := p.parseStatementsUntil(TokEOF)
	if p.failed {
		return nil
	}
	return &FunctionNode{
		base: base{loc: loc},
		Body: &BlockNode{base: base{loc: loc}, Statements: stmts},
	}
}

// parseStatementsUntil parses expressions separated by newlines/';'
// until `end` is seen (which is not consumed).
func (p *Parser) parseStatementsUntil(end Category) []Node {
	var stmts []Node
	for p.cur != end && p.cur != TokEOF {
		n := p.parseExpression()
		if n == nil {
			return nil
		}
		stmts = append(stmts, n)
		for p.cur == TokNewline || p.cur == TokSemicolon {
			p.advanceIgnoreNL()
		}
	}
	return stmts
}

// --- operator table ---

type exprKind int

const (
	exprBinary exprKind = iota
	exprUnary
)

type opInfo struct {
	prec       int
	rightAssoc bool
}

var binaryOps = map[Category]opInfo{
	TokComma:        {10, false},
	TokEqual:        {20, true},
	TokPlusEqual:    {20, true},
	TokMinusEqual:   {20, true},
	TokStarEqual:    {20, true},
	TokSlashEqual:   {20, true},
	TokCaretEqual:   {20, true},
	TokPercentEqual: {20, true},
	TokTildeEqual:   {20, true},
	TokShiftRight:   {24, true},
	TokShiftLeft:    {25, true},
	TokOr:           {40, false},
	TokAnd:          {50, false},
	TokXor:          {60, false},
	TokEqualEqual:   {70, false},
	TokNotEqual:     {70, false},
	TokLess:         {80, false},
	TokGreater:      {80, false},
	TokLessEqual:    {80, false},
	TokGreaterEqual: {80, false},
	TokPlus:         {90, false},
	TokMinus:        {90, false},
	TokTilde:        {90, false},
	TokStar:         {100, false},
	TokSlash:        {100, false},
	TokPercent:      {100, false},
	TokCaret:        {110, false},
	TokArrow:        {130, false},
	TokColon:        {150, false},
	TokDoubleColon:  {150, false},
	TokDot:          {150, false},
}

var unaryOps = map[Category]opInfo{
	TokNot:   {120, false},
	TokMinus: {120, false},
	TokTilde: {120, false},
	TokHash:  {120, false},
}

type stackOp struct {
	tok  Category
	prec int
	kind exprKind
	loc  Location
}

// parseExpression implements the shunting-yard algorithm described in
// spec.md §4.2: two stacks (operators with a lowest-precedence
// sentinel, and operands) plus an explicit expectOperand flag that
// tracks whether the next token must start a primary expression (or a
// prefix unary operator) or whether it continues the expression begun
// by the operand already on top of the operand stack (a binary
// operator, or one of the postfix-like forms `[`, `(`, `:`/`::`).
func (p *Parser) parseExpression() Node {
	for p.cur == TokNewline || p.cur == TokSemicolon {
		p.advanceIgnoreNL()
	}
	if p.cur == TokEOF {
		return nil
	}

	operators := []stackOp{{tok: TokInvalid, prec: -1, kind: exprUnary}}
	var operands []Node
	expectOperand := true

	for {
		if expectOperand {
			if info, ok := unaryOps[p.cur]; ok {
				loc := p.loc
				for info.prec < operators[len(operators)-1].prec {
					if !p.fold(&operators, &operands) {
						return nil
					}
				}
				operators = append(operators, stackOp{tok: p.cur, prec: info.prec, kind: exprUnary, loc: loc})
				p.advanceIgnoreNL()
				continue
			}
			n := p.parsePrimary()
			if n == nil {
				return nil
			}
			operands = append(operands, n)
			expectOperand = false
			continue
		}

		// expectOperand == false: an operand is on top of the stack.
		// Terminator status is checked before any operator handling —
		// `,` is nominally a low-precedence binary operator but is also
		// always a terminator, so in practice it is never folded in
		// here and is left for the caller (array/call/param lists) to
		// consume as a separator.
		if isTerminator(p.cur) {
			goto done
		}
		switch p.cur {
		case TokLBracket:
			idx := p.parseIndexOperand()
			if idx == nil {
				return nil
			}
			top := len(operands) - 1
			operands[top] = &BinaryOpNode{base: base{loc: operands[top].Pos()}, Op: TokLBracket, Left: operands[top], Right: idx}
			continue

		case TokLParen:
			argsNode := p.parseCallArguments()
			if argsNode == nil {
				return nil
			}
			var args []Node
			if al, ok := argsNode.(*argListNode); ok {
				args = al.items
			}
			top := len(operands) - 1
			operands[top] = &FunctionCallNode{base: base{loc: operands[top].Pos()}, Callee: operands[top], Args: args}
			continue

		case TokColon, TokDoubleColon:
			loc := p.loc
			for binaryOps[TokColon].prec < operators[len(operators)-1].prec {
				if !p.fold(&operators, &operands) {
					return nil
				}
			}
			fn := p.parseFunctionLiteral()
			if fn == nil {
				return nil
			}
			top := len(operands) - 1
			if v, ok := operands[top].(*Variable); !ok || !v.IsAssignable() {
				p.errorf("left-hand side of function definition must be an assignable name")
				return nil
			}
			operands[top] = &BinaryOpNode{base: base{loc: loc}, Op: TokEqual, Left: operands[top], Right: fn}
			continue
		}

		info, isBinary := binaryOps[p.cur]
		if !isBinary {
			p.errorf("operator expected, got %s", p.cur)
			return nil
		}
		loc := p.loc
		for info.prec < operators[len(operators)-1].prec ||
			(info.prec == operators[len(operators)-1].prec && !info.rightAssoc) {
			if !p.fold(&operators, &operands) {
				return nil
			}
		}
		operators = append(operators, stackOp{tok: p.cur, prec: info.prec, kind: exprBinary, loc: loc})
		expectOperand = true
		p.advanceIgnoreNL()
	}

done:
	for len(operands) > 1 || len(operators) > 1 {
		if !p.fold(&operators, &operands) {
			return nil
		}
	}
	if len(operands) == 0 {
		return nil
	}
	return operands[0]
}

func (p *Parser) fold(operators *[]stackOp, operands *[]Node) bool {
	n := len(*operators)
	top := (*operators)[n-1]
	*operators = (*operators)[:n-1]

	pop := func() Node {
		m := len(*operands)
		v := (*operands)[m-1]
		*operands = (*operands)[:m-1]
		return v
	}

	switch top.kind {
	case exprBinary:
		if len(*operands) < 2 {
			p.errorf("malformed expression")
			return false
		}
		rhs, lhs := pop(), pop()
		*operands = append(*operands, &BinaryOpNode{base: base{loc: top.loc}, Op: top.tok, Left: lhs, Right: rhs})
	case exprUnary:
		if len(*operands) < 1 {
			p.errorf("malformed expression")
			return false
		}
		operand := pop()
		*operands = append(*operands, &UnaryOpNode{base: base{loc: top.loc}, Op: top.tok, Operand: operand})
	}
	return true
}

// argListNode is an internal-only holder for a parsed argument list;
// it never survives into the final AST (the call case of
// parseExpression unwraps it into a FunctionCallNode).
type argListNode struct {
	base
	items []Node
}

func (n *argListNode) String() string { return "(args)" }

func (p *Parser) parseIndexOperand() Node {
	p.advanceIgnoreNL() // eat [
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	n := p.parseExpression()
	if n == nil {
		return nil
	}
	if p.cur != TokRBracket {
		p.errorf("expected ]")
		return nil
	}
	p.advance()
	return n
}

func (p *Parser) parseCallArguments() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat (
	var args []Node
	for p.cur != TokRParen {
		if isTerminator(p.cur) {
			p.errorf("expression expected")
			return nil
		}
		arg := p.parseExpression()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		if p.cur == TokNewline {
			p.advanceIgnoreNL()
		}
		if p.cur == TokComma {
			p.advanceIgnoreNL()
		} else if p.cur != TokRParen {
			p.errorf("expected , or )")
			return nil
		}
	}
	p.advance() // eat )
	return &argListNode{base: base{loc: loc}, items: args}
}

// parseFunctionLiteral parses the body following a `:`/`::` that
// introduces a function literal: `:(params) body` or `::body`.
func (p *Parser) parseFunctionLiteral() Node {
	loc := p.loc
	var params []string
	if p.cur == TokDoubleColon {
		p.advanceIgnoreNL() // eat ::
	} else {
		p.advanceIgnoreNL() // eat :
		if p.cur != TokLParen {
			p.errorf("expected (")
			return nil
		}
		p.advanceIgnoreNL() // eat (
		for p.cur != TokRParen {
			if p.cur != TokIdentifier {
				p.errorf("identifier expected")
				return nil
			}
			params = append(params, p.lexer.LastIdentifier)
			p.advanceIgnoreNL()
			if p.cur == TokComma {
				p.advanceIgnoreNL()
			} else if p.cur != TokRParen {
				p.errorf("expected , or )")
				return nil
			}
		}
		p.advanceIgnoreNL() // eat )
	}
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	body := p.parseExpression()
	if body == nil {
		return nil
	}
	return &FunctionNode{base: base{loc: loc}, Params: params, Body: body}
}

// parsePrimary dispatches on the current token to parse a primary
// expression: a literal, a variable, a parenthesized expression, a
// block, an array/object literal, a function literal, or a control
// structure (if/while/for/return/break/continue/yield).
func (p *Parser) parsePrimary() Node {
	loc := p.loc
	switch p.cur {
	case TokNil:
		p.advance()
		return &NilNode{base{loc: loc}}
	case TokInt:
		v := p.lexer.LastInteger
		p.advance()
		return &IntNode{base{loc: loc}, v}
	case TokFloat:
		v := p.lexer.LastFloat
		p.advance()
		return &FloatNode{base{loc: loc}, v}
	case TokString:
		v := p.lexer.LastString
		p.advance()
		return &StringNode{base{loc: loc}, v}
	case TokBool:
		v := p.lexer.LastBool
		p.advance()
		return &BoolNode{base{loc: loc}, v}
	case TokThis:
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarThis}
	case TokUnderscore:
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarDiscard}
	case TokArg0:
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarArgN, ArgN: 0}
	case TokArg:
		n := p.lexer.LastArgIndex
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarArgN, ArgN: n}
	case TokArgsAll:
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarArgsAll}
	case TokIdentifier:
		name := p.lexer.LastIdentifier
		p.advance()
		return &Variable{base: base{loc: loc}, Kind: VarIdentifier, Name: name}
	case TokLParen:
		return p.parseParenExpr()
	case TokLBrace:
		return p.parseBlockExpr()
	case TokLBracket:
		return p.parseArrayOrObject()
	case TokColon, TokDoubleColon:
		return p.parseFunctionLiteral()
	case TokIf:
		return p.parseIf()
	case TokWhile:
		return p.parseWhile()
	case TokFor:
		return p.parseFor()
	case TokReturn, TokBreak, TokContinue, TokYield:
		return p.parseControlExpr()
	default:
		p.errorf("unexpected token %s", p.cur)
		return nil
	}
}

func (p *Parser) parseParenExpr() Node {
	p.advanceIgnoreNL() // eat (
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	n := p.parseExpression()
	if n == nil {
		return nil
	}
	if p.cur != TokRParen {
		p.errorf("expected )")
		return nil
	}
	p.advance()
	return n
}

func (p *Parser) parseBlockExpr() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat {
	stmts := p.parseStatementsUntil(TokRBrace)
	if p.failed {
		return nil
	}
	if p.cur != TokRBrace {
		p.errorf("expected }")
		return nil
	}
	p.advance() // eat }
	return &BlockNode{base: base{loc: loc}, Statements: stmts}
}

// parseArrayOrObject disambiguates between an array and an object
// literal: `[` starts an array by default; if every top-level element
// is a top-level `=` assignment, the literal is reinterpreted as an
// object. `[=]` is the empty object.
func (p *Parser) parseArrayOrObject() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat [

	if p.cur == TokEqual {
		p.advanceIgnoreNL() // eat =
		if p.cur != TokRBracket {
			p.errorf("expression expected")
			return nil
		}
		p.advance() // eat ]
		return &ObjectNode{base: base{loc: loc}}
	}

	var elements []Node
	firstSeen := false
	isObject := false

	for p.cur != TokRBracket {
		if isTerminator(p.cur) {
			p.errorf("expression expected")
			return nil
		}
		elem := p.parseExpression()
		if elem == nil {
			return nil
		}
		isAssign := false
		if b, ok := elem.(*BinaryOpNode); ok && b.Op == TokEqual {
			isAssign = true
		}
		if !firstSeen {
			isObject = isAssign
			firstSeen = true
		} else if isObject != isAssign {
			p.errorf("mixing together syntax for arrays and objects")
			return nil
		}
		elements = append(elements, elem)

		for p.cur == TokNewline {
			p.advanceIgnoreNL()
		}
		if p.cur == TokComma {
			p.advanceIgnoreNL()
		} else if p.cur != TokRBracket {
			p.errorf("expected , or ]")
			return nil
		}
	}
	p.advance() // eat ]

	if isObject {
		obj := &ObjectNode{base: base{loc: loc}}
		for _, e := range elements {
			b := e.(*BinaryOpNode)
			key, ok := b.Left.(*Variable)
			if !ok || key.Kind != VarIdentifier {
				p.errorf("object literal keys must be named identifiers")
				return nil
			}
			obj.Keys = append(obj.Keys, key)
			obj.Values = append(obj.Values, b.Right)
		}
		return obj
	}
	return &ArrayNode{base: base{loc: loc}, Elements: elements}
}

func (p *Parser) parseIf() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat if

	n := &IfNode{base: base{loc: loc}}
	for {
		if p.cur != TokLParen {
			p.errorf("expected (")
			return nil
		}
		p.advanceIgnoreNL() // eat (
		if isTerminator(p.cur) {
			p.errorf("expression expected")
			return nil
		}
		cond := p.parseExpression()
		if cond == nil {
			return nil
		}
		if p.cur != TokRParen {
			p.errorf("expected )")
			return nil
		}
		p.advanceIgnoreNL() // eat )
		if isTerminator(p.cur) {
			p.errorf("expression expected")
			return nil
		}
		body := p.parseExpression()
		if body == nil {
			return nil
		}
		n.Conds = append(n.Conds, cond)
		n.Blocks = append(n.Blocks, body)

		shouldRewind := true
		if p.cur == TokNewline {
			p.advanceIgnoreNL()
		}
		if p.cur == TokElif {
			p.advanceIgnoreNL() // eat elif
			continue
		} else if p.cur == TokElse {
			p.advanceIgnoreNL() // eat else
			if isTerminator(p.cur) {
				p.errorf("expression expected")
				return nil
			}
			n.Else = p.parseExpression()
			if n.Else == nil {
				return nil
			}
			shouldRewind = false
		}
		if shouldRewind {
			p.lexer.RewindToLastNewline()
			p.advance()
		}
		break
	}
	return n
}

func (p *Parser) parseWhile() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat while
	if p.cur != TokLParen {
		p.errorf("expected (")
		return nil
	}
	p.advanceIgnoreNL() // eat (
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	cond := p.parseExpression()
	if cond == nil {
		return nil
	}
	if p.cur != TokRParen {
		p.errorf("expected )")
		return nil
	}
	p.advanceIgnoreNL() // eat )
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	body := p.parseExpression()
	if body == nil {
		return nil
	}
	return &WhileNode{base: base{loc: loc}, Cond: cond, Body: body}
}

func (p *Parser) parseFor() Node {
	loc := p.loc
	p.advanceIgnoreNL() // eat for
	if p.cur != TokLParen {
		p.errorf("expected (")
		return nil
	}
	p.advanceIgnoreNL() // eat (
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	iterVar := p.parseExpression()
	if iterVar == nil {
		return nil
	}
	v, ok := iterVar.(*Variable)
	if !ok {
		p.errorf("for-loop variable must be a name")
		return nil
	}
	if p.cur != TokIn {
		p.errorf("expected 'in'")
		return nil
	}
	p.advanceIgnoreNL() // eat in
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	iterable := p.parseExpression()
	if iterable == nil {
		return nil
	}
	if p.cur != TokRParen {
		p.errorf("expected )")
		return nil
	}
	p.advanceIgnoreNL() // eat )
	if isTerminator(p.cur) {
		p.errorf("expression expected")
		return nil
	}
	body := p.parseExpression()
	if body == nil {
		return nil
	}
	return &ForNode{base: base{loc: loc}, Var: v, Iterable: iterable, Body: body}
}

func (p *Parser) parseControlExpr() Node {
	loc := p.loc
	kind := p.cur
	p.advance() // eat return/break/continue/yield

	var value Node
	if !isTerminator(p.cur) {
		value = p.parseExpression()
		if value == nil {
			return nil
		}
	}
	switch kind {
	case TokReturn:
		return &ReturnNode{base{loc: loc}, value}
	case TokBreak:
		return &BreakNode{base{loc: loc}, value}
	case TokContinue:
		return &ContinueNode{base{loc: loc}, value}
	case TokYield:
		return &YieldNode{base{loc: loc}, value}
	default:
		return nil
	}
}
