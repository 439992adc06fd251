package ember

// blockScope is one nested `{ ... }` block's local bindings, keyed by
// name. A name already bound in an outer block of the same function
// is shadowed, not rebound.
type blockScope struct {
	variables map[string]*Variable
}

func newBlockScope() blockScope {
	return blockScope{variables: make(map[string]*Variable)}
}

// functionScope tracks everything the analyzer needs while resolving
// names inside one Function node: its declared parameters, the free
// variables it has captured so far (in capture order, matching
// node.ClosureMapping one-to-one), and the stack of lexical blocks
// currently open inside it.
type functionScope struct {
	node *FunctionNode

	blocks        []blockScope
	parameters    []string
	freeVariables []string
}

func newFunctionScope(n *FunctionNode) *functionScope {
	fs := &functionScope{node: n, parameters: append([]string(nil), n.Params...)}
	fs.blocks = []blockScope{newBlockScope()}
	n.LocalCount = len(fs.parameters)
	return fs
}

func (fs *functionScope) pushBlock() { fs.blocks = append(fs.blocks, newBlockScope()) }
func (fs *functionScope) popBlock()  { fs.blocks = fs.blocks[:len(fs.blocks)-1] }

func (fs *functionScope) currentBlock() *blockScope { return &fs.blocks[len(fs.blocks)-1] }
