package ember

import "fmt"

// NativeBridge assembles the fixed-index native-function table the
// analyzer resolves `native` names against (see NewAnalyzer) and the
// VM dispatches through (LoadNative / native FunctionCall). Index
// assignment is driven by nativeOrder so analyzer and VM always agree.
//
// Each NativeFunc closes over the *VM it receives as its own call
// argument rather than one captured at registration time, so the
// bridge (and the analyzer's name->index binding) can be built before
// any VM exists: the analyzer resolves native names against
// NameIndex() first, a Program is compiled, and only then is a VM
// constructed with Funcs() as its dispatch table.
type NativeBridge struct {
	funcs []*NativeFunc
	index map[string]int
}

// nativeOrder fixes the native-function table's slot assignment. New
// entries must always be appended, never inserted, so bytecode
// compiled against an older table keeps resolving the same indices.
var nativeOrder = []string{
	"type", "this_call", "garbage_collect", "memory_stats", "print",
	"to_upper", "to_lower", "keys", "make_error", "is_error",
	"make_coroutine", "make_iterator", "iterator_has_next", "iterator_get_next",
	"range", "each", "times", "count", "map", "filter", "reduce", "all", "any",
	"min", "max", "sort",
	"abs", "floor", "ceil", "round", "sqrt", "sin", "cos", "tan",
	"push", "pop", "to_string", "to_int", "to_float",
}

func NewNativeBridge() *NativeBridge {
	b := &NativeBridge{index: make(map[string]int, len(nativeOrder))}
	for i, name := range nativeOrder {
		b.index[name] = i
	}
	b.funcs = make([]*NativeFunc, len(nativeOrder))
	b.register()
	return b
}

// NameIndex is handed to NewAnalyzer so Pass 2 resolves bare
// identifiers matching a native name to SemNative at the right slot.
func (b *NativeBridge) NameIndex() map[string]int { return b.index }

// higherOrderNatives and numericNatives name the slots ApplyConfig may
// disable; kept separate from nativeOrder itself since that list is the
// frozen, append-only index assignment and must never shrink.
var higherOrderNatives = []string{
	"range", "each", "times", "count", "map", "filter", "reduce", "all", "any",
	"min", "max", "sort",
}

var numericNatives = []string{
	"abs", "floor", "ceil", "round", "sqrt", "sin", "cos", "tan",
}

// ApplyConfig overwrites a group's natives with a disabled stub when
// cfg turns that group off, without touching index assignment: a
// script referencing a disabled name still resolves to SemNative at
// its usual slot, it just errors when called, instead of the analyzer
// treating the name as unresolved.
func (b *NativeBridge) ApplyConfig(cfg *Config) {
	if !cfg.GetBool("stdlib.higher_order") {
		b.disable(higherOrderNatives)
	}
	if !cfg.GetBool("stdlib.math") {
		b.disable(numericNatives)
	}
}

func (b *NativeBridge) disable(names []string) {
	for _, name := range names {
		idx := b.index[name]
		b.funcs[idx] = &NativeFunc{Name: name, Fn: func(vm *VM, args []Value) (Value, error) {
			return NilValue(), fmt.Errorf("%s: disabled by configuration", name)
		}}
	}
}

// Funcs is handed to NewVM as the native-function table LoadNative
// indexes into.
func (b *NativeBridge) Funcs() []*NativeFunc { return b.funcs }

func (b *NativeBridge) set(name string, fn func(vm *VM, args []Value) (Value, error)) {
	idx, ok := b.index[name]
	if !ok {
		panic(fmt.Sprintf("ember: native %q not in nativeOrder", name))
	}
	b.funcs[idx] = &NativeFunc{Name: name, Fn: fn}
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return NilValue()
}

func wrongType(name string) error {
	return fmt.Errorf("%s: wrong argument type", name)
}
