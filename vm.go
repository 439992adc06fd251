package ember

import (
	"fmt"

	"github.com/rs/zerolog"
)

// resumeState tracks whether a coroutine's ExecutionContext has ever
// run, is parked mid-run at a Yield, or has returned for good.
type resumeState int

const (
	NotStarted resumeState = iota
	Started
	Finished
)

// StackFrame is one scripted call's activation record.
type StackFrame struct {
	Fn       *FunctionObj
	ip       int
	Locals   []Value
	Args     []Value // the $$ sequence
	This     Value
}

// ExecutionContext is one independently resumable strand of
// execution: the root context driving top-level evaluation, or a
// coroutine's own suspended state (owned by its FunctionObj).
type ExecutionContext struct {
	Stack  []Value
	Frames []*StackFrame
	State  resumeState

	// lastYield holds the value most recently produced by Yield, read
	// by IteratorGetNext after a successful HasNext resume.
	lastYield Value
}

func newExecutionContext() *ExecutionContext {
	return &ExecutionContext{State: NotStarted}
}

func (ec *ExecutionContext) markRoots(mark func(HeapObject)) {
	for _, v := range ec.Stack {
		if v.Kind == KindHeap && v.Obj != nil {
			mark(v.Obj)
		}
	}
	for _, f := range ec.Frames {
		for _, v := range f.Locals {
			if v.Kind == KindHeap && v.Obj != nil {
				mark(v.Obj)
			}
		}
		for _, v := range f.Args {
			if v.Kind == KindHeap && v.Obj != nil {
				mark(v.Obj)
			}
		}
		if f.This.Kind == KindHeap && f.This.Obj != nil {
			mark(f.This.Obj)
		}
		if f.Fn != nil {
			mark(f.Fn)
		}
	}
}

func (ec *ExecutionContext) push(v Value)  { ec.Stack = append(ec.Stack, v) }
func (ec *ExecutionContext) pop() Value {
	v := ec.Stack[len(ec.Stack)-1]
	ec.Stack = ec.Stack[:len(ec.Stack)-1]
	return v
}
func (ec *ExecutionContext) popN(n int) []Value {
	v := ec.Stack[len(ec.Stack)-n:]
	ec.Stack = ec.Stack[:len(ec.Stack)-n]
	return v
}
func (ec *ExecutionContext) top() Value { return ec.Stack[len(ec.Stack)-1] }
func (ec *ExecutionContext) frame() *StackFrame { return ec.Frames[len(ec.Frames)-1] }

// VM ties together program constants, the global-variable vector, the
// native bridge, the memory manager, and the root execution context.
// Errors are accumulated through a DiagnosticLog (errors.go), matching
// this codebase's error-reporting style elsewhere; a runtime error
// that reaches Run is recorded there as a single entry.
type VM struct {
	Program *Program
	Globals []Value
	Natives []*NativeFunc

	mem *MemoryManager
	ctx *ExecutionContext

	// lastObject is the single-slot receiver latch threaded from
	// LoadMember into the next scripted/native call.
	lastObject Value

	diags *DiagnosticLog
	GCStepsPerInstruction int

	// constStrings caches the one Static StringObj internStaticConstants
	// allocates per ConstString constant, indexed by constant-pool index,
	// so OpLoadConstant reloads the same interned instance instead of
	// allocating (and permanently, uncollectably Static-coloring) a new
	// one on every single execution of that instruction.
	constStrings []*StringObj

	// Log is silent (zerolog.Nop()) by default; the CLI's -da/-ds/-dc
	// flags raise it to debug so scripted-call frame pushes and GC stage
	// transitions surface as structured events instead of ad hoc
	// prints. Native calls are not logged.
	Log zerolog.Logger
}

func NewVM(prog *Program, natives []*NativeFunc) *VM {
	vm := &VM{
		Program: prog,
		Globals: make([]Value, prog.GlobalCount),
		Natives: natives,
		diags:   NewDiagnosticLog(),
		GCStepsPerInstruction: 4,
		Log:     zerolog.Nop(),
	}
	vm.mem = NewMemoryManager(vm)
	vm.ctx = newExecutionContext()
	vm.internStaticConstants()
	return vm
}

// internStaticConstants walks the constant pool once at load time,
// allocating and Static-coloring a single StringObj per ConstString
// entry and caching it in constStrings so the GC never touches
// program-lifetime data and OpLoadConstant never allocates a fresh
// uncollectable string on every execution of the same instruction.
func (vm *VM) internStaticConstants() {
	vm.constStrings = make([]*StringObj, len(vm.Program.Constants))
	for i := range vm.Program.Constants {
		c := &vm.Program.Constants[i]
		if c.Kind == ConstString {
			s := vm.mem.NewString(c.Str)
			vm.mem.MakeStatic(s)
			vm.constStrings[i] = s
		}
	}
}

// MarkRoots implements RootProvider: globals, the root context, and
// every live coroutine's own context (those are rooted transitively
// through their owning FunctionObj during Mark, not here directly).
func (vm *VM) MarkRoots(mark func(HeapObject)) {
	for _, v := range vm.Globals {
		if v.Kind == KindHeap && v.Obj != nil {
			mark(v.Obj)
		}
	}
	vm.ctx.markRoots(mark)
	if vm.lastObject.Kind == KindHeap && vm.lastObject.Obj != nil {
		mark(vm.lastObject.Obj)
	}
}

// Errors exposes the accumulated diagnostic log for CLI/test callers.
func (vm *VM) Errors() *DiagnosticLog { return vm.diags }

// SetLogger installs a logger on both the VM and its memory manager
// so -da/-ds/-dc debug flags raising the level see call-frame and GC
// stage events from a single sink.
func (vm *VM) SetLogger(log zerolog.Logger) {
	vm.Log = log
	vm.mem.Log = log
}

// Run executes the program's entry CodeObject to completion on the
// root execution context and returns its final value. Per this
// language's error model (spec §7: "the interpreter returns an Error
// value wrapping the concatenated diagnostics"), a runtime error that
// unwinds all the way out never reaches the Go caller as an `error` —
// it is recorded in the diagnostic log and returned as a first-class
// Error value instead, the same kind make_error produces, so batch/
// test-mode callers compare expected-error vs actual by inspecting the
// result rather than a Go error. The returned error is reserved for
// failures outside the language's own error model (e.g. a host-level
// fault), which Run never produces today.
func (vm *VM) Run() (Value, error) {
	entry := vm.Program.Entry()
	fn := vm.mem.NewFunction(entry, nil)
	vm.mem.MakeStatic(fn)
	frame := &StackFrame{Fn: fn, Locals: make([]Value, entry.LocalCount)}
	vm.ctx.Frames = append(vm.ctx.Frames, frame)
	result, err := vm.execLoop(vm.ctx)
	if err != nil {
		vm.diags.Addf(StageRuntime, Span{}, "%s", err.Error())
		msg := HeapValue(vm.mem.NewString(err.Error()))
		return HeapValue(vm.mem.NewError(msg)), nil
	}
	return result, nil
}

// execLoop drives one ExecutionContext's dispatch loop until its
// innermost frame (the one present when execLoop was entered) hits
// EndFunction, a Yield suspends it, or an error propagates out.
func (vm *VM) execLoop(ec *ExecutionContext) (Value, error) {
	baseDepth := len(ec.Frames) - 1
	for {
		f := ec.frame()
		if f.ip >= len(f.Fn.Code.Instructions) {
			return vm.unwind(ec, baseDepth, NilValue())
		}
		instr := f.Fn.Code.Instructions[f.ip]

		if vm.GCStepsPerInstruction > 0 {
			vm.mem.Collect(vm.GCStepsPerInstruction)
		}

		result, jumped, yielded, err := vm.execute(ec, f, instr)
		if err != nil {
			wrapped := vm.annotate(f, err)
			if len(ec.Frames)-1 <= baseDepth {
				return NilValue(), wrapped
			}
			ec.Frames = ec.Frames[:len(ec.Frames)-1]
			return NilValue(), wrapped
		}
		if yielded {
			return result, nil
		}
		if instr.Op == OpEndFunction {
			return vm.unwind(ec, baseDepth, result)
		}
		if !jumped {
			f.ip++
		}
	}
}

func (vm *VM) annotate(f *StackFrame, err error) error {
	line := f.Fn.Code.LineFor(f.ip)
	return fmt.Errorf("line %d: %w", line, err)
}

// unwind pops the current frame, pushing its return value for the
// caller frame to consume, unless this was the outermost frame of
// this execLoop invocation (baseDepth), in which case it is returned
// directly to the Go caller (Run, a coroutine resume, or a native call).
func (vm *VM) unwind(ec *ExecutionContext, baseDepth int, ret Value) (Value, error) {
	ec.Frames = ec.Frames[:len(ec.Frames)-1]
	if len(ec.Frames)-1 < baseDepth || len(ec.Frames) == 0 {
		return ret, nil
	}
	ec.push(ret)
	return vm.execLoop(ec)
}

// execute runs a single instruction. jumped reports whether ip was
// already advanced (so the caller must not also increment it); yielded
// reports a Yield suspension (result is the yielded value, execLoop
// returns immediately).
func (vm *VM) execute(ec *ExecutionContext, f *StackFrame, instr Instruction) (result Value, jumped, yielded bool, err error) {
	switch instr.Op {
	case OpPop:
		ec.pop()
	case OpPopN:
		ec.popN(int(instr.Operand))
	case OpDuplicate:
		ec.push(ec.top())
	case OpRotate2:
		n := len(ec.Stack)
		ec.Stack[n-1], ec.Stack[n-2] = ec.Stack[n-2], ec.Stack[n-1]
	case OpMoveToTOS2:
		// [..., x, iterator, body] -> [..., body, iterator]: drop the
		// loop's previous carried value, keep the iterator on top so
		// the next IteratorHasNext/IteratorGetNext round still sees it.
		n := len(ec.Stack)
		body := ec.Stack[n-1]
		iter := ec.Stack[n-2]
		ec.Stack = append(ec.Stack[:n-3], body, iter)
	case OpUnpack:
		v := ec.pop()
		n := int(instr.Operand)
		arr, ok := v.Obj.(*ArrayObj)
		if v.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf("cannot destructure a non-array value")
		}
		for i := 0; i < n; i++ {
			if i < len(arr.Elements) {
				ec.push(arr.Elements[i])
			} else {
				ec.push(NilValue())
			}
		}

	case OpLoadConstant:
		ec.push(vm.constantValue(int(instr.Operand)))
	case OpLoadGlobal:
		vm.growGlobals(int(instr.Operand))
		ec.push(vm.Globals[instr.Operand])
	case OpLoadLocal:
		ec.push(f.Locals[instr.Operand])
	case OpLoadNative:
		ec.push(NativeValue(vm.Natives[instr.Operand]))
	case OpLoadArgument:
		idx := int(instr.Operand)
		if idx < len(f.Args) {
			ec.push(f.Args[idx])
		} else {
			ec.push(NilValue())
		}
	case OpLoadArgsArray:
		ec.push(HeapValue(vm.mem.NewArray(append([]Value(nil), f.Args...))))
	case OpLoadThis:
		ec.push(f.This)
	case OpLoadHash:
		ec.push(HashValue(uint32(instr.Operand)))
	case OpLoadFromBox:
		ec.push(boxAt(f, int(instr.Operand)).Value)
	case OpLoadFromClosure:
		ec.push(f.Fn.Boxes[instr.Operand].Value)

	case OpStoreLocal:
		f.Locals[instr.Operand] = ec.top()
	case OpStoreGlobal:
		vm.growGlobals(int(instr.Operand))
		vm.Globals[instr.Operand] = ec.top()
	case OpPopStoreLocal:
		f.Locals[instr.Operand] = ec.pop()
	case OpPopStoreGlobal:
		vm.growGlobals(int(instr.Operand))
		vm.Globals[instr.Operand] = ec.pop()
	case OpStoreToBox:
		box := boxAt(f, int(instr.Operand))
		v := ec.top()
		box.Value = v
		vm.mem.WriteBarrier(box, v)
	case OpPopStoreToBox:
		box := boxAt(f, int(instr.Operand))
		v := ec.pop()
		box.Value = v
		vm.mem.WriteBarrier(box, v)
	case OpStoreToClosure:
		box := f.Fn.Boxes[instr.Operand]
		v := ec.top()
		box.Value = v
		vm.mem.WriteBarrier(box, v)
	case OpPopStoreToClosure:
		box := f.Fn.Boxes[instr.Operand]
		v := ec.pop()
		box.Value = v
		vm.mem.WriteBarrier(box, v)

	case OpMakeArray:
		n := int(instr.Operand)
		elems := append([]Value(nil), ec.popN(n)...)
		ec.push(HeapValue(vm.mem.NewArray(elems)))
	case OpLoadElement:
		idxV := ec.pop()
		arrV := ec.pop()
		v, e := vm.loadElement(arrV, idxV)
		if e != nil {
			return result, false, false, e
		}
		ec.push(v)
	case OpStoreElement:
		idxV := ec.pop()
		arrV := ec.pop()
		v := ec.pop()
		if e := vm.storeElement(arrV, idxV, v); e != nil {
			return result, false, false, e
		}
		ec.push(v)
	case OpPopStoreElement:
		idxV := ec.pop()
		arrV := ec.pop()
		v := ec.pop()
		if e := vm.storeElement(arrV, idxV, v); e != nil {
			return result, false, false, e
		}
	case OpArrayPushBack:
		v := ec.pop()
		arrV := ec.top()
		arr, ok := arrV.Obj.(*ArrayObj)
		if arrV.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf("<< requires an array")
		}
		arr.Elements = append(arr.Elements, v)
		vm.mem.WriteBarrier(arr, v)
	case OpArrayPopBack:
		arrV := ec.top()
		arr, ok := arrV.Obj.(*ArrayObj)
		if arrV.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf(">> requires an array")
		}
		if len(arr.Elements) == 0 {
			return result, false, false, fmt.Errorf("cannot pop from an empty array")
		}
		last := arr.Elements[len(arr.Elements)-1]
		arr.Elements = arr.Elements[:len(arr.Elements)-1]
		ec.pop()
		ec.push(last)
	case OpMakeObject:
		n := int(instr.Operand)
		pairs := ec.popN(2 * n)
		obj := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
		for i := 0; i < n; i++ {
			h := pairs[2*i]
			v := pairs[2*i+1]
			obj.Set(h.Hash, v)
		}
		ec.push(HeapValue(obj))
	case OpMakeEmptyObject:
		obj := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
		ec.push(HeapValue(obj))
	case OpLoadMember:
		hashV := ec.pop()
		objV := ec.pop()
		v, e := vm.loadMember(objV, hashV)
		if e != nil {
			return result, false, false, e
		}
		ec.push(v)
	case OpStoreMember:
		hashV := ec.pop()
		objV := ec.pop()
		v := ec.pop()
		if e := vm.storeMember(objV, hashV, v); e != nil {
			return result, false, false, e
		}
		ec.push(v)
	case OpPopStoreMember:
		hashV := ec.pop()
		objV := ec.pop()
		v := ec.pop()
		if e := vm.storeMember(objV, hashV, v); e != nil {
			return result, false, false, e
		}

	case OpMakeIterator:
		v := ec.pop()
		it, e := vm.makeIterator(v)
		if e != nil {
			return result, false, false, e
		}
		ec.push(HeapValue(it))
	case OpIteratorHasNext:
		v := ec.top()
		it, ok := v.Obj.(*IteratorObj)
		if v.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf("not an iterator")
		}
		has, e := it.HasNext(vm)
		if e != nil {
			return result, false, false, e
		}
		ec.push(BoolValue(has))
	case OpIteratorGetNext:
		v := ec.top()
		it, ok := v.Obj.(*IteratorObj)
		if v.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf("not an iterator")
		}
		nv, e := it.GetNext(vm)
		if e != nil {
			return result, false, false, e
		}
		ec.push(nv)

	case OpMakeBox:
		slot := int(instr.Operand)
		box := vm.mem.NewBox(f.Locals[slot])
		f.Locals[slot] = HeapValue(box)
	case OpMakeClosure:
		v := ec.pop()
		fnVal, ok := v.Obj.(*FunctionObj)
		if v.Kind != KindHeap || !ok {
			return result, false, false, fmt.Errorf("expected a code constant for closure creation")
		}
		boxes := make([]*Box, len(fnVal.Code.ClosureMapping))
		for i, m := range fnVal.Code.ClosureMapping {
			if m >= 0 {
				boxes[i] = boxAt(f, int(m))
			} else {
				boxes[i] = f.Fn.Boxes[-1-m]
			}
		}
		ec.push(HeapValue(vm.mem.NewFunction(fnVal.Code, boxes)))

	case OpJump:
		f.ip = int(instr.Operand)
		return result, true, false, nil
	case OpJumpIfFalse:
		if !ec.pop().Truthy() {
			f.ip = int(instr.Operand)
			return result, true, false, nil
		}
	case OpPopJumpIfFalse:
		v := ec.pop()
		if !v.Truthy() {
			f.ip = int(instr.Operand)
			return result, true, false, nil
		}
	case OpJumpIfFalseOrPop:
		if !ec.top().Truthy() {
			f.ip = int(instr.Operand)
			return result, true, false, nil
		}
		ec.pop()
	case OpJumpIfTrueOrPop:
		if ec.top().Truthy() {
			f.ip = int(instr.Operand)
			return result, true, false, nil
		}
		ec.pop()

	case OpFunctionCall:
		argc := int(instr.Operand)
		e := vm.call(ec, f, argc)
		if e != nil {
			return result, false, false, e
		}
		return result, true, false, nil

	case OpYield:
		v := ec.pop()
		ec.lastYield = v
		ec.State = Started
		f.ip++
		// The compiler always emits an instruction consuming the yield
		// expression's own value right after OpYield (a Pop for
		// keep_value=false, or whatever reads it for keep_value=true) —
		// the same pattern as a function call leaving its return value
		// for the caller. This language has no send()-style resume
		// value, so that placeholder is always nil; push it now so it
		// is already on the stack when this coroutine is next resumed.
		ec.push(NilValue())
		return v, false, true, nil

	case OpEndFunction:
		result = NilValue()
		if len(ec.Stack) > 0 {
			result = ec.pop()
		}
		return result, false, false, nil

	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo, OpPower, OpConcatenate, OpXor,
		OpEqual, OpNotEqual, OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
		rhs := ec.pop()
		lhs := ec.pop()
		v, e := vm.binaryOp(instr.Op, lhs, rhs)
		if e != nil {
			return result, false, false, e
		}
		ec.push(v)

	case OpUnaryPlus, OpUnaryMinus, OpUnaryNot, OpUnaryConcatenate, OpUnarySizeOf:
		v := ec.pop()
		r, e := vm.unaryOp(instr.Op, v)
		if e != nil {
			return result, false, false, e
		}
		ec.push(r)

	default:
		return result, false, false, fmt.Errorf("unimplemented opcode %s", instr.Op)
	}
	return result, false, false, nil
}

// growGlobals extends the globals vector to cover slot, per spec: the
// slot vector is grown and never shrunk, since slot indices assigned
// by the analyzer are stable for the life of the program.
func (vm *VM) growGlobals(slot int) {
	if slot < len(vm.Globals) {
		return
	}
	grown := make([]Value, slot+1)
	copy(grown, vm.Globals)
	vm.Globals = grown
}

func boxAt(f *StackFrame, slot int) *Box {
	return f.Locals[slot].Obj.(*Box)
}

func (vm *VM) constantValue(idx int) Value {
	c := vm.Program.Constants[idx]
	switch c.Kind {
	case ConstNil:
		return NilValue()
	case ConstBool:
		return BoolValue(c.Bool)
	case ConstInt:
		return IntValue(c.Int)
	case ConstFloat:
		return FloatValue(c.Float)
	case ConstString:
		return HeapValue(vm.constStrings[idx])
	case ConstCode:
		fn := vm.mem.NewFunction(c.Code, nil)
		return HeapValue(fn)
	default:
		return NilValue()
	}
}

// call implements both the native-call and scripted-call conventions
// from spec.md §4.5: it pops the callee and its arguments itself, so
// the compiler only needs to emit FunctionCall(argc) with the callee
// and arguments already pushed in order.
func (vm *VM) call(ec *ExecutionContext, caller *StackFrame, argc int) error {
	// Advance past the FunctionCall instruction before any callee frame
	// is pushed: execute() reports this opcode as already having moved
	// ip (like a jump), so the caller must do it here itself, in
	// particular before ec.Frames grows and caller stops being the top
	// frame.
	caller.ip++

	fnVal := ec.pop()
	args := ec.popN(argc)

	switch fnVal.Kind {
	case KindNativeFn:
		ret, err := fnVal.Fn.Fn(vm, args)
		if err != nil {
			return err
		}
		ec.push(ret)
		return nil
	case KindHeap:
		fn, ok := fnVal.Obj.(*FunctionObj)
		if !ok {
			return fmt.Errorf("value is not callable")
		}
		named := int(fn.Code.NamedParamCount)
		frame := &StackFrame{Fn: fn, Locals: make([]Value, fn.Code.LocalCount)}
		for i := 0; i < named && i < len(args); i++ {
			frame.Locals[i] = args[i]
		}
		if len(args) > named {
			frame.Args = append([]Value(nil), args[named:]...)
		}
		this := vm.lastObject
		vm.lastObject = NilValue()
		frame.This = this
		ec.Frames = append(ec.Frames, frame)
		vm.Log.Debug().Str("component", "vm").Str("event", "call").Str("fn", fn.Code.Name).Int("depth", len(ec.Frames)).Msg("frame pushed")
		return nil
	default:
		return fmt.Errorf("value is not callable")
	}
}

// callValue is the entry point natives use to re-enter the VM (e.g.
// each/map/filter calling back into a user function, or an iterator's
// has_next/get_next).
func (vm *VM) callValue(fnVal Value, this *ObjectObj, args []Value) (Value, error) {
	switch fnVal.Kind {
	case KindNativeFn:
		return fnVal.Fn.Fn(vm, args)
	case KindHeap:
		fn, ok := fnVal.Obj.(*FunctionObj)
		if !ok {
			return NilValue(), fmt.Errorf("value is not callable")
		}
		named := int(fn.Code.NamedParamCount)
		frame := &StackFrame{Fn: fn, Locals: make([]Value, fn.Code.LocalCount)}
		for i := 0; i < named && i < len(args); i++ {
			frame.Locals[i] = args[i]
		}
		if len(args) > named {
			frame.Args = append([]Value(nil), args[named:]...)
		}
		if this != nil {
			frame.This = HeapValue(this)
		}
		ec := vm.ctx
		ec.Frames = append(ec.Frames, frame)
		return vm.execLoop(ec)
	default:
		return NilValue(), fmt.Errorf("value is not callable")
	}
}

func (vm *VM) loadElement(arrV, idxV Value) (Value, error) {
	arr, ok := arrV.Obj.(*ArrayObj)
	if arrV.Kind != KindHeap || !ok {
		return NilValue(), fmt.Errorf("[] requires an array")
	}
	if idxV.Kind != KindInt {
		return NilValue(), fmt.Errorf("array index must be an integer")
	}
	i, ok := arr.resolveIndex(idxV.I)
	if !ok || i < 0 || i >= len(arr.Elements) {
		return NilValue(), nil
	}
	return arr.Elements[i], nil
}

func (vm *VM) storeElement(arrV, idxV, v Value) error {
	arr, ok := arrV.Obj.(*ArrayObj)
	if arrV.Kind != KindHeap || !ok {
		return fmt.Errorf("[] requires an array")
	}
	if idxV.Kind != KindInt {
		return fmt.Errorf("array index must be an integer")
	}
	idx := idxV.I
	if idx < 0 {
		i, ok := arr.resolveIndex(idx)
		if !ok {
			return fmt.Errorf("cannot index an empty array")
		}
		arr.Elements[i] = v
		vm.mem.WriteBarrier(arr, v)
		return nil
	}
	for int64(len(arr.Elements)) <= idx {
		arr.Elements = append(arr.Elements, NilValue())
	}
	arr.Elements[idx] = v
	vm.mem.WriteBarrier(arr, v)
	return nil
}

func (vm *VM) loadMember(objV, hashV Value) (Value, error) {
	obj, ok := objV.Obj.(*ObjectObj)
	if objV.Kind != KindHeap || !ok {
		return NilValue(), fmt.Errorf(". requires an object")
	}
	v, containing, found := obj.Get(hashV.Hash)
	if !found {
		vm.lastObject = NilValue()
		return NilValue(), nil
	}
	vm.lastObject = HeapValue(containing)
	return v, nil
}

func (vm *VM) storeMember(objV, hashV, v Value) error {
	obj, ok := objV.Obj.(*ObjectObj)
	if objV.Kind != KindHeap || !ok {
		return fmt.Errorf(". requires an object")
	}
	mutated := obj.Set(hashV.Hash, v)
	vm.mem.WriteBarrier(mutated, v)
	return nil
}

func (vm *VM) makeIterator(v Value) (*IteratorObj, error) {
	if v.Kind != KindHeap {
		return nil, fmt.Errorf("value is not iterable")
	}
	switch o := v.Obj.(type) {
	case *ArrayObj:
		return vm.mem.NewIterator(NewArrayIterator(o)), nil
	case *StringObj:
		return vm.mem.NewIterator(NewStringIterator(o.Value)), nil
	case *IteratorObj:
		return o, nil
	case *FunctionObj:
		if !o.IsCoroutine() {
			return nil, fmt.Errorf("function is not a coroutine")
		}
		return vm.mem.NewIterator(NewCoroutineIterator(o)), nil
	case *ObjectObj:
		hn, _, foundHN := o.Get(vm.Program.Symbols.Intern("has_next").Hash)
		gn, _, foundGN := o.Get(vm.Program.Symbols.Intern("get_next").Hash)
		if !foundHN || !foundGN {
			return nil, fmt.Errorf("object does not implement has_next/get_next")
		}
		return vm.mem.NewIterator(NewUserIterator(o, hn, gn)), nil
	default:
		return nil, fmt.Errorf("value is not iterable")
	}
}

// MakeCoroutine turns an ordinary closure into a coroutine instance by
// attaching a fresh, persistent ExecutionContext primed to start at
// its first instruction with the given arguments.
func (vm *VM) MakeCoroutine(fnVal Value, args []Value) (*FunctionObj, error) {
	fn, ok := fnVal.Obj.(*FunctionObj)
	if fnVal.Kind != KindHeap || !ok {
		return nil, fmt.Errorf("make_coroutine requires a function")
	}
	coFn := vm.mem.NewFunction(fn.Code, fn.Boxes)
	ec := newExecutionContext()
	named := int(fn.Code.NamedParamCount)
	frame := &StackFrame{Fn: coFn, Locals: make([]Value, fn.Code.LocalCount)}
	for i := 0; i < named && i < len(args); i++ {
		frame.Locals[i] = args[i]
	}
	if len(args) > named {
		frame.Args = append([]Value(nil), args[named:]...)
	}
	ec.Frames = append(ec.Frames, frame)
	coFn.Coroutine = ec
	return coFn, nil
}

func (vm *VM) resumeCoroutineHasNext(fn *FunctionObj) (bool, error) {
	ec := fn.Coroutine
	if ec.State == Finished {
		return false, nil
	}
	_, err := vm.execLoop(ec)
	if err != nil {
		return false, err
	}
	if len(ec.Frames) == 0 {
		ec.State = Finished
		return false, nil
	}
	return true, nil
}

func (vm *VM) resumeCoroutineGetNext(fn *FunctionObj) (Value, error) {
	return fn.Coroutine.lastYield, nil
}
