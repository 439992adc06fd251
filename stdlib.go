package ember

import (
	"fmt"
	"math"
	"sort"
)

// register installs every bridged native's implementation. Grouped by
// concern: introspection/GC, string case-folding, object/error
// helpers, coroutine/iterator helpers, higher-order array helpers,
// numeric helpers, and the array/string convenience natives
// supplementing the original's set (push/pop/to_string/to_int/to_float).
func (b *NativeBridge) register() {
	b.registerIntrospection()
	b.registerStrings()
	b.registerObjectsAndErrors()
	b.registerCoroutines()
	b.registerHigherOrder()
	b.registerNumeric()
	b.registerConvenience()
}

func (b *NativeBridge) registerIntrospection() {
	b.set("type", func(vm *VM, args []Value) (Value, error) {
		v := arg(args, 0)
		return HeapValue(vm.mem.NewString(typeName(v))), nil
	})

	b.set("this_call", func(vm *VM, args []Value) (Value, error) {
		fnVal := arg(args, 0)
		this, _ := arg(args, 1).Obj.(*ObjectObj)
		return vm.callValue(fnVal, this, args[minInt(2, len(args)):])
	})

	b.set("garbage_collect", func(vm *VM, args []Value) (Value, error) {
		steps := 1000
		if len(args) > 0 && args[0].Kind == KindInt {
			steps = int(args[0].I)
		}
		vm.mem.Collect(steps)
		return NilValue(), nil
	})

	b.set("memory_stats", func(vm *VM, args []Value) (Value, error) {
		stats := vm.mem.Stats()
		obj := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
		for name, count := range stats {
			sym := vm.Program.Symbols.Intern(name)
			obj.Set(sym.Hash, IntValue(count))
		}
		return HeapValue(obj), nil
	})

	b.set("print", func(vm *VM, args []Value) (Value, error) {
		for i, a := range args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(vm.stringize(a))
		}
		fmt.Println()
		return NilValue(), nil
	})
}

func typeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindHash:
		return "hash"
	case KindNativeFn:
		return "function"
	case KindHeap:
		switch v.Obj.(type) {
		case *StringObj:
			return "string"
		case *ArrayObj:
			return "array"
		case *ObjectObj:
			return "object"
		case *FunctionObj:
			return "function"
		case *IteratorObj:
			return "iterator"
		case *ErrorObj:
			return "error"
		case *Box:
			return "box"
		}
	}
	return "unknown"
}

func (b *NativeBridge) registerStrings() {
	b.set("to_upper", func(vm *VM, args []Value) (Value, error) {
		s, ok := asString(arg(args, 0))
		if !ok {
			return NilValue(), wrongType("to_upper")
		}
		return HeapValue(vm.mem.NewString(upperASCII(s))), nil
	})
	b.set("to_lower", func(vm *VM, args []Value) (Value, error) {
		s, ok := asString(arg(args, 0))
		if !ok {
			return NilValue(), wrongType("to_lower")
		}
		return HeapValue(vm.mem.NewString(lowerASCII(s))), nil
	})
	b.set("keys", func(vm *VM, args []Value) (Value, error) {
		obj, ok := arg(args, 0).Obj.(*ObjectObj)
		if !ok {
			return NilValue(), wrongType("keys")
		}
		elems := make([]Value, 0, len(obj.Members)-1)
		for _, m := range obj.Members {
			if m.Hash == vm.Program.Symbols.ProtoSymbol().Hash {
				continue
			}
			name := vm.symbolName(m.Hash)
			elems = append(elems, HeapValue(vm.mem.NewString(name)))
		}
		return HeapValue(vm.mem.NewArray(elems)), nil
	})
}

func asString(v Value) (string, bool) {
	if v.Kind != KindHeap {
		return "", false
	}
	s, ok := v.Obj.(*StringObj)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// symbolName reverses a hash back to its interned name via the symbol
// table's own reverse index; only symbols the program has already
// interned can be found, which is guaranteed for every member hash
// actually stored on an object.
func (vm *VM) symbolName(hash uint32) string {
	name, _ := vm.Program.Symbols.NameForHash(hash)
	return name
}

func (b *NativeBridge) registerObjectsAndErrors() {
	b.set("make_error", func(vm *VM, args []Value) (Value, error) {
		return HeapValue(vm.mem.NewError(arg(args, 0))), nil
	})
	b.set("is_error", func(vm *VM, args []Value) (Value, error) {
		_, ok := arg(args, 0).Obj.(*ErrorObj)
		return BoolValue(ok), nil
	})
}

func (b *NativeBridge) registerCoroutines() {
	b.set("make_coroutine", func(vm *VM, args []Value) (Value, error) {
		fn, err := vm.MakeCoroutine(arg(args, 0), args[minInt(1, len(args)):])
		if err != nil {
			return NilValue(), err
		}
		return HeapValue(fn), nil
	})
	b.set("make_iterator", func(vm *VM, args []Value) (Value, error) {
		it, err := vm.makeIterator(arg(args, 0))
		if err != nil {
			return NilValue(), err
		}
		return HeapValue(it), nil
	})
	b.set("iterator_has_next", func(vm *VM, args []Value) (Value, error) {
		it, ok := arg(args, 0).Obj.(*IteratorObj)
		if !ok {
			return NilValue(), wrongType("iterator_has_next")
		}
		has, err := it.HasNext(vm)
		if err != nil {
			return NilValue(), err
		}
		return BoolValue(has), nil
	})
	b.set("iterator_get_next", func(vm *VM, args []Value) (Value, error) {
		it, ok := arg(args, 0).Obj.(*IteratorObj)
		if !ok {
			return NilValue(), wrongType("iterator_get_next")
		}
		return it.GetNext(vm)
	})
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (b *NativeBridge) registerHigherOrder() {
	b.set("range", func(vm *VM, args []Value) (Value, error) {
		if len(args) == 0 || args[0].Kind != KindInt {
			return NilValue(), wrongType("range")
		}
		start, end, step := int64(0), args[0].I, int64(1)
		if len(args) >= 2 {
			if args[1].Kind != KindInt {
				return NilValue(), wrongType("range")
			}
			start, end = args[0].I, args[1].I
		}
		if len(args) >= 3 {
			if args[2].Kind != KindInt {
				return NilValue(), wrongType("range")
			}
			step = args[2].I
		}
		if step == 0 {
			return NilValue(), fmt.Errorf("range: step cannot be 0")
		}
		var elems []Value
		if step > 0 {
			for i := start; i < end; i += step {
				elems = append(elems, IntValue(i))
			}
		} else {
			for i := start; i > end; i += step {
				elems = append(elems, IntValue(i))
			}
		}
		return HeapValue(vm.mem.NewArray(elems)), nil
	})

	b.set("each", func(vm *VM, args []Value) (Value, error) {
		it, fn, err := iterableAndFn(vm, args, "each")
		if err != nil {
			return NilValue(), err
		}
		i := int64(0)
		for {
			has, err := it.HasNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if !has {
				return NilValue(), nil
			}
			v, err := it.GetNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if _, err := vm.callValue(fn, nil, []Value{v, IntValue(i)}); err != nil {
				return NilValue(), err
			}
			i++
		}
	})

	b.set("times", func(vm *VM, args []Value) (Value, error) {
		if len(args) < 2 || args[0].Kind != KindInt {
			return NilValue(), wrongType("times")
		}
		n := args[0].I
		fn := args[1]
		for i := int64(0); i < n; i++ {
			if _, err := vm.callValue(fn, nil, []Value{IntValue(i)}); err != nil {
				return NilValue(), err
			}
		}
		return NilValue(), nil
	})

	b.set("count", func(vm *VM, args []Value) (Value, error) {
		v := arg(args, 0)
		return vm.sizeOf(v)
	})

	b.set("map", func(vm *VM, args []Value) (Value, error) {
		arr, fn, err := arrayAndFn(args, "map")
		if err != nil {
			return NilValue(), err
		}
		out := make([]Value, len(arr.Elements))
		for i, v := range arr.Elements {
			r, err := vm.callValue(fn, nil, []Value{v, IntValue(int64(i))})
			if err != nil {
				return NilValue(), err
			}
			out[i] = r
		}
		return HeapValue(vm.mem.NewArray(out)), nil
	})

	b.set("filter", func(vm *VM, args []Value) (Value, error) {
		arr, fn, err := arrayAndFn(args, "filter")
		if err != nil {
			return NilValue(), err
		}
		var out []Value
		for i, v := range arr.Elements {
			r, err := vm.callValue(fn, nil, []Value{v, IntValue(int64(i))})
			if err != nil {
				return NilValue(), err
			}
			if r.Truthy() {
				out = append(out, v)
			}
		}
		return HeapValue(vm.mem.NewArray(out)), nil
	})

	b.set("reduce", func(vm *VM, args []Value) (Value, error) {
		if len(args) < 2 {
			return NilValue(), wrongType("reduce")
		}
		it, err := vm.makeIterator(args[0])
		if err != nil {
			return NilValue(), err
		}
		fn := args[1]
		var acc Value
		if len(args) >= 3 {
			acc = args[2]
		} else {
			has, err := it.HasNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if has {
				if acc, err = it.GetNext(vm); err != nil {
					return NilValue(), err
				}
			}
		}
		for {
			has, err := it.HasNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if !has {
				return acc, nil
			}
			v, err := it.GetNext(vm)
			if err != nil {
				return NilValue(), err
			}
			acc, err = vm.callValue(fn, nil, []Value{acc, v})
			if err != nil {
				return NilValue(), err
			}
		}
	})

	b.set("all", func(vm *VM, args []Value) (Value, error) {
		it, fn, err := iterableAndFn(vm, args, "all")
		if err != nil {
			return NilValue(), err
		}
		for {
			has, err := it.HasNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if !has {
				return BoolValue(true), nil
			}
			v, err := it.GetNext(vm)
			if err != nil {
				return NilValue(), err
			}
			r, err := vm.callValue(fn, nil, []Value{v})
			if err != nil {
				return NilValue(), err
			}
			if !r.Truthy() {
				return BoolValue(false), nil
			}
		}
	})

	b.set("any", func(vm *VM, args []Value) (Value, error) {
		it, fn, err := iterableAndFn(vm, args, "any")
		if err != nil {
			return NilValue(), err
		}
		for {
			has, err := it.HasNext(vm)
			if err != nil {
				return NilValue(), err
			}
			if !has {
				return BoolValue(false), nil
			}
			v, err := it.GetNext(vm)
			if err != nil {
				return NilValue(), err
			}
			r, err := vm.callValue(fn, nil, []Value{v})
			if err != nil {
				return NilValue(), err
			}
			if r.Truthy() {
				return BoolValue(true), nil
			}
		}
	})

	b.set("min", func(vm *VM, args []Value) (Value, error) {
		arr, ok := arg(args, 0).Obj.(*ArrayObj)
		if !ok || len(arr.Elements) == 0 {
			return NilValue(), wrongType("min")
		}
		best := arr.Elements[0]
		for _, v := range arr.Elements[1:] {
			if v.AsFloat() < best.AsFloat() {
				best = v
			}
		}
		return best, nil
	})

	b.set("max", func(vm *VM, args []Value) (Value, error) {
		arr, ok := arg(args, 0).Obj.(*ArrayObj)
		if !ok || len(arr.Elements) == 0 {
			return NilValue(), wrongType("max")
		}
		best := arr.Elements[0]
		for _, v := range arr.Elements[1:] {
			if v.AsFloat() > best.AsFloat() {
				best = v
			}
		}
		return best, nil
	})

	b.set("sort", func(vm *VM, args []Value) (Value, error) {
		arr, ok := arg(args, 0).Obj.(*ArrayObj)
		if !ok {
			return NilValue(), wrongType("sort")
		}
		out := append([]Value(nil), arr.Elements...)
		var sortErr error
		if len(args) >= 2 {
			fn := args[1]
			sort.SliceStable(out, func(i, j int) bool {
				if sortErr != nil {
					return false
				}
				r, err := vm.callValue(fn, nil, []Value{out[i], out[j]})
				if err != nil {
					sortErr = err
					return false
				}
				return r.Truthy()
			})
		} else {
			sort.SliceStable(out, func(i, j int) bool { return out[i].AsFloat() < out[j].AsFloat() })
		}
		if sortErr != nil {
			return NilValue(), sortErr
		}
		return HeapValue(vm.mem.NewArray(out)), nil
	})
}

// arrayAndFn resolves a strictly-array first argument, matching the
// original's map/filter (Native.cpp), which reject anything that is
// not IsArray outright rather than accepting the broader iterable set.
func arrayAndFn(args []Value, name string) (*ArrayObj, Value, error) {
	if len(args) < 2 {
		return nil, NilValue(), wrongType(name)
	}
	arr, ok := args[0].Obj.(*ArrayObj)
	if !ok {
		return nil, NilValue(), wrongType(name)
	}
	return arr, args[1], nil
}

// iterableAndFn resolves the broader iterable set the original's
// each/reduce/all/any accept: array, string, coroutine, or a user
// object exposing has_next/get_next, via the same polymorphic iterator
// protocol make_iterator/iterator_has_next/iterator_get_next expose to
// scripts (vm.makeIterator).
func iterableAndFn(vm *VM, args []Value, name string) (*IteratorObj, Value, error) {
	if len(args) < 2 {
		return nil, NilValue(), wrongType(name)
	}
	it, err := vm.makeIterator(args[0])
	if err != nil {
		return nil, NilValue(), err
	}
	return it, args[1], nil
}

func (b *NativeBridge) registerNumeric() {
	unary := func(name string, f func(float64) float64) {
		b.set(name, func(vm *VM, args []Value) (Value, error) {
			v := arg(args, 0)
			if !v.IsNumber() {
				return NilValue(), wrongType(name)
			}
			return FloatValue(f(v.AsFloat())), nil
		})
	}
	b.set("abs", func(vm *VM, args []Value) (Value, error) {
		v := arg(args, 0)
		switch v.Kind {
		case KindInt:
			if v.I < 0 {
				return IntValue(-v.I), nil
			}
			return v, nil
		case KindFloat:
			return FloatValue(math.Abs(v.F)), nil
		default:
			return NilValue(), wrongType("abs")
		}
	})
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
}

func (b *NativeBridge) registerConvenience() {
	b.set("push", func(vm *VM, args []Value) (Value, error) {
		arr, ok := arg(args, 0).Obj.(*ArrayObj)
		if !ok {
			return NilValue(), wrongType("push")
		}
		v := arg(args, 1)
		arr.Elements = append(arr.Elements, v)
		vm.mem.WriteBarrier(arr, v)
		return HeapValue(arr), nil
	})
	b.set("pop", func(vm *VM, args []Value) (Value, error) {
		arr, ok := arg(args, 0).Obj.(*ArrayObj)
		if !ok {
			return NilValue(), wrongType("pop")
		}
		if len(arr.Elements) == 0 {
			return NilValue(), fmt.Errorf("pop: array is empty")
		}
		last := arr.Elements[len(arr.Elements)-1]
		arr.Elements = arr.Elements[:len(arr.Elements)-1]
		return last, nil
	})
	b.set("to_string", func(vm *VM, args []Value) (Value, error) {
		return HeapValue(vm.mem.NewString(vm.stringize(arg(args, 0)))), nil
	})
	b.set("to_int", func(vm *VM, args []Value) (Value, error) {
		v := arg(args, 0)
		switch v.Kind {
		case KindInt:
			return v, nil
		case KindFloat:
			return IntValue(int64(v.F)), nil
		case KindHeap:
			if s, ok := v.Obj.(*StringObj); ok {
				var n int64
				if _, err := fmt.Sscanf(s.Value, "%d", &n); err != nil {
					return NilValue(), fmt.Errorf("to_int: cannot parse %q", s.Value)
				}
				return IntValue(n), nil
			}
		}
		return NilValue(), wrongType("to_int")
	})
	b.set("to_float", func(vm *VM, args []Value) (Value, error) {
		v := arg(args, 0)
		switch v.Kind {
		case KindFloat:
			return v, nil
		case KindInt:
			return FloatValue(float64(v.I)), nil
		case KindHeap:
			if s, ok := v.Obj.(*StringObj); ok {
				var f float64
				if _, err := fmt.Sscanf(s.Value, "%g", &f); err != nil {
					return NilValue(), fmt.Errorf("to_float: cannot parse %q", s.Value)
				}
				return FloatValue(f), nil
			}
		}
		return NilValue(), wrongType("to_float")
	})
}
