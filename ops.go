package ember

import (
	"fmt"
	"math"
)

// binaryOp implements every binary opcode's runtime semantics (spec's
// "Binary operators" rules): arithmetic needs numeric operands, `+`
// additionally concatenates arrays and merges objects, `~` coerces
// both sides to their string form, and `==`/`!=` fall back to
// reference identity once no by-value rule applies.
func (vm *VM) binaryOp(op Opcode, lhs, rhs Value) (Value, error) {
	switch op {
	case OpEqual:
		return BoolValue(ValuesEqual(lhs, rhs)), nil
	case OpNotEqual:
		return BoolValue(!ValuesEqual(lhs, rhs)), nil
	case OpXor:
		return BoolValue(lhs.Truthy() != rhs.Truthy()), nil
	case OpConcatenate:
		return HeapValue(vm.mem.NewString(vm.stringize(lhs) + vm.stringize(rhs))), nil
	}

	if lhs.Kind == KindHeap && rhs.Kind == KindHeap && op == OpAdd {
		if la, ok := lhs.Obj.(*ArrayObj); ok {
			if ra, ok := rhs.Obj.(*ArrayObj); ok {
				merged := append(append([]Value(nil), la.Elements...), ra.Elements...)
				return HeapValue(vm.mem.NewArray(merged)), nil
			}
		}
		if lo, ok := lhs.Obj.(*ObjectObj); ok {
			if ro, ok := rhs.Obj.(*ObjectObj); ok {
				merged := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
				for _, m := range lo.Members {
					merged.Set(m.Hash, m.Value)
				}
				for _, m := range ro.Members {
					merged.Set(m.Hash, m.Value)
				}
				return HeapValue(merged), nil
			}
		}
	}

	if op == OpLess || op == OpGreater || op == OpLessEqual || op == OpGreaterEqual {
		if lhs.Kind == KindHeap && rhs.Kind == KindHeap {
			ls, lok := lhs.Obj.(*StringObj)
			rs, rok := rhs.Obj.(*StringObj)
			if lok && rok {
				return BoolValue(compareStrings(op, ls.Value, rs.Value)), nil
			}
		}
	}

	if !lhs.IsNumber() || !rhs.IsNumber() {
		return NilValue(), fmt.Errorf("%s requires numeric operands", op)
	}

	switch op {
	case OpLess:
		return BoolValue(lhs.AsFloat() < rhs.AsFloat()), nil
	case OpGreater:
		return BoolValue(lhs.AsFloat() > rhs.AsFloat()), nil
	case OpLessEqual:
		return BoolValue(lhs.AsFloat() <= rhs.AsFloat()), nil
	case OpGreaterEqual:
		return BoolValue(lhs.AsFloat() >= rhs.AsFloat()), nil
	}

	bothInt := lhs.Kind == KindInt && rhs.Kind == KindInt
	switch op {
	case OpAdd:
		if bothInt {
			return IntValue(lhs.I + rhs.I), nil
		}
		return FloatValue(lhs.AsFloat() + rhs.AsFloat()), nil
	case OpSubtract:
		if bothInt {
			return IntValue(lhs.I - rhs.I), nil
		}
		return FloatValue(lhs.AsFloat() - rhs.AsFloat()), nil
	case OpMultiply:
		if bothInt {
			return IntValue(lhs.I * rhs.I), nil
		}
		return FloatValue(lhs.AsFloat() * rhs.AsFloat()), nil
	case OpDivide:
		if bothInt {
			if rhs.I == 0 {
				return NilValue(), fmt.Errorf("Division by 0")
			}
			return IntValue(lhs.I / rhs.I), nil
		}
		if rhs.AsFloat() == 0 {
			return NilValue(), fmt.Errorf("Division by 0")
		}
		return FloatValue(lhs.AsFloat() / rhs.AsFloat()), nil
	case OpModulo:
		if !bothInt {
			return NilValue(), fmt.Errorf("%% requires integer operands")
		}
		if rhs.I == 0 {
			return NilValue(), fmt.Errorf("Division by 0")
		}
		return IntValue(lhs.I % rhs.I), nil
	case OpPower:
		result := math.Pow(lhs.AsFloat(), rhs.AsFloat())
		if lhs.Kind == KindInt {
			return IntValue(int64(result)), nil
		}
		return FloatValue(result), nil
	default:
		return NilValue(), fmt.Errorf("unsupported binary operator %s", op)
	}
}

func compareStrings(op Opcode, a, b string) bool {
	switch op {
	case OpLess:
		return a < b
	case OpGreater:
		return a > b
	case OpLessEqual:
		return a <= b
	case OpGreaterEqual:
		return a >= b
	default:
		return false
	}
}

// unaryOp implements `+`, `-`, `not`, `~`, `#`.
func (vm *VM) unaryOp(op Opcode, v Value) (Value, error) {
	switch op {
	case OpUnaryPlus:
		if !v.IsNumber() {
			return NilValue(), fmt.Errorf("unary + requires a number")
		}
		return v, nil
	case OpUnaryMinus:
		if !v.IsNumber() {
			return NilValue(), fmt.Errorf("unary - requires a number")
		}
		if v.Kind == KindInt {
			return IntValue(-v.I), nil
		}
		return FloatValue(-v.F), nil
	case OpUnaryNot:
		return BoolValue(!v.Truthy()), nil
	case OpUnaryConcatenate:
		return HeapValue(vm.mem.NewString(vm.stringize(v))), nil
	case OpUnarySizeOf:
		return vm.sizeOf(v)
	default:
		return NilValue(), fmt.Errorf("unsupported unary operator %s", op)
	}
}

func (vm *VM) sizeOf(v Value) (Value, error) {
	if v.Kind != KindHeap {
		return NilValue(), fmt.Errorf("# requires an array, object, or string")
	}
	switch o := v.Obj.(type) {
	case *ArrayObj:
		return IntValue(int64(len(o.Elements))), nil
	case *ObjectObj:
		return IntValue(int64(len(o.Members))), nil
	case *StringObj:
		return IntValue(int64(len(o.Value))), nil
	default:
		return NilValue(), fmt.Errorf("# requires an array, object, or string")
	}
}

// stringize implements `~`'s any-to-string coercion.
func (vm *VM) stringize(v Value) string {
	if v.Kind == KindHeap {
		if s, ok := v.Obj.(*StringObj); ok {
			return s.Value
		}
	}
	return v.String()
}
