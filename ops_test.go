package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVM() *VM {
	prog := &Program{Symbols: NewSymbolTable(), GlobalCount: 0}
	return NewVM(prog, nil)
}

func TestBinaryOp_Arithmetic(t *testing.T) {
	vm := newTestVM()

	tests := []struct {
		name     string
		op       Opcode
		lhs, rhs Value
		wantKind ValueKind
		wantInt  int64
		wantFlt  float64
	}{
		{"int add", OpAdd, IntValue(2), IntValue(3), KindInt, 5, 0},
		{"int sub", OpSubtract, IntValue(5), IntValue(3), KindInt, 2, 0},
		{"int mul", OpMultiply, IntValue(4), IntValue(3), KindInt, 12, 0},
		{"float promotion on add", OpAdd, IntValue(2), FloatValue(1.5), KindFloat, 0, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := vm.binaryOp(tt.op, tt.lhs, tt.rhs)
			require.NoError(t, err)
			require.Equal(t, tt.wantKind, result.Kind)
			if tt.wantKind == KindInt {
				assert.Equal(t, tt.wantInt, result.I)
			} else {
				assert.Equal(t, tt.wantFlt, result.F)
			}
		})
	}
}

func TestBinaryOp_PowerFractionalExponentUsesRealPow(t *testing.T) {
	vm := newTestVM()

	result, err := vm.binaryOp(OpPower, IntValue(4), FloatValue(0.5))
	require.NoError(t, err)
	require.Equal(t, KindInt, result.Kind, "int lhs keeps an int result, matching the original's int(std::pow(...))")
	assert.EqualValues(t, 2, result.I, "4^0.5 is 2, not the truncated-loop-count result of 1")
}

func TestBinaryOp_PowerFloatLhsStaysFloat(t *testing.T) {
	vm := newTestVM()

	result, err := vm.binaryOp(OpPower, FloatValue(2), IntValue(3))
	require.NoError(t, err)
	require.Equal(t, KindFloat, result.Kind)
	assert.InDelta(t, 8.0, result.F, 1e-9)
}

func TestBinaryOp_DivisionByZeroErrors(t *testing.T) {
	vm := newTestVM()

	_, err := vm.binaryOp(OpDivide, IntValue(10), IntValue(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Division by 0")

	_, err = vm.binaryOp(OpModulo, IntValue(10), IntValue(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Division by 0")
}

func TestBinaryOp_ArrayConcatenationProducesNewArray(t *testing.T) {
	vm := newTestVM()
	a := HeapValue(vm.mem.NewArray([]Value{IntValue(1)}))
	b := HeapValue(vm.mem.NewArray([]Value{IntValue(2)}))

	result, err := vm.binaryOp(OpAdd, a, b)
	require.NoError(t, err)
	arr, ok := result.Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, arr.Elements, 2)
	assert.EqualValues(t, 1, arr.Elements[0].I)
	assert.EqualValues(t, 2, arr.Elements[1].I)

	// original arrays unaffected
	origA, _ := a.Obj.(*ArrayObj)
	require.Len(t, origA.Elements, 1)
}

func TestBinaryOp_ObjectMergeLaterKeyOverrides(t *testing.T) {
	vm := newTestVM()
	xHash := vm.Program.Symbols.Intern("x").Hash
	yHash := vm.Program.Symbols.Intern("y").Hash

	a := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
	a.Set(xHash, IntValue(1))
	b := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
	b.Set(xHash, IntValue(2))
	b.Set(yHash, IntValue(3))

	result, err := vm.binaryOp(OpAdd, HeapValue(a), HeapValue(b))
	require.NoError(t, err)
	merged, ok := result.Obj.(*ObjectObj)
	require.True(t, ok)

	xv, _, found := merged.Get(xHash)
	require.True(t, found)
	assert.EqualValues(t, 2, xv.I) // b's x overrides a's x

	yv, _, found := merged.Get(yHash)
	require.True(t, found)
	assert.EqualValues(t, 3, yv.I)
}

func TestBinaryOp_StringComparison(t *testing.T) {
	vm := newTestVM()
	a := HeapValue(vm.mem.NewString("abc"))
	b := HeapValue(vm.mem.NewString("abd"))

	result, err := vm.binaryOp(OpLess, a, b)
	require.NoError(t, err)
	assert.True(t, result.Truthy())
}

func TestBinaryOp_Equality(t *testing.T) {
	vm := newTestVM()
	a := HeapValue(vm.mem.NewString("same"))
	b := HeapValue(vm.mem.NewString("same"))

	result, err := vm.binaryOp(OpEqual, a, b)
	require.NoError(t, err)
	assert.True(t, result.Truthy())
}

func TestUnaryOp_SizeOf(t *testing.T) {
	vm := newTestVM()
	arr := HeapValue(vm.mem.NewArray([]Value{IntValue(1), IntValue(2), IntValue(3)}))

	result, err := vm.unaryOp(OpUnarySizeOf, arr)
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.I)
}

func TestUnaryOp_SizeOfStringIsByteLengthNotRuneCount(t *testing.T) {
	vm := newTestVM()
	s := HeapValue(vm.mem.NewString("é"))

	result, err := vm.unaryOp(OpUnarySizeOf, s)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.I, "'é' is 2 bytes in UTF-8, matching the 2 steps a byte iterator yields over it")
}

func TestUnaryOp_SizeOfObjectIncludesProtoMember(t *testing.T) {
	vm := newTestVM()
	obj := vm.mem.NewObject(vm.Program.Symbols.ProtoSymbol().Hash)
	sym := vm.Program.Symbols.Intern("x")
	obj.Set(sym.Hash, IntValue(1))

	result, err := vm.unaryOp(OpUnarySizeOf, HeapValue(obj))
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.I, "proto is a real member slot and counts toward size, matching the original's members.size()")
}

func TestUnaryOp_ConcatenateCoercesToString(t *testing.T) {
	vm := newTestVM()
	result, err := vm.unaryOp(OpUnaryConcatenate, IntValue(42))
	require.NoError(t, err)
	s, ok := result.Obj.(*StringObj)
	require.True(t, ok)
	assert.Equal(t, "42", s.Value)
}
