package ember

import "fmt"

// ValueKind tags a Value's payload. Nil, Int, Float, Bool and Hash are
// unboxed; NativeFn is a bare function pointer; everything else is a
// pointer into the garbage-collected heap.
type ValueKind byte

const (
	KindNil ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindHash
	KindNativeFn
	KindHeap
)

// Value is the VM's tagged-union runtime value: one machine word of
// payload plus a tag, exactly as spec'd — Go can't pack this into a
// single word, but keeping the fields disjoint-by-Kind mirrors the
// original union's discipline and keeps Value cheap to copy.
type Value struct {
	Kind ValueKind

	I    int64
	F    float64
	B    bool
	Hash uint32
	Fn   *NativeFunc
	Obj  HeapObject
}

func NilValue() Value               { return Value{Kind: KindNil} }
func IntValue(v int64) Value        { return Value{Kind: KindInt, I: v} }
func FloatValue(v float64) Value    { return Value{Kind: KindFloat, F: v} }
func BoolValue(v bool) Value        { return Value{Kind: KindBool, B: v} }
func HashValue(v uint32) Value      { return Value{Kind: KindHash, Hash: v} }
func NativeValue(f *NativeFunc) Value { return Value{Kind: KindNativeFn, Fn: f} }
func HeapValue(o HeapObject) Value  { return Value{Kind: KindHeap, Obj: o} }

func (v Value) IsNil() bool { return v.Kind == KindNil }

// Truthy implements `not`'s and every branch instruction's notion of
// truthiness: nil and false are falsy, everything else — including 0,
// 0.0 and "" — is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.B
	default:
		return true
	}
}

func (v Value) IsNumber() bool { return v.Kind == KindInt || v.Kind == KindFloat }

func (v Value) AsFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// HeapType tags which concrete Go type a HeapObject points to, so the
// VM and GC can switch on it without a type assertion chain.
type HeapType byte

const (
	HeapString HeapType = iota
	HeapArray
	HeapObjectT
	HeapFunction
	HeapBox
	HeapIterator
	HeapError
)

// GCColor is the mark-sweep tri-color-plus-Static state.
type GCColor byte

const (
	White0 GCColor = iota
	White1
	Gray
	Black
	Static
)

// GCHeader is embedded (by value) in every heap object. It carries
// the type tag, the tri-color state, and the heap's intrusive
// next-pointer; see gc.go for the collector that walks it.
type GCHeader struct {
	Type  HeapType
	Color GCColor
	next  HeapObject
}

// HeapObject is implemented by every garbage-collected runtime type.
// Mark walks the object's own references, promoting current-white
// children to Gray via the supplied callback (see gc.go).
type HeapObject interface {
	header() *GCHeader
	Mark(mark func(HeapObject))
	String() string
}

func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindHash:
		return fmt.Sprintf("#%08x", v.Hash)
	case KindNativeFn:
		if v.Fn != nil {
			return "native:" + v.Fn.Name
		}
		return "native:?"
	case KindHeap:
		if v.Obj != nil {
			return v.Obj.String()
		}
		return "<nil heap>"
	default:
		return "?"
	}
}

// ValuesEqual implements `==`: numeric comparison across int/float,
// bool/bool, string content, else reference identity.
func ValuesEqual(a, b Value) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		return a.AsFloat() == b.AsFloat()
	case a.Kind == KindBool && b.Kind == KindBool:
		return a.B == b.B
	case a.Kind == KindNil && b.Kind == KindNil:
		return true
	case a.Kind == KindHash && b.Kind == KindHash:
		return a.Hash == b.Hash
	}
	as, aIsStr := a.Obj.(*StringObj)
	bs, bIsStr := b.Obj.(*StringObj)
	if a.Kind == KindHeap && b.Kind == KindHeap && aIsStr && bIsStr {
		return as.Value == bs.Value
	}
	if a.Kind == KindHeap && b.Kind == KindHeap {
		return a.Obj == b.Obj
	}
	if a.Kind == KindNativeFn && b.Kind == KindNativeFn {
		return a.Fn == b.Fn
	}
	return false
}
