package ember

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// LineEntry marks the first instruction index belonging to a source
// line, in ascending order; looking up the line for an instruction
// index is a binary search over this table (see CodeObject.LineFor).
type LineEntry struct {
	Line                int32
	FirstInstructionIndex int32
}

// CodeObject is the compiled form of one function literal (or the
// top-level program, itself a zero-parameter function). It is stored
// in the enclosing program's constant pool like any other constant.
type CodeObject struct {
	Name string // empty for anonymous literals; used only for disassembly

	Instructions []Instruction
	Lines        []LineEntry

	LocalCount      int32
	NamedParamCount int32

	// ClosureMapping has one entry per free variable this function
	// captures. A non-negative entry is the local-variable slot of the
	// immediately enclosing function; a negative entry is a
	// negative-one-based index into the enclosing function's own
	// free-variable list (-1 - idx).
	ClosureMapping []int32
}

func (c *CodeObject) LineFor(instrIndex int) int32 {
	lo, hi := 0, len(c.Lines)-1
	best := int32(0)
	for lo <= hi {
		mid := (lo + hi) / 2
		if c.Lines[mid].FirstInstructionIndex <= int32(instrIndex) {
			best = c.Lines[mid].Line
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// ConstantKind tags a constant-pool entry's payload type.
type ConstantKind byte

const (
	ConstNil ConstantKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
	ConstCode
)

// Constant is one constant-pool slot. Exactly one of the typed fields
// is meaningful, selected by Kind.
type Constant struct {
	Kind ConstantKind

	Bool  bool
	Int   int64
	Float float64
	Str   string
	Code  *CodeObject
}

// Symbol is one entry of the program's hash-addressed symbol table:
// every distinct identifier used as an object/hash key anywhere in the
// program gets exactly one Symbol, found at runtime by its hash.
type Symbol struct {
	Name string
	Hash uint32
}

// SymbolHash is the hash function used to place and probe symbols in
// the open-addressed symbol table (see symbols.go): FNV-1a over the
// identifier's bytes, matching the "multiply-xor" style hash the
// bytecode format commits to in its on-disk layout.
func SymbolHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Program is a fully compiled unit: its symbol table, its constant
// pool (which recursively holds every CodeObject, including nested
// function literals), and the index of the top-level CodeObject to
// start execution at.
type Program struct {
	Symbols     *SymbolTable
	Constants   []Constant
	EntryCode   int
	GlobalCount int
}

func (p *Program) AddConstant(c Constant) int {
	p.Constants = append(p.Constants, c)
	return len(p.Constants) - 1
}

func (p *Program) Entry() *CodeObject {
	return p.Constants[p.EntryCode].Code
}

// --- Binary blob (de)serialization, see spec.md §6 ---

// Marshal encodes the program into the wire format: a symbols section
// (byte size, count, then each symbol's name length, bytes, and hash)
// followed by a constants section (byte size, count, then each
// constant's type tag and payload). Sizes are emitted so a reader can
// skip a section it doesn't understand without decoding every entry.
func (p *Program) Marshal() ([]byte, error) {
	var symBuf []byte
	for _, s := range p.Symbols.All() {
		nameBytes := []byte(s.Name)
		symBuf = appendU32(symBuf, uint32(len(nameBytes)))
		symBuf = append(symBuf, nameBytes...)
		symBuf = appendU32(symBuf, s.Hash)
	}

	var constBuf []byte
	for _, c := range p.Constants {
		buf, err := marshalConstant(c)
		if err != nil {
			return nil, err
		}
		constBuf = append(constBuf, buf...)
	}

	var out []byte
	out = appendU32(out, uint32(len(symBuf)))
	out = appendU32(out, uint32(len(p.Symbols.All())))
	out = append(out, symBuf...)

	out = appendU32(out, uint32(len(constBuf)))
	out = appendU32(out, uint32(len(p.Constants)))
	out = append(out, constBuf...)

	out = appendU32(out, uint32(p.EntryCode))
	out = appendU32(out, uint32(p.GlobalCount))
	return out, nil
}

func marshalConstant(c Constant) ([]byte, error) {
	var buf []byte
	buf = append(buf, byte(c.Kind))
	switch c.Kind {
	case ConstNil:
	case ConstBool:
		if c.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case ConstInt:
		buf = appendU64(buf, uint64(c.Int))
	case ConstFloat:
		buf = appendU64(buf, math.Float64bits(c.Float))
	case ConstString:
		sb := []byte(c.Str)
		buf = appendU32(buf, uint32(len(sb)))
		buf = append(buf, sb...)
	case ConstCode:
		code := c.Code
		nameBytes := []byte(code.Name)
		buf = appendU32(buf, uint32(len(nameBytes)))
		buf = append(buf, nameBytes...)
		buf = appendU32(buf, uint32(len(code.ClosureMapping)))
		buf = appendU32(buf, uint32(len(code.Instructions)))
		buf = appendU32(buf, uint32(len(code.Lines)))
		buf = appendI32(buf, int32(code.LocalCount))
		buf = appendI32(buf, int32(code.NamedParamCount))
		for _, m := range code.ClosureMapping {
			buf = appendI32(buf, m)
		}
		for _, instr := range code.Instructions {
			buf = append(buf, byte(instr.Op))
			buf = appendU32(buf, uint32(instr.Operand))
		}
		for _, ln := range code.Lines {
			buf = appendI32(buf, ln.Line)
			buf = appendI32(buf, ln.FirstInstructionIndex)
		}
	default:
		return nil, fmt.Errorf("ember: unknown constant kind %d", c.Kind)
	}
	return buf, nil
}

// Unmarshal decodes a Program previously produced by Marshal.
func Unmarshal(data []byte) (*Program, error) {
	r := &byteReader{buf: data}

	symBytes := r.u32()
	symCount := r.u32()
	symEnd := r.pos + int(symBytes)
	symbols := NewSymbolTable()
	for i := uint32(0); i < symCount && r.pos < symEnd; i++ {
		nlen := r.u32()
		name := string(r.bytes(int(nlen)))
		hash := r.u32()
		symbols.insertWithHash(name, hash)
	}
	r.pos = symEnd

	constBytes := r.u32()
	constCount := r.u32()
	constEnd := r.pos + int(constBytes)
	constants := make([]Constant, 0, constCount)
	for i := uint32(0); i < constCount && r.pos < constEnd; i++ {
		c, err := unmarshalConstant(r)
		if err != nil {
			return nil, err
		}
		constants = append(constants, c)
	}
	r.pos = constEnd

	entry := r.u32()
	globalCount := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	return &Program{Symbols: symbols, Constants: constants, EntryCode: int(entry), GlobalCount: int(globalCount)}, nil
}

func unmarshalConstant(r *byteReader) (Constant, error) {
	kind := ConstantKind(r.u8())
	switch kind {
	case ConstNil:
		return Constant{Kind: ConstNil}, nil
	case ConstBool:
		return Constant{Kind: ConstBool, Bool: r.u8() != 0}, nil
	case ConstInt:
		return Constant{Kind: ConstInt, Int: int64(r.u64())}, nil
	case ConstFloat:
		return Constant{Kind: ConstFloat, Float: math.Float64frombits(r.u64())}, nil
	case ConstString:
		n := r.u32()
		return Constant{Kind: ConstString, Str: string(r.bytes(int(n)))}, nil
	case ConstCode:
		nameLen := r.u32()
		name := string(r.bytes(int(nameLen)))
		closureSize := r.u32()
		instrCount := r.u32()
		lineCount := r.u32()
		localCount := r.i32()
		namedParamCount := r.i32()
		mapping := make([]int32, closureSize)
		for i := range mapping {
			mapping[i] = r.i32()
		}
		instrs := make([]Instruction, instrCount)
		for i := range instrs {
			instrs[i] = Instruction{Op: Opcode(r.u8()), Operand: int32(r.u32())}
		}
		lines := make([]LineEntry, lineCount)
		for i := range lines {
			lines[i] = LineEntry{Line: r.i32(), FirstInstructionIndex: r.i32()}
		}
		if r.err != nil {
			return Constant{}, r.err
		}
		return Constant{Kind: ConstCode, Code: &CodeObject{
			Name:            name,
			Instructions:    instrs,
			Lines:           lines,
			LocalCount:      localCount,
			NamedParamCount: namedParamCount,
			ClosureMapping:  mapping,
		}}, nil
	default:
		return Constant{}, fmt.Errorf("ember: unknown constant kind %d in bytecode blob", kind)
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendI32(buf []byte, v int32) []byte { return appendU32(buf, uint32(v)) }

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

type byteReader struct {
	buf []byte
	pos int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("ember: truncated bytecode blob at offset %d", r.pos)
		return false
	}
	return true
}

func (r *byteReader) u8() byte {
	if !r.need(1) {
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *byteReader) i32() int32 { return int32(r.u32()) }

func (r *byteReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *byteReader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}
