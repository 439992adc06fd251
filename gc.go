package ember

import "github.com/rs/zerolog"

// gcStage is the incremental collector's state machine; a single
// garbage_collect(steps) call may fall through several stages in one
// invocation once each is exhausted.
type gcStage int

const (
	gcReady gcStage = iota
	gcMarkRoots
	gcMark
	gcSweepHead
	gcSweepRest
)

// MemoryManager owns the intrusive heap list, the current tri-color
// epoch, and the allocation counters exposed to memory_stats. All
// New* constructors, the GC stages, and the write barrier live here so
// every heap mutation in vm.go goes through one place.
type MemoryManager struct {
	head HeapObject // intrusive linked list via GCHeader.next

	currentWhite GCColor
	nextWhite    GCColor

	stage    gcStage
	gray     []HeapObject
	sweepCur HeapObject // anchor sweepRestStep walks forward from via GCHeader.next

	counts map[HeapType]int64

	roots RootProvider

	// Log is silent (zerolog.Nop()) by default; the VM sets it to the
	// same logger it uses for frame/call events when -ds/-dc debug
	// flags raise the level, so stage transitions are visible too.
	Log zerolog.Logger
}

// RootProvider lets the memory manager ask the VM for its GC roots
// without importing vm.go's concrete types into this file's
// allocation-focused code.
type RootProvider interface {
	MarkRoots(mark func(HeapObject))
}

// allHeapTypes lists every HeapType so Stats() can report a 0 count
// for a type with no allocations yet, instead of omitting its key.
var allHeapTypes = []HeapType{
	HeapString, HeapArray, HeapObjectT, HeapFunction, HeapBox, HeapIterator, HeapError,
}

func NewMemoryManager(roots RootProvider) *MemoryManager {
	counts := make(map[HeapType]int64, len(allHeapTypes))
	for _, t := range allHeapTypes {
		counts[t] = 0
	}
	return &MemoryManager{
		currentWhite: White0,
		nextWhite:    White1,
		counts:       counts,
		roots:        roots,
		Log:          zerolog.Nop(),
	}
}

func (m *MemoryManager) link(o HeapObject, t HeapType) {
	h := o.header()
	h.Type = t
	h.Color = m.nextWhite
	h.next = m.head
	m.head = o
	m.counts[t]++
}

func (m *MemoryManager) NewString(s string) *StringObj {
	o := &StringObj{Value: s}
	m.link(o, HeapString)
	return o
}

func (m *MemoryManager) NewArray(elems []Value) *ArrayObj {
	o := &ArrayObj{Elements: elems}
	m.link(o, HeapArray)
	return o
}

func (m *MemoryManager) NewObject(protoHash uint32) *ObjectObj {
	o := NewObject(protoHash)
	m.link(o, HeapObjectT)
	return o
}

func (m *MemoryManager) NewFunction(code *CodeObject, boxes []*Box) *FunctionObj {
	o := &FunctionObj{Code: code, Boxes: boxes}
	m.link(o, HeapFunction)
	return o
}

func (m *MemoryManager) NewBox(v Value) *Box {
	o := &Box{Value: v}
	m.link(o, HeapBox)
	return o
}

func (m *MemoryManager) NewIterator(it *IteratorObj) *IteratorObj {
	m.link(it, HeapIterator)
	return it
}

func (m *MemoryManager) NewError(msg Value) *ErrorObj {
	o := &ErrorObj{Message: msg}
	m.link(o, HeapError)
	return o
}

// MakeStatic marks a constant-pool object (deserialized strings,
// functions, code-backed closures) immune to free and to enqueueing,
// per spec: static objects are never collected.
func (m *MemoryManager) MakeStatic(o HeapObject) {
	o.header().Color = Static
}

// Stats mirrors memory_stats's exposed counters (see stdlib.go).
func (m *MemoryManager) Stats() map[string]int64 {
	out := make(map[string]int64, len(m.counts))
	for t, n := range m.counts {
		out[heapTypeStatName(t)] = n
	}
	return out
}

func heapTypeStatName(t HeapType) string {
	switch t {
	case HeapString:
		return "heap_strings_count"
	case HeapArray:
		return "heap_arrays_count"
	case HeapObjectT:
		return "heap_objects_count"
	case HeapFunction:
		return "heap_functions_count"
	case HeapBox:
		return "heap_boxes_count"
	case HeapIterator:
		return "heap_iterators_count"
	case HeapError:
		return "heap_errors_count"
	default:
		return "heap_unknown_count"
	}
}

// WriteBarrier enforces "no Black object may hold a direct reference
// to a White object": called whenever a Black parent is mutated to
// store a reference to child. If child is current-white, the parent
// is demoted to Gray and re-enqueued so Mark revisits it.
func (m *MemoryManager) WriteBarrier(parent HeapObject, child Value) {
	if child.Kind != KindHeap || child.Obj == nil {
		return
	}
	ph := parent.header()
	if ph.Color != Black {
		return
	}
	ch := child.Obj.header()
	if ch.Color != m.currentWhite {
		return
	}
	ph.Color = Gray
	m.gray = append(m.gray, parent)
}

func (m *MemoryManager) markObject(o HeapObject) {
	if o == nil {
		return
	}
	h := o.header()
	if h.Color == Static || h.Color == Gray || h.Color == Black {
		return
	}
	if h.Color != m.currentWhite {
		return
	}
	h.Color = Gray
	m.gray = append(m.gray, o)
}

// Collect performs up to `steps` units of incremental GC work,
// falling through exhausted stages within the same call, and returns
// to gcReady once a full cycle completes.
func (m *MemoryManager) Collect(steps int) {
	for steps > 0 {
		switch m.stage {
		case gcReady:
			m.beginMarkRoots()
			steps--
		case gcMarkRoots:
			m.markRootsStep()
			steps--
		case gcMark:
			if !m.markStep() {
				m.stage = gcSweepHead
				m.sweepCur = m.head
				m.Log.Debug().Str("component", "gc").Str("stage", "sweep_head").Msg("stage transition")
			}
			steps--
		case gcSweepHead:
			if !m.sweepHeadStep() {
				m.stage = gcSweepRest
				m.Log.Debug().Str("component", "gc").Str("stage", "sweep_rest").Msg("stage transition")
			}
			steps--
		case gcSweepRest:
			if !m.sweepRestStep() {
				m.stage = gcReady
				m.Log.Debug().Str("component", "gc").Str("stage", "ready").Msg("collection cycle complete")
				return
			}
			steps--
		}
	}
}

func (m *MemoryManager) beginMarkRoots() {
	m.currentWhite, m.nextWhite = m.nextWhite, m.currentWhite
	m.gray = m.gray[:0]
	m.stage = gcMarkRoots
}

func (m *MemoryManager) markRootsStep() {
	if m.roots != nil {
		m.roots.MarkRoots(m.markObject)
	}
	m.stage = gcMark
}

// markStep dequeues one gray object and blackens it; returns false
// once the gray queue is empty.
func (m *MemoryManager) markStep() bool {
	if len(m.gray) == 0 {
		return false
	}
	o := m.gray[len(m.gray)-1]
	m.gray = m.gray[:len(m.gray)-1]
	h := o.header()
	if h.Color == Static {
		return true
	}
	o.Mark(m.markObject)
	h.Color = Black
	return true
}

// sweepHeadStep frees at most one current-white object from the head
// of the list per call, same as sweepRestStep frees at most one node
// per call, so a single step of Collect's budget does bounded work
// even when the heap's leading run of garbage is large. Returns true
// while the head is still condemned (more work to do), false once it
// finds the first retained object (which anchors sweepRest) or the
// heap is exhausted.
func (m *MemoryManager) sweepHeadStep() bool {
	if m.head == nil {
		m.sweepCur = nil
		return false
	}
	h := m.head.header()
	if h.Color == m.currentWhite {
		m.head = h.next
		m.countMinus(h.Type)
		return true
	}
	if h.Color != Static {
		h.Color = m.nextWhite
	}
	m.sweepCur = m.head
	return false
}

func (m *MemoryManager) countMinus(t HeapType) {
	if m.counts[t] > 0 {
		m.counts[t]--
	}
}

// sweepRestStep continues unlinking current-white nodes following the
// anchor established by sweepHeadStep, one node per call.
func (m *MemoryManager) sweepRestStep() bool {
	if m.sweepCur == nil {
		return false
	}
	cur := m.sweepCur
	h := cur.header()
	next := h.next
	if next == nil {
		m.sweepCur = nil
		return false
	}
	nh := next.header()
	if nh.Color == m.currentWhite {
		h.next = nh.next
		m.countMinus(nh.Type)
		return true
	}
	if nh.Color != Static {
		nh.Color = m.nextWhite
	}
	m.sweepCur = next
	return true
}
