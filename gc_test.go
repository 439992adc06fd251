package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRoots is a RootProvider backed by a plain slice of roots (empty
// unless a test fills it), for tests that drive the memory manager
// directly without a VM.
type stubRoots struct{ roots []HeapObject }

func (s *stubRoots) MarkRoots(mark func(HeapObject)) {
	for _, o := range s.roots {
		mark(o)
	}
}

func TestGC_UnreachableStringsAreSweptAfterFullCycle(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)

	before := mem.Stats()["heap_strings_count"]
	for i := 0; i < 20; i++ {
		mem.NewString("garbage")
	}
	require.Equal(t, before+20, mem.Stats()["heap_strings_count"])

	mem.Collect(10000)
	require.Equal(t, before, mem.Stats()["heap_strings_count"])
}

func TestGC_ReachableStringSurvivesCollection(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)
	s := mem.NewString("kept")
	roots.roots = []HeapObject{s}

	mem.Collect(10000)
	require.Equal(t, int64(1), mem.Stats()["heap_strings_count"])
}

func TestGC_StaticObjectNeverFreed(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)
	s := mem.NewString("static")
	mem.MakeStatic(s)

	mem.Collect(10000)
	mem.Collect(10000)
	assert.Equal(t, Static, s.Color)
	require.Equal(t, int64(1), mem.Stats()["heap_strings_count"])
}

func TestGC_WriteBarrierDemotesBlackParentToGray(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)

	arr := mem.NewArray(nil)
	arr.Color = Black

	child := mem.NewString("child")
	child.Color = mem.currentWhite

	mem.WriteBarrier(arr, HeapValue(child))
	assert.Equal(t, Gray, arr.Color)
}

func TestGC_WriteBarrierTargetsTheObjectActuallyMutatedThroughProto(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)

	proto := mem.NewObject(0)
	proto.Set(100, IntValue(1))
	obj := mem.NewObject(0)
	obj.Set(0, HeapValue(proto)) // proto member

	proto.Color = Black
	obj.Color = Black

	child := mem.NewString("inherited")
	child.Color = mem.currentWhite

	mutated := obj.Set(100, HeapValue(child)) // overwrites the inherited member on proto
	assert.Same(t, proto, mutated, "Set must report the prototype ancestor it actually mutated, not the receiver")

	mem.WriteBarrier(mutated, HeapValue(child))
	assert.Equal(t, Gray, proto.Color, "the object actually holding the new white reference must be grayed")
	assert.Equal(t, Black, obj.Color, "the receiver, which was not mutated, must stay untouched")
}

func TestGC_WriteBarrierAppliesToBoxStores(t *testing.T) {
	roots := &stubRoots{}
	mem := NewMemoryManager(roots)

	box := &Box{}
	box.Color = Black

	child := mem.NewString("captured")
	child.Color = mem.currentWhite

	mem.WriteBarrier(box, HeapValue(child))
	assert.Equal(t, Gray, box.Color, "a Black box storing a white child must be demoted to Gray, same as array/object stores")
}
