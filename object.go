package ember

import "sort"

// StringObj is a heap-allocated, immutable string value.
type StringObj struct {
	GCHeader
	Value string
}

func (s *StringObj) header() *GCHeader        { return &s.GCHeader }
func (s *StringObj) Mark(mark func(HeapObject)) {}
func (s *StringObj) String() string           { return s.Value }

// ArrayObj is a resizable, positionally ordered value vector.
type ArrayObj struct {
	GCHeader
	Elements []Value
}

func (a *ArrayObj) header() *GCHeader { return &a.GCHeader }

func (a *ArrayObj) Mark(mark func(HeapObject)) {
	for _, v := range a.Elements {
		if v.Kind == KindHeap && v.Obj != nil {
			mark(v.Obj)
		}
	}
}

func (a *ArrayObj) String() string { return "<array>" }

// resolveIndex implements the negative-index-via-modulo-length rule
// shared by LoadElement/StoreElement. ok is false for an empty array.
func (a *ArrayObj) resolveIndex(i int64) (int, bool) {
	n := int64(len(a.Elements))
	if n == 0 {
		return 0, false
	}
	if i < 0 {
		i = ((i % n) + n) % n
	}
	return int(i), true
}

// Member is one (hash, value) entry of an Object, kept sorted by Hash.
type Member struct {
	Hash  uint32
	Value Value
}

// ObjectObj is a prototype-chained object: a sorted member vector with
// member 0 always reserved for `proto` (hash 0 by the symbol table's
// convention, see symbols.go).
type ObjectObj struct {
	GCHeader
	Members []Member
}

func NewObject(protoHash uint32) *ObjectObj {
	return &ObjectObj{Members: []Member{{Hash: protoHash, Value: NilValue()}}}
}

func (o *ObjectObj) header() *GCHeader { return &o.GCHeader }

func (o *ObjectObj) Mark(mark func(HeapObject)) {
	for _, m := range o.Members {
		if m.Value.Kind == KindHeap && m.Value.Obj != nil {
			mark(m.Value.Obj)
		}
	}
}

func (o *ObjectObj) String() string { return "<object>" }

func (o *ObjectObj) find(hash uint32) (int, bool) {
	i := sort.Search(len(o.Members), func(i int) bool { return o.Members[i].Hash >= hash })
	if i < len(o.Members) && o.Members[i].Hash == hash {
		return i, true
	}
	return i, false
}

// Proto returns the object's proto member (always index 0).
func (o *ObjectObj) Proto() Value { return o.Members[0].Value }

// Get implements LoadMember's binary-search-then-walk-proto-chain
// lookup. found reports whether any object in the chain had the
// member; containing is the object the value actually came from (used
// to latch lastObject for the next member-call).
func (o *ObjectObj) Get(hash uint32) (value Value, containing *ObjectObj, found bool) {
	cur := o
	for cur != nil {
		if i, ok := cur.find(hash); ok {
			return cur.Members[i].Value, cur, true
		}
		proto := cur.Proto()
		if proto.Kind == KindHeap {
			if next, ok := proto.Obj.(*ObjectObj); ok {
				cur = next
				continue
			}
		}
		cur = nil
	}
	return NilValue(), nil, false
}

// Set implements StoreMember/PopStoreMember: overwrite an existing
// member found directly or via the proto chain, else insert a new
// sorted entry on the receiver itself. Returns the object whose
// Members slice was actually mutated (the receiver, a prototype
// ancestor, or the receiver again on insert) so the caller can apply
// the write barrier to the right object, not just the receiver.
func (o *ObjectObj) Set(hash uint32, v Value) *ObjectObj {
	if i, ok := o.find(hash); ok {
		o.Members[i].Value = v
		return o
	}
	cur := o
	for {
		proto := cur.Proto()
		if proto.Kind != KindHeap {
			break
		}
		next, ok := proto.Obj.(*ObjectObj)
		if !ok {
			break
		}
		if i, ok := next.find(hash); ok {
			next.Members[i].Value = v
			return next
		}
		cur = next
	}
	i, _ := o.find(hash)
	o.Members = append(o.Members, Member{})
	copy(o.Members[i+1:], o.Members[i:])
	o.Members[i] = Member{Hash: hash, Value: v}
	return o
}

// Box is a single-cell container making a stack slot addressable by
// outer closures after the defining frame exits.
type Box struct {
	GCHeader
	Value Value
}

func (b *Box) header() *GCHeader { return &b.GCHeader }

func (b *Box) Mark(mark func(HeapObject)) {
	if b.Value.Kind == KindHeap && b.Value.Obj != nil {
		mark(b.Value.Obj)
	}
}

func (b *Box) String() string { return "<box>" }

// ErrorObj wraps a message value as a first-class error the language
// can test for with is_error and construct with make_error.
type ErrorObj struct {
	GCHeader
	Message Value
}

func (e *ErrorObj) header() *GCHeader { return &e.GCHeader }

func (e *ErrorObj) Mark(mark func(HeapObject)) {
	if e.Message.Kind == KindHeap && e.Message.Obj != nil {
		mark(e.Message.Obj)
	}
}

func (e *ErrorObj) String() string { return "error: " + e.Message.String() }
