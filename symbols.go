package ember

// SymbolTable is the program-wide, hash-addressed table of object/hash
// keys. Symbols are placed in an open-addressed slot array (probe
// step from secondaryHash); that slot order is the order All and
// Marshal use. Intern, Lookup and NameForHash find entries through the
// byName/byHash maps. "proto" is always interned first so it lands at a
// well-known slot every program agrees on.
type SymbolTable struct {
	entries []symbolSlot
	byName  map[string]int // name -> entries index, for Intern/Lookup
	byHash  map[uint32]int // hash -> entries index, for NameForHash
}

type symbolSlot struct {
	used bool
	sym  Symbol
}

const protoSymbolName = "proto"

func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{byName: make(map[string]int), byHash: make(map[uint32]int)}
	t.grow(16)
	// proto is forced to hash 0 regardless of what SymbolHash would
	// compute, so every program agrees on the well-known proto slot.
	t.insertWithHash(protoSymbolName, 0)
	return t
}

func (t *SymbolTable) grow(minCap int) {
	newCap := len(t.entries)
	if newCap == 0 {
		newCap = minCap
	}
	for newCap < minCap || float64(len(t.byName))/float64(newCap) >= 0.7 {
		newCap *= 2
	}
	if newCap == len(t.entries) {
		return
	}
	old := t.entries
	t.entries = make([]symbolSlot, newCap)
	t.byName = make(map[string]int, len(old))
	t.byHash = make(map[uint32]int, len(old))
	for _, s := range old {
		if s.used {
			t.insertWithHash(s.sym.Name, s.sym.Hash)
		}
	}
}

func (t *SymbolTable) load() float64 {
	if len(t.entries) == 0 {
		return 1
	}
	return float64(len(t.byName)) / float64(len(t.entries))
}

// insertWithHash places name at its probe sequence's first free or
// matching slot and records it in byName. Used both by Intern (new
// symbols get SymbolHash(name)) and by Unmarshal (symbols carry their
// original hash from the blob, which must round-trip unchanged).
func (t *SymbolTable) insertWithHash(name string, hash uint32) int {
	if idx, ok := t.byName[name]; ok {
		return idx
	}
	if t.load() >= 0.7 {
		t.grow(len(t.entries) * 2)
	}
	mask := uint32(len(t.entries) - 1)
	i := hash & mask
	step := secondaryHash(hash, mask)
	for t.entries[i].used {
		i = (i + step) & mask
	}
	t.entries[i] = symbolSlot{used: true, sym: Symbol{Name: name, Hash: hash}}
	t.byName[name] = int(i)
	// First symbol to claim a hash wins NameForHash lookups; a 32-bit
	// SymbolHash collision between two distinct names must not let the
	// second insert silently steal the first's reverse mapping.
	if _, exists := t.byHash[hash]; !exists {
		t.byHash[hash] = int(i)
	}
	return int(i)
}

// secondaryHash derives the open-addressing probe step from the
// primary hash, odd so it is coprime with the power-of-two table size
// and therefore visits every slot before repeating.
func secondaryHash(hash, mask uint32) uint32 {
	step := ((hash >> 8) ^ (hash << 3)) & mask
	return step | 1
}

// Intern returns the symbol for name, creating it if this is the
// first time the program has referenced it.
func (t *SymbolTable) Intern(name string) Symbol {
	idx := t.insertWithHash(name, SymbolHash(name))
	return t.entries[idx].sym
}

// Lookup finds name without creating it.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return t.entries[idx].sym, true
}

// NameForHash reverses a member hash back to its interned name via the
// byHash reverse index, rather than a linear scan over All().
func (t *SymbolTable) NameForHash(hash uint32) (string, bool) {
	idx, ok := t.byHash[hash]
	if !ok {
		return "", false
	}
	return t.entries[idx].sym.Name, true
}

// ProtoSymbol is the well-known symbol every object's prototype
// pointer is stored under at member index 0.
func (t *SymbolTable) ProtoSymbol() Symbol {
	s, _ := t.Lookup(protoSymbolName)
	return s
}

// All returns every interned symbol, in table (probe-slot) order —
// the same order Marshal serializes them in.
func (t *SymbolTable) All() []Symbol {
	out := make([]Symbol, 0, len(t.byName))
	for _, s := range t.entries {
		if s.used {
			out = append(out, s.sym)
		}
	}
	return out
}
