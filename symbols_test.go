package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTable_ProtoIsForcedToHashZero(t *testing.T) {
	st := NewSymbolTable()
	sym := st.ProtoSymbol()
	assert.Equal(t, "proto", sym.Name)
	assert.EqualValues(t, 0, sym.Hash)
}

func TestSymbolTable_InternIsIdempotent(t *testing.T) {
	st := NewSymbolTable()
	a := st.Intern("x")
	b := st.Intern("x")
	assert.Equal(t, a, b)
}

func TestSymbolTable_InternManyNamesSurvivesGrowth(t *testing.T) {
	st := NewSymbolTable()
	names := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		names = append(names, string(rune('a'+i%26))+string(rune('0'+i%10))+string(rune('A'+i%26)))
	}
	seen := make(map[string]Symbol, len(names))
	for _, n := range names {
		seen[n] = st.Intern(n)
	}
	for _, n := range names {
		got, ok := st.Lookup(n)
		require.True(t, ok)
		assert.Equal(t, seen[n], got)
	}
}

func TestSymbolTable_NameForHashReversesIntern(t *testing.T) {
	st := NewSymbolTable()
	sym := st.Intern("widget")

	name, ok := st.NameForHash(sym.Hash)
	require.True(t, ok)
	assert.Equal(t, "widget", name)

	_, ok = st.NameForHash(0xdeadbeef)
	assert.False(t, ok)
}

func TestSymbolTable_NameForHashFirstInsertWinsOnHashCollision(t *testing.T) {
	st := NewSymbolTable()
	st.insertWithHash("a", 42)
	st.insertWithHash("b", 42)

	name, ok := st.NameForHash(42)
	require.True(t, ok)
	assert.Equal(t, "a", name, "the first symbol to claim a colliding hash must keep the reverse mapping, not be silently overwritten by a later insert")

	bName, ok := st.Lookup("b")
	require.True(t, ok)
	assert.EqualValues(t, 42, bName.Hash, "b is still interned under its own name even though it lost the reverse-hash slot")
}

func TestSymbolTable_NameForHashSurvivesGrowth(t *testing.T) {
	st := NewSymbolTable()
	sym := st.Intern("a")
	for i := 0; i < 100; i++ {
		st.Intern(string(rune('b' + i%25)))
	}
	name, ok := st.NameForHash(sym.Hash)
	require.True(t, ok)
	assert.Equal(t, "a", name)
}

func TestSymbolTable_AllMatchesProbeOrderAfterGrowth(t *testing.T) {
	st := NewSymbolTable()
	for i := 0; i < 50; i++ {
		st.Intern(string(rune('a' + i%26)))
	}
	all := st.All()
	// All lists the used slots in probe-slot order
	var slots []Symbol
	for _, e := range st.entries {
		if e.used {
			slots = append(slots, e.sym)
		}
	}
	assert.Equal(t, slots, all)
	// every interned name must be present exactly once: 26 letters plus proto
	require.Len(t, all, 27)
	names := make(map[string]bool, len(all))
	for _, s := range all {
		names[s.Name] = true
	}
	for i := 0; i < 26; i++ {
		assert.True(t, names[string(rune('a'+i))])
	}
}
