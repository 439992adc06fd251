package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// runSource drives source through the full lex->parse->analyze->compile->
// run pipeline and returns the program's result, failing the test on any
// diagnostic or runtime error.
func runSource(t *testing.T, source string) Value {
	t.Helper()

	diags := NewDiagnosticLog()
	lexer := NewLexer(source, diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors(), "parse: %v", diags.Err())

	bridge := NewNativeBridge()
	analyzer := NewAnalyzer(bridge.NameIndex(), diags)
	require.True(t, analyzer.Analyze(root), "analyze: %v", diags.Err())

	compiler := NewCompiler()
	prog, err := compiler.Compile(root, len(analyzer.Globals()))
	require.NoError(t, err)

	vm := NewVM(prog, bridge.Funcs())
	result, err := vm.Run()
	require.NoError(t, err)
	return result
}

func TestVM_ArithmeticAndPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected int64
	}{
		{"left-to-right with precedence", "1 + 2 * 3", 7},
		{"parens override precedence", "(1 + 2) * 3", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runSource(t, tt.source)
			require.Equal(t, KindInt, result.Kind)
			require.Equal(t, tt.expected, result.I)
		})
	}
}

func TestVM_ClosureCapturesByReference(t *testing.T) {
	source := `
make_counter = :() { n = 0; :() { n = n + 1; n } }
c = make_counter()
c(); c(); c()
`
	result := runSource(t, source)
	require.Equal(t, KindInt, result.Kind)
	require.EqualValues(t, 3, result.I)
}

func TestVM_PrototypeLookup(t *testing.T) {
	source := `
a = [proto=nil, x=1]
b = [proto=a]
first = b.x
b.y = 2
a.x = 5
second = b.x
[first, second]
`
	result := runSource(t, source)
	require.Equal(t, KindHeap, result.Kind)
	arr, ok := result.Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, arr.Elements, 2)
	require.EqualValues(t, 1, arr.Elements[0].I)
	require.EqualValues(t, 5, arr.Elements[1].I)
}

func TestVM_DivisionByZero(t *testing.T) {
	source := `make_error(10 / 0)`
	result := runSource(t, source)
	require.Equal(t, KindHeap, result.Kind)
	_, ok := result.Obj.(*ErrorObj)
	require.True(t, ok)
}

// TestVM_UnhandledDivisionByZeroYieldsErrorValue exercises spec scenario
// 5 directly: a division by zero that is never wrapped in make_error
// still surfaces as the program's result, not a Go error out of Run,
// and its string carries both "Division by 0" and the source line.
func TestVM_UnhandledDivisionByZeroYieldsErrorValue(t *testing.T) {
	diags := NewDiagnosticLog()
	lexer := NewLexer("10 / 0", diags)
	parser := NewParser(lexer, diags)
	root := parser.Parse()
	require.False(t, diags.HasErrors(), "parse: %v", diags.Err())

	bridge := NewNativeBridge()
	analyzer := NewAnalyzer(bridge.NameIndex(), diags)
	require.True(t, analyzer.Analyze(root), "analyze: %v", diags.Err())

	compiler := NewCompiler()
	prog, err := compiler.Compile(root, len(analyzer.Globals()))
	require.NoError(t, err)

	vm := NewVM(prog, bridge.Funcs())
	result, err := vm.Run()
	require.NoError(t, err, "a runtime error must surface as an Error value, not a Go error")

	require.Equal(t, KindHeap, result.Kind)
	errObj, ok := result.Obj.(*ErrorObj)
	require.True(t, ok)
	require.Contains(t, errObj.String(), "Division by 0")
	require.Contains(t, errObj.String(), "line 1")
}

func TestVM_ArrayDestructuring(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected []int64
	}{
		{"exact arity", "[a, b, c] = [10, 20, 30]; [a, b, c]", []int64{10, 20, 30}},
		{"extras dropped", "[a, b] = [1, 2, 3]; [a, b]", []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runSource(t, tt.source)
			arr, ok := result.Obj.(*ArrayObj)
			require.True(t, ok)
			require.Len(t, arr.Elements, len(tt.expected))
			for i, want := range tt.expected {
				require.EqualValues(t, want, arr.Elements[i].I)
			}
		})
	}
}

func TestVM_CoroutineYieldsViaEach(t *testing.T) {
	source := `
gen = :() { yield 1; yield 2; yield 3 }
co = make_coroutine(gen)
out = []
each(co, :(v, i) { out << v })
it = make_iterator(co)
[out, iterator_has_next(it)]
`
	result := runSource(t, source)
	arr, ok := result.Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, arr.Elements, 2)
	out, ok := arr.Elements[0].Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, out.Elements, 3)
	require.EqualValues(t, 1, out.Elements[0].I)
	require.EqualValues(t, 2, out.Elements[1].I)
	require.EqualValues(t, 3, out.Elements[2].I)
	require.False(t, arr.Elements[1].B)
}

// TestVM_ReduceAllAnyAcceptCoroutines exercises the other higher-order
// natives the original grounds on the same generator-or-array-or-object
// iterable set as each (Native.cpp's Reduce/All/Any), unlike map/filter
// which stay array-only.
func TestVM_ReduceAllAnyAcceptCoroutines(t *testing.T) {
	source := `
gen = :() { yield 1; yield 2; yield 3 }
sum = reduce(make_coroutine(gen), :(acc, v) { acc + v })
all_positive = all(make_coroutine(gen), :(v) { v > 0 })
any_even = any(make_coroutine(gen), :(v) { v % 2 == 0 })
[sum, all_positive, any_even]
`
	result := runSource(t, source)
	arr, ok := result.Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, arr.Elements, 3)
	require.EqualValues(t, 6, arr.Elements[0].I)
	require.True(t, arr.Elements[1].B)
	require.True(t, arr.Elements[2].B)
}

// TestVM_StringConstantIsInternedOncePerLoad guards against
// constantValue re-allocating (and permanently Static-marking, so
// never collectable) a fresh StringObj on every OpLoadConstant
// execution: running a loop that loads the same string literal many
// times must not grow the live string count at all, since the
// constant was already interned once at program load.
func TestVM_StringConstantIsInternedOncePerLoad(t *testing.T) {
	source := `
before = memory_stats().heap_strings_count
i = 0
while (i < 50) { s = "same"; i = i + 1 }
after = memory_stats().heap_strings_count
after - before
`
	result := runSource(t, source)
	require.Equal(t, KindInt, result.Kind)
	require.EqualValues(t, 0, result.I)
}

func TestVM_GCStressReclaimsUnreachableStrings(t *testing.T) {
	source := `
before = memory_stats().heap_strings_count
f = :() {
  i = 0
  while (i < 1000) { s = ~i; i = i + 1 }
}
f()
garbage_collect(100000)
after = memory_stats().heap_strings_count
after - before
`
	result := runSource(t, source)
	require.Equal(t, KindInt, result.Kind)
	require.EqualValues(t, 0, result.I)
}

func TestVM_ForLoopOverStringYieldsByteCodes(t *testing.T) {
	source := `
out = []
for (c in "AB") { out << c }
out
`
	result := runSource(t, source)
	arr, ok := result.Obj.(*ArrayObj)
	require.True(t, ok)
	require.Len(t, arr.Elements, 2)
	require.EqualValues(t, 'A', arr.Elements[0].I)
	require.EqualValues(t, 'B', arr.Elements[1].I)
}
