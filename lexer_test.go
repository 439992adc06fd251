package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_IntegerAndFloatLiterals(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("42 3.14 1_000_000", diags)

	require.Equal(t, TokInt, l.NextTokenIgnoringNewlines())
	assert.EqualValues(t, 42, l.LastInteger)

	require.Equal(t, TokFloat, l.NextTokenIgnoringNewlines())
	assert.InDelta(t, 3.14, l.LastFloat, 1e-9)

	require.Equal(t, TokInt, l.NextTokenIgnoringNewlines())
	assert.EqualValues(t, 1000000, l.LastInteger)

	require.Equal(t, TokEOF, l.NextTokenIgnoringNewlines())
	require.False(t, diags.HasErrors())
}

func TestLexer_StringEscapeSequences(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer(`"line1\nline2\ttab\\back\"quote"`, diags)

	require.Equal(t, TokString, l.NextTokenIgnoringNewlines())
	assert.Equal(t, "line1\nline2\ttab\\back\"quote", l.LastString)
	require.False(t, diags.HasErrors())
}

func TestLexer_UnterminatedStringIsLexicalError(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("\"never closed", diags)

	l.NextTokenIgnoringNewlines()
	require.True(t, diags.HasErrors())
}

func TestLexer_KeywordsAndBooleans(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("true false if else while for", diags)

	require.Equal(t, TokBool, l.NextTokenIgnoringNewlines())
	assert.True(t, l.LastBool)

	require.Equal(t, TokBool, l.NextTokenIgnoringNewlines())
	assert.False(t, l.LastBool)

	require.Equal(t, TokIf, l.NextTokenIgnoringNewlines())
	require.Equal(t, TokElse, l.NextTokenIgnoringNewlines())
	require.Equal(t, TokWhile, l.NextTokenIgnoringNewlines())
	require.Equal(t, TokFor, l.NextTokenIgnoringNewlines())
	require.False(t, diags.HasErrors())
}

func TestLexer_IdentifierVsUnderscorePlaceholder(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("_ foo_bar _leading", diags)

	require.Equal(t, TokUnderscore, l.NextTokenIgnoringNewlines())

	require.Equal(t, TokIdentifier, l.NextTokenIgnoringNewlines())
	assert.Equal(t, "foo_bar", l.LastIdentifier)

	require.Equal(t, TokIdentifier, l.NextTokenIgnoringNewlines())
	assert.Equal(t, "_leading", l.LastIdentifier)
}

func TestLexer_MultiCharOperatorsPreferLongestMatch(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("+= == != <= >= << >> ->", diags)

	expected := []Category{
		TokPlusEqual, TokEqualEqual, TokNotEqual, TokLessEqual,
		TokGreaterEqual, TokShiftLeft, TokShiftRight, TokArrow,
	}
	for _, want := range expected {
		require.Equal(t, want, l.NextTokenIgnoringNewlines())
	}
	require.False(t, diags.HasErrors())
}

func TestLexer_AnonymousArgTokens(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("$ $3 $$", diags)

	require.Equal(t, TokArg0, l.NextTokenIgnoringNewlines())

	require.Equal(t, TokArg, l.NextTokenIgnoringNewlines())
	assert.Equal(t, 3, l.LastArgIndex)

	require.Equal(t, TokArgsAll, l.NextTokenIgnoringNewlines())
}

func TestLexer_NewlineIsASignificantToken(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("a\nb", diags)

	require.Equal(t, TokIdentifier, l.NextToken())
	require.Equal(t, TokNewline, l.NextToken())
	require.Equal(t, TokIdentifier, l.NextToken())
}

func TestLexer_BlockCommentsAreSkipped(t *testing.T) {
	diags := NewDiagnosticLog()
	l := NewLexer("a /* this is\na comment */ b", diags)

	require.Equal(t, TokIdentifier, l.NextTokenIgnoringNewlines())
	assert.Equal(t, "a", l.LastIdentifier)
	require.Equal(t, TokIdentifier, l.NextTokenIgnoringNewlines())
	assert.Equal(t, "b", l.LastIdentifier)
}
