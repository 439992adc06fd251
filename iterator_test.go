package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator_ArrayYieldsElementsInOrder(t *testing.T) {
	arr := &ArrayObj{Elements: []Value{IntValue(10), IntValue(20), IntValue(30)}}
	it := NewArrayIterator(arr)

	var got []int64
	for {
		has, err := it.HasNext(nil)
		require.NoError(t, err)
		if !has {
			break
		}
		v, err := it.GetNext(nil)
		require.NoError(t, err)
		got = append(got, v.I)
	}
	assert.Equal(t, []int64{10, 20, 30}, got)
}

func TestIterator_EmptyArrayHasNoNext(t *testing.T) {
	it := NewArrayIterator(&ArrayObj{})
	has, err := it.HasNext(nil)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIterator_StringYieldsRawByteValuesNotRunesOrSubstrings(t *testing.T) {
	it := NewStringIterator("AB")

	has, err := it.HasNext(nil)
	require.NoError(t, err)
	require.True(t, has)

	v, err := it.GetNext(nil)
	require.NoError(t, err)
	require.Equal(t, KindInt, v.Kind)
	assert.EqualValues(t, 'A', v.I)

	has, err = it.HasNext(nil)
	require.NoError(t, err)
	require.True(t, has)

	v, err = it.GetNext(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 'B', v.I)

	has, err = it.HasNext(nil)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIterator_StringMultiByteCharacterYieldsEachByteSeparately(t *testing.T) {
	// "é" encodes as two UTF-8 bytes (0xC3 0xA9); iteration must walk
	// raw bytes, not decoded runes, so this yields two steps not one.
	it := NewStringIterator("é")

	count := 0
	for {
		has, err := it.HasNext(nil)
		require.NoError(t, err)
		if !has {
			break
		}
		_, err = it.GetNext(nil)
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestIterator_EmptyStringHasNoNext(t *testing.T) {
	it := NewStringIterator("")
	has, err := it.HasNext(nil)
	require.NoError(t, err)
	assert.False(t, has)
}
