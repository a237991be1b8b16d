package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedBufferSingleSegment(t *testing.T) {
	var b ChunkedBuffer
	b.Append([]byte("hello world"))
	assert.Equal(t, 11, b.Len())

	got, ok := b.Read(5)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 6, b.Len())

	got, ok = b.Read(6)
	require.True(t, ok)
	assert.Equal(t, []byte(" world"), got)
	assert.Equal(t, 0, b.Len())
}

func TestChunkedBufferSpansSegments(t *testing.T) {
	var b ChunkedBuffer
	b.Append([]byte("ab"))
	b.Append([]byte("cde"))
	b.Append([]byte("fg"))
	assert.Equal(t, 7, b.Len())

	got, ok := b.Read(4)
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), got)

	got, ok = b.Read(3)
	require.True(t, ok)
	assert.Equal(t, []byte("efg"), got)
	assert.Equal(t, 0, b.Len())
}

func TestChunkedBufferInsufficientData(t *testing.T) {
	var b ChunkedBuffer
	b.Append([]byte("ab"))

	_, ok := b.Read(5)
	assert.False(t, ok)
	assert.Equal(t, 2, b.Len(), "a failed read must not consume anything")
}

func TestChunkedBufferEvictsDrainedSegments(t *testing.T) {
	var b ChunkedBuffer
	b.Append([]byte("xy"))
	b.Append([]byte("z"))

	_, ok := b.Read(2)
	require.True(t, ok)
	assert.Len(t, b.segments, 1, "fully drained leading segment should be evicted")

	_, ok = b.Read(1)
	require.True(t, ok)
	assert.Empty(t, b.segments)
}

func TestChunkedBufferZeroLengthRead(t *testing.T) {
	var b ChunkedBuffer
	b.Append([]byte("abc"))

	got, ok := b.Read(0)
	require.True(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, 3, b.Len())
}
