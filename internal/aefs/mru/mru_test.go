package mru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_TouchOrdersMostRecentFirst(t *testing.T) {
	l := New[int]()
	l.Touch(1)
	l.Touch(2)
	l.Touch(3)
	require.Equal(t, 3, l.Len())

	oldest, ok := l.Oldest()
	require.True(t, ok)
	assert.Equal(t, 1, oldest)

	l.Touch(1) // re-touch moves 1 to the front
	oldest, ok = l.Oldest()
	require.True(t, ok)
	assert.Equal(t, 2, oldest)
}

func TestList_Evict(t *testing.T) {
	l := New[string]()
	l.Touch("a")
	l.Touch("b")
	l.Touch("c")

	evicted, ok := l.Evict()
	require.True(t, ok)
	assert.Equal(t, "a", evicted)
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Contains("a"))
}

func TestList_RemoveMiddle(t *testing.T) {
	l := New[int]()
	l.Touch(1)
	l.Touch(2)
	l.Touch(3)

	l.Remove(2)
	assert.False(t, l.Contains(2))
	assert.Equal(t, 2, l.Len())

	oldest, _ := l.Oldest()
	assert.Equal(t, 1, oldest)
}

func TestList_EmptyOldest(t *testing.T) {
	l := New[int]()
	_, ok := l.Oldest()
	assert.False(t, ok)
}

func TestList_ReuseFreedSlots(t *testing.T) {
	l := New[int]()
	for i := 0; i < 5; i++ {
		l.Touch(i)
	}
	for i := 0; i < 5; i++ {
		l.Evict()
	}
	require.Equal(t, 0, l.Len())

	for i := 10; i < 20; i++ {
		l.Touch(i)
	}
	assert.Equal(t, 10, l.Len())
	oldest, ok := l.Oldest()
	require.True(t, ok)
	assert.Equal(t, 10, oldest)
}
