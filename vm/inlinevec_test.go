package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineVecPushPeekPop(t *testing.T) {
	s := NewInlineVec[int](2)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))

	top, err := s.Peek()
	require.NoError(t, err)
	require.Equal(t, 2, top)

	v, err := s.Pop()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 1, s.Len())
}

func TestInlineVecOverflowsAtCapacity(t *testing.T) {
	s := NewInlineVec[int](2)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	require.ErrorIs(t, s.Push(3), ErrStackOverflow)
}

func TestInlineVecUnderflowsWhenEmpty(t *testing.T) {
	s := NewInlineVec[int](2)
	_, err := s.Pop()
	require.ErrorIs(t, err, ErrStackUnderflow)

	_, err = s.Peek()
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestInlineVecPeekMutRewritesInPlace(t *testing.T) {
	s := NewInlineVec[int](2)
	require.NoError(t, s.Push(10))

	ptr, err := s.PeekMut()
	require.NoError(t, err)
	*ptr = 99

	v, err := s.Peek()
	require.NoError(t, err)
	require.Equal(t, 99, v)
}
