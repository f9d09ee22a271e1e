package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tbl, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Cap())
	assert.Equal(t, 0, tbl.Len())

	for i := range 4 {
		s, err := tbl.Get(i)
		require.NoError(t, err)
		assert.False(t, s.Valid)
	}

	_, err = New(0)
	assert.Error(t, err)
}

func TestInsertInIndexOrder(t *testing.T) {
	tbl, err := New(3)
	require.NoError(t, err)

	for want := range 3 {
		idx, err := tbl.Insert(want * 10)
		require.NoError(t, err)
		assert.Equal(t, want, idx)

		s, _ := tbl.Get(idx)
		assert.Equal(t, Slot{Offset: want * 10, Valid: true, Marked: true}, s)
	}
	assert.Equal(t, 3, tbl.Len())

	_, err = tbl.Insert(99)
	assert.ErrorIs(t, err, ErrFull)
}

func TestRemovePushesToTail(t *testing.T) {
	tbl, err := New(4)
	require.NoError(t, err)

	a, _ := tbl.Insert(0)
	b, _ := tbl.Insert(4)

	require.NoError(t, tbl.Remove(a))
	assert.Equal(t, 1, tbl.Len())

	// Untouched slots 2 and 3 come before the freed slot 0.
	idx, _ := tbl.Insert(8)
	assert.Equal(t, 2, idx)
	idx, _ = tbl.Insert(12)
	assert.Equal(t, 3, idx)
	idx, _ = tbl.Insert(16)
	assert.Equal(t, a, idx)

	_, err = tbl.Insert(20)
	assert.ErrorIs(t, err, ErrFull)

	require.NoError(t, tbl.Remove(b))
	idx, err = tbl.Insert(24)
	require.NoError(t, err)
	assert.Equal(t, b, idx)
}

func TestRemoveErrors(t *testing.T) {
	tbl, err := New(2)
	require.NoError(t, err)

	assert.ErrorIs(t, tbl.Remove(0), ErrAlreadyFree)
	assert.ErrorIs(t, tbl.Remove(-1), ErrOutOfRange)
	assert.ErrorIs(t, tbl.Remove(2), ErrOutOfRange)

	idx, _ := tbl.Insert(0)
	require.NoError(t, tbl.Remove(idx))
	assert.ErrorIs(t, tbl.Remove(idx), ErrAlreadyFree)
	assert.Equal(t, 0, tbl.Len())
}

func TestLookupAndUnmark(t *testing.T) {
	tbl, err := New(2)
	require.NoError(t, err)

	idx, _ := tbl.Insert(42)
	off, ok := tbl.Lookup(idx)
	assert.True(t, ok)
	assert.Equal(t, 42, off)
	assert.False(t, tbl.Garbage(idx))

	tbl.Unmark(idx)
	assert.True(t, tbl.Garbage(idx))

	_, ok = tbl.Lookup(1)
	assert.False(t, ok)
	_, ok = tbl.Lookup(7)
	assert.False(t, ok)

	tbl.Unmark(1)
	tbl.Unmark(-3)
	assert.False(t, tbl.Garbage(1))
}

func TestRelocate(t *testing.T) {
	tbl, err := New(4)
	require.NoError(t, err)

	a, _ := tbl.Insert(10)
	b, _ := tbl.Insert(20)
	c, _ := tbl.Insert(30)
	require.NoError(t, tbl.Remove(b))

	require.NoError(t, tbl.Relocate(func(off int) (int, error) { return off - 10, nil }))

	off, _ := tbl.Lookup(a)
	assert.Equal(t, 0, off)
	off, _ = tbl.Lookup(c)
	assert.Equal(t, 20, off)

	boom := errors.New("boom")
	err = tbl.Relocate(func(int) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestGenerationBumpsOnRemove(t *testing.T) {
	tbl, err := New(1)
	require.NoError(t, err)

	idx, _ := tbl.Insert(0)
	s, _ := tbl.Get(idx)
	assert.Equal(t, uint32(0), s.Gen)

	require.NoError(t, tbl.Remove(idx))
	s, _ = tbl.Get(idx)
	assert.Equal(t, uint32(1), s.Gen)

	again, err := tbl.Insert(8)
	require.NoError(t, err)
	require.Equal(t, idx, again)
	s, _ = tbl.Get(again)
	assert.Equal(t, Slot{Offset: 8, Gen: 1, Valid: true, Marked: true}, s)

	// A failed remove leaves the generation alone.
	require.NoError(t, tbl.Remove(again))
	assert.ErrorIs(t, tbl.Remove(again), ErrAlreadyFree)
	s, _ = tbl.Get(again)
	assert.Equal(t, uint32(2), s.Gen)
}
