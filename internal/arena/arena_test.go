package arena

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArena(t *testing.T, words int, opts ...Option) *Arena {
	t.Helper()
	a, err := New(words*WordSize, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	return a
}

// compact runs the four compaction passes and returns every allocated
// block's old and new header offsets.
func compact(t *testing.T, a *Arena) (map[int]int, int) {
	t.Helper()

	var headers []int
	for h := 0; h < a.Len(); {
		n, used := a.blockAt(h)
		if used {
			headers = append(headers, h)
		}
		h += n
	}

	a.PlanRelocation()
	relocated := make(map[int]int, len(headers))
	for _, h := range headers {
		to, err := a.RelocatedHeader(h)
		require.NoError(t, err)
		relocated[h] = to
	}
	moved := a.Slide()
	a.RepairFooters()
	return relocated, moved
}

func TestArena_New(t *testing.T) {
	t.Run("single free block", func(t *testing.T) {
		a := newArena(t, 64)

		stats := a.Stats()
		assert.Equal(t, 64, stats.Words)
		assert.Equal(t, 64, stats.FreeWords)
		assert.Equal(t, 1, stats.FreeBlocks)
		assert.Equal(t, 64, stats.MaxFreeHint)
		assert.Equal(t, 0, stats.UsedBlocks)
		require.NoError(t, a.Check())
	})

	t.Run("rounds down to word multiple", func(t *testing.T) {
		a, err := New(10*WordSize + 5)
		require.NoError(t, err)
		defer a.Release()

		assert.Equal(t, 10, a.Len())
		require.NoError(t, a.Check())
	})

	t.Run("too small", func(t *testing.T) {
		_, err := New(WordSize)
		assert.ErrorIs(t, err, ErrCapacity)

		_, err = New(0)
		assert.ErrorIs(t, err, ErrCapacity)
	})
}

func TestArena_FirstFitSplit(t *testing.T) {
	a := newArena(t, 64)

	h1, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Equal(t, 0, h1)

	h2, err := a.Alloc(1)
	require.NoError(t, err)
	assert.Equal(t, 5, h2)

	n, err := a.BlockWords(h1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, a.Payload(h1), 3)
	assert.Len(t, a.Payload(h2), 1)

	stats := a.Stats()
	assert.Equal(t, 56, stats.FreeWords)
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, 2, stats.UsedBlocks)
	require.NoError(t, a.Check())

	// A freed hole at the front is reused first.
	a.Free(h1)
	h3, err := a.Alloc(2)
	require.NoError(t, err)
	assert.Equal(t, 0, h3)
	require.NoError(t, a.Check())
}

func TestArena_AllocateAbsorbsSmallRemainder(t *testing.T) {
	a := newArena(t, 10)

	// 7 payload + 2 tags leaves a single word, too small to stand alone.
	h, err := a.Alloc(7)
	require.NoError(t, err)

	n, err := a.BlockWords(h)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Len(t, a.Payload(h), 8)

	stats := a.Stats()
	assert.Equal(t, 0, stats.FreeWords)
	assert.Equal(t, 0, stats.FreeBlocks)
	assert.Equal(t, 0, stats.MaxFreeHint)
	require.NoError(t, a.Check())

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, ErrNoFreeBlock)
}

func TestArena_PayloadZeroed(t *testing.T) {
	a := newArena(t, 16)

	h, err := a.Alloc(4)
	require.NoError(t, err)
	p := a.Payload(h)
	for i := range p {
		p[i] = ^uint64(0)
	}
	a.Free(h)

	h, err = a.Alloc(4)
	require.NoError(t, err)
	for _, w := range a.Payload(h) {
		assert.Zero(t, w)
	}
}

func TestArena_FreeCoalesces(t *testing.T) {
	t.Run("forward and backward", func(t *testing.T) {
		a := newArena(t, 64)

		h1, _ := a.Alloc(3) // [0,5)
		h2, _ := a.Alloc(1) // [5,8)
		h3, _ := a.Alloc(2) // [8,12)

		a.Free(h1)
		assert.Equal(t, 2, a.Stats().FreeBlocks)
		require.NoError(t, a.Check())

		a.Free(h3) // merges with the tail
		assert.Equal(t, 2, a.Stats().FreeBlocks)
		require.NoError(t, a.Check())

		a.Free(h2) // merges with both neighbours
		stats := a.Stats()
		assert.Equal(t, 1, stats.FreeBlocks)
		assert.Equal(t, 64, stats.FreeWords)
		assert.Equal(t, 64, stats.MaxFreeHint)
		require.NoError(t, a.Check())
	})

	t.Run("backward via footer only", func(t *testing.T) {
		a := newArena(t, 12)

		h1, _ := a.Alloc(2) // [0,4)
		h2, _ := a.Alloc(2) // [4,8)
		h3, _ := a.Alloc(2) // [8,12)

		a.Free(h1)
		a.Free(h2)
		stats := a.Stats()
		assert.Equal(t, 1, stats.FreeBlocks)
		assert.Equal(t, 8, stats.FreeWords)
		require.NoError(t, a.Check())

		h, err := a.Alloc(6)
		require.NoError(t, err)
		assert.Equal(t, 0, h)
		_ = h3
	})
}

func TestArena_FreeInvalidPanics(t *testing.T) {
	a := newArena(t, 16)

	h, err := a.Alloc(2)
	require.NoError(t, err)
	a.Free(h)

	assert.Panics(t, func() { a.Free(h) })
	assert.Panics(t, func() { a.Free(-1) })
	assert.Panics(t, func() { a.Free(1000) })
}

func TestArena_AllocateErrors(t *testing.T) {
	a := newArena(t, 16)

	h, err := a.Alloc(2)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Allocate(h, 1), ErrBlockUnavailable)
	assert.ErrorIs(t, a.Allocate(-1, 1), ErrBlockUnavailable)

	free, ok := a.FindFree(1)
	require.True(t, ok)
	assert.ErrorIs(t, a.Allocate(free, 100), ErrBlockUnavailable)
}

func TestArena_MaxFreeHintTightensOnFailedScan(t *testing.T) {
	a := newArena(t, 40)

	var hs []int
	for range 10 {
		h, err := a.Alloc(2)
		require.NoError(t, err)
		hs = append(hs, h)
	}
	assert.Equal(t, 0, a.Stats().MaxFreeHint)

	a.Free(hs[0])
	a.Free(hs[2])
	assert.Equal(t, 4, a.Stats().MaxFreeHint)

	// A stale hint is corrected by a failed scan.
	a.currMaxFree = 30
	_, ok := a.FindFree(5)
	assert.False(t, ok)
	assert.Equal(t, 4, a.Stats().MaxFreeHint)
	require.NoError(t, a.Check())
}

func TestArena_MaxFreeHintDropsWhenCarved(t *testing.T) {
	a := newArena(t, 60)

	// Layout after the frees: F30 L3 F4 L3 F4 L3 F4 L9.
	var holes []int
	for i, payload := range []int{28, 1, 2, 1, 2, 1, 2, 7} {
		h, err := a.Alloc(payload)
		require.NoError(t, err)
		if i%2 == 0 && i < 7 {
			holes = append(holes, h)
		}
	}
	for _, h := range holes {
		a.Free(h)
	}
	stats := a.Stats()
	require.Equal(t, 42, stats.FreeWords)
	require.Equal(t, 4, stats.FreeBlocks)
	require.Equal(t, 30, stats.MaxFreeHint)

	h, err := a.Alloc(26)
	require.NoError(t, err)
	assert.Equal(t, 0, h)

	stats = a.Stats()
	assert.Equal(t, 14, stats.FreeWords)
	assert.Equal(t, 4, stats.FreeBlocks)
	assert.Equal(t, 2, stats.MaxFreeHint)
	assert.GreaterOrEqual(t, a.FragmentationRatio(), 2.0)
	require.NoError(t, a.Check())

	// An underestimated hint never hides a block that fits.
	h, err = a.Alloc(2)
	require.NoError(t, err)
	assert.Equal(t, 33, h)
	require.NoError(t, a.Check())
}

func TestArena_CompactRecoversFragmentation(t *testing.T) {
	a := newArena(t, 40)

	hs := make([]int, 10)
	for i := range hs {
		h, err := a.Alloc(2)
		require.NoError(t, err)
		p := a.Payload(h)
		p[0], p[1] = uint64(i), uint64(i*100)
		hs[i] = h
	}
	for i := 0; i < len(hs); i += 2 {
		a.Free(hs[i])
	}

	stats := a.Stats()
	assert.Equal(t, 20, stats.FreeWords)
	assert.Equal(t, 5, stats.FreeBlocks)
	assert.GreaterOrEqual(t, a.FragmentationRatio(), 2.0)

	_, err := a.Alloc(stats.FreeWords - TagWords)
	assert.ErrorIs(t, err, ErrNoFreeBlock)

	relocated, moved := compact(t, a)
	assert.Equal(t, 5, moved)
	assert.Equal(t, map[int]int{4: 0, 12: 4, 20: 8, 28: 12, 36: 16}, relocated)

	stats = a.Stats()
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, 20, stats.MaxFreeHint)
	assert.Equal(t, uint64(1), stats.Compactions)
	require.NoError(t, a.Check())

	for i := 1; i < len(hs); i += 2 {
		p := a.Payload(relocated[hs[i]])
		assert.Equal(t, uint64(i), p[0])
		assert.Equal(t, uint64(i*100), p[1])
	}

	h, err := a.Alloc(stats.FreeWords - TagWords)
	require.NoError(t, err)
	assert.Equal(t, 20, h)
	require.NoError(t, a.Check())
}

func TestArena_CompactPhases(t *testing.T) {
	a := newArena(t, 20)

	h1, _ := a.Alloc(2) // [0,4)
	h2, _ := a.Alloc(2) // [4,8)
	a.Free(h1)

	_, err := a.RelocatedHeader(h2)
	assert.ErrorIs(t, err, ErrNoPlan)

	a.PlanRelocation()
	assert.Error(t, a.Check())

	to, err := a.RelocatedHeader(h2)
	require.NoError(t, err)
	assert.Equal(t, 0, to)

	_, err = a.RelocatedHeader(8)
	assert.ErrorIs(t, err, ErrNotAllocated)

	assert.Equal(t, 1, a.Slide())
	a.RepairFooters()
	require.NoError(t, a.Check())

	n, err := a.BlockWords(0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestArena_CompactNothingToMove(t *testing.T) {
	a := newArena(t, 16)

	_, err := a.Alloc(2)
	require.NoError(t, err)

	relocated, moved := compact(t, a)
	assert.Equal(t, 0, moved)
	assert.Equal(t, map[int]int{0: 0}, relocated)
	require.NoError(t, a.Check())
}

type limitAcquirer struct {
	limit, used int64
}

func (l *limitAcquirer) AcquireMemory(_ context.Context, amount int64) error {
	if l.used+amount > l.limit {
		return errors.New("limit exceeded")
	}
	l.used += amount
	return nil
}

func (l *limitAcquirer) ReleaseMemory(amount int64) {
	l.used -= amount
}

func TestArena_MemoryAcquirer(t *testing.T) {
	acq := &limitAcquirer{limit: 1024}

	a, err := New(512, WithMemoryAcquirer(acq))
	require.NoError(t, err)
	assert.Equal(t, int64(512), acq.used)

	_, err = New(1024, WithMemoryAcquirer(acq))
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, int64(512), acq.used)

	require.NoError(t, a.Release())
	assert.Equal(t, int64(0), acq.used)
}

func TestArena_Release(t *testing.T) {
	a, err := New(128)
	require.NoError(t, err)

	require.NoError(t, a.Release())
	assert.True(t, a.Released())
	require.NoError(t, a.Release())

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, a.Check(), ErrReleased)
}

func TestArena_String(t *testing.T) {
	a := newArena(t, 32)
	_, _ = a.Alloc(4)
	assert.Contains(t, a.String(), "words: 32")
}
