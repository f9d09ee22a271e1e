package arena

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/hupe1980/handleheap/internal/mmap"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrCapacity is returned when the backing memory cannot be reserved.
	ErrCapacity = errors.New("arena: cannot reserve backing memory")
	// ErrNoFreeBlock is returned when no free block can hold a request.
	ErrNoFreeBlock = errors.New("arena: no free block")
	// ErrBlockUnavailable is returned when Allocate targets a block that is
	// allocated or too small.
	ErrBlockUnavailable = errors.New("arena: block unavailable")
	// ErrNotAllocated is returned when a header offset does not name an allocated block.
	ErrNotAllocated = errors.New("arena: block is not allocated")
	// ErrNoPlan is returned when RelocatedHeader is called outside a compaction.
	ErrNoPlan = errors.New("arena: no relocation planned")
	// ErrReleased is returned for operations on a released arena.
	ErrReleased = errors.New("arena: released")
)

const (
	// WordSize is the size of an arena word in bytes.
	WordSize = 8
	// TagWords is the per-block overhead: one header and one footer word.
	TagWords = 2

	acquireTimeout = 100 * time.Millisecond
)

// CorruptionError is the panic value for broken boundary tags.
type CorruptionError struct {
	msg string
}

func (e *CorruptionError) Error() string { return "arena: corrupt: " + e.msg }

func corruptf(format string, args ...any) *CorruptionError {
	return &CorruptionError{msg: fmt.Sprintf(format, args...)}
}

// Stats tracks arena usage.
//
// MaxFreeHint estimates the largest free block. It drops when the block it
// tracks is carved and never falls below the average free block size, so
// it can be off in either direction. It is exact right after a compaction
// and whenever at most one free block exists.
type Stats struct {
	Words       int    // Arena length in words
	FreeWords   int    // Words in free blocks, tags included
	FreeBlocks  int    // Number of free blocks
	MaxFreeHint int    // Estimate of the largest free block
	UsedBlocks  int    // Number of allocated blocks
	TotalAllocs uint64 // Historical: allocations
	TotalFrees  uint64 // Historical: frees
	Compactions uint64 // Historical: completed compactions
}

// Arena is a fixed-size boundary-tag allocator over a word slice.
type Arena struct {
	mapping *mmap.Mapping
	words   []uint64

	totalFree     int
	numFreeBlocks int
	currMaxFree   int
	usedBlocks    int

	allocs      uint64
	frees       uint64
	compactions uint64

	// planned is set between PlanRelocation and RepairFooters, while
	// allocated footers hold relocation targets instead of tags.
	planned bool

	acquirer MemoryAcquirer
	reserved int64
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithMemoryAcquirer sets the memory acquirer for the arena.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Arena) {
		a.acquirer = acquirer
	}
}

// New creates an arena of bytes rounded down to a word multiple, laid out as
// a single free block.
func New(bytes int, opts ...Option) (*Arena, error) {
	n := bytes / WordSize
	if n < minBlockWords {
		return nil, fmt.Errorf("%w: %d bytes is smaller than one block", ErrCapacity, bytes)
	}
	size := n * WordSize

	a := &Arena{}
	for _, opt := range opts {
		opt(a)
	}

	if a.acquirer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
		defer cancel()
		if err := a.acquirer.AcquireMemory(ctx, int64(size)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCapacity, err)
		}
		a.reserved = int64(size)
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		a.releaseReservation()
		return nil, fmt.Errorf("%w: %w", ErrCapacity, err)
	}
	_ = mapping.Advise(mmap.AccessRandom)
	buf := mapping.Bytes()

	a.mapping = mapping
	a.words = unsafe.Slice((*uint64)(unsafe.Pointer(&buf[0])), n) //nolint:gosec // mapping is page aligned
	a.setTags(0, n, false)
	a.totalFree = n
	a.numFreeBlocks = 1
	a.currMaxFree = n

	return a, nil
}

// Len returns the arena length in words.
func (a *Arena) Len() int {
	return len(a.words)
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	return a.words == nil
}

// FindFree returns the header of the first free block that can hold
// sizeWords of payload. Requests above FreeWords fail without a scan; a
// scan that finds nothing resets the hint to the largest block it saw.
func (a *Arena) FindFree(sizeWords int) (int, bool) {
	need := sizeWords + TagWords
	if sizeWords < 0 || need > a.totalFree {
		return 0, false
	}

	largest := 0
	for h := 0; h < len(a.words); {
		n, used := a.blockAt(h)
		if !used {
			if n >= need {
				return h, true
			}
			largest = max(largest, n)
		}
		h += n
	}

	a.currMaxFree = largest
	return 0, false
}

// Allocate turns the free block at h into an allocated block holding
// sizeWords of zeroed payload. A remainder of at least one minimal block is
// split off as a new free block; a smaller remainder stays in the allocation.
func (a *Arena) Allocate(h, sizeWords int) error {
	if a.Released() {
		return ErrReleased
	}
	if h < 0 || h >= len(a.words) || sizeWords < 0 {
		return fmt.Errorf("%w: header %d, %d words", ErrBlockUnavailable, h, sizeWords)
	}

	n, used := a.blockAt(h)
	need := sizeWords + TagWords
	if used || n < need {
		return fmt.Errorf("%w: block at %d holds %d words (allocated=%t), need %d",
			ErrBlockUnavailable, h, n, used, need)
	}

	if rest := n - need; rest >= minBlockWords {
		a.setTags(h, need, true)
		a.setTags(h+need, rest, false)
	} else {
		need = n
		a.setTags(h, n, true)
		a.numFreeBlocks--
	}
	a.totalFree -= need
	clear(a.words[h+1 : h+need-1])

	// Carving the block the hint points at shrinks the hint; the average
	// free block size is its floor.
	if n == a.currMaxFree {
		a.currMaxFree -= need
	}
	a.currMaxFree = max(a.currMaxFree, a.totalFree/(a.numFreeBlocks+1))
	if a.numFreeBlocks <= 1 {
		a.currMaxFree = a.totalFree
	}
	a.usedBlocks++
	a.allocs++
	return nil
}

// Alloc finds and allocates a block for sizeWords of payload and returns its header.
func (a *Arena) Alloc(sizeWords int) (int, error) {
	if a.Released() {
		return 0, ErrReleased
	}
	h, ok := a.FindFree(sizeWords)
	if !ok {
		return 0, fmt.Errorf("%w: need %d words", ErrNoFreeBlock, sizeWords+TagWords)
	}
	if err := a.Allocate(h, sizeWords); err != nil {
		return 0, err
	}
	return h, nil
}

// Free releases the allocated block at h and coalesces it with free
// neighbours. The predecessor is found through its footer, the word just
// before h.
func (a *Arena) Free(h int) {
	if h < 0 || h >= len(a.words) {
		panic(corruptf("free of word %d outside arena of %d words", h, len(a.words)))
	}
	n, used := a.blockAt(h)
	if !used {
		panic(corruptf("free of unallocated block at word %d", h))
	}
	if a.words[h+n-1] != a.words[h] {
		panic(corruptf("footer %#x does not match header %#x at word %d", a.words[h+n-1], a.words[h], h))
	}

	a.totalFree += n
	a.numFreeBlocks++
	a.usedBlocks--
	a.frees++

	start, size := h, n
	if next := h + n; next < len(a.words) {
		nn, nused := a.blockAt(next)
		if !nused {
			size += nn
			a.numFreeBlocks--
		}
	}
	if h > 0 {
		if prev := a.words[h-1]; !tagAllocated(prev) {
			pn := tagWords(prev)
			if pn < minBlockWords || pn > h || a.words[h-pn] != prev {
				panic(corruptf("predecessor footer %#x before word %d does not match its header", prev, h))
			}
			start -= pn
			size += pn
			a.numFreeBlocks--
		}
	}

	a.setTags(start, size, false)
	a.currMaxFree = max(a.currMaxFree, size, a.totalFree/(a.numFreeBlocks+1))
}

// BlockWords returns the total length of the allocated block at h.
func (a *Arena) BlockWords(h int) (int, error) {
	if a.Released() {
		return 0, ErrReleased
	}
	if h < 0 || h >= len(a.words) {
		return 0, fmt.Errorf("%w: word %d", ErrNotAllocated, h)
	}
	n, used := a.blockAt(h)
	if !used {
		return 0, fmt.Errorf("%w: word %d", ErrNotAllocated, h)
	}
	return n, nil
}

// Payload returns the payload words of the allocated block at h. The slice
// aliases arena memory and is valid until the block is freed or moved.
func (a *Arena) Payload(h int) []uint64 {
	n, err := a.BlockWords(h)
	if err != nil {
		panic(corruptf("payload of word %d: %v", h, err))
	}
	return a.words[h+1 : h+n-1 : h+n-1]
}

// FragmentationRatio returns FreeWords / (MaxFreeHint + 1). High values mean
// free space is scattered across many small blocks.
func (a *Arena) FragmentationRatio() float64 {
	return float64(a.totalFree) / float64(a.currMaxFree+1)
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	return Stats{
		Words:       len(a.words),
		FreeWords:   a.totalFree,
		FreeBlocks:  a.numFreeBlocks,
		MaxFreeHint: a.currMaxFree,
		UsedBlocks:  a.usedBlocks,
		TotalAllocs: a.allocs,
		TotalFrees:  a.frees,
		Compactions: a.compactions,
	}
}

// Release unmaps the backing memory. The arena is unusable afterwards.
func (a *Arena) Release() error {
	if a.mapping == nil {
		return nil
	}
	a.words = nil
	err := a.mapping.Close()
	a.mapping = nil
	a.releaseReservation()
	return err
}

func (a *Arena) releaseReservation() {
	if a.acquirer != nil && a.reserved > 0 {
		a.acquirer.ReleaseMemory(a.reserved)
		a.reserved = 0
	}
}

func (a *Arena) String() string {
	s := a.Stats()
	return fmt.Sprintf(
		"Arena{words: %d, used: %d, free: %d in %d blocks, max free: %d, fragmentation: %.2f}",
		s.Words, s.Words-s.FreeWords, s.FreeWords, s.FreeBlocks, s.MaxFreeHint, a.FragmentationRatio(),
	)
}
