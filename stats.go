package handleheap

import "fmt"

// Stats is a point-in-time view of a Heap.
type Stats struct {
	Words         int     // Arena length in words
	FreeWords     int     // Words in free blocks, tags included
	FreeBlocks    int     // Number of free blocks
	MaxFreeHint   int     // Estimate of the largest free block
	Fragmentation float64 // FreeWords / (MaxFreeHint + 1)
	Compactions   uint64

	Handles    int // Live handles
	TableSize  int
	ScopeDepth int // Open scopes
	ScopeSlots int // Scope stack entries in use

	SuppressedWarnings uint64
}

// Stats returns the current heap statistics.
func (h *Heap) Stats() (Stats, error) {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()

	if err := h.usable(); err != nil {
		return Stats{}, err
	}

	as := h.arena.Stats()
	return Stats{
		Words:              as.Words,
		FreeWords:          as.FreeWords,
		FreeBlocks:         as.FreeBlocks,
		MaxFreeHint:        as.MaxFreeHint,
		Fragmentation:      h.arena.FragmentationRatio(),
		Compactions:        as.Compactions,
		Handles:            h.table.Len(),
		TableSize:          h.table.Cap(),
		ScopeDepth:         h.scopes.Depth(),
		ScopeSlots:         h.scopes.Len(),
		SuppressedWarnings: h.rc.Suppressed(),
	}, nil
}

// Check verifies the arena's boundary tags and that every live handle
// refers to a distinct allocated block. It is meant for tests and debugging
// and walks the whole heap under read locks.
func (h *Heap) Check() error {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()

	if err := h.usable(); err != nil {
		return err
	}
	if err := h.arena.Check(); err != nil {
		return err
	}

	seen := make(map[int]int, h.table.Len())
	for i := range h.table.Cap() {
		off, ok := h.table.Lookup(i)
		if !ok {
			continue
		}
		if _, err := h.arena.BlockWords(off); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		if prev, dup := seen[off]; dup {
			return fmt.Errorf("slots %d and %d share block at word %d", prev, i, off)
		}
		seen[off] = i
	}

	if used := h.arena.Stats().UsedBlocks; used != len(seen) {
		return fmt.Errorf("%d allocated blocks, %d live handles", used, len(seen))
	}
	return nil
}
