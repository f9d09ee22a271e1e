package arena

import "fmt"

// Check walks the whole arena and verifies the boundary-tag invariants:
// header == footer for every block, block lengths sum to the arena length,
// no two free blocks are adjacent, and the free counters match the blocks.
// The max free hint is only checked where it must be exact, with at most
// one free block.
func (a *Arena) Check() error {
	if a.Released() {
		return ErrReleased
	}
	if a.planned {
		return fmt.Errorf("arena: check during compaction")
	}

	var (
		sum, free, freeBlocks, used, largest int
		prevFree                            bool
	)
	for h := 0; h < len(a.words); {
		t := a.words[h]
		n := tagWords(t)
		if n < minBlockWords || h+n > len(a.words) {
			return fmt.Errorf("arena: bad header %#x at word %d", t, h)
		}
		if a.words[h+n-1] != t {
			return fmt.Errorf("arena: footer %#x != header %#x for block at word %d", a.words[h+n-1], t, h)
		}
		if tagAllocated(t) {
			used++
			prevFree = false
		} else {
			if prevFree {
				return fmt.Errorf("arena: adjacent free blocks at word %d", h)
			}
			free += n
			freeBlocks++
			largest = max(largest, n)
			prevFree = true
		}
		sum += n
		h += n
	}

	switch {
	case sum != len(a.words):
		return fmt.Errorf("arena: block lengths sum to %d, arena has %d words", sum, len(a.words))
	case free != a.totalFree:
		return fmt.Errorf("arena: %d free words, counter says %d", free, a.totalFree)
	case freeBlocks != a.numFreeBlocks:
		return fmt.Errorf("arena: %d free blocks, counter says %d", freeBlocks, a.numFreeBlocks)
	case used != a.usedBlocks:
		return fmt.Errorf("arena: %d allocated blocks, counter says %d", used, a.usedBlocks)
	case freeBlocks <= 1 && largest != a.currMaxFree:
		return fmt.Errorf("arena: single free block of %d words, max free hint %d", largest, a.currMaxFree)
	}
	return nil
}
