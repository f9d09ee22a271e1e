package arena

import (
	"github.com/hupe1980/handleheap/internal/conv"
	"github.com/hupe1980/handleheap/internal/mmap"
)

// PlanRelocation walks the arena once and writes every allocated block's
// post-compaction header offset into its own footer word. Until
// RepairFooters runs, allocated footers no longer mirror their headers.
func (a *Arena) PlanRelocation() {
	_ = a.mapping.Advise(mmap.AccessSequential)

	shift := 0
	for h := 0; h < len(a.words); {
		n, used := a.blockAt(h)
		if used {
			a.words[h+n-1] = uint64(h - shift) //nolint:gosec // shift <= h
		} else {
			shift += n
		}
		h += n
	}
	a.planned = true
}

// RelocatedHeader returns the header offset the block at h will have once
// Slide has run. It must be called before Slide.
func (a *Arena) RelocatedHeader(h int) (int, error) {
	if !a.planned {
		return 0, ErrNoPlan
	}
	n, err := a.BlockWords(h)
	if err != nil {
		return 0, err
	}
	to, err := conv.Uint64ToInt(a.words[h+n-1])
	if err != nil || to > h {
		panic(corruptf("relocation target %#x for block at word %d", a.words[h+n-1], h))
	}
	return to, nil
}

// Slide packs allocated blocks at the low end of the arena, in address
// order, and turns everything above them into one free block. It returns
// the number of blocks moved.
func (a *Arena) Slide() int {
	if !a.planned {
		panic(corruptf("slide without relocation plan"))
	}

	dst, moved := 0, 0
	for h := 0; h < len(a.words); {
		n, used := a.blockAt(h)
		if used {
			if dst != h {
				// Overlapping move; never writes past h+n, so the next header survives.
				copy(a.words[dst:dst+n], a.words[h:h+n])
				moved++
			}
			dst += n
		}
		h += n
	}

	if rest := len(a.words) - dst; rest > 0 {
		if rest < minBlockWords {
			panic(corruptf("free tail of %d words after slide", rest))
		}
		a.setTags(dst, rest, false)
	}
	return moved
}

// RepairFooters rewrites every footer from its header and resets the free
// counters: after a slide there is at most one free block.
func (a *Arena) RepairFooters() {
	for h := 0; h < len(a.words); {
		n, _ := a.blockAt(h)
		a.words[h+n-1] = a.words[h]
		h += n
	}

	a.numFreeBlocks = 0
	if a.totalFree > 0 {
		a.numFreeBlocks = 1
	}
	a.currMaxFree = a.totalFree
	a.planned = false
	a.compactions++

	_ = a.mapping.Advise(mmap.AccessRandom)
}
